package analyze

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/latticeforge/meshplanner/topology"
	"gopkg.in/yaml.v3"
)

// WriteReports writes link.csv, site.csv, sector.csv, and metrics.yaml
// under outputDir/output, matching spec.md §6's persisted-state layout.
func WriteReports(topo *topology.Topology, m *Metrics, outputDir string) error {
	dir := filepath.Join(outputDir, "output")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("analyze: creating output dir: %w", err)
	}
	if err := writeLinkCSV(topo, filepath.Join(dir, "link.csv")); err != nil {
		return err
	}
	if err := writeSiteCSV(topo, filepath.Join(dir, "site.csv")); err != nil {
		return err
	}
	if err := writeSectorCSV(topo, filepath.Join(dir, "sector.csv")); err != nil {
		return err
	}
	return writeMetricsYAML(m, filepath.Join(dir, "metrics.yaml"))
}

func writeLinkCSV(topo *topology.Topology, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"link_id", "tx_site_id", "rx_site_id", "link_type", "status", "distance_km",
		"mcs_level", "capacity_gbps", "sinr_dbm", "channel", "is_redundant"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, id := range topo.SortedLinkIDs() {
		l := topo.GetLink(id)
		channel := -1
		if sec := topo.GetSector(l.TxSectorID); sec != nil {
			channel = sec.Channel
		}
		row := []string{
			l.ID, l.TxSiteID, l.RxSiteID, l.LinkType.String(), l.Status.String(),
			ftoa6(l.DistanceKm), itoa(l.Budget.MCSLevel), ftoa6(l.Budget.CapacityGbps),
			ftoa6(l.SINRdBm), itoa(channel), boolStr(l.IsRedundant),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func writeSiteCSV(topo *topology.Topology, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"site_id", "site_type", "status", "polarity", "latitude_deg", "longitude_deg",
		"device_sku", "num_subscribers"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, id := range topo.SortedSiteIDs() {
		s := topo.GetSite(id)
		row := []string{
			s.ID, s.SiteType.String(), s.Status.String(), s.Polarity.String(),
			ftoa6(s.Location.LatitudeDeg), ftoa6(s.Location.LongitudeDeg),
			s.Device.SKU, itoa(s.NumberOfSubscribers),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func writeSectorCSV(topo *topology.Topology, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"sector_id", "site_id", "node_id", "sector_type", "status", "channel", "azimuth_deg"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, id := range topo.SortedSiteIDs() {
		for _, sec := range topo.SectorsOf(id) {
			row := []string{
				sec.ID, sec.SiteID, itoa(sec.NodeID), sec.SectorType.String(), sec.Status.String(),
				itoa(sec.Channel), ftoa6(sec.AntAzimuthDeg),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeMetricsYAML(m *Metrics, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := yaml.NewEncoder(f)
	defer enc.Close()
	return enc.Encode(m)
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func ftoa6(f float64) string {
	return fmt.Sprintf("%.6f", f)
}
