package analyze

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/latticeforge/meshplanner/config"
	"github.com/latticeforge/meshplanner/model"
	"github.com/latticeforge/meshplanner/topology"
)

func buildReportTopology(t *testing.T) *topology.Topology {
	t.Helper()
	topo := topology.New()

	pop := &model.Site{
		ID: "pop", SiteType: model.SiteTypePOP, Status: model.StatusExisting,
		Location: model.Location{LatitudeDeg: 1, LongitudeDeg: 1},
		Device:   model.Device{SKU: "pop-sku", Sector: model.SectorParams{LinkAvailabilityPct: 99.9}},
	}
	cn := &model.Site{
		ID: "cn", SiteType: model.SiteTypeCN, Status: model.StatusProposed,
		Location: model.Location{LatitudeDeg: 2, LongitudeDeg: 2},
		Device:   model.Device{SKU: "cn-sku", Sector: model.SectorParams{LinkAvailabilityPct: 99.9}},
	}
	for _, s := range []*model.Site{pop, cn} {
		if err := topo.AddSite(s); err != nil {
			t.Fatalf("AddSite(%s): %v", s.ID, err)
		}
	}

	popSec := &model.Sector{ID: model.SectorID("pop", 0, 0), SiteID: "pop", SectorType: model.SectorTypeForSite(model.SiteTypePOP), Status: model.StatusProposed}
	cnSec := &model.Sector{ID: model.SectorID("cn", 0, 0), SiteID: "cn", SectorType: model.SectorTypeForSite(model.SiteTypeCN), Status: model.StatusProposed}
	for _, sec := range []*model.Sector{popSec, cnSec} {
		if err := topo.AddSector(sec); err != nil {
			t.Fatalf("AddSector(%s): %v", sec.ID, err)
		}
	}

	link := &model.Link{
		ID: model.LinkID("pop", "cn"), TxSiteID: "pop", RxSiteID: "cn",
		TxSectorID: popSec.ID, RxSectorID: cnSec.ID,
		LinkType: model.LinkTypeWirelessAccess, Status: model.StatusProposed, IsWireless: true, DistanceKm: 0.3,
		Budget: model.LinkBudget{MCSLevel: 10, CapacityGbps: 1.0},
	}
	if err := topo.AddLink(link); err != nil {
		t.Fatalf("AddLink: %v", err)
	}
	if err := topo.AddDemandSite(&model.DemandSite{ID: "d1", DemandGbps: 0.025, ConnectedSiteIDs: []string{"cn"}}); err != nil {
		t.Fatalf("AddDemandSite: %v", err)
	}
	return topo
}

func testOptimizerParams() config.OptimizerParams {
	opt := config.DefaultOptimizerParams()
	opt.AvailabilitySimTime = 10
	opt.AvailabilityMaxTimeMin = 1
	return opt
}

func TestComputeMetrics_CountsActiveComponents(t *testing.T) {
	topo := buildReportTopology(t)
	opt := testOptimizerParams()

	m, err := ComputeMetrics(topo, opt)
	if err != nil {
		t.Fatalf("ComputeMetrics: %v", err)
	}
	if m.Counts.ActiveSites != 2 {
		t.Errorf("ActiveSites = %d, want 2", m.Counts.ActiveSites)
	}
	if m.Counts.ActivePOPSites != 1 || m.Counts.ActiveCNSites != 1 {
		t.Errorf("ActivePOPSites=%d ActiveCNSites=%d, want 1,1", m.Counts.ActivePOPSites, m.Counts.ActiveCNSites)
	}
	if m.Counts.ActiveAccessLinks != 1 {
		t.Errorf("ActiveAccessLinks = %d, want 1", m.Counts.ActiveAccessLinks)
	}
	if m.AccessMCSHistogram[10] != 1 {
		t.Errorf("AccessMCSHistogram[10] = %d, want 1", m.AccessMCSHistogram[10])
	}
	if m.TotalDemandGbps != 0.025 || m.ConnectedDemandGbps != 0.025 {
		t.Errorf("demand totals = %v/%v, want 0.025/0.025", m.TotalDemandGbps, m.ConnectedDemandGbps)
	}
}

func TestComputeCapex_CountsOnlyNonCandidateSites(t *testing.T) {
	topo := buildReportTopology(t)
	opt := testOptimizerParams()
	c := computeCapex(topo, opt)
	if c.TotalCapex != opt.POPSiteCapex+opt.CNSiteCapex {
		t.Errorf("TotalCapex = %v, want %v", c.TotalCapex, opt.POPSiteCapex+opt.CNSiteCapex)
	}
	if c.ProposedCapex != opt.CNSiteCapex {
		t.Errorf("ProposedCapex = %v, want %v (only the proposed cn)", c.ProposedCapex, opt.CNSiteCapex)
	}
}

func TestWriteReports_WritesAllFourFiles(t *testing.T) {
	topo := buildReportTopology(t)
	opt := testOptimizerParams()
	m, err := ComputeMetrics(topo, opt)
	if err != nil {
		t.Fatalf("ComputeMetrics: %v", err)
	}

	dir := t.TempDir()
	if err := WriteReports(topo, m, dir); err != nil {
		t.Fatalf("WriteReports: %v", err)
	}
	for _, name := range []string{"link.csv", "site.csv", "sector.csv", "metrics.yaml"} {
		path := filepath.Join(dir, "output", name)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected %s to exist: %v", path, err)
		}
	}
}

func TestStatsOf_EmptySampleIsZero(t *testing.T) {
	s := statsOf(nil)
	if s.Avg != 0 || s.Max != 0 || s.Min != 0 {
		t.Errorf("statsOf(nil) = %+v, want zero value", s)
	}
}
