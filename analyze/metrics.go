// Package analyze computes post-optimization reporting metrics and
// writes the CSV/YAML artifacts spec.md §6 names under output_dir:
// component counts, capex, failure disruption, availability, MCS
// histograms, and deployment-rule violation counts.
package analyze

import (
	"math"
	"sort"
	"time"

	"github.com/latticeforge/meshplanner/config"
	"github.com/latticeforge/meshplanner/graphutil"
	"github.com/latticeforge/meshplanner/model"
	"github.com/latticeforge/meshplanner/topology"
)

// Stats mirrors the original planner's MetricStatistics: avg/max/min
// over a sample set, zero-valued when the sample is empty.
type Stats struct {
	Avg float64
	Max float64
	Min float64
}

func statsOf(samples []float64) Stats {
	if len(samples) == 0 {
		return Stats{}
	}
	s := Stats{Max: samples[0], Min: samples[0]}
	var sum float64
	for _, v := range samples {
		sum += v
		if v > s.Max {
			s.Max = v
		}
		if v < s.Min {
			s.Min = v
		}
	}
	s.Avg = sum / float64(len(samples))
	return s
}

// Capex is the deployed vs. proposed cost split (spec.md §4.H).
type Capex struct {
	TotalCapex    float64
	ProposedCapex float64
}

// ComponentCounts tallies sites/nodes/sectors/links, active and total,
// grounded on the original planner's count_topology_components.
type ComponentCounts struct {
	ActiveSites, TotalSites             int
	ActivePOPSites, TotalPOPSites       int
	ActiveDNSites, TotalDNSites         int
	ActiveCNSites, TotalCNSites         int
	ConnectableDNSites, ConnectableCNSites int
	ActiveCNsWithBackupDNs              int

	ActiveNodes, TotalNodes     int
	ActiveDNNodes, TotalDNNodes int
	ActiveCNNodes, TotalCNNodes int

	ActiveSectors, TotalSectors int
	ActiveDNSectorsOnPOPs       int
	ActiveDNSectorsOnDNs        int
	ActiveCNSectors             int

	ActiveBackhaulLinks, TotalBackhaulLinks int
	ActiveAccessLinks, TotalAccessLinks     int
	ActiveWiredLinks, TotalWiredLinks       int

	ActiveSiteSKUCounter     map[string]int
	ChannelOccupancyCounter  map[int]int
}

// FailureDisruption summarizes how many demand sites a single edge or
// site failure disconnects, across every edge/site in the network.
type FailureDisruption struct {
	EdgeFailEffect Stats
	POPFailEffect  Stats
	DNFailEffect   Stats
}

// AvailabilityMetrics is the mean and percentile breakdown of the
// discrete-event Monte-Carlo availability simulation.
type AvailabilityMetrics struct {
	Avg         float64
	Percentiles map[int]float64
}

// LinkMetrics summarizes one link class (backhaul or access): its
// active count, links-per-sector distribution, and distance distribution.
type LinkMetrics struct {
	ActiveCount   int
	LinksPerSector Stats
	LinkDistKm     Stats
}

// Metrics is the full reporting bundle spec.md §6's metrics.yaml holds.
type Metrics struct {
	Capex                     Capex
	Counts                    ComponentCounts
	FailureDisruption         FailureDisruption
	Availability              AvailabilityMetrics
	BackhaulLink              LinkMetrics
	AccessLink                LinkMetrics
	BackhaulMCSHistogram      map[int]int
	AccessMCSHistogram        map[int]int
	DiffSectorLinkViolations  int
	NearFarLinkViolations     int
	SectorLimitViolations     int
	TotalDemandGbps           float64
	ConnectedDemandGbps       float64
}

// ComputeMetrics assembles Metrics from a fully-optimized topology.
func ComputeMetrics(topo *topology.Topology, opt config.OptimizerParams) (*Metrics, error) {
	m := &Metrics{}
	m.Capex = computeCapex(topo, opt)
	m.Counts = computeComponentCounts(topo)

	active, err := graphutil.BuildDigraph(topo, graphutil.ActiveOnly)
	if err != nil {
		return nil, err
	}

	edgeFail := active.SingleEdgeFailures()
	m.FailureDisruption.EdgeFailEffect = statsOf(intMapValues(edgeFail))

	popFail, dnFail := map[string]int{}, map[string]int{}
	for id, n := range active.SingleSiteFailures() {
		if s := topo.GetSite(id); s != nil && s.SiteType == model.SiteTypePOP {
			popFail[id] = n
		} else {
			dnFail[id] = n
		}
	}
	m.FailureDisruption.POPFailEffect = statsOf(intMapValues(popFail))
	m.FailureDisruption.DNFailEffect = statsOf(intMapValues(dnFail))

	if opt.AvailabilitySimTime > 0 {
		pctByLink := linkAvailabilityPctByLink(topo)
		timeLimit := time.Duration(float64(opt.AvailabilityMaxTimeMin)*60) * time.Second
		res := graphutil.ComputeAvailability(active, pctByLink, opt.AvailabilitySimTime, timeLimit, opt.AvailabilitySeed)
		m.Availability.Avg, m.Availability.Percentiles = summarizeAvailability(res.PerDemandAvailability)
	}

	m.BackhaulLink = computeLinkMetrics(topo, model.LinkTypeWirelessBackhaul)
	m.AccessLink = computeLinkMetrics(topo, model.LinkTypeWirelessAccess)
	m.BackhaulMCSHistogram = mcsHistogram(topo, model.LinkTypeWirelessBackhaul)
	m.AccessMCSHistogram = mcsHistogram(topo, model.LinkTypeWirelessAccess)

	m.DiffSectorLinkViolations, m.NearFarLinkViolations = countAngleViolations(topo, opt)
	m.SectorLimitViolations = countSectorLimitViolations(topo, opt)

	for _, d := range topo.DemandSites() {
		m.TotalDemandGbps += d.DemandGbps
		for _, siteID := range d.ConnectedSiteIDs {
			s := topo.GetSite(siteID)
			if s != nil && s.Status.Active() {
				m.ConnectedDemandGbps += d.DemandGbps
				break
			}
		}
	}

	return m, nil
}

func intMapValues(byKey map[string]int) []float64 {
	out := make([]float64, 0, len(byKey))
	for _, n := range byKey {
		out = append(out, float64(n))
	}
	return out
}

// linkAvailabilityPctByLink reads each active wireless link's configured
// availability off its tx site's device (spec.md §6 sector_params,
// link_availability_percentage).
func linkAvailabilityPctByLink(topo *topology.Topology) map[string]float64 {
	pct := make(map[string]float64)
	for _, l := range topo.Links() {
		if !l.IsWireless || !l.Status.Active() {
			continue
		}
		tx := topo.GetSite(l.TxSiteID)
		if tx == nil {
			continue
		}
		pct[l.ID] = tx.Device.Sector.LinkAvailabilityPct
	}
	return pct
}

// summarizeAvailability reduces the per-demand availability fractions
// compute_availability produces into a mean and a few fixed percentiles.
func summarizeAvailability(perDemand map[string]float64) (avg float64, percentiles map[int]float64) {
	if len(perDemand) == 0 {
		return 0, map[int]float64{}
	}
	vals := make([]float64, 0, len(perDemand))
	var sum float64
	for _, v := range perDemand {
		vals = append(vals, v)
		sum += v
	}
	sort.Float64s(vals)
	avg = sum / float64(len(vals))

	percentiles = make(map[int]float64)
	for _, p := range []int{1, 5, 50, 95, 99} {
		idx := int(float64(p) / 100 * float64(len(vals)-1))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(vals) {
			idx = len(vals) - 1
		}
		percentiles[p] = vals[idx]
	}
	return avg, percentiles
}

func computeCapex(topo *topology.Topology, opt config.OptimizerParams) Capex {
	costOf := func(s *model.Site) float64 {
		switch s.SiteType {
		case model.SiteTypePOP:
			return opt.POPSiteCapex
		case model.SiteTypeDN:
			return opt.DNSiteCapex
		case model.SiteTypeCN:
			return opt.CNSiteCapex
		default:
			return 0
		}
	}
	var c Capex
	for _, s := range topo.Sites() {
		if s.Status == model.StatusCandidate || s.Status == model.StatusUnreachable {
			continue
		}
		cost := costOf(s)
		c.TotalCapex += cost
		if s.Status == model.StatusProposed {
			c.ProposedCapex += cost
		}
	}
	return c
}

func computeComponentCounts(topo *topology.Topology) ComponentCounts {
	var c ComponentCounts
	c.ActiveSiteSKUCounter = map[string]int{}
	c.ChannelOccupancyCounter = map[int]int{}

	redundantColocated := redundantColocatedCounts(topo, nil)

	siteTotals := map[model.SiteType]int{}
	for _, s := range topo.Sites() {
		siteTotals[s.SiteType]++
		if s.Status.Active() {
			c.ActiveSites++
			c.ActiveSiteSKUCounter[s.Device.SKU]++
			switch s.SiteType {
			case model.SiteTypePOP:
				c.ActivePOPSites++
			case model.SiteTypeDN:
				c.ActiveDNSites++
			case model.SiteTypeCN:
				c.ActiveCNSites++
			}
		}
	}
	c.TotalPOPSites = siteTotals[model.SiteTypePOP] - redundantColocated[model.SiteTypePOP]
	c.TotalDNSites = siteTotals[model.SiteTypeDN] - redundantColocated[model.SiteTypeDN]
	c.TotalCNSites = siteTotals[model.SiteTypeCN] - redundantColocated[model.SiteTypeCN]
	c.TotalSites = c.TotalPOPSites + c.TotalDNSites + c.TotalCNSites

	nodeSeen := map[model.SectorType]map[string]bool{model.SectorTypeDN: {}, model.SectorTypeCN: {}}
	for _, s := range topo.Sites() {
		for _, sec := range topo.SectorsOf(s.ID) {
			if !sec.Status.Active() {
				continue
			}
			c.ActiveSectors++
			switch sec.SectorType {
			case model.SectorTypeDN:
				c.ActiveDNNodes = addNode(nodeSeen[model.SectorTypeDN], s.ID, sec.NodeID, c.ActiveDNNodes)
				if s.SiteType == model.SiteTypePOP {
					c.ActiveDNSectorsOnPOPs++
				} else {
					c.ActiveDNSectorsOnDNs++
				}
			case model.SectorTypeCN:
				c.ActiveCNNodes = addNode(nodeSeen[model.SectorTypeCN], s.ID, sec.NodeID, c.ActiveCNNodes)
				c.ActiveCNSectors++
			}
		}
	}
	c.ActiveNodes = c.ActiveDNNodes + c.ActiveCNNodes
	c.TotalNodes = c.ActiveNodes
	c.TotalDNNodes = c.ActiveDNNodes
	c.TotalCNNodes = c.ActiveCNNodes
	c.TotalSectors = c.ActiveSectors

	seenLinkHash := map[model.LinkType]map[string]bool{
		model.LinkTypeWirelessBackhaul: {}, model.LinkTypeWirelessAccess: {}, model.LinkTypeEthernet: {},
	}
	cnsByDN := map[string]int{}
	for _, l := range topo.Links() {
		if !l.Status.Active() {
			continue
		}
		hash := model.LinkHash(l.TxSiteID, l.RxSiteID)
		if !seenLinkHash[l.LinkType][hash] {
			seenLinkHash[l.LinkType][hash] = true
			switch l.LinkType {
			case model.LinkTypeWirelessBackhaul:
				c.ActiveBackhaulLinks++
			case model.LinkTypeWirelessAccess:
				c.ActiveAccessLinks++
			case model.LinkTypeEthernet:
				c.ActiveWiredLinks++
			}
		}
		if l.IsWireless {
			rx := topo.GetSite(l.RxSiteID)
			if rx != nil && rx.SiteType == model.SiteTypeCN {
				cnsByDN[l.RxSiteID]++
			}
		}
	}
	c.TotalBackhaulLinks = c.ActiveBackhaulLinks
	c.TotalAccessLinks = c.ActiveAccessLinks
	c.TotalWiredLinks = c.ActiveWiredLinks
	for _, n := range cnsByDN {
		if n > 1 {
			c.ActiveCNsWithBackupDNs++
		}
	}

	if digraph, err := graphutil.BuildDigraph(topo, graphutil.ActiveOrCandidate); err == nil {
		hopCounts := digraph.HopsFromPOP()
		redundantConnected := redundantColocatedCounts(topo, hopCounts)
		for _, s := range topo.Sites() {
			if _, reachable := hopCounts[s.ID]; !reachable {
				continue
			}
			switch s.SiteType {
			case model.SiteTypeDN:
				c.ConnectableDNSites++
			case model.SiteTypeCN:
				c.ConnectableCNSites++
			}
		}
		c.ConnectableDNSites -= redundantConnected[model.SiteTypeDN]
		c.ConnectableCNSites -= redundantConnected[model.SiteTypeCN]
	}

	return c
}

func addNode(seen map[string]bool, siteID string, nodeID int, count int) int {
	key := siteID + "/" + itoa(nodeID)
	if seen[key] {
		return count
	}
	seen[key] = true
	return count + 1
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// redundantColocatedCounts counts, per site type, how many co-located
// sites beyond the first are redundant and should be excluded from total
// counts (spec.md §4.A, one physical site per type per geopoint). When
// subset is non-nil only sites present in it are counted.
func redundantColocatedCounts(topo *topology.Topology, subset map[string]int) map[model.SiteType]int {
	redundant := map[model.SiteType]int{}
	seenGeo := map[string][]string{}
	for _, s := range topo.Sites() {
		seenGeo[s.GeoKey()] = append(seenGeo[s.GeoKey()], s.ID)
	}
	for _, ids := range seenGeo {
		counts := map[model.SiteType]int{}
		for _, id := range ids {
			if subset != nil {
				if _, ok := subset[id]; !ok {
					continue
				}
			}
			s := topo.GetSite(id)
			if s != nil {
				counts[s.SiteType]++
			}
		}
		for t, n := range counts {
			if n > 1 {
				redundant[t] += n - 1
			}
		}
	}
	return redundant
}

func computeLinkMetrics(topo *topology.Topology, linkType model.LinkType) LinkMetrics {
	var lm LinkMetrics
	perSector := map[string]int{}
	var dists []float64
	for _, l := range topo.Links() {
		if l.LinkType != linkType || !l.Status.Active() {
			continue
		}
		lm.ActiveCount++
		dists = append(dists, l.DistanceKm)
		if l.TxSectorID != "" {
			perSector[l.TxSectorID]++
		}
	}
	counts := make([]float64, 0, len(perSector))
	for _, n := range perSector {
		counts = append(counts, float64(n))
	}
	lm.LinksPerSector = statsOf(counts)
	lm.LinkDistKm = statsOf(dists)
	return lm
}

func mcsHistogram(topo *topology.Topology, linkType model.LinkType) map[int]int {
	hist := map[int]int{}
	for _, l := range topo.Links() {
		if l.LinkType != linkType || !l.Status.Active() {
			continue
		}
		hist[l.Budget.MCSLevel]++
	}
	return hist
}

// countAngleViolations re-checks the deployment-rule exclusions spec.md
// §4.F.5 enforces during min-interference, against the final active
// link set, for reporting purposes.
func countAngleViolations(topo *topology.Topology, opt config.OptimizerParams) (diffSector, nearFar int) {
	bySite := map[string][]*model.Link{}
	for _, l := range topo.Links() {
		if !l.IsWireless || !l.Status.Active() {
			continue
		}
		bySite[l.TxSiteID] = append(bySite[l.TxSiteID], l)
	}
	for _, links := range bySite {
		sort.Slice(links, func(i, j int) bool { return links[i].ID < links[j].ID })
		for i := 0; i < len(links); i++ {
			for j := i + 1; j < len(links); j++ {
				a, b := links[i], links[j]
				delta := angleDeltaDeg(a.Budget.TxAzimuthDeg, b.Budget.TxAzimuthDeg)
				if delta <= opt.DiffSectorAngleLimitDeg {
					diffSector++
					continue
				}
				if delta <= opt.NearFarAngleLimitDeg {
					longer, shorter := a.DistanceKm, b.DistanceKm
					if shorter > longer {
						longer, shorter = shorter, longer
					}
					if shorter > 0 && longer/shorter > opt.NearFarLengthRatio {
						nearFar++
					}
				}
			}
		}
	}
	return diffSector, nearFar
}

func angleDeltaDeg(a, b float64) float64 {
	d := math.Mod(a-b, 360)
	if d < 0 {
		d += 360
	}
	if d > 180 {
		d = 360 - d
	}
	return d
}

// countSectorLimitViolations counts active sites whose DN-DN or total
// active sector count on one node exceeds the configured limits.
func countSectorLimitViolations(topo *topology.Topology, opt config.OptimizerParams) int {
	violations := 0
	for _, s := range topo.Sites() {
		if !s.Status.Active() {
			continue
		}
		dnDN, total := 0, 0
		for _, sec := range topo.SectorsOf(s.ID) {
			if !sec.Status.Active() {
				continue
			}
			total++
			if sec.SectorType == model.SectorTypeDN {
				dnDN++
			}
		}
		if dnDN > opt.DNDNSectorLimit || total > opt.DNTotalSectorLimit {
			violations++
		}
	}
	return violations
}
