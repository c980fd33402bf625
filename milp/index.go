// Package milp implements the MILP optimization core spec.md §4.E and
// §4.F describe: the dense index the every stage solver reads through
// (§4.B "Optimization setup"), the shared NetworkOptimization variable
// and constraint vocabulary (§4.E), and the six stage models built on
// top of it (§4.F.1-4.F.6).
//
// Grounded on original_source/optimization/ilp_models/*.py for the exact
// constraint shapes and on the teacher's struct-plus-free-function style
// (no per-stage subclassing): every stage is a constructor function that
// returns a *NetworkOptimization wired for that stage's variables and
// constraints, not a type hierarchy.
package milp

import (
	"sort"

	"github.com/latticeforge/meshplanner/config"
	"github.com/latticeforge/meshplanner/model"
	"github.com/latticeforge/meshplanner/plannererr"
	"github.com/latticeforge/meshplanner/topology"
)

// unboundedCapacity is the "unbounded sentinel" spec.md §3 names for
// site->demand edges and other synthetic links whose capacity should
// never bind.
const unboundedCapacity = 1e9

// supersourceLinkID and demandLinkID name the synthetic edges the index
// carries alongside real backhaul links, so wired_links and
// link_capacities can address them uniformly.
func supersourceLinkID(popSiteID string) string   { return "__supersource__:" + popSiteID }
func demandLinkID(siteID, demandID string) string { return "__demand__:" + siteID + ":" + demandID }

// Index is the dense table optimization setup builds from a Topology in
// a single pass (spec.md §4.B). Every stage solver reads the topology
// only through this value, so a re-run over an unchanged topology
// produces byte-identical tables.
type Index struct {
	Locations    []string // supersource + every site + every expanded demand id
	Supersource  string
	POPs, DNs, CNs []string // site ids, sorted
	Demands      []string // expanded demand ids, sorted

	// LinkCapacities maps a directed (from,to) location pair (encoded
	// "from|to") to its Gbps capacity ceiling.
	LinkCapacities map[string]float64

	// LinkIDs maps the same (from,to) key to the real link id backing it,
	// or a synthetic id for supersource/demand edges.
	LinkIDs map[string]string

	// LinkToSectors maps a real link id to its (txSectorID, rxSectorID).
	LinkToSectors map[string][2]string
	// LinkToAzimuth maps a real link id to its (txAzimuthDeg, rxAzimuthDeg).
	LinkToAzimuth map[string][2]float64

	// CostSite maps a non-existing site id to its per-site capex.
	CostSite map[string]float64
	// CostNode maps "siteID/nodeID" to the node's capex, charged once
	// per node regardless of how many sectors share it.
	CostNode map[string]float64
	// NodeOfSector maps a sector id to its "siteID/nodeID" key.
	NodeOfSector map[string]string
	// SectorsOfNode maps a "siteID/nodeID" key to the sector ids sharing it.
	SectorsOfNode map[string][]string

	// ColocatedLocations maps a geokey to the sorted site ids sharing it.
	ColocatedLocations map[string][]string

	// WiredLinks is the set of (from,to) keys that carry no TDM factor:
	// ETHERNET links, supersource edges, demand edges.
	WiredLinks map[string]bool

	// DemandAtLocation maps an expanded demand id to its effective
	// (post-oversubscription) Gbps requirement.
	DemandAtLocation map[string]float64
	// ConnectedSites maps an expanded demand id to its candidate serving
	// sites (spec.md §3, DemandSite.ConnectedSiteIDs, shared across replicas).
	ConnectedSites map[string][]string

	// Successors/Predecessors mirror topology adjacency restricted to
	// this index's location space, used by flow-balance constraint
	// construction.
	Successors   map[string][]string
	Predecessors map[string][]string

	// SectorsOfSite maps a site id to its sorted sector ids.
	SectorsOfSite map[string][]string

	sites   map[string]*model.Site
	links   map[string]*model.Link
	sectors map[string]*model.Sector
}

// AllSiteIDs returns every site id (POP+DN+CN) in ascending order.
func (idx *Index) AllSiteIDs() []string {
	out := make([]string, 0, len(idx.POPs)+len(idx.DNs)+len(idx.CNs))
	out = append(out, idx.POPs...)
	out = append(out, idx.DNs...)
	out = append(out, idx.CNs...)
	sort.Strings(out)
	return out
}

func (idx *Index) Sector(id string) *model.Sector { return idx.sectors[id] }

func pairKey(from, to string) string { return from + "|" + to }

// BuildIndex constructs the dense Index from topo (spec.md §4.B). It
// fails with plannererr.OptimizerInfeasible (code InfeasibleTopology) if
// no POP has a positive-capacity outgoing link, or no CN / demand-
// adjacent DN has a positive-capacity incoming link.
func BuildIndex(topo *topology.Topology, opt config.OptimizerParams) (*Index, error) {
	idx := &Index{
		Supersource:        "__supersource__",
		LinkCapacities:      make(map[string]float64),
		LinkIDs:             make(map[string]string),
		LinkToSectors:       make(map[string][2]string),
		LinkToAzimuth:       make(map[string][2]float64),
		CostSite:            make(map[string]float64),
		CostNode:            make(map[string]float64),
		NodeOfSector:        make(map[string]string),
		SectorsOfNode:       make(map[string][]string),
		ColocatedLocations:  make(map[string][]string),
		WiredLinks:          make(map[string]bool),
		DemandAtLocation:    make(map[string]float64),
		ConnectedSites:      make(map[string][]string),
		Successors:          make(map[string][]string),
		Predecessors:        make(map[string][]string),
		SectorsOfSite:       make(map[string][]string),
		sites:               make(map[string]*model.Site),
		links:                make(map[string]*model.Link),
		sectors:             make(map[string]*model.Sector),
	}

	idx.Locations = append(idx.Locations, idx.Supersource)

	for _, s := range topo.Sites() {
		idx.sites[s.ID] = s
		idx.Locations = append(idx.Locations, s.ID)
		switch s.SiteType {
		case model.SiteTypePOP:
			idx.POPs = append(idx.POPs, s.ID)
		case model.SiteTypeDN:
			idx.DNs = append(idx.DNs, s.ID)
		case model.SiteTypeCN:
			idx.CNs = append(idx.CNs, s.ID)
		}
		if s.Status != model.StatusExisting {
			idx.CostSite[s.ID] = siteCapex(s.SiteType, opt)
		}
		idx.ColocatedLocations[s.GeoKey()] = append(idx.ColocatedLocations[s.GeoKey()], s.ID)

		for _, sec := range topo.SectorsOf(s.ID) {
			nodeKey := s.ID + "/" + itoa(sec.NodeID)
			idx.NodeOfSector[sec.ID] = nodeKey
			idx.SectorsOfNode[nodeKey] = append(idx.SectorsOfNode[nodeKey], sec.ID)
			idx.SectorsOfSite[s.ID] = append(idx.SectorsOfSite[s.ID], sec.ID)
			idx.sectors[sec.ID] = sec
			if _, ok := idx.CostNode[nodeKey]; !ok {
				idx.CostNode[nodeKey] = s.Device.NodeCapex
			}
		}

		if s.SiteType == model.SiteTypePOP {
			key := pairKey(idx.Supersource, s.ID)
			idx.LinkCapacities[key] = opt.POPCapacityGbps
			id := supersourceLinkID(s.ID)
			idx.LinkIDs[key] = id
			idx.WiredLinks[key] = true
			idx.Successors[idx.Supersource] = append(idx.Successors[idx.Supersource], s.ID)
			idx.Predecessors[s.ID] = append(idx.Predecessors[s.ID], idx.Supersource)
		}
	}
	for key := range idx.ColocatedLocations {
		sort.Strings(idx.ColocatedLocations[key])
	}
	sort.Strings(idx.POPs)
	sort.Strings(idx.DNs)
	sort.Strings(idx.CNs)

	for _, l := range topo.Links() {
		idx.links[l.ID] = l
		key := pairKey(l.TxSiteID, l.RxSiteID)
		cap := l.Budget.CapacityGbps
		if l.LinkType == model.LinkTypeEthernet {
			if cap <= 0 {
				cap = unboundedCapacity
			}
			idx.WiredLinks[key] = true
		}
		idx.LinkCapacities[key] = cap
		idx.LinkIDs[key] = l.ID
		if !l.OutOfSector() {
			idx.LinkToSectors[l.ID] = [2]string{l.TxSectorID, l.RxSectorID}
		}
		idx.LinkToAzimuth[l.ID] = [2]float64{l.Budget.TxAzimuthDeg, l.Budget.RxAzimuthDeg}
		idx.Successors[l.TxSiteID] = append(idx.Successors[l.TxSiteID], l.RxSiteID)
		idx.Predecessors[l.RxSiteID] = append(idx.Predecessors[l.RxSiteID], l.TxSiteID)
	}

	for _, dem := range topo.DemandSites() {
		for _, expandedID := range dem.Expand() {
			idx.Demands = append(idx.Demands, expandedID)
			idx.Locations = append(idx.Locations, expandedID)
			idx.DemandAtLocation[expandedID] = dem.DemandGbps / positiveOr1(opt.Oversubscription)
			idx.ConnectedSites[expandedID] = dem.ConnectedSiteIDs

			for _, siteID := range dem.ConnectedSiteIDs {
				key := pairKey(siteID, expandedID)
				idx.LinkCapacities[key] = unboundedCapacity
				idx.LinkIDs[key] = demandLinkID(siteID, expandedID)
				idx.WiredLinks[key] = true
				idx.Successors[siteID] = append(idx.Successors[siteID], expandedID)
				idx.Predecessors[expandedID] = append(idx.Predecessors[expandedID], siteID)
			}
		}
	}
	sort.Strings(idx.Demands)

	if err := idx.feasibilityPrecheck(); err != nil {
		return nil, err
	}
	return idx, nil
}

func positiveOr1(v float64) float64 {
	if v <= 0 {
		return 1
	}
	return v
}

func siteCapex(t model.SiteType, opt config.OptimizerParams) float64 {
	switch t {
	case model.SiteTypePOP:
		return opt.POPSiteCapex
	case model.SiteTypeCN:
		return opt.CNSiteCapex
	default:
		return opt.DNSiteCapex
	}
}

// feasibilityPrecheck enforces spec.md §4.B: fail fast if no POP has a
// positive-capacity outgoing link, or no CN / demand-adjacent DN has a
// positive-capacity incoming link.
func (idx *Index) feasibilityPrecheck() error {
	popHasOutgoing := false
	for _, pop := range idx.POPs {
		for _, to := range idx.Successors[pop] {
			if idx.LinkCapacities[pairKey(pop, to)] > 0 {
				popHasOutgoing = true
				break
			}
		}
	}
	if len(idx.POPs) > 0 && !popHasOutgoing {
		return plannererr.OptimizerInfeasible("setup", "no POP has a positive-capacity outgoing link")
	}

	demandAdjacent := make(map[string]bool)
	for _, demandID := range idx.Demands {
		for _, siteID := range idx.ConnectedSites[demandID] {
			demandAdjacent[siteID] = true
		}
	}
	hasIncoming := false
	for siteID := range demandAdjacent {
		for _, from := range idx.Predecessors[siteID] {
			if idx.LinkCapacities[pairKey(from, siteID)] > 0 {
				hasIncoming = true
				break
			}
		}
	}
	if len(demandAdjacent) > 0 && !hasIncoming {
		return plannererr.OptimizerInfeasible("setup", "no demand-adjacent site has a positive-capacity incoming link")
	}
	return nil
}

func (idx *Index) Site(id string) *model.Site { return idx.sites[id] }
func (idx *Index) Link(id string) *model.Link { return idx.links[id] }

// Scoped returns a shallow copy of idx restricted to the given backhaul
// (from,to) pair keys plus every wired/supersource/demand edge, used by
// the redundancy stage to shrink the MILP to the heuristically-selected
// candidate edge set (spec.md §4.F.4).
func (idx *Index) Scoped(allowedBackhaul map[string]bool) *Index {
	out := *idx
	out.LinkCapacities = make(map[string]float64)
	out.LinkIDs = make(map[string]string)
	out.WiredLinks = make(map[string]bool)
	out.Successors = make(map[string][]string)
	out.Predecessors = make(map[string][]string)

	for key, cap := range idx.LinkCapacities {
		if idx.WiredLinks[key] || allowedBackhaul[key] {
			out.LinkCapacities[key] = cap
			out.LinkIDs[key] = idx.LinkIDs[key]
			if idx.WiredLinks[key] {
				out.WiredLinks[key] = true
			}
			from, to := splitPairKey(key)
			out.Successors[from] = append(out.Successors[from], to)
			out.Predecessors[to] = append(out.Predecessors[to], from)
		}
	}
	for k := range out.Successors {
		sort.Strings(out.Successors[k])
	}
	for k := range out.Predecessors {
		sort.Strings(out.Predecessors[k])
	}
	return &out
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
