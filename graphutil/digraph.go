// Package graphutil builds the routing digraph a deployed topology implies
// and answers the connectivity questions the pipeline driver and analyzer
// need: hop counts from any POP, reachable demand points, single-edge and
// single-site failure disruption, and the shortest/MCS-cost/DPA routing
// used for reporting (spec.md §4.D).
package graphutil

import (
	"sort"

	"github.com/katalvlaran/lvlath/core"

	"github.com/latticeforge/meshplanner/model"
	"github.com/latticeforge/meshplanner/topology"
)

// Supersource is the synthetic vertex every POP connects from, so a
// single shortest-path search reaches every demand point at once.
const Supersource = "__supersource__"

// DemandSinkID returns the synthetic sink vertex a demand site's serving
// sites connect to.
func DemandSinkID(demandID string) string {
	return "__demand__:" + demandID
}

// maxMCSLevelForCost is the highest MCS level the cost model treats as
// "free" (cost 1); every level below it adds one unit of cost, mirroring
// the original planner's practice of costing routes by lost modulation
// efficiency rather than raw hop count.
const maxMCSLevelForCost = 12

func mcsCost(l *model.Link) int64 {
	if !l.LinkType.IsWireless() {
		return 1
	}
	c := maxMCSLevelForCost - l.Budget.MCSLevel + 1
	if c < 1 {
		c = 1
	}
	return int64(c)
}

type edgeKind int

const (
	edgeKindSupersource edgeKind = iota
	edgeKindBackhaul
	edgeKindDemand
)

type edgeMeta struct {
	kind     edgeKind
	linkID   string
	linkType model.LinkType
	cost     int64
}

// Digraph is the routing graph derived from a Topology snapshot: POPs
// hang off a supersource, demand sites hang sinks off their serving
// sites, and every passing link becomes a directed edge carrying an
// MCS-derived cost (spec.md §4.D, build_digraph).
type Digraph struct {
	G *core.Graph

	meta        map[string]edgeMeta // edge id -> meta
	linkToEdge  map[string]string   // link id -> edge id
	demandSinks map[string]string  // sink vertex id -> demand id
	siteType    map[string]model.SiteType
	pops        []string
}

// StatusFilter decides whether a site/sector/link in the given status
// participates in the digraph (e.g. model.StatusType.Active, or a
// predicate that also admits CANDIDATE for "what-if" graphs).
type StatusFilter func(model.StatusType) bool

// ActiveOnly admits only PROPOSED/EXISTING status (the deployed network).
func ActiveOnly(s model.StatusType) bool { return s.Active() }

// ActiveOrCandidate admits the deployed network plus anything not yet
// ruled out, used to build the "candidate" network find_most_disruptive_links
// reroutes against.
func ActiveOrCandidate(s model.StatusType) bool {
	return s.Active() || s == model.StatusCandidate
}

// BuildDigraph constructs a Digraph from topo, including only sites,
// sectors and links whose status passes statusFilter (spec.md §4.D).
func BuildDigraph(topo *topology.Topology, statusFilter StatusFilter) (*Digraph, error) {
	d := &Digraph{
		G:           core.NewMixedGraph(core.WithDirected(true), core.WithWeighted(), core.WithMultiEdges()),
		meta:        make(map[string]edgeMeta),
		linkToEdge:  make(map[string]string),
		demandSinks: make(map[string]string),
		siteType:    make(map[string]model.SiteType),
	}

	passingSite := make(map[string]bool)
	for _, s := range topo.Sites() {
		if !statusFilter(s.Status) {
			continue
		}
		passingSite[s.ID] = true
		d.siteType[s.ID] = s.SiteType
		if err := d.G.AddVertex(s.ID); err != nil {
			return nil, err
		}
		if s.SiteType == model.SiteTypePOP {
			eid, err := d.G.AddEdge(Supersource, s.ID, 0)
			if err != nil {
				return nil, err
			}
			d.meta[eid] = edgeMeta{kind: edgeKindSupersource}
			d.pops = append(d.pops, s.ID)
		}
	}
	sort.Strings(d.pops)

	for _, l := range topo.Links() {
		if !statusFilter(l.Status) {
			continue
		}
		if !passingSite[l.TxSiteID] || !passingSite[l.RxSiteID] {
			continue
		}
		eid, err := d.G.AddEdge(l.TxSiteID, l.RxSiteID, mcsCost(l))
		if err != nil {
			return nil, err
		}
		d.meta[eid] = edgeMeta{kind: edgeKindBackhaul, linkID: l.ID, linkType: l.LinkType, cost: mcsCost(l)}
		d.linkToEdge[l.ID] = eid
	}

	for _, dem := range topo.DemandSites() {
		sink := DemandSinkID(dem.ID)
		d.demandSinks[sink] = dem.ID
		if err := d.G.AddVertex(sink); err != nil {
			return nil, err
		}
		for _, siteID := range dem.ConnectedSiteIDs {
			if !passingSite[siteID] {
				continue
			}
			eid, err := d.G.AddEdge(siteID, sink, 0)
			if err != nil {
				return nil, err
			}
			d.meta[eid] = edgeMeta{kind: edgeKindDemand}
		}
	}

	return d, nil
}

// POPs returns the sorted site ids of every POP included in the digraph.
func (d *Digraph) POPs() []string { return append([]string(nil), d.pops...) }

// EdgeIDForLink returns the digraph edge id a link id maps to.
func (d *Digraph) EdgeIDForLink(linkID string) (string, bool) {
	eid, ok := d.linkToEdge[linkID]
	return eid, ok
}

func (d *Digraph) neighbors(id string) []*core.Edge {
	edges, err := d.G.Neighbors(id)
	if err != nil {
		return nil
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	return edges
}

// reachableDemandsExcluding runs a BFS from the supersource skipping any
// edge whose id is in excludeEdges or whose vertex endpoint is
// excludeVertex, and returns the set of demand ids reached.
func (d *Digraph) reachableDemandsExcluding(excludeEdges map[string]bool, excludeVertex string) map[string]bool {
	visited := map[string]bool{Supersource: true}
	queue := []string{Supersource}
	reachable := map[string]bool{}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range d.neighbors(cur) {
			if excludeEdges[e.ID] || e.To == excludeVertex {
				continue
			}
			if visited[e.To] {
				continue
			}
			visited[e.To] = true
			if demandID, ok := d.demandSinks[e.To]; ok {
				reachable[demandID] = true
			}
			queue = append(queue, e.To)
		}
	}
	return reachable
}

// ReachableDemands returns the set of demand ids reachable from the
// supersource over the full digraph.
func (d *Digraph) ReachableDemands() map[string]bool {
	return d.reachableDemandsExcluding(nil, "")
}

// HopsFromPOP returns, for every site reachable over backhaul edges
// (ignoring demand sink edges), the fewest number of backhaul hops from
// the nearest POP.
func (d *Digraph) HopsFromPOP() map[string]int {
	dist := map[string]int{}
	visited := map[string]bool{Supersource: true}
	queue := []string{Supersource}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range d.neighbors(cur) {
			m := d.meta[e.ID]
			if m.kind == edgeKindDemand {
				continue
			}
			if visited[e.To] {
				continue
			}
			visited[e.To] = true
			if cur == Supersource {
				dist[e.To] = 0
			} else {
				dist[e.To] = dist[cur] + 1
			}
			queue = append(queue, e.To)
		}
	}
	return dist
}
