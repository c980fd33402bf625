package graphutil

import (
	"container/heap"

	"github.com/latticeforge/meshplanner/model"
)

// pqItem and pq are a small container/heap priority queue, in the style
// of the teacher's dijkstraNode/dijkstraQueue (pathfinding.go): a flat
// slice heap keyed by running distance.
type pqItem struct {
	vertex string
	dist   int64
}

type pq []pqItem

func (q pq) Len() int            { return len(q) }
func (q pq) Less(i, j int) bool  { return q[i].dist < q[j].dist }
func (q pq) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *pq) Push(x interface{}) { *q = append(*q, x.(pqItem)) }
func (q *pq) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// edgeWeightFn returns the weight a Dijkstra pass should use for an edge,
// and whether the edge is traversable at all.
type edgeWeightFn func(m edgeMeta) (weight int64, ok bool)

func unweightedHop(m edgeMeta) (int64, bool) {
	if m.kind == edgeKindDemand {
		return 0, true
	}
	return 1, true
}

func mcsCostWeight(m edgeMeta) (int64, bool) {
	if m.kind == edgeKindBackhaul {
		return m.cost, true
	}
	return 0, true
}

// dijkstra runs a standard heap-based Dijkstra from source, honouring
// weightFn per edge, and returns the distance and predecessor-edge maps.
func (d *Digraph) dijkstra(source string, weightFn edgeWeightFn, restrict func(from, to string) bool) (dist map[string]int64, prevEdge map[string]string) {
	dist = map[string]int64{source: 0}
	prevEdge = map[string]string{}
	visited := map[string]bool{}

	q := &pq{{vertex: source, dist: 0}}
	heap.Init(q)

	for q.Len() > 0 {
		cur := heap.Pop(q).(pqItem)
		if visited[cur.vertex] {
			continue
		}
		visited[cur.vertex] = true

		for _, e := range d.neighbors(cur.vertex) {
			if restrict != nil && !restrict(e.From, e.To) {
				continue
			}
			w, ok := weightFn(d.meta[e.ID])
			if !ok {
				continue
			}
			nd := cur.dist + w
			if old, seen := dist[e.To]; !seen || nd < old {
				dist[e.To] = nd
				prevEdge[e.To] = e.ID
				heap.Push(q, pqItem{vertex: e.To, dist: nd})
			}
		}
	}
	return dist, prevEdge
}

// RouteResult is the path the routing pass found for one demand point.
type RouteResult struct {
	DemandID string
	LinkIDs  []string // ordered backhaul link ids, POP-ward to the serving site
	HopCount int
	CostSum  int64
}

func (d *Digraph) tracePath(sink string, prevEdge map[string]string) ([]string, int64) {
	var linkIDs []string
	var cost int64
	cur := sink
	for {
		eid, ok := prevEdge[cur]
		if !ok {
			break
		}
		m := d.meta[eid]
		if m.kind == edgeKindBackhaul {
			linkIDs = append(linkIDs, m.linkID)
			cost += m.cost
		}
		e, err := d.G.GetEdge(eid)
		if err != nil {
			break
		}
		cur = e.From
	}
	for i, j := 0, len(linkIDs)-1; i < j; i, j = i+1, j-1 {
		linkIDs[i], linkIDs[j] = linkIDs[j], linkIDs[i]
	}
	return linkIDs, cost
}

// GetTopologyRoutingResults computes, per demand site, the route from the
// supersource to every serving site under the given routing mode
// (spec.md §4.D, get_topology_routing_results).
func GetTopologyRoutingResults(d *Digraph, mode model.RoutingMode) map[string]RouteResult {
	switch mode {
	case model.RoutingMCSCostPath:
		return d.routeWith(mcsCostWeight, nil)
	case model.RoutingDPAPath:
		return d.routeDPA()
	default:
		return d.routeWith(unweightedHop, nil)
	}
}

func (d *Digraph) routeWith(weightFn edgeWeightFn, restrict func(from, to string) bool) map[string]RouteResult {
	dist, prevEdge := d.dijkstra(Supersource, weightFn, restrict)
	out := make(map[string]RouteResult)
	for sink, demandID := range d.demandSinks {
		if _, ok := dist[sink]; !ok {
			continue
		}
		linkIDs, cost := d.tracePath(sink, prevEdge)
		out[demandID] = RouteResult{DemandID: demandID, LinkIDs: linkIDs, HopCount: len(linkIDs), CostSum: cost}
	}
	return out
}

// routeDPA partitions sites into per-POP zones by unweighted shortest
// path, then recomputes MCS-weighted paths restricted to each zone
// (spec.md §4.D, DPA_PATH).
func (d *Digraph) routeDPA() map[string]RouteResult {
	_, hopPrev := d.dijkstra(Supersource, unweightedHop, nil)

	zone := make(map[string]string) // site id -> root POP id
	for site := range d.siteType {
		cur := site
		root := ""
		for {
			eid, ok := hopPrev[cur]
			if !ok {
				break
			}
			e, err := d.G.GetEdge(eid)
			if err != nil {
				break
			}
			if e.From == Supersource {
				root = e.To
				break
			}
			cur = e.From
		}
		if root != "" {
			zone[site] = root
		}
	}

	restrict := func(from, to string) bool {
		if from == Supersource {
			return true
		}
		if _, isSink := d.demandSinks[to]; isSink {
			return true
		}
		zf, okf := zone[from]
		zt, okt := zone[to]
		if !okf || !okt {
			return false
		}
		return zf == zt
	}

	return d.routeWith(mcsCostWeight, restrict)
}

// DisjointPaths classifies every demand point as "disjoint_connected"
// (a reroute survives removing its shortest path's links),
// "pop_adjacent" (its shortest path is a single hop, so no alternate
// route is structurally possible), or "disconnected" (spec.md §4.D,
// disjoint_paths).
func (d *Digraph) DisjointPaths() map[string]string {
	routes := d.routeWith(unweightedHop, nil)
	result := make(map[string]string)

	for _, demandID := range d.demandSinks {
		route, ok := routes[demandID]
		if !ok {
			result[demandID] = "disconnected"
			continue
		}
		if len(route.LinkIDs) == 0 {
			// demand served directly with no backhaul hop: trivially connected.
			result[demandID] = "disjoint_connected"
			continue
		}

		excluded := make(map[string]bool, len(route.LinkIDs))
		for _, linkID := range route.LinkIDs {
			if eid, ok := d.EdgeIDForLink(linkID); ok {
				excluded[eid] = true
			}
		}
		after := d.reachableDemandsExcluding(excluded, "")
		switch {
		case after[demandID]:
			result[demandID] = "disjoint_connected"
		case len(route.LinkIDs) == 1:
			result[demandID] = "pop_adjacent"
		default:
			result[demandID] = "disconnected"
		}
	}
	return result
}
