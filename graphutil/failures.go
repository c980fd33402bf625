package graphutil

import (
	"sort"

	"github.com/latticeforge/meshplanner/model"
)

// SingleEdgeFailures returns, per link id, how many demand points become
// unreachable if that backhaul link alone is removed (spec.md §4.D,
// single_edge_failures).
func (d *Digraph) SingleEdgeFailures() map[string]int {
	baseline := d.ReachableDemands()
	out := make(map[string]int, len(d.linkToEdge))
	for linkID, edgeID := range d.linkToEdge {
		after := d.reachableDemandsExcluding(map[string]bool{edgeID: true}, "")
		lost := 0
		for demandID := range baseline {
			if !after[demandID] {
				lost++
			}
		}
		out[linkID] = lost
	}
	return out
}

// SingleSiteFailures returns, per DN/POP site id, how many demand points
// become unreachable if that site alone is removed (spec.md §4.D,
// single_site_failures). CN sites are excluded: they are leaves, never
// relay points, so removing one cannot disconnect any other demand.
func (d *Digraph) SingleSiteFailures() map[string]int {
	baseline := d.ReachableDemands()
	out := make(map[string]int)
	for siteID, st := range d.siteType {
		if st != model.SiteTypeDN && st != model.SiteTypePOP {
			continue
		}
		after := d.reachableDemandsExcluding(nil, siteID)
		lost := 0
		for demandID := range baseline {
			if !after[demandID] {
				lost++
			}
		}
		out[siteID] = lost
	}
	return out
}

// FindMostDisruptiveLinks iterates proposed's links in descending
// disruption order and accepts a link only if removing it from candidate
// would not additionally disconnect any demand point beyond candidate's
// own baseline, i.e. candidate has a viable reroute (spec.md §4.D,
// find_most_disruptive_links). Returns up to k accepted link ids.
func (d *Digraph) FindMostDisruptiveLinks(candidate *Digraph, k int) []string {
	type scored struct {
		linkID string
		lost   int
	}
	disruption := d.SingleEdgeFailures()
	scoredLinks := make([]scored, 0, len(disruption))
	for linkID, lost := range disruption {
		scoredLinks = append(scoredLinks, scored{linkID, lost})
	}
	sort.Slice(scoredLinks, func(i, j int) bool {
		if scoredLinks[i].lost != scoredLinks[j].lost {
			return scoredLinks[i].lost > scoredLinks[j].lost
		}
		return scoredLinks[i].linkID < scoredLinks[j].linkID
	})

	candidateBaseline := candidate.ReachableDemands()
	var accepted []string
	for _, sc := range scoredLinks {
		if len(accepted) >= k {
			break
		}
		edgeID, ok := candidate.EdgeIDForLink(sc.linkID)
		if !ok {
			continue
		}
		after := candidate.reachableDemandsExcluding(map[string]bool{edgeID: true}, "")
		viableReroute := true
		for demandID := range candidateBaseline {
			if !after[demandID] {
				viableReroute = false
				break
			}
		}
		if viableReroute {
			accepted = append(accepted, sc.linkID)
		}
	}
	return accepted
}
