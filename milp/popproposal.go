package milp

import (
	"fmt"

	"github.com/latticeforge/meshplanner/config"
	"github.com/latticeforge/meshplanner/model"
	"github.com/latticeforge/meshplanner/solver"
	"github.com/latticeforge/meshplanner/topology"
)

// accessOnlyTopology builds the POP-proposal candidate topology spec.md
// §4.F.1 describes: every DN is relabelled POP unless it shares a
// geopoint with a real POP, and only POP->CN access links survive.
func accessOnlyTopology(topo *topology.Topology) (*topology.Topology, map[string]bool, error) {
	out := topology.New()
	popGeoKeys := make(map[string]bool)
	for _, s := range topo.Sites() {
		if s.SiteType == model.SiteTypePOP {
			popGeoKeys[s.GeoKey()] = true
		}
	}

	wasRelabelled := make(map[string]bool)
	for _, s := range topo.Sites() {
		clone := *s
		if s.SiteType == model.SiteTypeDN && !popGeoKeys[s.GeoKey()] {
			clone.SiteType = model.SiteTypePOP
			wasRelabelled[s.ID] = true
		}
		if err := out.AddSite(&clone); err != nil {
			return nil, nil, err
		}
	}
	for _, s := range topo.Sites() {
		for _, sec := range topo.SectorsOf(s.ID) {
			clone := *sec
			if err := out.AddSector(&clone); err != nil {
				return nil, nil, err
			}
		}
	}
	for _, l := range topo.Links() {
		rx := topo.GetSite(l.RxSiteID)
		if rx == nil || rx.SiteType != model.SiteTypeCN {
			continue // backhaul link; dropped per spec.md §4.F.1.
		}
		clone := *l
		if err := out.AddLink(&clone); err != nil {
			return nil, nil, err
		}
	}
	for _, d := range topo.DemandSites() {
		clone := *d
		clone.ConnectedSiteIDs = append([]string(nil), d.ConnectedSiteIDs...)
		if err := out.AddDemandSite(&clone); err != nil {
			return nil, nil, err
		}
	}
	return out, wasRelabelled, nil
}

// PopProposalResult lists which relabelled DNs the solve selected.
type PopProposalResult struct {
	SelectedDNSiteIDs []string
}

// RunPopProposal solves the optional POP-proposal pass (spec.md §4.F.1):
// maximize coverage over the access-only topology subject to
// number_of_active_POPs = number_of_existing_pops + extraPOPs. Polarity,
// always-active-POPs, and common-bandwidth are disabled for this pass.
func RunPopProposal(topo *topology.Topology, opt config.OptimizerParams, extraPOPs int, newProb func() solver.Problem) (*PopProposalResult, error) {
	access, wasRelabelled, err := accessOnlyTopology(topo)
	if err != nil {
		return nil, err
	}
	idx, err := BuildIndex(access, opt)
	if err != nil {
		return nil, err
	}

	prob := newProb()
	prob.SetName("pop_proposal")
	n := NewNetworkOptimization(idx, opt, prob)

	forceActive := make(map[string]bool)
	for _, p := range idx.POPs {
		if !wasRelabelled[p] {
			forceActive[p] = true
		}
	}
	if err := n.AddSiteVariables(forceActive); err != nil {
		return nil, err
	}
	if err := n.AddFlowVariables(); err != nil {
		return nil, err
	}
	if err := n.AddShortageVariables(); err != nil {
		return nil, err
	}
	if err := n.AddFlowBalanceConstraints(false); err != nil {
		return nil, err
	}
	if err := n.AddCapacityConstraints(); err != nil {
		return nil, err
	}

	existingPOPs := 0
	for _, p := range idx.POPs {
		if !wasRelabelled[p] {
			existingPOPs++
		}
	}
	var popCountTerms []solver.Term
	for _, p := range idx.POPs {
		popCountTerms = append(popCountTerms, term(n.SiteVar[p], 1))
	}
	if _, err := prob.AddConstraint("active_pop_count", solver.Constraint{
		Expr: solver.Expr{Terms: popCountTerms}, Op: solver.Equal, RHS: float64(existingPOPs + extraPOPs),
	}); err != nil {
		return nil, err
	}

	prob.SetObjective(n.SumShortageObjective(), solver.Minimize)
	prob.SetLimits(solver.Limits{
		MIPRelStop: opt.PopProposalRelStop, MaxTimeSeconds: float64(opt.PopProposalMaxTimeMin) * 60, Threads: opt.NumThreads,
	})
	if err := prob.Solve(); err != nil {
		return nil, err
	}
	if prob.MIPStatus() == solver.MIPInfeasible {
		return nil, fmt.Errorf("milp: pop_proposal infeasible")
	}

	result := &PopProposalResult{}
	for siteID, relabelled := range wasRelabelled {
		if !relabelled {
			continue
		}
		v, err := prob.Solution(n.SiteVar[siteID])
		if err == nil && v > 0.5 {
			result.SelectedDNSiteIDs = append(result.SelectedDNSiteIDs, siteID)
		}
	}
	return result, nil
}

// ApplyPopProposal duplicates every selected DN into a new CANDIDATE POP
// site at the same location, with duplicated sectors and incident
// wireless links (excluding links to real POPs), and extends demand
// connectivity to the duplicate (spec.md §4.F.1).
func ApplyPopProposal(topo *topology.Topology, result *PopProposalResult) error {
	for _, dnID := range result.SelectedDNSiteIDs {
		dn := topo.GetSite(dnID)
		if dn == nil {
			continue
		}
		newSite := *dn
		newSite.SiteType = model.SiteTypePOP
		newSite.ID = model.SiteID(model.SiteTypePOP, dn.Location.LatitudeDeg, dn.Location.LongitudeDeg, dn.Device.SKU)
		newSite.Status = model.StatusCandidate
		newSite.SectorIDs = nil
		if err := topo.AddSite(&newSite); err != nil {
			return err
		}

		sectorIDMap := make(map[string]string)
		for _, sec := range topo.SectorsOf(dnID) {
			newSec := *sec
			newSec.SiteID = newSite.ID
			newSec.ID = model.SectorID(newSite.ID, sec.NodeID, sec.PositionInNode)
			newSec.Status = model.StatusCandidate
			if err := topo.AddSector(&newSec); err != nil {
				return err
			}
			sectorIDMap[sec.ID] = newSec.ID
		}

		for _, l := range topo.Links() {
			var newLink model.Link
			switch {
			case l.TxSiteID == dnID:
				other := topo.GetSite(l.RxSiteID)
				if other != nil && other.SiteType == model.SiteTypePOP {
					continue
				}
				newLink = *l
				newLink.TxSiteID = newSite.ID
				if l.TxSectorID != "" {
					newLink.TxSectorID = sectorIDMap[l.TxSectorID]
				}
			case l.RxSiteID == dnID:
				other := topo.GetSite(l.TxSiteID)
				if other != nil && other.SiteType == model.SiteTypePOP {
					continue
				}
				newLink = *l
				newLink.RxSiteID = newSite.ID
				if l.RxSectorID != "" {
					newLink.RxSectorID = sectorIDMap[l.RxSectorID]
				}
			default:
				continue
			}
			newLink.ID = model.LinkID(newLink.TxSiteID, newLink.RxSiteID)
			newLink.Status = model.StatusCandidate
			if topo.GetLink(newLink.ID) != nil {
				continue
			}
			if err := topo.AddLink(&newLink); err != nil {
				return err
			}
		}

		for _, d := range topo.DemandSites() {
			for _, siteID := range d.ConnectedSiteIDs {
				if siteID == dnID {
					d.ConnectedSiteIDs = append(d.ConnectedSiteIDs, newSite.ID)
					break
				}
			}
		}
	}
	return nil
}
