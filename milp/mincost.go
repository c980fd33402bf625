package milp

import (
	"github.com/latticeforge/meshplanner/config"
	"github.com/latticeforge/meshplanner/model"
	"github.com/latticeforge/meshplanner/solver"
	"github.com/latticeforge/meshplanner/topology"
)

// MinCostResult is the outcome of the min-cost stage: the achieved
// coverage fraction, the active-site/sector decisions, and the raw flow
// (loop-pruned) on every edge.
type MinCostResult struct {
	CoveragePct float64
	Flow        map[string]float64
	Model       *NetworkOptimization
}

// RunMinCost solves min cost s.t. coverage >= coveragePercentage (spec.md
// §4.F.2), assuming every sector on an active site is active
// (single-channel). The driver is expected to call this repeatedly,
// decrementing coveragePercentage by 0.1 down to 0.5 until feasible
// (see pipeline.RunMinCostWithFallback).
func RunMinCost(topo *topology.Topology, opt config.OptimizerParams, idx *Index, coveragePercentage float64, newProb func() solver.Problem) (*MinCostResult, error) {
	prob := newProb()
	prob.SetName("min_cost")
	n := NewNetworkOptimization(idx, opt, prob)

	forceActive := map[string]bool{}
	if opt.AlwaysActivePOPs {
		for _, p := range idx.POPs {
			forceActive[p] = true
		}
	}

	if err := n.AddSiteVariables(forceActive); err != nil {
		return nil, err
	}
	if err := n.AddSectorVariables(); err != nil {
		return nil, err
	}
	// Every non-UNAVAILABLE sector is active exactly when its site is.
	for _, siteID := range idx.AllSiteIDs() {
		siteVar, ok := n.SiteVar[siteID]
		if !ok {
			continue
		}
		for _, secID := range idx.SectorsOfSite[siteID] {
			if sec := idx.Sector(secID); sec == nil || sec.Status == model.StatusUnavailable {
				continue
			}
			terms := append(sectorActivationExpr(n, secID), term(siteVar, -1))
			if _, err := prob.AddConstraint("site_sector["+secID+"]", solver.Constraint{Expr: solver.Expr{Terms: terms}, Op: solver.Equal, RHS: 0}); err != nil {
				return nil, err
			}
		}
	}
	if err := n.AddPolarityVariables(); err != nil {
		return nil, err
	}
	if err := n.AddFlowVariables(); err != nil {
		return nil, err
	}
	if err := n.AddTDMVariables(); err != nil {
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
	if err := n.AddTDMSectorConstraints(); err != nil {
		return nil, err
	}
	if err := n.AddPOPCapacityConstraint(); err != nil {
		return nil, err
	}
	if err := n.AddPolarityConstraints(); err != nil {
		return nil, err
	}
	if err := n.AddColocationConstraints(forceActive); err != nil {
		return nil, err
	}
	if err := n.AddP2MPConstraints(); err != nil {
		return nil, err
	}
	if err := n.AddCNIncomingConstraint(); err != nil {
		return nil, err
	}
	if err := n.AddCoverageConstraint(coveragePercentage); err != nil {
		return nil, err
	}

	prob.SetObjective(n.CostExpr(), solver.Minimize)
	prob.SetLimits(solver.Limits{MIPRelStop: opt.MinCostRelStop, MaxTimeSeconds: float64(opt.MinCostMaxTimeMin) * 60, Threads: opt.NumThreads})
	if err := prob.Solve(); err != nil {
		return nil, err
	}
	if prob.MIPStatus() == solver.MIPInfeasible {
		return nil, errInfeasibleCoverage(coveragePercentage)
	}

	flow := make(map[string]float64, len(n.FlowVar))
	for key, v := range n.FlowVar {
		val, err := prob.Solution(v)
		if err != nil {
			return nil, err
		}
		flow[key] = val
	}
	flow = PruneLoops(idx, flow)

	var totalDemand, totalShortage float64
	for _, d := range idx.Demands {
		totalDemand += idx.DemandAtLocation[d]
		v, _ := prob.Solution(n.ShortageVar[d])
		totalShortage += v
	}
	coverage := 1.0
	if totalDemand > 0 {
		coverage = 1 - totalShortage/totalDemand
	}

	return &MinCostResult{CoveragePct: coverage, Flow: flow, Model: n}, nil
}

func errInfeasibleCoverage(pct float64) error {
	return &infeasibleCoverageErr{pct: pct}
}

type infeasibleCoverageErr struct{ pct float64 }

func (e *infeasibleCoverageErr) Error() string {
	return "milp: min_cost infeasible at coverage_percentage=" + ftoa(e.pct)
}

// IsInfeasibleCoverage reports whether err is the sentinel RunMinCost (or
// RunMaxCoverage/RunRedundancy) returns when no solution exists at the
// requested coverage/budget: the signal pipeline.RunMinCostWithFallback
// branches on to retry at a lower coverage percentage.
func IsInfeasibleCoverage(err error) bool {
	_, ok := err.(*infeasibleCoverageErr)
	return ok
}

func ftoa(f float64) string {
	neg := f < 0
	if neg {
		f = -f
	}
	whole := int64(f)
	frac := int64((f - float64(whole)) * 100)
	s := itoa(int(whole)) + "." + itoa(int(frac))
	if neg {
		return "-" + s
	}
	return s
}
