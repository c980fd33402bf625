package milp

import (
	"github.com/latticeforge/meshplanner/config"
	"github.com/latticeforge/meshplanner/graphutil"
	"github.com/latticeforge/meshplanner/solver"
	"github.com/latticeforge/meshplanner/topology"
)

// MaxCoverageResult mirrors MinCostResult's shape for the legacy
// max-coverage redundancy pass.
type MaxCoverageResult struct {
	CoveragePct float64
	Flow        map[string]float64
}

// RunMaxCoverage solves the legacy redundancy stage (spec.md §4.F.3):
// given the min-cost solution already written back into topo, maximize
// coverage subject to cost <= budget, forbidding flow across the
// top-adversarialLinkCount most disruptive backhaul edges of the active
// graph (excluding any edge whose removal in the candidate graph would
// also disconnect additional demand — i.e. one with no viable reroute).
func RunMaxCoverage(topo *topology.Topology, opt config.OptimizerParams, idx *Index, adversarialLinkCount int, newProb func() solver.Problem) (*MaxCoverageResult, error) {
	active, err := graphutil.BuildDigraph(topo, graphutil.ActiveOnly)
	if err != nil {
		return nil, err
	}
	candidate, err := graphutil.BuildDigraph(topo, graphutil.ActiveOrCandidate)
	if err != nil {
		return nil, err
	}
	adversarial := active.FindMostDisruptiveLinks(candidate, adversarialLinkCount)
	forbidden := make(map[string]bool, len(adversarial))
	for _, linkID := range adversarial {
		forbidden[linkID] = true
	}

	prob := newProb()
	prob.SetName("max_coverage")
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
	if err := n.AddBudgetConstraint(opt.Budget); err != nil {
		return nil, err
	}

	for key, linkID := range idx.LinkIDs {
		if !forbidden[linkID] {
			continue
		}
		if v, ok := n.FlowVar[key]; ok {
			if _, err := prob.AddConstraint("adversarial["+key+"]", solver.Constraint{
				Expr: solver.Expr{Terms: []solver.Term{{VarIndex: v, Coeff: 1}}}, Op: solver.LessEq, RHS: 0,
			}); err != nil {
				return nil, err
			}
		}
	}

	prob.SetObjective(n.SumShortageObjective(), solver.Minimize)
	prob.SetLimits(solver.Limits{MIPRelStop: opt.MaxCoverageRelStop, MaxTimeSeconds: float64(opt.MaxCoverageMaxTimeMin) * 60, Threads: opt.NumThreads})
	if err := prob.Solve(); err != nil {
		return nil, err
	}
	if prob.MIPStatus() == solver.MIPInfeasible {
		return nil, &infeasibleCoverageErr{pct: 0}
	}

	flow := make(map[string]float64, len(n.FlowVar))
	for key, v := range n.FlowVar {
		val, _ := prob.Solution(v)
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
	return &MaxCoverageResult{CoveragePct: coverage, Flow: flow}, nil
}
