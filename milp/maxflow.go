package milp

import (
	"github.com/latticeforge/meshplanner/config"
	"github.com/latticeforge/meshplanner/solver"
	"github.com/latticeforge/meshplanner/topology"
)

// MaxFlowResult is the final routed flow and the common-bandwidth floor
// every demand site is guaranteed.
type MaxFlowResult struct {
	Flow         map[string]float64
	CommonBuffer float64
}

// RunMaxFlow solves the post-design stage (spec.md §4.F.6): sites are
// fixed from activeSites, and every wireless link outside activeLinks
// has its flow and TDM share pinned to zero, so flow is routed only
// across the links that survived min-interference. The objective
// maximizes the common bandwidth floor buffer every demand site's
// residual coverage must clear, the same "weakest link" framing the
// original planner uses for its post-design capacity check.
//
// Sectors and channels are not fixed: sector variables stay free
// binaries (only UNAVAILABLE sectors are pinned to 0), and a polarity
// variable is fixed only where its site already carries an assigned
// polarity. The problem handed to the solver is therefore still a MIP,
// and the solver may re-pick sector activation and channel.
func RunMaxFlow(topo *topology.Topology, opt config.OptimizerParams, idx *Index, activeSites map[string]bool, activeLinks map[string]bool, newProb func() solver.Problem) (*MaxFlowResult, error) {
	prob := newProb()
	prob.SetName("max_flow")
	n := NewNetworkOptimization(idx, opt, prob)

	if err := n.AddFixedSiteVariables(activeSites); err != nil {
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
	if err := n.AddBufferVariable(); err != nil {
		return nil, err
	}

	if err := n.AddFlowBalanceConstraints(true); err != nil {
		return nil, err
	}
	if err := n.AddCapacityConstraints(); err != nil {
		return nil, err
	}
	if err := n.AddTDMSectorConstraints(); err != nil {
		return nil, err
	}
	if err := n.AddPolarityConstraints(); err != nil {
		return nil, err
	}
	if err := n.AddCNIncomingConstraint(); err != nil {
		return nil, err
	}

	// Fix every decided-inactive wireless link to zero flow and zero TDM
	// share, mirroring the min-interference stage's active_link decision
	// without re-introducing its binaries here.
	for key, linkID := range idx.LinkIDs {
		if idx.WiredLinks[key] {
			continue
		}
		if activeLinks[linkID] {
			continue
		}
		if fv, ok := n.FlowVar[key]; ok {
			if _, err := prob.AddConstraint("inactive_flow["+key+"]", solver.Constraint{
				Expr: solver.Expr{Terms: []solver.Term{{VarIndex: fv, Coeff: 1}}}, Op: solver.Equal, RHS: 0,
			}); err != nil {
				return nil, err
			}
		}
		if tvs, ok := n.TDMVar[key]; ok {
			for _, tv := range tvs {
				if _, err := prob.AddConstraint("inactive_tdm["+key+"]", solver.Constraint{
					Expr: solver.Expr{Terms: []solver.Term{{VarIndex: tv, Coeff: 1}}}, Op: solver.Equal, RHS: 0,
				}); err != nil {
					return nil, err
				}
			}
		}
	}

	prob.SetObjective(n.CommonBandwidthObjective(), solver.Minimize)
	prob.SetLimits(solver.Limits{MIPRelStop: opt.InterferenceRelStop, MaxTimeSeconds: float64(opt.InterferenceMaxTimeMin) * 60, Threads: opt.NumThreads})
	if err := prob.Solve(); err != nil {
		return nil, err
	}

	flow := make(map[string]float64, len(n.FlowVar))
	for key, v := range n.FlowVar {
		val, _ := prob.Solution(v)
		flow[key] = val
	}
	flow = PruneLoops(idx, flow)

	buffer, _ := prob.Solution(n.BufferVar)
	return &MaxFlowResult{Flow: flow, CommonBuffer: buffer}, nil
}
