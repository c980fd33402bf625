package milp

import (
	"sort"

	"github.com/latticeforge/meshplanner/config"
	"github.com/latticeforge/meshplanner/model"
	"github.com/latticeforge/meshplanner/solver"
	"github.com/latticeforge/meshplanner/topology"
)

// RedundancyCapacities maps a redundancy level to the (pop, dn, sink)
// node-capacity triple spec.md §4.F.4 names. MEDIUM and HIGH additionally
// depend on how many POPs the topology has: with more than one POP,
// MEDIUM lowers the POP capacity from 2 to 1, and HIGH lowers it from 3
// to 2 while raising the sink capacity from 3 to 4.
func RedundancyCapacities(level model.RedundancyLevel, numPOPs int) (pop, dn, sink int) {
	switch level {
	case model.RedundancyLow:
		return 2, 2, 2
	case model.RedundancyMedium:
		if numPOPs > 1 {
			return 1, 1, 2
		}
		return 2, 1, 2
	case model.RedundancyHigh:
		if numPOPs > 1 {
			return 2, 1, 4
		}
		return 3, 1, 3
	default:
		return 1, 1, 1
	}
}

// candidateEdgePopCapacity and candidateEdgeDNCapacity are the fixed
// path capacities the candidate-edge heuristic searches with, regardless
// of redundancy level (spec.md §4.F.4, compute_candidate_edges_for_redundancy).
const (
	candidateEdgePopCapacity = 4
	candidateEdgeDNCapacity  = 2
)

// nodeCapacitatedPaths approximates the split-node max-flow heuristic
// spec.md §4.F.4 describes (compute_candidate_edges_for_redundancy) with
// a repeated BFS augmenting search: each intermediate node may be reused
// by up to `capacity` discovered paths (mirroring the split node's
// in->out unit-capacity edge scaled to the requested source capacity),
// and every edge on a discovered path joins the restricted set.
func nodeCapacitatedPaths(successors map[string][]string, source, sink string, capacity int) map[string]bool {
	used := make(map[string]bool)
	remaining := make(map[string]int)

	for i := 0; i < capacity; i++ {
		prev := map[string]string{}
		visited := map[string]bool{source: true}
		queue := []string{source}
		found := false
		for len(queue) > 0 && !found {
			cur := queue[0]
			queue = queue[1:]
			for _, to := range successors[cur] {
				if visited[to] {
					continue
				}
				if to != sink && remaining[to] <= -capacity {
					continue // node capacity exhausted by prior paths.
				}
				visited[to] = true
				prev[to] = cur
				if to == sink {
					found = true
					break
				}
				queue = append(queue, to)
			}
		}
		if !found {
			break
		}
		cur := sink
		for cur != source {
			p := prev[cur]
			used[pairKey(p, cur)] = true
			if cur != sink {
				remaining[cur]--
			}
			cur = p
		}
	}
	return used
}

// computeCandidateEdgesForRedundancy builds the restricted backhaul edge
// set the redundancy MILP is scoped to: every edge touched by a
// node-capacitated path between any (POP, DN) pair at popCap, plus every
// edge touched by a path between any two DNs at dnCap (standing in for
// spec.md §4.F.4's "DN pair within 2 hops in a Delaunay triangulation" —
// every DN pair is searched here since no geometric pruning library is
// in scope; see DESIGN.md).
func computeCandidateEdgesForRedundancy(idx *Index, popCap, dnCap int) map[string]bool {
	restricted := make(map[string]bool)
	for _, pop := range idx.POPs {
		for _, dn := range idx.DNs {
			for key := range nodeCapacitatedPaths(idx.Successors, pop, dn, popCap) {
				restricted[key] = true
			}
		}
	}
	for i, a := range idx.DNs {
		for _, b := range idx.DNs[i+1:] {
			for key := range nodeCapacitatedPaths(idx.Successors, a, b, dnCap) {
				restricted[key] = true
			}
		}
	}
	return restricted
}

// RedundancyResult is the augmented min-cost design's outcome.
type RedundancyResult struct {
	AchievedShortage map[string]float64 // per active-DN sink shortfall against its sink capacity
	Flow             map[string]float64
}

// RunRedundancy augments the min-cost solution to survive the
// configured failure level (spec.md §4.F.4). It scopes the MILP to the
// heuristically restricted candidate edge set (always adding back every
// currently-active backhaul link so the heuristic never drops one), then
// runs the two-pass solve: (1) minimize total redundancy shortage, (2)
// fix the achieved shortages and minimize cost.
//
// The redundancy target is one constraint per active DN
// (addSinkCapacityConstraint) on the flow into that DN, with a shortage
// variable absorbing any deficit; all active DNs share the one flow
// solution. Only the sink capacity of the RedundancyCapacities triple
// enters the model: the pop and dn node capacities are not used, and no
// per-node throughput cap or node-disjoint path limit is modelled.
func RunRedundancy(topo *topology.Topology, opt config.OptimizerParams, idx *Index, newProb func() solver.Problem) (*RedundancyResult, error) {
	numPOPs := len(idx.POPs)
	_, _, sinkCap := RedundancyCapacities(opt.RedundancyLevel, numPOPs)

	// The candidate-edge search's path capacities are fixed constants,
	// independent of the redundancy level's node-capacity triple above:
	// they bound how many disjoint heuristic paths get pulled into the
	// restricted edge set, not the MILP's per-DN sink target.
	restricted := computeCandidateEdgesForRedundancy(idx, candidateEdgePopCapacity, candidateEdgeDNCapacity)
	for key, linkID := range idx.LinkIDs {
		l := idx.Link(linkID)
		if l != nil && l.Status.Active() {
			restricted[key] = true
		}
	}
	scoped := idx.Scoped(restricted)

	activeDNs := make([]string, 0)
	for _, dn := range scoped.DNs {
		if s := scoped.Site(dn); s != nil && s.Status.Active() {
			activeDNs = append(activeDNs, dn)
		}
	}
	sort.Strings(activeDNs)

	// Pass 1: minimize total redundancy shortage.
	prob1 := newProb()
	prob1.SetName("redundancy_shortage")
	n1 := NewNetworkOptimization(scoped, opt, prob1)
	forceActive := map[string]bool{}
	for _, p := range scoped.POPs {
		if opt.AlwaysActivePOPs {
			forceActive[p] = true
		}
	}
	if err := wireRedundancyModel(n1, forceActive); err != nil {
		return nil, err
	}
	redundancyShortage := make(map[string]int)
	for _, dn := range activeDNs {
		v, err := prob1.AddVariable("redundancy_shortage["+dn+"]", solver.Continuous, 0, float64(sinkCap)*opt.POPCapacityGbps)
		if err != nil {
			return nil, err
		}
		redundancyShortage[dn] = v
		if err := addSinkCapacityConstraint(prob1, n1, dn, sinkCap, opt, v); err != nil {
			return nil, err
		}
	}
	var shortageTerms []solver.Term
	for _, v := range redundancyShortage {
		shortageTerms = append(shortageTerms, term(v, 1))
	}
	prob1.SetObjective(solver.Expr{Terms: shortageTerms}, solver.Minimize)
	prob1.SetLimits(solver.Limits{MIPRelStop: opt.RedundancyRelStop, MaxTimeSeconds: float64(opt.RedundancyMaxTimeMin) * 60, Threads: opt.NumThreads})
	if err := prob1.Solve(); err != nil {
		return nil, err
	}
	if prob1.MIPStatus() == solver.MIPInfeasible {
		return nil, &infeasibleCoverageErr{pct: 0}
	}

	achieved := make(map[string]float64, len(activeDNs))
	for dn, v := range redundancyShortage {
		val, _ := prob1.Solution(v)
		achieved[dn] = val
	}

	// Pass 2: fix shortages at their achieved values, minimize cost.
	prob2 := newProb()
	prob2.SetName("redundancy_cost")
	n2 := NewNetworkOptimization(scoped, opt, prob2)
	if err := wireRedundancyModel(n2, forceActive); err != nil {
		return nil, err
	}
	for _, dn := range activeDNs {
		v, err := prob2.AddVariable("redundancy_shortage["+dn+"]", solver.Continuous, achieved[dn], achieved[dn])
		if err != nil {
			return nil, err
		}
		if err := addSinkCapacityConstraint(prob2, n2, dn, sinkCap, opt, v); err != nil {
			return nil, err
		}
	}
	if err := n2.AddBudgetConstraint(opt.Budget); err != nil {
		return nil, err
	}
	prob2.SetObjective(n2.CostExpr(), solver.Minimize)
	prob2.SetLimits(solver.Limits{MIPRelStop: opt.RedundancyRelStop, MaxTimeSeconds: float64(opt.RedundancyMaxTimeMin) * 60, Threads: opt.NumThreads})
	if err := prob2.Solve(); err != nil {
		return nil, err
	}

	flow := make(map[string]float64, len(n2.FlowVar))
	for key, v := range n2.FlowVar {
		val, _ := prob2.Solution(v)
		flow[key] = val
	}
	flow = PruneLoops(scoped, flow)

	return &RedundancyResult{AchievedShortage: achieved, Flow: flow}, nil
}

func wireRedundancyModel(n *NetworkOptimization, forceActive map[string]bool) error {
	if err := n.AddSiteVariables(forceActive); err != nil {
		return err
	}
	if err := n.AddSectorVariables(); err != nil {
		return err
	}
	if err := n.AddPolarityVariables(); err != nil {
		return err
	}
	if err := n.AddFlowVariables(); err != nil {
		return err
	}
	if err := n.AddTDMVariables(); err != nil {
		return err
	}
	if err := n.AddShortageVariables(); err != nil {
		return err
	}
	if err := n.AddFlowBalanceConstraints(false); err != nil {
		return err
	}
	if err := n.AddCapacityConstraints(); err != nil {
		return err
	}
	if err := n.AddTDMSectorConstraints(); err != nil {
		return err
	}
	if err := n.AddPOPCapacityConstraint(); err != nil {
		return err
	}
	if err := n.AddPolarityConstraints(); err != nil {
		return err
	}
	if err := n.AddColocationConstraints(forceActive); err != nil {
		return err
	}
	if err := n.AddP2MPConstraints(); err != nil {
		return err
	}
	return n.AddCNIncomingConstraint()
}

// addSinkCapacityConstraint wires "incoming flow into dn + shortage >=
// sinkCap * pop_capacity / (1 + sinkCap)" (Gbps), the per-active-DN
// redundancy target whose shortage RunRedundancy minimizes.
func addSinkCapacityConstraint(prob solver.Problem, n *NetworkOptimization, dn string, sinkCap int, opt config.OptimizerParams, shortageVar int) error {
	var terms []solver.Term
	for _, from := range n.Idx.Predecessors[dn] {
		terms = append(terms, term(n.FlowVar[pairKey(from, dn)], 1))
	}
	terms = append(terms, term(shortageVar, 1))
	_, err := prob.AddConstraint("sink_capacity["+dn+"]", solver.Constraint{
		Expr: solver.Expr{Terms: terms}, Op: solver.GreaterEq, RHS: float64(sinkCap) * opt.POPCapacityGbps / float64(1+sinkCap),
	})
	return err
}
