package milp

import (
	"sort"

	"github.com/latticeforge/meshplanner/config"
	"github.com/latticeforge/meshplanner/model"
	"github.com/latticeforge/meshplanner/solver"
)

// NetworkOptimization is the shared variable/constraint vocabulary every
// stage model builds on (spec.md §4.E): flow balance, TDM, polarity,
// colocation, cost, and coverage. A stage constructor (pop_proposal,
// mincost, ...) wires a subset of these onto a fresh solver.Problem
// rather than subclassing a shared base type.
type NetworkOptimization struct {
	Idx  *Index
	Opt  config.OptimizerParams
	Prob solver.Problem

	NumberOfChannels int

	SiteVar     map[string]int
	SectorVar   map[string]map[int]int // sectorID -> channel -> var index
	OddVar      map[string]int         // site id -> var index (DN/POP only)
	FlowVar     map[string]int         // pairKey -> var index
	TDMVar      map[string]map[int]int // pairKey -> channel -> var index
	ShortageVar map[string]int         // demand id -> var index
	ActiveLinkVar map[string]int       // link id -> var index (interference stage)
	BufferVar   int                    // -1 if unused

	BudgetConstraintIdx   int
	CoverageConstraintIdx int
}

// NewNetworkOptimization wires an empty model against prob.
func NewNetworkOptimization(idx *Index, opt config.OptimizerParams, prob solver.Problem) *NetworkOptimization {
	channels := opt.NumberOfChannels
	if channels < 1 {
		channels = 1
	}
	return &NetworkOptimization{
		Idx:             idx,
		Opt:             opt,
		Prob:            prob,
		NumberOfChannels: channels,
		SiteVar:         make(map[string]int),
		SectorVar:       make(map[string]map[int]int),
		OddVar:          make(map[string]int),
		FlowVar:         make(map[string]int),
		TDMVar:          make(map[string]map[int]int),
		ShortageVar:     make(map[string]int),
		ActiveLinkVar:   make(map[string]int),
		BufferVar:       -1,
		BudgetConstraintIdx:   -1,
		CoverageConstraintIdx: -1,
	}
}

// AddFixedSiteVariables fixes every site var to its decided value: the
// interference stage (spec.md §4.F.5) takes the site set as a given
// input rather than a decision, so EXISTING/UNAVAILABLE keep their usual
// immutable fixing and every other site is pinned by whether it appears
// in activeSites.
func (n *NetworkOptimization) AddFixedSiteVariables(activeSites map[string]bool) error {
	for _, id := range n.Idx.AllSiteIDs() {
		site := n.Idx.Site(id)
		lb, ub := 0.0, 0.0
		switch {
		case site.Status == model.StatusExisting:
			lb, ub = 1, 1
		case site.Status == model.StatusUnavailable:
			lb, ub = 0, 0
		case activeSites[id]:
			lb, ub = 1, 1
		}
		v, err := n.Prob.AddVariable("site["+id+"]", solver.Binary, lb, ub)
		if err != nil {
			return err
		}
		n.SiteVar[id] = v
	}
	return nil
}

// AddSiteVariables introduces site[i] for every site (spec.md §4.E).
// EXISTING sites are fixed to 1 and UNAVAILABLE sites fixed to 0 (both
// immutable per spec.md §3); forceActive additionally pins a CANDIDATE
// site to 1 (used by the colocation / always-active-POP rules).
func (n *NetworkOptimization) AddSiteVariables(forceActive map[string]bool) error {
	for _, id := range n.Idx.AllSiteIDs() {
		site := n.Idx.Site(id)
		var lb, ub float64
		switch {
		case site.Status == model.StatusExisting:
			lb, ub = 1, 1
		case site.Status == model.StatusUnavailable:
			lb, ub = 0, 0
		case forceActive[id]:
			lb, ub = 1, 1
		default:
			lb, ub = 0, 1
		}
		v, err := n.Prob.AddVariable("site["+id+"]", solver.Binary, lb, ub)
		if err != nil {
			return err
		}
		n.SiteVar[id] = v
	}
	return nil
}

// AddSectorVariables introduces sector[i,a,c]: CN sectors get a single
// channel-0 variable, DN sectors get one per channel (spec.md §4.E). It
// also wires the node-coupling and channel-exclusion constraints
// (constraints 10 and 11's first clause): every sector sharing a
// physical node activates together, and a sector may only ever occupy
// one channel.
func (n *NetworkOptimization) AddSectorVariables() error {
	for _, siteID := range n.Idx.AllSiteIDs() {
		for _, secID := range n.Idx.SectorsOfSite[siteID] {
			sec := n.Idx.Sector(secID)
			n.SectorVar[secID] = make(map[int]int)
			channels := n.NumberOfChannels
			if sec.SectorType == model.SectorTypeCN {
				channels = 1
			}
			lb, ub := 0.0, 1.0
			if sec.Status == model.StatusUnavailable {
				lb, ub = 0, 0
			}
			var channelTerms []solver.Term
			for c := 0; c < channels; c++ {
				v, err := n.Prob.AddVariable("sector["+secID+",c"+itoa(c)+"]", solver.Binary, lb, ub)
				if err != nil {
					return err
				}
				n.SectorVar[secID][c] = v
				channelTerms = append(channelTerms, term(v, 1))
			}
			if channels > 1 {
				if _, err := n.Prob.AddConstraint("sector_one_channel["+secID+"]", solver.Constraint{
					Expr: solver.Expr{Terms: channelTerms}, Op: solver.LessEq, RHS: 1,
				}); err != nil {
					return err
				}
			}
		}
	}
	return n.addNodeCouplingConstraints()
}

// addNodeCouplingConstraints wires constraint 10: every sector sharing a
// physical node activates together, chained against the node's first
// sector so the constraint count stays linear in sector count.
func (n *NetworkOptimization) addNodeCouplingConstraints() error {
	nodeKeys := make([]string, 0, len(n.Idx.SectorsOfNode))
	for k := range n.Idx.SectorsOfNode {
		nodeKeys = append(nodeKeys, k)
	}
	sort.Strings(nodeKeys)
	for _, nodeKey := range nodeKeys {
		secs := n.Idx.SectorsOfNode[nodeKey]
		if len(secs) < 2 {
			continue
		}
		anchor := sectorActivationExpr(n, secs[0])
		for _, secID := range secs[1:] {
			other := sectorActivationExpr(n, secID)
			terms := append(append([]solver.Term{}, anchor...), negate(other)...)
			if _, err := n.Prob.AddConstraint("node_coupling["+nodeKey+","+secID+"]", solver.Constraint{
				Expr: solver.Expr{Terms: terms}, Op: solver.Equal, RHS: 0,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// sectorActivationExpr returns the terms of Σ_c sector[secID,c], the
// sector's overall activation regardless of which channel it lands on.
func sectorActivationExpr(n *NetworkOptimization, secID string) []solver.Term {
	chans := n.SectorVar[secID]
	keys := make([]int, 0, len(chans))
	for c := range chans {
		keys = append(keys, c)
	}
	sort.Ints(keys)
	terms := make([]solver.Term, 0, len(keys))
	for _, c := range keys {
		terms = append(terms, term(chans[c], 1))
	}
	return terms
}

func negate(terms []solver.Term) []solver.Term {
	out := make([]solver.Term, len(terms))
	for i, t := range terms {
		out[i] = solver.Term{VarIndex: t.VarIndex, Coeff: -t.Coeff}
	}
	return out
}

// AddPolarityVariables introduces odd[i] for every DN/POP site.
func (n *NetworkOptimization) AddPolarityVariables() error {
	for _, id := range n.Idx.AllSiteIDs() {
		site := n.Idx.Site(id)
		if site.SiteType == model.SiteTypeCN {
			continue
		}
		lb, ub := 0.0, 1.0
		if site.Polarity == model.PolarityOdd {
			lb, ub = 1, 1
		} else if site.Polarity == model.PolarityEven {
			lb, ub = 0, 0
		}
		v, err := n.Prob.AddVariable("odd["+id+"]", solver.Binary, lb, ub)
		if err != nil {
			return err
		}
		n.OddVar[id] = v
	}
	return nil
}

// edgeIter lists every (from,to) pair key present in the index's
// link_capacities table, sorted for deterministic constraint ordering.
func (n *NetworkOptimization) edgeIter() []string {
	keys := make([]string, 0, len(n.Idx.LinkCapacities))
	for k := range n.Idx.LinkCapacities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AddFlowVariables introduces flow[(i,j)] >= 0 for every edge.
func (n *NetworkOptimization) AddFlowVariables() error {
	for _, key := range n.edgeIter() {
		v, err := n.Prob.AddVariable("flow["+key+"]", solver.Continuous, 0, n.Idx.LinkCapacities[key])
		if err != nil {
			return err
		}
		n.FlowVar[key] = v
	}
	return nil
}

// AddTDMVariables introduces tdm[(i,j,c)] in [0,1] for every wireless edge.
func (n *NetworkOptimization) AddTDMVariables() error {
	for _, key := range n.edgeIter() {
		if n.Idx.WiredLinks[key] {
			continue
		}
		n.TDMVar[key] = make(map[int]int)
		for c := 0; c < n.NumberOfChannels; c++ {
			v, err := n.Prob.AddVariable("tdm["+key+",c"+itoa(c)+"]", solver.Continuous, 0, 1)
			if err != nil {
				return err
			}
			n.TDMVar[key][c] = v
		}
	}
	return nil
}

// AddShortageVariables introduces shortage[d] in [0, demand_d].
func (n *NetworkOptimization) AddShortageVariables() error {
	for _, d := range n.Idx.Demands {
		v, err := n.Prob.AddVariable("shortage["+d+"]", solver.Continuous, 0, n.Idx.DemandAtLocation[d])
		if err != nil {
			return err
		}
		n.ShortageVar[d] = v
	}
	return nil
}

// AddBufferVariable introduces the common-bandwidth floor buffer >= 0.
func (n *NetworkOptimization) AddBufferVariable() error {
	v, err := n.Prob.AddVariable("buffer", solver.Continuous, 0, unboundedCapacity)
	if err != nil {
		return err
	}
	n.BufferVar = v
	return nil
}

func term(varIndex int, coeff float64) solver.Term { return solver.Term{VarIndex: varIndex, Coeff: coeff} }

// AddFlowBalanceConstraints wires constraint 1 (spec.md §4.E): per real
// site, incoming flow = outgoing flow; the supersource's net outflow is
// capped by max_throughput minus total shortage; every demand point's
// incoming flow equals its demand minus shortage (or the common buffer
// when maximizeCommonBandwidth is set).
func (n *NetworkOptimization) AddFlowBalanceConstraints(maximizeCommonBandwidth bool) error {
	for _, siteID := range n.Idx.AllSiteIDs() {
		var terms []solver.Term
		for _, from := range n.Idx.Predecessors[siteID] {
			terms = append(terms, term(n.FlowVar[pairKey(from, siteID)], 1))
		}
		for _, to := range n.Idx.Successors[siteID] {
			terms = append(terms, term(n.FlowVar[pairKey(siteID, to)], -1))
		}
		if len(terms) == 0 {
			continue
		}
		if _, err := n.Prob.AddConstraint("flow_balance["+siteID+"]", solver.Constraint{
			Expr: solver.Expr{Terms: terms}, Op: solver.Equal, RHS: 0,
		}); err != nil {
			return err
		}
	}

	var maxThroughput float64
	for _, pop := range n.Idx.POPs {
		maxThroughput += n.Idx.LinkCapacities[pairKey(n.Idx.Supersource, pop)]
	}
	var outTerms []solver.Term
	for _, pop := range n.Idx.POPs {
		outTerms = append(outTerms, term(n.FlowVar[pairKey(n.Idx.Supersource, pop)], 1))
	}
	for _, d := range n.Idx.Demands {
		outTerms = append(outTerms, term(n.ShortageVar[d], 1))
	}
	if _, err := n.Prob.AddConstraint("supersource_cap", solver.Constraint{
		Expr: solver.Expr{Terms: outTerms}, Op: solver.LessEq, RHS: maxThroughput,
	}); err != nil {
		return err
	}

	for _, d := range n.Idx.Demands {
		var terms []solver.Term
		for _, from := range n.Idx.Predecessors[d] {
			terms = append(terms, term(n.FlowVar[pairKey(from, d)], 1))
		}
		rhs := n.Idx.DemandAtLocation[d]
		if maximizeCommonBandwidth {
			terms = append(terms, term(n.BufferVar, -1))
			rhs = 0
		} else {
			terms = append(terms, term(n.ShortageVar[d], 1))
		}
		if _, err := n.Prob.AddConstraint("demand_balance["+d+"]", solver.Constraint{
			Expr: solver.Expr{Terms: terms}, Op: solver.Equal, RHS: rhs,
		}); err != nil {
			return err
		}
	}
	return nil
}

// AddCapacityConstraints wires constraint 2: flow <= capacity * sum_c
// tdm, with the tdm factor omitted (treated as 1) on wired/imaginary edges.
func (n *NetworkOptimization) AddCapacityConstraints() error {
	for _, key := range n.edgeIter() {
		cap := n.Idx.LinkCapacities[key]
		flowT := term(n.FlowVar[key], 1)
		if n.Idx.WiredLinks[key] {
			if _, err := n.Prob.AddConstraint("capacity["+key+"]", solver.Constraint{
				Expr: solver.Expr{Terms: []solver.Term{flowT}}, Op: solver.LessEq, RHS: cap,
			}); err != nil {
				return err
			}
			continue
		}
		terms := []solver.Term{flowT}
		for c := 0; c < n.NumberOfChannels; c++ {
			terms = append(terms, term(n.TDMVar[key][c], -cap))
		}
		if _, err := n.Prob.AddConstraint("capacity["+key+"]", solver.Constraint{
			Expr: solver.Expr{Terms: terms}, Op: solver.LessEq, RHS: 0,
		}); err != nil {
			return err
		}
	}
	return nil
}

// AddTDMSectorConstraints wires constraint 3: for every sector and
// channel, the sum of tdm over links using that sector (as tx or rx) is
// capped by the sector's own activation variable.
func (n *NetworkOptimization) AddTDMSectorConstraints() error {
	for _, key := range n.edgeIter() {
		if n.Idx.WiredLinks[key] {
			continue
		}
		linkID, ok := n.Idx.LinkIDs[key]
		if !ok {
			continue
		}
		secPair, ok := n.Idx.LinkToSectors[linkID]
		if !ok {
			continue
		}
		for c := 0; c < n.NumberOfChannels; c++ {
			tdmVar, ok := n.TDMVar[key][c]
			if !ok {
				continue
			}
			for _, secID := range secPair {
				sv, ok := n.sectorChannelVar(secID, c)
				if !ok {
					continue
				}
				name := "tdm_sector[" + secID + ",c" + itoa(c) + "," + key + "]"
				if _, err := n.Prob.AddConstraint(name, solver.Constraint{
					Expr: solver.Expr{Terms: []solver.Term{{VarIndex: tdmVar, Coeff: 1}, {VarIndex: sv, Coeff: -1}}},
					Op:   solver.LessEq, RHS: 0,
				}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// sectorChannelVar resolves a CN sector's single channel-0 variable
// regardless of which channel c the caller is iterating.
func (n *NetworkOptimization) sectorChannelVar(secID string, c int) (int, bool) {
	chans, ok := n.SectorVar[secID]
	if !ok {
		return 0, false
	}
	if v, ok := chans[c]; ok {
		return v, true
	}
	if v, ok := chans[0]; ok {
		return v, true
	}
	return 0, false
}

// AddPOPCapacityConstraint wires constraint 4: sum of outgoing flow from
// every POP <= pop_capacity (already enforced per-edge via the flow
// variable's upper bound; this adds the aggregate cap spec.md names
// explicitly in case pop_capacity is tighter than the sum of per-link caps).
func (n *NetworkOptimization) AddPOPCapacityConstraint() error {
	for _, pop := range n.Idx.POPs {
		key := pairKey(n.Idx.Supersource, pop)
		if _, err := n.Prob.AddConstraint("pop_capacity["+pop+"]", solver.Constraint{
			Expr: solver.Expr{Terms: []solver.Term{{VarIndex: n.FlowVar[key], Coeff: 1}}},
			Op:   solver.LessEq, RHS: n.Opt.POPCapacityGbps,
		}); err != nil {
			return err
		}
	}
	return nil
}

// AddPolarityConstraints wires constraint 5: DN-DN/POP links not forced
// active get tdm <= odd_i + odd_j and tdm <= 2 - odd_i - odd_j; forced-
// active links (links whose own status is EXISTING) instead fix odd_i = 1 - odd_j.
func (n *NetworkOptimization) AddPolarityConstraints() error {
	for _, key := range n.edgeIter() {
		if n.Idx.WiredLinks[key] {
			continue
		}
		linkID := n.Idx.LinkIDs[key]
		l := n.Idx.Link(linkID)
		if l == nil {
			continue
		}
		txSite, rxSite := n.Idx.Site(l.TxSiteID), n.Idx.Site(l.RxSiteID)
		if txSite == nil || rxSite == nil || rxSite.SiteType == model.SiteTypeCN {
			continue // CN endpoints take the opposite polarity of their serving DN, handled in interference/.
		}
		oi, oiOK := n.OddVar[l.TxSiteID]
		oj, ojOK := n.OddVar[l.RxSiteID]
		if !oiOK || !ojOK {
			continue
		}
		forced := l.Status == model.StatusExisting
		for c := 0; c < n.NumberOfChannels; c++ {
			tdmVar, ok := n.TDMVar[key][c]
			if !ok {
				continue
			}
			if forced {
				if _, err := n.Prob.AddConstraint("polarity_forced["+key+"]", solver.Constraint{
					Expr: solver.Expr{Terms: []solver.Term{{VarIndex: oi, Coeff: 1}, {VarIndex: oj, Coeff: 1}}},
					Op:   solver.Equal, RHS: 1,
				}); err != nil {
					return err
				}
				continue
			}
			if _, err := n.Prob.AddConstraint("polarity_lo["+key+",c"+itoa(c)+"]", solver.Constraint{
				Expr: solver.Expr{Terms: []solver.Term{{VarIndex: tdmVar, Coeff: 1}, {VarIndex: oi, Coeff: -1}, {VarIndex: oj, Coeff: -1}}},
				Op:   solver.LessEq, RHS: 0,
			}); err != nil {
				return err
			}
			if _, err := n.Prob.AddConstraint("polarity_hi["+key+",c"+itoa(c)+"]", solver.Constraint{
				Expr: solver.Expr{Terms: []solver.Term{{VarIndex: tdmVar, Coeff: 1}, {VarIndex: oi, Coeff: 1}, {VarIndex: oj, Coeff: 1}}},
				Op:   solver.LessEq, RHS: 2,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// AddColocationConstraints wires constraint 6: at most one site in each
// colocated group is active; if forceActive names a site in the group,
// exactly one site whose type is the max type or an allowed upgrade
// target (CN -> DN -> POP) stays active and the rest are forced inactive.
func (n *NetworkOptimization) AddColocationConstraints(forceActive map[string]bool) error {
	seen := make(map[string]bool)
	for _, group := range n.Idx.ColocatedLocations {
		if len(group) <= 1 || seen[group[0]] {
			continue
		}
		seen[group[0]] = true
		var terms []solver.Term
		maxType := model.SiteTypeCN
		groupForced := false
		for _, id := range group {
			terms = append(terms, term(n.SiteVar[id], 1))
			if forceActive[id] {
				groupForced = true
			}
			if t := n.Idx.Site(id).SiteType; t > maxType {
				maxType = t
			}
		}
		rhs := 1.0
		if !groupForced {
			rhs = 1 // "at most one" regardless; forced groups get exactly one via AddSiteVariables' lb=ub=1
		}
		if _, err := n.Prob.AddConstraint("colocation["+group[0]+"]", solver.Constraint{
			Expr: solver.Expr{Terms: terms}, Op: solver.LessEq, RHS: rhs,
		}); err != nil {
			return err
		}
		if groupForced {
			for _, id := range group {
				if n.Idx.Site(id).SiteType != maxType && !forceActive[id] {
					// not the up-typed winner: forced inactive via a <= 0 bound,
					// since AddSiteVariables already fixed [0,1] for CANDIDATE sites.
					if _, err := n.Prob.AddConstraint("colocation_upgrade["+id+"]", solver.Constraint{
						Expr: solver.Expr{Terms: []solver.Term{{VarIndex: n.SiteVar[id], Coeff: 1}}},
						Op:   solver.LessEq, RHS: 0,
					}); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// AddP2MPConstraints wires constraint 7: per DN sector, at most
// dn_dn_sector_limit active DN-DN outgoing links, and at most
// dn_total_sector_limit active DN-DN + DN-CN outgoing links. Modeled on
// the tdm variables as a proxy for "active" (tdm > 0 implies active; the
// sum of tdm fractions bounds the count of simultaneously scheduled links).
func (n *NetworkOptimization) AddP2MPConstraints() error {
	for _, dn := range n.Idx.DNs {
		var dnDNTerms, totalTerms []solver.Term
		for _, to := range n.Idx.Successors[dn] {
			key := pairKey(dn, to)
			if n.Idx.WiredLinks[key] {
				continue
			}
			toSite := n.Idx.Site(to)
			if toSite == nil {
				continue
			}
			for c := 0; c < n.NumberOfChannels; c++ {
				tv, ok := n.TDMVar[key][c]
				if !ok {
					continue
				}
				totalTerms = append(totalTerms, term(tv, 1))
				if toSite.SiteType == model.SiteTypeDN || toSite.SiteType == model.SiteTypePOP {
					dnDNTerms = append(dnDNTerms, term(tv, 1))
				}
			}
		}
		if len(dnDNTerms) > 0 {
			if _, err := n.Prob.AddConstraint("p2mp_dndn["+dn+"]", solver.Constraint{
				Expr: solver.Expr{Terms: dnDNTerms}, Op: solver.LessEq, RHS: float64(n.Opt.DNDNSectorLimit),
			}); err != nil {
				return err
			}
		}
		if len(totalTerms) > 0 {
			if _, err := n.Prob.AddConstraint("p2mp_total["+dn+"]", solver.Constraint{
				Expr: solver.Expr{Terms: totalTerms}, Op: solver.LessEq, RHS: float64(n.Opt.DNTotalSectorLimit),
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// AddCNIncomingConstraint wires constraint 8: a CN has at most one
// active incoming link, modeled as at most one channel-summed tdm unit
// across its predecessors.
func (n *NetworkOptimization) AddCNIncomingConstraint() error {
	for _, cn := range n.Idx.CNs {
		var terms []solver.Term
		for _, from := range n.Idx.Predecessors[cn] {
			key := pairKey(from, cn)
			if n.Idx.WiredLinks[key] {
				continue
			}
			for c := 0; c < n.NumberOfChannels; c++ {
				if tv, ok := n.TDMVar[key][c]; ok {
					terms = append(terms, term(tv, 1))
				}
			}
		}
		if len(terms) == 0 {
			continue
		}
		if _, err := n.Prob.AddConstraint("cn_incoming["+cn+"]", solver.Constraint{
			Expr: solver.Expr{Terms: terms}, Op: solver.LessEq, RHS: 1,
		}); err != nil {
			return err
		}
	}
	return nil
}

// AddP2MPActiveLinkConstraints wires constraint 7 over decided active
// links rather than TDM fractions: the min-interference stage re-decides
// which links are active, so the fan-out limits spec.md §8 states as
// universal invariants must be re-enforced against ActiveLinkVar there
// (see AddP2MPConstraints, the TDM-fraction form the site-deciding stages use).
func (n *NetworkOptimization) AddP2MPActiveLinkConstraints() error {
	for _, dn := range n.Idx.DNs {
		var dnDNTerms, totalTerms []solver.Term
		for _, to := range n.Idx.Successors[dn] {
			key := pairKey(dn, to)
			if n.Idx.WiredLinks[key] {
				continue
			}
			linkID, ok := n.Idx.LinkIDs[key]
			if !ok {
				continue
			}
			v, ok := n.ActiveLinkVar[linkID]
			if !ok {
				continue
			}
			toSite := n.Idx.Site(to)
			if toSite == nil {
				continue
			}
			totalTerms = append(totalTerms, term(v, 1))
			if toSite.SiteType == model.SiteTypeDN || toSite.SiteType == model.SiteTypePOP {
				dnDNTerms = append(dnDNTerms, term(v, 1))
			}
		}
		if len(dnDNTerms) > 0 {
			if _, err := n.Prob.AddConstraint("p2mp_dndn_active["+dn+"]", solver.Constraint{
				Expr: solver.Expr{Terms: dnDNTerms}, Op: solver.LessEq, RHS: float64(n.Opt.DNDNSectorLimit),
			}); err != nil {
				return err
			}
		}
		if len(totalTerms) > 0 {
			if _, err := n.Prob.AddConstraint("p2mp_total_active["+dn+"]", solver.Constraint{
				Expr: solver.Expr{Terms: totalTerms}, Op: solver.LessEq, RHS: float64(n.Opt.DNTotalSectorLimit),
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// AddCNIncomingActiveLinkConstraint wires constraint 8 over decided
// active links (see AddP2MPActiveLinkConstraints).
func (n *NetworkOptimization) AddCNIncomingActiveLinkConstraint() error {
	for _, cn := range n.Idx.CNs {
		var terms []solver.Term
		for _, from := range n.Idx.Predecessors[cn] {
			key := pairKey(from, cn)
			if n.Idx.WiredLinks[key] {
				continue
			}
			linkID, ok := n.Idx.LinkIDs[key]
			if !ok {
				continue
			}
			if v, ok := n.ActiveLinkVar[linkID]; ok {
				terms = append(terms, term(v, 1))
			}
		}
		if len(terms) == 0 {
			continue
		}
		if _, err := n.Prob.AddConstraint("cn_incoming_active["+cn+"]", solver.Constraint{
			Expr: solver.Expr{Terms: terms}, Op: solver.LessEq, RHS: 1,
		}); err != nil {
			return err
		}
	}
	return nil
}

// tdmCompatiblePolarity returns the linearized indicator z =
// tdm[(k,l),c] * [odd(i) == odd(k)] (spec.md §4.C/§4.E's
// tdm_compatible_polarity), adding the variable and its five
// constraints the first time a given (i,k,l,c) combination is
// requested and reusing it on repeat lookups via cache. Grounded on
// create_tdm_compatible_polarity_decisions: i is the current link's tx
// site, k the interfering path's tx site, l the site k actually serves
// during the tdm fraction being tested.
func (n *NetworkOptimization) tdmCompatiblePolarity(cache map[string]int, i, k, l string, c int) (int, bool, error) {
	cacheKey := i + ">" + k + ">" + l + ",c" + itoa(c)
	if v, ok := cache[cacheKey]; ok {
		return v, true, nil
	}
	oi, oiOK := n.OddVar[i]
	ok2, okOK := n.OddVar[k]
	tdmVars, tdmOK := n.TDMVar[pairKey(k, l)]
	if !oiOK || !okOK || !tdmOK {
		return 0, false, nil
	}
	tdmVar, haveChan := tdmVars[c]
	if !haveChan {
		return 0, false, nil
	}

	v, err := n.Prob.AddVariable("tdm_compat["+cacheKey+"]", solver.Continuous, 0, 1)
	if err != nil {
		return 0, false, err
	}
	constraints := []struct {
		name  string
		terms []solver.Term
		op    solver.RelOp
		rhs   float64
	}{
		{"tdm_compat_lo1[" + cacheKey + "]", []solver.Term{term(v, 1), term(ok2, -1), term(oi, 1)}, solver.LessEq, 1},
		{"tdm_compat_lo2[" + cacheKey + "]", []solver.Term{term(v, 1), term(ok2, 1), term(oi, -1)}, solver.LessEq, 1},
		{"tdm_compat_lo3[" + cacheKey + "]", []solver.Term{term(v, 1), term(tdmVar, -1)}, solver.LessEq, 0},
		{"tdm_compat_hi1[" + cacheKey + "]", []solver.Term{term(v, 1), term(tdmVar, -1), term(ok2, -1), term(oi, -1)}, solver.GreaterEq, -2},
		{"tdm_compat_hi2[" + cacheKey + "]", []solver.Term{term(v, 1), term(tdmVar, -1), term(oi, 1), term(ok2, 1)}, solver.GreaterEq, 0},
	}
	for _, c := range constraints {
		if _, err := n.Prob.AddConstraint(c.name, solver.Constraint{Expr: solver.Expr{Terms: c.terms}, Op: c.op, RHS: c.rhs}); err != nil {
			return 0, false, err
		}
	}
	cache[cacheKey] = v
	return v, true, nil
}

// CostExpr builds the cost expression spec.md §4.E defines:
// site capex (skipping existing sites, which carry no CostSite entry) +
// node capex charged once per node via its first sector's variable.
func (n *NetworkOptimization) CostExpr() solver.Expr {
	var terms []solver.Term
	for id, capex := range n.Idx.CostSite {
		if v, ok := n.SiteVar[id]; ok && capex != 0 {
			terms = append(terms, term(v, capex))
		}
	}
	seen := make(map[string]bool)
	for secID, nodeKey := range n.Idx.NodeOfSector {
		if seen[nodeKey] {
			continue
		}
		seen[nodeKey] = true
		capex := n.Idx.CostNode[nodeKey]
		if capex == 0 {
			continue
		}
		if v, ok := n.sectorChannelVar(secID, 0); ok {
			terms = append(terms, term(v, capex))
		}
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].VarIndex < terms[j].VarIndex })
	return solver.Expr{Terms: terms}
}

// AddBudgetConstraint wires cost <= budget.
func (n *NetworkOptimization) AddBudgetConstraint(budget float64) error {
	idx, err := n.Prob.AddConstraint("budget", solver.Constraint{Expr: n.CostExpr(), Op: solver.LessEq, RHS: budget})
	if err != nil {
		return err
	}
	n.BudgetConstraintIdx = idx
	return nil
}

// AddCoverageConstraint wires sum(shortage) <= (1 - coveragePct) *
// total_demand as a separable constraint the driver can delete and
// re-add at a lower threshold (spec.md §4.F.2).
func (n *NetworkOptimization) AddCoverageConstraint(coveragePct float64) error {
	var terms []solver.Term
	var total float64
	for _, d := range n.Idx.Demands {
		terms = append(terms, term(n.ShortageVar[d], 1))
		total += n.Idx.DemandAtLocation[d]
	}
	idx, err := n.Prob.AddConstraint("coverage", solver.Constraint{
		Expr: solver.Expr{Terms: terms}, Op: solver.LessEq, RHS: (1 - coveragePct) * total,
	})
	if err != nil {
		return err
	}
	n.CoverageConstraintIdx = idx
	return nil
}

// SumShortageObjective returns min sum(shortage[d]).
func (n *NetworkOptimization) SumShortageObjective() solver.Expr {
	var terms []solver.Term
	for _, d := range n.Idx.Demands {
		terms = append(terms, term(n.ShortageVar[d], 1))
	}
	return solver.Expr{Terms: terms}
}

// CommonBandwidthObjective returns min(-buffer) weighted by the number
// of connected demand sites, per spec.md §4.E.
func (n *NetworkOptimization) CommonBandwidthObjective() solver.Expr {
	weight := float64(len(n.Idx.Demands))
	if weight == 0 {
		weight = 1
	}
	return solver.Expr{Terms: []solver.Term{{VarIndex: n.BufferVar, Coeff: -weight}}}
}

// LinkWeight returns w = 1 + (max_distance - distance) / max_distance, the
// shorter-link preference spec.md §4.E's "Link weights" paragraph defines.
func LinkWeight(distanceKm, maxDistanceKm float64) float64 {
	if maxDistanceKm <= 0 {
		return 1
	}
	return 1 + (maxDistanceKm-distanceKm)/maxDistanceKm
}
