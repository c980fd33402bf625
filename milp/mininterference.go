package milp

import (
	"math"
	"sort"

	"github.com/latticeforge/meshplanner/config"
	"github.com/latticeforge/meshplanner/model"
	"github.com/latticeforge/meshplanner/solver"
	"github.com/latticeforge/meshplanner/topology"
)

// MinInterferenceResult is the final active-link/channel decision.
type MinInterferenceResult struct {
	ActiveLinks map[string]bool // link id -> selected
	Flow        map[string]float64
}

// RunMinInterference decides the final active wireless-link set and
// channel assignment (spec.md §4.F.5). activeSites is the site set the
// prior stages decided (fixed here). rslMap is the interference
// engine's aggregated per-link RSL-interference reading, kept around for
// the caller's post-solve interference.Engine.AnalyzeInterference report
// only: the SINR/capacity constraints built here derive their own
// per-interferer RSL terms directly from the candidate topology, gated
// by the tdm_compatible_polarity decision variables, since polarity and
// channel are themselves decisions at this stage and cannot be folded
// into a precomputed constant the way the site-deciding stages' inputs can.
func RunMinInterference(topo *topology.Topology, opt config.OptimizerParams, idx *Index, activeSites map[string]bool, rslMap map[string]float64, newProb func() solver.Problem) (*MinInterferenceResult, error) {
	prob := newProb()
	prob.SetName("min_interference")
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

	if err := n.AddFlowBalanceConstraints(false); err != nil {
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

	var maxDistance float64
	for _, l := range topo.Links() {
		if l.DistanceKm > maxDistance {
			maxDistance = l.DistanceKm
		}
	}

	compatCache := make(map[string]int)
	weights := make(map[string]float64)
	for key, linkID := range idx.LinkIDs {
		if idx.WiredLinks[key] {
			continue
		}
		l := idx.Link(linkID)
		if l == nil {
			continue
		}
		v, err := prob.AddVariable("active_link["+linkID+"]", solver.Binary, 0, 1)
		if err != nil {
			return nil, err
		}
		n.ActiveLinkVar[linkID] = v
		weights[linkID] = LinkWeight(l.DistanceKm, maxDistance)

		secPair := idx.LinkToSectors[linkID]
		for _, secID := range secPair {
			var terms []solver.Term
			for c := 0; c < n.NumberOfChannels; c++ {
				if sv, ok := n.sectorChannelVar(secID, c); ok {
					terms = append(terms, term(sv, 1))
				}
			}
			terms = append(terms, term(v, -1))
			if _, err := prob.AddConstraint("active_requires_sector["+linkID+","+secID+"]", solver.Constraint{
				Expr: solver.Expr{Terms: terms}, Op: solver.GreaterEq, RHS: 0,
			}); err != nil {
				return nil, err
			}
		}
		// Constraint 11: both endpoints of an active link sit on the SAME
		// channel (the sum-form above only forces each endpoint onto SOME
		// channel independently).
		if len(secPair) == 2 {
			for c := 0; c < n.NumberOfChannels; c++ {
				svI, okI := n.sectorChannelVar(secPair[0], c)
				svJ, okJ := n.sectorChannelVar(secPair[1], c)
				if !okI || !okJ {
					continue
				}
				if _, err := prob.AddConstraint("active_same_channel_fwd["+linkID+",c"+itoa(c)+"]", solver.Constraint{
					Expr: solver.Expr{Terms: []solver.Term{term(v, 1), term(svI, -1), term(svJ, 1)}}, Op: solver.LessEq, RHS: 1,
				}); err != nil {
					return nil, err
				}
				if _, err := prob.AddConstraint("active_same_channel_rev["+linkID+",c"+itoa(c)+"]", solver.Constraint{
					Expr: solver.Expr{Terms: []solver.Term{term(v, 1), term(svJ, -1), term(svI, 1)}}, Op: solver.LessEq, RHS: 1,
				}); err != nil {
					return nil, err
				}
			}
		}

		pairs := interferingLinkPairs(idx, linkID)
		if err := n.addExactCapacityConstraints(linkID, key, pairs, compatCache); err != nil {
			return nil, err
		}
	}

	if err := n.AddP2MPActiveLinkConstraints(); err != nil {
		return nil, err
	}
	if err := n.AddCNIncomingActiveLinkConstraint(); err != nil {
		return nil, err
	}

	if err := addSymmetryConstraints(prob, idx, n.ActiveLinkVar); err != nil {
		return nil, err
	}
	if err := addDeploymentRuleConstraints(n, n.ActiveLinkVar); err != nil {
		return nil, err
	}

	coverage := n.SumShortageObjective()
	var objTerms []solver.Term
	for _, t := range coverage.Terms {
		objTerms = append(objTerms, term(t.VarIndex, opt.POPCapacityGbps*t.Coeff))
	}
	for linkID, v := range n.ActiveLinkVar {
		objTerms = append(objTerms, term(v, -weights[linkID]))
	}
	prob.SetObjective(solver.Expr{Terms: objTerms}, solver.Minimize)
	prob.SetLimits(solver.Limits{MIPRelStop: opt.InterferenceRelStop, MaxTimeSeconds: float64(opt.InterferenceMaxTimeMin) * 60, Threads: opt.NumThreads})
	if err := prob.Solve(); err != nil {
		return nil, err
	}

	active := make(map[string]bool, len(n.ActiveLinkVar))
	for linkID, v := range n.ActiveLinkVar {
		val, _ := prob.Solution(v)
		active[linkID] = val > 0.5
	}
	flow := make(map[string]float64, len(n.FlowVar))
	for key, v := range n.FlowVar {
		val, _ := prob.Solution(v)
		flow[key] = val
	}
	flow = PruneLoops(idx, flow)

	return &MinInterferenceResult{ActiveLinks: active, Flow: flow}, nil
}

func linearMW(dbm float64) float64 {
	if math.IsInf(dbm, -1) {
		return 0
	}
	return math.Pow(10, dbm/10)
}

// interferingPair is one candidate interfering path for a link's rx
// sector: site k also reaches the rx site (sharing the same rx sector),
// and k's own tx sector additionally serves l during the tdm fraction
// tdm[(k,l)]. RSLLinearMW is the linear RSL the (k, rxSite) candidate
// link's own precomputed budget carries, i.e. the power k would deposit
// on the rx sector if it transmitted there directly.
type interferingPair struct {
	TxInterferer string
	RxInterferer string
	RSLLinearMW  float64
}

// interferingLinkPairs finds every candidate interfering path for
// linkID's receive sector: another tx site k with a candidate link into
// the same rx sector, and that site's other outgoing links (k,l) that
// share k's transmitting sector with the (k, rxSite) link. Grounded on
// get_interferering_links: runs over the static candidate topology, not
// over already-decided active links, since activity is itself a
// decision at this stage.
func interferingLinkPairs(idx *Index, linkID string) []interferingPair {
	l := idx.Link(linkID)
	secPair, ok := idx.LinkToSectors[linkID]
	if !ok || l == nil {
		return nil
	}
	rxSector := secPair[1]

	var out []interferingPair
	seen := make(map[string]bool)
	for _, k := range idx.Predecessors[l.RxSiteID] {
		if k == l.TxSiteID {
			continue
		}
		inLinkID, ok := idx.LinkIDs[pairKey(k, l.RxSiteID)]
		if !ok {
			continue
		}
		inSecPair, ok := idx.LinkToSectors[inLinkID]
		if !ok || inSecPair[1] != rxSector {
			continue
		}
		inLink := idx.Link(inLinkID)
		if inLink == nil {
			continue
		}
		losSector := inSecPair[0]
		rslLinear := linearMW(inLink.Budget.RSLdBm)

		for _, rxInterferer := range idx.Successors[k] {
			if rxInterferer == l.RxSiteID {
				continue
			}
			outLinkID, ok := idx.LinkIDs[pairKey(k, rxInterferer)]
			if !ok {
				continue
			}
			outSecPair, ok := idx.LinkToSectors[outLinkID]
			if !ok || outSecPair[0] != losSector {
				continue
			}
			dedupe := k + ">" + rxInterferer
			if seen[dedupe] {
				continue
			}
			seen[dedupe] = true
			out = append(out, interferingPair{TxInterferer: k, RxInterferer: rxInterferer, RSLLinearMW: rslLinear})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TxInterferer != out[j].TxInterferer {
			return out[i].TxInterferer < out[j].TxInterferer
		}
		return out[i].RxInterferer < out[j].RxInterferer
	})
	return out
}

// addExactCapacityConstraints wires the per-MCS-class convex combination
// spec.md §4.F.5 names: binary link_capacity_var[(i,j,c,k)] select at
// most one MCS class per channel, 1/SINR <= sum_k (1/SNR_k) *
// link_capacity_var with the interference term carried as sum
// rsl_interference * tdm_compatible_polarity, flow <= sum capacity_k *
// link_capacity_var, and (when multiple channels exist) capacity is
// confined to at most one channel per link. Grounded on
// create_exact_capacity_constraints.
func (n *NetworkOptimization) addExactCapacityConstraints(linkID, key string, pairs []interferingPair, compatCache map[string]int) error {
	l := n.Idx.Link(linkID)
	txSite := l.TxSiteID

	var noiseDBm float64
	if rxSite := n.Idx.Site(l.RxSiteID); rxSite != nil {
		noiseDBm = rxSite.Device.Sector.ThermalNoisePowerDBm + rxSite.Device.Sector.NoiseFigureDB
	}
	noiseLinear := linearMW(noiseDBm)
	rslCurrent := linearMW(l.Budget.RSLdBm)
	if rslCurrent <= 0 {
		rslCurrent = 1e-12
	}
	var maxNeighboringRSL float64
	for _, p := range pairs {
		maxNeighboringRSL += p.RSLLinearMW
	}
	zeroInverse := (maxNeighboringRSL + noiseLinear) / rslCurrent

	classes := model.DefaultMCSClasses()
	flowCapTerms := []solver.Term{term(n.FlowVar[key], 1)}
	var zeroRowVars []int

	for c := 0; c < n.NumberOfChannels; c++ {
		zv, err := n.Prob.AddVariable("link_capacity["+linkID+",c"+itoa(c)+",zero]", solver.Binary, 0, 1)
		if err != nil {
			return err
		}
		classVars := []int{zv}
		sinrTerms := []solver.Term{term(zv, -zeroInverse)}

		for _, mc := range classes {
			cv, err := n.Prob.AddVariable("link_capacity["+linkID+",c"+itoa(c)+",l"+itoa(mc.Level)+"]", solver.Binary, 0, 1)
			if err != nil {
				return err
			}
			classVars = append(classVars, cv)
			snrLinear := math.Pow(10, mc.SNRThresholdDB/10)
			sinrTerms = append(sinrTerms, term(cv, -1/snrLinear))
			flowCapTerms = append(flowCapTerms, term(cv, -mc.CapacityGbps))
		}

		constraintTerms := append([]solver.Term{}, sinrTerms...)
		for _, p := range pairs {
			zv2, ok, err := n.tdmCompatiblePolarity(compatCache, txSite, p.TxInterferer, p.RxInterferer, c)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			constraintTerms = append(constraintTerms, term(zv2, p.RSLLinearMW/rslCurrent))
		}
		if _, err := n.Prob.AddConstraint("sinr_exact["+linkID+",c"+itoa(c)+"]", solver.Constraint{
			Expr: solver.Expr{Terms: constraintTerms}, Op: solver.LessEq, RHS: -noiseLinear / rslCurrent,
		}); err != nil {
			return err
		}

		var oneTerms []solver.Term
		for _, cv := range classVars {
			oneTerms = append(oneTerms, term(cv, 1))
		}
		if _, err := n.Prob.AddConstraint("link_capacity_one["+linkID+",c"+itoa(c)+"]", solver.Constraint{
			Expr: solver.Expr{Terms: oneTerms}, Op: solver.LessEq, RHS: 1,
		}); err != nil {
			return err
		}

		if n.NumberOfChannels > 1 {
			if tdmVar, ok := n.TDMVar[key][c]; ok {
				if _, err := n.Prob.AddConstraint("tdm_requires_capacity["+linkID+",c"+itoa(c)+"]", solver.Constraint{
					Expr: solver.Expr{Terms: []solver.Term{term(tdmVar, 1), term(zv, 1)}}, Op: solver.LessEq, RHS: 1,
				}); err != nil {
					return err
				}
			}
			zeroRowVars = append(zeroRowVars, zv)
		}
	}

	if n.NumberOfChannels > 1 && len(zeroRowVars) > 0 {
		var zeroTerms []solver.Term
		for _, zv := range zeroRowVars {
			zeroTerms = append(zeroTerms, term(zv, 1))
		}
		if _, err := n.Prob.AddConstraint("single_channel_capacity["+linkID+"]", solver.Constraint{
			Expr: solver.Expr{Terms: zeroTerms}, Op: solver.GreaterEq, RHS: float64(n.NumberOfChannels - 1),
		}); err != nil {
			return err
		}
	}

	_, err := n.Prob.AddConstraint("capacity_from_mcs["+linkID+"]", solver.Constraint{
		Expr: solver.Expr{Terms: flowCapTerms}, Op: solver.LessEq, RHS: 0,
	})
	return err
}

// addSymmetryConstraints wires constraint 9: for wireless bidirectional
// links, active_link[(i,j)] = active_link[(j,i)].
func addSymmetryConstraints(prob solver.Problem, idx *Index, activeLinkVar map[string]int) error {
	seen := make(map[string]bool)
	for linkID, v := range activeLinkVar {
		l := idx.Link(linkID)
		if l == nil || seen[linkID] {
			continue
		}
		reverseID := model.LinkID(l.RxSiteID, l.TxSiteID)
		rv, ok := activeLinkVar[reverseID]
		if !ok || seen[reverseID] {
			continue
		}
		seen[linkID], seen[reverseID] = true, true
		if _, err := prob.AddConstraint("symmetry["+linkID+"]", solver.Constraint{
			Expr: solver.Expr{Terms: []solver.Term{{VarIndex: v, Coeff: 1}, {VarIndex: rv, Coeff: -1}}},
			Op:   solver.Equal, RHS: 0,
		}); err != nil {
			return err
		}
	}
	return nil
}

// deploymentLinkVar returns the AND-linearized indicator "linkID is both
// active and using channel c", creating the variable and its three
// constraints the first time a given (linkID,c) pair is requested.
// Needed so deployment-rule exclusions only fire between links actually
// sharing a channel (spec.md §4.F.5's multi-channel deployment_link form).
func deploymentLinkVar(n *NetworkOptimization, cache map[string]int, linkID string, activeVar, c int) (int, error) {
	cacheKey := linkID + ",c" + itoa(c)
	if v, ok := cache[cacheKey]; ok {
		return v, nil
	}
	secPair, ok := n.Idx.LinkToSectors[linkID]
	if !ok {
		return activeVar, nil
	}
	sv, ok := n.sectorChannelVar(secPair[0], c)
	if !ok {
		return activeVar, nil
	}
	v, err := n.Prob.AddVariable("deployment_link["+cacheKey+"]", solver.Binary, 0, 1)
	if err != nil {
		return 0, err
	}
	if _, err := n.Prob.AddConstraint("deployment_link_le_active["+cacheKey+"]", solver.Constraint{
		Expr: solver.Expr{Terms: []solver.Term{term(v, 1), term(activeVar, -1)}}, Op: solver.LessEq, RHS: 0,
	}); err != nil {
		return 0, err
	}
	if _, err := n.Prob.AddConstraint("deployment_link_le_channel["+cacheKey+"]", solver.Constraint{
		Expr: solver.Expr{Terms: []solver.Term{term(v, 1), term(sv, -1)}}, Op: solver.LessEq, RHS: 0,
	}); err != nil {
		return 0, err
	}
	if _, err := n.Prob.AddConstraint("deployment_link_ge["+cacheKey+"]", solver.Constraint{
		Expr: solver.Expr{Terms: []solver.Term{term(v, 1), term(activeVar, -1), term(sv, -1)}}, Op: solver.GreaterEq, RHS: -1,
	}); err != nil {
		return 0, err
	}
	cache[cacheKey] = v
	return v, nil
}

// addDeploymentRuleConstraints wires the deployment-rule exclusions
// spec.md §4.F.5 names: two links sharing a tx site cannot both be
// active on the same channel if their azimuths are within
// diff_sector_angle_limit, or if their lengths differ by more than
// near_far_length_ratio within near_far_angle_limit. With a single
// channel this collapses to a direct active_link exclusion; with
// multiple channels it runs per channel through the deployment_link
// AND-indicator, since links on different channels do not conflict.
func addDeploymentRuleConstraints(n *NetworkOptimization, activeLinkVar map[string]int) error {
	idx, opt := n.Idx, n.Opt
	bySite := make(map[string][]string)
	for linkID := range activeLinkVar {
		l := idx.Link(linkID)
		if l == nil {
			continue
		}
		bySite[l.TxSiteID] = append(bySite[l.TxSiteID], linkID)
	}
	sites := make([]string, 0, len(bySite))
	for s := range bySite {
		sites = append(sites, s)
	}
	sort.Strings(sites)

	deployCache := make(map[string]int)
	for _, site := range sites {
		linkIDs := bySite[site]
		sort.Strings(linkIDs)
		for i := 0; i < len(linkIDs); i++ {
			for j := i + 1; j < len(linkIDs); j++ {
				a, b := idx.Link(linkIDs[i]), idx.Link(linkIDs[j])
				if a == nil || b == nil {
					continue
				}
				angle := angleDeltaDeg(a.Budget.TxAzimuthDeg, b.Budget.TxAzimuthDeg)
				lengthRatio := 1.0
				if a.DistanceKm > 0 && b.DistanceKm > 0 {
					lengthRatio = math.Max(a.DistanceKm/b.DistanceKm, b.DistanceKm/a.DistanceKm)
				}
				tooClose := angle <= opt.DiffSectorAngleLimitDeg
				nearFar := angle <= opt.NearFarAngleLimitDeg && lengthRatio > opt.NearFarLengthRatio
				if !tooClose && !nearFar {
					continue
				}

				if n.NumberOfChannels <= 1 {
					name := "deployment_exclude[" + linkIDs[i] + "," + linkIDs[j] + "]"
					if _, err := n.Prob.AddConstraint(name, solver.Constraint{
						Expr: solver.Expr{Terms: []solver.Term{term(activeLinkVar[linkIDs[i]], 1), term(activeLinkVar[linkIDs[j]], 1)}},
						Op:   solver.LessEq, RHS: 1,
					}); err != nil {
						return err
					}
					continue
				}

				for c := 0; c < n.NumberOfChannels; c++ {
					dvA, err := deploymentLinkVar(n, deployCache, linkIDs[i], activeLinkVar[linkIDs[i]], c)
					if err != nil {
						return err
					}
					dvB, err := deploymentLinkVar(n, deployCache, linkIDs[j], activeLinkVar[linkIDs[j]], c)
					if err != nil {
						return err
					}
					name := "deployment_exclude[" + linkIDs[i] + "," + linkIDs[j] + ",c" + itoa(c) + "]"
					if _, err := n.Prob.AddConstraint(name, solver.Constraint{
						Expr: solver.Expr{Terms: []solver.Term{term(dvA, 1), term(dvB, 1)}},
						Op:   solver.LessEq, RHS: 1,
					}); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func angleDeltaDeg(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}
