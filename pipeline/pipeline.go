// Package pipeline orders the MILP stage solves spec.md §4.G names into
// one driver run: POP proposal, unreachable-component pruning, min-cost
// with coverage relaxation, redundancy (legacy max-coverage or the
// modern node-capacitated heuristic), min-interference, sector
// re-orientation, and the post-design max-flow LP. It owns the Topology
// for the run's duration, matching the teacher's runtime.go shape (one
// struct owning every stage's dependencies, one Run method driving them
// in order) rather than a free function chain.
package pipeline

import (
	"context"
	"time"

	"github.com/latticeforge/meshplanner/config"
	"github.com/latticeforge/meshplanner/graphutil"
	"github.com/latticeforge/meshplanner/interference"
	"github.com/latticeforge/meshplanner/internal/logging"
	"github.com/latticeforge/meshplanner/milp"
	"github.com/latticeforge/meshplanner/model"
	"github.com/latticeforge/meshplanner/plannererr"
	"github.com/latticeforge/meshplanner/solver"
	"github.com/latticeforge/meshplanner/topology"
)

// coverageStepSize and coverageThreshold mirror the original planner's
// min-cost relaxation schedule (spec.md §4.F.2): retry from 100% down to
// 50% coverage in 10-point steps before giving up.
const (
	coverageStepSize  = 0.1
	coverageThreshold = 0.5
)

// StageMetrics is the minimal observability hook the driver reports
// through; nil fields are simply skipped.
type StageMetrics interface {
	ObserveStage(stage, status string, seconds float64)
}

// Driver runs the full optimization pipeline against one Topology.
type Driver struct {
	Log      logging.Logger
	Metrics  StageMetrics
	NewProb  func() solver.Problem
}

// NewDriver builds a Driver, defaulting Log to a no-op logger when nil.
func NewDriver(log logging.Logger, metrics StageMetrics, newProb func() solver.Problem) *Driver {
	if log == nil {
		log = logging.Noop()
	}
	return &Driver{Log: log, Metrics: metrics, NewProb: newProb}
}

// Result is the terminal state the driver hands back to the analyzer.
type Result struct {
	FinalFlow    map[string]float64
	CommonBuffer float64
}

func (d *Driver) observe(ctx context.Context, stage string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	if d.Metrics != nil {
		d.Metrics.ObserveStage(stage, status, time.Since(start).Seconds())
	}
}

// Run executes every stage in spec.md §4.G's order against topo,
// mutating it in place, and returns the post-design flow solution.
func (d *Driver) Run(ctx context.Context, topo *topology.Topology, opt config.OptimizerParams) (*Result, error) {
	if err := preOptCheck(topo, opt); err != nil {
		return nil, err
	}

	if opt.NumberOfExtraPOPs > 0 {
		start := time.Now()
		err := d.runPopProposal(topo, opt)
		d.observe(ctx, "pop_proposal", start, err)
		if err != nil {
			d.Log.Warn(ctx, "pop proposal did not improve the topology, continuing without extra POPs", logging.String("error", err.Error()))
		}
	}

	if err := d.markUnreachable(ctx, topo, opt); err != nil {
		return nil, err
	}

	idx, err := milp.BuildIndex(topo, opt)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	minCostResult, err := d.RunMinCostWithFallback(topo, opt, idx)
	d.observe(ctx, "min_cost", start, err)
	if err != nil {
		return nil, err
	}
	applySiteSectorPolarityDecisions(topo, minCostResult.Model)
	applyLinkDecisionsFromFlow(topo, minCostResult.Model.Idx, minCostResult.Flow)

	idx, err = milp.BuildIndex(topo, opt)
	if err != nil {
		return nil, err
	}
	if opt.EnableLegacyRedundancyMethod {
		start = time.Now()
		maxCovResult, covErr := milp.RunMaxCoverage(topo, opt, idx, adversarialLinkCount(idx, opt), d.NewProb)
		d.observe(ctx, "max_coverage", start, covErr)
		if covErr != nil {
			d.Log.Warn(ctx, "max coverage pass did not improve the topology, keeping the min-cost network", logging.String("error", covErr.Error()))
		} else {
			applyLinkDecisionsFromFlow(topo, idx, maxCovResult.Flow)
		}
	} else if opt.RedundancyLevel != model.RedundancyNone {
		start = time.Now()
		redResult, redErr := milp.RunRedundancy(topo, opt, idx, d.NewProb)
		d.observe(ctx, "redundancy", start, redErr)
		if redErr != nil {
			d.Log.Warn(ctx, "redundancy pass did not improve the topology, keeping the min-cost network", logging.String("error", redErr.Error()))
		} else {
			applyLinkDecisionsFromFlow(topo, idx, redResult.Flow)
		}
	}

	idx, err = milp.BuildIndex(topo, opt)
	if err != nil {
		return nil, err
	}
	engine := interference.NewEngine(topo)
	rslMap := engine.ComputeLinkRSLMap(engine.ComputeLinkNetGainMap())

	activeSites := activeSiteSet(topo)
	start = time.Now()
	interferenceResult, err := milp.RunMinInterference(topo, opt, idx, activeSites, rslMap, d.NewProb)
	d.observe(ctx, "min_interference", start, err)
	if err != nil {
		return nil, plannererr.Optimizer(plannererr.CodeSolverTimeout, "min_interference", "min-interference solve failed", err)
	}
	applyActiveLinkDecisions(topo, interferenceResult.ActiveLinks)
	engine.AnalyzeInterference(rslMap)

	reorientSectors(topo)
	demoteUnpoweredSites(topo)

	idx, err = milp.BuildIndex(topo, opt)
	if err != nil {
		return nil, err
	}
	start = time.Now()
	flowResult, err := milp.RunMaxFlow(topo, opt, idx, activeSiteSet(topo), interferenceResult.ActiveLinks, d.NewProb)
	d.observe(ctx, "max_flow", start, err)
	if err != nil {
		return nil, err
	}

	return &Result{FinalFlow: flowResult.Flow, CommonBuffer: flowResult.CommonBuffer}, nil
}

// preOptCheck enforces spec.md §4.G's entry guard: a topology with no
// POP and no requested extra POPs can never be planned.
func preOptCheck(topo *topology.Topology, opt config.OptimizerParams) error {
	if opt.NumberOfExtraPOPs > 0 {
		return nil
	}
	for _, s := range topo.Sites() {
		if s.SiteType == model.SiteTypePOP {
			return nil
		}
	}
	return plannererr.Topology(plannererr.CodeInfeasibleTopology,
		"the input topology must contain at least one POP or set number_of_extra_pops > 0", nil)
}

func (d *Driver) runPopProposal(topo *topology.Topology, opt config.OptimizerParams) error {
	result, err := milp.RunPopProposal(topo, opt, opt.NumberOfExtraPOPs, d.NewProb)
	if err != nil {
		return err
	}
	return milp.ApplyPopProposal(topo, result)
}

// markUnreachable implements spec.md §4.G step 3: any site not reachable
// from a POP over backhaul edges, or reachable only beyond
// maximum_number_hops, is marked UNREACHABLE (unless immutable),
// cascading to its sectors and incident links.
func (d *Driver) markUnreachable(ctx context.Context, topo *topology.Topology, opt config.OptimizerParams) error {
	digraph, err := graphutil.BuildDigraph(topo, graphutil.ActiveOrCandidate)
	if err != nil {
		return err
	}
	hops := digraph.HopsFromPOP()

	for _, s := range topo.Sites() {
		if s.SiteType == model.SiteTypePOP {
			continue
		}
		h, reachable := hops[s.ID]
		if reachable && h <= opt.MaximumNumberHops {
			continue
		}
		demoteSiteToUnreachable(topo, s)
	}
	return nil
}

func demoteSiteToUnreachable(topo *topology.Topology, s *model.Site) {
	if !s.Status.Immutable() {
		s.Status = model.StatusUnreachable
	}
	for _, sec := range topo.SectorsOf(s.ID) {
		if !sec.Status.Immutable() {
			sec.Status = model.StatusUnreachable
		}
	}
	for _, l := range topo.Links() {
		if l.TxSiteID != s.ID && l.RxSiteID != s.ID {
			continue
		}
		if !l.Status.Immutable() {
			l.Status = model.StatusUnreachable
		}
	}
}

// adversarialLinkCount sizes the legacy redundancy pass's forbidden-edge
// set as a fraction of the active backhaul link count (spec.md §4.F.3,
// backhaul_link_redundancy_ratio).
func adversarialLinkCount(idx *milp.Index, opt config.OptimizerParams) int {
	backhaul := 0
	for _, linkID := range idx.LinkIDs {
		if l := idx.Link(linkID); l != nil && l.Status.Active() && l.LinkType == model.LinkTypeWirelessBackhaul {
			backhaul++
		}
	}
	n := int(float64(backhaul) * opt.BackhaulLinkRedundancyRatio)
	if n < 1 {
		n = 1
	}
	return n
}

func activeSiteSet(topo *topology.Topology) map[string]bool {
	active := make(map[string]bool)
	for _, s := range topo.Sites() {
		if s.Status.Active() {
			active[s.ID] = true
		}
	}
	return active
}
