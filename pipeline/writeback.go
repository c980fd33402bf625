package pipeline

import (
	"context"

	"github.com/latticeforge/meshplanner/config"
	"github.com/latticeforge/meshplanner/geo"
	"github.com/latticeforge/meshplanner/internal/logging"
	"github.com/latticeforge/meshplanner/milp"
	"github.com/latticeforge/meshplanner/model"
	"github.com/latticeforge/meshplanner/topology"
)

// RunMinCostWithFallback retries RunMinCost at decreasing coverage
// targets (spec.md §4.F.2, §4.G step 5): 1.0, 0.9, ... down to 0.5,
// accepting the first feasible solution and returning the infeasibility
// error from the final (lowest) attempt if every target fails.
func (d *Driver) RunMinCostWithFallback(topo *topology.Topology, opt config.OptimizerParams, idx *milp.Index) (*milp.MinCostResult, error) {
	ctx := context.Background()
	var lastErr error
	for pct := 1.0; pct >= coverageThreshold-1e-9; pct -= coverageStepSize {
		result, err := milp.RunMinCost(topo, opt, idx, pct, d.NewProb)
		if err == nil {
			return result, nil
		}
		if !milp.IsInfeasibleCoverage(err) {
			return nil, err
		}
		lastErr = err
		d.Log.Warn(ctx, "min cost infeasible at coverage target, relaxing", logging.Any("coverage_pct", pct))
	}
	return nil, lastErr
}

// applySiteSectorPolarityDecisions writes the min-cost model's site,
// sector, odd/polarity decisions back onto topo (spec.md §4.G write-back
// rule): immutable or UNREACHABLE entities are untouched; everything
// else becomes PROPOSED when selected, CANDIDATE otherwise.
func applySiteSectorPolarityDecisions(topo *topology.Topology, n *milp.NetworkOptimization) {
	for siteID, v := range n.SiteVar {
		site := topo.GetSite(siteID)
		if site == nil || site.Status.Immutable() || site.Status == model.StatusUnreachable {
			continue
		}
		val, err := n.Prob.Solution(v)
		if err != nil {
			continue
		}
		if val > 0.5 {
			_ = topo.SetSiteStatus(siteID, model.StatusProposed)
		} else {
			_ = topo.SetSiteStatus(siteID, model.StatusCandidate)
		}
	}

	for secID, channels := range n.SectorVar {
		sec := topo.GetSector(secID)
		if sec == nil || sec.Status.Immutable() || sec.Status == model.StatusUnreachable {
			continue
		}
		active := false
		for channel, v := range channels {
			val, err := n.Prob.Solution(v)
			if err != nil {
				continue
			}
			if val > 0.5 {
				active = true
				sec.Channel = channel
				break
			}
		}
		if active {
			sec.Status = model.StatusProposed
		} else {
			sec.Status = model.StatusCandidate
		}
	}

	for siteID, v := range n.OddVar {
		site := topo.GetSite(siteID)
		if site == nil || site.Status.Immutable() || site.Status == model.StatusUnreachable {
			continue
		}
		val, err := n.Prob.Solution(v)
		if err != nil {
			continue
		}
		if val > 0.5 {
			site.Polarity = model.PolarityOdd
		} else {
			site.Polarity = model.PolarityEven
		}
	}
}

// applyLinkDecisionsFromFlow marks every wireless link PROPOSED when it
// carries nonzero (loop-pruned) flow and CANDIDATE otherwise, honoring
// immutable/unreachable links.
func applyLinkDecisionsFromFlow(topo *topology.Topology, idx *milp.Index, flow map[string]float64) {
	for key, linkID := range idx.LinkIDs {
		l := topo.GetLink(linkID)
		if l == nil || !l.IsWireless || l.Status.Immutable() || l.Status == model.StatusUnreachable {
			continue
		}
		if flow[key] > 1e-6 {
			l.Status = model.StatusProposed
			l.IsRedundant = false
		} else {
			l.Status = model.StatusCandidate
			l.IsRedundant = true
		}
	}
	demoteUnpoweredSites(topo)
}

// applyActiveLinkDecisions writes the min-interference stage's
// active_link decisions back onto topo: a link absent from activeLinks
// is demoted to CANDIDATE and marked redundant.
func applyActiveLinkDecisions(topo *topology.Topology, activeLinks map[string]bool) {
	for _, l := range topo.Links() {
		if !l.IsWireless || l.Status.Immutable() || l.Status == model.StatusUnreachable {
			continue
		}
		if activeLinks[l.ID] {
			l.Status = model.StatusProposed
			l.IsRedundant = false
		} else {
			l.Status = model.StatusCandidate
			l.IsRedundant = true
		}
	}
	demoteUnpoweredSites(topo)
}

// demoteUnpoweredSites implements the write-back cascade rule: a site
// with no active incident link is demoted to CANDIDATE (unless
// immutable), and a link whose endpoint was just demoted is demoted too.
// The cascade is applied to a fixed point since one demotion can trigger
// another across a chain.
func demoteUnpoweredSites(topo *topology.Topology) {
	for {
		changed := false
		active := make(map[string]bool)
		for _, l := range topo.Links() {
			if l.IsWireless && l.Status.Active() {
				active[l.TxSiteID] = true
				active[l.RxSiteID] = true
			}
		}
		for _, s := range topo.Sites() {
			if s.SiteType == model.SiteTypePOP {
				continue
			}
			if s.Status.Immutable() || s.Status == model.StatusUnreachable {
				continue
			}
			if s.Status == model.StatusProposed && !active[s.ID] {
				_ = topo.SetSiteStatus(s.ID, model.StatusCandidate)
				changed = true
			}
		}
		for _, l := range topo.Links() {
			if l.Status.Immutable() || l.Status == model.StatusUnreachable {
				continue
			}
			tx, rx := topo.GetSite(l.TxSiteID), topo.GetSite(l.RxSiteID)
			if tx == nil || rx == nil || tx.Status == model.StatusCandidate || rx.Status == model.StatusCandidate {
				if l.Status == model.StatusProposed {
					l.Status = model.StatusCandidate
					l.IsRedundant = true
					changed = true
				}
			}
		}
		if !changed {
			return
		}
	}
}

// reorientSectors implements spec.md §4.G step 8: recompute each active
// sector's azimuth as the bearing toward its active neighbour set's
// centroid, subject to the device's horizontal scan range around the
// sector's original boresight. Links whose geometry no longer lines up
// after re-orientation are not re-validated here; the subsequent
// max-flow pass only consumes status, which is untouched by this step.
func reorientSectors(topo *topology.Topology) {
	for _, site := range topo.Sites() {
		if site.Status.Immutable() {
			continue
		}
		neighbours := activeNeighbourPoints(topo, site)
		if len(neighbours) == 0 {
			continue
		}
		centroid := centroidOf(neighbours)
		target := geo.BearingDeg(
			geo.Point{LatitudeDeg: site.Location.LatitudeDeg, LongitudeDeg: site.Location.LongitudeDeg, AltitudeM: site.Location.AltitudeM},
			centroid,
		)
		for _, sec := range topo.SectorsOf(site.ID) {
			if sec.Status.Immutable() || !sec.Status.Active() {
				continue
			}
			sec.AntAzimuthDeg = clampWithinScanRange(sec.AntAzimuthDeg, target, site.Device.Sector.HorizontalScanRangeDeg)
		}
	}
}

func activeNeighbourPoints(topo *topology.Topology, site *model.Site) []geo.Point {
	var pts []geo.Point
	for _, l := range topo.Links() {
		if !l.IsWireless || !l.Status.Active() {
			continue
		}
		var otherID string
		switch site.ID {
		case l.TxSiteID:
			otherID = l.RxSiteID
		case l.RxSiteID:
			otherID = l.TxSiteID
		default:
			continue
		}
		other := topo.GetSite(otherID)
		if other == nil {
			continue
		}
		pts = append(pts, geo.Point{LatitudeDeg: other.Location.LatitudeDeg, LongitudeDeg: other.Location.LongitudeDeg, AltitudeM: other.Location.AltitudeM})
	}
	return pts
}

func centroidOf(pts []geo.Point) geo.Point {
	var lat, lon, alt float64
	for _, p := range pts {
		lat += p.LatitudeDeg
		lon += p.LongitudeDeg
		alt += p.AltitudeM
	}
	n := float64(len(pts))
	return geo.Point{LatitudeDeg: lat / n, LongitudeDeg: lon / n, AltitudeM: alt / n}
}

// clampWithinScanRange keeps the re-oriented azimuth within
// scanRangeDeg/2 of the sector's current boresight, falling back to the
// unclamped target when no range is configured.
func clampWithinScanRange(current, target, scanRangeDeg float64) float64 {
	if scanRangeDeg <= 0 {
		return target
	}
	delta := target - current
	for delta > 180 {
		delta -= 360
	}
	for delta < -180 {
		delta += 360
	}
	half := scanRangeDeg / 2
	if delta > half {
		delta = half
	} else if delta < -half {
		delta = -half
	}
	result := current + delta
	for result < 0 {
		result += 360
	}
	for result >= 360 {
		result -= 360
	}
	return result
}
