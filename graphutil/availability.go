package graphutil

import (
	"math"
	"math/rand"
	"sort"
	"time"
)

// AvailabilityResult bundles the two measurements compute_availability
// produces: the simulated fraction of time each demand point stayed
// reachable, and the simulated per-edge up-time fraction (for sanity-
// checking against the link_availability_pct input).
type AvailabilityResult struct {
	PerDemandAvailability map[string]float64
	PerEdgeAvailability   map[string]float64
}

type linkAvailState struct {
	linkID     string
	edgeID     string
	up         bool
	mttf       float64 // mean up-duration, in sim-time units
	mttr       float64 // mean down-duration, in sim-time units
	upTime     float64
	totalTime  float64
	nextToggle float64
}

func expSample(rng *rand.Rand, mean float64) float64 {
	if mean <= 0 {
		mean = 1e-9
	}
	u := rng.Float64()
	for u <= 0 {
		u = rng.Float64()
	}
	return -mean * math.Log(u)
}

// ComputeAvailability runs a discrete-event simulation of backhaul link
// up/down transitions: each link's up-time is exponential with mean
// MTTF = availability/100 and its down-time exponential with mean
// MTTR = 1 - MTTF (spec.md §4.D, compute_availability). At every
// transition it recomputes demand reachability from the supersource and
// accumulates per-demand up-time. simLength and the per-link
// availability percentages share a common (caller-defined) time unit;
// timeLimit bounds wall-clock simulation effort, not sim time.
func ComputeAvailability(d *Digraph, linkAvailabilityPct map[string]float64, simLength float64, timeLimit time.Duration, seed int64) AvailabilityResult {
	rng := rand.New(rand.NewSource(seed))
	deadline := time.Now().Add(timeLimit)

	states := make([]*linkAvailState, 0, len(linkAvailabilityPct))
	linkIDs := make([]string, 0, len(linkAvailabilityPct))
	for linkID := range linkAvailabilityPct {
		linkIDs = append(linkIDs, linkID)
	}
	sort.Strings(linkIDs)

	for _, linkID := range linkIDs {
		edgeID, ok := d.EdgeIDForLink(linkID)
		if !ok {
			continue
		}
		mttf := linkAvailabilityPct[linkID] / 100.0
		mttr := 1.0 - mttf
		st := &linkAvailState{linkID: linkID, edgeID: edgeID, up: true, mttf: mttf, mttr: mttr}
		st.nextToggle = expSample(rng, st.mttf)
		states = append(states, st)
	}

	demandUpTime := make(map[string]float64)
	for _, demandID := range d.demandSinks {
		demandUpTime[demandID] = 0
	}

	downSet := make(map[string]bool)
	currentTime := 0.0

	for currentTime < simLength {
		if time.Now().After(deadline) {
			break
		}

		nextIdx := -1
		for i, st := range states {
			if nextIdx == -1 || st.nextToggle < states[nextIdx].nextToggle {
				nextIdx = i
			}
		}

		eventTime := simLength
		if nextIdx != -1 && states[nextIdx].nextToggle < eventTime {
			eventTime = states[nextIdx].nextToggle
		}

		dt := eventTime - currentTime
		if dt > 0 {
			reachable := d.reachableDemandsExcluding(downSet, "")
			for demandID := range demandUpTime {
				if reachable[demandID] {
					demandUpTime[demandID] += dt
				}
			}
			for _, st := range states {
				st.totalTime += dt
				if st.up {
					st.upTime += dt
				}
			}
		}
		currentTime = eventTime

		if nextIdx == -1 || eventTime >= simLength {
			break
		}

		st := states[nextIdx]
		st.up = !st.up
		if st.up {
			delete(downSet, st.edgeID)
			st.nextToggle = currentTime + expSample(rng, st.mttf)
		} else {
			downSet[st.edgeID] = true
			st.nextToggle = currentTime + expSample(rng, st.mttr)
		}
	}

	perDemand := make(map[string]float64, len(demandUpTime))
	for demandID, up := range demandUpTime {
		if simLength > 0 {
			perDemand[demandID] = up / simLength
		}
	}
	perEdge := make(map[string]float64, len(states))
	for _, st := range states {
		if st.totalTime > 0 {
			perEdge[st.linkID] = st.upTime / st.totalTime
		}
	}

	return AvailabilityResult{PerDemandAvailability: perDemand, PerEdgeAvailability: perEdge}
}
