// Package observability wires Prometheus metrics and OpenTelemetry tracing
// into the optimization pipeline, adapted from the teacher's NBI/scheduler
// collectors (spec.md §11 domain-stack table).
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PlannerCollector bundles the planner's Prometheus metrics: a histogram
// of per-stage solve duration and a counter of stage outcomes, which the
// pipeline driver feeds through ObserveStage, plus gauges for active-entity
// counts, shortage and capex and a coverage-relaxation counter, which no
// code in this module sets.
type PlannerCollector struct {
	gatherer prometheus.Gatherer

	StageSolveDuration *prometheus.HistogramVec
	StageSolveStatus   *prometheus.CounterVec

	ActiveSites   *prometheus.GaugeVec // labeled by site_type
	ActiveLinks   *prometheus.GaugeVec // labeled by link_type
	ActiveSectors prometheus.Gauge

	CoverageRelaxations prometheus.Counter
	TotalShortageGbps   prometheus.Gauge
	TotalCapex          prometheus.Gauge
}

// NewPlannerCollector registers planner Prometheus metrics against the
// provided registerer, defaulting to the global Prometheus registry when
// nil (mirrors the teacher's NewNBICollector/NewSchedulerCollector shape).
func NewPlannerCollector(reg prometheus.Registerer) (*PlannerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "planner_stage_solve_duration_seconds",
		Help:    "Duration of each MILP/LP stage solve, labeled by stage name.",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})
	stageDuration, err := registerHistogramVec(reg, stageDuration, "planner_stage_solve_duration_seconds")
	if err != nil {
		return nil, err
	}

	stageStatus := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_stage_solve_total",
		Help: "Stage solve outcomes, labeled by stage and status (ok|error).",
	}, []string{"stage", "status"})
	stageStatus, err = registerCounterVec(reg, stageStatus, "planner_stage_solve_total")
	if err != nil {
		return nil, err
	}

	activeSites := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "planner_active_sites",
		Help: "Current number of active (PROPOSED or EXISTING) sites, labeled by site type.",
	}, []string{"site_type"})
	activeSites, err = registerGaugeVec(reg, activeSites, "planner_active_sites")
	if err != nil {
		return nil, err
	}

	activeLinks := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "planner_active_links",
		Help: "Current number of active links, labeled by link type.",
	}, []string{"link_type"})
	activeLinks, err = registerGaugeVec(reg, activeLinks, "planner_active_links")
	if err != nil {
		return nil, err
	}

	activeSectors, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "planner_active_sectors",
		Help: "Current number of active sectors.",
	}), "planner_active_sectors")
	if err != nil {
		return nil, err
	}

	coverageRelax, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "planner_coverage_relaxations_total",
		Help: "Number of times the min-cost stage decremented its coverage floor to reach feasibility.",
	}), "planner_coverage_relaxations_total")
	if err != nil {
		return nil, err
	}

	shortage, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "planner_total_shortage_gbps",
		Help: "Sum of unmet demand across all demand points in the latest solution.",
	}), "planner_total_shortage_gbps")
	if err != nil {
		return nil, err
	}

	capex, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "planner_total_capex",
		Help: "Total capex of the latest solution.",
	}), "planner_total_capex")
	if err != nil {
		return nil, err
	}

	return &PlannerCollector{
		gatherer:            gatherer,
		StageSolveDuration:  stageDuration,
		StageSolveStatus:    stageStatus,
		ActiveSites:         activeSites,
		ActiveLinks:         activeLinks,
		ActiveSectors:       activeSectors,
		CoverageRelaxations: coverageRelax,
		TotalShortageGbps:   shortage,
		TotalCapex:          capex,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PlannerCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveStage records the outcome and duration of one stage solve.
func (c *PlannerCollector) ObserveStage(stage, status string, seconds float64) {
	if c == nil {
		return
	}
	if c.StageSolveDuration != nil {
		c.StageSolveDuration.WithLabelValues(stage).Observe(seconds)
	}
	if c.StageSolveStatus != nil {
		c.StageSolveStatus.WithLabelValues(stage, status).Inc()
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
