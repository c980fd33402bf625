package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestPlannerCollector_ObserveStage(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPlannerCollector(reg)
	if err != nil {
		t.Fatalf("NewPlannerCollector: %v", err)
	}

	collector.ObserveStage("min_cost", "optimal", 12.5)

	if got := testutil.ToFloat64(collector.StageSolveStatus.WithLabelValues("min_cost", "optimal")); got != 1 {
		t.Fatalf("planner_stage_solve_total = %v, want 1", got)
	}

	count := histogramSampleCount(t, reg, "planner_stage_solve_duration_seconds", map[string]string{"stage": "min_cost"})
	if count != 1 {
		t.Fatalf("planner_stage_solve_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestPlannerCollector_GaugesAndHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPlannerCollector(reg)
	if err != nil {
		t.Fatalf("NewPlannerCollector: %v", err)
	}

	collector.ActiveSites.WithLabelValues("DN").Set(7)
	collector.ActiveLinks.WithLabelValues("WIRELESS_BACKHAUL").Set(11)
	collector.ActiveSectors.Set(14)
	collector.CoverageRelaxations.Inc()
	collector.TotalShortageGbps.Set(2.5)
	collector.TotalCapex.Set(190000)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"planner_stage_solve_duration_seconds",
		"planner_stage_solve_total",
		"planner_active_sites",
		"planner_active_links",
		"planner_active_sectors",
		"planner_coverage_relaxations_total",
		"planner_total_shortage_gbps",
		"planner_total_capex",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestNewPlannerCollector_DoubleRegisterReusesExisting(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPlannerCollector(reg)
	if err != nil {
		t.Fatalf("first NewPlannerCollector: %v", err)
	}
	second, err := NewPlannerCollector(reg)
	if err != nil {
		t.Fatalf("second NewPlannerCollector: %v", err)
	}
	if first.ActiveSectors != second.ActiveSectors {
		t.Fatalf("expected re-registration to return the existing collector")
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
