package plannererr

import (
	"errors"
	"testing"
)

func TestErrors_AsMatching(t *testing.T) {
	err := Topology(CodeStatusImmutable, "cannot demote EXISTING site", nil)
	var topErr *TopologyErr
	if !errors.As(err, &topErr) {
		t.Fatalf("expected errors.As to match *TopologyErr")
	}
	if topErr.Code != CodeStatusImmutable {
		t.Errorf("code = %v, want %v", topErr.Code, CodeStatusImmutable)
	}
}

func TestOptimizerTimeout_FlagsTimedOut(t *testing.T) {
	err := OptimizerTimeout("min_cost")
	var optErr *OptimizerErr
	if !errors.As(err, &optErr) {
		t.Fatalf("expected errors.As to match *OptimizerErr")
	}
	if !optErr.TimedOut || optErr.Infeasible {
		t.Errorf("expected TimedOut=true, Infeasible=false, got %+v", optErr)
	}
}

func TestOptimizerInfeasible_FlagsInfeasible(t *testing.T) {
	err := OptimizerInfeasible("setup", "no POP has positive-capacity outgoing link")
	var optErr *OptimizerErr
	if !errors.As(err, &optErr) || !optErr.Infeasible {
		t.Fatalf("expected Infeasible=true, got %+v", optErr)
	}
}

func TestConfigErr_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Config(CodeInvalidValue, "pop_capacity must be > 0", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find wrapped cause")
	}
}
