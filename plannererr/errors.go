// Package plannererr defines the error kinds spec.md §7 names. Each kind
// is a distinct signal the pipeline driver branches on: configuration and
// topology errors abort before any solve, optimizer errors either abort
// (min-cost, min-interference) or degrade gracefully (POP-proposal,
// max-coverage, redundancy), and IO errors surface file/parse failures.
package plannererr

import "fmt"

// Code identifies a specific error condition within a kind, for callers
// that need to branch without string-matching messages.
type Code string

const (
	CodeUnknown              Code = ""
	CodeInvalidValue         Code = "invalid_value"
	CodeUnknownExtension     Code = "unknown_extension"
	CodeDuplicateSKU         Code = "duplicate_sku"
	CodeSiteMissing          Code = "site_missing"
	CodeStatusImmutable      Code = "status_immutable"
	CodeInconsistentSectors  Code = "inconsistent_sectors"
	CodeCNMultipleNodes      Code = "cn_multiple_nodes"
	CodeConflictingPolarity  Code = "conflicting_polarity"
	CodeInfeasibleTopology   Code = "infeasible_topology"
	CodeUnsatisfiableCoverage Code = "unsatisfiable_coverage"
	CodeSolverTimeout        Code = "solver_timeout"
	CodeInvariantViolated    Code = "invariant_violated"
	CodeNotFound             Code = "not_found"
	CodeParseFailure         Code = "parse_failure"
)

// ConfigErr signals an invalid configuration: bad parameter value, unknown
// file extension, duplicated device SKU.
type ConfigErr struct {
	Code Code
	Msg  string
	Err  error
}

func (e *ConfigErr) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("config: %s", e.Msg)
}

func (e *ConfigErr) Unwrap() error { return e.Err }

// Config constructs a ConfigErr.
func Config(code Code, msg string, cause error) error {
	return &ConfigErr{Code: code, Msg: msg, Err: cause}
}

// TopologyErr signals an invalid topology mutation: missing site,
// immutable-status violation, inconsistent link sectors, CN with multiple
// nodes.
type TopologyErr struct {
	Code Code
	Msg  string
	Err  error
}

func (e *TopologyErr) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("topology: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("topology: %s", e.Msg)
}

func (e *TopologyErr) Unwrap() error { return e.Err }

// Topology constructs a TopologyErr.
func Topology(code Code, msg string, cause error) error {
	return &TopologyErr{Code: code, Msg: msg, Err: cause}
}

// OptimizerErr signals an infeasible input, a solver time-out at a stage
// that cannot be skipped, or an internal invariant violation.
type OptimizerErr struct {
	Code    Code
	Stage   string
	Msg     string
	Err     error
	TimedOut    bool
	Infeasible  bool
}

func (e *OptimizerErr) Error() string {
	base := fmt.Sprintf("optimizer[%s]: %s", e.Stage, e.Msg)
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", base, e.Err)
	}
	return base
}

func (e *OptimizerErr) Unwrap() error { return e.Err }

// Optimizer constructs an OptimizerErr.
func Optimizer(code Code, stage, msg string, cause error) error {
	return &OptimizerErr{Code: code, Stage: stage, Msg: msg, Err: cause}
}

// OptimizerTimeout constructs an OptimizerErr flagged as a solver
// time-out (distinguished from infeasibility per spec.md §7).
func OptimizerTimeout(stage string) error {
	return &OptimizerErr{Code: CodeSolverTimeout, Stage: stage, Msg: "solver returned before reaching the requested relative MIP gap", TimedOut: true}
}

// OptimizerInfeasible constructs an OptimizerErr flagged as infeasible.
func OptimizerInfeasible(stage, msg string) error {
	return &OptimizerErr{Code: CodeInfeasibleTopology, Stage: stage, Msg: msg, Infeasible: true}
}

// IOErr signals a file-not-found or parse failure.
type IOErr struct {
	Code Code
	Path string
	Msg  string
	Err  error
}

func (e *IOErr) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("io: %s (%s): %v", e.Msg, e.Path, e.Err)
	}
	return fmt.Sprintf("io: %s (%s)", e.Msg, e.Path)
}

func (e *IOErr) Unwrap() error { return e.Err }

// IO constructs an IOErr.
func IO(code Code, path, msg string, cause error) error {
	return &IOErr{Code: code, Path: path, Msg: msg, Err: cause}
}
