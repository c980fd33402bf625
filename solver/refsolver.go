package solver

import (
	"fmt"
	"math"
	"os"
)

// varDef is one registered decision variable.
type varDef struct {
	name  string
	vtype VarType
	lb, ub float64
	live  bool
}

type constraintDef struct {
	name string
	c    Constraint
	live bool
}

// RefProblem is a small brute-force reference Problem, grounded on
// spec.md §6's interface contract rather than any real solver: it
// exhaustively enumerates binary-variable assignments (continuous
// variables are held at their lower bound, since this implementation
// exists only to exercise milp/ stage builders in tests, not to solve
// production-size MILPs). It is never wired as the production solver —
// the real MIP solver is an external collaborator out of scope.
type RefProblem struct {
	name        string
	vars        []varDef
	constraints []constraintDef
	sense       Sense
	objective   Expr
	limits      Limits

	solution  []float64
	objVal    float64
	mipStatus MIPStatus
	lpStatus  LPStatus
	mipSols   int

	// MaxBinaryVars caps brute-force search size; Solve returns
	// MIPInfeasibleTimeout without searching beyond it.
	MaxBinaryVars int
}

// NewRefProblem constructs an empty reference problem.
func NewRefProblem() *RefProblem {
	return &RefProblem{MaxBinaryVars: 20}
}

func (p *RefProblem) SetName(name string) { p.name = name }

func (p *RefProblem) AddVariable(name string, vtype VarType, lb, ub float64) (int, error) {
	if ub < lb {
		return 0, fmt.Errorf("solver: variable %s has ub < lb (%g < %g)", name, ub, lb)
	}
	p.vars = append(p.vars, varDef{name: name, vtype: vtype, lb: lb, ub: ub, live: true})
	return len(p.vars) - 1, nil
}

func (p *RefProblem) DelVariable(index int) error {
	if index < 0 || index >= len(p.vars) || !p.vars[index].live {
		return fmt.Errorf("solver: variable index %d not found", index)
	}
	p.vars[index].live = false
	return nil
}

func (p *RefProblem) AddConstraint(name string, c Constraint) (int, error) {
	p.constraints = append(p.constraints, constraintDef{name: name, c: c, live: true})
	return len(p.constraints) - 1, nil
}

func (p *RefProblem) DelConstraint(index int) error {
	if index < 0 || index >= len(p.constraints) || !p.constraints[index].live {
		return fmt.Errorf("solver: constraint index %d not found", index)
	}
	p.constraints[index].live = false
	return nil
}

func (p *RefProblem) SetObjective(expr Expr, sense Sense) {
	p.objective = expr
	p.sense = sense
}

func (p *RefProblem) SetLimits(l Limits) { p.limits = l }

func (p *RefProblem) Write(path, format string) error {
	if format != "lp" {
		return fmt.Errorf("solver: unsupported write format %q", format)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Fprintf(f, "\\ Problem: %s\n", p.name)
	if p.sense == Maximize {
		fmt.Fprint(f, "Maximize\n")
	} else {
		fmt.Fprint(f, "Minimize\n")
	}
	fmt.Fprintf(f, " obj: %s\n", formatExpr(p, p.objective))
	fmt.Fprint(f, "Subject To\n")
	for _, c := range p.constraints {
		if !c.live {
			continue
		}
		fmt.Fprintf(f, " %s: %s %s %g\n", c.name, formatExpr(p, c.c.Expr), relOpString(c.c.Op), c.c.RHS)
	}
	fmt.Fprint(f, "Bounds\n")
	for _, v := range p.vars {
		if !v.live {
			continue
		}
		fmt.Fprintf(f, " %g <= %s <= %g\n", v.lb, v.name, v.ub)
	}
	fmt.Fprint(f, "End\n")
	return nil
}

func relOpString(op RelOp) string {
	switch op {
	case Equal:
		return "="
	case GreaterEq:
		return ">="
	default:
		return "<="
	}
}

func formatExpr(p *RefProblem, e Expr) string {
	out := ""
	for _, t := range e.Terms {
		name := fmt.Sprintf("x%d", t.VarIndex)
		if t.VarIndex < len(p.vars) {
			name = p.vars[t.VarIndex].name
		}
		out += fmt.Sprintf(" %+g %s", t.Coeff, name)
	}
	if e.Constant != 0 {
		out += fmt.Sprintf(" %+g", e.Constant)
	}
	return out
}

func (p *RefProblem) Reset() {
	p.solution = nil
	p.objVal = 0
	p.mipStatus = MIPNotRun
	p.lpStatus = LPNotRun
	p.mipSols = 0
}

func evalExpr(e Expr, x []float64) float64 {
	sum := e.Constant
	for _, t := range e.Terms {
		sum += t.Coeff * x[t.VarIndex]
	}
	return sum
}

func satisfies(c Constraint, x []float64) bool {
	const eps = 1e-6
	v := evalExpr(c.Expr, x)
	switch c.Op {
	case Equal:
		return math.Abs(v-c.RHS) <= eps
	case GreaterEq:
		return v >= c.RHS-eps
	default:
		return v <= c.RHS+eps
	}
}

// Solve exhaustively searches every binary-variable assignment (with
// continuous variables fixed at their lower bound) for the
// objective-optimal feasible point.
func (p *RefProblem) Solve() error {
	n := len(p.vars)
	x := make([]float64, n)
	var binaryIdx []int
	for i, v := range p.vars {
		if !v.live {
			continue
		}
		if v.vtype == Binary {
			binaryIdx = append(binaryIdx, i)
			x[i] = 0
		} else {
			x[i] = v.lb
		}
	}

	if len(binaryIdx) > p.MaxBinaryVars {
		p.mipStatus = MIPInfeasibleTimeout
		p.lpStatus = LPNumFailure
		return nil
	}

	liveConstraints := make([]Constraint, 0, len(p.constraints))
	for _, c := range p.constraints {
		if c.live {
			liveConstraints = append(liveConstraints, c.c)
		}
	}

	var best []float64
	bestObj := 0.0
	found := false

	total := 1 << uint(len(binaryIdx))
	for mask := 0; mask < total; mask++ {
		for bit, idx := range binaryIdx {
			if mask&(1<<uint(bit)) != 0 {
				x[idx] = 1
			} else {
				x[idx] = 0
			}
		}
		feasible := true
		for _, c := range liveConstraints {
			if !satisfies(c, x) {
				feasible = false
				break
			}
		}
		if !feasible {
			continue
		}
		obj := evalExpr(p.objective, x)
		better := !found
		if found {
			if p.sense == Maximize {
				better = obj > bestObj
			} else {
				better = obj < bestObj
			}
		}
		if better {
			found = true
			bestObj = obj
			best = append([]float64(nil), x...)
			p.mipSols++
		}
	}

	if !found {
		p.mipStatus = MIPInfeasible
		p.lpStatus = LPInfeasible
		return nil
	}

	p.solution = best
	p.objVal = bestObj
	p.mipStatus = MIPOptimal
	p.lpStatus = LPOptimal
	return nil
}

func (p *RefProblem) MIPSols() int          { return p.mipSols }
func (p *RefProblem) MIPStatus() MIPStatus  { return p.mipStatus }
func (p *RefProblem) LPStatus() LPStatus    { return p.lpStatus }
func (p *RefProblem) ObjVal() float64       { return p.objVal }

func (p *RefProblem) Solution(index int) (float64, error) {
	if p.solution == nil {
		return 0, fmt.Errorf("solver: no solution available")
	}
	if index < 0 || index >= len(p.solution) {
		return 0, fmt.Errorf("solver: variable index %d out of range", index)
	}
	return p.solution[index], nil
}

var _ Problem = (*RefProblem)(nil)
