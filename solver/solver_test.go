package solver

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRefProblem_SolvesSimpleKnapsack(t *testing.T) {
	p := NewRefProblem()
	p.SetName("knapsack")

	// Two items: value 5/weight 3, value 4/weight 2. Capacity 4: best is
	// item 1 alone (value 5); both together (weight 5) exceed capacity.
	x0, err := p.AddVariable("x0", Binary, 0, 1)
	if err != nil {
		t.Fatalf("AddVariable: %v", err)
	}
	x1, err := p.AddVariable("x1", Binary, 0, 1)
	if err != nil {
		t.Fatalf("AddVariable: %v", err)
	}

	if _, err := p.AddConstraint("capacity", Constraint{
		Expr: Expr{Terms: []Term{{VarIndex: x0, Coeff: 3}, {VarIndex: x1, Coeff: 2}}},
		Op:   LessEq,
		RHS:  4,
	}); err != nil {
		t.Fatalf("AddConstraint: %v", err)
	}

	p.SetObjective(Expr{Terms: []Term{{VarIndex: x0, Coeff: 5}, {VarIndex: x1, Coeff: 4}}}, Maximize)

	if err := p.Solve(); err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if p.MIPStatus() != MIPOptimal {
		t.Fatalf("expected MIPOptimal, got %v", p.MIPStatus())
	}
	if p.ObjVal() != 5 {
		t.Fatalf("expected optimal objective 5, got %v", p.ObjVal())
	}
	v0, _ := p.Solution(x0)
	v1, _ := p.Solution(x1)
	if v0 != 1 || v1 != 0 {
		t.Fatalf("expected x0=1,x1=0, got x0=%v x1=%v", v0, v1)
	}
}

func TestRefProblem_InfeasibleReportsMIPInfeasible(t *testing.T) {
	p := NewRefProblem()
	x0, _ := p.AddVariable("x0", Binary, 0, 1)
	// x0 >= 2 is never satisfiable by a binary variable.
	p.AddConstraint("impossible", Constraint{
		Expr: Expr{Terms: []Term{{VarIndex: x0, Coeff: 1}}},
		Op:   GreaterEq,
		RHS:  2,
	})
	p.SetObjective(Expr{Terms: []Term{{VarIndex: x0, Coeff: 1}}}, Maximize)

	if err := p.Solve(); err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if p.MIPStatus() != MIPInfeasible {
		t.Fatalf("expected MIPInfeasible, got %v", p.MIPStatus())
	}
	if !p.LPStatus().Unusable() {
		t.Fatalf("expected an unusable LP status on infeasibility, got %v", p.LPStatus())
	}
}

func TestRefProblem_DelConstraintRelaxesProblem(t *testing.T) {
	p := NewRefProblem()
	x0, _ := p.AddVariable("x0", Binary, 0, 1)
	idx, err := p.AddConstraint("forbid", Constraint{
		Expr: Expr{Terms: []Term{{VarIndex: x0, Coeff: 1}}},
		Op:   LessEq,
		RHS:  0,
	})
	if err != nil {
		t.Fatalf("AddConstraint: %v", err)
	}
	p.SetObjective(Expr{Terms: []Term{{VarIndex: x0, Coeff: 1}}}, Maximize)

	if err := p.Solve(); err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if p.ObjVal() != 0 {
		t.Fatalf("expected constrained objective 0, got %v", p.ObjVal())
	}

	if err := p.DelConstraint(idx); err != nil {
		t.Fatalf("DelConstraint: %v", err)
	}
	p.Reset()
	if err := p.Solve(); err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if p.ObjVal() != 1 {
		t.Fatalf("expected relaxed objective 1 after deleting the constraint, got %v", p.ObjVal())
	}
}

func TestRefProblem_WriteLPFormat(t *testing.T) {
	p := NewRefProblem()
	p.SetName("dump-test")
	x0, _ := p.AddVariable("x0", Binary, 0, 1)
	p.AddConstraint("c0", Constraint{Expr: Expr{Terms: []Term{{VarIndex: x0, Coeff: 1}}}, Op: LessEq, RHS: 1})
	p.SetObjective(Expr{Terms: []Term{{VarIndex: x0, Coeff: 1}}}, Maximize)

	path := filepath.Join(t.TempDir(), "dump.lp")
	if err := p.Write(path, "lp"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty LP dump")
	}
}

func TestMIPStatus_TimedOutClassification(t *testing.T) {
	if !MIPFeasibleTimeout.TimedOut() {
		t.Fatalf("expected MIPFeasibleTimeout to report TimedOut")
	}
	if MIPOptimal.TimedOut() {
		t.Fatalf("expected MIPOptimal not to report TimedOut")
	}
}
