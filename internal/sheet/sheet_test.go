package sheet

import (
	"testing"

	"sheet/internal/errors"
)

func TestAssignLiteral(t *testing.T) {
	s := New(10, 10)
	res, err := s.Assign(0, 0, "10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != errors.Ok {
		t.Fatalf("got status %v", res.Status)
	}
	if v := s.Store.GetRowCol(0, 0); v.Int != 10 {
		t.Fatalf("got %+v", v)
	}
}

func TestAssignPropagatesThroughChain(t *testing.T) {
	s := New(10, 10)
	if _, err := s.Assign(0, 0, "10"); err != nil {
		t.Fatalf("A1: %v", err)
	}
	if _, err := s.Assign(0, 1, "20"); err != nil {
		t.Fatalf("B1: %v", err)
	}
	if _, err := s.Assign(0, 2, "A1+B1"); err != nil {
		t.Fatalf("C1: %v", err)
	}
	if v := s.Store.GetRowCol(0, 2); v.Int != 30 {
		t.Fatalf("C1 = %+v, want 30", v)
	}

	// Editing A1 should re-propagate into C1.
	if _, err := s.Assign(0, 0, "100"); err != nil {
		t.Fatalf("A1 re-assign: %v", err)
	}
	if v := s.Store.GetRowCol(0, 2); v.Int != 120 {
		t.Fatalf("C1 after re-assign = %+v, want 120", v)
	}
}

func TestCircularReferenceRollsBack(t *testing.T) {
	s := New(10, 10)
	if _, err := s.Assign(0, 0, "1"); err != nil {
		t.Fatalf("A1: %v", err)
	}
	if _, err := s.Assign(1, 0, "SUM(A1:A1)"); err != nil {
		t.Fatalf("A2: %v", err)
	}
	// A1 = A2 would close a cycle: A1 -> A2 -> A1.
	_, err := s.Assign(0, 0, "A2")
	if err == nil {
		t.Fatal("expected circular reference error")
	}
	if errors.StatusOf(err) != errors.CircularRef {
		t.Fatalf("got status %v", errors.StatusOf(err))
	}
	// A1 should be unchanged after rollback.
	if v := s.Store.GetRowCol(0, 0); v.Int != 1 {
		t.Fatalf("A1 after failed rollback = %+v, want 1", v)
	}
}

func TestSleepReportsDelay(t *testing.T) {
	s := New(10, 10)
	if _, err := s.Assign(0, 0, "5"); err != nil {
		t.Fatalf("A1: %v", err)
	}
	res, err := s.Assign(1, 0, "SLEEP(A1)")
	if err != nil {
		t.Fatalf("A2: %v", err)
	}
	if res.Delay != 5 {
		t.Fatalf("Delay = %d, want 5", res.Delay)
	}
}

func TestDivideByZeroProducesError(t *testing.T) {
	s := New(10, 10)
	if _, err := s.Assign(0, 0, "0"); err != nil {
		t.Fatalf("A1: %v", err)
	}
	if _, err := s.Assign(0, 1, "10/A1"); err != nil {
		t.Fatalf("B1: %v", err)
	}
	if v := s.Store.GetRowCol(0, 1); !v.IsError {
		t.Fatalf("B1 = %+v, want error", v)
	}
}

func TestLockedCellRejectsAssignment(t *testing.T) {
	s := New(10, 10)
	if err := s.LockCell("A1"); err != nil {
		t.Fatalf("LockCell: %v", err)
	}
	_, err := s.Assign(0, 0, "5")
	if err == nil || errors.StatusOf(err) != errors.LockedCell {
		t.Fatalf("expected LockedCell error, got %v", err)
	}
}

func TestHistoryRollsBackToPreviousValue(t *testing.T) {
	s := New(10, 10)
	if _, err := s.Assign(0, 0, "1"); err != nil {
		t.Fatalf("assign 1: %v", err)
	}
	if _, err := s.Assign(0, 0, "2"); err != nil {
		t.Fatalf("assign 2: %v", err)
	}
	if _, err := s.History(0, 0); err != nil {
		t.Fatalf("history: %v", err)
	}
	if v := s.Store.GetRowCol(0, 0); v.Int != 1 {
		t.Fatalf("after history = %+v, want 1", v)
	}
}

func TestHistoryWithNoPriorEditFails(t *testing.T) {
	s := New(10, 10)
	if _, err := s.History(0, 0); err == nil {
		t.Fatal("expected error for cell with no history")
	}
}

func TestNamedRangeSingleCellResolves(t *testing.T) {
	s := New(10, 10)
	if _, err := s.Assign(0, 0, "42"); err != nil {
		t.Fatalf("A1: %v", err)
	}
	if err := s.NameRange("A1", "TOTAL"); err != nil {
		t.Fatalf("NameRange: %v", err)
	}
	if _, err := s.Assign(0, 1, "TOTAL"); err != nil {
		t.Fatalf("B1=TOTAL: %v", err)
	}
	if v := s.Store.GetRowCol(0, 1); v.Int != 42 {
		t.Fatalf("B1 = %+v, want 42", v)
	}
}

func TestNamedRangeMultiCellDoesNotResolveAsReference(t *testing.T) {
	s := New(10, 10)
	if err := s.NameRange("A1:A2", "BLOCK"); err != nil {
		t.Fatalf("NameRange: %v", err)
	}
	if _, err := s.Assign(0, 2, "BLOCK"); err == nil {
		t.Fatal("expected multi-cell named range to be unresolvable as a bare reference")
	}
}

func TestHighDepReportsParentsAndChildren(t *testing.T) {
	s := New(10, 10)
	if _, err := s.Assign(0, 0, "1"); err != nil {
		t.Fatalf("A1: %v", err)
	}
	if _, err := s.Assign(0, 1, "2"); err != nil {
		t.Fatalf("B1: %v", err)
	}
	if _, err := s.Assign(0, 2, "A1+B1"); err != nil {
		t.Fatalf("C1: %v", err)
	}
	deps, err := s.HighDep(0, 2)
	if err != nil {
		t.Fatalf("HighDep: %v", err)
	}
	if len(deps.Parents) != 2 {
		t.Fatalf("got parents %v, want 2", deps.Parents)
	}
	deps, err = s.HighDep(0, 0)
	if err != nil {
		t.Fatalf("HighDep A1: %v", err)
	}
	if len(deps.Children) != 1 {
		t.Fatalf("got children %v, want 1", deps.Children)
	}
}

func TestFormulaTextReconstructsExpression(t *testing.T) {
	s := New(10, 10)
	if _, err := s.Assign(0, 0, "1"); err != nil {
		t.Fatalf("A1: %v", err)
	}
	if _, err := s.Assign(0, 1, "2"); err != nil {
		t.Fatalf("B1: %v", err)
	}
	if _, err := s.Assign(0, 2, "A1+B1"); err != nil {
		t.Fatalf("C1: %v", err)
	}
	text, err := s.FormulaText(0, 2)
	if err != nil {
		t.Fatalf("FormulaText: %v", err)
	}
	if text != "A1+B1" {
		t.Fatalf("got %q, want %q", text, "A1+B1")
	}
}

func TestLastEditTracksMostRecentCommit(t *testing.T) {
	s := New(10, 10)
	if _, ok := s.LastEdit(); ok {
		t.Fatal("expected no last edit on a fresh sheet")
	}
	if _, err := s.Assign(2, 3, "1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	key, ok := s.LastEdit()
	if !ok {
		t.Fatal("expected a last edit")
	}
	if key != s.Store.Key(2, 3) {
		t.Fatalf("got key %v, want key for (2,3)", key)
	}
}
