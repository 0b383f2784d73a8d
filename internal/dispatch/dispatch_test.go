package dispatch

import (
	"testing"

	"sheet/internal/errors"
	"sheet/internal/sheet"
)

func TestAssignmentCommand(t *testing.T) {
	d := New(sheet.New(10, 10))
	out := d.Dispatch("A1=10")
	if out.Status != errors.Ok {
		t.Fatalf("got %+v", out)
	}
	if v := d.Sheet.Store.GetRowCol(0, 0); v.Int != 10 {
		t.Fatalf("A1 = %+v, want 10", v)
	}
}

func TestMovementCommandsClampToBounds(t *testing.T) {
	d := New(sheet.New(5, 5))
	d.Dispatch("w")
	if d.ViewRow != 0 {
		t.Fatalf("ViewRow = %d, want clamped to 0", d.ViewRow)
	}
	d.Dispatch("s")
	if d.ViewRow != 4 {
		t.Fatalf("ViewRow = %d, want clamped to rows-1=4", d.ViewRow)
	}
}

func TestQuitCommand(t *testing.T) {
	d := New(sheet.New(5, 5))
	out := d.Dispatch("q")
	if !out.Quit {
		t.Fatal("expected Quit=true")
	}
}

func TestOutputToggleCommands(t *testing.T) {
	d := New(sheet.New(5, 5))
	d.Dispatch("disable_output")
	if d.OutputEnabled {
		t.Fatal("expected output disabled")
	}
	d.Dispatch("enable_output")
	if !d.OutputEnabled {
		t.Fatal("expected output enabled")
	}
}

func TestDisplayCommandValidatesRange(t *testing.T) {
	d := New(sheet.New(20, 20))
	if out := d.Dispatch("display 5"); out.Status != errors.Ok {
		t.Fatalf("got %+v", out)
	}
	if d.DispRows != 5 || d.DispCols != 5 {
		t.Fatalf("got DispRows=%d DispCols=%d, want 5", d.DispRows, d.DispCols)
	}
	if out := d.Dispatch("display 99"); out.Status == errors.Ok {
		t.Fatal("expected display out of 1..15 range to be rejected")
	}
}

func TestLockCellCommandRejectsSubsequentAssign(t *testing.T) {
	d := New(sheet.New(5, 5))
	if out := d.Dispatch("lock_cell A1"); out.Status != errors.Ok {
		t.Fatalf("lock_cell: %+v", out)
	}
	out := d.Dispatch("A1=5")
	if out.Status != errors.LockedCell {
		t.Fatalf("got status %v, want LockedCell", out.Status)
	}
}

func TestNameRangeCommand(t *testing.T) {
	d := New(sheet.New(5, 5))
	d.Dispatch("A1=42")
	if out := d.Dispatch("name A1 TOTAL"); out.Status != errors.Ok {
		t.Fatalf("name: %+v", out)
	}
	out := d.Dispatch("B1=TOTAL")
	if out.Status != errors.Ok {
		t.Fatalf("B1=TOTAL: %+v", out)
	}
	if v := d.Sheet.Store.GetRowCol(0, 1); v.Int != 42 {
		t.Fatalf("B1 = %+v, want 42", v)
	}
}

func TestHistoryCommand(t *testing.T) {
	d := New(sheet.New(5, 5))
	d.Dispatch("A1=1")
	d.Dispatch("A1=2")
	out := d.Dispatch("history A1")
	if out.Status != errors.Ok {
		t.Fatalf("history: %+v", out)
	}
	if v := d.Sheet.Store.GetRowCol(0, 0); v.Int != 1 {
		t.Fatalf("A1 after history = %+v, want 1", v)
	}
}

func TestLastEditCommand(t *testing.T) {
	d := New(sheet.New(5, 5))
	d.Dispatch("C3=1")
	out := d.Dispatch("last_edit")
	if out.Status != errors.Ok {
		t.Fatalf("last_edit: %+v", out)
	}
	if d.ViewRow != 2 || d.ViewCol != 2 {
		t.Fatalf("got viewport (%d,%d), want (2,2)", d.ViewRow, d.ViewCol)
	}
}

func TestUnrecognizedCommand(t *testing.T) {
	d := New(sheet.New(5, 5))
	out := d.Dispatch("not a command")
	if out.Status != errors.Unrecognized {
		t.Fatalf("got %+v", out)
	}
}

func TestFormulaCommand(t *testing.T) {
	d := New(sheet.New(5, 5))
	d.Dispatch("A1=1")
	d.Dispatch("B1=2")
	d.Dispatch("C1=A1+B1")
	out := d.Dispatch("formula C1")
	if out.Status != errors.Ok || out.Message != "A1+B1" {
		t.Fatalf("got %+v", out)
	}
}
