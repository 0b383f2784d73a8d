package persist

import (
	"strings"
	"testing"

	"sheet/internal/sheet"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	s := sheet.New(10, 10)
	if _, err := s.Assign(0, 0, "10"); err != nil {
		t.Fatalf("A1: %v", err)
	}
	if _, err := s.Assign(0, 1, "20"); err != nil {
		t.Fatalf("B1: %v", err)
	}
	if _, err := s.Assign(0, 2, "A1+B1"); err != nil {
		t.Fatalf("C1: %v", err)
	}

	var buf strings.Builder
	if err := SaveText(&buf, s); err != nil {
		t.Fatalf("SaveText: %v", err)
	}

	loaded := sheet.New(10, 10)
	result, err := LoadText(strings.NewReader(buf.String()), loaded)
	if err != nil {
		t.Fatalf("LoadText: %v", err)
	}
	if result.Skipped != 0 {
		t.Fatalf("unexpected skipped lines: %d", result.Skipped)
	}
	if v := loaded.Store.GetRowCol(0, 2); v.Int != 30 {
		t.Fatalf("C1 after load = %+v, want 30", v)
	}

	// The loaded edges must still drive re-evaluation on a later edit.
	if _, err := loaded.Assign(0, 0, "100"); err != nil {
		t.Fatalf("re-assign A1: %v", err)
	}
	if v := loaded.Store.GetRowCol(0, 2); v.Int != 120 {
		t.Fatalf("C1 after re-assign = %+v, want 120", v)
	}
}

func TestLoadTextSkipsMalformedLines(t *testing.T) {
	s := sheet.New(10, 10)
	input := "DIMS,10,10\nCELL,A1,10\ngarbage line\nCELL,ZZZZ,5\n"
	result, err := LoadText(strings.NewReader(input), s)
	if err != nil {
		t.Fatalf("LoadText: %v", err)
	}
	if result.Skipped != 2 {
		t.Fatalf("Skipped = %d, want 2", result.Skipped)
	}
	if v := s.Store.GetRowCol(0, 0); v.Int != 10 {
		t.Fatalf("A1 = %+v, want 10", v)
	}
}

func TestLoadTextClearsPriorSheetState(t *testing.T) {
	s := sheet.New(10, 10)
	if _, err := s.Assign(0, 0, "10"); err != nil {
		t.Fatalf("A1: %v", err)
	}
	if _, err := s.Assign(0, 1, "20"); err != nil {
		t.Fatalf("B1: %v", err)
	}

	var buf strings.Builder
	if err := SaveText(&buf, s); err != nil {
		t.Fatalf("SaveText: %v", err)
	}

	stale := sheet.New(10, 10)
	if _, err := stale.Assign(5, 5, "999"); err != nil {
		t.Fatalf("F6: %v", err)
	}
	if err := stale.LockCell("F6"); err != nil {
		t.Fatalf("LockCell: %v", err)
	}
	if err := stale.NameRange("F6", "STALE"); err != nil {
		t.Fatalf("NameRange: %v", err)
	}

	if _, err := LoadText(strings.NewReader(buf.String()), stale); err != nil {
		t.Fatalf("LoadText: %v", err)
	}

	if v := stale.Store.GetRowCol(5, 5); v.Int != 0 {
		t.Fatalf("F6 after load = %+v, want zero value (cleared)", v)
	}
	if v := stale.Store.GetRowCol(0, 0); v.Int != 10 {
		t.Fatalf("A1 after load = %+v, want 10", v)
	}
	// The stale lock on F6 must not carry over: assigning into it now
	// should succeed rather than fail with a locked-cell error.
	if _, err := stale.Assign(5, 5, "1"); err != nil {
		t.Fatalf("F6 should no longer be locked after load: %v", err)
	}
}

func TestSaveTextSkipsDefaultCells(t *testing.T) {
	s := sheet.New(2, 2)
	var buf strings.Builder
	if err := SaveText(&buf, s); err != nil {
		t.Fatalf("SaveText: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected only the DIMS line for an empty sheet, got %v", lines)
	}
}

func TestSaveTextPreservesErrorCells(t *testing.T) {
	s := sheet.New(2, 2)
	if _, err := s.Assign(0, 0, "0"); err != nil {
		t.Fatalf("A1: %v", err)
	}
	if _, err := s.Assign(0, 1, "10/A1"); err != nil {
		t.Fatalf("B1: %v", err)
	}

	var buf strings.Builder
	if err := SaveText(&buf, s); err != nil {
		t.Fatalf("SaveText: %v", err)
	}
	if !strings.Contains(buf.String(), ",ERR") {
		t.Fatalf("expected ERR marker in saved output, got %q", buf.String())
	}
}
