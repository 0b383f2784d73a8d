package visualize

import (
	"os/exec"
	"testing"

	"sheet/internal/sheet"
)

func TestBuildListing(t *testing.T) {
	s := sheet.New(10, 10)
	if _, err := s.Assign(0, 0, "1"); err != nil {
		t.Fatalf("A1: %v", err)
	}
	if _, err := s.Assign(0, 1, "2"); err != nil {
		t.Fatalf("B1: %v", err)
	}
	if _, err := s.Assign(0, 2, "A1+B1"); err != nil {
		t.Fatalf("C1: %v", err)
	}

	l, err := BuildListing(s, 0, 2)
	if err != nil {
		t.Fatalf("BuildListing: %v", err)
	}
	if l.Cell != "C1" {
		t.Fatalf("Cell = %q, want C1", l.Cell)
	}
	if len(l.Parents) != 2 {
		t.Fatalf("Parents = %v, want 2 entries", l.Parents)
	}
}

func TestListingString(t *testing.T) {
	l := Listing{Cell: "A1", Parents: []string{"B1"}, Children: []string{"C1", "D1"}}
	s := l.String()
	if s == "" {
		t.Fatal("expected non-empty rendering")
	}
}

func TestRenderPNGWithoutDotReportsUnavailable(t *testing.T) {
	// This only exercises the "dot not found" branch reliably in a
	// sandbox without graphviz installed; there it asserts RenderPNG
	// returns a clean ok=false, err=nil when the renderer is simply
	// absent, rather than treating a missing collaborator as a failure.
	// With dot installed it only checks that ok and err are not both set.
	l := Listing{Cell: "A1"}
	_, ok, err := RenderPNG(l, t.TempDir())
	if _, lookErr := exec.LookPath("dot"); lookErr != nil {
		if ok || err != nil {
			t.Fatalf("dot absent: got ok=%v err=%v, want ok=false err=nil", ok, err)
		}
		return
	}
	if ok && err != nil {
		t.Fatalf("unexpected combination ok=%v err=%v", ok, err)
	}
}
