// Package visualize implements the "visualize REF" / "high_dep REF"
// read-only commands: a textual adjacency listing always, and, when a
// graphviz renderer is on PATH, a PNG of the one-hop neighbourhood.
package visualize

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sheet/internal/ref"
	"sheet/internal/sheet"
)

// Listing is the text-only half of "visualize"/"high_dep": the
// direct parents and children of one cell, formatted as references.
type Listing struct {
	Cell     string
	Parents  []string
	Children []string
}

func BuildListing(s *sheet.Sheet, row, col int) (Listing, error) {
	deps, err := s.HighDep(row, col)
	if err != nil {
		return Listing{}, err
	}
	cols := s.Store.Cols
	return Listing{
		Cell:     ref.FormatCellReference(row, col),
		Parents:  keysToRefs(deps.Parents, cols),
		Children: keysToRefs(deps.Children, cols),
	}, nil
}

func keysToRefs(ks []ref.Key, cols int) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		r, c := ref.GetRowCol(k, cols)
		out[i] = ref.FormatCellReference(r, c)
	}
	return out
}

func (l Listing) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n  parents: %s\n  children: %s\n",
		l.Cell, strings.Join(l.Parents, ", "), strings.Join(l.Children, ", "))
	return b.String()
}

// rendererTimeout bounds how long the external renderer may run; the
// visualize command is read-only and must never block the REPL
// indefinitely on a stuck subprocess.
const rendererTimeout = 5 * time.Second

// RenderPNG shells out to graphviz's "dot" to draw l's one-hop
// neighbourhood, returning the path to the generated PNG. If dot isn't
// on PATH, it returns ok=false rather than an error: a missing
// renderer is an absent collaborator, not a failure of visualize
// itself.
func RenderPNG(l Listing, outDir string) (path string, ok bool, err error) {
	dotPath, lookErr := exec.LookPath("dot")
	if lookErr != nil {
		return "", false, nil
	}

	name := fmt.Sprintf("sheet-visualize-%s.png", uuid.New().String())
	out := filepath.Join(outDir, name)

	ctx, cancel := context.WithTimeout(context.Background(), rendererTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cmd := exec.CommandContext(gctx, dotPath, "-Tpng", "-o", out)
		cmd.Stdin = strings.NewReader(dotSource(l))
		return cmd.Run()
	})
	if err := g.Wait(); err != nil {
		os.Remove(out)
		return "", false, fmt.Errorf("render %s: %w", l.Cell, err)
	}
	return out, true, nil
}

func dotSource(l Listing) string {
	var b strings.Builder
	b.WriteString("digraph deps {\n")
	for _, p := range l.Parents {
		fmt.Fprintf(&b, "  %q -> %q;\n", p, l.Cell)
	}
	for _, c := range l.Children {
		fmt.Fprintf(&b, "  %q -> %q;\n", l.Cell, c)
	}
	b.WriteString("}\n")
	return b.String()
}
