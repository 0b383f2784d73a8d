// Package graph is the cell dependency graph: point edges in an
// adjacency map, range edges as a flat list of rectangles. Keeping
// range edges out of the point map is deliberate — see RangeEdge below.
package graph

import (
	"github.com/pkg/errors"

	"sheet/internal/ref"
)

// RangeEdge records that every cell inside [Start, End] is an implicit
// parent of Child. Range edges are not expanded into point edges: a
// SUM over a thousand-cell range would otherwise inflate the point map
// with a thousand identical child entries and make eviction O(area)
// instead of O(#formulas). The break-even the source measured is
// around a thousand cells; below that either representation is fine,
// above it a linear scan over the (few) range edges on every
// re-evaluation beats expanding.
type RangeEdge struct {
	Start, End ref.Key
	Child      ref.Key
}

// Graph is the union of point edges and range edges; a cell must never
// reach itself through either kind of edge, and that acyclicity
// constraint covers both structures together.
type Graph struct {
	children map[ref.Key]map[ref.Key]struct{}
	ranges   []RangeEdge
	cols     int
}

func New(cols int) *Graph {
	return &Graph{
		children: make(map[ref.Key]map[ref.Key]struct{}),
		cols:     cols,
	}
}

// AddPointEdge inserts parent->child. Idempotent.
func (g *Graph) AddPointEdge(parent, child ref.Key) {
	set, ok := g.children[parent]
	if !ok {
		set = make(map[ref.Key]struct{})
		g.children[parent] = set
	}
	set[child] = struct{}{}
}

// RemovePointEdge removes parent->child, dropping the parent's entry
// entirely once its child set is empty.
func (g *Graph) RemovePointEdge(parent, child ref.Key) {
	set, ok := g.children[parent]
	if !ok {
		return
	}
	delete(set, child)
	if len(set) == 0 {
		delete(g.children, parent)
	}
}

// AddRangeEdge appends a new range-edge record. Callers must have
// already evicted any prior range edge for this child via
// RemoveEdgesForChild so a formula never owns two range records.
func (g *Graph) AddRangeEdge(start, end, child ref.Key) {
	g.ranges = append(g.ranges, RangeEdge{Start: start, End: end, Child: child})
}

// RemoveEdgesForChild removes child from every point edge it appears
// in and drops any range-edge record whose Child field matches it.
// This is the full eviction path for a cell that is about to be
// reassigned or rolled back, regardless of what formula shape produced
// its current edges.
func (g *Graph) RemoveEdgesForChild(child ref.Key) {
	for parent, set := range g.children {
		if _, ok := set[child]; ok {
			delete(set, child)
			if len(set) == 0 {
				delete(g.children, parent)
			}
		}
	}
	kept := g.ranges[:0]
	for _, r := range g.ranges {
		if r.Child != child {
			kept = append(kept, r)
		}
	}
	g.ranges = kept
}

// ChildrenOf enumerates the direct point children of parent.
func (g *Graph) ChildrenOf(parent ref.Key) []ref.Key {
	set, ok := g.children[parent]
	if !ok {
		return nil
	}
	out := make([]ref.Key, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

// RangeChildrenOf enumerates the range-edge children whose rectangle
// contains parent. This is a linear scan over g.ranges by design: range
// edges are few compared to the cells they can span, and scanning them
// keeps eviction O(#edges) rather than O(range-area).
func (g *Graph) RangeChildrenOf(parent ref.Key) []ref.Key {
	row, col := ref.GetRowCol(parent, g.cols)
	var out []ref.Key
	for _, r := range g.ranges {
		sr, sc := ref.GetRowCol(r.Start, g.cols)
		er, ec := ref.GetRowCol(r.End, g.cols)
		if row >= sr && row <= er && col >= sc && col <= ec {
			out = append(out, r.Child)
		}
	}
	return out
}

// ParentsPoint returns, for diagnostics (visualize/high_dep), every
// parent key that has a point edge directly into child.
func (g *Graph) ParentsPoint(child ref.Key) []ref.Key {
	var out []ref.Key
	for parent, set := range g.children {
		if _, ok := set[child]; ok {
			out = append(out, parent)
		}
	}
	return out
}

// RangeEdgeFor returns the range edge owned by child, if any (a cell
// has at most one range-aggregate formula at a time).
func (g *Graph) RangeEdgeFor(child ref.Key) (RangeEdge, bool) {
	for _, r := range g.ranges {
		if r.Child == child {
			return r, true
		}
	}
	return RangeEdge{}, false
}

// Reset discards every point and range edge, leaving g as if freshly
// constructed with New(g.cols).
func (g *Graph) Reset() {
	for k := range g.children {
		delete(g.children, k)
	}
	g.ranges = nil
}

// ErrCycleBase is the base cycle error. WrapCycle attaches the offending
// key to it via github.com/pkg/errors; errors.Is still matches it
// through the wrap.
var ErrCycleBase = errors.New("circular reference")

// WrapCycle attaches which key closed the cycle to ErrCycleBase.
func WrapCycle(key ref.Key) error {
	return errors.WithMessagef(ErrCycleBase, "cycle reaches key %d", key)
}
