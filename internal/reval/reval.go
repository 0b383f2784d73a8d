// Package reval is the topological re-evaluator: an iterative, two-pass
// DFS over the dependency graph's child edges that detects cycles
// reachable from an edited cell and, if none exist, recomputes every
// descendant in dependency-respecting order.
package reval

import (
	"sheet/internal/cellstore"
	"sheet/internal/formula"
	"sheet/internal/graph"
	"sheet/internal/ref"
)

// frame is one entry of the DFS work stack. expanded distinguishes the
// "entering" visit (first pop) from the "leaving" visit (second pop),
// which is how an iterative traversal gets post-order without
// recursion or extra per-child bookkeeping.
type frame struct {
	key      ref.Key
	expanded bool
}

// TopoOrder walks the graph from k0's direct children (point and
// range) and returns the keys reachable from k0 in an order where
// every cell appears after all of its own prerequisites have already
// appeared — i.e. safe to recompute front-to-back. ok is false if the
// walk finds a cycle, in which case cycleKey identifies the key whose
// second visit closed it.
func TopoOrder(g *graph.Graph, k0 ref.Key) (order []ref.Key, cycleKey ref.Key, ok bool) {
	var stack []frame
	seed := directChildren(g, k0)
	for _, c := range seed {
		stack = append(stack, frame{key: c})
	}

	completed := make(map[ref.Key]bool)
	onPath := make(map[ref.Key]bool)
	var result []ref.Key

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if top.expanded {
			delete(onPath, top.key)
			result = append(result, top.key)
			completed[top.key] = true
			continue
		}
		if completed[top.key] {
			continue
		}
		if onPath[top.key] {
			return nil, top.key, false
		}

		stack = append(stack, frame{key: top.key, expanded: true})
		onPath[top.key] = true

		for _, c := range directChildren(g, top.key) {
			if !completed[c] {
				stack = append(stack, frame{key: c})
			}
		}
	}

	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, 0, true
}

func directChildren(g *graph.Graph, k ref.Key) []ref.Key {
	children := g.ChildrenOf(k)
	return append(children, g.RangeChildrenOf(k)...)
}

// Store is the minimal cell-store access reval needs to recompute and
// commit values in place.
type Store interface {
	Get(k ref.Key) cellstore.Value
	Set(k ref.Key, v cellstore.Value)
	Meta(k ref.Key) (cellstore.Meta, bool)
}

// Result summarizes a successful re-evaluation pass: the order
// recomputed (for diagnostics) and the total delay contributed by any
// SLEEP cells touched along the way.
type Result struct {
	Order      []ref.Key
	TotalDelay int32
}

// Run detects a cycle reachable from k0, and if none exists, recomputes
// every descendant in topological order using eval to re-run each
// cell's stored metadata. Returns ok=false on a cycle, leaving the
// store untouched (the caller is expected to roll back from its own
// pre-edit snapshot) and cycleKey set to whichever key closed the
// cycle, for the caller to attach to its error.
func Run(g *graph.Graph, store Store, eval *formula.Evaluator, k0 ref.Key) (result Result, cycleKey ref.Key, ok bool) {
	order, cycleKey, ok := TopoOrder(g, k0)
	if !ok {
		return Result{}, cycleKey, false
	}

	var totalDelay int32
	for _, k := range order {
		m, has := store.Meta(k)
		if !has {
			continue
		}
		rc := eval.RecomputeMeta(m)
		store.Set(k, rc.Value)
		if rc.IsSleep {
			totalDelay += rc.SleepDelay
		}
	}
	return Result{Order: order, TotalDelay: totalDelay}, 0, true
}
