// Package sheet owns the session state a single spreadsheet surface
// needs: the cell store, the dependency graph, locked ranges, named
// ranges and per-cell history. It implements commit and rollback on
// top of internal/formula and internal/reval, and exposes the
// read-only diagnostics (visualize/high_dep/formula) the command
// surface needs.
package sheet

import (
	"sort"
	"strings"

	"sheet/internal/cellstore"
	"sheet/internal/errors"
	"sheet/internal/formula"
	"sheet/internal/graph"
	"sheet/internal/ref"
	"sheet/internal/reval"
)

// Rect is an inclusive rectangle in (row,col) space, used for both
// locked ranges and named ranges.
type Rect struct {
	StartRow, StartCol int
	EndRow, EndCol     int
}

func (r Rect) Contains(row, col int) bool {
	return row >= r.StartRow && row <= r.EndRow && col >= r.StartCol && col <= r.EndCol
}

func (r Rect) Cardinality() int {
	return (r.EndRow - r.StartRow + 1) * (r.EndCol - r.StartCol + 1)
}

// CommitResult is what a successful Assign/History call reports back
// to the dispatcher: the status, and the delay (seconds) SLEEP
// contributed, if any, during the initial evaluation or a downstream
// re-evaluation.
type CommitResult struct {
	Status     errors.Status
	Delay      int32
	LastOrder  []ref.Key
}

// Sheet is the session object: single-threaded, cooperative. There is
// no internal locking because there is never more than one in-flight
// command.
type Sheet struct {
	Store *cellstore.Store
	Graph *graph.Graph
	eval  *formula.Evaluator

	locked []Rect
	names  map[string]Rect

	history map[ref.Key][]cellstore.Value

	lastEdit    ref.Key
	hasLastEdit bool
}

func New(rows, cols int) *Sheet {
	store := cellstore.New(rows, cols)
	g := graph.New(cols)
	s := &Sheet{
		Store:   store,
		Graph:   g,
		names:   make(map[string]Rect),
		history: make(map[ref.Key][]cellstore.Value),
	}
	s.eval = formula.New(store, ref.Bounds{Rows: rows, Cols: cols}, s.resolveName)
	return s
}

func (s *Sheet) bounds() ref.Bounds {
	return ref.Bounds{Rows: s.Store.Rows, Cols: s.Store.Cols}
}

// Reset clears the sheet back to its just-constructed state: every
// cell and its formula metadata, every graph edge, every lock and
// named range, and the history/last-edit tracking used by "history"
// and "last_edit". A load replaces the whole session, not just the
// grid, so nothing from before the load should survive it.
func (s *Sheet) Reset() {
	s.Store.Reset()
	s.Graph.Reset()
	s.locked = nil
	for k := range s.names {
		delete(s.names, k)
	}
	for k := range s.history {
		delete(s.history, k)
	}
	s.lastEdit = 0
	s.hasLastEdit = false
}

// resolveName is the formula.NameResolver: a token resolves to a key
// only if it names a registered range of cardinality one. A multi-cell
// named range has no single value to substitute, so it's left
// unresolved rather than guessing a corner cell.
func (s *Sheet) resolveName(token string) (ref.Key, bool) {
	r, ok := s.names[token]
	if !ok || r.Cardinality() != 1 {
		return 0, false
	}
	return s.Store.Key(r.StartRow, r.StartCol), true
}

func (s *Sheet) isLocked(row, col int) bool {
	for _, r := range s.locked {
		if r.Contains(row, col) {
			return true
		}
	}
	return false
}

// Assign implements "REF=EXPR": parse the expression, then commit it.
func (s *Sheet) Assign(row, col int, expr string) (CommitResult, error) {
	if !s.Store.InBounds(row, col) {
		return CommitResult{}, errors.NewInvalidCell("row/col out of bounds")
	}
	if s.isLocked(row, col) {
		return CommitResult{}, errors.NewLockedCell("%s is locked", ref.FormatCellReference(row, col))
	}

	parsed, err := s.eval.Evaluate(row, col, expr)
	if err != nil {
		// Parsing failed before touching any metadata: no rollback needed.
		return CommitResult{}, err
	}

	return s.commit(row, col, parsed)
}

// commit snapshots the cell's prior value and metadata, wires the new
// formula's edges, re-evaluates everything downstream, and either keeps
// the edit or rolls it back if that re-evaluation finds a cycle.
func (s *Sheet) commit(row, col int, parsed formula.Parsed) (CommitResult, error) {
	key := s.Store.Key(row, col)

	priorValue := s.Store.Get(key)
	priorMeta, hadMeta := s.Store.Meta(key)

	s.Graph.RemoveEdgesForChild(key)

	if parsed.Kind == formula.KindLiteral {
		s.Store.ClearMeta(key)
	} else {
		wireEdges(s.Graph, key, parsed.Formula, parsed.Parent1, parsed.Parent2)
		s.Store.SetMeta(key, cellstore.Meta{
			Formula: parsed.Formula,
			Parent1: parsed.Parent1,
			Parent2: parsed.Parent2,
		})
	}
	s.Store.Set(key, parsed.Value)

	result, cycleKey, ok := reval.Run(s.Graph, s.Store, s.eval, key)
	if !ok {
		// Roll back: evict whatever we just wired, restore the prior
		// value/metadata, and re-register the prior parents' edges.
		s.Graph.RemoveEdgesForChild(key)
		s.Store.Set(key, priorValue)
		if hadMeta {
			wireEdges(s.Graph, key, priorMeta.Formula, priorMeta.Parent1, priorMeta.Parent2)
			s.Store.SetMeta(key, priorMeta)
		} else {
			s.Store.ClearMeta(key)
		}
		cycleErr := graph.WrapCycle(cycleKey)
		return CommitResult{}, errors.NewCircularRef("assignment to %s would close a cycle: %v", ref.FormatCellReference(row, col), cycleErr)
	}

	s.history[key] = append(s.history[key], priorValue)
	s.lastEdit = key
	s.hasLastEdit = true

	return CommitResult{
		Status:    errors.Ok,
		Delay:     parsed.SleepDelay + result.TotalDelay,
		LastOrder: result.Order,
	}, nil
}

// wireEdges adds the point/range edges a formula's shape implies,
// reused both for a fresh commit and for restoring prior edges on
// rollback (so rollback never has to re-derive shape logic).
func wireEdges(g *graph.Graph, key ref.Key, f cellstore.Formula, p1, p2 int32) {
	switch f.Shape() {
	case cellstore.ShapeRef, cellstore.ShapeSleep:
		g.AddPointEdge(ref.Key(p1), key)
	case cellstore.ShapeBinaryCellCell:
		g.AddPointEdge(ref.Key(p1), key)
		g.AddPointEdge(ref.Key(p2), key)
	case cellstore.ShapeBinaryCellLit:
		g.AddPointEdge(ref.Key(p1), key)
	case cellstore.ShapeBinaryLitCell:
		g.AddPointEdge(ref.Key(p2), key)
	case cellstore.ShapeRangeSum, cellstore.ShapeRangeAvg, cellstore.ShapeRangeMin,
		cellstore.ShapeRangeMax, cellstore.ShapeRangeStdev:
		g.AddRangeEdge(ref.Key(p1), ref.Key(p2), key)
	}
}

// History implements "history REF": pop the previous committed value
// off the cell's stack and commit it as a plain literal. This goes
// through the same commit path as Assign (minus expression parsing) so
// it still triggers a full re-evaluation of dependents; a rollback here
// is only possible if undoing this cell's formula parentage somehow
// closed a cycle, which can't happen since History only ever removes
// edges, but we still need the eviction+reval machinery for downstream
// recomputation.
func (s *Sheet) History(row, col int) (CommitResult, error) {
	if !s.Store.InBounds(row, col) {
		return CommitResult{}, errors.NewInvalidCell("row/col out of bounds")
	}
	key := s.Store.Key(row, col)
	stack := s.history[key]
	if len(stack) == 0 {
		return CommitResult{}, errors.NewUnrecognized("no history for %s", ref.FormatCellReference(row, col))
	}
	prev := stack[len(stack)-1]
	s.history[key] = stack[:len(stack)-1]

	return s.commit(row, col, formula.Parsed{Kind: formula.KindLiteral, Value: prev})
}

// LockCell implements "lock_cell REF|RANGE".
func (s *Sheet) LockCell(spec string) error {
	r, err := s.parseRefOrRange(spec)
	if err != nil {
		return err
	}
	s.locked = append(s.locked, r)
	return nil
}

// NameRange implements "name RANGE NAME".
func (s *Sheet) NameRange(spec, name string) error {
	r, err := s.parseRefOrRange(spec)
	if err != nil {
		return err
	}
	if !isNameToken(name) {
		return errors.NewUnrecognized("invalid name %q", name)
	}
	s.names[name] = r
	return nil
}

func isNameToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		ok := (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_'
		if !ok {
			return false
		}
	}
	return true
}

func (s *Sheet) parseRefOrRange(spec string) (Rect, error) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) == 1 {
		row, col, err := ref.ParseCellReference(strings.TrimSpace(parts[0]), s.bounds())
		if err != nil {
			return Rect{}, errors.NewUnrecognized("%v", err)
		}
		return Rect{StartRow: row, StartCol: col, EndRow: row, EndCol: col}, nil
	}
	sr, sc, err := ref.ParseCellReference(strings.TrimSpace(parts[0]), s.bounds())
	if err != nil {
		return Rect{}, errors.NewUnrecognized("%v", err)
	}
	er, ec, err := ref.ParseCellReference(strings.TrimSpace(parts[1]), s.bounds())
	if err != nil {
		return Rect{}, errors.NewUnrecognized("%v", err)
	}
	if sr > er || sc > ec {
		return Rect{}, errors.NewUnrecognized("range %q has start after end", spec)
	}
	return Rect{StartRow: sr, StartCol: sc, EndRow: er, EndCol: ec}, nil
}

// Deps is the read-only result of visualize/high_dep: a cell's direct
// parents and direct children, both point and range-implied.
type Deps struct {
	Parents  []ref.Key
	Children []ref.Key
}

// HighDep implements "high_dep REF" / the enumeration half of
// "visualize REF".
func (s *Sheet) HighDep(row, col int) (Deps, error) {
	if !s.Store.InBounds(row, col) {
		return Deps{}, errors.NewInvalidCell("row/col out of bounds")
	}
	key := s.Store.Key(row, col)

	var parents []ref.Key
	if m, ok := s.Store.Meta(key); ok {
		parents = formulaParents(m, s.Store.Cols)
	}
	parents = append(parents, s.Graph.ParentsPoint(key)...)

	children := s.Graph.ChildrenOf(key)
	children = append(children, s.Graph.RangeChildrenOf(key)...)

	sortKeys(parents)
	sortKeys(children)
	return Deps{Parents: dedupe(parents), Children: dedupe(children)}, nil
}

func formulaParents(m cellstore.Meta, cols int) []ref.Key {
	switch m.Formula.Shape() {
	case cellstore.ShapeRef, cellstore.ShapeSleep, cellstore.ShapeBinaryCellLit:
		return []ref.Key{ref.Key(m.Parent1)}
	case cellstore.ShapeBinaryLitCell:
		return []ref.Key{ref.Key(m.Parent2)}
	case cellstore.ShapeBinaryCellCell:
		return []ref.Key{ref.Key(m.Parent1), ref.Key(m.Parent2)}
	case cellstore.ShapeRangeSum, cellstore.ShapeRangeAvg, cellstore.ShapeRangeMin,
		cellstore.ShapeRangeMax, cellstore.ShapeRangeStdev:
		return rangeKeys(ref.Key(m.Parent1), ref.Key(m.Parent2), cols)
	}
	return nil
}

// rangeKeys enumerates every cell inside [start,end] for diagnostic
// listings (visualize/high_dep). This is the one place the engine
// expands a range into individual keys; the graph itself never does,
// since that's exactly the blow-up internal/graph is designed to avoid.
func rangeKeys(start, end ref.Key, cols int) []ref.Key {
	sr, sc := ref.GetRowCol(start, cols)
	er, ec := ref.GetRowCol(end, cols)
	var out []ref.Key
	for r := sr; r <= er; r++ {
		for c := sc; c <= ec; c++ {
			out = append(out, ref.GetKey(r, c, cols))
		}
	}
	return out
}

func sortKeys(ks []ref.Key) {
	sort.Slice(ks, func(i, j int) bool { return ks[i] < ks[j] })
}

func dedupe(ks []ref.Key) []ref.Key {
	if len(ks) == 0 {
		return ks
	}
	out := ks[:1]
	for _, k := range ks[1:] {
		if k != out[len(out)-1] {
			out = append(out, k)
		}
	}
	return out
}

// FormulaText implements "formula REF": reconstructs a textual
// expression from a cell's metadata.
func (s *Sheet) FormulaText(row, col int) (string, error) {
	if !s.Store.InBounds(row, col) {
		return "", errors.NewInvalidCell("row/col out of bounds")
	}
	key := s.Store.Key(row, col)
	m, ok := s.Store.Meta(key)
	if !ok {
		v := s.Store.Get(key)
		if v.IsError {
			return "ERR", nil
		}
		return itoa(v.Int), nil
	}
	return reconstruct(m, s.Store.Cols), nil
}

func reconstruct(m cellstore.Meta, cols int) string {
	rc := func(k int32) string {
		row, col := ref.GetRowCol(ref.Key(k), cols)
		return ref.FormatCellReference(row, col)
	}
	opSym := func(op int) string {
		switch op {
		case cellstore.OpAdd:
			return "+"
		case cellstore.OpSub:
			return "-"
		case cellstore.OpMul:
			return "*"
		case cellstore.OpDiv:
			return "/"
		}
		return "?"
	}
	switch m.Formula.Shape() {
	case cellstore.ShapeRef:
		return rc(m.Parent1)
	case cellstore.ShapeSleep:
		return "SLEEP(" + rc(m.Parent1) + ")"
	case cellstore.ShapeBinaryCellCell:
		return rc(m.Parent1) + opSym(m.Formula.Op()) + rc(m.Parent2)
	case cellstore.ShapeBinaryCellLit:
		return rc(m.Parent1) + opSym(m.Formula.Op()) + itoa(m.Parent2)
	case cellstore.ShapeBinaryLitCell:
		return itoa(m.Parent1) + opSym(m.Formula.Op()) + rc(m.Parent2)
	case cellstore.ShapeRangeSum:
		return "SUM(" + rc(m.Parent1) + ":" + rc(m.Parent2) + ")"
	case cellstore.ShapeRangeAvg:
		return "AVG(" + rc(m.Parent1) + ":" + rc(m.Parent2) + ")"
	case cellstore.ShapeRangeMin:
		return "MIN(" + rc(m.Parent1) + ":" + rc(m.Parent2) + ")"
	case cellstore.ShapeRangeMax:
		return "MAX(" + rc(m.Parent1) + ":" + rc(m.Parent2) + ")"
	case cellstore.ShapeRangeStdev:
		return "STDEV(" + rc(m.Parent1) + ":" + rc(m.Parent2) + ")"
	}
	return ""
}

func itoa(n int32) string {
	neg := n < 0
	if neg {
		n = -n
	}
	if n == 0 {
		return "0"
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// LastEdit returns the key of the most recently successfully committed
// cell, for the "last_edit" command.
func (s *Sheet) LastEdit() (ref.Key, bool) {
	return s.lastEdit, s.hasLastEdit
}

func (s *Sheet) Bounds() ref.Bounds { return s.bounds() }
