// Package formula is the formula evaluator: it parses an assignment's
// right-hand side into a formula code plus parent references and
// produces the scalar result for the initial commit. The same parsing
// shapes are re-run, without re-parsing text, by internal/reval during
// topological re-evaluation.
package formula

import (
	"strings"

	"sheet/internal/cellstore"
	sheeterrors "sheet/internal/errors"
	"sheet/internal/kernels"
	"sheet/internal/ref"
)

// Kind distinguishes the shapes evaluate can return, mirroring the low
// digit of cellstore.Formula but spelled out for callers that don't
// want to re-decode the packed integer.
type Kind int

const (
	KindLiteral Kind = iota
	KindRef
	KindBinary
	KindRangeAgg
	KindSleepRef
)

// Parsed is the outcome of evaluating one assignment's expression.
type Parsed struct {
	Kind    Kind
	Formula cellstore.Formula
	Parent1 int32
	Parent2 int32
	Value   cellstore.Value

	// Only set when Kind == KindRangeAgg: the rectangle the aggregate
	// spans, in (row,col) terms. Edge wiring and internal/reval work
	// from Parent1/Parent2 instead, not from this field.
	Rect kernels.Rect

	// SleepDelay is the integer contribution this command makes to the
	// pending delay (0 when the expression isn't a SLEEP at all).
	SleepDelay int32
	IsSleep    bool
}

// NameResolver resolves a token naming a single-cell named range to its
// key. Returns ok=false if the token isn't a registered named range (or
// the named range doesn't have cardinality one).
type NameResolver func(token string) (ref.Key, bool)

// Grid is the minimal read access the evaluator needs from the cell
// store; cellstore.Store satisfies it directly.
type Grid interface {
	GetRowCol(row, col int) cellstore.Value
	InBounds(row, col int) bool
}

type Evaluator struct {
	Grid     Grid
	Bounds   ref.Bounds
	Cols     int
	Resolve  NameResolver
}

func New(g Grid, b ref.Bounds, resolve NameResolver) *Evaluator {
	return &Evaluator{Grid: g, Bounds: b, Cols: b.Cols, Resolve: resolve}
}

// operand is the result of resolving one side of a binary expression,
// or the sole token of a whole-expression reference/literal.
type operand struct {
	isLiteral bool
	literal   int32
	key       ref.Key
	row, col  int
}

func isIdentChar(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_'
}

func isIdentToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isIdentChar(s[i]) {
			return false
		}
	}
	return true
}

// tryLiteral parses s as a signed base-10 32-bit integer, consuming the
// entire string. This fast path runs before any reference
// interpretation is attempted: a bare number is always a literal, never
// a reference token.
func tryLiteral(s string) (int32, bool) {
	if s == "" {
		return 0, false
	}
	i := 0
	neg := false
	if s[0] == '-' || s[0] == '+' {
		neg = s[0] == '-'
		i++
	}
	if i == len(s) {
		return 0, false
	}
	var n int64
	for ; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		n = n*10 + int64(s[i]-'0')
		limit := int64(1 << 31)
		if !neg {
			limit--
		}
		if n > limit {
			return 0, false
		}
	}
	if neg {
		n = -n
	}
	return int32(n), true
}

// resolveOperand tries, in order: integer literal, then cell reference,
// then named range of cardinality one. This is the same precedence
// used at the whole-expression level, reused for each side of a binary
// expression and for range/SLEEP arguments.
func (e *Evaluator) resolveOperand(tok string) (operand, bool) {
	if lit, ok := tryLiteral(tok); ok {
		return operand{isLiteral: true, literal: lit}, true
	}
	if row, col, err := ref.ParseCellReference(tok, e.Bounds); err == nil {
		return operand{key: ref.GetKey(row, col, e.Cols), row: row, col: col}, true
	}
	if e.Resolve != nil {
		if k, ok := e.Resolve(tok); ok {
			row, col := ref.GetRowCol(k, e.Cols)
			return operand{key: k, row: row, col: col}, true
		}
	}
	return operand{}, false
}

var rangeFuncs = map[string]int{
	"SUM":   cellstore.ShapeRangeSum,
	"AVG":   cellstore.ShapeRangeAvg,
	"MIN":   cellstore.ShapeRangeMin,
	"MAX":   cellstore.ShapeRangeMax,
	"STDEV": cellstore.ShapeRangeStdev,
}

// Evaluate dispatches on expr's shape: empty -> error, range-aggregate
// prefix, SLEEP prefix, literal fast path, whole-token reference, and
// finally the generic binary-operator split. Range-aggregate and SLEEP
// are parenthesized prefixes that can't collide with a bare literal or
// reference token, so they're checked first; a literal is cheaper to
// rule in or out than a reference, so it comes next.
func (e *Evaluator) Evaluate(row, col int, expr string) (Parsed, error) {
	if expr == "" {
		return Parsed{}, errUnrecognized("empty expression")
	}

	if p, ok, err := e.tryRangeAgg(expr); ok || err != nil {
		return p, err
	}

	if p, ok, err := e.trySleep(row, col, expr); ok || err != nil {
		return p, err
	}

	if lit, ok := tryLiteral(expr); ok {
		return Parsed{Kind: KindLiteral, Value: cellstore.IntValue(lit)}, nil
	}

	if isIdentToken(expr) {
		if op, ok := e.resolveOperand(expr); ok && !op.isLiteral {
			v := e.Grid.GetRowCol(op.row, op.col)
			return Parsed{
				Kind:    KindRef,
				Formula: cellstore.MakeFormula(0, cellstore.ShapeRef),
				Parent1: int32(op.key),
				Value:   v,
			}, nil
		}
		return Parsed{}, errUnrecognized("unresolved reference %q", expr)
	}

	return e.tryBinary(expr)
}

func (e *Evaluator) tryRangeAgg(expr string) (Parsed, bool, error) {
	for name, shape := range rangeFuncs {
		prefix := name + "("
		if !strings.HasPrefix(expr, prefix) || !strings.HasSuffix(expr, ")") {
			continue
		}
		body := expr[len(prefix) : len(expr)-1]
		parts := strings.SplitN(body, ":", 2)
		if len(parts) != 2 {
			return Parsed{}, true, errUnrecognized("malformed range %q", expr)
		}
		startOp, ok1 := e.resolveOperand(strings.TrimSpace(parts[0]))
		endOp, ok2 := e.resolveOperand(strings.TrimSpace(parts[1]))
		if !ok1 || !ok2 || startOp.isLiteral || endOp.isLiteral {
			return Parsed{}, true, errUnrecognized("malformed range %q", expr)
		}
		if startOp.row > endOp.row || startOp.col > endOp.col {
			return Parsed{}, true, errUnrecognized("range %q has start after end", expr)
		}
		rect := kernels.Rect{
			StartRow: startOp.row, StartCol: startOp.col,
			EndRow: endOp.row, EndCol: endOp.col,
		}
		val := runKernel(shape, e.Grid, rect)
		p := Parsed{
			Kind:    KindRangeAgg,
			Formula: cellstore.MakeFormula(0, shape),
			Parent1: int32(startOp.key),
			Parent2: int32(endOp.key),
			Value:   val,
			Rect:    rect,
		}
		return p, true, nil
	}
	return Parsed{}, false, nil
}

func runKernel(shape int, g kernels.Reader, rect kernels.Rect) cellstore.Value {
	switch shape {
	case cellstore.ShapeRangeSum:
		return kernels.Sum(g, rect)
	case cellstore.ShapeRangeAvg:
		return kernels.Avg(g, rect)
	case cellstore.ShapeRangeMin:
		return kernels.Min(g, rect)
	case cellstore.ShapeRangeMax:
		return kernels.Max(g, rect)
	case cellstore.ShapeRangeStdev:
		return kernels.Stdev(g, rect)
	default:
		return cellstore.ErrValue
	}
}

func (e *Evaluator) trySleep(row, col int, expr string) (Parsed, bool, error) {
	const prefix = "SLEEP("
	if !strings.HasPrefix(expr, prefix) || !strings.HasSuffix(expr, ")") {
		return Parsed{}, false, nil
	}
	body := strings.TrimSpace(expr[len(prefix) : len(expr)-1])

	if lit, ok := tryLiteral(body); ok {
		return Parsed{Kind: KindLiteral, Value: cellstore.IntValue(lit), SleepDelay: lit, IsSleep: true}, true, nil
	}

	op, ok := e.resolveOperand(body)
	if !ok || op.isLiteral {
		return Parsed{}, true, errUnrecognized("malformed SLEEP argument %q", body)
	}
	selfKey := ref.GetKey(row, col, e.Cols)
	if op.key == selfKey {
		return Parsed{}, true, errCircular("SLEEP self-reference at %s", ref.FormatCellReference(row, col))
	}
	v := e.Grid.GetRowCol(op.row, op.col)
	delay := v.Int
	if v.IsError {
		delay = 0
	}
	p := Parsed{
		Kind:       KindSleepRef,
		Formula:    cellstore.Formula(cellstore.ShapeSleep),
		Parent1:    int32(op.key),
		Value:      v,
		SleepDelay: delay,
		IsSleep:    true,
	}
	return p, true, nil
}

// tryBinary implements step 5: find the first of +,-,*,/ starting at
// index 1 (a leading '-' is a signed literal, not subtraction), split,
// and resolve each side as a literal or a reference.
func (e *Evaluator) tryBinary(expr string) (Parsed, error) {
	opIdx := -1
	var opChar byte
	for i := 1; i < len(expr); i++ {
		switch expr[i] {
		case '+', '-', '*', '/':
			opIdx = i
			opChar = expr[i]
		}
		if opIdx != -1 {
			break
		}
	}
	if opIdx == -1 {
		return Parsed{}, errUnrecognized("unrecognized expression %q", expr)
	}

	leftTok := expr[:opIdx]
	rightTok := expr[opIdx+1:]
	left, ok1 := e.resolveOperand(leftTok)
	right, ok2 := e.resolveOperand(rightTok)
	if !ok1 || !ok2 {
		return Parsed{}, errUnrecognized("unrecognized expression %q", expr)
	}

	opCode := opCodeFor(opChar)

	leftVal, rightVal := left.literal, right.literal
	if !left.isLiteral {
		v := e.Grid.GetRowCol(left.row, left.col)
		if v.IsError {
			return finishBinary(opCode, left, right, cellstore.ErrValue), nil
		}
		leftVal = v.Int
	}
	if !right.isLiteral {
		v := e.Grid.GetRowCol(right.row, right.col)
		if v.IsError {
			return finishBinary(opCode, left, right, cellstore.ErrValue), nil
		}
		rightVal = v.Int
	}

	result := applyOp(opCode, leftVal, rightVal)
	return finishBinary(opCode, left, right, result), nil
}

func finishBinary(opCode int, left, right operand, result cellstore.Value) Parsed {
	switch {
	case left.isLiteral && right.isLiteral:
		// Both sides are literals: there is nothing to depend on, so
		// this collapses to a plain literal commit with no metadata.
		return Parsed{Kind: KindLiteral, Value: result}
	case !left.isLiteral && !right.isLiteral:
		return Parsed{
			Kind:    KindBinary,
			Formula: cellstore.MakeFormula(opCode, cellstore.ShapeBinaryCellCell),
			Parent1: int32(left.key),
			Parent2: int32(right.key),
			Value:   result,
		}
	case !left.isLiteral && right.isLiteral:
		return Parsed{
			Kind:    KindBinary,
			Formula: cellstore.MakeFormula(opCode, cellstore.ShapeBinaryCellLit),
			Parent1: int32(left.key),
			Parent2: right.literal,
			Value:   result,
		}
	default: // left.isLiteral && !right.isLiteral
		return Parsed{
			Kind:    KindBinary,
			Formula: cellstore.MakeFormula(opCode, cellstore.ShapeBinaryLitCell),
			Parent1: left.literal,
			Parent2: int32(right.key),
			Value:   result,
		}
	}
}

func opCodeFor(c byte) int {
	switch c {
	case '+':
		return cellstore.OpAdd
	case '-':
		return cellstore.OpSub
	case '/':
		return cellstore.OpDiv
	case '*':
		return cellstore.OpMul
	}
	return 0
}

// applyOp computes a binary op with truncated division; divide-by-zero
// yields the error sentinel.
func applyOp(opCode int, left, right int32) cellstore.Value {
	switch opCode {
	case cellstore.OpAdd:
		return cellstore.IntValue(left + right)
	case cellstore.OpSub:
		return cellstore.IntValue(left - right)
	case cellstore.OpMul:
		return cellstore.IntValue(left * right)
	case cellstore.OpDiv:
		if right == 0 {
			return cellstore.ErrValue
		}
		return cellstore.IntValue(left / right)
	}
	return cellstore.ErrValue
}

// Recomputed is the outcome of re-running one cell's stored metadata
// against the current grid, without re-parsing any text.
type Recomputed struct {
	Value      cellstore.Value
	SleepDelay int32
	IsSleep    bool
}

// RecomputeMeta re-evaluates a single cell's metadata using its packed
// formula encoding. internal/reval calls this once per cell, in
// topological order, during re-evaluation.
func (e *Evaluator) RecomputeMeta(m cellstore.Meta) Recomputed {
	shape := m.Formula.Shape()
	switch shape {
	case cellstore.ShapeRef:
		row, col := ref.GetRowCol(ref.Key(m.Parent1), e.Cols)
		return Recomputed{Value: e.Grid.GetRowCol(row, col)}

	case cellstore.ShapeSleep:
		row, col := ref.GetRowCol(ref.Key(m.Parent1), e.Cols)
		v := e.Grid.GetRowCol(row, col)
		delay := v.Int
		if v.IsError {
			delay = 0
		}
		return Recomputed{Value: v, SleepDelay: delay, IsSleep: true}

	case cellstore.ShapeBinaryCellCell:
		lr, lc := ref.GetRowCol(ref.Key(m.Parent1), e.Cols)
		rr, rc := ref.GetRowCol(ref.Key(m.Parent2), e.Cols)
		lv := e.Grid.GetRowCol(lr, lc)
		rv := e.Grid.GetRowCol(rr, rc)
		if lv.IsError || rv.IsError {
			return Recomputed{Value: cellstore.ErrValue}
		}
		return Recomputed{Value: applyOp(m.Formula.Op(), lv.Int, rv.Int)}

	case cellstore.ShapeBinaryCellLit:
		lr, lc := ref.GetRowCol(ref.Key(m.Parent1), e.Cols)
		lv := e.Grid.GetRowCol(lr, lc)
		if lv.IsError {
			return Recomputed{Value: cellstore.ErrValue}
		}
		return Recomputed{Value: applyOp(m.Formula.Op(), lv.Int, m.Parent2)}

	case cellstore.ShapeBinaryLitCell:
		rr, rc := ref.GetRowCol(ref.Key(m.Parent2), e.Cols)
		rv := e.Grid.GetRowCol(rr, rc)
		if rv.IsError {
			return Recomputed{Value: cellstore.ErrValue}
		}
		return Recomputed{Value: applyOp(m.Formula.Op(), m.Parent1, rv.Int)}

	case cellstore.ShapeRangeSum, cellstore.ShapeRangeAvg, cellstore.ShapeRangeMin,
		cellstore.ShapeRangeMax, cellstore.ShapeRangeStdev:
		sr, sc := ref.GetRowCol(ref.Key(m.Parent1), e.Cols)
		er, ec := ref.GetRowCol(ref.Key(m.Parent2), e.Cols)
		rect := kernels.Rect{StartRow: sr, StartCol: sc, EndRow: er, EndCol: ec}
		return Recomputed{Value: runKernel(shape, e.Grid, rect)}
	}
	return Recomputed{Value: cellstore.ErrValue}
}

func errUnrecognized(format string, args ...interface{}) error {
	return sheeterrors.NewUnrecognized(format, args...)
}

func errCircular(format string, args ...interface{}) error {
	return sheeterrors.NewCircularRef(format, args...)
}
