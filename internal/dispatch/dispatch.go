// Package dispatch is the command surface: it parses one command line
// at a time and drives internal/sheet, returning a status code plus
// whatever text the command produces. It owns viewport state and the
// output-enabled flag; actually rendering the grid is left to a caller
// that reads Dispatcher's exported viewport fields.
package dispatch

import (
	"fmt"
	"strconv"
	"strings"

	"sheet/internal/errors"
	"sheet/internal/ref"
	"sheet/internal/sheet"
	"sheet/internal/visualize"
)

const viewportStep = 10

// Outcome is everything one dispatched command produced.
type Outcome struct {
	Status  errors.Status
	Message string
	Delay   int32
	Quit    bool
}

type Dispatcher struct {
	Sheet *sheet.Sheet

	ViewRow, ViewCol   int
	DispRows, DispCols int

	OutputEnabled bool
	LastStatus    errors.Status
}

func New(s *sheet.Sheet) *Dispatcher {
	return &Dispatcher{
		Sheet:         s,
		DispRows:      10,
		DispCols:      10,
		OutputEnabled: true,
		LastStatus:    errors.Ok,
	}
}

// Dispatch parses and executes a single command line.
func (d *Dispatcher) Dispatch(line string) Outcome {
	out := d.dispatch(line)
	d.LastStatus = out.Status
	return out
}

func (d *Dispatcher) dispatch(line string) Outcome {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Outcome{Status: errors.Unrecognized, Message: "empty command"}
	}

	switch trimmed {
	case "q":
		return Outcome{Status: errors.Ok, Quit: true}
	case "w":
		d.move(-viewportStep, 0)
		return Outcome{Status: errors.Ok}
	case "s":
		d.move(viewportStep, 0)
		return Outcome{Status: errors.Ok}
	case "a":
		d.move(0, -viewportStep)
		return Outcome{Status: errors.Ok}
	case "d":
		d.move(0, viewportStep)
		return Outcome{Status: errors.Ok}
	case "disable_output":
		d.OutputEnabled = false
		return Outcome{Status: errors.Ok}
	case "enable_output":
		d.OutputEnabled = true
		return Outcome{Status: errors.Ok}
	case "last_edit":
		return d.lastEdit()
	}

	if rest, ok := cutPrefix(trimmed, "scroll_to "); ok {
		return d.scrollTo(rest)
	}
	if rest, ok := cutPrefix(trimmed, "display "); ok {
		return d.display(rest)
	}
	if rest, ok := cutPrefix(trimmed, "lock_cell "); ok {
		return d.lockCell(rest)
	}
	if rest, ok := cutPrefix(trimmed, "name "); ok {
		return d.nameRange(rest)
	}
	if rest, ok := cutPrefix(trimmed, "history "); ok {
		return d.history(rest)
	}
	if rest, ok := cutPrefix(trimmed, "formula "); ok {
		return d.formulaText(rest)
	}
	if rest, ok := cutPrefix(trimmed, "visualize "); ok {
		return d.visualize(rest)
	}
	if rest, ok := cutPrefix(trimmed, "high_dep "); ok {
		return d.highDep(rest)
	}
	if eq := strings.IndexByte(trimmed, '='); eq > 0 {
		return d.assign(trimmed[:eq], trimmed[eq+1:])
	}

	return Outcome{Status: errors.Unrecognized, Message: fmt.Sprintf("unrecognized command %q", trimmed)}
}

func cutPrefix(s, prefix string) (string, bool) {
	if !strings.HasPrefix(s, prefix) {
		return "", false
	}
	return strings.TrimSpace(s[len(prefix):]), true
}

func (d *Dispatcher) move(dr, dc int) {
	b := d.Sheet.Bounds()
	d.ViewRow = clamp(d.ViewRow+dr, 0, maxInt(0, b.Rows-1))
	d.ViewCol = clamp(d.ViewCol+dc, 0, maxInt(0, b.Cols-1))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (d *Dispatcher) assign(refTok, expr string) Outcome {
	row, col, err := ref.ParseCellReference(strings.TrimSpace(refTok), d.Sheet.Bounds())
	if err != nil {
		return statusErr(err)
	}
	res, err := d.Sheet.Assign(row, col, strings.TrimSpace(expr))
	if err != nil {
		return statusErr(err)
	}
	msg := ""
	if res.Delay > 0 {
		msg = fmt.Sprintf("added delay of %d", res.Delay)
	}
	return Outcome{Status: res.Status, Message: msg, Delay: res.Delay}
}

func (d *Dispatcher) scrollTo(refTok string) Outcome {
	row, col, err := ref.ParseCellReference(refTok, d.Sheet.Bounds())
	if err != nil {
		return Outcome{Status: errors.InvalidCell, Message: err.Error()}
	}
	d.ViewRow, d.ViewCol = row, col
	return Outcome{Status: errors.Ok}
}

func (d *Dispatcher) display(arg string) Outcome {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > 15 {
		return Outcome{Status: errors.Unrecognized, Message: "display N requires 1 <= N <= 15"}
	}
	d.DispRows, d.DispCols = n, n
	return Outcome{Status: errors.Ok}
}

func (d *Dispatcher) lockCell(spec string) Outcome {
	if err := d.Sheet.LockCell(spec); err != nil {
		return statusErr(err)
	}
	return Outcome{Status: errors.Ok}
}

func (d *Dispatcher) nameRange(arg string) Outcome {
	parts := strings.Fields(arg)
	if len(parts) != 2 {
		return Outcome{Status: errors.Unrecognized, Message: "usage: name RANGE NAME"}
	}
	if err := d.Sheet.NameRange(parts[0], parts[1]); err != nil {
		return statusErr(err)
	}
	return Outcome{Status: errors.Ok}
}

func (d *Dispatcher) history(refTok string) Outcome {
	row, col, err := ref.ParseCellReference(refTok, d.Sheet.Bounds())
	if err != nil {
		return Outcome{Status: errors.Unrecognized, Message: err.Error()}
	}
	res, err := d.Sheet.History(row, col)
	if err != nil {
		return statusErr(err)
	}
	return Outcome{Status: res.Status, Delay: res.Delay}
}

func (d *Dispatcher) formulaText(refTok string) Outcome {
	row, col, err := ref.ParseCellReference(refTok, d.Sheet.Bounds())
	if err != nil {
		return Outcome{Status: errors.Unrecognized, Message: err.Error()}
	}
	text, err := d.Sheet.FormulaText(row, col)
	if err != nil {
		return statusErr(err)
	}
	return Outcome{Status: errors.Ok, Message: text}
}

func (d *Dispatcher) highDep(refTok string) Outcome {
	row, col, err := ref.ParseCellReference(refTok, d.Sheet.Bounds())
	if err != nil {
		return Outcome{Status: errors.Unrecognized, Message: err.Error()}
	}
	l, err := visualize.BuildListing(d.Sheet, row, col)
	if err != nil {
		return statusErr(err)
	}
	return Outcome{Status: errors.Ok, Message: l.String()}
}

func (d *Dispatcher) visualize(refTok string) Outcome {
	row, col, err := ref.ParseCellReference(refTok, d.Sheet.Bounds())
	if err != nil {
		return Outcome{Status: errors.Unrecognized, Message: err.Error()}
	}
	l, err := visualize.BuildListing(d.Sheet, row, col)
	if err != nil {
		return statusErr(err)
	}
	msg := l.String()
	if path, ok, rerr := visualize.RenderPNG(l, "."); ok {
		msg += fmt.Sprintf("rendered %s\n", path)
	} else if rerr != nil {
		msg += fmt.Sprintf("render failed: %v\n", rerr)
	}
	return Outcome{Status: errors.Ok, Message: msg}
}

func (d *Dispatcher) lastEdit() Outcome {
	key, ok := d.Sheet.LastEdit()
	if !ok {
		return Outcome{Status: errors.Unrecognized, Message: "no edits yet"}
	}
	row, col := ref.GetRowCol(key, d.Sheet.Store.Cols)
	d.ViewRow, d.ViewCol = row, col
	return Outcome{Status: errors.Ok, Message: ref.FormatCellReference(row, col)}
}

func statusErr(err error) Outcome {
	status := errors.StatusOf(err)
	return Outcome{Status: status, Message: err.Error()}
}
