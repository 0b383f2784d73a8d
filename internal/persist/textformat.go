// Package persist implements the sheet's save/load subsystem: a
// line-oriented text format, plus a SQL-backed equivalent that stores
// the same rows in a table instead of a file.
package persist

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"sheet/internal/cellstore"
	"sheet/internal/ref"
	"sheet/internal/sheet"
)

// LoadResult reports how many lines were skipped as malformed, so the
// caller can warn without aborting the whole load.
type LoadResult struct {
	Skipped int
}

// SaveText writes DIMS/CELL lines for every non-default cell in s.
func SaveText(w io.Writer, s *sheet.Sheet) error {
	bw := bufio.NewWriter(w)
	b := s.Bounds()
	if _, err := fmt.Fprintf(bw, "DIMS,%d,%d\n", b.Rows, b.Cols); err != nil {
		return err
	}
	for row := 0; row < b.Rows; row++ {
		for col := 0; col < b.Cols; col++ {
			key := s.Store.Key(row, col)
			v := s.Store.Get(key)
			m, hasMeta := s.Store.Meta(key)
			if !hasMeta && v.Int == 0 && !v.IsError {
				continue
			}
			line := cellLine(row, col, v, m, hasMeta, b.Cols)
			if _, err := bw.WriteString(line + "\n"); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

func cellLine(row, col int, v cellstore.Value, m cellstore.Meta, hasMeta bool, cols int) string {
	refStr := ref.FormatCellReference(row, col)
	val := "ERR"
	if !v.IsError {
		val = strconv.Itoa(int(v.Int))
	}
	if !hasMeta {
		return fmt.Sprintf("CELL,%s,%s", refStr, val)
	}
	p1, p2 := formulaOperandsText(m, cols)
	return fmt.Sprintf("CELL,%s,%s,FORMULA,%d,%s,%s", refStr, val, int(m.Formula), p1, p2)
}

// formulaOperandsText renders parent1/parent2 as cell refs when the
// shape says they're keys, or as plain integers when they're literals,
// so a FORMULA line round-trips through LoadText without ambiguity.
func formulaOperandsText(m cellstore.Meta, cols int) (string, string) {
	p1key, p2key := isKeyOperand(m.Formula)
	var p1, p2 string
	if p1key {
		r, c := ref.GetRowCol(ref.Key(m.Parent1), cols)
		p1 = ref.FormatCellReference(r, c)
	} else {
		p1 = strconv.Itoa(int(m.Parent1))
	}
	if p2key {
		r, c := ref.GetRowCol(ref.Key(m.Parent2), cols)
		p2 = ref.FormatCellReference(r, c)
	} else {
		p2 = strconv.Itoa(int(m.Parent2))
	}
	return p1, p2
}

func isKeyOperand(f cellstore.Formula) (p1IsKey, p2IsKey bool) {
	switch f.Shape() {
	case cellstore.ShapeRef, cellstore.ShapeSleep:
		return true, false
	case cellstore.ShapeBinaryCellCell:
		return true, true
	case cellstore.ShapeBinaryCellLit:
		return true, false
	case cellstore.ShapeBinaryLitCell:
		return false, true
	case cellstore.ShapeRangeSum, cellstore.ShapeRangeAvg, cellstore.ShapeRangeMin,
		cellstore.ShapeRangeMax, cellstore.ShapeRangeStdev:
		return true, true
	}
	return false, false
}

// LoadText clears s and replays DIMS/CELL lines from r. Malformed lines
// are skipped and counted in LoadResult rather than aborting the load.
//
// LoadText only replays the committed grid and raw metadata; it does
// not re-run each formula through Sheet.Assign. It wires graph edges
// directly from the loaded metadata, trusting the file rather than
// re-deriving it from formula text.
func LoadText(r io.Reader, s *sheet.Sheet) (LoadResult, error) {
	s.Reset()
	scanner := bufio.NewScanner(r)
	var result LoadResult
	b := s.Bounds()

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		switch fields[0] {
		case "DIMS":
			// Dimensions are fixed at Sheet construction time; a DIMS
			// line whose counts don't match the current sheet is
			// treated as informational only.
			continue
		case "CELL":
			if !loadCellLine(fields, s, b) {
				result.Skipped++
			}
		default:
			result.Skipped++
		}
	}
	return result, scanner.Err()
}

func loadCellLine(fields []string, s *sheet.Sheet, b ref.Bounds) bool {
	if len(fields) < 3 {
		return false
	}
	row, col, err := ref.ParseCellReference(fields[1], b)
	if err != nil {
		return false
	}
	key := s.Store.Key(row, col)

	var val cellstore.Value
	if fields[2] == "ERR" {
		val = cellstore.ErrValue
	} else {
		n, err := strconv.Atoi(fields[2])
		if err != nil {
			return false
		}
		val = cellstore.IntValue(int32(n))
	}
	s.Store.Set(key, val)

	if len(fields) == 3 {
		s.Store.ClearMeta(key)
		return true
	}
	if len(fields) != 7 || fields[3] != "FORMULA" {
		return false
	}
	code, err := strconv.Atoi(fields[4])
	if err != nil {
		return false
	}
	f := cellstore.Formula(code)
	p1key, p2key := isKeyOperand(f)

	p1, ok1 := parseOperandField(fields[5], p1key, b, s.Store.Cols)
	p2, ok2 := parseOperandField(fields[6], p2key, b, s.Store.Cols)
	if !ok1 || !ok2 {
		return false
	}
	s.Store.SetMeta(key, cellstore.Meta{Formula: f, Parent1: p1, Parent2: p2})
	wireLoadedEdges(s, key, f, p1, p2)
	return true
}

func parseOperandField(field string, isKey bool, b ref.Bounds, cols int) (int32, bool) {
	if isKey {
		row, col, err := ref.ParseCellReference(field, b)
		if err != nil {
			return 0, false
		}
		return int32(ref.GetKey(row, col, cols)), true
	}
	n, err := strconv.Atoi(field)
	if err != nil {
		return 0, false
	}
	return int32(n), true
}

func wireLoadedEdges(s *sheet.Sheet, key ref.Key, f cellstore.Formula, p1, p2 int32) {
	switch f.Shape() {
	case cellstore.ShapeRef, cellstore.ShapeSleep:
		s.Graph.AddPointEdge(ref.Key(p1), key)
	case cellstore.ShapeBinaryCellCell:
		s.Graph.AddPointEdge(ref.Key(p1), key)
		s.Graph.AddPointEdge(ref.Key(p2), key)
	case cellstore.ShapeBinaryCellLit:
		s.Graph.AddPointEdge(ref.Key(p1), key)
	case cellstore.ShapeBinaryLitCell:
		s.Graph.AddPointEdge(ref.Key(p2), key)
	case cellstore.ShapeRangeSum, cellstore.ShapeRangeAvg, cellstore.ShapeRangeMin,
		cellstore.ShapeRangeMax, cellstore.ShapeRangeStdev:
		s.Graph.AddRangeEdge(ref.Key(p1), ref.Key(p2), key)
	}
}
