// Package ref converts between "A1"-style cell references and the
// (row, col) / key coordinate systems the rest of the engine works in.
package ref

import (
	"fmt"
)

// MaxRows and MaxCols bound any grid this package will address.
const (
	MaxRows = 999
	MaxCols = 18278
)

// Bounds describes the dimensions of a grid for reference validation.
type Bounds struct {
	Rows int
	Cols int
}

// Key is the canonical integer identifier of a cell: row*cols + col.
type Key int32

// GetKey encodes (row, col) as a single key under the given column width.
func GetKey(row, col, cols int) Key {
	return Key(row*cols + col)
}

// GetRowCol decodes a key back into (row, col) under the given column width.
func GetRowCol(k Key, cols int) (row, col int) {
	return int(k) / cols, int(k) % cols
}

// ParseCellReference parses a string like "A1" or "ZZZ999" into 0-based
// (row, col), validating it against b. Column letters are base-26 with
// A=1 ("A"->0, "Z"->25, "AA"->26). Row is 1-based in the input, 0-based
// in the result.
func ParseCellReference(s string, b Bounds) (row, col int, err error) {
	if s == "" {
		return 0, 0, fmt.Errorf("unrecognized reference: empty")
	}

	i := 0
	for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
		i++
	}
	if i == 0 || i > 3 {
		return 0, 0, fmt.Errorf("unrecognized reference: %q", s)
	}
	colPart := s[:i]
	rowPart := s[i:]
	if rowPart == "" {
		return 0, 0, fmt.Errorf("unrecognized reference: %q", s)
	}
	for j := 0; j < len(rowPart); j++ {
		if rowPart[j] < '0' || rowPart[j] > '9' {
			return 0, 0, fmt.Errorf("unrecognized reference: %q", s)
		}
	}

	col = 0
	for j := 0; j < len(colPart); j++ {
		col = col*26 + int(colPart[j]-'A'+1)
	}
	col--

	rowNum := 0
	for j := 0; j < len(rowPart); j++ {
		rowNum = rowNum*10 + int(rowPart[j]-'0')
	}
	if rowNum < 1 {
		return 0, 0, fmt.Errorf("unrecognized reference: %q", s)
	}
	row = rowNum - 1

	if row < 0 || row >= b.Rows || col < 0 || col >= b.Cols {
		return 0, 0, fmt.Errorf("unrecognized reference: %q out of bounds", s)
	}
	return row, col, nil
}

// FormatCellReference is the inverse of ParseCellReference, used to
// reconstruct formula text and dependency diagnostics from raw keys.
func FormatCellReference(row, col int) string {
	n := col + 1
	var letters []byte
	for n > 0 {
		n--
		letters = append([]byte{byte('A' + n%26)}, letters...)
		n /= 26
	}
	return fmt.Sprintf("%s%d", letters, row+1)
}
