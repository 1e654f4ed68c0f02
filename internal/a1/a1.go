// Package a1 converts between spreadsheet column numbers, column letters and
// A1-style range addresses such as "Sheet1!B2:K40". Columns and rows are
// 1-based throughout, matching the spreadsheet's own notation.
package a1

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidAddress is returned for addresses that cannot be parsed.
var ErrInvalidAddress = errors.New("invalid A1 address")

// Worksheet limits. Column XFD is the last one, so letters never run past
// three.
const (
	MaxColumn        = 16384
	MaxRow           = 1048576
	maxColumnLetters = 3
)

// ColumnLetter returns the letters for a 1-based column number: 1 → "A",
// 26 → "Z", 27 → "AA". It returns "" for n < 1. Numbers past MaxColumn
// still render; 14 letters cover any int.
func ColumnLetter(n int) string {
	if n < 1 {
		return ""
	}
	var buf [14]byte
	i := len(buf)
	for n > 0 {
		n--
		i--
		buf[i] = byte('A' + n%26)
		n /= 26
	}
	return string(buf[i:])
}

// ColumnNumber is the inverse of ColumnLetter for columns A through XFD.
// Letters are case-insensitive.
func ColumnNumber(letters string) (int, error) {
	if letters == "" {
		return 0, fmt.Errorf("%w: empty column", ErrInvalidAddress)
	}
	if len(letters) > maxColumnLetters {
		return 0, fmt.Errorf("%w: column %q past XFD", ErrInvalidAddress, letters)
	}
	n := 0
	for _, r := range strings.ToUpper(letters) {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("%w: column %q", ErrInvalidAddress, letters)
		}
		n = n*26 + int(r-'A'+1)
	}
	if n > MaxColumn {
		return 0, fmt.Errorf("%w: column %q past XFD", ErrInvalidAddress, letters)
	}
	return n, nil
}

// Cell is one cell coordinate.
type Cell struct {
	Col int
	Row int
}

// String renders the cell as "B7".
func (c Cell) String() string {
	return ColumnLetter(c.Col) + strconv.Itoa(c.Row)
}

// Range is a rectangular block on a single worksheet.
type Range struct {
	Sheet string
	Start Cell
	End   Cell
}

// Rows returns the number of rows covered.
func (r Range) Rows() int { return r.End.Row - r.Start.Row + 1 }

// Cols returns the number of columns covered.
func (r Range) Cols() int { return r.End.Col - r.Start.Col + 1 }

// Address renders the range without the sheet prefix, collapsing a single
// cell to "B7".
func (r Range) Address() string {
	if r.Start == r.End {
		return r.Start.String()
	}
	return r.Start.String() + ":" + r.End.String()
}

// String renders the range with its sheet prefix when one is set, quoting
// sheet names that contain anything but letters, digits and underscores.
func (r Range) String() string {
	if r.Sheet == "" {
		return r.Address()
	}
	return quoteSheet(r.Sheet) + "!" + r.Address()
}

// Column narrows the range to a single column, 0-based offset from its first
// column.
func (r Range) Column(offset int) Range {
	col := r.Start.Col + offset
	return Range{Sheet: r.Sheet, Start: Cell{Col: col, Row: r.Start.Row}, End: Cell{Col: col, Row: r.End.Row}}
}

// LastRow narrows the range to its final row.
func (r Range) LastRow() Range {
	return Range{Sheet: r.Sheet, Start: Cell{Col: r.Start.Col, Row: r.End.Row}, End: r.End}
}

// Row narrows the range to one row, 0-based offset from its first row.
func (r Range) Row(offset int) Range {
	row := r.Start.Row + offset
	return Range{Sheet: r.Sheet, Start: Cell{Col: r.Start.Col, Row: row}, End: Cell{Col: r.End.Col, Row: row}}
}

// Parse reads "Sheet1!A2:C9", "'My Sheet'!B4", "A1:B2" or "C3".
func Parse(address string) (Range, error) {
	var out Range
	ref := strings.TrimSpace(address)
	if i := strings.LastIndex(ref, "!"); i >= 0 {
		out.Sheet = unquoteSheet(ref[:i])
		ref = ref[i+1:]
	}
	startRef, endRef, isRange := strings.Cut(ref, ":")
	start, err := parseCell(startRef)
	if err != nil {
		return Range{}, err
	}
	end := start
	if isRange {
		if end, err = parseCell(endRef); err != nil {
			return Range{}, err
		}
	}
	if end.Col < start.Col || end.Row < start.Row {
		return Range{}, fmt.Errorf("%w: %q is inverted", ErrInvalidAddress, address)
	}
	out.Start, out.End = start, end
	return out, nil
}

func parseCell(ref string) (Cell, error) {
	ref = strings.ReplaceAll(ref, "$", "")
	i := 0
	for i < len(ref) && (ref[i] >= 'A' && ref[i] <= 'Z' || ref[i] >= 'a' && ref[i] <= 'z') {
		i++
	}
	if i == 0 || i == len(ref) {
		return Cell{}, fmt.Errorf("%w: cell %q", ErrInvalidAddress, ref)
	}
	col, err := ColumnNumber(ref[:i])
	if err != nil {
		return Cell{}, err
	}
	row, err := strconv.Atoi(ref[i:])
	if err != nil || row < 1 || row > MaxRow {
		return Cell{}, fmt.Errorf("%w: row in %q", ErrInvalidAddress, ref)
	}
	return Cell{Col: col, Row: row}, nil
}

func unquoteSheet(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		s = strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return s
}

func quoteSheet(s string) string {
	for _, r := range s {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z') {
			return "'" + strings.ReplaceAll(s, "'", "''") + "'"
		}
	}
	return s
}
