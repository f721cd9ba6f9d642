package core

import "strings"

// RowReader yields the data rows of a comma-delimited document one at a time.
//
// The first non-empty line is the header. Fields are split on plain commas:
// there is no quoting, so a value containing a comma shifts every later column.
// A row shorter than the header leaves the trailing header fields absent; extra
// fields beyond the header are dropped. A RowReader is single-pass.
type RowReader struct {
	lines  []string
	pos    int
	header []string
}

// NewRowReader prepares content for reading. Surrounding whitespace of the
// document and of every line is removed, which also strips '\r' from CRLF input.
func NewRowReader(content string) *RowReader {
	r := &RowReader{lines: strings.Split(strings.TrimSpace(content), "\n")}

	for r.pos < len(r.lines) {
		line := strings.TrimSpace(r.lines[r.pos])
		r.pos++
		if line == "" {
			continue
		}
		r.header = splitFields(line)
		break
	}
	return r
}

// Header returns the trimmed header names, or nil for an empty document.
func (r *RowReader) Header() []string {
	return r.header
}

// Next returns the next data row and its 1-based line number in the document.
// ok is false once the document is exhausted. Blank lines are skipped rather
// than failing the document as an all-empty row.
func (r *RowReader) Next() (row RawRow, line int, ok bool) {
	if r.header == nil {
		return nil, 0, false
	}
	for r.pos < len(r.lines) {
		text := strings.TrimSpace(r.lines[r.pos])
		r.pos++
		if text == "" {
			continue
		}
		return zipRow(r.header, splitFields(text)), r.pos, true
	}
	return nil, 0, false
}

// ReadAllRows drains content into a slice. Intended for tests and small inputs.
func ReadAllRows(content string) []RawRow {
	r := NewRowReader(content)
	var rows []RawRow
	for {
		row, _, ok := r.Next()
		if !ok {
			return rows
		}
		rows = append(rows, row)
	}
}

func splitFields(line string) []string {
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

func zipRow(header, values []string) RawRow {
	n := min(len(header), len(values))
	row := make(RawRow, n)
	for i := 0; i < n; i++ {
		row[header[i]] = values[i]
	}
	return row
}
