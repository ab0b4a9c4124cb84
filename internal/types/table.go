package types

import (
	"bytes"
	"encoding/json"
)

// =============================================================================
// TABLE STRUCTURE
// =============================================================================

// TableType names the dialect a table was recognized in.
type TableType string

const (
	// TableTypeMarkdown is a delimiter (pipe) table.
	TableTypeMarkdown TableType = "markdown_table"
	// TableTypeHTML is an embedded <table> element.
	TableTypeHTML TableType = "html_table"
	// TableTypeNone means no table was found.
	TableTypeNone TableType = "none"
)

// Table is the ordered result of table extraction.
type Table struct {
	// Headers are the column names in document order. The empty string is a
	// valid header (the leftmost unlabeled column of a statement).
	Headers []string `json:"headers"`

	// Rows hold one entry per data row, each aligned with Headers.
	Rows []Row `json:"rows"`

	// Metadata describes where the table came from.
	Metadata Metadata `json:"metadata"`
}

// Metadata describes an extracted table.
type Metadata struct {
	// TableCount is the number of candidate tables found in the document.
	TableCount int `json:"tableCount"`

	// Type is the dialect of the table that was used.
	Type TableType `json:"type"`

	// HasData is true when at least one data row was extracted.
	HasData bool `json:"hasData"`

	// Columns is the number of headers.
	Columns int `json:"columns"`

	// Rows is the number of data rows.
	Rows int `json:"rows"`

	// Title is the first heading of the document, if any.
	Title string `json:"title,omitempty"`
}

// EmptyTable returns the "no table found" result.
func EmptyTable() *Table {
	return &Table{
		Headers: []string{},
		Rows:    []Row{},
		Metadata: Metadata{
			Type: TableTypeNone,
		},
	}
}

// NewTable builds a table from headers and already-normalized cell rows.
// Every row is padded with Null or truncated so that it has exactly
// len(headers) values.
func NewTable(headers []string, cells [][]Value, tableType TableType, tableCount int) *Table {
	return NewTableWithText(headers, cells, nil, tableType, tableCount)
}

// NewTableWithText is NewTable that also keeps the trimmed source text of
// every cell. texts[i] belongs to cells[i]; a missing entry means no source
// text is known for that row.
func NewTableWithText(headers []string, cells [][]Value, texts [][]string, tableType TableType, tableCount int) *Table {
	if headers == nil {
		headers = []string{}
	}

	rows := make([]Row, 0, len(cells))
	for i, c := range cells {
		row := NewRow(headers, c)
		if i < len(texts) {
			row.texts = make([]string, len(headers))
			copy(row.texts, texts[i])
		}
		rows = append(rows, row)
	}

	return &Table{
		Headers: headers,
		Rows:    rows,
		Metadata: Metadata{
			TableCount: tableCount,
			Type:       tableType,
			HasData:    len(rows) > 0,
			Columns:    len(headers),
			Rows:       len(rows),
		},
	}
}

// IsEmpty reports whether the table carries no data rows.
func (t *Table) IsEmpty() bool {
	return t == nil || len(t.Rows) == 0
}

// =============================================================================
// ROW STRUCTURE
// =============================================================================

// Row is one data row: an insertion-ordered header -> value record.
type Row struct {
	headers []string
	values  []Value
	texts   []string
}

// NewRow aligns values to headers, padding with Null or truncating.
func NewRow(headers []string, values []Value) Row {
	aligned := make([]Value, len(headers))
	copy(aligned, values)
	return Row{headers: headers, values: aligned}
}

// Len returns the number of entries in the row. It always equals the
// number of table headers.
func (r Row) Len() int { return len(r.values) }

// Headers returns the header of each entry in order.
func (r Row) Headers() []string { return r.headers }

// Values returns the values in header order.
func (r Row) Values() []Value { return r.values }

// Get returns the value under header. When a header occurs more than once
// the rightmost column wins.
func (r Row) Get(header string) (Value, bool) {
	for i := len(r.headers) - 1; i >= 0; i-- {
		if r.headers[i] == header {
			return r.values[i], true
		}
	}
	return Null(), false
}

// Text returns the cell under header as written in the document. Rows
// built without source text render the typed value instead, so a "是"
// cell reads back as "true" there.
func (r Row) Text(header string) (string, bool) {
	for i := len(r.headers) - 1; i >= 0; i-- {
		if r.headers[i] != header {
			continue
		}
		if r.texts != nil {
			return r.texts[i], true
		}
		return r.values[i].Text(), true
	}
	return "", false
}

// MarshalJSON writes the row as a JSON object keyed by header, in header
// order. Duplicate headers keep only their rightmost value.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	written := 0
	for i, h := range r.headers {
		if shadowed(r.headers, i) {
			continue
		}
		if written > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(h)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
		written++
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// shadowed reports whether headers[i] appears again further right.
func shadowed(headers []string, i int) bool {
	for j := i + 1; j < len(headers); j++ {
		if headers[j] == headers[i] {
			return true
		}
	}
	return false
}
