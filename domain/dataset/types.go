package dataset

import (
	"strconv"
	"strings"

	"sherockets/domain/core"
)

// RawRowData represents one respondent's wide-format record as column -> cell text
type RawRowData map[string]string

// Row is a respondent record with a stable identifier
type Row struct {
	Index int               `json:"index"`
	ID    core.RespondentID `json:"id"`
	Cells RawRowData        `json:"cells"`
}

// Get returns a trimmed cell value and whether the column exists in the row
func (r Row) Get(column string) (string, bool) {
	v, ok := r.Cells[column]
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// Table is the immutable in-memory survey export, one row per respondent
type Table struct {
	Source  string   `json:"source"`
	Headers []string `json:"headers"`
	Rows    []Row    `json:"rows"`
	index   map[string]bool
}

// NewTable builds a table, assigning respondent IDs from idColumn or the row index
func NewTable(source string, headers []string, records []RawRowData, idColumn string) *Table {
	t := &Table{Source: source, Headers: headers, Rows: make([]Row, len(records)), index: indexHeaders(headers)}
	for i, rec := range records {
		id := core.RespondentID(strconv.Itoa(i))
		if idColumn != "" {
			if v := strings.TrimSpace(rec[idColumn]); v != "" {
				id = core.RespondentID(v)
			}
		}
		t.Rows[i] = Row{Index: i, ID: id, Cells: rec}
	}
	return t
}

// HasColumn reports whether a header exists
func (t *Table) HasColumn(name string) bool {
	return t.index[name]
}

// RowCount returns the number of respondents
func (t *Table) RowCount() int {
	return len(t.Rows)
}

// Hash fingerprints the table content
func (t *Table) Hash() core.DatasetHash {
	cells := make([]map[string]string, len(t.Rows))
	for i, r := range t.Rows {
		cells[i] = r.Cells
	}
	return core.ComputeDatasetHash(t.Headers, cells)
}

// Filter returns a table sharing headers with only the rows that match
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := &Table{Source: t.Source, Headers: t.Headers, index: t.index}
	for _, r := range t.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

func indexHeaders(headers []string) map[string]bool {
	index := make(map[string]bool, len(headers))
	for _, h := range headers {
		index[h] = true
	}
	return index
}
