// Package models defines the data structures flowing through the sync
// engine: remote records and pages, remote field metadata, and the
// destination-ready upsert rows derived from them.
package models

// Record is one remote entity instance: an unordered mapping of field
// name/id to a decoded JSON value (string, json.Number, bool, nil, nested
// map, slice, or ISO-timestamp string). Records are transient; they are
// consumed by the upsert writer and never retained past their page.
type Record map[string]interface{}

// GetString returns the record field as a string, or "" if absent or not
// a string.
func (r Record) GetString(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// Has reports whether the field is present and non-nil.
func (r Record) Has(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}

// Page is an ordered batch of records plus the continuation state the
// source reported alongside it. A page is terminal when NextToken is empty
// and the source reported no total (cursor mode), or when the running
// offset has reached Total (offset mode).
type Page struct {
	Records   []Record
	NextToken string
	Total     int
	HasTotal  bool
}

// FieldDescriptor is remote metadata for one custom/dynamic field. It is
// re-fetched at the start of every schema reconciliation pass and never
// persisted; it only exists to derive the run's column mapping.
type FieldDescriptor struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// UpsertRow is a destination-ready tuple: primary key plus ordered
// column/value pairs with values already type-coerced and null-normalized.
// The same logical record always yields a key-equal UpsertRow across runs.
type UpsertRow struct {
	Key     string
	Columns []string
	Values  []interface{}
}

// Set appends a column/value pair.
func (u *UpsertRow) Set(column string, value interface{}) {
	u.Columns = append(u.Columns, column)
	u.Values = append(u.Values, value)
}
