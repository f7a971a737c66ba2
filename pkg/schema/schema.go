// Package schema discovers remote field metadata and reconciles it
// against the destination table. Evolution is strictly additive: columns
// are created, never dropped or retyped, so a bad remote rename can at
// worst leave an orphan column behind.
package schema

import (
	"regexp"
	"strings"

	"github.com/datamill-io/syncmill/pkg/config"
	"github.com/datamill-io/syncmill/pkg/models"
)

// ColumnType is the destination logical type driving value normalization.
type ColumnType string

const (
	TypeText     ColumnType = "text"
	TypeDecimal  ColumnType = "decimal"
	TypeBoolean  ColumnType = "boolean"
	TypeDatetime ColumnType = "datetime"
)

// SQLType returns the MySQL DDL type for a logical type.
func SQLType(t ColumnType) string {
	switch t {
	case TypeDecimal:
		return "DECIMAL(20,4)"
	case TypeBoolean:
		return "TINYINT(1)"
	case TypeDatetime:
		return "DATETIME"
	default:
		return "TEXT"
	}
}

// remoteTypes maps a source's field type tag to a destination type. Tags
// outside the table fall back to text, which is always safe.
var remoteTypes = map[string]ColumnType{
	"numeric":    TypeDecimal,
	"percentage": TypeDecimal,
	"currency":   TypeDecimal,
	"date":       TypeDatetime,
	"checkbox":   TypeBoolean,
}

// ResolveType maps a remote type tag to a destination logical type.
func ResolveType(remote string) ColumnType {
	if t, ok := remoteTypes[strings.ToLower(remote)]; ok {
		return t
	}
	return TypeText
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_]+`)
	manyScores  = regexp.MustCompile(`_{2,}`)
)

// Sanitize derives an identifier-safe column name from a display title:
// characters outside [a-zA-Z0-9_] become underscores, runs collapse, and
// leading/trailing underscores are trimmed.
func Sanitize(title string) string {
	s := unsafeChars.ReplaceAllString(title, "_")
	s = manyScores.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		s = "field"
	}
	return s
}

// MappedColumn associates one remote field with its destination column.
type MappedColumn struct {
	FieldID string
	Name    string
	Type    ColumnType
	SQLType string
}

// Mapping is the per-run association of remote field ids to destination
// columns, in descriptor order.
type Mapping struct {
	Columns []MappedColumn
	byField map[string]MappedColumn
}

// Lookup returns the column mapped to a remote field id.
func (m *Mapping) Lookup(fieldID string) (MappedColumn, bool) {
	c, ok := m.byField[fieldID]
	return c, ok
}

// dropByName removes a column from the mapping. Used when the column
// could not be created this run.
func (m *Mapping) dropByName(name string) {
	kept := m.Columns[:0]
	for _, c := range m.Columns {
		if c.Name == name {
			delete(m.byField, c.FieldID)
			continue
		}
		kept = append(kept, c)
	}
	m.Columns = kept
}

// BuildMapping derives the column mapping for a job's field descriptors.
// Names are unique case-insensitively within the table: the job's key
// column and static columns are reserved, and a sanitized title that
// collides with an already-assigned name gets the sanitized remote id as
// a suffix. The result is deterministic for a given descriptor order.
func BuildMapping(job config.JobConfig, fields []models.FieldDescriptor) *Mapping {
	taken := make(map[string]bool, len(fields)+len(job.Columns)+1)
	taken[strings.ToLower(job.KeyColumn)] = true
	if job.PresenceColumn != "" {
		taken[strings.ToLower(job.PresenceColumn)] = true
	}
	for _, c := range job.Columns {
		taken[strings.ToLower(c.Name)] = true
	}
	for _, p := range job.Parents {
		taken[strings.ToLower(p.Column)] = true
	}

	m := &Mapping{byField: make(map[string]MappedColumn, len(fields))}
	for _, f := range fields {
		if f.ID == "" {
			continue
		}
		name := job.ColumnPrefix + Sanitize(f.Title)
		if taken[strings.ToLower(name)] {
			name = name + "_" + Sanitize(f.ID)
		}
		taken[strings.ToLower(name)] = true

		t := ResolveType(f.Type)
		col := MappedColumn{
			FieldID: f.ID,
			Name:    name,
			Type:    t,
			SQLType: SQLType(t),
		}
		m.Columns = append(m.Columns, col)
		m.byField[f.ID] = col
	}
	return m
}
