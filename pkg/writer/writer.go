package writer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/datamill-io/syncmill/pkg/config"
	"github.com/datamill-io/syncmill/pkg/errors"
	"github.com/datamill-io/syncmill/pkg/logger"
	"github.com/datamill-io/syncmill/pkg/models"
	"github.com/datamill-io/syncmill/pkg/schema"
	"github.com/datamill-io/syncmill/pkg/store"
)

// Writer converts records into destination rows and applies them as
// keyed upserts, last-write-wins. The same logical record always yields
// a byte-identical row, which makes reruns and overlapping walks safe.
type Writer struct {
	store store.Store
	job   config.JobConfig
}

// NewWriter builds a writer for one job.
func NewWriter(st store.Store, job config.JobConfig) *Writer {
	return &Writer{store: st, job: job}
}

// Write normalizes a record and upserts it. Records that cannot be
// anchored to a parent table fail with a reference error; callers treat
// that as skip-and-log, not as a run failure.
func (w *Writer) Write(ctx context.Context, mapping *schema.Mapping, rec models.Record) error {
	row, err := w.BuildRow(ctx, mapping, rec)
	if err != nil {
		return err
	}
	return w.store.Upsert(ctx, w.job.Table, row)
}

// BuildRow derives the destination row for a record without writing it.
func (w *Writer) BuildRow(ctx context.Context, mapping *schema.Mapping, rec models.Record) (*models.UpsertRow, error) {
	id, ok := rec[w.job.IdentityField]
	if !ok || id == nil {
		return nil, errors.New(errors.ErrorTypeMalformedRecord,
			fmt.Sprintf("record missing identity field %q", w.job.IdentityField))
	}

	row := &models.UpsertRow{Key: w.job.KeyColumn}
	row.Set(w.job.KeyColumn, KeyString(id))

	if len(w.job.Parents) > 0 {
		if err := w.resolveParents(ctx, rec, row); err != nil {
			return nil, err
		}
	}

	log := logger.WithContext(ctx)
	for _, c := range w.job.Columns {
		v, warn := Normalize(rec[c.Field], schema.ColumnType(c.Type))
		if warn {
			log.Warn("unparseable datetime value, storing null",
				zap.String("column", c.Name),
				zap.String("field", c.Field))
		}
		row.Set(c.Name, v)
	}

	for _, col := range mapping.Columns {
		v, warn := Normalize(rec[col.FieldID], col.Type)
		if warn {
			log.Warn("unparseable datetime value, storing null",
				zap.String("column", col.Name),
				zap.String("field", col.FieldID))
		}
		row.Set(col.Name, v)
	}

	if w.job.PresenceColumn != "" {
		row.Set(w.job.PresenceColumn, 1)
	}
	return row, nil
}

// resolveParents anchors the record to exactly one parent table. The
// configured candidates are probed in declaration order; the first whose
// table contains the referenced id receives the foreign key and every
// other candidate column stays null. A record matching no candidate is
// rejected rather than written with a dangling reference.
func (w *Writer) resolveParents(ctx context.Context, rec models.Record, row *models.UpsertRow) error {
	values := make(map[string]interface{}, len(w.job.Parents))
	matched := ""
	referenced := false

	for _, p := range w.job.Parents {
		if _, seen := values[p.Column]; !seen {
			values[p.Column] = nil
		}
		if matched != "" {
			continue
		}

		ref, ok := rec[p.Field]
		if !ok || ref == nil || ref == "" {
			continue
		}
		referenced = true

		found, err := w.store.Exists(ctx, p.Table, p.Key, KeyString(ref))
		if err != nil {
			return err
		}
		if found {
			values[p.Column] = KeyString(ref)
			matched = p.Column
		}
	}

	if matched == "" {
		if !referenced {
			return errors.New(errors.ErrorTypeReference, "record carries no parent reference")
		}
		return errors.New(errors.ErrorTypeReference, "no candidate parent table contains the referenced id")
	}

	for _, p := range w.job.Parents {
		if v, ok := values[p.Column]; ok {
			row.Set(p.Column, v)
			delete(values, p.Column)
		}
	}
	return nil
}
