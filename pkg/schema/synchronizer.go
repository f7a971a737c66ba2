package schema

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/datamill-io/syncmill/pkg/config"
	"github.com/datamill-io/syncmill/pkg/logger"
	"github.com/datamill-io/syncmill/pkg/models"
	"github.com/datamill-io/syncmill/pkg/store"
)

// Synchronizer reconciles remote field metadata against the destination
// table at the start of every run.
type Synchronizer struct {
	store store.Store
}

// NewSynchronizer builds a synchronizer over the destination store.
func NewSynchronizer(st store.Store) *Synchronizer {
	return &Synchronizer{store: st}
}

// Reconcile derives the run's column mapping from the job's descriptors
// and brings the destination table up to date additively. A first run
// creates the table with the full column set at once; later runs add
// whatever columns the existing set lacks. A column that cannot be added
// is logged and dropped from the mapping for this run instead of failing
// the run.
func (s *Synchronizer) Reconcile(ctx context.Context, job config.JobConfig, fields []models.FieldDescriptor) (*Mapping, error) {
	mapping := BuildMapping(job, fields)
	log := logger.WithContext(ctx)

	exists, err := s.store.TableExists(ctx, job.Table)
	if err != nil {
		return nil, err
	}

	if !exists {
		key := store.ColumnDef{Name: job.KeyColumn, SQLType: "VARCHAR(64)"}
		cols := s.tableColumns(job, mapping)
		if err := s.store.CreateTable(ctx, job.Table, key, cols); err != nil {
			return nil, err
		}
		log.Info("created destination table",
			zap.String("table", job.Table),
			zap.Int("columns", len(cols)+1))
		return mapping, nil
	}

	existing, err := s.store.TableColumns(ctx, job.Table)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[strings.ToLower(c)] = true
	}

	for _, col := range s.tableColumns(job, mapping) {
		if have[strings.ToLower(col.Name)] {
			continue
		}
		if err := s.store.AddColumn(ctx, job.Table, col); err != nil {
			log.Warn("column could not be added, unavailable this run",
				zap.String("table", job.Table),
				zap.String("column", col.Name),
				zap.Error(err))
			mapping.dropByName(col.Name)
			continue
		}
		log.Info("added destination column",
			zap.String("table", job.Table),
			zap.String("column", col.Name),
			zap.String("type", col.SQLType))
	}
	return mapping, nil
}

// tableColumns lists every non-key column the job wants: static columns
// first, then descriptor-derived ones, then the presence flag.
func (s *Synchronizer) tableColumns(job config.JobConfig, mapping *Mapping) []store.ColumnDef {
	cols := make([]store.ColumnDef, 0, len(job.Columns)+len(mapping.Columns)+1)
	for _, c := range job.Columns {
		sqlType := c.SQLType
		if sqlType == "" {
			sqlType = SQLType(ColumnType(c.Type))
		}
		cols = append(cols, store.ColumnDef{Name: c.Name, SQLType: sqlType})
	}
	for _, p := range job.Parents {
		cols = append(cols, store.ColumnDef{Name: p.Column, SQLType: "VARCHAR(64)"})
	}
	for _, c := range mapping.Columns {
		cols = append(cols, store.ColumnDef{Name: c.Name, SQLType: c.SQLType})
	}
	if job.PresenceColumn != "" {
		cols = append(cols, store.ColumnDef{Name: job.PresenceColumn, SQLType: "TINYINT(1) DEFAULT 0"})
	}
	return cols
}
