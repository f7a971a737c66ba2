package source

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/datamill-io/syncmill/pkg/config"
	"github.com/datamill-io/syncmill/pkg/logger"
	"github.com/datamill-io/syncmill/pkg/models"
)

// Walker streams every record of a walk, hiding the source's pagination
// strategy. Cursor walks follow continuation tokens until the source
// stops returning one; offset walks advance offset/limit slices until the
// reported total is covered. Records missing the job's identity field are
// dropped with a warning rather than failing the walk.
type Walker struct {
	api RemoteAPI
	job config.JobConfig

	token   string
	offset  int
	total   int
	started bool
	done    bool

	rng      PageRequest
	hasRange bool

	fetched int
	skipped int
}

// NewWalker builds a walker for a cursor or offset job.
func NewWalker(api RemoteAPI, job config.JobConfig) *Walker {
	return &Walker{api: api, job: job}
}

// NewRangeWalker builds a walker covering a single date-window sub-range.
// The source returns a sub-range as one page, so the walk yields exactly
// one page.
func NewRangeWalker(api RemoteAPI, job config.JobConfig, start, end time.Time) *Walker {
	return &Walker{
		api:      api,
		job:      job,
		hasRange: true,
		rng:      PageRequest{Start: start, End: end, HasRange: true},
	}
}

// Next fetches the next page of the walk. It returns (nil, nil) once the
// walk is exhausted. Every returned record carries the job's identity
// field.
func (w *Walker) Next(ctx context.Context) (*models.Page, error) {
	if w.done {
		return nil, nil
	}

	req := w.request()
	page, err := w.api.SearchPage(ctx, req)
	if err != nil {
		return nil, err
	}

	w.advance(page)
	page.Records = w.filterIdentity(ctx, page.Records)
	w.fetched += len(page.Records)
	return page, nil
}

// Fetched reports how many records the walk has yielded so far.
func (w *Walker) Fetched() int { return w.fetched }

// Skipped reports how many records were dropped for a missing identity.
func (w *Walker) Skipped() int { return w.skipped }

func (w *Walker) request() PageRequest {
	if w.hasRange {
		return w.rng
	}
	switch w.job.Pagination {
	case config.PaginationOffset:
		return PageRequest{Offset: w.offset, Limit: w.job.PageSize}
	default:
		return PageRequest{Token: w.token}
	}
}

func (w *Walker) advance(page *models.Page) {
	if w.hasRange {
		w.done = true
		return
	}

	switch w.job.Pagination {
	case config.PaginationOffset:
		w.offset += w.job.PageSize
		if page.HasTotal {
			// the total may drift while the walk runs; trust the
			// last-known value
			w.total = page.Total
			w.started = true
		}
		if w.started && w.offset >= w.total {
			w.done = true
		}
		if len(page.Records) == 0 {
			w.done = true
		}
	default:
		if page.NextToken == "" || (w.started && page.NextToken == w.token) {
			w.done = true
		}
		w.token = page.NextToken
		w.started = true
	}
}

func (w *Walker) filterIdentity(ctx context.Context, records []models.Record) []models.Record {
	kept := records[:0]
	for _, r := range records {
		if identityMissing(r, w.job.IdentityField) {
			w.skipped++
			logger.WithContext(ctx).Warn("dropping record without identity",
				zap.String("job", w.job.Name),
				zap.String("identity_field", w.job.IdentityField))
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

func identityMissing(r models.Record, field string) bool {
	v, ok := r[field]
	if !ok || v == nil {
		return true
	}
	if s, isStr := v.(string); isStr && s == "" {
		return true
	}
	return false
}
