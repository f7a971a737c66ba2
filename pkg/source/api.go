package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/datamill-io/syncmill/pkg/config"
	"github.com/datamill-io/syncmill/pkg/errors"
	"github.com/datamill-io/syncmill/pkg/jsonx"
	"github.com/datamill-io/syncmill/pkg/models"
)

// PageRequest describes one page fetch. The walker fills the fields that
// apply to the job's pagination strategy and leaves the rest zero.
type PageRequest struct {
	// Token is the continuation token for cursor pagination; empty on
	// the first page
	Token string

	// Offset and Limit drive offset pagination
	Offset int
	Limit  int

	// Start and End bound a date-window sub-range when HasRange is set
	Start    time.Time
	End      time.Time
	HasRange bool
}

// RemoteAPI is the walker's view of a remote record-keeping source.
type RemoteAPI interface {
	// SearchPage fetches one page of records
	SearchPage(ctx context.Context, req PageRequest) (*models.Page, error)
	// ListFields fetches the source's field metadata
	ListFields(ctx context.Context) ([]models.FieldDescriptor, error)
}

// HTTPAPI adapts one configured job's HTTP endpoints to RemoteAPI. The
// response envelope keys are configuration, so one implementation covers
// every source shape the jobs describe.
type HTTPAPI struct {
	fetcher *Fetcher
	base    string
	job     config.JobConfig
}

// NewHTTPAPI builds the remote API adapter for a job.
func NewHTTPAPI(fetcher *Fetcher, src config.SourceConfig, job config.JobConfig) *HTTPAPI {
	return &HTTPAPI{
		fetcher: fetcher,
		base:    strings.TrimRight(src.BaseURL, "/"),
		job:     job,
	}
}

// SearchPage implements RemoteAPI.
func (a *HTTPAPI) SearchPage(ctx context.Context, req PageRequest) (*models.Page, error) {
	u, err := a.searchURL(req)
	if err != nil {
		return nil, err
	}

	body, err := a.fetcher.Fetch(ctx, a.job.Method, u, nil)
	if err != nil {
		return nil, err
	}
	return a.decodePage(body)
}

// ListFields implements RemoteAPI. Jobs without a fields endpoint report
// no dynamic fields.
func (a *HTTPAPI) ListFields(ctx context.Context) ([]models.FieldDescriptor, error) {
	if a.job.FieldsEndpoint == "" {
		return nil, nil
	}

	body, err := a.fetcher.Fetch(ctx, http.MethodGet, a.base+a.job.FieldsEndpoint, nil)
	if err != nil {
		return nil, err
	}

	var envelope map[string]interface{}
	if err := jsonx.Unmarshal(body, &envelope); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeTransport, "decoding field metadata")
	}

	raw, _ := envelope[a.job.RecordsField].([]interface{})
	fields := make([]models.FieldDescriptor, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		fields = append(fields, models.FieldDescriptor{
			ID:    stringValue(m["id"]),
			Title: stringValue(m["title"]),
			Type:  stringValue(m["type"]),
		})
	}
	return fields, nil
}

func (a *HTTPAPI) searchURL(req PageRequest) (string, error) {
	u, err := url.Parse(a.base + a.job.Endpoint)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConfig,
			fmt.Sprintf("invalid endpoint for job %s", a.job.Name))
	}

	q := u.Query()
	switch a.job.Pagination {
	case config.PaginationCursor:
		q.Set("pageSize", strconv.Itoa(a.job.PageSize))
		if req.Token != "" {
			q.Set("nextPageToken", req.Token)
		}
	case config.PaginationOffset:
		q.Set("offset", strconv.Itoa(req.Offset))
		q.Set("limit", strconv.Itoa(req.Limit))
	case config.PaginationDateWindow:
		if req.HasRange {
			q.Set(a.job.DateParam, dateRangeValue(req.Start, req.End))
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// dateRangeValue encodes a sub-range the way record-keeping APIs expect
// date filters: a JSON object with start and end timestamps.
func dateRangeValue(start, end time.Time) string {
	const layout = "2006-01-02T15:04:05Z"
	return fmt.Sprintf(`{"start":"%s","end":"%s"}`,
		start.UTC().Format(layout), end.UTC().Format(layout))
}

func (a *HTTPAPI) decodePage(body []byte) (*models.Page, error) {
	var envelope map[string]interface{}
	if err := jsonx.Unmarshal(body, &envelope); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeTransport, "decoding page")
	}

	page := &models.Page{}

	raw, ok := envelope[a.job.RecordsField]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeTransport,
			"response missing %q field", a.job.RecordsField)
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeTransport,
			"response field %q is not a list", a.job.RecordsField)
	}

	page.Records = make([]models.Record, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		page.Records = append(page.Records, models.Record(m))
	}

	if token, ok := envelope[a.job.TokenField].(string); ok {
		page.NextToken = token
	}
	if total, ok := numberValue(envelope[a.job.TotalField]); ok {
		page.Total = total
		page.HasTotal = true
	}
	return page, nil
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}

func numberValue(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}
