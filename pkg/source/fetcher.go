package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/datamill-io/syncmill/pkg/errors"
	"github.com/datamill-io/syncmill/pkg/logger"
)

// Doer issues HTTP requests. *clients.HTTPClient satisfies it; tests
// substitute fakes.
type Doer interface {
	Get(ctx context.Context, url string, headers map[string]string) (*http.Response, error)
	Post(ctx context.Context, url string, body io.Reader, headers map[string]string) (*http.Response, error)
}

// Fetcher issues single HTTP calls with bounded exponential backoff.
// Only throttling responses are retried; transport failures and other
// HTTP errors surface immediately so a broken source fails fast instead
// of burning the retry budget.
type Fetcher struct {
	doer    Doer
	policy  *BackoffPolicy
	headers map[string]string

	throttled uint64
	retries   uint64
}

// NewFetcher builds a fetcher. The headers map is sent with every
// request and typically carries authorization.
func NewFetcher(doer Doer, policy *BackoffPolicy, headers map[string]string) *Fetcher {
	return &Fetcher{doer: doer, policy: policy, headers: headers}
}

// Fetch issues one request and returns the response body. A throttled
// response (HTTP 429) is retried with exponentially growing waits until
// the attempt budget is exhausted, in which case the terminal error is
// the throttling error itself.
func (f *Fetcher) Fetch(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var out []byte
	attempt := 0

	err := f.policy.Execute(ctx, func(ctx context.Context) error {
		if attempt > 0 {
			atomic.AddUint64(&f.retries, 1)
			logger.WithContext(ctx).Debug("retrying throttled request",
				zap.String("url", url),
				zap.Int("attempt", attempt))
		}
		attempt++

		resp, err := f.do(ctx, method, url, body)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeTransport, "request failed")
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeTransport, "reading response body")
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			atomic.AddUint64(&f.throttled, 1)
			return errors.New(errors.ErrorTypeThrottled,
				fmt.Sprintf("source throttled request to %s", url))
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return errors.New(errors.ErrorTypeTransport,
				fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, url)).
				WithDetail("status", resp.StatusCode)
		}

		out = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *Fetcher) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	if method == http.MethodPost {
		return f.doer.Post(ctx, url, bytes.NewReader(body), f.headers)
	}
	return f.doer.Get(ctx, url, f.headers)
}

// Stats reports throttling counters accumulated since construction.
func (f *Fetcher) Stats() (throttled, retries uint64) {
	return atomic.LoadUint64(&f.throttled), atomic.LoadUint64(&f.retries)
}
