package source

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datamill-io/syncmill/pkg/errors"
)

type fakeDoer struct {
	statuses []int
	bodies   []string
	calls    int
}

func (f *fakeDoer) respond() (*http.Response, error) {
	idx := f.calls
	f.calls++
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	body := "{}"
	if idx < len(f.bodies) {
		body = f.bodies[idx]
	}
	return &http.Response{
		StatusCode: f.statuses[idx],
		Body:       io.NopCloser(strings.NewReader(body)),
	}, nil
}

func (f *fakeDoer) Get(context.Context, string, map[string]string) (*http.Response, error) {
	return f.respond()
}

func (f *fakeDoer) Post(context.Context, string, io.Reader, map[string]string) (*http.Response, error) {
	return f.respond()
}

func testPolicy(maxAttempts int) (*BackoffPolicy, *[]time.Duration) {
	waits := &[]time.Duration{}
	return &BackoffPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Minute,
		Multiplier:  2.0,
		sleep: func(_ context.Context, d time.Duration) error {
			*waits = append(*waits, d)
			return nil
		},
	}, waits
}

func TestFetcherPermanentThrottlingExhaustsAttempts(t *testing.T) {
	doer := &fakeDoer{statuses: []int{429}}
	policy, waits := testPolicy(5)
	f := NewFetcher(doer, policy, nil)

	_, err := f.Fetch(context.Background(), http.MethodGet, "http://src/items", nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeThrottled))
	assert.Equal(t, 5, doer.calls)

	// one wait per retry, non-decreasing
	require.Len(t, *waits, 4)
	for i := 1; i < len(*waits); i++ {
		assert.GreaterOrEqual(t, (*waits)[i], (*waits)[i-1])
	}
}

func TestFetcherBackoffDelaysGrowExponentially(t *testing.T) {
	policy, _ := testPolicy(5)
	assert.Equal(t, 100*time.Millisecond, policy.Delay(0))
	assert.Equal(t, 200*time.Millisecond, policy.Delay(1))
	assert.Equal(t, 400*time.Millisecond, policy.Delay(2))

	policy.MaxDelay = 300 * time.Millisecond
	assert.Equal(t, 300*time.Millisecond, policy.Delay(2))
}

func TestFetcherRecoversAfterThrottling(t *testing.T) {
	doer := &fakeDoer{
		statuses: []int{429, 429, 200},
		bodies:   []string{"", "", `{"data":[]}`},
	}
	policy, _ := testPolicy(5)
	f := NewFetcher(doer, policy, nil)

	body, err := f.Fetch(context.Background(), http.MethodGet, "http://src/items", nil)
	require.NoError(t, err)
	assert.Equal(t, `{"data":[]}`, string(body))
	assert.Equal(t, 3, doer.calls)

	throttled, retries := f.Stats()
	assert.Equal(t, uint64(2), throttled)
	assert.Equal(t, uint64(2), retries)
}

func TestFetcherTransportFailureIsNotRetried(t *testing.T) {
	doer := &fakeDoer{statuses: []int{500}}
	policy, waits := testPolicy(5)
	f := NewFetcher(doer, policy, nil)

	_, err := f.Fetch(context.Background(), http.MethodGet, "http://src/items", nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTransport))
	assert.Equal(t, 1, doer.calls)
	assert.Empty(t, *waits)
}
