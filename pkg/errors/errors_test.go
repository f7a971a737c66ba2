package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOnlyThrottlingIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrorTypeThrottled, "rate limit exceeded")))
	assert.False(t, IsRetryable(New(ErrorTypeTransport, "connection reset")))
	assert.False(t, IsRetryable(New(ErrorTypeQuery, "syntax error")))
	assert.False(t, IsRetryable(fmt.Errorf("plain error")))
}

func TestRecordLevelErrorsDegradeToSkip(t *testing.T) {
	assert.True(t, IsRecordLevel(New(ErrorTypeMalformedRecord, "missing id")))
	assert.True(t, IsRecordLevel(New(ErrorTypeReference, "no parent")))
	assert.False(t, IsRecordLevel(New(ErrorTypeTransport, "boom")))
	assert.False(t, IsRecordLevel(New(ErrorTypeSchemaConflict, "bad column")))
}

func TestWrapPreservesTypeAndCause(t *testing.T) {
	cause := fmt.Errorf("dial tcp: refused")
	err := Wrap(cause, ErrorTypeTransport, "request failed")

	assert.True(t, IsType(err, ErrorTypeTransport))
	assert.Equal(t, ErrorTypeTransport, TypeOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "request failed")
	assert.Contains(t, err.Error(), "refused")
}

func TestTypeOfForeignError(t *testing.T) {
	assert.Equal(t, ErrorTypeInternal, TypeOf(fmt.Errorf("anything")))
}
