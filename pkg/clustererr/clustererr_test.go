package clustererr

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(KindValidation, "bad package")
	assert.Equal(t, "validation: bad package", err.Error())
	assert.Nil(t, err.Cause)
}

func TestWrap(t *testing.T) {
	cause := errors.New("checksum mismatch")
	err := Wrap(KindValidation, "package corrupt", cause)
	assert.Equal(t, "validation: package corrupt: checksum mismatch", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestWithDetailsAndRetryAfter(t *testing.T) {
	err := New(KindConcurrency, "rate limited").
		WithDetails(map[string]any{"tenant": "acme"}).
		WithRetryAfter(5 * time.Second)

	assert.Equal(t, "acme", err.Details["tenant"])
	assert.Equal(t, 5*time.Second, err.RetryAfter)
}

func TestAs(t *testing.T) {
	err := New(KindAuthZ, "denied")
	wrapped := errors.New("outer: " + err.Error())

	_, ok := As(wrapped)
	assert.False(t, ok)

	ce, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, KindAuthZ, ce.Kind)
}

func TestKindStatusCode(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindTransport, http.StatusServiceUnavailable},
		{KindAuthN, http.StatusUnauthorized},
		{KindAuthZ, http.StatusForbidden},
		{KindValidation, http.StatusBadRequest},
		{KindConsistency, http.StatusServiceUnavailable},
		{KindConcurrency, http.StatusConflict},
		{KindReplication, http.StatusBadGateway},
		{KindFatal, http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.kind.StatusCode(), c.kind)
	}
}

func TestStatusCode_PlainError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, StatusCode(errors.New("boom")))
}

func TestToJSONBody(t *testing.T) {
	err := New(KindConcurrency, "locked").WithRetryAfter(2 * time.Second)
	status, body := ToJSONBody(err)

	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "concurrency", body.ErrorKind)
	assert.Equal(t, "locked", body.Message)
	assert.Equal(t, 2.0, body.RetryAfterSeconds)
}

func TestToJSONBody_PlainError(t *testing.T) {
	status, body := ToJSONBody(errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, string(KindFatal), body.ErrorKind)
	assert.Equal(t, "boom", body.Message)
	assert.Zero(t, body.RetryAfterSeconds)
}
