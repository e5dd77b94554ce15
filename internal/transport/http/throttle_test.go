package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestThrottle(t *testing.T, cfg ThrottleConfig) (*JoinThrottle, *time.Time) {
	t.Helper()
	th := NewJoinThrottle(cfg)
	t.Cleanup(th.Stop)
	now := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	th.now = func() time.Time { return now }
	return th, &now
}

func TestJoinThrottlePerAddress(t *testing.T) {
	th, now := newTestThrottle(t, ThrottleConfig{Rate: rate.Every(2 * time.Second), Burst: 2})

	for i := 0; i < 2; i++ {
		ok, _ := th.take("10.0.0.1")
		require.True(t, ok, "attempt %d within burst", i+1)
	}
	ok, wait := th.take("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, 2*time.Second, wait)

	ok, _ = th.take("10.0.0.2")
	assert.True(t, ok, "other addresses keep their own budget")

	*now = now.Add(2 * time.Second)
	ok, _ = th.take("10.0.0.1")
	assert.True(t, ok, "token refills after the interval")
}

func TestJoinThrottleSweepsIdleAddresses(t *testing.T) {
	th, now := newTestThrottle(t, ThrottleConfig{Rate: 1, Burst: 1, Idle: time.Minute})

	th.take("10.0.0.1")
	*now = now.Add(40 * time.Second)
	th.take("10.0.0.2")
	*now = now.Add(30 * time.Second)

	assert.Equal(t, 1, th.sweep())
	th.mu.Lock()
	_, kept := th.buckets["10.0.0.2"]
	_, dropped := th.buckets["10.0.0.1"]
	th.mu.Unlock()
	assert.True(t, kept)
	assert.False(t, dropped)
}

func TestJoinThrottleMiddlewareRetryAfter(t *testing.T) {
	th, _ := newTestThrottle(t, ThrottleConfig{Rate: 0.5, Burst: 1})
	handler := th.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/join", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, send("192.0.2.7:5000").Code)
	rec := send("192.0.2.7:5001")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusNoContent, send("192.0.2.8:5000").Code)
}
