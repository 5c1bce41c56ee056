package ratelim

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
)

func ok(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
}

func hit(h httprouter.Handle, addr string) int {
	req := httptest.NewRequest(http.MethodGet, "/api/content/status/x", nil)
	req.RemoteAddr = addr
	rec := httptest.NewRecorder()
	h(rec, req, nil)
	return rec.Code
}

func TestLimitPerIP(t *testing.T) {
	rl := NewRateLimiter(2, time.Hour)
	h := rl.Limit(ok)

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1111"))
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:2222"))
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:3333"), "ports do not get separate buckets")
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1111"))
}

func TestCleanupForgetsIdleVisitors(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }

	hit(rl.Limit(ok), "10.0.0.1:1")
	assert.Equal(t, 0, rl.Cleanup())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, rl.Cleanup())
	assert.Equal(t, http.StatusOK, hit(rl.Limit(ok), "10.0.0.1:1"))
}
