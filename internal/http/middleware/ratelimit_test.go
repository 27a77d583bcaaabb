package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterRefills(t *testing.T) {
	now := time.Date(2025, 12, 3, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(0.5, 2)
	rl.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := rl.Allow("1.2.3.4"); !ok {
			t.Fatalf("request %d should pass within burst", i)
		}
	}
	ok, wait := rl.Allow("1.2.3.4")
	if ok {
		t.Fatal("expected third request to be limited")
	}
	if wait != 2*time.Second {
		t.Fatalf("expected 2s wait, got %s", wait)
	}
	if ok, _ := rl.Allow("5.6.7.8"); !ok {
		t.Fatal("other clients have their own bucket")
	}

	now = now.Add(2 * time.Second)
	if ok, _ := rl.Allow("1.2.3.4"); !ok {
		t.Fatal("expected a token after refill")
	}
}

func TestRateLimiterEvictsIdleBuckets(t *testing.T) {
	now := time.Date(2025, 12, 3, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }
	rl.Allow("1.2.3.4")

	now = now.Add(time.Hour)
	rl.Allow("5.6.7.8")
	if _, ok := rl.buckets["1.2.3.4"]; ok {
		t.Fatal("expected idle bucket to be evicted")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(0.1, 1)
	mw := RateLimit(rl)(okHandler(nil))

	req := httptest.NewRequest(http.MethodPost, "/api/verification/send", nil)
	req.RemoteAddr = "9.9.9.9"
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}
