package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sharedauth "github.com/focusnest/challenge-service/internal/shared/auth"
)

func TestLimiter_BurstThenReject(t *testing.T) {
	var limited int
	l := New(1, 2, func() { limited++ })
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(sharedauth.WithUser(req.Context(), sharedauth.AuthenticatedUser{UserID: "u1"}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
	if limited != 1 {
		t.Fatalf("onLimit calls = %d", limited)
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l := New(1, 1, nil)
	if !l.Allow("a") || !l.Allow("b") {
		t.Fatalf("first request per key should pass")
	}
	if l.Allow("a") {
		t.Fatalf("second immediate request for a should be limited")
	}
}

func TestLimiter_SweepDropsIdle(t *testing.T) {
	l := New(5, 5, nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	l.Allow("idle")

	now = now.Add(10 * time.Minute)
	l.Sweep()

	if len(l.visitors) != 0 {
		t.Fatalf("visitors = %d, want 0", len(l.visitors))
	}
}

func TestLimiter_DisabledWhenRateNotPositive(t *testing.T) {
	l := New(0, 0, nil)
	for i := 0; i < 100; i++ {
		if !l.Allow("x") {
			t.Fatalf("limiter should be disabled")
		}
	}
}
