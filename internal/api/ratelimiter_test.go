package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticLimiter struct {
	allow bool
}

func (s *staticLimiter) Allow() bool {
	return s.allow
}

func TestRateLimitMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		allow      bool
		wantStatus int
		wantCalled bool
	}{
		{name: "denied", allow: false, wantStatus: http.StatusTooManyRequests},
		{name: "allowed", allow: true, wantStatus: http.StatusOK, wantCalled: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var called bool
			middleware := rateLimitMiddleware(&staticLimiter{allow: tc.allow}, http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
				called = true
			}))

			rec := httptest.NewRecorder()
			middleware.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rec.Code)
			}
			if called != tc.wantCalled {
				t.Fatalf("expected handler called=%v, got %v", tc.wantCalled, called)
			}
		})
	}
}

func TestRateLimitResponseUsesEnvelope(t *testing.T) {
	middleware := rateLimitMiddleware(&staticLimiter{allow: false}, http.NotFoundHandler())

	rec := httptest.NewRecorder()
	middleware.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/keywords", nil))

	var body envelope
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Success || body.Message == "" {
		t.Fatalf("unexpected envelope: %+v", body)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestNewTokenBucketLimiterUsesDefaults(t *testing.T) {
	limiter := newTokenBucketLimiter(0, 0)
	if limiter == nil {
		t.Fatalf("expected limiter instance")
	}
	if !limiter.Allow() {
		t.Fatalf("expected first request to be allowed")
	}
	if limiter.Allow() {
		t.Fatalf("expected burst of one to reject an immediate second request")
	}
}
