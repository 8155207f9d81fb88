package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsMiddleware_RecordsDurationAndCount(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	requestsVal := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/health", "200"))
	if requestsVal < 1 {
		t.Errorf("expected http_requests_total >= 1, got %f", requestsVal)
	}

	if testutil.CollectAndCount(httpRequestDuration) == 0 {
		t.Error("expected http_request_duration_seconds to have observations")
	}
}

func TestMetricsMiddleware_StatusCodes(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Post("/query", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	tests := []struct {
		method     string
		path       string
		wantPath   string
		wantStatus string
	}{
		{http.MethodPost, "/query", "/query", "503"},
		{http.MethodGet, "/missing", "unknown", "404"},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, http.NoBody)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(tc.method, tc.wantPath, tc.wantStatus))
			if val < 1 {
				t.Errorf("expected requests_total for %s with status %s >= 1, got %f", tc.wantPath, tc.wantStatus, val)
			}
		})
	}
}

func TestObserveUpstream(t *testing.T) {
	before := testutil.ToFloat64(UpstreamRequestsTotal.WithLabelValues(UpstreamSearch, "error"))
	ObserveUpstream(UpstreamSearch, 0.2, errors.New("boom"))
	ObserveUpstream(UpstreamGeneration, 1.5, nil)

	if got := testutil.ToFloat64(UpstreamRequestsTotal.WithLabelValues(UpstreamSearch, "error")); got != before+1 {
		t.Errorf("search error count = %f, want %f", got, before+1)
	}
	if got := testutil.ToFloat64(UpstreamRequestsTotal.WithLabelValues(UpstreamGeneration, "success")); got < 1 {
		t.Errorf("generation success count = %f, want >= 1", got)
	}
}

func TestRegister_Idempotent(t *testing.T) {
	Register()
	Register()
}
