package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func newFakeAPI(t *testing.T, status string, queryStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":%q,"services":{"search":true,"generation":%t}}`, status, status == "healthy")
	})
	mux.HandleFunc("POST /query", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode query: %v", err)
		}
		if req["query"] != "What is the refund policy?" || req["max_results"] != float64(3) {
			t.Errorf("unexpected query body: %v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(queryStatus)
		if queryStatus != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":"Service Unavailable","message":"generation service not available"}`))
			return
		}
		_, _ = w.Write([]byte(`{"answer":"Within 30 days.","sources":[{"title":"Policy","content":"Refunds within 30 days.","score":0.9}],"tokens_used":87}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestRun(t *testing.T) {
	color.NoColor = true

	tests := []struct {
		name         string
		health       string
		queryStatus  int
		opts         options
		wantErr      string
		wantContains []string
	}{
		{
			name:         "health only",
			health:       "healthy",
			opts:         options{},
			wantContains: []string{"Status: healthy (search=true, generation=true)"},
		},
		{
			name:        "answered query",
			health:      "healthy",
			queryStatus: http.StatusOK,
			opts:        options{question: "What is the refund policy?", maxResults: 3, temperature: 0.2},
			wantContains: []string{
				"Answer: Within 30 days.",
				"[1] Policy (score 0.9000)",
				"Tokens used: 87",
			},
		},
		{
			name:        "query rejected",
			health:      "degraded",
			queryStatus: http.StatusServiceUnavailable,
			opts:        options{question: "What is the refund policy?", maxResults: 3},
			wantErr:     "status 503: generation service not available",
		},
		{
			name:    "strict fails when degraded",
			health:  "degraded",
			opts:    options{requireHealthy: true},
			wantErr: "service is degraded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newFakeAPI(t, tt.health, tt.queryStatus)
			tt.opts.serverURL = server.URL

			var out bytes.Buffer
			err := run(context.Background(), server.Client(), &out, tt.opts)

			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("run() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("run() unexpected error: %v", err)
			}
			for _, want := range tt.wantContains {
				if !strings.Contains(out.String(), want) {
					t.Errorf("output = %q, want containing %q", out.String(), want)
				}
			}
		})
	}
}

func TestRun_ServerDown(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	err := run(context.Background(), http.DefaultClient, &bytes.Buffer{}, options{serverURL: url})
	if err == nil || !strings.Contains(err.Error(), "health check") {
		t.Errorf("run() error = %v, want health check failure", err)
	}
}
