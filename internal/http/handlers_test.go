package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"go.uber.org/zap"

	"github.com/vokinneberg/ai-query-api/internal/rag"
	"github.com/vokinneberg/ai-query-api/internal/search"
	"github.com/vokinneberg/ai-query-api/internal/types"
	"github.com/vokinneberg/ai-query-api/internal/version"
)

func TestHandler_QueryHandler(t *testing.T) {
	tests := []struct {
		name         string
		requestBody  string
		setupMocks   func(*MockAnswerer)
		wantStatus   int
		wantContains string
	}{
		{
			name:        "successful query with defaults",
			requestBody: `{"query":"What is the refund policy?"}`,
			setupMocks: func(answerer *MockAnswerer) {
				answerer.EXPECT().
					Answer(gomock.Any(), rag.Query{Text: "What is the refund policy?", MaxResults: 5, Temperature: 0.7}).
					Return(rag.AnswerResult{
						Answer:     "Refunds are accepted within 30 days.",
						Sources:    []search.Document{{Title: "Policy", Content: "Refunds within 30 days.", Score: 0.9}},
						TokensUsed: 87,
					}, nil)
			},
			wantStatus:   http.StatusOK,
			wantContains: `"sources":[{"title":"Policy","content":"Refunds within 30 days.","score":0.9}]`,
		},
		{
			name:        "explicit limits and zero temperature",
			requestBody: `{"query":"q","max_results":20,"temperature":0}`,
			setupMocks: func(answerer *MockAnswerer) {
				answerer.EXPECT().
					Answer(gomock.Any(), rag.Query{Text: "q", MaxResults: 20, Temperature: 0}).
					Return(rag.AnswerResult{Answer: "a", Sources: []search.Document{}}, nil)
			},
			wantStatus:   http.StatusOK,
			wantContains: `"tokens_used":0`,
		},
		{
			name:        "no sources encodes an empty list",
			requestBody: `{"query":"q"}`,
			setupMocks: func(answerer *MockAnswerer) {
				answerer.EXPECT().
					Answer(gomock.Any(), gomock.Any()).
					Return(rag.AnswerResult{Answer: "general answer"}, nil)
			},
			wantStatus:   http.StatusOK,
			wantContains: `"sources":[]`,
		},
		{
			name:        "invalid JSON",
			requestBody: "invalid json",
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:         "empty query",
			requestBody:  `{"query":""}`,
			wantStatus:   http.StatusUnprocessableEntity,
			wantContains: "query must satisfy notblank",
		},
		{
			name:        "blank query",
			requestBody: `{"query":"   "}`,
			wantStatus:  http.StatusUnprocessableEntity,
		},
		{
			name:        "missing query",
			requestBody: `{"max_results":3}`,
			wantStatus:  http.StatusUnprocessableEntity,
		},
		{
			name:         "max_results below range",
			requestBody:  `{"query":"q","max_results":0}`,
			wantStatus:   http.StatusUnprocessableEntity,
			wantContains: "max_results must satisfy min=1",
		},
		{
			name:        "max_results above range",
			requestBody: `{"query":"q","max_results":21}`,
			wantStatus:  http.StatusUnprocessableEntity,
		},
		{
			name:         "temperature above range",
			requestBody:  `{"query":"q","temperature":1.5}`,
			wantStatus:   http.StatusUnprocessableEntity,
			wantContains: "temperature must satisfy max=1",
		},
		{
			name:        "negative temperature",
			requestBody: `{"query":"q","temperature":-0.1}`,
			wantStatus:  http.StatusUnprocessableEntity,
		},
		{
			name:        "dependency unavailable",
			requestBody: `{"query":"q"}`,
			setupMocks: func(answerer *MockAnswerer) {
				answerer.EXPECT().
					Answer(gomock.Any(), gomock.Any()).
					Return(rag.AnswerResult{}, &rag.Error{Kind: rag.KindUnavailable, Dependency: rag.DependencyGeneration})
			},
			wantStatus:   http.StatusServiceUnavailable,
			wantContains: `"message":"generation service not available"`,
		},
		{
			name:        "upstream failure",
			requestBody: `{"query":"q"}`,
			setupMocks: func(answerer *MockAnswerer) {
				answerer.EXPECT().
					Answer(gomock.Any(), gomock.Any()).
					Return(rag.AnswerResult{}, &rag.Error{
						Kind:       rag.KindUpstream,
						Dependency: rag.DependencySearch,
						Err:        errors.New("failed to search: index offline"),
					})
			},
			wantStatus:   http.StatusInternalServerError,
			wantContains: `"message":"Query processing failed: failed to search: index offline"`,
		},
		{
			name:        "untyped error",
			requestBody: `{"query":"q"}`,
			setupMocks: func(answerer *MockAnswerer) {
				answerer.EXPECT().
					Answer(gomock.Any(), gomock.Any()).
					Return(rag.AnswerResult{}, errors.New("boom"))
			},
			wantStatus:   http.StatusInternalServerError,
			wantContains: "Query processing failed: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockAnswerer := NewMockAnswerer(ctrl)
			if tt.setupMocks != nil {
				tt.setupMocks(mockAnswerer)
			}

			handler := NewHandlers(mockAnswerer, zap.NewNop())

			req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewBufferString(tt.requestBody))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			handler.QueryHandler(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("QueryHandler() status = %d, want %d, body = %s", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantContains != "" {
				if !bytes.Contains(w.Body.Bytes(), []byte(tt.wantContains)) {
					t.Errorf("QueryHandler() body = %s, want containing %q", w.Body.String(), tt.wantContains)
				}
			}

			if tt.wantStatus != http.StatusOK {
				var response types.ErrorResponse
				if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
					t.Fatalf("QueryHandler() invalid JSON error body: %v", err)
				}
				if response.Error != http.StatusText(tt.wantStatus) {
					t.Errorf("QueryHandler() error = %q, want %q", response.Error, http.StatusText(tt.wantStatus))
				}
			}
		})
	}
}

func TestHandler_HealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		avail      rag.Availability
		wantStatus string
	}{
		{name: "healthy", avail: rag.Availability{Search: true, Generation: true}, wantStatus: "healthy"},
		{name: "search missing", avail: rag.Availability{Generation: true}, wantStatus: "degraded"},
		{name: "generation missing", avail: rag.Availability{Search: true}, wantStatus: "degraded"},
		{name: "nothing configured", avail: rag.Availability{}, wantStatus: "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockAnswerer := NewMockAnswerer(ctrl)
			mockAnswerer.EXPECT().Health(gomock.Any()).Return(tt.avail)

			handler := NewHandlers(mockAnswerer, zap.NewNop())

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			w := httptest.NewRecorder()

			handler.HealthHandler(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("HealthHandler() status = %d, want %d", w.Code, http.StatusOK)
			}

			var response types.HealthResponse
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("HealthHandler() invalid JSON: %v", err)
			}

			if response.Status != tt.wantStatus {
				t.Errorf("HealthHandler() status = %q, want %q", response.Status, tt.wantStatus)
			}
			if response.Services["search"] != tt.avail.Search || response.Services["generation"] != tt.avail.Generation {
				t.Errorf("HealthHandler() services = %v, want %+v", response.Services, tt.avail)
			}
		})
	}
}

func TestHandler_RootHandler(t *testing.T) {
	handler := NewHandlers(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	handler.RootHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("RootHandler() status = %d, want %d", w.Code, http.StatusOK)
	}

	var response types.RootResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("RootHandler() invalid JSON: %v", err)
	}
	if response.Message != "AI-Enhanced REST API" {
		t.Errorf("RootHandler() message = %q", response.Message)
	}
	if response.Version != version.Version {
		t.Errorf("RootHandler() version = %q, want %q", response.Version, version.Version)
	}
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		message    string
		err        error
		wantStatus int
		wantError  string
	}{
		{
			name:       "error with message",
			status:     http.StatusBadRequest,
			message:    "Invalid request",
			err:        errors.New("validation failed"),
			wantStatus: http.StatusBadRequest,
			wantError:  "Bad Request",
		},
		{
			name:       "error without message",
			status:     http.StatusInternalServerError,
			message:    "Server error",
			err:        nil,
			wantStatus: http.StatusInternalServerError,
			wantError:  "Internal Server Error",
		},
		{
			name:       "service unavailable",
			status:     http.StatusServiceUnavailable,
			message:    "search service not available",
			wantStatus: http.StatusServiceUnavailable,
			wantError:  "Service Unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			errorResponse(w, tt.status, tt.message, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("errorResponse() status = %d, want %d", w.Code, tt.wantStatus)
			}

			var response types.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("errorResponse() invalid JSON: %v", err)
			}

			if response.Error != tt.wantError {
				t.Errorf("errorResponse() Error = %q, want %q", response.Error, tt.wantError)
			}

			if !strings.Contains(response.Message, tt.message) {
				t.Errorf("errorResponse() Message = %q, want containing %q", response.Message, tt.message)
			}
			if tt.err != nil && !strings.Contains(response.Message, tt.err.Error()) {
				t.Errorf("errorResponse() Message = %q, want containing %q", response.Message, tt.err.Error())
			}
		})
	}
}
