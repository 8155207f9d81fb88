package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"go.uber.org/zap"

	"github.com/vokinneberg/ai-query-api/internal/logger"
	"github.com/vokinneberg/ai-query-api/internal/rag"
	"github.com/vokinneberg/ai-query-api/internal/types"
	"github.com/vokinneberg/ai-query-api/internal/version"
)

const (
	defaultMaxResults  = 5
	defaultTemperature = 0.7
)

//go:generate mockgen -source=handlers.go -destination=mock_answerer.go -package=http Answerer

// Answerer answers queries and reports backend availability
type Answerer interface {
	Answer(ctx context.Context, q rag.Query) (rag.AnswerResult, error)
	Health(ctx context.Context) rag.Availability
}

type QueryReq struct {
	Query       string  `json:"query" validate:"notblank"`
	MaxResults  int     `json:"max_results" validate:"min=1,max=20"`
	Temperature float64 `json:"temperature" validate:"min=0,max=1"`
}

type Handler struct {
	answerer Answerer
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandlers initializes handlers with dependencies
func NewHandlers(answerer Answerer, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		answerer: answerer,
		validate: newValidator(),
		logger:   log,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	// RegisterValidation only fails for reserved tags
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (h *Handler) RootHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(r.Context(), w, http.StatusOK, types.RootResponse{
		Message: "AI-Enhanced REST API",
		Version: version.Version,
	})
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	a := h.answerer.Health(r.Context())
	h.writeJSON(r.Context(), w, http.StatusOK, types.HealthResponse{
		Status: a.Status(),
		Services: map[string]bool{
			rag.DependencySearch:     a.Search,
			rag.DependencyGeneration: a.Generation,
		},
	})
}

func (h *Handler) QueryHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	req := QueryReq{MaxResults: defaultMaxResults, Temperature: defaultTemperature}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		errorResponse(w, http.StatusUnprocessableEntity, validationMessage(err), nil)
		return
	}

	ctx := r.Context()

	res, err := h.answerer.Answer(ctx, rag.Query{
		Text:        req.Query,
		MaxResults:  req.MaxResults,
		Temperature: req.Temperature,
	})
	if err != nil {
		var rerr *rag.Error
		if errors.As(err, &rerr) && rerr.Kind == rag.KindUnavailable {
			errorResponse(w, http.StatusServiceUnavailable, rerr.Error(), nil)
			return
		}
		errorResponse(w, http.StatusInternalServerError, "Query processing failed", err)
		return
	}

	sources := make([]types.Source, 0, len(res.Sources))
	for _, s := range res.Sources {
		sources = append(sources, types.Source{Title: s.Title, Content: s.Content, Score: s.Score})
	}

	h.writeJSON(ctx, w, http.StatusOK, types.QueryResponse{
		Answer:     res.Answer,
		Sources:    sources,
		TokensUsed: res.TokensUsed,
	})
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.FromContextOr(ctx, h.logger).Error("Error encoding response", zap.Error(err))
	}
}

// validationMessage lists every failed field, e.g. "max_results must satisfy max=20".
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fmt.Sprintf("%s must satisfy %s", fe.Field(), rule))
	}
	return strings.Join(parts, "; ")
}

func errorResponse(w http.ResponseWriter, status int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errorMsg := message
	if err != nil {
		errorMsg = fmt.Sprintf("%s: %v", message, err)
	}

	// The status line is already out; an encode failure means the client went away.
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{
		Error:   http.StatusText(status),
		Message: errorMsg,
	})
}
