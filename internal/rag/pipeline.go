// Package rag answers user queries by searching a hosted index and asking a completion
// backend to answer from the retrieved documents.
package rag

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/vokinneberg/ai-query-api/internal/llm"
	"github.com/vokinneberg/ai-query-api/internal/logger"
	"github.com/vokinneberg/ai-query-api/internal/metrics"
	"github.com/vokinneberg/ai-query-api/internal/search"
)

const (
	sourceContentLimit  = 500
	contextContentLimit = 1000
	contextSeparator    = "\n\n"
)

//go:generate mockgen -source=pipeline.go -destination=mock_pipeline.go -package=rag

// Searcher finds documents matching a query. The returned sequence is consumed once.
type Searcher interface {
	Search(ctx context.Context, text string, top int) iter.Seq2[search.Document, error]
}

// Completer runs chat completions.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (llm.Completion, error)
}

// Options tune a Pipeline.
type Options struct {
	Model     string
	MaxTokens int64
	// ContextFragments caps how many documents feed the prompt, independent of how many
	// sources are returned to the caller.
	ContextFragments  int
	SearchTimeout     time.Duration
	GenerationTimeout time.Duration
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Model:             "gpt-4o",
		MaxTokens:         1000,
		ContextFragments:  3,
		SearchTimeout:     5 * time.Second,
		GenerationTimeout: 60 * time.Second,
	}
}

// Query is one validated user question.
type Query struct {
	Text        string
	MaxResults  int
	Temperature float64
}

// AnswerResult is the outcome of one successful run.
type AnswerResult struct {
	Answer     string
	Sources    []search.Document
	TokensUsed int64
}

// Availability reports which backends were constructed at startup.
type Availability struct {
	Search     bool
	Generation bool
}

// Status is "healthy" when both backends exist and "degraded" otherwise.
func (a Availability) Status() string {
	if a.Search && a.Generation {
		return "healthy"
	}
	return "degraded"
}

// Pipeline orchestrates search and generation for a query.
// A nil searcher or completer marks that backend as unavailable.
type Pipeline struct {
	searcher  Searcher
	completer Completer
	opts      Options
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewPipeline creates a new pipeline
func NewPipeline(searcher Searcher, completer Completer, opts Options, log *zap.Logger, tracer trace.Tracer) (*Pipeline, error) {
	if opts.Model == "" {
		return nil, errors.New("model is required")
	}
	if opts.MaxTokens < 1 {
		return nil, errors.New("max tokens must be positive")
	}
	if opts.ContextFragments < 1 {
		return nil, errors.New("context fragments must be positive")
	}
	if opts.SearchTimeout <= 0 || opts.GenerationTimeout <= 0 {
		return nil, errors.New("timeouts must be positive")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}

	return &Pipeline{
		searcher:  searcher,
		completer: completer,
		opts:      opts,
		logger:    log,
		tracer:    tracer,
	}, nil
}

// Answer searches for documents matching q and generates an answer grounded on them.
// On failure the error is a *Error.
func (p *Pipeline) Answer(ctx context.Context, q Query) (AnswerResult, error) {
	ctx, span := p.tracer.Start(ctx, "query_ai", trace.WithAttributes(
		attribute.String("query.text", q.Text),
		attribute.Int("query.max_results", q.MaxResults),
	))
	defer span.End()

	log := logger.FromContextOr(ctx, p.logger)
	log.Info("processing query", zap.String("query", q.Text), zap.Int("max_results", q.MaxResults))

	switch {
	case p.completer == nil:
		return AnswerResult{}, p.fail(span, log, q, unavailable(DependencyGeneration))
	case p.searcher == nil:
		return AnswerResult{}, p.fail(span, log, q, unavailable(DependencySearch))
	}

	sources, fragments, err := p.searchDocuments(ctx, q)
	if err != nil {
		return AnswerResult{}, p.fail(span, log, q, upstream(DependencySearch, err))
	}

	completion, err := p.generateResponse(ctx, q, buildContext(fragments, p.opts.ContextFragments))
	if err != nil {
		return AnswerResult{}, p.fail(span, log, q, upstream(DependencyGeneration, err))
	}

	span.SetAttributes(
		attribute.Int64("response.tokens_used", completion.TotalTokens),
		attribute.Int("response.sources_count", len(sources)),
	)
	log.Info("query processed",
		zap.Int64("tokens_used", completion.TotalTokens),
		zap.Int("sources_count", len(sources)),
	)

	return AnswerResult{
		Answer:     completion.Text,
		Sources:    sources,
		TokensUsed: completion.TotalTokens,
	}, nil
}

// Health reports which backends are available. It never fails.
func (p *Pipeline) Health(ctx context.Context) Availability {
	_, span := p.tracer.Start(ctx, "health_check")
	defer span.End()

	a := Availability{
		Search:     p.searcher != nil,
		Generation: p.completer != nil,
	}
	span.SetAttributes(attribute.String("health.status", a.Status()))

	logger.FromContextOr(ctx, p.logger).Info("health check performed",
		zap.String("status", a.Status()),
		zap.Bool("search", a.Search),
		zap.Bool("generation", a.Generation),
	)
	return a
}

// searchDocuments runs one search and returns at most q.MaxResults sources together with
// the context candidate of each source, in search order.
func (p *Pipeline) searchDocuments(ctx context.Context, q Query) ([]search.Document, []string, error) {
	ctx, span := p.tracer.Start(ctx, "search_documents")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, p.opts.SearchTimeout)
	defer cancel()

	start := time.Now()
	sources := []search.Document{}
	var fragments []string
	var err error
	for doc, serr := range p.searcher.Search(ctx, q.Text, q.MaxResults) {
		if serr != nil {
			err = serr
			break
		}
		sources = append(sources, search.Document{
			Title:   doc.Title,
			Content: truncate(doc.Content, sourceContentLimit),
			Score:   doc.Score,
		})
		fragments = append(fragments, truncate(doc.Content, contextContentLimit))
		if len(sources) >= q.MaxResults {
			break
		}
	}
	metrics.ObserveUpstream(metrics.UpstreamSearch, time.Since(start).Seconds(), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	span.SetAttributes(attribute.Int("response.sources_count", len(sources)))
	return sources, fragments, nil
}

func (p *Pipeline) generateResponse(ctx context.Context, q Query, contextText string) (llm.Completion, error) {
	ctx, span := p.tracer.Start(ctx, "generate_response")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, p.opts.GenerationTimeout)
	defer cancel()

	grounded := strings.TrimSpace(contextText) != ""
	span.SetAttributes(attribute.Bool("prompt.grounded", grounded))

	start := time.Now()
	completion, err := p.completer.Complete(ctx, llm.CompletionRequest{
		Model:       p.opts.Model,
		Messages:    buildMessages(contextText, q.Text, grounded),
		Temperature: q.Temperature,
		MaxTokens:   p.opts.MaxTokens,
	})
	metrics.ObserveUpstream(metrics.UpstreamGeneration, time.Since(start).Seconds(), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return llm.Completion{}, err
	}

	metrics.CompletionTokensTotal.Add(float64(completion.TotalTokens))
	span.SetAttributes(attribute.Int64("response.tokens_used", completion.TotalTokens))
	return completion, nil
}

func (p *Pipeline) fail(span trace.Span, log *zap.Logger, q Query, err *Error) *Error {
	span.SetAttributes(attribute.String("error", err.Error()))
	span.SetStatus(codes.Error, err.Error())

	fields := []zap.Field{zap.String("query", q.Text), zap.String("dependency", err.Dependency)}
	if err.Kind == KindUnavailable {
		log.Warn("dependency unavailable", fields...)
	} else {
		log.Error("error processing query", append(fields, zap.Error(err.Err))...)
	}
	return err
}

// buildContext joins the first limit fragments with a blank line.
func buildContext(fragments []string, limit int) string {
	if len(fragments) > limit {
		fragments = fragments[:limit]
	}
	return strings.Join(fragments, contextSeparator)
}

func buildMessages(contextText, question string, grounded bool) []llm.Message {
	if grounded {
		return []llm.Message{
			{Role: llm.RoleSystem, Content: groundedSystemPrompt},
			{Role: llm.RoleUser, Content: groundedUserPrompt(contextText, question)},
		}
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: generalSystemPrompt},
		{Role: llm.RoleUser, Content: generalUserPrompt(question)},
	}
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
