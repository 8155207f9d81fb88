package search

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/qdrant/go-client/qdrant"
)

// Embedder turns the query text into the vector Qdrant searches with.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// QdrantClient wraps Qdrant client and searches a collection by query embedding
type QdrantClient struct {
	client     *qdrant.Client
	collection string
	embedder   Embedder
}

// NewQdrantClient creates a new Qdrant client
func NewQdrantClient(cfg QdrantConfig, embedder Embedder) (*QdrantClient, error) {
	if embedder == nil {
		return nil, errors.New("qdrant search requires an embedding client")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	return &QdrantClient{
		client:     client,
		collection: cfg.Collection,
		embedder:   embedder,
	}, nil
}

// Search embeds text and returns the top nearest points using the Qdrant Query API
func (qc *QdrantClient) Search(ctx context.Context, text string, top int) iter.Seq2[Document, error] {
	if top <= 0 {
		return failed(fmt.Errorf("invalid result limit %d", top))
	}

	return once(func(yield func(Document, error) bool) {
		vector, err := qc.embedder.GenerateEmbedding(ctx, text)
		if err != nil {
			yield(Document{}, fmt.Errorf("failed to generate query embedding: %w", err))
			return
		}

		limit := uint64(top)
		points, err := qc.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: qc.collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          &limit,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			yield(Document{}, fmt.Errorf("failed to search: %w", err))
			return
		}

		for _, point := range points {
			if !yield(documentFromPayload(point.GetPayload(), point.GetScore()), nil) {
				return
			}
		}
	})
}

// Close closes the underlying gRPC connection.
func (qc *QdrantClient) Close() error {
	return qc.client.Close()
}

// documentFromPayload reads title and content from a point payload.
// Collections chunked by older ingest jobs keep their body under "text".
func documentFromPayload(payload map[string]*qdrant.Value, score float32) Document {
	doc := Document{Title: DefaultTitle, Score: float64(score)}
	if v, ok := payload["title"]; ok && v.GetStringValue() != "" {
		doc.Title = v.GetStringValue()
	}
	if v, ok := payload["content"]; ok && v.GetStringValue() != "" {
		doc.Content = v.GetStringValue()
	} else if v, ok := payload["text"]; ok {
		doc.Content = v.GetStringValue()
	}
	return doc
}
