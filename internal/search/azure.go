package search

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"

	"github.com/vokinneberg/ai-query-api/internal/version"
)

const azureSearchScope = "https://search.azure.com/.default"

// AzureConfig holds Azure AI Search settings. APIKey takes precedence over Credential.
type AzureConfig struct {
	Endpoint   string
	Index      string
	APIVersion string
	APIKey     string
	Credential azcore.TokenCredential
	// Transport overrides the HTTP transport; nil uses the azcore default.
	Transport policy.Transporter
}

// AzureClient queries an Azure AI Search index over its REST API.
type AzureClient struct {
	pipeline runtime.Pipeline
	url      string
}

// NewAzureClient creates a new Azure AI Search client
func NewAzureClient(cfg AzureConfig) (*AzureClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("azure search endpoint is required")
	}
	if cfg.Index == "" {
		return nil, errors.New("azure search index is required")
	}

	var auth policy.Policy
	switch {
	case cfg.APIKey != "":
		auth = apiKeyPolicy{key: cfg.APIKey}
	case cfg.Credential != nil:
		auth = runtime.NewBearerTokenPolicy(cfg.Credential, []string{azureSearchScope}, nil)
	default:
		return nil, errors.New("azure search requires an API key or a token credential")
	}

	// Upstream failures surface immediately; retries are the caller's decision.
	opts := &policy.ClientOptions{
		Retry:     policy.RetryOptions{MaxRetries: -1},
		Transport: cfg.Transport,
	}
	pl := runtime.NewPipeline("aiapi-search", version.Version, runtime.PipelineOptions{
		PerRetry: []policy.Policy{auth},
	}, opts)

	u := fmt.Sprintf("%s/indexes/%s/docs/search?api-version=%s",
		strings.TrimRight(cfg.Endpoint, "/"),
		url.PathEscape(cfg.Index),
		url.QueryEscape(cfg.APIVersion),
	)

	return &AzureClient{pipeline: pl, url: u}, nil
}

type azureSearchRequest struct {
	Search string `json:"search"`
	Top    int    `json:"top"`
}

type azureSearchResponse struct {
	Value []azureHit `json:"value"`
}

type azureHit struct {
	Score   float64 `json:"@search.score"`
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

func (h azureHit) document() Document {
	doc := Document{Title: DefaultTitle, Score: h.Score}
	if h.Title != nil {
		doc.Title = *h.Title
	}
	if h.Content != nil {
		doc.Content = *h.Content
	}
	return doc
}

// Search runs a full-text query returning at most top hits in index order.
// The request is sent when iteration starts.
func (c *AzureClient) Search(ctx context.Context, text string, top int) iter.Seq2[Document, error] {
	return once(func(yield func(Document, error) bool) {
		hits, err := c.query(ctx, text, top)
		if err != nil {
			yield(Document{}, err)
			return
		}
		for _, hit := range hits {
			if !yield(hit.document(), nil) {
				return
			}
		}
	})
}

func (c *AzureClient) query(ctx context.Context, text string, top int) ([]azureHit, error) {
	req, err := runtime.NewRequest(ctx, http.MethodPost, c.url)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	if err := runtime.MarshalAsJSON(req, azureSearchRequest{Search: text, Top: top}); err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	resp, err := c.pipeline.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if !runtime.HasStatusCode(resp, http.StatusOK) {
		return nil, fmt.Errorf("failed to search: %w", runtime.NewResponseError(resp))
	}

	var out azureSearchResponse
	if err := runtime.UnmarshalAsJSON(resp, &out); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return out.Value, nil
}

// Close releases client resources.
func (c *AzureClient) Close() error {
	return nil
}

// apiKeyPolicy authenticates with an Azure AI Search query key.
type apiKeyPolicy struct {
	key string
}

func (p apiKeyPolicy) Do(req *policy.Request) (*http.Response, error) {
	req.Raw().Header.Set("api-key", p.key)
	return req.Next()
}
