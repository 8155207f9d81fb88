package llm

import (
	"errors"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
)

// Config holds completion backend settings.
// When AzureEndpoint is set the client talks to Azure OpenAI, authenticating with APIKey
// or, when no key is configured, with Credential. Otherwise it talks to an
// OpenAI-compatible endpoint at BaseURL using APIKey.
type Config struct {
	AzureEndpoint   string
	AzureAPIVersion string
	APIKey          string
	BaseURL         string
	Credential      azcore.TokenCredential
	EmbedModel      string
}

// Client wraps OpenAI client and provides completion and embedding calls
type Client struct {
	client     *openai.Client
	embedModel string
}

// NewClient creates a new LLM client
func NewClient(cfg Config) (*Client, error) {
	// Upstream failures are reported as-is, never retried.
	opts := []option.RequestOption{option.WithMaxRetries(0)}

	switch {
	case cfg.AzureEndpoint != "":
		opts = append(opts, azure.WithEndpoint(cfg.AzureEndpoint, cfg.AzureAPIVersion))
		switch {
		case cfg.APIKey != "":
			opts = append(opts, azure.WithAPIKey(cfg.APIKey))
		case cfg.Credential != nil:
			opts = append(opts, azure.WithTokenCredential(cfg.Credential))
		default:
			return nil, errors.New("azure openai requires an API key or a token credential")
		}
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		}
	default:
		return nil, errors.New("openai endpoint or API key is required")
	}

	client := openai.NewClient(opts...)
	return &Client{
		client:     &client,
		embedModel: cfg.EmbedModel,
	}, nil
}
