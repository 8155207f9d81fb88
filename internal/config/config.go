package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Search drivers.
const (
	SearchDriverAzure  = "azure"
	SearchDriverQdrant = "qdrant"
)

// Config holds all configuration for the application
type Config struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`

	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Search    SearchConfig    `yaml:"search"`
	RAG       RAGConfig       `yaml:"rag"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	ShutdownSec     int    `yaml:"shutdown_timeout_sec"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled        bool   `yaml:"enabled"`
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
}

// OpenAIConfig holds completion backend settings. AzureEndpoint takes precedence over BaseURL.
type OpenAIConfig struct {
	AzureEndpoint   string `yaml:"azure_endpoint"`
	AzureAPIVersion string `yaml:"azure_api_version"`
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	Model           string `yaml:"model"`
	EmbedModel      string `yaml:"embed_model"`
}

// SearchConfig holds search backend settings.
type SearchConfig struct {
	Driver string `yaml:"driver"` // azure, qdrant (default: azure)

	AzureEndpoint   string `yaml:"azure_endpoint"`
	AzureIndex      string `yaml:"azure_index"`
	AzureAPIKey     string `yaml:"azure_api_key"`
	AzureAPIVersion string `yaml:"azure_api_version"`

	QdrantHost       string `yaml:"qdrant_host"`
	QdrantPort       int    `yaml:"qdrant_port"`
	QdrantAPIKey     string `yaml:"qdrant_api_key"`
	QdrantUseTLS     bool   `yaml:"qdrant_use_tls"`
	QdrantCollection string `yaml:"qdrant_collection"`
}

// RAGConfig holds query orchestration settings.
type RAGConfig struct {
	ContextFragments     int `yaml:"context_fragments"`
	MaxTokens            int `yaml:"max_tokens"`
	SearchTimeoutSec     int `yaml:"search_timeout_sec"`
	GenerationTimeoutSec int `yaml:"generation_timeout_sec"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Env: "local",
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ReadTimeoutSec:  10,
			WriteTimeoutSec: 90,
			ShutdownSec:     10,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "aca-restapi-mcp-otel-openai",
			ServiceVersion: "1.0.0",
		},
		OpenAI: OpenAIConfig{
			AzureAPIVersion: "2024-02-01",
			Model:           "gpt-4o",
			EmbedModel:      "text-embedding-3-large",
		},
		Search: SearchConfig{
			Driver:           SearchDriverAzure,
			AzureIndex:       "documents",
			AzureAPIVersion:  "2023-11-01",
			QdrantHost:       "localhost",
			QdrantPort:       6334,
			QdrantCollection: "documents",
		},
		RAG: RAGConfig{
			ContextFragments:     3,
			MaxTokens:            1000,
			SearchTimeoutSec:     5,
			GenerationTimeoutSec: 60,
		},
	}
}

// LoadConfig loads configuration from the process environment and command-line flags.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load builds the configuration in layers: defaults, optional YAML file (CONFIG_FILE),
// environment variables (including an optional .env file), then flags.
// Flags take precedence over environment variables
func Load(args []string) (*Config, error) {
	// No-op when .env doesn't exist
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	fs := flag.NewFlagSet("aiapi", flag.ContinueOnError)

	fs.StringVar(&cfg.Env, "env", getEnv("ENV", cfg.Env), "Environment: local, dev, docker, prod")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", cfg.LogLevel), "Log level override")

	fs.StringVar(&cfg.Server.Host, "host", getEnv("HOST", cfg.Server.Host), "Server host")
	fs.IntVar(&cfg.Server.Port, "port", getEnvAsInt("PORT", cfg.Server.Port), "Server port")
	fs.IntVar(&cfg.Server.ReadTimeoutSec, "read-timeout", getEnvAsInt("READ_TIMEOUT_SEC", cfg.Server.ReadTimeoutSec), "HTTP read timeout in seconds")
	fs.IntVar(&cfg.Server.WriteTimeoutSec, "write-timeout", getEnvAsInt("WRITE_TIMEOUT_SEC", cfg.Server.WriteTimeoutSec), "HTTP write timeout in seconds")
	fs.IntVar(&cfg.Server.ShutdownSec, "shutdown-timeout", getEnvAsInt("SHUTDOWN_TIMEOUT_SEC", cfg.Server.ShutdownSec), "Graceful shutdown timeout in seconds")

	fs.BoolVar(&cfg.Telemetry.Enabled, "enable-otel", getEnvAsBool("ENABLE_OTEL", cfg.Telemetry.Enabled), "Export OpenTelemetry spans")
	fs.StringVar(&cfg.Telemetry.ServiceName, "otel-service-name", getEnv("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName), "OpenTelemetry service name")
	fs.StringVar(&cfg.Telemetry.ServiceVersion, "otel-service-version", getEnv("OTEL_SERVICE_VERSION", cfg.Telemetry.ServiceVersion), "OpenTelemetry service version")

	fs.StringVar(&cfg.OpenAI.AzureEndpoint, "azure-openai-endpoint", getEnv("AZURE_OPENAI_ENDPOINT", cfg.OpenAI.AzureEndpoint), "Azure OpenAI endpoint")
	fs.StringVar(&cfg.OpenAI.AzureAPIVersion, "azure-openai-api-version", getEnv("AZURE_OPENAI_API_VERSION", cfg.OpenAI.AzureAPIVersion), "Azure OpenAI API version")
	fs.StringVar(&cfg.OpenAI.APIKey, "openai-key", getEnv("AZURE_OPENAI_API_KEY", getEnv("OPENAI_API_KEY", cfg.OpenAI.APIKey)), "OpenAI API key (Azure uses Entra ID when empty)")
	fs.StringVar(&cfg.OpenAI.BaseURL, "openai-base-url", getEnv("OPENAI_BASE_URL", cfg.OpenAI.BaseURL), "OpenAI-compatible base URL")
	fs.StringVar(&cfg.OpenAI.Model, "openai-model", getEnv("OPENAI_MODEL", cfg.OpenAI.Model), "Model (Azure deployment) for chat completions")
	fs.StringVar(&cfg.OpenAI.EmbedModel, "openai-embed-model", getEnv("OPENAI_EMBED_MODEL", cfg.OpenAI.EmbedModel), "Model for query embeddings (qdrant driver)")

	fs.StringVar(&cfg.Search.Driver, "search-driver", getEnv("SEARCH_DRIVER", cfg.Search.Driver), "Search backend: azure, qdrant")
	fs.StringVar(&cfg.Search.AzureEndpoint, "azure-search-endpoint", getEnv("AZURE_SEARCH_ENDPOINT", cfg.Search.AzureEndpoint), "Azure AI Search endpoint")
	fs.StringVar(&cfg.Search.AzureIndex, "azure-search-index", getEnv("AZURE_SEARCH_INDEX", cfg.Search.AzureIndex), "Azure AI Search index name")
	fs.StringVar(&cfg.Search.AzureAPIKey, "azure-search-key", getEnv("AZURE_SEARCH_API_KEY", cfg.Search.AzureAPIKey), "Azure AI Search query key (Entra ID when empty)")
	fs.StringVar(&cfg.Search.AzureAPIVersion, "azure-search-api-version", getEnv("AZURE_SEARCH_API_VERSION", cfg.Search.AzureAPIVersion), "Azure AI Search API version")
	fs.StringVar(&cfg.Search.QdrantHost, "qdrant-host", getEnv("QDRANT_HOST", cfg.Search.QdrantHost), "Qdrant host")
	fs.IntVar(&cfg.Search.QdrantPort, "qdrant-port", getEnvAsInt("QDRANT_PORT", cfg.Search.QdrantPort), "Qdrant gRPC port")
	fs.StringVar(&cfg.Search.QdrantAPIKey, "qdrant-key", getEnv("QDRANT_API_KEY", cfg.Search.QdrantAPIKey), "Qdrant API key")
	fs.BoolVar(&cfg.Search.QdrantUseTLS, "qdrant-tls", getEnvAsBool("QDRANT_USE_TLS", cfg.Search.QdrantUseTLS), "Use TLS for Qdrant")
	fs.StringVar(&cfg.Search.QdrantCollection, "qdrant-collection", getEnv("QDRANT_COLLECTION", cfg.Search.QdrantCollection), "Qdrant collection name")

	fs.IntVar(&cfg.RAG.ContextFragments, "context-fragments", getEnvAsInt("CONTEXT_FRAGMENTS", cfg.RAG.ContextFragments), "Search results folded into the prompt")
	fs.IntVar(&cfg.RAG.MaxTokens, "max-tokens", getEnvAsInt("MAX_TOKENS", cfg.RAG.MaxTokens), "Maximum completion tokens")
	fs.IntVar(&cfg.RAG.SearchTimeoutSec, "search-timeout", getEnvAsInt("SEARCH_TIMEOUT_SEC", cfg.RAG.SearchTimeoutSec), "Search call deadline in seconds")
	fs.IntVar(&cfg.RAG.GenerationTimeoutSec, "generation-timeout", getEnvAsInt("GENERATION_TIMEOUT_SEC", cfg.RAG.GenerationTimeoutSec), "Completion call deadline in seconds")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for correctness.
// Upstream endpoints are optional: a missing one leaves that service unavailable.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Search.Driver {
	case SearchDriverAzure, SearchDriverQdrant:
	default:
		return fmt.Errorf("search driver must be %q or %q, got %q", SearchDriverAzure, SearchDriverQdrant, c.Search.Driver)
	}
	if c.OpenAI.Model == "" {
		return fmt.Errorf("openai model is required")
	}
	if c.RAG.ContextFragments < 1 {
		return fmt.Errorf("context fragments must be at least 1, got %d", c.RAG.ContextFragments)
	}
	if c.RAG.MaxTokens < 1 {
		return fmt.Errorf("max tokens must be at least 1, got %d", c.RAG.MaxTokens)
	}
	if c.RAG.SearchTimeoutSec <= 0 || c.RAG.GenerationTimeoutSec <= 0 {
		return fmt.Errorf("upstream timeouts must be positive")
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(expandEnvVars(data), cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		return IsTruthy(value)
	}
	return defaultValue
}

// IsTruthy reports whether s is one of 1, true, yes, on (case-insensitive).
func IsTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
