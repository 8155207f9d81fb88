package types

// Source is one retrieved document returned with an answer
type Source struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// QueryResponse represents a query response
type QueryResponse struct {
	Answer     string   `json:"answer"`
	Sources    []Source `json:"sources"`
	TokensUsed int64    `json:"tokens_used"`
}

// HealthResponse reports which backends are available
type HealthResponse struct {
	Status   string          `json:"status"`
	Services map[string]bool `json:"services"`
}

// RootResponse is served on the service root
type RootResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
