// Command ask is a smoke test for a running AI query API: it checks /health and, when a
// question is given, sends it to /query and prints the answer with its sources.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/vokinneberg/ai-query-api/internal/types"
)

type options struct {
	serverURL   string
	maxResults  int
	temperature float64
	// requireHealthy fails the run when the service reports degraded.
	requireHealthy bool
	question       string
}

func main() {
	serverURL := flag.String("server", "http://localhost:8000", "Base URL of the API")
	maxResults := flag.Int("max-results", 5, "Number of sources to return (1-20)")
	temperature := flag.Float64("temp", 0.7, "Sampling temperature (0-1)")
	timeout := flag.Duration("timeout", 90*time.Second, "Overall request timeout")
	strict := flag.Bool("strict", false, "Fail when the service is degraded")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, *timeout)
	defer cancelTimeout()

	client := &http.Client{}
	err := run(ctx, client, os.Stdout, options{
		serverURL:      strings.TrimRight(*serverURL, "/"),
		maxResults:     *maxResults,
		temperature:    *temperature,
		requireHealthy: *strict,
		question:       strings.Join(flag.Args(), " "),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, color.New(color.FgRed, color.Bold).Sprint("[SMOKE] FAILED: ")+err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, client *http.Client, out io.Writer, opts options) error {
	boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	var health types.HealthResponse
	if err := call(ctx, client, http.MethodGet, opts.serverURL+"/health", nil, &health); err != nil {
		return fmt.Errorf("health check: %w", err)
	}

	status := boldGreen(health.Status)
	if health.Status != "healthy" {
		status = yellow(health.Status)
	}
	fmt.Fprintf(out, "Status: %s (search=%t, generation=%t)\n",
		status, health.Services["search"], health.Services["generation"])

	if opts.requireHealthy && health.Status != "healthy" {
		return fmt.Errorf("service is %s", health.Status)
	}
	if opts.question == "" {
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"query":       opts.question,
		"max_results": opts.maxResults,
		"temperature": opts.temperature,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal query: %w", err)
	}

	var answer types.QueryResponse
	if err := call(ctx, client, http.MethodPost, opts.serverURL+"/query", body, &answer); err != nil {
		return fmt.Errorf("query: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, boldCyan("Answer: ")+answer.Answer)
	fmt.Fprintln(out)
	for i, s := range answer.Sources {
		fmt.Fprintf(out, "[%d] %s (score %.4f)\n", i+1, boldGreen(s.Title), s.Score)
	}
	fmt.Fprintf(out, "Tokens used: %d\n", answer.TokensUsed)
	return nil
}

// call sends one JSON request and decodes a 200 response into v.
func call(ctx context.Context, client *http.Client, method, url string, body []byte, v any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr types.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
