package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/privacylion/relay-operator/internal/api"
	"github.com/privacylion/relay-operator/internal/auth"
	"github.com/privacylion/relay-operator/internal/infrastructure/config"
)

// cliTokenSubject is the subject of tokens minted by the CLI.
const cliTokenSubject = "relayoperator-cli"

// apiClient calls the API of a running "serve" process.
type apiClient struct {
	baseURL string
	secret  string
	ttl     time.Duration
	http    *http.Client
}

func newAPIClient(cfg *config.Config) *apiClient {
	return &apiClient{
		baseURL: cfg.APIBaseURL(),
		secret:  cfg.Security.JWT.Secret,
		ttl:     time.Duration(cfg.Security.JWT.TokenTTL) * time.Minute,
		// Start waits for the settle delay and a probe, so allow the
		// full server write timeout.
		http: &http.Client{Timeout: cfg.API.GetWriteTimeout() + 5*time.Second},
	}
}

// do sends a request and decodes a JSON response into out. Error responses
// are returned as errors carrying the server's message.
func (c *apiClient) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.secret != "" {
		token, err := auth.GenerateToken(cliTokenSubject, c.secret, c.ttl)
		if err != nil {
			return fmt.Errorf("minting API token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contacting relay operator at %s (is \"serve\" running?): %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr api.Error
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return errors.New(apiErr.Message)
		}
		return fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func (c *apiClient) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *apiClient) post(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodPost, path, strings.NewReader("{}"), out)
}
