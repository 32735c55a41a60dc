package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// ErrGenerationUnavailable is returned once every attempt against the
// generation service has failed.
var ErrGenerationUnavailable = errors.New("generation service unavailable")

// Client handles communication with the external chunk generation service.
type Client struct {
	baseURL    string
	timeout    time.Duration
	retryCount int
	maxBackoff time.Duration
	client     *http.Client
}

// ClientConfig configures the generation service client.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration // per-attempt deadline
	RetryCount int           // retries after the first attempt
	MaxBackoff time.Duration // cap on the exponential backoff delay
}

// NewClient creates a generation service client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 2 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		timeout:    cfg.Timeout,
		retryCount: cfg.RetryCount,
		maxBackoff: cfg.MaxBackoff,
		client:     &http.Client{},
	}
}

// HealthCheck checks if the generation service is healthy.
func (c *Client) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/health", c.baseURL)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Printf("Warning: failed to close generation health response body: %v", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to decode health response: %w", err)
	}
	if health.Status != "ok" {
		return fmt.Errorf("service reported unhealthy status: %s", health.Status)
	}
	return nil
}

// GenerateChunk requests chunk generation, retrying transient failures with
// exponential backoff. Each attempt gets its own timeout; the passed context
// bounds the whole call including backoff sleeps.
func (c *Client) GenerateChunk(ctx context.Context, request GenerateChunkRequest) (*GenerateChunkResponse, error) {
	url := fmt.Sprintf("%s/api/v1/chunks/generate", c.baseURL)

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 100ms, 200ms, 400ms... capped
			backoff := time.Duration(100*(1<<uint(attempt-1))) * time.Millisecond
			if backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %s", ErrGenerationUnavailable, ctx.Err())
			case <-time.After(backoff):
			}
		}

		response, err := c.generateOnce(ctx, url, body)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		return response, nil
	}

	return nil, fmt.Errorf("%w: %d attempts failed, last error: %s",
		ErrGenerationUnavailable, c.retryCount+1, lastErr)
}

func (c *Client) generateOnce(ctx context.Context, url string, body []byte) (*GenerateChunkResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Printf("Warning: failed to close generation response body: %v", closeErr)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generation failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var response GenerateChunkResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !response.Success {
		msg := "no message"
		if response.Message != nil {
			msg = *response.Message
		}
		return nil, fmt.Errorf("generation failed: %s", msg)
	}
	if response.Geometry == nil {
		return nil, fmt.Errorf("generation succeeded but returned no geometry")
	}
	return &response, nil
}
