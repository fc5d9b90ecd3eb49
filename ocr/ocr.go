// Package ocr is the client for the OCR sidecar service. The core never runs
// an OCR engine itself; it forwards image or PDF bytes and consumes the
// recognized text plus confidence.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// DefaultBaseURL is the OCR sidecar address.
	DefaultBaseURL = "http://localhost:8884"

	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
)

// Config contains OCR client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns default OCR client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: 60 * time.Second,
	}
}

// Client calls the OCR sidecar.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an OCR client.
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type recognizeRequest struct {
	Filename string `json:"filename"`
	Data     string `json:"data"` // base64 image or PDF bytes
}

type recognizeResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Recognize submits blob for OCR and returns the recognized text with the
// engine's mean confidence in [0,1]. The sidecar routes PDFs and images by
// filename extension.
func (c *Client) Recognize(ctx context.Context, blob []byte, filename string) (string, float64, error) {
	payload, err := json.Marshal(recognizeRequest{
		Filename: filename,
		Data:     base64.StdEncoding.EncodeToString(blob),
	})
	if err != nil {
		return "", 0, fmt.Errorf("marshal ocr request: %w", err)
	}

	resp, err := c.doWithRetry(ctx, payload)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("read ocr response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("ocr service returned %d", resp.StatusCode)
	}

	var result recognizeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", 0, fmt.Errorf("unmarshal ocr response: %w", err)
	}

	return result.Text, result.Confidence, nil
}

// doWithRetry retries transient failures (network errors and 5xx) with
// exponential backoff.
func (c *Client) doWithRetry(ctx context.Context, payload []byte) (*http.Response, error) {
	var lastErr error
	backoff := initialBackoff

	for attempt := 0; attempt < maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/recognize", bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build ocr request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("ocr service returned %d", resp.StatusCode)
			resp.Body.Close()
		}

		slog.Warn("ocr request failed, will retry",
			slog.Int("attempt", attempt+1),
			slog.String("error", lastErr.Error()))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return nil, fmt.Errorf("ocr request failed after %d attempts: %w", maxRetries, lastErr)
}
