// Package fetch performs guarded HTTP fetches. Every attempt, including every
// followed redirect, is validated through the SSRF guard and dialed against
// the guard's pinned IP so the hostname is never re-resolved between check and
// use.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/html/charset"

	"github.com/zombar/analyzer/ssrf"
)

// ErrorCode classifies fetch failures.
type ErrorCode string

const (
	CodeNetwork                ErrorCode = "network"
	CodeTimeout                ErrorCode = "timeout"
	CodeBadStatus              ErrorCode = "bad_status"
	CodeResponseTooLarge       ErrorCode = "response_too_large"
	CodeUnsupportedContentType ErrorCode = "unsupported_content_type"
	CodeTooManyRedirects       ErrorCode = "too_many_redirects"
)

// Error is a non-security fetch failure. Security rejections surface as
// *ssrf.Error instead.
type Error struct {
	Code ErrorCode
	URL  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch: %s (%s): %v", e.Code, e.URL, e.Err)
	}
	return fmt.Sprintf("fetch: %s (%s)", e.Code, e.URL)
}

func (e *Error) Unwrap() error { return e.Err }

// Config contains fetcher configuration. All timeouts are mandatory; zero
// values are replaced by the defaults.
type Config struct {
	ConnectTimeout time.Duration
	Timeout        time.Duration // total transfer timeout per attempt
	MaxBodyBytes   int64
	MaxRedirects   int
	UserAgent      string
}

// DefaultConfig returns default fetcher configuration.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 5 * time.Second,
		Timeout:        15 * time.Second,
		MaxBodyBytes:   5 * 1024 * 1024,
		MaxRedirects:   3,
		UserAgent:      "Mozilla/5.0 (compatible; TextAnalyzer/1.0)",
	}
}

// Document is the raw fetched payload before extraction.
type Document struct {
	Body        []byte
	ContentType string
	FinalURL    string
}

// Fetcher performs guarded fetches. Stateless and safe for concurrent use.
type Fetcher struct {
	config Config
	guard  *ssrf.Guard
}

// New creates a Fetcher backed by guard.
func New(config Config, guard *ssrf.Guard) *Fetcher {
	defaults := DefaultConfig()
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = defaults.ConnectTimeout
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if config.MaxRedirects <= 0 {
		config.MaxRedirects = defaults.MaxRedirects
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}
	return &Fetcher{config: config, guard: guard}
}

var allowedContentTypes = map[string]bool{
	"text/html":             true,
	"application/xhtml+xml": true,
	"text/plain":            true,
	"application/pdf":       true,
}

// Fetch retrieves rawURL, re-validating and re-pinning at every redirect hop.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	current := rawURL

	for hop := 0; hop <= f.config.MaxRedirects; hop++ {
		target, err := f.guard.Validate(ctx, current)
		if err != nil {
			return nil, err
		}

		resp, err := f.do(ctx, target)
		if err != nil {
			code := CodeNetwork
			if ctx.Err() != nil || isTimeout(err) {
				code = CodeTimeout
			}
			return nil, &Error{Code: code, URL: current, Err: err}
		}

		if location := redirectLocation(resp); location != "" {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()

			next, err := target.URL.Parse(location)
			if err != nil {
				return nil, &Error{Code: CodeNetwork, URL: current, Err: fmt.Errorf("bad redirect target: %w", err)}
			}
			current = next.String()
			continue
		}

		doc, err := f.readBody(resp, current)
		resp.Body.Close()
		return doc, err
	}

	return nil, &Error{Code: CodeTooManyRedirects, URL: rawURL}
}

// do issues a single request connected to the target's pinned address.
// Redirects are not followed by the client; Fetch handles each hop so the
// guard sees every target.
func (f *Fetcher) do(ctx context.Context, target *ssrf.Target) (*http.Response, error) {
	dialer := &net.Dialer{Timeout: f.config.ConnectTimeout}
	pinned := target.DialAddr()

	// The transport lives for a single attempt; keep-alives would strand
	// its idle connection until finalization.
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, pinned)
		},
		TLSHandshakeTimeout:   f.config.ConnectTimeout,
		ResponseHeaderTimeout: f.config.Timeout,
		DisableKeepAlives:     true,
	}

	client := &http.Client{
		Transport: otelhttp.NewTransport(transport),
		Timeout:   f.config.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html, text/plain, application/pdf")

	return client.Do(req)
}

// readBody enforces the status, content-type, and size policies, decoding
// text bodies to UTF-8 from their declared charset.
func (f *Fetcher) readBody(resp *http.Response, url string) (*Document, error) {
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Code: CodeBadStatus, URL: url, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	declared := resp.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(declared, ";", 2)[0]))
	}
	if !allowedContentTypes[mediaType] {
		return nil, &Error{Code: CodeUnsupportedContentType, URL: url, Err: fmt.Errorf("content type %q", declared)}
	}

	// The limit is applied before any decoding so an oversized body aborts
	// mid-stream rather than after a full download.
	var reader io.Reader = io.LimitReader(resp.Body, f.config.MaxBodyBytes+1)
	if mediaType != "application/pdf" {
		decoded, err := charset.NewReader(reader, declared)
		if err == nil {
			reader = decoded
		}
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &Error{Code: CodeNetwork, URL: url, Err: err}
	}
	if int64(len(body)) > f.config.MaxBodyBytes {
		return nil, &Error{Code: CodeResponseTooLarge, URL: url}
	}

	return &Document{Body: body, ContentType: mediaType, FinalURL: url}, nil
}

func redirectLocation(resp *http.Response) string {
	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return resp.Header.Get("Location")
	}
	return ""
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
