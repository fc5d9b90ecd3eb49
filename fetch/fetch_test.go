package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zombar/analyzer/ssrf"
)

// testFetcher allows private addresses so httptest servers are reachable.
func testFetcher(config Config) *Fetcher {
	return New(config, ssrf.NewGuard(ssrf.Config{AllowPrivate: true}))
}

func TestFetchHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); !strings.Contains(got, "TextAnalyzer") {
			t.Errorf("unexpected User-Agent %q", got)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body><p>hello</p></body></html>")
	}))
	defer server.Close()

	doc, err := testFetcher(Config{}).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if doc.ContentType != "text/html" {
		t.Errorf("content type = %q, want text/html", doc.ContentType)
	}
	if !strings.Contains(string(doc.Body), "hello") {
		t.Errorf("body missing content: %q", doc.Body)
	}
}

func TestFetchDecodesDeclaredCharset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		// "café" in latin-1
		w.Write([]byte{'c', 'a', 'f', 0xe9})
	}))
	defer server.Close()

	doc, err := testFetcher(Config{}).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(doc.Body) != "café" {
		t.Errorf("body = %q, want café", doc.Body)
	}
}

func TestFetchResponseTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer server.Close()

	_, err := testFetcher(Config{MaxBodyBytes: 1024}).Fetch(context.Background(), server.URL)

	var fErr *Error
	if !errors.As(err, &fErr) || fErr.Code != CodeResponseTooLarge {
		t.Fatalf("expected response_too_large, got %v", err)
	}
}

func TestFetchUnsupportedContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte{0x00, 0x01})
	}))
	defer server.Close()

	_, err := testFetcher(Config{}).Fetch(context.Background(), server.URL)

	var fErr *Error
	if !errors.As(err, &fErr) || fErr.Code != CodeUnsupportedContentType {
		t.Fatalf("expected unsupported_content_type, got %v", err)
	}
}

func TestFetchBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := testFetcher(Config{}).Fetch(context.Background(), server.URL)

	var fErr *Error
	if !errors.As(err, &fErr) || fErr.Code != CodeBadStatus {
		t.Fatalf("expected bad_status, got %v", err)
	}
}

func TestFetchFollowsRedirectsWithRevalidation(t *testing.T) {
	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "landed")
	}))
	defer final.Close()

	hops := 0
	redirecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hops++
		http.Redirect(w, r, final.URL, http.StatusFound)
	}))
	defer redirecting.Close()

	doc, err := testFetcher(Config{}).Fetch(context.Background(), redirecting.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(doc.Body) != "landed" {
		t.Errorf("body = %q, want landed", doc.Body)
	}
	if hops != 1 {
		t.Errorf("redirect server hit %d times, want 1", hops)
	}
	if doc.FinalURL != final.URL {
		t.Errorf("final URL = %q, want %q", doc.FinalURL, final.URL)
	}
}

func TestFetchRedirectToPrivateAddressRejected(t *testing.T) {
	redirecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://169.254.169.254/latest/meta-data", http.StatusFound)
	}))
	defer redirecting.Close()

	// The guard admits the loopback test origin via the allowlist but keeps
	// full range checks for everything else, so the redirect hop must be
	// rejected before any second fetch happens.
	guard := ssrf.NewGuard(ssrf.Config{AllowedHosts: []string{"127.0.0.1"}})
	fetcher := New(Config{}, guard)

	_, err := fetcher.Fetch(context.Background(), redirecting.URL)
	var sErr *ssrf.Error
	if !errors.As(err, &sErr) {
		t.Fatalf("expected ssrf rejection following redirect, got %v", err)
	}
	if sErr.Reason != ssrf.ReasonPrivateAddress {
		t.Errorf("reason = %s, want %s", sErr.Reason, ssrf.ReasonPrivateAddress)
	}
}

func TestFetchTooManyRedirects(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, server.URL+"/again", http.StatusFound)
	}))
	defer server.Close()

	_, err := testFetcher(Config{MaxRedirects: 2}).Fetch(context.Background(), server.URL)

	var fErr *Error
	if !errors.As(err, &fErr) || fErr.Code != CodeTooManyRedirects {
		t.Fatalf("expected too_many_redirects, got %v", err)
	}
}

func TestFetchClosesConnectionAfterAttempt(t *testing.T) {
	var sawClose bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawClose = r.Close
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "done")
	}))
	defer server.Close()

	if _, err := testFetcher(Config{}).Fetch(context.Background(), server.URL); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	// Each attempt builds its own transport, so the connection must not be
	// left idle in a keep-alive pool nothing will ever drain.
	if !sawClose {
		t.Error("request did not ask for connection close")
	}
}

func TestFetchTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte("late"))
	}))
	defer server.Close()

	_, err := testFetcher(Config{Timeout: 50 * time.Millisecond}).Fetch(context.Background(), server.URL)

	var fErr *Error
	if !errors.As(err, &fErr) || fErr.Code != CodeTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
}
