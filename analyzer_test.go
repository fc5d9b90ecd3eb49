package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/zombar/analyzer/fetch"
	"github.com/zombar/analyzer/keywords"
	"github.com/zombar/analyzer/models"
	"github.com/zombar/analyzer/sentiment"
	"github.com/zombar/analyzer/ssrf"
)

type fakeStore struct {
	inserted []*models.AnalysisRecord
	err      error
}

func (f *fakeStore) Insert(_ context.Context, record *models.AnalysisRecord) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, record)
	return nil
}

type fakeFetcher struct {
	doc *fetch.Document
	err error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) (*fetch.Document, error) {
	return f.doc, f.err
}

type fakeRecognizer struct {
	text        string
	confidence  float64
	err         error
	gotFilename string
}

func (f *fakeRecognizer) Recognize(_ context.Context, _ []byte, filename string) (string, float64, error) {
	f.gotFilename = filename
	return f.text, f.confidence, f.err
}

func newTestAnalyzer(store Store, fetcher Fetcher, recognizer Recognizer) *Analyzer {
	return New(fetcher, recognizer, sentiment.NewSelector(nil), keywords.NewExtractor(0, 0), store)
}

func TestAnalyzeText(t *testing.T) {
	store := &fakeStore{}
	a := newTestAnalyzer(store, nil, nil)

	record, err := a.Analyze(context.Background(), Request{
		SourceType: models.SourceText,
		Mode:       models.ModeFast,
		Text:       "This is a wonderful product! I absolutely love it.",
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if record.ID == "" {
		t.Error("record has no id")
	}
	if record.CreatedAt.IsZero() || record.CreatedAt.Location() != record.CreatedAt.UTC().Location() {
		t.Error("created_at not set in UTC")
	}
	if record.SourceType != models.SourceText {
		t.Errorf("source type = %q", record.SourceType)
	}
	if record.ModelVersion != sentiment.FastModelVersion {
		t.Errorf("model version = %q", record.ModelVersion)
	}
	if record.Result.SchemaVersion != models.ResultSchemaVersion {
		t.Errorf("schema version = %d", record.Result.SchemaVersion)
	}
	if record.Result.Sentiment.PolarityLabel != "positive" {
		t.Errorf("label = %q, want positive", record.Result.Sentiment.PolarityLabel)
	}
	if record.Result.Sentiment.Compound <= 0.05 {
		t.Errorf("compound = %f, want > 0.05", record.Result.Sentiment.Compound)
	}
	if !containsWord(record.Result.Keywords, "wonderful") {
		t.Errorf("keywords %v missing wonderful", record.Result.Keywords)
	}
	if record.Result.WordCount == 0 {
		t.Error("word count is zero")
	}

	wantHash := sha256.Sum256([]byte(record.ExtractedText))
	if record.RawInputHash != hex.EncodeToString(wantHash[:]) {
		t.Errorf("hash mismatch for short text: %s", record.RawInputHash)
	}

	if len(store.inserted) != 1 || store.inserted[0] != record {
		t.Error("record not handed to storage exactly once")
	}
}

func TestAnalyzeSameTextTwiceDistinctRecords(t *testing.T) {
	store := &fakeStore{}
	a := newTestAnalyzer(store, nil, nil)
	req := Request{SourceType: models.SourceText, Mode: models.ModeFast, Text: "Steady, unremarkable prose."}

	first, err := a.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("first Analyze failed: %v", err)
	}
	second, err := a.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("second Analyze failed: %v", err)
	}

	if first.ID == second.ID {
		t.Error("duplicate content must still produce distinct record ids")
	}
	if first.RawInputHash != second.RawInputHash {
		t.Error("same content produced different fingerprints")
	}
	if first.Result.Sentiment != second.Result.Sentiment {
		t.Errorf("fast tier results differ: %+v vs %+v", first.Result.Sentiment, second.Result.Sentiment)
	}
	if len(store.inserted) != 2 {
		t.Errorf("insert count = %d, want 2", len(store.inserted))
	}
}

func TestAnalyzeEmptyTextRejected(t *testing.T) {
	store := &fakeStore{}
	a := newTestAnalyzer(store, nil, nil)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := a.Analyze(context.Background(), Request{SourceType: models.SourceText, Text: text})

		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.Code != "empty_input" {
			t.Errorf("Analyze(%q): expected empty_input validation error, got %v", text, err)
		}
	}
	if len(store.inserted) != 0 {
		t.Error("rejected request must not persist anything")
	}
}

func TestAnalyzeTruncation(t *testing.T) {
	store := &fakeStore{}
	a := newTestAnalyzer(store, nil, nil)

	long := strings.Repeat("wonderful prose flows here endlessly. ", 80) // ~3000 chars
	record, err := a.Analyze(context.Background(), Request{SourceType: models.SourceText, Text: long})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	normalized := markdownToPlainText(long)
	if len([]rune(record.ExtractedText)) != ExtractedTextLimit {
		t.Errorf("extracted text length = %d, want exactly %d", len([]rune(record.ExtractedText)), ExtractedTextLimit)
	}
	if record.ExtractedText != string([]rune(normalized)[:ExtractedTextLimit]) {
		t.Error("extracted text is not the first 1000 characters of the normalized text")
	}

	// The fingerprint covers the full normalized text, not the stored bound.
	fullHash := sha256.Sum256([]byte(normalized))
	if record.RawInputHash != hex.EncodeToString(fullHash[:]) {
		t.Error("hash must cover the full normalized text")
	}
}

func TestAnalyzeURL(t *testing.T) {
	store := &fakeStore{}
	fetcher := &fakeFetcher{doc: &fetch.Document{
		Body:        []byte("<html><head><title>Review</title></head><body><article><p>A wonderful little gadget.</p></article></body></html>"),
		ContentType: "text/html",
		FinalURL:    "http://example.com/review",
	}}
	a := newTestAnalyzer(store, fetcher, nil)

	record, err := a.Analyze(context.Background(), Request{
		SourceType: models.SourceURL,
		URL:        "http://example.com/review",
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if record.URL != "http://example.com/review" {
		t.Errorf("record url = %q", record.URL)
	}
	if !strings.Contains(record.ExtractedText, "wonderful little gadget") {
		t.Errorf("extracted text = %q", record.ExtractedText)
	}
}

func TestAnalyzeURLSecurityRejectionPropagates(t *testing.T) {
	store := &fakeStore{}
	fetcher := &fakeFetcher{err: &ssrf.Error{Reason: ssrf.ReasonPrivateAddress, Host: "metadata.internal"}}
	a := newTestAnalyzer(store, fetcher, nil)

	_, err := a.Analyze(context.Background(), Request{SourceType: models.SourceURL, URL: "http://metadata.internal/"})

	var sErr *ssrf.Error
	if !errors.As(err, &sErr) || sErr.Reason != ssrf.ReasonPrivateAddress {
		t.Fatalf("expected ssrf rejection, got %v", err)
	}
	if len(store.inserted) != 0 {
		t.Error("rejected fetch must not persist anything")
	}
}

func TestAnalyzeURLNoExtractableText(t *testing.T) {
	store := &fakeStore{}
	fetcher := &fakeFetcher{doc: &fetch.Document{
		Body:        []byte("<html><body><script>nothing()</script></body></html>"),
		ContentType: "text/html",
	}}
	a := newTestAnalyzer(store, fetcher, nil)

	_, err := a.Analyze(context.Background(), Request{SourceType: models.SourceURL, URL: "http://example.com/empty"})

	var nErr *NormalizationError
	if !errors.As(err, &nErr) {
		t.Fatalf("expected normalization error, got %v", err)
	}
	if len(store.inserted) != 0 {
		t.Error("failed normalization must not persist anything")
	}
}

func TestAnalyzeURLPDFRoutedToRecognizer(t *testing.T) {
	store := &fakeStore{}
	fetcher := &fakeFetcher{doc: &fetch.Document{
		Body:        []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj"),
		ContentType: "application/pdf",
		FinalURL:    "https://example.com/reports/q3-summary.pdf",
	}}
	recognizer := &fakeRecognizer{text: "Quarterly revenue grew and the team is delighted.", confidence: 0.91}
	a := newTestAnalyzer(store, fetcher, recognizer)

	record, err := a.Analyze(context.Background(), Request{
		SourceType: models.SourceURL,
		URL:        "https://example.com/reports/q3-summary.pdf",
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if record.ExtractedText != recognizer.text {
		t.Errorf("extracted text = %q, want recognizer output", record.ExtractedText)
	}
	if strings.Contains(record.ExtractedText, "%PDF") {
		t.Errorf("raw pdf syntax leaked into extracted text: %q", record.ExtractedText)
	}
	if recognizer.gotFilename != "q3-summary.pdf" {
		t.Errorf("recognizer got filename %q, want q3-summary.pdf", recognizer.gotFilename)
	}
	if len(store.inserted) != 1 {
		t.Errorf("inserted %d records, want 1", len(store.inserted))
	}
}

func TestAnalyzeURLPDFWithoutRecognizer(t *testing.T) {
	store := &fakeStore{}
	fetcher := &fakeFetcher{doc: &fetch.Document{
		Body:        []byte("%PDF-1.4\n1 0 obj"),
		ContentType: "application/pdf",
	}}
	a := newTestAnalyzer(store, fetcher, nil)

	_, err := a.Analyze(context.Background(), Request{SourceType: models.SourceURL, URL: "https://example.com/doc.pdf"})

	var nErr *NormalizationError
	if !errors.As(err, &nErr) || nErr.Code != "no_extractable_text" {
		t.Fatalf("expected no_extractable_text, got %v", err)
	}
	if len(store.inserted) != 0 {
		t.Error("rejected pdf must not persist anything")
	}
}

func TestAnalyzeImage(t *testing.T) {
	store := &fakeStore{}
	recognizer := &fakeRecognizer{text: "Scanned page praising a truly wonderful novel.", confidence: 0.88}
	a := newTestAnalyzer(store, nil, recognizer)

	record, err := a.Analyze(context.Background(), Request{
		SourceType: models.SourceImage,
		Blob:       []byte{0xFF, 0xD8},
		Filename:   "page.jpg",
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if record.Filename != "page.jpg" {
		t.Errorf("filename = %q", record.Filename)
	}
	if record.SourceType != models.SourceImage {
		t.Errorf("source type = %q", record.SourceType)
	}
}

func TestAnalyzeImageEmptyOCR(t *testing.T) {
	store := &fakeStore{}
	a := newTestAnalyzer(store, nil, &fakeRecognizer{text: "  ", confidence: 0.1})

	_, err := a.Analyze(context.Background(), Request{
		SourceType: models.SourceImage,
		Blob:       []byte{0xFF},
		Filename:   "blank.png",
	})

	var nErr *NormalizationError
	if !errors.As(err, &nErr) || nErr.Code != "no_extractable_text" {
		t.Fatalf("expected no_extractable_text, got %v", err)
	}
	if len(store.inserted) != 0 {
		t.Error("empty OCR must not persist anything")
	}
}

func TestAnalyzePersistenceFailureStillReturnsResult(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	a := newTestAnalyzer(store, nil, nil)

	record, err := a.Analyze(context.Background(), Request{
		SourceType: models.SourceText,
		Text:       "Fine text that analyzes cleanly.",
	})

	var pErr *PersistenceError
	if !errors.As(err, &pErr) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if record == nil || record.Result.WordCount == 0 {
		t.Error("computed record must be returned alongside the persistence error")
	}
}

func TestAnalyzeRequestValidation(t *testing.T) {
	a := newTestAnalyzer(&fakeStore{}, nil, nil)

	tests := []struct {
		name string
		req  Request
	}{
		{"unknown source type", Request{SourceType: "video", Text: "x"}},
		{"unknown mode", Request{SourceType: models.SourceText, Mode: "turbo", Text: "x"}},
		{"url without url", Request{SourceType: models.SourceURL}},
		{"image without blob", Request{SourceType: models.SourceImage, Filename: "a.png"}},
		{"text with url payload", Request{SourceType: models.SourceText, Text: "x", URL: "http://example.com"}},
		{"url with blob payload", Request{SourceType: models.SourceURL, URL: "http://example.com", Blob: []byte{1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Analyze(context.Background(), tt.req)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestAnalyzeDefaultsModeToFast(t *testing.T) {
	store := &fakeStore{}
	a := newTestAnalyzer(store, nil, nil)

	record, err := a.Analyze(context.Background(), Request{SourceType: models.SourceText, Text: "Plain enough."})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if record.Mode != models.ModeFast {
		t.Errorf("mode = %q, want fast", record.Mode)
	}
}

func containsWord(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
