// Package analyzer orchestrates the ingestion and analysis pipeline:
// normalize a source-specific payload into plain text, score sentiment on the
// selected tier, extract keywords, fingerprint the content, and hand a
// complete immutable record to storage.
package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombar/analyzer/extract"
	"github.com/zombar/analyzer/fetch"
	"github.com/zombar/analyzer/keywords"
	"github.com/zombar/analyzer/metrics"
	"github.com/zombar/analyzer/models"
	"github.com/zombar/analyzer/sentiment"
)

// ExtractedTextLimit bounds the text persisted with a record. The full
// normalized text is used in memory for scoring but never stored beyond this
// many characters.
const ExtractedTextLimit = 1000

// Request is one analysis request with exactly one payload variant populated,
// matching SourceType.
type Request struct {
	SourceType models.SourceType
	Mode       models.AnalysisMode

	Text     string // SourceText
	URL      string // SourceURL
	Blob     []byte // SourceImage
	Filename string // SourceImage
}

// NormalizedContent is the plain text derived from any source kind.
type NormalizedContent struct {
	Text      string
	CharCount int
	Truncated bool
}

// Fetcher retrieves remote documents with SSRF guarding.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Document, error)
}

// Recognizer is the OCR collaborator.
type Recognizer interface {
	Recognize(ctx context.Context, blob []byte, filename string) (text string, confidence float64, err error)
}

// SentimentAnalyzer scores text on the tier selected by mode and names the
// model that produced the result.
type SentimentAnalyzer interface {
	Analyze(ctx context.Context, text string, mode models.AnalysisMode) (models.SentimentResult, string)
}

// KeywordExtractor ranks a document's terms.
type KeywordExtractor interface {
	Extract(text string) keywords.Set
}

// Store is the persistence collaborator. Inserts are append-only; records
// are immutable after the handoff.
type Store interface {
	Insert(ctx context.Context, record *models.AnalysisRecord) error
}

// Analyzer coordinates one analysis per call. It is stateless and safe for
// concurrent use; all collaborators are injected at construction.
type Analyzer struct {
	fetcher    Fetcher
	recognizer Recognizer
	sentiment  SentimentAnalyzer
	keywords   KeywordExtractor
	store      Store
}

// New wires the pipeline. fetcher and recognizer may be nil when the
// corresponding source kinds are not served.
func New(fetcher Fetcher, recognizer Recognizer, sentiment SentimentAnalyzer, extractor KeywordExtractor, store Store) *Analyzer {
	return &Analyzer{
		fetcher:    fetcher,
		recognizer: recognizer,
		sentiment:  sentiment,
		keywords:   extractor,
		store:      store,
	}
}

// Analyze runs the full pipeline for one request. Either a complete record is
// persisted and returned, or nothing is written. The one exception is a
// storage failure after the analysis completed: the computed record is
// returned alongside a *PersistenceError so the caller still gets the result.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*models.AnalysisRecord, error) {
	start := time.Now()

	if err := validateRequest(req); err != nil {
		metrics.ObserveAnalysis(string(req.SourceType), string(req.Mode), "rejected", time.Since(start))
		return nil, err
	}

	content, err := a.normalize(ctx, req)
	if err != nil {
		metrics.ObserveAnalysis(string(req.SourceType), string(req.Mode), "rejected", time.Since(start))
		return nil, err
	}

	mode := req.Mode
	if mode == "" {
		mode = models.ModeFast
	}

	sentimentResult, modelVersion := a.sentiment.Analyze(ctx, content.Text, mode)
	if mode == models.ModeSmart && modelVersion == sentiment.FastModelVersion {
		metrics.ObserveFallback()
	}
	keywordSet := a.keywords.Extract(content.Text)

	record := &models.AnalysisRecord{
		ID:            uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
		SourceType:    req.SourceType,
		RawInputHash:  contentHash(content.Text),
		URL:           req.URL,
		Filename:      req.Filename,
		ExtractedText: truncate(content.Text, ExtractedTextLimit),
		Mode:          mode,
		ModelVersion:  modelVersion,
		Result: models.AnalysisResult{
			SchemaVersion: models.ResultSchemaVersion,
			WordCount:     keywords.CountWords(content.Text),
			Sentiment:     sentimentResult,
			Keywords:      keywordSet.Keywords,
			TopWords:      keywordSet.TopWords,
		},
	}

	if err := a.store.Insert(ctx, record); err != nil {
		slog.Error("failed to persist analysis record",
			slog.String("id", record.ID),
			slog.String("error", err.Error()))
		metrics.ObserveAnalysis(string(req.SourceType), string(mode), "storage_error", time.Since(start))
		return record, &PersistenceError{Err: err}
	}

	metrics.ObserveAnalysis(string(req.SourceType), string(mode), "ok", time.Since(start))

	slog.Info("analysis complete",
		slog.String("id", record.ID),
		slog.String("source_type", string(record.SourceType)),
		slog.String("model_version", record.ModelVersion),
		slog.Duration("elapsed", time.Since(start)))

	return record, nil
}

func validateRequest(req Request) error {
	if !req.SourceType.Valid() {
		return &ValidationError{Code: "invalid_source_type", Msg: fmt.Sprintf("unknown source type %q", req.SourceType)}
	}
	if !req.Mode.Valid() {
		return &ValidationError{Code: "invalid_mode", Msg: fmt.Sprintf("unknown mode %q", req.Mode)}
	}

	switch req.SourceType {
	case models.SourceText:
		if req.URL != "" || len(req.Blob) > 0 {
			return &ValidationError{Code: "conflicting_payload", Msg: "text request carries a non-text payload"}
		}
	case models.SourceURL:
		if req.URL == "" {
			return &ValidationError{Code: "missing_url", Msg: "url is required"}
		}
		if req.Text != "" || len(req.Blob) > 0 {
			return &ValidationError{Code: "conflicting_payload", Msg: "url request carries a non-url payload"}
		}
	case models.SourceImage:
		if len(req.Blob) == 0 {
			return &ValidationError{Code: "missing_file", Msg: "file is required"}
		}
		if req.Text != "" || req.URL != "" {
			return &ValidationError{Code: "conflicting_payload", Msg: "image request carries a non-image payload"}
		}
	}
	return nil
}

// normalize converts the request payload into plain text, failing explicitly
// rather than proceeding with empty text.
func (a *Analyzer) normalize(ctx context.Context, req Request) (*NormalizedContent, error) {
	switch req.SourceType {
	case models.SourceText:
		if strings.TrimSpace(req.Text) == "" {
			return nil, &ValidationError{Code: "empty_input", Msg: "text is empty or whitespace only"}
		}
		return newNormalizedContent(markdownToPlainText(req.Text)), nil

	case models.SourceURL:
		doc, err := a.fetcher.Fetch(ctx, req.URL)
		if err != nil {
			return nil, err
		}
		// PDF bodies carry no parseable markup; the recognition sidecar
		// owns rendering them to text.
		if doc.ContentType == "application/pdf" {
			return a.recognize(ctx, doc.Body, documentName(doc.FinalURL, req.URL))
		}
		text, err := extract.Article(doc.Body, doc.ContentType)
		if err != nil {
			return nil, &NormalizationError{Code: "no_extractable_text", Msg: "document yielded no article text", Err: err}
		}
		return newNormalizedContent(text), nil

	case models.SourceImage:
		return a.recognize(ctx, req.Blob, req.Filename)
	}

	return nil, &ValidationError{Code: "invalid_source_type", Msg: string(req.SourceType)}
}

// recognize runs the OCR collaborator over a binary payload and applies the
// empty-output policy shared by image uploads and fetched PDFs.
func (a *Analyzer) recognize(ctx context.Context, blob []byte, filename string) (*NormalizedContent, error) {
	if a.recognizer == nil {
		return nil, &NormalizationError{Code: "no_extractable_text", Msg: "no recognizer configured for binary content"}
	}
	text, confidence, err := a.recognizer.Recognize(ctx, blob, filename)
	if err != nil {
		return nil, &NormalizationError{Code: "no_extractable_text", Msg: "ocr failed", Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &NormalizationError{Code: "no_extractable_text", Msg: fmt.Sprintf("ocr produced no text (confidence %.2f)", confidence)}
	}
	return newNormalizedContent(strings.TrimSpace(text)), nil
}

// documentName derives a filename for a fetched binary document from its URL
// path.
func documentName(finalURL, requestURL string) string {
	raw := finalURL
	if raw == "" {
		raw = requestURL
	}
	if u, err := url.Parse(raw); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" && base != "" {
			return base
		}
	}
	return "document.pdf"
}

func newNormalizedContent(text string) *NormalizedContent {
	runes := []rune(text)
	return &NormalizedContent{
		Text:      text,
		CharCount: len(runes),
		Truncated: len(runes) > ExtractedTextLimit,
	}
}

// contentHash is the content fingerprint: sha256 of the full normalized
// text, hex encoded. Informational only; duplicate hashes still produce new
// records.
func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
