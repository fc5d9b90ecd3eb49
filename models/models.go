package models

import "time"

// SourceType identifies where the analyzed content came from.
type SourceType string

const (
	SourceText  SourceType = "text"
	SourceURL   SourceType = "url"
	SourceImage SourceType = "image"
)

// Valid reports whether s is one of the known source types.
func (s SourceType) Valid() bool {
	switch s {
	case SourceText, SourceURL, SourceImage:
		return true
	}
	return false
}

// AnalysisMode selects the sentiment tier. Smart mode is best-effort: when the
// model tier is unavailable the analysis silently runs on the fast tier.
type AnalysisMode string

const (
	ModeFast  AnalysisMode = "fast"
	ModeSmart AnalysisMode = "smart"
)

// Valid reports whether m is a known mode. The empty mode is accepted and
// treated as fast.
func (m AnalysisMode) Valid() bool {
	switch m {
	case ModeFast, ModeSmart, "":
		return true
	}
	return false
}

// SentimentResult holds the scores produced by exactly one sentiment tier.
// Confidence is only present for model-based (smart tier) results.
type SentimentResult struct {
	PolarityLabel string   `json:"polarity_label"`
	PolarityScore float64  `json:"polarity_score"`
	Compound      float64  `json:"compound"`
	Positive      float64  `json:"positive"`
	Negative      float64  `json:"negative"`
	Neutral       float64  `json:"neutral"`
	Confidence    *float64 `json:"confidence,omitempty"`
}

// WordCount is a single word/frequency pair.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// AnalysisResult is the serialized result payload stored in the record's
// result column. SchemaVersion discriminates shape changes for future readers.
type AnalysisResult struct {
	SchemaVersion int             `json:"schema_version"`
	WordCount     int             `json:"word_count"`
	Sentiment     SentimentResult `json:"sentiment"`
	Keywords      []string        `json:"keywords"`
	TopWords      []WordCount     `json:"top_words"`
}

// ResultSchemaVersion is the current AnalysisResult shape.
const ResultSchemaVersion = 1

// AnalysisRecord is the persisted outcome of one analysis request. Records are
// created exactly once and never mutated; ExtractedText is bounded to the
// first 1000 characters of the normalized text.
type AnalysisRecord struct {
	ID            string         `json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	SourceType    SourceType     `json:"source_type"`
	RawInputHash  string         `json:"raw_input_hash"`
	URL           string         `json:"url,omitempty"`
	Filename      string         `json:"filename,omitempty"`
	ExtractedText string         `json:"extracted_text"`
	Mode          AnalysisMode   `json:"mode"`
	ModelVersion  string         `json:"model_version"`
	Result        AnalysisResult `json:"result"`
}
