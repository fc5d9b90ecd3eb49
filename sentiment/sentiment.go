// Package sentiment selects between the lexicon-based fast tier and the
// optional model-based smart tier.
//
// Smart mode is best-effort: when the model collaborator is absent or fails
// to load, analysis silently falls back to the fast tier. The fallback is
// observable only through the reported model version, never as an error.
package sentiment

import (
	"context"
	"log/slog"

	"github.com/zombar/analyzer/models"
)

// Label thresholds on the compound score, shared by both tiers.
const (
	positiveThreshold = 0.05
	negativeThreshold = -0.05
)

const (
	LabelPositive = "positive"
	LabelNegative = "negative"
	LabelNeutral  = "neutral"
)

// ModelClassifier is the optional model-based collaborator.
type ModelClassifier interface {
	// Ready reports whether the model is loaded and usable. Implementations
	// cache the probe; a failed probe is not fatal.
	Ready() bool
	Classify(ctx context.Context, text string) (label string, confidence float64, err error)
	Version() string
}

// Selector routes analysis to a tier. Stateless across calls apart from the
// classifier's cached capability probe; safe for concurrent use.
type Selector struct {
	smart ModelClassifier // nil when the smart tier is not configured
}

// NewSelector creates a Selector. smart may be nil.
func NewSelector(smart ModelClassifier) *Selector {
	return &Selector{smart: smart}
}

// SmartAvailable reports whether the smart tier would be used for smart-mode
// requests. Exposed for health reporting.
func (s *Selector) SmartAvailable() bool {
	return s.smart != nil && s.smart.Ready()
}

// Analyze scores text with the tier selected by mode and returns the result
// plus the model version that produced it. Exactly one tier produces the
// result.
func (s *Selector) Analyze(ctx context.Context, text string, mode models.AnalysisMode) (models.SentimentResult, string) {
	if mode == models.ModeSmart {
		if result, version, ok := s.analyzeSmart(ctx, text); ok {
			return result, version
		}
		slog.Debug("smart tier unavailable, falling back to fast tier")
	}
	return analyzeFast(text), FastModelVersion
}

func (s *Selector) analyzeSmart(ctx context.Context, text string) (models.SentimentResult, string, bool) {
	if s.smart == nil || !s.smart.Ready() {
		return models.SentimentResult{}, "", false
	}

	label, confidence, err := s.smart.Classify(ctx, text)
	if err != nil {
		slog.Warn("smart tier classification failed, falling back",
			slog.String("error", err.Error()))
		return models.SentimentResult{}, "", false
	}

	return fromClassification(label, confidence), s.smart.Version(), true
}

// fromClassification maps a label/confidence pair onto the full score shape.
// The model does not natively produce VADER-style component scores, so they
// are approximated from the label and its confidence. The final label comes
// from the compound thresholds, not the raw model label, so both tiers obey
// the same threshold rule: a barely-confident "positive" lands neutral.
func fromClassification(label string, confidence float64) models.SentimentResult {
	result := models.SentimentResult{
		Confidence: &confidence,
	}

	switch normalizeLabel(label) {
	case LabelPositive:
		result.PolarityScore = confidence
		result.Positive = confidence
		result.Neutral = 1 - confidence
	case LabelNegative:
		result.PolarityScore = -confidence
		result.Negative = confidence
		result.Neutral = 1 - confidence
	default:
		result.Neutral = confidence
		result.Positive = (1 - confidence) / 2
		result.Negative = (1 - confidence) / 2
	}

	result.Compound = result.PolarityScore
	result.PolarityLabel = labelForCompound(result.Compound)
	return result
}

// labelForCompound applies the fixed threshold rule.
func labelForCompound(compound float64) string {
	switch {
	case compound >= positiveThreshold:
		return LabelPositive
	case compound <= negativeThreshold:
		return LabelNegative
	default:
		return LabelNeutral
	}
}
