package sentiment

import (
	"strings"

	"github.com/jonreiter/govader"

	"github.com/zombar/analyzer/models"
)

// FastModelVersion names the always-available lexicon tier.
const FastModelVersion = "vader-lexicon"

// The govader analyzer is read-only after construction and safe to share.
var vaderAnalyzer = govader.NewSentimentIntensityAnalyzer()

// analyzeFast scores text with the VADER lexicon. Deterministic: the same
// text always yields the same scores.
func analyzeFast(text string) models.SentimentResult {
	scores := vaderAnalyzer.PolarityScores(text)

	return models.SentimentResult{
		PolarityLabel: labelForCompound(scores.Compound),
		PolarityScore: scores.Compound,
		Compound:      scores.Compound,
		Positive:      scores.Positive,
		Negative:      scores.Negative,
		Neutral:       scores.Neutral,
	}
}

func normalizeLabel(label string) string {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "positive", "pos", "label_1":
		return LabelPositive
	case "negative", "neg", "label_0":
		return LabelNegative
	default:
		return LabelNeutral
	}
}
