// Package keywords ranks the terms of a single document.
//
// Term weighting is TF-IDF over the document's sentences. With a
// single-document corpus IDF degenerates toward plain frequency ranking; the
// output is a word-frequency ranking, not corpus-relative TF-IDF, and callers
// should treat it as such.
package keywords

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/zombar/analyzer/models"
)

const (
	// DefaultTopKeywords is K: the number of ranked keywords returned.
	DefaultTopKeywords = 10
	// DefaultTopWords is N: the number of word-frequency pairs returned.
	DefaultTopWords = 10

	minWordLength = 4
)

// Set is the adapter's normalized output shape.
type Set struct {
	// Keywords are ordered by descending weight, ties broken by first
	// occurrence in the text.
	Keywords []string
	// TopWords are the most frequent raw words with their counts.
	TopWords []models.WordCount
}

// Extractor ranks keywords with fixed K and N.
type Extractor struct {
	topKeywords int
	topWords    int
}

// NewExtractor creates an Extractor; non-positive values take the defaults.
func NewExtractor(topKeywords, topWords int) *Extractor {
	if topKeywords <= 0 {
		topKeywords = DefaultTopKeywords
	}
	if topWords <= 0 {
		topWords = DefaultTopWords
	}
	return &Extractor{topKeywords: topKeywords, topWords: topWords}
}

var (
	wordPattern     = regexp.MustCompile(`[a-záéíóúñü]+`)
	sentencePattern = regexp.MustCompile(`[.!?]+`)
)

// Tokenize lowercases text and returns the content words: stopwords and words
// shorter than four characters are dropped.
func Tokenize(text string) []string {
	raw := wordPattern.FindAllString(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(raw))
	for _, w := range raw {
		if len([]rune(w)) >= minWordLength && !stopwords[w] {
			tokens = append(tokens, w)
		}
	}
	return tokens
}

// CountWords returns the number of content words in text.
func CountWords(text string) int {
	return len(Tokenize(text))
}

// Extract ranks the document's terms and tallies raw word frequencies.
func (e *Extractor) Extract(text string) Set {
	tokens := Tokenize(text)
	return Set{
		Keywords: e.rankKeywords(text, tokens),
		TopWords: e.topWordCounts(tokens),
	}
}

// rankKeywords weights terms by sentence-level TF-IDF and returns the top K.
// Documents with fewer than two sentences fall back to frequency order
// directly, which is what the TF-IDF weighting collapses to anyway.
func (e *Extractor) rankKeywords(text string, tokens []string) []string {
	sentences := splitSentences(text)
	if len(sentences) < 2 {
		return topByCount(tokens, e.topKeywords)
	}

	// Term universe in first-occurrence order, for deterministic ties.
	index := make(map[string]int)
	var terms []string
	for _, t := range tokens {
		if _, seen := index[t]; !seen {
			index[t] = len(terms)
			terms = append(terms, t)
		}
	}
	if len(terms) == 0 {
		return nil
	}

	// Document frequency per term across sentences.
	df := make([]float64, len(terms))
	sentenceTokens := make([][]string, len(sentences))
	for i, s := range sentences {
		sentenceTokens[i] = Tokenize(s)
		seen := make(map[string]bool)
		for _, t := range sentenceTokens[i] {
			if j, ok := index[t]; ok && !seen[t] {
				df[j]++
				seen[t] = true
			}
		}
	}

	// Smoothed IDF, l2-normalized rows, column means.
	n := float64(len(sentences))
	scores := make([]float64, len(terms))
	row := make([]float64, len(terms))
	for _, st := range sentenceTokens {
		for i := range row {
			row[i] = 0
		}
		for _, t := range st {
			if j, ok := index[t]; ok {
				row[j]++
			}
		}
		for j := range row {
			if row[j] > 0 {
				idf := math.Log((1+n)/(1+df[j])) + 1
				row[j] *= idf
			}
		}
		if norm := floats.Norm(row, 2); norm > 0 {
			floats.Scale(1/norm, row)
		}
		floats.Add(scores, row)
	}
	floats.Scale(1/n, scores)

	ranked := make([]int, len(terms))
	for i := range ranked {
		ranked[i] = i
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return scores[ranked[a]] > scores[ranked[b]]
	})

	limit := e.topKeywords
	if limit > len(ranked) {
		limit = len(ranked)
	}
	keywords := make([]string, 0, limit)
	for _, j := range ranked[:limit] {
		if scores[j] > 0 {
			keywords = append(keywords, terms[j])
		}
	}
	return keywords
}

// topWordCounts returns the N most frequent tokens with their counts.
func (e *Extractor) topWordCounts(tokens []string) []models.WordCount {
	top := topByCount(tokens, e.topWords)
	counts := countTokens(tokens)

	result := make([]models.WordCount, 0, len(top))
	for _, w := range top {
		result = append(result, models.WordCount{Word: w, Count: counts[w]})
	}
	return result
}

// topByCount orders unique tokens by descending frequency, ties broken by
// first occurrence, and returns at most limit of them.
func topByCount(tokens []string, limit int) []string {
	counts := countTokens(tokens)

	var unique []string
	seen := make(map[string]bool)
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			unique = append(unique, t)
		}
	}

	sort.SliceStable(unique, func(a, b int) bool {
		return counts[unique[a]] > counts[unique[b]]
	})

	if limit < len(unique) {
		unique = unique[:limit]
	}
	return unique
}

func countTokens(tokens []string) map[string]int {
	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	return counts
}

func splitSentences(text string) []string {
	parts := sentencePattern.Split(text, -1)
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}
