package analyzer

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/russross/blackfriday/v2"
)

var (
	markdownLinkPattern = regexp.MustCompile(`\[(.*?)\]\((https?://[^\s\)]+)\)`)
	bareURLPattern      = regexp.MustCompile(`https?://\S+|www\.\S+`)
)

// stripLinks keeps the anchor text of markdown links and drops bare URLs,
// which only add noise to sentiment scoring and keyword ranking.
func stripLinks(input string) string {
	input = markdownLinkPattern.ReplaceAllString(input, "$1")
	return bareURLPattern.ReplaceAllString(input, "")
}

// markdownToPlainText renders markdown input and flattens it to plain text.
// Input that is not markdown passes through essentially unchanged.
func markdownToPlainText(input string) string {
	rendered := blackfriday.Run([]byte(input), blackfriday.WithNoExtensions())

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rendered))
	if err != nil {
		return collapseWhitespace(stripLinks(input))
	}
	return collapseWhitespace(stripLinks(doc.Text()))
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
