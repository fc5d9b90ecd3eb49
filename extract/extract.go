// Package extract pulls readable article text out of fetched documents.
package extract

import (
	"bytes"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoText is returned when a document yields no usable text.
var ErrNoText = errors.New("extract: no extractable text")

// chrome elements that never carry article content.
var strippedSelectors = "script, style, noscript, nav, header, footer, aside, form"

// Article extracts the main text from a fetched document. HTML documents are
// reduced to their article content with boilerplate removed; plain text passes
// through trimmed. The page title, when present, is prepended on its own line.
func Article(body []byte, contentType string) (string, error) {
	if contentType == "text/plain" {
		text := strings.TrimSpace(string(body))
		if text == "" {
			return "", ErrNoText
		}
		return text, nil
	}

	// No PDF parser here; PDF bytes belong to the recognition path. Parsing
	// them as HTML would surface raw object syntax as article text.
	if contentType == "application/pdf" {
		return "", ErrNoText
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	doc.Find(strippedSelectors).Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	text := articleText(doc)
	if text == "" {
		return "", ErrNoText
	}

	if title != "" {
		return title + "\n\n" + text, nil
	}
	return text, nil
}

// articleText walks the same fallback chain at each step: a dedicated article
// or main element, then the page's paragraphs, then the whole body text.
func articleText(doc *goquery.Document) string {
	scope := doc.Selection
	if article := doc.Find("article").First(); article.Length() > 0 {
		scope = article
	} else if main := doc.Find("main").First(); main.Length() > 0 {
		scope = main
	}

	var paragraphs []string
	scope.Find("p").Each(func(_ int, p *goquery.Selection) {
		if t := collapseSpace(p.Text()); t != "" {
			paragraphs = append(paragraphs, t)
		}
	})
	if len(paragraphs) > 0 {
		return strings.Join(paragraphs, "\n")
	}

	return collapseSpace(scope.Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
