// Package markup inspects generated website source with goquery.
package markup

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	fenceExpr   = regexp.MustCompile("(?m)^\\s*```[a-zA-Z0-9_-]*\\s*$")
	docStart    = regexp.MustCompile(`(?i)<!doctype html|<html`)
	docEnd      = regexp.MustCompile(`(?i)</html\s*>`)
	htmlOpening = regexp.MustCompile(`(?i)<html`)
)

// Report summarises a generated page.
type Report struct {
	HasDocument bool
	Title       string
	Headings    []string
	Sections    int
	Images      int
	Links       int
}

// Clean strips code fences and any prose around the HTML document.
func Clean(raw string) string {
	text := strings.TrimSpace(fenceExpr.ReplaceAllString(raw, ""))
	if loc := docStart.FindStringIndex(text); loc != nil {
		text = text[loc[0]:]
	}
	if locs := docEnd.FindAllStringIndex(text, -1); len(locs) > 0 {
		text = text[:locs[len(locs)-1][1]]
	}
	return strings.TrimSpace(text)
}

// HasDocument reports whether the markup contains an <html> element.
func HasDocument(markup string) bool {
	return htmlOpening.MatchString(markup)
}

// Inspect parses markup and extracts a structural report.
func Inspect(markup string) (Report, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return Report{}, fmt.Errorf("parse markup: %w", err)
	}

	report := Report{
		HasDocument: HasDocument(markup),
		Title:       strings.TrimSpace(doc.Find("head > title").First().Text()),
		Sections:    doc.Find("section").Length(),
		Images:      doc.Find("img").Length(),
		Links:       doc.Find("a[href]").Length(),
	}
	doc.Find("h1, h2").Each(func(_ int, s *goquery.Selection) {
		if text := strings.Join(strings.Fields(s.Text()), " "); text != "" {
			report.Headings = append(report.Headings, text)
		}
	})
	return report, nil
}

// ContainsSnippet reports whether snippet occurs literally in markup.
func ContainsSnippet(markup, snippet string) bool {
	return snippet != "" && strings.Contains(markup, snippet)
}
