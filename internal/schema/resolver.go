package schema

import (
	"fmt"
	"strings"
)

// Synonym sets for the four logical columns, most specific first. The first
// candidate found among the headers wins, so "review title" is tried before
// the more generic "title".
var (
	TitleCandidates   = []string{"review title", "title"}
	TextCandidates    = []string{"review", "review text", "text"}
	RatingCandidates  = []string{"star", "rating"}
	ProductCandidates = []string{"product", "product name"}
)

// Positional fallbacks used when no header name matches a synonym set.
const (
	TitlePosition   = 0
	TextPosition    = 1
	RatingPosition  = 2
	ProductPosition = 3
)

// Resolve finds the first candidate present among the headers, matching
// case-insensitively, and returns the header's original spelling. The bool
// reports whether any candidate matched.
func Resolve(headers []string, candidates []string) (string, bool) {
	lookup := make(map[string]string, len(headers))
	for _, h := range headers {
		lookup[strings.ToLower(h)] = h
	}
	for _, c := range candidates {
		if original, ok := lookup[strings.ToLower(c)]; ok {
			return original, true
		}
	}
	return "", false
}

// ResolveIndex resolves a logical column to a header index. Name matching is
// tried first; when no candidate matches, the positional fallback is used.
// ok is false only when no name matched and fewer headers exist than the
// fallback position requires; callers must treat that as a discovery
// failure, not a silent skip.
func ResolveIndex(headers []string, candidates []string, fallback int) (int, bool) {
	if name, ok := Resolve(headers, candidates); ok {
		for i, h := range headers {
			if h == name {
				return i, true
			}
		}
	}
	if fallback >= 0 && fallback < len(headers) {
		return fallback, true
	}
	return -1, false
}

// Columns holds the resolved header indices for one tabular source. Title
// and Rating are optional; a value of -1 means the column is absent.
type Columns struct {
	Title   int
	Text    int
	Rating  int
	Product int
}

// Error reports a failed resolution of a required column.
type Error struct {
	Column  string
	Headers []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("could not resolve %q column in headers %v", e.Column, e.Headers)
}

// ResolveColumns discovers all four logical columns in the given headers.
// The review-text and product columns are required; failure to resolve
// either returns an *Error naming the offending column. Title and rating
// resolve to -1 when absent, which callers treat as "column not present".
func ResolveColumns(headers []string) (Columns, error) {
	cols := Columns{Title: -1, Rating: -1}

	text, ok := ResolveIndex(headers, TextCandidates, TextPosition)
	if !ok {
		return cols, &Error{Column: "review text", Headers: headers}
	}
	cols.Text = text

	product, ok := ResolveIndex(headers, ProductCandidates, ProductPosition)
	if !ok {
		return cols, &Error{Column: "product", Headers: headers}
	}
	cols.Product = product

	if title, ok := ResolveIndex(headers, TitleCandidates, TitlePosition); ok {
		cols.Title = title
	}
	if rating, ok := ResolveIndex(headers, RatingCandidates, RatingPosition); ok {
		cols.Rating = rating
	}
	return cols, nil
}
