// Package classify derives categorical labels (function, industry,
// seniority) from a record's title and description. The core treats
// classification as best effort: a failed classification leaves the
// enrichment fields blank and is never fatal.
package classify

import (
	"context"
	"strings"

	"github.com/jonathan/feedsync/internal/types"
)

// Classifier is the collaborator contract. Implementations return an error
// when no labels could be derived; callers fall back to a zero
// Classification.
type Classifier interface {
	Classify(ctx context.Context, title, description string) (types.Classification, error)
	Close() error
}

// KeywordClassifier is the static fallback used when no model API key is
// configured. It matches title keywords against fixed tables.
type KeywordClassifier struct{}

// NewKeywordClassifier creates the static fallback classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

var functionKeywords = []struct {
	keyword  string
	function string
}{
	{"engineer", "Engineering"},
	{"developer", "Engineering"},
	{"architect", "Engineering"},
	{"analyst", "Analytics"},
	{"data", "Analytics"},
	{"designer", "Design"},
	{"product", "Product"},
	{"project manager", "Program Management"},
	{"program manager", "Program Management"},
	{"recruiter", "Human Resources"},
	{"accountant", "Finance"},
	{"sales", "Sales"},
	{"marketing", "Marketing"},
	{"support", "Customer Support"},
}

var seniorityKeywords = []struct {
	keyword   string
	seniority string
}{
	{"intern", "Entry"},
	{"junior", "Entry"},
	{"entry", "Entry"},
	{"principal", "Principal"},
	{"staff", "Staff"},
	{"senior", "Senior"},
	{"sr.", "Senior"},
	{"lead", "Lead"},
	{"director", "Director"},
	{"vp", "Executive"},
	{"chief", "Executive"},
	{"head of", "Director"},
	{"manager", "Manager"},
}

// Classify matches the title against the keyword tables. Industry cannot be
// derived from keywords alone and is left blank.
func (c *KeywordClassifier) Classify(_ context.Context, title, _ string) (types.Classification, error) {
	lower := strings.ToLower(title)

	var labels types.Classification
	for _, entry := range functionKeywords {
		if strings.Contains(lower, entry.keyword) {
			labels.Function = entry.function
			break
		}
	}
	for _, entry := range seniorityKeywords {
		if strings.Contains(lower, entry.keyword) {
			labels.Seniority = entry.seniority
			break
		}
	}
	if labels.Seniority == "" {
		labels.Seniority = "Mid"
	}

	return labels, nil
}

// Close implements Classifier; the keyword classifier holds no resources.
func (c *KeywordClassifier) Close() error {
	return nil
}
