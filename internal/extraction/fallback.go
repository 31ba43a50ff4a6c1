package extraction

import (
	"regexp"
	"sort"
	"strings"
)

// Fallback extraction bounds.
const (
	maxFallbackKeywords = 10
	minKeywordLength    = 4
	summaryBudget       = 100
)

// stopWords are excluded from frequency-based keyword extraction.
var stopWords = map[string]struct{}{
	"the": {}, "is": {}, "at": {}, "which": {}, "on": {}, "a": {}, "an": {},
	"and": {}, "or": {}, "but": {}, "in": {}, "with": {}, "to": {}, "for": {},
	"of": {}, "as": {}, "by": {}, "that": {}, "this": {}, "it": {}, "from": {},
	"be": {}, "are": {}, "was": {}, "were": {}, "been": {},
}

var wordPattern = regexp.MustCompile(`\b[a-z]+\b`)

// SimpleKeywords extracts keywords by word frequency without an LLM.
// It is a pure, total function: lowercased tokens longer than three
// characters, stop words removed, the ten most frequent first.
func SimpleKeywords(text string) []string {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)

	freq := make(map[string]int)
	order := make(map[string]int)
	for _, word := range words {
		if len(word) < minKeywordLength {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		if _, seen := freq[word]; !seen {
			order[word] = len(order)
		}
		freq[word]++
	}

	keywords := make([]string, 0, len(freq))
	for word := range freq {
		keywords = append(keywords, word)
	}
	// Ties keep first-occurrence order so output is deterministic.
	sort.SliceStable(keywords, func(i, j int) bool {
		if freq[keywords[i]] != freq[keywords[j]] {
			return freq[keywords[i]] > freq[keywords[j]]
		}
		return order[keywords[i]] < order[keywords[j]]
	})

	if len(keywords) > maxFallbackKeywords {
		keywords = keywords[:maxFallbackKeywords]
	}
	return keywords
}

// truncateSummary builds a summary from the subject or content, bounded to
// roughly summaryBudget characters with a trailing ellipsis when truncated.
func truncateSummary(content, subject string) string {
	base := subject
	if base == "" {
		base = content
	}
	if len(base) > summaryBudget {
		return base[:summaryBudget] + "..."
	}
	return base
}

// fallbackEmailRecord is the deterministic extraction used when the model
// output is unusable. It always succeeds for non-empty input.
func fallbackEmailRecord(content, subject string) *FactRecord {
	return &FactRecord{
		Keywords:   SimpleKeywords(content),
		Importance: ImportanceMedium,
		Summary:    truncateSummary(content, subject),
		Fallback:   true,
	}
}

// fallbackStatusRecord is the deterministic extraction for status updates.
func fallbackStatusRecord(content string) *FactRecord {
	return &FactRecord{
		UpdateType: UpdateTypeGeneral,
		Keywords:   SimpleKeywords(content),
		Fallback:   true,
	}
}
