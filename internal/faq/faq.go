package faq

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entry is one curated question/answer pair a tenant maintains.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	BusinessID uuid.UUID `json:"business_id"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// minOverlap is the minimum shared-keyword count for a match; below it we
// treat the question as unanswered rather than guess.
const minOverlap = 2

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "do": true,
	"does": true, "can": true, "i": true, "you": true, "your": true,
	"what": true, "when": true, "where": true, "how": true, "to": true,
	"of": true, "for": true, "in": true, "on": true, "it": true, "my": true,
}

// keywords lowercases and strips stopwords and punctuation.
func keywords(text string) map[string]bool {
	out := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()")
		if len(word) < 2 || stopwords[word] {
			continue
		}
		out[word] = true
	}
	return out
}

// BestMatch selects the entry whose question shares the most keywords
// with the user's text. Returns nil when nothing clears the overlap
// threshold. Ties break toward the earlier entry, which keeps matching
// deterministic for identical inputs.
func BestMatch(entries []*Entry, text string) *Entry {
	asked := keywords(text)
	if len(asked) == 0 {
		return nil
	}

	var best *Entry
	bestScore := 0
	for _, e := range entries {
		score := 0
		for word := range keywords(e.Question) {
			if asked[word] {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = e, score
		}
	}

	if bestScore < minOverlap {
		return nil
	}
	return best
}
