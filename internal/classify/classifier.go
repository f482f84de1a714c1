// Package classify tags inbound messages with a structured request type
// and computes the keyword-driven portion of the score delta.
package classify

import (
	"strings"
	"sync"

	"github.com/exportdesk-io/exportdesk-ce/internal/models"
)

// NonGeneralWeight is the score contribution of every recognised request
// class; general contributes nothing.
const NonGeneralWeight = 5

// keywordClass binds a request type to its trigger keywords. Matching is
// first-match-wins in declaration order.
type keywordClass struct {
	Type     models.RequestType
	Keywords []string
}

var defaultClasses = []keywordClass{
	{models.RequestPrice, []string{"price", "cost", "quote", "quotation", "cif", "fob"}},
	{models.RequestSample, []string{"sample", "free sample"}},
	{models.RequestSpec, []string{"specification", "spec sheet", "datasheet", "technical"}},
	{models.RequestMOQ, []string{"moq", "minimum order", "lead time"}},
}

// Result pairs the detected request type with its score weight.
type Result struct {
	Type   models.RequestType
	Weight int
}

// Classifier is a prioritised keyword matcher over subject and body.
type Classifier struct {
	classes []keywordClass
}

// NewClassifier returns a classifier with the built-in keyword tables.
func NewClassifier() *Classifier {
	return &Classifier{classes: defaultClasses}
}

// Classify maps (subject, body) onto a request type. The first class whose
// keyword appears wins; messages matching nothing are general with zero
// weight.
func (c *Classifier) Classify(subject, body string) Result {
	haystack := strings.ToLower(subject + " " + body)
	for _, class := range c.classes {
		for _, keyword := range class.Keywords {
			if strings.Contains(haystack, keyword) {
				return Result{Type: class.Type, Weight: NonGeneralWeight}
			}
		}
	}
	return Result{Type: models.RequestGeneral, Weight: 0}
}

// Sentiment bonus bounds.
const (
	SentimentMin        = -5
	SentimentMax        = 10
	sentimentMinBodyLen = 50
)

// defaultSentimentPhrases is the shipped phrase table. The set is
// configuration: callers can swap it wholesale through Reload.
var defaultSentimentPhrases = map[string]int{
	"interested in your":  3,
	"ready to order":      5,
	"confirm the order":   5,
	"proceed with":        4,
	"looking forward":     2,
	"urgent requirement":  4,
	"long-term":           3,
	"regular shipments":   3,
	"please send":         2,
	"as soon as possible": 2,
	"not interested":      -5,
	"too expensive":       -3,
	"cancel":              -3,
}

// SentimentScorer awards a bounded bonus in [SentimentMin, SentimentMax]
// for buying-intent phrasing in bodies long enough to carry signal.
type SentimentScorer struct {
	mu      sync.RWMutex
	phrases map[string]int
}

// NewSentimentScorer returns a scorer with the shipped phrase table.
func NewSentimentScorer() *SentimentScorer {
	return &SentimentScorer{phrases: defaultSentimentPhrases}
}

// Reload swaps the phrase table.
func (s *SentimentScorer) Reload(phrases map[string]int) {
	if len(phrases) == 0 {
		return
	}
	s.mu.Lock()
	s.phrases = phrases
	s.mu.Unlock()
}

// Bonus computes the sentiment contribution for a message body.
func (s *SentimentScorer) Bonus(body string) int {
	if len(body) < sentimentMinBodyLen {
		return 0
	}
	haystack := strings.ToLower(body)

	s.mu.RLock()
	phrases := s.phrases
	s.mu.RUnlock()

	bonus := 0
	for phrase, weight := range phrases {
		if strings.Contains(haystack, phrase) {
			bonus += weight
		}
	}
	if bonus > SentimentMax {
		return SentimentMax
	}
	if bonus < SentimentMin {
		return SentimentMin
	}
	return bonus
}
