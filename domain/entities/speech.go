package entities

import (
	"strings"
)

// Hypothesis is one ranked recognition result. Rank 0 is the best one.
type Hypothesis struct {
	Text       string   `json:"text"`
	Confidence *float32 `json:"confidence,omitempty"`
}

// UtteranceID correlates a synthesis request with its start/done/error events
type UtteranceID string

const (
	// PromptQuery marks an utterance that asks something and expects a spoken answer
	PromptQuery UtteranceID = "PROMPT_QUERY"
	// PromptInfo marks an informational utterance with no follow-up
	PromptInfo UtteranceID = "PROMPT_INFO"
)

// QueueMode tells the synthesis engine what to do with utterances still waiting to be spoken
type QueueMode string

const (
	QueueFlush   QueueMode = "flush"
	QueueEnqueue QueueMode = "enqueue"
)

// Utterance is a single synthesis request
type Utterance struct {
	Text         string      `json:"text"`
	LanguageCode string      `json:"language_code"`
	CountryCode  string      `json:"country_code,omitempty"`
	ID           UtteranceID `json:"utterance_id"`
	QueueMode    QueueMode   `json:"queue_mode"`
}

// Locale returns the language/country pair of the utterance
func (u Utterance) Locale() Locale {
	return Locale{Language: u.LanguageCode, Country: u.CountryCode}
}

// Locale is a language code with an optional country code, e.g. en / US
type Locale struct {
	Language string `json:"language"`
	Country  string `json:"country,omitempty"`
}

// ParseLocale accepts "en", "en-US" and "en_US" forms
func ParseLocale(s string) Locale {
	s = strings.TrimSpace(s)
	if s == "" {
		return Locale{}
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == '_' })
	l := Locale{Language: strings.ToLower(parts[0])}
	if len(parts) > 1 {
		l.Country = strings.ToUpper(parts[1])
	}
	return l
}

// Normalize lower-cases the language and upper-cases the country
func (l Locale) Normalize() Locale {
	return Locale{
		Language: strings.ToLower(strings.TrimSpace(l.Language)),
		Country:  strings.ToUpper(strings.TrimSpace(l.Country)),
	}
}

// IsZero reports whether no language was given
func (l Locale) IsZero() bool {
	return strings.TrimSpace(l.Language) == ""
}

// LanguageOnly drops the country code
func (l Locale) LanguageOnly() Locale {
	return Locale{Language: l.Language}
}

// String renders the locale as a BCP 47 style tag
func (l Locale) String() string {
	n := l.Normalize()
	if n.Country == "" {
		return n.Language
	}
	return n.Language + "-" + n.Country
}
