// Package match scores visible interactive page elements against a spoken
// phrase and selects the best candidates to highlight.
//
// Matching is a pure snapshot-and-score function: every attempt queries a
// fresh page snapshot and nothing is cached between attempts, because
// element references go stale as the document mutates.
package match

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/voicepilot-ai/voicepilot/pkg/core/page"
)

// ErrNoMatch reports that no acceptable candidate was found. It is a
// normal control-flow outcome, not a failure.
var ErrNoMatch = errors.New("no matching element")

// Scoring tiers, highest first. Anything below the weak-similarity tier is
// excluded outright.
const (
	scoreExact     = 1.0
	scoreWholeWord = 0.9
	scorePrefix    = 0.8
	scoreSubstring = 0.7
	scoreStrongSim = 0.5 // levenshtein similarity >= 0.8
	scoreWeakSim   = 0.3 // levenshtein similarity >= 0.6
)

// Trigger identifies what produced a match attempt; partial transcripts
// fire far more often than committed ones and get a longer cooldown.
type Trigger int

const (
	TriggerCommand Trigger = iota // explicit command or finalized utterance
	TriggerPartial                // live, still-growing transcript fragment
)

// Candidate pairs an element with its score for one phrase.
type Candidate struct {
	Element page.Element
	Text    string
	Score   float64
}

// Config tunes selection and rate limiting.
type Config struct {
	// MaxHighlights caps how many near-equal candidates are selected.
	MaxHighlights int

	// ScoreMargin is how close a runner-up must be to the top score to be
	// included in the highlight set.
	ScoreMargin float64

	// CommandCooldown and PartialCooldown rate-limit successive attempts
	// per trigger source to avoid highlight flicker.
	CommandCooldown time.Duration
	PartialCooldown time.Duration
}

// DefaultConfig returns the tuning used by the widget.
func DefaultConfig() Config {
	return Config{
		MaxHighlights:   3,
		ScoreMargin:     0.05,
		CommandCooldown: 300 * time.Millisecond,
		PartialCooldown: 1500 * time.Millisecond,
	}
}

// Matcher selects highlight candidates for spoken phrases.
type Matcher struct {
	config Config

	// now is swappable for tests.
	now func() time.Time

	lastAttempt map[Trigger]time.Time
}

// New creates a matcher with the given tuning; zero fields fall back to
// DefaultConfig values.
func New(config Config) *Matcher {
	def := DefaultConfig()
	if config.MaxHighlights <= 0 {
		config.MaxHighlights = def.MaxHighlights
	}
	if config.ScoreMargin <= 0 {
		config.ScoreMargin = def.ScoreMargin
	}
	if config.CommandCooldown <= 0 {
		config.CommandCooldown = def.CommandCooldown
	}
	if config.PartialCooldown <= 0 {
		config.PartialCooldown = def.PartialCooldown
	}
	return &Matcher{
		config:      config,
		now:         time.Now,
		lastAttempt: make(map[Trigger]time.Time),
	}
}

// Allow reports whether a new attempt from the given trigger is outside
// the cooldown window, and records the attempt time if so.
func (m *Matcher) Allow(trigger Trigger) bool {
	cooldown := m.config.CommandCooldown
	if trigger == TriggerPartial {
		cooldown = m.config.PartialCooldown
	}
	now := m.now()
	if last, ok := m.lastAttempt[trigger]; ok && now.Sub(last) < cooldown {
		return false
	}
	m.lastAttempt[trigger] = now
	return true
}

// Match scores the snapshot's candidates against the input and returns the
// selected highlight set, best first. Returns ErrNoMatch when no candidate
// scores above zero for any extracted phrase.
func (m *Matcher) Match(snapshot page.Snapshot, input string) ([]Candidate, error) {
	candidates := snapshot.Candidates()
	if len(candidates) == 0 {
		return nil, ErrNoMatch
	}

	var best []Candidate
	for _, phrase := range ExtractPhrases(input) {
		scored := scorePhrase(candidates, phrase)
		if len(scored) == 0 {
			continue
		}
		if len(best) == 0 || scored[0].Score > best[0].Score {
			best = scored
		}
		if best[0].Score >= scoreExact {
			break
		}
	}
	if len(best) == 0 {
		return nil, ErrNoMatch
	}

	selected := []Candidate{best[0]}
	for _, c := range best[1:] {
		if len(selected) >= m.config.MaxHighlights {
			break
		}
		if best[0].Score-c.Score <= m.config.ScoreMargin {
			selected = append(selected, c)
		}
	}
	return selected, nil
}

// scorePhrase ranks all candidates for one phrase, score descending with a
// stable document-order tie-break, dropping zero scores.
func scorePhrase(candidates []page.Element, phrase string) []Candidate {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if phrase == "" {
		return nil
	}

	out := make([]Candidate, 0, len(candidates))
	for _, el := range candidates {
		text := el.DisplayText()
		score := scoreText(strings.ToLower(text), phrase)
		if score > 0 {
			out = append(out, Candidate{Element: el, Text: text, Score: score})
		}
	}
	// Candidates arrive in document order; a stable sort keeps that order
	// inside each tier.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// scoreText assigns the tier for one lowercase (text, phrase) pair.
func scoreText(text, phrase string) float64 {
	if text == "" {
		return 0
	}
	switch {
	case text == phrase:
		return scoreExact
	case containsWholeWord(text, phrase):
		return scoreWholeWord
	case strings.HasPrefix(text, phrase):
		return scorePrefix
	case strings.Contains(text, phrase):
		return scoreSubstring
	}
	switch sim := similarity(text, phrase); {
	case sim >= 0.8:
		return scoreStrongSim
	case sim >= 0.6:
		return scoreWeakSim
	}
	return 0
}

// containsWholeWord reports whether phrase appears in text on word
// boundaries.
func containsWholeWord(text, phrase string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], phrase)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(phrase)
		before := start == 0 || !isWordChar(text[start-1])
		after := end == len(text) || !isWordChar(text[end])
		if before && after {
			return true
		}
		idx = start + 1
		if idx >= len(text) {
			return false
		}
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}
