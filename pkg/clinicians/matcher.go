package clinicians

import (
	"fmt"

	migerrors "github.com/vicentefritzen/petsys-migracao/pkg/errors"
)

// DefaultMinScore is the lowest similarity accepted as an approximate match.
const DefaultMinScore = 70.0

// MatchKind indicates how a name was matched to a clinician.
type MatchKind string

const (
	MatchKindExact       MatchKind = "exact"
	MatchKindApproximate MatchKind = "approximate"
)

// Mode selects the Matcher built by NewMatcher.
type Mode string

const (
	ModeExact       Mode = "exact"
	ModeApproximate Mode = "approximate"
)

// Match is a successful resolution of a free-text name.
type Match struct {
	Clinician
	Kind MatchKind
	// Score is 100 for exact matches.
	Score float64
}

// Matcher resolves an author name to a clinician.
// ok is false when nothing qualifies; callers apply their own fallback.
type Matcher interface {
	Match(name string) (Match, bool)
}

// ExactMatcher accepts only case-insensitive equal names.
type ExactMatcher struct {
	roster *Roster
}

// NewExactMatcher creates an ExactMatcher over roster.
func NewExactMatcher(roster *Roster) *ExactMatcher {
	return &ExactMatcher{roster: roster}
}

// Match implements Matcher.
func (m *ExactMatcher) Match(name string) (Match, bool) {
	c, ok := m.roster.Lookup(name)
	if !ok {
		return Match{}, false
	}
	return Match{Clinician: c, Kind: MatchKindExact, Score: 100}, true
}

// ApproximateMatcher tries an exact match first, then the most similar
// roster entry scoring at least MinScore. Ties go to the earlier roster entry.
type ApproximateMatcher struct {
	roster   *Roster
	minScore float64
	score    func(a, b string) float64
}

// NewApproximateMatcher creates an ApproximateMatcher. A minScore of zero uses
// DefaultMinScore.
func NewApproximateMatcher(roster *Roster, minScore float64) *ApproximateMatcher {
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	return &ApproximateMatcher{roster: roster, minScore: minScore, score: Similarity}
}

// MinScore returns the acceptance threshold.
func (m *ApproximateMatcher) MinScore() float64 {
	return m.minScore
}

// Match implements Matcher.
func (m *ApproximateMatcher) Match(name string) (Match, bool) {
	best, ok := m.Best(name)
	if !ok || best.Score < m.minScore {
		return Match{}, false
	}
	return best, true
}

// Best returns the highest scoring candidate regardless of the threshold.
// ok is false only for an empty roster or blank name.
func (m *ApproximateMatcher) Best(name string) (Match, bool) {
	if c, ok := m.roster.Lookup(name); ok {
		return Match{Clinician: c, Kind: MatchKindExact, Score: 100}, true
	}

	var (
		best  Match
		found bool
	)
	for _, c := range m.roster.entries {
		s := m.score(name, c.Name)
		if !found || s > best.Score {
			best = Match{Clinician: c, Kind: MatchKindApproximate, Score: s}
			found = true
		}
	}
	if !found || best.Score == 0 {
		return Match{}, false
	}
	return best, true
}

// NewMatcher builds the Matcher for mode.
func NewMatcher(mode Mode, roster *Roster, minScore float64) (Matcher, error) {
	switch mode {
	case ModeExact:
		return NewExactMatcher(roster), nil
	case ModeApproximate, "":
		if minScore < 0 || minScore > 100 {
			return nil, fmt.Errorf("min score %v out of range 0..100: %w", minScore, migerrors.ErrValidation)
		}
		return NewApproximateMatcher(roster, minScore), nil
	default:
		return nil, fmt.Errorf("unknown matcher mode %q: %w", mode, migerrors.ErrValidation)
	}
}
