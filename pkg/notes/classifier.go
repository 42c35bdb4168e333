package notes

import (
	"strings"

	"github.com/vicentefritzen/petsys-migracao/pkg/textnorm"
)

// Default author tokens.
var (
	DefaultPrescriptionTokens = []string{"RECEITA"}
	DefaultLabTokens          = []string{"CITOVET", "LABVET", "LABORATORIO"}
)

// Classifier assigns a Category from an entry's author.
// Matching is a case and accent insensitive substring test; prescription
// tokens are checked before lab tokens.
type Classifier struct {
	prescription []string
	lab          []string
}

// NewClassifier builds a Classifier. Nil token lists use the defaults;
// blank tokens are ignored.
func NewClassifier(prescriptionTokens, labTokens []string) *Classifier {
	if prescriptionTokens == nil {
		prescriptionTokens = DefaultPrescriptionTokens
	}
	if labTokens == nil {
		labTokens = DefaultLabTokens
	}
	return &Classifier{
		prescription: foldAll(prescriptionTokens),
		lab:          foldAll(labTokens),
	}
}

// DefaultClassifier uses the default token lists.
func DefaultClassifier() *Classifier {
	return NewClassifier(nil, nil)
}

func foldAll(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if f := textnorm.Fold(t); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Classify returns the Category for author.
func (c *Classifier) Classify(author string) Category {
	a := textnorm.Fold(author)
	if containsAny(a, c.prescription) {
		return CategoryPrescription
	}
	if containsAny(a, c.lab) {
		return CategoryLabResult
	}
	return CategoryClinicalNote
}

// ClassifyAll sets Category on every entry in place and returns entries.
func (c *Classifier) ClassifyAll(entries []Entry) []Entry {
	for i := range entries {
		entries[i].Category = c.Classify(entries[i].Author)
	}
	return entries
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// Parse tokenizes blob and classifies the resulting entries.
func (c *Classifier) Parse(blob string, opts ...TokenizeOption) []Entry {
	return c.ClassifyAll(Tokenize(blob, opts...))
}
