package clinicians

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity_Bounds(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "DRA. JULIANA FARBER METZLER", "DRA. JULIANA FARBER METZLER", 100},
		{"case and punctuation", "dra juliana farber metzler", "DRA. JULIANA FARBER METZLER", 100},
		{"accents", "Dr. José", "DR JOSE", 100},
		{"empty left", "", "DR JOSE", 0},
		{"blank right", "DR JOSE", "  ", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Similarity(tt.a, tt.b), 0.001)
		})
	}
}

func TestSimilarity_ShortFormOfLongName(t *testing.T) {
	score := Similarity("DRA JULIANA", "DRA. JULIANA FARBER METZLER")
	assert.GreaterOrEqual(t, score, DefaultMinScore)
	assert.Less(t, score, 100.0)
}

func TestSimilarity_UnrelatedNamesStayLow(t *testing.T) {
	tests := []struct {
		a, b string
	}{
		{"DR. CARLOS", "DRA. JULIANA FARBER METZLER"},
		{"CITOVET", "DRA. JULIANA FARBER METZLER"},
		{"MARCOS", "PATRICIA"},
	}

	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.Less(t, Similarity(tt.a, tt.b), DefaultMinScore)
		})
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"DRA JULIANA", "DRA. JULIANA FARBER METZLER"},
		{"DR CARLOS SILVA", "CARLOS DA SILVA"},
		{"ANA", "ANA PAULA"},
	}
	for _, p := range pairs {
		assert.InDelta(t, Similarity(p[0], p[1]), Similarity(p[1], p[0]), 0.001, "%q vs %q", p[0], p[1])
	}
}

func TestPartialRatio(t *testing.T) {
	assert.InDelta(t, 100.0, partialRatio("JULIANA", "DRA JULIANA FARBER"), 0.001)
	assert.InDelta(t, 100.0, partialRatio("DRA JULIANA FARBER", "JULIANA"), 0.001)
	assert.InDelta(t, 0.0, partialRatio("", "X"), 0.001)
}

func TestTokenSetRatio(t *testing.T) {
	assert.InDelta(t, 100.0, tokenSetRatio("DRA JULIANA", "DRA JULIANA FARBER METZLER"), 0.001)
	assert.InDelta(t, 100.0, tokenSetRatio("METZLER JULIANA", "JULIANA METZLER"), 0.001)
	assert.Less(t, tokenSetRatio("DR CARLOS", "DRA JULIANA"), 70.0)
}

func TestSimilarity_TitleOnlyNamesScoreZero(t *testing.T) {
	tests := []struct {
		a, b string
	}{
		{"DRA", "DRA ANA PAULA"},
		{"DR", "DR. CARLOS EDUARDO SOUZA"},
		{"DR.", "DRA MIRELLA"},
		{"M.V.", "MV PATRICIA LIMA"},
		{"DOUTORA", "DRA. JULIANA FARBER METZLER"},
	}

	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.Zero(t, Similarity(tt.a, tt.b))
			assert.Zero(t, Similarity(tt.b, tt.a))
		})
	}

	assert.InDelta(t, 100.0, Similarity("DRA", "dra."), 0.001)
}

func TestSimilarity_NearNamesNeedASharedToken(t *testing.T) {
	assert.Zero(t, Similarity("CARLA", "DR. CARLOS EDUARDO"))
	assert.Zero(t, Similarity("DRA ANA", "DRA MIRELLA"))

	assert.GreaterOrEqual(t, Similarity("MIRELA", "DRA MIRELLA"), DefaultMinScore)
	assert.GreaterOrEqual(t, Similarity("DRA JULIANA", "JULIANA FARBER"), DefaultMinScore)
}

func TestSimilarity_TitlesDoNotInflateScore(t *testing.T) {
	assert.InDelta(t, 100.0, Similarity("DR JOSE", "JOSE"), 0.001)
	assert.Less(t, Similarity("DRA PAULA", "DRA ANA PAULA"), 100.0)
}

func TestNameTokens(t *testing.T) {
	assert.Equal(t, []string{"JULIANA", "METZLER"}, nameTokens("Dra. Juliana Metzler"))
	assert.Equal(t, []string{"PATRICIA"}, nameTokens("M.V. Patricia"))
	assert.Empty(t, nameTokens("DR."))
}
