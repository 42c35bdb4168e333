package notes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vicentefritzen/petsys-migracao/pkg/clinicians"
	migerrors "github.com/vicentefritzen/petsys-migracao/pkg/errors"
	"github.com/vicentefritzen/petsys-migracao/pkg/logging"
)

const (
	julianaID  = "5b0e8a59-0000-4000-8000-000000000001"
	carlosID   = "5b0e8a59-0000-4000-8000-000000000002"
	fallbackID = "5b0e8a59-0000-4000-8000-0000000000ff"
)

func newTestResolver(t *testing.T, cfg ResolverConfig) *Resolver {
	t.Helper()
	roster := clinicians.NewRoster([]clinicians.Clinician{
		{ID: julianaID, Name: "DRA. JULIANA FARBER METZLER"},
		{ID: carlosID, Name: "DR. CARLOS EDUARDO SOUZA"},
		{ID: fallbackID, Name: "DR. PLANTONISTA"},
	})
	if cfg.FallbackClinicianID == "" {
		cfg.FallbackClinicianID = fallbackID
	}
	r, err := NewResolver(clinicians.NewApproximateMatcher(roster, 70), cfg, logging.NewNopLogger())
	require.NoError(t, err)
	return r
}

func parse(blob string) []Entry {
	return DefaultClassifier().Parse(blob)
}

func TestResolver_PrescriptionBeforeAnyNoteUsesFallback(t *testing.T) {
	blob := "[10/03/2025 10:54:05 - DRA. JULIANA FARBER METZLER]: Consulta de rotina.\n" +
		"[10/03/2025 10:47:25 - RECEITA]: Meloxicam 0,5mg"

	out, err := newTestResolver(t, ResolverConfig{}).Resolve(parse(blob))
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, CategoryPrescription, out[0].Category)
	assert.Equal(t, fallbackID, out[0].ClinicianID)
	assert.Equal(t, ResolutionOrphan, out[0].Resolution)
	assert.Equal(t, CategoryClinicalNote, out[1].Category)
	assert.Equal(t, julianaID, out[1].ClinicianID)
}

func TestResolver_PrescriptionInheritsPrecedingNote(t *testing.T) {
	blob := "[01/04/2025 09:00:00 - DR. CARLOS EDUARDO SOUZA]: Otite.\n" +
		"[01/04/2025 09:10:00 - RECEITA]: Otomax\n" +
		"[01/04/2025 15:00:00 - DRA. JULIANA FARBER METZLER]: Retorno."

	out, err := newTestResolver(t, ResolverConfig{}).Resolve(parse(blob))
	require.NoError(t, err)

	require.Len(t, out, 3)
	assert.Equal(t, carlosID, out[0].ClinicianID)
	assert.Equal(t, carlosID, out[1].ClinicianID)
	assert.Equal(t, ResolutionInherited, out[1].Resolution)
	assert.Equal(t, julianaID, out[2].ClinicianID)
}

func TestResolver_ShortAuthorNameMatches(t *testing.T) {
	out, err := newTestResolver(t, ResolverConfig{}).Resolve(parse("[01/04/2025 09:00:00 - DRA JULIANA]: Consulta."))
	require.NoError(t, err)

	require.Len(t, out, 1)
	assert.Equal(t, julianaID, out[0].ClinicianID)
	assert.Equal(t, ResolutionMatched, out[0].Resolution)
}

func TestResolver_LabResultsUseFallbackByDefault(t *testing.T) {
	blob := "[01/04/2025 09:00:00 - CITOVET]: Hemograma.\n" +
		"[01/04/2025 10:00:00 - CitoVet]: Bioquímico.\n" +
		"[01/04/2025 11:00:00 - citovet]: Urinálise."

	out, err := newTestResolver(t, ResolverConfig{}).Resolve(parse(blob))
	require.NoError(t, err)

	require.Len(t, out, 3)
	for _, e := range out {
		assert.Equal(t, CategoryLabResult, e.Category)
		assert.Equal(t, fallbackID, e.ClinicianID)
		assert.Equal(t, ResolutionLabDefault, e.Resolution)
		assert.True(t, e.Resolution.UsedFallback())
	}
}

func TestResolver_LabAttributionByName(t *testing.T) {
	r := newTestResolver(t, ResolverConfig{LabAttribution: LabAttributionName})

	out, err := r.Resolve(parse("[01/04/2025 09:00:00 - LABORATORIO DRA JULIANA]: Citologia."))
	require.NoError(t, err)

	require.Len(t, out, 1)
	assert.Equal(t, CategoryLabResult, out[0].Category)
	assert.NotEqual(t, ResolutionLabDefault, out[0].Resolution)
}

func TestResolver_UnknownAuthorUsesFallback(t *testing.T) {
	out, err := newTestResolver(t, ResolverConfig{}).Resolve(parse("[01/04/2025 09:00:00 - ESTAGIARIO]: Banho."))
	require.NoError(t, err)

	require.Len(t, out, 1)
	assert.Equal(t, fallbackID, out[0].ClinicianID)
	assert.Equal(t, ResolutionUnmatched, out[0].Resolution)
}

func TestResolver_TitleOnlyAuthorsUseFallback(t *testing.T) {
	roster := clinicians.NewRoster([]clinicians.Clinician{
		{ID: fallbackID, Name: "VET PADRAO"},
		{ID: "ana", Name: "DRA ANA PAULA"},
		{ID: "mirella", Name: "DRA MIRELLA"},
	})
	r, err := NewResolver(clinicians.NewApproximateMatcher(roster, 70),
		ResolverConfig{FallbackClinicianID: fallbackID}, logging.NewNopLogger())
	require.NoError(t, err)

	blob := "[01/04/2025 10:00:00 - DRA]: consulta\n" +
		"[01/04/2025 10:05:00 - RECEITA]: rx\n" +
		"[01/04/2025 11:00:00 - DR]: retorno\n" +
		"[01/04/2025 12:00:00 - CARLA]: banho"

	out, err := r.Resolve(parse(blob))
	require.NoError(t, err)

	require.Len(t, out, 4)
	assert.Equal(t, fallbackID, out[0].ClinicianID)
	assert.Equal(t, ResolutionUnmatched, out[0].Resolution)
	assert.Equal(t, fallbackID, out[1].ClinicianID)
	assert.Equal(t, ResolutionInherited, out[1].Resolution)
	assert.Equal(t, fallbackID, out[2].ClinicianID)
	assert.Equal(t, ResolutionUnmatched, out[2].Resolution)
	assert.Equal(t, fallbackID, out[3].ClinicianID)
	assert.Equal(t, ResolutionUnmatched, out[3].Resolution)
}

func TestResolver_EveryEntryGetsAClinician(t *testing.T) {
	blob := "[01/04/2025 08:00:00 - RECEITA]: a\n" +
		"[01/04/2025 09:00:00 - ???]: b\n" +
		"[01/04/2025 10:00:00 - LABVET]: c\n" +
		"[01/04/2025 11:00:00 - RECEITA]: d\n" +
		"[01/04/2025 12:00:00 - DR. CARLOS EDUARDO SOUZA]: e"

	out, err := newTestResolver(t, ResolverConfig{}).Resolve(parse(blob))
	require.NoError(t, err)

	require.Len(t, out, 5)
	for _, e := range out {
		assert.NotEmpty(t, e.ClinicianID, "entry %q", e.Body)
	}
	// the second prescription inherits the lab entry's fallback owner
	assert.Equal(t, ResolutionInherited, out[3].Resolution)
	assert.Equal(t, fallbackID, out[3].ClinicianID)
}

func TestResolver_Deterministic(t *testing.T) {
	blob := "[01/04/2025 09:00:00 - DRA JULIANA]: x\n" +
		"[01/04/2025 09:05:00 - RECEITA]: y\n" +
		"[01/04/2025 09:10:00 - DR CARLOS]: z"

	r := newTestResolver(t, ResolverConfig{})
	first, err := r.Resolve(parse(blob))
	require.NoError(t, err)
	second, err := r.Resolve(parse(blob))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestResolver_WindowedStrategy(t *testing.T) {
	attributor, err := NewAttributor(StrategyWindowed, 0)
	require.NoError(t, err)
	r := newTestResolver(t, ResolverConfig{Attributor: attributor})

	blob := "[01/04/2025 09:00:00 - DR. CARLOS EDUARDO SOUZA]: consulta\n" +
		"[05/04/2025 09:00:00 - RECEITA]: tardia"

	out, err := r.Resolve(parse(blob))
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, fallbackID, out[1].ClinicianID)
	assert.Equal(t, ResolutionOrphan, out[1].Resolution)
}

func TestResolver_RejectsOutOfOrder(t *testing.T) {
	entries := []Entry{
		{Timestamp: ts("02/04/2025 09:00:00"), Author: "A", Body: "x", Category: CategoryClinicalNote},
		{Timestamp: ts("01/04/2025 09:00:00"), Author: "B", Body: "y", Category: CategoryClinicalNote},
	}

	out, err := newTestResolver(t, ResolverConfig{}).Resolve(entries)
	assert.Nil(t, out)
	assert.True(t, migerrors.IsOutOfOrder(err))
}

func TestResolver_EmptyInput(t *testing.T) {
	out, err := newTestResolver(t, ResolverConfig{}).Resolve(parse(""))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestNewResolver_Validation(t *testing.T) {
	m := clinicians.NewExactMatcher(clinicians.NewRoster(nil))

	_, err := NewResolver(m, ResolverConfig{}, nil)
	assert.True(t, migerrors.IsConfiguration(err))

	_, err = NewResolver(nil, ResolverConfig{FallbackClinicianID: "x"}, nil)
	assert.True(t, migerrors.IsConfiguration(err))

	_, err = NewResolver(m, ResolverConfig{FallbackClinicianID: "x", LabAttribution: "owner"}, nil)
	assert.True(t, migerrors.IsValidation(err))

	r, err := NewResolver(m, ResolverConfig{FallbackClinicianID: "x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "x", r.FallbackClinicianID())
}
