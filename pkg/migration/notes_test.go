package migration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/vicentefritzen/petsys-migracao/config"
	"github.com/vicentefritzen/petsys-migracao/pkg/clinicians"
	migerrors "github.com/vicentefritzen/petsys-migracao/pkg/errors"
	"github.com/vicentefritzen/petsys-migracao/pkg/ledger"
	"github.com/vicentefritzen/petsys-migracao/pkg/legacy"
	"github.com/vicentefritzen/petsys-migracao/pkg/metrics"
	"github.com/vicentefritzen/petsys-migracao/pkg/notes"
	"github.com/vicentefritzen/petsys-migracao/pkg/observability"
)

const (
	scenarioA = "[10/03/2025 10:47:25 - RECEITA]: Amoxicilina 250mg, 1 comprimido a cada 12h\n" +
		"[10/03/2025 10:54:05 - DRA. JULIANA FARBER METZLER]: Paciente apresentou melhora"

	scenarioB = "[01/03/2025 09:00:00 - Dr. Carlos Eduardo Souza]: Consulta inicial\n" +
		"[01/03/2025 09:10:00 - RECEITA]: Dipirona gotas\n" +
		"[01/03/2025 11:00:00 - DRA. JULIANA FARBER METZLER]: Retorno"

	scenarioC = "[02/03/2025 08:00:00 - DRA JULIANA]: Vacina aplicada"

	scenarioD = "[03/03/2025 14:00:00 - citovet]: Hemograma sem alterações"
)

func testNotesOptions() NotesOptions {
	return NotesOptions{
		TenantID:              testTenant,
		FallbackClinicianName: "dra. patricia lima",
		Matcher:               clinicians.ModeApproximate,
		MinScore:              70,
		Attribution:           notes.StrategyLookback,
		LabAttribution:        notes.LabAttributionFallback,
		ChunkSize:             1000,
	}
}

type notesHarness struct {
	source   *fakeNoteSource
	dir      *fakeDirectory
	ledger   *ledger.Memory
	writer   *fakeNotesWriter
	observer *recordingObserver
}

func newNotesHarness(blobs ...legacy.NoteBlob) *notesHarness {
	l := petLedger(1, 2, 3, 4)
	return &notesHarness{
		source:   &fakeNoteSource{blobs: blobs},
		dir:      testDirectory(),
		ledger:   l,
		writer:   newFakeNotesWriter(l),
		observer: newRecordingObserver(),
	}
}

func (h *notesHarness) migrator(t *testing.T, opts NotesOptions) *NotesMigrator {
	t.Helper()
	m, err := NewNotesMigrator(opts, NotesDeps{
		Source:    h.source,
		Directory: h.dir,
		Ledger:    h.ledger,
		Writer:    h.writer,
		Observer:  h.observer,
	})
	require.NoError(t, err)
	return m
}

func TestNotesMigrator_Scenarios(t *testing.T) {
	h := newNotesHarness(
		legacy.NoteBlob{SourceID: 10, PetID: 1, Tag: scenarioA},
		legacy.NoteBlob{SourceID: 11, PetID: 2, Tag: scenarioB},
		legacy.NoteBlob{SourceID: 12, PetID: 3, Tag: scenarioC},
		legacy.NoteBlob{SourceID: 13, PetID: 4, Tag: scenarioD},
	)

	stats, err := h.migrator(t, testNotesOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Blobs)
	assert.Equal(t, 4, stats.Migrated)
	assert.Equal(t, 4, stats.Persisted)
	assert.Equal(t, 1, stats.Chunks)
	assert.Equal(t, 7, stats.Entries)
	assert.Equal(t, 4, stats.ClinicalNotes)
	assert.Equal(t, 2, stats.Prescriptions)
	assert.Equal(t, 1, stats.LabResults)
	assert.Equal(t, 1, stats.OrphanPrescriptions)
	assert.Equal(t, 0, stats.ClinicianNotFound)
	assert.Equal(t, 2, stats.FallbackUsed)
	assert.Empty(t, stats.Skipped)

	written := h.writer.all()
	require.Len(t, written.Prescriptions, 2)
	require.Len(t, written.MedicalRecords, 5)

	// Scenario A: the prescription precedes every note, so it is an orphan.
	rxA := written.Prescriptions[0]
	assert.Equal(t, "pet-1", rxA.PetID)
	assert.Equal(t, "u-2", rxA.ClinicianID)
	assert.Equal(t, time.Date(2025, 3, 10, 10, 47, 25, 0, time.UTC), rxA.OccurredAt)
	assert.False(t, rxA.Controlled)

	// Scenario B: the prescription inherits the earlier note's clinician.
	rxB := written.Prescriptions[1]
	assert.Equal(t, "pet-2", rxB.PetID)
	assert.Equal(t, "u-1", rxB.ClinicianID)
	assert.Equal(t, "Dipirona gotas", rxB.PrescriptionText)

	byPet := map[string][]string{}
	labels := map[string]string{}
	for _, r := range written.MedicalRecords {
		byPet[r.PetID] = append(byPet[r.PetID], r.ClinicianID)
		if r.LabSourceLabel != "" {
			labels[r.PetID] = r.LabSourceLabel
		}
		assert.NotEqual(t, uuid.Nil, r.RecordID)
		assert.Equal(t, testTenant, r.TenantID)
	}
	assert.Equal(t, []string{"u-3"}, byPet["pet-1"])
	assert.Equal(t, []string{"u-1", "u-3"}, byPet["pet-2"])
	// Scenario C: the short form resolves approximately.
	assert.Equal(t, []string{"u-3"}, byPet["pet-3"])
	// Scenario D: lab results go to the fallback and keep the lab name.
	assert.Equal(t, []string{"u-2"}, byPet["pet-4"])
	assert.Equal(t, map[string]string{"pet-4": "citovet"}, labels)

	// One ledger row per blob.
	done, err := h.ledger.Destinations(context.Background(), testTenant, ledger.NotesMapping)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"10": ledger.DestMultiple,
		"11": ledger.DestMultiple,
		"12": ledger.DestMultiple,
		"13": ledger.DestMultiple,
	}, done)

	assert.Equal(t, 4, h.observer.items[metrics.OutcomeMigrated])
	assert.Equal(t, 1, h.observer.entries["PRESCRIPTION/orphan"])
	assert.Equal(t, 1, h.observer.entries["PRESCRIPTION/inherited"])
	assert.Equal(t, 1, h.observer.entries["LAB_RESULT/lab_default"])
	assert.Equal(t, 1, h.observer.chunks)
	assert.Equal(t, 7, h.observer.rows)
}

func TestNotesMigrator_RerunIsIdempotent(t *testing.T) {
	h := newNotesHarness(
		legacy.NoteBlob{SourceID: 10, PetID: 1, Tag: scenarioA},
		legacy.NoteBlob{SourceID: 11, PetID: 2, Tag: scenarioB},
	)
	m := h.migrator(t, testNotesOptions())

	_, err := m.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, h.writer.batches, 1)

	stats, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.AlreadyMigrated)
	assert.Equal(t, 0, stats.Migrated)
	assert.Len(t, h.writer.batches, 1, "nothing new written")
	require.Len(t, stats.Skipped, 2)
	assert.Equal(t, ReasonAlreadyMigrated, stats.Skipped[0].Reason)
}

func TestNotesMigrator_SameBlobSameClinicians(t *testing.T) {
	run := func() []string {
		h := newNotesHarness(legacy.NoteBlob{SourceID: 11, PetID: 2, Tag: scenarioB})
		_, err := h.migrator(t, testNotesOptions()).Run(context.Background())
		require.NoError(t, err)
		var ids []string
		for _, r := range h.writer.all().MedicalRecords {
			ids = append(ids, r.ClinicianID)
		}
		for _, r := range h.writer.all().Prescriptions {
			ids = append(ids, r.ClinicianID)
		}
		return ids
	}
	assert.Equal(t, run(), run())
}

func TestNotesMigrator_SkipsMissingPetAndEmptyBlobs(t *testing.T) {
	h := newNotesHarness(
		legacy.NoteBlob{SourceID: 20, PetID: 99, Tag: scenarioC},
		legacy.NoteBlob{SourceID: 21, PetID: 1, Tag: "texto sem cabeçalho"},
		legacy.NoteBlob{SourceID: 22, PetID: 2, Tag: "[31/02/2025 10:00:00 - DR. X]: nunca existiu"},
		legacy.NoteBlob{SourceID: 23, PetID: 3, Tag: scenarioC},
	)

	stats, err := h.migrator(t, testNotesOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Blobs)
	assert.Equal(t, 1, stats.MissingPet)
	assert.Equal(t, 2, stats.Empty)
	assert.Equal(t, 1, stats.MalformedHeaders)
	assert.Equal(t, 1, stats.Migrated)

	require.Len(t, stats.Skipped, 3)
	assert.Equal(t, ReasonMissingPet, stats.Skipped[0].Reason)
	assert.Equal(t, int64(99), stats.Skipped[0].PetID)
	assert.Equal(t, ReasonEmpty, stats.Skipped[1].Reason)
	assert.Equal(t, ReasonEmpty, stats.Skipped[2].Reason)
	assert.Contains(t, stats.Skipped[2].Detail, "1 malformed")

	// Empty blobs get no ledger row and are retried next time.
	done, err := h.ledger.Destinations(context.Background(), testTenant, ledger.NotesMapping)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"23": ledger.DestMultiple}, done)
}

func TestNotesMigrator_ClinicianNotFound(t *testing.T) {
	h := newNotesHarness(legacy.NoteBlob{
		SourceID: 30, PetID: 1,
		Tag: "[01/03/2025 09:00:00 - QQQ WWW]: atendimento\n[01/03/2025 09:05:00 - RECEITA]: soro",
	})
	opts := testNotesOptions()
	opts.Matcher = clinicians.ModeExact

	stats, err := h.migrator(t, opts).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.ClinicianNotFound)
	assert.Equal(t, 0, stats.OrphanPrescriptions)
	assert.Equal(t, 1, stats.FallbackUsed)

	written := h.writer.all()
	require.Len(t, written.MedicalRecords, 1)
	assert.Equal(t, "u-2", written.MedicalRecords[0].ClinicianID)
	require.Len(t, written.Prescriptions, 1)
	// the unmatched note still carries a clinician the prescription can inherit
	assert.Equal(t, "u-2", written.Prescriptions[0].ClinicianID)
}

func TestNotesMigrator_WindowedAttribution(t *testing.T) {
	blob := "[01/03/2025 09:00:00 - Dr. Carlos Eduardo Souza]: consulta\n" +
		"[03/03/2025 09:00:00 - RECEITA]: dois dias depois"
	h := newNotesHarness(legacy.NoteBlob{SourceID: 40, PetID: 1, Tag: blob})
	opts := testNotesOptions()
	opts.Attribution = notes.StrategyWindowed
	opts.AttributionWindow = 24 * time.Hour

	stats, err := h.migrator(t, opts).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.OrphanPrescriptions)
	assert.Equal(t, "u-2", h.writer.all().Prescriptions[0].ClinicianID)
}

func TestNotesMigrator_LabAttributionByName(t *testing.T) {
	h := newNotesHarness(legacy.NoteBlob{SourceID: 50, PetID: 4, Tag: scenarioD})
	opts := testNotesOptions()
	opts.LabAttribution = notes.LabAttributionName
	opts.Matcher = clinicians.ModeExact

	stats, err := h.migrator(t, opts).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.LabResults)
	assert.Equal(t, 1, stats.ClinicianNotFound)
	assert.Equal(t, "citovet", h.writer.all().MedicalRecords[0].LabSourceLabel)
}

func TestNotesMigrator_Location(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	h := newNotesHarness(legacy.NoteBlob{SourceID: 60, PetID: 3, Tag: scenarioC})
	opts := testNotesOptions()
	opts.Location = loc

	_, err = h.migrator(t, opts).Run(context.Background())
	require.NoError(t, err)

	got := h.writer.all().MedicalRecords[0].OccurredAt
	assert.True(t, got.Equal(time.Date(2025, 3, 2, 8, 0, 0, 0, loc)))
}

func TestNotesMigrator_MissingFallbackIsFatal(t *testing.T) {
	h := newNotesHarness(legacy.NoteBlob{SourceID: 10, PetID: 1, Tag: scenarioA})
	h.source.err = errors.New("must not be read")
	opts := testNotesOptions()
	opts.FallbackClinicianName = "DRA PATRICIA" // approximate names are not enough

	stats, err := h.migrator(t, opts).Run(context.Background())
	require.Error(t, err)
	assert.True(t, migerrors.IsConfiguration(err))
	assert.Equal(t, migerrors.ErrInvalidConfiguration, migerrors.CodeOf(err))
	assert.Equal(t, testTenant, h.dir.tenant)
	assert.Empty(t, h.writer.batches)
	assert.Equal(t, 0, stats.Blobs)
}

func TestNotesMigrator_ReferenceAndSourceFailures(t *testing.T) {
	t.Run("directory", func(t *testing.T) {
		h := newNotesHarness()
		h.dir.err = errBoom
		_, err := h.migrator(t, testNotesOptions()).Run(context.Background())
		assert.Equal(t, migerrors.ErrReferenceDataFailed, migerrors.CodeOf(err))
		assert.ErrorIs(t, err, errBoom)
	})

	t.Run("source", func(t *testing.T) {
		h := newNotesHarness()
		h.source.err = errBoom
		_, err := h.migrator(t, testNotesOptions()).Run(context.Background())
		assert.Equal(t, migerrors.ErrSourceReadFailed, migerrors.CodeOf(err))
		assert.ErrorIs(t, err, errBoom)
	})
}

func TestNotesMigrator_RequiresPetsStage(t *testing.T) {
	h := newNotesHarness(legacy.NoteBlob{SourceID: 23, PetID: 3, Tag: scenarioC})
	h.ledger = ledger.NewMemory()
	h.writer = newFakeNotesWriter(h.ledger)

	stats, err := h.migrator(t, testNotesOptions()).Run(context.Background())
	assert.Equal(t, migerrors.ErrStageOutOfOrder, migerrors.CodeOf(err))
	assert.True(t, migerrors.IsMissingDependency(err))
	assert.Zero(t, stats.Migrated)
	assert.Empty(t, h.writer.batches)
}

func TestNotesMigrator_DryRunSample(t *testing.T) {
	var blobs []legacy.NoteBlob
	for i := int64(0); i < 8; i++ {
		blobs = append(blobs, legacy.NoteBlob{SourceID: 100 + i, PetID: 1 + i%4, Tag: scenarioB})
	}
	h := newNotesHarness(blobs...)
	opts := testNotesOptions()
	opts.DryRun = true
	opts.SampleSize = 5

	m, err := NewNotesMigrator(opts, NotesDeps{
		Source:    h.source,
		Directory: h.dir,
		Ledger:    h.ledger,
	})
	require.NoError(t, err)

	stats, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.DryRun)
	assert.Equal(t, 5, stats.Blobs)
	assert.Equal(t, 5, stats.Migrated)
	assert.Equal(t, 15, stats.Entries)
	assert.Equal(t, 0, stats.Persisted)
	assert.Equal(t, 0, stats.Chunks)

	done, err := h.ledger.Destinations(context.Background(), testTenant, ledger.NotesMapping)
	require.NoError(t, err)
	assert.Empty(t, done)
}

func TestNotesMigrator_Chunking(t *testing.T) {
	var blobs []legacy.NoteBlob
	for i := int64(0); i < 5; i++ {
		blobs = append(blobs, legacy.NoteBlob{SourceID: 200 + i, PetID: 2, Tag: scenarioB})
	}
	h := newNotesHarness(blobs...)
	opts := testNotesOptions()
	opts.ChunkSize = 2

	progress := NewProgress(StageNotes)
	m, err := NewNotesMigrator(opts, NotesDeps{
		Source:    h.source,
		Directory: h.dir,
		Ledger:    h.ledger,
		Writer:    h.writer,
		Progress:  progress,
	})
	require.NoError(t, err)

	stats, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Chunks)
	require.Len(t, h.writer.batches, 3)
	assert.Len(t, h.writer.batches[0].Ledger, 2)
	assert.Len(t, h.writer.batches[1].Ledger, 2)
	assert.Len(t, h.writer.batches[2].Ledger, 1)
	assert.Len(t, h.writer.batches[2].MedicalRecords, 2)
	assert.Len(t, h.writer.batches[2].Prescriptions, 1)

	snap := progress.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 5, snap.Processed)
	assert.Equal(t, 5, snap.Persisted)
}

func TestNotesMigrator_WriteFailureStopsRun(t *testing.T) {
	var blobs []legacy.NoteBlob
	for i := int64(0); i < 4; i++ {
		blobs = append(blobs, legacy.NoteBlob{SourceID: 300 + i, PetID: 1, Tag: scenarioC})
	}
	h := newNotesHarness(blobs...)
	h.writer.failAt = 1
	opts := testNotesOptions()
	opts.ChunkSize = 2

	stats, err := h.migrator(t, opts).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, migerrors.ErrPersistenceFailed, migerrors.CodeOf(err))
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, stats.Chunks)
	assert.Equal(t, 2, stats.Persisted)

	// the committed chunk stays in the ledger, the failed one does not
	done, err := h.ledger.Destinations(context.Background(), testTenant, ledger.NotesMapping)
	require.NoError(t, err)
	assert.Len(t, done, 2)
}

func TestNotesMigrator_Cancelled(t *testing.T) {
	h := newNotesHarness(legacy.NoteBlob{SourceID: 10, PetID: 1, Tag: scenarioA})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.migrator(t, testNotesOptions()).Run(ctx)
	require.Error(t, err)
	assert.Equal(t, migerrors.ErrContextCancelled, migerrors.CodeOf(err))
	assert.Empty(t, h.writer.batches)
}

func TestNotesMigrator_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	h := newNotesHarness(legacy.NoteBlob{SourceID: 10, PetID: 1, Tag: scenarioA})
	m, err := NewNotesMigrator(testNotesOptions(), NotesDeps{
		Source:    h.source,
		Directory: h.dir,
		Ledger:    h.ledger,
		Writer:    h.writer,
		Tracer:    observability.NewTracerWithProvider(tp),
	})
	require.NoError(t, err)

	_, err = m.Run(context.Background())
	require.NoError(t, err)

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{
		"petmig.notes.load_reference",
		"petmig.notes.load_source",
		"petmig.notes.resolve",
		"petmig.notes.persist_chunk",
		"petmig.notes.persist",
		"petmig.notes.run",
	}, names)
}

func TestNewNotesMigrator_Validation(t *testing.T) {
	h := newNotesHarness()
	deps := NotesDeps{Source: h.source, Directory: h.dir, Ledger: h.ledger}

	_, err := NewNotesMigrator(testNotesOptions(), deps)
	assert.True(t, migerrors.IsConfiguration(err), "writer required outside dry run")

	opts := testNotesOptions()
	opts.TenantID = ""
	_, err = NewNotesMigrator(opts, deps)
	assert.True(t, migerrors.IsValidation(err))

	opts = testNotesOptions()
	opts.ChunkSize = 0
	_, err = NewNotesMigrator(opts, deps)
	assert.True(t, migerrors.IsValidation(err))

	opts = testNotesOptions()
	opts.FallbackClinicianName = " "
	_, err = NewNotesMigrator(opts, deps)
	assert.True(t, migerrors.IsConfiguration(err))
}

func TestNotesOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TenantID = testTenant
	cfg.Notes.Attribution.Strategy = config.AttributionWindowed
	cfg.Notes.Timezone = "America/Sao_Paulo"

	opts := NotesOptionsFromConfig(cfg)
	assert.Equal(t, testTenant, opts.TenantID)
	assert.Equal(t, config.DefaultFallbackClinicianName, opts.FallbackClinicianName)
	assert.Equal(t, clinicians.ModeApproximate, opts.Matcher)
	assert.Equal(t, 70.0, opts.MinScore)
	assert.Equal(t, notes.StrategyWindowed, opts.Attribution)
	assert.Equal(t, 24*time.Hour, opts.AttributionWindow)
	assert.Equal(t, notes.LabAttributionFallback, opts.LabAttribution)
	assert.Equal(t, "America/Sao_Paulo", opts.Location.String())
	assert.Equal(t, config.DefaultChunkSize, opts.ChunkSize)
	assert.Equal(t, config.DefaultSampleSize, opts.SampleSize)
	assert.False(t, opts.DryRun)
	assert.NoError(t, opts.Validate())
}
