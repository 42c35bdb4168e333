package migration

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vicentefritzen/petsys-migracao/config"
	"github.com/vicentefritzen/petsys-migracao/pkg/clinicians"
	migerrors "github.com/vicentefritzen/petsys-migracao/pkg/errors"
	"github.com/vicentefritzen/petsys-migracao/pkg/ledger"
	"github.com/vicentefritzen/petsys-migracao/pkg/legacy"
	"github.com/vicentefritzen/petsys-migracao/pkg/logging"
	"github.com/vicentefritzen/petsys-migracao/pkg/metrics"
	"github.com/vicentefritzen/petsys-migracao/pkg/notes"
	"github.com/vicentefritzen/petsys-migracao/pkg/observability"
	"github.com/vicentefritzen/petsys-migracao/pkg/store"
)

// NotesOptions configures a NotesMigrator.
type NotesOptions struct {
	TenantID string

	// FallbackClinicianName must match an active clinician exactly
	// (ignoring case) or the run does not start.
	FallbackClinicianName string
	Matcher               clinicians.Mode
	MinScore              float64

	// Nil token lists use the classifier defaults.
	PrescriptionTokens []string
	LabTokens          []string

	Attribution       notes.Strategy
	AttributionWindow time.Duration
	LabAttribution    notes.LabAttribution

	// Location header timestamps are read in. Nil means UTC.
	Location *time.Location

	// ChunkSize is the number of blobs written per transaction.
	ChunkSize int

	DryRun bool
	// SampleSize limits a dry run to the first blobs. 0 processes all.
	SampleSize int
}

// NotesOptionsFromConfig maps the notes section of cfg.
func NotesOptionsFromConfig(cfg *config.Config) NotesOptions {
	n := cfg.Notes
	return NotesOptions{
		TenantID:              cfg.TenantID,
		FallbackClinicianName: n.FallbackClinicianName,
		Matcher:               clinicians.Mode(n.Matcher),
		MinScore:              n.MinScore,
		PrescriptionTokens:    n.PrescriptionTokens,
		LabTokens:             n.LabTokens,
		Attribution:           notes.Strategy(n.Attribution.Strategy),
		AttributionWindow:     n.Attribution.MaxAge,
		LabAttribution:        notes.LabAttribution(n.LabAttribution),
		Location:              n.Location(),
		ChunkSize:             n.ChunkSize,
		SampleSize:            n.SampleSize,
	}
}

// Validate checks the options that do not need the destination.
func (o NotesOptions) Validate() error {
	if o.TenantID == "" {
		return fmt.Errorf("tenant id is required: %w", migerrors.ErrValidation)
	}
	if strings.TrimSpace(o.FallbackClinicianName) == "" {
		return fmt.Errorf("fallback clinician name is required: %w", migerrors.ErrConfiguration)
	}
	if o.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d: %w", o.ChunkSize, migerrors.ErrValidation)
	}
	if o.SampleSize < 0 {
		return fmt.Errorf("sample size must not be negative: %w", migerrors.ErrValidation)
	}
	return nil
}

// NotesDeps are the collaborators of a NotesMigrator. Writer may be nil for
// dry runs; Observer, Tracer, Progress and Logger are optional.
type NotesDeps struct {
	Source    NoteSource
	Directory ClinicianDirectory
	Ledger    ledger.Reader
	Writer    NotesWriter
	Observer  Observer
	Tracer    *observability.Tracer
	Progress  *Progress
	Logger    logging.Logger
}

// NotesMigrator turns legacy note blobs into medical records and
// prescriptions.
type NotesMigrator struct {
	opts     NotesOptions
	source   NoteSource
	dir      ClinicianDirectory
	ledger   ledger.Reader
	writer   NotesWriter
	observer Observer
	tracer   *observability.Tracer
	progress *Progress
	logger   logging.Logger

	now   func() time.Time
	newID func() uuid.UUID
}

// NewNotesMigrator creates a NotesMigrator.
func NewNotesMigrator(opts NotesOptions, deps NotesDeps) (*NotesMigrator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if deps.Source == nil || deps.Directory == nil || deps.Ledger == nil {
		return nil, fmt.Errorf("notes migrator requires a source, a clinician directory and a ledger: %w", migerrors.ErrConfiguration)
	}
	if deps.Writer == nil && !opts.DryRun {
		return nil, fmt.Errorf("notes migrator requires a writer unless dry run: %w", migerrors.ErrConfiguration)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.Tracer == nil {
		deps.Tracer = observability.NewTracer()
	}
	if deps.Progress == nil {
		deps.Progress = NewProgress(StageNotes)
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}

	return &NotesMigrator{
		opts:     opts,
		source:   deps.Source,
		dir:      deps.Directory,
		ledger:   deps.Ledger,
		writer:   deps.Writer,
		observer: deps.Observer,
		tracer:   deps.Tracer,
		progress: deps.Progress,
		logger: deps.Logger.With(
			logging.F("stage", StageNotes),
			logging.F("tenant_id", opts.TenantID),
		),
		now:   time.Now,
		newID: uuid.New,
	}, nil
}

// notesRun holds what is built once per run.
type notesRun struct {
	classifier *notes.Classifier
	matcher    clinicians.Matcher
	resolver   notes.ResolverConfig
	pets       map[string]string
	migrated   map[string]string
}

// Run executes the stage. Stats are returned even when err is non-nil and
// reflect everything counted up to the failure.
func (m *NotesMigrator) Run(ctx context.Context) (stats *NotesStats, err error) {
	stats = &NotesStats{DryRun: m.opts.DryRun}

	ctx, span := m.tracer.StartRun(ctx, StageNotes, m.opts.TenantID, m.opts.DryRun)
	defer span.End()
	helper := observability.NewSpanHelper(span)
	log := m.logger.WithContext(ctx)

	defer func() {
		helper.SetCounts(stats.CounterMap())
		if err != nil {
			helper.SetError(err)
			if ctx.Err() != nil {
				m.progress.Cancel()
			} else {
				m.progress.Complete(false)
			}
			return
		}
		helper.SetSuccess()
		m.progress.Complete(true)
	}()

	run, err := m.prepare(ctx)
	if err != nil {
		return stats, err
	}

	blobs, err := m.loadBlobs(ctx)
	if err != nil {
		return stats, err
	}
	if err := requireUpstream(StageNotes, StagePets, run.pets, len(blobs)); err != nil {
		return stats, err
	}
	if m.opts.DryRun && m.opts.SampleSize > 0 && len(blobs) > m.opts.SampleSize {
		log.Info("Dry run limited to sample",
			logging.F("sample_size", m.opts.SampleSize),
			logging.F("total_blobs", len(blobs)))
		blobs = blobs[:m.opts.SampleSize]
	}
	stats.Blobs = len(blobs)
	m.progress.Start(len(blobs))

	pending, err := m.build(ctx, blobs, run, stats)
	if err != nil {
		return stats, err
	}

	if err := m.persist(ctx, pending, stats); err != nil {
		return stats, err
	}

	log.Info("Notes stage finished",
		logging.F("blobs", stats.Blobs),
		logging.F("migrated", stats.Migrated),
		logging.F("entries", stats.Entries),
		logging.F("already_migrated", stats.AlreadyMigrated),
		logging.F("missing_pet", stats.MissingPet),
		logging.F("fallback_used", stats.FallbackUsed),
		logging.F("dry_run", m.opts.DryRun))
	return stats, nil
}

// prepare loads reference data and validates the fallback clinician before
// any blob is read.
func (m *NotesMigrator) prepare(ctx context.Context) (*notesRun, error) {
	ctx, span := m.tracer.StartPhase(ctx, StageNotes, "load_reference")
	defer span.End()
	helper := observability.NewSpanHelper(span)

	run, err := m.loadReference(ctx)
	if err != nil {
		helper.SetError(err)
		return nil, err
	}
	helper.SetCounts(map[string]int{
		"pets":     len(run.pets),
		"migrated": len(run.migrated),
	})
	return run, nil
}

func (m *NotesMigrator) loadReference(ctx context.Context) (*notesRun, error) {
	list, err := m.dir.Clinicians(ctx, m.opts.TenantID)
	if err != nil {
		return nil, migerrors.New(migerrors.ErrReferenceDataFailed, StageNotes,
			fmt.Errorf("loading clinicians: %w", err))
	}
	roster := clinicians.NewRoster(list)

	fallback, ok := roster.Lookup(m.opts.FallbackClinicianName)
	if !ok {
		return nil, migerrors.New(migerrors.ErrInvalidConfiguration, StageNotes,
			fmt.Errorf("fallback clinician %q is not an active user of tenant %s (%d active): %w",
				m.opts.FallbackClinicianName, m.opts.TenantID, roster.Len(), migerrors.ErrConfiguration))
	}
	m.logger.Info("Loaded clinician roster",
		logging.F("clinicians", roster.Len()),
		logging.F("fallback_clinician", fallback.Name),
		logging.F("fallback_clinician_id", fallback.ID))

	matcher, err := clinicians.NewMatcher(m.opts.Matcher, roster, m.opts.MinScore)
	if err != nil {
		return nil, migerrors.New(migerrors.ErrInvalidConfiguration, StageNotes, err)
	}
	attributor, err := notes.NewAttributor(m.opts.Attribution, m.opts.AttributionWindow)
	if err != nil {
		return nil, migerrors.New(migerrors.ErrInvalidConfiguration, StageNotes, err)
	}
	resolverCfg := notes.ResolverConfig{
		FallbackClinicianID: fallback.ID,
		Attributor:          attributor,
		LabAttribution:      m.opts.LabAttribution,
	}
	if _, err := notes.NewResolver(matcher, resolverCfg, m.logger); err != nil {
		return nil, migerrors.New(migerrors.ErrInvalidConfiguration, StageNotes, err)
	}

	pets, err := m.ledger.Destinations(ctx, m.opts.TenantID, ledger.PetMapping)
	if err != nil {
		return nil, migerrors.New(migerrors.ErrReferenceDataFailed, StageNotes,
			fmt.Errorf("loading pet mapping: %w", err))
	}
	migrated, err := m.ledger.Destinations(ctx, m.opts.TenantID, ledger.NotesMapping)
	if err != nil {
		return nil, migerrors.New(migerrors.ErrReferenceDataFailed, StageNotes,
			fmt.Errorf("loading migrated blobs: %w", err))
	}
	m.logger.Info("Loaded reference data",
		logging.F("pets", len(pets)),
		logging.F("migrated_blobs", len(migrated)))

	return &notesRun{
		classifier: notes.NewClassifier(m.opts.PrescriptionTokens, m.opts.LabTokens),
		matcher:    matcher,
		resolver:   resolverCfg,
		pets:       pets,
		migrated:   migrated,
	}, nil
}

func (m *NotesMigrator) loadBlobs(ctx context.Context) ([]legacy.NoteBlob, error) {
	ctx, span := m.tracer.StartPhase(ctx, StageNotes, "load_source")
	defer span.End()

	blobs, err := m.source.NoteBlobs(ctx)
	if err != nil {
		err = migerrors.New(migerrors.ErrSourceReadFailed, StageNotes, err)
		observability.NewSpanHelper(span).SetError(err)
		return nil, err
	}
	m.logger.Info("Loaded note blobs", logging.F("blobs", len(blobs)))
	return blobs, nil
}

// build resolves every blob and returns one batch per migrated blob.
func (m *NotesMigrator) build(ctx context.Context, blobs []legacy.NoteBlob, run *notesRun, stats *NotesStats) ([]store.NotesBatch, error) {
	ctx, span := m.tracer.StartPhase(ctx, StageNotes, "resolve")
	defer span.End()

	pending := make([]store.NotesBatch, 0, len(blobs))
	for _, blob := range blobs {
		if err := ctx.Err(); err != nil {
			return nil, migerrors.ClassifyError(err, StageNotes)
		}

		key := strconv.FormatInt(blob.SourceID, 10)
		if _, done := run.migrated[key]; done {
			stats.AlreadyMigrated++
			stats.skip(blob.SourceID, blob.PetID, ReasonAlreadyMigrated, "")
			m.observer.ItemProcessed(metrics.OutcomeAlreadyMigrated)
			m.progress.RecordSkipped()
			continue
		}

		petID, ok := run.pets[strconv.FormatInt(blob.PetID, 10)]
		if !ok {
			stats.MissingPet++
			stats.skip(blob.SourceID, blob.PetID, ReasonMissingPet, "")
			m.observer.ItemProcessed(metrics.OutcomeMissingPet)
			m.progress.RecordSkipped()
			continue
		}

		batch, ok := m.buildBlob(blob, key, petID, run, stats)
		if !ok {
			m.progress.RecordSkipped()
			continue
		}
		pending = append(pending, batch)
		stats.Migrated++
		m.observer.ItemProcessed(metrics.OutcomeMigrated)
		m.progress.RecordMigrated()
	}
	return pending, nil
}

// buildBlob parses and resolves one blob. ok is false when the blob yields
// nothing to write; the reason has already been counted.
func (m *NotesMigrator) buildBlob(blob legacy.NoteBlob, key, petID string, run *notesRun, stats *NotesStats) (store.NotesBatch, bool) {
	log := m.logger.With(
		logging.F("source_id", blob.SourceID),
		logging.F("pet_id", blob.PetID))

	malformed := 0
	entries := run.classifier.Parse(blob.Tag,
		notes.WithLogger(log),
		notes.WithLocation(m.opts.Location),
		notes.OnDiscard(func(string, error) { malformed++ }))
	stats.MalformedHeaders += malformed

	if len(entries) == 0 {
		stats.Empty++
		detail := "no entries"
		if malformed > 0 {
			detail = fmt.Sprintf("no entries, %d malformed headers", malformed)
		}
		stats.skip(blob.SourceID, blob.PetID, ReasonEmpty, detail)
		m.observer.ItemProcessed(metrics.OutcomeEmpty)
		return store.NotesBatch{}, false
	}

	resolver, err := notes.NewResolver(run.matcher, run.resolver, log)
	if err == nil {
		var resolved []notes.ResolvedEntry
		if resolved, err = resolver.Resolve(entries); err == nil {
			return m.records(blob, key, petID, resolved, stats), true
		}
	}

	log.Warn("Skipping blob that could not be resolved", logging.Err(err))
	stats.ParseErrors++
	stats.skip(blob.SourceID, blob.PetID, ReasonParseError, err.Error())
	m.observer.ItemProcessed(metrics.OutcomeParseError)
	return store.NotesBatch{}, false
}

func (m *NotesMigrator) records(blob legacy.NoteBlob, key, petID string, resolved []notes.ResolvedEntry, stats *NotesStats) store.NotesBatch {
	var batch store.NotesBatch
	for _, r := range resolved {
		stats.Entries++
		switch r.Resolution {
		case notes.ResolutionUnmatched:
			stats.ClinicianNotFound++
		case notes.ResolutionOrphan:
			stats.OrphanPrescriptions++
		}
		if r.Resolution.UsedFallback() {
			stats.FallbackUsed++
		}
		m.observer.EntryResolved(string(r.Category), string(r.Resolution))

		switch r.Category {
		case notes.CategoryPrescription:
			stats.Prescriptions++
			batch.Prescriptions = append(batch.Prescriptions, store.PrescriptionRecord{
				RecordID:         m.newID(),
				TenantID:         m.opts.TenantID,
				PetID:            petID,
				OccurredAt:       r.Timestamp,
				ClinicianID:      r.ClinicianID,
				PrescriptionText: r.Body,
			})
		case notes.CategoryLabResult:
			stats.LabResults++
			batch.MedicalRecords = append(batch.MedicalRecords, m.medicalRecord(petID, r, r.Author))
		default:
			stats.ClinicalNotes++
			batch.MedicalRecords = append(batch.MedicalRecords, m.medicalRecord(petID, r, ""))
		}
	}

	batch.Ledger = []ledger.Entry{
		ledger.NotesMapping.Entry(m.opts.TenantID, key, ledger.DestMultiple, m.now()),
	}
	return batch
}

func (m *NotesMigrator) medicalRecord(petID string, r notes.ResolvedEntry, labLabel string) store.MedicalRecord {
	return store.MedicalRecord{
		RecordID:       m.newID(),
		TenantID:       m.opts.TenantID,
		PetID:          petID,
		OccurredAt:     r.Timestamp,
		ClinicianID:    r.ClinicianID,
		NoteText:       r.Body,
		LabSourceLabel: labLabel,
	}
}

// persist writes pending blobs ChunkSize at a time, one transaction each.
func (m *NotesMigrator) persist(ctx context.Context, pending []store.NotesBatch, stats *NotesStats) error {
	if m.opts.DryRun {
		m.logger.Info("Dry run, nothing written", logging.F("blobs", len(pending)))
		return nil
	}
	if len(pending) == 0 {
		return nil
	}

	ctx, span := m.tracer.StartPhase(ctx, StageNotes, "persist")
	defer span.End()

	for index, start := 0, 0; start < len(pending); index, start = index+1, start+m.opts.ChunkSize {
		if err := ctx.Err(); err != nil {
			return migerrors.ClassifyError(err, StageNotes)
		}
		end := min(start+m.opts.ChunkSize, len(pending))
		batch := mergeNotes(pending[start:end])

		if err := m.writeChunk(ctx, index, batch); err != nil {
			m.logger.Error("Chunk write failed",
				logging.F("chunk", index),
				logging.F("blobs", end-start),
				logging.Err(err))
			return migerrors.New(migerrors.ErrPersistenceFailed, StageNotes,
				fmt.Errorf("chunk %d (%d blobs): %w", index, end-start, err))
		}

		stats.Chunks++
		stats.Persisted += end - start
		m.progress.RecordPersisted(end - start)
		m.logger.Debug("Chunk committed",
			logging.F("chunk", index),
			logging.F("blobs", end-start),
			logging.F("rows", batch.Len()))
	}
	return nil
}

func (m *NotesMigrator) writeChunk(ctx context.Context, index int, batch store.NotesBatch) error {
	ctx, span := m.tracer.StartChunk(ctx, StageNotes, index, batch.Len())
	defer span.End()

	began := time.Now()
	if err := m.writer.WriteNotes(ctx, batch); err != nil {
		observability.NewSpanHelper(span).SetError(err)
		return err
	}
	m.observer.ChunkPersisted(batch.Len(), time.Since(began))
	return nil
}

func mergeNotes(parts []store.NotesBatch) store.NotesBatch {
	var out store.NotesBatch
	for _, p := range parts {
		out.MedicalRecords = append(out.MedicalRecords, p.MedicalRecords...)
		out.Prescriptions = append(out.Prescriptions, p.Prescriptions...)
		out.Ledger = append(out.Ledger, p.Ledger...)
	}
	return out
}
