package migration

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/vicentefritzen/petsys-migracao/config"
	"github.com/vicentefritzen/petsys-migracao/pkg/clinicians"
	migerrors "github.com/vicentefritzen/petsys-migracao/pkg/errors"
	"github.com/vicentefritzen/petsys-migracao/pkg/ledger"
	"github.com/vicentefritzen/petsys-migracao/pkg/legacy"
	"github.com/vicentefritzen/petsys-migracao/pkg/logging"
	"github.com/vicentefritzen/petsys-migracao/pkg/metrics"
	"github.com/vicentefritzen/petsys-migracao/pkg/observability"
	"github.com/vicentefritzen/petsys-migracao/pkg/store"
)

// gramsThreshold is the smallest legacy value taken to be grams typed into
// the kilogram field.
const gramsThreshold = 1000.0

// WeightsOptions configures a WeightsMigrator.
type WeightsOptions struct {
	TenantID string
	// DefaultClinicianID owns every weight; the legacy table has no author.
	DefaultClinicianID string
	// ChunkSize is the number of rows written per transaction.
	ChunkSize int
	DryRun    bool
}

// WeightsOptionsFromConfig maps the weights section of cfg.
func WeightsOptionsFromConfig(cfg *config.Config) WeightsOptions {
	return WeightsOptions{
		TenantID:           cfg.TenantID,
		DefaultClinicianID: cfg.Weights.DefaultClinicianID,
		ChunkSize:          cfg.Weights.ChunkSize,
	}
}

// Validate checks the options.
func (o WeightsOptions) Validate() error {
	if o.TenantID == "" {
		return fmt.Errorf("tenant id is required: %w", migerrors.ErrValidation)
	}
	if o.DefaultClinicianID == "" {
		return fmt.Errorf("default clinician id is required (set DEFAULT_VET_USER_ID): %w", migerrors.ErrConfiguration)
	}
	if o.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d: %w", o.ChunkSize, migerrors.ErrValidation)
	}
	return nil
}

// WeightsDeps are the collaborators of a WeightsMigrator.
type WeightsDeps struct {
	Source WeightSource
	Ledger ledger.Reader
	Writer WeightsWriter
	// Directory, when set, is used to check that DefaultClinicianID is an
	// active clinician of the tenant before anything is written.
	Directory ClinicianDirectory
	Observer  Observer
	Tracer    *observability.Tracer
	Progress  *Progress
	Logger    logging.Logger
}

// WeightsMigrator copies PET_ANIMAL_PESO into pet_weights. Rows already in the
// ledger are updated in place under their recorded id.
type WeightsMigrator struct {
	opts     WeightsOptions
	source   WeightSource
	ledger   ledger.Reader
	writer   WeightsWriter
	dir      ClinicianDirectory
	observer Observer
	tracer   *observability.Tracer
	progress *Progress
	logger   logging.Logger

	now   func() time.Time
	newID func() uuid.UUID
}

// NewWeightsMigrator creates a WeightsMigrator.
func NewWeightsMigrator(opts WeightsOptions, deps WeightsDeps) (*WeightsMigrator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if deps.Source == nil || deps.Ledger == nil {
		return nil, fmt.Errorf("weights migrator requires a source and a ledger: %w", migerrors.ErrConfiguration)
	}
	if deps.Writer == nil && !opts.DryRun {
		return nil, fmt.Errorf("weights migrator requires a writer unless dry run: %w", migerrors.ErrConfiguration)
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.Tracer == nil {
		deps.Tracer = observability.NewTracer()
	}
	if deps.Progress == nil {
		deps.Progress = NewProgress(StageWeights)
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}

	return &WeightsMigrator{
		opts:     opts,
		source:   deps.Source,
		ledger:   deps.Ledger,
		writer:   deps.Writer,
		dir:      deps.Directory,
		observer: deps.Observer,
		tracer:   deps.Tracer,
		progress: deps.Progress,
		logger: deps.Logger.With(
			logging.F("stage", StageWeights),
			logging.F("tenant_id", opts.TenantID),
		),
		now:   time.Now,
		newID: uuid.New,
	}, nil
}

// weightItem is one row ready to be written.
type weightItem struct {
	weight store.PetWeight
	update bool
	ledger ledger.Entry
}

// Run executes the stage.
func (m *WeightsMigrator) Run(ctx context.Context) (stats *WeightsStats, err error) {
	stats = &WeightsStats{DryRun: m.opts.DryRun}

	ctx, span := m.tracer.StartRun(ctx, StageWeights, m.opts.TenantID, m.opts.DryRun)
	defer span.End()
	helper := observability.NewSpanHelper(span)

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

	if err := m.checkClinician(ctx); err != nil {
		return stats, err
	}

	pets, err := m.ledger.Destinations(ctx, m.opts.TenantID, ledger.PetMapping)
	if err != nil {
		return stats, migerrors.New(migerrors.ErrReferenceDataFailed, StageWeights,
			fmt.Errorf("loading pet mapping: %w", err))
	}
	existing, err := m.ledger.Destinations(ctx, m.opts.TenantID, ledger.WeightsMapping)
	if err != nil {
		return stats, migerrors.New(migerrors.ErrReferenceDataFailed, StageWeights,
			fmt.Errorf("loading migrated weights: %w", err))
	}

	rows, err := m.source.Weights(ctx)
	if err != nil {
		return stats, migerrors.New(migerrors.ErrSourceReadFailed, StageWeights, err)
	}
	if err := requireUpstream(StageWeights, StagePets, pets, len(rows)); err != nil {
		return stats, err
	}
	stats.Rows = len(rows)
	m.progress.Start(len(rows))
	m.logger.Info("Loaded weights",
		logging.F("rows", len(rows)),
		logging.F("pets", len(pets)),
		logging.F("already_migrated", len(existing)))

	items := make([]weightItem, 0, len(rows))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return stats, migerrors.ClassifyError(err, StageWeights)
		}
		item, ok := m.buildRow(row, pets, existing, stats)
		if !ok {
			m.progress.RecordSkipped()
			continue
		}
		items = append(items, item)
		m.progress.RecordMigrated()
	}

	if m.opts.DryRun {
		m.logger.Info("Dry run, nothing written",
			logging.F("inserts", stats.Inserted),
			logging.F("updates", stats.Updated))
		return stats, nil
	}
	if err := m.persist(ctx, items, stats); err != nil {
		return stats, err
	}

	m.logger.Info("Weights stage finished",
		logging.F("inserted", stats.Inserted),
		logging.F("updated", stats.Updated),
		logging.F("missing_pet", stats.MissingPet),
		logging.F("converted_from_grams", stats.Converted))
	return stats, nil
}

// checkClinician fails the run when the directory does not list the default
// clinician among the tenant's active users.
func (m *WeightsMigrator) checkClinician(ctx context.Context) error {
	if m.dir == nil {
		return nil
	}
	list, err := m.dir.Clinicians(ctx, m.opts.TenantID)
	if err != nil {
		return migerrors.New(migerrors.ErrReferenceDataFailed, StageWeights,
			fmt.Errorf("loading clinicians: %w", err))
	}
	vet, ok := clinicians.NewRoster(list).ByID(m.opts.DefaultClinicianID)
	if !ok {
		return migerrors.New(migerrors.ErrInvalidConfiguration, StageWeights,
			fmt.Errorf("default clinician %s is not an active user of tenant %s: %w",
				m.opts.DefaultClinicianID, m.opts.TenantID, migerrors.ErrConfiguration))
	}
	m.logger.Info("Weights attributed to default clinician",
		logging.F("clinician", vet.Name),
		logging.F("clinician_id", vet.ID))
	return nil
}

func (m *WeightsMigrator) buildRow(row legacy.WeightRow, pets, existing map[string]string, stats *WeightsStats) (weightItem, bool) {
	petID, ok := pets[strconv.FormatInt(row.PetID, 10)]
	if !ok {
		stats.MissingPet++
		stats.Skipped = append(stats.Skipped, reportSkip(row.SourceID, row.PetID, ReasonMissingPet, ""))
		m.observer.ItemProcessed(metrics.OutcomeMissingPet)
		return weightItem{}, false
	}

	kg, converted, clamped := NormalizeWeight(row.Weight)
	if converted {
		stats.Converted++
		m.logger.Debug("Weight taken as grams",
			logging.F("source_id", row.SourceID),
			logging.F("legacy_weight", row.Weight),
			logging.F("weight_kg", kg))
	}
	if clamped {
		stats.Clamped++
		m.logger.Warn("Weight out of range, clamped",
			logging.F("source_id", row.SourceID),
			logging.F("legacy_weight", row.Weight),
			logging.F("weight_kg", kg))
	}

	key := strconv.FormatInt(row.SourceID, 10)
	item := weightItem{weight: store.PetWeight{
		TenantID:    m.opts.TenantID,
		PetID:       petID,
		ClinicianID: m.opts.DefaultClinicianID,
		WeightKg:    kg,
		WeighedAt:   row.MeasuredAt,
	}}

	if dest, found := existing[key]; found {
		if id, err := uuid.Parse(dest); err == nil {
			item.weight.RecordID = id
			item.update = true
			stats.Updated++
			m.observer.ItemProcessed(metrics.OutcomeUpdated)
			return item, true
		}
		m.logger.Warn("Ledger destination is not a record id, inserting anew",
			logging.F("source_id", row.SourceID),
			logging.F("destination", dest))
	}

	item.weight.RecordID = m.newID()
	item.ledger = ledger.WeightsMapping.Entry(m.opts.TenantID, key, item.weight.RecordID.String(), m.now())
	stats.Inserted++
	m.observer.ItemProcessed(metrics.OutcomeMigrated)
	return item, true
}

func (m *WeightsMigrator) persist(ctx context.Context, items []weightItem, stats *WeightsStats) error {
	ctx, span := m.tracer.StartPhase(ctx, StageWeights, "persist")
	defer span.End()

	for index, start := 0, 0; start < len(items); index, start = index+1, start+m.opts.ChunkSize {
		if err := ctx.Err(); err != nil {
			return migerrors.ClassifyError(err, StageWeights)
		}
		end := min(start+m.opts.ChunkSize, len(items))

		var batch store.WeightsBatch
		for _, it := range items[start:end] {
			if it.update {
				batch.Updates = append(batch.Updates, it.weight)
				continue
			}
			batch.Inserts = append(batch.Inserts, it.weight)
			batch.Ledger = append(batch.Ledger, it.ledger)
		}

		if err := m.writeChunk(ctx, index, batch); err != nil {
			m.logger.Error("Chunk write failed",
				logging.F("chunk", index),
				logging.F("rows", batch.Len()),
				logging.Err(err))
			return migerrors.New(migerrors.ErrPersistenceFailed, StageWeights,
				fmt.Errorf("chunk %d (%d rows): %w", index, batch.Len(), err))
		}
		stats.Chunks++
		stats.Persisted += batch.Len()
		m.progress.RecordPersisted(batch.Len())
	}
	return nil
}

func (m *WeightsMigrator) writeChunk(ctx context.Context, index int, batch store.WeightsBatch) error {
	ctx, span := m.tracer.StartChunk(ctx, StageWeights, index, batch.Len())
	defer span.End()

	began := time.Now()
	if err := m.writer.WriteWeights(ctx, batch); err != nil {
		observability.NewSpanHelper(span).SetError(err)
		return err
	}
	m.observer.ChunkPersisted(batch.Len(), time.Since(began))
	return nil
}

// NormalizeWeight converts a legacy weight to kilograms. Values of 1000 or
// more are taken as grams; the result is rounded to grams and kept within
// 0..store.MaxWeightKg.
func NormalizeWeight(w float64) (kg float64, converted, clamped bool) {
	kg = w
	if kg >= gramsThreshold {
		kg /= 1000
		converted = true
	}
	kg = math.Round(kg*1000) / 1000
	switch {
	case kg > store.MaxWeightKg:
		kg, clamped = store.MaxWeightKg, true
	case kg < 0:
		kg, clamped = 0, true
	}
	return kg, converted, clamped
}
