package migration

import (
	"context"
	"fmt"
	"strconv"

	"github.com/vicentefritzen/petsys-migracao/config"
	migerrors "github.com/vicentefritzen/petsys-migracao/pkg/errors"
	"github.com/vicentefritzen/petsys-migracao/pkg/ledger"
	"github.com/vicentefritzen/petsys-migracao/pkg/legacy"
	"github.com/vicentefritzen/petsys-migracao/pkg/logging"
	"github.com/vicentefritzen/petsys-migracao/pkg/metrics"
	"github.com/vicentefritzen/petsys-migracao/pkg/store"
)

const (
	unnamedPet     = "SEM NOME"
	defaultSpecies = 1
	defaultSex     = 1
	defaultSize    = 1
	maxSize        = 4
)

// sexes maps the legacy sex codes onto the destination's. The legacy table
// numbers neutered females before neutered males.
var sexes = map[int]int{1: 1, 2: 3, 3: 2, 4: 4}

// PetsOptions configures a PetsMigrator.
type PetsOptions struct {
	RegistryOptions
	// Minimum ratios for a legacy breed or colour description to match a
	// destination catalogue entry.
	BreedMinScore float64
	ColorMinScore float64
}

// PetsOptionsFromConfig maps the registry section of cfg.
func PetsOptionsFromConfig(cfg *config.Config) PetsOptions {
	return PetsOptions{
		RegistryOptions: RegistryOptionsFromConfig(cfg),
		BreedMinScore:   cfg.Registry.BreedMinScore,
		ColorMinScore:   cfg.Registry.ColorMinScore,
	}
}

// Validate checks the options.
func (o PetsOptions) Validate() error {
	if err := o.RegistryOptions.Validate(); err != nil {
		return err
	}
	for _, s := range []float64{o.BreedMinScore, o.ColorMinScore} {
		if s < 0 || s > 100 {
			return fmt.Errorf("catalogue score must be between 0 and 100, got %v: %w", s, migerrors.ErrValidation)
		}
	}
	return nil
}

// PetsDeps are the collaborators of a PetsMigrator.
type PetsDeps struct {
	Source  PetSource
	Owners  ClientIndex
	Catalog Catalog
	Ledger  ledger.Reader
	Writer  PetsWriter
	RunDeps
}

// PetsMigrator copies PET_ANIMAL into pets. Owners come from the clients
// stage's ledger rows; breeds and colours are matched by name against the
// destination catalogues.
type PetsMigrator struct {
	run     stageRun
	opts    PetsOptions
	source  PetSource
	owners  ClientIndex
	catalog Catalog
	ledger  ledger.Reader
	writer  PetsWriter
}

// NewPetsMigrator creates a PetsMigrator.
func NewPetsMigrator(opts PetsOptions, deps PetsDeps) (*PetsMigrator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if deps.Source == nil || deps.Owners == nil || deps.Catalog == nil || deps.Ledger == nil {
		return nil, fmt.Errorf("pets migrator requires a source, a client index, a catalog and a ledger: %w", migerrors.ErrConfiguration)
	}
	if deps.Writer == nil && !opts.DryRun {
		return nil, fmt.Errorf("pets migrator requires a writer unless dry run: %w", migerrors.ErrConfiguration)
	}
	return &PetsMigrator{
		run:     newStageRun(StagePets, opts.RegistryOptions, deps.RunDeps),
		opts:    opts,
		source:  deps.Source,
		owners:  deps.Owners,
		catalog: deps.Catalog,
		ledger:  deps.Ledger,
		writer:  deps.Writer,
	}, nil
}

// petsRun is the reference data of one run.
type petsRun struct {
	clients  map[string]string
	existing map[string]string
	owners   map[string]bool

	legacyBreeds map[int64]legacy.BreedRow
	legacyColors map[int64]string
	breeds       *catalogMatcher
	colors       *catalogMatcher
}

// Run executes the stage.
func (m *PetsMigrator) Run(ctx context.Context) (stats *PetsStats, err error) {
	stats = &PetsStats{DryRun: m.opts.DryRun}
	ctx, finish := m.run.begin(ctx)
	defer func() { finish(stats.CounterMap(), err) }()

	run, err := m.loadReference(ctx)
	if err != nil {
		return stats, err
	}

	rows, err := m.source.Pets(ctx)
	if err != nil {
		return stats, migerrors.New(migerrors.ErrSourceReadFailed, StagePets, err)
	}
	if err := requireUpstream(StagePets, StageClients, run.clients, len(rows)); err != nil {
		return stats, err
	}
	stats.Rows = len(rows)
	m.run.progress.Start(len(rows))
	m.run.logger.Info("Loaded pets",
		logging.F("rows", len(rows)),
		logging.F("clients", len(run.clients)),
		logging.F("already_migrated", len(run.existing)))

	items := make([]upsertItem[store.Pet], 0, len(rows))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return stats, migerrors.ClassifyError(err, StagePets)
		}
		item, ok := m.buildRow(row, run, stats)
		if !ok {
			m.run.progress.RecordSkipped()
			continue
		}
		items = append(items, item)
		m.run.progress.RecordMigrated()
	}

	if m.opts.DryRun {
		m.run.logger.Info("Dry run, nothing written",
			logging.F("inserts", stats.Inserted),
			logging.F("updates", stats.Updated))
		return stats, nil
	}
	stats.Chunks, stats.Persisted, err = persistUpserts(ctx, &m.run, items, m.writer.WritePets)
	if err != nil {
		return stats, err
	}

	m.run.logger.Info("Pets stage finished",
		logging.F("inserted", stats.Inserted),
		logging.F("updated", stats.Updated),
		logging.F("missing_owner", stats.MissingOwner),
		logging.F("breed_unmatched", stats.BreedUnmatched),
		logging.F("color_unmatched", stats.ColorUnmatched))
	return stats, nil
}

func (m *PetsMigrator) loadReference(ctx context.Context) (*petsRun, error) {
	ctx, span := m.run.tracer.StartPhase(ctx, StagePets, "reference")
	defer span.End()

	clients, err := m.run.destinations(ctx, m.ledger, ledger.ClientMapping, "client mapping")
	if err != nil {
		return nil, err
	}
	existing, err := m.run.destinations(ctx, m.ledger, ledger.PetMapping, "migrated pets")
	if err != nil {
		return nil, err
	}
	keys, err := m.owners.ClientKeys(ctx, m.run.opts.TenantID)
	if err != nil {
		return nil, m.referenceErr("clients", err)
	}
	breedItems, err := m.catalog.BreedCatalog(ctx)
	if err != nil {
		return nil, m.referenceErr("breed catalogue", err)
	}
	colorItems, err := m.catalog.ColorCatalog(ctx)
	if err != nil {
		return nil, m.referenceErr("colour catalogue", err)
	}

	legacyBreeds, err := m.source.Breeds(ctx)
	if err != nil {
		return nil, migerrors.New(migerrors.ErrSourceReadFailed, StagePets, err)
	}
	legacyColors, err := m.source.Colors(ctx)
	if err != nil {
		return nil, migerrors.New(migerrors.ErrSourceReadFailed, StagePets, err)
	}

	run := &petsRun{
		clients:      clients,
		existing:     existing,
		owners:       make(map[string]bool, len(keys)),
		legacyBreeds: make(map[int64]legacy.BreedRow, len(legacyBreeds)),
		legacyColors: make(map[int64]string, len(legacyColors)),
		breeds:       newCatalogMatcher(breedItems, m.opts.BreedMinScore),
		colors:       newCatalogMatcher(colorItems, m.opts.ColorMinScore),
	}
	for _, k := range keys {
		run.owners[k.ID] = true
	}
	for _, b := range legacyBreeds {
		run.legacyBreeds[b.Code] = b
	}
	for _, c := range legacyColors {
		run.legacyColors[c.Code] = c.Description
	}
	return run, nil
}

func (m *PetsMigrator) referenceErr(what string, err error) error {
	return migerrors.New(migerrors.ErrReferenceDataFailed, StagePets, fmt.Errorf("loading %s: %w", what, err))
}

func (m *PetsMigrator) buildRow(row legacy.PetRow, run *petsRun, stats *PetsStats) (upsertItem[store.Pet], bool) {
	ownerKey := strconv.FormatInt(row.OwnerID, 10)
	ownerID, ok := run.clients[ownerKey]
	if !ok || !run.owners[ownerID] {
		stats.MissingOwner++
		stats.Skipped = append(stats.Skipped, reportSkip(row.SourceID, row.SourceID, ReasonMissingOwner, "owner "+ownerKey))
		m.run.observer.ItemProcessed(metrics.OutcomeMissingOwner)
		return upsertItem[store.Pet]{}, false
	}

	item := upsertItem[store.Pet]{record: m.pet(row, ownerID, run, stats)}
	key := strconv.FormatInt(row.SourceID, 10)

	if dest, found := run.existing[key]; found {
		if id, ok := m.run.recordID(row.SourceID, dest); ok {
			item.record.RecordID = id
			item.update = true
			stats.Updated++
			m.run.observer.ItemProcessed(metrics.OutcomeUpdated)
			return item, true
		}
	}

	item.record.RecordID = m.run.newID()
	entry := ledger.PetMapping.Entry(m.run.opts.TenantID, key, item.record.RecordID.String(), m.run.now())
	item.entry = &entry
	stats.Inserted++
	m.run.observer.ItemProcessed(metrics.OutcomeMigrated)
	return item, true
}

func (m *PetsMigrator) pet(row legacy.PetRow, ownerID string, run *petsRun, stats *PetsStats) store.Pet {
	p := store.Pet{
		TenantID:     m.run.opts.TenantID,
		OwnerID:      ownerID,
		Name:         row.Name,
		SpeciesID:    defaultSpecies,
		SexID:        defaultSex,
		SizeID:       defaultSize,
		BornOn:       row.BornAt,
		Notes:        row.Notes,
		Active:       row.Active,
		RegisteredAt: row.CreatedAt,
	}
	if p.Name == "" {
		p.Name = unnamedPet
	}
	if sex, ok := sexes[row.SexCode]; ok {
		p.SexID = sex
	}
	if row.SizeCode >= 1 && row.SizeCode <= maxSize {
		p.SizeID = row.SizeCode
	}
	if p.RegisteredAt.IsZero() {
		p.RegisteredAt = m.run.now()
	}

	breed := run.legacyBreeds[row.BreedCode]
	if breed.Description != "" {
		if match, ok := run.breeds.match(breed.Description); ok {
			p.BreedID = match.ID
			if match.SpeciesID > 0 {
				p.SpeciesID = match.SpeciesID
			}
		} else {
			stats.BreedUnmatched++
			m.run.logger.Debug("Breed not in catalogue",
				logging.F("source_id", row.SourceID),
				logging.F("breed", breed.Description))
		}
	}
	if breed.SpeciesID > 0 {
		p.SpeciesID = breed.SpeciesID
	}

	if color := run.legacyColors[row.ColorCode]; color != "" {
		if match, ok := run.colors.match(color); ok {
			p.ColorID = match.ID
		} else {
			stats.ColorUnmatched++
			m.run.logger.Debug("Colour not in catalogue",
				logging.F("source_id", row.SourceID),
				logging.F("color", color))
		}
	}

	if notes := []rune(p.Notes); len(notes) > store.MaxPetNotes {
		p.Notes = string(notes[:store.MaxPetNotes-3]) + "..."
		stats.NotesTruncated++
	}
	return p
}
