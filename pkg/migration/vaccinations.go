package migration

import (
	"context"
	"fmt"
	"strconv"

	migerrors "github.com/vicentefritzen/petsys-migracao/pkg/errors"
	"github.com/vicentefritzen/petsys-migracao/pkg/ledger"
	"github.com/vicentefritzen/petsys-migracao/pkg/legacy"
	"github.com/vicentefritzen/petsys-migracao/pkg/logging"
	"github.com/vicentefritzen/petsys-migracao/pkg/metrics"
	"github.com/vicentefritzen/petsys-migracao/pkg/store"
)

// VaccinationsDeps are the collaborators of a VaccinationsMigrator.
type VaccinationsDeps struct {
	Source VaccinationSource
	Ledger ledger.Reader
	Writer VaccinationsWriter
	RunDeps
}

// VaccinationsMigrator copies PET_ANIMAL_VACINA into pet_vaccinations. Pets
// and vaccines are resolved through the ledger rows of their stages.
type VaccinationsMigrator struct {
	run    stageRun
	source VaccinationSource
	ledger ledger.Reader
	writer VaccinationsWriter
}

// NewVaccinationsMigrator creates a VaccinationsMigrator.
func NewVaccinationsMigrator(opts RegistryOptions, deps VaccinationsDeps) (*VaccinationsMigrator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if deps.Source == nil || deps.Ledger == nil {
		return nil, fmt.Errorf("vaccinations migrator requires a source and a ledger: %w", migerrors.ErrConfiguration)
	}
	if deps.Writer == nil && !opts.DryRun {
		return nil, fmt.Errorf("vaccinations migrator requires a writer unless dry run: %w", migerrors.ErrConfiguration)
	}
	return &VaccinationsMigrator{
		run:    newStageRun(StageVaccinations, opts, deps.RunDeps),
		source: deps.Source,
		ledger: deps.Ledger,
		writer: deps.Writer,
	}, nil
}

// Run executes the stage.
func (m *VaccinationsMigrator) Run(ctx context.Context) (stats *VaccinationsStats, err error) {
	stats = &VaccinationsStats{DryRun: m.run.opts.DryRun}
	ctx, finish := m.run.begin(ctx)
	defer func() { finish(stats.CounterMap(), err) }()

	pets, err := m.run.destinations(ctx, m.ledger, ledger.PetMapping, "pet mapping")
	if err != nil {
		return stats, err
	}
	vaccines, err := m.run.destinations(ctx, m.ledger, ledger.VaccineMapping, "vaccine mapping")
	if err != nil {
		return stats, err
	}
	existing, err := m.run.destinations(ctx, m.ledger, ledger.VaccinationMapping, "migrated vaccinations")
	if err != nil {
		return stats, err
	}

	rows, err := m.source.Vaccinations(ctx)
	if err != nil {
		return stats, migerrors.New(migerrors.ErrSourceReadFailed, StageVaccinations, err)
	}
	if err := requireUpstream(StageVaccinations, StagePets, pets, len(rows)); err != nil {
		return stats, err
	}
	if err := requireUpstream(StageVaccinations, StageVaccines, vaccines, len(rows)); err != nil {
		return stats, err
	}
	stats.Rows = len(rows)
	m.run.progress.Start(len(rows))
	m.run.logger.Info("Loaded vaccinations",
		logging.F("rows", len(rows)),
		logging.F("pets", len(pets)),
		logging.F("vaccines", len(vaccines)),
		logging.F("already_migrated", len(existing)))

	items := make([]upsertItem[store.Vaccination], 0, len(rows))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return stats, migerrors.ClassifyError(err, StageVaccinations)
		}
		item, ok := m.buildRow(row, pets, vaccines, existing, stats)
		if !ok {
			m.run.progress.RecordSkipped()
			continue
		}
		items = append(items, item)
		m.run.progress.RecordMigrated()
	}

	if m.run.opts.DryRun {
		m.run.logger.Info("Dry run, nothing written",
			logging.F("inserts", stats.Inserted),
			logging.F("updates", stats.Updated))
		return stats, nil
	}
	stats.Chunks, stats.Persisted, err = persistUpserts(ctx, &m.run, items, m.writer.WriteVaccinations)
	if err != nil {
		return stats, err
	}

	m.run.logger.Info("Vaccinations stage finished",
		logging.F("inserted", stats.Inserted),
		logging.F("updated", stats.Updated),
		logging.F("missing_pet", stats.MissingPet),
		logging.F("missing_vaccine", stats.MissingVaccine))
	return stats, nil
}

func (m *VaccinationsMigrator) buildRow(row legacy.VaccinationRow, pets, vaccines, existing map[string]string, stats *VaccinationsStats) (upsertItem[store.Vaccination], bool) {
	petID, ok := pets[strconv.FormatInt(row.PetID, 10)]
	if !ok {
		stats.MissingPet++
		stats.Skipped = append(stats.Skipped, reportSkip(row.SourceID, row.PetID, ReasonMissingPet, ""))
		m.run.observer.ItemProcessed(metrics.OutcomeMissingPet)
		return upsertItem[store.Vaccination]{}, false
	}
	vaccineKey := strconv.FormatInt(row.VaccineID, 10)
	vaccineID, ok := vaccines[vaccineKey]
	if !ok {
		stats.MissingVaccine++
		stats.Skipped = append(stats.Skipped, reportSkip(row.SourceID, row.PetID, ReasonMissingVaccine, "vaccine "+vaccineKey))
		m.run.observer.ItemProcessed(metrics.OutcomeMissingVaccine)
		return upsertItem[store.Vaccination]{}, false
	}

	item := upsertItem[store.Vaccination]{record: store.Vaccination{
		TenantID:   m.run.opts.TenantID,
		PetID:      petID,
		VaccineID:  vaccineID,
		BatchCode:  row.BatchCode,
		Laboratory: row.Laboratory,
		DueAt:      row.DueAt,
		AppliedAt:  row.AppliedAt,
	}}
	if item.record.Applied() {
		stats.Applied++
	}
	key := strconv.FormatInt(row.SourceID, 10)

	if dest, found := existing[key]; found {
		if id, ok := m.run.recordID(row.SourceID, dest); ok {
			item.record.RecordID = id
			item.update = true
			stats.Updated++
			m.run.observer.ItemProcessed(metrics.OutcomeUpdated)
			return item, true
		}
	}

	item.record.RecordID = m.run.newID()
	entry := ledger.VaccinationMapping.Entry(m.run.opts.TenantID, key, item.record.RecordID.String(), m.run.now())
	item.entry = &entry
	stats.Inserted++
	m.run.observer.ItemProcessed(metrics.OutcomeMigrated)
	return item, true
}
