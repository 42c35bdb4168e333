package migration

import (
	"context"
	"fmt"
	"maps"
	"strconv"

	migerrors "github.com/vicentefritzen/petsys-migracao/pkg/errors"
	"github.com/vicentefritzen/petsys-migracao/pkg/ledger"
	"github.com/vicentefritzen/petsys-migracao/pkg/legacy"
	"github.com/vicentefritzen/petsys-migracao/pkg/logging"
	"github.com/vicentefritzen/petsys-migracao/pkg/metrics"
	"github.com/vicentefritzen/petsys-migracao/pkg/store"
	"github.com/vicentefritzen/petsys-migracao/pkg/textnorm"
)

// VaccinesDeps are the collaborators of a VaccinesMigrator.
type VaccinesDeps struct {
	Source VaccineSource
	Index  VaccineIndex
	Ledger ledger.Reader
	Writer VaccinesWriter
	RunDeps
}

// VaccinesMigrator copies PET_VACINA into the tenant's vaccine catalogue. A
// vaccine whose name is already in the catalogue is merged into it.
type VaccinesMigrator struct {
	run    stageRun
	source VaccineSource
	index  VaccineIndex
	ledger ledger.Reader
	writer VaccinesWriter
}

// NewVaccinesMigrator creates a VaccinesMigrator.
func NewVaccinesMigrator(opts RegistryOptions, deps VaccinesDeps) (*VaccinesMigrator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if deps.Source == nil || deps.Index == nil || deps.Ledger == nil {
		return nil, fmt.Errorf("vaccines migrator requires a source, a vaccine index and a ledger: %w", migerrors.ErrConfiguration)
	}
	if deps.Writer == nil && !opts.DryRun {
		return nil, fmt.Errorf("vaccines migrator requires a writer unless dry run: %w", migerrors.ErrConfiguration)
	}
	return &VaccinesMigrator{
		run:    newStageRun(StageVaccines, opts, deps.RunDeps),
		source: deps.Source,
		index:  deps.Index,
		ledger: deps.Ledger,
		writer: deps.Writer,
	}, nil
}

// Run executes the stage.
func (m *VaccinesMigrator) Run(ctx context.Context) (stats *VaccinesStats, err error) {
	stats = &VaccinesStats{DryRun: m.run.opts.DryRun}
	ctx, finish := m.run.begin(ctx)
	defer func() { finish(stats.CounterMap(), err) }()

	existing, err := m.run.destinations(ctx, m.ledger, ledger.VaccineMapping, "migrated vaccines")
	if err != nil {
		return stats, err
	}
	catalogue, err := m.index.VaccineNames(ctx, m.run.opts.TenantID)
	if err != nil {
		return stats, migerrors.New(migerrors.ErrReferenceDataFailed, StageVaccines,
			fmt.Errorf("loading vaccines: %w", err))
	}
	byName := make(map[string]string, len(catalogue))
	maps.Copy(byName, catalogue)

	rows, err := m.source.Vaccines(ctx)
	if err != nil {
		return stats, migerrors.New(migerrors.ErrSourceReadFailed, StageVaccines, err)
	}
	stats.Rows = len(rows)
	m.run.progress.Start(len(rows))
	m.run.logger.Info("Loaded vaccines",
		logging.F("rows", len(rows)),
		logging.F("catalogue", len(byName)),
		logging.F("already_migrated", len(existing)))

	items := make([]upsertItem[store.Vaccine], 0, len(rows))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return stats, migerrors.ClassifyError(err, StageVaccines)
		}
		item, ok := m.buildRow(row, existing, byName, stats)
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
	stats.Chunks, stats.Persisted, err = persistUpserts(ctx, &m.run, items, m.writer.WriteVaccines)
	if err != nil {
		return stats, err
	}

	m.run.logger.Info("Vaccines stage finished",
		logging.F("inserted", stats.Inserted),
		logging.F("updated", stats.Updated),
		logging.F("merged_by_name", stats.MergedByName))
	return stats, nil
}

func (m *VaccinesMigrator) buildRow(row legacy.VaccineRow, existing, byName map[string]string, stats *VaccinesStats) (upsertItem[store.Vaccine], bool) {
	name := textnorm.Upper(row.Name)
	if name == "" {
		stats.Empty++
		stats.Skipped = append(stats.Skipped, reportSkip(row.SourceID, 0, ReasonEmpty, "vaccine without a name"))
		m.run.observer.ItemProcessed(metrics.OutcomeEmpty)
		return upsertItem[store.Vaccine]{}, false
	}

	item := upsertItem[store.Vaccine]{record: store.Vaccine{
		TenantID:      m.run.opts.TenantID,
		Name:          name,
		SpeciesID:     defaultSpecies,
		Frequency:     max(row.Frequency, 1),
		PeriodID:      max(row.Period, 1),
		PurchasePrice: row.PurchasePrice,
		SalePrice:     row.SalePrice,
		Active:        true,
	}}
	key := strconv.FormatInt(row.SourceID, 10)

	if dest, found := existing[key]; found {
		if id, ok := m.run.recordID(row.SourceID, dest); ok {
			item.record.RecordID = id
			item.update = true
			byName[name] = dest
			stats.Updated++
			m.run.observer.ItemProcessed(metrics.OutcomeUpdated)
			return item, true
		}
	}

	if dest, found := byName[name]; found {
		if id, ok := m.run.recordID(row.SourceID, dest); ok {
			item.record.RecordID = id
			item.update = true
			entry := ledger.VaccineMapping.Entry(m.run.opts.TenantID, key, dest, m.run.now())
			item.entry = &entry
			stats.Updated++
			stats.MergedByName++
			m.run.observer.ItemProcessed(metrics.OutcomeUpdated)
			return item, true
		}
	}

	item.record.RecordID = m.run.newID()
	entry := ledger.VaccineMapping.Entry(m.run.opts.TenantID, key, item.record.RecordID.String(), m.run.now())
	item.entry = &entry
	byName[name] = item.record.RecordID.String()
	stats.Inserted++
	m.run.observer.ItemProcessed(metrics.OutcomeMigrated)
	return item, true
}
