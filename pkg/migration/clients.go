package migration

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/vicentefritzen/petsys-migracao/config"
	migerrors "github.com/vicentefritzen/petsys-migracao/pkg/errors"
	"github.com/vicentefritzen/petsys-migracao/pkg/ledger"
	"github.com/vicentefritzen/petsys-migracao/pkg/legacy"
	"github.com/vicentefritzen/petsys-migracao/pkg/logging"
	"github.com/vicentefritzen/petsys-migracao/pkg/metrics"
	"github.com/vicentefritzen/petsys-migracao/pkg/store"
)

// RegistryOptionsFromConfig maps the registry section of cfg.
func RegistryOptionsFromConfig(cfg *config.Config) RegistryOptions {
	return RegistryOptions{
		TenantID:  cfg.TenantID,
		ChunkSize: cfg.Registry.ChunkSize,
	}
}

// ClientsOptions configures a ClientsMigrator.
type ClientsOptions struct {
	RegistryOptions
	// DefaultCityID is stored on every client; the legacy address has no city
	// code. Zero leaves it NULL.
	DefaultCityID int
}

// ClientsOptionsFromConfig maps the registry section of cfg.
func ClientsOptionsFromConfig(cfg *config.Config) ClientsOptions {
	return ClientsOptions{
		RegistryOptions: RegistryOptionsFromConfig(cfg),
		DefaultCityID:   cfg.Registry.DefaultCityID,
	}
}

// ClientsDeps are the collaborators of a ClientsMigrator.
type ClientsDeps struct {
	Source ClientSource
	Index  ClientIndex
	Ledger ledger.Reader
	Writer ClientsWriter
	RunDeps
}

// ClientsMigrator copies PET_CLIENTE into clients. A row already in the ledger
// is updated under its recorded id; a row whose document matches an existing
// client is merged into it.
type ClientsMigrator struct {
	run    stageRun
	cityID int
	source ClientSource
	index  ClientIndex
	ledger ledger.Reader
	writer ClientsWriter
}

// NewClientsMigrator creates a ClientsMigrator.
func NewClientsMigrator(opts ClientsOptions, deps ClientsDeps) (*ClientsMigrator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if deps.Source == nil || deps.Index == nil || deps.Ledger == nil {
		return nil, fmt.Errorf("clients migrator requires a source, a client index and a ledger: %w", migerrors.ErrConfiguration)
	}
	if deps.Writer == nil && !opts.DryRun {
		return nil, fmt.Errorf("clients migrator requires a writer unless dry run: %w", migerrors.ErrConfiguration)
	}
	return &ClientsMigrator{
		run:    newStageRun(StageClients, opts.RegistryOptions, deps.RunDeps),
		cityID: opts.DefaultCityID,
		source: deps.Source,
		index:  deps.Index,
		ledger: deps.Ledger,
		writer: deps.Writer,
	}, nil
}

// Run executes the stage.
func (m *ClientsMigrator) Run(ctx context.Context) (stats *ClientsStats, err error) {
	stats = &ClientsStats{DryRun: m.run.opts.DryRun}
	ctx, finish := m.run.begin(ctx)
	defer func() { finish(stats.CounterMap(), err) }()

	existing, err := m.run.destinations(ctx, m.ledger, ledger.ClientMapping, "migrated clients")
	if err != nil {
		return stats, err
	}
	keys, err := m.index.ClientKeys(ctx, m.run.opts.TenantID)
	if err != nil {
		return stats, migerrors.New(migerrors.ErrReferenceDataFailed, StageClients,
			fmt.Errorf("loading clients: %w", err))
	}
	byDocument := make(map[string]string, len(keys))
	for _, k := range keys {
		if doc := documentKey(k.Document); doc != "" {
			if _, taken := byDocument[doc]; !taken {
				byDocument[doc] = k.ID
			}
		}
	}

	rows, err := m.source.Clients(ctx)
	if err != nil {
		return stats, migerrors.New(migerrors.ErrSourceReadFailed, StageClients, err)
	}
	stats.Rows = len(rows)
	m.run.progress.Start(len(rows))
	m.run.logger.Info("Loaded clients",
		logging.F("rows", len(rows)),
		logging.F("destination_clients", len(keys)),
		logging.F("already_migrated", len(existing)))

	items := make([]upsertItem[store.Client], 0, len(rows))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return stats, migerrors.ClassifyError(err, StageClients)
		}
		items = append(items, m.buildRow(row, existing, byDocument, stats))
		m.run.progress.RecordMigrated()
	}

	if m.run.opts.DryRun {
		m.run.logger.Info("Dry run, nothing written",
			logging.F("inserts", stats.Inserted),
			logging.F("updates", stats.Updated))
		return stats, nil
	}
	stats.Chunks, stats.Persisted, err = persistUpserts(ctx, &m.run, items, m.writer.WriteClients)
	if err != nil {
		return stats, err
	}

	m.run.logger.Info("Clients stage finished",
		logging.F("inserted", stats.Inserted),
		logging.F("updated", stats.Updated),
		logging.F("merged_by_document", stats.MergedByDocument))
	return stats, nil
}

func (m *ClientsMigrator) buildRow(row legacy.ClientRow, existing, byDocument map[string]string, stats *ClientsStats) upsertItem[store.Client] {
	key := strconv.FormatInt(row.SourceID, 10)
	doc := documentKey(row.Document)
	item := upsertItem[store.Client]{record: m.client(row, doc)}

	if dest, found := existing[key]; found {
		if id, ok := m.run.recordID(row.SourceID, dest); ok {
			item.record.RecordID = id
			item.update = true
			if doc != "" {
				byDocument[doc] = dest
			}
			stats.Updated++
			m.run.observer.ItemProcessed(metrics.OutcomeUpdated)
			return item
		}
	}

	if dest, found := byDocument[doc]; found && doc != "" {
		if id, ok := m.run.recordID(row.SourceID, dest); ok {
			item.record.RecordID = id
			item.update = true
			entry := ledger.ClientMapping.Entry(m.run.opts.TenantID, key, dest, m.run.now())
			item.entry = &entry
			stats.Updated++
			stats.MergedByDocument++
			m.run.logger.Debug("Client merged by document",
				logging.F("source_id", row.SourceID),
				logging.F("client_id", dest))
			m.run.observer.ItemProcessed(metrics.OutcomeUpdated)
			return item
		}
	}

	item.record.RecordID = m.run.newID()
	entry := ledger.ClientMapping.Entry(m.run.opts.TenantID, key, item.record.RecordID.String(), m.run.now())
	item.entry = &entry
	if doc != "" {
		byDocument[doc] = item.record.RecordID.String()
	}
	stats.Inserted++
	m.run.observer.ItemProcessed(metrics.OutcomeMigrated)
	return item
}

func (m *ClientsMigrator) client(row legacy.ClientRow, doc string) store.Client {
	c := store.Client{
		TenantID:     m.run.opts.TenantID,
		Name:         row.Name,
		Document:     doc,
		PersonType:   store.PersonLegal,
		Email:        row.Email,
		Phone1:       row.Phone1,
		Phone2:       row.Phone2,
		Street:       row.Street,
		Complement:   row.Complement,
		District:     row.District,
		PostalCode:   row.PostalCode,
		CityID:       m.cityID,
		Notes:        row.Notes,
		Active:       row.Active,
		RegisteredAt: row.CreatedAt,
	}
	if row.Type == 1 {
		c.PersonType = store.PersonNatural
	}
	if n, err := strconv.Atoi(row.Number); err == nil && n > 0 {
		c.StreetNo = n
	}
	if c.RegisteredAt.IsZero() {
		c.RegisteredAt = row.BornAt
	}
	if c.RegisteredAt.IsZero() {
		c.RegisteredAt = m.run.now()
	}
	return c
}

// documentKey keeps the digits of a CPF or CNPJ. "123.456.789-01" yields
// "12345678901".
func documentKey(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
