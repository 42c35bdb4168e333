package migration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vicentefritzen/petsys-migracao/config"
	migerrors "github.com/vicentefritzen/petsys-migracao/pkg/errors"
	"github.com/vicentefritzen/petsys-migracao/pkg/ledger"
	"github.com/vicentefritzen/petsys-migracao/pkg/legacy"
	"github.com/vicentefritzen/petsys-migracao/pkg/metrics"
	"github.com/vicentefritzen/petsys-migracao/pkg/store"
)

func TestClientsMigrator_InsertsUpdatesAndMerges(t *testing.T) {
	migratedID := uuid.MustParse("7a1d0c55-3333-4000-8000-000000000002")
	knownID := uuid.MustParse("7a1d0c55-3333-4000-8000-000000000003")
	l := seedLedger(ledger.NewMemory(), ledger.ClientMapping, func(string) string { return migratedID.String() }, 2)

	born := time.Date(1980, 2, 3, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	source := &fakeClientSource{rows: []legacy.ClientRow{
		{SourceID: 1, Type: 1, Name: "MARIA DA SILVA", Document: "123.456.789-01", Number: "120", Active: true, BornAt: born},
		{SourceID: 2, Type: 1, Name: "JOAO PEREIRA", Active: true},
		{SourceID: 3, Type: 1, Name: "ANA SOUZA", Document: "987.654.321-00", Active: true},
		{SourceID: 4, Type: 1, Name: "MARIA SILVA", Document: "12345678901", Active: false},
		{SourceID: 5, Type: 2, Name: "PET SHOP LTDA", Number: "S/N", Active: true},
	}}
	index := &fakeClientIndex{keys: []store.ClientKey{{ID: knownID.String(), Document: "98765432100"}}}
	writer := newFakeUpsertWriter[store.Client](l)
	observer := newRecordingObserver()

	opts := ClientsOptions{RegistryOptions: testRegistryOptions(), DefaultCityID: 4106902}
	m, err := NewClientsMigrator(opts, ClientsDeps{
		Source:  source,
		Index:   index,
		Ledger:  l,
		Writer:  fakeClientsWriter{writer},
		RunDeps: RunDeps{Observer: observer},
	})
	require.NoError(t, err)
	m.run.now = func() time.Time { return now }

	stats, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Rows)
	assert.Equal(t, 2, stats.Inserted)
	assert.Equal(t, 3, stats.Updated)
	assert.Equal(t, 2, stats.MergedByDocument)
	assert.Equal(t, 5, stats.Persisted)
	assert.Equal(t, 1, stats.Chunks)

	inserts, updates := writer.all()
	require.Len(t, inserts, 2)
	require.Len(t, updates, 3)

	maria := inserts[0]
	assert.Equal(t, "12345678901", maria.Document)
	assert.Equal(t, store.PersonNatural, maria.PersonType)
	assert.Equal(t, 120, maria.StreetNo)
	assert.Equal(t, 4106902, maria.CityID)
	assert.Equal(t, born, maria.RegisteredAt, "birth date stands in for a missing registration date")

	shop := inserts[1]
	assert.Equal(t, store.PersonLegal, shop.PersonType)
	assert.Zero(t, shop.StreetNo)
	assert.Equal(t, now, shop.RegisteredAt)

	assert.Equal(t, migratedID, updates[0].RecordID)
	assert.Equal(t, knownID, updates[1].RecordID)
	assert.Equal(t, maria.RecordID, updates[2].RecordID, "a repeated document merges into the client inserted earlier")
	assert.False(t, updates[2].Active)

	dest, err := l.Destinations(context.Background(), testTenant, ledger.ClientMapping)
	require.NoError(t, err)
	assert.Len(t, dest, 5)
	assert.Equal(t, maria.RecordID.String(), dest["1"])
	assert.Equal(t, migratedID.String(), dest["2"])
	assert.Equal(t, knownID.String(), dest["3"])
	assert.Equal(t, maria.RecordID.String(), dest["4"])

	assert.Equal(t, 2, observer.items[metrics.OutcomeMigrated])
	assert.Equal(t, 3, observer.items[metrics.OutcomeUpdated])
	assert.Equal(t, 1, observer.chunks)
}

func TestClientsMigrator_RerunUpdatesSameRecords(t *testing.T) {
	l := ledger.NewMemory()
	source := &fakeClientSource{rows: []legacy.ClientRow{
		{SourceID: 1, Type: 1, Name: "MARIA", Document: "111"},
		{SourceID: 2, Type: 1, Name: "JOSE"},
	}}
	writer := newFakeUpsertWriter[store.Client](l)
	m, err := NewClientsMigrator(ClientsOptions{RegistryOptions: testRegistryOptions()}, ClientsDeps{
		Source: source, Index: &fakeClientIndex{}, Ledger: l, Writer: fakeClientsWriter{writer},
	})
	require.NoError(t, err)

	first, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Inserted)

	second, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 2, second.Updated)
	assert.Zero(t, second.MergedByDocument)

	require.Len(t, writer.batches, 2)
	assert.Empty(t, writer.batches[1].Ledger)
	assert.Equal(t, writer.batches[0].Inserts[0].RecordID, writer.batches[1].Updates[0].RecordID)
}

func TestClientsMigrator_DryRun(t *testing.T) {
	l := ledger.NewMemory()
	opts := ClientsOptions{RegistryOptions: testRegistryOptions()}
	opts.DryRun = true
	m, err := NewClientsMigrator(opts, ClientsDeps{
		Source: &fakeClientSource{rows: []legacy.ClientRow{{SourceID: 1, Name: "MARIA"}}},
		Index:  &fakeClientIndex{},
		Ledger: l,
	})
	require.NoError(t, err)

	stats, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.DryRun)
	assert.Equal(t, 1, stats.Inserted)
	assert.Zero(t, stats.Persisted)
	assert.Zero(t, l.Len())
}

func TestClientsMigrator_Failures(t *testing.T) {
	t.Run("index", func(t *testing.T) {
		m, err := NewClientsMigrator(ClientsOptions{RegistryOptions: testRegistryOptions()}, ClientsDeps{
			Source: &fakeClientSource{},
			Index:  &fakeClientIndex{err: errBoom},
			Ledger: ledger.NewMemory(),
			Writer: fakeClientsWriter{newFakeUpsertWriter[store.Client](ledger.NewMemory())},
		})
		require.NoError(t, err)
		_, err = m.Run(context.Background())
		assert.Equal(t, migerrors.ErrReferenceDataFailed, migerrors.CodeOf(err))
	})

	t.Run("second chunk", func(t *testing.T) {
		l := ledger.NewMemory()
		writer := newFakeUpsertWriter[store.Client](l)
		writer.failAt = 1
		opts := ClientsOptions{RegistryOptions: testRegistryOptions()}
		opts.ChunkSize = 2
		m, err := NewClientsMigrator(opts, ClientsDeps{
			Source: &fakeClientSource{rows: []legacy.ClientRow{
				{SourceID: 1, Name: "A"}, {SourceID: 2, Name: "B"}, {SourceID: 3, Name: "C"},
			}},
			Index:  &fakeClientIndex{},
			Ledger: l,
			Writer: fakeClientsWriter{writer},
		})
		require.NoError(t, err)

		stats, err := m.Run(context.Background())
		assert.Equal(t, migerrors.ErrPersistenceFailed, migerrors.CodeOf(err))
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, 2, stats.Persisted)
		assert.Equal(t, 1, stats.Chunks)
		assert.Equal(t, 2, l.Len(), "the committed chunk keeps its ledger rows")
	})

	t.Run("no writer", func(t *testing.T) {
		_, err := NewClientsMigrator(ClientsOptions{RegistryOptions: testRegistryOptions()}, ClientsDeps{
			Source: &fakeClientSource{}, Index: &fakeClientIndex{}, Ledger: ledger.NewMemory(),
		})
		assert.True(t, migerrors.IsConfiguration(err))
	})
}

func TestClientsOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TenantID = testTenant
	cfg.Registry.DefaultCityID = 4106902

	opts := ClientsOptionsFromConfig(cfg)
	assert.Equal(t, ClientsOptions{RegistryOptions: testRegistryOptions(), DefaultCityID: 4106902}, opts)
}

func TestDocumentKey(t *testing.T) {
	assert.Equal(t, "12345678901", documentKey("123.456.789-01"))
	assert.Equal(t, "12345678000190", documentKey(" 12.345.678/0001-90 "))
	assert.Empty(t, documentKey("ISENTO"))
}
