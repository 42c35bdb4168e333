package migration

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/vicentefritzen/petsys-migracao/pkg/clinicians"
	"github.com/vicentefritzen/petsys-migracao/pkg/ledger"
	"github.com/vicentefritzen/petsys-migracao/pkg/legacy"
	"github.com/vicentefritzen/petsys-migracao/pkg/store"
)

const testTenant = "6f1c2b7e-0000-4000-8000-000000000001"

var errBoom = errors.New("boom")

type fakeNoteSource struct {
	blobs []legacy.NoteBlob
	err   error
}

func (f *fakeNoteSource) NoteBlobs(context.Context) ([]legacy.NoteBlob, error) {
	return f.blobs, f.err
}

type fakeWeightSource struct {
	rows []legacy.WeightRow
	err  error
}

func (f *fakeWeightSource) Weights(context.Context) ([]legacy.WeightRow, error) {
	return f.rows, f.err
}

type fakeDirectory struct {
	clinicians []clinicians.Clinician
	err        error
	tenant     string
}

func (f *fakeDirectory) Clinicians(_ context.Context, tenantID string) ([]clinicians.Clinician, error) {
	f.tenant = tenantID
	return f.clinicians, f.err
}

func testDirectory() *fakeDirectory {
	return &fakeDirectory{clinicians: []clinicians.Clinician{
		{ID: "u-3", Name: "DRA. JULIANA FARBER METZLER"},
		{ID: "u-1", Name: "Dr. Carlos Eduardo Souza"},
		{ID: "u-2", Name: "DRA. PATRICIA LIMA"},
	}}
}

// fakeNotesWriter applies ledger rows to a Memory ledger the way the real
// store does inside its transaction. failAt makes that chunk fail.
type fakeNotesWriter struct {
	mu      sync.Mutex
	ledger  *ledger.Memory
	batches []store.NotesBatch
	failAt  int
}

func newFakeNotesWriter(l *ledger.Memory) *fakeNotesWriter {
	return &fakeNotesWriter{ledger: l, failAt: -1}
}

func (f *fakeNotesWriter) WriteNotes(ctx context.Context, batch store.NotesBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == f.failAt {
		return errBoom
	}
	if err := batch.Validate(); err != nil {
		return err
	}
	if err := f.ledger.Replace(ctx, batch.Ledger); err != nil {
		return err
	}
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeNotesWriter) all() store.NotesBatch {
	return mergeNotes(f.batches)
}

type fakeWeightsWriter struct {
	ledger  *ledger.Memory
	batches []store.WeightsBatch
	failAt  int
}

func newFakeWeightsWriter(l *ledger.Memory) *fakeWeightsWriter {
	return &fakeWeightsWriter{ledger: l, failAt: -1}
}

func (f *fakeWeightsWriter) WriteWeights(ctx context.Context, batch store.WeightsBatch) error {
	if len(f.batches) == f.failAt {
		return errBoom
	}
	if err := batch.Validate(); err != nil {
		return err
	}
	if err := f.ledger.Replace(ctx, batch.Ledger); err != nil {
		return err
	}
	f.batches = append(f.batches, batch)
	return nil
}

type recordingObserver struct {
	items   map[string]int
	entries map[string]int
	chunks  int
	rows    int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{items: map[string]int{}, entries: map[string]int{}}
}

func (o *recordingObserver) ItemProcessed(outcome string) { o.items[outcome]++ }

func (o *recordingObserver) EntryResolved(category, resolution string) {
	o.entries[category+"/"+resolution]++
}

func (o *recordingObserver) ChunkPersisted(rows int, _ time.Duration) {
	o.chunks++
	o.rows += rows
}

// petLedger seeds pet mappings legacy id -> "pet-<id>".
func petLedger(ids ...int64) *ledger.Memory {
	seed := make([]ledger.Entry, 0, len(ids))
	for _, id := range ids {
		key := strconv.FormatInt(id, 10)
		seed = append(seed, ledger.PetMapping.Entry(testTenant, key, "pet-"+key, time.Now()))
	}
	return ledger.NewMemory(seed...)
}

type fakeClientSource struct {
	rows []legacy.ClientRow
	err  error
}

func (f *fakeClientSource) Clients(context.Context) ([]legacy.ClientRow, error) {
	return f.rows, f.err
}

type fakePetSource struct {
	rows   []legacy.PetRow
	breeds []legacy.BreedRow
	colors []legacy.ColorRow
	err    error
}

func (f *fakePetSource) Pets(context.Context) ([]legacy.PetRow, error) {
	return f.rows, f.err
}

func (f *fakePetSource) Breeds(context.Context) ([]legacy.BreedRow, error) {
	return f.breeds, nil
}

func (f *fakePetSource) Colors(context.Context) ([]legacy.ColorRow, error) {
	return f.colors, nil
}

type fakeVaccineSource struct {
	rows []legacy.VaccineRow
	err  error
}

func (f *fakeVaccineSource) Vaccines(context.Context) ([]legacy.VaccineRow, error) {
	return f.rows, f.err
}

type fakeVaccinationSource struct {
	rows []legacy.VaccinationRow
	err  error
}

func (f *fakeVaccinationSource) Vaccinations(context.Context) ([]legacy.VaccinationRow, error) {
	return f.rows, f.err
}

type fakeClientIndex struct {
	keys []store.ClientKey
	err  error
}

func (f *fakeClientIndex) ClientKeys(context.Context, string) ([]store.ClientKey, error) {
	return f.keys, f.err
}

type fakeCatalog struct {
	breeds []store.CatalogItem
	colors []store.CatalogItem
	err    error
}

func (f *fakeCatalog) BreedCatalog(context.Context) ([]store.CatalogItem, error) {
	return f.breeds, f.err
}

func (f *fakeCatalog) ColorCatalog(context.Context) ([]store.CatalogItem, error) {
	return f.colors, f.err
}

type fakeVaccineIndex struct {
	names map[string]string
	err   error
}

func (f *fakeVaccineIndex) VaccineNames(context.Context, string) (map[string]string, error) {
	return f.names, f.err
}

// fakeUpsertWriter records batches of any registry stage and applies their
// ledger rows. failAt makes that chunk fail.
type fakeUpsertWriter[T any] struct {
	ledger  *ledger.Memory
	batches []store.Batch[T]
	failAt  int
}

func newFakeUpsertWriter[T any](l *ledger.Memory) *fakeUpsertWriter[T] {
	return &fakeUpsertWriter[T]{ledger: l, failAt: -1}
}

func (f *fakeUpsertWriter[T]) write(ctx context.Context, batch store.Batch[T]) error {
	if len(f.batches) == f.failAt {
		return errBoom
	}
	if err := f.ledger.Replace(ctx, batch.Ledger); err != nil {
		return err
	}
	f.batches = append(f.batches, batch)
	return nil
}

// all returns every written row, inserts then updates, in write order.
func (f *fakeUpsertWriter[T]) all() (inserts, updates []T) {
	for _, b := range f.batches {
		inserts = append(inserts, b.Inserts...)
		updates = append(updates, b.Updates...)
	}
	return inserts, updates
}

type fakeClientsWriter struct{ *fakeUpsertWriter[store.Client] }

func (f fakeClientsWriter) WriteClients(ctx context.Context, b store.ClientsBatch) error {
	return f.write(ctx, b)
}

type fakePetsWriter struct{ *fakeUpsertWriter[store.Pet] }

func (f fakePetsWriter) WritePets(ctx context.Context, b store.PetsBatch) error {
	return f.write(ctx, b)
}

type fakeVaccinesWriter struct{ *fakeUpsertWriter[store.Vaccine] }

func (f fakeVaccinesWriter) WriteVaccines(ctx context.Context, b store.VaccinesBatch) error {
	return f.write(ctx, b)
}

type fakeVaccinationsWriter struct{ *fakeUpsertWriter[store.Vaccination] }

func (f fakeVaccinationsWriter) WriteVaccinations(ctx context.Context, b store.VaccinationsBatch) error {
	return f.write(ctx, b)
}

// seedLedger seeds one mapping with legacy id -> dest(id).
func seedLedger(l *ledger.Memory, m ledger.Mapping, dest func(key string) string, ids ...int64) *ledger.Memory {
	entries := make([]ledger.Entry, 0, len(ids))
	for _, id := range ids {
		key := strconv.FormatInt(id, 10)
		entries = append(entries, m.Entry(testTenant, key, dest(key), time.Now()))
	}
	if err := l.Replace(context.Background(), entries); err != nil {
		panic(err)
	}
	return l
}

func testRegistryOptions() RegistryOptions {
	return RegistryOptions{TenantID: testTenant, ChunkSize: 1000}
}
