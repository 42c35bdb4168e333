// Package migration runs the migration stages: it reads legacy rows, turns
// them into destination records and persists them chunk by chunk together
// with their Control Ledger rows.
//
// Stages depend on each other through the ledger and must run in order:
// clients, pets, vaccines, vaccinations, then weights and notes.
package migration

import (
	"context"
	"time"

	"github.com/vicentefritzen/petsys-migracao/pkg/clinicians"
	"github.com/vicentefritzen/petsys-migracao/pkg/legacy"
	"github.com/vicentefritzen/petsys-migracao/pkg/store"
)

// Stage names, used in logs, spans, metrics and errors.
const (
	StageClients      = "clients"
	StagePets         = "pets"
	StageVaccines     = "vaccines"
	StageVaccinations = "vaccinations"
	StageNotes        = "notes"
	StageWeights      = "weights"
)

// Stages lists every stage in the order it must run.
var Stages = []string{StageClients, StagePets, StageVaccines, StageVaccinations, StageWeights, StageNotes}

// NoteSource supplies the legacy note blobs.
type NoteSource interface {
	NoteBlobs(ctx context.Context) ([]legacy.NoteBlob, error)
}

// WeightSource supplies the legacy weight rows.
type WeightSource interface {
	Weights(ctx context.Context) ([]legacy.WeightRow, error)
}

// ClientSource supplies the legacy clients.
type ClientSource interface {
	Clients(ctx context.Context) ([]legacy.ClientRow, error)
}

// PetSource supplies the legacy animals with the breed and colour tables
// their codes point into.
type PetSource interface {
	Pets(ctx context.Context) ([]legacy.PetRow, error)
	Breeds(ctx context.Context) ([]legacy.BreedRow, error)
	Colors(ctx context.Context) ([]legacy.ColorRow, error)
}

// VaccineSource supplies the legacy vaccine catalogue.
type VaccineSource interface {
	Vaccines(ctx context.Context) ([]legacy.VaccineRow, error)
}

// VaccinationSource supplies the legacy vaccine applications.
type VaccinationSource interface {
	Vaccinations(ctx context.Context) ([]legacy.VaccinationRow, error)
}

// ClientIndex lists the clients already in the destination.
type ClientIndex interface {
	ClientKeys(ctx context.Context, tenantID string) ([]store.ClientKey, error)
}

// Catalog reads the destination reference tables pets are matched against.
type Catalog interface {
	BreedCatalog(ctx context.Context) ([]store.CatalogItem, error)
	ColorCatalog(ctx context.Context) ([]store.CatalogItem, error)
}

// VaccineIndex maps the destination's vaccine names to ids.
type VaccineIndex interface {
	VaccineNames(ctx context.Context, tenantID string) (map[string]string, error)
}

// ClinicianDirectory lists the active clinicians of a tenant.
type ClinicianDirectory interface {
	Clinicians(ctx context.Context, tenantID string) ([]clinicians.Clinician, error)
}

// NotesWriter persists one chunk of notes atomically.
type NotesWriter interface {
	WriteNotes(ctx context.Context, batch store.NotesBatch) error
}

// WeightsWriter persists one chunk of weights atomically.
type WeightsWriter interface {
	WriteWeights(ctx context.Context, batch store.WeightsBatch) error
}

// ClientsWriter persists one chunk of clients atomically.
type ClientsWriter interface {
	WriteClients(ctx context.Context, batch store.ClientsBatch) error
}

// PetsWriter persists one chunk of pets atomically.
type PetsWriter interface {
	WritePets(ctx context.Context, batch store.PetsBatch) error
}

// VaccinesWriter persists one chunk of vaccines atomically.
type VaccinesWriter interface {
	WriteVaccines(ctx context.Context, batch store.VaccinesBatch) error
}

// VaccinationsWriter persists one chunk of vaccinations atomically.
type VaccinationsWriter interface {
	WriteVaccinations(ctx context.Context, batch store.VaccinationsBatch) error
}

// Observer receives run events, typically to feed metrics.
type Observer interface {
	ItemProcessed(outcome string)
	EntryResolved(category, resolution string)
	ChunkPersisted(rows int, took time.Duration)
}

type nopObserver struct{}

func (nopObserver) ItemProcessed(string)              {}
func (nopObserver) EntryResolved(string, string)      {}
func (nopObserver) ChunkPersisted(int, time.Duration) {}
