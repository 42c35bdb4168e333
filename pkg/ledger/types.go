// Package ledger records which legacy rows have been migrated and where they
// landed. Every stage consults it before writing and rewrites it afterwards,
// which is what makes reruns idempotent.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	migerrors "github.com/vicentefritzen/petsys-migracao/pkg/errors"
)

// DestMultiple is the destination value recorded when one source row fans
// out into several destination rows.
const DestMultiple = "MULTIPLE"

// Mapping names a (source table, destination table) pair and the key fields
// on each side.
type Mapping struct {
	SourceTable    string
	SourceKeyField string
	DestTable      string
	DestKeyField   string
}

// Well-known mappings.
var (
	// ClientMapping is written by the clients stage; the pets stage reads it
	// to find each pet's owner.
	ClientMapping = Mapping{
		SourceTable:    "PET_CLIENTE",
		SourceKeyField: "Codigo",
		DestTable:      "PESSOA",
		DestKeyField:   "sCdPessoa",
	}

	// PetMapping is written by the pets stage; every later stage reads it.
	PetMapping = Mapping{
		SourceTable:    "PET_ANIMAL",
		SourceKeyField: "Codigo",
		DestTable:      "PET",
		DestKeyField:   "sCdPet",
	}

	// NotesMapping records one row per clinical note blob.
	NotesMapping = Mapping{
		SourceTable:    "PET_ANIMAL_PRONTUARIO",
		SourceKeyField: "Codigo",
		DestTable:      "PRONTUARIO",
		DestKeyField:   "sCdProntuario",
	}

	// VaccineMapping is written by the vaccines stage; vaccinations read it.
	VaccineMapping = Mapping{
		SourceTable:    "PET_VACINA",
		SourceKeyField: "Codigo",
		DestTable:      "VACINA",
		DestKeyField:   "sCdVacina",
	}

	// VaccinationMapping records one row per vaccine application.
	VaccinationMapping = Mapping{
		SourceTable:    "PET_ANIMAL_VACINA",
		SourceKeyField: "Codigo",
		DestTable:      "PET_VACINA",
		DestKeyField:   "sCdPetVacina",
	}

	// WeightsMapping records one row per weight measurement.
	WeightsMapping = Mapping{
		SourceTable:    "PET_ANIMAL_PESO",
		SourceKeyField: "Codigo",
		DestTable:      "PET_PESO",
		DestKeyField:   "sCdPetPeso",
	}
)

// Entry builds a ledger entry for this mapping.
func (m Mapping) Entry(tenantID, sourceKey, destValue string, at time.Time) Entry {
	return Entry{
		TenantID:       tenantID,
		SourceTable:    m.SourceTable,
		SourceKeyField: m.SourceKeyField,
		SourceKeyValue: sourceKey,
		DestTable:      m.DestTable,
		DestKeyField:   m.DestKeyField,
		DestKeyValue:   destValue,
		MigratedAt:     at,
	}
}

// Entry is one origin to destination mapping.
type Entry struct {
	TenantID       string
	SourceTable    string
	SourceKeyField string
	SourceKeyValue string
	DestTable      string
	DestKeyField   string
	DestKeyValue   string
	MigratedAt     time.Time
}

type entryKey struct {
	tenant, sourceTable, sourceKey, destTable string
}

func (e Entry) key() entryKey {
	return entryKey{e.TenantID, e.SourceTable, e.SourceKeyValue, e.DestTable}
}

// Validate reports the first missing field.
func (e Entry) Validate() error {
	fields := []struct{ name, value string }{
		{"tenant_id", e.TenantID},
		{"source_table", e.SourceTable},
		{"source_key_field", e.SourceKeyField},
		{"source_key_value", e.SourceKeyValue},
		{"dest_table", e.DestTable},
		{"dest_key_field", e.DestKeyField},
		{"dest_key_value", e.DestKeyValue},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: ledger entry missing %s", migerrors.ErrValidation, f.name)
		}
	}
	return nil
}

// Count is the number of mappings for a table pair.
type Count struct {
	SourceTable  string
	DestTable    string
	Entries      int64
	LastMigrated time.Time
}

// Reader resolves source keys to destination values for a mapping.
type Reader interface {
	// Destinations returns source key value to destination key value for
	// every active mapping of m under tenantID.
	Destinations(ctx context.Context, tenantID string, m Mapping) (map[string]string, error)
}

// Ledger is the full Control Ledger.
type Ledger interface {
	Reader

	// Replace deletes any mapping with the same (tenant, source table,
	// source key, destination table) and inserts entries, atomically.
	Replace(ctx context.Context, entries []Entry) error

	// Lookup returns every mapping of one source key.
	Lookup(ctx context.Context, tenantID, sourceTable, sourceKey string) ([]Entry, error)

	// Counts summarises the tenant's mappings per table pair.
	Counts(ctx context.Context, tenantID string) ([]Count, error)
}

// ValidateAll validates entries and rejects duplicate keys within the batch.
func ValidateAll(entries []Entry) error {
	seen := make(map[entryKey]bool, len(entries))
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
		k := e.key()
		if seen[k] {
			return fmt.Errorf("%w: duplicate ledger entry for %s %s -> %s",
				migerrors.ErrValidation, e.SourceTable, e.SourceKeyValue, e.DestTable)
		}
		seen[k] = true
	}
	return nil
}
