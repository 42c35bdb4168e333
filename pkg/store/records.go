// Package store writes migrated records to the destination database and
// reads the clinician roster from it.
package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	migerrors "github.com/vicentefritzen/petsys-migracao/pkg/errors"
	"github.com/vicentefritzen/petsys-migracao/pkg/ledger"
)

// MedicalRecord is a consultation note or lab result.
type MedicalRecord struct {
	RecordID       uuid.UUID
	TenantID       string
	PetID          string
	OccurredAt     time.Time
	ClinicianID    string
	NoteText       string
	LabSourceLabel string // original author, only for lab results
}

// PrescriptionRecord is a prescription attributed to a clinician.
type PrescriptionRecord struct {
	RecordID         uuid.UUID
	TenantID         string
	PetID            string
	OccurredAt       time.Time
	ClinicianID      string
	PrescriptionText string
	Controlled       bool
}

// PetWeight is one weight measurement in kilograms.
type PetWeight struct {
	RecordID    uuid.UUID
	TenantID    string
	PetID       string
	ClinicianID string
	WeightKg    float64
	WeighedAt   time.Time // zero stores NULL
}

// NotesBatch is one chunk of the notes stage. It is written atomically.
type NotesBatch struct {
	MedicalRecords []MedicalRecord
	Prescriptions  []PrescriptionRecord
	Ledger         []ledger.Entry
}

// Len is the number of destination rows in the batch, ledger excluded.
func (b NotesBatch) Len() int {
	return len(b.MedicalRecords) + len(b.Prescriptions)
}

// WeightsBatch is one chunk of the weights stage. Updates reuse the record id
// found in the ledger.
type WeightsBatch struct {
	Inserts []PetWeight
	Updates []PetWeight
	Ledger  []ledger.Entry
}

// Len is the number of destination rows in the batch, ledger excluded.
func (b WeightsBatch) Len() int {
	return len(b.Inserts) + len(b.Updates)
}

func requireFields(kind string, id uuid.UUID, fields ...string) error {
	if id == uuid.Nil {
		return fmt.Errorf("%w: %s without record id", migerrors.ErrValidation, kind)
	}
	for _, f := range fields {
		if f == "" {
			return fmt.Errorf("%w: %s %s has an empty required field", migerrors.ErrValidation, kind, id)
		}
	}
	return nil
}

// Validate checks every record carries the ids the schema requires.
func (b NotesBatch) Validate() error {
	for _, r := range b.MedicalRecords {
		if err := requireFields("medical record", r.RecordID, r.TenantID, r.PetID, r.ClinicianID); err != nil {
			return err
		}
	}
	for _, r := range b.Prescriptions {
		if err := requireFields("prescription", r.RecordID, r.TenantID, r.PetID, r.ClinicianID); err != nil {
			return err
		}
	}
	return ledger.ValidateAll(b.Ledger)
}

// Validate checks every weight carries the ids the schema requires and fits
// NUMERIC(6,3).
func (b WeightsBatch) Validate() error {
	for _, group := range [][]PetWeight{b.Inserts, b.Updates} {
		for _, w := range group {
			if err := requireFields("pet weight", w.RecordID, w.TenantID, w.PetID, w.ClinicianID); err != nil {
				return err
			}
			if w.WeightKg < 0 || w.WeightKg > MaxWeightKg {
				return fmt.Errorf("%w: pet weight %s out of range: %v", migerrors.ErrValidation, w.RecordID, w.WeightKg)
			}
		}
	}
	return ledger.ValidateAll(b.Ledger)
}

// MaxWeightKg is the largest value pet_weights.weight_kg can hold.
const MaxWeightKg = 999.999

func medicalRecordRow(r MedicalRecord) []any {
	return []any{r.RecordID.String(), r.TenantID, r.PetID, r.OccurredAt, r.ClinicianID, r.NoteText, r.LabSourceLabel}
}

func prescriptionRow(r PrescriptionRecord) []any {
	return []any{r.RecordID.String(), r.TenantID, r.PetID, r.OccurredAt, r.ClinicianID, r.PrescriptionText, r.Controlled}
}

func petWeightRow(w PetWeight) []any {
	return []any{w.RecordID.String(), w.TenantID, w.PetID, w.ClinicianID, w.WeightKg, nullTime(w.WeighedAt)}
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
