package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vicentefritzen/petsys-migracao/pkg/clinicians"
	"github.com/vicentefritzen/petsys-migracao/pkg/db"
	"github.com/vicentefritzen/petsys-migracao/pkg/ledger"
)

var (
	medicalRecordColumns = []string{
		"id", "tenant_id", "pet_id", "occurred_at", "clinician_id", "note_text", "lab_source_label",
	}
	prescriptionColumns = []string{
		"id", "tenant_id", "pet_id", "occurred_at", "clinician_id", "prescription_text", "controlled",
	}
	petWeightColumns = []string{
		"id", "tenant_id", "pet_id", "clinician_id", "weight_kg", "weighed_at",
	}
)

// Postgres is the destination database.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres wraps pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{db: pool}
}

// WriteNotes inserts the batch's records and rewrites its ledger entries in a
// single transaction.
func (s *Postgres) WriteNotes(ctx context.Context, batch NotesBatch) error {
	if err := batch.Validate(); err != nil {
		return err
	}

	return db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		if len(batch.MedicalRecords) > 0 {
			_, err := tx.CopyFrom(ctx, pgx.Identifier{"medical_records"}, medicalRecordColumns,
				pgx.CopyFromSlice(len(batch.MedicalRecords), func(i int) ([]any, error) {
					return medicalRecordRow(batch.MedicalRecords[i]), nil
				}))
			if err != nil {
				return fmt.Errorf("bulk inserting medical records: %w", err)
			}
		}

		if len(batch.Prescriptions) > 0 {
			_, err := tx.CopyFrom(ctx, pgx.Identifier{"prescriptions"}, prescriptionColumns,
				pgx.CopyFromSlice(len(batch.Prescriptions), func(i int) ([]any, error) {
					return prescriptionRow(batch.Prescriptions[i]), nil
				}))
			if err != nil {
				return fmt.Errorf("bulk inserting prescriptions: %w", err)
			}
		}

		return ledger.ReplaceTx(ctx, tx, batch.Ledger)
	})
}

// WriteWeights inserts new weights, updates already-migrated ones in place
// and rewrites ledger entries in a single transaction.
func (s *Postgres) WriteWeights(ctx context.Context, batch WeightsBatch) error {
	if err := batch.Validate(); err != nil {
		return err
	}

	return db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		if len(batch.Inserts) > 0 {
			_, err := tx.CopyFrom(ctx, pgx.Identifier{"pet_weights"}, petWeightColumns,
				pgx.CopyFromSlice(len(batch.Inserts), func(i int) ([]any, error) {
					return petWeightRow(batch.Inserts[i]), nil
				}))
			if err != nil {
				return fmt.Errorf("bulk inserting pet weights: %w", err)
			}
		}

		if len(batch.Updates) > 0 {
			now := time.Now().UTC()
			b := &pgx.Batch{}
			for _, w := range batch.Updates {
				b.Queue(`
					UPDATE pet_weights
					SET pet_id = $3, clinician_id = $4, weight_kg = $5, weighed_at = $6, updated_at = $7
					WHERE id = $1 AND tenant_id = $2`,
					w.RecordID.String(), w.TenantID, w.PetID, w.ClinicianID, w.WeightKg, nullTime(w.WeighedAt), now)
			}
			if err := tx.SendBatch(ctx, b).Close(); err != nil {
				return fmt.Errorf("updating pet weights: %w", err)
			}
		}

		return ledger.ReplaceTx(ctx, tx, batch.Ledger)
	})
}

// Clinicians returns the tenant's active users. The result is the roster the
// name matcher resolves note authors against.
func (s *Postgres) Clinicians(ctx context.Context, tenantID string) ([]clinicians.Clinician, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id::text, name
		FROM users
		WHERE tenant_id = $1 AND active
		ORDER BY name, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying active users: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (clinicians.Clinician, error) {
		var c clinicians.Clinician
		err := row.Scan(&c.ID, &c.Name)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning users: %w", err)
	}
	return out, nil
}
