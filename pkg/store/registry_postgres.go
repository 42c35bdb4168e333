package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vicentefritzen/petsys-migracao/pkg/db"
	"github.com/vicentefritzen/petsys-migracao/pkg/ledger"
	"github.com/vicentefritzen/petsys-migracao/pkg/textnorm"
)

// upsertTable describes how one record type lands in its table. The update
// statement takes updateArgs, whose last value is updated_at.
type upsertTable[T any] struct {
	name       string
	columns    []string
	row        func(T) []any
	update     string
	updateArgs func(T, time.Time) []any
}

var (
	clientsTable = upsertTable[Client]{
		name: "clients",
		columns: []string{
			"id", "tenant_id", "name", "document", "person_type", "email", "phone1", "phone2",
			"street", "street_no", "complement", "district", "postal_code", "city_id", "notes",
			"active", "registered_at",
		},
		row: clientRow,
		update: `
			UPDATE clients
			SET name = $3, document = $4, person_type = $5, email = $6, phone1 = $7, phone2 = $8,
				street = $9, street_no = $10, complement = $11, district = $12, postal_code = $13,
				city_id = $14, notes = $15, active = $16, registered_at = $17, updated_at = $18
			WHERE id = $1 AND tenant_id = $2`,
		updateArgs: func(c Client, now time.Time) []any { return append(clientRow(c), now) },
	}

	petsTable = upsertTable[Pet]{
		name: "pets",
		columns: []string{
			"id", "tenant_id", "owner_id", "name", "species_id", "breed_id", "sex_id", "size_id",
			"color_id", "born_on", "notes", "active", "registered_at",
		},
		row: petRow,
		update: `
			UPDATE pets
			SET owner_id = $3, name = $4, species_id = $5, breed_id = $6, sex_id = $7, size_id = $8,
				color_id = $9, born_on = $10, notes = $11, active = $12, registered_at = $13, updated_at = $14
			WHERE id = $1 AND tenant_id = $2`,
		updateArgs: func(p Pet, now time.Time) []any { return append(petRow(p), now) },
	}

	vaccinesTable = upsertTable[Vaccine]{
		name: "vaccines",
		columns: []string{
			"id", "tenant_id", "name", "species_id", "frequency", "period_id",
			"purchase_price", "sale_price", "active",
		},
		row: vaccineRow,
		update: `
			UPDATE vaccines
			SET name = $3, species_id = $4, frequency = $5, period_id = $6,
				purchase_price = $7, sale_price = $8, active = $9, updated_at = $10
			WHERE id = $1 AND tenant_id = $2`,
		updateArgs: func(v Vaccine, now time.Time) []any { return append(vaccineRow(v), now) },
	}

	vaccinationsTable = upsertTable[Vaccination]{
		name: "pet_vaccinations",
		columns: []string{
			"id", "tenant_id", "pet_id", "vaccine_id", "batch_code", "laboratory",
			"due_at", "applied_at", "applied",
		},
		row: vaccinationRow,
		update: `
			UPDATE pet_vaccinations
			SET pet_id = $3, vaccine_id = $4, batch_code = $5, laboratory = $6,
				due_at = $7, applied_at = $8, applied = $9, updated_at = $10
			WHERE id = $1 AND tenant_id = $2`,
		updateArgs: func(v Vaccination, now time.Time) []any { return append(vaccinationRow(v), now) },
	}
)

// writeUpsert copies the inserts, updates the rest in place and rewrites the
// ledger entries in a single transaction.
func writeUpsert[T any](ctx context.Context, s *Postgres, t upsertTable[T], batch Batch[T]) error {
	return db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		if len(batch.Inserts) > 0 {
			_, err := tx.CopyFrom(ctx, pgx.Identifier{t.name}, t.columns,
				pgx.CopyFromSlice(len(batch.Inserts), func(i int) ([]any, error) {
					return t.row(batch.Inserts[i]), nil
				}))
			if err != nil {
				return fmt.Errorf("bulk inserting %s: %w", t.name, err)
			}
		}

		if len(batch.Updates) > 0 {
			now := time.Now().UTC()
			b := &pgx.Batch{}
			for _, r := range batch.Updates {
				b.Queue(t.update, t.updateArgs(r, now)...)
			}
			if err := tx.SendBatch(ctx, b).Close(); err != nil {
				return fmt.Errorf("updating %s: %w", t.name, err)
			}
		}

		return ledger.ReplaceTx(ctx, tx, batch.Ledger)
	})
}

// WriteClients writes one chunk of the clients stage.
func (s *Postgres) WriteClients(ctx context.Context, batch ClientsBatch) error {
	if err := batch.validate(Client.validate); err != nil {
		return err
	}
	return writeUpsert(ctx, s, clientsTable, batch)
}

// WritePets writes one chunk of the pets stage.
func (s *Postgres) WritePets(ctx context.Context, batch PetsBatch) error {
	if err := batch.validate(Pet.validate); err != nil {
		return err
	}
	return writeUpsert(ctx, s, petsTable, batch)
}

// WriteVaccines writes one chunk of the vaccines stage.
func (s *Postgres) WriteVaccines(ctx context.Context, batch VaccinesBatch) error {
	if err := batch.validate(Vaccine.validate); err != nil {
		return err
	}
	return writeUpsert(ctx, s, vaccinesTable, batch)
}

// WriteVaccinations writes one chunk of the vaccinations stage.
func (s *Postgres) WriteVaccinations(ctx context.Context, batch VaccinationsBatch) error {
	if err := batch.validate(Vaccination.validate); err != nil {
		return err
	}
	return writeUpsert(ctx, s, vaccinationsTable, batch)
}

// ClientKey identifies an existing client.
type ClientKey struct {
	ID       string
	Document string
}

// ClientKeys lists the tenant's clients, oldest first.
func (s *Postgres) ClientKeys(ctx context.Context, tenantID string) ([]ClientKey, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id::text, document
		FROM clients
		WHERE tenant_id = $1
		ORDER BY created_at, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying clients: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[ClientKey])
	if err != nil {
		return nil, fmt.Errorf("scanning clients: %w", err)
	}
	return out, nil
}

// VaccineNames maps the tenant's vaccine names, uppercased and trimmed, to
// their ids. The oldest vaccine wins a duplicated name.
func (s *Postgres) VaccineNames(ctx context.Context, tenantID string) (map[string]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id::text, name
		FROM vaccines
		WHERE tenant_id = $1
		ORDER BY created_at, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying vaccines: %w", err)
	}

	out := make(map[string]string)
	var id, name string
	_, err = pgx.ForEachRow(rows, []any{&id, &name}, func() error {
		key := textnorm.Upper(name)
		if _, taken := out[key]; !taken {
			out[key] = id
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning vaccines: %w", err)
	}
	return out, nil
}

// CatalogItem is one row of a destination reference table.
type CatalogItem struct {
	ID        int
	Name      string
	SpeciesID int // breeds only
}

// BreedCatalog returns the active breeds ordered by id.
func (s *Postgres) BreedCatalog(ctx context.Context) ([]CatalogItem, error) {
	return s.catalog(ctx, "breeds", `SELECT id, name, species_id FROM breeds WHERE active ORDER BY id`)
}

// ColorCatalog returns the active colours ordered by id.
func (s *Postgres) ColorCatalog(ctx context.Context) ([]CatalogItem, error) {
	return s.catalog(ctx, "colors", `SELECT id, name, 0 FROM colors WHERE active ORDER BY id`)
}

func (s *Postgres) catalog(ctx context.Context, table, query string) ([]CatalogItem, error) {
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[CatalogItem])
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", table, err)
	}
	return out, nil
}
