// Package legacy reads the clinic's old PetSys tables. It never writes.
package legacy

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// NoteBlob is one row of PET_ANIMAL_PRONTUARIO: a pet's whole clinical
// history as a single free-text field.
type NoteBlob struct {
	SourceID int64
	PetID    int64
	Tag      string
}

// WeightRow is one row of PET_ANIMAL_PESO.
type WeightRow struct {
	SourceID   int64
	PetID      int64
	MeasuredAt time.Time // zero when the legacy row has no date
	Weight     float64
}

type noteRow struct {
	Codigo int64          `db:"codigo"`
	Animal int64          `db:"animal"`
	Tag    sql.NullString `db:"tag"`
}

type weightRow struct {
	Codigo int64           `db:"codigo"`
	Animal int64           `db:"animal"`
	Data   sql.NullTime    `db:"data"`
	Peso   sql.NullFloat64 `db:"peso"`
}

const (
	noteBlobsQuery = `
		SELECT Codigo AS codigo, Animal AS animal, Tag AS tag
		FROM PET_ANIMAL_PRONTUARIO
		WHERE Tag IS NOT NULL
		ORDER BY Codigo`

	weightsQuery = `
		SELECT Codigo AS codigo, Animal AS animal, Data AS data, Peso AS peso
		FROM PET_ANIMAL_PESO
		ORDER BY Codigo`

	countNoteBlobsQuery = `SELECT COUNT(*) FROM PET_ANIMAL_PRONTUARIO WHERE Tag IS NOT NULL`
)

// Reader loads legacy rows. The whole result set is held in memory; a clinic's
// history fits comfortably.
type Reader struct {
	db *sqlx.DB
}

// Open connects to the legacy database through lib/pq.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("legacy connection string is required")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to legacy database: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	return db, nil
}

// NewReader wraps an open connection.
func NewReader(db *sqlx.DB) *Reader {
	return &Reader{db: db}
}

// NoteBlobs returns every non-null note blob ordered by source id.
func (r *Reader) NoteBlobs(ctx context.Context) ([]NoteBlob, error) {
	var rows []noteRow
	if err := r.db.SelectContext(ctx, &rows, noteBlobsQuery); err != nil {
		return nil, fmt.Errorf("reading PET_ANIMAL_PRONTUARIO: %w", err)
	}

	blobs := make([]NoteBlob, 0, len(rows))
	for _, row := range rows {
		blobs = append(blobs, NoteBlob{SourceID: row.Codigo, PetID: row.Animal, Tag: row.Tag.String})
	}
	return blobs, nil
}

// CountNoteBlobs returns how many blobs NoteBlobs would load.
func (r *Reader) CountNoteBlobs(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, countNoteBlobsQuery); err != nil {
		return 0, fmt.Errorf("counting PET_ANIMAL_PRONTUARIO: %w", err)
	}
	return n, nil
}

// Weights returns every weight measurement ordered by source id. A null
// weight reads as zero.
func (r *Reader) Weights(ctx context.Context) ([]WeightRow, error) {
	var rows []weightRow
	if err := r.db.SelectContext(ctx, &rows, weightsQuery); err != nil {
		return nil, fmt.Errorf("reading PET_ANIMAL_PESO: %w", err)
	}

	out := make([]WeightRow, 0, len(rows))
	for _, row := range rows {
		w := WeightRow{SourceID: row.Codigo, PetID: row.Animal, Weight: row.Peso.Float64}
		if row.Data.Valid {
			w.MeasuredAt = row.Data.Time
		}
		out = append(out, w)
	}
	return out, nil
}
