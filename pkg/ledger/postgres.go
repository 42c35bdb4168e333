package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vicentefritzen/petsys-migracao/pkg/db"
)

const tableName = "control_ledger"

var copyColumns = []string{
	"tenant_id", "source_table", "source_key_field", "source_key_value",
	"dest_table", "dest_key_field", "dest_key_value", "migrated_at",
}

// PostgresLedger implements Ledger on the control_ledger table.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger creates a ledger backed by pool.
func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: pool}
}

// Destinations implements Reader.
func (l *PostgresLedger) Destinations(ctx context.Context, tenantID string, m Mapping) (map[string]string, error) {
	rows, err := l.db.Query(ctx, `
		SELECT source_key_value, dest_key_value
		FROM control_ledger
		WHERE tenant_id = $1 AND source_table = $2 AND dest_table = $3`,
		tenantID, m.SourceTable, m.DestTable)
	if err != nil {
		return nil, fmt.Errorf("querying %s -> %s mappings: %w", m.SourceTable, m.DestTable, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var src, dst string
		if err := rows.Scan(&src, &dst); err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}
		out[src] = dst
	}
	return out, rows.Err()
}

// Replace implements Ledger in its own transaction.
func (l *PostgresLedger) Replace(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return db.InTx(ctx, l.db, func(tx pgx.Tx) error {
		return ReplaceTx(ctx, tx, entries)
	})
}

// ReplaceTx deletes existing mappings for entries' keys and bulk inserts
// entries using tx. Callers that persist destination rows in the same
// transaction use this so records and ledger commit together.
func ReplaceTx(ctx context.Context, tx pgx.Tx, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := ValidateAll(entries); err != nil {
		return err
	}

	type group struct{ tenant, src, dst string }
	keys := make(map[group][]string)
	var order []group
	for _, e := range entries {
		g := group{e.TenantID, e.SourceTable, e.DestTable}
		if _, ok := keys[g]; !ok {
			order = append(order, g)
		}
		keys[g] = append(keys[g], e.SourceKeyValue)
	}

	for _, g := range order {
		_, err := tx.Exec(ctx, `
			DELETE FROM control_ledger
			WHERE tenant_id = $1 AND source_table = $2 AND dest_table = $3
			  AND source_key_value = ANY($4)`,
			g.tenant, g.src, g.dst, keys[g])
		if err != nil {
			return fmt.Errorf("deleting previous %s mappings: %w", g.src, err)
		}
	}

	now := time.Now().UTC()
	_, err := tx.CopyFrom(ctx, pgx.Identifier{tableName}, copyColumns,
		pgx.CopyFromSlice(len(entries), func(i int) ([]any, error) {
			e := entries[i]
			at := e.MigratedAt
			if at.IsZero() {
				at = now
			}
			return []any{
				e.TenantID, e.SourceTable, e.SourceKeyField, e.SourceKeyValue,
				e.DestTable, e.DestKeyField, e.DestKeyValue, at,
			}, nil
		}))
	if err != nil {
		return fmt.Errorf("bulk inserting ledger entries: %w", err)
	}
	return nil
}

// Lookup implements Ledger.
func (l *PostgresLedger) Lookup(ctx context.Context, tenantID, sourceTable, sourceKey string) ([]Entry, error) {
	rows, err := l.db.Query(ctx, `
		SELECT tenant_id::text, source_table, source_key_field, source_key_value,
		       dest_table, dest_key_field, dest_key_value, migrated_at
		FROM control_ledger
		WHERE tenant_id = $1 AND source_table = $2 AND source_key_value = $3
		ORDER BY dest_table`,
		tenantID, sourceTable, sourceKey)
	if err != nil {
		return nil, fmt.Errorf("looking up %s %s: %w", sourceTable, sourceKey, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.TenantID, &e.SourceTable, &e.SourceKeyField, &e.SourceKeyValue,
			&e.DestTable, &e.DestKeyField, &e.DestKeyValue, &e.MigratedAt); err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Counts implements Ledger.
func (l *PostgresLedger) Counts(ctx context.Context, tenantID string) ([]Count, error) {
	rows, err := l.db.Query(ctx, `
		SELECT source_table, dest_table, COUNT(*), MAX(migrated_at)
		FROM control_ledger
		WHERE tenant_id = $1
		GROUP BY source_table, dest_table
		ORDER BY source_table, dest_table`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("counting ledger entries: %w", err)
	}
	defer rows.Close()

	var out []Count
	for rows.Next() {
		var c Count
		if err := rows.Scan(&c.SourceTable, &c.DestTable, &c.Entries, &c.LastMigrated); err != nil {
			return nil, fmt.Errorf("scanning ledger count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
