package db

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Migration is one schema file.
type Migration struct {
	Version string
	Name    string
}

// MigrationResult lists what a run applied and skipped.
type MigrationResult struct {
	Applied []string
	Skipped []string
}

// MigrationStatusEntry is a single migration in a status report.
type MigrationStatusEntry struct {
	Version   string
	Name      string
	AppliedAt *time.Time // nil when pending
}

// MigrationStatus groups migrations by state.
type MigrationStatus struct {
	Applied []MigrationStatusEntry // recorded and present in the source
	Pending []MigrationStatusEntry // present but not recorded
	Drift   []MigrationStatusEntry // recorded but missing from the source
}

// Migrator applies ordered .sql files from an fs.FS, recording each in
// schema_migrations so reruns skip it.
type Migrator struct {
	pool   *pgxpool.Pool
	source fs.FS
}

// NewMigrator creates a migrator reading files from the root of source.
func NewMigrator(pool *pgxpool.Pool, source fs.FS) *Migrator {
	return &Migrator{pool: pool, source: source}
}

// Up applies every pending migration in order. When target is non-empty it
// stops after that version, which must exist.
func (m *Migrator) Up(ctx context.Context, target string) (*MigrationResult, error) {
	if m.pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}

	migrations, err := FindMigrations(m.source)
	if err != nil {
		return nil, fmt.Errorf("failed to find migrations: %w", err)
	}

	last := len(migrations) - 1
	if target != "" {
		last = indexOfVersion(migrations, normalizeVersion(target))
		if last < 0 {
			return nil, fmt.Errorf("target version %s not found in migrations", target)
		}
	}

	if err := ensureMigrationsTable(ctx, m.pool); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedMigrations(ctx, m.pool)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	result := &MigrationResult{}
	for _, mig := range migrations[:last+1] {
		if _, ok := applied[mig.Version]; ok {
			result.Skipped = append(result.Skipped, mig.Version)
			continue
		}

		if err := m.apply(ctx, mig); err != nil {
			return result, fmt.Errorf("migration %s failed: %w", mig.Version, err)
		}
		result.Applied = append(result.Applied, mig.Version)
	}

	return result, nil
}

// Status reports applied, pending and drifted migrations.
func (m *Migrator) Status(ctx context.Context) (*MigrationStatus, error) {
	if m.pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}

	migrations, err := FindMigrations(m.source)
	if err != nil {
		return nil, fmt.Errorf("failed to find migrations: %w", err)
	}

	if err := ensureMigrationsTable(ctx, m.pool); err != nil {
		return nil, fmt.Errorf("failed to ensure migrations table: %w", err)
	}

	applied, err := appliedMigrations(ctx, m.pool)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	return buildStatus(migrations, applied), nil
}

func buildStatus(migrations []Migration, applied map[string]time.Time) *MigrationStatus {
	status := &MigrationStatus{
		Applied: []MigrationStatusEntry{},
		Pending: []MigrationStatusEntry{},
		Drift:   []MigrationStatusEntry{},
	}

	known := make(map[string]bool, len(migrations))
	for _, mig := range migrations {
		known[mig.Version] = true
		if at, ok := applied[mig.Version]; ok {
			at := at
			status.Applied = append(status.Applied, MigrationStatusEntry{Version: mig.Version, Name: mig.Name, AppliedAt: &at})
		} else {
			status.Pending = append(status.Pending, MigrationStatusEntry{Version: mig.Version, Name: mig.Name})
		}
	}

	for version, at := range applied {
		if known[version] {
			continue
		}
		at := at
		status.Drift = append(status.Drift, MigrationStatusEntry{Version: version, Name: version + ".sql", AppliedAt: &at})
	}
	sort.Slice(status.Drift, func(i, j int) bool { return status.Drift[i].Version < status.Drift[j].Version })

	return status
}

// FindMigrations lists the .sql files at the root of source in version order.
func FindMigrations(source fs.FS) ([]Migration, error) {
	if source == nil {
		return nil, fmt.Errorf("migration source is nil")
	}

	entries, err := fs.ReadDir(source, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(path.Ext(entry.Name()), ".sql") {
			continue
		}
		migrations = append(migrations, Migration{
			Version: normalizeVersion(entry.Name()),
			Name:    entry.Name(),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// normalizeVersion strips a trailing .sql (any case).
func normalizeVersion(v string) string {
	if len(v) > 4 && strings.EqualFold(v[len(v)-4:], ".sql") {
		return v[:len(v)-4]
	}
	return v
}

func indexOfVersion(migrations []Migration, version string) int {
	for i, mig := range migrations {
		if mig.Version == version {
			return i
		}
	}
	return -1
}

func ensureMigrationsTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	return err
}

func appliedMigrations(ctx context.Context, pool *pgxpool.Pool) (map[string]time.Time, error) {
	applied := make(map[string]time.Time)

	rows, err := pool.Query(ctx, "SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var version string
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, err
		}
		applied[normalizeVersion(version)] = appliedAt
	}
	return applied, rows.Err()
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	content, err := fs.ReadFile(m.source, mig.Name)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if strings.TrimSpace(string(content)) == "" {
		return fmt.Errorf("migration file is empty")
	}

	return InTx(ctx, m.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("failed to execute SQL: %w", err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", mig.Name); err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}
		return nil
	})
}
