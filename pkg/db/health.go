package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RequiredTables are the destination tables the migration stages write to or
// read reference data from.
var RequiredTables = []string{
	"control_ledger",
	"users",
	"medical_records",
	"prescriptions",
	"pet_weights",
	"clients",
	"breeds",
	"colors",
	"pets",
	"vaccines",
	"pet_vaccinations",
}

// HealthStatus is the result of probing the destination database.
type HealthStatus struct {
	Healthy       bool
	Latency       time.Duration
	ServerVersion string
	// MissingTables lists RequiredTables absent from the search path.
	MissingTables []string
	TotalConns    int32
	IdleConns     int32
	AcquiredConns int32
	Error         error
}

// Ping checks if the database is reachable.
func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("pool is nil")
	}
	return pool.Ping(ctx)
}

// Check inspects the destination: connectivity, server version, the tables the
// stages need, and pool usage. A reachable database missing any required
// table is reported unhealthy so a stage is never started against an
// unmigrated schema.
func Check(ctx context.Context, pool *pgxpool.Pool) *HealthStatus {
	status := &HealthStatus{}
	if pool == nil {
		status.Error = fmt.Errorf("pool is nil")
		return status
	}

	start := time.Now()
	if err := pool.Ping(ctx); err != nil {
		status.Latency = time.Since(start)
		status.Error = fmt.Errorf("ping failed: %w", err)
		return status
	}
	status.Latency = time.Since(start)

	if err := pool.QueryRow(ctx, "SHOW server_version").Scan(&status.ServerVersion); err != nil {
		status.Error = fmt.Errorf("reading server version: %w", err)
		return status
	}

	missing, err := missingTables(ctx, pool, RequiredTables)
	if err != nil {
		status.Error = err
		return status
	}
	status.MissingTables = missing

	stats := pool.Stat()
	status.TotalConns = stats.TotalConns()
	status.IdleConns = stats.IdleConns()
	status.AcquiredConns = stats.AcquiredConns()

	if len(missing) > 0 {
		status.Error = fmt.Errorf("schema incomplete, run 'petmig db migrate' (missing %s)", strings.Join(missing, ", "))
		return status
	}
	status.Healthy = true
	return status
}

// missingTables returns the names in tables that to_regclass cannot resolve.
func missingTables(ctx context.Context, pool *pgxpool.Pool, tables []string) ([]string, error) {
	rows, err := pool.Query(ctx,
		`SELECT name FROM unnest($1::text[]) AS name WHERE to_regclass(name) IS NULL ORDER BY name`,
		tables)
	if err != nil {
		return nil, fmt.Errorf("checking destination tables: %w", err)
	}
	defer rows.Close()

	var missing []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		missing = append(missing, name)
	}
	return missing, rows.Err()
}

// Summary renders the status on one line for CLI output.
func (s *HealthStatus) Summary() string {
	switch {
	case s == nil:
		return "unknown"
	case !s.Healthy:
		return fmt.Sprintf("unhealthy: %v", s.Error)
	}
	return fmt.Sprintf("healthy (PostgreSQL %s, %s, %d/%d conns in use)",
		s.ServerVersion, s.Latency.Round(time.Millisecond), s.AcquiredConns, s.TotalConns)
}
