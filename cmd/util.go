// Package cmd provides the petmig subcommands.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/vicentefritzen/petsys-migracao/config"
	"github.com/vicentefritzen/petsys-migracao/credentials"
	"github.com/vicentefritzen/petsys-migracao/pkg/db"
	migerrors "github.com/vicentefritzen/petsys-migracao/pkg/errors"
	"github.com/vicentefritzen/petsys-migracao/pkg/legacy"
	"github.com/vicentefritzen/petsys-migracao/pkg/logging"
	"github.com/vicentefritzen/petsys-migracao/pkg/runlock"
)

// connectToDestination opens the destination pool, retrying a few times so
// a database that is still starting does not fail the run.
func connectToDestination(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	dsn := cfg.Destination.ConnectionString()
	if dsn == "" {
		return nil, fmt.Errorf("destination database is not configured: %w", migerrors.ErrConfiguration)
	}
	pool, err := db.ConnectWithRetry(ctx, dsn, db.DefaultOptions(), 3, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Destination.Redacted(), err)
	}
	return pool, nil
}

// openLegacy opens the legacy database read connection.
func openLegacy(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	dsn := cfg.Legacy.ConnectionString()
	if dsn == "" {
		return nil, fmt.Errorf("legacy database is not configured: %w", migerrors.ErrConfiguration)
	}
	conn, err := legacy.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Legacy.Redacted(), err)
	}
	return conn, nil
}

// connectToRedis connects to the lock server. Returns nil when no lock is
// configured.
func connectToRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if cfg.Lock.RedisURL == "" {
		return nil, nil
	}
	return runlock.Connect(ctx, cfg.Lock.RedisURL)
}

// resolvePasswords fills database passwords missing from the environment
// with the ones stored in the keyring. A missing keyring entry is not an
// error: the connection may not need a password.
func resolvePasswords(cfg *config.Config, store *credentials.Store) error {
	targets := []struct {
		name string
		db   *config.DatabaseConfig
	}{
		{credentials.TargetLegacyDB, &cfg.Legacy},
		{credentials.TargetDestDB, &cfg.Destination},
	}
	for _, t := range targets {
		if !t.db.IsConfigured() || t.db.HasPassword() {
			continue
		}
		secret, err := store.Password(t.name)
		switch {
		case err == nil:
			t.db.Password = secret
		case errors.Is(err, credentials.ErrNoCredentials), errors.Is(err, credentials.ErrKeyringUnavailable):
			continue
		default:
			return err
		}
	}
	return nil
}

// newCommandLogger builds the logger for one command run from cfg.
func newCommandLogger(cfg *config.Config, stderr io.Writer, sinks ...logging.Sink) logging.Logger {
	level := logging.ParseLevel(cfg.Logging.Level)
	if cfg.Debug {
		level = logging.LevelDebug
	}

	lc := &logging.Config{
		Level:       level,
		ServiceName: "petmig",
		Environment: cfg.TenantID,
		JSONFormat:  cfg.Logging.JSON,
		Output:      stderr,
		Sinks:       sinks,
	}
	if cfg.Logging.File != "" {
		path, err := config.ExpandPath(cfg.Logging.File)
		if err != nil {
			path = cfg.Logging.File
		}
		lc.File = &logging.FileConfig{Path: path, Compress: true}
	}
	return logging.NewLogger(lc)
}

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatDuration formats a duration for text output.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
}
