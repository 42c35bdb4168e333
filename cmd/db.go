package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/vicentefritzen/petsys-migracao/config"
	"github.com/vicentefritzen/petsys-migracao/migrations"
	"github.com/vicentefritzen/petsys-migracao/pkg/db"
)

// Database command flags
var (
	dbDryRun bool
	dbTarget string
	dbYes    bool
)

// DbCommandDeps holds the dependencies for database commands.
type DbCommandDeps struct {
	Config      *config.Config
	LoadConfig  func() (*config.Config, error)
	ConnectToDB func(context.Context, *config.Config) (*pgxpool.Pool, error)
}

// DefaultDbDeps returns the default dependencies for production use.
func DefaultDbDeps() *DbCommandDeps {
	return &DbCommandDeps{
		LoadConfig:  config.LoadConfig,
		ConnectToDB: connectWithStoredPassword,
	}
}

func connectWithStoredPassword(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := resolvePasswords(cfg, credentialStore(cfg)); err != nil {
		return nil, err
	}
	return connectToDestination(ctx, cfg)
}

// NewDbCommand creates the root db command with all subcommands.
func NewDbCommand(deps *DbCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDbDeps()
	}

	cmd := &cobra.Command{
		Use:   "db",
		Short: "Destination database schema commands",
		Long: `Manage the destination database schema petmig writes into.

The schema files are embedded in the binary and applied in version order. Each
applied file is recorded in schema_migrations so reruns skip it. They create
the control_ledger table and every table the stages write to (clients, pets,
vaccines, pet_vaccinations, medical_records, prescriptions, pet_weights), plus
the users, breeds and colors reference tables.

Examples:
  # Show migration status
  petmig db status

  # Preview pending migrations
  petmig db migrate --dry-run

  # Apply pending migrations without prompting
  petmig db migrate --yes

  # Check connectivity
  petmig db health`,
		Aliases: []string{"database"},
	}

	cmd.AddCommand(newDbMigrateCommand(deps))
	cmd.AddCommand(newDbStatusCommand(deps))
	cmd.AddCommand(newDbHealthCommand(deps))

	return cmd
}

// newDbMigrateCommand creates the 'db migrate' subcommand.
func newDbMigrateCommand(deps *DbCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply destination schema migrations",
		Long: `Apply pending destination schema migrations.

Pending migrations are listed and confirmed before anything runs. Each file is
applied in its own transaction; on failure that file is rolled back and no
further files are attempted.`,
		Example: `  petmig db migrate
  petmig db migrate --dry-run
  petmig db migrate --target 003 --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDbMigrate(cmd.Context(), cmd.OutOrStdout(), cmd.InOrStdin(), deps)
		},
	}

	cmd.Flags().BoolVar(&dbDryRun, "dry-run", false, "Show what would be applied without executing")
	cmd.Flags().StringVarP(&dbTarget, "target", "t", "", "Target version to migrate to (e.g., 003)")
	cmd.Flags().BoolVarP(&dbYes, "yes", "y", false, "Apply without asking for confirmation")

	return cmd
}

// newDbStatusCommand creates the 'db status' subcommand.
func newDbStatusCommand(deps *DbCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show destination schema migration status",
		Long: `Show applied and pending schema migrations, and drift: versions recorded
in schema_migrations that are no longer embedded in this binary.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDbStatus(cmd.Context(), cmd.OutOrStdout(), deps)
		},
	}
}

// newDbHealthCommand creates the 'db health' subcommand.
func newDbHealthCommand(deps *DbCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the destination connection and schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDbHealth(cmd.Context(), cmd.OutOrStdout(), deps)
		},
	}
}

func connectDb(ctx context.Context, deps *DbCommandDeps) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}
	deps.Config = cfg

	pool, err := deps.ConnectToDB(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	return cfg, pool, nil
}

// runDbMigrate executes the db migrate command.
func runDbMigrate(ctx context.Context, out io.Writer, in io.Reader, deps *DbCommandDeps) error {
	_, pool, err := connectDb(ctx, deps)
	if err != nil {
		return err
	}
	defer db.Close(pool)

	migrator := db.NewMigrator(pool, migrations.FS)
	status, err := migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("getting migration status: %w", err)
	}

	if len(status.Pending) == 0 {
		fmt.Fprintln(out, "No pending migrations.")
		return nil
	}

	fmt.Fprintf(out, "Pending migrations (%d):\n", len(status.Pending))
	for _, m := range status.Pending {
		fmt.Fprintf(out, "  %s - %s\n", m.Version, m.Name)
	}
	fmt.Fprintln(out)

	if dbDryRun {
		fmt.Fprintln(out, "Dry run mode: no migrations applied.")
		return nil
	}

	if !dbYes {
		fmt.Fprint(out, "Apply these migrations? (y/N): ")
		response, _ := bufio.NewReader(in).ReadString('\n')
		if strings.ToLower(strings.TrimSpace(response)) != "y" {
			fmt.Fprintln(out, "Migration cancelled.")
			return nil
		}
	}

	result, err := migrator.Up(ctx, dbTarget)
	if err != nil {
		fmt.Fprintf(out, "\n\033[31mMigration failed:\033[0m %v\n", err)
		if result != nil && len(result.Applied) > 0 {
			fmt.Fprintf(out, "\nApplied before failure:\n")
			for _, v := range result.Applied {
				fmt.Fprintf(out, "  \033[32m✓\033[0m %s\n", v)
			}
		}
		return err
	}

	if len(result.Applied) > 0 {
		fmt.Fprintf(out, "\033[32mApplied %d migration(s):\033[0m\n", len(result.Applied))
		for _, v := range result.Applied {
			fmt.Fprintf(out, "  \033[32m✓\033[0m %s\n", v)
		}
	}
	if len(result.Skipped) > 0 {
		fmt.Fprintf(out, "\nSkipped %d migration(s) (already applied):\n", len(result.Skipped))
		for _, v := range result.Skipped {
			fmt.Fprintf(out, "  - %s\n", v)
		}
	}
	return nil
}

// runDbStatus executes the db status command.
func runDbStatus(ctx context.Context, out io.Writer, deps *DbCommandDeps) error {
	cfg, pool, err := connectDb(ctx, deps)
	if err != nil {
		return err
	}
	defer db.Close(pool)

	status, err := db.NewMigrator(pool, migrations.FS).Status(ctx)
	if err != nil {
		return fmt.Errorf("getting migration status: %w", err)
	}

	if cfg.OutputFormat == config.OutputFormatJSON {
		return writeJSON(out, status)
	}
	printMigrationStatus(out, status)
	return nil
}

func printMigrationStatus(out io.Writer, status *db.MigrationStatus) {
	printEntries := func(title string, entries []db.MigrationStatusEntry, withTime bool) {
		if len(entries) == 0 {
			return
		}
		fmt.Fprintf(out, "%s (%d):\n", title, len(entries))
		for _, m := range entries {
			appliedAt := ""
			if withTime {
				appliedAt = "-"
				if m.AppliedAt != nil {
					appliedAt = m.AppliedAt.Format("2006-01-02 15:04:05")
				}
			}
			fmt.Fprintf(out, "  %-10s %-40s %s\n", m.Version, truncateString(m.Name, 40), appliedAt)
		}
		fmt.Fprintln(out)
	}

	printEntries("\033[32mApplied\033[0m", status.Applied, true)
	printEntries("\033[33mPending\033[0m", status.Pending, false)
	printEntries("\033[31mDrift, applied but not embedded\033[0m", status.Drift, true)

	if len(status.Applied) == 0 && len(status.Pending) == 0 && len(status.Drift) == 0 {
		fmt.Fprintln(out, "No migrations found.")
		return
	}
	fmt.Fprintf(out, "Summary: %d applied, %d pending", len(status.Applied), len(status.Pending))
	if len(status.Drift) > 0 {
		fmt.Fprintf(out, ", %d drift", len(status.Drift))
	}
	fmt.Fprintln(out)
}

// runDbHealth executes the db health command.
func runDbHealth(ctx context.Context, out io.Writer, deps *DbCommandDeps) error {
	cfg, pool, err := connectDb(ctx, deps)
	if err != nil {
		return err
	}
	defer db.Close(pool)

	status := db.Check(ctx, pool)
	if cfg.OutputFormat == config.OutputFormatJSON {
		res := map[string]any{
			"healthy":        status.Healthy,
			"latency_ms":     status.Latency.Milliseconds(),
			"server_version": status.ServerVersion,
			"missing_tables": status.MissingTables,
			"total_conns":    status.TotalConns,
			"idle_conns":     status.IdleConns,
			"acquired_conns": status.AcquiredConns,
		}
		if status.Error != nil {
			res["error"] = status.Error.Error()
		}
		if err := writeJSON(out, res); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "%s: %s\n", cfg.Destination.Redacted(), status.Summary())
	}

	if !status.Healthy {
		return status.Error
	}
	return nil
}

// truncateString truncates s to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
