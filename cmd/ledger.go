package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vicentefritzen/petsys-migracao/config"
	"github.com/vicentefritzen/petsys-migracao/pkg/db"
	"github.com/vicentefritzen/petsys-migracao/pkg/ledger"
)

// LedgerCommandDeps holds the dependencies for ledger commands.
type LedgerCommandDeps struct {
	Config     *config.Config
	LoadConfig func() (*config.Config, error)
	// OpenLedger returns the ledger and a func releasing its connection.
	OpenLedger func(context.Context, *config.Config) (ledger.Ledger, func(), error)
}

// DefaultLedgerDeps returns the default dependencies for production use.
func DefaultLedgerDeps() *LedgerCommandDeps {
	return &LedgerCommandDeps{
		LoadConfig: config.LoadConfig,
		OpenLedger: openPostgresLedger,
	}
}

func openPostgresLedger(ctx context.Context, cfg *config.Config) (ledger.Ledger, func(), error) {
	if err := resolvePasswords(cfg, credentialStore(cfg)); err != nil {
		return nil, nil, err
	}
	pool, err := connectToDestination(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return ledger.NewPostgresLedger(pool), func() { db.Close(pool) }, nil
}

// NewLedgerCommand creates the root ledger command with all subcommands.
func NewLedgerCommand(deps *LedgerCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultLedgerDeps()
	}

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the Control Ledger",
		Long: `Inspect the Control Ledger, the table mapping every migrated legacy row to
the destination rows it produced.

Every stage reads the ledger to skip or update rows migrated before, and
rewrites it in the same transaction as the rows it writes.

Examples:
  # Mappings per table pair for the configured tenant
  petmig ledger status

  # Where did legacy note blob 1234 go?
  petmig ledger lookup PET_ANIMAL_PRONTUARIO 1234`,
	}

	cmd.AddCommand(newLedgerStatusCommand(deps))
	cmd.AddCommand(newLedgerLookupCommand(deps))

	return cmd
}

// newLedgerStatusCommand creates the 'ledger status' subcommand.
func newLedgerStatusCommand(deps *LedgerCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Count mappings per source and destination table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedgerStatus(cmd.Context(), cmd.OutOrStdout(), deps)
		},
	}
}

// newLedgerLookupCommand creates the 'ledger lookup' subcommand.
func newLedgerLookupCommand(deps *LedgerCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <source-table> <source-key>",
		Short: "Show the mappings of one legacy row",
		Long: `Show every destination a legacy row was migrated to.

The source table is matched case-insensitively against the names the stages
record (PET_ANIMAL, PET_ANIMAL_PRONTUARIO, PET_ANIMAL_PESO).`,
		Example: `  petmig ledger lookup PET_ANIMAL 42
  petmig ledger lookup pet_animal_peso 981 --output json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedgerLookup(cmd.Context(), cmd.OutOrStdout(), deps, args[0], args[1])
		},
	}
}

func loadLedger(ctx context.Context, deps *LedgerCommandDeps) (*config.Config, ledger.Ledger, func(), error) {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading configuration: %w", err)
	}
	deps.Config = cfg
	if cfg.TenantID == "" {
		return nil, nil, nil, fmt.Errorf("tenant_id is required (set PETMIG_TENANT_ID or --tenant)")
	}

	led, closeFn, err := deps.OpenLedger(ctx, cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening ledger: %w", err)
	}
	if closeFn == nil {
		closeFn = func() {}
	}
	return cfg, led, closeFn, nil
}

// runLedgerStatus executes the ledger status command.
func runLedgerStatus(ctx context.Context, out io.Writer, deps *LedgerCommandDeps) error {
	cfg, led, closeFn, err := loadLedger(ctx, deps)
	if err != nil {
		return err
	}
	defer closeFn()

	counts, err := led.Counts(ctx, cfg.TenantID)
	if err != nil {
		return fmt.Errorf("counting ledger entries: %w", err)
	}

	if cfg.OutputFormat == config.OutputFormatJSON {
		return writeJSON(out, map[string]any{
			"tenant_id": cfg.TenantID,
			"tables":    counts,
		})
	}

	if len(counts) == 0 {
		fmt.Fprintf(out, "No ledger entries for tenant %s.\n", cfg.TenantID)
		return nil
	}

	fmt.Fprintf(out, "Control Ledger for tenant %s:\n\n", cfg.TenantID)
	fmt.Fprintf(out, "  %-24s %-14s %10s  %s\n", "SOURCE", "DESTINATION", "ENTRIES", "LAST MIGRATED")
	var total int64
	for _, c := range counts {
		fmt.Fprintf(out, "  %-24s %-14s %10d  %s\n", c.SourceTable, c.DestTable, c.Entries, formatTime(c.LastMigrated))
		total += c.Entries
	}
	fmt.Fprintf(out, "\n  %-39s %10d\n", "Total", total)
	return nil
}

// runLedgerLookup executes the ledger lookup command.
func runLedgerLookup(ctx context.Context, out io.Writer, deps *LedgerCommandDeps, sourceTable, sourceKey string) error {
	cfg, led, closeFn, err := loadLedger(ctx, deps)
	if err != nil {
		return err
	}
	defer closeFn()

	sourceTable = strings.ToUpper(strings.TrimSpace(sourceTable))
	entries, err := led.Lookup(ctx, cfg.TenantID, sourceTable, strings.TrimSpace(sourceKey))
	if err != nil {
		return fmt.Errorf("looking up %s %s: %w", sourceTable, sourceKey, err)
	}

	if cfg.OutputFormat == config.OutputFormatJSON {
		return writeJSON(out, map[string]any{
			"tenant_id":    cfg.TenantID,
			"source_table": sourceTable,
			"source_key":   sourceKey,
			"mappings":     entries,
		})
	}

	if len(entries) == 0 {
		fmt.Fprintf(out, "%s %s has not been migrated.\n", sourceTable, sourceKey)
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s.%s=%s -> %s.%s=%s (migrated %s)\n",
			e.SourceTable, e.SourceKeyField, e.SourceKeyValue,
			e.DestTable, e.DestKeyField, e.DestKeyValue,
			formatTime(e.MigratedAt))
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
