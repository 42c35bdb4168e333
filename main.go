// Package main provides the petmig CLI entry point.
// petmig migrates a veterinary clinic's legacy records into the new system.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vicentefritzen/petsys-migracao/cmd"
	"github.com/vicentefritzen/petsys-migracao/config"
	"github.com/vicentefritzen/petsys-migracao/pkg/buildinfo"
)

// Global flags and state.
var (
	cfgFile      string
	tenantID     string
	timeout      time.Duration
	outputFormat string
	logFile      string
	debug        bool

	// cfg holds the loaded configuration.
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "petmig",
	Short: "Migrate legacy veterinary clinic data into the new system",
	Long: `petmig moves a clinic's records from the legacy database into the new
multi-tenant system, one stage at a time.

Every migrated legacy row is recorded in the Control Ledger, so any stage can
be rerun safely: rows migrated before are skipped or updated in place.

COMMON WORKFLOWS:
  First setup:      petmig credentials set legacy-db  →  petmig db migrate
  Stage order:      clients, pets, vaccines, vaccinations, weights, notes
  Preview a stage:  petmig migrate notes --dry-run
  Run a stage:      petmig migrate notes --report notes.xlsx
  Check results:    petmig ledger status  |  petmig ledger lookup PET_ANIMAL_PRONTUARIO 1234
  Debug a blob:     petmig notes parse blob.txt

CONFIGURATION:
  ~/.petmig/config.yaml (or PETMIG_CONFIG / --config), overridden by
  environment variables (PETMIG_TENANT_ID, LEGACY_DB_URL, DEST_DB_URL, ...)
  and then by flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if outputFormat != "" && !config.OutputFormat(outputFormat).IsValid() {
			return fmt.Errorf("invalid --output %q (must be text or json)", outputFormat)
		}
		if cfgFile != "" {
			path, err := config.ExpandPath(cfgFile)
			if err != nil {
				return err
			}
			if err := os.Setenv("PETMIG_CONFIG", path); err != nil {
				return fmt.Errorf("setting config path: %w", err)
			}
		}
		return nil
	},
}

// loadConfig loads the configuration once and applies the global flags.
func loadConfig() (*config.Config, error) {
	if cfg != nil {
		return cfg, nil
	}

	loaded, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	applyFlagOverrides(loaded)
	if err := loaded.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg = loaded
	return cfg, nil
}

// applyFlagOverrides copies set global flags over c.
func applyFlagOverrides(c *config.Config) {
	if tenantID != "" {
		c.TenantID = tenantID
	}
	if timeout != 0 {
		c.Timeout = timeout
	}
	if outputFormat != "" {
		c.OutputFormat = config.OutputFormat(outputFormat)
	}
	if logFile != "" {
		c.Logging.File = logFile
	}
	if debug {
		c.Debug = true
	}
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the version, commit hash and build time of petmig.

Use --output json for machine-readable output.`,
	RunE: func(c *cobra.Command, args []string) error {
		info := buildinfo.Get()
		out := c.OutOrStdout()

		if outputFormat == string(config.OutputFormatJSON) {
			return writeVersionJSON(out, info)
		}

		fmt.Fprintf(out, "petmig %s\n", info.Version)
		fmt.Fprintf(out, "  Commit:     %s\n", info.Commit)
		fmt.Fprintf(out, "  Built:      %s\n", info.BuildTime)
		fmt.Fprintf(out, "  Go version: %s\n", info.GoVersion)
		fmt.Fprintf(out, "  Platform:   %s\n", info.Platform)
		if !info.IsRelease() {
			fmt.Fprintln(out, "  (development build)")
		}
		return nil
	},
}

func writeVersionJSON(w io.Writer, info buildinfo.Info) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.petmig/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&tenantID, "tenant", "", "destination tenant id")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "maximum duration of a stage run (e.g., 30m, 2h)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "", "output format: text, json")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write JSON logs to this rotating file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	migrateDeps := cmd.DefaultMigrateDeps()
	migrateDeps.LoadConfig = loadConfig
	rootCmd.AddCommand(cmd.NewMigrateCommand(migrateDeps))

	notesDeps := cmd.DefaultNotesDeps()
	notesDeps.LoadConfig = loadConfig
	rootCmd.AddCommand(cmd.NewNotesCommand(notesDeps))

	ledgerDeps := cmd.DefaultLedgerDeps()
	ledgerDeps.LoadConfig = loadConfig
	rootCmd.AddCommand(cmd.NewLedgerCommand(ledgerDeps))

	dbDeps := cmd.DefaultDbDeps()
	dbDeps.LoadConfig = loadConfig
	rootCmd.AddCommand(cmd.NewDbCommand(dbDeps))

	credDeps := cmd.DefaultCredentialsDeps()
	credDeps.LoadConfig = loadConfig
	rootCmd.AddCommand(cmd.NewCredentialsCommand(credDeps))

	rootCmd.AddCommand(versionCmd)
}

func main() {
	// Cancel the run context on interrupt so stages stop between items and
	// roll back the open chunk.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
