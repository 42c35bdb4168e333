package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/vicentefritzen/petsys-migracao/config"
	"github.com/vicentefritzen/petsys-migracao/credentials"
	"github.com/vicentefritzen/petsys-migracao/pkg/buildinfo"
	"github.com/vicentefritzen/petsys-migracao/pkg/db"
	migerrors "github.com/vicentefritzen/petsys-migracao/pkg/errors"
	"github.com/vicentefritzen/petsys-migracao/pkg/ledger"
	"github.com/vicentefritzen/petsys-migracao/pkg/legacy"
	"github.com/vicentefritzen/petsys-migracao/pkg/logging"
	"github.com/vicentefritzen/petsys-migracao/pkg/metrics"
	"github.com/vicentefritzen/petsys-migracao/pkg/migration"
	"github.com/vicentefritzen/petsys-migracao/pkg/report"
	"github.com/vicentefritzen/petsys-migracao/pkg/runlock"
	"github.com/vicentefritzen/petsys-migracao/pkg/store"
)

// Migrate command flags
var (
	migrateDryRun      bool
	migrateSample      int
	migrateReportPath  string
	migrateMetricsFile string
	migrateNoLock      bool
)

// MigrateCommandDeps holds the dependencies for migrate commands.
type MigrateCommandDeps struct {
	Config         *config.Config
	LoadConfig     func() (*config.Config, error)
	Credentials    func(*config.Config) *credentials.Store
	ConnectToDB    func(context.Context, *config.Config) (*pgxpool.Pool, error)
	OpenLegacy     func(context.Context, *config.Config) (*sqlx.DB, error)
	ConnectToRedis func(context.Context, *config.Config) (*redis.Client, error)
	// LogOutput receives console logs (defaults to os.Stderr).
	LogOutput io.Writer
}

// DefaultMigrateDeps returns the default dependencies for production use.
func DefaultMigrateDeps() *MigrateCommandDeps {
	return &MigrateCommandDeps{
		LoadConfig:     config.LoadConfig,
		Credentials:    credentialStore,
		ConnectToDB:    connectToDestination,
		OpenLegacy:     openLegacy,
		ConnectToRedis: connectToRedis,
		LogOutput:      os.Stderr,
	}
}

// credentialStore returns the keyring store for cfg's tenant.
func credentialStore(cfg *config.Config) *credentials.Store {
	return credentials.NewStore(credentials.DefaultService, cfg.TenantID)
}

// NewMigrateCommand creates the root migrate command with all subcommands.
func NewMigrateCommand(deps *MigrateCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultMigrateDeps()
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run a migration stage for the configured tenant",
		Long: `Run one migration stage from the legacy database into the destination.

Stages read their reference data (client and pet mappings, clinicians) from
the destination and the Control Ledger, so they must run in this order:
clients, pets, vaccines, vaccinations, weights, notes. A stage whose upstream
mapping is empty fails with stage_out_of_order. Every stage is idempotent:
legacy rows already in the ledger are skipped (notes) or updated in place
(every other stage).

Stages:
  clients       PET_CLIENTE into clients, merged by CPF/CNPJ
  pets          PET_ANIMAL into pets, breeds and colours matched by name
  vaccines      PET_VACINA into the vaccine catalogue, merged by name
  vaccinations  PET_ANIMAL_VACINA into scheduled and applied doses
  weights       PET_ANIMAL_PESO into pet weights
  notes         PET_ANIMAL_PRONTUARIO blobs into medical records and prescriptions

Examples:
  # Preview the first 5 note blobs without writing
  petmig migrate notes --dry-run

  # Migrate notes and write an Excel report
  petmig migrate notes --report reports/notes.xlsx

  # Migrate weights and export Prometheus counters
  petmig migrate weights --metrics-file /var/lib/node_exporter/petmig.prom`,
	}

	cmd.PersistentFlags().BoolVar(&migrateDryRun, "dry-run", false, "Parse and resolve without writing to the destination")
	cmd.PersistentFlags().StringVar(&migrateReportPath, "report", "", "Write an Excel run report to this .xlsx path")
	cmd.PersistentFlags().StringVar(&migrateMetricsFile, "metrics-file", "", "Write Prometheus textfile metrics to this path")
	cmd.PersistentFlags().BoolVar(&migrateNoLock, "no-lock", false, "Skip the Redis tenant lock even when configured")

	cmd.AddCommand(newMigrateClientsCommand(deps))
	cmd.AddCommand(newMigratePetsCommand(deps))
	cmd.AddCommand(newMigrateVaccinesCommand(deps))
	cmd.AddCommand(newMigrateVaccinationsCommand(deps))
	cmd.AddCommand(newMigrateNotesCommand(deps))
	cmd.AddCommand(newMigrateWeightsCommand(deps))

	return cmd
}

// newMigrateClientsCommand creates the 'migrate clients' subcommand.
func newMigrateClientsCommand(deps *MigrateCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "clients",
		Short: "Migrate pet owners",
		Long: `Copy legacy clients into the destination clients table.

A client already in the ledger is updated under its recorded id. A client
whose CPF or CNPJ matches an existing destination client, or one migrated
earlier in the run, is merged into it. Every client gets
registry.default_city_id (DEFAULT_CITY_ID) as its city.`,
		Example: `  petmig migrate clients --dry-run
  petmig migrate clients --report clients.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), cmd.OutOrStdout(), deps, migration.StageClients)
		},
	}
}

// newMigratePetsCommand creates the 'migrate pets' subcommand.
func newMigratePetsCommand(deps *MigrateCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "pets",
		Short: "Migrate animals",
		Long: `Copy legacy animals into pets. Requires the clients stage.

Owners are resolved through the clients stage's ledger rows; animals whose
owner was not migrated are skipped. Breeds and coat colours are matched by
name against the destination catalogues (registry.breed_min_score,
registry.color_min_score) and left empty when nothing is close enough.`,
		Example: `  petmig migrate pets --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), cmd.OutOrStdout(), deps, migration.StagePets)
		},
	}
}

// newMigrateVaccinesCommand creates the 'migrate vaccines' subcommand.
func newMigrateVaccinesCommand(deps *MigrateCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "vaccines",
		Short: "Migrate the vaccine catalogue",
		Long: `Copy legacy vaccines into the tenant's vaccine catalogue.

Names are compared uppercased; a vaccine whose name is already in the
catalogue is merged into it. Vaccines without a name are skipped.`,
		Example: `  petmig migrate vaccines`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), cmd.OutOrStdout(), deps, migration.StageVaccines)
		},
	}
}

// newMigrateVaccinationsCommand creates the 'migrate vaccinations' subcommand.
func newMigrateVaccinationsCommand(deps *MigrateCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "vaccinations",
		Short: "Migrate scheduled and applied vaccine doses",
		Long: `Copy legacy vaccine applications into pet vaccinations. Requires the pets
and vaccines stages.

A dose with an application date is stored as applied. Doses whose pet or
vaccine was not migrated are skipped.`,
		Example: `  petmig migrate vaccinations --report vaccinations.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), cmd.OutOrStdout(), deps, migration.StageVaccinations)
		},
	}
}

// newMigrateNotesCommand creates the 'migrate notes' subcommand.
func newMigrateNotesCommand(deps *MigrateCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "Migrate clinical note blobs",
		Long: `Split each legacy clinical note blob into timestamped entries, classify
them (clinical note, prescription, lab result) and assign every entry a
destination clinician.

Authors are matched against the destination users table. Entries whose author
matches nobody, lab results and prescriptions with no earlier entry go to the
fallback clinician (notes.fallback_clinician_name), which must exist before
anything is written.

In dry-run mode only the first --sample blobs are processed and nothing is
written.`,
		Example: `  petmig migrate notes --dry-run
  petmig migrate notes --dry-run --sample 20
  petmig migrate notes --report notes.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), cmd.OutOrStdout(), deps, migration.StageNotes)
		},
	}

	cmd.Flags().IntVar(&migrateSample, "sample", 0, "Blobs processed in dry-run mode (default from notes.sample_size)")

	return cmd
}

// newMigrateWeightsCommand creates the 'migrate weights' subcommand.
func newMigrateWeightsCommand(deps *MigrateCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "weights",
		Short: "Migrate pet weight measurements",
		Long: `Copy legacy weight measurements into pet weights.

Values of 1000 or more are taken as grams and converted to kilograms; results
are clamped to 999.999. Rows already in the ledger are updated under their
recorded id. Every weight is owned by weights.default_clinician_id
(DEFAULT_VET_USER_ID).`,
		Example: `  petmig migrate weights --dry-run
  petmig migrate weights --report weights.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), cmd.OutOrStdout(), deps, migration.StageWeights)
		},
	}
}

// stageOutcome is what a stage run hands back to the command.
type stageOutcome struct {
	Counters []report.Counter
	Skipped  []report.SkippedItem
}

// runMigrate executes one migration stage.
func runMigrate(ctx context.Context, out io.Writer, deps *MigrateCommandDeps, stage string) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	deps.Config = cfg

	if migrateMetricsFile != "" {
		cfg.Metrics.TextfilePath = migrateMetricsFile
	}
	if migrateSample > 0 {
		cfg.Notes.SampleSize = migrateSample
	}
	if err := cfg.ValidateForMigration(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if deps.Credentials != nil {
		if err := resolvePasswords(cfg, deps.Credentials(cfg)); err != nil {
			return fmt.Errorf("reading stored passwords: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	warnings := logging.NewMemorySink(logging.LevelWarn, 0)
	ctx = logging.WithRun(ctx, uuid.NewString(), cfg.TenantID)
	logger := newCommandLogger(cfg, deps.LogOutput, warnings).WithContext(ctx)
	info := buildinfo.Get()
	logger.Info("Starting migration",
		logging.F("stage", stage),
		logging.F("dry_run", migrateDryRun),
		logging.F("version", info.Version))

	runMetrics := metrics.NewRunMetrics()
	recorder := metrics.NewRecorder(runMetrics, stage, cfg.TenantID)

	if !migrateDryRun && !migrateNoLock {
		lockCtx, release, err := acquireTenantLock(ctx, deps, cfg, stage, logger)
		if err != nil {
			return err
		}
		defer release()
		ctx = lockCtx
	}

	legacyDB, err := deps.OpenLegacy(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening legacy database: %w", err)
	}
	defer legacyDB.Close()

	pool, err := deps.ConnectToDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to destination: %w", err)
	}
	defer db.Close(pool)

	if _, err := db.RegisterPoolStatsCollector(runMetrics.Registry(), pool, metrics.Namespace, "destination"); err != nil {
		logger.Warn("Pool metrics unavailable", logging.Err(err))
	}

	progress := migration.NewProgress(stage)
	progress.SetOnUpdate(progressLogger(logger))

	source := legacy.NewReader(legacyDB)
	dest := store.NewPostgres(pool)
	led := ledger.NewPostgresLedger(pool)

	started := time.Now()
	var outcome stageOutcome
	var runErr error
	switch stage {
	case migration.StageClients:
		outcome, runErr = runClientsStage(ctx, cfg, source, dest, led, recorder, progress, logger)
	case migration.StagePets:
		outcome, runErr = runPetsStage(ctx, cfg, source, dest, led, recorder, progress, logger)
	case migration.StageVaccines:
		outcome, runErr = runVaccinesStage(ctx, cfg, source, dest, led, recorder, progress, logger)
	case migration.StageVaccinations:
		outcome, runErr = runVaccinationsStage(ctx, cfg, source, dest, led, recorder, progress, logger)
	case migration.StageNotes:
		outcome, runErr = runNotesStage(ctx, cfg, source, dest, led, recorder, progress, logger)
	case migration.StageWeights:
		outcome, runErr = runWeightsStage(ctx, cfg, source, dest, led, recorder, progress, logger)
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}
	took := time.Since(started)
	if cause := context.Cause(ctx); runErr != nil && cause != nil && !errors.Is(cause, ctx.Err()) {
		runErr = fmt.Errorf("%w: %w", runErr, cause)
	}
	recorder.RunFinished(took, runErr)

	if runErr != nil {
		logger.Error("Migration failed", logging.F("stage", stage), logging.Err(runErr))
		if migerrors.IsMissingDependency(runErr) {
			logger.Info("Stages depend on each other and must run in order",
				logging.F("order", strings.Join(migration.Stages, ", ")))
		}
	}

	if path := cfg.Metrics.TextfilePath; path != "" {
		if err := runMetrics.WriteTextfile(path); err != nil {
			logger.Warn("Writing metrics textfile failed", logging.F("path", path), logging.Err(err))
		}
	}

	if migrateReportPath != "" {
		summary := report.Summary{
			Stage:     stage,
			TenantID:  cfg.TenantID,
			DryRun:    migrateDryRun,
			StartedAt: started,
			Duration:  took,
			Counters:  outcome.Counters,
		}
		if runErr != nil {
			summary.Error = runErr.Error()
		}
		rep := report.Report{Summary: summary, Skipped: outcome.Skipped, Warnings: warnings.Entries()}
		if err := report.Write(migrateReportPath, rep); err != nil {
			logger.Warn("Writing run report failed", logging.F("path", migrateReportPath), logging.Err(err))
		} else {
			logger.Info("Run report written", logging.F("path", migrateReportPath))
		}
	}

	if err := printMigrateResult(out, cfg, stage, took, outcome, warnings, runErr); err != nil {
		return err
	}
	return runErr
}

// acquireTenantLock takes the Redis tenant lock when one is configured. The
// returned context is cancelled if the lock is lost mid-run; the returned
// func stops refreshing and releases the lock.
func acquireTenantLock(ctx context.Context, deps *MigrateCommandDeps, cfg *config.Config, stage string,
	logger logging.Logger) (context.Context, func(), error) {
	noop := func() {}
	if deps.ConnectToRedis == nil {
		return ctx, noop, nil
	}
	client, err := deps.ConnectToRedis(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to lock server: %w", err)
	}
	if client == nil {
		return ctx, noop, nil
	}
	lock, err := runlock.NewLocker(client, cfg.Lock.TTL, "").Acquire(ctx, cfg.TenantID, stage)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	logger.Debug("Tenant lock acquired", logging.F("token", lock.Token()))

	runCtx, cancel := context.WithCancelCause(ctx)
	stop := keepLockAlive(runCtx, lock, cfg.Lock.TTL/3, cancel, logger)

	return runCtx, func() {
		stop()
		cancel(nil)
		if err := lock.Release(context.Background()); err != nil {
			logger.Warn("Releasing tenant lock failed", logging.Err(err))
		}
		client.Close()
	}, nil
}

// keepLockAlive refreshes lock every interval until stop is called or ctx
// ends. A failed refresh cancels ctx with the refresh error as its cause.
func keepLockAlive(ctx context.Context, lock *runlock.Lock, every time.Duration,
	cancel context.CancelCauseFunc, logger logging.Logger) (stop func()) {
	if every <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := lock.Refresh(ctx)
				if err == nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				logger.Error("Tenant lock lost, stopping run", logging.Err(err))
				cancel(fmt.Errorf("tenant lock lost: %w", err))
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-finished
	}
}

func runNotesStage(ctx context.Context, cfg *config.Config, source *legacy.Reader, dest *store.Postgres,
	led ledger.Reader, obs migration.Observer, progress *migration.Progress, logger logging.Logger) (stageOutcome, error) {
	opts := migration.NotesOptionsFromConfig(cfg)
	opts.DryRun = migrateDryRun

	deps := migration.NotesDeps{
		Source:    source,
		Directory: dest,
		Ledger:    led,
		Observer:  obs,
		Progress:  progress,
		Logger:    logger,
	}
	if !opts.DryRun {
		deps.Writer = dest
	}

	m, err := migration.NewNotesMigrator(opts, deps)
	if err != nil {
		return stageOutcome{}, err
	}
	stats, err := m.Run(ctx)
	if stats == nil {
		return stageOutcome{}, err
	}
	return stageOutcome{Counters: stats.Counters(), Skipped: stats.Skipped}, err
}

func runWeightsStage(ctx context.Context, cfg *config.Config, source *legacy.Reader, dest *store.Postgres,
	led ledger.Reader, obs migration.Observer, progress *migration.Progress, logger logging.Logger) (stageOutcome, error) {
	opts := migration.WeightsOptionsFromConfig(cfg)
	opts.DryRun = migrateDryRun

	deps := migration.WeightsDeps{
		Source:    source,
		Ledger:    led,
		Directory: dest,
		Observer:  obs,
		Progress:  progress,
		Logger:    logger,
	}
	if !opts.DryRun {
		deps.Writer = dest
	}

	m, err := migration.NewWeightsMigrator(opts, deps)
	if err != nil {
		return stageOutcome{}, err
	}
	stats, err := m.Run(ctx)
	if stats == nil {
		return stageOutcome{}, err
	}
	return stageOutcome{Counters: stats.Counters(), Skipped: stats.Skipped}, err
}

func runClientsStage(ctx context.Context, cfg *config.Config, source *legacy.Reader, dest *store.Postgres,
	led ledger.Reader, obs migration.Observer, progress *migration.Progress, logger logging.Logger) (stageOutcome, error) {
	opts := migration.ClientsOptionsFromConfig(cfg)
	opts.DryRun = migrateDryRun

	deps := migration.ClientsDeps{
		Source:  source,
		Index:   dest,
		Ledger:  led,
		RunDeps: migration.RunDeps{Observer: obs, Progress: progress, Logger: logger},
	}
	if !opts.DryRun {
		deps.Writer = dest
	}

	m, err := migration.NewClientsMigrator(opts, deps)
	if err != nil {
		return stageOutcome{}, err
	}
	stats, err := m.Run(ctx)
	if stats == nil {
		return stageOutcome{}, err
	}
	return stageOutcome{Counters: stats.Counters(), Skipped: stats.Skipped}, err
}

func runPetsStage(ctx context.Context, cfg *config.Config, source *legacy.Reader, dest *store.Postgres,
	led ledger.Reader, obs migration.Observer, progress *migration.Progress, logger logging.Logger) (stageOutcome, error) {
	opts := migration.PetsOptionsFromConfig(cfg)
	opts.DryRun = migrateDryRun

	deps := migration.PetsDeps{
		Source:  source,
		Owners:  dest,
		Catalog: dest,
		Ledger:  led,
		RunDeps: migration.RunDeps{Observer: obs, Progress: progress, Logger: logger},
	}
	if !opts.DryRun {
		deps.Writer = dest
	}

	m, err := migration.NewPetsMigrator(opts, deps)
	if err != nil {
		return stageOutcome{}, err
	}
	stats, err := m.Run(ctx)
	if stats == nil {
		return stageOutcome{}, err
	}
	return stageOutcome{Counters: stats.Counters(), Skipped: stats.Skipped}, err
}

func runVaccinesStage(ctx context.Context, cfg *config.Config, source *legacy.Reader, dest *store.Postgres,
	led ledger.Reader, obs migration.Observer, progress *migration.Progress, logger logging.Logger) (stageOutcome, error) {
	opts := migration.RegistryOptionsFromConfig(cfg)
	opts.DryRun = migrateDryRun

	deps := migration.VaccinesDeps{
		Source:  source,
		Index:   dest,
		Ledger:  led,
		RunDeps: migration.RunDeps{Observer: obs, Progress: progress, Logger: logger},
	}
	if !opts.DryRun {
		deps.Writer = dest
	}

	m, err := migration.NewVaccinesMigrator(opts, deps)
	if err != nil {
		return stageOutcome{}, err
	}
	stats, err := m.Run(ctx)
	if stats == nil {
		return stageOutcome{}, err
	}
	return stageOutcome{Counters: stats.Counters(), Skipped: stats.Skipped}, err
}

func runVaccinationsStage(ctx context.Context, cfg *config.Config, source *legacy.Reader, dest *store.Postgres,
	led ledger.Reader, obs migration.Observer, progress *migration.Progress, logger logging.Logger) (stageOutcome, error) {
	opts := migration.RegistryOptionsFromConfig(cfg)
	opts.DryRun = migrateDryRun

	deps := migration.VaccinationsDeps{
		Source:  source,
		Ledger:  led,
		RunDeps: migration.RunDeps{Observer: obs, Progress: progress, Logger: logger},
	}
	if !opts.DryRun {
		deps.Writer = dest
	}

	m, err := migration.NewVaccinationsMigrator(opts, deps)
	if err != nil {
		return stageOutcome{}, err
	}
	stats, err := m.Run(ctx)
	if stats == nil {
		return stageOutcome{}, err
	}
	return stageOutcome{Counters: stats.Counters(), Skipped: stats.Skipped}, err
}

// progressLogger logs a progress line each time another tenth of the items
// has been processed.
func progressLogger(logger logging.Logger) func(migration.ProgressSnapshot) {
	lastStep := -1
	return func(s migration.ProgressSnapshot) {
		if s.Total == 0 || s.Status != migration.StatusRunning {
			return
		}
		step := int(s.PercentComplete()) / 10
		if step == lastStep {
			return
		}
		lastStep = step

		fields := []logging.Field{
			logging.F("stage", s.Stage),
			logging.F("processed", s.Processed),
			logging.F("total", s.Total),
			logging.F("percent", fmt.Sprintf("%.0f", s.PercentComplete())),
		}
		if s.EstimatedRemainingSeconds != nil {
			fields = append(fields, logging.F("eta_seconds", int(*s.EstimatedRemainingSeconds)))
		}
		logger.Info("Progress", fields...)
	}
}

// migrateResult is the JSON shape of a finished run.
type migrateResult struct {
	Stage    string         `json:"stage"`
	TenantID string         `json:"tenant_id"`
	DryRun   bool           `json:"dry_run"`
	Duration string         `json:"duration"`
	Counters map[string]int `json:"counters"`
	Skipped  int            `json:"skipped"`
	Warnings int            `json:"warnings"`
	Report   string         `json:"report,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func printMigrateResult(out io.Writer, cfg *config.Config, stage string, took time.Duration,
	outcome stageOutcome, warnings *logging.MemorySink, runErr error) error {
	entries := warnings.Entries()

	if cfg.OutputFormat == config.OutputFormatJSON {
		res := migrateResult{
			Stage:    stage,
			TenantID: cfg.TenantID,
			DryRun:   migrateDryRun,
			Duration: took.Round(time.Millisecond).String(),
			Counters: make(map[string]int, len(outcome.Counters)),
			Skipped:  len(outcome.Skipped),
			Warnings: len(entries) + warnings.Dropped(),
			Report:   migrateReportPath,
		}
		for _, c := range outcome.Counters {
			res.Counters[c.Name] = c.Value
		}
		if runErr != nil {
			res.Error = runErr.Error()
		}
		return writeJSON(out, res)
	}

	mode := ""
	if migrateDryRun {
		mode = " (dry run, nothing written)"
	}
	fmt.Fprintf(out, "Stage %s for tenant %s finished in %s%s\n\n", stage, cfg.TenantID, formatDuration(took), mode)
	for _, c := range outcome.Counters {
		fmt.Fprintf(out, "  %-22s %d\n", c.Name, c.Value)
	}
	fmt.Fprintf(out, "\n  %-22s %d\n", "skipped_rows", len(outcome.Skipped))
	fmt.Fprintf(out, "  %-22s %d\n", "warnings", len(entries)+warnings.Dropped())
	if migrateReportPath != "" {
		fmt.Fprintf(out, "\nReport: %s\n", migrateReportPath)
	}
	return nil
}
