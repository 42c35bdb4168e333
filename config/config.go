// Package config provides configuration management for the petmig migration tool.
// It supports loading configuration from YAML files, environment variables, and command-line flags.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // notes.timezone must resolve on images without zoneinfo

	"gopkg.in/yaml.v3"
)

// OutputFormat defines the supported output formats for command results.
type OutputFormat string

const (
	// OutputFormatText is human-readable plain text output.
	OutputFormatText OutputFormat = "text"
	// OutputFormatJSON is JSON-formatted output for machine processing.
	OutputFormatJSON OutputFormat = "json"
)

// Default configuration values.
const (
	DefaultTimeout               = 2 * time.Hour
	DefaultOutputFormat          = OutputFormatText
	DefaultConfigDir             = ".petmig"
	DefaultConfigFile            = "config.yaml"
	DefaultFallbackClinicianName = "DRA. JULIANA FARBER METZLER"
	DefaultMinScore              = 70.0
	DefaultChunkSize             = 1000
	DefaultSampleSize            = 5
	DefaultAttributionWindow     = 24 * time.Hour
	DefaultLockTTL               = 6 * time.Hour
	DefaultLogFile               = "logs/migracao_prontuarios.log"
	DefaultBreedMinScore         = 75.0
	DefaultColorMinScore         = 70.0
)

// Accepted values for the string enums below.
const (
	MatcherExact       = "exact"
	MatcherApproximate = "approximate"

	AttributionLookback = "lookback"
	AttributionWindowed = "windowed"

	LabAttributionFallback = "fallback"
	LabAttributionName     = "name"
)

// DatabaseConfig holds connection settings for one PostgreSQL database.
// URL, when set, takes precedence over the discrete fields.
type DatabaseConfig struct {
	URL      string `yaml:"url,omitempty"`
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Database string `yaml:"database,omitempty"`
	User     string `yaml:"user,omitempty"`
	SSLMode  string `yaml:"sslmode,omitempty"`

	// Password is never read from the config file; it comes from the
	// environment or the OS keyring (see petmig credentials).
	Password string `yaml:"-"`
}

// IsConfigured returns true if enough is set to build a connection string.
func (d DatabaseConfig) IsConfigured() bool {
	return d.URL != "" || (d.Host != "" && d.Database != "" && d.User != "")
}

// HasPassword reports whether a password is available from URL or Password.
func (d DatabaseConfig) HasPassword() bool {
	if d.Password != "" {
		return true
	}
	if d.URL == "" {
		return false
	}
	u, err := url.Parse(d.URL)
	if err != nil || u.User == nil {
		return false
	}
	_, ok := u.User.Password()
	return ok
}

// ConnectionString returns a libpq connection string or URL.
// Returns empty string if the database is not configured.
func (d DatabaseConfig) ConnectionString() string {
	if d.URL != "" {
		if d.Password == "" || d.HasPassword() {
			return d.URL
		}
		u, err := url.Parse(d.URL)
		if err != nil || u.User == nil {
			return d.URL
		}
		u.User = url.UserPassword(u.User.Username(), d.Password)
		return u.String()
	}
	if !d.IsConfigured() {
		return ""
	}

	port := d.Port
	if port == 0 {
		port = 5432
	}
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "prefer"
	}

	connStr := fmt.Sprintf("host=%s port=%d dbname=%s user=%s sslmode=%s",
		d.Host, port, d.Database, d.User, sslmode)
	if d.Password != "" {
		connStr += fmt.Sprintf(" password='%s'", strings.ReplaceAll(d.Password, "'", `\'`))
	}
	return connStr
}

// Redacted returns ConnectionString with any password masked, for logs.
func (d DatabaseConfig) Redacted() string {
	if d.URL != "" {
		u, err := url.Parse(d.URL)
		if err != nil {
			return "<invalid url>"
		}
		return u.Redacted()
	}
	c := d
	if c.Password != "" {
		c.Password = "xxxxx"
	}
	return c.ConnectionString()
}

// AttributionConfig selects how prescriptions find their clinician.
type AttributionConfig struct {
	// Strategy is "lookback" (default) or "windowed".
	Strategy string `yaml:"strategy"`
	// MaxAge bounds the windowed strategy.
	MaxAge time.Duration `yaml:"max_age"`
}

// NotesConfig holds settings for the clinical notes stage.
type NotesConfig struct {
	// FallbackClinicianName must exist in the destination users table.
	FallbackClinicianName string `yaml:"fallback_clinician_name"`
	// MinScore is the approximate name match threshold (0-100).
	MinScore float64 `yaml:"min_score"`
	// Matcher is "approximate" (default) or "exact".
	Matcher            string            `yaml:"matcher"`
	PrescriptionTokens []string          `yaml:"prescription_tokens,omitempty"`
	LabTokens          []string          `yaml:"lab_tokens,omitempty"`
	Attribution        AttributionConfig `yaml:"attribution"`
	// LabAttribution is "fallback" (default) or "name".
	LabAttribution string `yaml:"lab_attribution"`
	// Timezone header timestamps are written in, e.g. America/Sao_Paulo.
	Timezone   string `yaml:"timezone,omitempty"`
	ChunkSize  int    `yaml:"chunk_size"`
	SampleSize int    `yaml:"sample_size"`
}

// WeightsConfig holds settings for the pet weights stage.
type WeightsConfig struct {
	// DefaultClinicianID owns every migrated weight.
	DefaultClinicianID string `yaml:"default_clinician_id"`
	ChunkSize          int    `yaml:"chunk_size"`
}

// RegistryConfig holds settings for the clients, pets, vaccines and
// vaccinations stages.
type RegistryConfig struct {
	// DefaultCityID is written on every client; legacy addresses carry no
	// city code. Zero leaves the city empty.
	DefaultCityID int `yaml:"default_city_id,omitempty"`
	// BreedMinScore and ColorMinScore are the name match thresholds (0-100)
	// against the destination breeds and colors tables.
	BreedMinScore float64 `yaml:"breed_min_score"`
	ColorMinScore float64 `yaml:"color_min_score"`
	ChunkSize     int     `yaml:"chunk_size"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
	// File enables a rotating JSON log file.
	File string `yaml:"file,omitempty"`
}

// MetricsConfig holds Prometheus textfile export settings.
type MetricsConfig struct {
	// TextfilePath receives run counters when set.
	TextfilePath string `yaml:"textfile_path,omitempty"`
}

// LockConfig holds the optional Redis tenant lock settings.
type LockConfig struct {
	// RedisURL enables the lock when set, e.g. redis://localhost:6379/0.
	RedisURL string        `yaml:"redis_url,omitempty"`
	TTL      time.Duration `yaml:"ttl"`
}

// Config holds the full petmig configuration.
type Config struct {
	// TenantID is the destination tenant every migrated row belongs to.
	TenantID string `yaml:"tenant_id"`

	Legacy      DatabaseConfig `yaml:"legacy"`
	Destination DatabaseConfig `yaml:"destination"`

	Registry RegistryConfig `yaml:"registry"`
	Notes    NotesConfig    `yaml:"notes"`
	Weights  WeightsConfig  `yaml:"weights"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Lock     LockConfig     `yaml:"lock"`

	// Timeout bounds a whole stage run.
	Timeout time.Duration `yaml:"timeout"`

	OutputFormat OutputFormat `yaml:"output_format"`

	Debug bool `yaml:"debug,omitempty"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Registry: RegistryConfig{
			BreedMinScore: DefaultBreedMinScore,
			ColorMinScore: DefaultColorMinScore,
			ChunkSize:     DefaultChunkSize,
		},
		Notes: NotesConfig{
			FallbackClinicianName: DefaultFallbackClinicianName,
			MinScore:              DefaultMinScore,
			Matcher:               MatcherApproximate,
			Attribution: AttributionConfig{
				Strategy: AttributionLookback,
				MaxAge:   DefaultAttributionWindow,
			},
			LabAttribution: LabAttributionFallback,
			ChunkSize:      DefaultChunkSize,
			SampleSize:     DefaultSampleSize,
		},
		Weights: WeightsConfig{
			ChunkSize: DefaultChunkSize,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Lock: LockConfig{
			TTL: DefaultLockTTL,
		},
		Timeout:      DefaultTimeout,
		OutputFormat: DefaultOutputFormat,
	}
}

// ConfigDir returns the configuration directory path.
// Uses $PETMIG_CONFIG_DIR if set, otherwise ~/.petmig
func ConfigDir() (string, error) {
	if dir := os.Getenv("PETMIG_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
// $PETMIG_CONFIG names the file directly.
func ConfigPath() (string, error) {
	if p := os.Getenv("PETMIG_CONFIG"); p != "" {
		return ExpandPath(p)
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the configuration from file and environment variables.
// Configuration is loaded in this order (later sources override earlier):
// 1. Default values
// 2. Config file (~/.petmig/config.yaml, $PETMIG_CONFIG_DIR/config.yaml or $PETMIG_CONFIG)
// 3. Environment variables (PETMIG_*, plus LEGACY_DB_URL, DEST_DB_URL, DEFAULT_TENANT,
//    DEFAULT_VET_FALLBACK_NAME and DEFAULT_VET_USER_ID)
//
// Validation is left to the caller so that flags can be applied first.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	// Durations are written as strings ("24h"), so they go through a temp struct.
	type attributionFile struct {
		Strategy string `yaml:"strategy"`
		MaxAge   string `yaml:"max_age"`
	}
	type lockFile struct {
		RedisURL string `yaml:"redis_url"`
		TTL      string `yaml:"ttl"`
	}
	type configFile struct {
		TenantID     string         `yaml:"tenant_id"`
		Legacy       DatabaseConfig `yaml:"legacy"`
		Destination  DatabaseConfig `yaml:"destination"`
		Registry     RegistryConfig `yaml:"registry"`
		Notes        struct {
			FallbackClinicianName string          `yaml:"fallback_clinician_name"`
			MinScore              float64         `yaml:"min_score"`
			Matcher               string          `yaml:"matcher"`
			PrescriptionTokens    []string        `yaml:"prescription_tokens"`
			LabTokens             []string        `yaml:"lab_tokens"`
			Attribution           attributionFile `yaml:"attribution"`
			LabAttribution        string          `yaml:"lab_attribution"`
			Timezone              string          `yaml:"timezone"`
			ChunkSize             int             `yaml:"chunk_size"`
			SampleSize            int             `yaml:"sample_size"`
		} `yaml:"notes"`
		Weights      WeightsConfig  `yaml:"weights"`
		Logging      LoggingConfig  `yaml:"logging"`
		Metrics      MetricsConfig  `yaml:"metrics"`
		Lock         lockFile       `yaml:"lock"`
		Timeout      string         `yaml:"timeout"`
		OutputFormat OutputFormat   `yaml:"output_format"`
		Debug        bool           `yaml:"debug"`
	}

	var fileCfg configFile
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if fileCfg.TenantID != "" {
		cfg.TenantID = fileCfg.TenantID
	}
	cfg.Legacy = mergeDatabase(cfg.Legacy, fileCfg.Legacy)
	cfg.Destination = mergeDatabase(cfg.Destination, fileCfg.Destination)

	n := fileCfg.Notes
	if n.FallbackClinicianName != "" {
		cfg.Notes.FallbackClinicianName = n.FallbackClinicianName
	}
	if n.MinScore != 0 {
		cfg.Notes.MinScore = n.MinScore
	}
	if n.Matcher != "" {
		cfg.Notes.Matcher = n.Matcher
	}
	if n.PrescriptionTokens != nil {
		cfg.Notes.PrescriptionTokens = n.PrescriptionTokens
	}
	if n.LabTokens != nil {
		cfg.Notes.LabTokens = n.LabTokens
	}
	if n.Attribution.Strategy != "" {
		cfg.Notes.Attribution.Strategy = n.Attribution.Strategy
	}
	if n.Attribution.MaxAge != "" {
		d, err := time.ParseDuration(n.Attribution.MaxAge)
		if err != nil {
			return fmt.Errorf("parsing notes.attribution.max_age: %w", err)
		}
		cfg.Notes.Attribution.MaxAge = d
	}
	if n.LabAttribution != "" {
		cfg.Notes.LabAttribution = n.LabAttribution
	}
	if n.Timezone != "" {
		cfg.Notes.Timezone = n.Timezone
	}
	if n.ChunkSize != 0 {
		cfg.Notes.ChunkSize = n.ChunkSize
	}
	if n.SampleSize != 0 {
		cfg.Notes.SampleSize = n.SampleSize
	}

	r := fileCfg.Registry
	if r.DefaultCityID != 0 {
		cfg.Registry.DefaultCityID = r.DefaultCityID
	}
	if r.BreedMinScore != 0 {
		cfg.Registry.BreedMinScore = r.BreedMinScore
	}
	if r.ColorMinScore != 0 {
		cfg.Registry.ColorMinScore = r.ColorMinScore
	}
	if r.ChunkSize != 0 {
		cfg.Registry.ChunkSize = r.ChunkSize
	}

	if fileCfg.Weights.DefaultClinicianID != "" {
		cfg.Weights.DefaultClinicianID = fileCfg.Weights.DefaultClinicianID
	}
	if fileCfg.Weights.ChunkSize != 0 {
		cfg.Weights.ChunkSize = fileCfg.Weights.ChunkSize
	}

	if fileCfg.Logging.Level != "" {
		cfg.Logging.Level = fileCfg.Logging.Level
	}
	cfg.Logging.JSON = fileCfg.Logging.JSON
	if fileCfg.Logging.File != "" {
		cfg.Logging.File = fileCfg.Logging.File
	}

	if fileCfg.Metrics.TextfilePath != "" {
		cfg.Metrics.TextfilePath = fileCfg.Metrics.TextfilePath
	}

	if fileCfg.Lock.RedisURL != "" {
		cfg.Lock.RedisURL = fileCfg.Lock.RedisURL
	}
	if fileCfg.Lock.TTL != "" {
		d, err := time.ParseDuration(fileCfg.Lock.TTL)
		if err != nil {
			return fmt.Errorf("parsing lock.ttl: %w", err)
		}
		cfg.Lock.TTL = d
	}

	if fileCfg.Timeout != "" {
		timeout, err := time.ParseDuration(fileCfg.Timeout)
		if err != nil {
			return fmt.Errorf("parsing timeout: %w", err)
		}
		cfg.Timeout = timeout
	}
	if fileCfg.OutputFormat != "" {
		cfg.OutputFormat = fileCfg.OutputFormat
	}
	cfg.Debug = fileCfg.Debug

	return nil
}

func mergeDatabase(dst, src DatabaseConfig) DatabaseConfig {
	if src.URL != "" {
		dst.URL = src.URL
	}
	if src.Host != "" {
		dst.Host = src.Host
	}
	if src.Port != 0 {
		dst.Port = src.Port
	}
	if src.Database != "" {
		dst.Database = src.Database
	}
	if src.User != "" {
		dst.User = src.User
	}
	if src.SSLMode != "" {
		dst.SSLMode = src.SSLMode
	}
	return dst
}

// loadFromEnv overlays environment variables onto the configuration.
// Unparseable numeric or duration values are reported rather than ignored.
func loadFromEnv(cfg *Config) error {
	if v := firstEnv("PETMIG_TENANT_ID", "DEFAULT_TENANT"); v != "" {
		cfg.TenantID = v
	}

	if v := firstEnv("PETMIG_LEGACY_DB_URL", "LEGACY_DB_URL"); v != "" {
		cfg.Legacy.URL = v
	}
	if v := os.Getenv("PETMIG_LEGACY_DB_PASSWORD"); v != "" {
		cfg.Legacy.Password = v
	}
	if v := firstEnv("PETMIG_DEST_DB_URL", "DEST_DB_URL"); v != "" {
		cfg.Destination.URL = v
	}
	if v := os.Getenv("PETMIG_DEST_DB_PASSWORD"); v != "" {
		cfg.Destination.Password = v
	}

	if v := firstEnv("PETMIG_FALLBACK_CLINICIAN", "DEFAULT_VET_FALLBACK_NAME"); v != "" {
		cfg.Notes.FallbackClinicianName = v
	}
	if v := os.Getenv("PETMIG_MIN_SCORE"); v != "" {
		score, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("PETMIG_MIN_SCORE: %w", err)
		}
		cfg.Notes.MinScore = score
	}
	if v := os.Getenv("PETMIG_MATCHER"); v != "" {
		cfg.Notes.Matcher = v
	}
	if v := os.Getenv("PETMIG_ATTRIBUTION"); v != "" {
		cfg.Notes.Attribution.Strategy = v
	}
	if v := os.Getenv("PETMIG_ATTRIBUTION_MAX_AGE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PETMIG_ATTRIBUTION_MAX_AGE: %w", err)
		}
		cfg.Notes.Attribution.MaxAge = d
	}
	if v := os.Getenv("PETMIG_LAB_ATTRIBUTION"); v != "" {
		cfg.Notes.LabAttribution = v
	}
	if v := os.Getenv("PETMIG_TIMEZONE"); v != "" {
		cfg.Notes.Timezone = v
	}

	if v := firstEnv("PETMIG_DEFAULT_CITY_ID", "DEFAULT_CITY_ID"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DEFAULT_CITY_ID: %w", err)
		}
		cfg.Registry.DefaultCityID = id
	}

	if v := firstEnv("PETMIG_DEFAULT_CLINICIAN_ID", "DEFAULT_VET_USER_ID"); v != "" {
		cfg.Weights.DefaultClinicianID = v
	}

	if v := os.Getenv("PETMIG_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PETMIG_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
	if v := os.Getenv("PETMIG_LOG_JSON"); v == "true" || v == "1" {
		cfg.Logging.JSON = true
	}

	if v := os.Getenv("PETMIG_METRICS_FILE"); v != "" {
		cfg.Metrics.TextfilePath = v
	}

	if v := os.Getenv("PETMIG_REDIS_URL"); v != "" {
		cfg.Lock.RedisURL = v
	}

	if v := os.Getenv("PETMIG_TIMEOUT"); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PETMIG_TIMEOUT: %w", err)
		}
		cfg.Timeout = timeout
	}

	if v := os.Getenv("PETMIG_OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = OutputFormat(v)
	}

	if v := os.Getenv("PETMIG_DEBUG"); v == "true" || v == "1" {
		cfg.Debug = true
	}

	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks the settings every command relies on.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if !c.OutputFormat.IsValid() {
		return fmt.Errorf("invalid output_format: %q (must be text or json)", c.OutputFormat)
	}

	n := c.Notes
	if n.MinScore < 0 || n.MinScore > 100 {
		return fmt.Errorf("notes.min_score must be between 0 and 100, got %v", n.MinScore)
	}
	switch n.Matcher {
	case MatcherExact, MatcherApproximate:
	default:
		return fmt.Errorf("invalid notes.matcher: %q (must be exact or approximate)", n.Matcher)
	}
	switch n.Attribution.Strategy {
	case AttributionLookback, AttributionWindowed:
	default:
		return fmt.Errorf("invalid notes.attribution.strategy: %q (must be lookback or windowed)", n.Attribution.Strategy)
	}
	if n.Attribution.MaxAge <= 0 {
		return fmt.Errorf("notes.attribution.max_age must be positive")
	}
	switch n.LabAttribution {
	case LabAttributionFallback, LabAttributionName:
	default:
		return fmt.Errorf("invalid notes.lab_attribution: %q (must be fallback or name)", n.LabAttribution)
	}
	if n.Timezone != "" {
		if _, err := time.LoadLocation(n.Timezone); err != nil {
			return fmt.Errorf("invalid notes.timezone: %w", err)
		}
	}
	if n.ChunkSize <= 0 || c.Weights.ChunkSize <= 0 || c.Registry.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive")
	}
	for name, score := range map[string]float64{
		"registry.breed_min_score": c.Registry.BreedMinScore,
		"registry.color_min_score": c.Registry.ColorMinScore,
	} {
		if score < 0 || score > 100 {
			return fmt.Errorf("%s must be between 0 and 100, got %v", name, score)
		}
	}
	if c.Registry.DefaultCityID < 0 {
		return fmt.Errorf("registry.default_city_id must not be negative")
	}
	if n.SampleSize < 0 {
		return fmt.Errorf("notes.sample_size must not be negative")
	}

	if c.Lock.RedisURL != "" && c.Lock.TTL <= 0 {
		return fmt.Errorf("lock.ttl must be positive when lock.redis_url is set")
	}

	return nil
}

// ValidateForMigration additionally checks what a migration stage needs.
func (c *Config) ValidateForMigration() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.TenantID == "" {
		return fmt.Errorf("tenant_id is required (set PETMIG_TENANT_ID or DEFAULT_TENANT)")
	}
	if !c.Legacy.IsConfigured() {
		return fmt.Errorf("legacy database is not configured (set LEGACY_DB_URL)")
	}
	if !c.Destination.IsConfigured() {
		return fmt.Errorf("destination database is not configured (set DEST_DB_URL)")
	}
	if strings.TrimSpace(c.Notes.FallbackClinicianName) == "" {
		return fmt.Errorf("notes.fallback_clinician_name is required")
	}
	return nil
}

// Location returns the time zone for note timestamps, UTC when unset.
func (n NotesConfig) Location() *time.Location {
	if n.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(n.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatJSON:
		return true
	default:
		return false
	}
}

// String returns the string representation of the output format.
func (f OutputFormat) String() string {
	return string(f)
}

// SaveConfig writes cfg to the config file. Passwords are never written.
func SaveConfig(cfg *Config) error {
	configPath, err := ConfigPath()
	if err != nil {
		return fmt.Errorf("getting config path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
