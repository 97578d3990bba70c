package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all agent configuration
type Config struct {
	App       AppConfig
	Storage   StorageConfig
	Profile   ProfileConfig
	Registry  RegistryConfig
	Report    ReportConfig
	Printer   PrinterConfig
	Bridge    BridgeConfig
	AutoPrint AutoPrintConfig
	Log       LogConfig
}

// AppConfig holds process-level settings
type AppConfig struct {
	Env  string
	Port string
	Bind string
}

// StorageConfig holds where ledgers and PDFs live
type StorageConfig struct {
	DataDir     string
	PDFRoot     string
	ProfileName string // one job ledger per profile
}

// ProfileConfig holds the local printer profile file settings
type ProfileConfig struct {
	Path   string
	EncKey string // hex, 32 bytes; seals remoteSecret at rest
}

// RegistryConfig holds the remote printer profile source
type RegistryConfig struct {
	Kind         string // "", "http" or "odoo"
	URL          string
	Module       string
	Action       string
	Timeout      time.Duration
	OdooDB       string
	OdooUser     string
	OdooPassword string
	OdooModel    string
}

// ReportConfig holds the upstream report service settings
type ReportConfig struct {
	Path          string
	ParameterName string
	Endpoint      string
	Timeout       time.Duration
}

// PrinterConfig holds OS print subsystem settings
type PrinterConfig struct {
	Timeout time.Duration
}

// BridgeConfig holds the embedded surface channel settings
type BridgeConfig struct {
	Secret string // empty disables token checks
}

// AutoPrintConfig holds the armed-trip sweeper settings
type AutoPrintConfig struct {
	Enabled     bool
	Schedule    string
	Concurrency int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// Load loads configuration.
// Priority (highest to lowest):
// 1. Environment variables with ECKPRINT_ prefix (e.g. ECKPRINT_REPORT_PATH), .env included
// 2. agent.{toml,yaml,json} in . or ~/.eckprint
// 3. Built-in defaults
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	home, _ := os.UserHomeDir()
	defaultDataDir := filepath.Join(home, ".eckprint")

	v := viper.New()
	v.SetConfigName("agent")
	v.AddConfigPath(".")
	v.AddConfigPath(defaultDataDir)

	setDefaults(v, defaultDataDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("ECKPRINT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	dataDir := v.GetString("storage.data_dir")
	pdfRoot := v.GetString("storage.pdf_root")
	if pdfRoot == "" {
		pdfRoot = filepath.Join(dataDir, "pdf")
	}
	profilePath := v.GetString("profile.path")
	if profilePath == "" {
		profilePath = filepath.Join(dataDir, "printer_profile.json")
	}

	cfg := &Config{
		App: AppConfig{
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
			Bind: v.GetString("app.bind"),
		},
		Storage: StorageConfig{
			DataDir:     dataDir,
			PDFRoot:     pdfRoot,
			ProfileName: v.GetString("storage.profile_name"),
		},
		Profile: ProfileConfig{
			Path:   profilePath,
			EncKey: v.GetString("profile.enc_key"),
		},
		Registry: RegistryConfig{
			Kind:         strings.ToLower(v.GetString("registry.kind")),
			URL:          v.GetString("registry.url"),
			Module:       v.GetString("registry.module"),
			Action:       v.GetString("registry.action"),
			Timeout:      v.GetDuration("registry.timeout"),
			OdooDB:       v.GetString("registry.odoo_db"),
			OdooUser:     v.GetString("registry.odoo_user"),
			OdooPassword: v.GetString("registry.odoo_password"),
			OdooModel:    v.GetString("registry.odoo_model"),
		},
		Report: ReportConfig{
			Path:          v.GetString("report.path"),
			ParameterName: v.GetString("report.parameter_name"),
			Endpoint:      v.GetString("report.endpoint"),
			Timeout:       v.GetDuration("report.timeout"),
		},
		Printer: PrinterConfig{
			Timeout: v.GetDuration("printer.timeout"),
		},
		Bridge: BridgeConfig{
			Secret: v.GetString("bridge.secret"),
		},
		AutoPrint: AutoPrintConfig{
			Enabled:     v.GetBool("autoprint.enabled"),
			Schedule:    v.GetString("autoprint.schedule"),
			Concurrency: v.GetInt("autoprint.concurrency"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, dataDir string) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "3033")
	v.SetDefault("app.bind", "127.0.0.1")

	v.SetDefault("storage.data_dir", dataDir)
	v.SetDefault("storage.pdf_root", "")
	v.SetDefault("storage.profile_name", "default")

	v.SetDefault("profile.path", "")
	v.SetDefault("profile.enc_key", "")

	v.SetDefault("registry.kind", "")
	v.SetDefault("registry.url", "")
	v.SetDefault("registry.module", "print")
	v.SetDefault("registry.action", "printerProfile")
	v.SetDefault("registry.timeout", 15*time.Second)
	v.SetDefault("registry.odoo_db", "")
	v.SetDefault("registry.odoo_user", "")
	v.SetDefault("registry.odoo_password", "")
	v.SetDefault("registry.odoo_model", "x_printer_profile")

	v.SetDefault("report.path", "")
	v.SetDefault("report.parameter_name", "P_ORDER_NUMBER")
	v.SetDefault("report.endpoint", "/xmlpserver/services/ExternalReportWSSService")
	v.SetDefault("report.timeout", 120*time.Second)

	v.SetDefault("printer.timeout", 2*time.Minute)

	v.SetDefault("bridge.secret", "")

	v.SetDefault("autoprint.enabled", false)
	v.SetDefault("autoprint.schedule", "@every 30s")
	v.SetDefault("autoprint.concurrency", 4)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
}

// Validate checks values that would otherwise fail late at runtime
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.App.Port); err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid app.port %q", c.App.Port)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	if c.Storage.ProfileName == "" || strings.ContainsAny(c.Storage.ProfileName, `/\`) {
		return fmt.Errorf("invalid storage.profile_name %q", c.Storage.ProfileName)
	}
	switch c.Registry.Kind {
	case "":
	case "http", "odoo":
		if c.Registry.URL == "" {
			return fmt.Errorf("registry.url is required for registry.kind=%s", c.Registry.Kind)
		}
	default:
		return fmt.Errorf("unknown registry.kind %q", c.Registry.Kind)
	}
	if c.Report.Timeout <= 0 || c.Registry.Timeout <= 0 || c.Printer.Timeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.AutoPrint.Concurrency <= 0 {
		c.AutoPrint.Concurrency = 1
	}
	return nil
}

// LedgerPath returns the job ledger file for the configured profile
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Storage.DataDir, "jobs-"+c.Storage.ProfileName+".json")
}

// TripConfigPath returns the trip auto-print config file
func (c *Config) TripConfigPath() string {
	return filepath.Join(c.Storage.DataDir, "trips-"+c.Storage.ProfileName+".json")
}

// ListenAddr returns host:port for the HTTP server
func (c *Config) ListenAddr() string {
	return c.App.Bind + ":" + c.App.Port
}
