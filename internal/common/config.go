package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Logging     LoggingConfig   `toml:"logging"`
	Storage     StorageConfig   `toml:"storage"`
	Workspace   WorkspaceConfig `toml:"workspace"`
	Status      StatusConfig    `toml:"status"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Downloads   DownloadsConfig `toml:"downloads"`
	USPS        USPSConfig      `toml:"usps"`
	RoyalMail   RoyalMailConfig `toml:"royalmail"`
	Parascript  ParaConfig      `toml:"parascript"`
	Tools       ToolsConfig     `toml:"tools"`
	WebSocket   WebSocketConfig `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host" validate:"required"`
}

type LoggingConfig struct {
	Level         string   `toml:"level"`           // "debug", "info", "warn", "error"
	Output        []string `toml:"output"`          // "stdout", "file"
	MinEventLevel string   `toml:"min_event_level"` // minimum level broadcast to status feed clients
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration for the registry
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"`
	ResetOnStartup bool   `toml:"reset_on_startup"` // delete database on startup for clean test runs
}

// WorkspaceConfig defines the filesystem layout. Each module owns
// <root>/<module-id> exclusively; builds publish into <output>/<provider>/<period>.
type WorkspaceConfig struct {
	Root   string `toml:"root" validate:"required"`
	Output string `toml:"output" validate:"required"`
}

// StatusConfig controls the status aggregator cadence
type StatusConfig struct {
	SnapshotInterval time.Duration `toml:"snapshot_interval"`
}

// SchedulerConfig controls cron-triggered crawler runs. When disabled,
// crawls only run on operator command and the startup sweep.
type SchedulerConfig struct {
	Enabled       bool   `toml:"enabled"`
	CrawlSchedule string `toml:"crawl_schedule"` // cron format
}

// DownloadsConfig controls the transfer adapter retry and throttling behavior
type DownloadsConfig struct {
	RetryAttempts  int           `toml:"retry_attempts" validate:"min=1,max=10"`
	RetryBackoff   time.Duration `toml:"retry_backoff"`
	RateLimitBytes int           `toml:"rate_limit_bytes"` // bytes/sec per download, 0 = unlimited
	RequestTimeout time.Duration `toml:"request_timeout"`
}

// USPSConfig configures the USPS EPF portal adapter
type USPSConfig struct {
	PortalURL      string        `toml:"portal_url"`
	Username       string        `toml:"username"`
	Password       string        `toml:"password"`
	Headless       bool          `toml:"headless"`
	BrowserTimeout time.Duration `toml:"browser_timeout"`
	SettleDelay    time.Duration `toml:"settle_delay"` // wait after navigation for the listing grid to render
}

// RoyalMailConfig configures the Royal Mail PAF transfer adapter
type RoyalMailConfig struct {
	BaseURL  string `toml:"base_url"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// ParaConfig configures the Parascript dataset source
type ParaConfig struct {
	BaseURL string `toml:"base_url"`
}

// ToolsConfig locates the external compiler/encryption executables and the
// OS services builders depend on
type ToolsConfig struct {
	USPSCompiler      string        `toml:"usps_compiler"`
	RoyalMailCompiler string        `toml:"royalmail_compiler"`
	RoyalMailSetup    string        `toml:"royalmail_setup"`
	ParascriptEncrypt string        `toml:"parascript_encrypt"`
	DatabaseService   string        `toml:"database_service"` // shared DB engine restarted during USPS builds
	RunTimeout        time.Duration `toml:"run_timeout"`
	ManifestsDir      string        `toml:"manifests_dir"` // per-provider package manifest YAML files
}

// WebSocketConfig contains configuration for WebSocket log streaming
type WebSocketConfig struct {
	MinLevel        string   `toml:"min_level"`
	ExcludePatterns []string `toml:"exclude_patterns"`
}

// NewDefaultConfig creates a configuration with default values.
// Only user-facing settings should be exposed in colligo.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:         "info",
			Output:        []string{"stdout", "file"},
			MinEventLevel: "info",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/registry",
			},
		},
		Workspace: WorkspaceConfig{
			Root:   "./work",
			Output: "./output",
		},
		Status: StatusConfig{
			SnapshotInterval: 1 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:       false,
			CrawlSchedule: "0 6 * * *", // daily 06:00 sweep when enabled
		},
		Downloads: DownloadsConfig{
			RetryAttempts:  3,
			RetryBackoff:   2 * time.Second,
			RateLimitBytes: 0,
			RequestTimeout: 5 * time.Minute,
		},
		USPS: USPSConfig{
			PortalURL:      "https://epf.usps.gov",
			Headless:       true,
			BrowserTimeout: 2 * time.Minute,
			SettleDelay:    3 * time.Second,
		},
		RoyalMail: RoyalMailConfig{
			BaseURL: "https://pafdownload.royalmail.com",
		},
		Parascript: ParaConfig{
			BaseURL: "https://updates.parascript.com",
		},
		Tools: ToolsConfig{
			RunTimeout:   4 * time.Hour,
			ManifestsDir: "./manifests",
		},
		WebSocket: WebSocketConfig{
			MinLevel: "info",
			ExcludePatterns: []string{
				"WebSocket client connected",
				"WebSocket client disconnected",
				"Publishing event",
			},
		},
	}
}

// LoadFromFile loads configuration with priority: defaults -> file -> env
func LoadFromFile(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration against its struct tags
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("COLLIGO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("COLLIGO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("COLLIGO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if badgerPath := os.Getenv("COLLIGO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if root := os.Getenv("COLLIGO_WORKSPACE_ROOT"); root != "" {
		config.Workspace.Root = root
	}
	if output := os.Getenv("COLLIGO_WORKSPACE_OUTPUT"); output != "" {
		config.Workspace.Output = output
	}

	if level := os.Getenv("COLLIGO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("COLLIGO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if user := os.Getenv("COLLIGO_USPS_USERNAME"); user != "" {
		config.USPS.Username = user
	}
	if pass := os.Getenv("COLLIGO_USPS_PASSWORD"); pass != "" {
		config.USPS.Password = pass
	}
	if user := os.Getenv("COLLIGO_ROYALMAIL_USERNAME"); user != "" {
		config.RoyalMail.Username = user
	}
	if pass := os.Getenv("COLLIGO_ROYALMAIL_PASSWORD"); pass != "" {
		config.RoyalMail.Password = pass
	}
}

// IsProduction returns true when running in production mode
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
