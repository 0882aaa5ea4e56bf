package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix is the prefix for every environment override (SHOCK_STUDY_PRE_DAYS, ...)
const EnvPrefix = "SHOCK"

// Config represents the complete application configuration
type Config struct {
	Study     StudyConfig     `yaml:"study" envconfig:"STUDY"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Provider  ProviderConfig  `yaml:"provider" envconfig:"PROVIDER"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
}

// StudyConfig holds the event-study window and inference parameters
type StudyConfig struct {
	EventDate string `yaml:"event_date" envconfig:"EVENT_DATE" validate:"omitempty,datetime=2006-01-02"`
	PreDays   int    `yaml:"pre_days" envconfig:"PRE_DAYS" validate:"min=1"`
	PostDays  int    `yaml:"post_days" envconfig:"POST_DAYS" validate:"min=0"`
	GapDays   int    `yaml:"gap_days" envconfig:"GAP_DAYS" validate:"min=0"`
	LeadDays  int    `yaml:"lead_days" envconfig:"LEAD_DAYS" validate:"min=0"`
	CARK1     int    `yaml:"car_k1" envconfig:"CAR_K1" validate:"min=0"`
	CARK2     int    `yaml:"car_k2" envconfig:"CAR_K2" validate:"min=0"`
	CAROrigin string `yaml:"car_origin" envconfig:"CAR_ORIGIN" validate:"oneof=window event"`

	// DiD / DDD relative calendar-day windows
	DiDRelMin int `yaml:"did_rel_min" envconfig:"DID_REL_MIN"`
	DiDRelMax int `yaml:"did_rel_max" envconfig:"DID_REL_MAX" validate:"gtefield=DiDRelMin"`
	DDDRelMin int `yaml:"ddd_rel_min" envconfig:"DDD_REL_MIN"`
	DDDRelMax int `yaml:"ddd_rel_max" envconfig:"DDD_REL_MAX" validate:"gtefield=DDDRelMin"`
	DropStart string `yaml:"drop_start" envconfig:"DROP_START" validate:"omitempty,datetime=2006-01-02"`
	DropEnd   string `yaml:"drop_end" envconfig:"DROP_END" validate:"omitempty,datetime=2006-01-02"`

	KPre  int `yaml:"k_pre" envconfig:"K_PRE" validate:"min=1"`
	KPost int `yaml:"k_post" envconfig:"K_POST" validate:"min=1"`

	MinVolObs         int    `yaml:"min_vol_obs" envconfig:"MIN_VOL_OBS" validate:"min=2"`
	BootstrapSeed     uint64 `yaml:"bootstrap_seed" envconfig:"BOOTSTRAP_SEED"`
	BootstrapCAR      int    `yaml:"bootstrap_car" envconfig:"BOOTSTRAP_CAR" validate:"min=1"`
	BootstrapVol      int    `yaml:"bootstrap_vol" envconfig:"BOOTSTRAP_VOL" validate:"min=1"`
	VolatilityModel   string `yaml:"volatility_model" envconfig:"VOLATILITY_MODEL" validate:"oneof=auto garch stddev"`
	Workers           int    `yaml:"workers" envconfig:"WORKERS" validate:"min=1,max=64"`
	UniverseFile      string `yaml:"universe_file" envconfig:"UNIVERSE_FILE"`
	DownloadStartDate string `yaml:"download_start" envconfig:"DOWNLOAD_START" validate:"omitempty,datetime=2006-01-02"`
	DownloadEndDate   string `yaml:"download_end" envconfig:"DOWNLOAD_END" validate:"omitempty,datetime=2006-01-02"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	BaseDir string `yaml:"base_dir" envconfig:"BASE_DIR"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// ProviderConfig configures the market-data download client
type ProviderConfig struct {
	BaseURL        string        `yaml:"base_url" envconfig:"BASE_URL" validate:"required,url"`
	RequestsPerSec float64       `yaml:"requests_per_sec" envconfig:"REQUESTS_PER_SEC" validate:"gt=0"`
	Burst          int           `yaml:"burst" envconfig:"BURST" validate:"min=1"`
	MaxRetries     int           `yaml:"max_retries" envconfig:"MAX_RETRIES" validate:"min=0,max=10"`
	Timeout        time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	UserAgent      string        `yaml:"user_agent" envconfig:"USER_AGENT"`
}

// TelemetryConfig toggles tracing and metrics export
type TelemetryConfig struct {
	EnableTracing   bool   `yaml:"enable_tracing" envconfig:"ENABLE_TRACING"`
	EnableMetrics   bool   `yaml:"enable_metrics" envconfig:"ENABLE_METRICS"`
	MetricsTextfile string `yaml:"metrics_textfile" envconfig:"METRICS_TEXTFILE"`
}

// ServerConfig contains HTTP server configuration for the results browser
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// Load builds the configuration in layers: defaults, then the YAML file at
// configFile (if any), then a .env file, then SHOCK_* environment variables.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// .env is optional
	_ = godotenv.Load()

	// Fields without a matching variable keep the value from the layers below
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays YAML values onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks the configuration against its struct tags and cross-field rules
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if (c.Study.DropStart == "") != (c.Study.DropEnd == "") {
		return fmt.Errorf("drop_start and drop_end must be set together")
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/shockstudy.log"
	}
	return nil
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Study: StudyConfig{
			PreDays:           120,
			PostDays:          20,
			GapDays:           21,
			LeadDays:          5,
			CARK1:             5,
			CARK2:             10,
			CAROrigin:         "window",
			DiDRelMin:         -10,
			DiDRelMax:         20,
			DDDRelMin:         -10,
			DDDRelMax:         40,
			KPre:              5,
			KPost:             5,
			MinVolObs:         5,
			BootstrapSeed:     42,
			BootstrapCAR:      3000,
			BootstrapVol:      2000,
			VolatilityModel:   "auto",
			Workers:           4,
			DownloadStartDate: "2020-12-01",
			DownloadEndDate:   "2021-06-30",
		},
		Paths: PathsConfig{
			BaseDir: ".",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "console",
			FilePath: "logs/shockstudy.log",
		},
		Provider: ProviderConfig{
			BaseURL:        "https://query1.finance.yahoo.com",
			RequestsPerSec: 2,
			Burst:          1,
			MaxRetries:     3,
			Timeout:        30 * time.Second,
			UserAgent:      "shockstudy/1.0",
		},
		Telemetry: TelemetryConfig{
			EnableTracing: false,
			EnableMetrics: true,
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// EventTime parses the configured event date
func (s StudyConfig) EventTime() (time.Time, error) {
	if s.EventDate == "" {
		return time.Time{}, fmt.Errorf("event date is required")
	}
	return time.Parse(DateLayout, s.EventDate)
}

// Donut returns the optional exclusion window; ok is false when none is set
func (s StudyConfig) Donut() (start, end time.Time, ok bool, err error) {
	if s.DropStart == "" || s.DropEnd == "" {
		return time.Time{}, time.Time{}, false, nil
	}
	start, err = time.Parse(DateLayout, s.DropStart)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("parse drop_start: %w", err)
	}
	end, err = time.Parse(DateLayout, s.DropEnd)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("parse drop_end: %w", err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, false, fmt.Errorf("drop_end %s before drop_start %s", s.DropEnd, s.DropStart)
	}
	return start, end, true, nil
}

// DownloadWindow parses the provider download range
func (s StudyConfig) DownloadWindow() (from, to time.Time, err error) {
	from, err = time.Parse(DateLayout, s.DownloadStartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse download_start: %w", err)
	}
	to, err = time.Parse(DateLayout, s.DownloadEndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse download_end: %w", err)
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("download_end %s must be after download_start %s", s.DownloadEndDate, s.DownloadStartDate)
	}
	return from, to, nil
}
