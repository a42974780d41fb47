package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config struct for environment variables. CLI flags override the values
// loaded here.
type Config struct {
	// ConfigFile is a YAML file carrying the TRTH credentials.
	ConfigFile string `envconfig:"CONFIG_FILE"`

	Username string `envconfig:"TRTH_USERNAME"`
	Password string `envconfig:"TRTH_PASSWORD"`

	ListURL     string `envconfig:"TRTH_LIST_URL" default:"http://tickhistory.thomsonreuters.com/HttpPull/List"`
	DownloadURL string `envconfig:"TRTH_DOWNLOAD_URL" default:"https://tickhistory.thomsonreuters.com/HttpPull/Download"`
	APIURL      string `envconfig:"TRTH_API_URL" default:"https://trth-api.thomsonreuters.com/TRTHApi-5.8/services/TRTHApi"`
	ResultsDir  string `envconfig:"TRTH_RESULTS_DIR" default:"/api-results"`

	TargetDir      string        `envconfig:"TARGET_DIR" default:"."`
	Pattern        string        `envconfig:"PATTERN" default:".*"`
	MaxParallel    int           `envconfig:"MAX_PARALLEL" default:"10"`
	Cancel         bool          `envconfig:"CANCEL_ON_COMPLETE" default:"false"`
	DryRun         bool          `envconfig:"DRY_RUN" default:"false"`
	ReportInterval time.Duration `envconfig:"REPORT_INTERVAL" default:"5s"`

	RetryAttempts   uint          `envconfig:"RETRY_ATTEMPTS" default:"3"`
	RetryBackoff    time.Duration `envconfig:"RETRY_BACKOFF" default:"1s"`
	RetryMultiplier float64       `envconfig:"RETRY_MULTIPLIER" default:"2"`

	KeepDownloadedFor time.Duration `envconfig:"KEEP_DOWNLOADED_FOR" default:"0"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL string        `envconfig:"DISCORD_WEBHOOK_URL"`
	DBPath            string        `envconfig:"DB_PATH" default:"downloads.db"`

	Telemetry struct {
		Enabled        bool          `split_words:"true" default:"true"`
		OTLPEndpoint   string        `envconfig:"OTLP_ENDPOINT"`
		ExportInterval time.Duration `split_words:"true" default:"30s"`
	}

	Web struct {
		BindAddress     string        `split_words:"true"`
		Username        string        `split_words:"true"`
		Password        string        `split_words:"true"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"10s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

type credentialsFile struct {
	Credentials struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"credentials"`
}

// LoadCredentials fills Username and Password from the YAML file at path.
// Values already set take precedence.
func (c *Config) LoadCredentials(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var f credentialsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if c.Username == "" {
		c.Username = f.Credentials.Username
	}

	if c.Password == "" {
		c.Password = f.Credentials.Password
	}

	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Username == "" || c.Password == "" {
		errs = append(errs, errors.New("TRTH credentials are required"))
	}

	if c.MaxParallel < 1 {
		errs = append(errs, fmt.Errorf("max parallel must be at least 1, got %d", c.MaxParallel))
	}

	if c.ReportInterval <= 0 {
		errs = append(errs, fmt.Errorf("report interval must be positive, got %s", c.ReportInterval))
	}

	if c.RetryMultiplier < 1 {
		errs = append(errs, fmt.Errorf("retry multiplier must be at least 1, got %g", c.RetryMultiplier))
	}

	if c.KeepDownloadedFor < 0 {
		errs = append(errs, fmt.Errorf("keep downloaded for must not be negative, got %s", c.KeepDownloadedFor))
	}

	if _, err := regexp.Compile(c.Pattern); err != nil {
		errs = append(errs, fmt.Errorf("invalid pattern: %w", err))
	}

	return errors.Join(errs...)
}

// Selector compiles Pattern. Call Validate first.
func (c *Config) Selector() (*regexp.Regexp, error) {
	re, err := regexp.Compile(c.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}

	return re, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
