// Package config loads the docketd configuration: defaults, then a YAML
// file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/wudi/docketkit/account"
	"github.com/wudi/docketkit/compliance"
	"github.com/wudi/docketkit/extractor"
	"github.com/wudi/docketkit/mail"
	"github.com/wudi/docketkit/ocr"
	"github.com/wudi/docketkit/pipeline"
	"github.com/wudi/docketkit/recovery"
	"github.com/wudi/docketkit/security"
	"github.com/wudi/docketkit/stock"
)

// Engines are the OCR engine names the binary knows how to build.
var Engines = []string{"noop", "remote", "documentai", "tesseract"}

type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Database   DatabaseConfig    `yaml:"database"`
	Storage    StorageConfig     `yaml:"storage"`
	OCR        ocr.Config        `yaml:"ocr"`
	Pipeline   pipeline.Config   `yaml:"pipeline"`
	Limits     security.Limits   `yaml:"limits"`
	Extraction extractor.Options `yaml:"extraction"`
	Compliance compliance.Rules  `yaml:"compliance"`
	Accounts   account.Config    `yaml:"accounts"`
	Mail       mail.Config       `yaml:"mail"`
	Logging    LoggingConfig     `yaml:"logging"`
	Watch      WatchConfig       `yaml:"watch"`
	Stock      stock.Config      `yaml:"stock"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	Mode            string        `yaml:"mode"` // debug, release or test
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type StorageConfig struct {
	Root   string `yaml:"root"`
	Bucket string `yaml:"bucket"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"` // json or console
}

// WatchConfig drives the inbox watcher. Files dropped in Dir are processed
// for ClientID as UserID.
type WatchConfig struct {
	Dir      string        `yaml:"dir"`
	ClientID string        `yaml:"client_id"`
	UserID   string        `yaml:"user_id"`
	Debounce time.Duration `yaml:"debounce"`
	Priority string        `yaml:"priority"`
}

// Default returns a configuration that runs locally without external
// services.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			Mode:            "release",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
		},
		Database:   DatabaseConfig{Path: "data/docketkit.db"},
		Storage:    StorageConfig{Root: "data/storage", Bucket: "delivery-dockets"},
		OCR:        ocr.DefaultConfig(),
		Pipeline:   pipeline.DefaultConfig(),
		Limits:     security.DefaultLimits(),
		Extraction: extractor.DefaultOptions(),
		Compliance: compliance.DefaultRules(),
		Accounts:   account.DefaultConfig(),
		Mail:       mail.DefaultConfig(),
		Logging:    LoggingConfig{Level: "info", Encoding: "json"},
		Watch:      WatchConfig{Debounce: 2 * time.Second, Priority: "medium"},
		Stock:      stock.DefaultConfig(),
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error when path is empty.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", filepath.Base(path), err)
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	str(&c.Server.Addr, "DOCKETKIT_ADDR")
	str(&c.Database.Path, "DOCKETKIT_DATABASE")
	str(&c.Storage.Root, "DOCKETKIT_STORAGE_ROOT")
	str(&c.OCR.Engine, "DOCKETKIT_OCR_ENGINE")
	str(&c.OCR.Remote.BaseURL, "DOCKETKIT_OCR_URL", "SUPABASE_URL", "NEXT_PUBLIC_SUPABASE_URL")
	str(&c.OCR.Remote.ServiceKey, "DOCKETKIT_OCR_KEY", "SUPABASE_SERVICE_ROLE_KEY")
	str(&c.OCR.DocumentAI.ProjectID, "DOCKETKIT_DOCUMENTAI_PROJECT", "GOOGLE_CLOUD_PROJECT_ID")
	str(&c.OCR.DocumentAI.ProcessorID, "DOCKETKIT_DOCUMENTAI_PROCESSOR", "DOCUMENT_AI_PROCESSOR_ID")
	str(&c.OCR.DocumentAI.CredentialsJSON, "GOOGLE_CLOUD_CREDENTIALS")
	str(&c.OCR.DocumentAI.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	str(&c.Pipeline.Strategy, "DOCKETKIT_STRATEGY")
	str(&c.Mail.Driver, "DOCKETKIT_MAIL_DRIVER")
	str(&c.Mail.BaseURL, "DOCKETKIT_BASE_URL", "NEXT_PUBLIC_APP_URL")
	str(&c.Mail.SMTP.Host, "DOCKETKIT_SMTP_HOST")
	str(&c.Mail.SMTP.Username, "DOCKETKIT_SMTP_USERNAME")
	str(&c.Mail.SMTP.Password, "DOCKETKIT_SMTP_PASSWORD")
	str(&c.Logging.Level, "DOCKETKIT_LOG_LEVEL")
	str(&c.Logging.Encoding, "DOCKETKIT_LOG_ENCODING")
	str(&c.Watch.Dir, "DOCKETKIT_WATCH_DIR")
	str(&c.Stock.Locale, "DOCKETKIT_LOCALE")

	if v, ok := lookup("DOCKETKIT_BATCH_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DOCKETKIT_BATCH_SIZE: %w", err)
		}
		c.Pipeline.BatchSize = n
	}
	if v, ok := lookup("DOCKETKIT_BATCH_DELAY"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DOCKETKIT_BATCH_DELAY: %w", err)
		}
		c.Pipeline.BatchDelay = d
	}
	return nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.Server.Addr == "" {
		bad("server.addr is required")
	}
	if !slices.Contains([]string{"debug", "release", "test"}, c.Server.Mode) {
		bad("server.mode %q must be debug, release or test", c.Server.Mode)
	}
	if c.Database.Path == "" {
		bad("database.path is required")
	}
	if c.Storage.Root == "" || c.Storage.Bucket == "" {
		bad("storage.root and storage.bucket are required")
	}

	switch c.OCR.Engine {
	case "remote":
		if c.OCR.Remote.BaseURL == "" || c.OCR.Remote.ServiceKey == "" {
			bad("ocr.remote needs base_url and service_key")
		}
	case "documentai":
		d := c.OCR.DocumentAI
		if d.ProjectID == "" || d.ProcessorID == "" {
			bad("ocr.documentai needs project_id and processor_id")
		}
	case "", "noop", "tesseract":
	default:
		bad("ocr.engine %q must be one of %v", c.OCR.Engine, Engines)
	}

	if c.Pipeline.BatchSize <= 0 {
		bad("pipeline.batch_size must be positive")
	}
	if c.Pipeline.BatchDelay < 0 {
		bad("pipeline.batch_delay must not be negative")
	}
	if _, err := recovery.New(c.Pipeline.Strategy); err != nil {
		bad("pipeline.strategy: %v", err)
	}
	if c.Limits.MaxFileSize <= 0 || c.Limits.MaxBatchSize <= 0 || c.Limits.MaxFilesPerRequest <= 0 {
		bad("limits must be positive")
	}
	if !slices.Contains([]string{"log", "smtp", "memory"}, c.Mail.Driver) {
		bad("mail.driver %q must be log, smtp or memory", c.Mail.Driver)
	}
	if c.Mail.Driver == "smtp" && c.Mail.SMTP.Host == "" {
		bad("mail.smtp.host is required for the smtp driver")
	}
	if !slices.Contains([]string{"json", "console"}, c.Logging.Encoding) {
		bad("logging.encoding %q must be json or console", c.Logging.Encoding)
	}
	if _, err := language.Parse(c.Stock.Locale); err != nil {
		bad("stock.locale %q: %v", c.Stock.Locale, err)
	}
	if c.Watch.Dir != "" {
		if c.Watch.ClientID == "" || c.Watch.UserID == "" {
			bad("watch.client_id and watch.user_id are required with watch.dir")
		}
		if _, err := pipeline.ParsePriority(c.Watch.Priority); err != nil {
			bad("watch.priority: %v", err)
		}
	}
	return errors.Join(errs...)
}
