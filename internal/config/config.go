// Package config assembles the server configuration. Sources are applied in
// order, later ones winning: built-in defaults, an optional YAML file,
// LOSTFOUND_* environment variables (a .env file is loaded first if present)
// and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/erazemk/lostfound/internal/blob"
	"github.com/erazemk/lostfound/internal/notify"
)

// Config is the complete server configuration.
type Config struct {
	Addr      string        `yaml:"addr"`
	DBPath    string        `yaml:"db"`
	LogFile   string        `yaml:"log_file"`
	LogLevel  string        `yaml:"log_level"`
	JWTSecret string        `yaml:"jwt_secret"`
	Blob      BlobConfig    `yaml:"blob"`
	Notify    NotifyConfig  `yaml:"notify"`
	Cleanup   CleanupConfig `yaml:"cleanup"`
}

// BlobConfig selects where item images are kept.
type BlobConfig struct {
	Backend string        `yaml:"backend"` // local or s3
	Dir     string        `yaml:"dir"`
	S3      blob.S3Config `yaml:"s3"`
}

// NotifyConfig selects how notifications are delivered.
type NotifyConfig struct {
	Backend   string            `yaml:"backend"` // log, smtp or ses
	QueueSize int               `yaml:"queue_size"`
	Workers   int               `yaml:"workers"`
	SMTP      notify.SMTPConfig `yaml:"smtp"`
	SES       notify.SESConfig  `yaml:"ses"`
}

// CleanupConfig controls the unsurrendered-report cleanup.
type CleanupConfig struct {
	Schedule   string        `yaml:"schedule"`
	MaxAge     time.Duration `yaml:"max_age"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:     ":8080",
		DBPath:   "lostfound.sqlite3",
		LogLevel: "info",
		Blob: BlobConfig{
			Backend: "local",
			Dir:     "uploads",
		},
		Notify: NotifyConfig{
			Backend:   "log",
			QueueSize: 256,
			Workers:   2,
			SMTP:      notify.SMTPConfig{Port: 587, FromName: "UMak Lost and Found"},
		},
		Cleanup: CleanupConfig{
			Schedule:   "@every 1h",
			MaxAge:     72 * time.Hour,
			RetryDelay: 5 * time.Minute,
		},
	}
}

// Load parses args and builds the configuration. lookupEnv is usually
// os.LookupEnv. It returns the positional arguments left after the flags.
func Load(args []string, lookupEnv func(string) (string, bool)) (*Config, []string, error) {
	flagSet, flags := newFlagSet()
	if err := flagSet.Parse(args); err != nil {
		return nil, nil, err
	}

	cfg := Default()

	path := flags.configPath
	if !flagSet.Changed("config") {
		path, _ = lookupEnv("LOSTFOUND_CONFIG")
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, nil, err
		}
	}

	if err := applyEnv(&cfg, lookupEnv); err != nil {
		return nil, nil, err
	}
	flags.apply(flagSet, &cfg)

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return &cfg, flagSet.Args(), nil
}

// LoadDotEnv loads variables from path into the process environment without
// overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// Validate checks backend names and required settings.
func (c *Config) Validate() error {
	switch c.Blob.Backend {
	case "local":
		if c.Blob.Dir == "" {
			return errors.New("blob directory required for local backend")
		}
	case "s3":
		if c.Blob.S3.Bucket == "" {
			return errors.New("s3 bucket required for s3 blob backend")
		}
	default:
		return fmt.Errorf("unknown blob backend %q", c.Blob.Backend)
	}

	switch c.Notify.Backend {
	case "log":
	case "smtp":
		if c.Notify.SMTP.Host == "" || c.Notify.SMTP.From == "" {
			return errors.New("smtp host and from address required for smtp notifier")
		}
	case "ses":
		if c.Notify.SES.From == "" {
			return errors.New("from address required for ses notifier")
		}
	default:
		return fmt.Errorf("unknown notify backend %q", c.Notify.Backend)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

type envBinding struct {
	key string
	set func(*Config, string) error
}

func str(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func integer(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func duration(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

var envBindings = []envBinding{
	{"LOSTFOUND_ADDR", str(func(c *Config) *string { return &c.Addr })},
	{"LOSTFOUND_DB", str(func(c *Config) *string { return &c.DBPath })},
	{"LOSTFOUND_LOG_FILE", str(func(c *Config) *string { return &c.LogFile })},
	{"LOSTFOUND_LOG_LEVEL", str(func(c *Config) *string { return &c.LogLevel })},
	{"LOSTFOUND_JWT_SECRET", str(func(c *Config) *string { return &c.JWTSecret })},
	{"LOSTFOUND_BLOB_BACKEND", str(func(c *Config) *string { return &c.Blob.Backend })},
	{"LOSTFOUND_BLOB_DIR", str(func(c *Config) *string { return &c.Blob.Dir })},
	{"LOSTFOUND_S3_BUCKET", str(func(c *Config) *string { return &c.Blob.S3.Bucket })},
	{"LOSTFOUND_S3_REGION", str(func(c *Config) *string { return &c.Blob.S3.Region })},
	{"LOSTFOUND_S3_ENDPOINT", str(func(c *Config) *string { return &c.Blob.S3.Endpoint })},
	{"LOSTFOUND_S3_ACCESS_KEY", str(func(c *Config) *string { return &c.Blob.S3.AccessKey })},
	{"LOSTFOUND_S3_SECRET_KEY", str(func(c *Config) *string { return &c.Blob.S3.SecretKey })},
	{"LOSTFOUND_NOTIFY_BACKEND", str(func(c *Config) *string { return &c.Notify.Backend })},
	{"LOSTFOUND_NOTIFY_QUEUE_SIZE", integer(func(c *Config) *int { return &c.Notify.QueueSize })},
	{"LOSTFOUND_NOTIFY_WORKERS", integer(func(c *Config) *int { return &c.Notify.Workers })},
	{"LOSTFOUND_SMTP_HOST", str(func(c *Config) *string { return &c.Notify.SMTP.Host })},
	{"LOSTFOUND_SMTP_PORT", integer(func(c *Config) *int { return &c.Notify.SMTP.Port })},
	{"LOSTFOUND_SMTP_USERNAME", str(func(c *Config) *string { return &c.Notify.SMTP.Username })},
	{"LOSTFOUND_SMTP_PASSWORD", str(func(c *Config) *string { return &c.Notify.SMTP.Password })},
	{"LOSTFOUND_SMTP_FROM", str(func(c *Config) *string { return &c.Notify.SMTP.From })},
	{"LOSTFOUND_SES_REGION", str(func(c *Config) *string { return &c.Notify.SES.Region })},
	{"LOSTFOUND_SES_FROM", str(func(c *Config) *string { return &c.Notify.SES.From })},
	{"LOSTFOUND_CLEANUP_SCHEDULE", str(func(c *Config) *string { return &c.Cleanup.Schedule })},
	{"LOSTFOUND_CLEANUP_MAX_AGE", duration(func(c *Config) *time.Duration { return &c.Cleanup.MaxAge })},
	{"LOSTFOUND_CLEANUP_RETRY_DELAY", duration(func(c *Config) *time.Duration { return &c.Cleanup.RetryDelay })},
}

func applyEnv(cfg *Config, lookupEnv func(string) (string, bool)) error {
	for _, b := range envBindings {
		v, ok := lookupEnv(b.key)
		if !ok || v == "" {
			continue
		}
		if err := b.set(cfg, v); err != nil {
			return fmt.Errorf("invalid %s: %w", b.key, err)
		}
	}
	return nil
}

type flagValues struct {
	configPath string
	addr       string
	dbPath     string
	logFile    string
	logLevel   string
	blobDir    string
	notify     string
}

func newFlagSet() (*pflag.FlagSet, *flagValues) {
	v := &flagValues{}
	flagSet := pflag.NewFlagSet("lostfound", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.Usage = func() {}
	flagSet.StringVarP(&v.configPath, "config", "c", "", "YAML config file")
	flagSet.StringVarP(&v.addr, "addr", "a", "", "listen address (default :8080)")
	flagSet.StringVarP(&v.dbPath, "db", "d", "", "SQLite database path (default lostfound.sqlite3)")
	flagSet.StringVarP(&v.logFile, "log", "l", "", "log file path (default: stdout/stderr only)")
	flagSet.StringVar(&v.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flagSet.StringVar(&v.blobDir, "uploads", "", "directory for item images with the local blob backend")
	flagSet.StringVar(&v.notify, "notify", "", "notification backend: log, smtp or ses")
	return flagSet, v
}

func (v *flagValues) apply(flagSet *pflag.FlagSet, cfg *Config) {
	if flagSet.Changed("addr") {
		cfg.Addr = v.addr
	}
	if flagSet.Changed("db") {
		cfg.DBPath = v.dbPath
	}
	if flagSet.Changed("log") {
		cfg.LogFile = v.logFile
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = v.logLevel
	}
	if flagSet.Changed("uploads") {
		cfg.Blob.Dir = v.blobDir
	}
	if flagSet.Changed("notify") {
		cfg.Notify.Backend = v.notify
	}
}

// Usage returns the flag help text.
func Usage() string {
	flagSet, _ := newFlagSet()
	return flagSet.FlagUsages()
}
