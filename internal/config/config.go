// Package config centralizes how FairForm reads its settings and exposes them
// as strongly typed Go values. Sources are layered: an optional YAML file,
// then a .env file, then the process environment (highest precedence).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents runtime configuration for the service. It is built once at
// startup and passed by pointer into each component constructor; nothing
// mutates it afterwards.
type Config struct {
	Address string

	TenantID       string
	ClientID       string
	ClientSecret   string
	DriveID        string
	WorkbookItemID string
	ParentFolderID string
	TableName      string

	GraphBaseURL string
	TokenURL     string
	GraphTimeout time.Duration
	GraphRPS     float64
	CacheToken   bool

	MaxFileSize       int64
	UploadConcurrency int

	Formula FormulaConfig

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	WorkerPool    int

	Archive ArchiveConfig
}

// FormulaConfig drives the optional post-append formula patch. The patch is
// disabled when Column is empty. Async moves it onto the in-process pool
// when no Redis queue is configured.
type FormulaConfig struct {
	Column       string `yaml:"column"`
	IDColumn     string `yaml:"id_column"`
	StatusColumn string `yaml:"status_column"`
	BlankToken   string `yaml:"blank_token"`
	SetToken     string `yaml:"set_token"`
	Scope        string `yaml:"scope"`
	Strategy     string `yaml:"strategy"`
	Async        bool   `yaml:"async"`
}

// Enabled reports whether a formula column is configured.
func (f FormulaConfig) Enabled() bool { return f.Column != "" }

// ArchiveConfig points at an S3-compatible bucket that mirrors every uploaded
// attachment. Empty Endpoint disables the mirror.
type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Enabled reports whether the archive mirror is configured.
func (a ArchiveConfig) Enabled() bool { return a.Endpoint != "" }

const (
	defaultPort          = "3000"
	defaultTableName     = "Submissions"
	defaultGraphBaseURL  = "https://graph.microsoft.com/v1.0"
	defaultGraphTimeout  = 60 * time.Second
	defaultMaxFileSize   = 100 << 20 // 100 MiB
	defaultConcurrency   = 1
	defaultWorkerCount   = 2
	defaultFormulaScope  = "row"
	defaultFormulaMethod = "column"
	defaultArchiveBucket = "fairform-archive"
)

// ErrMissingRequired is wrapped by Validate when a required setting is empty.
var ErrMissingRequired = errors.New("missing required configuration")

// fileConfig mirrors the optional YAML file. Every field is optional; the
// environment overrides whatever the file sets.
type fileConfig struct {
	Port  string `yaml:"port"`
	Graph struct {
		TenantID       string  `yaml:"tenant_id"`
		ClientID       string  `yaml:"client_id"`
		ClientSecret   string  `yaml:"client_secret"`
		DriveID        string  `yaml:"drive_id"`
		WorkbookItemID string  `yaml:"workbook_item_id"`
		ParentFolderID string  `yaml:"parent_folder_id"`
		TableName      string  `yaml:"table_name"`
		BaseURL        string  `yaml:"base_url"`
		TokenURL       string  `yaml:"token_url"`
		Timeout        string  `yaml:"timeout"`
		RPS            float64 `yaml:"rps"`
		CacheToken     bool    `yaml:"cache_token"`
	} `yaml:"graph"`
	Upload struct {
		MaxFileBytes int64 `yaml:"max_file_bytes"`
		Concurrency  int   `yaml:"concurrency"`
	} `yaml:"upload"`
	Formula  FormulaConfig `yaml:"formula"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Workers  int    `yaml:"workers"`
	} `yaml:"redis"`
	Archive ArchiveConfig `yaml:"archive"`
}

// Load reads configuration from the optional YAML file named by
// FAIRFORM_CONFIG, a .env file in the working directory (if present) and the
// environment, in increasing order of precedence. It does not validate; call
// Validate before serving traffic.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	var fc fileConfig
	if path := os.Getenv("FAIRFORM_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	return fromEnv(&fc), nil
}

func fromEnv(fc *fileConfig) *Config {
	cfg := &Config{
		Address:        ":" + readEnv("PORT", or(fc.Port, defaultPort)),
		TenantID:       readEnv("GRAPH_TENANT_ID", fc.Graph.TenantID),
		ClientID:       readEnv("GRAPH_CLIENT_ID", fc.Graph.ClientID),
		ClientSecret:   readEnv("GRAPH_CLIENT_SECRET", fc.Graph.ClientSecret),
		DriveID:        readEnv("GRAPH_DRIVE_ID", fc.Graph.DriveID),
		WorkbookItemID: readEnv("GRAPH_WORKBOOK_ITEM_ID", fc.Graph.WorkbookItemID),
		ParentFolderID: readEnv("GRAPH_PARENT_FOLDER_ID", fc.Graph.ParentFolderID),
		TableName:      readEnv("GRAPH_TABLE_NAME", or(fc.Graph.TableName, defaultTableName)),
		GraphBaseURL:   strings.TrimRight(readEnv("GRAPH_BASE_URL", or(fc.Graph.BaseURL, defaultGraphBaseURL)), "/"),
		TokenURL:       readEnv("GRAPH_TOKEN_URL", fc.Graph.TokenURL),
		GraphTimeout:   parseDuration("GRAPH_TIMEOUT", fileDuration(fc.Graph.Timeout, defaultGraphTimeout)),
		GraphRPS:       parseFloat("GRAPH_RPS", fc.Graph.RPS),
		CacheToken:     parseBool("GRAPH_TOKEN_CACHE", fc.Graph.CacheToken),

		MaxFileSize:       parseInt64("MAX_FILE_BYTES", orInt64(fc.Upload.MaxFileBytes, defaultMaxFileSize)),
		UploadConcurrency: parseInt("UPLOAD_CONCURRENCY", orInt(fc.Upload.Concurrency, defaultConcurrency)),

		Formula: FormulaConfig{
			Column:       readEnv("FORMULA_COLUMN", fc.Formula.Column),
			IDColumn:     readEnv("FORMULA_ID_COLUMN", or(fc.Formula.IDColumn, "ID")),
			StatusColumn: readEnv("FORMULA_STATUS_COLUMN", or(fc.Formula.StatusColumn, "Status")),
			BlankToken:   readEnv("FORMULA_BLANK_TOKEN", or(fc.Formula.BlankToken, "PENDING")),
			SetToken:     readEnv("FORMULA_SET_TOKEN", or(fc.Formula.SetToken, "DONE")),
			Scope:        strings.ToLower(readEnv("FORMULA_SCOPE", or(fc.Formula.Scope, defaultFormulaScope))),
			Strategy:     strings.ToLower(readEnv("FORMULA_STRATEGY", or(fc.Formula.Strategy, defaultFormulaMethod))),
			Async:        parseBool("FORMULA_ASYNC", fc.Formula.Async),
		},

		DatabaseURL:   readEnv("DATABASE_URL", fc.Database.URL),
		RedisAddr:     readEnv("REDIS_ADDR", fc.Redis.Addr),
		RedisPassword: readEnv("REDIS_PASSWORD", fc.Redis.Password),
		RedisDB:       parseInt("REDIS_DB", fc.Redis.DB),
		WorkerPool:    parseInt("FAIRFORM_WORKERS", orInt(fc.Redis.Workers, defaultWorkerCount)),

		Archive: ArchiveConfig{
			Endpoint:  readEnv("ARCHIVE_S3_ENDPOINT", fc.Archive.Endpoint),
			AccessKey: readEnv("ARCHIVE_S3_ACCESS_KEY", fc.Archive.AccessKey),
			SecretKey: readEnv("ARCHIVE_S3_SECRET_KEY", fc.Archive.SecretKey),
			Bucket:    readEnv("ARCHIVE_S3_BUCKET", or(fc.Archive.Bucket, defaultArchiveBucket)),
			Region:    readEnv("ARCHIVE_S3_REGION", fc.Archive.Region),
			UseSSL:    parseBool("ARCHIVE_S3_USE_SSL", fc.Archive.UseSSL),
		},
	}
	if cfg.GraphTimeout <= 0 {
		cfg.GraphTimeout = defaultGraphTimeout
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}
	if cfg.UploadConcurrency <= 0 {
		cfg.UploadConcurrency = defaultConcurrency
	}
	if cfg.WorkerPool <= 0 {
		cfg.WorkerPool = defaultWorkerCount
	}
	return cfg
}

// Validate fails when any of the five required Graph settings is empty or a
// formula option holds an unknown value.
func (c *Config) Validate() error {
	var missing []string
	for _, req := range []struct{ key, val string }{
		{"GRAPH_TENANT_ID", c.TenantID},
		{"GRAPH_CLIENT_ID", c.ClientID},
		{"GRAPH_CLIENT_SECRET", c.ClientSecret},
		{"GRAPH_DRIVE_ID", c.DriveID},
		{"GRAPH_WORKBOOK_ITEM_ID", c.WorkbookItemID},
	} {
		if strings.TrimSpace(req.val) == "" {
			missing = append(missing, req.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(missing, ", "))
	}
	if c.Formula.Enabled() {
		if c.Formula.Scope != "row" && c.Formula.Scope != "column" {
			return fmt.Errorf("FORMULA_SCOPE must be row or column, got %q", c.Formula.Scope)
		}
		if c.Formula.Strategy != "table" && c.Formula.Strategy != "column" {
			return fmt.Errorf("FORMULA_STRATEGY must be table or column, got %q", c.Formula.Strategy)
		}
	}
	return nil
}

// Summary renders the configuration for the startup log with secrets masked.
func (c *Config) Summary() string {
	parent := c.ParentFolderID
	if parent == "" {
		parent = "(drive root)"
	}
	return fmt.Sprintf("addr=%s tenant=%s client=%s secret=%s drive=%s workbook=%s parent=%s table=%s formula=%t archive=%t audit=%t queue=%t",
		c.Address, Mask(c.TenantID), Mask(c.ClientID), Mask(c.ClientSecret), Mask(c.DriveID), Mask(c.WorkbookItemID),
		parent, c.TableName, c.Formula.Enabled(), c.Archive.Enabled(), c.DatabaseURL != "", c.RedisAddr != "")
}

// Mask keeps the first and last two characters of a secret.
func Mask(v string) string {
	switch {
	case v == "":
		return "(unset)"
	case len(v) <= 6:
		return "******"
	default:
		return v[:2] + strings.Repeat("*", len(v)-4) + v[len(v)-2:]
	}
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func or(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func orInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func orInt64(v, def int64) int64 {
	if v != 0 {
		return v
	}
	return def
}

func fileDuration(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	if parsed, err := time.ParseDuration(v); err == nil {
		return parsed
	}
	return def
}

func parseInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}
