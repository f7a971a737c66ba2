// Package config provides the unified configuration system for syncmill.
// A single Config describes the destination database, the remote sources,
// the alerting collaborator, and the list of sync jobs. Jobs are pure
// configuration: one generic orchestrator consumes every job description,
// so adding a remote resource type never means adding code.
package config

import (
	"fmt"
	"time"
)

// Pagination strategies supported by the walker.
const (
	PaginationCursor     = "cursor"
	PaginationOffset     = "offset"
	PaginationDateWindow = "date-window"
)

// Config is the root configuration structure.
type Config struct {
	// Log configures structured logging
	Log LogConfig `yaml:"log" json:"log"`

	// Database configures the destination MySQL store
	Database DatabaseConfig `yaml:"database" json:"database"`

	// Alerting configures the failure notifier
	Alerting AlertingConfig `yaml:"alerting" json:"alerting"`

	// Sources maps a source name to its remote API settings
	Sources map[string]SourceConfig `yaml:"sources" json:"sources"`

	// Jobs lists the synchronization jobs
	Jobs []JobConfig `yaml:"jobs" json:"jobs"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `yaml:"level" json:"level"`
	Encoding    string `yaml:"encoding" json:"encoding"`
	Development bool   `yaml:"development" json:"development"`
}

// DatabaseConfig configures the destination store connection.
type DatabaseConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	Name     string `yaml:"name" json:"name"`

	MaxOpenConns    int      `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// DSN returns the go-sql-driver/mysql data source name.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=false&multiStatements=false",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// AlertingConfig configures run-failure notification. Both channels are
// optional; failures notify every configured channel, fire-and-forget.
type AlertingConfig struct {
	// SMTP mail notification
	SMTPHost string   `yaml:"smtp_host" json:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port" json:"smtp_port"`
	SMTPUser string   `yaml:"smtp_user" json:"smtp_user"`
	SMTPPass string   `yaml:"smtp_pass" json:"smtp_pass"`
	From     string   `yaml:"from" json:"from"`
	To       []string `yaml:"to" json:"to"`

	// Webhook notification
	WebhookURL string `yaml:"webhook_url" json:"webhook_url"`
}

// RetryConfig bounds the fetcher's backoff retry on throttling.
type RetryConfig struct {
	// MaxAttempts is the total attempt budget, including the first try
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`
	// BaseDelay is the wait before the first retry; attempt k waits
	// BaseDelay * 2^k
	BaseDelay Duration `yaml:"base_delay" json:"base_delay"`
	// MaxDelay caps any single wait
	MaxDelay Duration `yaml:"max_delay" json:"max_delay"`
}

// SourceConfig describes one remote API.
type SourceConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`

	// AuthType is "bearer", "basic" or "none"
	AuthType string `yaml:"auth_type" json:"auth_type"`
	Token    string `yaml:"token" json:"token"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`

	// RateLimit is the client-side requests-per-second budget
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`
	RateBurst int     `yaml:"rate_burst" json:"rate_burst"`

	Retry RetryConfig `yaml:"retry" json:"retry"`
}

// StaticColumn declares a fixed destination column fed from a named record
// field. Static columns exist on every run regardless of remote field
// metadata and share the writer's normalization rules.
type StaticColumn struct {
	// Name is the destination column name
	Name string `yaml:"name" json:"name"`
	// Field is the record field the value is copied from
	Field string `yaml:"field" json:"field"`
	// Type is one of text, decimal, boolean, datetime
	Type string `yaml:"type" json:"type"`
	// SQLType overrides the generated DDL type, e.g. VARCHAR(100)
	SQLType string `yaml:"sql_type" json:"sql_type"`
}

// ParentRef declares one candidate parent table for reference resolution.
// Candidates are checked in declaration order; the first whose table
// contains the referenced id wins and the remaining columns stay null.
type ParentRef struct {
	// Field is the record field carrying the candidate parent id
	Field string `yaml:"field" json:"field"`
	// Table is the parent table probed for the id
	Table string `yaml:"table" json:"table"`
	// Key is the parent table's probed column, defaulting to id
	Key string `yaml:"key" json:"key"`
	// Column is the destination foreign-key column
	Column string `yaml:"column" json:"column"`
}

// JobConfig describes one remote-resource-to-table synchronization.
type JobConfig struct {
	Name   string `yaml:"name" json:"name"`
	Source string `yaml:"source" json:"source"`

	// Endpoint is the search path relative to the source base URL
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// FieldsEndpoint is the field-metadata listing path; empty disables
	// dynamic schema synchronization for the job
	FieldsEndpoint string `yaml:"fields_endpoint" json:"fields_endpoint"`
	// Method is the HTTP method for the search call (GET or POST)
	Method string `yaml:"method" json:"method"`

	Table string `yaml:"table" json:"table"`

	// Pagination is cursor, offset or date-window
	Pagination string `yaml:"pagination" json:"pagination"`
	PageSize   int    `yaml:"page_size" json:"page_size"`

	// PageCeiling is the server-side silent truncation limit for
	// date-window jobs
	PageCeiling int `yaml:"page_ceiling" json:"page_ceiling"`
	// WindowDays is the default sub-range length for date-window jobs
	WindowDays int `yaml:"window_days" json:"window_days"`
	// MinWindowDays floors window shrinking
	MinWindowDays int `yaml:"min_window_days" json:"min_window_days"`
	// WindowStart is the backfill start date (YYYY-MM-DD) for a full run
	WindowStart string `yaml:"window_start" json:"window_start"`
	// LookbackDays bounds an incremental run's date range
	LookbackDays int `yaml:"lookback_days" json:"lookback_days"`
	// DateParam is the query parameter carrying the date-range filter
	DateParam string `yaml:"date_param" json:"date_param"`

	// Response envelope keys
	RecordsField string `yaml:"records_field" json:"records_field"`
	TokenField   string `yaml:"token_field" json:"token_field"`
	TotalField   string `yaml:"total_field" json:"total_field"`

	// IdentityField is the mandatory record field used as primary key
	IdentityField string `yaml:"identity_field" json:"identity_field"`
	// KeyColumn is the destination primary key column
	KeyColumn string `yaml:"key_column" json:"key_column"`
	// ColumnPrefix prefixes descriptor-derived column names
	ColumnPrefix string `yaml:"column_prefix" json:"column_prefix"`

	Columns []StaticColumn `yaml:"columns" json:"columns"`
	Parents []ParentRef    `yaml:"parents" json:"parents"`

	// PresenceColumn, when set on an offset job, is reset to 0 before a
	// full walk and set to 1 by every upsert, marking rows that vanished
	// remotely without deleting them
	PresenceColumn string `yaml:"presence_column" json:"presence_column"`

	// Schedule is the cron expression driving the job
	Schedule string `yaml:"schedule" json:"schedule"`
}

// Default returns a Config with production defaults applied.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:    "info",
			Encoding: "json",
		},
		Database: DatabaseConfig{
			Host:            "127.0.0.1",
			Port:            3306,
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: Duration(5 * time.Minute),
		},
		Sources: make(map[string]SourceConfig),
	}
}

// ApplyDefaults fills unset job and source fields with defaults.
func (c *Config) ApplyDefaults() {
	for name, src := range c.Sources {
		if src.AuthType == "" {
			src.AuthType = "none"
		}
		if src.RateLimit == 0 {
			src.RateLimit = 10
		}
		if src.RateBurst == 0 {
			src.RateBurst = 5
		}
		if src.Retry.MaxAttempts == 0 {
			src.Retry.MaxAttempts = 5
		}
		if src.Retry.BaseDelay == 0 {
			src.Retry.BaseDelay = Duration(100 * time.Millisecond)
		}
		if src.Retry.MaxDelay == 0 {
			src.Retry.MaxDelay = Duration(time.Minute)
		}
		c.Sources[name] = src
	}

	for i := range c.Jobs {
		job := &c.Jobs[i]
		if job.Method == "" {
			job.Method = "GET"
		}
		if job.Pagination == "" {
			job.Pagination = PaginationCursor
		}
		if job.PageSize == 0 {
			job.PageSize = 100
		}
		if job.RecordsField == "" {
			job.RecordsField = "data"
		}
		if job.TokenField == "" {
			job.TokenField = "nextPageToken"
		}
		if job.TotalField == "" {
			job.TotalField = "total"
		}
		if job.IdentityField == "" {
			job.IdentityField = "id"
		}
		if job.KeyColumn == "" {
			job.KeyColumn = "id"
		}
		for pi := range job.Parents {
			if job.Parents[pi].Key == "" {
				job.Parents[pi].Key = "id"
			}
		}
		if job.Pagination == PaginationDateWindow {
			if job.WindowDays == 0 {
				job.WindowDays = 6
			}
			if job.MinWindowDays == 0 {
				job.MinWindowDays = 2
			}
			if job.PageCeiling == 0 {
				job.PageCeiling = 1000
			}
			if job.DateParam == "" {
				job.DateParam = "updatedDate"
			}
		}
	}
}

// Validate validates the configuration for correctness.
func (c *Config) Validate() error {
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if len(c.Jobs) == 0 {
		return fmt.Errorf("at least one job is required")
	}

	seen := make(map[string]bool, len(c.Jobs))
	for _, job := range c.Jobs {
		if job.Name == "" {
			return fmt.Errorf("job name is required")
		}
		if seen[job.Name] {
			return fmt.Errorf("duplicate job name %q", job.Name)
		}
		seen[job.Name] = true

		if _, ok := c.Sources[job.Source]; !ok {
			return fmt.Errorf("job %q references unknown source %q", job.Name, job.Source)
		}
		if job.Table == "" {
			return fmt.Errorf("job %q: table is required", job.Name)
		}
		if job.Endpoint == "" {
			return fmt.Errorf("job %q: endpoint is required", job.Name)
		}
		switch job.Pagination {
		case PaginationCursor, PaginationOffset, PaginationDateWindow:
		default:
			return fmt.Errorf("job %q: unknown pagination strategy %q", job.Name, job.Pagination)
		}
		if job.Pagination == PaginationDateWindow {
			if job.MinWindowDays > job.WindowDays {
				return fmt.Errorf("job %q: min_window_days exceeds window_days", job.Name)
			}
		}
		if job.PresenceColumn != "" && job.Pagination != PaginationOffset {
			return fmt.Errorf("job %q: presence_column requires offset pagination", job.Name)
		}
		for _, p := range job.Parents {
			if p.Field == "" || p.Table == "" || p.Column == "" {
				return fmt.Errorf("job %q: parent refs need field, table and column", job.Name)
			}
		}
	}

	for name, src := range c.Sources {
		if src.BaseURL == "" {
			return fmt.Errorf("source %q: base_url is required", name)
		}
		switch src.AuthType {
		case "none", "bearer", "basic":
		default:
			return fmt.Errorf("source %q: unknown auth_type %q", name, src.AuthType)
		}
	}

	return nil
}

// Job returns the job with the given name.
func (c *Config) Job(name string) (JobConfig, bool) {
	for _, job := range c.Jobs {
		if job.Name == name {
			return job, true
		}
	}
	return JobConfig{}, false
}
