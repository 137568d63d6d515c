// Package config defines the process configuration for the stop-and-search
// retrieval tool. Configuration is loaded once at startup and is immutable
// thereafter, following 12-Factor principles: values come from the OS
// environment, with a .env file as a lower-priority fallback for local use.
//
// Any invalid value causes startup to fail immediately (fail fast).
package config

import "time"

// Config is the top-level configuration struct. It is populated once
// during process initialization and never modified. Components receive
// only the subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	API       APIConfig
	Retrieval RetrievalConfig
	Export    ExportConfig
}

// APIConfig holds upstream data API connection and resilience tuning.
type APIConfig struct {
	BaseURL   string        `envconfig:"POLICE_API_BASE_URL" default:"https://data.police.uk/api" validate:"required,url"`
	Timeout   time.Duration `envconfig:"POLICE_API_TIMEOUT" default:"30s"`
	UserAgent string        `envconfig:"POLICE_API_USER_AGENT" default:"stopsearch/1.0"`

	// Bounded local retry for transient upstream failures.
	MaxRetries   int           `envconfig:"POLICE_API_MAX_RETRIES" default:"3" validate:"min=0,max=10"`
	RetryMinWait time.Duration `envconfig:"POLICE_API_RETRY_MIN_WAIT" default:"500ms"`
	RetryMaxWait time.Duration `envconfig:"POLICE_API_RETRY_MAX_WAIT" default:"10s"`

	// RequestInterval spaces sequential per-month requests. The upstream
	// is a shared public resource; one request per interval keeps the
	// tool rate-considerate.
	RequestInterval time.Duration `envconfig:"POLICE_API_REQUEST_INTERVAL" default:"500ms"`
}

// RetrievalConfig holds window and flattening defaults.
type RetrievalConfig struct {
	// DefaultMonths is the months-backward count used when the caller
	// does not specify one.
	DefaultMonths int `envconfig:"RETRIEVAL_DEFAULT_MONTHS" default:"12" validate:"min=1,max=120"`

	// Strictness selects the malformed-record policy: "skip" drops the
	// offending record with a logged warning, "fail" aborts the whole
	// flatten.
	Strictness string `envconfig:"FLATTEN_STRICTNESS" default:"skip" validate:"oneof=skip fail"`
}

// ExportConfig holds tabular output options.
type ExportConfig struct {
	// AbsentMarker is written for columns a record never had.
	AbsentMarker string `envconfig:"EXPORT_ABSENT_MARKER" default:""`

	// IncludeIndex prepends a zero-based row-index column.
	IncludeIndex bool `envconfig:"EXPORT_INCLUDE_INDEX" default:"false"`
}
