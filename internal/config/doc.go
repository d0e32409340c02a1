// Package config defines the configuration of the log driver e2e harness.
//
// # Configuration Structure
//
//	Configuration
//	├── Agent      - plugin binary and startup
//	├── Control    - control socket and the options sent with StartLogging
//	├── Search     - search REST API, retry policy and poll budget
//	├── Producer   - named pipe and record defaults
//	├── Harness    - scenario timing and workers
//	├── LogFormat  - console or json
//	├── LogLevel   - logging verbosity
//	└── LogFile    - optional rotating JSON log file
//
// Defaults are declared as `default` struct tags and applied by
// NewConfigurationWithDefaults.
//
// # Search Configuration
//
//	┌──────────────────┬──────────────────────────┬──────────────────────────────────┐
//	│ Field            │ Default                  │ Description                      │
//	├──────────────────┼──────────────────────────┼──────────────────────────────────┤
//	│ URL              │ "https://localhost:8089" │ REST API base url                │
//	│ Username         │ "admin"                  │ basic auth user                  │
//	│ Password         │ "changeme"               │ basic auth password (hidden)     │
//	│ Index            │ "main"                   │ default index                    │
//	│ PollInterval     │ 1s                       │ delay between status polls       │
//	│ MaxPolls         │ 500                      │ polls before giving up           │
//	│ MaxRetries       │ 10                       │ attempts per request             │
//	│ BackoffBase      │ 100ms                    │ first retry delay                │
//	│ BackoffMax       │ 5s                       │ largest retry delay              │
//	│ RetryStatusCodes │ [500, 502, 504]          │ statuses worth retrying          │
//	│ RequestTimeout   │ 30s                      │ timeout of one request           │
//	└──────────────────┴──────────────────────────┴──────────────────────────────────┘
//
// # Sources
//
// Every field has a flag named <section>-<field> (RegisterFlags), e.g.
// --search-max-polls. Values are resolved in this order, first wins:
//
//	explicit flag  >  LOGDRIVER_E2E_* environment (.env included)  >  config file  >  default
//
// The environment is synced into the flags by cobrautil.SyncViperPreRunE in
// the CLI; Load then fills the flags that are still unset from the file.
//
// # Debug Logging
//
// Fields tagged `debugmap:"hidden"` (passwords and tokens) are masked by
// DebugMap:
//
//	zap.S().Debugw("configuration", "config", cfg.DebugMap())
package config
