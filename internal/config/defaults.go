// Package config provides configuration loading and defaults for clinicpulse.
package config

import "time"

// DefaultConfigDir is the default location for clinicpulse configuration.
const DefaultConfigDir = "~/.config/clinicpulse"

// DefaultDBName is the filename for the run-history SQLite database.
const DefaultDBName = "clinicpulse.db"

// DefaultRedisAddr is the default document-store address.
const DefaultRedisAddr = "localhost:6379"

// DefaultKafkaTopic is the topic engine events are published to when brokers
// are configured.
const DefaultKafkaTopic = "clinic.signals"

// DefaultBatch holds the default batch-orchestration parameters. The delay
// between batches is backpressure against the store's write-rate ceiling,
// not a correctness requirement.
var DefaultBatch = Batch{
	Size:        25,
	Concurrency: 10,
	DelayMs:     500,
	WindowDays:  90,
}

// DefaultWatchInterval is how often the watch command re-runs the pass.
const DefaultWatchInterval = time.Hour
