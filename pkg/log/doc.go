/*
Package log provides structured logging for Burrow using zerolog.

The log package wraps zerolog with a package-level Logger, a small Config for
level and output format, and helpers that create child loggers carrying the
fields Burrow filters on most: component, server_id and op.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Writes to stderr until configured        │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Context Loggers                     │          │
	│  │  - WithComponent("syncer")                  │          │
	│  │  - WithServerID("5f0c...")                  │          │
	│  │  - WithOperation("refreshServerRules")      │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

Logs go to stderr by default so that CLI commands can print their results on
stdout and still be piped.

# Usage

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})

	logger := log.WithComponent("syncer")
	logger.Info().
		Str("server_id", id).
		Int("rules", len(rules)).
		Msg("Rules refreshed")

	logger.Warn().Err(err).Msg("Serving stale rules")

# Security

Never log appliance passwords or EncryptedSecret contents. Log server IDs and
hosts only; usernames are acceptable at debug level.
*/
package log
