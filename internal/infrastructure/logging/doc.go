// Package logging provides structured logging for the beadle service.
//
// It wraps the standard log/slog package so every component logs the
// same way:
//
//   - JSON output for production, text output for development
//   - Default fields (service, version) on all entries
//   - Level filtering (debug, info, warn, error)
//   - Attributes named password, token, ticket and similar are redacted
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting service", "port", 8080)
//	logger.Error("failed to open database", "error", err)
package logging
