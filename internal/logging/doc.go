// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("App launched", zap.Int("port", 5151))
//	logger.Error("Failed to start server", zap.Error(err))
package logging
