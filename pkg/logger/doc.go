// Package logger builds configured log/slog loggers. Production gets JSON at
// info level for log aggregation; development gets text at debug level. The
// small attr helpers keep attribute keys consistent across the codebase.
package logger
