// Package logging configures structured slog output for ragindex.
//
// Logs are JSON lines written to a size-rotated file under ~/.ragindex/logs/,
// optionally teed to stderr. Stdio-facing commands (serve) must never write
// logs to stdout or stderr, see SetupQuiet.
package logging
