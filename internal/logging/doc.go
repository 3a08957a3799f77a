// Package logging builds slog loggers from the utils group of a validated
// configuration. Console output renders single-line "ts LEVEL msg k=v"
// records; JSON output uses the standard handler with lowercase levels and
// UTC timestamps.
package logging
