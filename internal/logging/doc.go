// Package logging assembles structured slog loggers and formatting helpers used
// across zapvoice.
//
// It owns the console and JSON handlers, picks between them for the "auto"
// format based on whether stdout is a terminal, and tees output into a JSON
// log file when a log directory is configured. Context helpers tag log lines
// with pledge IDs, recipients, widget session IDs, and correlation IDs so a
// single payment or alert can be followed across components.
//
// A no-op logger is provided for tests and wiring code that cannot fail.
package logging
