// Package logging builds the slog loggers used by the imagemerge CLI.
//
// It owns level parsing and the console/JSON handler choice, including the
// "auto" format that picks console output on a terminal and JSON otherwise.
// The library packages never construct handlers themselves; they receive a
// *slog.Logger through imagemerge.Config.
package logging
