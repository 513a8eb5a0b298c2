package testutil

import "log/slog"

// DiscardLogger returns a slog.Logger that discards all output. Use it to
// keep test logs quiet; components taking a log.Logger accept it directly
// since that type aliases *slog.Logger.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
