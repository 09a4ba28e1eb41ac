package logger

import (
	"log/slog"
	"os"
)

const service = "route-survey"

// New пишет JSON в stdout. В dev пишем debug, в остальных окружениях info.
func New(env string) *slog.Logger {
	level := slog.LevelInfo
	if env == "dev" || env == "test" {
		level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("service", service, "env", env)
}
