package logging

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"sync/atomic"
)

// Logging installs the default logger and returns an exit func which
// reflects whether any error level record was seen.
func Logging() (exit func()) {
	var logLevel slog.LevelVar
	flag.TextVar(&logLevel, "log-level", &logLevel, "Set the logging level")

	h := &errorTrackingHandler{
		Handler: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &logLevel}),
	}

	logger := slog.New(h)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(slog.LevelError)

	return func() {
		if h.hadError.Load() {
			os.Exit(1)
		}
		os.Exit(0)
	}
}

type errorTrackingHandler struct {
	slog.Handler
	hadError atomic.Bool
}

func (h *errorTrackingHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level == slog.LevelError {
		h.hadError.Store(true)
	}
	return h.Handler.Handle(ctx, r)
}
