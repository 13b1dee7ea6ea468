package main

import (
	"log/slog"
	"os"

	"github.com/arborfoundry/scoutagent/pkg/logger"
)

func parseLevel(s string) (slog.Level, error) {
	return logger.ParseLevel(s)
}

func initLogger(level slog.Level, format string) {
	logger.Init(level, os.Stderr, format)
}
