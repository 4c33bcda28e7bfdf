package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig controls the optional rotating file output.
type FileConfig struct {
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// New builds the service logger: tinted stdout, plus a rotating file when a
// log directory is configured.
func New(cfg FileConfig) *slog.Logger {
	var w io.Writer = os.Stdout
	noColor := false

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err == nil {
			file := &lumberjack.Logger{
				Filename:   filepath.Join(cfg.Dir, "duel-quiz.log"),
				MaxSize:    orDefault(cfg.MaxSizeMB, 50),
				MaxBackups: orDefault(cfg.MaxBackups, 5),
				MaxAge:     orDefault(cfg.MaxAgeDays, 14),
				Compress:   cfg.Compress,
			}
			w = io.MultiWriter(os.Stdout, file)
			noColor = true
		}
	}

	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.RFC3339,
		NoColor:    noColor,
	}))
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
