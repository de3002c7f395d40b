// Package logging builds the zap loggers used by both binaries.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rolvdeihai/rtsp-stream-viewer/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger configured from cfg. When cfg.File is set the parent
// directory is created and logs are appended there instead of stderr; the
// viewer needs this because the terminal belongs to the UI.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging level %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		zc.Development = false
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Encoding = cfg.Format
	if zc.Encoding == "" {
		zc.Encoding = "console"
	}
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o700); err != nil {
			return nil, fmt.Errorf("creating log dir: %w", err)
		}
		zc.OutputPaths = []string{cfg.File}
		zc.ErrorOutputPaths = []string{cfg.File}
	} else {
		zc.OutputPaths = []string{"stderr"}
		zc.ErrorOutputPaths = []string{"stderr"}
	}

	return zc.Build()
}
