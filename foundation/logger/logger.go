// Package logger provides a convenience function to constructing a logger
// for use. This is required not just for applications but for testing.
package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Rotation settings for the log file.
const (
	thresholdKB = 10 * 1024
	maxRolls    = 3
)

// New constructs a Sugared Logger that writes to stdout and provides human
// readable timestamps. When a log file is provided, the same JSON lines are
// also written to the file and the file is rotated once it gets too big.
func New(service string, logFile ...string) (*zap.SugaredLogger, error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stdout)}

	for _, path := range logFile {
		if path == "" {
			continue
		}

		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return nil, fmt.Errorf("creating log directory: %w", err)
			}
		}

		r, err := rotator.New(path, thresholdKB, false, maxRolls)
		if err != nil {
			return nil, fmt.Errorf("creating log rotator: %w", err)
		}

		sinks = append(sinks, zapcore.Lock(zapcore.AddSync(r)))
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.NewMultiWriteSyncer(sinks...),
		zap.NewAtomicLevelAt(zap.InfoLevel),
	)

	log := zap.New(core, zap.AddCaller(), zap.Fields(zap.String("service", service)))

	return log.Sugar(), nil
}
