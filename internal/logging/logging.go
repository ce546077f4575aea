// Package logging builds the zap loggers of the ctoken binaries: a console
// core, an optional rotating file core and an audit core that keeps every
// record at WARN or above.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"ctoken/internal/config"
)

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func rotating(path string) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "log directory")
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	}, nil
}

// New builds a logger from cfg. The returned closer flushes the files.
func New(cfg config.LogConfig, console io.Writer) (*zap.Logger, io.Closer, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, errors.Wrap(err, "log level")
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(console), level),
	}
	var closers multiCloser
	if cfg.File != "" {
		rot, err := rotating(cfg.File)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, rot)
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rot), level))
	}
	if cfg.AuditFile != "" {
		rot, err := rotating(cfg.AuditFile)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, rot)
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rot), zap.WarnLevel))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), closers, nil
}
