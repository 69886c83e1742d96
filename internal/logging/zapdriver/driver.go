// Package zapdriver provides a zap implementation of logging.Driver.
//
// Usage:
//
//	logger := zapdriver.New(zapdriver.DefaultConfig())
//	defer logger.Sync()
package zapdriver

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/madcok-co/asynctask/internal/logging"
)

// Config configures the zap driver.
type Config struct {
	Level     string // debug, info, warn, error
	Format    string // json, console
	Output    string // stdout, stderr, or file path
	AddCaller bool
}

// DefaultConfig returns production-sensible defaults.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Output: "stdout", AddCaller: true}
}

// Driver implements logging.Driver using zap's sugared logger.
type Driver struct {
	logger *zap.Logger
	sugar  *zap.SugaredLogger
}

var _ logging.Driver = (*Driver)(nil)

// New builds a Driver from cfg.
func New(cfg Config) *Driver {
	level := zapLevel(cfg.Level)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	var output zapcore.WriteSyncer
	switch cfg.Output {
	case "stderr":
		output = zapcore.AddSync(os.Stderr)
	case "", "stdout":
		output = zapcore.AddSync(os.Stdout)
	default:
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			output = zapcore.AddSync(os.Stdout)
		} else {
			output = zapcore.AddSync(file)
		}
	}

	core := zapcore.NewCore(encoder, output, level)

	var opts []zap.Option
	if cfg.AddCaller {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}

	logger := zap.New(core, opts...)
	return &Driver{logger: logger, sugar: logger.Sugar()}
}

// NewFromLogger wraps an existing *zap.Logger, e.g. one built from viper
// configuration at startup.
func NewFromLogger(logger *zap.Logger) *Driver {
	return &Driver{logger: logger, sugar: logger.Sugar()}
}

func zapLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Log implements logging.Driver.
func (d *Driver) Log(level logging.Level, msg string, fields ...any) {
	switch level {
	case logging.LevelDebug:
		d.sugar.Debugw(msg, fields...)
	case logging.LevelWarn:
		d.sugar.Warnw(msg, fields...)
	case logging.LevelError:
		d.sugar.Errorw(msg, fields...)
	default:
		d.sugar.Infow(msg, fields...)
	}
}

// Sync flushes any buffered log entries.
func (d *Driver) Sync() error {
	return d.logger.Sync()
}
