// Package obs builds the structured loggers shared by every component in
// this module. It mirrors the component/fields split the teacher's
// pkg/logging package hand-rolled, but backs it with zap + lumberjack
// instead of a bespoke JSON writer and rotation routine.
package obs

import (
	"os"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level mirrors the teacher's LogLevel enum so call sites read the same way.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case Debug:
		return zapcore.DebugLevel
	case Warn:
		return zapcore.WarnLevel
	case Error:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Config controls where and how logs are written.
type Config struct {
	Level      Level
	OutputFile string // empty => stderr only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Console    bool // human-readable console encoding instead of JSON
}

func (c Config) withDefaults() Config {
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = 100
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = 10
	}
	if c.MaxAgeDays == 0 {
		c.MaxAgeDays = 28
	}
	return c
}

// NewLogger builds a *zap.SugaredLogger tagged with component, the way the
// teacher's NewLogger(component, level, logPath) was tagged.
func NewLogger(component string, cfg Config) (*zap.SugaredLogger, error) {
	cfg = cfg.withDefaults()

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	if cfg.Console {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	sinks := []zapcore.WriteSyncer{zapcore.AddSync(os.Stderr)}
	if cfg.OutputFile != "" {
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.OutputFile,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), cfg.Level.zapLevel())
	logger := zap.New(core, zap.AddCaller()).With(zap.String("component", component))
	return logger.Sugar(), nil
}

// NewNop returns a logger that discards everything, for tests.
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
