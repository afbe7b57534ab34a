// internal/logger/logger.go
package logger

import (
	"errors"
	"os"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	File       string
	MaxSize    int  // мегабайты
	MaxAge     int  // дни
	MaxBackups int  // количество файлов
	Compress   bool // сжимать ротированные файлы
	Debug      bool
	// Pretty switches the console output to the colored short format.
	Pretty bool
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		File:       "logs/pumpwatch.log",
		MaxSize:    100,
		MaxAge:     7,
		MaxBackups: 3,
		Compress:   true,
	}
}

// New builds a logger writing human readable lines to stdout and JSON lines to
// the rotated log file. An empty File disables the file output.
func New(cfg Config) (*zap.Logger, error) {
	level := levelFor(cfg)

	console := zapcore.NewConsoleEncoder(baseEncoderConfig(cfg.Debug))
	if cfg.Pretty {
		console = PrettyEncoder()
	}

	cores := []zapcore.Core{
		zapcore.NewCore(console, zapcore.Lock(os.Stdout), level),
	}
	if cfg.File != "" {
		cores = append(cores, fileCore(cfg, level))
	}

	return zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	), nil
}

// NewBuffered builds a logger for full-screen terminal UIs: nothing goes to
// stdout, entries land in buf and in the rotated file.
func NewBuffered(cfg Config, buf *Buffer) *zap.Logger {
	level := levelFor(cfg)

	encCfg := baseEncoderConfig(cfg.Debug)
	encCfg.CallerKey = ""
	encCfg.StacktraceKey = ""

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(buf), level),
	}
	if cfg.File != "" {
		cores = append(cores, fileCore(cfg, level))
	}
	return zap.New(zapcore.NewTee(cores...))
}

func fileCore(cfg Config, level zapcore.Level) zapcore.Core {
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	return zapcore.NewCore(zapcore.NewJSONEncoder(baseEncoderConfig(cfg.Debug)), zapcore.AddSync(rotator), level)
}

func baseEncoderConfig(debug bool) zapcore.EncoderConfig {
	encoderConfig := zap.NewProductionEncoderConfig()
	if debug {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	return encoderConfig
}

func levelFor(cfg Config) zapcore.Level {
	if cfg.Debug {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

// Sync flushes l, ignoring the errors terminals return for fsync on stdout.
func Sync(l *zap.Logger) error {
	err := l.Sync()
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}
