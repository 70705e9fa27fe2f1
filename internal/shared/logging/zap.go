package logging

import (
	"log/slog"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type ZapLogger struct {
	log *zap.SugaredLogger
}

// NewZapLogger writes to stdout and, when file.Path is set, to a rotating
// log file as well.
func NewZapLogger(level slog.Level, format string, file FileOptions) Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if format == "text" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	zapLevel := toZapLevel(level)
	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), zapLevel),
	}
	if file.Path != "" {
		writer := &lumberjack.Logger{
			Filename:   file.Path,
			MaxSize:    file.MaxSizeMB,
			MaxBackups: file.MaxBackups,
			MaxAge:     file.MaxAgeDays,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(writer), zapLevel))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	return &ZapLogger{log: logger.Sugar()}
}

func toZapLevel(level slog.Level) zapcore.Level {
	switch {
	case level <= slog.LevelDebug:
		return zapcore.DebugLevel
	case level <= slog.LevelInfo:
		return zapcore.InfoLevel
	case level <= slog.LevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

func (zl *ZapLogger) Debug(msg string, args ...any) {
	zl.log.Debugw(msg, args...)
}

func (zl *ZapLogger) Info(msg string, args ...any) {
	zl.log.Infow(msg, args...)
}

func (zl *ZapLogger) Warn(msg string, args ...any) {
	zl.log.Warnw(msg, args...)
}

func (zl *ZapLogger) Error(msg string, args ...any) {
	zl.log.Errorw(msg, args...)
}

func (zl *ZapLogger) Fatal(msg string, args ...any) {
	zl.log.Errorw(msg, args...)
	_ = zl.log.Sync()
	os.Exit(1)
}

func (zl *ZapLogger) With(args ...any) Logger {
	return &ZapLogger{log: zl.log.With(args...)}
}
