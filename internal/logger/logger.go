// Package logger sets up structured logging: zap for output,
// lumberjack for rotation. With no log filename configured, output is
// console-encoded to stdout; with one, JSON goes to the rotated file,
// teed with console output. Development mode adds zap's development
// options.
package logger

import (
	"os"

	"github.com/VK7KSM/ElfRadio/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var global *zap.Logger = zap.NewNop()

// Init builds the global logger from the given settings and installs
// it as the package-level default returned by L().
func Init(cfg config.LogSettings, development bool) error {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(cfg.Level); err != nil {
			return err
		}
	}

	var core zapcore.Core
	if cfg.Filename == "" {
		encoder := consoleEncoder()
		core = zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level)
	} else {
		rotator := &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxAge:     cfg.MaxAge,
			MaxBackups: cfg.MaxBackups,
			LocalTime:  true,
			Compress:   true,
		}
		fileCore := zapcore.NewCore(jsonEncoder(), zapcore.AddSync(rotator), level)
		consoleCore := zapcore.NewCore(consoleEncoder(), zapcore.Lock(os.Stdout), level)
		core = zapcore.NewTee(fileCore, consoleCore)
	}

	opts := []zap.Option{zap.AddCaller()}
	if development {
		opts = append(opts, zap.Development())
	}
	global = zap.New(core, opts...)
	return nil
}

func consoleEncoder() zapcore.Encoder {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(encCfg)
}

func jsonEncoder() zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(encCfg)
}

// L returns the global logger. Safe to call before Init; logs are
// simply discarded until Init runs.
func L() *zap.Logger {
	return global
}

// Sync flushes buffered log entries; call before process exit.
func Sync() {
	_ = global.Sync()
}
