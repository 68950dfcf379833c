package env

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation settings for X11_LOG_FILE
const (
	logMaxSizeMB  = 100
	logMaxBackups = 3
	logMaxAgeDays = 28
)

func MakeLogger(conf *Config) (*zap.Logger, error) {
	var logConfig zap.Config

	switch conf.LogFormat {
	case "json", "":
		logConfig = zap.NewProductionConfig()
	case "console":
		logConfig = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", conf.LogFormat)
	}

	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(conf.LogLevel)); err != nil {
		return nil, err
	}
	logConfig.Level = level

	if conf.LogFile == "" {
		return logConfig.Build()
	}

	var encoder zapcore.Encoder
	if logConfig.Encoding == "json" {
		encoder = zapcore.NewJSONEncoder(logConfig.EncoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(logConfig.EncoderConfig)
	}

	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   conf.LogFile,
		MaxSize:    logMaxSizeMB,
		MaxBackups: logMaxBackups,
		MaxAge:     logMaxAgeDays,
		Compress:   true,
	})

	return zap.New(zapcore.NewCore(encoder, writer, level), zap.AddCaller()), nil
}
