package logger

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"macd-sentry/pkg/types"
)

// LogFileName 日志文件名
const LogFileName = "macd-sentry.log"

// Init 初始化全局日志
//
// 控制台始终输出，配置了 FilePath 时额外以JSON格式写入滚动日志文件。
// 初始化完成后通过 zap.L() 使用。
func Init(cfg types.LogConfig) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stdout), level),
	}

	if cfg.FilePath != "" {
		if err := os.MkdirAll(cfg.FilePath, 0o755); err != nil {
			return nil, err
		}
		writer := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.FilePath, LogFileName),
			MaxSize:    cfg.MaxSize,
			MaxAge:     cfg.MaxAge,
			MaxBackups: cfg.MaxBackups,
			LocalTime:  true,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(writer), level))
	}

	log := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	zap.ReplaceGlobals(log)
	return log, nil
}

// ParseLevel 解析日志级别，空字符串视为 info
func ParseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if strings.TrimSpace(level) == "" {
		return zapcore.InfoLevel, nil
	}
	if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return l, err
	}
	return l, nil
}
