package main

import (
	colorable "github.com/mattn/go-colorable"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// getLogger logs to stderr so command output stays pipeable.
func getLogger(config *viper.Viper) *zap.Logger {
	level := zapcore.InfoLevel
	if config.GetBool("debug") {
		level = zapcore.DebugLevel
	}
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.TimeKey = ""
	return zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(colorable.NewColorableStderr()),
		level,
	))
}
