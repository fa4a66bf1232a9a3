package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var validate = validator.New()

// Config holds the settings shared by every command.
type Config struct {
	DataDir  string `validate:"required"`
	Backend  string `validate:"oneof=sqlite json memory"`
	LogLevel string `validate:"oneof=debug info warn warning error"`
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultConfig() Config {
	return Config{
		DataDir:  env("AROWANA_DATA_DIR", "./data"),
		Backend:  env("AROWANA_BACKEND", "sqlite"),
		LogLevel: env("AROWANA_LOG_LEVEL", "info"),
	}
}

func (c *Config) Validate() error {
	c.LogLevel = strings.ToLower(c.LogLevel)
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// newLogger returns a structured json logger writing to stderr.
func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(getLevel(level))
	return cfg.Build(zap.WithCaller(true))
}

func getLevel(level string) zapcore.Level {
	levelMap := map[string]zapcore.Level{
		"error":   zap.ErrorLevel,
		"warn":    zap.WarnLevel,
		"warning": zap.WarnLevel,
		"info":    zap.InfoLevel,
		"debug":   zap.DebugLevel,
	}
	l, ok := levelMap[strings.ToLower(level)]
	if !ok {
		return zap.InfoLevel
	}
	return l
}
