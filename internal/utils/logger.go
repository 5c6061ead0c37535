package utils

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const redactedFieldFormat = "[REDACTED:%s]"

// NewApplicationLogger constructs a zap logger configured for human-readable console output.
// An empty level selects info.
func NewApplicationLogger(level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if trimmedLevel := strings.TrimSpace(level); trimmedLevel != "" {
		parsedLevel, parseError := zapcore.ParseLevel(trimmedLevel)
		if parseError != nil {
			return nil, fmt.Errorf("parse log level %q: %w", level, parseError)
		}
		config.Level = zap.NewAtomicLevelAt(parsedLevel)
	}
	config.Encoding = "console"
	config.DisableCaller = true
	config.DisableStacktrace = true
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.NameKey = ""
	config.EncoderConfig.CallerKey = ""
	config.EncoderConfig.MessageKey = "message"
	config.EncoderConfig.StacktraceKey = ""
	return config.Build()
}

// RedactedString creates a zap field that records only the length of a secret value.
func RedactedString(key string, value string) zap.Field {
	return zap.String(key, fmt.Sprintf(redactedFieldFormat, strconv.Itoa(len(value))))
}
