package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultFacility is the name of the production log facility the service
// binds to when none is configured.
const DefaultFacility = "server.error"

// Options tune the production logger.
type Options struct {
	// Facility names the logger; every record carries it in the "logger" key.
	Facility string
	// Level is one of debug, info, warn, error, dpanic, panic, fatal.
	Level string
	// Encoding is "json" or "console".
	Encoding string
	// OutputPaths defaults to stderr.
	OutputPaths []string
}

// New creates a production-ready structured logger configured for JSON output.
func New(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.StacktraceKey = "stacktrace"
	cfg.DisableStacktrace = false

	if lvl := strings.TrimSpace(opts.Level); lvl != "" {
		level, err := zap.ParseAtomicLevel(strings.ToLower(lvl))
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		cfg.Level = level
	}

	switch enc := strings.ToLower(strings.TrimSpace(opts.Encoding)); enc {
	case "", "json":
	case "console":
		cfg.Encoding = enc
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	default:
		return nil, fmt.Errorf("unsupported log encoding %q", opts.Encoding)
	}

	if len(opts.OutputPaths) > 0 {
		cfg.OutputPaths = opts.OutputPaths
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	facility := strings.TrimSpace(opts.Facility)
	if facility == "" {
		facility = DefaultFacility
	}
	return logger.Named(facility), nil
}
