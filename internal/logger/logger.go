package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a new zap.Logger instance based on the provided configuration.
// format "json" selects the production encoder, anything else the console one.
// components overrides the level of named child loggers, keyed by the first
// segment of the name given to Named ("quote", "sheets", "engine", ...).
func NewLogger(level string, format string, components map[string]string) (*zap.Logger, error) {
	logLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	levels := make(map[string]zapcore.Level, len(components))
	floor := logLevel
	for name, l := range components {
		lvl, err := zapcore.ParseLevel(l)
		if err != nil {
			return nil, fmt.Errorf("logger level for %q: %w", name, err)
		}
		levels[strings.ToLower(name)] = lvl
		if lvl < floor {
			floor = lvl
		}
	}

	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	cfg.Level = zap.NewAtomicLevelAt(floor)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.InitialFields = map[string]interface{}{"app": "asset-tracker"}

	if len(levels) == 0 {
		return cfg.Build()
	}
	return cfg.Build(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return WithComponentLevels(core, logLevel, levels)
	}))
}

// componentCore filters entries by the level of the component that wrote
// them. The wrapped core must be enabled at the lowest of those levels.
type componentCore struct {
	zapcore.Core
	base   zapcore.Level
	levels map[string]zapcore.Level
}

// WithComponentLevels wraps core so entries of a named logger are kept only
// at or above that component's level, and all others at or above base.
func WithComponentLevels(core zapcore.Core, base zapcore.Level, levels map[string]zapcore.Level) zapcore.Core {
	return &componentCore{Core: core, base: base, levels: levels}
}

func (c *componentCore) levelFor(loggerName string) zapcore.Level {
	component, _, _ := strings.Cut(loggerName, ".")
	if lvl, ok := c.levels[strings.ToLower(component)]; ok {
		return lvl
	}
	return c.base
}

func (c *componentCore) With(fields []zapcore.Field) zapcore.Core {
	return &componentCore{Core: c.Core.With(fields), base: c.base, levels: c.levels}
}

func (c *componentCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if ent.Level < c.levelFor(ent.LoggerName) {
		return ce
	}
	return c.Core.Check(ent, ce)
}
