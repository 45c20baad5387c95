package logger

import (
	"sync"

	"github.com/mstgnz/dukapi/infra/config"
)

var (
	globalLogger *SystemLogger
	once         sync.Once
	fallbackMu   sync.Mutex
)

// InitGlobalLogger initializes the global system logger. shipper may be nil.
func InitGlobalLogger(shipper Shipper) {
	once.Do(func() {
		cfg := SystemLoggerConfig{
			EnableConsole: true,
			EnableShip:    shipper != nil,
			MinLevel:      LevelInfo,
			Service:       "dukapi",
			Version:       "1.0.0",
			Environment:   config.GetEnv("ENVIRONMENT", "development"),
		}

		switch cfg.Environment {
		case "development":
			cfg.MinLevel = LevelDebug
		case "production":
			cfg.JSONConsole = true
		}

		globalLogger = NewSystemLogger(shipper, cfg)
	})
}

// GetGlobalLogger returns the global logger, falling back to console-only
func GetGlobalLogger() *SystemLogger {
	fallbackMu.Lock()
	defer fallbackMu.Unlock()

	if globalLogger == nil {
		globalLogger = NewSystemLogger(nil, SystemLoggerConfig{
			EnableConsole: true,
			MinLevel:      LevelInfo,
			Service:       "dukapi",
			Version:       "1.0.0",
			Environment:   "development",
		})
	}
	return globalLogger
}

func Debug(message string, ctx ...LogContext) {
	GetGlobalLogger().Debug(message, ctx...)
}

func Info(message string, ctx ...LogContext) {
	GetGlobalLogger().Info(message, ctx...)
}

func Warn(message string, ctx ...LogContext) {
	GetGlobalLogger().Warn(message, ctx...)
}

func Error(message string, err error, ctx ...LogContext) {
	GetGlobalLogger().Error(message, err, ctx...)
}

func Fatal(message string, err error, ctx ...LogContext) {
	GetGlobalLogger().Fatal(message, err, ctx...)
}

// WithContext creates a context logger from the global logger
func WithContext(ctx LogContext) *ContextLogger {
	return GetGlobalLogger().WithContext(ctx)
}

// WithUser creates a context logger carrying a user id
func WithUser(userID string) *ContextLogger {
	return WithContext(LogContext{UserID: userID})
}

// WithProvider creates a context logger carrying a gateway name
func WithProvider(provider string) *ContextLogger {
	return WithContext(LogContext{Provider: provider})
}
