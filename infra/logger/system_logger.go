package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity level of a log entry
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelFatal LogLevel = "fatal"
)

var levelOrder = map[LogLevel]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
	LevelFatal: 4,
}

// SystemLog represents a structured system log entry
type SystemLog struct {
	Timestamp   time.Time      `json:"timestamp"`
	Level       LogLevel       `json:"level"`
	Message     string         `json:"message"`
	Component   string         `json:"component"`
	Function    string         `json:"function"`
	File        string         `json:"file"`
	Line        int            `json:"line"`
	UserID      string         `json:"user_id,omitempty"`
	Provider    string         `json:"provider,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	Error       string         `json:"error,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
	Environment string         `json:"environment"`
	Service     string         `json:"service"`
	Version     string         `json:"version"`
}

// Shipper receives log entries for remote storage
type Shipper interface {
	LogSystemEvent(ctx context.Context, entry any) error
}

// SystemLogger writes structured entries to the console and, optionally, a Shipper
type SystemLogger struct {
	shipper       Shipper
	enableConsole bool
	enableShip    bool
	jsonConsole   bool
	minLevel      LogLevel
	service       string
	version       string
	environment   string

	mu  sync.Mutex
	out io.Writer
}

// SystemLoggerConfig represents configuration for system logger
type SystemLoggerConfig struct {
	EnableConsole bool
	EnableShip    bool
	JSONConsole   bool
	MinLevel      LogLevel
	Service       string
	Version       string
	Environment   string
}

// NewSystemLogger creates a new system logger
func NewSystemLogger(shipper Shipper, config SystemLoggerConfig) *SystemLogger {
	return &SystemLogger{
		shipper:       shipper,
		enableConsole: config.EnableConsole,
		enableShip:    config.EnableShip && shipper != nil,
		jsonConsole:   config.JSONConsole,
		minLevel:      config.MinLevel,
		service:       config.Service,
		version:       config.Version,
		environment:   config.Environment,
		out:           os.Stdout,
	}
}

// SetOutput redirects console output
func (sl *SystemLogger) SetOutput(w io.Writer) {
	sl.mu.Lock()
	sl.out = w
	sl.mu.Unlock()
}

// LogContext holds contextual information for logging
type LogContext struct {
	UserID    string
	Provider  string
	RequestID string
	Fields    map[string]any
}

// Debug logs a debug message
func (sl *SystemLogger) Debug(message string, ctx ...LogContext) {
	sl.log(LevelDebug, message, ctx...)
}

// Info logs an info message
func (sl *SystemLogger) Info(message string, ctx ...LogContext) {
	sl.log(LevelInfo, message, ctx...)
}

// Warn logs a warning message
func (sl *SystemLogger) Warn(message string, ctx ...LogContext) {
	sl.log(LevelWarn, message, ctx...)
}

// Error logs an error message, copying err into the entry
func (sl *SystemLogger) Error(message string, err error, ctx ...LogContext) {
	sl.log(LevelError, message, withError(err, ctx)...)
}

// Fatal logs and exits
func (sl *SystemLogger) Fatal(message string, err error, ctx ...LogContext) {
	sl.log(LevelFatal, message, withError(err, ctx)...)
	os.Exit(1)
}

func withError(err error, ctx []LogContext) []LogContext {
	logCtx := LogContext{}
	if len(ctx) > 0 {
		logCtx = ctx[0]
	}

	fields := make(map[string]any, len(logCtx.Fields)+1)
	for k, v := range logCtx.Fields {
		fields[k] = v
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	logCtx.Fields = fields
	return []LogContext{logCtx}
}

func (sl *SystemLogger) log(level LogLevel, message string, ctx ...LogContext) {
	if !sl.shouldLog(level) {
		return
	}

	// skip log, the level method and the package-level helper or ContextLogger
	file, line, function := "unknown", 0, "unknown"
	if pc, f, l, ok := runtime.Caller(3); ok {
		file, line = f, l
		if fn := runtime.FuncForPC(pc); fn != nil {
			function = fn.Name()
			if idx := strings.LastIndex(function, "."); idx != -1 {
				function = function[idx+1:]
			}
		}
	}

	entry := SystemLog{
		Timestamp:   time.Now().UTC(),
		Level:       level,
		Message:     message,
		Component:   extractComponent(file),
		Function:    function,
		File:        file,
		Line:        line,
		Environment: sl.environment,
		Service:     sl.service,
		Version:     sl.version,
	}

	if len(ctx) > 0 {
		c := ctx[0]
		entry.UserID = c.UserID
		entry.Provider = c.Provider
		entry.RequestID = c.RequestID
		entry.Fields = c.Fields
		if errMsg, ok := c.Fields["error"].(string); ok {
			entry.Error = errMsg
		}
	}

	if sl.enableConsole {
		sl.logToConsole(entry)
	}

	if sl.enableShip {
		go sl.ship(entry)
	}
}

func (sl *SystemLogger) shouldLog(level LogLevel) bool {
	return levelOrder[level] >= levelOrder[sl.minLevel]
}

// extractComponent turns .../dukapi/service/order.go into service/order.go's package path
func extractComponent(file string) string {
	parts := strings.Split(file, "/")

	for i, part := range parts {
		if part == "dukapi" && i+1 < len(parts) {
			if i+2 < len(parts) {
				return parts[i+1] + "/" + parts[i+2]
			}
			return parts[i+1]
		}
	}

	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}

	return "unknown"
}

var levelColors = map[LogLevel]string{
	LevelDebug: "\033[36m",
	LevelInfo:  "\033[32m",
	LevelWarn:  "\033[33m",
	LevelError: "\033[31m",
	LevelFatal: "\033[35m",
}

func (sl *SystemLogger) logToConsole(entry SystemLog) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.jsonConsole {
		b, err := json.Marshal(entry)
		if err != nil {
			fmt.Fprintf(sl.out, "log marshal failed: %v\n", err)
			return
		}
		fmt.Fprintln(sl.out, string(b))
		return
	}

	const reset = "\033[0m"

	var contextParts []string
	if entry.UserID != "" {
		contextParts = append(contextParts, "user="+entry.UserID)
	}
	if entry.Provider != "" {
		contextParts = append(contextParts, "provider="+entry.Provider)
	}
	if entry.RequestID != "" {
		id := entry.RequestID
		if len(id) > 8 {
			id = id[:8]
		}
		contextParts = append(contextParts, "req_id="+id)
	}

	prefix := ""
	if len(contextParts) > 0 {
		prefix = "[" + strings.Join(contextParts, " ") + "] "
	}

	suffix := ""
	if entry.Error != "" {
		suffix = " - Error: " + entry.Error
	}

	// [TIMESTAMP] [LEVEL] [COMPONENT] [CONTEXT] MESSAGE
	fmt.Fprintf(sl.out, "%s [%s] [%s] %s%s%s\n",
		entry.Timestamp.Format("2006-01-02 15:04:05"),
		levelColors[entry.Level]+strings.ToUpper(string(entry.Level))+reset,
		entry.Component,
		prefix,
		entry.Message,
		suffix,
	)

	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		if k != "error" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(sl.out, "  %s: %v\n", k, entry.Fields[k])
	}
}

func (sl *SystemLogger) ship(entry SystemLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sl.shipper.LogSystemEvent(ctx, entry); err != nil {
		log.Printf("Failed to ship log entry: %v", err)
	}
}

// WithContext creates a new logger with context
func (sl *SystemLogger) WithContext(ctx LogContext) *ContextLogger {
	return &ContextLogger{
		systemLogger: sl,
		context:      ctx,
	}
}

// ContextLogger wraps SystemLogger with a fixed context
type ContextLogger struct {
	systemLogger *SystemLogger
	context      LogContext
}

// Debug logs a debug message with context
func (cl *ContextLogger) Debug(message string) {
	cl.systemLogger.log(LevelDebug, message, cl.context)
}

// Info logs an info message with context
func (cl *ContextLogger) Info(message string) {
	cl.systemLogger.log(LevelInfo, message, cl.context)
}

// Warn logs a warning message with context
func (cl *ContextLogger) Warn(message string) {
	cl.systemLogger.log(LevelWarn, message, cl.context)
}

// Error logs an error message with context
func (cl *ContextLogger) Error(message string, err error) {
	cl.systemLogger.log(LevelError, message, withError(err, []LogContext{cl.context})...)
}

// AddField adds a field to the context
func (cl *ContextLogger) AddField(key string, value any) *ContextLogger {
	if cl.context.Fields == nil {
		cl.context.Fields = make(map[string]any)
	}
	cl.context.Fields[key] = value
	return cl
}

func (cl *ContextLogger) SetUserID(userID string) *ContextLogger {
	cl.context.UserID = userID
	return cl
}

func (cl *ContextLogger) SetRequestID(requestID string) *ContextLogger {
	cl.context.RequestID = requestID
	return cl
}
