/*
 * Copyright 2025 Cong Wang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/timetablegenerator/ttg-legacy/internal/config"
	"github.com/timetablegenerator/ttg-legacy/internal/types"
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

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp  time.Time              `json:"timestamp"`
	Level      LogLevel               `json:"level"`
	Message    string                 `json:"message"`
	Component  string                 `json:"component,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
	SchoolID   string                 `json:"school_id,omitempty"`
	APILevel   string                 `json:"api_level,omitempty"`
	Operation  string                 `json:"operation,omitempty"`
	Duration   *time.Duration         `json:"duration_ms,omitempty"`
	Error      string                 `json:"error,omitempty"`
	StatusCode *int                   `json:"status_code,omitempty"`
	Method     string                 `json:"method,omitempty"`
	Path       string                 `json:"path,omitempty"`
	RemoteAddr string                 `json:"remote_addr,omitempty"`
	UserAgent  string                 `json:"user_agent,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
	Caller     string                 `json:"caller,omitempty"`
}

// Logger provides structured logging functionality
type Logger struct {
	out       *output
	level     LogLevel
	format    string
	component string
	fields    map[string]interface{}
}

// output serializes writes from loggers derived from the same root
type output struct {
	mu sync.Mutex
	w  io.Writer
}

type contextKey string

const requestIDKey contextKey = "request_id"

// NewLogger creates a new logger writing to stdout
func NewLogger(cfg config.LoggingConfig) *Logger {
	return NewLoggerWithWriter(cfg, os.Stdout)
}

// NewLoggerWithWriter creates a logger writing to w
func NewLoggerWithWriter(cfg config.LoggingConfig, w io.Writer) *Logger {
	level := LogLevel(strings.ToLower(cfg.Level))
	if _, ok := levelOrder[level]; !ok {
		level = LevelInfo
	}
	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "json"
	}

	return &Logger{
		out:    &output{w: w},
		level:  level,
		format: format,
		fields: make(map[string]interface{}),
	}
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() *Logger {
	return NewLoggerWithWriter(config.LoggingConfig{Level: "fatal"}, io.Discard)
}

func (l *Logger) derive(component string, fields map[string]interface{}) *Logger {
	return &Logger{
		out:       l.out,
		level:     l.level,
		format:    l.format,
		component: component,
		fields:    fields,
	}
}

// WithComponent creates a new logger with a component name
func (l *Logger) WithComponent(component string) *Logger {
	return l.derive(component, copyFields(l.fields))
}

// WithFields creates a new logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	newFields := copyFields(l.fields)
	for k, v := range fields {
		newFields[k] = v
	}
	return l.derive(l.component, newFields)
}

// WithField creates a new logger with an additional field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithKey creates a new logger tagged with a schedule key
func (l *Logger) WithKey(key types.ScheduleKey) *Logger {
	return l.WithFields(map[string]interface{}{
		"school_id": key.SchoolID,
		"api_level": key.Level.String(),
	})
}

// WithContext creates a new logger with context values
func (l *Logger) WithContext(ctx context.Context) *Logger {
	logger := l.derive(l.component, copyFields(l.fields))
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		logger.fields["request_id"] = requestID
	}
	return logger
}

// Debug logs a debug message
func (l *Logger) Debug(message string) {
	l.log(LevelDebug, message, nil)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(LevelDebug, fmt.Sprintf(format, args...), nil)
}

// Info logs an info message
func (l *Logger) Info(message string) {
	l.log(LevelInfo, message, nil)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(LevelInfo, fmt.Sprintf(format, args...), nil)
}

// Warn logs a warning message
func (l *Logger) Warn(message string) {
	l.log(LevelWarn, message, nil)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(LevelWarn, fmt.Sprintf(format, args...), nil)
}

// Error logs an error message
func (l *Logger) Error(message string, err error) {
	l.log(LevelError, message, err)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(err error, format string, args ...interface{}) {
	l.log(LevelError, fmt.Sprintf(format, args...), err)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(message string, err error) {
	l.log(LevelFatal, message, err)
	os.Exit(1)
}

// LogRequest logs an HTTP request
func (l *Logger) LogRequest(method, path, remoteAddr, userAgent string, statusCode int, duration time.Duration) {
	if !l.shouldLog(LevelInfo) {
		return
	}
	entry := l.createEntry(LevelInfo, "HTTP request", nil)
	entry.Method = method
	entry.Path = path
	entry.RemoteAddr = remoteAddr
	entry.UserAgent = userAgent
	entry.StatusCode = &statusCode
	entry.Duration = &duration
	entry.Operation = "http_request"

	l.writeEntry(entry)
}

// LogStore logs a blob store operation. A nil err with found=false is a
// plain miss and is logged at warn; a non-nil err is logged at error.
func (l *Logger) LogStore(operation string, key types.ScheduleKey, found bool, duration time.Duration, err error) {
	level := LevelInfo
	message := fmt.Sprintf("Store %s %s", operation, key)
	switch {
	case err != nil:
		level = LevelError
		message = fmt.Sprintf("Store %s %s failed", operation, key)
	case !found:
		level = LevelWarn
		message = fmt.Sprintf("Store %s %s: no document", operation, key)
	}
	if !l.shouldLog(level) {
		return
	}

	entry := l.createEntry(level, message, err)
	entry.SchoolID = key.SchoolID
	entry.APILevel = key.Level.String()
	entry.Operation = operation
	entry.Duration = &duration

	l.writeEntry(entry)
}

// log is the internal logging method
func (l *Logger) log(level LogLevel, message string, err error) {
	if !l.shouldLog(level) {
		return
	}
	l.writeEntry(l.createEntry(level, message, err))
}

// createEntry creates a log entry
func (l *Logger) createEntry(level LogLevel, message string, err error) *LogEntry {
	entry := &LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Component: l.component,
		Fields:    copyFields(l.fields),
	}

	if err != nil {
		entry.Error = err.Error()
	}

	// Add caller information for errors and above
	if level == LevelError || level == LevelFatal {
		if pc, file, line, ok := runtime.Caller(3); ok {
			if fn := runtime.FuncForPC(pc); fn != nil {
				entry.Caller = fmt.Sprintf("%s:%d %s", file, line, fn.Name())
			} else {
				entry.Caller = fmt.Sprintf("%s:%d", file, line)
			}
		}
	}

	// Promote well-known fields to top-level entry attributes
	if entry.Fields != nil {
		if v, ok := entry.Fields["request_id"].(string); ok {
			entry.RequestID = v
			delete(entry.Fields, "request_id")
		}
		if v, ok := entry.Fields["school_id"].(string); ok {
			entry.SchoolID = v
			delete(entry.Fields, "school_id")
		}
		if v, ok := entry.Fields["api_level"].(string); ok {
			entry.APILevel = v
			delete(entry.Fields, "api_level")
		}
		if len(entry.Fields) == 0 {
			entry.Fields = nil
		}
	}

	return entry
}

// writeEntry writes a log entry to the output
func (l *Logger) writeEntry(entry *LogEntry) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	if l.format == "text" {
		fmt.Fprintln(l.out.w, formatText(entry))
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		// Fallback to simple text output if JSON marshaling fails
		fmt.Fprintln(l.out.w, formatText(entry))
		return
	}

	fmt.Fprintln(l.out.w, string(data))
}

func formatText(entry *LogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", entry.Timestamp.Format(time.RFC3339), strings.ToUpper(string(entry.Level)))
	if entry.Component != "" {
		fmt.Fprintf(&b, " %s:", entry.Component)
	}
	b.WriteString(" ")
	b.WriteString(entry.Message)
	if entry.SchoolID != "" {
		fmt.Fprintf(&b, " school_id=%s api_level=%s", entry.SchoolID, entry.APILevel)
	}
	if entry.Error != "" {
		fmt.Fprintf(&b, " error=%q", entry.Error)
	}
	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Fields[k])
	}
	return b.String()
}

// shouldLog determines if a message should be logged based on level
func (l *Logger) shouldLog(level LogLevel) bool {
	return levelOrder[level] >= levelOrder[l.level]
}

// copyFields creates a copy of a fields map
func copyFields(fields map[string]interface{}) map[string]interface{} {
	copied := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return copied
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}
