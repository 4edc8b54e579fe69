// Package logging provides the firmware's structured logger.
//
// Every record carries a "component" attribute so output from the serial
// console can be filtered by subsystem.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// Component identifies a subsystem for log filtering.
type Component string

// Firmware component identifiers.
const (
	ComponentInput    Component = "input"
	ComponentReport   Component = "report"
	ComponentCommand  Component = "command"
	ComponentStorage  Component = "storage"
	ComponentPedal    Component = "pedal"
	ComponentProtocol Component = "protocol"
	ComponentBoard    Component = "board"
)

var (
	// DefaultLogger is the logger used by all components.
	DefaultLogger *slog.Logger

	logLevel = new(slog.LevelVar)

	// logMutex protects logger configuration.
	logMutex sync.RWMutex
)

func init() {
	logLevel.Set(slog.LevelWarn)
	DefaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// SetLevel sets the minimum level for all firmware logging.
func SetLevel(level slog.Level) {
	logMutex.Lock()
	defer logMutex.Unlock()
	logLevel.Set(level)
}

// Level returns the current minimum level.
func Level() slog.Level {
	logMutex.RLock()
	defer logMutex.RUnlock()
	return logLevel.Level()
}

// SetOutput points the default text logger at w, keeping the current level.
// The firmware uses this to route logs to the USB CDC serial port.
func SetOutput(w io.Writer) {
	logMutex.Lock()
	defer logMutex.Unlock()
	DefaultLogger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

func logger() *slog.Logger {
	logMutex.RLock()
	defer logMutex.RUnlock()
	return DefaultLogger
}

// Debug logs a debug message with the given component.
func Debug(component Component, msg string, args ...any) {
	logger().Debug(msg, append([]any{"component", string(component)}, args...)...)
}

// Info logs an info message with the given component.
func Info(component Component, msg string, args ...any) {
	logger().Info(msg, append([]any{"component", string(component)}, args...)...)
}

// Warn logs a warning message with the given component.
func Warn(component Component, msg string, args ...any) {
	logger().Warn(msg, append([]any{"component", string(component)}, args...)...)
}

// Error logs an error message with the given component.
func Error(component Component, msg string, args ...any) {
	logger().Error(msg, append([]any{"component", string(component)}, args...)...)
}
