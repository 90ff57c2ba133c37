// Package logging adapts the standard logger to the LoggingGateway port.
package logging

import (
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"

	"mirrord.dev/launch/internal/application/ports"
	"mirrord.dev/launch/internal/core/runconfig"
)

// Prefix is prepended to every line the gateway writes
const Prefix = "[mirrord] "

// Gateway writes leveled lines through a *log.Logger
type Gateway struct {
	mu       sync.RWMutex
	logger   *log.Logger
	logLevel ports.LogLevel
}

// NewGateway creates a gateway writing to w at the given level
func NewGateway(w io.Writer, level ports.LogLevel) *Gateway {
	return &Gateway{
		logger:   log.New(w, Prefix, log.LstdFlags),
		logLevel: level,
	}
}

// FromLogger wraps an existing logger
func FromLogger(logger *log.Logger, level ports.LogLevel) *Gateway {
	return &Gateway{logger: logger, logLevel: level}
}

// Logger returns the underlying logger
func (g *Gateway) Logger() *log.Logger {
	return g.logger
}

func (g *Gateway) Log(level ports.LogLevel, message string, fields map[string]interface{}) {
	if !g.shouldLog(level) {
		return
	}
	g.logger.Printf("%s: %s%s", level, message, formatFields(fields))
}

func (g *Gateway) LogError(err error, message string, fields map[string]interface{}) {
	if !g.shouldLog(ports.LogLevelError) {
		return
	}
	g.logger.Printf("ERROR: %s: %v%s", message, err, formatFields(fields))
}

func (g *Gateway) LogLaunch(id runconfig.LaunchID, env *runconfig.LaunchEnvironment, message string) {
	if !g.shouldLog(ports.LogLevelDebug) {
		return
	}
	name := ""
	if env != nil {
		name = env.Name
	}
	g.logger.Printf("LAUNCH: %s (launch: %s, configuration: %q)", message, id, name)
}

// SetLogLevel sets the logging level
func (g *Gateway) SetLogLevel(level ports.LogLevel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.logLevel = level
}

// GetLogLevel returns the current logging level
func (g *Gateway) GetLogLevel() ports.LogLevel {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.logLevel
}

func (g *Gateway) shouldLog(level ports.LogLevel) bool {
	return level >= g.GetLogLevel()
}

// formatFields renders fields in key order so lines are stable
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, fields[k])
	}
	return " (fields: " + strings.Join(parts, " ") + ")"
}

var _ ports.LoggingGateway = (*Gateway)(nil)
