package host

import (
	"log/slog"
	"sync"
)

// LoggingLocation stands in for a platform location provider: it tracks
// whether it is running and logs transitions. Fixes arrive through the
// location-changed events injected over the API.
type LoggingLocation struct {
	mu      sync.Mutex
	running bool
	starts  int
	logger  *slog.Logger
}

// NewLoggingLocation returns a stopped LoggingLocation.
func NewLoggingLocation(logger *slog.Logger) *LoggingLocation {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingLocation{logger: logger}
}

func (l *LoggingLocation) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	l.running = true
	l.starts++
	l.logger.Info("location service started")
}

func (l *LoggingLocation) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	l.running = false
	l.logger.Info("location service stopped")
}

// Running reports whether the service is started.
func (l *LoggingLocation) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Starts counts how many times the service went from stopped to running.
func (l *LoggingLocation) Starts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.starts
}
