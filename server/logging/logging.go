// Package logging sets up the per-subsystem loggers used across the server.
package logging

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/decred/slog"
)

// Subsystem tags.
const (
	Physics  = "PHYS"
	Rooms    = "ROOM"
	Match    = "MTCH"
	Delivery = "DLVR"
	Gateway  = "GWAY"
	Admin    = "ADMN"
)

// Backend hands out loggers that share one writer and one level.
type Backend struct {
	backend *slog.Backend

	mu      sync.Mutex
	level   slog.Level
	loggers map[string]slog.Logger
}

func New(w io.Writer, level string) (*Backend, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return &Backend{
		backend: slog.NewBackend(w),
		level:   lvl,
		loggers: make(map[string]slog.Logger),
	}, nil
}

// Logger returns the logger for a subsystem, creating it on first use.
func (b *Backend) Logger(subsystem string) slog.Logger {
	b.mu.Lock()
	defer b.mu.Unlock()
	if l, ok := b.loggers[subsystem]; ok {
		return l
	}
	l := b.backend.Logger(subsystem)
	l.SetLevel(b.level)
	b.loggers[subsystem] = l
	return l
}

func ParseLevel(s string) (slog.Level, error) {
	lvl, ok := slog.LevelFromString(strings.ToLower(strings.TrimSpace(s)))
	if !ok {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}
