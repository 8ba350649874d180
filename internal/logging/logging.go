// Package logging holds the package-level zap loggers used across portflow.
package logging

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var nop = zap.NewNop()

// Slot is a replaceable logger. The zero value logs nothing.
type Slot struct {
	l atomic.Pointer[zap.Logger]
}

// Logger returns the current logger, or a no-op logger if none is set.
func (s *Slot) Logger() *zap.Logger {
	if l := s.l.Load(); l != nil {
		return l
	}
	return nop
}

// Set replaces the logger. A nil logger restores the no-op default.
func (s *Slot) Set(l *zap.Logger) {
	s.l.Store(l)
}
