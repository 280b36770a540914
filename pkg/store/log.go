package store

import (
	"fmt"
	"strings"

	"github.com/Hubmakerlabs/postr/pkg/slog"
)

// logger sends badger's output to the package printers, dropping anything
// above Level.
type logger struct {
	Level int
	Label string
}

func (l logger) emit(level int, p slog.LevelPrinter, s string, i ...interface{}) {
	if l.Level < level || slog.GetLogLevel() < level {
		return
	}
	p.Ln(l.Label + ": " + strings.TrimSpace(fmt.Sprintf(s, i...)))
}

func (l logger) Errorf(s string, i ...interface{}) {
	l.emit(slog.Error, log.E, s, i...)
}

func (l logger) Warningf(s string, i ...interface{}) {
	l.emit(slog.Warn, log.W, s, i...)
}

func (l logger) Infof(s string, i ...interface{}) {
	l.emit(slog.Info, log.I, s, i...)
}

func (l logger) Debugf(s string, i ...interface{}) {
	l.emit(slog.Debug, log.D, s, i...)
}
