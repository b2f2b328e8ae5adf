package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// ObservedLogs collects the entries written through an observer logger so
// tests can assert on what a component reported.
type ObservedLogs struct {
	*observer.ObservedLogs
}

// Messages returns the message of every entry at level or above, in the
// order logged.
func (o ObservedLogs) Messages(level zapcore.Level) []string {
	var messages []string
	for _, entry := range o.All() {
		if entry.Level >= level {
			messages = append(messages, entry.Message)
		}
	}
	return messages
}

// Fields returns the context of every entry logged with msg.
func (o ObservedLogs) Fields(msg string) []map[string]any {
	var fields []map[string]any
	for _, entry := range o.FilterMessage(msg).All() {
		fields = append(fields, entry.ContextMap())
	}
	return fields
}

// NewObserverLogger returns a logger recording every entry at level or above.
// An unknown level records everything.
func NewObserverLogger(level string) (Logger, ObservedLogs) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		lvl = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	core, logs := observer.New(lvl)
	return &ZapLogger{Logger: zap.New(core)}, ObservedLogs{ObservedLogs: logs}
}
