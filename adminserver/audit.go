package adminserver

import (
	"context"
	"time"

	"github.com/cyberinferno/pzrcon/logger"
)

// AuditEntry records one command execution.
type AuditEntry struct {
	ServerID  int       `json:"server_id"`
	Command   string    `json:"command"`
	Response  string    `json:"response,omitempty"`
	Error     string    `json:"error,omitempty"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditSink persists audit entries. Persistence itself lives outside this
// module; a failing sink never fails the command it records.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// LogAuditSink writes audit entries to a logger.
type LogAuditSink struct {
	log logger.Logger
}

// NewLogAuditSink creates an AuditSink logging at info level, failures at warn.
func NewLogAuditSink(log logger.Logger) *LogAuditSink {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &LogAuditSink{log: log.With(logger.Field{Key: "component", Value: "audit"})}
}

// Record implements AuditSink.
func (s *LogAuditSink) Record(_ context.Context, entry AuditEntry) error {
	fields := []logger.Field{
		{Key: "server_id", Value: entry.ServerID},
		{Key: "command", Value: redactCommand(entry.Command)},
		{Key: "success", Value: entry.Success},
		{Key: "at", Value: entry.Timestamp},
	}

	if !entry.Success {
		s.log.Warn("command failed", append(fields, logger.Field{Key: "error", Value: entry.Error})...)
		return nil
	}

	s.log.Info("command executed", append(fields, logger.Field{Key: "response_bytes", Value: len(entry.Response)})...)
	return nil
}
