package app

import (
	"context"
	"log/slog"

	"github.com/sqlsage/sqlsage/internal/agent"
)

// LogRecorder writes query records to the structured log. It is the default
// query ledger; callers that need durable history swap in their own
// agent.Recorder.
type LogRecorder struct {
	logger *slog.Logger
}

// NewLogRecorder creates a LogRecorder.
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{logger: logger.With("component", "query_ledger")}
}

// Record logs one executed query.
func (r *LogRecorder) Record(_ context.Context, rec agent.QueryRecord) {
	if rec.Success {
		r.logger.Info("query executed",
			"connection_id", rec.ConnectionID,
			"session_id", rec.SessionID,
			"duration", rec.Duration,
		)
		return
	}
	r.logger.Warn("query failed",
		"connection_id", rec.ConnectionID,
		"session_id", rec.SessionID,
		"duration", rec.Duration,
		"error", rec.Error,
	)
}
