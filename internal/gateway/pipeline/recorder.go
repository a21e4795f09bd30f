package pipeline

import (
	"context"
	"log/slog"

	"github.com/mrmushfiq/inference-gateway/internal/shared/models"
)

// RequestLogStore is the persistence slice of the logging collaborator.
type RequestLogStore interface {
	InsertRequestLog(ctx context.Context, log *models.RequestLog) error
}

// LogRecorder emits each outcome as a structured log line and, when a store
// is configured, persists it asynchronously so recording never blocks the
// request path.
type LogRecorder struct {
	logger *slog.Logger
	store  RequestLogStore
}

// NewLogRecorder creates a LogRecorder. store may be nil.
func NewLogRecorder(logger *slog.Logger, store RequestLogStore) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{logger: logger, store: store}
}

// Record emits one outcome record.
func (r *LogRecorder) Record(ctx context.Context, o Outcome) {
	r.logger.Info("request outcome",
		slog.String("principal_id", o.PrincipalID),
		slog.String("model", o.ModelName),
		slog.String("version", o.Version),
		slog.String("outcome", o.Kind.String()),
		slog.Int("status", o.StatusCode),
		slog.Duration("latency", o.Latency),
		slog.String("detail", o.Detail),
	)

	if r.store == nil {
		return
	}

	row := &models.RequestLog{
		ModelName:  o.ModelName,
		Version:    o.Version,
		Outcome:    o.Kind.String(),
		StatusCode: o.StatusCode,
		LatencyMs:  int(o.Latency.Milliseconds()),
	}
	if o.PrincipalID != "" {
		id := o.PrincipalID
		row.PrincipalID = &id
	}
	if o.Detail != "" {
		detail := o.Detail
		row.Detail = &detail
	}

	// Persist asynchronously; a lost row on shutdown is acceptable.
	go func() {
		if err := r.store.InsertRequestLog(context.Background(), row); err != nil {
			r.logger.Error("failed to persist request log", slog.String("error", err.Error()))
		}
	}()
}
