package telemetry

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Trace tracks one document's journey through the pipeline with
// per-step timing, emitted as structured zap fields via
// StartStep/EndStep/Finish.
type Trace struct {
	log       *zap.Logger
	RequestID string

	start     time.Time
	stepName  string
	stepStart time.Time
}

// NewTrace begins tracking a new pipeline run.
func NewTrace(log *zap.Logger) *Trace {
	id := uuid.New().String()
	t := &Trace{
		log:       log.With(zap.String("request_id", id)),
		RequestID: id,
		start:     time.Now(),
	}
	t.log.Info("pipeline started")
	return t
}

// StartStep begins timing a named step (preprocess, extract, persist, ...).
func (t *Trace) StartStep(name string) {
	t.stepName = name
	t.stepStart = time.Now()
	t.log.Debug("step started", zap.String("step", name))
}

// EndStep finishes the current step and logs its outcome.
func (t *Trace) EndStep(err error) {
	dur := time.Since(t.stepStart)
	fields := []zap.Field{
		zap.String("step", t.stepName),
		zap.Duration("duration", dur),
	}
	if err != nil {
		t.log.Error("step failed", append(fields, zap.Error(err))...)
	} else {
		t.log.Info("step completed", fields...)
	}
	t.stepName = ""
}

// Finish logs the total wall-clock time for the whole pipeline run.
func (t *Trace) Finish(status string) {
	t.log.Info("pipeline finished",
		zap.String("status", status),
		zap.Duration("total_duration", time.Since(t.start)),
	)
}

// Logger exposes the underlying request-scoped logger for components
// that need to log outside the step lifecycle (e.g. retry attempts).
func (t *Trace) Logger() *zap.Logger { return t.log }
