// Package exporter fans an approved document out to downstream
// tabular sinks. The contract is deliberately narrow: an Exporter only
// needs a document id and its approved payload, so any sink (a queue,
// a spreadsheet writer, an ERP adapter) can implement it without the
// orchestrator knowing which.
package exporter

import (
	"context"

	"go.uber.org/zap"

	"github.com/bosocmputer/invoice-vision-pipeline/internal/postprocess"
)

// Exporter fans an approved document out to a downstream sink.
type Exporter interface {
	Export(ctx context.Context, documentID int64, payload *postprocess.Payload) error
}

// NopExporter discards every export; the default when no downstream
// sink is configured.
type NopExporter struct{}

func (NopExporter) Export(ctx context.Context, documentID int64, payload *postprocess.Payload) error {
	return nil
}

// QueueExporter enqueues a lightweight export job rather than writing
// to a downstream sink directly, so exporter outages never block
// approval. API-facing writes stay separate from asynchronous
// processing.
type QueueExporter struct {
	enqueue func(ctx context.Context, job Job) error
	log     *zap.Logger
}

// Job is the durable unit of work a queue worker consumes.
type Job struct {
	DocumentID int64
	Totals     map[string]interface{}
}

// NewQueueExporter wraps an enqueue function (typically a Redis list
// push or a message broker publish) behind the Exporter contract.
func NewQueueExporter(enqueue func(ctx context.Context, job Job) error, log *zap.Logger) *QueueExporter {
	return &QueueExporter{enqueue: enqueue, log: log}
}

func (e *QueueExporter) Export(ctx context.Context, documentID int64, payload *postprocess.Payload) error {
	totals := make(map[string]interface{}, len(payload.Totals))
	for k, v := range payload.Totals {
		totals[k] = v
	}
	job := Job{DocumentID: documentID, Totals: totals}
	if err := e.enqueue(ctx, job); err != nil {
		e.log.Warn("export enqueue failed", zap.Int64("document_id", documentID), zap.Error(err))
		return err
	}
	return nil
}
