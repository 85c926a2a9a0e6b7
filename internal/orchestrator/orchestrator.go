// Package orchestrator drives a document through its lifecycle:
// accepted -> preprocessed -> extracted -> post-processed ->
// persisted-raw, branching to persisted-approved/exported on user
// sign-off or to rejected. It wires preprocessing, vision extraction,
// and storage together behind a small set of narrow collaborator
// interfaces.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bosocmputer/invoice-vision-pipeline/internal/apperr"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/dedup"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/exporter"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/postprocess"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/preprocess"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/store"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/telemetry"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/vision"
)

// Orchestrator is the public entry point the httpapi layer drives.
type Orchestrator struct {
	preprocessor *preprocess.Preprocessor
	vision       vision.Client
	store        store.Store
	dedup        *dedup.Guard
	exporter     exporter.Exporter
	log          *zap.Logger
	metrics      *telemetry.Metrics
	deadline     time.Duration
}

// New wires the collaborators together. exporter may be
// exporter.NopExporter{} when no downstream sink is configured.
// deadline bounds the whole accept->persist pipeline (zero disables
// it) and comes from ORCHESTRATOR_DEADLINE_SECONDS.
func New(pp *preprocess.Preprocessor, vc vision.Client, st store.Store, dg *dedup.Guard, ex exporter.Exporter, log *zap.Logger, metrics *telemetry.Metrics, deadline time.Duration) *Orchestrator {
	return &Orchestrator{preprocessor: pp, vision: vc, store: st, dedup: dg, exporter: ex, log: log, metrics: metrics, deadline: deadline}
}

// ParseRequest is the ingestion endpoint's input (POST /parse).
type ParseRequest struct {
	FileData         []byte
	Mime             string
	OriginalFilename string
	Mode             vision.Mode
	DocTypeHint      string
	Language         string
	Country          string
	UploadedBy       string
}

// ParseResult is returned to the caller whether or not persistence
// succeeded: a persistence failure after extraction still returns the
// extracted payload, with Persisted set to false.
type ParseResult struct {
	DocumentID int64
	Payload    *postprocess.Payload
	Persisted  bool
}

// Parse drives accepted -> preprocessed -> extracted -> post-processed
// -> persisted-raw.
func (o *Orchestrator) Parse(ctx context.Context, req ParseRequest) (*ParseResult, error) {
	if o.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.deadline)
		defer cancel()
	}

	hash := contentHash(req.FileData)
	trace := telemetry.NewTrace(o.log)

	if o.dedup != nil {
		if err := o.dedup.Begin(ctx, hash); err != nil {
			trace.Finish("duplicate")
			return nil, err
		}
		defer o.dedup.End(ctx, hash)
	}

	trace.StartStep("preprocess")
	pages, err := o.preprocessor.Process(req.FileData, req.Mime)
	trace.EndStep(err)
	if err != nil {
		trace.Finish("rejected")
		return nil, err
	}

	mode := req.Mode
	if mode == "" {
		mode = vision.ModeFast
	}

	trace.StartStep("extract")
	visionStarted := time.Now()
	result, err := o.vision.Extract(ctx, pages, mode, req.DocTypeHint)
	if o.metrics != nil {
		o.metrics.VisionCallDuration.WithLabelValues(string(mode)).Observe(time.Since(visionStarted).Seconds())
	}
	trace.EndStep(err)
	if err != nil {
		trace.Finish("extraction_failed")
		return nil, err
	}

	trace.StartStep("postprocess")
	payload, err := postprocess.Merge(trace.Logger(), result.Combined, result.Header, result.Items)
	trace.EndStep(err)
	if err != nil {
		trace.Finish("postprocess_failed")
		return nil, apperr.New(apperr.KindValidationFault, apperr.CodeUnknown, err)
	}

	ocrText := map[int]string{}

	trace.StartStep("persist_raw")
	doc, err := o.store.SaveParsed(ctx, store.SaveParsedInput{
		StoragePath:      req.OriginalFilename,
		OriginalFilename: req.OriginalFilename,
		ContentHash:      hash,
		Mime:             req.Mime,
		ByteSize:         int64(len(req.FileData)),
		UploadedBy:       req.UploadedBy,
		DocTypeCode:      req.DocTypeHint,
		Language:         req.Language,
		Country:          req.Country,
		Payload:          payload,
		PerPageOCRText:   ocrText,
	})
	trace.EndStep(err)
	if err != nil {
		// Persistence failure after extraction: the caller still gets
		// the extracted payload back.
		trace.Finish("persist_failed")
		return &ParseResult{Payload: payload, Persisted: false}, nil
	}

	trace.Finish("persisted_raw")
	return &ParseResult{DocumentID: doc.ID, Payload: payload, Persisted: true}, nil
}

// Approve drives persisted-raw -> persisted-approved -> exported.
// Exporter failure leaves the document in "approved" — export retry
// is out of band and approval is never reverted.
func (o *Orchestrator) Approve(ctx context.Context, documentID int64, approved *postprocess.Payload, userID string) error {
	if err := o.store.SaveApproved(ctx, documentID, approved, userID); err != nil {
		return fmt.Errorf("saving approved document: %w", err)
	}
	if o.exporter != nil {
		if err := o.exporter.Export(ctx, documentID, approved); err != nil {
			o.log.Warn("export failed after approval; document remains approved", zap.Int64("document_id", documentID), zap.Error(err))
		}
	}
	return nil
}

// Reject marks a document rejected without ever writing an APPROVED
// snapshot; RAW state is retained.
func (o *Orchestrator) Reject(ctx context.Context, documentID int64) error {
	return o.store.Reject(ctx, documentID)
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
