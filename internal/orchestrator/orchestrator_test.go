package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bosocmputer/invoice-vision-pipeline/internal/apperr"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/domain"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/exporter"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/postprocess"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/preprocess"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/store"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/vision"
)

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fakeVisionClient struct {
	result vision.Result
	err    error
}

func (f *fakeVisionClient) Extract(ctx context.Context, pages []preprocess.Page, mode vision.Mode, docTypeHint string) (vision.Result, error) {
	return f.result, f.err
}

type fakeStore struct {
	saveErr   error
	savedDoc  *domain.Document
	approveErr error
	approvedID int64
	rejectedID int64
}

func (f *fakeStore) SaveParsed(ctx context.Context, in store.SaveParsedInput) (*domain.Document, error) {
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	if f.savedDoc == nil {
		f.savedDoc = &domain.Document{ID: 7}
	}
	return f.savedDoc, nil
}

func (f *fakeStore) SaveApproved(ctx context.Context, documentID int64, approved *postprocess.Payload, userID string) error {
	f.approvedID = documentID
	return f.approveErr
}

func (f *fakeStore) Reject(ctx context.Context, documentID int64) error {
	f.rejectedID = documentID
	return nil
}

func (f *fakeStore) SearchDocuments(ctx context.Context, q store.SearchQuery) (store.SearchResult, error) {
	return store.SearchResult{}, nil
}

func (f *fakeStore) GetDocumentPayload(ctx context.Context, documentID int64) (domain.Node, error) {
	return nil, nil
}

func (f *fakeStore) Close() {}

type fakeExporter struct {
	called bool
	err    error
}

func (f *fakeExporter) Export(ctx context.Context, documentID int64, payload *postprocess.Payload) error {
	f.called = true
	return f.err
}

func combinedResult(t *testing.T) vision.Result {
	t.Helper()
	raw := json.RawMessage(`{"document_info":{"invoice_no":"INV-1"},"table_data":{"line_items":[]}}`)
	return vision.Result{Mode: vision.ModeFast, Combined: raw}
}

func TestParseHappyPathPersistsAndReturnsPayload(t *testing.T) {
	pp := preprocess.New(preprocess.Options{Enable: false}, 0, nil)
	vc := &fakeVisionClient{result: combinedResult(t)}
	st := &fakeStore{}
	orch := New(pp, vc, st, nil, exporter.NopExporter{}, zap.NewNop(), nil, 0)

	res, err := orch.Parse(context.Background(), ParseRequest{
		FileData: tinyPNG(t),
		Mime:     "image/png",
		Mode:     vision.ModeFast,
	})
	require.NoError(t, err)
	assert.True(t, res.Persisted)
	assert.Equal(t, int64(7), res.DocumentID)
	require.NotNil(t, res.Payload)
}

func TestParsePropagatesPreprocessRejection(t *testing.T) {
	pp := preprocess.New(preprocess.Options{Enable: false}, 0, nil)
	vc := &fakeVisionClient{result: combinedResult(t)}
	orch := New(pp, vc, &fakeStore{}, nil, exporter.NopExporter{}, zap.NewNop(), nil, 0)

	_, err := orch.Parse(context.Background(), ParseRequest{
		FileData: nil,
		Mime:     "image/png",
		Mode:     vision.ModeFast,
	})
	require.Error(t, err)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindInputRejected, appErr.Kind)
}

func TestParsePropagatesVisionFailure(t *testing.T) {
	pp := preprocess.New(preprocess.Options{Enable: false}, 0, nil)
	vc := &fakeVisionClient{err: apperr.New(apperr.KindConfigurationFault, apperr.CodeAuthentication, errors.New("bad key"))}
	orch := New(pp, vc, &fakeStore{}, nil, exporter.NopExporter{}, zap.NewNop(), nil, 0)

	_, err := orch.Parse(context.Background(), ParseRequest{FileData: tinyPNG(t), Mime: "image/png", Mode: vision.ModeFast})
	require.Error(t, err)
}

func TestParsePersistenceFailureReturnsPayloadWithoutError(t *testing.T) {
	pp := preprocess.New(preprocess.Options{Enable: false}, 0, nil)
	vc := &fakeVisionClient{result: combinedResult(t)}
	st := &fakeStore{saveErr: errors.New("connection refused")}
	orch := New(pp, vc, st, nil, exporter.NopExporter{}, zap.NewNop(), nil, 0)

	res, err := orch.Parse(context.Background(), ParseRequest{FileData: tinyPNG(t), Mime: "image/png", Mode: vision.ModeFast})
	require.NoError(t, err, "persistence failure after extraction must not be an error")
	assert.False(t, res.Persisted)
	require.NotNil(t, res.Payload)
}

func TestApproveNeverRevertsOnExportFailure(t *testing.T) {
	st := &fakeStore{}
	ex := &fakeExporter{err: errors.New("queue down")}
	orch := New(nil, nil, st, nil, ex, zap.NewNop(), nil, 0)

	err := orch.Approve(context.Background(), 7, &postprocess.Payload{}, "reviewer-1")
	require.NoError(t, err)
	assert.True(t, ex.called)
	assert.Equal(t, int64(7), st.approvedID)
}

func TestApprovePropagatesPersistenceFailure(t *testing.T) {
	st := &fakeStore{approveErr: errors.New("write failed")}
	orch := New(nil, nil, st, nil, exporter.NopExporter{}, zap.NewNop(), nil, 0)

	err := orch.Approve(context.Background(), 7, &postprocess.Payload{}, "reviewer-1")
	require.Error(t, err)
}

func TestRejectDelegatesToStore(t *testing.T) {
	st := &fakeStore{}
	orch := New(nil, nil, st, nil, exporter.NopExporter{}, zap.NewNop(), nil, 0)

	require.NoError(t, orch.Reject(context.Background(), 9))
	assert.Equal(t, int64(9), st.rejectedID)
}
