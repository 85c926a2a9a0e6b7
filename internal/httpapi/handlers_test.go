package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bosocmputer/invoice-vision-pipeline/internal/apperr"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/domain"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/exporter"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/orchestrator"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/postprocess"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/preprocess"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/store"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/vision"
)

type fakeVisionClient struct {
	result vision.Result
	err    error
}

func (f *fakeVisionClient) Extract(ctx context.Context, pages []preprocess.Page, mode vision.Mode, docTypeHint string) (vision.Result, error) {
	return f.result, f.err
}

type fakeStore struct {
	searchResult store.SearchResult
	payload      domain.Node
	getErr       error
}

func (f *fakeStore) SaveParsed(ctx context.Context, in store.SaveParsedInput) (*domain.Document, error) {
	return &domain.Document{ID: 1}, nil
}
func (f *fakeStore) SaveApproved(ctx context.Context, documentID int64, approved *postprocess.Payload, userID string) error {
	return nil
}
func (f *fakeStore) Reject(ctx context.Context, documentID int64) error { return nil }
func (f *fakeStore) SearchDocuments(ctx context.Context, q store.SearchQuery) (store.SearchResult, error) {
	return f.searchResult, nil
}
func (f *fakeStore) GetDocumentPayload(ctx context.Context, documentID int64) (domain.Node, error) {
	return f.payload, f.getErr
}
func (f *fakeStore) Close() {}

func newTestServer(vc vision.Client, st store.Store) (*gin.Engine, *Server) {
	gin.SetMode(gin.TestMode)
	pp := preprocess.New(preprocess.Options{Enable: false}, 0, nil)
	orch := orchestrator.New(pp, vc, st, nil, exporter.NopExporter{}, zap.NewNop(), nil, 0)
	router := gin.New()
	s := NewServer(router, orch, st, zap.NewNop(), "*", 0)
	return router, s
}

func authedRequest(method, path string, body *bytes.Buffer, contentType string) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, body)
		req.Header.Set("Content-Type", contentType)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer test-token")
	return req
}

func TestHandleRejectWithoutBearerTokenReturns401(t *testing.T) {
	router, _ := newTestServer(&fakeVisionClient{}, &fakeStore{})
	req := httptest.NewRequest(http.MethodPost, "/reject", bytes.NewBufferString(`{"document_id":1}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleRejectSucceeds(t *testing.T) {
	router, _ := newTestServer(&fakeVisionClient{}, &fakeStore{})
	req := authedRequest(http.MethodPost, "/reject", bytes.NewBufferString(`{"document_id":5}`), "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
}

func TestHandleSearchReturnsPaginatedResult(t *testing.T) {
	st := &fakeStore{searchResult: store.SearchResult{Total: 2, Page: 1, PageSize: 20}}
	router, _ := newTestServer(&fakeVisionClient{}, st)
	req := authedRequest(http.MethodGet, "/api/search/documents?status=raw", nil, "")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 2, body["total"])
}

func TestHandleGetDocumentRejectsNonNumericID(t *testing.T) {
	router, _ := newTestServer(&fakeVisionClient{}, &fakeStore{})
	req := authedRequest(http.MethodGet, "/api/documents/not-a-number", nil, "")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetDocumentPropagatesClassifiedError(t *testing.T) {
	st := &fakeStore{getErr: apperr.New(apperr.KindTransientUpstream, apperr.CodeNetwork, errors.New("db down"))}
	router, _ := newTestServer(&fakeVisionClient{}, st)
	req := authedRequest(http.MethodGet, "/api/documents/9", nil, "")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleParseRejectsUnknownMode(t *testing.T) {
	router, _ := newTestServer(&fakeVisionClient{}, &fakeStore{})
	req := authedRequest(http.MethodPost, "/parse?mode=bogus", nil, "")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleParseRequiresFile(t *testing.T) {
	router, _ := newTestServer(&fakeVisionClient{}, &fakeStore{})

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.Close())

	req := authedRequest(http.MethodPost, "/parse", &buf, writer.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSHandlesPreflight(t *testing.T) {
	router, _ := newTestServer(&fakeVisionClient{}, &fakeStore{})
	req := httptest.NewRequest(http.MethodOptions, "/reject", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
