// Package httpapi implements the external HTTP interface on top of
// gin: upload/parse, search, approve/reject, and the document read
// endpoints.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bosocmputer/invoice-vision-pipeline/internal/apperr"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/orchestrator"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/postprocess"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/store"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/vision"
)

// Server holds the collaborators gin handlers close over.
type Server struct {
	orch           *orchestrator.Orchestrator
	store          store.Store
	log            *zap.Logger
	maxUploadBytes int64
}

// NewServer constructs a Server and registers its routes on engine.
// allowedOrigins and maxUploadBytes come from ALLOWED_ORIGINS and
// MAX_UPLOAD_SIZE_MB; maxUploadBytes <= 0 disables the upload-size
// check (the preprocessor's own cap still applies).
func NewServer(engine *gin.Engine, orch *orchestrator.Orchestrator, st store.Store, log *zap.Logger, allowedOrigins string, maxUploadBytes int64) *Server {
	s := &Server{orch: orch, store: st, log: log, maxUploadBytes: maxUploadBytes}
	engine.Use(CORS(allowedOrigins))

	authorized := engine.Group("/")
	authorized.Use(BearerAuth())
	authorized.POST("/parse", s.handleParse)
	authorized.POST("/save", s.handleSave)
	authorized.POST("/reject", s.handleReject)
	authorized.GET("/api/search/documents", s.handleSearch)
	authorized.GET("/api/documents/:id", s.handleGetDocument)
	return s
}

func (s *Server) handleParse(c *gin.Context) {
	mode := vision.Mode(c.DefaultQuery("mode", string(vision.ModeFast)))
	if mode != vision.ModeFast && mode != vision.ModeDetailed {
		c.JSON(http.StatusBadRequest, gin.H{"error_code": "E_BAD_MODE", "message": "mode must be fast or detailed"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_code": "E_NO_FILE", "message": "multipart file is required"})
		return
	}
	if s.maxUploadBytes > 0 && fileHeader.Size > s.maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error_code": "E_TOO_LARGE", "message": "uploaded file exceeds the configured size limit"})
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_code": "E_NO_FILE", "message": "could not open uploaded file"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_code": "E_NO_FILE", "message": "could not read uploaded file"})
		return
	}

	result, err := s.orch.Parse(c.Request.Context(), orchestrator.ParseRequest{
		FileData:         data,
		Mime:             fileHeader.Header.Get("Content-Type"),
		OriginalFilename: fileHeader.Filename,
		Mode:             mode,
		DocTypeHint:      c.Query("doc_type"),
		Language:         c.Query("language"),
		Country:          c.Query("country"),
		UploadedBy:       c.GetString("subject"),
	})
	if err != nil {
		writeClassifiedError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "document_id": result.DocumentID, "data": result.Payload})
}

// savePayload mirrors the top-level snapshot shape, as submitted back
// by an approving client.
type savePayload struct {
	DocumentID int64                  `json:"document_id"`
	Data       map[string]interface{} `json:"data"`
}

func (s *Server) handleSave(c *gin.Context) {
	var req savePayload
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_code": "E_BAD_REQUEST", "message": "invalid request body"})
		return
	}

	rawJSON, err := json.Marshal(req.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_code": "E_BAD_REQUEST", "message": "invalid payload"})
		return
	}
	payload, err := postprocess.Merge(s.log, rawJSON, nil, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_code": "E_BAD_REQUEST", "message": "invalid payload shape"})
		return
	}

	if err := s.orch.Approve(c.Request.Context(), req.DocumentID, payload, c.GetString("subject")); err != nil {
		writeClassifiedError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "approved", "document_id": req.DocumentID})
}

type rejectPayload struct {
	DocumentID int64 `json:"document_id"`
}

func (s *Server) handleReject(c *gin.Context) {
	var req rejectPayload
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_code": "E_BAD_REQUEST", "message": "invalid request body"})
		return
	}
	if err := s.orch.Reject(c.Request.Context(), req.DocumentID); err != nil {
		writeClassifiedError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "document_id": req.DocumentID})
}

func (s *Server) handleSearch(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := s.store.SearchDocuments(c.Request.Context(), store.SearchQuery{
		Status:   c.Query("status"),
		Query:    c.Query("query"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		writeClassifiedError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"documents": result.Documents,
		"total":     result.Total,
		"page":      result.Page,
		"page_size": result.PageSize,
	})
}

func (s *Server) handleGetDocument(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_code": "E_BAD_ID", "message": "document id must be numeric"})
		return
	}
	payload, err := s.store.GetDocumentPayload(c.Request.Context(), id)
	if err != nil {
		writeClassifiedError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"document_id": id, "data": payload})
}

// writeClassifiedError maps an apperr.Error onto an HTTP status code;
// any other error is treated as an unclassified technical error (500).
func writeClassifiedError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error_code": apperr.CodeUnknown, "message": "internal error"})
		return
	}

	status := http.StatusInternalServerError
	switch appErr.Kind {
	case apperr.KindInputRejected, apperr.KindValidationFault:
		status = http.StatusBadRequest
	case apperr.KindDuplicateInProgress:
		status = http.StatusConflict
	case apperr.KindTransientUpstream:
		status = http.StatusServiceUnavailable
	case apperr.KindConfigurationFault:
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error_code": appErr.Code, "message": appErr.Message})
}
