// Package store implements the persistence service: a pgx/v5-backed
// transactional save of RAW and APPROVED document state,
// range-partitioned by year, with JSONB/GIN and multi-locale
// full-text indexing.
package store

import (
	"context"

	"github.com/bosocmputer/invoice-vision-pipeline/internal/domain"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/postprocess"
)

// Store is the full persistence contract the orchestrator and
// httpapi layers drive. Company lookups for internal/company.Resolver
// go through the txCompanyStore adapter inside SaveParsed's
// transaction, not through this interface.
type Store interface {
	SaveParsed(ctx context.Context, in SaveParsedInput) (*domain.Document, error)
	SaveApproved(ctx context.Context, documentID int64, approved *postprocess.Payload, userID string) error
	Reject(ctx context.Context, documentID int64) error

	SearchDocuments(ctx context.Context, q SearchQuery) (SearchResult, error)
	GetDocumentPayload(ctx context.Context, documentID int64) (domain.Node, error)

	Close()
}

// SaveParsedInput bundles SaveParsed's parameters.
type SaveParsedInput struct {
	StoragePath      string
	OriginalFilename string
	ContentHash      string
	Mime             string
	ByteSize         int64
	UploadedBy       string
	DocTypeCode      string
	Language         string
	Country          string
	Payload          *postprocess.Payload
	PerPageOCRText   map[int]string
}

// SearchQuery is GET /api/search/documents's parameter set.
type SearchQuery struct {
	Status   string
	Query    string
	Page     int
	PageSize int
}

// SearchResult is one page of matching documents.
type SearchResult struct {
	Documents  []domain.Document
	Total      int
	Page       int
	PageSize   int
}
