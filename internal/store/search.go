package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bosocmputer/invoice-vision-pipeline/internal/domain"
)

// SearchDocuments implements GET /api/search/documents: a paginated
// filter by status plus a full-text match against fields.raw_text,
// using the 'simple' configuration that the universal FTS index in
// schema.sql is built on.
func (p *Postgres) SearchDocuments(ctx context.Context, q SearchQuery) (SearchResult, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 || q.PageSize > 200 {
		q.PageSize = 20
	}
	offset := (q.Page - 1) * q.PageSize

	where := "WHERE ($1 = '' OR d.status = $1)"
	args := []interface{}{q.Status}
	if q.Query != "" {
		where += " AND EXISTS (SELECT 1 FROM fields f WHERE f.document_id = d.id AND to_tsvector('simple', f.raw_text) @@ plainto_tsquery('simple', $2))"
		args = append(args, q.Query)
	} else {
		args = append(args, "")
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM documents d %s`, where)
	if err := p.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return SearchResult{}, fmt.Errorf("counting documents: %w", err)
	}

	args = append(args, q.PageSize, offset)
	listQuery := fmt.Sprintf(`
		SELECT d.id, d.doc_type_id, d.status, d.language, d.country, d.supplier_id, d.buyer_id, d.file_id, d.created_at, d.updated_at
		FROM documents d %s
		ORDER BY d.created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := p.pool.Query(ctx, listQuery, args...)
	if err != nil {
		return SearchResult{}, fmt.Errorf("searching documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.DocTypeID, &d.Status, &d.Language, &d.Country, &d.SupplierID, &d.BuyerID, &d.FileID, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return SearchResult{}, fmt.Errorf("scanning document row: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return SearchResult{}, err
	}

	return SearchResult{Documents: docs, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}

// GetDocumentPayload implements GET /api/documents/{id}: the latest
// APPROVED snapshot, falling back to the latest RAW one.
func (p *Postgres) GetDocumentPayload(ctx context.Context, documentID int64) (domain.Node, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx, `
		SELECT payload FROM snapshots
		WHERE document_id = $1 AND kind = $2
		ORDER BY version DESC LIMIT 1`, documentID, domain.SnapshotApproved).Scan(&raw)
	if err == pgx.ErrNoRows {
		err = p.pool.QueryRow(ctx, `
			SELECT payload FROM snapshots
			WHERE document_id = $1 AND kind = $2
			ORDER BY version DESC LIMIT 1`, documentID, domain.SnapshotRaw).Scan(&raw)
	}
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("no snapshot found for document %d", documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading document payload: %w", err)
	}
	return domain.FromJSON(raw)
}
