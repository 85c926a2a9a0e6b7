package store

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/bosocmputer/invoice-vision-pipeline/internal/company"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/domain"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/postprocess"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/telemetry"
)

//go:embed schema.sql
var schemaFS embed.FS

// Postgres implements Store against a pgx/v5 pool. Year-range
// partitioning, JSONB GIN containment, and multi-locale FTS configs
// are relational DDL, applied from the embedded schema below.
type Postgres struct {
	pool     *pgxpool.Pool
	log      *zap.Logger
	metrics  *telemetry.Metrics
	txTimeout time.Duration
}

// Open connects the pool and applies the embedded schema. Call once
// at startup; Close releases the pool on shutdown. maxConns and
// txTimeout bound pool size and the per-transaction deadline.
func Open(ctx context.Context, dsn string, maxConns int32, txTimeout time.Duration, log *zap.Logger, metrics *telemetry.Metrics) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	p := &Postgres{pool: pool, log: log, metrics: metrics, txTimeout: txTimeout}
	if err := p.applySchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// withTxTimeout bounds a transactional operation by the configured
// DB_TRANSACTION_TIMEOUT, falling back to the caller's context when
// none was configured.
func (p *Postgres) withTxTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.txTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.txTimeout)
}

func (p *Postgres) applySchema(ctx context.Context) error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("reading embedded schema: %w", err)
	}
	if _, err := p.pool.Exec(ctx, string(schema)); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

func (p *Postgres) Close() { p.pool.Close() }

// hashContent computes the File.ContentHash; collisions are expected
// and allowed — no unique constraint is placed on it, since a
// duplicate upload is a valid occurrence distinct from the
// best-effort in-flight dedup guard in internal/dedup.
func hashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SaveParsed writes a document, its snapshot, fields, signatures, and
// table sections wholly inside one transaction; any failure leaves no
// rows behind.
func (p *Postgres) SaveParsed(ctx context.Context, in SaveParsedInput) (*domain.Document, error) {
	started := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.PersistenceDuration.WithLabelValues("save_parsed").Observe(time.Since(started).Seconds())
		}
	}()

	ctx, cancel := p.withTxTimeout(ctx)
	defer cancel()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	fileID, err := p.insertFile(ctx, tx, in)
	if err != nil {
		return nil, fmt.Errorf("inserting file: %w", err)
	}

	docTypeID, err := p.resolveDocType(ctx, tx, in.DocTypeCode)
	if err != nil {
		return nil, fmt.Errorf("resolving document type: %w", err)
	}

	resolver := company.New(&txCompanyStore{tx: tx}, true, true)

	var supplierID, buyerID *int64
	if supplier, ok := in.Payload.Parties["supplier"]; ok {
		c, err := resolver.ResolveOrCreate(ctx, company.Attrs{
			Name: supplier.Name, TaxID: supplier.TaxID, VatID: supplier.VatID,
			Address: supplier.Address, Bank: supplier.Bank, Country: in.Country, Language: in.Language,
		})
		if err != nil {
			return nil, fmt.Errorf("resolving supplier: %w", err)
		}
		supplierID = &c.ID
	}
	if buyer, ok := in.Payload.Parties["buyer"]; ok {
		c, err := resolver.ResolveOrCreate(ctx, company.Attrs{
			Name: buyer.Name, TaxID: buyer.TaxID, VatID: buyer.VatID,
			Address: buyer.Address, Bank: buyer.Bank, Country: in.Country, Language: in.Language,
		})
		if err != nil {
			return nil, fmt.Errorf("resolving buyer: %w", err)
		}
		buyerID = &c.ID
	}

	doc := &domain.Document{
		DocTypeID:  docTypeID,
		Status:     domain.StatusParsed,
		Language:   in.Language,
		Country:    in.Country,
		SupplierID: supplierID,
		BuyerID:    buyerID,
		FileID:     fileID,
		CreatedBy:  in.UploadedBy,
		UpdatedBy:  in.UploadedBy,
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO documents (doc_type_id, status, language, country, supplier_id, buyer_id, file_id, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		doc.DocTypeID, doc.Status, doc.Language, doc.Country, doc.SupplierID, doc.BuyerID, doc.FileID, doc.CreatedBy)
	if err := row.Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, fmt.Errorf("inserting document: %w", err)
	}

	rawJSON, err := domain.ToJSON(in.Payload.Raw)
	if err != nil {
		return nil, fmt.Errorf("marshaling raw payload: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO snapshots (document_id, kind, version, payload, created_by, created_at)
		VALUES ($1, $2, 1, $3, $4, NOW())`,
		doc.ID, domain.SnapshotRaw, rawJSON, in.UploadedBy); err != nil {
		return nil, fmt.Errorf("inserting raw snapshot: %w", err)
	}

	if err := p.insertFields(ctx, tx, doc.ID, in.Payload); err != nil {
		return nil, fmt.Errorf("inserting fields: %w", err)
	}
	if err := p.insertSignatures(ctx, tx, doc.ID, in.Payload.Signatures); err != nil {
		return nil, fmt.Errorf("inserting signatures: %w", err)
	}
	if err := p.insertTableSection(ctx, tx, doc.ID, in.Payload.Table); err != nil {
		return nil, fmt.Errorf("inserting table section: %w", err)
	}
	if err := p.insertPages(ctx, tx, doc.ID, in.PerPageOCRText); err != nil {
		return nil, fmt.Errorf("inserting pages: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return doc, nil
}

func (p *Postgres) insertFile(ctx context.Context, tx pgx.Tx, in SaveParsedInput) (int64, error) {
	hash := in.ContentHash
	if hash == "" {
		hash = hashContent([]byte(in.StoragePath))
	}
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO files (storage_path, original_name, content_hash, mime, byte_size, uploaded_by, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id`,
		in.StoragePath, in.OriginalFilename, hash, in.Mime, in.ByteSize, in.UploadedBy).Scan(&id)
	return id, err
}

func (p *Postgres) resolveDocType(ctx context.Context, tx pgx.Tx, code string) (int64, error) {
	if code == "" {
		code = "unknown"
	}
	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM document_types WHERE code = $1`, code).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != pgx.ErrNoRows {
		return 0, err
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO document_types (code, name) VALUES ($1, $1)
		ON CONFLICT (code) DO UPDATE SET code = EXCLUDED.code
		RETURNING id`, code).Scan(&id)
	return id, err
}

// insertFields walks document_info, totals, amounts_in_words, and
// other_fields into leaf Field rows, leaving field_definition_id NULL
// for any code with no seeded definition.
func (p *Postgres) insertFields(ctx context.Context, tx pgx.Tx, documentID int64, payload *postprocess.Payload) error {
	insert := func(section, code, rawLabel string, value domain.Node, language string) error {
		defID, err := p.lookupFieldDefinition(ctx, tx, code)
		if err != nil {
			return err
		}
		fv := fieldValueFromNode(value)
		_, err = tx.Exec(ctx, `
			INSERT INTO fields (document_id, field_definition_id, code, section_tag, raw_label, language,
				raw_kind, raw_text, raw_number, raw_date, raw_bool, raw_confidence)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			documentID, defID, code, section, rawLabel, language,
			fv.Kind, fv.Text, fv.Number, nullableTime(fv.Date), fv.Bool, 1.0)
		return err
	}

	for k, v := range payload.DocumentInfo {
		if err := insert("document_info", k, k, v, ""); err != nil {
			return err
		}
	}
	for k, v := range payload.Totals {
		if err := insert("totals", k, k, v, ""); err != nil {
			return err
		}
	}
	for k, v := range payload.AmountsInWords {
		if err := insert("amounts_in_words", k, k, v, ""); err != nil {
			return err
		}
	}
	for _, f := range payload.OtherFields {
		code := f.OptionalKey
		if err := insert("other_fields", code, f.Label, f.Value, ""); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) lookupFieldDefinition(ctx context.Context, tx pgx.Tx, code string) (*int64, error) {
	if code == "" {
		return nil, nil
	}
	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM field_definitions WHERE code = $1`, code).Scan(&id)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (p *Postgres) insertSignatures(ctx context.Context, tx pgx.Tx, documentID int64, sigs []postprocess.SignatureRecord) error {
	for _, s := range sigs {
		raw, err := domain.ToJSON(map[string]domain.Node{
			"role": s.Role, "name": s.Name, "is_signed": s.Signed, "is_stamped": s.Stamped,
			"stamp_content": s.StampContent, "handwritten_date": s.HandwrittenDate,
		})
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO signatures (document_id, "index", role, name, signed, stamped, stamp_content, handwritten_date, raw_payload)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			documentID, s.Index, s.Role, s.Name, s.Signed, s.Stamped, s.StampContent, s.HandwrittenDate, raw); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) insertTableSection(ctx context.Context, tx pgx.Tx, documentID int64, table postprocess.Table) error {
	if len(table.Rows) == 0 && len(table.ColumnMapping) == 0 {
		return nil
	}
	mappingJSON, err := domain.ToJSON(stringMapToNode(table.ColumnMapping))
	if err != nil {
		return err
	}
	rowsJSON, err := domain.ToJSON(rowsToNode(table.Rows))
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO table_sections (document_id, section_name, section_order, column_mapping_raw, rows_raw, column_order_raw, column_order_rule)
		VALUES ($1, 'line_items', 0, $2, $3, $4, $5)`,
		documentID, mappingJSON, rowsJSON, table.ColumnOrder, table.ColumnOrderRule)
	return err
}

func (p *Postgres) insertPages(ctx context.Context, tx pgx.Tx, documentID int64, ocrText map[int]string) error {
	for page, text := range ocrText {
		text := text
		if _, err := tx.Exec(ctx, `
			INSERT INTO pages (document_id, page_number, ocr_text) VALUES ($1, $2, $3)`,
			documentID, page, text); err != nil {
			return err
		}
	}
	return nil
}

// SaveApproved records an approved snapshot, field corrections,
// signatures, and table rows atomically.
func (p *Postgres) SaveApproved(ctx context.Context, documentID int64, approved *postprocess.Payload, userID string) error {
	started := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.PersistenceDuration.WithLabelValues("save_approved").Observe(time.Since(started).Seconds())
		}
	}()

	ctx, cancel := p.withTxTimeout(ctx)
	defer cancel()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE documents SET status = $2, updated_by = $3, updated_at = NOW() WHERE id = $1`,
		documentID, domain.StatusApproved, userID); err != nil {
		return fmt.Errorf("updating document status: %w", err)
	}

	var nextVersion int
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1 FROM snapshots WHERE document_id = $1 AND kind = $2`,
		documentID, domain.SnapshotApproved).Scan(&nextVersion); err != nil {
		return fmt.Errorf("computing next snapshot version: %w", err)
	}

	approvedJSON, err := domain.ToJSON(approved.Raw)
	if err != nil {
		return fmt.Errorf("marshaling approved payload: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO snapshots (document_id, kind, version, payload, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`,
		documentID, domain.SnapshotApproved, nextVersion, approvedJSON, userID); err != nil {
		return fmt.Errorf("inserting approved snapshot: %w", err)
	}

	if err := p.applyApprovedFields(ctx, tx, documentID, approved); err != nil {
		return err
	}
	if err := p.applyApprovedSignatures(ctx, tx, documentID, approved.Signatures); err != nil {
		return err
	}
	if err := p.applyApprovedTable(ctx, tx, documentID, approved.Table, userID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// applyApprovedFields writes the approved slot for every field whose
// code appears in the approved payload and sets corrected = (approved
// != raw).
func (p *Postgres) applyApprovedFields(ctx context.Context, tx pgx.Tx, documentID int64, approved *postprocess.Payload) error {
	all := map[string]domain.Node{}
	for k, v := range approved.DocumentInfo {
		all[k] = v
	}
	for k, v := range approved.Totals {
		all[k] = v
	}
	for k, v := range approved.AmountsInWords {
		all[k] = v
	}

	rows, err := tx.Query(ctx, `SELECT id, code, raw_kind, raw_text, raw_number, raw_date, raw_bool FROM fields WHERE document_id = $1`, documentID)
	if err != nil {
		return err
	}
	defer rows.Close()

	type rawRow struct {
		id   int64
		code string
		raw  domain.FieldValue
	}
	var toUpdate []rawRow
	for rows.Next() {
		var r rawRow
		var kind domain.ValueKind
		var text string
		var number float64
		var date *time.Time
		var boolVal bool
		if err := rows.Scan(&r.id, &r.code, &kind, &text, &number, &date, &boolVal); err != nil {
			return err
		}
		r.raw = domain.FieldValue{Kind: kind, Text: text, Number: number, Bool: boolVal}
		if date != nil {
			r.raw.Date = *date
		}
		toUpdate = append(toUpdate, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range toUpdate {
		node, ok := all[r.code]
		if !ok {
			continue
		}
		approvedValue := fieldValueFromNode(node)
		corrected := !approvedValue.Equal(r.raw)
		if _, err := tx.Exec(ctx, `
			UPDATE fields SET approved_kind = $2, approved_text = $3, approved_number = $4, approved_date = $5,
				approved_bool = $6, approved_by = $7, approved_at = NOW(), corrected = $8
			WHERE id = $1`,
			r.id, approvedValue.Kind, approvedValue.Text, approvedValue.Number, nullableTime(approvedValue.Date),
			approvedValue.Bool, "", corrected); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) applyApprovedSignatures(ctx context.Context, tx pgx.Tx, documentID int64, sigs []postprocess.SignatureRecord) error {
	for _, s := range sigs {
		raw, err := domain.ToJSON(map[string]domain.Node{
			"role": s.Role, "name": s.Name, "is_signed": s.Signed, "is_stamped": s.Stamped,
			"stamp_content": s.StampContent, "handwritten_date": s.HandwrittenDate,
		})
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE signatures SET approved_payload = $3, corrected = (raw_payload IS DISTINCT FROM $3)
			WHERE document_id = $1 AND "index" = $2`,
			documentID, s.Index, raw); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) applyApprovedTable(ctx context.Context, tx pgx.Tx, documentID int64, table postprocess.Table, userID string) error {
	if len(table.Rows) == 0 && len(table.ColumnMapping) == 0 {
		return nil
	}
	mappingJSON, err := domain.ToJSON(stringMapToNode(table.ColumnMapping))
	if err != nil {
		return err
	}
	rowsJSON, err := domain.ToJSON(rowsToNode(table.Rows))
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE table_sections SET column_mapping_approved = $2, rows_approved = $3, approved_by = $4, approved_at = NOW()
		WHERE document_id = $1`,
		documentID, mappingJSON, rowsJSON, userID)
	return err
}

// Reject marks a document rejected without writing an APPROVED
// snapshot; RAW state is untouched.
func (p *Postgres) Reject(ctx context.Context, documentID int64) error {
	_, err := p.pool.Exec(ctx, `UPDATE documents SET status = $2, updated_at = NOW() WHERE id = $1`,
		documentID, domain.StatusRejected)
	return err
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func fieldValueFromNode(n domain.Node) domain.FieldValue {
	switch v := n.(type) {
	case string:
		return domain.FieldValue{Kind: domain.ValueText, Text: v, Raw: v}
	case float64:
		return domain.FieldValue{Kind: domain.ValueNumber, Number: v}
	case bool:
		return domain.FieldValue{Kind: domain.ValueBool, Bool: v}
	case map[string]domain.Node:
		// normalizeCell's {raw, value} pair: prefer the parsed number
		// but keep the original string around.
		if raw, ok := v["raw"].(string); ok {
			if num, ok := v["value"].(float64); ok {
				return domain.FieldValue{Kind: domain.ValueNumber, Number: num, Raw: raw}
			}
		}
	}
	return domain.FieldValue{}
}

func stringMapToNode(m map[string]string) domain.Node {
	out := make(map[string]domain.Node, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func rowsToNode(rows []map[string]domain.Node) domain.Node {
	out := make([]domain.Node, len(rows))
	for i, r := range rows {
		out[i] = map[string]domain.Node(r)
	}
	return out
}

// txCompanyStore adapts a pgx.Tx to internal/company.Store so the
// resolver participates in the surrounding save_parsed transaction.
type txCompanyStore struct {
	tx pgx.Tx
}

func (s *txCompanyStore) FindCompanyByTaxID(ctx context.Context, taxID string) (*domain.Company, error) {
	return scanCompany(s.tx.QueryRow(ctx, companySelect+` WHERE tax_id = $1`, taxID))
}

func (s *txCompanyStore) FindCompanyByNormalizedName(ctx context.Context, normalizedName string) (*domain.Company, error) {
	return scanCompany(s.tx.QueryRow(ctx, companySelect+` WHERE normalized_name = $1`, normalizedName))
}

func (s *txCompanyStore) InsertCompany(ctx context.Context, c *domain.Company) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `
		INSERT INTO companies (legal_name, normalized_name, tax_id, vat_id, address, banking_id, country, language, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id`,
		c.LegalName, company.NormalizeCompanyName(c.LegalName), c.TaxID, c.VatID, c.Address, c.BankingID, c.Country, c.Language).Scan(&id)
	return id, err
}

func (s *txCompanyStore) UpdateCompany(ctx context.Context, c *domain.Company) error {
	_, err := s.tx.Exec(ctx, `
		UPDATE companies SET legal_name = $2, normalized_name = $3, tax_id = NULLIF($4, ''), vat_id = $5, address = $6,
			banking_id = $7, country = $8, language = $9, updated_at = NOW()
		WHERE id = $1`,
		c.ID, c.LegalName, company.NormalizeCompanyName(c.LegalName), c.TaxID, c.VatID, c.Address, c.BankingID, c.Country, c.Language)
	return err
}

const companySelect = `SELECT id, legal_name, normalized_name, tax_id, vat_id, address, banking_id, country, language FROM companies`

func scanCompany(row pgx.Row) (*domain.Company, error) {
	var c domain.Company
	err := row.Scan(&c.ID, &c.LegalName, &c.NormalizedName, &c.TaxID, &c.VatID, &c.Address, &c.BankingID, &c.Country, &c.Language)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
