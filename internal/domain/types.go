package domain

import "time"

// DocumentStatus is the lifecycle state of a Document, per the
// orchestrator's state machine.
type DocumentStatus string

const (
	StatusParsed   DocumentStatus = "parsed"
	StatusApproved DocumentStatus = "approved"
	StatusExported DocumentStatus = "exported"
	StatusRejected DocumentStatus = "rejected"
)

// SnapshotKind distinguishes the RAW model output from the
// human-approved version. Both share the same append-only table.
type SnapshotKind string

const (
	SnapshotRaw      SnapshotKind = "raw"
	SnapshotApproved SnapshotKind = "approved"
)

// File is an immutable record of an uploaded artifact.
type File struct {
	ID           int64
	StoragePath  string
	OriginalName string
	ContentHash  string
	Mime         string
	ByteSize     int64
	UploadedAt   time.Time
	UploadedBy   string
}

// DocumentType is a seeded, extensible catalog of document kinds
// (invoice, receipt, delivery note, ...).
type DocumentType struct {
	ID          int64
	Code        string
	Name        string
	Description string
}

// Company is a deduplicated party (supplier or buyer) referenced by
// one or more documents.
type Company struct {
	ID               int64
	LegalName        string
	NormalizedName   string
	ShortName        string
	TaxID            string // normalized
	VatID            string
	RegistrationCode string
	Country          string
	Language         string
	Address          string
	BankingID        string
	Contacts         string
	ExternalSystem   string
	ExternalID       string
	Verified         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CompanyProfile models per-(company, doc-type) expectations. No
// component of the pipeline reads or writes it, and schema.sql has no
// table for it.
type CompanyProfile struct {
	ID               int64
	CompanyID        int64
	DocTypeID        int64
	Active           bool
	ExpectedCurrency string
	ExpectedVATMode  string
	Settings         Node
}

// Document carries no business fields — every business value lives in
// Field, Signature, or TableSection rows addressed by DocumentID.
type Document struct {
	ID          int64
	DocTypeID   int64
	Status      DocumentStatus
	Language    string
	Country     string
	SupplierID  *int64
	BuyerID     *int64
	FileID      int64
	CreatedAt   time.Time
	CreatedBy   string
	UpdatedAt   time.Time
	UpdatedBy   string
	ParsingMeta Node
}

// Snapshot is one append-only capture of a document's full payload.
type Snapshot struct {
	ID         int64
	DocumentID int64
	Kind       SnapshotKind
	Version    int
	Payload    Node
	CreatedAt  time.Time
	CreatedBy  string
}

// FieldDefinition is a seeded catalog entry; its absence on a Field
// marks that field as unknown.
type FieldDefinition struct {
	ID          int64
	Code        string
	Section     string
	DataType    ValueKind
	Description string
}

// FieldLabel is a locale translation of a FieldDefinition, used only by
// the (out-of-scope) UI layer.
type FieldLabel struct {
	FieldDefinitionID int64
	Locale            string
	Label             string
}

// Field is one leaf scalar extracted from a document, in both its RAW
// and (once approved) APPROVED form.
type Field struct {
	ID                int64
	DocumentID        int64
	FieldDefinitionID *int64 // nil => unknown field
	Code              string // mirrors FieldDefinition.Code, or "" when unknown
	SectionTag        string
	SectionLabel      string
	RawLabel          string
	Language          string
	Raw               FieldValue
	RawConfidence     float64
	Approved          FieldValue
	ApprovedBy        string
	ApprovedAt        *time.Time
	Corrected         bool
	Ignored           bool
	PageRef           *int
	BBox              *BoundingBox
}

// BoundingBox locates a field/signature on a page image, in the
// coordinate space the vision model returned it in.
type BoundingBox struct {
	X, Y, W, H float64
}

// Signature is one of a variable-length, ordered set of signature
// blocks observed on a document.
type Signature struct {
	ID              int64
	DocumentID      int64
	Index           int
	Role            string
	Name            string
	Signed          bool
	Stamped         bool
	StampContent    string
	HandwrittenDate string
	RawPayload      Node
	ApprovedPayload Node
	Corrected       bool
	PageRef         *int
	BBox            *BoundingBox
}

// TableSection is one logical dynamic table (typically line items).
type TableSection struct {
	ID                  int64
	DocumentID          int64
	SectionName         string
	SectionOrder        int
	ColumnMappingRaw    map[string]string // key -> header-as-seen
	ColumnMappingApprvd map[string]string
	RowsRaw             []map[string]Node
	RowsApproved        []map[string]Node
	ColumnOrderRaw      []string
	ColumnOrderRule     string // which column-order rule fired
	ApprovedBy          string
	ApprovedAt          *time.Time
}

// Page carries per-page OCR text when the model surfaces it.
type Page struct {
	ID         int64
	DocumentID int64
	PageNumber int
	OCRText    *string
}
