package company

import (
	"context"
	"fmt"

	"github.com/bosocmputer/invoice-vision-pipeline/internal/domain"
)

// Store is the narrow persistence contract the Resolver drives; the
// postgres-backed implementation lives in internal/store.
type Store interface {
	FindCompanyByTaxID(ctx context.Context, taxID string) (*domain.Company, error)
	FindCompanyByNormalizedName(ctx context.Context, normalizedName string) (*domain.Company, error)
	InsertCompany(ctx context.Context, c *domain.Company) (int64, error)
	UpdateCompany(ctx context.Context, c *domain.Company) error
}

// Attrs is the raw, unnormalized view of a party as extracted from a
// payload's parties.<role> entry.
type Attrs struct {
	Name     string
	TaxID    string
	VatID    string
	Address  string
	Bank     string
	Country  string
	Language string
}

// Resolver resolves a party's attributes to a deduplicated Company
// row, creating one only when no match is found.
type Resolver struct {
	store               Store
	normalizeTaxID      bool
	taxIDFallbackToName bool
}

// New constructs a Resolver. normalizeTaxID/taxIDFallbackToName mirror
// the NORMALIZE_TAX_ID / TAX_ID_FALLBACK_TO_NAME config knobs.
func New(store Store, normalizeTaxID, taxIDFallbackToName bool) *Resolver {
	return &Resolver{store: store, normalizeTaxID: normalizeTaxID, taxIDFallbackToName: taxIDFallbackToName}
}

// ResolveOrCreate tries a tax-id lookup, then a name lookup, then
// inserts a new row. On a hit, only attributes that arrive non-empty
// overwrite the stored row.
func (r *Resolver) ResolveOrCreate(ctx context.Context, attrs Attrs) (*domain.Company, error) {
	taxID := attrs.TaxID
	if r.normalizeTaxID {
		taxID = NormalizeTaxID(attrs.TaxID)
	}

	if taxID != "" {
		existing, err := r.store.FindCompanyByTaxID(ctx, taxID)
		if err != nil {
			return nil, fmt.Errorf("looking up company by tax id: %w", err)
		}
		if existing != nil {
			return r.update(ctx, existing, attrs, taxID)
		}
		if !r.taxIDFallbackToName {
			return r.insert(ctx, attrs, taxID)
		}
	}

	normName := NormalizeCompanyName(attrs.Name)
	if normName != "" {
		existing, err := r.store.FindCompanyByNormalizedName(ctx, normName)
		if err != nil {
			return nil, fmt.Errorf("looking up company by name: %w", err)
		}
		if existing != nil {
			return r.update(ctx, existing, attrs, taxID)
		}
	}

	return r.insert(ctx, attrs, taxID)
}

func (r *Resolver) update(ctx context.Context, existing *domain.Company, attrs Attrs, normalizedTaxID string) (*domain.Company, error) {
	applyNonEmpty(&existing.LegalName, attrs.Name)
	applyNonEmpty(&existing.TaxID, normalizedTaxID)
	applyNonEmpty(&existing.VatID, attrs.VatID)
	applyNonEmpty(&existing.Address, attrs.Address)
	applyNonEmpty(&existing.BankingID, attrs.Bank)
	applyNonEmpty(&existing.Country, attrs.Country)
	applyNonEmpty(&existing.Language, attrs.Language)
	if err := r.store.UpdateCompany(ctx, existing); err != nil {
		return nil, fmt.Errorf("updating company: %w", err)
	}
	return existing, nil
}

func (r *Resolver) insert(ctx context.Context, attrs Attrs, normalizedTaxID string) (*domain.Company, error) {
	c := &domain.Company{
		LegalName: attrs.Name,
		TaxID:     normalizedTaxID,
		VatID:     attrs.VatID,
		Address:   attrs.Address,
		BankingID: attrs.Bank,
		Country:   attrs.Country,
		Language:  attrs.Language,
	}
	id, err := r.store.InsertCompany(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("inserting company: %w", err)
	}
	c.ID = id
	return c, nil
}

// applyNonEmpty overwrites dst only when src is non-empty, so a blank
// incoming attribute never clobbers a known value.
func applyNonEmpty(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}
