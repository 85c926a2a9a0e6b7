package postprocess

import "github.com/bosocmputer/invoice-vision-pipeline/internal/domain"

// ColumnOrderRule names which rule produced the column order,
// recorded on TableSection.ColumnOrderRule for audit.
const (
	RuleExplicitOrder    = "explicit_column_order"
	RuleMappingKeyOrder  = "column_mapping_key_order"
	RuleFirstRowKeyOrder = "first_row_key_order"
)

// deriveColumnOrder prefers an explicit column_order if present; else
// the column_mapping's key order; else the first row's key order. Any
// row key absent from the chosen order is appended at the end (never
// dropped), and the return value reports whether any such keys were
// found so the caller can log a warning.
func deriveColumnOrder(explicitOrder []string, mapping map[string]string, mappingKeyOrder []string, rows []map[string]domain.Node) (order []string, rule string, hadUnmapped bool) {
	switch {
	case len(explicitOrder) > 0:
		order, rule = append([]string{}, explicitOrder...), RuleExplicitOrder
	case len(mappingKeyOrder) > 0:
		order, rule = append([]string{}, mappingKeyOrder...), RuleMappingKeyOrder
	case len(rows) > 0:
		order, rule = firstRowKeyOrder(rows[0]), RuleFirstRowKeyOrder
	default:
		order, rule = nil, RuleFirstRowKeyOrder
	}

	seen := make(map[string]bool, len(order))
	for _, k := range order {
		seen[k] = true
	}

	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				order = append(order, k)
				hadUnmapped = true
			}
		}
	}
	for k := range mapping {
		if !seen[k] {
			seen[k] = true
			order = append(order, k)
		}
	}

	return order, rule, hadUnmapped
}

// firstRowKeyOrder has no stable order to draw on (Go maps are
// unordered) when the caller only has a decoded map; callers that
// need true first-row insertion order must supply it via
// mappingKeyOrder derived from raw JSON token order instead. This
// fallback sorts nothing — it returns keys in whatever order the map
// iterates, which callers should avoid relying on when order fidelity
// matters. Kept for the case where only a flattened row survives
// (degenerate payloads with no column_mapping at all).
func firstRowKeyOrder(row map[string]domain.Node) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	return keys
}
