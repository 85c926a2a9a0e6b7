// Package postprocess merges the fast or detailed vision outputs into
// one canonical payload: deriving table column order, normalizing
// numeric cell values, and reshaping signatures/other_fields into
// stable record shapes.
package postprocess

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/bosocmputer/invoice-vision-pipeline/internal/domain"
)

// Party is one entry of the "parties" section (supplier, buyer, ...).
type Party struct {
	Name    string
	TaxID   string
	VatID   string
	Address string
	Bank    string
	Label   string
}

// SignatureRecord is the canonical, indexed signature shape.
type SignatureRecord struct {
	Index           int
	Role            string
	Name            string
	Signed          bool
	Stamped         bool
	StampContent    string
	HandwrittenDate string
}

// OtherField is the canonical shape for a miscellaneous labeled field.
type OtherField struct {
	Label       string
	Value       domain.Node
	OptionalKey string
}

// Table is the reshaped table_data section, with column order already
// derived.
type Table struct {
	ColumnMapping   map[string]string
	ColumnOrder     []string
	ColumnOrderRule string
	Rows            []map[string]domain.Node
	HadUnmappedKeys bool
}

// Payload is the fully merged, reshaped document ready for the
// persistence service to walk. Raw carries the merged tree verbatim,
// for storage as the Snapshot(kind=raw) payload.
type Payload struct {
	Raw            domain.Node
	DocumentInfo   map[string]domain.Node
	Parties        map[string]Party
	Totals         map[string]domain.Node
	AmountsInWords map[string]domain.Node
	Signatures     []SignatureRecord
	Table          Table
	OtherFields    []OtherField
}

// Merge combines a vision extraction result into one Payload. In fast
// mode combined is populated and header/items are nil; in detailed
// mode combined is nil and header/items are merged with header keys
// winning on conflict.
func Merge(log *zap.Logger, combined, header, items json.RawMessage) (*Payload, error) {
	merged, err := mergeTopLevel(combined, header, items)
	if err != nil {
		return nil, fmt.Errorf("merging vision output: %w", err)
	}

	rawBytes, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("re-marshaling merged payload: %w", err)
	}
	rawNode, err := domain.FromJSON(rawBytes)
	if err != nil {
		return nil, fmt.Errorf("decoding merged payload: %w", err)
	}

	table, err := decodeTable(merged["table_data"], log)
	if err != nil {
		return nil, fmt.Errorf("decoding table_data: %w", err)
	}

	return &Payload{
		Raw:            rawNode,
		DocumentInfo:   decodeNodeMap(merged["document_info"]),
		Parties:        decodeParties(merged["parties"]),
		Totals:         decodeNodeMap(merged["totals"]),
		AmountsInWords: decodeNodeMap(merged["amounts_in_words"]),
		Signatures:     decodeSignatures(merged["signatures"]),
		Table:          table,
		OtherFields:    decodeOtherFields(merged["other_fields"]),
	}, nil
}

// mergeTopLevel implements step 1: in fast mode the combined payload
// is already the merged tree; in detailed mode header and items are
// merged as sibling top-level objects with header winning any key
// collision.
func mergeTopLevel(combined, header, items json.RawMessage) (map[string]json.RawMessage, error) {
	if len(combined) > 0 {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(combined, &m); err != nil {
			return nil, err
		}
		return m, nil
	}

	merged := map[string]json.RawMessage{}
	if len(items) > 0 {
		var im map[string]json.RawMessage
		if err := json.Unmarshal(items, &im); err != nil {
			return nil, err
		}
		for k, v := range im {
			merged[k] = v
		}
	}
	if len(header) > 0 {
		var hm map[string]json.RawMessage
		if err := json.Unmarshal(header, &hm); err != nil {
			return nil, err
		}
		for k, v := range hm {
			merged[k] = v
		}
	}
	return merged, nil
}

func decodeNodeMap(raw json.RawMessage) map[string]domain.Node {
	if len(raw) == 0 {
		return nil
	}
	n, err := domain.FromJSON(raw)
	if err != nil {
		return nil
	}
	m, _ := domain.AsMap(n)
	return m
}

func decodeParties(raw json.RawMessage) map[string]Party {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]struct {
		Name    string `json:"name"`
		TaxID   string `json:"tax_id"`
		VatID   string `json:"vat_id"`
		Address string `json:"address"`
		Bank    string `json:"bank"`
		Label   string `json:"_label"`
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	out := make(map[string]Party, len(m))
	for role, p := range m {
		out[role] = Party{Name: p.Name, TaxID: p.TaxID, VatID: p.VatID, Address: p.Address, Bank: p.Bank, Label: p.Label}
	}
	return out
}

// decodeSignatures implements step 5: an explicit index is assigned in
// array order regardless of whether the model supplied one.
func decodeSignatures(raw json.RawMessage) []SignatureRecord {
	if len(raw) == 0 {
		return nil
	}
	var items []struct {
		Role            string `json:"role"`
		Name            string `json:"name"`
		IsSigned        bool   `json:"is_signed"`
		IsStamped       bool   `json:"is_stamped"`
		StampContent    string `json:"stamp_content"`
		HandwrittenDate string `json:"handwritten_date"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]SignatureRecord, len(items))
	for i, it := range items {
		out[i] = SignatureRecord{
			Index:           i,
			Role:            it.Role,
			Name:            it.Name,
			Signed:          it.IsSigned,
			Stamped:         it.IsStamped,
			StampContent:    it.StampContent,
			HandwrittenDate: it.HandwrittenDate,
		}
	}
	return out
}

// decodeOtherFields implements step 6.
func decodeOtherFields(raw json.RawMessage) []OtherField {
	if len(raw) == 0 {
		return nil
	}
	var items []struct {
		Label string          `json:"label"`
		Value json.RawMessage `json:"value"`
		Key   string          `json:"key"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]OtherField, 0, len(items))
	for _, it := range items {
		v, _ := domain.FromJSON(it.Value)
		out = append(out, OtherField{Label: it.Label, Value: v, OptionalKey: it.Key})
	}
	return out
}

// decodeTable implements steps 2-4: derive column_order, flag rows
// with keys absent from column_mapping, and normalize numeric-looking
// cell strings.
func decodeTable(raw json.RawMessage, log *zap.Logger) (Table, error) {
	if len(raw) == 0 {
		return Table{}, nil
	}

	var obj struct {
		ColumnMapping map[string]string           `json:"column_mapping"`
		ColumnOrder   []string                    `json:"column_order"`
		LineItems     []map[string]json.RawMessage `json:"line_items"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Table{}, err
	}

	var mappingKeyOrder []string
	if sub := rawField(raw, "column_mapping"); sub != nil {
		if keys, err := domain.OrderedKeys(sub); err == nil {
			mappingKeyOrder = keys
		}
	}

	rows := make([]map[string]domain.Node, 0, len(obj.LineItems))
	for _, item := range obj.LineItems {
		row := make(map[string]domain.Node, len(item))
		for k, v := range item {
			row[k] = normalizeCell(v)
		}
		rows = append(rows, row)
	}

	order, rule, hadUnmapped := deriveColumnOrder(obj.ColumnOrder, obj.ColumnMapping, mappingKeyOrder, rows)
	if hadUnmapped && log != nil {
		log.Warn("table row keys absent from column_mapping; appended to column_order")
	}

	return Table{
		ColumnMapping:   obj.ColumnMapping,
		ColumnOrder:     order,
		ColumnOrderRule: rule,
		Rows:            rows,
		HadUnmappedKeys: hadUnmapped,
	}, nil
}

// normalizeCell implements step 4: a numeric-looking string is
// replaced with a {raw, value} pair so the original text survives
// alongside the parsed float; every other shape passes through as-is.
func normalizeCell(raw json.RawMessage) domain.Node {
	n, err := domain.FromJSON(raw)
	if err != nil {
		return nil
	}
	s, ok := domain.AsString(n)
	if !ok {
		return n
	}
	parsed := ParseNumeric(s)
	if !parsed.OK {
		return n
	}
	return map[string]domain.Node{"raw": parsed.Raw, "value": parsed.Value}
}

func rawField(raw json.RawMessage, key string) json.RawMessage {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m[key]
}
