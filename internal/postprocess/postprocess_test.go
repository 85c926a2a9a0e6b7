package postprocess

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bosocmputer/invoice-vision-pipeline/internal/domain"
)

func TestMergeFastMode(t *testing.T) {
	combined := json.RawMessage(`{
		"document_info": {"document_number": "755", "document_date": "2025-03-25"},
		"parties": {"supplier": {"name": "TOV TECHNO", "tax_id": "code 37483556"}},
		"totals": {"total": 21919.97},
		"signatures": [
			{"role": "Accountant", "name": "Halyna", "is_signed": true},
			{"role": "Recipient", "name": "Pavlo", "is_signed": true, "is_stamped": true}
		],
		"table_data": {
			"column_mapping": {"no": "No", "tovar": "Item"},
			"line_items": [{"no": 1, "tovar": "Motor"}, {"no": 2, "tovar": "Motor"}]
		}
	}`)

	payload, err := Merge(zap.NewNop(), combined, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "755", payload.DocumentInfo["document_number"])
	assert.Equal(t, []string{"no", "tovar"}, payload.Table.ColumnOrder)
	assert.Equal(t, RuleMappingKeyOrder, payload.Table.ColumnOrderRule)
	require.Len(t, payload.Signatures, 2)
	assert.Equal(t, 0, payload.Signatures[0].Index)
	assert.Equal(t, 1, payload.Signatures[1].Index)
	assert.True(t, payload.Signatures[1].Stamped)
	require.Len(t, payload.Table.Rows, 2)
}

func TestMergeDetailedModeHeaderWins(t *testing.T) {
	header := json.RawMessage(`{"document_info": {"document_number": "1"}, "shared": "from-header"}`)
	items := json.RawMessage(`{"table_data": {"line_items": [{"sku": "A"}]}, "shared": "from-items"}`)

	payload, err := Merge(zap.NewNop(), nil, header, items)
	require.NoError(t, err)

	assert.Equal(t, "1", payload.DocumentInfo["document_number"])
	require.Len(t, payload.Table.Rows, 1)

	rawMap, ok := payload.Raw.(map[string]domain.Node)
	require.True(t, ok)
	assert.Equal(t, "from-header", rawMap["shared"])
}

func TestDecodeTableUnmappedKeysFlagged(t *testing.T) {
	raw := json.RawMessage(`{
		"column_mapping": {"no": "No"},
		"line_items": [{"no": 1, "extra": "surplus"}]
	}`)

	table, err := decodeTable(raw, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, table.HadUnmappedKeys)
	assert.Contains(t, table.ColumnOrder, "extra")
}

func TestNormalizeCellPreservesRawAlongsideValue(t *testing.T) {
	cell := normalizeCell(json.RawMessage(`"21,919.97"`))
	m, ok := cell.(map[string]domain.Node)
	require.True(t, ok)
	assert.Equal(t, "21,919.97", m["raw"])
	assert.InDelta(t, 21919.97, m["value"], 0.0001)
}

func TestNormalizeCellPassesThroughNonNumeric(t *testing.T) {
	cell := normalizeCell(json.RawMessage(`"Motor"`))
	assert.Equal(t, "Motor", cell)
}
