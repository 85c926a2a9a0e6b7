package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bosocmputer/invoice-vision-pipeline/internal/domain"
)

func TestHashContentIsDeterministicAndDistinct(t *testing.T) {
	a := hashContent([]byte("hello"))
	b := hashContent([]byte("hello"))
	c := hashContent([]byte("world"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestNullableTimeReturnsNilForZeroValue(t *testing.T) {
	assert.Nil(t, nullableTime(time.Time{}))

	now := time.Now()
	got := nullableTime(now)
	if assert.NotNil(t, got) {
		assert.True(t, now.Equal(*got))
	}
}

func TestFieldValueFromNodeHandlesScalarShapes(t *testing.T) {
	assert.Equal(t, domain.FieldValue{Kind: domain.ValueText, Text: "inv-1", Raw: "inv-1"}, fieldValueFromNode("inv-1"))
	assert.Equal(t, domain.FieldValue{Kind: domain.ValueNumber, Number: 42}, fieldValueFromNode(float64(42)))
	assert.Equal(t, domain.FieldValue{Kind: domain.ValueBool, Bool: true}, fieldValueFromNode(true))
}

func TestFieldValueFromNodeHandlesNormalizedNumericCell(t *testing.T) {
	cell := map[string]domain.Node{"raw": "1,234.50", "value": float64(1234.5)}
	got := fieldValueFromNode(cell)
	assert.Equal(t, domain.ValueNumber, got.Kind)
	assert.Equal(t, 1234.5, got.Number)
	assert.Equal(t, "1,234.50", got.Raw)
}

func TestFieldValueFromNodeUnrecognizedShapeIsZero(t *testing.T) {
	got := fieldValueFromNode([]domain.Node{"x"})
	assert.True(t, got.IsZero())
}

func TestStringMapToNodeConvertsEveryEntry(t *testing.T) {
	n := stringMapToNode(map[string]string{"no": "1", "tovar": "2"})
	m, ok := domain.AsMap(n)
	assert.True(t, ok)
	assert.Equal(t, "1", m["no"])
	assert.Equal(t, "2", m["tovar"])
}

func TestRowsToNodePreservesRowOrder(t *testing.T) {
	rows := []map[string]domain.Node{
		{"no": "1"},
		{"no": "2"},
	}
	n := rowsToNode(rows)
	s, ok := domain.AsSlice(n)
	assert.True(t, ok)
	require := assert.New(t)
	require.Len(s, 2)
	first, _ := domain.AsMap(s[0])
	second, _ := domain.AsMap(s[1])
	require.Equal("1", first["no"])
	require.Equal("2", second["no"])
}
