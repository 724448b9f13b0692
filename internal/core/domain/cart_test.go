package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleLines() []CartLine {
	return []CartLine{
		{ID: "sku-1", Name: "Protein shake", UnitPrice: decimal.RequireFromString("450.50"), ImageRef: "https://img.example.com/1.png", Quantity: 2},
		{ID: "sku-2", Name: "BCAA", UnitPrice: decimal.NewFromInt(320), ImageRef: "https://img.example.com/2.png", Quantity: 1},
		{ID: "sku-3", Name: "Creatine", UnitPrice: decimal.RequireFromString("0.99"), ImageRef: "https://img.example.com/3.png", Quantity: 10},
	}
}

func TestSnapshot_Totals(t *testing.T) {
	s := NewSnapshot(sampleLines())

	assert.Equal(t, 13, s.TotalItems())
	assert.True(t, decimal.RequireFromString("1230.90").Equal(s.TotalPrice()), "got %s", s.TotalPrice())
}

func TestSnapshot_Empty(t *testing.T) {
	s := NewSnapshot(nil)

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.TotalItems())
	assert.True(t, s.TotalPrice().IsZero())
}

func TestSnapshot_CopiesLines(t *testing.T) {
	lines := sampleLines()
	s := NewSnapshot(lines)

	lines[0].Quantity = 99
	got, ok := s.Line("sku-1")
	require.True(t, ok)
	assert.Equal(t, 2, got.Quantity)

	out := s.Lines()
	out[1].Quantity = 42
	got, _ = s.Line("sku-2")
	assert.Equal(t, 1, got.Quantity)
}

func TestPersisted_RoundTripKeepsTotals(t *testing.T) {
	s := NewSnapshot(sampleLines())

	data, err := EncodePersisted(s)
	require.NoError(t, err)

	back, err := DecodePersisted(data)
	require.NoError(t, err)

	assert.Equal(t, s.Len(), back.Len())
	assert.Equal(t, s.TotalItems(), back.TotalItems())
	assert.True(t, s.TotalPrice().Equal(back.TotalPrice()))
}

func TestPersisted_KeepsWriter(t *testing.T) {
	data, err := EncodePersisted(NewSnapshot(sampleLines()).WithOrigin("tab-1"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"writtenBy":"tab-1"`)

	back, err := DecodePersisted(data)
	require.NoError(t, err)
	assert.Equal(t, "tab-1", back.Origin())

	anon, err := EncodePersisted(NewSnapshot(sampleLines()))
	require.NoError(t, err)
	assert.NotContains(t, string(anon), "writtenBy")
}

func TestDecodePersisted_AcceptsNumericPrices(t *testing.T) {
	raw := []byte(`{"state":{"items":[{"id":"1","name":"Shake","price":450,"image":"https://picsum.photos/400/300?random=1","quantity":3}]},"version":0}`)

	s, err := DecodePersisted(raw)
	require.NoError(t, err)

	line, ok := s.Line("1")
	require.True(t, ok)
	assert.Equal(t, 3, line.Quantity)
	assert.True(t, decimal.NewFromInt(1350).Equal(s.TotalPrice()))
}

func TestDecodePersisted_Corrupt(t *testing.T) {
	_, err := DecodePersisted([]byte(`{"state":`))
	assert.Error(t, err)
}

func TestSyncEnvelope_Validate(t *testing.T) {
	ok := NewCartUpdate("tab-1", NewSnapshot(sampleLines()), 1700000000000)
	require.NoError(t, ok.Validate())
	assert.Equal(t, EnvelopeVersion, ok.Version)
	assert.Len(t, ok.Items, 3)

	tests := []struct {
		name   string
		mutate func(*SyncEnvelope)
		want   error
	}{
		{"future version", func(e *SyncEnvelope) { e.Version = EnvelopeVersion + 1 }, ErrUnsupportedEnvelope},
		{"missing version", func(e *SyncEnvelope) { e.Version = 0 }, ErrUnsupportedEnvelope},
		{"unknown type", func(e *SyncEnvelope) { e.Type = "TEST_MESSAGE" }, ErrUnsupportedEnvelope},
		{"missing tab", func(e *SyncEnvelope) { e.TabID = "" }, ErrMalformedEnvelope},
		{"zero timestamp", func(e *SyncEnvelope) { e.Timestamp = 0 }, ErrMalformedEnvelope},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := ok
			tt.mutate(&env)
			err := env.Validate()
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
