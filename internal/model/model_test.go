package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveEventType(t *testing.T) {
	tests := []struct {
		raw  string
		want EventType
	}{
		{"create", EventCreate},
		{"UPDATE", EventUpdate},
		{" Delete ", EventDelete},
	}
	for _, tt := range tests {
		got, err := ResolveEventType(tt.raw)
		require.NoError(t, err, "raw %q", tt.raw)
		assert.Equal(t, tt.want, got)
	}
}

func TestResolveEventType_Unknown(t *testing.T) {
	_, err := ResolveEventType("upsert")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"upsert"`)
}

func TestModule_Matches(t *testing.T) {
	m := &Module{ConnectorName: "products-connector", ModuleName: "products"}

	assert.True(t, m.Matches(""))
	assert.True(t, m.Matches("products"))
	assert.True(t, m.Matches("products-connector"))
	assert.False(t, m.Matches("assets"))
}

func TestModule_Excluded(t *testing.T) {
	m := &Module{ConnectorName: "products-connector", ModuleName: "products"}

	assert.False(t, m.Excluded(nil))
	assert.False(t, m.Excluded([]string{""}))
	assert.True(t, m.Excluded([]string{"products"}))
	assert.True(t, m.Excluded([]string{"other", "products-connector"}))
	assert.False(t, m.Excluded([]string{"other"}))
}
