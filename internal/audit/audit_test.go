package audit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHashDeterministic(t *testing.T) {
	details, err := json.Marshal(map[string]any{"amount": "100.00"})
	require.NoError(t, err)

	h1 := ComputeHash("id-1", "fund_change", "account", "acc-1", details, 1, nil)
	h2 := ComputeHash("id-1", "fund_change", "account", "acc-1", details, 1, nil)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestComputeHashChain(t *testing.T) {
	details := []byte(`{}`)

	h1 := ComputeHash("id-1", "fund_change", "account", "acc-1", details, 1, nil)
	h2 := ComputeHash("id-2", "fund_change", "account", "acc-1", details, 2, &h1)
	h3 := ComputeHash("id-3", "transfer_completed", "internal_transfer", "t-1", details, 3, &h2)

	// Re-deriving the chain from the same inputs reproduces it.
	assert.Equal(t, h2, ComputeHash("id-2", "fund_change", "account", "acc-1", details, 2, &h1))
	assert.Equal(t, h3, ComputeHash("id-3", "transfer_completed", "internal_transfer", "t-1", details, 3, &h2))

	// Any altered field breaks the link.
	tampered := []byte(`{"amount":"1"}`)
	assert.NotEqual(t, h2, ComputeHash("id-2", "fund_change", "account", "acc-1", tampered, 2, &h1))
	assert.NotEqual(t, h2, ComputeHash("id-2", "fund_change", "account", "acc-2", details, 2, &h1))
	assert.NotEqual(t, h2, ComputeHash("id-2", "fund_change", "account", "acc-1", details, 9, &h1))
	other := ComputeHash("id-x", "fund_change", "account", "acc-1", details, 1, nil)
	assert.NotEqual(t, h2, ComputeHash("id-2", "fund_change", "account", "acc-1", details, 2, &other))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 50, clampLimit(0))
	assert.Equal(t, 50, clampLimit(-1))
	assert.Equal(t, 10, clampLimit(10))
	assert.Equal(t, 200, clampLimit(1000))
}
