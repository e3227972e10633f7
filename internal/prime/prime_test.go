package prime

import (
	"testing"

	"yield-router-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToBaseUnits(t *testing.T) {
	got, err := ToBaseUnits("1.5", 6)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(1_500_000)))

	got, err = ToBaseUnits("0.000001", 6)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(1)))

	_, err = ToBaseUnits("0.0000001", 6)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = ToBaseUnits("abc", 6)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestFromBaseUnits(t *testing.T) {
	assert.Equal(t, "1.09", FromBaseUnits(decimal.NewFromInt(1_090_000), 6))
	assert.Equal(t, "1", FromBaseUnits(decimal.NewFromInt(100_000_000), 8))
}

func TestIdempotencyKey(t *testing.T) {
	a := IdempotencyKey("request-1")
	assert.Len(t, a, 36)
	assert.Equal(t, a, IdempotencyKey("request-1"))
	assert.NotEqual(t, a, IdempotencyKey("request-2"))
}

func TestScopeNetwork(t *testing.T) {
	n := scopeNetwork("ethereum-mainnet")
	require.NotNil(t, n)
	assert.Equal(t, "ethereum", n.Id)
	assert.Equal(t, "mainnet", n.Type)

	n = scopeNetwork("base-sepolia")
	require.NotNil(t, n)
	assert.Equal(t, "base", n.Id)

	assert.Nil(t, scopeNetwork("solana"))
	assert.Nil(t, scopeNetwork(""))
}
