package clients

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHyperliquidKey(t *testing.T) {
	const hexKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

	t.Run("empty key generates a throwaway", func(t *testing.T) {
		k1, err := hyperliquidKey("")
		require.NoError(t, err)
		k2, err := hyperliquidKey("")
		require.NoError(t, err)
		assert.NotEqual(t, k1.D, k2.D)
	})

	t.Run("0x prefix is accepted", func(t *testing.T) {
		plain, err := hyperliquidKey(hexKey)
		require.NoError(t, err)
		prefixed, err := hyperliquidKey("0x" + hexKey)
		require.NoError(t, err)
		assert.Equal(t, plain.D, prefixed.D)
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		_, err := hyperliquidKey("not-hex")
		assert.Error(t, err)
	})
}
