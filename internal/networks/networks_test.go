package networks

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		chainID string
		want    string
	}{
		{"0x1", "Ethereum Mainnet"},
		{"0x3", "Ropsten"},
		{"0x4", "Rinkeby"},
		{"0x5", "Goerli"},
		{"0x2a", "Kovan"},
		{"0x89", "Polygon"},
		{"0x13881", "Mumbai"},
		{"0xaa36a7", "Sepolia"},
		{"0X89", "Polygon"},
		{"0x0089", "Polygon"},
		{" 0x2A ", "Kovan"},
		{"137", "Polygon"},
		{"1", "Ethereum Mainnet"},
		{"0x999999", UnknownNetwork},
		{"", UnknownNetwork},
		{"0x", UnknownNetwork},
		{"polygon", UnknownNetwork},
		{"-1", UnknownNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.chainID, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.chainID))
		})
	}
}

func TestResolve_KnownThenUnknown(t *testing.T) {
	assert.Equal(t, "Ethereum Mainnet", Resolve("0x1"))
	assert.NotPanics(t, func() {
		assert.Equal(t, "Unknown Network", Resolve("0xdeadbeef"))
	})
}

func TestLookup(t *testing.T) {
	n, ok := Lookup("0x89")
	require.True(t, ok)
	assert.Equal(t, "0x89", n.ChainID)
	assert.Equal(t, "MATIC", n.Symbol)
	assert.Equal(t, uint8(18), n.Decimals)

	_, ok = Lookup("0x12345678")
	assert.False(t, ok)
}

func TestDecimals(t *testing.T) {
	assert.Equal(t, uint8(18), Decimals("0x1"))
	assert.Equal(t, uint8(DefaultDecimals), Decimals("0xabcdef"))
}

func TestNormalize(t *testing.T) {
	got, ok := Normalize("0x0001")
	require.True(t, ok)
	assert.Equal(t, "0x1", got)

	got, ok = Normalize("80001")
	require.True(t, ok)
	assert.Equal(t, "0x13881", got)

	_, ok = Normalize("0xzz")
	assert.False(t, ok)
}

func TestParseAndFormatChainID(t *testing.T) {
	id, err := ParseChainID("0x2105")
	require.NoError(t, err)
	assert.Equal(t, int64(8453), id.Int64())
	assert.Equal(t, "0x2105", FormatChainID(id))

	assert.Equal(t, "0x0", FormatChainID(big.NewInt(0)))
	assert.Equal(t, "", FormatChainID(nil))

	_, err = ParseChainID("nope")
	assert.Error(t, err)
}

func TestAll_NamesAreUniqueAndKeyed(t *testing.T) {
	seen := make(map[string]bool)
	for _, n := range All() {
		assert.False(t, seen[n.Name], "duplicate network name %s", n.Name)
		seen[n.Name] = true

		normalized, ok := Normalize(n.ChainID)
		require.True(t, ok)
		assert.Equal(t, n.ChainID, normalized)
		assert.Equal(t, n.Name, Resolve(n.ChainID))
	}
}
