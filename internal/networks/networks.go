// Package networks maps EVM chain identifiers to human-readable network metadata.
package networks

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// UnknownNetwork is returned by Resolve for chain ids missing from the table.
const UnknownNetwork = "Unknown Network"

// DefaultDecimals is the native-unit precision used for chains not in the table.
const DefaultDecimals = 18

// Network describes a known chain.
type Network struct {
	ChainID  string // 0x-prefixed lower-case hex
	Name     string
	Symbol   string
	Decimals uint8
}

var known = map[string]Network{
	"0x1":      {ChainID: "0x1", Name: "Ethereum Mainnet", Symbol: "ETH", Decimals: 18},
	"0x3":      {ChainID: "0x3", Name: "Ropsten", Symbol: "ETH", Decimals: 18},
	"0x4":      {ChainID: "0x4", Name: "Rinkeby", Symbol: "ETH", Decimals: 18},
	"0x5":      {ChainID: "0x5", Name: "Goerli", Symbol: "ETH", Decimals: 18},
	"0x2a":     {ChainID: "0x2a", Name: "Kovan", Symbol: "ETH", Decimals: 18},
	"0x89":     {ChainID: "0x89", Name: "Polygon", Symbol: "MATIC", Decimals: 18},
	"0x13881":  {ChainID: "0x13881", Name: "Mumbai", Symbol: "MATIC", Decimals: 18},
	"0xaa36a7": {ChainID: "0xaa36a7", Name: "Sepolia", Symbol: "ETH", Decimals: 18},
	"0x4268":   {ChainID: "0x4268", Name: "Holesky", Symbol: "ETH", Decimals: 18},
	"0xa":      {ChainID: "0xa", Name: "Optimism", Symbol: "ETH", Decimals: 18},
	"0xa4b1":   {ChainID: "0xa4b1", Name: "Arbitrum One", Symbol: "ETH", Decimals: 18},
	"0x2105":   {ChainID: "0x2105", Name: "Base", Symbol: "ETH", Decimals: 18},
	"0x38":     {ChainID: "0x38", Name: "BNB Smart Chain", Symbol: "BNB", Decimals: 18},
}

// Resolve returns the network name for chainID, or UnknownNetwork.
// It never panics and never returns an empty string.
func Resolve(chainID string) string {
	n, ok := Lookup(chainID)
	if !ok {
		return UnknownNetwork
	}
	return n.Name
}

// Lookup returns the table entry for chainID. Hex ("0x89", "0X0089") and
// decimal ("137") forms are accepted.
func Lookup(chainID string) (Network, bool) {
	normalized, ok := Normalize(chainID)
	if !ok {
		return Network{}, false
	}
	n, ok := known[normalized]
	return n, ok
}

// Decimals returns the native-unit precision of chainID, falling back to
// DefaultDecimals for chains not in the table.
func Decimals(chainID string) uint8 {
	if n, ok := Lookup(chainID); ok {
		return n.Decimals
	}
	return DefaultDecimals
}

// Normalize converts a chain id to canonical 0x-prefixed lower-case hex
// without leading zeros. The boolean is false for malformed input.
func Normalize(chainID string) (string, bool) {
	id, err := ParseChainID(chainID)
	if err != nil {
		return "", false
	}
	return FormatChainID(id), true
}

// ParseChainID parses a hex (0x-prefixed) or decimal chain id.
func ParseChainID(chainID string) (*big.Int, error) {
	s := strings.TrimSpace(chainID)
	if s == "" {
		return nil, errInvalidChainID(chainID)
	}

	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		// hexutil rejects leading zeros, so go through big.Int directly.
		v, ok := new(big.Int).SetString(s[2:], 16)
		if !ok || v.Sign() < 0 {
			return nil, errInvalidChainID(chainID)
		}
		return v, nil
	}

	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, errInvalidChainID(chainID)
	}
	return v, nil
}

// FormatChainID renders a chain id as a hex quantity ("0x1", "0x89").
func FormatChainID(id *big.Int) string {
	if id == nil {
		return ""
	}
	return hexutil.EncodeBig(id)
}

// All returns the known networks. The order is unspecified.
func All() []Network {
	out := make([]Network, 0, len(known))
	for _, n := range known {
		out = append(out, n)
	}
	return out
}

func errInvalidChainID(s string) error {
	return fmt.Errorf("invalid chain id: %q", s)
}
