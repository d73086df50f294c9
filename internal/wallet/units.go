package wallet

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// plainAmount is an unsigned decimal without exponent: "1", "1.5", ".5", "3.".
var plainAmount = regexp.MustCompile(`^\+?(\d+\.?\d*|\.\d+)$`)

// FormatUnits renders a base-unit amount as a decimal string in the
// human-scaled unit: amount / 10^decimals, trailing zeros trimmed.
//
//	FormatUnits(1234500000000000000, 18) == "1.2345"
//	FormatUnits(1000000000000000000, 18) == "1"
//	FormatUnits(1, 18)                   == "0.000000000000000001"
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

// ToBaseUnits parses a non-negative decimal string in the human-scaled unit
// into base units. Values with more fractional digits than decimals are
// rejected rather than rounded.
func ToBaseUnits(value string, decimals uint8) (*big.Int, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return nil, fmt.Errorf("amount is required")
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("amount must not be negative: %s", value)
	}
	if !plainAmount.MatchString(s) {
		return nil, fmt.Errorf("invalid amount: %s", value)
	}

	amount, err := decimal.NewFromString(strings.TrimPrefix(s, "+"))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %s: %w", value, err)
	}

	base := amount.Shift(int32(decimals))
	if !base.IsInteger() {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", value, decimals)
	}
	return base.BigInt(), nil
}
