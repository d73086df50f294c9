// Package validation holds the sanity checks applied to outgoing transfers,
// both on the caller's request and on the transaction prepared for signing.
package validation

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/core/types"
)

// EthereumAddressPattern is the regex pattern for Ethereum addresses
var EthereumAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

const zeroAddress = "0x0000000000000000000000000000000000000000"

const (
	// MinTransferGas is the intrinsic gas of a plain value transfer.
	MinTransferGas = 21000
	// MaxTransferGas caps the gas limit of a single transfer.
	MaxTransferGas = 30_000_000
	// MaxDataSize matches the default txpool limit on transaction size.
	MaxDataSize = 128 * 1024
)

// MaxFeeCap is the highest accepted fee cap: 100000 gwei.
var MaxFeeCap = big.NewInt(100_000_000_000_000)

// ValidateEthereumAddress validates an Ethereum address format
func ValidateEthereumAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if !EthereumAddressPattern.MatchString(address) {
		return fmt.Errorf("invalid Ethereum address format: must be 0x followed by 40 hex characters")
	}

	return nil
}

// ValidateRecipient checks the "to" of a transfer. Empty means contract
// creation and is allowed; the zero address is not.
func ValidateRecipient(to string) error {
	if to == "" {
		return nil
	}
	if err := ValidateEthereumAddress(to); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	if strings.ToLower(to) == zeroAddress {
		return fmt.Errorf("cannot send to zero address")
	}
	return nil
}

// ValidateTransactionValue validates a transaction value
func ValidateTransactionValue(value *big.Int, maxValue *big.Int) error {
	if value == nil {
		return fmt.Errorf("value cannot be nil")
	}

	if value.Sign() < 0 {
		return fmt.Errorf("value cannot be negative")
	}

	if maxValue != nil && value.Cmp(maxValue) > 0 {
		return fmt.Errorf("value exceeds maximum allowed: %s > %s", value.String(), maxValue.String())
	}

	return nil
}

// ValidateTransactionData validates transaction data (calldata)
func ValidateTransactionData(data []byte, maxDataSize int) error {
	if maxDataSize > 0 && len(data) > maxDataSize {
		return fmt.Errorf("transaction data too large: %d bytes > %d bytes max", len(data), maxDataSize)
	}

	return nil
}

// ValidateGasParameters validates gas-related parameters
func ValidateGasParameters(gasLimit uint64, gasFeeCap, gasTipCap *big.Int) error {
	if gasLimit < MinTransferGas {
		return fmt.Errorf("gas limit too low: minimum %d for transfers", MinTransferGas)
	}

	if gasLimit > MaxTransferGas {
		return fmt.Errorf("gas limit too high: maximum %d", MaxTransferGas)
	}

	if gasFeeCap == nil || gasFeeCap.Sign() <= 0 {
		return fmt.Errorf("gas fee cap must be positive")
	}

	if gasTipCap == nil || gasTipCap.Sign() < 0 {
		return fmt.Errorf("gas tip cap cannot be negative")
	}

	if gasTipCap.Cmp(gasFeeCap) > 0 {
		return fmt.Errorf("gas tip cap cannot exceed gas fee cap")
	}

	if gasFeeCap.Cmp(MaxFeeCap) > 0 {
		return fmt.Errorf("gas fee cap too high: maximum 100000 gwei")
	}

	return nil
}

// TransferLimits bounds what a single transfer may carry.
type TransferLimits struct {
	MaxValue    *big.Int // nil = no limit
	MaxDataSize int      // 0 = no limit
}

// DefaultLimits applies only the data size cap.
var DefaultLimits = TransferLimits{MaxDataSize: MaxDataSize}

// ValidatePreparedTransfer checks a filled-in transaction before it is signed.
// The recipient is assumed to have been checked by ValidateRecipient.
func ValidatePreparedTransfer(tx *types.DynamicFeeTx, limits TransferLimits) error {
	if tx == nil {
		return fmt.Errorf("transaction cannot be nil")
	}
	if tx.To != nil && tx.To.Hex() == zeroAddress {
		return fmt.Errorf("invalid recipient address: cannot send to zero address")
	}
	if tx.To == nil && len(tx.Data) == 0 {
		return fmt.Errorf("contract creation requires data")
	}

	if err := ValidateTransactionValue(tx.Value, limits.MaxValue); err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}

	if err := ValidateGasParameters(tx.Gas, tx.GasFeeCap, tx.GasTipCap); err != nil {
		return fmt.Errorf("invalid gas parameters: %w", err)
	}

	if err := ValidateTransactionData(tx.Data, limits.MaxDataSize); err != nil {
		return fmt.Errorf("invalid data: %w", err)
	}

	return nil
}
