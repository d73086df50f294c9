// Package authsig signs and verifies EIP-191 personal messages, the format
// produced by personal_sign in browser wallets.
package authsig

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the length of an r||s||v signature.
const SignatureLength = crypto.SignatureLength

// SignPersonal signs message with the "\x19Ethereum Signed Message:\n" prefix.
// The returned signature uses V in {27, 28}, as wallets do.
func SignPersonal(key *ecdsa.PrivateKey, message []byte) ([]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("signing key is required")
	}

	sig, err := crypto.Sign(accounts.TextHash(message), key)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverPersonal returns the address that produced sig over message.
// Both V conventions (0/1 and 27/28) are accepted.
func RecoverPersonal(message, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(sig))
	}

	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	if normalized[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, fmt.Errorf("invalid signature recovery id: %d", sig[crypto.RecoveryIDOffset])
	}

	pub, err := crypto.SigToPub(accounts.TextHash(message), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyPersonal checks that the hex-encoded signature over message was
// produced by address. Address comparison is case-insensitive.
func VerifyPersonal(address string, message []byte, signatureHex string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid address: %s", address)
	}

	sig, err := hexutil.Decode(strings.TrimSpace(signatureHex))
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}

	recovered, err := RecoverPersonal(message, sig)
	if err != nil {
		return err
	}

	if recovered != common.HexToAddress(address) {
		return fmt.Errorf("signature signed by %s, expected %s", recovered.Hex(), common.HexToAddress(address).Hex())
	}
	return nil
}
