package authsig

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gowebpki/jcs"
)

// ChallengeTTL is how long a signed login challenge stays acceptable.
const ChallengeTTL = 5 * time.Minute

// Challenge is the message a wallet signs to log in. It is signed in its
// RFC 8785 canonical JSON form so client and server hash identical bytes.
type Challenge struct {
	Domain   string `json:"domain"`
	Address  string `json:"address"`
	ChainID  string `json:"chainId,omitempty"`
	Nonce    string `json:"nonce"`
	IssuedAt string `json:"issuedAt"` // RFC 3339, UTC
}

// NewChallenge builds a challenge for address with a random nonce.
func NewChallenge(domain, address, chainID string, now time.Time) (Challenge, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return Challenge{}, fmt.Errorf("generate nonce: %w", err)
	}
	return Challenge{
		Domain:   domain,
		Address:  strings.ToLower(address),
		ChainID:  chainID,
		Nonce:    hex.EncodeToString(nonce),
		IssuedAt: now.UTC().Format(time.RFC3339),
	}, nil
}

// Canonical returns the canonical JSON bytes to sign.
func (c Challenge) Canonical() ([]byte, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal challenge: %w", err)
	}

	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize challenge: %w", err)
	}
	return canonical, nil
}

// ParseChallenge decodes message and requires it to be in canonical form.
func ParseChallenge(message []byte) (Challenge, error) {
	var c Challenge
	if err := json.Unmarshal(message, &c); err != nil {
		return Challenge{}, fmt.Errorf("decode challenge: %w", err)
	}

	canonical, err := jcs.Transform(message)
	if err != nil {
		return Challenge{}, fmt.Errorf("canonicalize challenge: %w", err)
	}
	if string(canonical) != string(message) {
		return Challenge{}, fmt.Errorf("challenge is not in canonical form")
	}
	return c, nil
}

// Validate checks that c was issued for address and domain within ChallengeTTL of now.
func (c Challenge) Validate(domain, address string, now time.Time) error {
	if c.Nonce == "" {
		return fmt.Errorf("challenge nonce is required")
	}
	if domain != "" && c.Domain != domain {
		return fmt.Errorf("challenge domain %q does not match %q", c.Domain, domain)
	}
	if !common.IsHexAddress(c.Address) || common.HexToAddress(c.Address) != common.HexToAddress(address) {
		return fmt.Errorf("challenge address %q does not match %q", c.Address, address)
	}

	issued, err := time.Parse(time.RFC3339, c.IssuedAt)
	if err != nil {
		return fmt.Errorf("invalid issuedAt: %w", err)
	}
	if age := now.Sub(issued); age > ChallengeTTL || age < -time.Minute {
		return fmt.Errorf("challenge expired or issued in the future")
	}
	return nil
}
