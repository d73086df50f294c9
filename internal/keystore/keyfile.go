package keystore

import (
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const keyFileVersion = 1

// KeyFile is the on-disk form of an encrypted signing key.
type KeyFile struct {
	Version    int    `json:"version"`
	Address    string `json:"address"`
	Provider   string `json:"provider"`
	Ciphertext string `json:"ciphertext"` // base64
}

// Seal encrypts key with kmsProvider.
func Seal(ctx context.Context, kmsProvider KMSProvider, key *ecdsa.PrivateKey) (*KeyFile, error) {
	if key == nil {
		return nil, fmt.Errorf("key is required")
	}

	ciphertext, err := kmsProvider.Encrypt(ctx, crypto.FromECDSA(key))
	if err != nil {
		return nil, fmt.Errorf("encrypt key: %w", err)
	}

	return &KeyFile{
		Version:    keyFileVersion,
		Address:    crypto.PubkeyToAddress(key.PublicKey).Hex(),
		Provider:   kmsProvider.Provider(),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

// Open decrypts kf and checks that the key matches the recorded address.
func (kf *KeyFile) Open(ctx context.Context, kmsProvider KMSProvider) (*ecdsa.PrivateKey, error) {
	if kf.Version != keyFileVersion {
		return nil, fmt.Errorf("unsupported key file version %d", kf.Version)
	}
	if kf.Provider != kmsProvider.Provider() {
		return nil, fmt.Errorf("key file was sealed by %q, not %q", kf.Provider, kmsProvider.Provider())
	}

	ciphertext, err := base64.StdEncoding.DecodeString(kf.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}

	raw, err := kmsProvider.Decrypt(ctx, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decrypt key: %w", err)
	}

	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid key material: %w", err)
	}

	if addr := crypto.PubkeyToAddress(key.PublicKey); addr != common.HexToAddress(kf.Address) {
		return nil, fmt.Errorf("key file address %s does not match key %s", kf.Address, addr.Hex())
	}
	return key, nil
}

// Save seals key and writes it to path with owner-only permissions.
func Save(ctx context.Context, kmsProvider KMSProvider, key *ecdsa.PrivateKey, path string) (*KeyFile, error) {
	kf, err := Seal(ctx, kmsProvider, key)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal key file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}
	return kf, nil
}

// Load reads and opens the key file at path.
func Load(ctx context.Context, kmsProvider KMSProvider, path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	var kf KeyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse key file: %w", err)
	}
	return kf.Open(ctx, kmsProvider)
}

// ParseHexKey parses a hex private key with or without 0x prefix.
func ParseHexKey(s string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}
