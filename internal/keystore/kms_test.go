package keystore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocalKMSProvider(t *testing.T) {
	t.Run("creates provider with passphrase", func(t *testing.T) {
		provider, err := NewLocalKMSProvider("correct horse battery staple")
		require.NoError(t, err)
		assert.Equal(t, "local", provider.Provider())
	})

	t.Run("returns error with empty passphrase", func(t *testing.T) {
		provider, err := NewLocalKMSProvider("")
		assert.Error(t, err)
		assert.Nil(t, provider)
		assert.Contains(t, err.Error(), "passphrase is required")
	})
}

func TestLocalKMSProvider_EncryptDecrypt(t *testing.T) {
	provider, err := NewLocalKMSProvider("correct horse battery staple")
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		plaintext := []byte("32 bytes of very secret key data")

		ciphertext, err := provider.Encrypt(ctx, plaintext)
		require.NoError(t, err)
		assert.NotContains(t, string(ciphertext), string(plaintext))

		decrypted, err := provider.Decrypt(ctx, ciphertext)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	})

	t.Run("salted ciphertexts differ", func(t *testing.T) {
		c1, err := provider.Encrypt(ctx, []byte("same"))
		require.NoError(t, err)
		c2, err := provider.Encrypt(ctx, []byte("same"))
		require.NoError(t, err)
		assert.NotEqual(t, c1, c2)
	})

	t.Run("wrong passphrase fails", func(t *testing.T) {
		ciphertext, err := provider.Encrypt(ctx, []byte("secret"))
		require.NoError(t, err)

		other, err := NewLocalKMSProvider("wrong")
		require.NoError(t, err)
		_, err = other.Decrypt(ctx, ciphertext)
		assert.Error(t, err)
	})

	t.Run("short ciphertext fails", func(t *testing.T) {
		_, err := provider.Decrypt(ctx, []byte("short"))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "too short")
	})
}

type fakeKMS struct {
	err error
}

func (f *fakeKMS) Encrypt(ctx context.Context, params *kms.EncryptInput, _ ...func(*kms.Options)) (*kms.EncryptOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	blob := append([]byte(*params.KeyId+":"), params.Plaintext...)
	return &kms.EncryptOutput{CiphertextBlob: blob}, nil
}

func (f *fakeKMS) Decrypt(ctx context.Context, params *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	prefix := *params.KeyId + ":"
	if !strings.HasPrefix(string(params.CiphertextBlob), prefix) {
		return nil, errors.New("InvalidCiphertextException")
	}
	return &kms.DecryptOutput{Plaintext: params.CiphertextBlob[len(prefix):]}, nil
}

func TestAWSKMSProvider(t *testing.T) {
	ctx := context.Background()
	p := &AWSKMSProvider{keyID: "alias/wallet", client: &fakeKMS{}}
	assert.Equal(t, "aws-kms", p.Provider())

	ciphertext, err := p.Encrypt(ctx, []byte("key"))
	require.NoError(t, err)
	plaintext, err := p.Decrypt(ctx, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, []byte("key"), plaintext)

	failing := &AWSKMSProvider{keyID: "alias/wallet", client: &fakeKMS{err: errors.New("AccessDenied")}}
	_, err = failing.Encrypt(ctx, []byte("key"))
	assert.ErrorContains(t, err, "AWS KMS encrypt failed")
}

func TestNewAWSKMSProvider_Validation(t *testing.T) {
	_, err := NewAWSKMSProvider(context.Background(), "", "us-east-1")
	assert.ErrorContains(t, err, "key ID is required")

	_, err = NewAWSKMSProvider(context.Background(), "alias/wallet", "")
	assert.ErrorContains(t, err, "region is required")
}

type vaultTransitRequest struct {
	Plaintext  string `json:"plaintext"`
	Ciphertext string `json:"ciphertext"`
}

func newVaultTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req vaultTransitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		data := map[string]any{}
		switch {
		case strings.HasPrefix(r.URL.Path, "/v1/transit/encrypt/"):
			data["ciphertext"] = "vault:v1:" + req.Plaintext
		case strings.HasPrefix(r.URL.Path, "/v1/transit/decrypt/"):
			data["plaintext"] = strings.TrimPrefix(req.Ciphertext, "vault:v1:")
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVaultProvider(t *testing.T) {
	srv := newVaultTestServer(t)

	p, err := NewVaultProvider(srv.URL, "root", "wallet-keys")
	require.NoError(t, err)
	assert.Equal(t, "vault", p.Provider())

	ctx := context.Background()
	ciphertext, err := p.Encrypt(ctx, []byte("key material"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(ciphertext), "vault:v1:"))

	plaintext, err := p.Decrypt(ctx, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, []byte("key material"), plaintext)
}

func TestNewVaultProvider_Validation(t *testing.T) {
	tests := []struct {
		name, address, token, key, want string
	}{
		{"no address", "", "t", "k", "address is required"},
		{"no token", "http://vault", "", "k", "token is required"},
		{"no key", "http://vault", "t", "", "transit key name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewVaultProvider(tt.address, tt.token, tt.key)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestNewKMSProvider(t *testing.T) {
	p, err := NewKMSProvider(context.Background(), &KMSConfig{Passphrase: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "local", p.Provider())

	_, err = NewKMSProvider(context.Background(), &KMSConfig{Provider: "gcp-kms"})
	assert.ErrorContains(t, err, "unsupported KMS provider")
}
