package provider_test

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better-wallet/marketplace/internal/authsig"
	"github.com/better-wallet/marketplace/internal/provider"
	"github.com/better-wallet/marketplace/internal/validation"
	"github.com/better-wallet/marketplace/tests/mocks"
)

type fixture struct {
	p       *provider.LocalProvider
	addr    common.Address
	mainnet *mocks.MockChain
	polygon *mocks.MockChain
}

func newFixture(t *testing.T, opts ...provider.LocalOption) *fixture {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	mainnet := mocks.NewMockChain(1)
	polygon := mocks.NewMockChain(137)
	mainnet.SetBalance(addr, big.NewInt(1e18))

	all := append([]provider.LocalOption{
		provider.WithKey(key),
		provider.WithChain(mainnet),
		provider.WithChain(polygon),
	}, opts...)

	return &fixture{
		p:       provider.NewLocalProvider(all...),
		addr:    addr,
		mainnet: mainnet,
		polygon: polygon,
	}
}

func request[T any](t *testing.T, p provider.Provider, method string, params ...any) (T, error) {
	t.Helper()

	var out T
	raw, err := p.Request(context.Background(), method, params...)
	if err != nil {
		return out, err
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out, nil
}

func receive(t *testing.T, ch <-chan provider.Event) provider.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for provider event")
		return provider.Event{}
	}
}

func (f *fixture) account() string {
	return strings.ToLower(f.addr.Hex())
}

func TestLocalProvider_Accounts(t *testing.T) {
	f := newFixture(t)

	accounts, err := request[[]string](t, f.p, provider.MethodAccounts)
	require.NoError(t, err)
	assert.Empty(t, accounts, "accounts are hidden until access is granted")

	accounts, err = request[[]string](t, f.p, provider.MethodRequestAccounts)
	require.NoError(t, err)
	assert.Equal(t, []string{f.account()}, accounts)

	accounts, err = request[[]string](t, f.p, provider.MethodAccounts)
	require.NoError(t, err)
	assert.Equal(t, []string{f.account()}, accounts)
}

func TestLocalProvider_RequestAccountsRejected(t *testing.T) {
	f := newFixture(t, provider.WithApprover(func(context.Context, string) bool { return false }))

	_, err := f.p.Request(context.Background(), provider.MethodRequestAccounts)
	require.Error(t, err)
	assert.True(t, provider.IsUserRejected(err))
}

func TestLocalProvider_ChainID(t *testing.T) {
	f := newFixture(t)

	chainID, err := request[string](t, f.p, provider.MethodChainID)
	require.NoError(t, err)
	assert.Equal(t, "0x1", chainID)

	_, err = provider.NewLocalProvider().Request(context.Background(), provider.MethodChainID)
	assert.Equal(t, provider.CodeDisconnected, provider.ErrorCode(err))
}

func TestLocalProvider_GetBalance(t *testing.T) {
	f := newFixture(t)

	balance, err := request[*hexutil.Big](t, f.p, provider.MethodGetBalance, f.account(), "latest")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", balance.ToInt().String())

	f.mainnet.FailBalance(errors.New("node down"))
	_, err = f.p.Request(context.Background(), provider.MethodGetBalance, f.account(), "latest")
	assert.Equal(t, provider.CodeInternal, provider.ErrorCode(err))

	_, err = f.p.Request(context.Background(), provider.MethodGetBalance, "not-an-address")
	assert.Equal(t, provider.CodeInvalidParams, provider.ErrorCode(err))
}

func TestLocalProvider_PersonalSign(t *testing.T) {
	f := newFixture(t)
	msg := []byte("marketplace login")

	_, err := f.p.Request(context.Background(), provider.MethodPersonalSign, hexutil.Encode(msg), f.account())
	assert.Equal(t, provider.CodeUnauthorized, provider.ErrorCode(err), "signing needs account access")

	_, err = f.p.Request(context.Background(), provider.MethodRequestAccounts)
	require.NoError(t, err)

	sig, err := request[hexutil.Bytes](t, f.p, provider.MethodPersonalSign, hexutil.Encode(msg), f.account())
	require.NoError(t, err)
	require.Len(t, sig, authsig.SignatureLength)
	assert.Contains(t, []byte{27, 28}, sig[64])

	recovered, err := authsig.RecoverPersonal(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, f.addr, recovered)

	_, err = f.p.Request(context.Background(), provider.MethodPersonalSign, "plain text", f.account())
	assert.Equal(t, provider.CodeInvalidParams, provider.ErrorCode(err))

	_, err = f.p.Request(context.Background(), provider.MethodPersonalSign, hexutil.Encode(msg))
	assert.Equal(t, provider.CodeInvalidParams, provider.ErrorCode(err))
}

func TestLocalProvider_PersonalSignRejected(t *testing.T) {
	f := newFixture(t, provider.WithApprover(func(_ context.Context, method string) bool {
		return method != provider.MethodPersonalSign
	}))

	_, err := f.p.Request(context.Background(), provider.MethodRequestAccounts)
	require.NoError(t, err)

	_, err = f.p.Request(context.Background(), provider.MethodPersonalSign, "0x01", f.account())
	assert.True(t, provider.IsUserRejected(err))
}

func TestLocalProvider_SendTransaction(t *testing.T) {
	f := newFixture(t)
	_, err := f.p.Request(context.Background(), provider.MethodRequestAccounts)
	require.NoError(t, err)

	to := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	req := provider.TxRequest{
		From:  f.account(),
		To:    to.Hex(),
		Value: hexutil.EncodeBig(big.NewInt(1e17)),
		Data:  "0x",
	}

	hash, err := request[common.Hash](t, f.p, provider.MethodSendTransaction, req)
	require.NoError(t, err)

	sent := f.mainnet.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, sent[0].Hash(), hash)
	assert.Equal(t, &to, sent[0].To())
	assert.Equal(t, big.NewInt(1), sent[0].ChainId())
	assert.Equal(t, "100000000000000000", sent[0].Value().String())

	t.Run("insufficient funds", func(t *testing.T) {
		req := req
		req.Value = hexutil.EncodeBig(new(big.Int).Mul(big.NewInt(5), big.NewInt(1e18)))
		_, err := f.p.Request(context.Background(), provider.MethodSendTransaction, req)
		assert.Equal(t, provider.CodeInternal, provider.ErrorCode(err))
	})

	t.Run("unknown sender", func(t *testing.T) {
		req := req
		req.From = "0x00000000000000000000000000000000000000dd"
		_, err := f.p.Request(context.Background(), provider.MethodSendTransaction, req)
		assert.Equal(t, provider.CodeUnauthorized, provider.ErrorCode(err))
	})

	t.Run("transfer limit", func(t *testing.T) {
		limited := newFixture(t, provider.WithTransferLimits(validation.TransferLimits{MaxValue: big.NewInt(1000)}))
		_, err := limited.p.Request(context.Background(), provider.MethodRequestAccounts)
		require.NoError(t, err)

		req := req
		req.From = limited.account()
		_, err = limited.p.Request(context.Background(), provider.MethodSendTransaction, req)
		assert.Equal(t, provider.CodeInvalidParams, provider.ErrorCode(err))
		assert.Empty(t, limited.mainnet.Sent())
	})

	t.Run("bad value", func(t *testing.T) {
		req := req
		req.Value = "12"
		_, err := f.p.Request(context.Background(), provider.MethodSendTransaction, req)
		assert.Equal(t, provider.CodeInvalidParams, provider.ErrorCode(err))
	})
}

func TestLocalProvider_SwitchChain(t *testing.T) {
	f := newFixture(t)

	events := make(chan provider.Event, 4)
	sub := f.p.Subscribe(events)
	defer sub.Unsubscribe()

	_, err := f.p.Request(context.Background(), provider.MethodSwitchChain, provider.SwitchChainRequest{ChainID: "0x89"})
	require.NoError(t, err)

	ev := receive(t, events)
	assert.Equal(t, provider.EventChainChanged, ev.Name)
	assert.Equal(t, "0x89", ev.ChainID)

	chainID, err := request[string](t, f.p, provider.MethodChainID)
	require.NoError(t, err)
	assert.Equal(t, "0x89", chainID)

	_, err = f.p.Request(context.Background(), provider.MethodSwitchChain, provider.SwitchChainRequest{ChainID: "0xaa36a7"})
	assert.Equal(t, provider.CodeUnrecognizedChain, provider.ErrorCode(err))

	chainID, err = request[string](t, f.p, provider.MethodChainID)
	require.NoError(t, err)
	assert.Equal(t, "0x89", chainID, "failed switch keeps the active chain")
}

func TestLocalProvider_AccountEvents(t *testing.T) {
	f := newFixture(t)
	_, err := f.p.Request(context.Background(), provider.MethodRequestAccounts)
	require.NoError(t, err)

	events := make(chan provider.Event, 4)
	sub := f.p.Subscribe(events)
	defer sub.Unsubscribe()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	second := f.p.AddAccount(key)

	ev := receive(t, events)
	assert.Equal(t, provider.EventAccountsChanged, ev.Name)
	assert.Equal(t, []string{f.account(), strings.ToLower(second.Hex())}, ev.Accounts)

	require.NoError(t, f.p.SelectAccount(second))
	ev = receive(t, events)
	assert.Equal(t, strings.ToLower(second.Hex()), ev.Accounts[0])

	assert.Error(t, f.p.SelectAccount(common.HexToAddress("0x01")))

	f.p.RevokeAccess()
	ev = receive(t, events)
	assert.Equal(t, provider.EventAccountsChanged, ev.Name)
	assert.Empty(t, ev.Accounts)

	f.p.Disconnect(nil)
	ev = receive(t, events)
	assert.Equal(t, provider.EventDisconnect, ev.Name)
	assert.Equal(t, provider.CodeDisconnected, provider.ErrorCode(ev.Err))
}

func TestLocalProvider_UnsupportedMethod(t *testing.T) {
	_, err := provider.NewLocalProvider().Request(context.Background(), "eth_mining")
	assert.Equal(t, provider.CodeUnsupportedMethod, provider.ErrorCode(err))
}

func TestRPCError(t *testing.T) {
	err := provider.NewRPCError(provider.CodeUserRejected, "denied by %s", "user")
	assert.Equal(t, "provider error 4001: denied by user", err.Error())

	wrapped := errors.Join(errors.New("context"), err)
	assert.True(t, provider.IsUserRejected(wrapped))
	assert.Equal(t, 0, provider.ErrorCode(errors.New("plain")))
	assert.False(t, provider.IsUserRejected(nil))
}
