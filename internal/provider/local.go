package provider

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"

	"github.com/better-wallet/marketplace/internal/authsig"
	"github.com/better-wallet/marketplace/internal/networks"
	"github.com/better-wallet/marketplace/internal/validation"
)

// Chain is the node access a LocalProvider needs for one network.
// internal/eth.Client implements it.
type Chain interface {
	ChainID() *big.Int
	BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error)
	PrepareTransfer(ctx context.Context, from common.Address, to *common.Address, value *big.Int, data []byte) (*types.DynamicFeeTx, error)
	SendTransaction(ctx context.Context, signedTx *types.Transaction) (common.Hash, error)
}

// Approver decides whether a prompting request (account access, signature,
// transaction, chain switch) is accepted. Returning false rejects it with
// CodeUserRejected.
type Approver func(ctx context.Context, method string) bool

// AutoApprove accepts every prompt.
func AutoApprove(context.Context, string) bool { return true }

// LocalProvider is an in-process wallet provider holding secp256k1 keys.
type LocalProvider struct {
	mu         sync.Mutex
	keys       map[common.Address]*ecdsa.PrivateKey
	order      []common.Address
	authorized bool
	chains     map[string]Chain
	active     string
	approve    Approver
	limits     validation.TransferLimits

	feed event.Feed
}

// LocalOption configures a LocalProvider.
type LocalOption func(*LocalProvider)

// WithKey adds an account backed by key.
func WithKey(key *ecdsa.PrivateKey) LocalOption {
	return func(p *LocalProvider) { p.addKey(key) }
}

// WithChain registers a chain. The first registered chain becomes active.
func WithChain(c Chain) LocalOption {
	return func(p *LocalProvider) {
		id := networks.FormatChainID(c.ChainID())
		p.chains[id] = c
		if p.active == "" {
			p.active = id
		}
	}
}

// WithApprover sets the prompt policy. The default is AutoApprove.
func WithApprover(a Approver) LocalOption {
	return func(p *LocalProvider) { p.approve = a }
}

// WithTransferLimits bounds outgoing transfers. The default is
// validation.DefaultLimits.
func WithTransferLimits(l validation.TransferLimits) LocalOption {
	return func(p *LocalProvider) { p.limits = l }
}

// NewLocalProvider creates a LocalProvider.
func NewLocalProvider(opts ...LocalOption) *LocalProvider {
	p := &LocalProvider{
		keys:    make(map[common.Address]*ecdsa.PrivateKey),
		chains:  make(map[string]Chain),
		approve: AutoApprove,
		limits:  validation.DefaultLimits,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *LocalProvider) addKey(key *ecdsa.PrivateKey) common.Address {
	addr := crypto.PubkeyToAddress(key.PublicKey)
	if _, ok := p.keys[addr]; !ok {
		p.order = append(p.order, addr)
	}
	p.keys[addr] = key
	return addr
}

// Subscribe implements Provider.
func (p *LocalProvider) Subscribe(sink chan<- Event) event.Subscription {
	return p.feed.Subscribe(sink)
}

// Request implements Provider.
func (p *LocalProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	var (
		result any
		err    error
	)

	switch method {
	case MethodRequestAccounts:
		result, err = p.requestAccounts(ctx)
	case MethodAccounts:
		result = p.accounts()
	case MethodChainID:
		result, err = p.chainID()
	case MethodGetBalance:
		result, err = p.getBalance(ctx, params)
	case MethodPersonalSign:
		result, err = p.personalSign(ctx, params)
	case MethodSendTransaction:
		result, err = p.sendTransaction(ctx, params)
	case MethodSwitchChain:
		result, err = p.switchChain(ctx, params)
	default:
		err = NewRPCError(CodeUnsupportedMethod, "unsupported method %s", method)
	}
	if err != nil {
		slog.Debug("local provider request failed", "method", method, "error", err)
		return nil, err
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, NewRPCError(CodeInternal, "encode result: %v", err)
	}
	return raw, nil
}

func (p *LocalProvider) requestAccounts(ctx context.Context) ([]string, error) {
	if !p.approve(ctx, MethodRequestAccounts) {
		return nil, NewRPCError(CodeUserRejected, "user rejected the request")
	}

	p.mu.Lock()
	p.authorized = true
	p.mu.Unlock()

	return p.accounts(), nil
}

func (p *LocalProvider) accounts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.order))
	if !p.authorized {
		return out
	}
	for _, addr := range p.order {
		out = append(out, strings.ToLower(addr.Hex()))
	}
	return out
}

func (p *LocalProvider) chainID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active == "" {
		return "", NewRPCError(CodeDisconnected, "no chain configured")
	}
	return p.active, nil
}

func (p *LocalProvider) activeChain() (Chain, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.chains[p.active]
	if !ok {
		return nil, NewRPCError(CodeChainDisconnected, "no active chain")
	}
	return c, nil
}

// authorizedKey returns the key for address when the account is exposed to the caller.
func (p *LocalProvider) authorizedKey(address string) (*ecdsa.PrivateKey, error) {
	if !common.IsHexAddress(address) {
		return nil, NewRPCError(CodeInvalidParams, "invalid address %q", address)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key, ok := p.keys[common.HexToAddress(address)]
	if !ok || !p.authorized {
		return nil, NewRPCError(CodeUnauthorized, "account %s is not authorized", address)
	}
	return key, nil
}

func (p *LocalProvider) getBalance(ctx context.Context, params []any) (*hexutil.Big, error) {
	var address string
	if err := decodeParam(params, 0, &address); err != nil {
		return nil, err
	}
	if !common.IsHexAddress(address) {
		return nil, NewRPCError(CodeInvalidParams, "invalid address %q", address)
	}

	c, err := p.activeChain()
	if err != nil {
		return nil, err
	}

	balance, err := c.BalanceAt(ctx, common.HexToAddress(address))
	if err != nil {
		return nil, NewRPCError(CodeInternal, "%v", err)
	}
	return (*hexutil.Big)(balance), nil
}

func (p *LocalProvider) personalSign(ctx context.Context, params []any) (hexutil.Bytes, error) {
	var dataHex, address string
	if err := decodeParam(params, 0, &dataHex); err != nil {
		return nil, err
	}
	if err := decodeParam(params, 1, &address); err != nil {
		return nil, err
	}

	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, NewRPCError(CodeInvalidParams, "message must be 0x-prefixed hex: %v", err)
	}

	key, err := p.authorizedKey(address)
	if err != nil {
		return nil, err
	}

	if !p.approve(ctx, MethodPersonalSign) {
		return nil, NewRPCError(CodeUserRejected, "user denied message signature")
	}

	sig, err := authsig.SignPersonal(key, data)
	if err != nil {
		return nil, NewRPCError(CodeInternal, "%v", err)
	}
	return sig, nil
}

func (p *LocalProvider) sendTransaction(ctx context.Context, params []any) (common.Hash, error) {
	var req TxRequest
	if err := decodeParam(params, 0, &req); err != nil {
		return common.Hash{}, err
	}

	key, err := p.authorizedKey(req.From)
	if err != nil {
		return common.Hash{}, err
	}

	var to *common.Address
	if req.To != "" {
		if !common.IsHexAddress(req.To) {
			return common.Hash{}, NewRPCError(CodeInvalidParams, "invalid recipient %q", req.To)
		}
		addr := common.HexToAddress(req.To)
		to = &addr
	}

	value := new(big.Int)
	if req.Value != "" {
		v, err := hexutil.DecodeBig(req.Value)
		if err != nil {
			return common.Hash{}, NewRPCError(CodeInvalidParams, "invalid value: %v", err)
		}
		value = v
	}

	var data []byte
	if req.Data != "" && req.Data != "0x" {
		data, err = hexutil.Decode(req.Data)
		if err != nil {
			return common.Hash{}, NewRPCError(CodeInvalidParams, "invalid data: %v", err)
		}
	}

	if !p.approve(ctx, MethodSendTransaction) {
		return common.Hash{}, NewRPCError(CodeUserRejected, "user denied transaction signature")
	}

	c, err := p.activeChain()
	if err != nil {
		return common.Hash{}, err
	}

	txData, err := c.PrepareTransfer(ctx, common.HexToAddress(req.From), to, value, data)
	if err != nil {
		return common.Hash{}, NewRPCError(CodeInternal, "%v", err)
	}
	if err := validation.ValidatePreparedTransfer(txData, p.limits); err != nil {
		return common.Hash{}, NewRPCError(CodeInvalidParams, "%v", err)
	}

	signed, err := types.SignNewTx(key, types.LatestSignerForChainID(c.ChainID()), txData)
	if err != nil {
		return common.Hash{}, NewRPCError(CodeInternal, "sign transaction: %v", err)
	}

	hash, err := c.SendTransaction(ctx, signed)
	if err != nil {
		return common.Hash{}, NewRPCError(CodeInternal, "%v", err)
	}
	return hash, nil
}

func (p *LocalProvider) switchChain(ctx context.Context, params []any) (any, error) {
	var req SwitchChainRequest
	if err := decodeParam(params, 0, &req); err != nil {
		return nil, err
	}

	if !p.approve(ctx, MethodSwitchChain) {
		return nil, NewRPCError(CodeUserRejected, "user rejected the network switch")
	}

	if err := p.SwitchChain(req.ChainID); err != nil {
		return nil, err
	}
	return nil, nil
}

// SwitchChain makes chainID active and emits chainChanged. Unknown chains
// fail with CodeUnrecognizedChain.
func (p *LocalProvider) SwitchChain(chainID string) error {
	id, ok := networks.Normalize(chainID)
	if !ok {
		return NewRPCError(CodeInvalidParams, "invalid chain id %q", chainID)
	}

	p.mu.Lock()
	if _, ok := p.chains[id]; !ok {
		p.mu.Unlock()
		return NewRPCError(CodeUnrecognizedChain, "unrecognized chain id %s", id)
	}
	p.active = id
	p.mu.Unlock()

	p.feed.Send(Event{Name: EventChainChanged, ChainID: id})
	return nil
}

// AddAccount adds key and, when access is granted, emits accountsChanged.
func (p *LocalProvider) AddAccount(key *ecdsa.PrivateKey) common.Address {
	p.mu.Lock()
	addr := p.addKey(key)
	authorized := p.authorized
	p.mu.Unlock()

	if authorized {
		p.feed.Send(Event{Name: EventAccountsChanged, Accounts: p.accounts()})
	}
	return addr
}

// SelectAccount moves addr to the front of the account list, the way a
// wallet reports the account the user switched to.
func (p *LocalProvider) SelectAccount(addr common.Address) error {
	p.mu.Lock()
	idx := -1
	for i, a := range p.order {
		if a == addr {
			idx = i
			break
		}
	}
	if idx < 0 {
		p.mu.Unlock()
		return fmt.Errorf("unknown account %s", addr.Hex())
	}
	p.order = append([]common.Address{addr}, append(p.order[:idx:idx], p.order[idx+1:]...)...)
	authorized := p.authorized
	p.mu.Unlock()

	if authorized {
		p.feed.Send(Event{Name: EventAccountsChanged, Accounts: p.accounts()})
	}
	return nil
}

// RevokeAccess withdraws account access and emits accountsChanged with an
// empty list.
func (p *LocalProvider) RevokeAccess() {
	p.mu.Lock()
	p.authorized = false
	p.mu.Unlock()

	p.feed.Send(Event{Name: EventAccountsChanged, Accounts: []string{}})
}

// Disconnect emits a disconnect event carrying err.
func (p *LocalProvider) Disconnect(err error) {
	if err == nil {
		err = NewRPCError(CodeDisconnected, "provider disconnected")
	}
	p.feed.Send(Event{Name: EventDisconnect, Err: err})
}

// decodeParam JSON-decodes params[i] into dst, the way a bridge would see a
// request that crossed a JSON boundary.
func decodeParam(params []any, i int, dst any) error {
	if i >= len(params) {
		return NewRPCError(CodeInvalidParams, "missing parameter %d", i)
	}
	raw, err := json.Marshal(params[i])
	if err != nil {
		return NewRPCError(CodeInvalidParams, "parameter %d: %v", i, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return NewRPCError(CodeInvalidParams, "parameter %d: %v", i, err)
	}
	return nil
}
