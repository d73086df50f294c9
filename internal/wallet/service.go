// Package wallet adapts an injected wallet provider into a session that
// application code can query and observe.
//
// A Service owns the single source of truth for the connection (account,
// chain, network name). Provider events are translated into application
// events and broadcast to every subscriber; consumers keep their own copies
// of state and never mutate the Service directly.
package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/event"

	"github.com/better-wallet/marketplace/internal/metrics"
	"github.com/better-wallet/marketplace/internal/networks"
	"github.com/better-wallet/marketplace/internal/provider"
	"github.com/better-wallet/marketplace/internal/validation"
	apperrors "github.com/better-wallet/marketplace/pkg/errors"
)

// providerEventBuffer bounds provider events queued ahead of the event loop.
const providerEventBuffer = 16

// Session is the connection state held by a Service.
type Session struct {
	Account     *string
	ChainID     string
	NetworkName string
}

// Connected reports whether an account is authorized.
func (s Session) Connected() bool {
	return s.Account != nil
}

func (s Session) clone() Session {
	out := s
	if s.Account != nil {
		account := *s.Account
		out.Account = &account
	}
	return out
}

// Service is the provider adapter and session store.
type Service struct {
	provider provider.Provider
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu      sync.Mutex
	session Session

	feed event.Feed

	subMu sync.Mutex
	sub   event.Subscription
	quit  chan struct{}
	done  chan struct{}
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics sets the collectors used for provider requests and events.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service over p. A nil p models an environment with no
// wallet installed; Initialize then fails with ErrProviderUnavailable.
func NewService(p provider.Provider, opts ...Option) *Service {
	s := &Service{
		provider: p,
		metrics:  metrics.Nop(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize requests account access, records the first authorized account
// and the active chain, and starts listening for provider events.
func (s *Service) Initialize(ctx context.Context) (Session, error) {
	if s.provider == nil {
		return Session{}, apperrors.ErrProviderUnavailable
	}

	var accounts []string
	if err := s.call(ctx, &accounts, provider.MethodRequestAccounts); err != nil {
		if provider.IsUserRejected(err) {
			return Session{}, apperrors.UserRejected(err.Error())
		}
		return Session{}, fmt.Errorf("request accounts: %w", err)
	}
	if len(accounts) == 0 {
		return Session{}, apperrors.NewWithDetail(
			apperrors.ErrCodeNoActiveAccount,
			apperrors.ErrNoActiveAccount.Message,
			"provider returned no accounts",
			apperrors.ErrNoActiveAccount.StatusCode,
		)
	}

	var chainID string
	if err := s.call(ctx, &chainID, provider.MethodChainID); err != nil {
		return Session{}, fmt.Errorf("get chain id: %w", err)
	}

	s.mu.Lock()
	account := accounts[0]
	s.session.Account = &account
	s.setChainLocked(chainID)
	snapshot := s.session.clone()
	s.mu.Unlock()

	s.subscribe()

	s.logger.Info("wallet connected",
		"account", account,
		"chain_id", snapshot.ChainID,
		"network", snapshot.NetworkName,
	)

	s.publish(Event{Name: EventAccountChanged, Session: snapshot})
	return snapshot, nil
}

// Session returns a copy of the current session.
func (s *Service) Session() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.clone()
}

// Account returns the active account, or nil when disconnected.
func (s *Service) Account() *string {
	return s.Session().Account
}

// NetworkInfo returns the active chain id and its network name.
func (s *Service) NetworkInfo() (chainID, networkName string) {
	sess := s.Session()
	return sess.ChainID, sess.NetworkName
}

// IsConnected reports whether an account is active.
func (s *Service) IsConnected() bool {
	return s.Session().Connected()
}

// Balance queries the live balance of the active account on the active chain,
// formatted in the chain's human-scaled native unit.
func (s *Service) Balance(ctx context.Context) (string, error) {
	sess := s.Session()
	if sess.Account == nil {
		return "", apperrors.ErrNoActiveAccount
	}

	var balance hexutil.Big
	if err := s.call(ctx, &balance, provider.MethodGetBalance, *sess.Account, "latest"); err != nil {
		return "", apperrors.BalanceQueryFailed(err)
	}

	return FormatUnits((*big.Int)(&balance), networks.Decimals(sess.ChainID)), nil
}

// SignMessage asks the active account to sign message (EIP-191 personal_sign)
// and returns the 0x-prefixed signature.
func (s *Service) SignMessage(ctx context.Context, message []byte) (string, error) {
	sess := s.Session()
	if sess.Account == nil {
		return "", apperrors.ErrNoActiveAccount
	}

	var sig hexutil.Bytes
	if err := s.call(ctx, &sig, provider.MethodPersonalSign, hexutil.Encode(message), *sess.Account); err != nil {
		if provider.IsUserRejected(err) {
			return "", apperrors.UserRejected(err.Error())
		}
		return "", fmt.Errorf("sign message: %w", err)
	}
	return sig.String(), nil
}

// SendTransaction submits a transfer of value (decimal, human-scaled native
// unit) with optional hex data from the active account and returns the
// transaction hash. An empty "to" creates a contract.
func (s *Service) SendTransaction(ctx context.Context, to, value, data string) (common.Hash, error) {
	sess := s.Session()
	if sess.Account == nil {
		return common.Hash{}, apperrors.ErrNoActiveAccount
	}

	if err := validation.ValidateRecipient(to); err != nil {
		return common.Hash{}, apperrors.TransactionRejected(err)
	}

	if value == "" {
		value = "0"
	}
	amount, err := ToBaseUnits(value, networks.Decimals(sess.ChainID))
	if err != nil {
		return common.Hash{}, apperrors.TransactionRejected(err)
	}

	if data != "" {
		raw, err := hexutil.Decode(data)
		if err != nil {
			return common.Hash{}, apperrors.TransactionRejected(fmt.Errorf("invalid data: %w", err))
		}
		if err := validation.ValidateTransactionData(raw, validation.MaxDataSize); err != nil {
			return common.Hash{}, apperrors.TransactionRejected(err)
		}
	}

	req := provider.TxRequest{
		From:  *sess.Account,
		To:    to,
		Value: hexutil.EncodeBig(amount),
		Data:  data,
	}

	var hash common.Hash
	if err := s.call(ctx, &hash, provider.MethodSendTransaction, req); err != nil {
		return common.Hash{}, apperrors.TransactionRejected(err)
	}

	s.logger.Info("transaction submitted",
		"from", *sess.Account,
		"to", to,
		"value", value,
		"chain_id", sess.ChainID,
		"tx_hash", hash.Hex(),
	)
	return hash, nil
}

// SwitchNetwork asks the provider to change the active chain. On failure the
// session is left untouched.
func (s *Service) SwitchNetwork(ctx context.Context, chainID string) error {
	if s.provider == nil {
		return apperrors.ErrProviderUnavailable
	}

	id, ok := networks.Normalize(chainID)
	if !ok {
		return apperrors.NetworkSwitchFailed(chainID, fmt.Errorf("invalid chain id"))
	}

	if err := s.call(ctx, nil, provider.MethodSwitchChain, provider.SwitchChainRequest{ChainID: id}); err != nil {
		return apperrors.NetworkSwitchFailed(id, err)
	}

	s.mu.Lock()
	changed := s.session.ChainID != id
	s.setChainLocked(id)
	snapshot := s.session.clone()
	s.mu.Unlock()

	if changed {
		s.publish(Event{Name: EventChainChanged, Session: snapshot})
	}
	return nil
}

// Disconnect clears the session and notifies subscribers. The provider keeps
// its authorization; most wallets cannot revoke it programmatically.
func (s *Service) Disconnect() {
	s.mu.Lock()
	s.session = Session{}
	s.mu.Unlock()

	s.logger.Info("wallet disconnected")
	s.publish(Event{Name: EventDisconnected})
}

// SubscribeEvents delivers application events to sink. Every subscriber sees
// the same stream in the same order.
func (s *Service) SubscribeEvents(sink chan<- Event) event.Subscription {
	return s.feed.Subscribe(sink)
}

// Close stops listening to the provider.
func (s *Service) Close() {
	s.subMu.Lock()
	sub, quit, done := s.sub, s.quit, s.done
	s.sub = nil
	s.subMu.Unlock()

	if sub == nil {
		return
	}
	sub.Unsubscribe()
	close(quit)
	<-done
}

// setChainLocked is the only writer of ChainID and NetworkName, keeping the
// name derived from the id. Caller holds s.mu.
func (s *Service) setChainLocked(chainID string) {
	if normalized, ok := networks.Normalize(chainID); ok {
		chainID = normalized
	}
	s.session.ChainID = chainID
	s.session.NetworkName = networks.Resolve(chainID)
}

func (s *Service) call(ctx context.Context, result any, method string, params ...any) error {
	raw, err := s.provider.Request(ctx, method, params...)

	outcome := "ok"
	switch {
	case provider.IsUserRejected(err):
		outcome = "rejected"
	case err != nil:
		outcome = "error"
	}
	s.metrics.ProviderRequests.WithLabelValues(method, outcome).Inc()

	if err != nil {
		s.logger.Debug("provider request failed", "method", method, "error", err)
		return err
	}
	if result == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

func (s *Service) publish(ev Event) {
	s.metrics.WalletEvents.WithLabelValues(ev.Name).Inc()
	s.feed.Send(ev)
}
