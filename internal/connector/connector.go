// Package connector is the consumer-facing wallet state machine. Each
// Connector keeps its own copy of the connection state, derived from a shared
// wallet.Service through explicit calls and the service's event stream.
package connector

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"golang.org/x/sync/singleflight"

	"github.com/better-wallet/marketplace/internal/wallet"
	apperrors "github.com/better-wallet/marketplace/pkg/errors"
)

const eventBuffer = 16

// Status is the connection state of a Connector.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// State is a snapshot of a Connector. Balance is a decimal string in the
// active chain's native unit. Error holds the last failure message and
// ErrorCode its pkg/errors code.
type State struct {
	Account      *string `json:"account"`
	ChainID      string  `json:"chainId,omitempty"`
	NetworkName  string  `json:"networkName,omitempty"`
	Balance      string  `json:"balance,omitempty"`
	IsConnecting bool    `json:"isConnecting"`
	Error        string  `json:"error,omitempty"`
	ErrorCode    string  `json:"errorCode,omitempty"`
	Status       Status  `json:"status"`
}

// IsConnected reports whether an account is present.
func (s State) IsConnected() bool {
	return s.Account != nil
}

func (s State) clone() State {
	out := s
	if s.Account != nil {
		account := *s.Account
		out.Account = &account
	}
	return out
}

func (s *State) setError(err error) {
	s.Error = apperrors.Describe(err)
	s.ErrorCode = apperrors.CodeOf(err)
}

func (s *State) clearError() {
	s.Error = ""
	s.ErrorCode = ""
}

// Connector drives connect, disconnect, network switching, signing and
// transfers against a wallet.Service and republishes the resulting state.
type Connector struct {
	svc    *wallet.Service
	logger *slog.Logger
	group  singleflight.Group

	mu    sync.Mutex
	state State

	// sendMu orders state updates with their publication.
	sendMu sync.Mutex
	feed   event.Feed

	runMu  sync.Mutex
	cancel context.CancelFunc
	sub    event.Subscription
	done   chan struct{}
}

// Option configures a Connector.
type Option func(*Connector)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Connector) { c.logger = l }
}

// New creates a disconnected Connector over svc.
func New(svc *wallet.Service, opts ...Option) *Connector {
	c := &Connector{
		svc:    svc,
		logger: slog.Default(),
		state:  State{Status: StatusDisconnected},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start subscribes to the service's events. If the service already has a
// session, the Connector adopts it and loads the balance. ctx bounds the
// balance refreshes triggered by events.
func (c *Connector) Start(ctx context.Context) {
	c.runMu.Lock()
	if c.sub != nil {
		c.runMu.Unlock()
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	events := make(chan wallet.Event, eventBuffer)
	c.sub = c.svc.SubscribeEvents(events)
	c.done = make(chan struct{})
	go c.loop(ctx, c.sub, events, c.done)
	c.runMu.Unlock()

	sess := c.svc.Session()
	if !sess.Connected() {
		return
	}
	c.update(func(s *State) bool {
		s.Account = sess.Account
		s.ChainID = sess.ChainID
		s.NetworkName = sess.NetworkName
		s.Status = StatusConnected
		return true
	})
	c.refreshBalance(ctx)
}

// Close stops event handling. The service and its session are left intact.
func (c *Connector) Close() {
	c.runMu.Lock()
	sub, cancel, done := c.sub, c.cancel, c.done
	c.sub = nil
	c.runMu.Unlock()

	if sub == nil {
		return
	}
	cancel()
	sub.Unsubscribe()
	<-done
}

// State returns a copy of the current state.
func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Subscribe delivers every state change to sink. Send blocks until each
// subscriber has received the state, so sinks should be buffered and drained.
func (c *Connector) Subscribe(sink chan<- State) event.Subscription {
	return c.feed.Subscribe(sink)
}

// Connect initializes the wallet session. Calls made while an attempt is in
// flight join it and receive its result.
func (c *Connector) Connect(ctx context.Context) (State, error) {
	v, err, shared := c.group.Do("connect", func() (any, error) {
		return c.connect(ctx)
	})
	if shared {
		c.logger.Debug("joined in-flight wallet connect")
	}
	return v.(State), err
}

func (c *Connector) connect(ctx context.Context) (State, error) {
	c.update(func(s *State) bool {
		s.Status = StatusConnecting
		s.IsConnecting = true
		s.clearError()
		return true
	})

	sess, err := c.svc.Initialize(ctx)
	if err != nil {
		c.logger.Warn("wallet connect failed", "error", err)
		// A failed reconnect leaves an existing session in place.
		current := c.svc.Session()
		return c.update(func(s *State) bool {
			if current.Connected() {
				s.Account = current.Account
				s.ChainID = current.ChainID
				s.NetworkName = current.NetworkName
			} else {
				*s = State{}
			}
			s.IsConnecting = false
			s.Status = StatusError
			s.setError(err)
			return true
		}), err
	}

	balance, balanceErr := c.svc.Balance(ctx)

	return c.update(func(s *State) bool {
		s.Account = sess.Account
		s.ChainID = sess.ChainID
		s.NetworkName = sess.NetworkName
		s.IsConnecting = false
		s.Status = StatusConnected
		s.Balance = balance
		s.clearError()
		if balanceErr != nil {
			s.setError(balanceErr)
		}
		return true
	}), nil
}

// Disconnect ends the service session and clears the state before
// returning. It never fails.
func (c *Connector) Disconnect() {
	c.svc.Disconnect()
	c.clear()
}

// SwitchNetwork asks the wallet to change chains. A failure moves the
// Connector to StatusError but keeps the account and chain.
func (c *Connector) SwitchNetwork(ctx context.Context, chainID string) error {
	if err := c.svc.SwitchNetwork(ctx, chainID); err != nil {
		c.update(func(s *State) bool {
			s.Status = StatusError
			s.setError(err)
			return true
		})
		return err
	}

	sess := c.svc.Session()
	c.update(func(s *State) bool {
		s.ChainID = sess.ChainID
		s.NetworkName = sess.NetworkName
		s.clearError()
		if s.Account != nil {
			s.Status = StatusConnected
		} else {
			s.Status = StatusDisconnected
		}
		return true
	})
	c.refreshBalance(ctx)
	return nil
}

// SignMessage signs message with the connected account.
func (c *Connector) SignMessage(ctx context.Context, message []byte) (string, error) {
	if !c.State().IsConnected() {
		return "", apperrors.ErrNoActiveAccount
	}

	sig, err := c.svc.SignMessage(ctx, message)
	if err != nil {
		c.recordFailure(err)
		return "", err
	}
	return sig, nil
}

// SendTransaction transfers value (native unit) with optional hex data.
func (c *Connector) SendTransaction(ctx context.Context, to, value, data string) (common.Hash, error) {
	if !c.State().IsConnected() {
		return common.Hash{}, apperrors.ErrNoActiveAccount
	}

	hash, err := c.svc.SendTransaction(ctx, to, value, data)
	if err != nil {
		c.recordFailure(err)
		return common.Hash{}, err
	}
	return hash, nil
}

func (c *Connector) recordFailure(err error) {
	c.update(func(s *State) bool {
		s.setError(err)
		return true
	})
}

func (c *Connector) loop(ctx context.Context, sub event.Subscription, events <-chan wallet.Event, done chan struct{}) {
	defer close(done)

	for {
		select {
		case ev := <-events:
			c.handle(ctx, ev)
		case <-sub.Err():
			return
		}
	}
}

// handle treats ev as a trigger and re-derives the state from the service,
// so events queued behind a Disconnect or a newer change cannot resurrect
// an outdated session.
func (c *Connector) handle(ctx context.Context, ev wallet.Event) {
	sess := c.svc.Session()

	switch ev.Name {
	case wallet.EventAccountChanged:
		if !sess.Connected() {
			c.clear()
			return
		}
		var changed bool
		updated := c.update(func(s *State) bool {
			changed = s.Account == nil || *s.Account != *sess.Account
			s.Account = sess.Account
			s.ChainID = sess.ChainID
			s.NetworkName = sess.NetworkName
			if !s.IsConnecting {
				s.Status = StatusConnected
			}
			return true
		})
		// Connect loads the balance itself; only a different account needs
		// a refresh here.
		if changed && !updated.IsConnecting {
			c.refreshBalance(ctx)
		}

	case wallet.EventChainChanged:
		updated := c.update(func(s *State) bool {
			if s.Account == nil || !sess.Connected() {
				return false
			}
			s.ChainID = sess.ChainID
			s.NetworkName = sess.NetworkName
			return true
		})
		if updated.IsConnected() {
			c.refreshBalance(ctx)
		}

	case wallet.EventDisconnected:
		if sess.Connected() {
			return
		}
		c.clear()

	default:
		c.logger.Debug("ignoring wallet event", "event", ev.Name)
	}
}

func (c *Connector) clear() {
	c.update(func(s *State) bool {
		*s = State{Status: StatusDisconnected}
		return true
	})
}

// refreshBalance reloads the balance for the current account and chain. The
// result is dropped if either changed while the query was in flight.
func (c *Connector) refreshBalance(ctx context.Context) {
	current := c.State()
	if current.Account == nil {
		return
	}

	balance, err := c.svc.Balance(ctx)
	if err != nil {
		c.logger.Warn("balance refresh failed", "account", *current.Account, "chain_id", current.ChainID, "error", err)
	}

	c.update(func(s *State) bool {
		if s.Account == nil || *s.Account != *current.Account || s.ChainID != current.ChainID {
			return false
		}
		if err != nil {
			s.setError(err)
			return true
		}
		s.Balance = balance
		if s.ErrorCode == apperrors.ErrCodeBalanceQueryFailed {
			s.clearError()
		}
		return true
	})
}

// update applies fn to the state and publishes the result when fn reports a
// change. It returns the resulting state.
func (c *Connector) update(fn func(*State) bool) State {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	changed := fn(&c.state)
	snapshot := c.state.clone()
	c.mu.Unlock()

	if changed {
		c.feed.Send(snapshot)
	}
	return snapshot
}
