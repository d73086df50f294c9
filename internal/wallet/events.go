package wallet

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/event"

	"github.com/better-wallet/marketplace/internal/provider"
)

// Application event names.
const (
	EventAccountChanged = "walletAccountChanged"
	EventChainChanged   = "walletChainChanged"
	EventDisconnected   = "walletDisconnected"
)

// providerEventTimeout bounds provider requests made while handling an event.
const providerEventTimeout = 10 * time.Second

// Event is an application-level wallet notification. Session is the state
// after the change; it is empty for EventDisconnected.
type Event struct {
	Name    string
	Session Session
}

// subscribe starts the provider event loop once per Service. Later calls are
// no-ops while the loop is running.
func (s *Service) subscribe() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if s.sub != nil {
		return
	}

	events := make(chan provider.Event, providerEventBuffer)
	s.sub = s.provider.Subscribe(events)
	s.quit = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(s.sub, events, s.quit, s.done)
}

func (s *Service) loop(sub event.Subscription, events <-chan provider.Event, quit, done chan struct{}) {
	defer close(done)

	for {
		select {
		case ev := <-events:
			s.handleProviderEvent(ev)
		case err, ok := <-sub.Err():
			if ok && err != nil {
				s.logger.Warn("provider subscription failed", "error", err)
			}
			s.subMu.Lock()
			if s.quit == quit {
				s.sub = nil
			}
			s.subMu.Unlock()
			return
		case <-quit:
			return
		}
	}
}

// handleProviderEvent applies one provider event to the session and
// republishes it. Events are handled strictly in receipt order.
func (s *Service) handleProviderEvent(ev provider.Event) {
	switch ev.Name {
	case provider.EventAccountsChanged:
		if len(ev.Accounts) == 0 {
			s.logger.Info("wallet access revoked")
			s.clearAndPublish()
			return
		}

		// A cleared session has no chain; read it again so the account
		// never comes back without one.
		var chainID string
		if s.Session().ChainID == "" {
			ctx, cancel := context.WithTimeout(context.Background(), providerEventTimeout)
			err := s.call(ctx, &chainID, provider.MethodChainID)
			cancel()
			if err != nil {
				s.logger.Warn("ignoring account change without a chain", "error", err)
				return
			}
		}

		s.mu.Lock()
		account := ev.Accounts[0]
		s.session.Account = &account
		if chainID != "" && s.session.ChainID == "" {
			s.setChainLocked(chainID)
		}
		snapshot := s.session.clone()
		s.mu.Unlock()

		s.logger.Info("wallet account changed", "account", account)
		s.publish(Event{Name: EventAccountChanged, Session: snapshot})

	case provider.EventChainChanged:
		s.mu.Lock()
		s.setChainLocked(ev.ChainID)
		snapshot := s.session.clone()
		s.mu.Unlock()

		s.logger.Info("wallet chain changed", "chain_id", snapshot.ChainID, "network", snapshot.NetworkName)
		s.publish(Event{Name: EventChainChanged, Session: snapshot})

	case provider.EventDisconnect:
		s.logger.Info("wallet provider disconnected", "error", ev.Err)
		s.clearAndPublish()

	default:
		s.logger.Debug("ignoring provider event", "event", ev.Name)
	}
}

func (s *Service) clearAndPublish() {
	s.mu.Lock()
	s.session = Session{}
	s.mu.Unlock()

	s.publish(Event{Name: EventDisconnected})
}
