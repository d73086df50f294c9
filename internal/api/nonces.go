package api

import (
	"sync"
	"time"

	"github.com/better-wallet/marketplace/internal/authsig"
)

// nonceRetention outlives every challenge that could still validate,
// including the clock skew Challenge.Validate tolerates.
const nonceRetention = authsig.ChallengeTTL + 2*time.Minute

// nonceStore remembers consumed login challenge nonces so a signed
// challenge can be exchanged for a token only once per process.
type nonceStore struct {
	mu   sync.Mutex
	used map[string]time.Time
}

func newNonceStore() *nonceStore {
	return &nonceStore{used: make(map[string]time.Time)}
}

// consume marks nonce used and reports whether it was fresh.
func (s *nonceStore) consume(nonce string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for n, at := range s.used {
		if now.Sub(at) > nonceRetention {
			delete(s.used, n)
		}
	}

	if _, seen := s.used[nonce]; seen {
		return false
	}
	s.used[nonce] = now
	return true
}
