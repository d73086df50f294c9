package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ethereum/go-ethereum/event"

	"github.com/better-wallet/marketplace/internal/provider"
)

// MockProvider is a scripted provider.Provider. Each method returns the
// value or error configured with On/Fail; unconfigured methods fail with
// CodeUnsupportedMethod.
type MockProvider struct {
	mu      sync.Mutex
	results map[string]any
	errs    map[string]error
	calls   []Call
	block   map[string]chan struct{}

	feed          event.Feed
	subscriptions int
}

// Call records one Request.
type Call struct {
	Method string
	Params []any
}

// NewMockProvider creates an empty MockProvider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		results: make(map[string]any),
		errs:    make(map[string]error),
		block:   make(map[string]chan struct{}),
	}
}

// On makes method succeed with result.
func (m *MockProvider) On(method string, result any) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[method] = result
	delete(m.errs, method)
	return m
}

// Fail makes method fail with err.
func (m *MockProvider) Fail(method string, err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[method] = err
	return m
}

// Block makes method wait until the returned release function is called.
func (m *MockProvider) Block(method string) (release func()) {
	ch := make(chan struct{})
	m.mu.Lock()
	m.block[method] = ch
	m.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Calls returns the requests made so far.
func (m *MockProvider) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallCount returns how many times method was requested.
func (m *MockProvider) CallCount(method string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Subscriptions returns how many times Subscribe was called.
func (m *MockProvider) Subscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscriptions
}

// Emit sends a provider event to subscribers and returns the number of
// subscribers that received it.
func (m *MockProvider) Emit(ev provider.Event) int {
	return m.feed.Send(ev)
}

// Request implements provider.Provider.
func (m *MockProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Method: method, Params: params})
	wait := m.block[method]
	m.mu.Unlock()

	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	result, hasResult := m.results[method]
	err := m.errs[method]
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !hasResult {
		return nil, provider.NewRPCError(provider.CodeUnsupportedMethod, "mock: no result for %s", method)
	}
	return json.Marshal(result)
}

// Subscribe implements provider.Provider.
func (m *MockProvider) Subscribe(sink chan<- provider.Event) event.Subscription {
	m.mu.Lock()
	m.subscriptions++
	m.mu.Unlock()
	return m.feed.Subscribe(sink)
}
