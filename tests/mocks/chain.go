// Package mocks provides mock implementations for testing.
package mocks

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// MockChain is an in-memory provider.Chain.
type MockChain struct {
	mu         sync.Mutex
	chainID    *big.Int
	balances   map[common.Address]*big.Int
	nonces     map[common.Address]uint64
	sent       []*types.Transaction
	balanceErr error
	sendErr    error
}

// NewMockChain creates a mock chain with the given id.
func NewMockChain(chainID int64) *MockChain {
	return &MockChain{
		chainID:  big.NewInt(chainID),
		balances: make(map[common.Address]*big.Int),
		nonces:   make(map[common.Address]uint64),
	}
}

// SetBalance sets the base-unit balance of addr.
func (c *MockChain) SetBalance(addr common.Address, wei *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[addr] = new(big.Int).Set(wei)
}

// FailBalance makes BalanceAt return err (nil clears it).
func (c *MockChain) FailBalance(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balanceErr = err
}

// FailSend makes SendTransaction return err (nil clears it).
func (c *MockChain) FailSend(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// Sent returns the transactions broadcast so far.
func (c *MockChain) Sent() []*types.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*types.Transaction(nil), c.sent...)
}

// ChainID implements provider.Chain.
func (c *MockChain) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// BalanceAt implements provider.Chain.
func (c *MockChain) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.balanceErr != nil {
		return nil, c.balanceErr
	}
	if b, ok := c.balances[addr]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

// PrepareTransfer implements provider.Chain with fixed gas and fees.
func (c *MockChain) PrepareTransfer(ctx context.Context, from common.Address, to *common.Address, value *big.Int, data []byte) (*types.DynamicFeeTx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if bal, ok := c.balances[from]; !ok || bal.Cmp(value) < 0 {
		return nil, fmt.Errorf("insufficient funds for transfer")
	}

	nonce := c.nonces[from]
	return &types.DynamicFeeTx{
		ChainID:   new(big.Int).Set(c.chainID),
		Nonce:     nonce,
		GasTipCap: big.NewInt(1_000_000_000),
		GasFeeCap: big.NewInt(30_000_000_000),
		Gas:       21000,
		To:        to,
		Value:     value,
		Data:      data,
	}, nil
}

// SendTransaction implements provider.Chain. The sender's balance is debited
// by the transferred value.
func (c *MockChain) SendTransaction(ctx context.Context, signedTx *types.Transaction) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sendErr != nil {
		return common.Hash{}, c.sendErr
	}

	from, err := types.Sender(types.LatestSignerForChainID(c.chainID), signedTx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid sender: %w", err)
	}

	c.nonces[from]++
	if bal, ok := c.balances[from]; ok {
		bal.Sub(bal, signedTx.Value())
	}
	if to := signedTx.To(); to != nil {
		if _, ok := c.balances[*to]; !ok {
			c.balances[*to] = new(big.Int)
		}
		c.balances[*to].Add(c.balances[*to], signedTx.Value())
	}

	c.sent = append(c.sent, signedTx)
	return signedTx.Hash(), nil
}
