// Package provider defines the boundary between the wallet core and an
// injected wallet provider (a browser extension bridge, a mobile bridge or
// the in-process LocalProvider).
//
// The contract follows EIP-1193: JSON-RPC style requests plus a stream of
// provider events.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/event"
)

// RPC methods used by the wallet core.
const (
	MethodRequestAccounts = "eth_requestAccounts"
	MethodAccounts        = "eth_accounts"
	MethodChainID         = "eth_chainId"
	MethodGetBalance      = "eth_getBalance"
	MethodPersonalSign    = "personal_sign"
	MethodSendTransaction = "eth_sendTransaction"
	MethodSwitchChain     = "wallet_switchEthereumChain"
)

// Provider event names.
const (
	EventAccountsChanged = "accountsChanged"
	EventChainChanged    = "chainChanged"
	EventDisconnect      = "disconnect"
)

// EIP-1193 provider error codes.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeChainDisconnected = 4901
	CodeUnrecognizedChain = 4902
	CodeInvalidParams     = -32602
	CodeInternal          = -32603
)

// Provider is the capability set the wallet core needs from a wallet.
type Provider interface {
	// Request performs an RPC call. params are JSON-encodable values.
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)

	// Subscribe delivers provider events to sink in emission order.
	Subscribe(sink chan<- Event) event.Subscription
}

// Event is a provider-emitted notification.
type Event struct {
	Name     string
	Accounts []string // accountsChanged
	ChainID  string   // chainChanged
	Err      error    // disconnect
}

// TxRequest is the eth_sendTransaction parameter object.
type TxRequest struct {
	From  string `json:"from"`
	To    string `json:"to,omitempty"`
	Value string `json:"value,omitempty"` // hex quantity in base units
	Data  string `json:"data,omitempty"`  // hex bytes
}

// SwitchChainRequest is the wallet_switchEthereumChain parameter object.
type SwitchChainRequest struct {
	ChainID string `json:"chainId"`
}

// RPCError is an EIP-1193 provider error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// NewRPCError builds an RPCError.
func NewRPCError(code int, format string, args ...any) *RPCError {
	return &RPCError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrorCode extracts the provider error code from err, or 0.
func ErrorCode(err error) int {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code
	}
	return 0
}

// IsUserRejected reports whether err is a user rejection (code 4001).
func IsUserRejected(err error) bool {
	return ErrorCode(err) == CodeUserRejected
}
