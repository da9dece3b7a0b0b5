package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// Sentinel errors for classified upstream failures. Match with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrRateLimited         = errors.New("upstream rate limited")
	ErrMalformed           = errors.New("malformed upstream payload")
)

// Kind is the class of an upstream failure.
type Kind int

const (
	KindUnavailable Kind = iota
	KindNotFound
	KindInvalidInput
	KindRateLimited
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidInput:
		return "invalid_input"
	case KindRateLimited:
		return "rate_limited"
	case KindMalformed:
		return "malformed"
	default:
		return "unavailable"
	}
}

// JSON-RPC error codes returned by Solana nodes.
const (
	codeBlockNotAvailable              = -32004
	codeSlotSkipped                    = -32007
	codeLongTermStorageSlotSkipped     = -32009
	codeTransactionHistoryNotAvailable = -32011
	codeInvalidParams                  = -32602
)

// Error is a classified upstream failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error redacts credentials from any endpoint URL in the cause.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, redactURLs(e.Err.Error()))
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind. Rate limiting is also
// reported as the upstream being unavailable.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrInvalidInput:
		return e.Kind == KindInvalidInput
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	case ErrUpstreamUnavailable:
		return e.Kind == KindUnavailable || e.Kind == KindRateLimited
	case ErrMalformed:
		return e.Kind == KindMalformed
	}
	return false
}

// KindOf returns the kind of a classified error, or KindUnavailable for
// anything unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnavailable
}

// classify maps a raw RPC error onto the error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	return &Error{Kind: kindFor(err), Op: op, Err: err}
}

func kindFor(err error) Kind {
	if errors.Is(err, rpc.ErrNotFound) || errors.Is(err, rpc.ErrNotConfirmed) {
		return KindNotFound
	}

	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case codeBlockNotAvailable, codeSlotSkipped, codeLongTermStorageSlotSkipped, codeTransactionHistoryNotAvailable:
			return KindNotFound
		case codeInvalidParams:
			return KindInvalidInput
		case 429:
			return KindRateLimited
		}
		return KindUnavailable
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindUnavailable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindUnavailable
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return KindMalformed
	}

	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "Too Many Requests") {
		return KindRateLimited
	}

	return KindUnavailable
}
