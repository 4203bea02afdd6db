package chain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// QueryError is a chain query that failed after its retries were exhausted.
type QueryError struct {
	Op     string
	Target string
	// From and To are set for log range queries.
	From     uint64
	To       uint64
	Attempts int
	Err      error
}

func (e *QueryError) Error() string {
	if e.From != 0 || e.To != 0 {
		return fmt.Sprintf("chain query %s on %s [%d, %d] failed after %d attempts: %v", e.Op, e.Target, e.From, e.To, e.Attempts, e.Err)
	}
	return fmt.Sprintf("chain query %s on %s failed after %d attempts: %v", e.Op, e.Target, e.Attempts, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// RejectedError is a chain query the node answered with a deterministic
// failure, such as a revert or an invalid request. It is not retried.
type RejectedError struct {
	Op     string
	Target string
	Err    error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("chain query %s on %s rejected: %v", e.Op, e.Target, e.Err)
}

func (e *RejectedError) Unwrap() error { return e.Err }

// JSON-RPC error codes that repeat on every attempt.
const (
	codeExecutionReverted = 3
	codeParseError        = -32700
	codeInvalidRequest    = -32600
	codeMethodNotFound    = -32601
	codeInvalidParams     = -32602
)

// IsCanceled reports whether err stems from context cancellation or deadline.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// IsTransient reports whether a failed query may succeed when repeated:
// network failures, timeouts, rate limits and server-side errors. Reverts,
// malformed requests and 4xx responses other than 429 are not transient.
// Cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || IsCanceled(err) {
		return false
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests ||
			httpErr.StatusCode == http.StatusRequestTimeout ||
			httpErr.StatusCode >= http.StatusInternalServerError
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeExecutionReverted, codeParseError, codeInvalidRequest, codeMethodNotFound, codeInvalidParams:
			return false
		}
	}

	// some nodes report reverts with a generic server error code
	if strings.Contains(strings.ToLower(err.Error()), "execution reverted") {
		return false
	}
	return true
}
