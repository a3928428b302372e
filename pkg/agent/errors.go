package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/harun/zombinator/pkg/credential"
)

// ErrEmptyMessage is returned by Send for blank input. No remote call is made.
var ErrEmptyMessage = errors.New("message is empty")

// rateLimitCode is the run error code the service uses when the model
// deployment is throttled.
const rateLimitCode = "rate_limit_exceeded"

// AgentTimeoutError means the run did not reach a terminal state within MaxWait.
type AgentTimeoutError struct {
	Op       string
	ThreadID string
	RunID    string
	Waited   time.Duration
	Status   RunStatus
}

func (e *AgentTimeoutError) Error() string {
	return fmt.Sprintf("%s: run %s on thread %s still %s after %s", e.Op, e.RunID, e.ThreadID, e.Status, e.Waited)
}

// AgentRunError means the run ended in a failure-class state.
type AgentRunError struct {
	Op       string
	ThreadID string
	RunID    string
	Status   RunStatus
	Code     string
	Reason   string
}

func (e *AgentRunError) Error() string {
	msg := fmt.Sprintf("%s: run %s on thread %s %s", e.Op, e.RunID, e.ThreadID, e.Status)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Temporary reports whether the failure was caused by throttling, in which
// case a fresh run may succeed.
func (e *AgentRunError) Temporary() bool {
	return e.Code == rateLimitCode
}

// AgentResponseError means the service broke its contract, e.g. a completed
// run with no assistant reply.
type AgentResponseError struct {
	Op       string
	ThreadID string
	RunID    string
	Reason   string
}

func (e *AgentResponseError) Error() string {
	return fmt.Sprintf("%s: unexpected response on thread %s (run %s): %s", e.Op, e.ThreadID, e.RunID, e.Reason)
}

// AgentUnavailableError means transient failures persisted through every attempt.
type AgentUnavailableError struct {
	Op       string
	ThreadID string
	Attempts int
	Err      error
}

func (e *AgentUnavailableError) Error() string {
	return fmt.Sprintf("%s: agent unavailable after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *AgentUnavailableError) Unwrap() error {
	return e.Err
}

// RemoteError is a failed call to the remote service.
type RemoteError struct {
	Op         string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is worth another attempt.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Credential problems are never retried, whatever they wrap.
	var authErr *credential.AuthenticationError
	if errors.As(err, &authErr) {
		return false
	}

	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Transient
	}

	var runErr *AgentRunError
	if errors.As(err, &runErr) {
		return runErr.Temporary()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}

// transientStatus classifies an HTTP status code.
func transientStatus(code int) bool {
	return code == 429 || code >= 500
}
