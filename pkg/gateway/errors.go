package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/harun/zombinator/pkg/agent"
	"github.com/harun/zombinator/pkg/credential"
	"github.com/harun/zombinator/pkg/maps"
	"github.com/harun/zombinator/pkg/session"
)

// User-facing messages.
const (
	msgNotConfigured  = "service is not configured"
	msgReauthenticate = "please re-authenticate"
	msgAgentTimeout   = "agent is taking too long"
	msgBadResponse    = "the agent returned an unexpected response, please try again"
	msgUnavailable    = "service temporarily unavailable"
	msgEmptyMessage   = "message must not be empty"
	msgCancelled      = "request cancelled"
	msgInternal       = "internal error"
)

// paramError is an invalid or missing request parameter.
type paramError struct {
	name   string
	reason string
}

func (e *paramError) Error() string {
	return e.name + " " + e.reason
}

// failure is an error rendered for a client.
type failure struct {
	Status     int
	Code       int
	Message    string
	RetryAfter time.Duration
	// Defect marks failures that point at a bug or contract violation and are
	// logged at error level.
	Defect bool
}

// classify maps an error onto the status, RPC code and message shown to the
// user. Messages never include credentials or raw remote payloads, except for
// maps failures where the provider body is the useful part.
func classify(err error) failure {
	var (
		rpcErr     *RPCError
		pErr       *paramError
		cfgErr     *credential.ConfigurationError
		authErr    *credential.AuthenticationError
		unavailErr *agent.AgentUnavailableError
		timeoutErr *agent.AgentTimeoutError
		runErr     *agent.AgentRunError
		respErr    *agent.AgentResponseError
		paced      *session.PacedError
		validErr   *maps.ValidationError
		statusErr  *maps.StatusError
	)

	switch {
	case errors.As(err, &rpcErr):
		return failure{Status: http.StatusBadRequest, Code: rpcErr.Code, Message: rpcErr.Message}
	case errors.As(err, &pErr):
		return failure{Status: http.StatusBadRequest, Code: InvalidParams, Message: pErr.Error()}
	case errors.Is(err, agent.ErrEmptyMessage):
		return failure{Status: http.StatusBadRequest, Code: InvalidParams, Message: msgEmptyMessage}
	case errors.As(err, &validErr):
		return failure{Status: http.StatusBadRequest, Code: InvalidParams, Message: validErr.Error()}
	case errors.Is(err, session.ErrNotFound):
		return failure{Status: http.StatusNotFound, Code: SessionNotFound, Message: err.Error()}
	case errors.As(err, &paced):
		return failure{Status: http.StatusTooManyRequests, Code: RateLimitExceeded, Message: paced.Error(), RetryAfter: paced.RetryAfter}
	case errors.Is(err, session.ErrBusy):
		return failure{Status: http.StatusTooManyRequests, Code: TooManyConcurrent, Message: err.Error()}
	case errors.As(err, &cfgErr):
		return failure{Status: http.StatusInternalServerError, Code: NotConfigured, Message: msgNotConfigured, Defect: true}
	case errors.As(err, &authErr):
		return failure{Status: http.StatusUnauthorized, Code: Unauthenticated, Message: msgReauthenticate}
	case errors.As(err, &unavailErr):
		return failure{Status: http.StatusServiceUnavailable, Code: Unavailable, Message: msgUnavailable}
	case errors.As(err, &timeoutErr):
		return failure{Status: http.StatusGatewayTimeout, Code: AgentTimeout, Message: msgAgentTimeout}
	case errors.As(err, &runErr):
		return failure{Status: http.StatusBadGateway, Code: AgentFailed, Message: runErr.Reason}
	case errors.As(err, &respErr):
		return failure{Status: http.StatusBadGateway, Code: AgentFailed, Message: msgBadResponse, Defect: true}
	case errors.As(err, &statusErr):
		return failure{Status: http.StatusBadGateway, Code: UpstreamFailed, Message: statusErr.Error()}
	case errors.Is(err, maps.ErrNoResults):
		return failure{Status: http.StatusUnprocessableEntity, Code: UpstreamFailed, Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return failure{Status: http.StatusGatewayTimeout, Code: AgentTimeout, Message: msgAgentTimeout}
	case errors.Is(err, context.Canceled):
		return failure{Status: http.StatusServiceUnavailable, Code: Unavailable, Message: msgCancelled}
	default:
		return failure{Status: http.StatusInternalServerError, Code: InternalError, Message: msgInternal, Defect: true}
	}
}

func toRPCError(err error) *RPCError {
	f := classify(err)
	out := &RPCError{Code: f.Code, Message: f.Message}
	if f.RetryAfter > 0 {
		out.Data = map[string]interface{}{"retry_after_ms": f.RetryAfter.Milliseconds()}
	}
	return out
}

// retryAfterHeader rounds up to whole seconds as the header requires.
func retryAfterHeader(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// UserMessage is the text shown to a person for err, the same one the HTTP
// API puts in its error body.
func UserMessage(err error) string {
	return classify(err).Message
}
