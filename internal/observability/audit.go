package observability

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Audit outcomes.
const (
	AuditSuccess = "success"
	AuditFailure = "failure"
)

// AuditEvent is one credential or conversation lifecycle record. Actor is the
// credential strategy for auth events and the session id for conversation
// events. Message text never goes into an audit event.
type AuditEvent struct {
	Category string
	Actor    string
	Action   string
	Outcome  string
	Fields   map[string]interface{}
}

var audit = struct {
	mu     sync.Mutex
	logger *zerolog.Logger
	file   *os.File
}{}

// OpenAuditLog sends audit events to a JSON lines file instead of the process
// logger. A previously opened file is closed.
func OpenAuditLog(path string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}

	l := zerolog.New(f).With().Timestamp().Logger()

	audit.mu.Lock()
	defer audit.mu.Unlock()
	if audit.file != nil {
		_ = audit.file.Close()
	}
	audit.file = f
	audit.logger = &l
	return nil
}

// CloseAuditLog closes the audit file, if any; later events go to the process
// logger again.
func CloseAuditLog() error {
	audit.mu.Lock()
	defer audit.mu.Unlock()

	audit.logger = nil
	if audit.file == nil {
		return nil
	}
	err := audit.file.Close()
	audit.file = nil
	return err
}

// Audit writes ev and, when ctx carries a recording span, adds it as a span
// event.
func Audit(ctx context.Context, ev AuditEvent) {
	traceID := ""
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		traceID = span.SpanContext().TraceID().String()
		span.AddEvent("audit."+ev.Action, trace.WithAttributes(
			attribute.String("audit.category", ev.Category),
			attribute.String("audit.outcome", ev.Outcome),
		))
	}

	audit.mu.Lock()
	defer audit.mu.Unlock()

	var e *zerolog.Event
	if audit.logger != nil {
		e = audit.logger.Log()
	} else {
		e = log.Info().Str("component", "audit")
	}

	e = e.Str("category", ev.Category).
		Str("action", ev.Action).
		Str("outcome", ev.Outcome)
	if ev.Actor != "" {
		e = e.Str("actor", ev.Actor)
	}
	if traceID != "" {
		e = e.Str("trace_id", traceID)
	}
	if len(ev.Fields) > 0 {
		e = e.Fields(ev.Fields)
	}
	e.Msg("audit")
}

func RecordAuthAudit(ctx context.Context, action, strategy, outcome string, fields map[string]interface{}) {
	Audit(ctx, AuditEvent{Category: "auth", Actor: strategy, Action: action, Outcome: outcome, Fields: fields})
}

func RecordConversationAudit(ctx context.Context, action, sessionID, outcome string, fields map[string]interface{}) {
	Audit(ctx, AuditEvent{Category: "conversation", Actor: sessionID, Action: action, Outcome: outcome, Fields: fields})
}
