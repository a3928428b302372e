package gateway

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/harun/zombinator/internal/observability"
	"github.com/harun/zombinator/pkg/agent"
	"github.com/harun/zombinator/pkg/credential"
	"github.com/harun/zombinator/pkg/maps"
	"github.com/harun/zombinator/pkg/session"
)

// ChatReply is the answer to one user message.
type ChatReply struct {
	Reply    string `json:"reply"`
	ThreadID string `json:"thread_id,omitempty"`
}

// History is a session's local conversation.
type History struct {
	SessionID string          `json:"session_id"`
	ThreadID  string          `json:"thread_id,omitempty"`
	Messages  []agent.Message `json:"messages"`
}

// registerBuiltinMethods registers all built-in RPC methods
func (s *Server) registerBuiltinMethods() {
	_ = s.RegisterMethod("chat.send", s.handleChatSend)
	_ = s.RegisterMethod("chat.history", s.handleChatHistory)
	_ = s.RegisterMethod("chat.reset", s.handleChatReset)
	_ = s.RegisterMethod("maps.route", s.handleMapsRoute)
	_ = s.RegisterMethod("maps.plan", s.handleMapsPlan)
}

func (s *Server) handleChatSend(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	message, err := stringParam(params, "message")
	if err != nil {
		return nil, err
	}
	return s.chat(ctx, sessionFromContext(ctx), originOf(ctx), message)
}

func (s *Server) handleChatHistory(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	return s.history(sessionFromContext(ctx))
}

func (s *Server) handleChatReset(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	return s.reset(ctx, sessionFromContext(ctx), originOf(ctx))
}

func (s *Server) handleMapsRoute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	origin, destination, err := routeParams(params)
	if err != nil {
		return nil, err
	}
	return s.route(ctx, origin, destination)
}

func (s *Server) handleMapsPlan(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	origin, destination, err := routeParams(params)
	if err != nil {
		return nil, err
	}
	return s.plan(ctx, origin, destination)
}

// chat sends text on the session. The user message is recorded before the
// agent is called and the reply only once it arrives, so a failed send leaves
// the history and thread as they were plus the unanswered question.
func (s *Server) chat(ctx context.Context, sessionID, origin, text string) (*ChatReply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		observability.RecordRejectedSend("empty")
		return nil, agent.ErrEmptyMessage
	}

	sess, release, err := s.store.Begin(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.store.Allow(sessionID); err != nil {
		return nil, err
	}

	question := agent.Message{Role: agent.RoleUser, Text: text, Time: s.now()}
	sess.Append(question.Role, question.Text, question.Time)
	s.broadcaster.Publish(sessionID, origin, EventMessageAppended, question)

	reply, err := s.agent.Send(ctx, sess, text)
	if err != nil {
		observability.RecordConversationAudit(ctx, "message_sent", sessionID, observability.AuditFailure, map[string]interface{}{
			"thread_id": sess.ThreadID(),
			"error":     classify(err).Message,
		})
		return nil, err
	}

	answer := agent.Message{Role: agent.RoleAssistant, Text: reply, Time: s.now()}
	sess.Append(answer.Role, answer.Text, answer.Time)
	s.broadcaster.Publish(sessionID, origin, EventMessageAppended, answer)

	observability.RecordConversationAudit(ctx, "message_sent", sessionID, observability.AuditSuccess, map[string]interface{}{
		"thread_id": sess.ThreadID(),
	})
	return &ChatReply{Reply: reply, ThreadID: sess.ThreadID()}, nil
}

func (s *Server) history(sessionID string) (*History, error) {
	sess, ok := s.store.Get(sessionID)
	if !ok {
		return nil, session.ErrNotFound
	}
	return &History{
		SessionID: sessionID,
		ThreadID:  sess.ThreadID(),
		Messages:  sess.History(),
	}, nil
}

// reset starts a new conversation on the same session id. The next send
// creates a fresh thread.
func (s *Server) reset(ctx context.Context, sessionID, origin string) (*History, error) {
	sess, err := s.store.Reset(sessionID)
	if err != nil {
		return nil, err
	}

	s.broadcaster.Publish(sessionID, origin, EventConversationNew, nil)
	observability.RecordConversationAudit(ctx, "conversation_reset", sessionID, observability.AuditSuccess, nil)

	return &History{SessionID: sessionID, Messages: sess.History()}, nil
}

func (s *Server) route(ctx context.Context, origin, destination string) (json.RawMessage, error) {
	if s.maps == nil {
		return nil, errMapsNotConfigured
	}
	return s.maps.Directions(ctx, origin, destination)
}

func (s *Server) plan(ctx context.Context, origin, destination string) (*maps.RoutePlan, error) {
	if s.maps == nil {
		return nil, errMapsNotConfigured
	}
	return s.maps.PlanRoute(ctx, origin, destination)
}

var errMapsNotConfigured = &credential.ConfigurationError{
	Op:     "maps",
	Reason: "maps subscription key is not set",
}

func originOf(ctx context.Context) string {
	if client := clientFromContext(ctx); client != nil {
		return client.ID
	}
	return ""
}

func stringParam(params map[string]interface{}, name string) (string, error) {
	value, ok := params[name].(string)
	if !ok {
		return "", &paramError{name: name, reason: "parameter is required and must be a string"}
	}
	return value, nil
}

func routeParams(params map[string]interface{}) (string, string, error) {
	origin, err := stringParam(params, "origin")
	if err != nil {
		return "", "", err
	}
	destination, err := stringParam(params, "destination")
	if err != nil {
		return "", "", err
	}
	return origin, destination, nil
}
