package gateway

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/harun/zombinator/internal/tracing"
)

type chatRequest struct {
	Message string `json:"message"`
}

type routeRequest struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

type errorBody struct {
	Error        string `json:"error"`
	Code         int    `json:"code"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	id, sess, err := s.sessionFor(w, r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderIndex(w, pageData{SessionID: id, Messages: sess.History()}); err != nil {
		s.logger.Error().Err(err).Msg("Failed to render chat page")
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	id, _, err := s.sessionFor(w, r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.renderError(w, r, err)
		return
	}

	ctx := requestContext(r, id)
	reply, err := s.chat(ctx, id, "", req.Message)
	if err != nil {
		s.renderError(w, r.WithContext(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, _, err := s.sessionFor(w, r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	history, err := s.history(id)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	id, _, err := s.sessionFor(w, r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	ctx := requestContext(r, id)
	history, err := s.reset(ctx, id, "")
	if err != nil {
		s.renderError(w, r.WithContext(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.renderError(w, r, err)
		return
	}

	ctx := requestContext(r, "")
	body, err := s.route(ctx, req.Origin, req.Destination)
	if err != nil {
		s.renderError(w, r.WithContext(ctx), err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleRoutePlan(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.renderError(w, r, err)
		return
	}

	ctx := requestContext(r, "")
	plan, err := s.plan(ctx, req.Origin, req.Destination)
	if err != nil {
		s.renderError(w, r.WithContext(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// renderError writes err as a user-facing JSON error. Defects are logged at
// error level with the full cause; everything else at warn.
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	f := classify(err)

	logger := tracing.LoggerFromContext(r.Context(), s.logger)
	event := logger.Warn()
	if f.Defect {
		event = logger.Error()
	}
	event.Err(err).
		Str("path", r.URL.Path).
		Int("status", f.Status).
		Msg("Request failed")

	body := errorBody{Error: f.Message, Code: f.Code}
	if f.RetryAfter > 0 {
		w.Header().Set("Retry-After", retryAfterHeader(f.RetryAfter))
		body.RetryAfterMs = f.RetryAfter.Milliseconds()
	}
	writeJSON(w, f.Status, body)
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		return &paramError{name: "request body", reason: "must be a JSON object"}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}
