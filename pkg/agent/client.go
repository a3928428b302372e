package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harun/zombinator/internal/config"
	"github.com/harun/zombinator/internal/observability"
	"github.com/harun/zombinator/internal/tracing"
	"github.com/harun/zombinator/pkg/credential"
	"github.com/harun/zombinator/pkg/toolexecutor"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

const (
	opSend        = "agent.Send"
	tracerName    = "zombinator.agent"
	cancelTimeout = 5 * time.Second
)

// ToolExecutor runs the local functions a run may ask for.
type ToolExecutor interface {
	HasTool(name string) bool
	Execute(ctx context.Context, name string, params map[string]interface{}) toolexecutor.ToolResult
}

// Options configures a Client. Zero durations and counts take the defaults
// from config.DefaultConfig.
type Options struct {
	AgentID      string
	PollInterval time.Duration
	MaxWait      time.Duration
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffMax   time.Duration

	// Tools answers requires_action runs. Nil means such runs fail.
	Tools ToolExecutor

	Logger *zerolog.Logger
	Clock  func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
}

// OptionsFromConfig maps the agent configuration section onto Options.
func OptionsFromConfig(cfg config.AgentConfig) Options {
	return Options{
		AgentID:      cfg.AgentID,
		PollInterval: cfg.PollInterval,
		MaxWait:      cfg.MaxWait,
		MaxAttempts:  cfg.MaxAttempts,
		BackoffBase:  cfg.BackoffBase,
		BackoffMax:   cfg.BackoffMax,
	}
}

// Client sends user messages to the agent and returns its replies. It keeps
// no per-session state; callers must not run two sends on one Session at once.
type Client struct {
	backend Backend
	opts    Options
	logger  zerolog.Logger
}

// NewClient creates a client over backend.
func NewClient(backend Backend, opts Options) (*Client, error) {
	observability.EnsureRegistered()

	if backend == nil {
		return nil, &credential.ConfigurationError{Op: "agent.NewClient", Reason: "backend is required"}
	}
	if strings.TrimSpace(opts.AgentID) == "" {
		return nil, &credential.ConfigurationError{Op: "agent.NewClient", Reason: "agent id is required"}
	}

	defaults := config.DefaultConfig().Agent
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.PollInterval
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = defaults.MaxWait
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaults.MaxAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaults.BackoffBase
	}
	if opts.BackoffMax < opts.BackoffBase {
		opts.BackoffMax = defaults.BackoffMax
		if opts.BackoffMax < opts.BackoffBase {
			opts.BackoffMax = opts.BackoffBase
		}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}

	logger := log.With().Str("component", "agent").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Client{backend: backend, opts: opts, logger: logger}, nil
}

// progress records which steps of a send have finished so a retry can pick
// up where the failed attempt stopped.
type progress struct {
	text     string
	threadID string
	posted   bool
	run      *Run
	started  time.Time
	done     bool
}

func (p *progress) runID() string {
	if p.run == nil {
		return ""
	}
	return p.run.ID
}

// Send posts text to the session's thread, runs the agent and returns its
// reply. The thread is created on first use. Transient failures are retried
// without posting the message again.
func (c *Client) Send(ctx context.Context, sess *Session, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		observability.RecordRejectedSend("empty")
		return "", ErrEmptyMessage
	}
	if sess == nil {
		return "", fmt.Errorf("%s: session is nil", opSend)
	}

	start := c.opts.Clock()
	ctx = tracing.NewRequestContext(ctx)
	ctx, span := tracing.StartSpan(ctx, tracerName, "agent.send",
		attribute.String("agent_id", c.opts.AgentID),
		attribute.String("thread_id", sess.ThreadID()),
	)

	reply, err := c.send(ctx, sess, text)

	tracing.EndSpan(span, err)
	observability.RecordAgentSend(outcome(err), c.opts.Clock().Sub(start))
	return reply, err
}

func (c *Client) send(ctx context.Context, sess *Session, text string) (string, error) {
	p := &progress{text: text, threadID: sess.ThreadID()}
	b := newBackOff(c.opts.BackoffBase, c.opts.BackoffMax)

	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := retryDelay(b, lastErr)
			observability.RecordAgentRetry()
			c.log(ctx, p).Warn().
				Err(lastErr).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Transient agent failure, retrying")

			if err := c.opts.Sleep(ctx, delay); err != nil {
				return "", err
			}
		}

		reply, err := c.attempt(ctx, sess, p)
		if err == nil {
			return reply, nil
		}
		if !IsTransient(err) {
			c.log(ctx, p).Error().Err(err).Int("attempt", attempt).Msg("Agent send failed")
			return "", err
		}
		lastErr = err
	}

	c.log(ctx, p).Error().Err(lastErr).Int("attempts", c.opts.MaxAttempts).Msg("Agent unavailable")
	return "", &AgentUnavailableError{
		Op:       opSend,
		ThreadID: p.threadID,
		Attempts: c.opts.MaxAttempts,
		Err:      lastErr,
	}
}

func (c *Client) attempt(ctx context.Context, sess *Session, p *progress) (string, error) {
	if p.threadID == "" {
		id, err := c.backend.CreateThread(ctx)
		if err != nil {
			return "", err
		}
		p.threadID = sess.bindThread(id)
		observability.RecordConversationAudit(ctx, "thread_created", tracing.GetSessionID(ctx), observability.AuditSuccess,
			map[string]interface{}{"thread_id": p.threadID})
		c.log(ctx, p).Info().Msg("Thread created")
	}

	if !p.posted {
		if err := c.backend.PostMessage(ctx, p.threadID, RoleUser, p.text); err != nil {
			return "", err
		}
		p.posted = true
	}

	if p.run == nil {
		run, err := c.backend.CreateRun(ctx, p.threadID, c.opts.AgentID)
		if err != nil {
			return "", err
		}
		p.run = run
		p.started = c.opts.Clock()
		c.log(ctx, p).Debug().Msg("Run created")
	}

	if !p.done {
		if err := c.await(ctx, p); err != nil {
			var runErr *AgentRunError
			if errors.As(err, &runErr) && runErr.Temporary() {
				// A throttled run is finished; the next attempt needs a new one.
				p.run = nil
			}
			return "", err
		}
		p.done = true
	}

	return c.reply(ctx, p)
}

// await polls the current run until it completes, fails or MaxWait passes.
func (c *Client) await(ctx context.Context, p *progress) error {
	for {
		run, err := c.backend.GetRun(ctx, p.threadID, p.runID())
		if err != nil {
			if ctx.Err() != nil {
				c.cancelRun(ctx, p)
			}
			return err
		}
		observability.RecordAgentPoll()
		if run.ID == "" {
			run.ID = p.runID()
		}
		p.run = run

		switch {
		case run.Status == RunStatusCompleted:
			return nil
		case run.Status.Failed():
			return c.runError(p, run)
		case run.Status == RunStatusRequiresAction:
			if err := c.runTools(ctx, p, run); err != nil {
				return err
			}
		}

		waited := c.opts.Clock().Sub(p.started)
		if waited >= c.opts.MaxWait {
			c.cancelRun(ctx, p)
			return &AgentTimeoutError{
				Op:       opSend,
				ThreadID: p.threadID,
				RunID:    p.runID(),
				Waited:   waited,
				Status:   run.Status,
			}
		}

		if err := c.opts.Sleep(ctx, c.opts.PollInterval); err != nil {
			c.cancelRun(ctx, p)
			return err
		}
	}
}

func (c *Client) runError(p *progress, run *Run) error {
	e := &AgentRunError{
		Op:       opSend,
		ThreadID: p.threadID,
		RunID:    run.ID,
		Status:   run.Status,
		Reason:   run.IncompleteReason,
	}
	if run.LastError != nil {
		e.Code = run.LastError.Code
		e.Reason = run.LastError.Message
		if e.Reason == "" {
			e.Reason = run.LastError.Code
		}
	}
	if e.Reason == "" {
		e.Reason = string(run.Status)
	}
	return e
}

// runTools answers a requires_action run with the registered tools. A run
// asking for anything unregistered is cancelled.
func (c *Client) runTools(ctx context.Context, p *progress, run *Run) error {
	supported := c.opts.Tools != nil && len(run.ToolCalls) > 0
	for _, call := range run.ToolCalls {
		if !supported {
			break
		}
		supported = c.opts.Tools.HasTool(call.Name)
	}
	if !supported {
		c.cancelRun(ctx, p)
		return &AgentRunError{
			Op:       opSend,
			ThreadID: p.threadID,
			RunID:    run.ID,
			Status:   RunStatusRequiresAction,
			Reason:   string(RunStatusRequiresAction),
		}
	}

	outputs := make([]ToolOutput, 0, len(run.ToolCalls))
	for _, call := range run.ToolCalls {
		var result toolexecutor.ToolResult

		params := map[string]interface{}{}
		if strings.TrimSpace(call.Arguments) != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &params); err != nil {
				result = toolexecutor.ToolResult{Error: fmt.Sprintf("invalid arguments: %v", err)}
			}
		}
		if result.Error == "" {
			result = c.opts.Tools.Execute(ctx, call.Name, params)
		}

		c.log(ctx, p).Info().
			Str("tool", call.Name).
			Bool("success", result.Success).
			Msg("Tool call answered")
		outputs = append(outputs, ToolOutput{ToolCallID: call.ID, Output: result.Encode()})
	}

	next, err := c.backend.SubmitToolOutputs(ctx, p.threadID, run.ID, outputs)
	if err != nil {
		return err
	}
	if next != nil && next.ID != "" {
		p.run = next
	}
	return nil
}

// reply returns the newest assistant message, which must belong to the
// current run when the service reports run ids.
func (c *Client) reply(ctx context.Context, p *progress) (string, error) {
	msgs, err := c.backend.ListMessages(ctx, p.threadID)
	if err != nil {
		return "", err
	}

	for _, m := range msgs {
		if m.Role != RoleAssistant {
			continue
		}
		if m.RunID != "" && p.runID() != "" && m.RunID != p.runID() {
			break
		}

		text := CleanResponse(strings.Join(m.Text, "\n"))
		if text == "" {
			return "", c.responseError(ctx, p, "assistant message has no text")
		}
		return text, nil
	}

	return "", c.responseError(ctx, p, "no assistant message for completed run")
}

func (c *Client) responseError(ctx context.Context, p *progress, reason string) error {
	err := &AgentResponseError{Op: opSend, ThreadID: p.threadID, RunID: p.runID(), Reason: reason}
	c.log(ctx, p).Error().Err(err).Msg("Agent response violated the thread protocol")
	return err
}

func (c *Client) cancelRun(ctx context.Context, p *progress) {
	if p.runID() == "" {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()

	if err := c.backend.CancelRun(cctx, p.threadID, p.runID()); err != nil {
		c.log(ctx, p).Debug().Err(err).Msg("Cancel run failed")
	}
}

func (c *Client) log(ctx context.Context, p *progress) *zerolog.Logger {
	ctx = tracing.WithThreadID(ctx, p.threadID)
	ctx = tracing.WithRunID(ctx, p.runID())
	l := tracing.LoggerFromContext(ctx, c.logger)
	return &l
}

func outcome(err error) string {
	var (
		timeoutErr     *AgentTimeoutError
		runErr         *AgentRunError
		responseErr    *AgentResponseError
		unavailableErr *AgentUnavailableError
		authErr        *credential.AuthenticationError
	)
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &runErr):
		return "run_error"
	case errors.As(err, &responseErr):
		return "response_error"
	case errors.As(err, &unavailableErr):
		return "unavailable"
	case errors.As(err, &authErr):
		return "auth_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "error"
}
