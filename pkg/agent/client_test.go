package agent

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/harun/zombinator/pkg/credential"
	"github.com/harun/zombinator/pkg/toolexecutor"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testAgentID = "asst_zombinator"

// MockBackend is a mock implementation of Backend
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) CreateThread(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockBackend) PostMessage(ctx context.Context, threadID string, role Role, text string) error {
	return m.Called(ctx, threadID, role, text).Error(0)
}

func (m *MockBackend) CreateRun(ctx context.Context, threadID, agentID string) (*Run, error) {
	args := m.Called(ctx, threadID, agentID)
	run, _ := args.Get(0).(*Run)
	return run, args.Error(1)
}

func (m *MockBackend) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	args := m.Called(ctx, threadID, runID)
	run, _ := args.Get(0).(*Run)
	return run, args.Error(1)
}

func (m *MockBackend) ListMessages(ctx context.Context, threadID string) ([]ThreadMessage, error) {
	args := m.Called(ctx, threadID)
	msgs, _ := args.Get(0).([]ThreadMessage)
	return msgs, args.Error(1)
}

func (m *MockBackend) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (*Run, error) {
	args := m.Called(ctx, threadID, runID, outputs)
	run, _ := args.Get(0).(*Run)
	return run, args.Error(1)
}

func (m *MockBackend) CancelRun(ctx context.Context, threadID, runID string) error {
	return m.Called(ctx, threadID, runID).Error(0)
}

// fakeClock advances only when the client sleeps.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	f.sleeps = append(f.sleeps, d)
	return nil
}

func (f *fakeClock) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.sleeps...)
}

func newTestClient(t *testing.T, backend Backend, clock *fakeClock, mutate ...func(*Options)) *Client {
	t.Helper()
	logger := zerolog.Nop()
	opts := Options{
		AgentID:      testAgentID,
		PollInterval: time.Second,
		MaxWait:      60 * time.Second,
		MaxAttempts:  3,
		BackoffBase:  2 * time.Second,
		BackoffMax:   10 * time.Second,
		Logger:       &logger,
		Clock:        clock.Now,
		Sleep:        clock.Sleep,
	}
	for _, m := range mutate {
		m(&opts)
	}
	c, err := NewClient(backend, opts)
	require.NoError(t, err)
	return c
}

func run(id string, status RunStatus) *Run {
	return &Run{ID: id, Status: status}
}

func assistant(runID string, text ...string) ThreadMessage {
	return ThreadMessage{ID: "msg_" + runID, Role: RoleAssistant, RunID: runID, Text: text}
}

// expectHappyPath wires a thread whose run completes on the second poll.
func expectHappyPath(b *MockBackend, threadID, runID, reply string) {
	b.On("PostMessage", mock.Anything, threadID, RoleUser, mock.Anything).Return(nil).Once()
	b.On("CreateRun", mock.Anything, threadID, testAgentID).Return(run(runID, RunStatusQueued), nil).Once()
	b.On("GetRun", mock.Anything, threadID, runID).Return(run(runID, RunStatusInProgress), nil).Once()
	b.On("GetRun", mock.Anything, threadID, runID).Return(run(runID, RunStatusCompleted), nil).Once()
	b.On("ListMessages", mock.Anything, threadID).Return([]ThreadMessage{
		assistant(runID, reply),
		{ID: "msg_user", Role: RoleUser, Text: []string{"question"}},
	}, nil).Once()
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil, Options{AgentID: testAgentID})
	var cfgErr *credential.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	_, err = NewClient(&MockBackend{}, Options{AgentID: "  "})
	assert.ErrorAs(t, err, &cfgErr)
}

func TestSend_ReturnsNewestAssistantMessage(t *testing.T) {
	backend := &MockBackend{}
	clock := newFakeClock()
	client := newTestClient(t, backend, clock)

	backend.On("CreateThread", mock.Anything).Return("thread_1", nil).Once()
	expectHappyPath(backend, "thread_1", "run_1", "Route: 800 miles, 14h 45m")

	sess := NewSession()
	reply, err := client.Send(context.Background(), sess, "Atlanta to NYC")

	require.NoError(t, err)
	assert.Equal(t, "Route: 800 miles, 14h 45m", reply)
	assert.Equal(t, "thread_1", sess.ThreadID())
	assert.Equal(t, []time.Duration{time.Second}, clock.Sleeps())
	backend.AssertCalled(t, "PostMessage", mock.Anything, "thread_1", RoleUser, "Atlanta to NYC")
	backend.AssertExpectations(t)
}

func TestSend_JoinsSegmentsAndStripsCitations(t *testing.T) {
	backend := &MockBackend{}
	client := newTestClient(t, backend, newFakeClock())

	backend.On("CreateThread", mock.Anything).Return("thread_1", nil)
	backend.On("PostMessage", mock.Anything, "thread_1", RoleUser, mock.Anything).Return(nil)
	backend.On("CreateRun", mock.Anything, "thread_1", testAgentID).Return(run("run_1", RunStatusQueued), nil)
	backend.On("GetRun", mock.Anything, "thread_1", "run_1").Return(run("run_1", RunStatusCompleted), nil)
	backend.On("ListMessages", mock.Anything, "thread_1").Return([]ThreadMessage{
		assistant("run_1", "Head north on I-85.【3:1†tips.md】", "Avoid Charlotte."),
	}, nil)

	reply, err := client.Send(context.Background(), NewSession(), "route?")

	require.NoError(t, err)
	assert.Equal(t, "Head north on I-85.\nAvoid Charlotte.", reply)
}

func TestSend_EmptyMessageMakesNoRemoteCalls(t *testing.T) {
	backend := &MockBackend{}
	client := newTestClient(t, backend, newFakeClock())
	sess := NewSession()

	for _, input := range []string{"", "   ", "\n\t"} {
		_, err := client.Send(context.Background(), sess, input)
		assert.ErrorIs(t, err, ErrEmptyMessage)
	}

	assert.Empty(t, backend.Calls)
	assert.Empty(t, sess.ThreadID())
}

func TestSend_ReusesThreadAcrossSends(t *testing.T) {
	backend := &MockBackend{}
	client := newTestClient(t, backend, newFakeClock())

	backend.On("CreateThread", mock.Anything).Return("thread_1", nil).Once()
	expectHappyPath(backend, "thread_1", "run_1", "first")
	expectHappyPath(backend, "thread_1", "run_2", "second")

	sess := NewSession()
	ctx := context.Background()

	reply, err := client.Send(ctx, sess, "one")
	require.NoError(t, err)
	assert.Equal(t, "first", reply)
	firstThread := sess.ThreadID()

	reply, err = client.Send(ctx, sess, "two")
	require.NoError(t, err)
	assert.Equal(t, "second", reply)

	assert.Equal(t, firstThread, sess.ThreadID())
	backend.AssertNumberOfCalls(t, "CreateThread", 1)
	backend.AssertExpectations(t)
}

func TestSend_TimeoutCancelsRun(t *testing.T) {
	backend := &MockBackend{}
	clock := newFakeClock()
	client := newTestClient(t, backend, clock)

	backend.On("CreateThread", mock.Anything).Return("thread_1", nil)
	backend.On("PostMessage", mock.Anything, "thread_1", RoleUser, mock.Anything).Return(nil)
	backend.On("CreateRun", mock.Anything, "thread_1", testAgentID).Return(run("run_1", RunStatusQueued), nil)
	backend.On("GetRun", mock.Anything, "thread_1", "run_1").Return(run("run_1", RunStatusInProgress), nil)
	backend.On("CancelRun", mock.Anything, "thread_1", "run_1").Return(nil).Once()

	sess := NewSession()
	_, err := client.Send(context.Background(), sess, "Atlanta to NYC")

	var timeoutErr *AgentTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "thread_1", timeoutErr.ThreadID)
	assert.Equal(t, "run_1", timeoutErr.RunID)
	assert.GreaterOrEqual(t, timeoutErr.Waited, 60*time.Second)
	assert.Equal(t, "thread_1", sess.ThreadID(), "thread survives a failed send")

	backend.AssertNumberOfCalls(t, "GetRun", 61)
	backend.AssertNumberOfCalls(t, "PostMessage", 1)
	backend.AssertExpectations(t)
}

func TestSend_FailedRunCarriesReason(t *testing.T) {
	backend := &MockBackend{}
	client := newTestClient(t, backend, newFakeClock())

	failed := run("run_1", RunStatusFailed)
	failed.LastError = &RunError{Code: "content_filter"}

	backend.On("CreateThread", mock.Anything).Return("thread_1", nil)
	backend.On("PostMessage", mock.Anything, "thread_1", RoleUser, mock.Anything).Return(nil)
	backend.On("CreateRun", mock.Anything, "thread_1", testAgentID).Return(run("run_1", RunStatusQueued), nil)
	backend.On("GetRun", mock.Anything, "thread_1", "run_1").Return(failed, nil)

	_, err := client.Send(context.Background(), NewSession(), "Atlanta to NYC")

	var runErr *AgentRunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "content_filter", runErr.Reason)
	assert.Equal(t, RunStatusFailed, runErr.Status)
	assert.Contains(t, err.Error(), "content_filter")
	backend.AssertNumberOfCalls(t, "CreateRun", 1)
}

func TestSend_FailureClassStatuses(t *testing.T) {
	tests := []struct {
		name   string
		run    *Run
		reason string
	}{
		{"cancelled", run("run_1", RunStatusCancelled), "cancelled"},
		{"expired", run("run_1", RunStatusExpired), "expired"},
		{"incomplete", &Run{ID: "run_1", Status: RunStatusIncomplete, IncompleteReason: "max_completion_tokens"}, "max_completion_tokens"},
		{"failed with message", &Run{ID: "run_1", Status: RunStatusFailed, LastError: &RunError{Code: "server_error", Message: "model crashed"}}, "model crashed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &MockBackend{}
			client := newTestClient(t, backend, newFakeClock())

			backend.On("CreateThread", mock.Anything).Return("thread_1", nil)
			backend.On("PostMessage", mock.Anything, "thread_1", RoleUser, mock.Anything).Return(nil)
			backend.On("CreateRun", mock.Anything, "thread_1", testAgentID).Return(run("run_1", RunStatusQueued), nil)
			backend.On("GetRun", mock.Anything, "thread_1", "run_1").Return(tt.run, nil)

			_, err := client.Send(context.Background(), NewSession(), "hi")

			var runErr *AgentRunError
			require.ErrorAs(t, err, &runErr)
			assert.Equal(t, tt.reason, runErr.Reason)
		})
	}
}

func TestSend_RetriesTransientFailures(t *testing.T) {
	backend := &MockBackend{}
	clock := newFakeClock()
	client := newTestClient(t, backend, clock)

	throttled := &RemoteError{Op: "post message", StatusCode: 429, Transient: true, Err: errors.New("too many requests")}

	backend.On("CreateThread", mock.Anything).Return("thread_1", nil).Once()
	backend.On("PostMessage", mock.Anything, "thread_1", RoleUser, mock.Anything).Return(throttled).Twice()
	expectHappyPath(backend, "thread_1", "run_1", "Route: 800 miles, 14h 45m")

	reply, err := client.Send(context.Background(), NewSession(), "Atlanta to NYC")

	require.NoError(t, err)
	assert.Equal(t, "Route: 800 miles, 14h 45m", reply)
	backend.AssertNumberOfCalls(t, "PostMessage", 3)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, time.Second}, clock.Sleeps())
}

func TestSend_RetryResumesWithoutReposting(t *testing.T) {
	backend := &MockBackend{}
	client := newTestClient(t, backend, newFakeClock())

	unavailable := &RemoteError{Op: "get run", StatusCode: 503, Transient: true, Err: errors.New("service unavailable")}

	backend.On("CreateThread", mock.Anything).Return("thread_1", nil).Once()
	backend.On("PostMessage", mock.Anything, "thread_1", RoleUser, mock.Anything).Return(nil).Once()
	backend.On("CreateRun", mock.Anything, "thread_1", testAgentID).Return(run("run_1", RunStatusQueued), nil).Once()
	backend.On("GetRun", mock.Anything, "thread_1", "run_1").Return(nil, unavailable).Once()
	backend.On("GetRun", mock.Anything, "thread_1", "run_1").Return(run("run_1", RunStatusCompleted), nil).Once()
	backend.On("ListMessages", mock.Anything, "thread_1").Return(nil, unavailable).Once()
	backend.On("ListMessages", mock.Anything, "thread_1").Return([]ThreadMessage{assistant("run_1", "ok")}, nil).Once()

	reply, err := client.Send(context.Background(), NewSession(), "hi")

	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	backend.AssertNumberOfCalls(t, "PostMessage", 1)
	backend.AssertNumberOfCalls(t, "CreateRun", 1)
	backend.AssertNumberOfCalls(t, "GetRun", 2)
	backend.AssertExpectations(t)
}

func TestSend_ExhaustedRetriesAreUnavailable(t *testing.T) {
	backend := &MockBackend{}
	clock := newFakeClock()
	client := newTestClient(t, backend, clock)

	down := &RemoteError{Op: "create thread", StatusCode: 502, Transient: true, Err: errors.New("bad gateway")}
	backend.On("CreateThread", mock.Anything).Return("", down)

	sess := NewSession()
	_, err := client.Send(context.Background(), sess, "hi")

	var unavailable *AgentUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 3, unavailable.Attempts)
	assert.ErrorIs(t, err, down)
	assert.Empty(t, sess.ThreadID(), "failed create leaves the session untouched")
	backend.AssertNumberOfCalls(t, "CreateThread", 3)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, clock.Sleeps())
}

func TestSend_BackoffIsCapped(t *testing.T) {
	backend := &MockBackend{}
	clock := newFakeClock()
	client := newTestClient(t, backend, clock, func(o *Options) { o.MaxAttempts = 5 })

	backend.On("CreateThread", mock.Anything).Return("", &RemoteError{StatusCode: 500, Transient: true, Err: errors.New("boom")})

	_, err := client.Send(context.Background(), NewSession(), "hi")

	require.Error(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second}, clock.Sleeps())
}

func TestSend_TokenFailureOnCreateThreadIsNotRetried(t *testing.T) {
	backend := &MockBackend{}
	clock := newFakeClock()
	client := newTestClient(t, backend, clock)

	tokenErr := &credential.AuthenticationError{
		Strategy: credential.StrategyManagedIdentity,
		Err:      &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
	}
	backend.On("CreateThread", mock.Anything).Return("", tokenErr)

	sess := NewSession()
	_, err := client.Send(context.Background(), sess, "hi")

	var authErr *credential.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	var unavailable *AgentUnavailableError
	assert.False(t, errors.As(err, &unavailable))
	backend.AssertNumberOfCalls(t, "CreateThread", 1)
	assert.Empty(t, clock.Sleeps())
	assert.Empty(t, sess.ThreadID())
}

func TestSend_PermanentErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"bad request", &RemoteError{Op: "post message", StatusCode: 400, Err: errors.New("invalid")}},
		{"authentication", &credential.AuthenticationError{Strategy: credential.StrategyClientSecret, Err: errors.New("expired secret")}},
		{"authentication over network failure", &credential.AuthenticationError{
			Strategy: credential.StrategyManagedIdentity,
			Err:      &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
		}},
		{"remote error wrapping authentication", &RemoteError{Op: "post message", StatusCode: 503, Transient: true,
			Err: &credential.AuthenticationError{Strategy: credential.StrategyClientSecret, Err: errors.New("token endpoint down")}}},
		{"cancelled", context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &MockBackend{}
			clock := newFakeClock()
			client := newTestClient(t, backend, clock)

			backend.On("CreateThread", mock.Anything).Return("thread_1", nil)
			backend.On("PostMessage", mock.Anything, "thread_1", RoleUser, mock.Anything).Return(tt.err)

			_, err := client.Send(context.Background(), NewSession(), "hi")

			assert.ErrorIs(t, err, tt.err)
			backend.AssertNumberOfCalls(t, "PostMessage", 1)
			assert.Empty(t, clock.Sleeps())
		})
	}
}

func TestSend_ThrottledRunStartsNewRun(t *testing.T) {
	backend := &MockBackend{}
	clock := newFakeClock()
	client := newTestClient(t, backend, clock)

	throttled := &Run{ID: "run_1", Status: RunStatusFailed, LastError: &RunError{
		Code:    "rate_limit_exceeded",
		Message: "Rate limit is exceeded. Try again in 7 seconds.",
	}}

	backend.On("CreateThread", mock.Anything).Return("thread_1", nil).Once()
	backend.On("PostMessage", mock.Anything, "thread_1", RoleUser, mock.Anything).Return(nil).Once()
	backend.On("CreateRun", mock.Anything, "thread_1", testAgentID).Return(run("run_1", RunStatusQueued), nil).Once()
	backend.On("GetRun", mock.Anything, "thread_1", "run_1").Return(throttled, nil).Once()
	backend.On("CreateRun", mock.Anything, "thread_1", testAgentID).Return(run("run_2", RunStatusQueued), nil).Once()
	backend.On("GetRun", mock.Anything, "thread_1", "run_2").Return(run("run_2", RunStatusCompleted), nil).Once()
	backend.On("ListMessages", mock.Anything, "thread_1").Return([]ThreadMessage{assistant("run_2", "made it")}, nil).Once()

	reply, err := client.Send(context.Background(), NewSession(), "hi")

	require.NoError(t, err)
	assert.Equal(t, "made it", reply)
	assert.Equal(t, []time.Duration{7 * time.Second}, clock.Sleeps())
	backend.AssertNumberOfCalls(t, "PostMessage", 1)
	backend.AssertExpectations(t)
}

func TestSend_RequiresActionRunsTools(t *testing.T) {
	tools := toolexecutor.New()
	require.NoError(t, tools.RegisterTool(toolexecutor.ToolDefinition{
		Name:        "plan_survival_route",
		Description: "Plan a route",
		Parameters: []toolexecutor.ToolParameter{
			{Name: "start_address", Type: "string", Description: "Start", Required: true},
			{Name: "end_address", Type: "string", Description: "End", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return params["start_address"].(string) + " -> " + params["end_address"].(string), nil
		},
	}))

	backend := &MockBackend{}
	client := newTestClient(t, backend, newFakeClock(), func(o *Options) { o.Tools = tools })

	action := &Run{ID: "run_1", Status: RunStatusRequiresAction, ToolCalls: []ToolCall{{
		ID:        "call_1",
		Name:      "plan_survival_route",
		Arguments: `{"start_address":"Atlanta","end_address":"NYC"}`,
	}}}

	backend.On("CreateThread", mock.Anything).Return("thread_1", nil)
	backend.On("PostMessage", mock.Anything, "thread_1", RoleUser, mock.Anything).Return(nil)
	backend.On("CreateRun", mock.Anything, "thread_1", testAgentID).Return(run("run_1", RunStatusQueued), nil)
	backend.On("GetRun", mock.Anything, "thread_1", "run_1").Return(action, nil).Once()
	backend.On("SubmitToolOutputs", mock.Anything, "thread_1", "run_1",
		[]ToolOutput{{ToolCallID: "call_1", Output: "Atlanta -> NYC"}}).
		Return(run("run_1", RunStatusQueued), nil).Once()
	backend.On("GetRun", mock.Anything, "thread_1", "run_1").Return(run("run_1", RunStatusCompleted), nil).Once()
	backend.On("ListMessages", mock.Anything, "thread_1").Return([]ThreadMessage{assistant("run_1", "Route ready")}, nil)

	reply, err := client.Send(context.Background(), NewSession(), "Atlanta to NYC")

	require.NoError(t, err)
	assert.Equal(t, "Route ready", reply)
	backend.AssertExpectations(t)
}

func TestSend_RequiresActionWithoutHandler(t *testing.T) {
	backend := &MockBackend{}
	client := newTestClient(t, backend, newFakeClock())

	action := &Run{ID: "run_1", Status: RunStatusRequiresAction, ToolCalls: []ToolCall{{ID: "call_1", Name: "unknown"}}}

	backend.On("CreateThread", mock.Anything).Return("thread_1", nil)
	backend.On("PostMessage", mock.Anything, "thread_1", RoleUser, mock.Anything).Return(nil)
	backend.On("CreateRun", mock.Anything, "thread_1", testAgentID).Return(run("run_1", RunStatusQueued), nil)
	backend.On("GetRun", mock.Anything, "thread_1", "run_1").Return(action, nil)
	backend.On("CancelRun", mock.Anything, "thread_1", "run_1").Return(nil).Once()

	_, err := client.Send(context.Background(), NewSession(), "hi")

	var runErr *AgentRunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "requires_action", runErr.Reason)
	backend.AssertExpectations(t)
}

func TestSend_MissingReplyIsResponseError(t *testing.T) {
	tests := []struct {
		name string
		msgs []ThreadMessage
	}{
		{"no messages", nil},
		{"only user messages", []ThreadMessage{{Role: RoleUser, Text: []string{"hi"}}}},
		{"reply from an older run", []ThreadMessage{assistant("run_0", "stale")}},
		{"empty assistant text", []ThreadMessage{assistant("run_1")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &MockBackend{}
			client := newTestClient(t, backend, newFakeClock())

			backend.On("CreateThread", mock.Anything).Return("thread_1", nil)
			backend.On("PostMessage", mock.Anything, "thread_1", RoleUser, mock.Anything).Return(nil)
			backend.On("CreateRun", mock.Anything, "thread_1", testAgentID).Return(run("run_1", RunStatusQueued), nil)
			backend.On("GetRun", mock.Anything, "thread_1", "run_1").Return(run("run_1", RunStatusCompleted), nil)
			backend.On("ListMessages", mock.Anything, "thread_1").Return(tt.msgs, nil)

			_, err := client.Send(context.Background(), NewSession(), "hi")

			var respErr *AgentResponseError
			require.ErrorAs(t, err, &respErr)
			assert.Equal(t, "thread_1", respErr.ThreadID)
		})
	}
}

func TestSend_ContextCancellationAbandonsPolling(t *testing.T) {
	backend := &MockBackend{}
	client := newTestClient(t, backend, newFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend.On("CreateThread", mock.Anything).Return("thread_1", nil)
	backend.On("PostMessage", mock.Anything, "thread_1", RoleUser, mock.Anything).Return(nil)
	backend.On("CreateRun", mock.Anything, "thread_1", testAgentID).Return(run("run_1", RunStatusQueued), nil)
	backend.On("GetRun", mock.Anything, "thread_1", "run_1").
		Run(func(mock.Arguments) { cancel() }).
		Return(run("run_1", RunStatusInProgress), nil)
	backend.On("CancelRun", mock.Anything, "thread_1", "run_1").Return(nil).Once()

	_, err := client.Send(ctx, NewSession(), "hi")

	assert.ErrorIs(t, err, context.Canceled)
	backend.AssertNumberOfCalls(t, "GetRun", 1)
	backend.AssertExpectations(t)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "success", outcome(nil))
	assert.Equal(t, "timeout", outcome(&AgentTimeoutError{}))
	assert.Equal(t, "run_error", outcome(&AgentRunError{}))
	assert.Equal(t, "response_error", outcome(&AgentResponseError{}))
	assert.Equal(t, "unavailable", outcome(&AgentUnavailableError{}))
	assert.Equal(t, "auth_error", outcome(&credential.AuthenticationError{}))
	assert.Equal(t, "cancelled", outcome(context.Canceled))
	assert.Equal(t, "error", outcome(errors.New("x")))
}
