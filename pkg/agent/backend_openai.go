package agent

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/harun/zombinator/pkg/credential"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// BackendConfig configures OpenAIBackend.
type BackendConfig struct {
	// Endpoint is the project endpoint of the agent service.
	Endpoint   string
	APIVersion string
	Tokens     credential.TokenProvider
	HTTPClient *http.Client
}

// OpenAIBackend implements Backend with the openai-go threads API, which the
// agent service speaks.
type OpenAIBackend struct {
	client openai.Client
	tokens credential.TokenProvider
}

// NewOpenAIBackend creates a backend. SDK retries are disabled; the Client
// owns retry policy.
func NewOpenAIBackend(cfg BackendConfig) (*OpenAIBackend, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, &credential.ConfigurationError{Op: "agent.NewOpenAIBackend", Reason: "endpoint is required"}
	}
	if cfg.Tokens == nil {
		return nil, &credential.ConfigurationError{Op: "agent.NewOpenAIBackend", Reason: "token provider is required"}
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}

	b := &OpenAIBackend{tokens: cfg.Tokens}

	opts := []option.RequestOption{
		option.WithBaseURL(endpoint),
		option.WithMaxRetries(0),
		option.WithMiddleware(b.authorize),
	}
	if cfg.APIVersion != "" {
		opts = append(opts, option.WithQuery("api-version", cfg.APIVersion))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	b.client = openai.NewClient(opts...)
	return b, nil
}

// authorize sets a fresh bearer token on every request.
func (b *OpenAIBackend) authorize(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
	token, err := b.tokens.Token(req.Context())
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return next(req)
}

func (b *OpenAIBackend) CreateThread(ctx context.Context) (string, error) {
	thread, err := b.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return "", b.classify("create thread", err)
	}
	return thread.ID, nil
}

func (b *OpenAIBackend) PostMessage(ctx context.Context, threadID string, role Role, text string) error {
	params := openai.BetaThreadMessageNewParams{
		Role: openai.BetaThreadMessageNewParamsRoleUser,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(text),
		},
	}
	if role == RoleAssistant {
		params.Role = openai.BetaThreadMessageNewParamsRoleAssistant
	}

	if _, err := b.client.Beta.Threads.Messages.New(ctx, threadID, params); err != nil {
		return b.classify("post message", err)
	}
	return nil
}

func (b *OpenAIBackend) CreateRun(ctx context.Context, threadID, agentID string) (*Run, error) {
	run, err := b.client.Beta.Threads.Runs.New(ctx, threadID, openai.BetaThreadRunNewParams{
		AssistantID: agentID,
	})
	if err != nil {
		return nil, b.classify("create run", err)
	}
	return convertRun(run), nil
}

func (b *OpenAIBackend) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	run, err := b.client.Beta.Threads.Runs.Get(ctx, threadID, runID)
	if err != nil {
		return nil, b.classify("get run", err)
	}
	return convertRun(run), nil
}

func (b *OpenAIBackend) ListMessages(ctx context.Context, threadID string) ([]ThreadMessage, error) {
	page, err := b.client.Beta.Threads.Messages.List(ctx, threadID, openai.BetaThreadMessageListParams{
		Order: openai.BetaThreadMessageListParamsOrderDesc,
	})
	if err != nil {
		return nil, b.classify("list messages", err)
	}

	out := make([]ThreadMessage, 0, len(page.Data))
	for _, m := range page.Data {
		msg := ThreadMessage{ID: m.ID, Role: Role(m.Role), RunID: m.RunID}
		for _, part := range m.Content {
			if part.Type == "text" && part.Text.Value != "" {
				msg.Text = append(msg.Text, part.Text.Value)
			}
		}
		out = append(out, msg)
	}
	return out, nil
}

func (b *OpenAIBackend) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (*Run, error) {
	params := openai.BetaThreadRunSubmitToolOutputsParams{
		ToolOutputs: make([]openai.BetaThreadRunSubmitToolOutputsParamsToolOutput, 0, len(outputs)),
	}
	for _, o := range outputs {
		params.ToolOutputs = append(params.ToolOutputs, openai.BetaThreadRunSubmitToolOutputsParamsToolOutput{
			ToolCallID: openai.String(o.ToolCallID),
			Output:     openai.String(o.Output),
		})
	}

	run, err := b.client.Beta.Threads.Runs.SubmitToolOutputs(ctx, threadID, runID, params)
	if err != nil {
		return nil, b.classify("submit tool outputs", err)
	}
	return convertRun(run), nil
}

func (b *OpenAIBackend) CancelRun(ctx context.Context, threadID, runID string) error {
	if _, err := b.client.Beta.Threads.Runs.Cancel(ctx, threadID, runID); err != nil {
		return b.classify("cancel run", err)
	}
	return nil
}

func convertRun(r *openai.Run) *Run {
	run := &Run{
		ID:               r.ID,
		Status:           RunStatus(r.Status),
		IncompleteReason: string(r.IncompleteDetails.Reason),
	}
	if r.LastError.Code != "" || r.LastError.Message != "" {
		run.LastError = &RunError{Code: string(r.LastError.Code), Message: r.LastError.Message}
	}
	for _, tc := range r.RequiredAction.SubmitToolOutputs.ToolCalls {
		run.ToolCalls = append(run.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return run
}

// classify turns SDK errors into the client's error taxonomy.
func (b *OpenAIBackend) classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var authErr *credential.AuthenticationError
	if errors.As(err, &authErr) {
		return err
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden {
			return &credential.AuthenticationError{Strategy: b.strategy(), Err: err}
		}
		return &RemoteError{
			Op:         op,
			StatusCode: apiErr.StatusCode,
			Transient:  transientStatus(apiErr.StatusCode),
			Err:        err,
		}
	}

	return &RemoteError{Op: op, Transient: IsTransient(err), Err: err}
}

func (b *OpenAIBackend) strategy() credential.Strategy {
	if s, ok := b.tokens.(interface{ Strategy() credential.Strategy }); ok {
		return s.Strategy()
	}
	return ""
}
