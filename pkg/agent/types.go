package agent

import "time"

// RunStatus is the lifecycle state of a remote run.
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusExpired        RunStatus = "expired"
	RunStatusIncomplete     RunStatus = "incomplete"
)

// Failed reports whether the status is a failure-class terminal state.
func (s RunStatus) Failed() bool {
	switch s {
	case RunStatusFailed, RunStatusCancelled, RunStatusExpired, RunStatusIncomplete:
		return true
	}
	return false
}

// Run is one execution of the agent against a thread.
type Run struct {
	ID        string
	Status    RunStatus
	LastError *RunError
	// IncompleteReason is set when Status is incomplete.
	IncompleteReason string
	ToolCalls        []ToolCall
}

// RunError is the failure reported by the remote service for a run.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToolCall is a function call the agent asks the client to perform.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolOutput answers one ToolCall.
type ToolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ThreadMessage is a message as listed from a remote thread.
type ThreadMessage struct {
	ID    string
	Role  Role
	RunID string
	Text  []string
}

// Message is one entry of a Session's local history.
type Message struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}
