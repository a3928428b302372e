package toolexecutor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harun/zombinator/internal/observability"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

const (
	// DefaultTimeout bounds a single tool execution.
	DefaultTimeout = 30 * time.Second

	// MaxOutputBytes caps string output handed back to a run.
	MaxOutputBytes = 10 * 1024

	truncatedMarker = "\n[truncated]"
)

var parameterTypes = map[string]bool{
	"string": true, "number": true, "integer": true,
	"boolean": true, "object": true, "array": true,
}

// ToolParameter is one named argument of a tool.
type ToolParameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// ToolDefinition describes a tool and the function that implements it.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	Handler     ToolHandler     `json:"-"`
}

// ToolHandler implements a tool. params has already passed schema validation.
type ToolHandler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// ToolResult is the outcome of one call.
type ToolResult struct {
	Success   bool          `json:"success"`
	Output    interface{}   `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
	Truncated bool          `json:"truncated,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// Encode renders the result as the string submitted back to the run: string
// output as is, other output as JSON, failures as {"error": ...}.
func (r ToolResult) Encode() string {
	if !r.Success {
		b, _ := json.Marshal(map[string]string{"error": r.Error})
		return string(b)
	}
	if s, ok := r.Output.(string); ok {
		return s
	}
	b, err := json.Marshal(r.Output)
	if err != nil {
		return fmt.Sprintf("%v", r.Output)
	}
	return string(b)
}

type registered struct {
	def    ToolDefinition
	schema *gojsonschema.Schema
}

// ToolExecutor is safe for concurrent use.
type ToolExecutor struct {
	mu      sync.RWMutex
	tools   map[string]registered
	timeout time.Duration
	logger  zerolog.Logger
}

// Option configures a ToolExecutor.
type Option func(*ToolExecutor)

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(te *ToolExecutor) {
		if d > 0 {
			te.timeout = d
		}
	}
}

// WithLogger sets the logger; the global logger is used otherwise.
func WithLogger(l zerolog.Logger) Option {
	return func(te *ToolExecutor) { te.logger = l }
}

func New(opts ...Option) *ToolExecutor {
	te := &ToolExecutor{
		tools:   make(map[string]registered),
		timeout: DefaultTimeout,
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(te)
	}
	return te
}

// RegisterTool validates def, compiles its argument schema and adds it.
// Names must be unique.
func (te *ToolExecutor) RegisterTool(def ToolDefinition) error {
	if err := checkDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := compileSchema(def.Parameters)
	if err != nil {
		return fmt.Errorf("tool %s: failed to compile argument schema: %w", def.Name, err)
	}

	te.mu.Lock()
	defer te.mu.Unlock()

	if _, exists := te.tools[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}
	te.tools[def.Name] = registered{def: def, schema: schema}

	te.logger.Debug().Str("tool", def.Name).Int("parameters", len(def.Parameters)).Msg("Tool registered")
	return nil
}

func (te *ToolExecutor) HasTool(name string) bool {
	te.mu.RLock()
	defer te.mu.RUnlock()
	_, ok := te.tools[name]
	return ok
}

// ListTools returns the registered names in order.
func (te *ToolExecutor) ListTools() []string {
	te.mu.RLock()
	defer te.mu.RUnlock()

	names := make([]string, 0, len(te.tools))
	for name := range te.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs a tool. Failures come back in the result, never as a Go
// error, so the run always gets an answer for its call.
func (te *ToolExecutor) Execute(ctx context.Context, name string, params map[string]interface{}) ToolResult {
	start := time.Now()

	te.mu.RLock()
	tool, ok := te.tools[name]
	timeout := te.timeout
	te.mu.RUnlock()

	logger := te.logger.With().Str("tool", name).Logger()
	fail := func(msg string) ToolResult {
		d := time.Since(start)
		logger.Warn().Dur("duration", d).Str("reason", msg).Msg("Tool call failed")
		observability.RecordToolCall(name, false)
		return ToolResult{Error: msg, Duration: d}
	}

	if !ok {
		return fail("tool not found: " + name)
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	if err := checkArguments(tool.schema, params); err != nil {
		return fail("invalid arguments: " + err.Error())
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value interface{}
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := tool.def.Handler(callCtx, params)
		done <- outcome{value: v, err: err}
	}()

	var out outcome
	received := false
	select {
	case out = <-done:
		received = true
	case <-callCtx.Done():
	}
	// A handler that gave up because of the deadline reports the deadline.
	if callCtx.Err() != nil && (!received || out.err != nil) {
		if ctx.Err() != nil {
			return fail("tool call cancelled")
		}
		return fail(fmt.Sprintf("tool timed out after %s", timeout))
	}
	if out.err != nil {
		return fail(out.err.Error())
	}

	output, truncated := truncate(out.value)
	d := time.Since(start)
	logger.Debug().Dur("duration", d).Bool("truncated", truncated).Msg("Tool call completed")
	observability.RecordToolCall(name, true)

	return ToolResult{Success: true, Output: output, Truncated: truncated, Duration: d}
}

func checkDefinition(def ToolDefinition) error {
	switch {
	case strings.TrimSpace(def.Name) == "":
		return fmt.Errorf("tool name cannot be empty")
	case def.Description == "":
		return fmt.Errorf("tool %s: description cannot be empty", def.Name)
	case def.Handler == nil:
		return fmt.Errorf("tool %s: handler cannot be nil", def.Name)
	}

	seen := make(map[string]bool, len(def.Parameters))
	for _, p := range def.Parameters {
		switch {
		case p.Name == "":
			return fmt.Errorf("tool %s: parameter name cannot be empty", def.Name)
		case seen[p.Name]:
			return fmt.Errorf("tool %s: duplicate parameter %s", def.Name, p.Name)
		case p.Description == "":
			return fmt.Errorf("tool %s: parameter %s needs a description", def.Name, p.Name)
		case !parameterTypes[p.Type]:
			return fmt.Errorf("tool %s: parameter %s has invalid type %q", def.Name, p.Name, p.Type)
		}
		seen[p.Name] = true
	}
	return nil
}

// compileSchema builds a closed object schema: unknown arguments are
// rejected.
func compileSchema(params []ToolParameter) (*gojsonschema.Schema, error) {
	properties := make(map[string]interface{}, len(params))
	var required []string
	for _, p := range params {
		prop := map[string]interface{}{"type": p.Type, "description": p.Description}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	doc := map[string]interface{}{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
}

func checkArguments(schema *gojsonschema.Schema, params map[string]interface{}) error {
	res, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}
	if res.Valid() {
		return nil
	}

	problems := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		problems = append(problems, e.String())
	}
	return fmt.Errorf("%s", strings.Join(problems, "; "))
}

func truncate(v interface{}) (interface{}, bool) {
	s, ok := v.(string)
	if !ok || len(s) <= MaxOutputBytes {
		return v, false
	}
	return s[:MaxOutputBytes] + truncatedMarker, true
}
