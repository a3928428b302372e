package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

const defaultIdempotencyTTL = 5 * time.Minute

// RPCRouter dispatches JSON-RPC calls. A request carrying an idempotency key
// gets the stored reply when the same session repeats it.
type RPCRouter struct {
	mu      sync.RWMutex
	methods map[string]RequestHandler
	replies *replayCache
	now     func() time.Time
}

func NewRPCRouter() *RPCRouter {
	r := &RPCRouter{
		methods: make(map[string]RequestHandler),
		now:     time.Now,
	}
	r.replies = &replayCache{ttl: defaultIdempotencyTTL, entries: make(map[replayKey]replayEntry)}
	return r
}

// RegisterMethod adds or replaces the handler for name.
func (r *RPCRouter) RegisterMethod(name string, handler RequestHandler) error {
	if name == "" {
		return fmt.Errorf("method name cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[name] = handler
	return nil
}

// Methods returns the registered names in order.
func (r *RPCRouter) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseRequest decodes one frame. id and method are required; jsonrpc
// defaults to "2.0".
func (r *RPCRouter) ParseRequest(data []byte) (*RPCRequest, error) {
	var req RPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &RPCError{Code: ParseError, Message: "Parse error", Data: err.Error()}
	}

	switch {
	case req.ID == "":
		return nil, &RPCError{Code: InvalidRequest, Message: "Invalid request: missing id field"}
	case req.Method == "":
		return nil, &RPCError{Code: InvalidRequest, Message: "Invalid request: missing method field"}
	}
	if req.JSONRPC == "" {
		req.JSONRPC = "2.0"
	}
	return &req, nil
}

// RouteRequest runs the handler for req. Handler errors go through the same
// classification as the HTTP API. Only successes are stored for replay, so a
// failed send can be retried under the same key.
func (r *RPCRouter) RouteRequest(ctx context.Context, req *RPCRequest) *RPCResponse {
	if req == nil {
		return &RPCResponse{JSONRPC: "2.0", Error: &RPCError{Code: InvalidRequest, Message: "invalid request"}}
	}

	var key replayKey
	if req.IdempotencyKey != "" {
		key = replayKey{session: sessionFromContext(ctx), method: req.Method, key: req.IdempotencyKey}
		if resp, ok := r.replies.get(key, r.now()); ok {
			resp.ID = req.ID
			return &resp
		}
	}

	r.mu.RLock()
	handler, ok := r.methods[req.Method]
	r.mu.RUnlock()
	if !ok {
		return &RPCResponse{ID: req.ID, JSONRPC: "2.0", Error: &RPCError{
			Code:    MethodNotFound,
			Message: "Method not found: " + req.Method,
			Data:    map[string]interface{}{"methods": r.Methods()},
		}}
	}

	result, err := handler(ctx, req.Params)
	if err != nil {
		return &RPCResponse{ID: req.ID, JSONRPC: "2.0", Error: toRPCError(err)}
	}

	resp := &RPCResponse{ID: req.ID, JSONRPC: "2.0", Result: result}
	if req.IdempotencyKey != "" {
		r.replies.put(key, *resp, r.now())
	}
	return resp
}

// replayKey scopes an idempotency key to the session that sent it; two
// browsers choosing the same key never see each other's replies.
type replayKey struct {
	session string
	method  string
	key     string
}

type replayEntry struct {
	resp    RPCResponse
	expires time.Time
}

type replayCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[replayKey]replayEntry
}

func (c *replayCache) get(k replayKey, now time.Time) (RPCResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[k]
	if !ok {
		return RPCResponse{}, false
	}
	if now.After(e.expires) {
		delete(c.entries, k)
		return RPCResponse{}, false
	}
	return e.resp, true
}

// put stores resp and drops whatever has expired.
func (c *replayCache) put(k replayKey, resp RPCResponse, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, key)
		}
	}
	c.entries[k] = replayEntry{resp: resp, expires: now.Add(c.ttl)}
}
