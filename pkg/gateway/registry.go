package gateway

import (
	"sort"
	"sync"
	"time"
)

// A connection with no request for this long is reported idle.
const idleAfter = 5 * time.Minute

// ClientRegistry tracks open WebSocket connections, indexed by the browser
// session they belong to so events reach every tab of one conversation.
type ClientRegistry struct {
	mu        sync.RWMutex
	byID      map[string]*Client
	bySession map[string]map[string]*Client
	now       func() time.Time
}

func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{
		byID:      make(map[string]*Client),
		bySession: make(map[string]map[string]*Client),
		now:       time.Now,
	}
}

func (r *ClientRegistry) Add(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byID[client.ID]; ok {
		r.unlink(old)
	}
	r.byID[client.ID] = client

	tabs := r.bySession[client.SessionID]
	if tabs == nil {
		tabs = make(map[string]*Client)
		r.bySession[client.SessionID] = tabs
	}
	tabs[client.ID] = client
}

func (r *ClientRegistry) Remove(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.byID[clientID]; ok {
		r.unlink(client)
	}
}

func (r *ClientRegistry) unlink(client *Client) {
	delete(r.byID, client.ID)
	if tabs := r.bySession[client.SessionID]; tabs != nil {
		delete(tabs, client.ID)
		if len(tabs) == 0 {
			delete(r.bySession, client.SessionID)
		}
	}
}

// All returns every open connection.
func (r *ClientRegistry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.byID))
	for _, c := range r.byID {
		clients = append(clients, c)
	}
	return clients
}

// BySession returns the connections bound to sessionID.
func (r *ClientRegistry) BySession(sessionID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tabs := r.bySession[sessionID]
	clients := make([]*Client, 0, len(tabs))
	for _, c := range tabs {
		clients = append(clients, c)
	}
	return clients
}

func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Touch records activity on a connection.
func (r *ClientRegistry) Touch(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.byID[clientID]; ok {
		c.LastActivity = r.now()
	}
}

// Snapshot describes every connection, oldest first.
func (r *ClientRegistry) Snapshot() []ClientInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	infos := make([]ClientInfo, 0, len(r.byID))
	for _, c := range r.byID {
		infos = append(infos, ClientInfo{
			ID:           c.ID,
			SessionID:    c.SessionID,
			ConnectedAt:  c.ConnectedAt,
			LastActivity: c.LastActivity,
			IPAddress:    c.IPAddress,
			Idle:         now.Sub(c.LastActivity) > idleAfter,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}
