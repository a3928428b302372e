package gateway

import "context"

type ctxKey string

const (
	clientKey  ctxKey = "client"
	sessionKey ctxKey = "session"
)

// withClient marks ctx as belonging to a WebSocket connection.
func withClient(ctx context.Context, client *Client) context.Context {
	return context.WithValue(ctx, clientKey, client)
}

func clientFromContext(ctx context.Context) *Client {
	if ctx == nil {
		return nil
	}
	client, _ := ctx.Value(clientKey).(*Client)
	return client
}

// withSession carries the cookie session for HTTP JSON-RPC calls, which have
// no connection to read it from.
func withSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey, id)
}

// sessionFromContext returns the session the caller is bound to.
func sessionFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if client := clientFromContext(ctx); client != nil {
		return client.SessionID
	}
	id, _ := ctx.Value(sessionKey).(string)
	return id
}
