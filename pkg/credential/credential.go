package credential

import (
	"context"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/harun/zombinator/internal/observability"
	"github.com/rs/zerolog"
)

// DefaultRefreshMargin is how long before expiry a cached token is replaced.
const DefaultRefreshMargin = 2 * time.Minute

// Strategy names an authentication strategy.
type Strategy string

const (
	StrategyInteractive     Strategy = "interactive"
	StrategyManagedIdentity Strategy = "managed-identity"
	StrategyClientSecret    Strategy = "client-secret"
)

// TokenProvider issues bearer tokens for the agent service.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Credential is the process-wide token source produced by a Resolver. It is
// safe for concurrent use.
type Credential struct {
	strategy      Strategy
	primary       azcore.TokenCredential
	fallback      azcore.TokenCredential // interactive challenge, when allowed
	scope         string
	refreshMargin time.Duration
	now           func() time.Time
	logger        zerolog.Logger

	mu           sync.Mutex
	token        azcore.AccessToken
	usedFallback bool
}

// Strategy returns the strategy currently producing tokens. A managed-identity
// credential that had to fall back reports StrategyInteractive.
func (c *Credential) Strategy() Strategy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current()
}

func (c *Credential) current() Strategy {
	if c.usedFallback {
		return StrategyInteractive
	}
	return c.strategy
}

// Token returns a bearer token for the configured scope, reusing the cached
// one until it is within the refresh margin of expiry.
func (c *Credential) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.Token != "" && c.now().Add(c.refreshMargin).Before(c.token.ExpiresOn) {
		return c.token.Token, nil
	}

	opts := policy.TokenRequestOptions{Scopes: []string{c.scope}}

	source := c.primary
	if c.usedFallback {
		source = c.fallback
	}

	tok, err := c.fetch(ctx, source, c.current(), opts)
	if err != nil && !c.usedFallback && c.fallback != nil {
		c.logger.Warn().Err(err).Msg("Ambient credential failed, trying interactive login")
		fbTok, fbErr := c.fetch(ctx, c.fallback, StrategyInteractive, opts)
		if fbErr == nil {
			c.usedFallback = true
			tok, err = fbTok, nil
		} else {
			c.logger.Error().Err(fbErr).Msg("Interactive login also failed")
		}
	}
	if err != nil {
		// The primary error is reported even when the fallback also failed.
		return "", &AuthenticationError{Strategy: c.current(), Err: err}
	}

	c.token = tok
	c.logger.Debug().
		Str("strategy", string(c.current())).
		Time("expires_on", tok.ExpiresOn).
		Msg("Acquired access token")

	return tok.Token, nil
}

func (c *Credential) fetch(ctx context.Context, src azcore.TokenCredential, strategy Strategy, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	tok, err := src.GetToken(ctx, opts)
	observability.RecordTokenRequest(string(strategy), err == nil)
	return tok, err
}
