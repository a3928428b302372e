package credential

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/harun/zombinator/internal/observability"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StrategyAuto lets the resolver pick client-secret when the full triple is
// present and the ambient chain otherwise.
const StrategyAuto = "auto"

// Options mirrors the auth section of the configuration.
type Options struct {
	Strategy         string
	ClientID         string
	ClientSecret     string
	TenantID         string
	AllowInteractive bool
	Scope            string
}

func (o Options) hasClientSecret() bool {
	return o.ClientID != "" && o.ClientSecret != "" && o.TenantID != ""
}

func (o Options) partialClientSecret() bool {
	n := 0
	for _, v := range []string{o.ClientID, o.ClientSecret, o.TenantID} {
		if v != "" {
			n++
		}
	}
	return n > 0 && n < 3
}

// Factory builds the underlying token sources. Tests replace it with fakes.
type Factory struct {
	ClientSecret func(tenantID, clientID, secret string) (azcore.TokenCredential, error)
	Ambient      func() (azcore.TokenCredential, error)
	Interactive  func(tenantID, clientID string) (azcore.TokenCredential, error)
}

// AzureFactory returns the azidentity-backed factory.
func AzureFactory() Factory {
	return Factory{
		ClientSecret: func(tenantID, clientID, secret string) (azcore.TokenCredential, error) {
			return azidentity.NewClientSecretCredential(tenantID, clientID, secret, nil)
		},
		Ambient: func() (azcore.TokenCredential, error) {
			return azidentity.NewDefaultAzureCredential(nil)
		},
		Interactive: func(tenantID, clientID string) (azcore.TokenCredential, error) {
			return azidentity.NewInteractiveBrowserCredential(&azidentity.InteractiveBrowserCredentialOptions{
				TenantID: tenantID,
				ClientID: clientID,
			})
		},
	}
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithFactory overrides how token sources are constructed.
func WithFactory(f Factory) ResolverOption {
	return func(r *Resolver) { r.factory = f }
}

// WithClock overrides the clock used for token expiry checks.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// WithRefreshMargin overrides DefaultRefreshMargin.
func WithRefreshMargin(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.margin = d }
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

// Resolver decides once per process which strategy authenticates requests.
type Resolver struct {
	opts    Options
	factory Factory
	now     func() time.Time
	margin  time.Duration
	logger  zerolog.Logger

	once sync.Once
	cred *Credential
	err  error
}

// NewResolver creates a resolver. No credentials are constructed until
// Resolve is called.
func NewResolver(opts Options, options ...ResolverOption) *Resolver {
	r := &Resolver{
		opts:    opts,
		factory: AzureFactory(),
		now:     time.Now,
		margin:  DefaultRefreshMargin,
		logger:  log.With().Str("component", "credential").Logger(),
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// Resolve returns the process credential. The first call selects a strategy;
// later calls return the same result.
func (r *Resolver) Resolve() (*Credential, error) {
	r.once.Do(func() {
		r.cred, r.err = r.resolve()

		status, strategy := observability.AuditSuccess, ""
		if r.err != nil {
			status = observability.AuditFailure
		} else {
			strategy = string(r.cred.strategy)
		}
		observability.RecordAuthAudit(context.Background(), "credential_resolved", strategy, status, nil)
	})
	return r.cred, r.err
}

func (r *Resolver) resolve() (*Credential, error) {
	opts := r.opts
	if opts.Scope == "" {
		return nil, &ConfigurationError{Op: "credential.Resolve", Reason: "token scope is not set"}
	}
	if opts.partialClientSecret() {
		return nil, &ConfigurationError{
			Op:     "credential.Resolve",
			Reason: "client id, client secret and tenant id must be set together",
		}
	}

	strategy := strings.ToLower(strings.TrimSpace(opts.Strategy))
	if strategy == "" {
		strategy = StrategyAuto
	}

	cred := &Credential{
		scope:         opts.Scope,
		refreshMargin: r.margin,
		now:           r.now,
		logger:        r.logger,
	}

	var err error
	switch strategy {
	case StrategyAuto:
		if opts.hasClientSecret() {
			cred.strategy = StrategyClientSecret
			cred.primary, err = r.factory.ClientSecret(opts.TenantID, opts.ClientID, opts.ClientSecret)
			break
		}
		cred.strategy = StrategyManagedIdentity
		cred.primary, err = r.factory.Ambient()
		if err == nil && opts.AllowInteractive {
			cred.fallback, err = r.factory.Interactive(opts.TenantID, opts.ClientID)
		}

	case string(StrategyClientSecret):
		if !opts.hasClientSecret() {
			return nil, &ConfigurationError{
				Op:     "credential.Resolve",
				Reason: "client-secret strategy requires client id, client secret and tenant id",
			}
		}
		cred.strategy = StrategyClientSecret
		cred.primary, err = r.factory.ClientSecret(opts.TenantID, opts.ClientID, opts.ClientSecret)

	case string(StrategyManagedIdentity):
		cred.strategy = StrategyManagedIdentity
		cred.primary, err = r.factory.Ambient()

	case string(StrategyInteractive):
		if !opts.AllowInteractive {
			return nil, &ConfigurationError{
				Op:     "credential.Resolve",
				Reason: "interactive strategy selected but interactive login is not allowed",
			}
		}
		cred.strategy = StrategyInteractive
		cred.primary, err = r.factory.Interactive(opts.TenantID, opts.ClientID)

	default:
		return nil, &ConfigurationError{Op: "credential.Resolve", Reason: "unknown strategy " + strategy}
	}

	if err != nil {
		return nil, &ConfigurationError{
			Op:     "credential.Resolve",
			Reason: "cannot construct " + string(cred.strategy) + " credential",
			Err:    err,
		}
	}

	r.logger.Info().
		Str("strategy", string(cred.strategy)).
		Bool("interactive_fallback", cred.fallback != nil).
		Msg("Credential strategy selected")

	return cred, nil
}
