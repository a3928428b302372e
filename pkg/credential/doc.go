// Package credential resolves how the process authenticates to the hosted
// agent service and hands out bearer tokens.
//
// Invariants:
// - Resolve is idempotent: every call returns the same *Credential (or the same error).
// - Nothing touches the network until Credential.Token is called.
// - Tokens are cached and re-acquired shortly before they expire.
// - Token failures are AuthenticationError and are never retried here.
//
// Usage:
//
//	r := credential.NewResolver(credential.Options{Scope: "https://ai.azure.com/.default"})
//	cred, _ := r.Resolve()
//	token, _ := cred.Token(ctx)
package credential
