// Package agent talks to a hosted conversational agent through its
// thread/message/run API.
//
// Invariants:
// - A Session's thread id is assigned at most once and never reassigned.
// - Blank input is rejected before any remote call.
// - Retries resume at the first unfinished step, so a message is never posted twice.
// - Polling is bounded by MaxWait and honours context cancellation.
//
// Usage:
//
//	backend, _ := agent.NewOpenAIBackend(agent.BackendConfig{Endpoint: endpoint, Tokens: cred})
//	client, _ := agent.NewClient(backend, agent.Options{AgentID: "asst_123"})
//	sess := agent.NewSession()
//	reply, err := client.Send(ctx, sess, "Atlanta to NYC")
package agent
