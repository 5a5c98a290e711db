// Package agent holds the conversation session with a chat model and the
// provider adapters behind it.
//
// Invariants:
// - A session starts with one system message demanding a {"content","filename"} JSON reply.
// - Send appends the user message before the call and the reply after it; failures are not retried here.
// - When MaxHistory is set, trimming drops the oldest non-system messages only.
//
// Usage:
//
//	provider, _ := (&agent.ProviderFactory{}).NewProvider(agent.ProviderProfile{Provider: "openai", APIKey: key})
//	session, _ := agent.NewSession(agent.SessionConfig{Provider: provider, Model: "gpt-4o-mini"})
//	_ = session.Initialize(ctx)
//	reply, _ := session.Send(ctx, prompt)
//	_ = reply
package agent
