// Package toolchannel is a client for one external tool provider speaking the
// Model Context Protocol (JSON-RPC 2.0 over a subprocess's stdio).
//
// Invariants:
//   - Connect handshake and tool discovery run as one unit under a bounded linear retry.
//   - Each attempt uses a fresh transport; a failed attempt's transport is closed.
//   - Local tools (writeOutput, writeFile) are resolved through a static route table
//     and never touch the transport, so they work on a channel that never connected.
//   - Lookup and parameter validation failures are never retried.
//   - Close is idempotent.
//
// Usage:
//
//	ch, _ := toolchannel.New(toolchannel.Options{
//		Name:       "mcp-server-file",
//		Command:    "npx",
//		Args:       []string{"-y", "@modelcontextprotocol/server-filesystem", "/out"},
//		LocalTools: []string{"writeOutput", "writeFile"},
//		OutputRoot: "/out",
//	})
//	defer ch.Close()
//	_ = ch.Initialize(ctx)
//	_, _ = ch.Invoke(ctx, "writeOutput", map[string]any{"path": "story.md", "content": "# Story"})
package toolchannel
