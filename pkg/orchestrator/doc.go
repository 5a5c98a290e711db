// Package orchestrator drives one writing task end-to-end: it brings up the
// chat session and tool channels, prompts the model with the retrieved
// context, parses the structured reply and persists it through a tool.
//
// Invariants:
// - Initialize must succeed for the session and every channel before Run is allowed.
// - A reply that parses in neither tier fails the run; nothing is written.
// - The output is persisted through the first channel exposing writeOutput or writeFile.
// - Every Run failure is a *StageError naming the stage that failed.
// - Close tears everything down concurrently and joins the errors.
//
// Usage:
//
//	o, _ := orchestrator.New(orchestrator.Config{Session: session, Channels: channels, Context: docs})
//	defer o.Close(ctx)
//	if err := o.Initialize(ctx); err != nil {
//		return err
//	}
//	result, err := o.Run(ctx, task)
package orchestrator
