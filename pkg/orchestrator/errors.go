package orchestrator

import (
	"errors"
	"fmt"
)

// Stage names the step of a run that failed
type Stage string

const (
	StageInitialize Stage = "initialize"
	StagePrompt     Stage = "prompt"
	StageChat       Stage = "chat"
	StageParse      Stage = "parse"
	StageLocateTool Stage = "locate-tool"
	StagePersist    Stage = "persist"
)

var (
	// ErrNoFileTool is returned when no channel exposes an output tool
	ErrNoFileTool = errors.New("no tool channel exposes a file output tool")

	// ErrNotInitialized is returned by Run before a successful Initialize
	ErrNotInitialized = errors.New("orchestrator is not initialized")

	// ErrEmptyTask is returned by Run for a blank task description
	ErrEmptyTask = errors.New("task description is empty")
)

// StageError wraps a run failure with the stage it happened in
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

const excerptLimit = 200

// MalformedAgentReplyError is returned when the model reply has no usable
// content and filename.
type MalformedAgentReplyError struct {
	Excerpt string
}

func (e *MalformedAgentReplyError) Error() string {
	return fmt.Sprintf("malformed agent reply: expected content and filename, got %q", e.Excerpt)
}

func newMalformedReplyError(reply string) *MalformedAgentReplyError {
	runes := []rune(reply)
	if len(runes) > excerptLimit {
		return &MalformedAgentReplyError{Excerpt: string(runes[:excerptLimit]) + "..."}
	}
	return &MalformedAgentReplyError{Excerpt: reply}
}
