package toolchannel

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotConnected is returned for remote calls on a channel that is not Ready
	ErrNotConnected = errors.New("tool channel is not connected")
	// ErrClosed is returned when a closed channel is used again
	ErrClosed = errors.New("tool channel is closed")
)

// TransportError reports a connect, call or close failure against the provider process
type TransportError struct {
	Channel  string
	Op       string // initialize, call, close
	Tool     string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tool channel %s: %s", e.Channel, e.Op)
	if e.Tool != "" {
		fmt.Fprintf(&b, " %s", e.Tool)
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " failed after %d attempts", e.Attempts)
	} else {
		b.WriteString(" failed")
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ToolNotFoundError is returned when the channel does not expose the named tool
type ToolNotFoundError struct {
	Channel string
	Tool    string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool %q not found on channel %s", e.Tool, e.Channel)
}

// InvalidParametersError is returned when parameters do not match the tool's input schema
type InvalidParametersError struct {
	Tool    string
	Reasons []string
}

func (e *InvalidParametersError) Error() string {
	return fmt.Sprintf("invalid parameters for %s: %s", e.Tool, strings.Join(e.Reasons, "; "))
}

// ToolExecutionError is a tool-level failure reported by the provider (isError: true)
type ToolExecutionError struct {
	Tool    string
	Message string
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s reported an error: %s", e.Tool, e.Message)
}
