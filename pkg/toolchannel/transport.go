package toolchannel

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Transport is one connection to a tool provider
type Transport interface {
	Connect(ctx context.Context) error
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error)
	Close() error
}

// TransportConfig describes how to reach a provider process
type TransportConfig struct {
	Command        string
	Args           []string
	Env            []string // KEY=VALUE, appended to the parent environment
	ClientName     string
	ClientVersion  string
	RequestTimeout time.Duration // 0 waits for the caller's context only
	Logger         zerolog.Logger
}

// TransportFactory builds a fresh transport for every connection attempt
type TransportFactory func(cfg TransportConfig) Transport

// NewStdioTransportFactory is the default TransportFactory
func NewStdioTransportFactory() TransportFactory {
	return func(cfg TransportConfig) Transport {
		return NewStdioTransport(cfg)
	}
}

const maxMessageSize = 16 * 1024 * 1024

// StdioTransport speaks newline-delimited JSON-RPC 2.0 with a subprocess
type StdioTransport struct {
	cfg    TransportConfig
	logger zerolog.Logger

	// mu guards process state and pending; writeMu serializes stdin frames
	mu        sync.Mutex
	writeMu   sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	connected bool
	nextID    int
	pending   map[int]chan *rpcResponse

	wg sync.WaitGroup
}

// NewStdioTransport creates a transport; the process starts on Connect
func NewStdioTransport(cfg TransportConfig) *StdioTransport {
	if cfg.ClientName == "" {
		cfg.ClientName = "ragent"
	}
	if cfg.ClientVersion == "" {
		cfg.ClientVersion = "0.1.0"
	}
	return &StdioTransport{
		cfg:     cfg,
		logger:  cfg.Logger.With().Str("component", "mcp-stdio").Logger(),
		pending: make(map[int]chan *rpcResponse),
	}
}

// Connect starts the process, performs the initialize handshake and sends
// notifications/initialized.
func (t *StdioTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	if t.cfg.Command == "" {
		t.mu.Unlock()
		return errors.New("empty command for stdio transport")
	}

	// The process outlives the connect context, so it is not bound to it
	cmd := exec.Command(t.cfg.Command, t.cfg.Args...)
	cmd.Env = append(os.Environ(), t.cfg.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.mu.Unlock()
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.mu.Unlock()
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		t.mu.Unlock()
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("failed to start %s: %w", t.cfg.Command, err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.connected = true

	t.wg.Add(2)
	go t.readStdout(stdout)
	go t.readStderr(stderr)
	t.mu.Unlock()

	if _, err := t.call(ctx, "initialize", map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    t.cfg.ClientName,
			"version": t.cfg.ClientVersion,
		},
	}); err != nil {
		_ = t.Close()
		return fmt.Errorf("initialize handshake: %w", err)
	}

	if err := t.notify("notifications/initialized", nil); err != nil {
		_ = t.Close()
		return fmt.Errorf("initialized notification: %w", err)
	}

	t.logger.Debug().
		Str("command", t.cfg.Command).
		Int("pid", cmd.Process.Pid).
		Msg("MCP transport connected")
	return nil
}

func (t *StdioTransport) readStdout(r io.Reader) {
	defer t.wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxMessageSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to unmarshal MCP message")
			continue
		}

		id, ok := resp.ID.(float64)
		if !ok {
			t.logger.Debug().RawJSON("message", line).Msg("MCP notification")
			continue
		}

		t.mu.Lock()
		ch, exists := t.pending[int(id)]
		if exists {
			delete(t.pending, int(id))
			ch <- &resp
		} else {
			t.logger.Warn().Int("id", int(id)).Msg("MCP response for unknown request")
		}
		t.mu.Unlock()
	}

	if err := scanner.Err(); err != nil {
		t.logger.Debug().Err(err).Msg("MCP stdout closed")
	}

	// Process gone: fail everything still waiting
	t.mu.Lock()
	t.connected = false
	t.failPendingLocked()
	t.mu.Unlock()
}

func (t *StdioTransport) readStderr(r io.Reader) {
	defer t.wg.Done()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		t.logger.Debug().Str("stream", "stderr").Msg(scanner.Text())
	}
}

func (t *StdioTransport) failPendingLocked() {
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
}

func (t *StdioTransport) write(stdin io.Writer, req rpcRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}
	return nil
}

func (t *StdioTransport) notify(method string, params any) error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return ErrNotConnected
	}
	stdin := t.stdin
	t.mu.Unlock()

	return t.write(stdin, rpcRequest{JSONRPC: "2.0", Method: method, Params: params})
}

func (t *StdioTransport) call(ctx context.Context, method string, params any) (*rpcResponse, error) {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil, ErrNotConnected
	}

	t.nextID++
	id := t.nextID
	ch := make(chan *rpcResponse, 1)
	t.pending[id] = ch
	stdin := t.stdin
	t.mu.Unlock()

	if err := t.write(stdin, rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: &id}); err != nil {
		t.forget(id)
		return nil, err
	}

	var timeout <-chan time.Time
	if t.cfg.RequestTimeout > 0 {
		timer := time.NewTimer(t.cfg.RequestTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case resp := <-ch:
		if resp == nil {
			return nil, errors.New("connection closed")
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("MCP error (%d): %s", resp.Error.Code, resp.Error.Message)
		}
		return resp, nil
	case <-ctx.Done():
		t.forget(id)
		return nil, ctx.Err()
	case <-timeout:
		t.forget(id)
		return nil, fmt.Errorf("MCP request %s timed out after %s", method, t.cfg.RequestTimeout)
	}
}

func (t *StdioTransport) forget(id int) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

// ListTools calls tools/list
func (t *StdioTransport) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	resp, err := t.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	var result struct {
		Tools []ToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to parse tools response: %w", err)
	}
	return result.Tools, nil
}

// CallTool calls tools/call
func (t *StdioTransport) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	if args == nil {
		args = map[string]any{}
	}

	resp, err := t.call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}

	result := &CallResult{Raw: resp.Result}
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return nil, fmt.Errorf("failed to parse tool result: %w", err)
		}
	}
	return result, nil
}

// Close stops the process and waits for the reader goroutines
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	cmd := t.cmd
	if cmd == nil {
		t.mu.Unlock()
		return nil
	}
	t.cmd = nil
	t.connected = false
	if t.stdin != nil {
		_ = t.stdin.Close()
	}
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	t.failPendingLocked()
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.logger.Warn().Msg("Timeout waiting for MCP transport readers to exit")
	}

	// Wait reaps the process; a kill exit status is expected here
	_ = cmd.Wait()
	return nil
}
