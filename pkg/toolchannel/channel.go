package toolchannel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harun/ragent/internal/observability"
	"github.com/harun/ragent/internal/tracing"
	"github.com/harun/ragent/pkg/retry"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
)

// Options configures a Channel
type Options struct {
	Name           string
	Command        string
	Args           []string
	Env            map[string]string
	LocalTools     []string // names from the local route table exposed by this channel
	OutputRoot     string   // base for relative local write paths
	Retry          retry.Policy
	RequestTimeout time.Duration
	Factory        TransportFactory // defaults to stdio
	Sleeper        retry.Sleeper    // overrides retry waits (tests)
	Logger         zerolog.Logger
}

// ToolResult is the outcome of Invoke
type ToolResult struct {
	Route   RouteKind
	Path    string // set by local writes
	Content []ContentBlock
	Raw     []byte
}

// Text joins the text blocks of the result
func (r *ToolResult) Text() string {
	return (&CallResult{Content: r.Content}).Text()
}

// Channel is a client for one tool provider
type Channel struct {
	name         string
	connID       string
	transportCfg TransportConfig
	factory      TransportFactory
	policy       retry.Policy
	sleeper      retry.Sleeper
	outputRoot   string
	logger       zerolog.Logger

	local map[string]localTool

	mu        sync.RWMutex
	state     State
	transport Transport
	remote    []ToolDescriptor
	schemas   map[string]*gojsonschema.Schema
}

// New creates a channel in the Disconnected state. Local tools are available immediately.
func New(opts Options) (*Channel, error) {
	observability.EnsureRegistered()

	if opts.Name == "" {
		return nil, errors.New("channel name is required")
	}

	local := make(map[string]localTool, len(opts.LocalTools))
	for _, name := range opts.LocalTools {
		tool, ok := localTools[name]
		if !ok {
			return nil, fmt.Errorf("unknown local tool %q", name)
		}
		local[name] = tool
	}

	policy := opts.Retry
	if policy.MaxAttempts <= 0 {
		policy = retry.DefaultPolicy()
	}

	factory := opts.Factory
	if factory == nil {
		factory = NewStdioTransportFactory()
	}

	connID, err := gonanoid.New(10)
	if err != nil {
		return nil, fmt.Errorf("failed to generate connection id: %w", err)
	}

	logger := opts.Logger.With().
		Str("channel", opts.Name).
		Str("conn_id", connID).
		Logger()

	env := make([]string, 0, len(opts.Env))
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	c := &Channel{
		name:   opts.Name,
		connID: connID,
		transportCfg: TransportConfig{
			Command:        opts.Command,
			Args:           append([]string(nil), opts.Args...),
			Env:            env,
			ClientName:     opts.Name,
			RequestTimeout: opts.RequestTimeout,
			Logger:         logger,
		},
		factory:    factory,
		policy:     policy,
		sleeper:    opts.Sleeper,
		outputRoot: opts.OutputRoot,
		logger:     logger,
		local:      local,
		state:      StateDisconnected,
		schemas:    make(map[string]*gojsonschema.Schema),
	}

	for name, tool := range local {
		c.compileSchema(name, tool.descriptor.InputSchema)
	}

	return c, nil
}

// Name returns the channel name
func (c *Channel) Name() string {
	return c.name
}

// ConnectionID returns the id tagging this channel's logs
func (c *Channel) ConnectionID() string {
	return c.connID
}

// State returns the current lifecycle state
func (c *Channel) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Channel) retryOptions(op string) []retry.Option {
	opts := []retry.Option{
		retry.OnRetry(func(attempt int, delay time.Duration, err error) {
			if op == "initialize" {
				c.setState(StateRetrying)
			}
			observability.RecordRetry(c.name, op)
			c.logger.Warn().
				Err(err).
				Str("op", op).
				Int("attempt", attempt).
				Int("max_attempts", c.policy.MaxAttempts).
				Dur("delay", delay).
				Msg("Tool channel attempt failed, retrying")
		}),
	}
	if c.sleeper != nil {
		opts = append(opts, retry.WithSleeper(c.sleeper))
	}
	return opts
}

// Initialize connects to the provider and discovers its tools. The handshake
// and discovery are retried together; every attempt uses a fresh transport.
func (c *Channel) Initialize(ctx context.Context) (err error) {
	ctx = tracing.WithChannel(ctx, c.name)
	ctx, span := tracing.StartSpan(ctx, "ragent.toolchannel", "toolchannel.initialize",
		attribute.String("channel", c.name),
	)
	defer func() { tracing.EndSpan(span, err) }()

	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	case StateReady:
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	err = retry.Do(ctx, c.policy, "initialize", func(ctx context.Context, attempt int) error {
		c.setState(StateConnecting)

		t := c.factory(c.transportCfg)
		if err := t.Connect(ctx); err != nil {
			_ = t.Close()
			return err
		}

		tools, err := t.ListTools(ctx)
		if err != nil {
			_ = t.Close()
			return err
		}

		c.mu.Lock()
		if c.state == StateClosed {
			c.mu.Unlock()
			_ = t.Close()
			return retry.Permanent(ErrClosed)
		}
		c.transport = t
		c.setRemoteToolsLocked(tools)
		c.mu.Unlock()
		return nil
	}, c.retryOptions("initialize")...)

	if err != nil {
		c.mu.Lock()
		if c.state != StateClosed {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		observability.RecordChannelInit(c.name, false)

		if errors.Is(err, ErrClosed) {
			return err
		}
		return c.transportError("initialize", "", err)
	}

	c.setState(StateReady)
	observability.RecordChannelInit(c.name, true)

	c.logger.Info().
		Int("tools", len(c.ListTools())).
		Strs("names", c.toolNames()).
		Msg("Tool channel ready")
	return nil
}

func (c *Channel) transportError(op, tool string, err error) *TransportError {
	te := &TransportError{Channel: c.name, Op: op, Tool: tool, Attempts: 1, Err: err}
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		te.Attempts = exhausted.Attempts
		te.Err = exhausted.Err
	}
	return te
}

func (c *Channel) setRemoteToolsLocked(tools []ToolDescriptor) {
	c.remote = make([]ToolDescriptor, 0, len(tools))
	for _, tool := range tools {
		if tool.Name == "" {
			continue
		}
		c.remote = append(c.remote, tool.clone())
		if _, isLocal := c.local[tool.Name]; !isLocal {
			c.compileSchemaLocked(tool.Name, tool.InputSchema)
		}
	}
}

func (c *Channel) compileSchema(name string, schema map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.compileSchemaLocked(name, schema)
}

func (c *Channel) compileSchemaLocked(name string, schema map[string]any) {
	if len(schema) == 0 {
		delete(c.schemas, name)
		return
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		// An unusable provider schema disables validation for that tool only
		c.logger.Warn().Err(err).Str("tool", name).Msg("Ignoring invalid tool input schema")
		delete(c.schemas, name)
		return
	}
	c.schemas[name] = compiled
}

// ListTools returns a copy of every tool this channel exposes: discovered
// tools in provider order, then local tools the provider did not advertise.
func (c *Channel) ListTools() []ToolDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]ToolDescriptor, 0, len(c.remote)+len(c.local))
	seen := make(map[string]bool, len(c.remote))
	for _, tool := range c.remote {
		if local, ok := c.local[tool.Name]; ok {
			out = append(out, local.descriptor.clone())
		} else {
			out = append(out, tool.clone())
		}
		seen[tool.Name] = true
	}

	names := make([]string, 0, len(c.local))
	for name := range c.local {
		if !seen[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		out = append(out, c.local[name].descriptor.clone())
	}
	return out
}

func (c *Channel) toolNames() []string {
	tools := c.ListTools()
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}

// HasTool reports whether the channel exposes name
func (c *Channel) HasTool(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.local[name]; ok {
		return true
	}
	for _, tool := range c.remote {
		if tool.Name == name {
			return true
		}
	}
	return false
}

// ResolveRoute returns how name would be dispatched, or false when the tool is unknown
func (c *Channel) ResolveRoute(name string) (Route, bool) {
	if !c.HasTool(name) {
		return Route{}, false
	}
	if _, ok := c.local[name]; ok {
		return Route{Kind: LocalFastPath, Tool: name}, true
	}
	return Route{Kind: RemoteCall, Tool: name}, true
}

func (c *Channel) validate(name string, params map[string]any) error {
	c.mu.RLock()
	schema := c.schemas[name]
	c.mu.RUnlock()

	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return &InvalidParametersError{Tool: name, Reasons: []string{err.Error()}}
	}
	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			reasons = append(reasons, e.String())
		}
		return &InvalidParametersError{Tool: name, Reasons: reasons}
	}
	return nil
}

// Invoke runs a tool. Unknown tools and invalid parameters fail immediately;
// remote calls are retried per the channel policy.
func (c *Channel) Invoke(ctx context.Context, name string, params map[string]any) (result *ToolResult, err error) {
	ctx = tracing.WithChannel(ctx, c.name)
	ctx, span := tracing.StartSpan(ctx, "ragent.toolchannel", "toolchannel.invoke",
		attribute.String("channel", c.name),
		attribute.String("tool", name),
	)
	defer func() { tracing.EndSpan(span, err) }()

	if c.State() == StateClosed {
		return nil, ErrClosed
	}
	if params == nil {
		params = map[string]any{}
	}

	route, ok := c.ResolveRoute(name)
	if !ok {
		return nil, &ToolNotFoundError{Channel: c.name, Tool: name}
	}
	span.SetAttributes(attribute.String("route", route.Kind.String()))

	if err := c.validate(name, params); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		observability.RecordToolInvocation(c.name, name, route.Kind.String(), time.Since(start), err == nil)
	}()

	logger := tracing.LoggerFromContext(ctx, c.logger)
	logger.Debug().
		Str("tool", name).
		Str("route", route.Kind.String()).
		Msg("Invoking tool")

	switch route.Kind {
	case LocalFastPath:
		result, err = c.local[name].handler(ctx, c.outputRoot, params)
	default:
		result, err = c.callRemote(ctx, name, params)
	}
	if err != nil {
		logger.Error().Err(err).Str("tool", name).Msg("Tool invocation failed")
		return nil, err
	}

	logger.Info().
		Str("tool", name).
		Str("route", route.Kind.String()).
		Dur("duration", time.Since(start)).
		Msg("Tool invoked")
	return result, nil
}

func (c *Channel) callRemote(ctx context.Context, name string, params map[string]any) (*ToolResult, error) {
	var result *ToolResult

	err := retry.Do(ctx, c.policy, "call", func(ctx context.Context, attempt int) error {
		c.mu.RLock()
		t := c.transport
		state := c.state
		c.mu.RUnlock()

		if t == nil || state != StateReady {
			return retry.Permanent(ErrNotConnected)
		}

		res, err := t.CallTool(ctx, name, params)
		if err != nil {
			return err
		}
		if res.IsError {
			return retry.Permanent(&ToolExecutionError{Tool: name, Message: res.Text()})
		}

		result = &ToolResult{
			Route:   RemoteCall,
			Content: res.Content,
			Raw:     res.Raw,
		}
		return nil
	}, c.retryOptions("call")...)

	if err != nil {
		var execErr *ToolExecutionError
		if errors.As(err, &execErr) {
			return nil, execErr
		}
		return nil, c.transportError("call", name, err)
	}
	return result, nil
}

// Close shuts the transport down. Closing twice is a no-op.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	t := c.transport
	c.transport = nil
	c.state = StateClosed
	c.mu.Unlock()

	if t == nil {
		return nil
	}
	if err := t.Close(); err != nil {
		return &TransportError{Channel: c.name, Op: "close", Attempts: 1, Err: err}
	}

	c.logger.Debug().Msg("Tool channel closed")
	return nil
}
