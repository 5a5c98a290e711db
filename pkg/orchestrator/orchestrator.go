package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/harun/ragent/internal/logger"
	"github.com/harun/ragent/internal/observability"
	"github.com/harun/ragent/internal/tracing"
	"github.com/harun/ragent/pkg/toolchannel"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Session is the conversation the orchestrator prompts
type Session interface {
	Initialize(ctx context.Context) error
	Send(ctx context.Context, prompt string) (string, error)
	Close() error
}

// ToolChannel is a tool provider the orchestrator can persist through
type ToolChannel interface {
	Name() string
	Initialize(ctx context.Context) error
	HasTool(name string) bool
	Invoke(ctx context.Context, name string, params map[string]any) (*toolchannel.ToolResult, error)
	Close() error
}

// Config configures an Orchestrator
type Config struct {
	Session      Session
	Channels     []ToolChannel
	SystemPrompt string
	Context      string // retrieved documents, already joined
	Logger       zerolog.Logger
}

// Result describes a completed run
type Result struct {
	TaskResult
	Tier    ParseTier
	Channel string
	Tool    string
	Path    string // where the output landed; the filename for remote writes
}

// Orchestrator runs one task against a session and a set of tool channels
type Orchestrator struct {
	session      Session
	channels     []ToolChannel
	systemPrompt string
	context      string
	logger       zerolog.Logger

	mu          sync.Mutex
	initialized bool
	closed      bool
}

// New creates an orchestrator
func New(cfg Config) (*Orchestrator, error) {
	observability.EnsureRegistered()

	if cfg.Session == nil {
		return nil, errors.New("session is required")
	}
	for i, ch := range cfg.Channels {
		if ch == nil {
			return nil, fmt.Errorf("channel %d is nil", i)
		}
	}

	return &Orchestrator{
		session:      cfg.Session,
		channels:     append([]ToolChannel(nil), cfg.Channels...),
		systemPrompt: cfg.SystemPrompt,
		context:      cfg.Context,
		logger:       cfg.Logger.With().Str("component", "orchestrator").Logger(),
	}, nil
}

// Initialize brings up the session and every channel concurrently. The first
// failure cancels the others and aborts.
func (o *Orchestrator) Initialize(ctx context.Context) (err error) {
	ctx, span := tracing.StartSpan(ctx, "ragent.orchestrator", "orchestrator.initialize",
		attribute.Int("channels", len(o.channels)),
	)
	defer func() { tracing.EndSpan(span, err) }()

	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return &StageError{Stage: StageInitialize, Err: errors.New("orchestrator is closed")}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return o.session.Initialize(gctx)
	})
	for _, ch := range o.channels {
		g.Go(func() error {
			if err := ch.Initialize(gctx); err != nil {
				return fmt.Errorf("channel %s: %w", ch.Name(), err)
			}
			return nil
		})
	}

	log := tracing.LoggerFromContext(ctx, o.logger)
	if err = g.Wait(); err != nil {
		log.Error().Err(err).Msg("Initialization failed")
		return &StageError{Stage: StageInitialize, Err: err}
	}

	o.mu.Lock()
	o.initialized = true
	o.mu.Unlock()

	log.Info().
		Int("channels", len(o.channels)).
		Msg("Orchestrator initialized")
	return nil
}

// Run prompts the model with task and persists the parsed reply
func (o *Orchestrator) Run(ctx context.Context, task string) (result *Result, err error) {
	ctx = tracing.NewRunContext(ctx)
	ctx, span := tracing.StartSpan(ctx, "ragent.orchestrator", "orchestrator.run")
	defer func() { tracing.EndSpan(span, err) }()

	start := time.Now()
	stage := StageInitialize
	defer func() {
		label := "complete"
		if err != nil {
			label = string(stage)
		}
		observability.RecordRun(label, time.Since(start), err == nil)
	}()

	fail := func(s Stage, cause error) (*Result, error) {
		stage = s
		log := tracing.LoggerFromContext(tracing.WithStage(ctx, string(s)), o.logger)
		log.Error().
			Err(cause).
			Msg("Run failed")
		return nil, &StageError{Stage: s, Err: cause}
	}

	o.mu.Lock()
	ready := o.initialized && !o.closed
	o.mu.Unlock()
	if !ready {
		return fail(StageInitialize, ErrNotInitialized)
	}

	runLogger := tracing.LoggerFromContext(ctx, o.logger)

	if strings.TrimSpace(task) == "" {
		return fail(StagePrompt, ErrEmptyTask)
	}
	prompt := BuildPrompt(o.systemPrompt, o.context, task)
	logger.Section(runLogger, "Prompt", prompt, 2000)

	reply, err := o.session.Send(tracing.WithStage(ctx, string(StageChat)), prompt)
	if err != nil {
		return fail(StageChat, err)
	}
	logger.Section(runLogger, "Reply", reply, 2000)

	outcome := ParseReply(reply)
	if !outcome.OK {
		return fail(StageParse, newMalformedReplyError(reply))
	}
	span.SetAttributes(attribute.String("parse_tier", outcome.Tier.String()))

	ch, tool, ok := o.outputChannel()
	if !ok {
		return fail(StageLocateTool, ErrNoFileTool)
	}

	res, err := ch.Invoke(tracing.WithStage(ctx, string(StagePersist)), tool, map[string]any{
		"path":    outcome.Result.Filename,
		"content": outcome.Result.Content,
	})
	if err != nil {
		return fail(StagePersist, err)
	}

	path := outcome.Result.Filename
	if res != nil && res.Path != "" {
		path = res.Path
	}

	runLogger.Info().
		Str("channel", ch.Name()).
		Str("tool", tool).
		Str("path", path).
		Str("tier", outcome.Tier.String()).
		Dur("duration", time.Since(start)).
		Msg("Result persisted")

	return &Result{
		TaskResult: outcome.Result,
		Tier:       outcome.Tier,
		Channel:    ch.Name(),
		Tool:       tool,
		Path:       path,
	}, nil
}

// outputChannel finds the first channel exposing an output tool, preferring
// writeOutput over writeFile within a channel.
func (o *Orchestrator) outputChannel() (ToolChannel, string, bool) {
	for _, ch := range o.channels {
		for _, tool := range toolchannel.OutputTools {
			if ch.HasTool(tool) {
				return ch, tool, true
			}
		}
	}
	return nil, "", false
}

// Close tears down the session and channels concurrently. Every teardown
// error is returned, joined. Closing twice is a no-op.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	var (
		errMu sync.Mutex
		errs  []error
	)
	record := func(err error) {
		errMu.Lock()
		errs = append(errs, err)
		errMu.Unlock()
	}

	var g errgroup.Group
	g.Go(func() error {
		if err := o.session.Close(); err != nil {
			record(fmt.Errorf("session: %w", err))
		}
		return nil
	})
	for _, ch := range o.channels {
		g.Go(func() error {
			if err := ch.Close(); err != nil {
				record(fmt.Errorf("channel %s: %w", ch.Name(), err))
			}
			return nil
		})
	}
	_ = g.Wait()

	err := errors.Join(errs...)
	if err != nil {
		log := tracing.LoggerFromContext(ctx, o.logger)
		log.Warn().Err(err).Msg("Teardown reported errors")
	}
	return err
}
