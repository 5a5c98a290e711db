package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/harun/ragent/internal/observability"
	"github.com/harun/ragent/internal/tracing"
	"github.com/harun/ragent/pkg/remote"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// SessionConfig configures a Session
type SessionConfig struct {
	Provider          LLMProvider
	Model             string
	SystemInstruction string // defaults to DefaultSystemInstruction
	MaxHistory        int    // non-system messages kept after each turn; 0 keeps everything
	MaxTokens         int
	Logger            zerolog.Logger
}

// Session is an ordered conversation with one chat model
type Session struct {
	provider          LLMProvider
	model             string
	systemInstruction string
	maxHistory        int
	maxTokens         int
	logger            zerolog.Logger

	mu       sync.Mutex
	messages []Message
}

// NewSession creates a session seeded with the system instruction
func NewSession(cfg SessionConfig) (*Session, error) {
	observability.EnsureRegistered()

	if cfg.Provider == nil {
		return nil, errors.New("provider is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}
	if cfg.MaxHistory < 0 {
		return nil, errors.New("max history cannot be negative")
	}

	instruction := cfg.SystemInstruction
	if instruction == "" {
		instruction = DefaultSystemInstruction
	}

	s := &Session{
		provider:          cfg.Provider,
		model:             cfg.Model,
		systemInstruction: instruction,
		maxHistory:        cfg.MaxHistory,
		maxTokens:         cfg.MaxTokens,
		logger:            cfg.Logger.With().Str("component", "session").Str("model", cfg.Model).Logger(),
	}
	s.Reseed()
	return s, nil
}

// Model returns the model name
func (s *Session) Model() string {
	return s.model
}

// Initialize validates the model so a wrong name fails before the run starts
func (s *Session) Initialize(ctx context.Context) (err error) {
	ctx, span := tracing.StartSpan(ctx, "ragent.agent", "session.initialize",
		attribute.String("provider", s.provider.Provider()),
		attribute.String("model", s.model),
	)
	defer func() { tracing.EndSpan(span, err) }()

	if err = s.provider.ValidateModel(ctx, s.model); err != nil {
		return remote.NewServiceError("chat", "initialize", err)
	}

	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Info().
		Str("provider", s.provider.Provider()).
		Msg("Chat session initialized")
	return nil
}

// Send appends prompt as a user message, asks the model for a JSON reply,
// appends the reply and returns its text.
func (s *Session) Send(ctx context.Context, prompt string) (reply string, err error) {
	ctx, span := tracing.StartSpan(ctx, "ragent.agent", "session.send",
		attribute.String("provider", s.provider.Provider()),
		attribute.String("model", s.model),
	)
	defer func() { tracing.EndSpan(span, err) }()

	logger := tracing.LoggerFromContext(ctx, s.logger)

	s.mu.Lock()
	s.messages = append(s.messages, Message{Role: RoleUser, Content: prompt})
	history := make([]Message, len(s.messages))
	copy(history, s.messages)
	s.mu.Unlock()

	start := time.Now()
	resp, callErr := s.provider.Chat(ctx, ChatRequest{
		Model:      s.model,
		Messages:   history,
		JSONObject: true,
		MaxTokens:  s.maxTokens,
	})
	observability.RecordChat(s.provider.Provider(), time.Since(start), callErr == nil)

	if callErr != nil {
		logger.Error().Err(callErr).Msg("Chat completion failed")
		return "", remote.NewServiceError("chat", "send", callErr)
	}

	s.mu.Lock()
	s.messages = append(s.messages, Message{Role: RoleAssistant, Content: resp.Content})
	s.trimLocked()
	count := len(s.messages)
	s.mu.Unlock()

	ev := logger.Debug().
		Int("history", count).
		Int("reply_chars", len(resp.Content)).
		Dur("duration", time.Since(start))
	if resp.Usage != nil {
		ev = ev.Int("input_tokens", resp.Usage.InputTokens).Int("output_tokens", resp.Usage.OutputTokens)
	}
	ev.Msg("Chat completion received")

	return resp.Content, nil
}

// trimLocked drops the oldest non-system messages beyond maxHistory
func (s *Session) trimLocked() {
	if s.maxHistory <= 0 {
		return
	}

	nonSystem := 0
	for _, m := range s.messages {
		if m.Role != RoleSystem {
			nonSystem++
		}
	}

	drop := nonSystem - s.maxHistory
	if drop <= 0 {
		return
	}

	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.Role != RoleSystem && drop > 0 {
			drop--
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept
}

// Snapshot returns a copy of the history
func (s *Session) Snapshot() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Reset clears the whole history, system message included
func (s *Session) Reset() {
	s.mu.Lock()
	s.messages = nil
	s.mu.Unlock()

	s.logger.Debug().Msg("Conversation history cleared")
}

// Reseed clears the history and restores the system message
func (s *Session) Reseed() {
	s.mu.Lock()
	s.messages = []Message{{Role: RoleSystem, Content: s.systemInstruction}}
	s.mu.Unlock()
}

// Close clears the history
func (s *Session) Close() error {
	s.Reset()
	return nil
}
