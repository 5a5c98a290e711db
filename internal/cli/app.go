package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/ragent/internal/config"
	"github.com/harun/ragent/internal/knowledge"
	"github.com/harun/ragent/internal/logger"
	"github.com/harun/ragent/internal/observability"
	"github.com/harun/ragent/internal/tracing"
	"github.com/harun/ragent/pkg/agent"
	"github.com/harun/ragent/pkg/memory"
	"github.com/harun/ragent/pkg/retry"
	"github.com/harun/ragent/pkg/toolchannel"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const sectionLimit = 4000

// app is the per-command runtime: validated config plus the process logger
type app struct {
	cfg             *config.Config
	log             *logger.Logger
	shutdownTracing func(context.Context) error
}

// bootstrap loads and validates the configuration and sets up logging and tracing
func bootstrap(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cfgFile, envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if cmd.Flags().Changed("metrics-file") {
		cfg.MetricsFile = metricsFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		Output:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	for _, secret := range []string{cfg.OpenAI.APIKey, cfg.Embedding.APIKey, cfg.Anthropic.APIKey} {
		log.AddSecret(secret)
	}

	shutdownTracing, err := tracing.Setup(tracing.ProviderConfig{ServiceName: "ragent", Version: version})
	if err != nil {
		log.Warn().Err(err).Msg("Tracing disabled")
	}
	observability.EnsureRegistered()

	return &app{cfg: cfg, log: log, shutdownTracing: shutdownTracing}, nil
}

func (a *app) logger() zerolog.Logger {
	return a.log.GetZerolog()
}

// shutdown flushes metrics and traces and closes the log file
func (a *app) shutdown(ctx context.Context) {
	if a.cfg.MetricsFile != "" {
		if err := observability.WriteTextfile(a.cfg.MetricsFile); err != nil {
			a.log.Warn().Err(err).Str("path", a.cfg.MetricsFile).Msg("Failed to write metrics file")
		}
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			a.log.Warn().Err(err).Msg("Failed to flush traces")
		}
	}
	_ = a.log.Close()
}

func (a *app) retryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: a.cfg.Retry.MaxAttempts,
		BaseDelay:   a.cfg.Retry.BaseDelay,
	}
}

func (a *app) newRetriever() *memory.Retriever {
	embedder := memory.NewOpenAIEmbedder(memory.EmbedderConfig{
		APIKey:  a.cfg.Embedding.APIKey,
		BaseURL: a.cfg.Embedding.BaseURL,
		Model:   a.cfg.Models.Embedding,
		Logger:  a.logger(),
	})

	return memory.NewRetriever(memory.RetrieverConfig{
		Embedder:    embedder,
		Concurrency: a.cfg.Retrieval.Concurrency,
		Logger:      a.logger(),
	})
}

// ingestKnowledge prepares the directories and embeds every knowledge document
func (a *app) ingestKnowledge(ctx context.Context, retriever *memory.Retriever) error {
	for _, dir := range []string{a.cfg.FS.KnowledgeDir, a.cfg.FS.OutputDir} {
		if err := knowledge.EnsureDirectory(dir); err != nil {
			return err
		}
	}

	docs, err := knowledge.LoadDirectory(a.cfg.FS.KnowledgeDir)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		a.log.Warn().Str("dir", a.cfg.FS.KnowledgeDir).Msg("Knowledge directory is empty")
		return nil
	}

	return retriever.IngestAll(ctx, knowledge.Contents(docs))
}

// retrieveContext ranks the knowledge base against query and joins the top results
func (a *app) retrieveContext(ctx context.Context, retriever *memory.Retriever, query string, topK int) (string, error) {
	if retriever.Stats().Count == 0 {
		return "", nil
	}

	docs, err := retriever.Query(ctx, query, topK)
	if err != nil {
		return "", err
	}

	joined := strings.Join(docs, "\n")
	logger.Section(a.logger().With().Int("documents", len(docs)).Logger(), "Retrieved context", joined, sectionLimit)
	return joined, nil
}

func (a *app) newSession() (*agent.Session, error) {
	endpoint := a.cfg.ChatEndpoint()
	provider, err := (&agent.ProviderFactory{}).NewProvider(agent.ProviderProfile{
		Provider: a.cfg.Models.Provider,
		APIKey:   endpoint.APIKey,
		BaseURL:  endpoint.BaseURL,
	})
	if err != nil {
		return nil, err
	}

	return agent.NewSession(agent.SessionConfig{
		Provider:   provider,
		Model:      a.cfg.Models.LLM,
		MaxHistory: a.cfg.Conversation.MaxHistory,
		Logger:     a.logger(),
	})
}

func (a *app) newChannels() ([]*toolchannel.Channel, error) {
	channels := make([]*toolchannel.Channel, 0, len(a.cfg.ToolProviders))
	for _, p := range a.cfg.ToolProviders {
		ch, err := toolchannel.New(toolchannel.Options{
			Name:       p.Name,
			Command:    p.Command,
			Args:       p.Args,
			Env:        p.Env,
			LocalTools: p.LocalTools,
			OutputRoot: a.cfg.FS.OutputDir,
			Retry:      a.retryPolicy(),
			Logger:     a.logger(),
		})
		if err != nil {
			return nil, fmt.Errorf("tool provider %s: %w", p.Name, err)
		}
		channels = append(channels, ch)
	}
	return channels, nil
}
