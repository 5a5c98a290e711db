package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// OutputDirPlaceholder is expanded to the resolved output directory in tool provider args
const OutputDirPlaceholder = "{output_dir}"

// Config represents the ragent configuration
type Config struct {
	Models        ModelsConfig         `json:"models" mapstructure:"models"`
	OpenAI        EndpointConfig       `json:"openai" mapstructure:"openai"`
	Embedding     EndpointConfig       `json:"embedding" mapstructure:"embedding"`
	Anthropic     EndpointConfig       `json:"anthropic" mapstructure:"anthropic"`
	FS            FSConfig             `json:"fs" mapstructure:"fs"`
	Task          TaskConfig           `json:"task" mapstructure:"task"`
	Prompt        string               `json:"prompt" mapstructure:"prompt" required:"true"`
	Retrieval     RetrievalConfig      `json:"retrieval" mapstructure:"retrieval"`
	Retry         RetryConfig          `json:"retry" mapstructure:"retry"`
	Conversation  ConversationConfig   `json:"conversation" mapstructure:"conversation"`
	ToolProviders []ToolProviderConfig `json:"tool_providers" mapstructure:"tool_providers"`
	Logging       LoggingConfig        `json:"logging" mapstructure:"logging"`
	MetricsFile   string               `json:"metrics_file" mapstructure:"metrics_file"`
}

// ModelsConfig names the embedding and chat models
type ModelsConfig struct {
	Embedding string `json:"embedding" mapstructure:"embedding" required:"true"`
	LLM       string `json:"llm" mapstructure:"llm" required:"true"`
	Provider  string `json:"provider" mapstructure:"provider" required:"true"` // openai, anthropic
}

// EndpointConfig holds credentials for a model endpoint
type EndpointConfig struct {
	APIKey  string `json:"api_key" mapstructure:"api_key"`
	BaseURL string `json:"base_url" mapstructure:"base_url"`
}

// FSConfig holds file system locations
type FSConfig struct {
	OutputDir    string `json:"output_dir" mapstructure:"output_dir" required:"true"`
	KnowledgeDir string `json:"knowledge_dir" mapstructure:"knowledge_dir" required:"true"`
}

// TaskConfig holds the writing task
type TaskConfig struct {
	Description string `json:"description" mapstructure:"description" required:"true"`
}

// RetrievalConfig controls ingestion and ranking
type RetrievalConfig struct {
	TopK        int `json:"top_k" mapstructure:"top_k"`
	Concurrency int `json:"concurrency" mapstructure:"concurrency"`
}

// RetryConfig controls tool channel retries
type RetryConfig struct {
	MaxAttempts int           `json:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay" mapstructure:"base_delay"`
}

// ConversationConfig controls the chat session
type ConversationConfig struct {
	MaxHistory int `json:"max_history" mapstructure:"max_history"` // 0 keeps everything
}

// ToolProviderConfig describes an external MCP tool provider process
type ToolProviderConfig struct {
	Name       string            `json:"name" mapstructure:"name" required:"true"`
	Command    string            `json:"command" mapstructure:"command" required:"true"`
	Args       []string          `json:"args" mapstructure:"args"`
	Env        map[string]string `json:"env" mapstructure:"env"`
	LocalTools []string          `json:"local_tools" mapstructure:"local_tools"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level" required:"true"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

const defaultPrompt = `You are a professional writing assistant. Please complete the writing task based on the provided context.
Generate content in structured Markdown format, including appropriate headings, paragraphs, and formatting.`

const defaultTask = `Tell me about Wukong. First find the relevant information in the context I gave you,
then pick a film from https://movie.douban.com/chart and, based on its title and synopsis, write a story about her.
Save the film name, the story and her basic information to wukong.md as a well formatted markdown file.`

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Models: ModelsConfig{
			Embedding: "text-embedding-3-small",
			LLM:       "gpt-4o-mini",
			Provider:  "openai",
		},
		FS: FSConfig{
			OutputDir:    "./output",
			KnowledgeDir: "./knowledge",
		},
		Task: TaskConfig{
			Description: defaultTask,
		},
		Prompt: defaultPrompt,
		Retrieval: RetrievalConfig{
			TopK:        3,
			Concurrency: 4,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
		},
		ToolProviders: []ToolProviderConfig{
			{
				Name:    "mcp-server-fetch",
				Command: "uvx",
				Args:    []string{"mcp-server-fetch"},
			},
			{
				Name:       "mcp-server-file",
				Command:    "npx",
				Args:       []string{"-y", "@modelcontextprotocol/server-filesystem", OutputDirPlaceholder},
				LocalTools: []string{"writeOutput", "writeFile"},
			},
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			Redaction: true,
		},
	}
}

// Resolve fills derived values: embedding credentials fall back to the OpenAI
// ones, directories become absolute and provider args get the output directory.
func (c *Config) Resolve() error {
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = c.OpenAI.APIKey
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = c.OpenAI.BaseURL
	}

	var err error
	if c.FS.OutputDir != "" {
		if c.FS.OutputDir, err = filepath.Abs(c.FS.OutputDir); err != nil {
			return fmt.Errorf("failed to resolve output directory: %w", err)
		}
	}
	if c.FS.KnowledgeDir != "" {
		if c.FS.KnowledgeDir, err = filepath.Abs(c.FS.KnowledgeDir); err != nil {
			return fmt.Errorf("failed to resolve knowledge directory: %w", err)
		}
	}

	for i := range c.ToolProviders {
		args := make([]string, len(c.ToolProviders[i].Args))
		for j, arg := range c.ToolProviders[i].Args {
			args[j] = strings.ReplaceAll(arg, OutputDirPlaceholder, c.FS.OutputDir)
		}
		c.ToolProviders[i].Args = args
	}

	return nil
}

// ChatEndpoint returns the credentials for the configured chat provider
func (c *Config) ChatEndpoint() EndpointConfig {
	if c.Models.Provider == "anthropic" {
		return c.Anthropic
	}
	return c.OpenAI
}
