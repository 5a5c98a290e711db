package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// MissingFieldError reports a required configuration value that is empty
type MissingFieldError struct {
	Path string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", e.Path)
}

var knownProviders = map[string]bool{
	"openai":    true,
	"anthropic": true,
}

// Validate checks the configuration before any component is built.
// Required fields are walked recursively and reported by their dotted key path.
func (c *Config) Validate() error {
	if err := validateRequired(reflect.ValueOf(*c), nil); err != nil {
		return err
	}

	if !knownProviders[c.Models.Provider] {
		return fmt.Errorf("unknown chat provider %q (expected openai or anthropic)", c.Models.Provider)
	}

	if c.ChatEndpoint().APIKey == "" {
		return &MissingFieldError{Path: c.Models.Provider + ".api_key"}
	}
	if c.Embedding.APIKey == "" {
		return &MissingFieldError{Path: "embedding.api_key"}
	}

	if c.Retrieval.TopK <= 0 {
		return errors.New("retrieval.top_k must be greater than zero")
	}
	if c.Retrieval.Concurrency < 0 {
		return errors.New("retrieval.concurrency cannot be negative")
	}
	if c.Retry.MaxAttempts <= 0 {
		return errors.New("retry.max_attempts must be greater than zero")
	}
	if c.Retry.BaseDelay < 0 {
		return errors.New("retry.base_delay cannot be negative")
	}
	if c.Conversation.MaxHistory < 0 {
		return errors.New("conversation.max_history cannot be negative")
	}

	seen := make(map[string]bool, len(c.ToolProviders))
	for _, p := range c.ToolProviders {
		if seen[p.Name] {
			return fmt.Errorf("duplicate tool provider name %q", p.Name)
		}
		seen[p.Name] = true
	}

	return nil
}

func validateRequired(v reflect.Value, path []string) error {
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			key := strings.Split(field.Tag.Get("mapstructure"), ",")[0]
			if key == "" {
				key = strings.ToLower(field.Name)
			}
			fieldPath := append(append([]string{}, path...), key)

			fv := v.Field(i)
			if field.Tag.Get("required") == "true" && fv.Kind() == reflect.String && strings.TrimSpace(fv.String()) == "" {
				return &MissingFieldError{Path: strings.Join(fieldPath, ".")}
			}
			if err := validateRequired(fv, fieldPath); err != nil {
				return err
			}
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			if err := validateRequired(v.Index(i), append(append([]string{}, path...), strconv.Itoa(i))); err != nil {
				return err
			}
		}
	}
	return nil
}
