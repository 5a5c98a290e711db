package knowledge

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Document is one knowledge base file
type Document struct {
	Name    string
	Path    string
	Content string
}

// EnsureDirectory creates dir (and parents) when it does not exist
func EnsureDirectory(dir string) error {
	if dir == "" {
		return fmt.Errorf("directory path is empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// LoadDirectory reads every regular, non-hidden file directly under dir.
// Documents are returned sorted by file name; subdirectories are not walked.
func LoadDirectory(dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge directory: %w", err)
	}

	docs := make([]Document, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || !entry.Type().IsRegular() {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}

		docs = append(docs, Document{
			Name:    name,
			Path:    path,
			Content: string(data),
		})
	}

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].Name < docs[j].Name
	})

	log.Debug().
		Str("dir", dir).
		Int("documents", len(docs)).
		Msg("Loaded knowledge base")

	return docs, nil
}

// Contents returns the text of each document, in order
func Contents(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Content
	}
	return out
}
