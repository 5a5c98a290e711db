package toolchannel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// RouteKind tags how an invocation is dispatched
type RouteKind int

const (
	// RemoteCall goes through the transport with retry
	RemoteCall RouteKind = iota
	// LocalFastPath is handled in-process without a transport round-trip
	LocalFastPath
)

func (k RouteKind) String() string {
	if k == LocalFastPath {
		return "local"
	}
	return "remote"
}

// Route is the resolved dispatch for one tool name
type Route struct {
	Kind RouteKind
	Tool string
}

type localHandler func(ctx context.Context, outputRoot string, params map[string]any) (*ToolResult, error)

type localTool struct {
	descriptor ToolDescriptor
	handler    localHandler
}

var writeSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"path":    map[string]any{"type": "string", "minLength": 1},
		"content": map[string]any{"type": "string"},
	},
	"required": []any{"path", "content"},
}

// localTools is the static route table of in-process tools.
// writeFile is kept as an alias of writeOutput.
var localTools = map[string]localTool{
	"writeOutput": {
		descriptor: ToolDescriptor{
			Name:        "writeOutput",
			Description: "Write content to a file, creating parent directories",
			InputSchema: writeSchema,
		},
		handler: writeOutput,
	},
	"writeFile": {
		descriptor: ToolDescriptor{
			Name:        "writeFile",
			Description: "Write content to a file",
			InputSchema: writeSchema,
		},
		handler: writeOutput,
	},
}

// OutputTools lists the tool names that persist a result
var OutputTools = []string{"writeOutput", "writeFile"}

// IsLocalTool reports whether name has an in-process implementation
func IsLocalTool(name string) bool {
	_, ok := localTools[name]
	return ok
}

// ResolvePath maps path under outputRoot when it is relative.
// Relative paths may not climb out of the root.
func ResolvePath(outputRoot, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is empty")
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	if !filepath.IsLocal(path) {
		return "", fmt.Errorf("path %q escapes the output directory", path)
	}
	if outputRoot == "" {
		return filepath.Clean(path), nil
	}
	return filepath.Join(outputRoot, path), nil
}

func writeOutput(ctx context.Context, outputRoot string, params map[string]any) (*ToolResult, error) {
	rawPath, _ := params["path"].(string)
	content, _ := params["content"].(string)

	path, err := ResolvePath(outputRoot, rawPath)
	if err != nil {
		return nil, &InvalidParametersError{Tool: "writeOutput", Reasons: []string{err.Error()}}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return nil, fmt.Errorf("failed to write output file: %w", err)
	}

	return &ToolResult{
		Route: LocalFastPath,
		Path:  path,
		Content: []ContentBlock{{
			Type: "text",
			Text: fmt.Sprintf("wrote %d bytes to %s", len(content), path),
		}},
	}, nil
}
