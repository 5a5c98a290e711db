package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrieveCommand(t *testing.T) {
	t.Run("should rank the closest document first", func(t *testing.T) {
		srv := newModelServer(t, "{}")
		dir := setupWorkspace(t, srv)
		metrics := filepath.Join(dir, "metrics.prom")

		out, _, err := executeCommand(t, "retrieve", "--topk", "2", "--metrics-file", metrics,
			"Write a story about the Monkey King.")
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 2)
		assert.True(t, strings.HasPrefix(lines[0], "1. "))
		assert.Contains(t, lines[0], "Sun Wukong is the Monkey King.")

		data, err := os.ReadFile(metrics)
		require.NoError(t, err)
		assert.Contains(t, string(data), "ragent_embedding_requests_total")
	})

	t.Run("should require a query", func(t *testing.T) {
		_, _, err := executeCommand(t, "retrieve")
		assert.Error(t, err)
	})
}
