package observability

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sample returns the value of the series name{labels}, or 0 when absent
func sample(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := Registry().Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if matchLabels(metric, labels) {
				switch {
				case metric.GetCounter() != nil:
					return metric.GetCounter().GetValue()
				case metric.GetGauge() != nil:
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	return 0
}

func matchLabels(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.GetLabel()) != len(labels) {
		return false
	}
	for _, pair := range metric.GetLabel() {
		if labels[pair.GetName()] != pair.GetValue() {
			return false
		}
	}
	return true
}

func TestRecorders(t *testing.T) {
	EnsureRegistered()

	t.Run("should count tool invocations by route and status", func(t *testing.T) {
		labels := map[string]string{"channel": "file", "tool": "writeOutput", "route": "local", "status": "success"}
		before := sample(t, "ragent_tool_invocations_total", labels)
		RecordToolInvocation("file", "writeOutput", "local", 5*time.Millisecond, true)
		assert.Equal(t, before+1, sample(t, "ragent_tool_invocations_total", labels))
	})

	t.Run("should label failed runs with their stage", func(t *testing.T) {
		RecordRun("parse", time.Second, false)
		assert.GreaterOrEqual(t, sample(t, "ragent_runs_total", map[string]string{"stage": "parse", "status": "error"}), 1.0)
	})

	t.Run("should track the index size", func(t *testing.T) {
		SetIndexDocuments(7)
		assert.Equal(t, 7.0, sample(t, "ragent_index_documents", map[string]string{}))
	})

	t.Run("should count retries per operation", func(t *testing.T) {
		RecordRetry("fetch", "initialize")
		RecordRetry("fetch", "initialize")
		assert.GreaterOrEqual(t, sample(t, "ragent_retry_attempts_total", map[string]string{"channel": "fetch", "op": "initialize"}), 2.0)
	})

	t.Run("should record the remaining series without panicking", func(t *testing.T) {
		RecordEmbedding(10*time.Millisecond, true)
		RecordRetrieval(20 * time.Millisecond)
		RecordChat("openai", time.Second, false)
		RecordChannelInit("fetch", true)

		families, err := Registry().Gather()
		require.NoError(t, err)
		assert.NotEmpty(t, families)
	})
}

func TestWriteTextfile(t *testing.T) {
	RecordEmbedding(time.Millisecond, true)

	path := filepath.Join(t.TempDir(), "ragent.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ragent_embedding_requests_total")
}
