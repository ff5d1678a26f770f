package analytics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opencensus.io/stats/view"
)

func TestLogFileCollector(t *testing.T) {
	file := filepath.Join(t.TempDir(), "analytics.log")
	require.NoError(t, InitDataCollector(DataCollectorConfig{FileName: file, CollectorType: LOG_FILE_DATA_COLLECTOR}))
	defer SetDataCollector(noopCollector{})

	RecordNodeExecuted("f", "c", "n1", "message")
	RecordFlowFailed("f", "c", "w", "gateway down")
	collector().(*LogFileDataCollector).Sync()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], `"nodeType":"message"`)
	require.Contains(t, lines[1], `"reason":"gateway down"`)
}

func TestMetricsViews(t *testing.T) {
	require.NoError(t, RegisterViews())
	defer UnregisterViews()
	RecordFlowCompleted("f", "c")
	RecordFlowCompleted("f", "d")
	rows, err := view.RetrieveData("chatflow/contexts_finished")
	require.NoError(t, err)
	var total int64
	for _, row := range rows {
		total += row.Data.(*view.CountData).Value
	}
	require.Equal(t, int64(2), total)
}
