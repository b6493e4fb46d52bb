package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"jaqpot/backend/go/internal/models"

	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestWithDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithOutput("task_worker", &buf)

	base.WithField("task_id", "abc").Info("child")
	base.Info("parent")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	require.Equal(t, "abc", lines[0]["task_id"])
	require.NotContains(t, lines[1], "task_id")
	require.Equal(t, "parent", lines[1]["message"])
	require.Equal(t, "task_worker", lines[1]["service_name"])
}

func TestWithErrorUsesErrorInfo(t *testing.T) {
	var buf bytes.Buffer
	NewWithOutput("task_service", &buf).
		WithError(models.NewErrorInfo(errors.New("boom"))).
		Error("failed")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	require.Equal(t, "error", lines[0]["level"])
	errField, ok := lines[0]["error"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "boom", errField["message"])
}
