package payload

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relaylogs/agent/internal/logline"
)

func TestFromLinesGroupsBySourcePreservingFirstSeenOrder(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	lines := []*logline.LogLine{
		{SourceName: "b", Line: "b1", Timestamp: ts},
		{SourceName: "a", Line: "a1", Timestamp: ts},
		{SourceName: "b", Line: "b2", Timestamp: ts},
	}

	p := FromLines("agent1", lines)

	require.Equal(t, "agent1", p.AgentName)
	require.Len(t, p.Sources, 2)
	require.Equal(t, "b", p.Sources[0].SourceName)
	require.Equal(t, []Logs{{Data: "b1", Timestamp: ts}, {Data: "b2", Timestamp: ts}}, p.Sources[0].Logs)
	require.Equal(t, "a", p.Sources[1].SourceName)
	require.Equal(t, []Logs{{Data: "a1", Timestamp: ts}}, p.Sources[1].Logs)
}

func TestMarshalUsesCamelCaseFieldNames(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := Payload{
		AgentName: "agent1",
		Sources: []Source{
			{SourceName: "app1", Logs: []Logs{{Data: "hello", Timestamp: ts}}},
		},
	}

	raw, err := Marshal(p)
	require.NoError(t, err)

	var generic map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &generic))
	require.Equal(t, "agent1", generic["agentName"])

	sources, ok := generic["sources"].([]interface{})
	require.True(t, ok)
	require.Len(t, sources, 1)

	src, ok := sources[0].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "app1", src["sourceName"])

	logs, ok := src["logs"].([]interface{})
	require.True(t, ok)
	require.Len(t, logs, 1)

	entry, ok := logs[0].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "hello", entry["data"])
	require.Contains(t, entry, "timestamp")
}

func TestFromLinesEmptyBatch(t *testing.T) {
	p := FromLines("agent1", nil)
	require.Equal(t, "agent1", p.AgentName)
	require.Empty(t, p.Sources)
}
