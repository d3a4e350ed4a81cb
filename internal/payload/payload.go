// Package payload defines the wire shape posted to the configured end point
// and the grouping step that turns a flat batch of log lines into it.
// Adapted from original_source/src/sender/payload.rs.
package payload

import (
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/relaylogs/agent/internal/logline"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Logs is one log line ready for the wire, camelCase per §8.
type Logs struct {
	Data      string    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Source groups the Logs that belong to one source name.
type Source struct {
	SourceName string `json:"sourceName"`
	Logs       []Logs `json:"logs"`
}

// Payload is the full body of one dispatch attempt.
type Payload struct {
	AgentName string   `json:"agentName"`
	Sources   []Source `json:"sources"`
}

// FromLines groups a flat batch of LogLines by source name, in first-seen
// order, and wraps the result in a Payload stamped with agentName.
func FromLines(agentName string, lines []*logline.LogLine) Payload {
	order := make([]string, 0)
	bySource := make(map[string][]Logs)

	for _, l := range lines {
		if _, ok := bySource[l.SourceName]; !ok {
			order = append(order, l.SourceName)
		}
		bySource[l.SourceName] = append(bySource[l.SourceName], Logs{
			Data:      l.Line,
			Timestamp: l.Timestamp,
		})
	}

	sources := make([]Source, 0, len(order))
	for _, name := range order {
		sources = append(sources, Source{SourceName: name, Logs: bySource[name]})
	}

	return Payload{AgentName: agentName, Sources: sources}
}

// Marshal encodes p as the JSON body to send.
func Marshal(p Payload) ([]byte, error) {
	return json.Marshal(p)
}
