package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go-autoagent/pkg/models"
	"testing"
)

func TestMultiAndChan(t *testing.T) {
	c := NewChan(1)
	var seen []Type
	sink := Multi(c, nil, Func(func(e Event) { seen = append(seen, e.Type) }))

	sink.Publish(Event{Type: ThinkStarted})
	sink.Publish(Event{Type: ActStarted}) // dropped by the full channel
	c.Close()
	c.Publish(Event{Type: Observed})

	got := make([]Type, 0)
	for e := range c.Events() {
		got = append(got, e.Type)
	}
	assert.Equal(t, []Type{ThinkStarted}, got)
	assert.Equal(t, []Type{ThinkStarted, ActStarted}, seen)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(zerolog.New(&buf))

	s.Publish(Event{Type: RunCompleted, RunID: "r1", Iteration: 2, Outcome: models.OutcomeCompleted, Message: "done"})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "run_completed", line["event"])
	assert.Equal(t, "completed", line["outcome"])
	assert.Equal(t, "info", line["level"])
}

type recorder struct {
	subjects []string
	bodies   [][]byte
	err      error
}

func (r *recorder) Publish(subject string, data []byte) error {
	r.subjects = append(r.subjects, subject)
	r.bodies = append(r.bodies, data)
	return r.err
}

func TestNATSSink(t *testing.T) {
	rec := &recorder{}
	s := newNATSSink(rec, "agents.")

	s.Publish(Event{Type: Observed, RunID: "abc", Action: models.ToolCall{Tool: "read_file"}})
	require.Len(t, rec.subjects, 1)
	assert.Equal(t, "agents.abc.observed", rec.subjects[0])

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.bodies[0], &body))
	assert.Equal(t, "tool_call", body["action"].(map[string]any)["type"])

	rec.err = errors.New("down")
	s.Publish(Event{Type: RunFailed})
	assert.Equal(t, "agents.none.run_failed", rec.subjects[1])
	assert.NoError(t, newNATSSink(rec, "").Close())
}
