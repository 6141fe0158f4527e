package buffer

import (
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestMemories(t *testing.T) {
	m := New()
	m.Add(Memory{Kind: "plan", Question: "q1", Answer: "a1"})
	m.Add(Memory{Kind: "decision", Question: "q2", Answer: "a2"})

	assert.Equal(t, 2, m.Len())
	last := m.Last(1)
	assert.Equal(t, "q2", last[0].Question)
	assert.False(t, last[0].Time.IsZero())
	assert.Len(t, m.Last(10), 2)
}
