package buffer

import (
	"sync"
	"time"
)

// Memories is the prompt/answer transcript of one run.
type Memories struct {
	mu    sync.Mutex
	Items []Memory `json:"memories"`
}

type Memory struct {
	Kind     string    `json:"kind"`
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Time     time.Time `json:"time"`
}

func New() *Memories {
	return &Memories{Items: make([]Memory, 0)}
}

func (m *Memories) Add(m2 Memory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m2.Time.IsZero() {
		m2.Time = time.Now()
	}
	m.Items = append(m.Items, m2)
}

func (m *Memories) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Items)
}

// Last returns a copy of the newest n memories.
func (m *Memories) Last(n int) []Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || n > len(m.Items) {
		n = len(m.Items)
	}
	res := make([]Memory, n)
	copy(res, m.Items[len(m.Items)-n:])
	return res
}
