package llm

import (
	"context"
	"errors"
	"sync"
)

var ErrScriptExhausted = errors.New("scripted model has no replies left")

// Scripted replays canned replies in order. It records every prompt it is given.
type Scripted struct {
	mu      sync.Mutex
	replies []Reply
	prompts []string
	repeat  bool
}

type Reply struct {
	Text string
	Err  error
}

func NewScripted(replies ...string) *Scripted {
	s := &Scripted{}
	for _, r := range replies {
		s.replies = append(s.replies, Reply{Text: r})
	}
	return s
}

// Repeat makes the last reply answer every further call.
func (s *Scripted) Repeat() *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repeat = true
	return s
}

func (s *Scripted) Push(r Reply) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, r)
	return s
}

func (s *Scripted) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if len(s.replies) == 0 {
		return "", ErrScriptExhausted
	}
	r := s.replies[0]
	if len(s.replies) > 1 || !s.repeat {
		s.replies = s.replies[1:]
	}
	return r.Text, r.Err
}

func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}
