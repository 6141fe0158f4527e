package api

import (
	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"sync"
)

type session struct {
	pid *actor.PID
}

// sessionsCache maps session ids to their actors.
// todo persist sessions so they survive a restart
type sessionsCache struct {
	mu  sync.RWMutex
	ids map[uuid.UUID]session
}

func newSessionsCache() *sessionsCache {
	return &sessionsCache{
		ids: map[uuid.UUID]session{},
	}
}

func (s *sessionsCache) remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}

func (s *sessionsCache) add(id uuid.UUID, sess session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = sess
}

func (s *sessionsCache) get(id uuid.UUID) (session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.ids[id]
	return sess, ok
}

func (s *sessionsCache) all() []*actor.PID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]*actor.PID, 0, len(s.ids))
	for _, sess := range s.ids {
		res = append(res, sess.pid)
	}
	return res
}
