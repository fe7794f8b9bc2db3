package aio

import "sync"

// sessionRegistry tracks the live sessions of a service by id.
type sessionRegistry struct {
	sync.RWMutex
	sessions map[uint64]*IoSession
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{
		sessions: make(map[uint64]*IoSession),
	}
}

func (r *sessionRegistry) Add(s *IoSession) {
	r.Lock()
	r.sessions[s.Id()] = s
	r.Unlock()
}

func (r *sessionRegistry) Remove(s *IoSession) {
	r.Lock()
	if cur, ok := r.sessions[s.Id()]; ok && cur == s {
		delete(r.sessions, s.Id())
	}
	r.Unlock()
}

func (r *sessionRegistry) Get(id uint64) (s *IoSession) {
	r.RLock()
	s = r.sessions[id]
	r.RUnlock()
	return
}

func (r *sessionRegistry) Len() (n int) {
	r.RLock()
	n = len(r.sessions)
	r.RUnlock()
	return
}

// Snapshot returns the sessions registered at the time of the call.
func (r *sessionRegistry) Snapshot() []*IoSession {
	r.RLock()
	list := make([]*IoSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.RUnlock()
	return list
}
