package session

import "sync"

// Store holds the guild to session mapping. It is owned by a Manager and
// passed in at construction.
type Store struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewStore creates an empty session store
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for a guild, or nil
func (st *Store) Get(guildID string) *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sessions[guildID]
}

// getOrCreate returns the existing session for a guild or stores the one
// built by create. The boolean reports whether create was used.
func (st *Store) getOrCreate(guildID string, create func() *Session) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.sessions[guildID]; ok {
		return s, false
	}
	s := create()
	st.sessions[guildID] = s
	return s, true
}

// remove deletes the mapping only if it still points at s
func (st *Store) remove(guildID string, s *Session) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.sessions[guildID] != s {
		return false
	}
	delete(st.sessions, guildID)
	return true
}

// Len returns the number of active sessions
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// All returns the active sessions
func (st *Store) All() []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()

	result := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		result = append(result, s)
	}
	return result
}
