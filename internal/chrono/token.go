package chrono

import "sync"

// tokenStore holds the single live bearer token for the process. A refresh
// replaces the value wholesale; concurrent refreshes overwrite each other
// (last writer wins) and both results are valid tokens.
type tokenStore struct {
	mu    sync.RWMutex
	value string
}

func newTokenStore(initial string) *tokenStore {
	return &tokenStore{value: initial}
}

func (s *tokenStore) get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

func (s *tokenStore) set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = token
}
