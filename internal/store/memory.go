package store

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"ragconsole/internal/conversation"
)

// SessionStore keeps one conversation per browser session and tenant. Idle
// sessions expire after ttl; every lookup extends the deadline.
type SessionStore struct {
	mu    sync.Mutex
	cache *cache.Cache
	ttl   time.Duration
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SessionStore{
		cache: cache.New(ttl, ttl/2),
		ttl:   ttl,
	}
}

func sessionKey(sessionID, tenantID string) string {
	return sessionID + "|" + tenantID
}

// GetOrCreate returns the live session for the pair, calling create only when
// there is none.
func (s *SessionStore) GetOrCreate(sessionID, tenantID string, create func() *conversation.Session) *conversation.Session {
	key := sessionKey(sessionID, tenantID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if x, found := s.cache.Get(key); found {
		sess := x.(*conversation.Session)
		s.cache.Set(key, sess, cache.DefaultExpiration)
		return sess
	}
	sess := create()
	s.cache.Set(key, sess, cache.DefaultExpiration)
	return sess
}

func (s *SessionStore) Get(sessionID, tenantID string) (*conversation.Session, bool) {
	if x, found := s.cache.Get(sessionKey(sessionID, tenantID)); found {
		return x.(*conversation.Session), true
	}
	return nil, false
}

func (s *SessionStore) Delete(sessionID, tenantID string) {
	s.cache.Delete(sessionKey(sessionID, tenantID))
}

func (s *SessionStore) Len() int {
	return s.cache.ItemCount()
}
