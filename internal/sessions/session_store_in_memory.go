package sessions

import (
	"context"
	"sync"

	"github.com/medcart/storefront-gateway/internal/gwerrors"
)

type InMemorySessionStore struct {
	lock     *sync.RWMutex
	sessions map[string]Session
}

func (db *InMemorySessionStore) GetSession(ctx context.Context, id string) (Session, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()
	session, found := db.sessions[id]
	if !found {
		return Session{}, gwerrors.ErrSessionNotFound
	}
	return session, nil
}

func (db *InMemorySessionStore) SetSession(ctx context.Context, session Session) error {
	db.lock.Lock()
	defer db.lock.Unlock()
	db.sessions[session.ID] = session
	return nil
}

func (db *InMemorySessionStore) RemoveSession(ctx context.Context, id string) error {
	db.lock.Lock()
	defer db.lock.Unlock()
	delete(db.sessions, id)
	return nil
}

// RemoveExpired deletes the expired sessions and returns them
func (db *InMemorySessionStore) RemoveExpired(ctx context.Context) []Session {
	db.lock.Lock()
	defer db.lock.Unlock()
	expired := []Session{}
	for id, session := range db.sessions {
		if session.Expired() {
			expired = append(expired, session)
			delete(db.sessions, id)
		}
	}
	return expired
}

func (db *InMemorySessionStore) Len() int {
	db.lock.RLock()
	defer db.lock.RUnlock()
	return len(db.sessions)
}

func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{lock: &sync.RWMutex{}, sessions: map[string]Session{}}
}
