package persistence

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// LocalMessageLock is the single-process fallback for MessageLock.
type LocalMessageLock struct {
	mu   sync.Mutex
	held map[string]string
}

func NewLocalMessageLock() *LocalMessageLock {
	return &LocalMessageLock{held: map[string]string{}}
}

func (l *LocalMessageLock) Acquire(_ context.Context, messageID string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[messageID]; ok {
		return "", false, nil
	}
	owner := uuid.NewString()
	l.held[messageID] = owner
	return owner, true, nil
}

func (l *LocalMessageLock) Release(_ context.Context, messageID, owner string) error {
	l.mu.Lock()
	if l.held[messageID] == owner {
		delete(l.held, messageID)
	}
	l.mu.Unlock()
	return nil
}
