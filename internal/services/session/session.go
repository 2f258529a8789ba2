package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"dualinbox/internal/domain"
)

// Session is one live DM client for an address together with its most
// recently synced conversation list.
type Session struct {
	addr   domain.Address
	client domain.DMClient

	mu     sync.RWMutex
	convs  []domain.Conversation
	synced time.Time
}

func newSession(addr domain.Address, client domain.DMClient) *Session {
	return &Session{addr: addr, client: client}
}

// Address returns the checksummed address the session belongs to.
func (s *Session) Address() domain.Address { return s.addr }

// Client returns the underlying protocol client.
func (s *Session) Client() domain.DMClient { return s.client }

// Sync refreshes the cached conversation list from the network.
func (s *Session) Sync(ctx context.Context) error {
	convs, err := s.client.Conversations(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs = convs
	s.synced = time.Now()
	return nil
}

// Conversations returns the cached conversation list, syncing first if the
// session has never synced.
func (s *Session) Conversations(ctx context.Context) ([]domain.Conversation, error) {
	s.mu.RLock()
	synced := !s.synced.IsZero()
	convs := slices.Clone(s.convs)
	s.mu.RUnlock()
	if synced {
		return convs, nil
	}
	if err := s.Sync(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.convs), nil
}

// Remember adds conv to the cached list if its topic is not already there.
func (s *Session) Remember(conv domain.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.convs {
		if c.Topic() == conv.Topic() {
			return
		}
	}
	s.convs = append(s.convs, conv)
}

// LastSync returns when the conversation list was last refreshed.
func (s *Session) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.synced
}
