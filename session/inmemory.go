package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/pagesift/models"
)

type memSession struct {
	mu         sync.Mutex
	turns      []models.ConversationTurn
	analysis   *models.SiteAnalysis
	createdAt  time.Time
	lastAccess time.Time
}

// InMemory is the default session store: a concurrency-safe keyed map with a
// TTL janitor. Sessions expire a fixed idle time after their last access.
type InMemory struct {
	mu       sync.RWMutex
	sessions map[string]*memSession
	ttl      time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

func NewInMemory(ttl time.Duration) *InMemory {
	if ttl <= 0 {
		ttl = time.Hour
	}
	s := &InMemory{
		sessions: map[string]*memSession{},
		ttl:      ttl,
		stop:     make(chan struct{}),
	}
	go s.janitor()
	return s
}

func (s *InMemory) janitor() {
	ticker := time.NewTicker(s.ttl / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-s.ttl)
			s.mu.Lock()
			for id, sess := range s.sessions {
				sess.mu.Lock()
				expired := sess.lastAccess.Before(cutoff)
				sess.mu.Unlock()
				if expired {
					delete(s.sessions, id)
				}
			}
			s.mu.Unlock()
		case <-s.stop:
			return
		}
	}
}

func (s *InMemory) get(id string) (*memSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

func (s *InMemory) Create(ctx context.Context) (string, error) {
	id := uuid.NewString()
	now := time.Now()
	s.mu.Lock()
	s.sessions[id] = &memSession{createdAt: now, lastAccess: now}
	s.mu.Unlock()
	return id, nil
}

func (s *InMemory) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *InMemory) AppendTurn(ctx context.Context, id string, turn models.ConversationTurn) error {
	sess, err := s.get(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.turns = append(sess.turns, turn)
	sess.lastAccess = time.Now()
	return nil
}

func (s *InMemory) History(ctx context.Context, id string) ([]models.ConversationTurn, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastAccess = time.Now()
	out := make([]models.ConversationTurn, len(sess.turns))
	copy(out, sess.turns)
	return out, nil
}

func (s *InMemory) Analysis(ctx context.Context, id string) (*models.SiteAnalysis, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastAccess = time.Now()
	if sess.analysis == nil {
		return nil, nil
	}
	cp := *sess.analysis
	return &cp, nil
}

func (s *InMemory) SetAnalysis(ctx context.Context, id string, analysis models.SiteAnalysis) error {
	sess, err := s.get(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.analysis = &analysis
	sess.lastAccess = time.Now()
	return nil
}

func (s *InMemory) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}
