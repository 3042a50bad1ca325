// Package memory provides in-process implementations of the question
// store and change feed, used by tests and when no Postgres/Redis is
// configured.
package memory

import (
	"context"
	"sync"

	"quizbank-service/internal/domain"
)

// QuestionStore is a map-backed document store with an in-process
// change feed. CommitBatch is all-or-nothing per call, matching the
// remote store's per-commit atomicity.
type QuestionStore struct {
	mu        sync.RWMutex
	questions map[string]domain.Question
	listeners map[chan struct{}]struct{}
}

func NewQuestionStore() *QuestionStore {
	return &QuestionStore{
		questions: make(map[string]domain.Question),
		listeners: make(map[chan struct{}]struct{}),
	}
}

func (s *QuestionStore) CommitBatch(_ context.Context, records []domain.Question) error {
	s.mu.Lock()
	for _, record := range records {
		s.questions[record.ID] = record
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *QuestionStore) LoadAll(_ context.Context) (map[string]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make(map[string]domain.Question, len(s.questions))
	for id, q := range s.questions {
		snapshot[id] = q
	}
	return snapshot, nil
}

// Delete removes a document and fires the change feed, mirroring a
// remote deletion reaching subscribers.
func (s *QuestionStore) Delete(_ context.Context, id string) {
	s.mu.Lock()
	delete(s.questions, id)
	s.mu.Unlock()
	s.notify()
}

// Changes implements app.ChangeNotifier over an in-process channel.
func (s *QuestionStore) Changes(_ context.Context) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.listeners[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.listeners[ch]; ok {
			delete(s.listeners, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel, nil
}

func (s *QuestionStore) notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for ch := range s.listeners {
		select {
		case ch <- struct{}{}:
		default:
			// an event is already pending; one rebuild covers both
		}
	}
}
