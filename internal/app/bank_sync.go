package app

import (
	"context"
	"log"
	"sort"
	"sync"

	"quizbank-service/internal/domain"
)

// QuestionBankSync keeps a local materialized view of the remote
// question collection. Every change event triggers a rebuild of the
// entire mapping from a fresh snapshot; there is no incremental
// patching.
type QuestionBankSync struct {
	store   QuestionStore
	changes ChangeNotifier

	mu   sync.RWMutex
	view map[string]domain.Question
}

func NewQuestionBankSync(store QuestionStore, changes ChangeNotifier) *QuestionBankSync {
	return &QuestionBankSync{
		store:   store,
		changes: changes,
		view:    map[string]domain.Question{},
	}
}

// Subscribe opens one long-lived subscription. onUpdate receives a
// complete snapshot after the initial load and after every change
// event. The returned cancel func must be invoked exactly once on
// teardown; it is guarded so a second call is a no-op rather than a
// panic. A failed rebuild keeps the previous view (no reconnect or
// backoff policy is defined for the change channel).
func (s *QuestionBankSync) Subscribe(ctx context.Context, onUpdate func(map[string]domain.Question)) (func(), error) {
	events, stop, err := s.changes.Changes(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.rebuild(ctx, onUpdate); err != nil {
		stop()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range events {
			if err := s.rebuild(ctx, onUpdate); err != nil {
				log.Printf("question bank rebuild failed, keeping previous view: %v", err)
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			stop()
			<-done
		})
	}
	return cancel, nil
}

func (s *QuestionBankSync) rebuild(ctx context.Context, onUpdate func(map[string]domain.Question)) error {
	snapshot, err := s.store.LoadAll(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.view = snapshot
	s.mu.Unlock()

	if onUpdate != nil {
		onUpdate(s.View())
	}
	return nil
}

// View returns a copy of the current mapping; callers may read it
// freely without racing later rebuilds.
func (s *QuestionBankSync) View() map[string]domain.Question {
	s.mu.RLock()
	defer s.mu.RUnlock()
	view := make(map[string]domain.Question, len(s.view))
	for id, q := range s.view {
		view[id] = q
	}
	return view
}

// Subjects returns the sorted distinct subject values in the current
// view, empty values excluded. Computed fresh on every call.
func (s *QuestionBankSync) Subjects() []string {
	return s.distinct(func(q domain.Question) string { return q.Subject })
}

// Difficulties returns the sorted distinct difficulty values in the
// current view, empty values excluded.
func (s *QuestionBankSync) Difficulties() []string {
	return s.distinct(func(q domain.Question) string { return q.Difficulty })
}

func (s *QuestionBankSync) distinct(key func(domain.Question) string) []string {
	s.mu.RLock()
	seen := make(map[string]struct{}, len(s.view))
	for _, q := range s.view {
		if v := key(q); v != "" {
			seen[v] = struct{}{}
		}
	}
	s.mu.RUnlock()

	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}
