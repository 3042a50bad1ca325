package app

import (
	"context"

	"quizbank-service/internal/domain"
)

// QuestionStore abstracts the remote document store holding the
// question collection (Postgres, in-memory, etc).
type QuestionStore interface {
	// CommitBatch persists all records atomically: either every record
	// in the slice is durably written or none is.
	CommitBatch(ctx context.Context, records []domain.Question) error
	// LoadAll returns the full current collection keyed by id.
	LoadAll(ctx context.Context) (map[string]domain.Question, error)
}

// ChangeNotifier delivers a signal whenever anything in the question
// collection changes. Events carry no payload; consumers rebuild from
// a full snapshot.
type ChangeNotifier interface {
	// Changes opens the listener. The returned cancel func releases it;
	// failing to call it leaks the listener for the process lifetime.
	Changes(ctx context.Context) (<-chan struct{}, func(), error)
}
