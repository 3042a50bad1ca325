// Package postgres persists the question collection. Each CommitBatch
// is one transaction, matching the remote store's per-commit atomicity.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"golang.org/x/sync/singleflight"

	"quizbank-service/internal/domain"
)

// ChangePublisher announces a collection change after a commit lands
// (e.g. redis pub/sub). Publishing is best-effort: a lost announcement
// only delays view rebuilds until the next one.
type ChangePublisher interface {
	Publish(ctx context.Context) error
}

// QuestionStore implements app.QuestionStore for one tenant-scoped
// collection path. It performs no schema validation; ingestion is the
// sole gate.
type QuestionStore struct {
	pool      *pgxpool.Pool
	path      string
	publisher ChangePublisher
	sf        singleflight.Group
}

// NewQuestionStore scopes the store to the given collection path.
// publisher may be nil when no change stream is wired.
func NewQuestionStore(pool *pgxpool.Pool, collectionPath string, publisher ChangePublisher) *QuestionStore {
	return &QuestionStore{pool: pool, path: collectionPath, publisher: publisher}
}

func (s *QuestionStore) CommitBatch(ctx context.Context, records []domain.Question) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, record := range records {
		options, err := json.Marshal(record.Options)
		if err != nil {
			return fmt.Errorf("marshal options: %w", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO questions (id, collection_path, subject, difficulty, question, options, correct_answer_index, created_at, author_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (id) DO UPDATE
			 SET subject=EXCLUDED.subject, difficulty=EXCLUDED.difficulty, question=EXCLUDED.question,
			     options=EXCLUDED.options, correct_answer_index=EXCLUDED.correct_answer_index`,
			record.ID, s.path, record.Subject, record.Difficulty, record.Question,
			options, record.CorrectAnswerIndex, record.CreatedAt, record.AuthorID,
		)
		if err != nil {
			return fmt.Errorf("insert question %s: %w", record.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	if s.publisher != nil {
		_ = s.publisher.Publish(ctx)
	}
	return nil
}

// LoadAll reads the full collection snapshot. Concurrent callers share
// one query via singleflight; every change event triggers a full
// reload, so coalescing keeps rebuild storms off the database.
func (s *QuestionStore) LoadAll(ctx context.Context) (map[string]domain.Question, error) {
	result, err, _ := s.sf.Do(s.path, func() (interface{}, error) {
		return s.loadAll(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]domain.Question), nil
}

func (s *QuestionStore) loadAll(ctx context.Context) (map[string]domain.Question, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, subject, difficulty, question, options, correct_answer_index, created_at, author_id
		 FROM questions WHERE collection_path=$1`, s.path)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	snapshot := make(map[string]domain.Question)
	for rows.Next() {
		var q domain.Question
		var options []byte
		if err := rows.Scan(&q.ID, &q.Subject, &q.Difficulty, &q.Question, &options, &q.CorrectAnswerIndex, &q.CreatedAt, &q.AuthorID); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(options, &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options for %s: %w", q.ID, err)
		}
		snapshot[q.ID] = q
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return snapshot, nil
}
