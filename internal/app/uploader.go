package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"quizbank-service/internal/domain"
)

// maxChunkSize stays under the store's ~500 atomic-writes-per-commit
// ceiling with margin.
const maxChunkSize = 400

// UploadError reports a chunk commit that failed partway through a
// multi-chunk upload. PartialCount records already committed stay
// persisted; there is no rollback across chunks and no tracking of
// which drafts remain.
type UploadError struct {
	PartialCount int
	Err          error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed after %d records: %v", e.PartialCount, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// BatchUploader persists validated drafts in bounded, sequential,
// per-chunk-atomic commits.
type BatchUploader struct {
	store QuestionStore
	newID func() string
	clock func() time.Time
}

func NewBatchUploader(store QuestionStore) *BatchUploader {
	return &BatchUploader{
		store: store,
		newID: uuid.NewString,
		clock: time.Now,
	}
}

// NewBatchUploaderWithClock is test-only for deterministic ids and timestamps.
func NewBatchUploaderWithClock(store QuestionStore, newID func() string, clock func() time.Time) *BatchUploader {
	return &BatchUploader{store: store, newID: newID, clock: clock}
}

// Upload commits drafts in chunks of at most maxChunkSize, one chunk at
// a time, each awaited before the next. Ids, creation timestamps and
// the uploader identity are attached here. On a failed chunk it stops
// and returns an *UploadError carrying the count already committed; on
// full success it returns the total count.
func (u *BatchUploader) Upload(ctx context.Context, drafts []domain.QuestionDraft, uploaderID string) (int, error) {
	if len(drafts) == 0 {
		return 0, domain.ErrEmptyUpload
	}

	uploaded := 0
	for start := 0; start < len(drafts); start += maxChunkSize {
		end := start + maxChunkSize
		if end > len(drafts) {
			end = len(drafts)
		}
		chunk := drafts[start:end]

		records := make([]domain.Question, 0, len(chunk))
		now := u.clock()
		for _, draft := range chunk {
			records = append(records, domain.Question{
				ID:                 u.newID(),
				Subject:            draft.Subject,
				Difficulty:         draft.Difficulty,
				Question:           draft.Question,
				Options:            append([]string(nil), draft.Options...),
				CorrectAnswerIndex: draft.CorrectAnswerIndex,
				CreatedAt:          now,
				AuthorID:           uploaderID,
			})
		}

		if err := u.store.CommitBatch(ctx, records); err != nil {
			return uploaded, &UploadError{PartialCount: uploaded, Err: err}
		}
		uploaded += len(records)
	}
	return uploaded, nil
}
