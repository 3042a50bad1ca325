package app_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"quizbank-service/internal/app"
	"quizbank-service/internal/domain"
)

type recordingStore struct {
	commits [][]domain.Question
	failOn  int // 1-based commit index to fail, 0 = never
}

func (s *recordingStore) CommitBatch(_ context.Context, records []domain.Question) error {
	if s.failOn > 0 && len(s.commits)+1 == s.failOn {
		return errors.New("store unavailable")
	}
	s.commits = append(s.commits, records)
	return nil
}

func (s *recordingStore) LoadAll(context.Context) (map[string]domain.Question, error) {
	return nil, nil
}

func TestUploadChunks(t *testing.T) {
	store := &recordingStore{}
	uploader := newDeterministicUploader(store)

	count, err := uploader.Upload(context.Background(), makeDrafts(950), "author-1")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if count != 950 {
		t.Fatalf("expected 950 uploaded, got %d", count)
	}
	if len(store.commits) != 3 {
		t.Fatalf("expected 3 commits, got %d", len(store.commits))
	}
	for i, want := range []int{400, 400, 150} {
		if len(store.commits[i]) != want {
			t.Fatalf("commit %d: expected %d records, got %d", i, want, len(store.commits[i]))
		}
	}
}

func TestUploadPartialFailure(t *testing.T) {
	store := &recordingStore{failOn: 2}
	uploader := newDeterministicUploader(store)

	count, err := uploader.Upload(context.Background(), makeDrafts(950), "author-1")
	if err == nil {
		t.Fatal("expected upload error")
	}
	var uploadErr *app.UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("expected *UploadError, got %T", err)
	}
	if uploadErr.PartialCount != 400 {
		t.Fatalf("expected partial count 400, got %d", uploadErr.PartialCount)
	}
	if count != 400 {
		t.Fatalf("expected 400 returned alongside the error, got %d", count)
	}
	if len(store.commits) != 1 {
		t.Fatalf("expected no commits after the failure, got %d", len(store.commits))
	}
}

func TestUploadStampsRecords(t *testing.T) {
	store := &recordingStore{}
	uploader := newDeterministicUploader(store)

	if _, err := uploader.Upload(context.Background(), makeDrafts(2), "author-9"); err != nil {
		t.Fatalf("upload: %v", err)
	}
	records := store.commits[0]
	if records[0].ID == "" || records[0].ID == records[1].ID {
		t.Fatalf("expected distinct non-empty ids, got %q and %q", records[0].ID, records[1].ID)
	}
	for _, r := range records {
		if r.AuthorID != "author-9" {
			t.Fatalf("expected author stamped, got %q", r.AuthorID)
		}
		if r.CreatedAt.IsZero() {
			t.Fatal("expected creation timestamp stamped")
		}
		if len(r.Options) != 4 {
			t.Fatalf("expected 4 options preserved, got %d", len(r.Options))
		}
	}
}

func TestUploadRejectsEmpty(t *testing.T) {
	uploader := app.NewBatchUploader(&recordingStore{})
	if _, err := uploader.Upload(context.Background(), nil, "author-1"); !errors.Is(err, domain.ErrEmptyUpload) {
		t.Fatalf("expected ErrEmptyUpload, got %v", err)
	}
}

func newDeterministicUploader(store app.QuestionStore) *app.BatchUploader {
	n := 0
	return app.NewBatchUploaderWithClock(store,
		func() string { n++; return fmt.Sprintf("id-%04d", n) },
		func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	)
}

func makeDrafts(n int) []domain.QuestionDraft {
	drafts := make([]domain.QuestionDraft, n)
	for i := range drafts {
		drafts[i] = domain.QuestionDraft{
			Subject:            "Math",
			Difficulty:         "Easy",
			Question:           fmt.Sprintf("Question %d?", i),
			Options:            []string{"a", "b", "c", "d"},
			CorrectAnswerIndex: i % 4,
		}
	}
	return drafts
}
