package domain

import "errors"

var (
	// ErrInvalidState is returned when an exam operation is called outside
	// the state that permits it.
	ErrInvalidState = errors.New("exam session in invalid state for operation")
	// ErrEmptyUpload is returned when an upload is requested with no drafts.
	ErrEmptyUpload = errors.New("no drafts to upload")
	// ErrForbidden is returned when the principal lacks the conductor role.
	ErrForbidden = errors.New("principal not allowed to upload questions")
)
