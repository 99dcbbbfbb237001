package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNotReady          = errors.New("not ready")
	ErrInvalidUpload     = errors.New("invalid upload")
)
