package usecase

import (
	"errors"
	"fmt"
)

// Multipart field names accepted by the upload flow.
const (
	FieldProfilePhoto = "profilePhoto"
	FieldLivePhoto    = "livePhoto"
)

var (
	// ErrUploadNotFound is returned when an upload id is unknown.
	ErrUploadNotFound = errors.New("upload not found")
	// ErrAuditDisabled is returned by queries that need the audit log when none is configured.
	ErrAuditDisabled = errors.New("upload audit log is disabled")
)

// MissingFieldError reports that one or both image fields were absent.
type MissingFieldError struct{}

func (*MissingFieldError) Error() string {
	return fmt.Sprintf("Both %s and %s are required", FieldProfilePhoto, FieldLivePhoto)
}

// InvalidTypeError reports a file whose type is outside the accepted image set.
type InvalidTypeError struct {
	Field       string
	ContentType string
}

func (e *InvalidTypeError) Error() string {
	return fmt.Sprintf("Invalid %s type", e.Field)
}

// SaveError wraps any I/O failure while preparing directories or writing files.
type SaveError struct {
	Err error
}

func (e *SaveError) Error() string {
	return "Failed to save images: " + e.Err.Error()
}

func (e *SaveError) Unwrap() error {
	return e.Err
}
