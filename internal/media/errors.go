package media

import (
	"errors"
	"fmt"
)

// Generation failure categories. A *GenerationError matches exactly one of
// them with errors.Is.
var (
	// ErrFileUnavailable covers missing, zero-byte and unreadable sources.
	ErrFileUnavailable = errors.New("file unavailable")

	// ErrUnsupportedType means the source could not be classified.
	ErrUnsupportedType = errors.New("unsupported media type")

	// ErrGenerationFailed covers decode, encode and external tool failures.
	ErrGenerationFailed = errors.New("derivative generation failed")
)

// GenerationError is the single error type returned by Generator.Process.
type GenerationError struct {
	Kind error
	Path string
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Path, e.Err)
}

// Unwrap exposes both the category and the underlying cause.
func (e *GenerationError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Reason is the short label used in fail logs and metrics.
func (e *GenerationError) Reason() string {
	return reasonFor(e.Kind)
}

// FailureReason classifies any error returned by Process. Errors that are
// not generation errors report "failed".
func FailureReason(err error) string {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.Reason()
	}
	return "failed"
}

func reasonFor(kind error) string {
	switch kind {
	case ErrFileUnavailable:
		return "unavailable"
	case ErrUnsupportedType:
		return "unsupported"
	default:
		return "failed"
	}
}

func unavailable(path string, err error) *GenerationError {
	return &GenerationError{Kind: ErrFileUnavailable, Path: path, Err: err}
}

func unsupported(path string, err error) *GenerationError {
	return &GenerationError{Kind: ErrUnsupportedType, Path: path, Err: err}
}

func failed(path string, err error) *GenerationError {
	return &GenerationError{Kind: ErrGenerationFailed, Path: path, Err: err}
}
