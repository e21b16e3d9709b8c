package fetch

import "errors"

// Failure modes of page acquisition. Callers treat every one of these as a
// skip for the URL in question.
var (
	ErrTimeout         = errors.New("fetch timed out")
	ErrTooLarge        = errors.New("content exceeds size limit")
	ErrUnsupportedType = errors.New("unsupported content type")
	ErrFetchFailed     = errors.New("fetch failed")
)
