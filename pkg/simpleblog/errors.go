package simpleblog

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrDocumentNotFound indicates the requested document id is absent.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrAttachmentNotFound indicates a document has no attachment with the
	// requested id.
	ErrAttachmentNotFound = errors.New("attachment not found")

	// ErrPropertyNotFound indicates a required connection-string property is
	// missing. Callers must not assume defaults for absent properties.
	ErrPropertyNotFound = errors.New("connection property not found")

	// ErrMalformedConnectionString indicates a connection string could not
	// be parsed.
	ErrMalformedConnectionString = errors.New("malformed connection string")

	// ErrNotInitialised indicates a provider could not establish a valid
	// bootstrap state for its credential store or content index.
	ErrNotInitialised = errors.New("storage provider not initialised")

	// ErrUnknownProvider indicates no registered builder matches the
	// requested provider name.
	ErrUnknownProvider = errors.New("unknown storage provider")
)

// PersistenceError wraps an I/O failure while reading or writing index,
// item, attachment or user files. The underlying cause is always retained.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence operation %s failed for %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
