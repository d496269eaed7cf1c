package ingest

import (
	"errors"
	"fmt"
)

// ErrEmptySpine reports an archive whose spine resolves to no readable document.
var ErrEmptySpine = errors.New("ingest: spine resolves to zero documents")

// Reason classifies a fatal ingestion failure.
type Reason string

const (
	ReasonArchive    Reason = "archive"     // not a zip, or unreadable
	ReasonManifest   Reason = "manifest"    // container.xml or package document unusable
	ReasonEmptySpine Reason = "empty-spine" // no spine item resolved
	ReasonPersist    Reason = "persist"     // writing the artifact or images failed
)

// Error is returned for every fatal ingestion failure.
type Error struct {
	Reason  Reason
	Archive string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ingest %s: %s: %v", e.Archive, e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ReasonOf extracts the failure reason from err.
func ReasonOf(err error) (Reason, bool) {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Reason, true
	}
	return "", false
}
