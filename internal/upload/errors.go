package upload

import "errors"

var (
	// ErrNotFound is returned when an upload record does not exist.
	ErrNotFound = errors.New("upload not found")
	// ErrEmptyFile is returned for zero-byte submissions.
	ErrEmptyFile = errors.New("file is empty")
	// ErrStoreWrite is returned when staging the object failed; nothing was
	// persisted and there is nothing to clean up.
	ErrStoreWrite = errors.New("object store write failed")
	// ErrMetadataWrite is returned when the record insert failed after a clean
	// scan; the staged object has been rolled back.
	ErrMetadataWrite = errors.New("metadata write failed")
	// ErrMalwareDetected is returned when the scan flagged the payload. The
	// staged object is deleted and no record is ever written.
	ErrMalwareDetected = errors.New("malware detected")
	// ErrScanUnavailable is returned when no terminal verdict could be
	// obtained (submission failure, exhausted polling, deadline). The upload
	// fails closed: the staged object is deleted and nothing is committed.
	ErrScanUnavailable = errors.New("scan service unavailable")
)
