package backup

import "errors"

var (
	// ErrStorageUnavailable means the backup root cannot be created or accessed.
	ErrStorageUnavailable = errors.New("backup storage unavailable")
	// ErrWriteFailed means a timestamped or latest record could not be written.
	ErrWriteFailed = errors.New("backup write failed")
	// ErrReadFailed means a latest record exists but could not be read or parsed.
	ErrReadFailed = errors.New("backup read failed")
	// ErrNoBackup means the category has never been written.
	ErrNoBackup = errors.New("no backup available")
	// ErrInvalidCategory means the category is not usable as a file name component.
	ErrInvalidCategory = errors.New("invalid backup category")
)

// WriteResult reports the outcome of WriteSnapshot
type WriteResult struct {
	// Name is the file name of the immutable record, set once it was written.
	Name string
	// Payload is the stamped payload that was persisted.
	Payload Payload
	Err     error
}

// OK reports whether both the record and the latest pointer were written.
func (r WriteResult) OK() bool {
	return r.Err == nil
}

// ReadResult reports the outcome of ReadLatest
type ReadResult struct {
	Payload Payload
	Err     error
}

// Found reports whether a latest payload was read.
func (r ReadResult) Found() bool {
	return r.Err == nil && r.Payload != nil
}

// Absent reports whether the category has simply never been backed up, as
// opposed to a record that exists but failed to load.
func (r ReadResult) Absent() bool {
	return errors.Is(r.Err, ErrNoBackup) || errors.Is(r.Err, ErrInvalidCategory)
}
