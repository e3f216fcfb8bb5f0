package store

import (
	"errors"
	"fmt"
)

// ErrorKind classifies store failures.
type ErrorKind int

const (
	// KindInvalidArgument covers empty keys, nil documents and
	// non-positive counts.
	KindInvalidArgument ErrorKind = iota + 1
	KindNotInitialized
	KindAlreadyInitialized
	KindVersionNotFound
	// KindSecurityViolation means a computed path escaped the storage root.
	KindSecurityViolation
	// KindCorruptData means a stored snapshot, metadata or history entry
	// could not be decoded.
	KindCorruptData
	KindIOFailure
	KindUnsupportedStoreType
	// KindMissingRepository means the table backend was requested without
	// a database handle.
	KindMissingRepository
)

var kindNames = map[ErrorKind]string{
	KindInvalidArgument:      "invalid argument",
	KindNotInitialized:       "not initialized",
	KindAlreadyInitialized:   "already initialized",
	KindVersionNotFound:      "version not found",
	KindSecurityViolation:    "security violation",
	KindCorruptData:          "corrupt data",
	KindIOFailure:            "io failure",
	KindUnsupportedStoreType: "unsupported store type",
	KindMissingRepository:    "missing repository",
}

// String returns the human-readable kind name.
func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("error kind %d", int(k))
}

// Sentinel errors for errors.Is matching against any *Error of that kind.
var (
	ErrInvalidArgument      = &Error{Kind: KindInvalidArgument}
	ErrNotInitialized       = &Error{Kind: KindNotInitialized}
	ErrAlreadyInitialized   = &Error{Kind: KindAlreadyInitialized}
	ErrVersionNotFound      = &Error{Kind: KindVersionNotFound}
	ErrSecurityViolation    = &Error{Kind: KindSecurityViolation}
	ErrCorruptData          = &Error{Kind: KindCorruptData}
	ErrIOFailure            = &Error{Kind: KindIOFailure}
	ErrUnsupportedStoreType = &Error{Kind: KindUnsupportedStoreType}
	ErrMissingRepository    = &Error{Kind: KindMissingRepository}
)

// Error is the error type returned by every store operation.
type Error struct {
	Kind    ErrorKind
	Op      string // Operation that failed ("update", "rollback", ...)
	Key     string // Configuration key, if any
	Version int    // Version involved, if any
	Err     error  // Underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("store %s", e.Kind)
	if e.Op != "" {
		msg = fmt.Sprintf("store %s [op=%s", e.Kind, e.Op)
		if e.Key != "" {
			msg += ", key=" + e.Key
		}
		if e.Version > 0 {
			msg += fmt.Sprintf(", version=%d", e.Version)
		}
		msg += "]"
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind ErrorKind, op, key string, err error) *Error {
	return &Error{Kind: kind, Op: op, Key: key, Err: err}
}

func versionError(kind ErrorKind, op, key string, version int, err error) *Error {
	return &Error{Kind: kind, Op: op, Key: key, Version: version, Err: err}
}

// KindOf returns the kind of err, or 0 when err is not a store error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func validateKey(op, key string) error {
	if key == "" {
		return newError(KindInvalidArgument, op, key, errors.New("key cannot be empty"))
	}
	return nil
}

func validateDocument(op, key string, doc Document) error {
	if err := validateKey(op, key); err != nil {
		return err
	}
	if doc == nil {
		return newError(KindInvalidArgument, op, key, errors.New("document cannot be nil"))
	}
	return nil
}
