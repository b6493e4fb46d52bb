package entitymanager

import "errors"

var (
	// ErrUnregisteredKind signals a programming error: the entity kind has no collection.
	ErrUnregisteredKind = errors.New("entity kind is not registered")
	// ErrNotFound is returned when no document has the requested id.
	ErrNotFound = errors.New("entity not found")
	// ErrDuplicateID is returned by Persist when the id already exists in the collection.
	ErrDuplicateID = errors.New("entity with the same id already exists")
	// ErrCodec is returned when a document cannot be encoded or decoded.
	ErrCodec = errors.New("document codec failure")
	// ErrStoreUnavailable wraps transport-level failures talking to the document store.
	ErrStoreUnavailable = errors.New("document store unavailable")
	// ErrInvalidCriteria is returned for malformed query predicates.
	ErrInvalidCriteria = errors.New("invalid query criteria")
	// ErrInvalidPage is returned for a negative offset or a non-positive limit.
	ErrInvalidPage = errors.New("invalid page bounds")
	// ErrPreconditionFailed is returned by MergeIf when the document exists but the guard did not match.
	ErrPreconditionFailed = errors.New("entity precondition failed")
)
