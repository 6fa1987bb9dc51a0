package tablekv

import "errors"

// Every fallible operation fails with exactly one of these error kinds,
// possibly wrapped with context. Classify with errors.Is.
var (
	// ErrNotFound reports an absent object or record.
	ErrNotFound = errors.New("tablekv: object not found")
	// ErrKeyExists reports a duplicate create, a duplicate primary key, or a
	// unique-index value collision.
	ErrKeyExists = errors.New("tablekv: object already exists")
	// ErrForeignKey reports a write or delete blocked by a referential
	// constraint.
	ErrForeignKey = errors.New("tablekv: foreign key constraint violated")
	// ErrUnknown reports any other engine failure, including misuse such as
	// rewinding a join recordset.
	ErrUnknown = errors.New("tablekv: unknown error")
)
