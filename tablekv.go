// Package tablekv is an embedded transactional table store. A Database owns a
// home directory on disk and a stack of nested transactions; Tables are
// unique-keyed stores of serialized records, Indexes are secondary stores
// derived from a table through a projection callback, Sequences are durable
// monotonic counters, and Recordsets are forward cursors over tables, indexes,
// single index keys, or natural joins of single-key index cursors.
//
// Keys and values are opaque byte sequences produced by caller-supplied
// message types; ordering is defined entirely by caller-supplied comparators.
// Record operations run in the transaction currently on top of the owning
// database's stack.
package tablekv

// Library version.
const (
	versionMajor = 1
	versionMinor = 0
	versionPatch = 0
)

// Version returns the library version.
func Version() (major, minor, patch int) {
	return versionMajor, versionMinor, versionPatch
}
