package tablekv

import (
	"bytes"
	"encoding"
	"fmt"
)

// Message is the serialization boundary. The engine treats the marshaled
// bytes as the sole key/value wire format and never interprets them; sort
// order comes from the comparators supplied when tables and indexes open.
type Message interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// CompareFunc defines a total order over serialized keys. It returns a
// negative value if a sorts before b, zero if they are equal, and a positive
// value if a sorts after b. A nil CompareFunc means bytewise order.
type CompareFunc func(a, b []byte) int

// ProjectFunc derives an index key from a primary (key, data) pair. ok=false
// means the index holds no entry for this record.
type ProjectFunc func(key, data []byte) (derived []byte, ok bool)

// NullifyFunc rewrites the data of a record that references a deleted master
// key. changed=false leaves the record untouched; a non-nil error blocks the
// master deletion with ErrForeignKey.
type NullifyFunc func(primaryKey, primaryData, foreignKey []byte) (newData []byte, changed bool, err error)

func marshalMessage(what string, m Message) ([]byte, error) {
	b, err := m.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: marshal %s: %v", ErrUnknown, what, err)
	}
	// The engine keeps marshaled bytes in its stores; detach from any buffer
	// the message may reuse.
	return bytes.Clone(b), nil
}

func unmarshalMessage(what string, b []byte, m Message) error {
	if err := m.UnmarshalBinary(b); err != nil {
		return fmt.Errorf("%w: unmarshal %s: %v", ErrUnknown, what, err)
	}
	return nil
}
