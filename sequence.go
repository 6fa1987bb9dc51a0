package tablekv

import (
	"fmt"

	"tablekv/internal/bx"
)

// Sequence is a durable monotonic counter scoped to a database. Allocation
// runs with zero caching: every value is journaled to stable storage before
// it is returned, so no allocated value is ever handed out twice, even
// across crashes and process restarts. Allocations are not undone by
// transaction rollback.
type Sequence struct {
	name string
	db   *Database
}

// Name returns the sequence name.
func (s *Sequence) Name() string { return s.name }

// Next allocates and returns the next value. A freshly created sequence
// yields 1, then 2, and so on.
func (s *Sequence) Next() (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.closed {
		return 0, errClosed()
	}

	key := []byte(s.name)
	cur, ok := s.db.seqStore.list.Get(key)
	if !ok {
		return 0, fmt.Errorf("%w: sequence %s: counter missing", ErrUnknown, s.name)
	}
	v := decodeSeq(cur) + 1

	// Journal before returning; the value is only consumed once durable.
	if err := s.db.jnl.AppendSeqAlloc(s.name, v); err != nil {
		return 0, fmt.Errorf("%w: sequence %s: journal: %v", ErrUnknown, s.name, err)
	}
	s.db.seqStore.list.Set(key, encodeSeq(v))
	metricSeqAllocs.Inc()
	return v, nil
}

func encodeSeq(v int64) []byte {
	b := make([]byte, 8)
	bx.PutI64(b, v)
	return b
}

func decodeSeq(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return bx.I64(b)
}
