package tablekv

import (
	"fmt"
	"log/slog"
)

type recordsetKind uint8

const (
	rsTable    recordsetKind = iota + 1 // every record of a table
	rsIndexAll                          // every index entry, duplicates included
	rsIndexKey                          // index entries matching one derived key
	rsJoin                              // natural join of single-key index cursors
)

// Recordset is a forward read cursor over a table, an index, a single index
// key, or the natural join of several single-key index cursors against a
// common table. A recordset references its sources without owning them and
// must not outlive them.
//
// Cursors resume by position, so records written after a partial fetch pass
// are visible when the cursor reaches them; join recordsets fix their record
// set at construction.
type Recordset struct {
	kind recordsetKind
	db   *Database

	table *Table // rsTable, rsJoin
	index *Index // rsIndexAll, rsIndexKey

	filterKey []byte // rsIndexKey

	positioned bool
	lastKey    []byte
	lastVal    []byte

	joinKeys [][]byte // rsJoin: primary-key intersection, in table key order
	joinPos  int

	closed bool
}

// NewRecordset opens a cursor over every record of a table, in key order.
func NewRecordset(t *Table) (*Recordset, error) {
	return &Recordset{kind: rsTable, db: t.db, table: t}, nil
}

// NewIndexRecordset opens a cursor over every entry of an index, duplicates
// included, in derived-key order. Fetch yields the primary records the
// entries point back to.
func NewIndexRecordset(ix *Index) (*Recordset, error) {
	return &Recordset{kind: rsIndexAll, db: ix.table.db, index: ix}, nil
}

// NewIndexKeyRecordset opens a cursor restricted to index entries whose
// derived key equals key.
func NewIndexKeyRecordset(ix *Index, key Message) (*Recordset, error) {
	k, err := marshalMessage("key", key)
	if err != nil {
		return nil, err
	}
	return &Recordset{kind: rsIndexKey, db: ix.table.db, index: ix, filterKey: k}, nil
}

// NewJoinRecordset opens the natural join of the given recordsets: the
// primary records of t whose key appears in every one of them. Every member
// must be a single-key recordset over an index of t; anything else fails
// with ErrUnknown. An empty intersection yields an empty recordset, not an
// error.
func NewJoinRecordset(t *Table, members []*Recordset) (*Recordset, error) {
	for _, m := range members {
		if m.kind != rsIndexKey {
			slog.Warn("tablekv: join member is not a single-key recordset")
			return nil, fmt.Errorf("%w: join members must be single-key index recordsets", ErrUnknown)
		}
		if m.index.table != t {
			slog.Warn("tablekv: join member indexes another table", "index", m.index.name)
			return nil, fmt.Errorf("%w: join member indexes another table", ErrUnknown)
		}
	}

	rs := &Recordset{kind: rsJoin, db: t.db, table: t}

	t.db.mu.RLock()
	defer t.db.mu.RUnlock()
	if t.db.closed {
		return nil, errClosed()
	}

	if len(members) == 0 {
		return rs, nil
	}
	keys := members[0].index.primaryKeys(members[0].filterKey)
	for _, m := range members[1:] {
		if len(keys) == 0 {
			break
		}
		in := make(map[string]bool, 8)
		for _, pk := range m.index.primaryKeys(m.filterKey) {
			in[string(pk)] = true
		}
		kept := keys[:0]
		for _, pk := range keys {
			if in[string(pk)] {
				kept = append(kept, pk)
			}
		}
		keys = kept
	}
	// primaryKeys yields duplicate order, which is the table's key order, so
	// the intersection is already sorted and deterministic.
	rs.joinKeys = keys
	return rs, nil
}

// Fetch advances to the next record, filling key and data. The first call
// lands on the first record. It returns false exactly when the set is
// exhausted, and keeps returning false on further calls.
func (rs *Recordset) Fetch(key, data Message) (bool, error) {
	if rs.closed {
		return false, fmt.Errorf("%w: recordset is closed", ErrUnknown)
	}
	rs.db.mu.RLock()
	defer rs.db.mu.RUnlock()
	if rs.db.closed {
		return false, errClosed()
	}

	var pk, pd []byte
	var ok bool
	switch rs.kind {
	case rsTable:
		pk, pd, ok = rs.nextTable()
	case rsIndexAll:
		pk, pd, ok = rs.nextIndexAll()
	case rsIndexKey:
		pk, pd, ok = rs.nextIndexKey()
	case rsJoin:
		pk, pd, ok = rs.nextJoin()
	default:
		return false, fmt.Errorf("%w: invalid recordset", ErrUnknown)
	}
	if !ok {
		return false, nil
	}

	if err := unmarshalMessage("key", pk, key); err != nil {
		return false, err
	}
	if err := unmarshalMessage("data", pd, data); err != nil {
		return false, err
	}
	metricFetches.Inc()
	return true, nil
}

func (rs *Recordset) nextTable() (k, d []byte, ok bool) {
	list := rs.table.store.list
	if !rs.positioned {
		k, d, ok = list.Min()
	} else {
		k, d, ok = list.NextAfterKey(rs.lastKey)
	}
	if !ok {
		return nil, nil, false
	}
	rs.positioned = true
	rs.lastKey = k
	return k, d, true
}

func (rs *Recordset) nextIndexAll() (pk, pd []byte, ok bool) {
	list := rs.index.store.list
	var ek, ev []byte
	if !rs.positioned {
		ek, ev, ok = list.Min()
	} else {
		ek, ev, ok = list.NextAfterPair(rs.lastKey, rs.lastVal)
	}
	for ok {
		rs.positioned = true
		rs.lastKey, rs.lastVal = ek, ev
		if pd, found := rs.index.table.store.list.Get(ev); found {
			return ev, pd, true
		}
		// Entry without a primary record; skip it.
		ek, ev, ok = list.NextAfterPair(ek, ev)
	}
	return nil, nil, false
}

func (rs *Recordset) nextIndexKey() (pk, pd []byte, ok bool) {
	list := rs.index.store.list
	var ek, ev []byte
	if !rs.positioned {
		ek, ev, ok = list.Ceiling(rs.filterKey)
	} else {
		ek, ev, ok = list.NextAfterPair(rs.lastKey, rs.lastVal)
	}
	for ok && rs.index.cmp(ek, rs.filterKey) == 0 {
		rs.positioned = true
		rs.lastKey, rs.lastVal = ek, ev
		if pd, found := rs.index.table.store.list.Get(ev); found {
			return ev, pd, true
		}
		ek, ev, ok = list.NextAfterPair(ek, ev)
	}
	return nil, nil, false
}

func (rs *Recordset) nextJoin() (pk, pd []byte, ok bool) {
	for rs.joinPos < len(rs.joinKeys) {
		k := rs.joinKeys[rs.joinPos]
		rs.joinPos++
		if d, found := rs.table.store.list.Get(k); found {
			return k, d, true
		}
	}
	return nil, nil, false
}

// Rewind resets the cursor so the next Fetch starts over. Join recordsets
// are forward-only: rewinding one fails with ErrUnknown.
func (rs *Recordset) Rewind() error {
	if rs.closed {
		return fmt.Errorf("%w: recordset is closed", ErrUnknown)
	}
	if rs.kind == rsJoin {
		slog.Warn("tablekv: rewind on a join recordset")
		return fmt.Errorf("%w: join recordsets cannot be rewound", ErrUnknown)
	}
	rs.positioned = false
	rs.lastKey = nil
	rs.lastVal = nil
	return nil
}

// Close releases the cursor and its held filter key. It does not close or
// otherwise affect the table or index the recordset was opened against.
// Closing twice is a no-op.
func (rs *Recordset) Close() error {
	rs.closed = true
	rs.filterKey = nil
	rs.lastKey = nil
	rs.lastVal = nil
	rs.joinKeys = nil
	return nil
}
