package tablekv

import (
	"fmt"
	"log/slog"
)

type fkMode uint8

const (
	fkAbort fkMode = iota + 1
	fkCascade
	fkNullify
)

type foreignKey struct {
	master  *Table
	mode    fkMode
	nullify NullifyFunc
}

// Index is a secondary store derived from a table through a projection
// callback. Entries map a derived key to the primary key of the record that
// produced it; a non-unique index allows duplicates, ordered by the table's
// key comparator. Indexes are never written directly: the table's write
// operations maintain them.
//
// An index may hold at most one foreign-key relationship against a master
// table, attached once and immutable afterwards.
type Index struct {
	name    string
	table   *Table
	cmp     CompareFunc
	store   *keyedStore
	project ProjectFunc
	unique  bool
	foreign *foreignKey
}

// Name returns the index name.
func (ix *Index) Name() string { return ix.name }

// Exists reports whether at least one entry matches the derived key.
// Absence is a false result, never an error.
func (ix *Index) Exists(key Message) (bool, error) {
	k, err := marshalMessage("key", key)
	if err != nil {
		return false, err
	}
	ix.table.db.mu.RLock()
	defer ix.table.db.mu.RUnlock()
	if ix.table.db.closed {
		return false, errClosed()
	}
	return ix.store.list.Contains(k), nil
}

// AddForeign attaches a foreign key against master: every derived key of
// this index must exist as a key of master. With cascade set, deleting a
// referenced master key also deletes the referencing primary records;
// without it, such a delete fails with ErrForeignKey until no references
// remain.
func (ix *Index) AddForeign(master *Table, cascade bool) error {
	mode := fkAbort
	if cascade {
		mode = fkCascade
	}
	return ix.addForeign(master, mode, nil)
}

// AddForeignNullify attaches a foreign key against master where deleting a
// referenced master key invokes nullify per referencing record to rewrite
// its data instead of deleting it.
func (ix *Index) AddForeignNullify(master *Table, nullify NullifyFunc) error {
	if nullify == nil {
		return fmt.Errorf("%w: index %s: nil nullify callback", ErrUnknown, ix.name)
	}
	return ix.addForeign(master, fkNullify, nullify)
}

func (ix *Index) addForeign(master *Table, mode fkMode, nullify NullifyFunc) error {
	slog.Debug("tablekv: add foreign", "index", ix.name, "master", master.name, "mode", mode)

	ix.table.db.mu.Lock()
	defer ix.table.db.mu.Unlock()
	if ix.table.db.closed {
		return errClosed()
	}
	if ix.foreign != nil {
		return fmt.Errorf("%w: index %s: foreign key already attached", ErrUnknown, ix.name)
	}
	if master.db != ix.table.db {
		return fmt.Errorf("%w: index %s: master belongs to another database", ErrUnknown, ix.name)
	}
	ix.foreign = &foreignKey{master: master, mode: mode, nullify: nullify}
	master.refs = append(master.refs, ix)
	return nil
}

// checkWrite validates one derived entry about to be written for pkey:
// the foreign key must resolve and a unique index must stay collision-free.
func (ix *Index) checkWrite(derived, pkey []byte) error {
	if ix.foreign != nil && !ix.foreign.master.store.list.Contains(derived) {
		return fmt.Errorf("%w: index %s: key absent from master table %s", ErrForeignKey, ix.name, ix.foreign.master.name)
	}
	if ix.unique {
		if existing, ok := ix.store.list.Get(derived); ok && ix.table.cmp(existing, pkey) != 0 {
			return fmt.Errorf("%w: index %s: duplicate value", ErrKeyExists, ix.name)
		}
	}
	return nil
}

func (ix *Index) putEntry(tx *txn, derived, pkey []byte) {
	if ix.unique {
		ix.store.list.Set(derived, pkey)
	} else {
		ix.store.list.Insert(derived, pkey)
	}
	tx.record(undoInsert, ix.store, derived, pkey)
}

func (ix *Index) delEntry(tx *txn, derived, pkey []byte) {
	if ix.unique {
		if old, ok := ix.store.list.Delete(derived); ok {
			tx.record(undoRemove, ix.store, derived, old)
		}
		return
	}
	if ix.store.list.DeletePair(derived, pkey) {
		tx.record(undoRemove, ix.store, derived, pkey)
	}
}

// primaryKeys returns the primary keys of every entry whose derived key
// equals k, in duplicate order.
func (ix *Index) primaryKeys(k []byte) [][]byte {
	var pks [][]byte
	key, val, ok := ix.store.list.Ceiling(k)
	for ok && ix.cmp(key, k) == 0 {
		pks = append(pks, val)
		key, val, ok = ix.store.list.NextAfterPair(key, val)
	}
	return pks
}

// backfill populates a freshly created index from the table's existing
// records.
func (ix *Index) backfill() error {
	var err error
	ix.table.store.list.Ascend(func(k, d []byte) bool {
		derived, ok := ix.project(k, d)
		if !ok {
			return true
		}
		if ix.unique {
			if existing, found := ix.store.list.Get(derived); found && ix.table.cmp(existing, k) != 0 {
				err = fmt.Errorf("%w: index %s: duplicate value during backfill", ErrKeyExists, ix.name)
				return false
			}
			ix.store.list.Set(derived, k)
		} else {
			ix.store.list.Insert(derived, k)
		}
		return true
	})
	return err
}
