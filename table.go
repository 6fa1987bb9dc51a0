package tablekv

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"tablekv/internal/snapshot"
)

// Table is a primary store with unique keys. All record operations execute in
// the transaction currently on top of the owning database's stack; none take
// an explicit transaction parameter.
//
// A table owns its indexes: writes maintain every index in the same logical
// operation, and closing the database checkpoints table and indexes together.
type Table struct {
	name    string
	db      *Database
	cmp     CompareFunc
	store   *keyedStore
	indexes []*Index
	refs    []*Index // indexes holding a foreign key against this table
}

func openTable(db *Database, name string, cmp CompareFunc, create bool) (*Table, error) {
	if cmp == nil {
		cmp = bytes.Compare
	}
	t := &Table{
		name:  name,
		db:    db,
		cmp:   cmp,
		store: newKeyedStore(name, snapshot.KindTable, cmp),
	}
	if err := t.store.load(db.home); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: table %s: %v", ErrUnknown, name, err)
		}
		if !create {
			return nil, fmt.Errorf("%w: table %s", ErrNotFound, name)
		}
	} else if create {
		return nil, fmt.Errorf("%w: table %s", ErrKeyExists, name)
	}
	return t, nil
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// saveAll checkpoints the table and its indexes. Callers hold db.mu.
func (t *Table) saveAll(home string) error {
	if err := t.store.save(home); err != nil {
		return err
	}
	for _, ix := range t.indexes {
		if err := ix.store.save(home); err != nil {
			return err
		}
	}
	return nil
}

// AddIndex opens (or creates and backfills) a secondary index over this
// table. Future writes to the table maintain the index transparently. cmp
// orders the derived keys; nil means bytewise. A non-unique index keeps
// duplicates ordered by the table's key comparator.
func (t *Table) AddIndex(name string, project ProjectFunc, cmp CompareFunc, unique bool) (*Index, error) {
	slog.Debug("tablekv: add index", "table", t.name, "name", name, "unique", unique)

	if project == nil {
		return nil, fmt.Errorf("%w: index %s: nil projection", ErrUnknown, name)
	}
	if cmp == nil {
		cmp = bytes.Compare
	}

	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if t.db.closed {
		return nil, errClosed()
	}
	for _, ix := range t.indexes {
		if ix.name == name {
			return nil, fmt.Errorf("%w: index %s", ErrKeyExists, name)
		}
	}

	var store *keyedStore
	if unique {
		store = newKeyedStore(name, snapshot.KindIndex, cmp)
	} else {
		store = newDupStore(name, cmp, t.cmp)
	}
	ix := &Index{
		name:    name,
		table:   t,
		cmp:     cmp,
		store:   store,
		project: project,
		unique:  unique,
	}

	if err := store.load(t.db.home); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: index %s: %v", ErrUnknown, name, err)
		}
		if err := ix.backfill(); err != nil {
			return nil, err
		}
	}

	t.indexes = append(t.indexes, ix)
	return ix, nil
}

// Exists reports whether a record with the given key is present. Absence is
// a false result, never an error.
func (t *Table) Exists(key Message) (bool, error) {
	k, err := marshalMessage("key", key)
	if err != nil {
		return false, err
	}
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()
	if t.db.closed {
		return false, errClosed()
	}
	return t.store.list.Contains(k), nil
}

// Select returns the data of the record with the given key.
func (t *Table) Select(key, data Message) error {
	k, err := marshalMessage("key", key)
	if err != nil {
		return err
	}
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()
	if t.db.closed {
		return errClosed()
	}
	d, ok := t.store.list.Get(k)
	if !ok {
		return fmt.Errorf("%w: table %s: key", ErrNotFound, t.name)
	}
	metricSelects.Inc()
	return unmarshalMessage("data", d, data)
}

// Insert adds a new record. The key must not exist, every unique index must
// stay collision-free, and every foreign key of the table's indexes must
// resolve against its master table.
func (t *Table) Insert(key, data Message) error {
	k, err := marshalMessage("key", key)
	if err != nil {
		return err
	}
	d, err := marshalMessage("data", data)
	if err != nil {
		return err
	}

	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if t.db.closed {
		return errClosed()
	}
	tx := t.db.currentTxn()
	mark := tx.mark()
	if err := t.insertLocked(tx, k, d); err != nil {
		tx.revertTo(mark)
		slog.Warn("tablekv: insert failed", "table", t.name, "err", err)
		return err
	}
	metricInserts.Inc()
	return nil
}

// Update replaces the data of an existing record, recomputing every derived
// index entry in the same logical operation.
func (t *Table) Update(key, data Message) error {
	k, err := marshalMessage("key", key)
	if err != nil {
		return err
	}
	d, err := marshalMessage("data", data)
	if err != nil {
		return err
	}

	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if t.db.closed {
		return errClosed()
	}
	tx := t.db.currentTxn()
	mark := tx.mark()
	if err := t.updateLocked(tx, k, d); err != nil {
		tx.revertTo(mark)
		slog.Warn("tablekv: update failed", "table", t.name, "err", err)
		return err
	}
	metricUpdates.Inc()
	return nil
}

// Remove deletes an existing record, propagating to indexes that hold a
// foreign key against this table per their configured mode.
func (t *Table) Remove(key Message) error {
	k, err := marshalMessage("key", key)
	if err != nil {
		return err
	}

	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if t.db.closed {
		return errClosed()
	}
	tx := t.db.currentTxn()
	mark := tx.mark()
	if err := t.removeLocked(tx, k); err != nil {
		tx.revertTo(mark)
		slog.Warn("tablekv: remove failed", "table", t.name, "err", err)
		return err
	}
	metricRemoves.Inc()
	return nil
}

// insertLocked writes the record tentatively and then derives the index
// entries, so a foreign key of an index against its own table resolves when
// the derived key is the record's own key. A constraint failure is unwound by
// the caller's savepoint revert.
func (t *Table) insertLocked(tx *txn, k, d []byte) error {
	if t.store.list.Contains(k) {
		return fmt.Errorf("%w: table %s: duplicate key", ErrKeyExists, t.name)
	}
	t.store.list.Set(k, d)
	tx.record(undoInsert, t.store, k, d)
	for _, ix := range t.indexes {
		derived, ok := ix.project(k, d)
		if !ok {
			continue
		}
		if err := ix.checkWrite(derived, k); err != nil {
			return err
		}
		ix.putEntry(tx, derived, k)
	}
	return nil
}

func (t *Table) updateLocked(tx *txn, k, d []byte) error {
	old, ok := t.store.list.Get(k)
	if !ok {
		return fmt.Errorf("%w: table %s: key", ErrNotFound, t.name)
	}
	for _, ix := range t.indexes {
		derived, ok := ix.project(k, d)
		if !ok {
			continue
		}
		if err := ix.checkWrite(derived, k); err != nil {
			return err
		}
	}

	for _, ix := range t.indexes {
		oldDerived, hadOld := ix.project(k, old)
		newDerived, hasNew := ix.project(k, d)
		if hadOld && hasNew && ix.cmp(oldDerived, newDerived) == 0 {
			continue
		}
		if hadOld {
			ix.delEntry(tx, oldDerived, k)
		}
		if hasNew {
			ix.putEntry(tx, newDerived, k)
		}
	}
	t.store.list.Set(k, d)
	tx.record(undoUpdate, t.store, k, old)
	return nil
}

func (t *Table) removeLocked(tx *txn, k []byte) error {
	old, ok := t.store.list.Get(k)
	if !ok {
		return fmt.Errorf("%w: table %s: key", ErrNotFound, t.name)
	}

	// Constraint check first: any abort-mode reference blocks the delete
	// before anything is modified.
	for _, ref := range t.refs {
		if ref.foreign.mode == fkAbort && ref.store.list.Contains(k) {
			return fmt.Errorf("%w: table %s: key referenced by index %s", ErrForeignKey, t.name, ref.name)
		}
	}

	// Delete the record before propagating, so a cycle of cascade
	// references terminates: by the time the recursion comes back around,
	// the record and its index entries are already gone.
	for _, ix := range t.indexes {
		derived, ok := ix.project(k, old)
		if !ok {
			continue
		}
		ix.delEntry(tx, derived, k)
	}
	t.store.list.Delete(k)
	tx.record(undoRemove, t.store, k, old)

	// Propagate to cascade and nullify references.
	for _, ref := range t.refs {
		switch ref.foreign.mode {
		case fkCascade:
			for _, pk := range ref.primaryKeys(k) {
				// A diamond of cascades may have removed the record already.
				if !ref.table.store.list.Contains(pk) {
					continue
				}
				if err := ref.table.removeLocked(tx, pk); err != nil {
					return err
				}
			}
		case fkNullify:
			for _, pk := range ref.primaryKeys(k) {
				pdata, ok := ref.table.store.list.Get(pk)
				if !ok {
					continue
				}
				newData, changed, err := ref.foreign.nullify(pk, pdata, k)
				if err != nil {
					return fmt.Errorf("%w: table %s: nullify via index %s: %v", ErrForeignKey, t.name, ref.name, err)
				}
				if !changed {
					continue
				}
				if err := ref.table.updateLocked(tx, pk, bytes.Clone(newData)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
