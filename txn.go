package tablekv

// Nested transactions are undo logs. Writes apply to the stores immediately
// and append their inverse operation to the transaction on top of the
// database's stack. Rolling back replays the undo log in reverse; committing
// splices the child's undo log into its parent, so a later rollback of the
// parent also undoes the committed child.

type undoKind uint8

const (
	undoInsert undoKind = iota + 1 // inverse: delete the entry
	undoRemove                     // inverse: reinsert the entry
	undoUpdate                     // inverse: restore the previous value
)

type undoOp struct {
	kind  undoKind
	store *keyedStore
	key   []byte
	val   []byte
}

type txn struct {
	undo []undoOp
}

func (tx *txn) record(kind undoKind, store *keyedStore, key, val []byte) {
	tx.undo = append(tx.undo, undoOp{kind: kind, store: store, key: key, val: val})
}

// mark returns a savepoint for revertTo.
func (tx *txn) mark() int { return len(tx.undo) }

// revertTo undoes every operation recorded after the savepoint, restoring the
// stores to their state at mark time.
func (tx *txn) revertTo(mark int) {
	for i := len(tx.undo) - 1; i >= mark; i-- {
		op := tx.undo[i]
		switch op.kind {
		case undoInsert:
			if op.store.list.Dup() {
				op.store.list.DeletePair(op.key, op.val)
			} else {
				op.store.list.Delete(op.key)
			}
		case undoRemove:
			if op.store.list.Dup() {
				op.store.list.Insert(op.key, op.val)
			} else {
				op.store.list.Set(op.key, op.val)
			}
		case undoUpdate:
			op.store.list.Set(op.key, op.val)
		}
	}
	tx.undo = tx.undo[:mark]
}

func (tx *txn) revertAll() { tx.revertTo(0) }

// merge appends a committed child's undo log, preserving chronological order.
func (tx *txn) merge(child *txn) {
	tx.undo = append(tx.undo, child.undo...)
}
