package tablekv

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"tablekv/internal/journal"
	"tablekv/internal/snapshot"
)

// seqStoreName is the reserved store holding sequence counters.
const seqStoreName = "__seq"

// Database owns a home directory, the nested transaction stack, and every
// open Table and Sequence. The bottom of the stack is an implicit top-level
// transaction created at open time; it is finalized only when the database
// closes, at which point all open stores are checkpointed to disk.
//
// A Database may be shared by multiple goroutines. The transaction stack and
// all record writes are serialized under one lock; reads share it.
type Database struct {
	home string
	cfg  Config

	mu     sync.RWMutex
	txns   []*txn
	closed bool

	tables    *xsync.MapOf[string, *Table]
	sequences *xsync.MapOf[string, *Sequence]

	seqStore *keyedStore
	jnl      *journal.Journal
}

// Open opens the database rooted at home with the default configuration.
// With create set, the home must not already hold a database; without it,
// the database must exist.
func Open(home string, create bool) (*Database, error) {
	return OpenConfig(home, create, DefaultConfig())
}

// OpenConfig is Open with an explicit configuration.
func OpenConfig(home string, create bool, cfg Config) (*Database, error) {
	slog.Debug("tablekv: open", "home", home, "create", create)

	db := &Database{
		home:      home,
		cfg:       cfg,
		tables:    xsync.NewMapOf[string, *Table](),
		sequences: xsync.NewMapOf[string, *Sequence](),
		seqStore:  newKeyedStore(seqStoreName, snapshot.KindSystem, bytes.Compare),
	}

	exists := db.seqStore.onDisk(home)
	if create {
		if exists {
			return nil, fmt.Errorf("%w: database %s", ErrKeyExists, home)
		}
		if err := os.MkdirAll(home, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create home: %v", ErrUnknown, err)
		}
	} else {
		if !exists {
			return nil, fmt.Errorf("%w: database %s", ErrNotFound, home)
		}
		if err := db.seqStore.load(home); err != nil {
			return nil, fmt.Errorf("%w: load sequence store: %v", ErrUnknown, err)
		}
	}

	jnl, err := journal.Open(home, cfg.Journal.Fsync)
	if err != nil {
		return nil, fmt.Errorf("%w: open journal: %v", ErrUnknown, err)
	}
	db.jnl = jnl

	// Allocations journaled after the last checkpoint are ahead of the
	// snapshot; merge them in so no sequence value is ever handed out twice.
	err = journal.Replay(home, func(rec journal.Record) error {
		if rec.Type != journal.RecSeqAlloc {
			return nil
		}
		name := []byte(rec.Name)
		if cur, ok := db.seqStore.list.Get(name); !ok || decodeSeq(cur) < rec.Value {
			db.seqStore.list.Set(name, encodeSeq(rec.Value))
		}
		return nil
	})
	if err != nil {
		_ = jnl.Close()
		return nil, fmt.Errorf("%w: replay journal: %v", ErrUnknown, err)
	}

	if create {
		// Persist the reserved store right away; its presence marks the home
		// as an initialized database.
		if err := db.seqStore.save(home); err != nil {
			_ = jnl.Close()
			return nil, fmt.Errorf("%w: init sequence store: %v", ErrUnknown, err)
		}
	}

	db.txns = []*txn{{}} // implicit top-level transaction
	metricOpens.Inc()
	return db, nil
}

// Home returns the database home directory.
func (db *Database) Home() string { return db.home }

// Close rolls back every transaction above the top-level one, checkpoints
// all owned tables, indexes and sequence counters, commits the top-level
// transaction, and releases the journal. Closing twice is a no-op.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	slog.Debug("tablekv: close", "home", db.home)

	// Abandon unfinished nested transactions, innermost first.
	for len(db.txns) > 1 {
		tx := db.txns[len(db.txns)-1]
		db.txns = db.txns[:len(db.txns)-1]
		tx.revertAll()
		metricRollbacks.Inc()
	}

	// Committing the top-level transaction means making the surviving store
	// contents durable.
	var firstErr error
	db.tables.Range(func(_ string, t *Table) bool {
		if err := t.saveAll(db.home); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	if err := db.seqStore.save(db.home); err != nil && firstErr == nil {
		firstErr = err
	}

	if db.jnl != nil {
		if firstErr == nil {
			if err := db.jnl.AppendCheckpoint(); err != nil {
				firstErr = err
			} else if err := db.jnl.Reset(); err != nil {
				firstErr = err
			}
		}
		if err := db.jnl.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		db.jnl = nil
	}

	db.closed = true
	db.txns = nil
	if firstErr != nil {
		return fmt.Errorf("%w: close: %v", ErrUnknown, firstErr)
	}
	return nil
}

// AddTable opens (or, with create, creates) the named table and registers it
// with the database. Reopening a name already registered in this process
// returns the existing handle. cmp defines the key order; nil means bytewise.
func (db *Database) AddTable(name string, cmp CompareFunc, create bool) (*Table, error) {
	slog.Debug("tablekv: add table", "name", name, "create", create)

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, errClosed()
	}
	if t, ok := db.tables.Load(name); ok {
		if create {
			return nil, fmt.Errorf("%w: table %s", ErrKeyExists, name)
		}
		return t, nil
	}

	t, err := openTable(db, name, cmp, create)
	if err != nil {
		return nil, err
	}
	// Register only after a fully successful open.
	db.tables.Store(name, t)
	return t, nil
}

// AddSequence opens (or, with create, creates) the named sequence. A fresh
// sequence yields 1 on its first Next call.
func (db *Database) AddSequence(name string, create bool) (*Sequence, error) {
	slog.Debug("tablekv: add sequence", "name", name, "create", create)

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, errClosed()
	}
	if s, ok := db.sequences.Load(name); ok {
		if create {
			return nil, fmt.Errorf("%w: sequence %s", ErrKeyExists, name)
		}
		return s, nil
	}

	nameKey := []byte(name)
	_, present := db.seqStore.list.Get(nameKey)
	if create && present {
		return nil, fmt.Errorf("%w: sequence %s", ErrKeyExists, name)
	}
	if !create && !present {
		return nil, fmt.Errorf("%w: sequence %s", ErrNotFound, name)
	}
	if create {
		db.seqStore.list.Set(nameKey, encodeSeq(0))
	}

	s := &Sequence{name: name, db: db}
	db.sequences.Store(name, s)
	return s, nil
}

// BeginTransaction pushes a new transaction whose parent is the current top
// of the stack.
func (db *Database) BeginTransaction() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errClosed()
	}
	db.txns = append(db.txns, &txn{})
	metricBegins.Inc()
	return nil
}

// CommitTransaction commits the current transaction into its parent. Its
// effects become part of the parent and are finalized when the outermost
// transaction commits at close. Fails with ErrNotFound when only the
// top-level transaction remains.
func (db *Database) CommitTransaction() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errClosed()
	}
	if len(db.txns) == 1 {
		return fmt.Errorf("%w: no transaction to commit", ErrNotFound)
	}
	child := db.txns[len(db.txns)-1]
	db.txns = db.txns[:len(db.txns)-1]
	db.txns[len(db.txns)-1].merge(child)
	metricCommits.Inc()
	return nil
}

// RollbackTransaction discards the current transaction, undoing all of its
// writes including index and constraint side effects. Fails with ErrNotFound
// when only the top-level transaction remains.
func (db *Database) RollbackTransaction() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errClosed()
	}
	if len(db.txns) == 1 {
		return fmt.Errorf("%w: no transaction to rollback", ErrNotFound)
	}
	tx := db.txns[len(db.txns)-1]
	db.txns = db.txns[:len(db.txns)-1]
	tx.revertAll()
	metricRollbacks.Inc()
	return nil
}

// currentTxn returns the ambient transaction. Callers hold db.mu.
func (db *Database) currentTxn() *txn {
	return db.txns[len(db.txns)-1]
}

func errClosed() error {
	return fmt.Errorf("%w: database is closed", ErrUnknown)
}

// StoreInfo describes one persisted store of a database home.
type StoreInfo struct {
	Name    string
	Kind    string
	Records int
}

// Stat lists the stores persisted under a database home without opening it.
// Used by tooling; a live database sees only its in-memory state.
func Stat(home string) ([]StoreInfo, error) {
	entries, err := os.ReadDir(home)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: database %s", ErrNotFound, home)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	var infos []StoreInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".tbl") && !strings.HasSuffix(name, ".idx") {
			continue
		}
		info, err := snapshot.ReadInfo(filepath.Join(home, name))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnknown, name, err)
		}
		infos = append(infos, StoreInfo{
			Name:    info.Name,
			Kind:    info.Kind.String(),
			Records: info.Count,
		})
	}
	return infos, nil
}
