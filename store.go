package tablekv

import (
	"fmt"
	"os"
	"path/filepath"

	"tablekv/internal/skiplist"
	"tablekv/internal/snapshot"
)

// keyedStore is the shared storage unit behind Table, Index and the reserved
// sequence store: one ordered key/value structure plus its snapshot file.
type keyedStore struct {
	name string
	kind snapshot.Kind
	list *skiplist.List
}

func newKeyedStore(name string, kind snapshot.Kind, cmp CompareFunc) *keyedStore {
	return &keyedStore{
		name: name,
		kind: kind,
		list: skiplist.New(skiplist.CompareFunc(cmp)),
	}
}

func newDupStore(name string, cmp, dup CompareFunc) *keyedStore {
	return &keyedStore{
		name: name,
		kind: snapshot.KindIndex,
		list: skiplist.NewDup(skiplist.CompareFunc(cmp), skiplist.CompareFunc(dup)),
	}
}

// fileName is the unique on-disk identifier of the store within a home.
func (s *keyedStore) fileName() string {
	if s.kind == snapshot.KindIndex {
		return s.name + ".idx"
	}
	return s.name + ".tbl"
}

func (s *keyedStore) path(home string) string {
	return filepath.Join(home, s.fileName())
}

// onDisk reports whether a snapshot of this store exists under home.
func (s *keyedStore) onDisk(home string) bool {
	_, err := os.Stat(s.path(home))
	return err == nil
}

// load replays the store's snapshot file into the in-memory list.
// A missing file surfaces as os.ErrNotExist for the caller to map.
func (s *keyedStore) load(home string) error {
	_, err := snapshot.Read(s.path(home), func(k, v []byte) error {
		if !s.list.Insert(k, v) {
			return fmt.Errorf("%w: store %s: duplicate snapshot entry", ErrUnknown, s.name)
		}
		return nil
	})
	return err
}

// save checkpoints the store to its snapshot file.
func (s *keyedStore) save(home string) error {
	return snapshot.Write(s.path(home), s.name, s.kind, s.list.Len(), s.list.Ascend)
}
