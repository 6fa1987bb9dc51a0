package tablekv

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func insertMonths(t *testing.T, tbl *Table) {
	t.Helper()
	months := map[string]monthInfo{
		"January":   {Season: "Winter", Days: 31, Ordnum: 1},
		"February":  {Season: "Winter", Days: 28, Ordnum: 2},
		"June":      {Season: "Summer", Days: 30, Ordnum: 6},
		"July":      {Season: "Summer", Days: 31, Ordnum: 7},
		"September": {Season: "Fall", Days: 30, Ordnum: 9},
	}
	for name, m := range months {
		require.NoError(t, tbl.Insert(key(name), &m))
	}
}

func TestIndexBackfill(t *testing.T) {
	db, _ := newTestDB(t)
	tbl := monthTable(t, db)
	insertMonths(t, tbl)

	ix, err := tbl.AddIndex("by_season", seasonProjector, nil, false)
	require.NoError(t, err)

	for _, season := range []string{"Winter", "Summer", "Fall"} {
		ok, err := ix.Exists(key(season))
		require.NoError(t, err)
		require.True(t, ok, season)
	}
	ok, err := ix.Exists(key("Monsoon"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIndexFollowsMutations(t *testing.T) {
	db, _ := newTestDB(t)
	tbl := monthTable(t, db)
	ix, err := tbl.AddIndex("by_season", seasonProjector, nil, false)
	require.NoError(t, err)

	require.NoError(t, tbl.Insert(key("September"), september()))
	ok, err := ix.Exists(key("Fall"))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, tbl.Update(key("September"), &monthInfo{Season: "Autumn", Days: 30, Ordnum: 9}))
	ok, err = ix.Exists(key("Fall"))
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = ix.Exists(key("Autumn"))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, tbl.Remove(key("September")))
	ok, err = ix.Exists(key("Autumn"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUniqueIndexConflict(t *testing.T) {
	db, _ := newTestDB(t)
	tbl := monthTable(t, db)
	_, err := tbl.AddIndex("by_ordnum", ordnumProjector, nil, true)
	require.NoError(t, err)

	require.NoError(t, tbl.Insert(key("September"), september()))
	err = tbl.Insert(key("Septembear"), &monthInfo{Season: "Fall", Days: 30, Ordnum: 9})
	require.ErrorIs(t, err, ErrKeyExists)

	// The failed insert left no trace behind.
	ok, err := tbl.Exists(key("Septembear"))
	require.NoError(t, err)
	require.False(t, ok)

	// Updating the record to keep its own derived key is fine.
	require.NoError(t, tbl.Update(key("September"), &monthInfo{Season: "Fall", Days: 29, Ordnum: 9}))
}

func TestAddIndexErrors(t *testing.T) {
	db, _ := newTestDB(t)
	tbl := monthTable(t, db)

	_, err := tbl.AddIndex("ix", nil, nil, false)
	require.ErrorIs(t, err, ErrUnknown)

	_, err = tbl.AddIndex("ix", seasonProjector, nil, false)
	require.NoError(t, err)
	_, err = tbl.AddIndex("ix", seasonProjector, nil, false)
	require.ErrorIs(t, err, ErrKeyExists)
}

func TestIndexPersistence(t *testing.T) {
	db, home := newTestDB(t)
	tbl := monthTable(t, db)
	insertMonths(t, tbl)
	_, err := tbl.AddIndex("by_season", seasonProjector, nil, false)
	require.NoError(t, err)

	db2 := reopenDB(t, db, home)
	tbl2, err := db2.AddTable("month", nil, false)
	require.NoError(t, err)
	ix2, err := tbl2.AddIndex("by_season", seasonProjector, nil, false)
	require.NoError(t, err)

	ok, err := ix2.Exists(key("Summer"))
	require.NoError(t, err)
	require.True(t, ok)

	rs, err := NewIndexKeyRecordset(ix2, key("Winter"))
	require.NoError(t, err)
	defer rs.Close()
	require.Equal(t, []string{"February", "January"}, fetchAll(t, rs))
}

// orderRec is a child record referencing a month by season.
type orderRec struct {
	Season string `json:"season"`
	Item   string `json:"item"`
}

func (o orderRec) MarshalBinary() ([]byte, error) { return json.Marshal(o) }
func (o *orderRec) UnmarshalBinary(b []byte) error {
	return json.Unmarshal(b, o)
}

func orderSeasonProjector(_, data []byte) ([]byte, bool) {
	var o orderRec
	if json.Unmarshal(data, &o) != nil || o.Season == "" {
		return nil, false
	}
	return []byte(o.Season), true
}

// fkFixture builds a master "season" table keyed by season name and a child
// "order" table whose by_season index references it.
func fkFixture(t *testing.T, db *Database) (master, child *Table, ix *Index) {
	t.Helper()

	master, err := db.AddTable("season", nil, true)
	require.NoError(t, err)
	for _, s := range []string{"Winter", "Summer", "Fall"} {
		require.NoError(t, master.Insert(key(s), key(s)))
	}

	child, err = db.AddTable("order", nil, true)
	require.NoError(t, err)
	ix, err = child.AddIndex("by_season", orderSeasonProjector, nil, false)
	require.NoError(t, err)
	return master, child, ix
}

func TestForeignKeyInsertCheck(t *testing.T) {
	db, _ := newTestDB(t)
	master, child, ix := fkFixture(t, db)
	require.NoError(t, ix.AddForeign(master, false))

	require.NoError(t, child.Insert(key("o1"), &orderRec{Season: "Winter", Item: "sled"}))
	err := child.Insert(key("o2"), &orderRec{Season: "Monsoon", Item: "boat"})
	require.ErrorIs(t, err, ErrForeignKey)
}

func TestForeignKeyAbort(t *testing.T) {
	db, _ := newTestDB(t)
	master, child, ix := fkFixture(t, db)
	require.NoError(t, ix.AddForeign(master, false))

	require.NoError(t, child.Insert(key("o1"), &orderRec{Season: "Winter", Item: "sled"}))

	require.ErrorIs(t, master.Remove(key("Winter")), ErrForeignKey)
	ok, err := master.Exists(key("Winter"))
	require.NoError(t, err)
	require.True(t, ok)

	// Unreferenced master rows still go away.
	require.NoError(t, master.Remove(key("Summer")))

	// Once the child row is gone the master row can follow.
	require.NoError(t, child.Remove(key("o1")))
	require.NoError(t, master.Remove(key("Winter")))
}

func TestForeignKeyCascade(t *testing.T) {
	db, _ := newTestDB(t)
	master, child, ix := fkFixture(t, db)
	require.NoError(t, ix.AddForeign(master, true))

	require.NoError(t, child.Insert(key("o1"), &orderRec{Season: "Winter", Item: "sled"}))
	require.NoError(t, child.Insert(key("o2"), &orderRec{Season: "Winter", Item: "skis"}))
	require.NoError(t, child.Insert(key("o3"), &orderRec{Season: "Summer", Item: "kite"}))

	require.NoError(t, master.Remove(key("Winter")))

	for k, want := range map[string]bool{"o1": false, "o2": false, "o3": true} {
		ok, err := child.Exists(key(k))
		require.NoError(t, err)
		require.Equal(t, want, ok, k)
	}
	ok, err := ix.Exists(key("Winter"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestForeignKeyNullify(t *testing.T) {
	db, _ := newTestDB(t)
	master, child, ix := fkFixture(t, db)

	nullify := func(_, data, _ []byte) ([]byte, bool, error) {
		var o orderRec
		if err := json.Unmarshal(data, &o); err != nil {
			return nil, false, err
		}
		o.Season = ""
		out, err := json.Marshal(o)
		return out, true, err
	}
	require.NoError(t, ix.AddForeignNullify(master, nullify))

	require.NoError(t, child.Insert(key("o1"), &orderRec{Season: "Winter", Item: "sled"}))
	require.NoError(t, master.Remove(key("Winter")))

	// The child row survives with the reference cleared.
	var got orderRec
	require.NoError(t, child.Select(key("o1"), &got))
	require.Empty(t, got.Season)
	require.Equal(t, "sled", got.Item)

	ok, err := ix.Exists(key("Winter"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestForeignKeyRollback(t *testing.T) {
	db, _ := newTestDB(t)
	master, child, ix := fkFixture(t, db)
	require.NoError(t, ix.AddForeign(master, true))

	require.NoError(t, child.Insert(key("o1"), &orderRec{Season: "Winter", Item: "sled"}))

	require.NoError(t, db.BeginTransaction())
	require.NoError(t, master.Remove(key("Winter")))
	require.NoError(t, db.RollbackTransaction())

	// Both the master row and the cascaded child row come back.
	ok, err := master.Exists(key("Winter"))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = child.Exists(key("o1"))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = ix.Exists(key("Winter"))
	require.NoError(t, err)
	require.True(t, ok)
}

// nodeRec references another record of its own table by key.
type nodeRec struct {
	Parent string `json:"parent"`
}

func (n nodeRec) MarshalBinary() ([]byte, error) { return json.Marshal(n) }
func (n *nodeRec) UnmarshalBinary(b []byte) error {
	return json.Unmarshal(b, n)
}

func parentProjector(_, data []byte) ([]byte, bool) {
	var n nodeRec
	if json.Unmarshal(data, &n) != nil || n.Parent == "" {
		return nil, false
	}
	return []byte(n.Parent), true
}

// nodeFixture builds a table whose by_parent index holds a cascade foreign
// key against the table itself.
func nodeFixture(t *testing.T, db *Database) *Table {
	t.Helper()

	tbl, err := db.AddTable("node", nil, true)
	require.NoError(t, err)
	ix, err := tbl.AddIndex("by_parent", parentProjector, nil, false)
	require.NoError(t, err)
	require.NoError(t, ix.AddForeign(tbl, true))
	return tbl
}

func TestForeignKeyCascadeCycle(t *testing.T) {
	db, _ := newTestDB(t)
	tbl := nodeFixture(t, db)

	// Two records referencing each other; the checks pass because both keys
	// exist by the time each Update runs.
	require.NoError(t, tbl.Insert(key("a"), &nodeRec{}))
	require.NoError(t, tbl.Insert(key("b"), &nodeRec{}))
	require.NoError(t, tbl.Update(key("a"), &nodeRec{Parent: "b"}))
	require.NoError(t, tbl.Update(key("b"), &nodeRec{Parent: "a"}))

	require.NoError(t, tbl.Remove(key("a")))

	for _, k := range []string{"a", "b"} {
		ok, err := tbl.Exists(key(k))
		require.NoError(t, err)
		require.False(t, ok, k)
	}
}

func TestForeignKeySelfReference(t *testing.T) {
	db, _ := newTestDB(t)
	tbl := nodeFixture(t, db)

	// A record whose derived key is its own primary key inserts cleanly:
	// the key is present by the time the index entry is derived.
	require.NoError(t, tbl.Insert(key("root"), &nodeRec{Parent: "root"}))

	ix := tbl.indexes[0]
	ok, err := ix.Exists(key("root"))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, tbl.Remove(key("root")))
	ok, err = tbl.Exists(key("root"))
	require.NoError(t, err)
	require.False(t, ok)

	// A dangling reference still fails.
	err = tbl.Insert(key("orphan"), &nodeRec{Parent: "ghost"})
	require.ErrorIs(t, err, ErrForeignKey)
	ok, err = tbl.Exists(key("orphan"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAddForeignErrors(t *testing.T) {
	db, _ := newTestDB(t)
	master, _, ix := fkFixture(t, db)

	require.NoError(t, ix.AddForeign(master, false))
	require.ErrorIs(t, ix.AddForeign(master, true), ErrUnknown)
}
