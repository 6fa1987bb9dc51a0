package tablekv

import (
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// text is a plain string key for tests.
type text string

func (s text) MarshalBinary() ([]byte, error) { return []byte(s), nil }
func (s *text) UnmarshalBinary(b []byte) error {
	*s = text(b)
	return nil
}

func key(s string) *text {
	k := text(s)
	return &k
}

// monthInfo is the record payload used across tests.
type monthInfo struct {
	Season string `json:"season"`
	Days   int32  `json:"days"`
	Ordnum int32  `json:"ordnum"`
}

func (m monthInfo) MarshalBinary() ([]byte, error) { return json.Marshal(m) }
func (m *monthInfo) UnmarshalBinary(b []byte) error {
	return json.Unmarshal(b, m)
}

// ordnumProjector derives a big-endian ordnum key; records with ordnum 0 are
// skipped.
func ordnumProjector(_, data []byte) ([]byte, bool) {
	var m monthInfo
	if json.Unmarshal(data, &m) != nil || m.Ordnum == 0 {
		return nil, false
	}
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(m.Ordnum))
	return b, true
}

// seasonProjector derives the season name; records with an empty season are
// skipped.
func seasonProjector(_, data []byte) ([]byte, bool) {
	var m monthInfo
	if json.Unmarshal(data, &m) != nil || m.Season == "" {
		return nil, false
	}
	return []byte(m.Season), true
}

func ordnumKey(n int32) *text {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(n))
	k := text(b)
	return &k
}

// newTestDB creates a database in a temp home; fsync is off to keep tests
// fast. The home is returned for reopen tests.
func newTestDB(t *testing.T) (*Database, string) {
	t.Helper()

	home := t.TempDir()
	cfg := DefaultConfig()
	cfg.Journal.Fsync = false

	db, err := OpenConfig(home, true, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, home
}

// reopenDB closes db and opens the same home again.
func reopenDB(t *testing.T, db *Database, home string) *Database {
	t.Helper()

	require.NoError(t, db.Close())
	cfg := DefaultConfig()
	cfg.Journal.Fsync = false
	db2, err := OpenConfig(home, false, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db2.Close() })
	return db2
}

// monthTable creates the canonical test table.
func monthTable(t *testing.T, db *Database) *Table {
	t.Helper()

	tbl, err := db.AddTable("month", nil, true)
	require.NoError(t, err)
	return tbl
}

func september() *monthInfo {
	return &monthInfo{Season: "Fall", Days: 30, Ordnum: 9}
}
