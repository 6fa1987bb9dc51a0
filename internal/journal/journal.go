// Package journal is the write-ahead journal of a database home. It makes
// sequence allocations individually durable (the engine runs sequences with
// zero cache, so every allocated value survives a crash) and records
// checkpoint markers written when the stores are snapshotted on clean close.
package journal

import (
	"bufio"
	"errors"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"tablekv/internal/bx"
)

var (
	ErrBadMagic  = errors.New("journal: bad magic")
	ErrBadCRC    = errors.New("journal: bad crc")
	ErrBadRecord = errors.New("journal: bad record")
	ErrShortRead = errors.New("journal: short read")
	ErrClosed    = errors.New("journal: closed")
)

const (
	magicU32   uint32 = 0x4A564B54 // "TKVJ"
	versionU16 uint16 = 1

	// FileName is the journal file within a database home.
	FileName = "journal.tkv"

	// magic(4) ver(2) typ(1) rsv(1) totalLen(4) crc(4)
	headerSize = 4 + 2 + 1 + 1 + 4 + 4

	// maxRecordLen bounds totalLen before the payload is allocated, so a
	// corrupt header cannot force a multi-gigabyte allocation on replay.
	maxRecordLen = 1 << 20
)

// Record types.
const (
	RecSeqAlloc   uint8 = 1
	RecCheckpoint uint8 = 2
)

// Record is one decoded journal entry.
type Record struct {
	Type  uint8
	Name  string // sequence name, RecSeqAlloc only
	Value int64  // allocated value, RecSeqAlloc only
}

// Journal appends records to the journal file of one database home.
type Journal struct {
	mu    sync.Mutex
	f     *os.File
	path  string
	fsync bool
}

// Open opens (creating if needed) the journal in dir. With fsync set, every
// append is synced to stable storage before returning.
func Open(dir string, fsync bool) (*Journal, error) {
	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Journal{f: f, path: path, fsync: fsync}, nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return nil
	}
	err := j.f.Close()
	j.f = nil
	return err
}

// AppendSeqAlloc journals one sequence allocation.
func (j *Journal) AppendSeqAlloc(name string, value int64) error {
	payload := make([]byte, 0, 2+len(name)+8)
	payload = bx.AppendU16(payload, uint16(len(name)))
	payload = append(payload, name...)
	payload = bx.AppendI64(payload, value)
	return j.append(RecSeqAlloc, payload)
}

// AppendCheckpoint journals a checkpoint marker. Records before the marker
// are covered by the store snapshots written alongside it.
func (j *Journal) AppendCheckpoint() error {
	return j.append(RecCheckpoint, nil)
}

func (j *Journal) append(typ uint8, payload []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return ErrClosed
	}

	totalLen := headerSize + len(payload)
	buf := make([]byte, headerSize, totalLen)
	bx.PutU32(buf[0:4], magicU32)
	bx.PutU16(buf[4:6], versionU16)
	buf[6] = typ
	buf[7] = 0
	bx.PutU32(buf[8:12], uint32(totalLen))
	buf = append(buf, payload...)
	bx.PutU32(buf[12:16], crc32.ChecksumIEEE(buf[headerSize:]))

	if _, err := j.f.Write(buf); err != nil {
		return err
	}
	if j.fsync {
		return j.f.Sync()
	}
	return nil
}

// Reset truncates the journal. Called after a checkpoint has been persisted.
func (j *Journal) Reset() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return ErrClosed
	}
	if err := j.f.Truncate(0); err != nil {
		return err
	}
	_, err := j.f.Seek(0, io.SeekStart)
	return err
}

// Replay reads the journal in dir and calls fn per record. A torn record at
// the tail (crash mid-append) ends the replay without error; corruption
// elsewhere is reported. A missing journal file replays nothing.
func Replay(dir string, fn func(Record) error) error {
	f, err := os.Open(filepath.Join(dir, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReaderSize(f, 1<<16)
	for {
		rec, err := readOne(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			// tolerate a torn tail record
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, ErrShortRead) {
				return nil
			}
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

func readOne(r *bufio.Reader) (Record, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Record{}, err
	}
	if bx.U32(hdr[0:4]) != magicU32 {
		return Record{}, ErrBadMagic
	}
	if bx.U16(hdr[4:6]) != versionU16 {
		return Record{}, ErrBadRecord
	}
	typ := hdr[6]
	totalLen := int(bx.U32(hdr[8:12]))
	if totalLen < headerSize || totalLen > maxRecordLen {
		return Record{}, ErrBadRecord
	}

	payload := make([]byte, totalLen-headerSize)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, ErrShortRead
		}
		return Record{}, err
	}
	if crc32.ChecksumIEEE(payload) != bx.U32(hdr[12:16]) {
		return Record{}, ErrBadCRC
	}

	rec := Record{Type: typ}
	switch typ {
	case RecSeqAlloc:
		if len(payload) < 2 {
			return Record{}, ErrBadRecord
		}
		nameLen := int(bx.U16(payload[0:2]))
		if len(payload) != 2+nameLen+8 {
			return Record{}, ErrBadRecord
		}
		rec.Name = string(payload[2 : 2+nameLen])
		rec.Value = bx.I64(payload[2+nameLen:])
	case RecCheckpoint:
		if len(payload) != 0 {
			return Record{}, ErrBadRecord
		}
	default:
		return Record{}, ErrBadRecord
	}
	return rec, nil
}
