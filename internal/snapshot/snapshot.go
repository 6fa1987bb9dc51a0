// Package snapshot reads and writes per-store checkpoint files. Every table,
// index and the reserved sequence store is persisted as one snapshot file
// under the database home directory when the database closes cleanly.
package snapshot

import (
	"errors"
	"fmt"
	"hash/crc32"
	"os"

	"tablekv/internal/bx"
)

var (
	ErrBadMagic   = errors.New("snapshot: bad magic")
	ErrBadVersion = errors.New("snapshot: unsupported version")
	ErrCorrupt    = errors.New("snapshot: corrupt file")
)

const (
	magicU32   uint32 = 0x53564B54 // "TKVS"
	versionU16 uint16 = 1

	// magic(4) ver(2) kind(1) rsv(1) nameLen(2) count(4) crc(4)
	headerSize = 4 + 2 + 1 + 1 + 2 + 4 + 4
)

// Kind tells what a store file holds.
type Kind uint8

const (
	KindTable Kind = iota + 1
	KindIndex
	KindSystem
)

func (k Kind) String() string {
	switch k {
	case KindTable:
		return "table"
	case KindIndex:
		return "index"
	case KindSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Info describes a snapshot file without its entries.
type Info struct {
	Name  string
	Kind  Kind
	Count int
}

// Write persists count entries, produced in order by ascend, to path.
// The file is written to a temp sibling and renamed into place, so a crash
// mid-write never leaves a half-written snapshot behind.
func Write(path, name string, kind Kind, count int, ascend func(fn func(k, v []byte) bool)) error {
	buf := make([]byte, headerSize)
	bx.PutU32(buf[0:4], magicU32)
	bx.PutU16(buf[4:6], versionU16)
	buf[6] = byte(kind)
	buf[7] = 0
	bx.PutU16(buf[8:10], uint16(len(name)))
	bx.PutU32(buf[10:14], uint32(count))
	// crc at [14:18], filled below

	buf = append(buf, name...)
	ascend(func(k, v []byte) bool {
		buf = bx.AppendU32(buf, uint32(len(k)))
		buf = append(buf, k...)
		buf = bx.AppendU32(buf, uint32(len(v)))
		buf = append(buf, v...)
		return true
	})
	bx.PutU32(buf[14:18], crc32.ChecksumIEEE(buf[headerSize:]))

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Read loads a snapshot, calling fn for every entry in stored order.
func Read(path string, fn func(k, v []byte) error) (Info, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return Info{}, err
	}
	info, body, err := parseHeader(buf)
	if err != nil {
		return Info{}, err
	}
	if crc32.ChecksumIEEE(body) != bx.U32(buf[14:18]) {
		return Info{}, ErrCorrupt
	}
	off := len(info.Name)
	for i := 0; i < info.Count; i++ {
		k, n, err := readBlob(body, off)
		if err != nil {
			return Info{}, err
		}
		off = n
		v, n, err := readBlob(body, off)
		if err != nil {
			return Info{}, err
		}
		off = n
		if err := fn(k, v); err != nil {
			return Info{}, err
		}
	}
	if off != len(body) {
		return Info{}, fmt.Errorf("snapshot: %d trailing bytes: %w", len(body)-off, ErrCorrupt)
	}
	return info, nil
}

// ReadInfo parses only the header of a snapshot file.
func ReadInfo(path string) (Info, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return Info{}, err
	}
	info, _, err := parseHeader(buf)
	return info, err
}

func parseHeader(buf []byte) (Info, []byte, error) {
	if len(buf) < headerSize {
		return Info{}, nil, ErrCorrupt
	}
	if bx.U32(buf[0:4]) != magicU32 {
		return Info{}, nil, ErrBadMagic
	}
	if bx.U16(buf[4:6]) != versionU16 {
		return Info{}, nil, ErrBadVersion
	}
	nameLen := int(bx.U16(buf[8:10]))
	count := int(bx.U32(buf[10:14]))
	body := buf[headerSize:]
	if len(body) < nameLen {
		return Info{}, nil, ErrCorrupt
	}
	return Info{
		Name:  string(body[:nameLen]),
		Kind:  Kind(buf[6]),
		Count: count,
	}, body, nil
}

func readBlob(body []byte, off int) ([]byte, int, error) {
	if off+4 > len(body) {
		return nil, 0, ErrCorrupt
	}
	n := int(bx.U32(body[off : off+4]))
	off += 4
	if off+n > len(body) {
		return nil, 0, ErrCorrupt
	}
	return body[off : off+n], off + n, nil
}
