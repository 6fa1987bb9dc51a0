// Package bx holds byte-order helpers shared by the journal and snapshot codecs.
package bx

import "encoding/binary"

var LE = binary.LittleEndian

func U16(b []byte) uint16 { return LE.Uint16(b) }
func U32(b []byte) uint32 { return LE.Uint32(b) }
func U64(b []byte) uint64 { return LE.Uint64(b) }
func I64(b []byte) int64  { return int64(U64(b)) }

func PutU16(b []byte, v uint16) { LE.PutUint16(b, v) }
func PutU32(b []byte, v uint32) { LE.PutUint32(b, v) }
func PutU64(b []byte, v uint64) { LE.PutUint64(b, v) }
func PutI64(b []byte, v int64)  { PutU64(b, uint64(v)) }

// AppendU32 and friends grow a buffer in place, for variable-length records.

func AppendU16(b []byte, v uint16) []byte { return LE.AppendUint16(b, v) }
func AppendU32(b []byte, v uint32) []byte { return LE.AppendUint32(b, v) }
func AppendU64(b []byte, v uint64) []byte { return LE.AppendUint64(b, v) }
func AppendI64(b []byte, v int64) []byte  { return AppendU64(b, uint64(v)) }
