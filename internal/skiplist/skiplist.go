// Package skiplist implements the ordered store backing tables, indexes and
// the sequence counters. Keys are opaque byte sequences ordered by a
// caller-supplied comparator. A list is either unique-keyed (primary stores)
// or duplicate-keyed (secondary stores), where duplicates are ordered by a
// second comparator over the values.
//
// Lists are not safe for concurrent use; callers serialize access.
package skiplist

import (
	"math/rand"
)

const maxHeight = 16

// CompareFunc is a total order over serialized keys or values.
// It returns a negative value if a < b, zero if equal, positive if a > b.
type CompareFunc func(a, b []byte) int

type node struct {
	key  []byte
	val  []byte
	next []*node
}

// List is a single ordered store.
type List struct {
	head   *node
	cmp    CompareFunc
	dup    CompareFunc // nil in unique mode
	height int
	length int
	rnd    *rand.Rand
}

// New creates a unique-keyed list.
func New(cmp CompareFunc) *List {
	return &List{
		head:   &node{next: make([]*node, maxHeight)},
		cmp:    cmp,
		height: 1,
		rnd:    rand.New(rand.NewSource(0x7ab1e)),
	}
}

// NewDup creates a duplicate-keyed list. Entries with equal keys are ordered
// by dup over their values. Exact (key, value) pairs stay unique.
func NewDup(cmp, dup CompareFunc) *List {
	l := New(cmp)
	l.dup = dup
	return l
}

func (l *List) Len() int { return l.length }

// Dup reports whether the list allows duplicate keys.
func (l *List) Dup() bool { return l.dup != nil }

// compareNode orders node n against the search position (key, val).
// In duplicate mode with withVal set, ties on key are broken by the
// duplicate comparator.
func (l *List) compareNode(n *node, key, val []byte, withVal bool) int {
	c := l.cmp(n.key, key)
	if c != 0 || l.dup == nil || !withVal {
		return c
	}
	return l.dup(n.val, val)
}

// findGE returns the first node whose entry is >= the search position, and
// fills prev with the rightmost node before that position on every level.
func (l *List) findGE(key, val []byte, withVal bool, prev *[maxHeight]*node) *node {
	n := l.head
	for level := l.height - 1; level >= 0; level-- {
		for n.next[level] != nil && l.compareNode(n.next[level], key, val, withVal) < 0 {
			n = n.next[level]
		}
		if prev != nil {
			prev[level] = n
		}
	}
	return n.next[0]
}

func (l *List) randomHeight() int {
	h := 1
	for h < maxHeight && l.rnd.Intn(4) == 0 {
		h++
	}
	return h
}

func (l *List) insertAt(prev *[maxHeight]*node, key, val []byte) {
	h := l.randomHeight()
	if h > l.height {
		for level := l.height; level < h; level++ {
			prev[level] = l.head
		}
		l.height = h
	}
	n := &node{key: key, val: val, next: make([]*node, h)}
	for level := 0; level < h; level++ {
		n.next[level] = prev[level].next[level]
		prev[level].next[level] = n
	}
	l.length++
}

func (l *List) removeAt(prev *[maxHeight]*node, n *node) {
	for level := 0; level < len(n.next); level++ {
		if prev[level].next[level] == n {
			prev[level].next[level] = n.next[level]
		}
	}
	l.length--
}

// Set inserts or replaces the value for key. Unique mode only.
// It returns the previous value when the key was already present.
func (l *List) Set(key, val []byte) (old []byte, replaced bool) {
	var prev [maxHeight]*node
	n := l.findGE(key, nil, false, &prev)
	if n != nil && l.cmp(n.key, key) == 0 {
		old = n.val
		n.val = val
		return old, true
	}
	l.insertAt(&prev, key, val)
	return nil, false
}

// Insert adds a (key, value) pair. In duplicate mode the pair is positioned
// by (key, dup(value)); an exact existing pair is rejected. In unique mode an
// existing key is rejected.
func (l *List) Insert(key, val []byte) bool {
	var prev [maxHeight]*node
	n := l.findGE(key, val, true, &prev)
	if n != nil && l.compareNode(n, key, val, true) == 0 {
		return false
	}
	l.insertAt(&prev, key, val)
	return true
}

// Get returns the value of the first entry matching key.
func (l *List) Get(key []byte) ([]byte, bool) {
	n := l.findGE(key, nil, false, nil)
	if n != nil && l.cmp(n.key, key) == 0 {
		return n.val, true
	}
	return nil, false
}

// Contains reports whether at least one entry matches key.
func (l *List) Contains(key []byte) bool {
	_, ok := l.Get(key)
	return ok
}

// Delete removes the entry for key. Unique mode only.
func (l *List) Delete(key []byte) (old []byte, ok bool) {
	var prev [maxHeight]*node
	n := l.findGE(key, nil, false, &prev)
	if n == nil || l.cmp(n.key, key) != 0 {
		return nil, false
	}
	l.removeAt(&prev, n)
	return n.val, true
}

// DeletePair removes the exact (key, value) pair. Duplicate mode only.
func (l *List) DeletePair(key, val []byte) bool {
	var prev [maxHeight]*node
	n := l.findGE(key, val, true, &prev)
	if n == nil || l.compareNode(n, key, val, true) != 0 {
		return false
	}
	l.removeAt(&prev, n)
	return true
}

// Min returns the smallest entry.
func (l *List) Min() (key, val []byte, ok bool) {
	n := l.head.next[0]
	if n == nil {
		return nil, nil, false
	}
	return n.key, n.val, true
}

// Ceiling returns the first entry with key >= the given key.
func (l *List) Ceiling(key []byte) (k, v []byte, ok bool) {
	n := l.findGE(key, nil, false, nil)
	if n == nil {
		return nil, nil, false
	}
	return n.key, n.val, true
}

// NextAfterKey returns the first entry strictly greater than key, ignoring
// duplicate order. Used by cursors that resume from the last fetched key.
func (l *List) NextAfterKey(key []byte) (k, v []byte, ok bool) {
	n := l.findGE(key, nil, false, nil)
	for n != nil && l.cmp(n.key, key) == 0 {
		n = n.next[0]
	}
	if n == nil {
		return nil, nil, false
	}
	return n.key, n.val, true
}

// NextAfterPair returns the first entry strictly greater than the (key, val)
// pair in composite order. Used by duplicate-aware cursors.
func (l *List) NextAfterPair(key, val []byte) (k, v []byte, ok bool) {
	n := l.findGE(key, val, true, nil)
	if n != nil && l.compareNode(n, key, val, true) == 0 {
		n = n.next[0]
	}
	if n == nil {
		return nil, nil, false
	}
	return n.key, n.val, true
}

// Ascend calls fn for every entry in order until fn returns false.
func (l *List) Ascend(fn func(key, val []byte) bool) {
	for n := l.head.next[0]; n != nil; n = n.next[0] {
		if !fn(n.key, n.val) {
			return
		}
	}
}
