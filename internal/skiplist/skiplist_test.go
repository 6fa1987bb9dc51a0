package skiplist

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func b(s string) []byte { return []byte(s) }

func keys(l *List) []string {
	var out []string
	l.Ascend(func(k, _ []byte) bool {
		out = append(out, string(k))
		return true
	})
	return out
}

func TestSetGetDelete(t *testing.T) {
	l := New(bytes.Compare)

	for _, k := range []string{"cherry", "apple", "banana"} {
		_, replaced := l.Set(b(k), b("v-"+k))
		require.False(t, replaced)
	}
	require.Equal(t, 3, l.Len())
	require.Equal(t, []string{"apple", "banana", "cherry"}, keys(l))

	v, ok := l.Get(b("banana"))
	require.True(t, ok)
	require.Equal(t, "v-banana", string(v))

	old, replaced := l.Set(b("banana"), b("v2"))
	require.True(t, replaced)
	require.Equal(t, "v-banana", string(old))
	require.Equal(t, 3, l.Len())

	old, ok = l.Delete(b("banana"))
	require.True(t, ok)
	require.Equal(t, "v2", string(old))
	require.False(t, l.Contains(b("banana")))

	_, ok = l.Delete(b("banana"))
	require.False(t, ok)
}

func TestUniqueInsertRejectsExisting(t *testing.T) {
	l := New(bytes.Compare)

	require.True(t, l.Insert(b("k"), b("v1")))
	require.False(t, l.Insert(b("k"), b("v2")))

	v, ok := l.Get(b("k"))
	require.True(t, ok)
	require.Equal(t, "v1", string(v))
}

func TestDuplicateOrder(t *testing.T) {
	l := NewDup(bytes.Compare, bytes.Compare)

	require.True(t, l.Insert(b("season"), b("march")))
	require.True(t, l.Insert(b("season"), b("april")))
	require.True(t, l.Insert(b("season"), b("may")))
	require.False(t, l.Insert(b("season"), b("april")))
	require.Equal(t, 3, l.Len())

	var vals []string
	l.Ascend(func(_, v []byte) bool {
		vals = append(vals, string(v))
		return true
	})
	require.Equal(t, []string{"april", "march", "may"}, vals)

	require.True(t, l.DeletePair(b("season"), b("march")))
	require.False(t, l.DeletePair(b("season"), b("march")))
	require.Equal(t, 2, l.Len())
	require.True(t, l.Contains(b("season")))
}

func TestCursorSeeks(t *testing.T) {
	l := New(bytes.Compare)
	for _, k := range []string{"b", "d", "f"} {
		l.Set(b(k), b(k))
	}

	k, _, ok := l.Min()
	require.True(t, ok)
	require.Equal(t, "b", string(k))

	k, _, ok = l.Ceiling(b("c"))
	require.True(t, ok)
	require.Equal(t, "d", string(k))

	k, _, ok = l.Ceiling(b("d"))
	require.True(t, ok)
	require.Equal(t, "d", string(k))

	k, _, ok = l.NextAfterKey(b("d"))
	require.True(t, ok)
	require.Equal(t, "f", string(k))

	_, _, ok = l.NextAfterKey(b("f"))
	require.False(t, ok)
}

func TestNextAfterPair(t *testing.T) {
	l := NewDup(bytes.Compare, bytes.Compare)
	l.Insert(b("k"), b("a"))
	l.Insert(b("k"), b("b"))
	l.Insert(b("m"), b("a"))

	k, v, ok := l.NextAfterPair(b("k"), b("a"))
	require.True(t, ok)
	require.Equal(t, "k", string(k))
	require.Equal(t, "b", string(v))

	k, _, ok = l.NextAfterPair(b("k"), b("b"))
	require.True(t, ok)
	require.Equal(t, "m", string(k))

	// A deleted resume position still lands on the next entry.
	l.DeletePair(b("k"), b("b"))
	k, _, ok = l.NextAfterPair(b("k"), b("a"))
	require.True(t, ok)
	require.Equal(t, "m", string(k))
}

func TestCustomComparator(t *testing.T) {
	desc := func(a, b []byte) int { return bytes.Compare(b, a) }
	l := New(desc)
	for _, k := range []string{"a", "b", "c"} {
		l.Set([]byte(k), nil)
	}
	require.Equal(t, []string{"c", "b", "a"}, keys(l))
}

func TestManyEntries(t *testing.T) {
	l := New(bytes.Compare)
	const n = 2000

	for i := 0; i < n; i++ {
		l.Set(b(fmt.Sprintf("key-%06d", i*7919%n)), b(fmt.Sprintf("%d", i)))
	}
	require.Equal(t, n, l.Len())

	prev := ""
	count := 0
	l.Ascend(func(k, _ []byte) bool {
		require.Greater(t, string(k), prev)
		prev = string(k)
		count++
		return true
	})
	require.Equal(t, n, count)
}
