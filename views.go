package synctable

import (
	"fmt"
	"strings"
)

// KeySet is a live view of a table's keys. It has no storage of its own:
// removal goes through to the table, and insertion is not supported.
type KeySet[K comparable, V any] struct {
	t *Table[K, V]
}

// ValueCollection is a live view of a table's values, see KeySet.
type ValueCollection[K comparable, V any] struct {
	t *Table[K, V]
}

// EntrySet is a live view of a table's entries, see KeySet.
type EntrySet[K comparable, V any] struct {
	t *Table[K, V]
}

// KeySet returns the key view. It is created once and cached.
func (t *Table[K, V]) KeySet() *KeySet[K, V] {
	defer t.lk.unlock(t.lk.lock())
	if t.keySet == nil {
		t.keySet = &KeySet[K, V]{t: t}
	}
	return t.keySet
}

// Values returns the value view. It is created once and cached.
func (t *Table[K, V]) Values() *ValueCollection[K, V] {
	defer t.lk.unlock(t.lk.lock())
	if t.values == nil {
		t.values = &ValueCollection[K, V]{t: t}
	}
	return t.values
}

// EntrySet returns the entry view. It is created once and cached.
func (t *Table[K, V]) EntrySet() *EntrySet[K, V] {
	defer t.lk.unlock(t.lk.lock())
	if t.entrySet == nil {
		t.entrySet = &EntrySet[K, V]{t: t}
	}
	return t.entrySet
}

// removeIf removes every entry for which pred holds, through a fail-fast
// iterator. pred runs without the lock held.
func (t *Table[K, V]) removeIf(pred func(it *Iterator[K, V]) bool) (int, error) {
	n := 0
	it := t.Iterator()
	for it.Next() {
		if pred(it) {
			if err := it.Remove(); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, it.Err()
}

// collect projects every entry, in iteration order, under one lock.
func collect[K comparable, V any, T any](t *Table[K, V], project func(e *entry[K, V]) T) []T {
	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	out := make([]T, 0, t.count)
	for i := len(t.buckets) - 1; i >= 0; i-- {
		for idx := t.buckets[i]; idx != nilIndex; {
			e := t.arena.at(idx)
			out = append(out, project(e))
			idx = e.next
		}
	}
	return out
}

func formatSlice[T any](items []T) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprint(&sb, item)
	}
	sb.WriteByte(']')
	return sb.String()
}

// Size returns the number of keys.
func (s *KeySet[K, V]) Size() int { return s.t.Size() }

// IsEmpty reports whether the view is empty.
func (s *KeySet[K, V]) IsEmpty() bool { return s.t.IsEmpty() }

// Contains reports whether key is present.
func (s *KeySet[K, V]) Contains(key K) bool { return s.t.ContainsKey(key) }

// Remove deletes key from the table.
func (s *KeySet[K, V]) Remove(key K) bool {
	_, ok := s.t.Remove(key)
	return ok
}

// Clear empties the table.
func (s *KeySet[K, V]) Clear() { s.t.Clear() }

// Iterator returns a fail-fast iterator; read keys with Key.
func (s *KeySet[K, V]) Iterator() *Iterator[K, V] { return s.t.Iterator() }

// RemoveIf removes every key for which pred holds and returns the count.
func (s *KeySet[K, V]) RemoveIf(pred func(key K) bool) (int, error) {
	return s.t.removeIf(func(it *Iterator[K, V]) bool {
		return pred(it.key)
	})
}

// Slice returns the keys in iteration order.
func (s *KeySet[K, V]) Slice() []K {
	return collect(s.t, func(e *entry[K, V]) K { return e.key })
}

func (s *KeySet[K, V]) String() string { return formatSlice(s.Slice()) }

// Size returns the number of values.
func (c *ValueCollection[K, V]) Size() int { return c.t.Size() }

// IsEmpty reports whether the view is empty.
func (c *ValueCollection[K, V]) IsEmpty() bool { return c.t.IsEmpty() }

// Contains reports whether some key maps to value.
func (c *ValueCollection[K, V]) Contains(value V) bool { return c.t.ContainsValue(value) }

// Remove deletes the first entry, in iteration order, whose value equals
// value.
func (c *ValueCollection[K, V]) Remove(value V) bool {
	t := c.t
	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	for i := len(t.buckets) - 1; i >= 0; i-- {
		prev := nilIndex
		for idx := t.buckets[i]; idx != nilIndex; {
			e := t.arena.at(idx)
			if t.equalValues(e.value, value) {
				t.removeAt(i, prev, idx)
				return true
			}
			prev, idx = idx, e.next
		}
	}
	return false
}

// Clear empties the table.
func (c *ValueCollection[K, V]) Clear() { c.t.Clear() }

// Iterator returns a fail-fast iterator; read values with Value.
func (c *ValueCollection[K, V]) Iterator() *Iterator[K, V] { return c.t.Iterator() }

// RemoveIf removes every entry whose value satisfies pred.
func (c *ValueCollection[K, V]) RemoveIf(pred func(value V) bool) (int, error) {
	return c.t.removeIf(func(it *Iterator[K, V]) bool {
		return pred(it.value)
	})
}

// Slice returns the values in iteration order.
func (c *ValueCollection[K, V]) Slice() []V {
	return collect(c.t, func(e *entry[K, V]) V { return e.value })
}

func (c *ValueCollection[K, V]) String() string { return formatSlice(c.Slice()) }

// Size returns the number of entries.
func (s *EntrySet[K, V]) Size() int { return s.t.Size() }

// IsEmpty reports whether the view is empty.
func (s *EntrySet[K, V]) IsEmpty() bool { return s.t.IsEmpty() }

// Contains reports whether e.Key is mapped to a value equal to e.Value.
func (s *EntrySet[K, V]) Contains(e EntryOf[K, V]) bool {
	t := s.t
	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	_, _, _, idx := t.lookup(e.Key)
	return idx != nilIndex && t.equalValues(t.arena.at(idx).value, e.Value)
}

// Remove deletes e.Key if it is mapped to a value equal to e.Value.
func (s *EntrySet[K, V]) Remove(e EntryOf[K, V]) bool {
	return s.t.CompareAndDelete(e.Key, e.Value)
}

// Clear empties the table.
func (s *EntrySet[K, V]) Clear() { s.t.Clear() }

// Iterator returns a fail-fast iterator; read entries with Entry.
func (s *EntrySet[K, V]) Iterator() *Iterator[K, V] { return s.t.Iterator() }

// RemoveIf removes every entry satisfying pred.
func (s *EntrySet[K, V]) RemoveIf(pred func(e EntryOf[K, V]) bool) (int, error) {
	return s.t.removeIf(func(it *Iterator[K, V]) bool {
		return pred(it.Entry())
	})
}

// Slice returns the entries in iteration order.
func (s *EntrySet[K, V]) Slice() []EntryOf[K, V] {
	return collect(s.t, func(e *entry[K, V]) EntryOf[K, V] {
		return EntryOf[K, V]{Key: e.key, Value: e.value}
	})
}

func (s *EntrySet[K, V]) String() string {
	entries := s.Slice()
	var sb strings.Builder
	sb.WriteByte('[')
	for i, e := range entries {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%v=%v", e.Key, e.Value)
	}
	sb.WriteByte(']')
	return sb.String()
}
