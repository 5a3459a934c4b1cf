package synctable

import "iter"

// EntryOf is an immutable snapshot of a table entry.
type EntryOf[K comparable, V any] struct {
	Key   K
	Value V
}

// Iterator walks a table from the highest bucket down, and each chain from
// head to tail. Every step takes the table lock.
//
// Iterators come in two flavors sharing this type:
//   - fail-fast (Table.Iterator and the views): a structural change not made
//     through the iterator itself stops iteration, and Err returns
//     ErrConcurrentModification. Detection is best-effort.
//   - legacy enumerators (Table.Enumerate, All, Keys, Elements): no
//     modification check and no Remove; results are unspecified if the table
//     changes meanwhile.
//
// Typical use:
//
//	it := t.Iterator()
//	for it.Next() {
//		use(it.Key(), it.Value())
//	}
//	if err := it.Err(); err != nil {
//		...
//	}
type Iterator[K comparable, V any] struct {
	t       *Table[K, V]
	buckets []int32 // bucket array at creation
	bucket  int     // buckets below this index are still to be visited
	next    int32
	last    int32 // entry returned by the latest Next, nilIndex after Remove

	key   K
	value V

	expectedModCount uint64
	failFast         bool
	removable        bool
	err              error
}

func (t *Table[K, V]) newIterator(failFast, removable bool) *Iterator[K, V] {
	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	return &Iterator[K, V]{
		t:                t,
		buckets:          t.buckets,
		bucket:           len(t.buckets),
		next:             nilIndex,
		last:             nilIndex,
		expectedModCount: t.modCount,
		failFast:         failFast,
		removable:        removable,
	}
}

// Iterator returns a fail-fast iterator that supports Remove and SetValue.
func (t *Table[K, V]) Iterator() *Iterator[K, V] {
	return t.newIterator(true, true)
}

// Enumerate returns a legacy enumerator: not fail-fast, no Remove.
func (t *Table[K, V]) Enumerate() *Iterator[K, V] {
	return t.newIterator(false, false)
}

// All is the range-over-func form of Enumerate.
func (t *Table[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		it := t.Enumerate()
		for it.Next() {
			if !yield(it.key, it.value) {
				return
			}
		}
	}
}

// Keys enumerates the keys of the table, see Enumerate.
func (t *Table[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		it := t.Enumerate()
		for it.Next() {
			if !yield(it.key) {
				return
			}
		}
	}
}

// Elements enumerates the values of the table, see Enumerate.
func (t *Table[K, V]) Elements() iter.Seq[V] {
	return func(yield func(V) bool) {
		it := t.Enumerate()
		for it.Next() {
			if !yield(it.value) {
				return
			}
		}
	}
}

// Next advances to the next entry and reports whether there is one.
func (it *Iterator[K, V]) Next() bool {
	if it.err != nil {
		return false
	}
	t := it.t
	defer t.lk.unlock(t.lk.lock())

	if it.failFast && t.modCount != it.expectedModCount {
		it.err = t.concurrentModification("iterate")
		it.last = nilIndex
		return false
	}
	for {
		for it.next == nilIndex {
			if it.bucket == 0 {
				it.last = nilIndex
				return false
			}
			it.bucket--
			it.next = it.buckets[it.bucket]
		}
		// An enumerator may hold indices the table has since released.
		if it.failFast || t.arena.valid(it.next) {
			break
		}
		it.next = nilIndex
	}

	e := t.arena.at(it.next)
	it.last = it.next
	it.key, it.value = e.key, e.value
	it.next = e.next
	return true
}

// Key returns the key of the current entry.
func (it *Iterator[K, V]) Key() K {
	return it.key
}

// Value returns the value of the current entry as of the latest Next or
// SetValue.
func (it *Iterator[K, V]) Value() V {
	return it.value
}

// Entry returns the current entry.
func (it *Iterator[K, V]) Entry() EntryOf[K, V] {
	return EntryOf[K, V]{Key: it.key, Value: it.value}
}

// Err returns the error that stopped iteration, if any.
func (it *Iterator[K, V]) Err() error {
	return it.err
}

// Remove deletes the current entry from the table. Iteration may continue
// afterwards; a second Remove without an intervening Next fails with
// ErrIllegalState.
func (it *Iterator[K, V]) Remove() error {
	if !it.removable {
		return ErrUnsupported
	}
	t := it.t
	defer t.lk.unlock(t.lk.lock())

	if it.last == nilIndex {
		return ErrIllegalState
	}
	if t.modCount != it.expectedModCount {
		it.err = t.concurrentModification("iterator remove")
		return it.err
	}
	t.unlink(it.last)
	it.expectedModCount = t.modCount
	it.last = nilIndex
	return nil
}

// SetValue overwrites the value of the current entry in the table.
func (it *Iterator[K, V]) SetValue(value V) error {
	if !it.removable {
		return ErrUnsupported
	}
	t := it.t
	defer t.lk.unlock(t.lk.lock())

	if it.last == nilIndex {
		return ErrIllegalState
	}
	if t.modCount != it.expectedModCount {
		it.err = t.concurrentModification("iterator setValue")
		return it.err
	}
	if err := t.checkValue(value); err != nil {
		return err
	}
	t.arena.at(it.last).value = value
	it.value = value
	return nil
}
