package synctable

import "github.com/cockroachdb/errors"

// concurrentModification builds the error returned when the structure
// changed under an operation, usually through a reentrant callback.
func (t *Table[K, V]) concurrentModification(op string) error {
	t.logger.Debug().
		Str("op", op).
		Uint64("modCount", t.modCount).
		Msg("synctable: concurrent modification detected")
	return errors.Wrapf(ErrConcurrentModification, "during %s", op)
}

// Merge stores value if key is absent. Otherwise it calls remappingFn with
// the current value and value: a true result replaces the mapping, false
// removes it. The returned pair is the resulting mapping.
//
// remappingFn runs with the table locked. It may read the table, but a
// structural change it makes is reported as ErrConcurrentModification and the
// merge itself is abandoned.
func (t *Table[K, V]) Merge(
	key K,
	value V,
	remappingFn func(oldValue, value V) (newValue V, ok bool),
) (actual V, ok bool, err error) {
	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	if err = t.checkEntry(key, value); err != nil {
		return
	}

	hash, bidx, prev, idx := t.lookup(key)
	if idx == nilIndex {
		t.addEntry(hash, key, value, bidx)
		return value, true, nil
	}

	oldValue := t.arena.at(idx).value
	mc := t.modCount
	var newValue V
	t.lk.call(func() {
		newValue, ok = remappingFn(oldValue, value)
	})
	if mc != t.modCount {
		return actual, false, t.concurrentModification("merge")
	}
	if !ok {
		t.removeAt(bidx, prev, idx)
		return
	}
	if err = t.checkValue(newValue); err != nil {
		return actual, false, err
	}
	t.arena.at(idx).value = newValue
	return newValue, true, nil
}

// Compute calls remappingFn with the current mapping for key (loaded is
// false if there is none). A true result stores newValue, false removes the
// mapping if present. The returned pair is the resulting mapping.
//
// remappingFn runs with the table locked, see Merge.
func (t *Table[K, V]) Compute(
	key K,
	remappingFn func(key K, oldValue V, loaded bool) (newValue V, ok bool),
) (actual V, ok bool, err error) {
	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	if err = t.checkKey(key); err != nil {
		return
	}

	hash, bidx, prev, idx := t.lookup(key)
	var oldValue V
	loaded := idx != nilIndex
	if loaded {
		oldValue = t.arena.at(idx).value
	}
	mc := t.modCount
	var newValue V
	t.lk.call(func() {
		newValue, ok = remappingFn(key, oldValue, loaded)
	})
	if mc != t.modCount {
		return actual, false, t.concurrentModification("compute")
	}
	if !ok {
		if loaded {
			t.removeAt(bidx, prev, idx)
		}
		return
	}
	if err = t.checkValue(newValue); err != nil {
		return actual, false, err
	}
	if loaded {
		t.arena.at(idx).value = newValue
	} else {
		t.addEntry(hash, key, newValue, bidx)
	}
	return newValue, true, nil
}

// ComputeIfAbsent returns the current value of key if present. Otherwise it
// calls valueFn and stores its result unless valueFn returns false.
//
// valueFn runs with the table locked, see Merge.
func (t *Table[K, V]) ComputeIfAbsent(
	key K,
	valueFn func(key K) (newValue V, ok bool),
) (actual V, ok bool, err error) {
	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	if err = t.checkKey(key); err != nil {
		return
	}

	hash, bidx, _, idx := t.lookup(key)
	if idx != nilIndex {
		return t.arena.at(idx).value, true, nil
	}
	mc := t.modCount
	var newValue V
	t.lk.call(func() {
		newValue, ok = valueFn(key)
	})
	if mc != t.modCount {
		return actual, false, t.concurrentModification("computeIfAbsent")
	}
	if !ok {
		return
	}
	if err = t.checkValue(newValue); err != nil {
		return actual, false, err
	}
	t.addEntry(hash, key, newValue, bidx)
	return newValue, true, nil
}

// ComputeIfPresent calls remappingFn with the current value of key, if any.
// A true result replaces the value, false removes the mapping. A missing key
// is a no-op.
//
// remappingFn runs with the table locked, see Merge.
func (t *Table[K, V]) ComputeIfPresent(
	key K,
	remappingFn func(key K, oldValue V) (newValue V, ok bool),
) (actual V, ok bool, err error) {
	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	if err = t.checkKey(key); err != nil {
		return
	}

	_, bidx, prev, idx := t.lookup(key)
	if idx == nilIndex {
		return
	}
	oldValue := t.arena.at(idx).value
	mc := t.modCount
	var newValue V
	t.lk.call(func() {
		newValue, ok = remappingFn(key, oldValue)
	})
	if mc != t.modCount {
		return actual, false, t.concurrentModification("computeIfPresent")
	}
	if !ok {
		t.removeAt(bidx, prev, idx)
		return
	}
	if err = t.checkValue(newValue); err != nil {
		return actual, false, err
	}
	t.arena.at(idx).value = newValue
	return newValue, true, nil
}

// Replace overwrites the value of key only if key is present, returning the
// previous value.
func (t *Table[K, V]) Replace(key K, value V) (previous V, replaced bool, err error) {
	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	if err = t.checkEntry(key, value); err != nil {
		return
	}
	if _, _, _, idx := t.lookup(key); idx != nilIndex {
		e := t.arena.at(idx)
		previous, e.value = e.value, value
		return previous, true, nil
	}
	return
}

// CompareAndSwap overwrites the value of key with new only if it is
// currently equal to old.
func (t *Table[K, V]) CompareAndSwap(key K, old, new V) (swapped bool, err error) {
	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	if err = t.checkEntry(key, new); err != nil {
		return
	}
	if _, _, _, idx := t.lookup(key); idx != nilIndex {
		e := t.arena.at(idx)
		if t.equalValues(e.value, old) {
			e.value = new
			return true, nil
		}
	}
	return false, nil
}

// ForEach calls fn for every entry in iteration order, with the table
// locked. It stops with ErrConcurrentModification if fn changes the
// structure of the table.
func (t *Table[K, V]) ForEach(fn func(key K, value V)) error {
	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	mc := t.modCount
	for i := len(t.buckets) - 1; i >= 0; i-- {
		for idx := t.buckets[i]; idx != nilIndex; idx = t.arena.at(idx).next {
			e := t.arena.at(idx)
			key, value := e.key, e.value
			t.lk.call(func() {
				fn(key, value)
			})
			if mc != t.modCount {
				return t.concurrentModification("forEach")
			}
		}
	}
	return nil
}

// ReplaceAll replaces every value with fn(key, value), with the table
// locked. Replacements made before an error are kept.
func (t *Table[K, V]) ReplaceAll(fn func(key K, value V) V) error {
	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	mc := t.modCount
	for i := len(t.buckets) - 1; i >= 0; i-- {
		for idx := t.buckets[i]; idx != nilIndex; idx = t.arena.at(idx).next {
			e := t.arena.at(idx)
			key, value := e.key, e.value
			var newValue V
			t.lk.call(func() {
				newValue = fn(key, value)
			})
			if mc != t.modCount {
				return t.concurrentModification("replaceAll")
			}
			if err := t.checkValue(newValue); err != nil {
				return err
			}
			t.arena.at(idx).value = newValue
		}
	}
	return nil
}
