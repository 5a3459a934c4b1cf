package synctable

import (
	"slices"
	"unsafe"
)

// Equal reports whether other holds the same keys mapped to equal values.
// Bucket layout and iteration order do not matter.
//
// other is snapshotted before t is locked, so two goroutines comparing the
// same pair of tables in opposite directions cannot deadlock.
func (t *Table[K, V]) Equal(other *Table[K, V]) bool {
	if other == t {
		return true
	}
	if other == nil {
		return false
	}
	entries := other.EntrySet().Slice()

	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	if len(entries) != t.count {
		return false
	}
	for _, e := range entries {
		_, _, _, idx := t.lookup(e.Key)
		if idx == nilIndex || !t.equalValues(t.arena.at(idx).value, e.Value) {
			return false
		}
	}
	return true
}

// HashCode returns the sum of the entry hash codes, each being the key hash
// XOR the value hash. It is independent of iteration order and consistent
// with Equal within one process.
//
// Values implementing HashCoder contribute their own hash code. A table that
// (directly or not) contains itself contributes 0 for the inner occurrence
// instead of recursing.
func (t *Table[K, V]) HashCode() uint32 {
	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	if t.count == 0 || t.hashing {
		return 0
	}
	t.hashing = true
	defer func() { t.hashing = false }()

	keyHash, _ := defaultHasher[K, V]()
	valHash := t.valHash
	if valHash == nil {
		valHash = hashValue[V]
	}

	var h uint32
	mc := t.modCount
	for i := len(t.buckets) - 1; i >= 0; i-- {
		for idx := t.buckets[i]; idx != nilIndex; idx = t.arena.at(idx).next {
			e := t.arena.at(idx)
			key, value := e.key, e.value
			kh := foldHash(keyHash(noescape(unsafe.Pointer(&key)), hashCodeSeed))
			var vh uint32
			t.lk.call(func() {
				vh = foldHash(valHash(value, hashCodeSeed))
			})
			if mc != t.modCount {
				t.logger.Debug().Msg("synctable: table modified while hashing")
				return h
			}
			h += kh ^ vh
		}
	}
	return h
}

// Clone returns an independent copy of the table. Keys and values are
// copied by value; whatever they point to is shared. Views and the
// modification count are not carried over.
func (t *Table[K, V]) Clone() *Table[K, V] {
	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	return &Table[K, V]{
		buckets:     slices.Clone(t.buckets),
		arena:       t.arena.clone(),
		count:       t.count,
		threshold:   t.threshold,
		loadFactor:  t.loadFactor,
		seed:        t.seed,
		keyHash:     t.keyHash,
		valEqual:    t.valEqual,
		valHash:     t.valHash,
		keyIsNil:    t.keyIsNil,
		valIsNil:    t.valIsNil,
		logger:      t.logger,
		callerHash:  t.callerHash,
		callerEqual: t.callerEqual,
	}
}
