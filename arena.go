package synctable

// nilIndex terminates chains and the free list.
const nilIndex int32 = -1

// entry is a chain node. Chains are intrusive singly-linked lists of arena
// slot indices, so a rehash relinks indices and never copies a key or value.
type entry[K comparable, V any] struct {
	key   K
	value V
	hash  uint32
	next  int32 // next entry in the chain, or next free slot
	used  bool
}

// arena owns every entry of a table. Released slots are threaded through
// next into a free list and reused before the slice grows.
type arena[K comparable, V any] struct {
	slots []entry[K, V]
	free  int32
}

func newArena[K comparable, V any](capacity int) arena[K, V] {
	return arena[K, V]{
		slots: make([]entry[K, V], 0, capacity),
		free:  nilIndex,
	}
}

//go:nosplit
func (a *arena[K, V]) at(i int32) *entry[K, V] {
	return &a.slots[i]
}

// valid reports whether i refers to a live slot. Only enumerators need it,
// since they may outlive the structure they started on.
func (a *arena[K, V]) valid(i int32) bool {
	return i >= 0 && int(i) < len(a.slots) && a.slots[i].used
}

func (a *arena[K, V]) alloc(hash uint32, key K, value V, next int32) int32 {
	var i int32
	if a.free != nilIndex {
		i = a.free
		a.free = a.slots[i].next
	} else {
		i = int32(len(a.slots))
		a.slots = append(a.slots, entry[K, V]{})
	}
	a.slots[i] = entry[K, V]{
		key:   key,
		value: value,
		hash:  hash,
		next:  next,
		used:  true,
	}
	return i
}

// release returns slot i to the free list and drops its key and value so
// they can be collected.
func (a *arena[K, V]) release(i int32) {
	a.slots[i] = entry[K, V]{next: a.free}
	a.free = i
}

func (a *arena[K, V]) reset() {
	clear(a.slots)
	a.slots = a.slots[:0]
	a.free = nilIndex
}

// clone copies every slot, live or free, so indices stay meaningful in the
// copy. Keys and values are copied by value.
func (a *arena[K, V]) clone() arena[K, V] {
	return arena[K, V]{
		slots: append([]entry[K, V](nil), a.slots...),
		free:  a.free,
	}
}
