package synctable

import (
	"math"
	"math/rand/v2"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

const (
	// defaultCapacity is the bucket count of a table created without
	// WithInitialCapacity, including the zero value.
	defaultCapacity = 11
	// defaultLoadFactor is the target ratio of entries to buckets.
	defaultLoadFactor = 0.75
	// maxCapacity caps the bucket array. A table at the cap stops growing and
	// tolerates chains longer than its load factor asks for.
	maxCapacity = math.MaxInt32 - 8
)

// Table is a bucket-chained hash table guarded by one whole-table lock.
//
// Every operation, reads included, takes the same lock, so operations are
// totally ordered and there is no intra-table parallelism. Functions passed
// to Merge, Compute and friends run while the lock is held: they serialize
// with every other goroutine's calls, and they may call back into the same
// table from the same goroutine without deadlocking. A structural change made
// by such a callback is reported as ErrConcurrentModification.
//
// Capacity grows as 2n+1, keeping the bucket count odd; indices are taken
// modulo the bucket count rather than masked.
//
// Keys and values must not be nil. The zero value is an empty table with
// capacity 11 and load factor 0.75. A Table must not be copied after first
// use; use Clone.
type Table[K comparable, V any] struct {
	lk tableLock

	buckets    []int32 // chain heads, arena indices
	arena      arena[K, V]
	count      int
	threshold  int
	loadFactor float32
	modCount   uint64 // bumped on insert, remove, rehash and clear only
	rehashes   uint32
	hashing    bool // HashCode in progress

	seed     uintptr
	keyHash  hashFunc
	valEqual equalFunc
	valHash  func(V, uintptr) uintptr
	keyIsNil func(K) bool
	valIsNil func(V) bool
	logger   zerolog.Logger

	// keyHash and valEqual came from WithHasher and WithValueEqual, so they
	// run as caller code.
	callerHash  bool
	callerEqual bool

	keySet   *KeySet[K, V]
	values   *ValueCollection[K, V]
	entrySet *EntrySet[K, V]
}

// Config defines configurable Table options.
type Config struct {
	initialCapacity int
	loadFactor      float32
	keyHash         any
	valEqual        any
	valHash         any
	logger          *zerolog.Logger
}

// WithInitialCapacity sets the initial number of buckets. Zero is rounded up
// to one; a negative capacity makes New fail.
func WithInitialCapacity(capacity int) func(*Config) {
	return func(c *Config) {
		c.initialCapacity = capacity
	}
}

// WithLoadFactor sets the load factor. It must be positive.
func WithLoadFactor(loadFactor float32) func(*Config) {
	return func(c *Config) {
		c.loadFactor = loadFactor
	}
}

// WithHasher replaces the built-in key hasher. K must match the table's key
// type, otherwise New fails with ErrInvalidArgument. The hasher runs under
// the table lock and may read the table, but must not call an operation
// that hashes a key, which would recurse.
func WithHasher[K comparable](keyHash func(key K, seed uintptr) uintptr) func(*Config) {
	return func(c *Config) {
		c.keyHash = keyHash
	}
}

// WithValueEqual sets the value equality used by ContainsValue,
// CompareAndSwap, CompareAndDelete and Equal. It is required when V is not
// comparable. Like a Compute callback, it runs under the table lock and may
// call back into the table.
func WithValueEqual[V any](valEqual func(val, val2 V) bool) func(*Config) {
	return func(c *Config) {
		c.valEqual = valEqual
	}
}

// WithValueHasher sets the value hasher used by HashCode.
func WithValueHasher[V any](valHash func(val V, seed uintptr) uintptr) func(*Config) {
	return func(c *Config) {
		c.valHash = valHash
	}
}

// WithLogger makes the table log rehashes and detected concurrent
// modifications at debug level.
func WithLogger(logger zerolog.Logger) func(*Config) {
	return func(c *Config) {
		c.logger = &logger
	}
}

// New creates a Table.
//
// Parameters:
//   - WithInitialCapacity, WithLoadFactor for sizing
//   - WithHasher, WithValueEqual, WithValueHasher to override built-in functions
//   - WithLogger for debug logging
func New[K comparable, V any](options ...func(*Config)) (*Table[K, V], error) {
	t := &Table[K, V]{}
	if err := t.init(options...); err != nil {
		return nil, err
	}
	return t, nil
}

// MustNew is like New but panics on invalid options.
func MustNew[K comparable, V any](options ...func(*Config)) *Table[K, V] {
	t, err := New[K, V](options...)
	if err != nil {
		panic(err)
	}
	return t
}

// Init configures a zero-value Table.
//
// Notes:
//   - This function is not thread-safe and can only be used before the Table is utilized.
//   - If this function is not called, the Table uses the default configuration.
func (t *Table[K, V]) Init(options ...func(*Config)) error {
	return t.init(options...)
}

func (t *Table[K, V]) init(options ...func(*Config)) error {
	c := &Config{
		initialCapacity: defaultCapacity,
		loadFactor:      defaultLoadFactor,
	}
	for _, o := range options {
		o(c)
	}
	if c.initialCapacity < 0 {
		return errors.Wrapf(ErrInvalidArgument, "illegal capacity: %d", c.initialCapacity)
	}
	if !(c.loadFactor > 0) || math.IsInf(float64(c.loadFactor), 0) {
		return errors.Wrapf(ErrInvalidArgument, "illegal load factor: %v", c.loadFactor)
	}

	keyHash, valEqual := defaultHasher[K, V]()
	if c.keyHash != nil {
		fn, ok := c.keyHash.(func(K, uintptr) uintptr)
		if !ok {
			return errors.Wrapf(ErrInvalidArgument, "hasher type %T does not match key type", c.keyHash)
		}
		keyHash = func(pointer unsafe.Pointer, seed uintptr) uintptr {
			return fn(*(*K)(pointer), seed)
		}
	}
	if c.valEqual != nil {
		fn, ok := c.valEqual.(func(V, V) bool)
		if !ok {
			return errors.Wrapf(ErrInvalidArgument, "value equality type %T does not match value type", c.valEqual)
		}
		valEqual = func(val, val2 unsafe.Pointer) bool {
			return fn(*(*V)(val), *(*V)(val2))
		}
	}
	var valHash func(V, uintptr) uintptr
	if c.valHash != nil {
		fn, ok := c.valHash.(func(V, uintptr) uintptr)
		if !ok {
			return errors.Wrapf(ErrInvalidArgument, "value hasher type %T does not match value type", c.valHash)
		}
		valHash = fn
	}

	capacity := min(max(c.initialCapacity, 1), maxCapacity)
	t.seed = uintptr(rand.Uint64())
	t.keyHash = keyHash
	t.valEqual = valEqual
	t.valHash = valHash
	t.callerHash = c.keyHash != nil
	t.callerEqual = c.valEqual != nil
	t.keyIsNil = nilChecker[K]()
	t.valIsNil = nilChecker[V]()
	t.logger = zerolog.Nop()
	if c.logger != nil {
		t.logger = *c.logger
	}
	t.loadFactor = c.loadFactor
	t.buckets = makeBuckets(capacity)
	t.arena = newArena[K, V](0)
	t.threshold = calcThreshold(capacity, t.loadFactor)
	return nil
}

// lazyInit makes the zero value usable. Must be called with the lock held.
func (t *Table[K, V]) lazyInit() {
	if t.buckets == nil {
		_ = t.init()
	}
}

func makeBuckets(n int) []int32 {
	b := make([]int32, n)
	for i := range b {
		b[i] = nilIndex
	}
	return b
}

// calcThreshold returns floor(capacity*loadFactor), capped so that a table at
// maxCapacity still accepts entries.
func calcThreshold(capacity int, loadFactor float32) int {
	return int(min(float64(capacity)*float64(loadFactor), maxCapacity+1))
}

func (t *Table[K, V]) hash(key *K) uint32 {
	if !t.callerHash {
		return foldHash(t.keyHash(noescape(unsafe.Pointer(key)), t.seed))
	}
	var h uintptr
	t.lk.call(func() {
		h = t.keyHash(noescape(unsafe.Pointer(key)), t.seed)
	})
	return foldHash(h)
}

// lookup finds key's entry and its predecessor in the chain. idx is nilIndex
// when the key is absent; bidx is the bucket the key belongs to either way.
func (t *Table[K, V]) lookup(key K) (hash uint32, bidx int, prev, idx int32) {
	hash = t.hash(&key)
	bidx = bucketIndex(hash, len(t.buckets))
	prev = nilIndex
	for i := t.buckets[bidx]; i != nilIndex; {
		e := t.arena.at(i)
		if e.hash == hash && e.key == key {
			return hash, bidx, prev, i
		}
		prev, i = i, e.next
	}
	return hash, bidx, prev, nilIndex
}

// addEntry links a new head entry for a key known to be absent, growing the
// table first when it has reached its threshold.
func (t *Table[K, V]) addEntry(hash uint32, key K, value V, bidx int) {
	if t.count >= t.threshold {
		t.rehash()
		bidx = bucketIndex(hash, len(t.buckets))
	}
	t.buckets[bidx] = t.arena.alloc(hash, key, value, t.buckets[bidx])
	t.count++
	t.modCount++
}

// removeAt unlinks entry idx from bucket bidx and returns its value.
func (t *Table[K, V]) removeAt(bidx int, prev, idx int32) V {
	e := t.arena.at(idx)
	if prev == nilIndex {
		t.buckets[bidx] = e.next
	} else {
		t.arena.at(prev).next = e.next
	}
	value := e.value
	t.arena.release(idx)
	t.count--
	t.modCount++
	return value
}

// unlink removes entry idx, locating its predecessor first.
func (t *Table[K, V]) unlink(idx int32) {
	bidx := bucketIndex(t.arena.at(idx).hash, len(t.buckets))
	prev := nilIndex
	for i := t.buckets[bidx]; i != idx; i = t.arena.at(i).next {
		prev = i
	}
	t.removeAt(bidx, prev, idx)
}

// rehash grows the bucket array to 2n+1 and relinks every entry into it.
// Chains are walked from the highest bucket down, so relative order within a
// new chain is reversed, as with head insertion.
func (t *Table[K, V]) rehash() {
	oldCap := len(t.buckets)
	newCap := oldCap<<1 + 1
	if newCap > maxCapacity {
		if oldCap == maxCapacity {
			return
		}
		newCap = maxCapacity
	}
	t.resize(newCap)
}

// resize relinks every entry into a new array of newCap buckets.
func (t *Table[K, V]) resize(newCap int) {
	oldCap := len(t.buckets)
	newBuckets := makeBuckets(newCap)

	t.modCount++
	t.threshold = calcThreshold(newCap, t.loadFactor)
	for i := oldCap - 1; i >= 0; i-- {
		for idx := t.buckets[i]; idx != nilIndex; {
			e := t.arena.at(idx)
			next := e.next
			b := bucketIndex(e.hash, newCap)
			e.next = newBuckets[b]
			newBuckets[b] = idx
			idx = next
		}
	}
	t.buckets = newBuckets
	t.rehashes++
	t.logger.Debug().
		Int("from", oldCap).
		Int("to", newCap).
		Int("size", t.count).
		Msg("synctable: rehash")
}

func (t *Table[K, V]) checkKey(key K) error {
	if t.keyIsNil != nil && t.keyIsNil(key) {
		return ErrNilKey
	}
	return nil
}

func (t *Table[K, V]) checkValue(value V) error {
	if t.valIsNil != nil && t.valIsNil(value) {
		return ErrNilValue
	}
	return nil
}

func (t *Table[K, V]) checkEntry(key K, value V) error {
	if err := t.checkKey(key); err != nil {
		return err
	}
	return t.checkValue(value)
}

// equalValues compares values with the configured equality. It panics when V
// is not comparable and WithValueEqual was not given.
func (t *Table[K, V]) equalValues(a, b V) bool {
	if t.valEqual == nil {
		panic("synctable: value type is not comparable, use WithValueEqual")
	}
	if !t.callerEqual {
		return t.valEqual(noescape(unsafe.Pointer(&a)), noescape(unsafe.Pointer(&b)))
	}
	var eq bool
	t.lk.call(func() {
		eq = t.valEqual(noescape(unsafe.Pointer(&a)), noescape(unsafe.Pointer(&b)))
	})
	return eq
}

// Put maps key to value and returns the previous value, if any. Overwriting
// an existing key is not a structural modification.
func (t *Table[K, V]) Put(key K, value V) (previous V, loaded bool, err error) {
	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	if err = t.checkEntry(key, value); err != nil {
		return
	}
	hash, bidx, _, idx := t.lookup(key)
	if idx != nilIndex {
		e := t.arena.at(idx)
		previous, e.value = e.value, value
		return previous, true, nil
	}
	t.addEntry(hash, key, value, bidx)
	return
}

// PutIfAbsent stores value only if key is absent. It returns the existing
// value and true if key was present.
func (t *Table[K, V]) PutIfAbsent(key K, value V) (actual V, loaded bool, err error) {
	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	if err = t.checkEntry(key, value); err != nil {
		return
	}
	hash, bidx, _, idx := t.lookup(key)
	if idx != nilIndex {
		return t.arena.at(idx).value, true, nil
	}
	t.addEntry(hash, key, value, bidx)
	return value, false, nil
}

// PutAll copies every pair of source into the table. Nothing is stored if
// any key or value is nil.
func (t *Table[K, V]) PutAll(source map[K]V) error {
	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	if err := t.checkMap(source); err != nil {
		return err
	}
	t.putAll(source)
	return nil
}

// PutAllFrom copies every entry of source into the table. source is
// snapshotted before the table is locked, so copying between two tables in
// both directions at once cannot deadlock.
func (t *Table[K, V]) PutAllFrom(source *Table[K, V]) {
	if source == nil || source == t {
		return
	}
	entries := source.EntrySet().Slice()

	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	for _, e := range entries {
		hash, bidx, _, idx := t.lookup(e.Key)
		if idx != nilIndex {
			t.arena.at(idx).value = e.Value
			continue
		}
		t.addEntry(hash, e.Key, e.Value, bidx)
	}
}

func (t *Table[K, V]) checkMap(source map[K]V) error {
	for k, v := range source {
		if err := t.checkEntry(k, v); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table[K, V]) putAll(source map[K]V) {
	for k, v := range source {
		hash, bidx, _, idx := t.lookup(k)
		if idx != nilIndex {
			t.arena.at(idx).value = v
			continue
		}
		t.addEntry(hash, k, v, bidx)
	}
}

// Get returns the value mapped to key.
func (t *Table[K, V]) Get(key K) (value V, ok bool) {
	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	if _, _, _, idx := t.lookup(key); idx != nilIndex {
		return t.arena.at(idx).value, true
	}
	return
}

// GetOrDefault returns the value mapped to key, or defaultValue.
func (t *Table[K, V]) GetOrDefault(key K, defaultValue V) V {
	if v, ok := t.Get(key); ok {
		return v
	}
	return defaultValue
}

// Remove deletes key and returns its value. A missing key is not an error.
func (t *Table[K, V]) Remove(key K) (value V, ok bool) {
	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	_, bidx, prev, idx := t.lookup(key)
	if idx == nilIndex {
		return
	}
	return t.removeAt(bidx, prev, idx), true
}

// CompareAndDelete deletes key only if it is mapped to a value equal to old.
func (t *Table[K, V]) CompareAndDelete(key K, old V) (deleted bool) {
	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	_, bidx, prev, idx := t.lookup(key)
	if idx == nilIndex || !t.equalValues(t.arena.at(idx).value, old) {
		return false
	}
	t.removeAt(bidx, prev, idx)
	return true
}

// ContainsKey reports whether key is present.
func (t *Table[K, V]) ContainsKey(key K) bool {
	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	_, _, _, idx := t.lookup(key)
	return idx != nilIndex
}

// ContainsValue reports whether some key maps to value. It is O(n).
func (t *Table[K, V]) ContainsValue(value V) bool {
	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	return t.containsValue(value)
}

func (t *Table[K, V]) containsValue(value V) bool {
	if t.valIsNil != nil && t.valIsNil(value) {
		return false
	}
	for i := len(t.buckets) - 1; i >= 0; i-- {
		for idx := t.buckets[i]; idx != nilIndex; {
			e := t.arena.at(idx)
			if t.equalValues(e.value, value) {
				return true
			}
			idx = e.next
		}
	}
	return false
}

// Size returns the number of entries.
func (t *Table[K, V]) Size() int {
	defer t.lk.unlock(t.lk.lock())
	return t.count
}

// IsEmpty reports whether the table has no entries.
func (t *Table[K, V]) IsEmpty() bool {
	return t.Size() == 0
}

// Capacity returns the current number of buckets.
func (t *Table[K, V]) Capacity() int {
	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	return len(t.buckets)
}

// Clear removes every entry. The bucket array keeps its capacity.
func (t *Table[K, V]) Clear() {
	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	t.clear()
}

func (t *Table[K, V]) clear() {
	for i := range t.buckets {
		t.buckets[i] = nilIndex
	}
	t.arena.reset()
	t.count = 0
	t.modCount++
}
