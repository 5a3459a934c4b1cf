package synctable

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/cockroachdb/errors"
)

// streamHeader precedes the key/value pairs of a serialized table.
type streamHeader struct {
	Capacity   int
	LoadFactor float32
	Size       int
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}

// WriteTo serializes the table as a gob stream: a header holding capacity,
// load factor and size, then size key/value pairs in iteration order.
// Interface-typed keys or values need their concrete types registered with
// gob.Register.
func (t *Table[K, V]) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	enc := gob.NewEncoder(cw)

	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	header := streamHeader{
		Capacity:   len(t.buckets),
		LoadFactor: t.loadFactor,
		Size:       t.count,
	}
	if err := enc.Encode(header); err != nil {
		return cw.n, errors.Wrap(err, "synctable: encode header")
	}
	for i := len(t.buckets) - 1; i >= 0; i-- {
		for idx := t.buckets[i]; idx != nilIndex; {
			e := t.arena.at(idx)
			if err := enc.Encode(&e.key); err != nil {
				return cw.n, errors.Wrapf(err, "synctable: encode key %v", e.key)
			}
			if err := enc.Encode(&e.value); err != nil {
				return cw.n, errors.Wrapf(err, "synctable: encode value of %v", e.key)
			}
			idx = e.next
		}
	}
	return cw.n, nil
}

// reconstructedCapacity derives the bucket count for size entries read from
// a stream, leaving about 5% headroom and never exceeding the capacity the
// table was written with (raised to hold size at loadFactor).
func reconstructedCapacity(capacity, size int, loadFactor float32) int {
	lf := float64(loadFactor)
	origCap := max(capacity, int(float64(size)/lf)+1)
	length := int(float64(size+size/20)/lf) + 3
	if length > size && length&1 == 0 {
		length--
	}
	length = min(length, origCap)
	if length < 0 {
		length = origCap
	}
	return min(max(length, 1), maxCapacity)
}

// maxInitialBuckets bounds the bucket array allocated for a stream before its
// pairs are decoded. Larger tables grow while the pairs arrive.
const maxInitialBuckets = 1 << 16

// ReadFrom replaces the contents of the table with a stream produced by
// WriteTo. The load factor is taken from the stream, clamped to [0.25, 4].
// Invalid header fields are rejected before anything is allocated, and the
// table is left untouched on any error. Memory is committed as pairs are
// decoded, not as the header announces them.
//
// The decoder buffers its input, so it may consume bytes past the end of the
// table's stream.
func (t *Table[K, V]) ReadFrom(r io.Reader) (int64, error) {
	cr := &countingReader{r: r}
	dec := gob.NewDecoder(cr)

	var header streamHeader
	if err := dec.Decode(&header); err != nil {
		return cr.n, errors.Mark(errors.Wrap(err, "synctable: decode header"), ErrCorruptStream)
	}
	lf := header.LoadFactor
	if !(lf > 0) {
		return cr.n, errors.Wrapf(ErrCorruptStream, "illegal load factor: %v", lf)
	}
	if header.Size < 0 {
		return cr.n, errors.Wrapf(ErrCorruptStream, "illegal number of elements: %d", header.Size)
	}
	lf = float32(math.Min(math.Max(0.25, float64(lf)), 4.0))
	length := reconstructedCapacity(header.Capacity, header.Size, lf)

	// Borrow the hashing configuration, then decode without the lock.
	var (
		tmp  Table[K, V]
		lock = t.lk.lock()
	)
	t.lazyInit()
	tmp.seed, tmp.keyHash, tmp.callerHash = t.seed, t.keyHash, t.callerHash
	tmp.keyIsNil, tmp.valIsNil = t.keyIsNil, t.valIsNil
	tmp.logger = t.logger
	t.lk.unlock(lock)

	initial := min(length, maxInitialBuckets)
	tmp.loadFactor = lf
	tmp.buckets = makeBuckets(initial)
	tmp.threshold = calcThreshold(initial, lf)
	tmp.arena = newArena[K, V](0)
	for i := 0; i < header.Size; i++ {
		var (
			key   K
			value V
		)
		if err := dec.Decode(&key); err != nil {
			return cr.n, errors.Mark(errors.Wrapf(err, "synctable: decode key %d", i), ErrCorruptStream)
		}
		if err := dec.Decode(&value); err != nil {
			return cr.n, errors.Mark(errors.Wrapf(err, "synctable: decode value %d", i), ErrCorruptStream)
		}
		if err := tmp.checkEntry(key, value); err != nil {
			return cr.n, errors.Mark(errors.Wrapf(err, "synctable: entry %d", i), ErrCorruptStream)
		}
		if tmp.count >= tmp.threshold && len(tmp.buckets) < length {
			tmp.resize(min(len(tmp.buckets)<<1+1, length))
		}
		if err := tmp.reconstitutionPut(key, value); err != nil {
			return cr.n, err
		}
	}
	if len(tmp.buckets) < length {
		tmp.resize(length)
	}

	defer t.lk.unlock(t.lk.lock())
	t.buckets = tmp.buckets
	t.arena = tmp.arena
	t.count = tmp.count
	t.loadFactor = lf
	t.threshold = calcThreshold(length, lf)
	t.modCount++
	return cr.n, nil
}

// reconstitutionPut inserts a decoded pair. It neither checks the threshold
// nor locks: the table being rebuilt is not yet visible to anyone.
func (t *Table[K, V]) reconstitutionPut(key K, value V) error {
	hash, bidx, _, idx := t.lookup(key)
	if idx != nilIndex {
		return errors.Wrapf(ErrCorruptStream, "duplicate key %v", key)
	}
	t.buckets[bidx] = t.arena.alloc(hash, key, value, t.buckets[bidx])
	t.count++
	return nil
}

// ToMap collects all entries into a map[K]V.
func (t *Table[K, V]) ToMap() map[K]V {
	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	a := make(map[K]V, t.count)
	for i := len(t.buckets) - 1; i >= 0; i-- {
		for idx := t.buckets[i]; idx != nilIndex; {
			e := t.arena.at(idx)
			a[e.key] = e.value
			idx = e.next
		}
	}
	return a
}

// String renders the table as {k1=v1, k2=v2} in iteration order, listing at
// most 1024 entries. A value that is the table itself prints as (this Map).
func (t *Table[K, V]) String() string {
	const limit = 1024
	entries := t.EntrySet().Slice()
	var sb strings.Builder
	sb.WriteByte('{')
	for i, e := range entries {
		if i == limit {
			sb.WriteString(", ...")
			break
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		t.writeElem(&sb, any(e.Key))
		sb.WriteByte('=')
		t.writeElem(&sb, any(e.Value))
	}
	sb.WriteByte('}')
	return sb.String()
}

func (t *Table[K, V]) writeElem(sb *strings.Builder, v any) {
	if self, ok := v.(*Table[K, V]); ok && self == t {
		sb.WriteString("(this Map)")
		return
	}
	fmt.Fprint(sb, v)
}

var (
	jsonMarshal   func(v any) ([]byte, error)
	jsonUnmarshal func(data []byte, v any) error
)

// SetDefaultJSONMarshal sets the default JSON serialization and deserialization functions.
// If not set, the standard library is used by default.
func SetDefaultJSONMarshal(marshal func(v any) ([]byte, error), unmarshal func(data []byte, v any) error) {
	jsonMarshal, jsonUnmarshal = marshal, unmarshal
}

// MarshalJSON JSON serialization
func (t *Table[K, V]) MarshalJSON() ([]byte, error) {
	if jsonMarshal != nil {
		return jsonMarshal(t.ToMap())
	}
	return json.Marshal(t.ToMap())
}

// UnmarshalJSON replaces the contents of the table with a JSON object.
func (t *Table[K, V]) UnmarshalJSON(data []byte) error {
	var a map[K]V
	if jsonUnmarshal != nil {
		if err := jsonUnmarshal(data, &a); err != nil {
			return err
		}
	} else {
		if err := json.Unmarshal(data, &a); err != nil {
			return err
		}
	}

	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	if err := t.checkMap(a); err != nil {
		return err
	}
	t.clear()
	t.putAll(a)
	return nil
}
