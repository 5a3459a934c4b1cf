package synctable

import (
	"fmt"
	"math"
	"strconv"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/lni/goutils/leaktest"
	"github.com/stretchr/testify/require"
)

var (
	testDataSmall [8]string
	testData      [128]string
	testDataLarge [16 << 10]string
)

func init() {
	for i := range testDataSmall {
		testDataSmall[i] = fmt.Sprintf("%b", i)
	}
	for i := range testData {
		testData[i] = fmt.Sprintf("%b", i)
	}
	for i := range testDataLarge {
		testDataLarge[i] = fmt.Sprintf("%b", i)
	}
}

type structKey struct {
	Service  uint32
	Instance uint64
}

func TestTableGrowthScenario(t *testing.T) {
	tbl := MustNew[string, int]()
	if c := tbl.Capacity(); c != 11 {
		t.Fatalf("initial capacity: got %d, want 11", c)
	}
	if th := tbl.Stats().Threshold; th != 8 {
		t.Fatalf("initial threshold: got %d, want 8", th)
	}
	for i := 0; i < 8; i++ {
		if _, _, err := tbl.Put("k"+strconv.Itoa(i), i); err != nil {
			t.Fatal(err)
		}
	}
	if c := tbl.Capacity(); c != 11 {
		t.Fatalf("capacity before the ninth insert: got %d, want 11", c)
	}
	if _, _, err := tbl.Put("k8", 8); err != nil {
		t.Fatal(err)
	}
	stats := tbl.Stats()
	if stats.Capacity != 23 || stats.Threshold != 17 || stats.Size != 9 {
		t.Fatalf("unexpected stats after growth: %s", stats.ToString())
	}
	if stats.Rehashes != 1 {
		t.Fatalf("rehashes: got %d, want 1", stats.Rehashes)
	}
	for i := 0; i <= 8; i++ {
		v, ok := tbl.Get("k" + strconv.Itoa(i))
		if !ok || v != i {
			t.Fatalf("k%d: got %d/%v after growth", i, v, ok)
		}
	}
}

func TestTableZeroValue(t *testing.T) {
	var tbl Table[string, int]
	if !tbl.IsEmpty() {
		t.Fatal("zero table should be empty")
	}
	if _, ok := tbl.Get("missing"); ok {
		t.Fatal("value found in zero table")
	}
	if _, _, err := tbl.Put("a", 1); err != nil {
		t.Fatal(err)
	}
	if tbl.Capacity() != defaultCapacity {
		t.Fatalf("zero table capacity: got %d", tbl.Capacity())
	}
	if v := tbl.GetOrDefault("a", -1); v != 1 {
		t.Fatalf("got %d, want 1", v)
	}
}

func TestTableRoundTrip(t *testing.T) {
	tbl := MustNew[string, int]()
	for i, s := range testData {
		prev, loaded, err := tbl.Put(s, i)
		if err != nil || loaded {
			t.Fatalf("first put of %s: prev=%d loaded=%v err=%v", s, prev, loaded, err)
		}
	}
	if tbl.Size() != len(testData) {
		t.Fatalf("size: got %d, want %d", tbl.Size(), len(testData))
	}
	for i, s := range testData {
		v, ok := tbl.Get(s)
		if !ok || v != i {
			t.Fatalf("get %s: got %d/%v, want %d", s, v, ok, i)
		}
	}
	for i, s := range testData {
		v, ok := tbl.Remove(s)
		if !ok || v != i {
			t.Fatalf("remove %s: got %d/%v, want %d", s, v, ok, i)
		}
		if tbl.ContainsKey(s) {
			t.Fatalf("%s still present after remove", s)
		}
	}
	if !tbl.IsEmpty() {
		t.Fatalf("table not empty: %d", tbl.Size())
	}
	if _, ok := tbl.Remove("missing"); ok {
		t.Fatal("remove of missing key reported success")
	}
}

func TestTableOverwrite(t *testing.T) {
	tbl := MustNew[string, string]()
	_, _, _ = tbl.Put("a", "1")
	mc := tbl.Stats().ModCount
	prev, loaded, err := tbl.Put("a", "2")
	require.NoError(t, err)
	require.True(t, loaded)
	require.Equal(t, "1", prev)
	require.Equal(t, 1, tbl.Size())
	require.Equal(t, mc, tbl.Stats().ModCount, "overwrite is not structural")

	v, ok := tbl.Get("a")
	require.True(t, ok)
	require.Equal(t, "2", v)
}

func TestTableUniqueness(t *testing.T) {
	tbl := MustNew[structKey, int]()
	for round := 0; round < 3; round++ {
		for i := 0; i < 100; i++ {
			_, _, err := tbl.Put(structKey{uint32(i), uint64(i % 7)}, round)
			require.NoError(t, err)
		}
	}
	require.Equal(t, 100, tbl.Size())
	require.Len(t, tbl.KeySet().Slice(), 100)
}

func TestTableResizeKeepsEntries(t *testing.T) {
	tbl := MustNew[int, int](WithInitialCapacity(1))
	const n = 10000
	for i := 0; i < n; i++ {
		if _, _, err := tbl.Put(i, -i); err != nil {
			t.Fatal(err)
		}
	}
	stats := tbl.Stats()
	if stats.Size != n {
		t.Fatalf("size: got %d, want %d", stats.Size, n)
	}
	if stats.Capacity%2 != 1 {
		t.Fatalf("capacity %d is not of the form 2n+1", stats.Capacity)
	}
	if stats.Size > stats.Threshold {
		t.Fatalf("size %d above threshold %d", stats.Size, stats.Threshold)
	}
	for i := 0; i < n; i++ {
		if v, ok := tbl.Get(i); !ok || v != -i {
			t.Fatalf("%d: got %d/%v", i, v, ok)
		}
	}
}

func TestTableNegativeKeys(t *testing.T) {
	tbl := MustNew[int32, int]()
	for i := int32(-100); i < 100; i++ {
		_, _, _ = tbl.Put(i, int(i))
	}
	for i := int32(-100); i < 100; i++ {
		if v, ok := tbl.Get(i); !ok || v != int(i) {
			t.Fatalf("%d: got %d/%v", i, v, ok)
		}
	}
	_, _, _ = tbl.Put(math.MinInt32, 0)
	if !tbl.ContainsKey(math.MinInt32) {
		t.Fatal("MinInt32 key lost")
	}
}

func TestTableNilRejected(t *testing.T) {
	tbl := MustNew[*int, *int]()
	one := 1

	_, _, err := tbl.Put(nil, &one)
	require.ErrorIs(t, err, ErrNilKey)
	_, _, err = tbl.Put(&one, nil)
	require.ErrorIs(t, err, ErrNilValue)
	_, _, err = tbl.PutIfAbsent(&one, nil)
	require.ErrorIs(t, err, ErrNilValue)
	require.True(t, tbl.IsEmpty())

	_, ok := tbl.Get(nil)
	require.False(t, ok)
	require.False(t, tbl.ContainsKey(nil))
	require.False(t, tbl.ContainsValue(nil))

	slices := MustNew[string, []int]()
	_, _, err = slices.Put("a", nil)
	require.ErrorIs(t, err, ErrNilValue)
	_, _, err = slices.Put("a", []int{})
	require.NoError(t, err)

	anys := MustNew[string, any]()
	_, _, err = anys.Put("a", nil)
	require.ErrorIs(t, err, ErrNilValue)
	_, _, err = anys.Put("a", 0)
	require.NoError(t, err)
}

func TestTablePutAll(t *testing.T) {
	tbl := MustNew[string, *int]()
	one, two := 1, 2
	require.NoError(t, tbl.PutAll(map[string]*int{"a": &one, "b": &two}))
	require.Equal(t, 2, tbl.Size())

	err := tbl.PutAll(map[string]*int{"c": &one, "d": nil})
	require.ErrorIs(t, err, ErrNilValue)
	require.Equal(t, 2, tbl.Size(), "a rejected batch stores nothing")
	require.False(t, tbl.ContainsKey("c"))
}

func TestTablePutIfAbsent(t *testing.T) {
	tbl := MustNew[string, int]()
	actual, loaded, err := tbl.PutIfAbsent("a", 1)
	require.NoError(t, err)
	require.False(t, loaded)
	require.Equal(t, 1, actual)

	actual, loaded, err = tbl.PutIfAbsent("a", 2)
	require.NoError(t, err)
	require.True(t, loaded)
	require.Equal(t, 1, actual)
}

func TestTableValueQueries(t *testing.T) {
	tbl := MustNew[string, int]()
	for i, s := range testDataSmall {
		_, _, _ = tbl.Put(s, i)
	}
	if !tbl.ContainsValue(3) {
		t.Fatal("value 3 not found")
	}
	if tbl.ContainsValue(100) {
		t.Fatal("value 100 found")
	}
	if tbl.CompareAndDelete(testDataSmall[3], 4) {
		t.Fatal("deleted with a mismatching value")
	}
	if !tbl.CompareAndDelete(testDataSmall[3], 3) {
		t.Fatal("delete with the matching value failed")
	}
	if tbl.ContainsValue(3) {
		t.Fatal("value 3 still present")
	}
}

func TestTableClear(t *testing.T) {
	tbl := MustNew[string, int]()
	for i, s := range testData {
		_, _, _ = tbl.Put(s, i)
	}
	capacity := tbl.Capacity()
	tbl.Clear()
	if !tbl.IsEmpty() {
		t.Fatal("not empty after clear")
	}
	if tbl.Capacity() != capacity {
		t.Fatalf("clear changed capacity: %d -> %d", capacity, tbl.Capacity())
	}
	for _, s := range testData {
		if tbl.ContainsKey(s) {
			t.Fatalf("%s survived clear", s)
		}
	}
	_, _, _ = tbl.Put("again", 1)
	if tbl.Size() != 1 {
		t.Fatalf("size after reuse: %d", tbl.Size())
	}
}

func TestTableOptions(t *testing.T) {
	t.Run("negative capacity", func(t *testing.T) {
		_, err := New[string, int](WithInitialCapacity(-1))
		require.ErrorIs(t, err, ErrInvalidArgument)
	})
	t.Run("zero capacity", func(t *testing.T) {
		tbl, err := New[string, int](WithInitialCapacity(0))
		require.NoError(t, err)
		require.Equal(t, 1, tbl.Capacity())
		_, _, _ = tbl.Put("a", 1)
		_, _, _ = tbl.Put("b", 2)
		require.Equal(t, 2, tbl.Size())
	})
	t.Run("bad load factor", func(t *testing.T) {
		for _, lf := range []float32{0, -1, float32(math.NaN()), float32(math.Inf(1))} {
			_, err := New[string, int](WithLoadFactor(lf))
			require.ErrorIs(t, err, ErrInvalidArgument, "load factor %v", lf)
		}
	})
	t.Run("hasher type mismatch", func(t *testing.T) {
		_, err := New[string, int](WithHasher(func(key int, seed uintptr) uintptr { return 0 }))
		require.ErrorIs(t, err, ErrInvalidArgument)
	})
	t.Run("value equality type mismatch", func(t *testing.T) {
		_, err := New[string, int](WithValueEqual(func(a, b string) bool { return a == b }))
		require.ErrorIs(t, err, ErrInvalidArgument)
	})
	t.Run("must new panics", func(t *testing.T) {
		require.Panics(t, func() { MustNew[string, int](WithLoadFactor(-1)) })
	})
	t.Run("init", func(t *testing.T) {
		var tbl Table[string, int]
		require.NoError(t, tbl.Init(WithInitialCapacity(101), WithLoadFactor(2)))
		require.Equal(t, 101, tbl.Capacity())
		require.Equal(t, 202, tbl.Stats().Threshold)
	})
}

func TestTableWithHasher_Collisions(t *testing.T) {
	tbl := MustNew[string, int](WithHasher(func(key string, seed uintptr) uintptr {
		return 42
	}))
	for i, s := range testData {
		_, _, _ = tbl.Put(s, i)
	}
	stats := tbl.Stats()
	if stats.MaxChain != len(testData) {
		t.Fatalf("expected one chain of %d, got max %d", len(testData), stats.MaxChain)
	}
	for i, s := range testData {
		if v, ok := tbl.Get(s); !ok || v != i {
			t.Fatalf("%s: got %d/%v", s, v, ok)
		}
	}
	for i := 0; i < len(testData); i += 2 {
		tbl.Remove(testData[i])
	}
	for i, s := range testData {
		_, ok := tbl.Get(s)
		if ok != (i%2 == 1) {
			t.Fatalf("%s: present=%v", s, ok)
		}
	}
}

func TestTableHashString(t *testing.T) {
	tbl := MustNew[string, int](WithHasher(HashString))
	for i, s := range testData {
		_, _, _ = tbl.Put(s, i)
	}
	for i, s := range testData {
		if v, ok := tbl.Get(s); !ok || v != i {
			t.Fatalf("%s: got %d/%v", s, v, ok)
		}
	}
	if HashString("abc", 7) != HashString("abc", 7) {
		t.Fatal("HashString is not deterministic")
	}
	if HashBytes([]byte("abc"), 7) != HashString("abc", 7) {
		t.Fatal("HashBytes and HashString disagree")
	}
}

func TestTableModCount(t *testing.T) {
	tbl := MustNew[string, int]()
	mc := func() uint64 { return tbl.Stats().ModCount }

	start := mc()
	_, _, _ = tbl.Put("a", 1)
	require.Equal(t, start+1, mc(), "insert")
	_, _, _ = tbl.Put("a", 2)
	_, _, _ = tbl.Replace("a", 3)
	_, _ = tbl.CompareAndSwap("a", 3, 4)
	require.Equal(t, start+1, mc(), "value updates")
	tbl.Remove("a")
	require.Equal(t, start+2, mc(), "remove")
	tbl.Remove("a")
	require.Equal(t, start+2, mc(), "missing remove")
	tbl.Clear()
	require.Equal(t, start+3, mc(), "clear")
}

func TestTableConcurrentReadWrite(t *testing.T) {
	defer leaktest.AfterTest(t)()
	tbl := MustNew[string, int]()
	const workers = 8
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i, s := range testDataLarge {
				if i%workers != w {
					continue
				}
				if _, _, err := tbl.Put(s, i); err != nil {
					t.Errorf("put %s: %v", s, err)
					return
				}
				if v, ok := tbl.Get(s); !ok || v != i {
					t.Errorf("get %s: got %d/%v", s, v, ok)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	if tbl.Size() != len(testDataLarge) {
		t.Fatalf("size: got %d, want %d", tbl.Size(), len(testDataLarge))
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i, s := range testDataLarge {
				if i%workers == w {
					tbl.Remove(s)
				}
			}
		}(w)
	}
	wg.Wait()
	if !tbl.IsEmpty() {
		t.Fatalf("size after parallel removal: %d", tbl.Size())
	}
}

func TestTableConcurrentMerge(t *testing.T) {
	defer leaktest.AfterTest(t)()
	tbl := MustNew[string, int]()
	const (
		workers = 8
		rounds  = 1000
	)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				_, _, err := tbl.Merge(testDataSmall[i%len(testDataSmall)], 1, func(old, v int) (int, bool) {
					return old + v, true
				})
				if err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
	total := 0
	for _, v := range tbl.All() {
		total += v
	}
	if total != workers*rounds {
		t.Fatalf("lost updates: total %d, want %d", total, workers*rounds)
	}
}

func TestErrorsWrapSentinels(t *testing.T) {
	err := errors.Wrapf(ErrConcurrentModification, "during %s", "test")
	require.True(t, errors.Is(err, ErrConcurrentModification))
	require.Contains(t, err.Error(), "during test")
}

func TestTablePutAllFrom(t *testing.T) {
	src := MustNew[string, int]()
	dst := MustNew[string, int]()
	for i, s := range testData {
		_, _, _ = src.Put(s, i)
	}
	_, _, _ = dst.Put(testData[0], -1)
	_, _, _ = dst.Put("extra", 1)

	dst.PutAllFrom(src)
	require.Equal(t, len(testData)+1, dst.Size())
	require.Equal(t, 0, dst.GetOrDefault(testData[0], -1))
	require.Equal(t, 1, dst.GetOrDefault("extra", 0))

	dst.PutAllFrom(dst)
	dst.PutAllFrom(nil)
	require.Equal(t, len(testData)+1, dst.Size())
}
