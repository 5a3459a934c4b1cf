package synctable

import (
	"sync"
	"testing"

	"github.com/lni/goutils/leaktest"
	"github.com/stretchr/testify/require"
)

func TestTableEqual(t *testing.T) {
	a := MustNew[string, int]()
	b := MustNew[string, int](WithInitialCapacity(1000), WithLoadFactor(2))
	require.True(t, a.Equal(b))
	require.True(t, a.Equal(a))
	require.False(t, a.Equal(nil))

	for i, s := range testData {
		_, _, _ = a.Put(s, i)
	}
	for i := len(testData) - 1; i >= 0; i-- {
		_, _, _ = b.Put(testData[i], i)
	}
	require.True(t, a.Equal(b), "layout and insertion order do not matter")
	require.True(t, b.Equal(a))
	require.Equal(t, a.HashCode(), b.HashCode())

	_, _, _ = b.Put(testData[0], -1)
	require.False(t, a.Equal(b))
	_, _, _ = b.Put(testData[0], 0)
	b.Remove(testData[1])
	require.False(t, a.Equal(b))
}

func TestTableEqual_OppositeDirections(t *testing.T) {
	defer leaktest.AfterTest(t)()
	a, b := MustNew[string, int](), MustNew[string, int]()
	for i, s := range testData {
		_, _, _ = a.Put(s, i)
		_, _, _ = b.Put(s, i)
	}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				a.Equal(b)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				b.Equal(a)
			}
		}()
	}
	wg.Wait()
}

func TestTableHashCode(t *testing.T) {
	var empty Table[string, int]
	require.Zero(t, empty.HashCode())

	tbl := MustNew[string, int]()
	_, _, _ = tbl.Put("a", 1)
	h1 := tbl.HashCode()
	require.Equal(t, h1, tbl.HashCode(), "stable")
	_, _, _ = tbl.Put("b", 2)
	require.NotEqual(t, h1, tbl.HashCode())
	tbl.Remove("b")
	require.Equal(t, h1, tbl.HashCode())
}

func TestTableHashCode_Nested(t *testing.T) {
	inner1 := MustNew[string, int]()
	inner2 := MustNew[string, int]()
	_, _, _ = inner1.Put("x", 1)
	_, _, _ = inner2.Put("x", 1)

	outer1 := MustNew[string, *Table[string, int]](WithValueEqual(func(a, b *Table[string, int]) bool {
		return a.Equal(b)
	}))
	outer2 := MustNew[string, *Table[string, int]](WithValueEqual(func(a, b *Table[string, int]) bool {
		return a.Equal(b)
	}))
	_, _, _ = outer1.Put("t", inner1)
	_, _, _ = outer2.Put("t", inner2)
	require.True(t, outer1.Equal(outer2))
	require.Equal(t, outer1.HashCode(), outer2.HashCode())
}

func TestTableHashCode_SelfReference(t *testing.T) {
	tbl := MustNew[string, any]()
	_, _, _ = tbl.Put("self", tbl)
	_, _, _ = tbl.Put("n", 1)

	done := make(chan uint32)
	go func() { done <- tbl.HashCode() }()
	h := <-done
	require.Equal(t, h, tbl.HashCode())
	require.Contains(t, tbl.String(), "self=(this Map)")
}

func TestTableHashCode_ValueHasher(t *testing.T) {
	calls := 0
	tbl := MustNew[string, []byte](WithValueHasher(func(v []byte, seed uintptr) uintptr {
		calls++
		return HashBytes(v, seed)
	}))
	_, _, _ = tbl.Put("a", []byte("payload"))
	_ = tbl.HashCode()
	require.Equal(t, 1, calls)
}

func TestTableClone(t *testing.T) {
	tbl := MustNew[string, int](WithLoadFactor(0.5))
	for i, s := range testData {
		_, _, _ = tbl.Put(s, i)
	}
	tbl.Remove(testData[0])

	c := tbl.Clone()
	require.True(t, c.Equal(tbl))
	require.Equal(t, tbl.Capacity(), c.Capacity())
	require.Equal(t, tbl.Stats().Threshold, c.Stats().Threshold)
	require.Equal(t, tbl.KeySet().Slice(), c.KeySet().Slice(), "same layout")

	_, _, _ = c.Put("only-in-clone", 1)
	_, _, _ = c.Put(testData[1], 100)
	tbl.Remove(testData[2])
	require.False(t, tbl.ContainsKey("only-in-clone"))
	require.Equal(t, 1, tbl.GetOrDefault(testData[1], -1))
	require.True(t, c.ContainsKey(testData[2]))
	require.Equal(t, len(testData)-2, tbl.Size())
	require.Equal(t, len(testData), c.Size())
	require.NotSame(t, tbl.KeySet(), c.KeySet())
}

func TestTableClone_Shallow(t *testing.T) {
	tbl := MustNew[string, *int]()
	v := 1
	_, _, _ = tbl.Put("a", &v)
	c := tbl.Clone()
	got, _ := c.Get("a")
	require.Same(t, &v, got)
}
