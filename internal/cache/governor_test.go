package cache

import (
	"bufio"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kdaqp/engine/internal/model"
	"github.com/kdaqp/engine/internal/schema"
)

func writeTestModel(t *testing.T, dir string, sch schema.Schema, name string, columns []int, rows int) {
	t.Helper()
	r := rand.New(rand.NewSource(int64(len(name))))
	dataset := make([]model.FullRow, rows)
	for i := range dataset {
		row := make(model.FullRow, sch.Columns)
		for c := 0; c < sch.Continuous; c++ {
			row[c] = float32(r.Float64() * 100)
		}
		for c := sch.Continuous; c < sch.Columns; c++ {
			row[c] = float32(r.Intn(sch.Cardinality(c)))
		}
		dataset[i] = row
	}
	f, err := os.Create(model.Path(dir, name))
	require.NoError(t, err)
	defer f.Close()
	w := bufio.NewWriter(f)
	_, _, _, err = model.BuildAndSave(w, dataset, sch, columns, -2, 0.5, nil)
	require.NoError(t, err)
	require.NoError(t, w.Flush())
	require.NoError(t, model.AppendToList(dir, name, ""))
}

func testSchema(t *testing.T) schema.Schema {
	t.Helper()
	s, err := schema.New(3, 1, []int{2, 2})
	require.NoError(t, err)
	return s
}

func TestLoadIsIdempotent(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	sch := testSchema(t)
	writeTestModel(t, dir, sch, "1_2", []int{1, 2}, 100)

	g, err := New(dir, 0, sch, nil)
	require.NoError(err)
	defer g.Close()

	_, err = g.Load("1_2", []int{1, 2}, []int{})
	require.NoError(err)
	before := g.TotalMemory()
	_, err = g.Load("1_2", []int{1, 2}, []int{})
	require.NoError(err)
	require.Equal(before, g.TotalMemory())
}

func TestEvictionKeepsUnderLimit(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	sch := testSchema(t)
	names := []string{"0_2", "0_1_2", "0_1"}
	for _, n := range names {
		cols, err := model.ColumnsFromName(n)
		require.NoError(err)
		writeTestModel(t, dir, sch, n, cols, 500)
	}

	// A model's own footprint must fit under the cap or Load legitimately
	// fails with resource-exhausted (spec.md §7); measure the largest of
	// the three with an unbounded governor first, then cap just above it
	// so every individual load can succeed while the combination cannot.
	probe, err := New(dir, 0, sch, nil)
	require.NoError(err)
	var maxSize int64
	for _, n := range names {
		cols, _ := model.ColumnsFromName(n)
		axes := model.SplitAxesOf(cols, sch.Continuous)
		before := probe.TotalMemory()
		_, err := probe.Load(n, cols, axes)
		require.NoError(err)
		if size := probe.TotalMemory() - before; size > maxSize {
			maxSize = size
		}
	}
	require.NoError(probe.Close())

	g, err := New(dir, maxSize+maxSize/2, sch, nil)
	require.NoError(err)
	defer g.Close()

	for _, n := range names {
		cols, _ := model.ColumnsFromName(n)
		axes := model.SplitAxesOf(cols, sch.Continuous)
		_, err := g.Load(n, cols, axes)
		require.NoError(err)
		require.LessOrEqual(g.TotalMemory(), g.memLimit)
	}
	// The cap holds roughly one model's worth, so loading all three must
	// have evicted at least one of the earlier ones.
	resident := 0
	for _, n := range names {
		if g.Loaded(n) {
			resident++
		}
	}
	require.GreaterOrEqual(resident, 1)
	require.Less(resident, len(names))
}

func TestWarmStartNoOpWhenAlreadyLoaded(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	sch := testSchema(t)
	writeTestModel(t, dir, sch, "1_2", []int{1, 2}, 50)

	g, err := New(dir, 0, sch, nil)
	require.NoError(err)
	defer g.Close()

	require.NoError(g.WarmStart())
	require.True(g.Loaded("1_2"))
	before := g.TotalMemory()
	require.NoError(g.WarmStart())
	require.Equal(before, g.TotalMemory())
}

func TestWarmStartRespectsLimit(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	sch := testSchema(t)
	writeTestModel(t, dir, sch, "1_2", []int{1, 2}, 2000)
	writeTestModel(t, dir, sch, "1", []int{1}, 2000)

	// Measure the first listed model's footprint with an unbounded
	// governor, then cap at exactly that size: once it is loaded
	// total_memory has reached the cap, so WarmStart must stop after that
	// one model and never attempt the second.
	probe, err := New(dir, 0, sch, nil)
	require.NoError(err)
	_, err = probe.Load("1_2", []int{1, 2}, model.SplitAxesOf([]int{1, 2}, sch.Continuous))
	require.NoError(err)
	firstSize := probe.TotalMemory()
	require.NoError(probe.Close())

	g, err := New(dir, firstSize, sch, nil)
	require.NoError(err)
	defer g.Close()

	require.NoError(g.WarmStart())
	require.True(g.Loaded("1_2"))
	require.False(g.Loaded("1"))
}

func TestSizeCachePersistsAcrossGovernors(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	sch := testSchema(t)
	writeTestModel(t, dir, sch, "1_2", []int{1, 2}, 100)

	g, err := New(dir, 0, sch, nil)
	require.NoError(err)
	_, err = g.Load("1_2", []int{1, 2}, []int{1})
	require.NoError(err)
	size := g.TotalMemory()
	require.NoError(g.Close())

	sc, err := OpenSizeCache(dir)
	require.NoError(err)
	defer sc.Close()
	got, ok := sc.Get("1_2")
	require.True(ok)
	require.Equal(size, got)
}

func TestModelPathHelpers(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	require.Equal(filepath.Join(dir, "model_7_1_0.bin"), model.Path(dir, "7_1_0"))
}
