package model

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kdaqp/engine/internal/kdtree"
)

func TestTreeRoundTrip(t *testing.T) {
	require := require.New(t)
	r := rand.New(rand.NewSource(9))
	rows := make([]kdtree.Row, 300)
	for i := range rows {
		rows[i] = kdtree.Row{float32(r.Float64() * 50), float32(r.Float64() * 50)}
	}
	a := kdtree.Build(rows, 0, len(rows)-1, []int{0, 1}, kdtree.DepthCap(300, -2), 0.3)

	var buf bytes.Buffer
	require.NoError(WriteTree(&buf, a, a.Root))

	got, err := ReadTree(&buf, 2)
	require.NoError(err)
	require.Equal(a.NumNodes(), got.NumNodes())
	require.Equal(a.Count[a.Root], got.Count[got.Root])
	require.Equal(a.SumAt(a.Root), got.SumAt(got.Root))
}

func TestModelRoundTripViaWriteReadModel(t *testing.T) {
	require := require.New(t)
	m := New("7_0", []int{7, 0}, []int{0})

	r := rand.New(rand.NewSource(3))
	rows := make([]kdtree.Row, 50)
	for i := range rows {
		rows[i] = kdtree.Row{float32(r.Float64() * 10)}
	}
	a := kdtree.Build(rows, 0, len(rows)-1, []int{0}, kdtree.DepthCap(50, -1), 1)
	m.Add(5, a, 1)
	m.Add(12, a, 1)

	var buf bytes.Buffer
	require.NoError(WriteModel(&buf, m))

	loaded, bytesRead, err := ReadModel(&buf, "7_0", []int{7, 0}, []int{0}, 1)
	require.NoError(err)
	require.Greater(bytesRead, int64(0))
	require.Len(loaded.Partitions, 2)
	for _, key := range []int32{5, 12} {
		got, ok := loaded.Lookup(key)
		require.True(ok)
		require.Equal(a.Count[a.Root], got.Count[got.Root])
	}
	_, ok := loaded.Lookup(99)
	require.False(ok)
}
