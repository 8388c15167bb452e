package planner

import (
	"bufio"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kdaqp/engine/internal/aqperrors"
	"github.com/kdaqp/engine/internal/cache"
	"github.com/kdaqp/engine/internal/model"
	"github.com/kdaqp/engine/internal/schema"
)

func isInvalidQuery(err error) bool {
	return aqperrors.ErrInvalidQuery.Is(err)
}

func testSchema(t *testing.T) schema.Schema {
	t.Helper()
	s, err := schema.New(5, 2, []int{2, 2, 2})
	require.NoError(t, err)
	return s
}

func buildModel(t *testing.T, dir string, sch schema.Schema, columns []int, dataset []model.FullRow) {
	t.Helper()
	name := model.Name(columns)
	f, err := os.Create(model.Path(dir, name))
	require.NoError(t, err)
	defer f.Close()
	w := bufio.NewWriter(f)
	gotName, _, _, err := model.BuildAndSave(w, dataset, sch, columns, -1, 1.0, nil)
	require.NoError(t, err)
	require.Equal(t, name, gotName)
	require.NoError(t, w.Flush())
	require.NoError(t, model.AppendToList(dir, name, ""))
}

func newGovernor(t *testing.T, dir string, sch schema.Schema) *cache.Governor {
	t.Helper()
	g, err := cache.New(dir, 0, sch, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestPlanFullScanCount(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	sch := testSchema(t)

	n := 1000
	dataset := make([]model.FullRow, n)
	for i := range dataset {
		dataset[i] = model.FullRow{0, 0, 0, 0, 0}
	}
	buildModel(t, dir, sch, nil, dataset)

	g := newGovernor(t, dir, sch)
	answer, err := Plan(g, NewCache(), sch, []Operation{{Op: OpCount}}, nil, -1, ModePerformance, nil)
	require.NoError(err)
	require.Equal(Answer{{ID: -1, Value: float64(n)}}, answer)
}

func TestPlanRangeSumApproximatesTruth(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	sch := testSchema(t)

	n := 2000
	dataset := make([]model.FullRow, n)
	var wantSum float64
	for i := range dataset {
		v := float32(i) / float32(n) * 100 // uniform in [0,100)
		dataset[i] = model.FullRow{v, 0, 0, 0, 0}
		if v >= 0 && v <= 50 {
			wantSum += float64(v)
		}
	}
	buildModel(t, dir, sch, []int{0}, dataset)

	g := newGovernor(t, dir, sch)
	preds := []Predicate{{Col: 0, Lb: 0, Ub: 50}}
	answer, err := Plan(g, NewCache(), sch, []Operation{{Op: OpSum, Col: 0}}, preds, -1, ModePerformance, nil)
	require.NoError(err)
	require.Len(answer, 1)
	require.Equal(int32(-1), answer[0].ID)
	require.InDelta(wantSum, answer[0].Value, wantSum*0.1+5)
}

func TestPlanDiscreteEqualityAvgEmptySentinel(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	sch := testSchema(t)

	n := 200
	dataset := make([]model.FullRow, n)
	for i := range dataset {
		dataset[i] = model.FullRow{float32(i % 10), 0, 0, 0, 0} // col2 always 0, never 1
	}
	buildModel(t, dir, sch, []int{2}, dataset)

	g := newGovernor(t, dir, sch)
	preds := []Predicate{{Col: 2, Lb: 1, Ub: 1}}
	answer, err := Plan(g, NewCache(), sch, []Operation{{Op: OpAvg, Col: 0}}, preds, -1, ModePerformance, nil)
	require.NoError(err)
	require.Equal(Answer{{ID: -1, Value: 1}}, answer)
}

func TestPlanDiscreteEqualityAvgMatches(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	sch := testSchema(t)

	n := 300
	dataset := make([]model.FullRow, n)
	var wantSum float64
	var wantCount float64
	for i := range dataset {
		col2 := int32(i % 2)
		v := float32(i)
		dataset[i] = model.FullRow{v, 0, float32(col2), 0, 0}
		if col2 == 1 {
			wantSum += float64(v)
			wantCount++
		}
	}
	buildModel(t, dir, sch, []int{2}, dataset)

	g := newGovernor(t, dir, sch)
	preds := []Predicate{{Col: 2, Lb: 1, Ub: 1}}
	answer, err := Plan(g, NewCache(), sch, []Operation{{Op: OpAvg, Col: 0}}, preds, -1, ModePerformance, nil)
	require.NoError(err)
	require.Len(answer, 1)
	require.InDelta(wantSum/wantCount, answer[0].Value, wantSum/wantCount*0.1+1)
}

func TestPlanGroupByCountCoversAllGroupsAndMatchesTotal(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	sch := testSchema(t)

	n := 500
	dataset := make([]model.FullRow, n)
	for i := range dataset {
		dataset[i] = model.FullRow{0, 0, float32(i % 2), 0, 0}
	}
	buildModel(t, dir, sch, []int{2}, dataset)

	g := newGovernor(t, dir, sch)
	answer, err := Plan(g, NewCache(), sch, []Operation{{Op: OpCount}}, nil, 2, ModePerformance, nil)
	require.NoError(err)
	require.Len(answer, sch.Cardinality(2))

	var total float64
	for i, ga := range answer {
		require.Equal(int32(i), ga.ID)
		total += ga.Value
	}
	require.Equal(float64(n), total)
}

func TestPlanMemoryModeThreePredicateSpecialCaseDropsContinuousAxes(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	sch := testSchema(t)

	n := 400
	dataset := make([]model.FullRow, n)
	var want float64
	for i := range dataset {
		c2, c3, c4 := int32(i%2), int32((i/2)%2), int32((i/4)%2)
		dataset[i] = model.FullRow{0, 0, float32(c2), float32(c3), float32(c4)}
		if c2 == 1 && c3 == 0 && c4 == 1 {
			want++
		}
	}
	buildModel(t, dir, sch, []int{2, 3, 4}, dataset)

	g := newGovernor(t, dir, sch)
	preds := []Predicate{{Col: 2, Lb: 1, Ub: 1}, {Col: 3, Lb: 0, Ub: 0}, {Col: 4, Lb: 1, Ub: 1}}
	planCache := NewCache()
	answer, err := Plan(g, planCache, sch, []Operation{{Op: OpCount}}, preds, -1, ModeMemory, nil)
	require.NoError(err)
	require.Equal(Answer{{ID: -1, Value: want}}, answer)

	pl, ok := planCache.get(mustShapeHash(t, ModeMemory, preds, -1))
	require.True(ok)
	require.Empty(pl.SplitAxes)
	require.Equal("2_3_4", pl.Name)
}

func TestPlanShapeCacheReusedAcrossBoundValues(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	sch := testSchema(t)

	n := 100
	dataset := make([]model.FullRow, n)
	for i := range dataset {
		dataset[i] = model.FullRow{float32(i), 0, 0, 0, 0}
	}
	buildModel(t, dir, sch, []int{0}, dataset)

	g := newGovernor(t, dir, sch)
	planCache := NewCache()
	_, err := Plan(g, planCache, sch, []Operation{{Op: OpCount}}, []Predicate{{Col: 0, Lb: 0, Ub: 10}}, -1, ModePerformance, nil)
	require.NoError(err)
	_, err = Plan(g, planCache, sch, []Operation{{Op: OpCount}}, []Predicate{{Col: 0, Lb: 20, Ub: 30}}, -1, ModePerformance, nil)
	require.NoError(err)
	require.Len(planCache.entries, 1)
}

func TestPlanInvalidQueryUnknownColumn(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	sch := testSchema(t)
	g := newGovernor(t, dir, sch)

	_, err := Plan(g, NewCache(), sch, []Operation{{Op: OpCount}}, []Predicate{{Col: 99, Lb: 0, Ub: 0}}, -1, ModePerformance, nil)
	require.Error(err)
	require.True(isInvalidQuery(err))
}

func TestPlanInvalidQuerySumOnDiscreteColumn(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	sch := testSchema(t)
	g := newGovernor(t, dir, sch)

	_, err := Plan(g, NewCache(), sch, []Operation{{Op: OpSum, Col: 2}}, nil, -1, ModePerformance, nil)
	require.Error(err)
	require.True(isInvalidQuery(err))
}

func TestPlanInvalidQueryGroupByContinuousColumn(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	sch := testSchema(t)
	g := newGovernor(t, dir, sch)

	_, err := Plan(g, NewCache(), sch, []Operation{{Op: OpCount}}, nil, 0, ModePerformance, nil)
	require.Error(err)
	require.True(isInvalidQuery(err))
}

func mustShapeHash(t *testing.T, mode Mode, preds []Predicate, groupBy int) uint64 {
	t.Helper()
	h, err := shapeHash(mode, preds, groupBy)
	require.NoError(t, err)
	return h
}
