package rerank

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/rescore/feature"
	"github.com/rushteam/rescore/model"
	"github.com/rushteam/rescore/search"
	"github.com/rushteam/rescore/search/memindex"
)

func compositeWeight(t *testing.T, s search.Searcher, m model.ScoringModel, opts ...QueryOption) *Weight {
	t.Helper()
	w, err := NewScoringQuery(m, opts...).CreateWeight(context.Background(), s, true)
	require.NoError(t, err)
	return w
}

func usedFlags(w *Weight) []bool {
	out := make([]bool, len(w.FeatureInfos()))
	for i, info := range w.FeatureInfos() {
		out[i] = info.Used
	}
	return out
}

func TestCompositeScorer_UsedAndDefaults(t *testing.T) {
	ix := tagIndex()
	m := newLinear(t, "tags", "sum",
		featureDef{name: "fa", spec: querySpec(`"a" in doc.tags`)},
		featureDef{name: "fb", def: -1, spec: querySpec(`"b" in doc.tags`)},
		featureDef{name: "fc", def: 0.25, spec: querySpec(`"c" in doc.tags`)},
	)
	w := compositeWeight(t, ix, m)
	sc, err := w.CompositeScorer(ix.Segments()[0])
	require.NoError(t, err)

	tests := []struct {
		doc     int
		matched bool
		used    []bool
		values  []float64
		score   float64
	}{
		{doc: 0, matched: true, used: []bool{true, false, false}, values: []float64{1, -1, 0.25}, score: 0.25},
		{doc: 1, matched: true, used: []bool{true, true, false}, values: []float64{1, 1, 0.25}, score: 2.25},
		{doc: 2, matched: false, used: []bool{false, false, false}, values: []float64{0, -1, 0.25}, score: -0.75},
		{doc: 3, matched: true, used: []bool{false, true, true}, values: []float64{0, 1, 1}, score: 2},
		{doc: 4, matched: true, used: []bool{false, false, true}, values: []float64{0, -1, 1}, score: 0},
		{doc: 5, matched: true, used: []bool{true, false, true}, values: []float64{1, -1, 1}, score: 1},
	}
	for _, tt := range tests {
		require.Equal(t, tt.doc, sc.Advance(tt.doc))
		assert.Equal(t, tt.matched, sc.Matched(), "doc %d", tt.doc)
		score, err := sc.Score()
		require.NoError(t, err)
		assert.InDelta(t, tt.score, score, 1e-9, "doc %d", tt.doc)
		assert.Equal(t, tt.used, usedFlags(w), "doc %d", tt.doc)
		for i, info := range w.FeatureInfos() {
			assert.Equal(t, i, info.Index)
			assert.InDelta(t, tt.values[i], info.Value, 1e-9, "doc %d feature %s", tt.doc, info.Name)
		}
	}
	assert.Equal(t, search.NoMoreDocs, sc.Advance(6))
}

func TestCompositeScorer_NextDocVisitsEveryDoc(t *testing.T) {
	ix := tagIndex()
	w := compositeWeight(t, ix, newLinear(t, "tags", "sum", tagFeatures()...))
	sc, err := w.CompositeScorer(ix.Segments()[0])
	require.NoError(t, err)
	assert.Equal(t, int64(6), sc.Cost())

	var docs []int
	var matched []bool
	for doc := sc.NextDoc(); doc != search.NoMoreDocs; doc = sc.NextDoc() {
		docs = append(docs, doc)
		matched = append(matched, sc.Matched())
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, docs)
	assert.Equal(t, []bool{true, true, false, true, true, true}, matched)
	assert.Equal(t, search.NoMoreDocs, sc.NextDoc())
}

func TestCompositeScorer_SkipAhead(t *testing.T) {
	ix := tagIndex()
	w := compositeWeight(t, ix, newLinear(t, "tags", "sum", tagFeatures()...))
	sc, err := w.CompositeScorer(ix.Segments()[0])
	require.NoError(t, err)

	// 2 没有特征命中，游标停在 3；随后前往 3 时不需要再次推进
	assert.Equal(t, 2, sc.Advance(2))
	assert.False(t, sc.Matched())
	assert.Equal(t, 3, sc.NextDoc())
	assert.True(t, sc.Matched())
	_, err = sc.Score()
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, true}, usedFlags(w))

	assert.Equal(t, 5, sc.Advance(5))
	_, err = sc.Score()
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, usedFlags(w))
}

func TestCompositeScorer_MapOffsetReadsSameDocTable(t *testing.T) {
	// map-offset 特征排在 table 特征之前，仍然要读到同一文档的解码结果
	ix := memindex.FromDocuments([]memindex.Document{
		{"stats": "3,4"},
		{"stats": "5"},
		{},
	}, 0)
	m := newLinear(t, "table", "sum",
		fd("m1", feature.MapOffsetSpec{Key: "stats", Offset: 1}),
		fd("stats", feature.TableSpec{Table: "doc.stats"}),
		fd("m0", feature.MapOffsetSpec{Key: "stats", Offset: 0}),
	)
	w := compositeWeight(t, ix, m)
	sc, err := w.CompositeScorer(ix.Segments()[0])
	require.NoError(t, err)

	want := []struct {
		m1, m0 float64
	}{
		{m1: 4, m0: 3},
		{m1: 0, m0: 5},
		{m1: 0, m0: 0},
	}
	for doc, tt := range want {
		require.Equal(t, doc, sc.NextDoc())
		score, err := sc.Score()
		require.NoError(t, err)
		infos := w.FeatureInfos()
		assert.Equal(t, tt.m1, infos[0].Value, "doc %d", doc)
		assert.Equal(t, 0.0, infos[1].Value, "doc %d", doc)
		assert.Equal(t, tt.m0, infos[2].Value, "doc %d", doc)
		assert.Equal(t, tt.m1+tt.m0, score)
		assert.Equal(t, []bool{true, true, true}, usedFlags(w))
	}
}

func TestWeight_Explain(t *testing.T) {
	ix := tagIndex()
	w := compositeWeight(t, ix, newLinear(t, "tags", "sum", tagFeatures()...))

	expl, err := w.Explain(ix.Segments()[0], 3)
	require.NoError(t, err)
	assert.True(t, expl.Match)
	assert.Equal(t, 2.0, expl.Value)
	assert.Contains(t, expl.Description, "LinearModel(tags)")
	require.Len(t, expl.Details, 3)
	assert.True(t, strings.HasPrefix(expl.Details[0].Description, "fa(unused): "))
	assert.Equal(t, 0.0, expl.Details[0].Value)
	assert.True(t, strings.HasPrefix(expl.Details[1].Description, "fb: "))
	assert.Equal(t, 1.0, expl.Details[1].Value)
	assert.True(t, strings.HasPrefix(expl.Details[2].Description, "fc: "))
}

func TestWeight_Debug(t *testing.T) {
	ix := tagIndex()
	w := compositeWeight(t, ix, newLinear(t, "tags", "sum", tagFeatures()...), WithFeatureDebug(true))
	require.Len(t, w.Debugs(), 4)
	assert.Equal(t, "eval", w.Debugs()[3].Name)

	sc, err := w.CompositeScorer(ix.Segments()[0])
	require.NoError(t, err)
	for doc := sc.NextDoc(); doc != search.NoMoreDocs; doc = sc.NextDoc() {
		_, err := sc.Score()
		require.NoError(t, err)
	}
	want := []struct {
		name  string
		total int64
		cost  int64
	}{
		{name: "fa", total: 3, cost: 3},
		{name: "fb", total: 2, cost: 2},
		{name: "fc", total: 3, cost: 3},
		{name: "eval", total: 6},
	}
	for i, tt := range want {
		d := w.Debugs()[i]
		assert.Equal(t, tt.name, d.Name)
		assert.Equal(t, tt.total, d.Total, tt.name)
		assert.Equal(t, tt.cost, d.Cost, tt.name)
	}

	plain := compositeWeight(t, ix, newLinear(t, "tags", "sum", tagFeatures()...))
	assert.Nil(t, plain.Debugs())
}
