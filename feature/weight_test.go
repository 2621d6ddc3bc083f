package feature

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/rescore/core"
	"github.com/rushteam/rescore/search"
	"github.com/rushteam/rescore/search/memindex"
)

func testIndex() *memindex.Index {
	return memindex.FromDocuments([]memindex.Document{
		{"ctr": 0.5, "city": "sh", "stats": "1,2"},
		{"ctr": 0.0, "city": "bj", "stats": ""},
		{"ctr": 0.3, "city": "sh", "stats": "5"},
	}, 0)
}

func newEnv(ix *memindex.Index, params map[string]string) *Env {
	return &Env{Searcher: ix, Params: params, NeedsScores: true}
}

func TestNewWeight_Query(t *testing.T) {
	ix := testIndex()
	f := &Feature{Name: "ctr", Index: 0, DefaultValue: -1, Spec: QuerySpec{Q: "doc.ctr", FQ: []string{`doc.city == "${city}"`}}}
	w, err := NewWeight(context.Background(), f, newEnv(ix, map[string]string{"city": "sh"}))
	require.NoError(t, err)
	assert.Equal(t, "ctr", w.Name())
	assert.Equal(t, 0, w.Index())
	assert.Equal(t, -1.0, w.DefaultValue())
	assert.Equal(t, KindQuery, w.Kind())
	assert.Nil(t, w.Nested())

	s, err := w.Scorer(ix.Segments()[0])
	require.NoError(t, err)
	assert.False(t, s.Deferred())

	got := map[int]float64{}
	it := s.Iterator()
	for doc := it.NextDoc(); doc != search.NoMoreDocs; doc = it.NextDoc() {
		var info core.FeatureInfo
		require.NoError(t, s.Evaluate(&info, nil))
		assert.True(t, info.Used)
		got[doc] = info.Value
	}
	assert.Equal(t, map[int]float64{0: 0.5, 2: 0.3}, got)
}

func TestNewWeight_QueryWithoutMatches(t *testing.T) {
	ix := testIndex()
	f := &Feature{Name: "none", Spec: QuerySpec{Q: "doc.ctr > 5.0"}}
	w, err := NewWeight(context.Background(), f, newEnv(ix, nil))
	require.NoError(t, err)
	s, err := w.Scorer(ix.Segments()[0])
	require.NoError(t, err)
	assert.Equal(t, search.NoMoreDocs, s.Iterator().NextDoc())
	assert.Equal(t, int64(0), s.Iterator().Cost())
}

func TestNewWeight_Errors(t *testing.T) {
	ix := testIndex()
	tests := []struct {
		name       string
		f          *Feature
		env        *Env
		wantConfig bool
	}{
		{
			name:       "missing macro param",
			f:          &Feature{Name: "f", Spec: QuerySpec{Q: "doc.ctr * ${boost}"}},
			env:        newEnv(ix, nil),
			wantConfig: true,
		},
		{
			name: "bad sub query",
			f:    &Feature{Name: "f", Spec: QuerySpec{Q: "doc.ctr +"}},
			env:  newEnv(ix, nil),
		},
		{
			name:       "invalid definition",
			f:          &Feature{Name: "f", Spec: QuerySpec{}},
			env:        newEnv(ix, nil),
			wantConfig: true,
		},
		{
			name:       "model without resolver",
			f:          &Feature{Name: "f", Spec: ModelSpec{Model: "sub"}},
			env:        newEnv(ix, nil),
			wantConfig: true,
		},
		{
			name:       "model too deep",
			f:          &Feature{Name: "f", Spec: ModelSpec{Model: "sub"}},
			env:        &Env{Searcher: ix, Depth: MaxModelDepth},
			wantConfig: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWeight(context.Background(), tt.f, tt.env)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "feature f")
			if tt.wantConfig {
				assert.True(t, core.IsConfiguration(err))
			}
		})
	}
}

func TestScorer_TableAndMapOffset(t *testing.T) {
	ix := testIndex()
	ctx := context.Background()
	table := &Feature{Name: "stats", Index: 0, Spec: TableSpec{Table: "doc.stats"}}
	second := &Feature{Name: "s1", Index: 1, DefaultValue: 9, Spec: MapOffsetSpec{Key: "stats", Offset: 1}}

	tw, err := NewWeight(ctx, table, newEnv(ix, nil))
	require.NoError(t, err)
	mw, err := NewWeight(ctx, second, newEnv(ix, nil))
	require.NoError(t, err)

	seg := ix.Segments()[0]
	ts, err := tw.Scorer(seg)
	require.NoError(t, err)
	ms, err := mw.Scorer(seg)
	require.NoError(t, err)
	assert.True(t, ms.Deferred())
	assert.Equal(t, int64(3), ts.Iterator().Cost())

	want := []float64{2, 0, 0}
	for doc := 0; doc < 3; doc++ {
		require.Equal(t, doc, ts.Iterator().NextDoc())
		require.Equal(t, doc, ms.Iterator().NextDoc())

		tv := TableValues{}
		var tinfo, minfo core.FeatureInfo
		require.NoError(t, ts.Evaluate(&tinfo, tv))
		require.NoError(t, ms.Evaluate(&minfo, tv))
		assert.Equal(t, 0.0, tinfo.Value)
		assert.True(t, tinfo.Used)
		assert.Equal(t, want[doc], minfo.Value, "doc %d", doc)
		assert.True(t, minfo.Used)
	}
}

func TestScorer_Constant(t *testing.T) {
	ix := testIndex()
	w, err := NewWeight(context.Background(), &Feature{Name: "bias", Spec: ConstantSpec{Value: 1.5}}, newEnv(ix, nil))
	require.NoError(t, err)
	s, err := w.Scorer(ix.Segments()[0])
	require.NoError(t, err)
	assert.Equal(t, 2, s.Iterator().Advance(2))
	var info core.FeatureInfo
	require.NoError(t, s.Evaluate(&info, nil))
	assert.Equal(t, core.FeatureInfo{Value: 1.5, Used: true}, info)
}

func TestWeight_Explain(t *testing.T) {
	ix := testIndex()
	ctx := context.Background()
	seg := ix.Segments()[0]

	tests := []struct {
		name      string
		f         *Feature
		wantDesc  string
		wantValue float64
		wantMatch bool
	}{
		{
			name:      "constant",
			f:         &Feature{Name: "c", Spec: ConstantSpec{Value: 2}},
			wantDesc:  "ConstantFeature(value=2)",
			wantValue: 2,
			wantMatch: true,
		},
		{
			name:      "map",
			f:         &Feature{Name: "m", Spec: MapOffsetSpec{Key: "t", Offset: 0}},
			wantDesc:  "MapFeature(key=t,offset=0)",
			wantMatch: true,
		},
		{
			name:      "table",
			f:         &Feature{Name: "t", Spec: TableSpec{Table: "doc.stats"}},
			wantDesc:  "TableFeature(strval(doc.stats))='1,2'",
			wantMatch: true,
		},
		{
			name:      "query",
			f:         &Feature{Name: "q", Spec: QuerySpec{Q: "doc.ctr"}},
			wantDesc:  "memindex(q=doc.ctr)",
			wantValue: 0.5,
			wantMatch: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewWeight(ctx, tt.f, newEnv(ix, nil))
			require.NoError(t, err)
			e, err := w.Explain(seg, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDesc, e.Description)
			assert.Equal(t, tt.wantValue, e.Value)
			assert.Equal(t, tt.wantMatch, e.Match)
		})
	}
}

type stubResolver struct {
	gotDepth int
	weight   search.Weight
}

func (r *stubResolver) ResolveModel(_ context.Context, _ string, env *Env) (search.Weight, error) {
	r.gotDepth = env.Depth
	return r.weight, nil
}

func TestNewWeight_ModelUsesNestedEnv(t *testing.T) {
	ix := testIndex()
	q, err := ix.Parse("doc.ctr", nil, nil)
	require.NoError(t, err)
	inner, err := ix.CreateWeight(context.Background(), q, true)
	require.NoError(t, err)

	r := &stubResolver{weight: inner}
	env := newEnv(ix, nil)
	env.Resolver = r
	env.Depth = 2

	w, err := NewWeight(context.Background(), &Feature{Name: "sub", Spec: ModelSpec{Model: "m"}}, env)
	require.NoError(t, err)
	assert.Equal(t, 3, r.gotDepth)
	assert.Same(t, inner, w.Nested())

	s, err := w.Scorer(ix.Segments()[0])
	require.NoError(t, err)
	assert.Equal(t, 0, s.Iterator().NextDoc())
	var info core.FeatureInfo
	require.NoError(t, s.Evaluate(&info, nil))
	assert.Equal(t, 0.5, info.Value)
}
