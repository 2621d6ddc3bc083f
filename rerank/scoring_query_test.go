package rerank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/rescore/core"
	"github.com/rushteam/rescore/feature"
	"github.com/rushteam/rescore/model"
	"github.com/rushteam/rescore/search"
)

func fiveFeatureModel(t *testing.T) *model.LinearModel {
	return newLinear(t, "five", "sum",
		fd("fa", querySpec(`"a" in doc.tags`)),
		fd("bias", feature.ConstantSpec{Value: 0.5}),
		fd("fb", querySpec(`"b" in doc.tags`)),
		fd("fc", querySpec(`"c" in doc.tags`, `size(doc.tags) > 1`)),
		fd("city", querySpec(`efi.city == "sh" ? 2.0 : 0.0`)),
	)
}

func TestScoringQuery_BuildWeights_SerialAndParallel(t *testing.T) {
	ix := tagIndex()
	m := fiveFeatureModel(t)
	params := map[string][]string{"city": {"sh"}}

	serial, err := NewScoringQuery(m, WithParams(params)).BuildWeights(context.Background(), ix, true)
	require.NoError(t, err)

	for _, pool := range []*WeightPool{
		NewWeightPool(1, 1, 1),
		NewWeightPool(4, 2, 3),
		NewWeightPool(0, 0, 0),
	} {
		parallel, err := NewScoringQuery(m, WithParams(params), WithWeightPool(pool)).
			BuildWeights(context.Background(), ix, true)
		require.NoError(t, err)
		require.Len(t, parallel, len(serial))
		for i := range serial {
			assert.Equal(t, serial[i].Name(), parallel[i].Name())
			assert.Equal(t, i, parallel[i].Index())
			assert.Same(t, m.Features()[i], parallel[i].Feature())
		}
	}
}

type emptyModel struct{ model.ScoringModel }

func (emptyModel) Name() string                 { return "empty" }
func (emptyModel) Features() []*feature.Feature { return nil }

func TestScoringQuery_BuildWeights_Errors(t *testing.T) {
	ix := tagIndex()

	_, err := NewScoringQuery(nil).BuildWeights(context.Background(), ix, true)
	assert.True(t, core.IsConfiguration(err))

	_, err = NewScoringQuery(emptyModel{}).BuildWeights(context.Background(), ix, true)
	assert.True(t, core.IsConfiguration(err))

	bad := newLinear(t, "bad", "sum",
		fd("ok", querySpec(`"a" in doc.tags`)),
		fd("broken", querySpec(`doc.(`)))
	for _, pool := range []*WeightPool{nil, NewWeightPool(2, 2, 2)} {
		q := NewScoringQuery(bad, WithWeightPool(pool))
		_, err = q.BuildWeights(context.Background(), ix, true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "model bad")
		assert.Contains(t, err.Error(), "feature broken")
	}

	// 缺少宏参数且没有默认值
	macro := newLinear(t, "macro", "sum", fd("city", querySpec(`efi.city == "${city}"`)))
	_, err = NewScoringQuery(macro).BuildWeights(context.Background(), ix, true)
	assert.True(t, core.IsConfiguration(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewScoringQuery(fiveFeatureModel(t)).BuildWeights(ctx, ix, true)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScoringQuery_NestedModel(t *testing.T) {
	ix := tagIndex()
	inner := newLinear(t, "inner", "sum", fd("fa", querySpec(`"a" in doc.tags`)))
	outer := newLinear(t, "outer", "sum",
		fd("sub", feature.ModelSpec{Model: "inner"}),
		fd("fb", querySpec(`"b" in doc.tags`)))
	catalog := testCatalog{"inner": inner, "outer": outer}

	w := compositeWeight(t, ix, outer, WithCatalog(catalog), WithFeatureDebug(true))
	sc, err := w.CompositeScorer(ix.Segments()[0])
	require.NoError(t, err)

	want := []float64{1, 2, 0, 1, 0, 1}
	for doc, score := range want {
		require.Equal(t, doc, sc.Advance(doc))
		got, err := sc.Score()
		require.NoError(t, err)
		assert.InDelta(t, score, got, 1e-9, "doc %d", doc)
		assert.True(t, w.FeatureInfos()[0].Used, "nested model matches every doc")
	}

	// 子模型的 debug 挂在父特征下面
	sub := w.Debugs()[0]
	require.Len(t, sub.Children, 2)
	assert.Equal(t, "fa", sub.Children[0].Name)
	assert.Equal(t, int64(3), sub.Children[0].Total)
}

func TestScoringQuery_NestedModelErrors(t *testing.T) {
	ix := tagIndex()
	loop := newLinear(t, "loop", "sum", fd("self", feature.ModelSpec{Model: "loop"}))
	missing := newLinear(t, "missing", "sum", fd("sub", feature.ModelSpec{Model: "nope"}))
	catalog := testCatalog{"loop": loop, "missing": missing}

	_, err := NewScoringQuery(loop, WithCatalog(catalog)).BuildWeights(context.Background(), ix, true)
	require.Error(t, err)
	assert.True(t, core.IsConfiguration(err))

	_, err = NewScoringQuery(missing, WithCatalog(catalog)).BuildWeights(context.Background(), ix, true)
	require.Error(t, err)
	assert.True(t, core.IsNotFound(err))

	// 没有 catalog 时无法解析嵌套模型
	_, err = NewScoringQuery(missing).BuildWeights(context.Background(), ix, true)
	assert.True(t, core.IsConfiguration(err))
}

func TestScoringQuery_HashEqual(t *testing.T) {
	ix := tagIndex()
	oq, err := ix.Parse("doc.ctr", nil, nil)
	require.NoError(t, err)
	other, err := ix.Parse("doc.cvr", nil, nil)
	require.NoError(t, err)

	m := fiveFeatureModel(t)
	base := func(opts ...QueryOption) *ScoringQuery {
		all := append([]QueryOption{
			WithOriginalQuery(oq),
			WithParams(map[string][]string{"city": {"sh"}, "q.op": {"AND"}}),
		}, opts...)
		return NewScoringQuery(m, all...)
	}

	a, b := base(), base()
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Equal(t, a.String(), b.String())

	// 日志、并行度与 debug 不影响结构相等
	c := base(WithWeightPool(NewWeightPool(2, 2, 2)), WithFeatureDebug(true))
	assert.True(t, a.Equal(c))
	assert.Equal(t, a.Hash(), c.Hash())

	tests := []struct {
		name string
		q    *ScoringQuery
	}{
		{name: "params", q: base(WithParams(map[string][]string{"city": {"bj"}, "q.op": {"AND"}}))},
		{name: "fewer params", q: base(WithParams(map[string][]string{"city": {"sh"}}))},
		{name: "original query", q: base(WithOriginalQuery(other))},
		{name: "no original query", q: NewScoringQuery(m, WithParams(a.Params))},
		{name: "model", q: base(func(q *ScoringQuery) { q.Model = scenarioModel(t) })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, a.Equal(tt.q))
			assert.False(t, tt.q.Equal(a))
			assert.NotEqual(t, a.Hash(), tt.q.Hash())
		})
	}

	var nilQuery *ScoringQuery
	assert.False(t, a.Equal(nilQuery))
	assert.True(t, nilQuery.Equal(nil))
}

func TestScoringQuery_StringAndParams(t *testing.T) {
	ix := tagIndex()
	oq, err := ix.Parse("doc.ctr", nil, nil)
	require.NoError(t, err)
	q := NewScoringQuery(scenarioModel(t),
		WithOriginalQuery(oq),
		WithParams(map[string][]string{"b": {"2", "3"}, "a": {"1"}, "empty": {}}))

	assert.Equal(t, "ScoringQuery(model=scenario, query=q=doc.ctr, params={a=1,b=2|3,empty=})", q.String())
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, q.FeatureParams())

	var _ search.Query = q
}
