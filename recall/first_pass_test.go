package recall

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/rescore/core"
	"github.com/rushteam/rescore/pipeline"
	"github.com/rushteam/rescore/search/memindex"
)

func testIndex() *memindex.Index {
	return memindex.FromDocuments([]memindex.Document{
		{"ctr": 0.5, "online": true},
		{"ctr": 0.9, "online": false},
		{"ctr": 0.2, "online": true},
		{"ctr": 0.7, "online": true},
	}, 2)
}

func docs(hits []*core.Hit) []int {
	out := make([]int, len(hits))
	for i, h := range hits {
		out[i] = h.DocID
	}
	return out
}

func TestFirstPass_Process(t *testing.T) {
	ix := testIndex()
	n := &FirstPass{Searcher: ix, Source: ix, Rows: 3}
	var _ pipeline.Node = n
	assert.Equal(t, pipeline.KindRecall, n.Kind())

	tests := []struct {
		name   string
		params map[string][]string
		want   []int
	}{
		{name: "rows from node", want: []int{1, 3, 0}},
		{name: "rows param", params: map[string][]string{"rows": {"2"}}, want: []int{1, 3}},
		{name: "filter", params: map[string][]string{"fq": {"doc.online"}}, want: []int{3, 0, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rctx := &core.RequestContext{Query: "doc.ctr", Params: tt.params}
			hits, err := n.Process(context.Background(), rctx, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, docs(hits))
			for _, h := range hits {
				assert.Equal(t, "first_pass", h.Labels["recall"].Value)
			}
		})
	}

	hits, err := n.Process(context.Background(), &core.RequestContext{Query: "doc.ctr"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.9, hits[0].Score)
}

func TestFirstPass_DefaultRowsAndErrors(t *testing.T) {
	ix := testIndex()
	n := &FirstPass{Searcher: ix, Source: ix}
	hits, err := n.Process(context.Background(), &core.RequestContext{}, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 4)

	_, err = n.Process(context.Background(), &core.RequestContext{Params: map[string][]string{"rows": {"x"}}}, nil)
	assert.True(t, core.IsInvalidInput(err))

	_, err = n.Process(context.Background(), &core.RequestContext{Query: "doc.("}, nil)
	assert.Error(t, err)
}
