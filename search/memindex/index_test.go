package memindex

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/rescore/core"
	"github.com/rushteam/rescore/search"
)

func testDocs() []Document {
	return []Document{
		{"id": "a", "ctr": 0.5, "online": true, "stats": "1,2"},
		{"id": "b", "ctr": 0.0, "online": false, "stats": ""},
		{"id": "c", "ctr": 0.2, "online": true},
		{"id": "d", "ctr": 0.9, "online": true, "stats": "3"},
		{"id": "e", "ctr": 0.1, "online": false, "stats": "x,4"},
	}
}

func collect(t *testing.T, s search.Scorer) map[int]float64 {
	t.Helper()
	out := map[int]float64{}
	if s == nil {
		return out
	}
	it := s.Iterator()
	for doc := it.NextDoc(); doc != search.NoMoreDocs; doc = it.NextDoc() {
		score, err := s.Score()
		require.NoError(t, err)
		out[doc] = score
	}
	return out
}

func TestFromDocuments_Segments(t *testing.T) {
	ix := FromDocuments(testDocs(), 2)
	segs := ix.Segments()
	require.Len(t, segs, 3)
	assert.Equal(t, 5, ix.MaxDoc())
	assert.Equal(t, search.Segment{Ord: 2, DocBase: 4, MaxDoc: 1, NumDocs: 1}, *segs[2])

	single := FromDocuments(testDocs(), 0)
	assert.Len(t, single.Segments(), 1)
}

func TestLoadJSON(t *testing.T) {
	ix, err := LoadJSON(strings.NewReader(`[{"ctr": 1}, {"ctr": 2}, {"ctr": 3}]`), 2)
	require.NoError(t, err)
	assert.Len(t, ix.Segments(), 2)
	doc, ok := ix.Doc(2)
	require.True(t, ok)
	assert.Equal(t, 3.0, doc["ctr"])

	_, err = LoadJSON(strings.NewReader(`{`), 2)
	assert.Error(t, err)
}

func TestWeight_Scorer(t *testing.T) {
	ix := FromDocuments(testDocs(), 3)
	ctx := context.Background()

	tests := []struct {
		name    string
		q       string
		fq      []string
		perSeg  []map[int]float64
		noMatch []bool
	}{
		{
			name:   "score query skips zero",
			q:      "doc.ctr",
			perSeg: []map[int]float64{{0: 0.5, 2: 0.2}, {0: 0.9, 1: 0.1}},
		},
		{
			name:   "filter only matches with score 1",
			fq:     []string{"doc.online"},
			perSeg: []map[int]float64{{0: 1, 2: 1}, {0: 1}},
		},
		{
			name:   "query and filter",
			q:      "doc.ctr",
			fq:     []string{"doc.online", "doc.ctr > 0.3"},
			perSeg: []map[int]float64{{0: 0.5}, {0: 0.9}},
		},
		{
			name:   "missing field does not match",
			q:      `has(doc.stats) && doc.stats != ""`,
			perSeg: []map[int]float64{{0: 1}, {0: 1, 1: 1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := ix.Parse(tt.q, tt.fq, nil)
			require.NoError(t, err)
			w, err := ix.CreateWeight(ctx, q, true)
			require.NoError(t, err)
			for i, seg := range ix.Segments() {
				s, err := w.Scorer(seg)
				require.NoError(t, err)
				assert.Equal(t, tt.perSeg[i], collect(t, s), "segment %d", i)
			}
		})
	}
}

func TestWeight_ScorerNoMatchReturnsNil(t *testing.T) {
	ix := FromDocuments(testDocs(), 0)
	q, err := ix.Parse("doc.ctr > 5.0", nil, nil)
	require.NoError(t, err)
	w, err := ix.CreateWeight(context.Background(), q, true)
	require.NoError(t, err)
	s, err := w.Scorer(ix.Segments()[0])
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestWeight_Advance(t *testing.T) {
	ix := FromDocuments(testDocs(), 0)
	q, err := ix.Parse("doc.online", nil, nil)
	require.NoError(t, err)
	w, err := ix.CreateWeight(context.Background(), q, false)
	require.NoError(t, err)
	s, err := w.Scorer(ix.Segments()[0])
	require.NoError(t, err)

	it := s.Iterator()
	assert.Equal(t, int64(3), it.Cost())
	assert.Equal(t, 2, it.Advance(1))
	assert.Equal(t, 3, it.Advance(3))
	assert.Equal(t, search.NoMoreDocs, it.NextDoc())
}

func TestIndex_Delete(t *testing.T) {
	ix := FromDocuments(testDocs(), 0)
	assert.True(t, ix.Delete(0))
	assert.False(t, ix.Delete(0))
	assert.False(t, ix.Delete(42))

	seg := ix.Segments()[0]
	assert.Equal(t, 1, seg.DelDocs())
	_, ok := ix.Doc(0)
	assert.False(t, ok)

	q, err := ix.Parse("doc.ctr", nil, nil)
	require.NoError(t, err)
	w, err := ix.CreateWeight(context.Background(), q, true)
	require.NoError(t, err)
	s, err := w.Scorer(seg)
	require.NoError(t, err)
	assert.NotContains(t, collect(t, s), 0)
}

func TestIndex_Parse(t *testing.T) {
	ix := New()
	_, err := ix.Parse("doc.ctr +", nil, nil)
	require.Error(t, err)
	assert.True(t, core.IsInvalidInput(err))

	_, err = ix.Parse("", []string{"("}, nil)
	assert.True(t, core.IsInvalidInput(err))

	q, err := ix.Parse("doc.ctr", []string{"doc.online", "true"}, map[string]string{"b": "2", "a": "1"})
	require.NoError(t, err)
	assert.Equal(t, "q=doc.ctr fq=[doc.online; true] efi={a=1,b=2}", q.String())
}

func TestIndex_EfiParams(t *testing.T) {
	ix := FromDocuments([]Document{{"city": "sh"}, {"city": "bj"}}, 0)
	q, err := ix.Parse(`doc.city == efi.city`, nil, map[string]string{"city": "bj"})
	require.NoError(t, err)
	w, err := ix.CreateWeight(context.Background(), q, true)
	require.NoError(t, err)
	s, err := w.Scorer(ix.Segments()[0])
	require.NoError(t, err)
	assert.Equal(t, map[int]float64{1: 1}, collect(t, s))
}

func TestIndex_CreateWeightCanceled(t *testing.T) {
	ix := New()
	q, err := ix.Parse("", nil, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ix.CreateWeight(ctx, q, true)
	assert.ErrorIs(t, err, context.Canceled)
}

type foreignQuery struct{}

func (foreignQuery) String() string { return "foreign" }

func TestIndex_ForeignQuery(t *testing.T) {
	ix := New()
	_, err := ix.CreateWeight(context.Background(), foreignQuery{}, true)
	assert.True(t, core.IsNotSupported(err))
}

func TestWeight_Explain(t *testing.T) {
	ix := FromDocuments(testDocs(), 0)
	q, err := ix.Parse("doc.ctr", nil, nil)
	require.NoError(t, err)
	w, err := ix.CreateWeight(context.Background(), q, true)
	require.NoError(t, err)
	seg := ix.Segments()[0]

	e, err := w.Explain(seg, 0)
	require.NoError(t, err)
	assert.True(t, e.Match)
	assert.Equal(t, 0.5, e.Value)

	e, err = w.Explain(seg, 1)
	require.NoError(t, err)
	assert.False(t, e.Match)
}

func TestValueSource(t *testing.T) {
	ix := FromDocuments(testDocs(), 0)
	q, err := ix.Parse("doc.stats", []string{"doc.online"}, nil)
	require.NoError(t, err)
	vs, err := ix.ValueSource(q)
	require.NoError(t, err)
	vals, err := vs.Values(ix.Segments()[0])
	require.NoError(t, err)

	tests := []struct {
		doc  int
		want string
	}{
		{doc: 0, want: "1,2"},
		{doc: 1, want: ""}, // filtered
		{doc: 2, want: ""}, // missing field
		{doc: 3, want: "3"},
		{doc: 9, want: ""},
	}
	for _, tt := range tests {
		got, err := vals.StrVal(tt.doc)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "doc %d", tt.doc)
	}

	empty, err := ix.Parse("", nil, nil)
	require.NoError(t, err)
	_, err = ix.ValueSource(empty)
	assert.Error(t, err)
}

func TestIndex_Search(t *testing.T) {
	ix := FromDocuments(testDocs(), 2)
	q, err := ix.Parse("doc.ctr", nil, nil)
	require.NoError(t, err)

	hits, err := ix.Search(context.Background(), q, 3)
	require.NoError(t, err)
	assert.Equal(t, []core.Candidate{
		{DocID: 3, Score: 0.9},
		{DocID: 0, Score: 0.5},
		{DocID: 2, Score: 0.2},
	}, hits)

	all, err := ix.Search(context.Background(), q, -1)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}
