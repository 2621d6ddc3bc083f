package memindex

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/rushteam/rescore/search"
)

type weight struct {
	ix          *Index
	query       *Query
	needsScores bool
}

func (w *weight) Query() search.Query { return w.query }

// Scorer 对分段内存活文档逐个求值，命中集合存为 bitmap。
func (w *weight) Scorer(seg *search.Segment) (search.Scorer, error) {
	s, err := w.ix.segment(seg.Ord)
	if err != nil {
		return nil, err
	}
	w.ix.mu.RLock()
	defer w.ix.mu.RUnlock()

	matched := roaring.New()
	var scores map[int]float64
	if w.needsScores {
		scores = make(map[int]float64)
	}
	for i, doc := range s.docs {
		if s.deleted.Contains(uint32(i)) {
			continue
		}
		score, ok := w.query.scoreOf(doc)
		if !ok {
			continue
		}
		matched.Add(uint32(i))
		if scores != nil {
			scores[i] = score
		}
	}
	if matched.IsEmpty() {
		return nil, nil
	}
	return &scorer{it: newBitmapIterator(matched), scores: scores}, nil
}

func (w *weight) Explain(seg *search.Segment, doc int) (*search.Explanation, error) {
	s, err := w.ix.segment(seg.Ord)
	if err != nil {
		return nil, err
	}
	w.ix.mu.RLock()
	defer w.ix.mu.RUnlock()

	desc := fmt.Sprintf("memindex(%s)", w.query)
	if doc < 0 || doc >= len(s.docs) || s.deleted.Contains(uint32(doc)) {
		return search.NoMatch(desc), nil
	}
	score, ok := w.query.scoreOf(s.docs[doc])
	if !ok {
		return search.NoMatch(desc), nil
	}
	return search.Match(score, desc), nil
}

type scorer struct {
	it     *bitmapIterator
	scores map[int]float64
}

func (s *scorer) Iterator() search.DocIterator { return s.it }
func (s *scorer) DocID() int                   { return s.it.DocID() }

func (s *scorer) Score() (float64, error) {
	if s.scores == nil {
		return 1, nil
	}
	return s.scores[s.it.DocID()], nil
}

// bitmapIterator 把 roaring 的 IntPeekable 适配为 search.DocIterator。
type bitmapIterator struct {
	it   roaring.IntPeekable
	doc  int
	cost int64
}

func newBitmapIterator(bm *roaring.Bitmap) *bitmapIterator {
	return &bitmapIterator{it: bm.Iterator(), doc: -1, cost: int64(bm.GetCardinality())}
}

func (b *bitmapIterator) DocID() int { return b.doc }

func (b *bitmapIterator) NextDoc() int {
	if b.doc == search.NoMoreDocs || !b.it.HasNext() {
		b.doc = search.NoMoreDocs
		return b.doc
	}
	b.doc = int(b.it.Next())
	return b.doc
}

func (b *bitmapIterator) Advance(target int) int {
	if target >= search.NoMoreDocs {
		b.doc = search.NoMoreDocs
		return b.doc
	}
	b.it.AdvanceIfNeeded(uint32(target))
	return b.NextDoc()
}

func (b *bitmapIterator) Cost() int64 { return b.cost }

type valueSource struct {
	ix    *Index
	query *Query
}

func (v *valueSource) Description() string { return fmt.Sprintf("strval(%s)", v.query.q) }

func (v *valueSource) Values(seg *search.Segment) (search.StringValues, error) {
	s, err := v.ix.segment(seg.Ord)
	if err != nil {
		return nil, err
	}
	return &stringValues{ix: v.ix, seg: s, query: v.query}, nil
}

type stringValues struct {
	ix    *Index
	seg   *segment
	query *Query
}

// StrVal 返回文档的字符串值；被过滤、已删除或求值失败时返回空串。
func (s *stringValues) StrVal(doc int) (string, error) {
	s.ix.mu.RLock()
	defer s.ix.mu.RUnlock()

	if doc < 0 || doc >= len(s.seg.docs) || s.seg.deleted.Contains(uint32(doc)) {
		return "", nil
	}
	d := s.seg.docs[doc]
	if !s.query.accept(d) {
		return "", nil
	}
	str, err := s.query.score.EvalString(s.query.vars(d))
	if err != nil {
		return "", nil
	}
	return str, nil
}
