package rerank

import (
	"sort"

	"github.com/rushteam/rescore/feature"
	"github.com/rushteam/rescore/search"
)

// disiWrapper 是堆中的一个特征游标。
type disiWrapper struct {
	scorer *feature.Scorer
	it     search.DocIterator
	doc    int
	index  int
	cost   int64
}

// disiHeap 是按 (doc, 特征下标) 排序的二叉小顶堆。
// 它把 N 个特征打分器合并为一个析取迭代器：堆顶文档即任一特征匹配的最小文档。
type disiHeap struct {
	items []*disiWrapper
	cost  int64
	// topList 的复用缓冲
	top []*disiWrapper
}

func newDisiHeap(scorers []*feature.Scorer) *disiHeap {
	h := &disiHeap{items: make([]*disiWrapper, 0, len(scorers))}
	for _, s := range scorers {
		it := s.Iterator()
		w := &disiWrapper{
			scorer: s,
			it:     it,
			doc:    it.DocID(),
			index:  s.Weight().Index(),
			cost:   it.Cost(),
		}
		h.cost += w.cost
		h.items = append(h.items, w)
	}
	for i := len(h.items)/2 - 1; i >= 0; i-- {
		h.down(i)
	}
	return h
}

func (h *disiHeap) less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.doc != b.doc {
		return a.doc < b.doc
	}
	return a.index < b.index
}

func (h *disiHeap) down(i int) {
	n := len(h.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		m := l
		if r := l + 1; r < n && h.less(r, l) {
			m = r
		}
		if !h.less(m, i) {
			return
		}
		h.items[i], h.items[m] = h.items[m], h.items[i]
		i = m
	}
}

func (h *disiHeap) size() int { return len(h.items) }

// docID 返回堆顶文档；空堆为 NoMoreDocs。
func (h *disiHeap) docID() int {
	if len(h.items) == 0 {
		return search.NoMoreDocs
	}
	return h.items[0].doc
}

// nextDoc 把所有位于当前堆顶文档的游标前进一步。
func (h *disiHeap) nextDoc() int {
	if len(h.items) == 0 {
		return search.NoMoreDocs
	}
	doc := h.items[0].doc
	if doc == search.NoMoreDocs {
		return doc
	}
	for {
		top := h.items[0]
		top.doc = top.it.NextDoc()
		h.down(0)
		if h.items[0].doc != doc {
			return h.items[0].doc
		}
	}
}

// advance 只前进落后于 target 的游标，返回堆顶文档（>= target）。
func (h *disiHeap) advance(target int) int {
	if len(h.items) == 0 {
		return search.NoMoreDocs
	}
	for h.items[0].doc < target {
		top := h.items[0]
		top.doc = top.it.Advance(target)
		h.down(0)
	}
	return h.items[0].doc
}

// topList 返回所有位于堆顶文档上的游标，按特征下标升序。
func (h *disiHeap) topList() []*disiWrapper {
	h.top = h.top[:0]
	if len(h.items) == 0 {
		return h.top
	}
	doc := h.items[0].doc
	if doc == search.NoMoreDocs {
		return h.top
	}
	h.collect(0, doc)
	sort.Slice(h.top, func(i, j int) bool { return h.top[i].index < h.top[j].index })
	return h.top
}

// collect 从 i 开始向下收集 doc 相同的节点；堆序保证子节点 doc 不小于父节点。
func (h *disiHeap) collect(i, doc int) {
	if i >= len(h.items) || h.items[i].doc != doc {
		return
	}
	h.top = append(h.top, h.items[i])
	h.collect(2*i+1, doc)
	h.collect(2*i+2, doc)
}
