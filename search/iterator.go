package search

import "sort"

type emptyIterator struct{ doc int }

// EmptyIterator 返回不匹配任何文档的迭代器。
func EmptyIterator() DocIterator { return &emptyIterator{doc: -1} }

func (it *emptyIterator) DocID() int { return it.doc }
func (it *emptyIterator) NextDoc() int {
	it.doc = NoMoreDocs
	return it.doc
}
func (it *emptyIterator) Advance(int) int {
	it.doc = NoMoreDocs
	return it.doc
}
func (it *emptyIterator) Cost() int64 { return 0 }

type allIterator struct {
	doc    int
	maxDoc int
}

// AllIterator 返回匹配 [0, maxDoc) 全部文档的迭代器。
func AllIterator(maxDoc int) DocIterator { return &allIterator{doc: -1, maxDoc: maxDoc} }

func (it *allIterator) DocID() int   { return it.doc }
func (it *allIterator) NextDoc() int { return it.Advance(it.doc + 1) }
func (it *allIterator) Advance(target int) int {
	if target >= it.maxDoc {
		it.doc = NoMoreDocs
	} else {
		it.doc = target
	}
	return it.doc
}
func (it *allIterator) Cost() int64 { return int64(it.maxDoc) }

type sliceIterator struct {
	docs []int
	pos  int
	doc  int
}

// SliceIterator 返回遍历升序 docs 的迭代器。
func SliceIterator(docs []int) DocIterator { return &sliceIterator{docs: docs, pos: -1, doc: -1} }

func (it *sliceIterator) DocID() int { return it.doc }
func (it *sliceIterator) NextDoc() int {
	if it.pos < len(it.docs) {
		it.pos++
	}
	return it.current()
}
func (it *sliceIterator) Advance(target int) int {
	if it.pos >= len(it.docs) {
		return it.current()
	}
	start := it.pos + 1
	it.pos = start + sort.SearchInts(it.docs[start:], target)
	return it.current()
}
func (it *sliceIterator) current() int {
	if it.pos >= len(it.docs) {
		it.doc = NoMoreDocs
	} else {
		it.doc = it.docs[it.pos]
	}
	return it.doc
}
func (it *sliceIterator) Cost() int64 { return int64(len(it.docs)) }

// ConstantScorer 对迭代器的每个文档返回固定分数。
type ConstantScorer struct {
	it    DocIterator
	score float64
}

func NewConstantScorer(it DocIterator, score float64) *ConstantScorer {
	return &ConstantScorer{it: it, score: score}
}

func (s *ConstantScorer) Iterator() DocIterator   { return s.it }
func (s *ConstantScorer) DocID() int              { return s.it.DocID() }
func (s *ConstantScorer) Score() (float64, error) { return s.score, nil }
