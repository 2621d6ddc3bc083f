// Package search 定义二排引擎依赖的检索引擎契约。
//
// 二排只消费一排已经命中的文档：它需要按 segment 遍历文档、为任意子查询创建 Weight/Scorer、
// 以及读取文档的字符串值（table 特征）。具体实现由外部检索引擎提供，
// 包内 memindex 是一个可运行的内存参考实现。
//
// 文档 id 约定：
//   - 全局 doc id = segment.DocBase + segment 内 doc id
//   - 迭代器在开始前 DocID() == -1，结束后 DocID() == NoMoreDocs
package search

import (
	"context"
	"math"
	"sort"
)

// NoMoreDocs 表示迭代器已经耗尽。
const NoMoreDocs = math.MaxInt32

// DocIterator 是 segment 内的升序文档 id 迭代器。
type DocIterator interface {
	// DocID 返回当前文档；未开始为 -1，耗尽为 NoMoreDocs
	DocID() int
	// NextDoc 前进到下一个文档
	NextDoc() int
	// Advance 前进到第一个 >= target 的文档并返回它。
	// 调用方保证 target > DocID()。
	Advance(target int) int
	// Cost 是迭代器匹配文档数的估计值
	Cost() int64
}

// Scorer 是定位在某个文档上的打分器。
type Scorer interface {
	Iterator() DocIterator
	DocID() int
	// Score 返回当前文档的分数，只在迭代器定位到有效文档时调用
	Score() (float64, error)
}

// Segment 是索引的一个叶子分段（leaf reader）。
type Segment struct {
	Ord     int // 在 Searcher.Segments() 中的序号
	DocBase int // 全局 doc id 偏移
	MaxDoc  int // 分段文档数（含已删除）
	NumDocs int // 存活文档数
}

// End 返回该分段之后第一个全局 doc id。
func (s *Segment) End() int { return s.DocBase + s.MaxDoc }

// DelDocs 返回已删除文档数。
func (s *Segment) DelDocs() int { return s.MaxDoc - s.NumDocs }

// Query 是检索引擎的查询对象。String() 必须稳定且结构化：它参与缓存 key 的计算。
type Query interface {
	String() string
}

// Weight 是绑定到 Searcher 的查询，按 segment 创建 Scorer。
type Weight interface {
	Query() Query
	// Scorer 返回该分段的打分器；分段内没有任何命中时返回 (nil, nil)
	Scorer(seg *Segment) (Scorer, error)
	// Explain 解释分段内 doc 的分数
	Explain(seg *Segment, doc int) (*Explanation, error)
}

// StringValues 按分段内 doc id 读取字符串值。
type StringValues interface {
	StrVal(doc int) (string, error)
}

// ValueSource 产生每个分段的字符串值读取器（table 特征使用）。
type ValueSource interface {
	Values(seg *Segment) (StringValues, error)
	Description() string
}

// Searcher 是二排使用的检索引擎入口。
type Searcher interface {
	// Segments 返回按 DocBase 升序排列的分段
	Segments() []*Segment
	// Parse 解析评分查询 q 与过滤条件 filters；q 为空表示匹配所有文档（常数分 1）
	Parse(q string, filters []string, params map[string]string) (Query, error)
	// Rewrite 返回查询的优化形式
	Rewrite(q Query) (Query, error)
	// CreateWeight 为查询创建 Weight
	CreateWeight(ctx context.Context, q Query, needsScores bool) (Weight, error)
	// ValueSource 把查询作为字符串值函数（table 特征）
	ValueSource(q Query) (ValueSource, error)
}

// SegmentIndex 返回包含全局 doc 的分段下标；segments 按 DocBase 升序。
func SegmentIndex(segments []*Segment, doc int) int {
	i := sort.Search(len(segments), func(i int) bool { return segments[i].End() > doc })
	if doc < 0 || i == len(segments) {
		return -1
	}
	return i
}
