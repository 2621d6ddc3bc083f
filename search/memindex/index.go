// Package memindex 是 search 契约的内存实现：文档按分段存放，命中集合用 roaring bitmap 表示，
// 子查询、过滤条件和 table 取值都是 CEL 表达式。
//
// 表达式环境：
//   - doc: 当前文档字段（map）
//   - efi: 请求传入的外部参数（map[string]string）
//
// 评分查询 q 的结果为数值或布尔：非 0（或 true）即命中，数值即分数；
// q 为空时匹配全部文档，分数为 1。文档求值失败（如字段缺失）视为不匹配。
package memindex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/rushteam/rescore/core"
	"github.com/rushteam/rescore/search"
)

// Document 是一个文档的字段集合。
type Document map[string]any

type segment struct {
	info    search.Segment
	docs    []Document
	deleted *roaring.Bitmap
}

// Index 是内存索引，实现 search.Searcher。
type Index struct {
	mu       sync.RWMutex
	segments []*segment
	maxDoc   int

	programs *programCache
}

var _ search.Searcher = (*Index)(nil)

// New 创建空索引。
func New() *Index {
	return &Index{programs: newProgramCache()}
}

// FromDocuments 按 segmentSize 把文档切成多个分段；segmentSize <= 0 时只建一个分段。
func FromDocuments(docs []Document, segmentSize int) *Index {
	ix := New()
	if segmentSize <= 0 {
		segmentSize = len(docs)
	}
	for start := 0; start < len(docs); start += segmentSize {
		end := start + segmentSize
		if end > len(docs) {
			end = len(docs)
		}
		ix.AddSegment(docs[start:end]...)
	}
	return ix
}

// LoadJSON 从 JSON 数组读取文档并建立索引。
func LoadJSON(r io.Reader, segmentSize int) (*Index, error) {
	var docs []Document
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return nil, fmt.Errorf("decode corpus: %w", err)
	}
	return FromDocuments(docs, segmentSize), nil
}

// AddSegment 追加一个分段，返回它的描述。
func (ix *Index) AddSegment(docs ...Document) search.Segment {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	s := &segment{
		info: search.Segment{
			Ord:     len(ix.segments),
			DocBase: ix.maxDoc,
			MaxDoc:  len(docs),
			NumDocs: len(docs),
		},
		docs:    append([]Document(nil), docs...),
		deleted: roaring.New(),
	}
	ix.segments = append(ix.segments, s)
	ix.maxDoc += len(docs)
	return s.info
}

// Delete 标记删除全局 doc；文档不存在或已删除时返回 false。
func (ix *Index) Delete(doc int) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	s, local := ix.locate(doc)
	if s == nil || !s.deleted.CheckedAdd(uint32(local)) {
		return false
	}
	s.info.NumDocs--
	return true
}

// Doc 返回全局 doc 的字段。
func (ix *Index) Doc(doc int) (Document, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	s, local := ix.locate(doc)
	if s == nil || s.deleted.Contains(uint32(local)) {
		return nil, false
	}
	return s.docs[local], true
}

// MaxDoc 返回全局 doc id 上界。
func (ix *Index) MaxDoc() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.maxDoc
}

func (ix *Index) locate(doc int) (*segment, int) {
	i := sort.Search(len(ix.segments), func(i int) bool { return ix.segments[i].info.End() > doc })
	if doc < 0 || i == len(ix.segments) {
		return nil, 0
	}
	s := ix.segments[i]
	return s, doc - s.info.DocBase
}

func (ix *Index) segment(ord int) (*segment, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ord < 0 || ord >= len(ix.segments) {
		return nil, core.NewDomainError(core.ModuleSearch, core.ErrorCodeNotFound, fmt.Sprintf("segment %d not found", ord))
	}
	return ix.segments[ord], nil
}

// Segments 返回分段描述的快照。
func (ix *Index) Segments() []*search.Segment {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]*search.Segment, len(ix.segments))
	for i, s := range ix.segments {
		info := s.info
		out[i] = &info
	}
	return out
}

// Parse 编译评分查询与过滤条件。
func (ix *Index) Parse(q string, filters []string, params map[string]string) (search.Query, error) {
	return ix.parse(q, filters, params)
}

func (ix *Index) parse(q string, filters []string, params map[string]string) (*Query, error) {
	query := &Query{q: q, fq: append([]string(nil), filters...), params: params}
	if q != "" {
		prg, err := ix.programs.get(q)
		if err != nil {
			return nil, core.WrapDomainError(core.ModuleSearch, core.ErrorCodeInvalidInput, fmt.Sprintf("parse query %q", q), err)
		}
		query.score = prg
	}
	for _, f := range filters {
		if f == "" {
			continue
		}
		prg, err := ix.programs.get(f)
		if err != nil {
			return nil, core.WrapDomainError(core.ModuleSearch, core.ErrorCodeInvalidInput, fmt.Sprintf("parse filter %q", f), err)
		}
		query.filters = append(query.filters, prg)
	}
	return query, nil
}

// Rewrite 内存索引没有查询改写，原样返回。
func (ix *Index) Rewrite(q search.Query) (search.Query, error) { return q, nil }

// CreateWeight 为 Parse 得到的查询创建 Weight。
func (ix *Index) CreateWeight(ctx context.Context, q search.Query, needsScores bool) (search.Weight, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query, err := asQuery(q)
	if err != nil {
		return nil, err
	}
	return &weight{ix: ix, query: query, needsScores: needsScores}, nil
}

// ValueSource 把查询表达式作为每个文档的字符串值。
func (ix *Index) ValueSource(q search.Query) (search.ValueSource, error) {
	query, err := asQuery(q)
	if err != nil {
		return nil, err
	}
	if query.score == nil {
		return nil, core.NewDomainError(core.ModuleSearch, core.ErrorCodeInvalidInput, "value source requires an expression")
	}
	return &valueSource{ix: ix, query: query}, nil
}

func asQuery(q search.Query) (*Query, error) {
	query, ok := q.(*Query)
	if !ok {
		return nil, core.NewDomainError(core.ModuleSearch, core.ErrorCodeNotSupported, fmt.Sprintf("unsupported query type %T", q))
	}
	return query, nil
}

// Search 执行一排检索：返回按分数降序（同分按 doc 升序）的前 n 个文档。
func (ix *Index) Search(ctx context.Context, q search.Query, n int) ([]core.Candidate, error) {
	w, err := ix.CreateWeight(ctx, q, true)
	if err != nil {
		return nil, err
	}
	var hits []core.Candidate
	for _, seg := range ix.Segments() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sc, err := w.Scorer(seg)
		if err != nil {
			return nil, err
		}
		if sc == nil {
			continue
		}
		it := sc.Iterator()
		for doc := it.NextDoc(); doc != search.NoMoreDocs; doc = it.NextDoc() {
			score, err := sc.Score()
			if err != nil {
				return nil, err
			}
			hits = append(hits, core.Candidate{DocID: seg.DocBase + doc, Score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocID < hits[j].DocID
	})
	if n >= 0 && len(hits) > n {
		hits = hits[:n]
	}
	return hits, nil
}
