package rerank

import (
	"cmp"
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/rushteam/rescore/core"
	"github.com/rushteam/rescore/search"
)

const (
	DefaultReRankWeight = 1.0
	DefaultFirstWeight  = 1.0
	DefaultTimeout      = 1000 * time.Millisecond

	// ctxCheckInterval 是打分循环中检查 ctx 的间隔（候选数）
	ctxCheckInterval = 32
)

// Rescorer 对一排命中做二排：逐文档计算模型分并与一排分合并，取 Top N。
type Rescorer struct {
	query *ScoringQuery

	reRankWeight float64
	firstWeight  float64
	firstMinimum float64
	timeout      time.Duration
	debug        bool
	log          *slog.Logger
}

type RescorerOption func(*Rescorer)

func WithReRankWeight(w float64) RescorerOption {
	return func(r *Rescorer) { r.reRankWeight = w }
}

func WithFirstWeight(w float64) RescorerOption {
	return func(r *Rescorer) { r.firstWeight = w }
}

// WithFirstMinimum 设置一排分下限，低于它的文档只保留一排分。
func WithFirstMinimum(m float64) RescorerOption {
	return func(r *Rescorer) { r.firstMinimum = m }
}

// WithTimeout 设置二排预算，调用方（rerank.Node）据此设置 ctx deadline。
func WithTimeout(d time.Duration) RescorerOption {
	return func(r *Rescorer) { r.timeout = d }
}

// WithDebug 开启 debug 统计，不影响分数。
func WithDebug(on bool) RescorerOption {
	return func(r *Rescorer) { r.debug = on }
}

func WithLogger(l *slog.Logger) RescorerOption {
	return func(r *Rescorer) { r.log = l }
}

func NewRescorer(q *ScoringQuery, opts ...RescorerOption) *Rescorer {
	r := &Rescorer{
		query:        q,
		reRankWeight: DefaultReRankWeight,
		firstWeight:  DefaultFirstWeight,
		timeout:      DefaultTimeout,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.debug {
		q.debug = true
	}
	return r
}

func (r *Rescorer) Query() *ScoringQuery   { return r.query }
func (r *Rescorer) Timeout() time.Duration { return r.timeout }

// Combine 合并一排分与模型分：只有命中且一排分不低于 firstMinimum 时才加上模型分。
func (r *Rescorer) Combine(first float64, matched bool, second float64) float64 {
	if matched && first >= r.firstMinimum {
		return first*r.firstWeight + r.reRankWeight*second
	}
	return first
}

// Result 是 Rescore 的结果；Debug 只在开启 debug 时非空。
type Result struct {
	Hits  []core.RescoredCandidate
	Debug *DebugInfo
}

// Rescore 对 hits 二排，返回按 (分数降序, doc 升序) 排列的前 topN 个；topN < 0 表示全部保留。
// hits 本身不会被修改。
func (r *Rescorer) Rescore(ctx context.Context, searcher search.Searcher, hits []core.Candidate, topN int) (*Result, error) {
	res := &Result{}
	if r.debug {
		res.Debug = &DebugInfo{}
	}
	if len(hits) == 0 || topN == 0 {
		return res, nil
	}

	sorted := slices.Clone(hits)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].DocID < sorted[j].DocID })

	w, err := r.query.CreateWeight(ctx, searcher, true)
	if err != nil {
		return nil, err
	}

	segments := searcher.Segments()
	maxDoc := 0
	if n := len(segments); n > 0 {
		maxDoc = segments[n-1].End()
	}

	scored := make([]core.RescoredCandidate, 0, len(sorted))
	var (
		segIdx = -1
		seg    *search.Segment
		endDoc = 0
		sc     *Scorer
	)
	for i, hit := range sorted {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		doc := hit.DocID
		if doc < 0 || doc >= maxDoc {
			return nil, core.NewDomainError(core.ModuleRerank, core.ErrorCodeInvalidInput,
				fmt.Sprintf("doc %d out of range [0, %d)", doc, maxDoc))
		}
		if doc >= endDoc {
			for doc >= endDoc {
				segIdx++
				seg = segments[segIdx]
				endDoc = seg.End()
			}
			start := time.Now()
			if sc, err = w.CompositeScorer(seg); err != nil {
				return nil, err
			}
			if res.Debug != nil {
				res.Debug.ScorerTime += time.Since(start)
				res.Debug.Leaves = append(res.Debug.Leaves, segmentInfo(seg))
			}
		}

		target := doc - seg.DocBase
		actual := sc.DocID()
		if actual < target {
			actual = sc.Advance(target)
		}
		matched := actual == target

		var second float64
		if matched {
			start := time.Now()
			if second, err = sc.Score(); err != nil {
				return nil, err
			}
			if res.Debug != nil {
				res.Debug.ScoreTime += time.Since(start)
			}
		} else {
			w.reset()
		}
		scored = append(scored, core.RescoredCandidate{
			DocID:      doc,
			Score:      r.Combine(hit.Score, matched, second),
			FirstScore: hit.Score,
			ModelScore: second,
			Matched:    matched,
			Features:   core.CloneFeatureInfos(w.FeatureInfos()),
		})
	}

	res.Hits = selectTop(scored, topN)

	if l := r.query.Logger; l != nil {
		if _, err := l.LogBatch(ctx, r.query, FeatureDocs(res.Hits)); err != nil {
			r.log.Warn("log feature vectors failed", "docs", len(res.Hits), "error", err)
		}
	}

	if res.Debug != nil {
		res.Debug.LeaveCount = len(segments)
		res.Debug.Features = w.Debugs()
		r.log.Debug("rescore finished", "model", r.query.Model.Name(), "hits", len(hits),
			"scorer_ms", res.Debug.ScorerTime.Milliseconds(), "score_ms", res.Debug.ScoreTime.Milliseconds())
	}
	return res, nil
}

// compareHits 是结果的全序：分数降序，分数相同时 doc 升序。
func compareHits(a, b core.RescoredCandidate) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	return cmp.Compare(a.DocID, b.DocID)
}

// selectTop 用大小为 n 的堆选出前 n 个并排序。
func selectTop(hits []core.RescoredCandidate, n int) []core.RescoredCandidate {
	if n < 0 || n >= len(hits) {
		slices.SortFunc(hits, compareHits)
		return hits
	}
	h := &worstFirst{}
	for _, c := range hits {
		if h.Len() < n {
			heap.Push(h, c)
			continue
		}
		if compareHits(c, (*h)[0]) < 0 {
			(*h)[0] = c
			heap.Fix(h, 0)
		}
	}
	out := []core.RescoredCandidate(*h)
	slices.SortFunc(out, compareHits)
	return out
}

// worstFirst 堆顶是当前最差的候选。
type worstFirst []core.RescoredCandidate

func (h worstFirst) Len() int           { return len(h) }
func (h worstFirst) Less(i, j int) bool { return compareHits(h[i], h[j]) > 0 }
func (h worstFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *worstFirst) Push(x any)        { *h = append(*h, x.(core.RescoredCandidate)) }
func (h *worstFirst) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Explain 解释单个全局 doc 的二排分数，first 是它的一排分。
func (r *Rescorer) Explain(ctx context.Context, searcher search.Searcher, doc int, first float64) (*search.Explanation, error) {
	segments := searcher.Segments()
	i := search.SegmentIndex(segments, doc)
	if i < 0 {
		return nil, core.NewDomainError(core.ModuleRerank, core.ErrorCodeInvalidInput, fmt.Sprintf("doc %d out of range", doc))
	}
	w, err := r.query.CreateWeight(ctx, searcher, true)
	if err != nil {
		return nil, err
	}
	seg := segments[i]
	second, err := w.Explain(seg, doc-seg.DocBase)
	if err != nil {
		return nil, err
	}
	firstExpl := search.Match(first, "first pass score")
	if !second.Match || first < r.firstMinimum {
		return search.Match(first, fmt.Sprintf("first pass score only, firstMinimum=%g", r.firstMinimum), firstExpl, second), nil
	}
	score := r.Combine(first, true, second.Value)
	return search.Match(score,
		fmt.Sprintf("combined first and second pass score using firstWeight=%g, reRankWeight=%g", r.firstWeight, r.reRankWeight),
		firstExpl,
		search.Match(second.Value, "second pass score", second)), nil
}
