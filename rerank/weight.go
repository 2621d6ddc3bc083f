package rerank

import (
	"fmt"
	"time"

	"github.com/rushteam/rescore/core"
	"github.com/rushteam/rescore/feature"
	"github.com/rushteam/rescore/model"
	"github.com/rushteam/rescore/search"
)

// Weight 是二排的组合 Weight：把模型的全部特征 Weight 合并成一个打分器，并调用模型打分。
//
// FeatureInfo 数组在 Weight 内只分配一次，每个文档打分前重置；
// 因此一个 Weight 只能被单个请求顺序使用。
type Weight struct {
	query   *ScoringQuery
	model   model.ScoringModel
	weights []*feature.Weight
	infos   []core.FeatureInfo

	// debugs[i] 对应特征 i，最后一个是模型求值 eval；未开启 debug 时为 nil
	debugs []*feature.Debug

	table    feature.TableValues
	deferred []*disiWrapper
}

var _ search.Weight = (*Weight)(nil)

// NewWeight 创建组合 Weight；weights 必须按模型特征顺序排列。
func NewWeight(q *ScoringQuery, weights []*feature.Weight, debug bool) *Weight {
	features := q.Model.Features()
	w := &Weight{
		query:   q,
		model:   q.Model,
		weights: weights,
		infos:   make([]core.FeatureInfo, len(features)),
		table:   make(feature.TableValues),
	}
	for i, f := range features {
		w.infos[i] = core.FeatureInfo{Name: f.Name, Value: f.DefaultValue, Index: i}
	}
	if debug {
		w.debugs = make([]*feature.Debug, len(weights)+1)
		for _, fw := range weights {
			d := feature.NewDebug(fw.Name())
			if nested, ok := fw.Nested().(*Weight); ok {
				d.Children = nested.Debugs()
			}
			w.debugs[fw.Index()] = d
		}
		w.debugs[len(weights)] = feature.NewDebug("eval")
	}
	return w
}

func (w *Weight) Query() search.Query { return w.query }

// FeatureInfos 返回最近一次打分的特征数组（会被下一次打分覆盖）。
func (w *Weight) FeatureInfos() []core.FeatureInfo { return w.infos }

// Debugs 返回每个特征的 debug 统计，最后一个为 eval；未开启 debug 时为 nil。
func (w *Weight) Debugs() []*feature.Debug { return w.debugs }

func (w *Weight) reset() {
	for _, fw := range w.weights {
		info := &w.infos[fw.Index()]
		info.Value = fw.DefaultValue()
		info.Used = false
	}
}

// Scorer 实现 search.Weight，嵌套模型特征通过它取子模型分数。
func (w *Weight) Scorer(seg *search.Segment) (search.Scorer, error) {
	return w.CompositeScorer(seg)
}

// CompositeScorer 创建分段的组合打分器。
func (w *Weight) CompositeScorer(seg *search.Segment) (*Scorer, error) {
	scorers := make([]*feature.Scorer, 0, len(w.weights))
	for _, fw := range w.weights {
		s, err := fw.Scorer(seg)
		if err != nil {
			return nil, err
		}
		if w.debugs != nil {
			w.debugs[fw.Index()].IncCost(s.Iterator().Cost())
		}
		scorers = append(scorers, s)
	}
	return &Scorer{
		weight: w,
		heap:   newDisiHeap(scorers),
		maxDoc: seg.MaxDoc,
		active: -1,
		target: -1,
	}, nil
}

// Explain 解释分段内 doc 的模型分数，未命中的特征标记为 unused。
func (w *Weight) Explain(seg *search.Segment, doc int) (*search.Explanation, error) {
	sc, err := w.CompositeScorer(seg)
	if err != nil {
		return nil, err
	}
	sc.Advance(doc)
	final, err := sc.Score()
	if err != nil {
		return nil, err
	}
	details := make([]*search.Explanation, 0, len(w.weights))
	for _, fw := range w.weights {
		fe, err := fw.Explain(seg, doc)
		if err != nil {
			return nil, err
		}
		info := w.infos[fw.Index()]
		if info.Used {
			details = append(details, search.Match(info.Value, info.Name+": "+fe.Description, fe.Details...))
		} else {
			details = append(details, search.Match(0, info.Name+"(unused): "+fe.Description))
		}
	}
	return w.model.Explain(final, details), nil
}

// Scorer 是组合打分器，同时也是稀疏迭代器：
// Advance(target) 总是停在 target，只有当某个特征真正匹配 target 时才计算这些特征的值。
type Scorer struct {
	weight *Weight
	heap   *disiHeap
	maxDoc int

	// active 是特征游标实际所在的文档，target 是最近一次被要求前往的文档
	active int
	target int
}

var (
	_ search.Scorer      = (*Scorer)(nil)
	_ search.DocIterator = (*Scorer)(nil)
)

func (s *Scorer) Iterator() search.DocIterator { return s }
func (s *Scorer) DocID() int                   { return s.target }
func (s *Scorer) Cost() int64                  { return int64(s.maxDoc) }

func (s *Scorer) NextDoc() int {
	if s.target == search.NoMoreDocs {
		return s.target
	}
	if s.active == s.target {
		s.active = s.heap.nextDoc()
	} else if s.active < s.target {
		s.active = s.heap.advance(s.target + 1)
	}
	s.target++
	if s.target >= s.maxDoc {
		s.target = search.NoMoreDocs
	}
	return s.target
}

func (s *Scorer) Advance(target int) int {
	if target >= s.maxDoc {
		s.target = search.NoMoreDocs
		return s.target
	}
	if s.active < target {
		s.active = s.heap.advance(target)
	}
	s.target = target
	return s.target
}

// Matched 表示至少一个特征匹配当前文档。
func (s *Scorer) Matched() bool { return s.active == s.target }

// Score 计算当前文档的模型分数。
//
// 两阶段求值：先计算所有非 map-offset 特征（table 特征在这里解码），再计算 map-offset 特征，
// 保证 map-offset 总能读到同一文档 table 的结果。任一特征出错则整个文档失败。
func (s *Scorer) Score() (float64, error) {
	w := s.weight
	w.reset()
	if s.active == s.target && s.target != search.NoMoreDocs {
		if err := s.evaluate(); err != nil {
			return 0, fmt.Errorf("doc %d: %w", s.target, err)
		}
	}
	var start time.Time
	if w.debugs != nil {
		start = time.Now()
	}
	score, err := w.model.Score(w.infos)
	if err != nil {
		return 0, fmt.Errorf("doc %d: %w", s.target, err)
	}
	if w.debugs != nil {
		w.debugs[len(w.debugs)-1].Inc(time.Since(start), 1)
	}
	return score, nil
}

func (s *Scorer) evaluate() error {
	w := s.weight
	clear(w.table)
	w.deferred = w.deferred[:0]
	for _, d := range s.heap.topList() {
		if d.scorer.Deferred() {
			w.deferred = append(w.deferred, d)
			continue
		}
		if err := w.evaluateOne(d); err != nil {
			return err
		}
	}
	for _, d := range w.deferred {
		if err := w.evaluateOne(d); err != nil {
			return err
		}
	}
	return nil
}

func (w *Weight) evaluateOne(d *disiWrapper) error {
	if w.debugs == nil {
		return d.scorer.Evaluate(&w.infos[d.index], w.table)
	}
	start := time.Now()
	err := d.scorer.Evaluate(&w.infos[d.index], w.table)
	w.debugs[d.index].Inc(time.Since(start), 1)
	return err
}
