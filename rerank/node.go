package rerank

import (
	"context"
	"log/slog"
	"time"

	"github.com/rushteam/rescore/core"
	"github.com/rushteam/rescore/pipeline"
	"github.com/rushteam/rescore/pkg/utils"
	"github.com/rushteam/rescore/search"
)

// 二排写入的 Label：key 固定为 LabelReRank，Value 为模型名或以下取值之一
const (
	LabelReRank        = "rerank"
	LabelFirstPassOnly = "first_pass_only"
	LabelOutsideWindow = "outside_window"
)

// MetaFeatureVector 是请求 fv=true 时命中 Meta 中特征向量的 key。
const MetaFeatureVector = "fv"

// Registry 同时提供顶层模型（reRankQuery / reRankLtr）与嵌套模型的查找。
type Registry interface {
	ModelSource
	Catalog
}

// Node 是二排 Pipeline 节点：从请求参数解析二排配置，对前 reRankDocs 个命中重打分，
// 窗口外的命中保持一排顺序接在后面。
type Node struct {
	Searcher search.Searcher
	Registry Registry

	// Store 非空且请求开启 featureCache 时记录特征向量；请求 fv=true 时先从 Store 读取
	Store     core.Store
	CacheName string
	CacheTTL  time.Duration

	// Pool 非空时并行构建特征 Weight
	Pool   *WeightPool
	Logger *slog.Logger
}

func (n *Node) Name() string        { return "rerank.rescore" }
func (n *Node) Kind() pipeline.Kind { return pipeline.KindReRank }

func (n *Node) logger() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}

func (n *Node) Process(
	ctx context.Context,
	rctx *core.RequestContext,
	hits []*core.Hit,
) ([]*core.Hit, error) {
	if len(hits) == 0 {
		return hits, nil
	}
	opts, err := ParseOptions(rctx.Params)
	if err != nil {
		return nil, err
	}
	m, err := opts.ResolveModel(n.Registry)
	if err != nil {
		return nil, err
	}
	log := n.logger().With("request_id", rctx.RequestID, "model", m.Name())

	qopts := []QueryOption{
		WithParams(opts.FeatureParams),
		WithCatalog(n.Registry),
		WithFeatureDebug(opts.Debug),
		WithQueryLogger(log),
	}
	if n.Pool != nil {
		qopts = append(qopts, WithWeightPool(n.Pool))
	}
	if rctx.Query != "" {
		oq, err := n.Searcher.Parse(rctx.Query, rctx.Params["fq"], nil)
		if err != nil {
			return nil, err
		}
		qopts = append(qopts, WithOriginalQuery(oq))
	}
	fl := NewFeatureLogger(n.Store, n.CacheName,
		WithFeatureNames(opts.FeatureNames),
		WithFeatureDocs(opts.FeatureDocs),
		WithTTL(n.CacheTTL),
		WithFeatureLogOutput(log))
	if opts.FeatureCache && n.Store != nil {
		qopts = append(qopts, WithFeatureLogger(fl))
	}
	q := NewScoringQuery(m, qopts...)
	r := NewRescorer(q, append(opts.RescorerOptions(), WithLogger(log))...)

	ctx, cancel := context.WithTimeout(ctx, r.Timeout())
	defer cancel()

	window := min(opts.ReRankDocs, len(hits))
	cands := make([]core.Candidate, window)
	// 一排可能返回重复的 doc，同一 doc 的命中排队，按一排分认领结果
	byDoc := make(map[int][]*core.Hit, window)
	for i, h := range hits[:window] {
		cands[i] = core.Candidate{DocID: h.DocID, Score: h.Score}
		byDoc[h.DocID] = append(byDoc[h.DocID], h)
	}

	res, err := r.Rescore(ctx, n.Searcher, cands, window)
	if err != nil {
		return nil, err
	}

	var vectors []string
	if opts.FeatureVector {
		// 先读缓存，未命中的现算并写回
		if vectors, err = fl.Vectors(ctx, q, FeatureDocs(res.Hits)); err != nil {
			return nil, err
		}
	}

	out := make([]*core.Hit, 0, len(hits))
	for i, rh := range res.Hits {
		h := claimHit(byDoc, rh)
		h.Score = rh.Score
		h.Features = rh.Features
		if h.Meta == nil {
			h.Meta = make(map[string]any, 4)
		}
		h.Meta["first_score"] = rh.FirstScore
		h.Meta["model_score"] = rh.ModelScore
		h.Meta["matched"] = rh.Matched
		if vectors != nil {
			h.Meta[MetaFeatureVector] = vectors[i]
		}
		if rh.Matched && rh.FirstScore >= opts.FirstMinimum {
			h.PutLabel(LabelReRank, utils.NewLabel(m.Name(), utils.SourceReRank))
		} else {
			h.PutLabel(LabelReRank, utils.NewLabel(LabelFirstPassOnly, utils.SourceReRank))
		}
		out = append(out, h)
	}
	for _, h := range hits[window:] {
		h.PutLabel(LabelReRank, utils.NewLabel(LabelOutsideWindow, utils.SourceReRank))
		out = append(out, h)
	}
	rctx.PutLabel(LabelReRank, utils.NewLabel(m.Name(), utils.SourceReRank))

	if res.Debug != nil {
		rctx.PutDebug(n.Name(), res.Debug.AsMap())
	}
	return out, nil
}

func claimHit(byDoc map[int][]*core.Hit, rh core.RescoredCandidate) *core.Hit {
	queue := byDoc[rh.DocID]
	i := 0
	for j, h := range queue {
		if h.Score == rh.FirstScore {
			i = j
			break
		}
	}
	h := queue[i]
	byDoc[rh.DocID] = append(queue[:i], queue[i+1:]...)
	return h
}
