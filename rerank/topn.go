package rerank

import (
	"context"
	"strconv"

	"github.com/rushteam/rescore/core"
	"github.com/rushteam/rescore/pipeline"
	"github.com/rushteam/rescore/pkg/conv"
)

// ParamTopN 请求级覆盖 TopNNode.N
const ParamTopN = "topN"

// TopNNode 放在二排之后做截断：先丢弃 MinScore 以下的命中，再保留前 N 个。
// 输入须已按最终分降序排列。
//
//	p := &pipeline.Pipeline{Nodes: []pipeline.Node{
//		&recall.FirstPass{Searcher: ix},
//		&rerank.Node{Searcher: ix, Registry: reg},
//		&rerank.TopNNode{N: 20},
//	}}
type TopNNode struct {
	// N <= 0 不截断
	N int
	// MinScore 为 nil 时不按分数过滤
	MinScore *float64
}

func (n *TopNNode) Name() string        { return "rerank.topn" }
func (n *TopNNode) Kind() pipeline.Kind { return pipeline.KindPostProcess }

func (n *TopNNode) Process(
	_ context.Context,
	rctx *core.RequestContext,
	hits []*core.Hit,
) ([]*core.Hit, error) {
	limit, ok := conv.ParamGet(rctx.Params, ParamTopN, n.N, strconv.Atoi)
	if !ok {
		return nil, invalidParam(ParamTopN, first(rctx.Params, ParamTopN), "integer expected")
	}
	if n.MinScore != nil {
		// 有序输入，找到第一个低于下限的位置即可
		cut := len(hits)
		for i, h := range hits {
			if h.Score < *n.MinScore {
				cut = i
				break
			}
		}
		hits = hits[:cut]
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
