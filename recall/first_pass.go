package recall

import (
	"context"
	"strconv"

	"github.com/rushteam/rescore/core"
	"github.com/rushteam/rescore/pipeline"
	"github.com/rushteam/rescore/pkg/conv"
	"github.com/rushteam/rescore/pkg/utils"
	"github.com/rushteam/rescore/search"
)

// DefaultRows 是请求未指定 rows 时的一排召回数。
const DefaultRows = 200

// FirstPass 是一排 Node：用请求的 Query / fq 在索引中检索，生成初始命中。
// 请求参数 rows 覆盖 Rows。
type FirstPass struct {
	Searcher search.Searcher
	Source   Source
	Rows     int
}

func (n *FirstPass) Name() string        { return "recall.first_pass" }
func (n *FirstPass) Kind() pipeline.Kind { return pipeline.KindRecall }

func (n *FirstPass) Process(
	ctx context.Context,
	rctx *core.RequestContext,
	_ []*core.Hit,
) ([]*core.Hit, error) {
	rows := n.Rows
	if rows == 0 {
		rows = DefaultRows
	}
	rows, ok := conv.ParamGet(rctx.Params, "rows", rows, strconv.Atoi)
	if !ok {
		return nil, core.NewDomainError(core.ModuleSearch, core.ErrorCodeInvalidInput, "invalid parameter rows")
	}

	q, err := n.Searcher.Parse(rctx.Query, rctx.Params["fq"], nil)
	if err != nil {
		return nil, err
	}
	cands, err := n.Source.Search(ctx, q, rows)
	if err != nil {
		return nil, err
	}
	hits := make([]*core.Hit, 0, len(cands))
	for _, c := range cands {
		h := core.NewHit(c.DocID, c.Score)
		h.PutLabel("recall", utils.NewLabel("first_pass", utils.SourceFirstPass))
		hits = append(hits, h)
	}
	return hits, nil
}
