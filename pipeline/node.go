package pipeline

import (
	"context"

	"github.com/rushteam/rescore/core"
)

// Kind 用于标记 Node 类型，方便观测/治理/编排（例如按阶段打点）。
type Kind string

const (
	KindRecall      Kind = "recall"      // 一排：从索引取候选及一排分
	KindReRank      Kind = "rerank"      // 二排：对一排窗口内的候选用模型重新打分
	KindPostProcess Kind = "postprocess" // 后处理：截断、结果修饰
)

// Node 是 Pipeline 的最小可扩展单元。
// 统一采用“输入 hits -> 输出 hits”的形态，一排生成、二排重排、截断都是同一种操作。
type Node interface {
	Name() string
	Kind() Kind

	Process(
		ctx context.Context,
		rctx *core.RequestContext,
		hits []*core.Hit,
	) ([]*core.Hit, error)
}
