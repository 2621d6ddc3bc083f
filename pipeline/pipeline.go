// Package pipeline 把一次检索拆成可组合的 Node 链：一排 -> 二排 -> 后处理。
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rushteam/rescore/core"
)

// Pipeline 按顺序执行 Nodes，上一个 Node 的输出是下一个的输入。
type Pipeline struct {
	Name   string
	Nodes  []Node
	Logger *slog.Logger
}

func (p *Pipeline) Run(
	ctx context.Context,
	rctx *core.RequestContext,
	hits []*core.Hit,
) ([]*core.Hit, error) {
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}
	cur := hits
	for _, node := range p.Nodes {
		start := time.Now()
		next, err := node.Process(ctx, rctx, cur)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", node.Name(), err)
		}
		log.Debug("node done",
			"request_id", rctx.RequestID,
			"pipeline", p.Name,
			"node", node.Name(),
			"kind", string(node.Kind()),
			"in", len(cur),
			"out", len(next),
			"elapsed_ms", time.Since(start).Milliseconds())
		cur = next
	}
	return cur, nil
}
