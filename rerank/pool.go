package rerank

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rushteam/rescore/feature"
)

// WeightPool 并行构建特征 Weight。
//
// 三层限制：
//   - workers: 同时运行的构建任务数
//   - global: 所有请求共享的全局许可
//   - perQuery: 单个请求可同时持有的许可
//
// 任务先取 per-query 许可，再取 global 许可；两者都可被 ctx 取消，已取得的许可在返回前释放。
type WeightPool struct {
	workers  int
	global   *semaphore.Weighted
	perQuery int64
}

// NewWeightPool 创建并行构建池；非正数参数使用默认值。
func NewWeightPool(workers, globalPermits, perQueryPermits int) *WeightPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if globalPermits <= 0 {
		globalPermits = workers * 4
	}
	if perQueryPermits <= 0 {
		perQueryPermits = workers
	}
	return &WeightPool{
		workers:  workers,
		global:   semaphore.NewWeighted(int64(globalPermits)),
		perQuery: int64(perQueryPermits),
	}
}

// BuildWeightsConcurrently 并行构建 features 的 Weight，结果按 features 顺序返回。
// 任一特征失败时返回该特征的错误，其余任务随 ctx 取消。
func (p *WeightPool) BuildWeightsConcurrently(ctx context.Context, features []*feature.Feature, env *feature.Env) ([]*feature.Weight, error) {
	out := make([]*feature.Weight, len(features))
	querySem := semaphore.NewWeighted(p.perQuery)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, f := range features {
		g.Go(func() error {
			if err := querySem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer querySem.Release(1)

			if err := p.global.Acquire(gctx, 1); err != nil {
				return err
			}
			defer p.global.Release(1)

			w, err := feature.NewWeight(gctx, f, env)
			if err != nil {
				return err
			}
			out[i] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return out, nil
}
