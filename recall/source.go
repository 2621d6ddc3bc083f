package recall

import (
	"context"

	"github.com/rushteam/rescore/core"
	"github.com/rushteam/rescore/search"
)

// Source 执行一排检索，返回按一排分降序的前 n 个候选（n < 0 表示全部）。
// memindex.Index 实现了它。
type Source interface {
	Search(ctx context.Context, q search.Query, n int) ([]core.Candidate, error)
}
