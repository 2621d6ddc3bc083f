package memindex

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rushteam/rescore/pkg/dsl"
	"github.com/rushteam/rescore/search"
)

// Query 是编译后的内存查询。
type Query struct {
	q       string
	fq      []string
	params  map[string]string
	score   *dsl.Program
	filters []*dsl.Program
}

// String 返回稳定的结构化描述，参数按 key 排序。
func (q *Query) String() string {
	var sb strings.Builder
	sb.WriteString("q=")
	sb.WriteString(q.q)
	if len(q.fq) > 0 {
		sb.WriteString(" fq=[")
		sb.WriteString(strings.Join(q.fq, "; "))
		sb.WriteString("]")
	}
	if len(q.params) > 0 {
		keys := make([]string, 0, len(q.params))
		for k := range q.params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" efi={")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(q.params[k])
		}
		sb.WriteString("}")
	}
	return sb.String()
}

func (q *Query) vars(doc Document) map[string]any {
	params := q.params
	if params == nil {
		params = map[string]string{}
	}
	return map[string]any{"doc": map[string]any(doc), "efi": params}
}

func (q *Query) accept(doc Document) bool {
	vars := q.vars(doc)
	for _, f := range q.filters {
		ok, err := f.EvalBool(vars)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// scoreOf 返回文档分数；ok=false 表示不匹配。
func (q *Query) scoreOf(doc Document) (float64, bool) {
	if !q.accept(doc) {
		return 0, false
	}
	if q.score == nil {
		return 1, true
	}
	v, err := q.score.EvalFloat(q.vars(doc))
	if err != nil || v == 0 {
		return 0, false
	}
	return v, true
}

var _ search.Query = (*Query)(nil)

// programCache 缓存表达式编译结果，Program 可并发复用。
type programCache struct {
	mu   sync.RWMutex
	prgs map[string]*dsl.Program
}

func newProgramCache() *programCache {
	return &programCache{prgs: make(map[string]*dsl.Program)}
}

func (c *programCache) get(expr string) (*dsl.Program, error) {
	c.mu.RLock()
	prg, ok := c.prgs[expr]
	c.mu.RUnlock()
	if ok {
		return prg, nil
	}
	env, err := dsl.DocEnv()
	if err != nil {
		return nil, fmt.Errorf("doc env: %w", err)
	}
	prg, err = dsl.Compile(env, expr)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.prgs[expr] = prg
	c.mu.Unlock()
	return prg, nil
}
