package feature

import (
	"context"
	"fmt"

	"github.com/rushteam/rescore/core"
	"github.com/rushteam/rescore/search"
)

// MaxModelDepth 是嵌套模型的最大深度，超过视为循环引用。
const MaxModelDepth = 8

// Resolver 为 ModelSpec 特征构建子模型的 Weight。
// 返回的 Weight 的 Scorer 分数即子模型最终分数。
type Resolver interface {
	ResolveModel(ctx context.Context, name string, env *Env) (search.Weight, error)
}

// Env 是构建特征 Weight 所需的请求级环境。
type Env struct {
	Searcher    search.Searcher
	Params      map[string]string
	NeedsScores bool
	Resolver    Resolver
	Debug       bool
	// Depth 是当前嵌套深度，顶层为 0
	Depth int
}

// Nested 返回下一层嵌套模型使用的环境。
func (e *Env) Nested() *Env {
	n := *e
	n.Depth++
	return &n
}

// Weight 是绑定到一次请求的特征。
type Weight struct {
	feature *Feature

	// QuerySpec / ModelSpec
	inner search.Weight
	// TableSpec
	values search.ValueSource
}

// NewWeight 按特征类型构建 Weight。宏展开失败、子查询解析失败都会在这里暴露。
func NewWeight(ctx context.Context, f *Feature, env *Env) (*Weight, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	w := &Weight{feature: f}
	switch spec := f.Spec.(type) {
	case ConstantSpec, MapOffsetSpec:
	case QuerySpec:
		q, err := expandQuery(spec.Q, spec.FQ, env.Params)
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", f.Name, err)
		}
		if w.inner, err = createWeight(ctx, env, q.q, q.fq); err != nil {
			return nil, fmt.Errorf("feature %s: %w", f.Name, err)
		}
	case TableSpec:
		table, err := ExpandMacros(spec.Table, env.Params)
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", f.Name, err)
		}
		parsed, err := env.Searcher.Parse(table, nil, env.Params)
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", f.Name, err)
		}
		if w.values, err = env.Searcher.ValueSource(parsed); err != nil {
			return nil, fmt.Errorf("feature %s: %w", f.Name, err)
		}
	case ModelSpec:
		if env.Depth >= MaxModelDepth {
			return nil, core.ConfigurationError(core.ModuleFeature,
				fmt.Sprintf("feature %s: nested model depth exceeds %d (cycle through %q?)", f.Name, MaxModelDepth, spec.Model))
		}
		if env.Resolver == nil {
			return nil, core.ConfigurationError(core.ModuleFeature, fmt.Sprintf("feature %s: no model resolver", f.Name))
		}
		inner, err := env.Resolver.ResolveModel(ctx, spec.Model, env.Nested())
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", f.Name, err)
		}
		w.inner = inner
	default:
		return nil, core.ConfigurationError(core.ModuleFeature, fmt.Sprintf("feature %s: unsupported spec %T", f.Name, spec))
	}
	return w, nil
}

type expandedQuery struct {
	q  string
	fq []string
}

func expandQuery(q string, fq []string, params map[string]string) (*expandedQuery, error) {
	out := &expandedQuery{}
	var err error
	if out.q, err = ExpandMacros(q, params); err != nil {
		return nil, err
	}
	for _, f := range fq {
		e, err := ExpandMacros(f, params)
		if err != nil {
			return nil, err
		}
		out.fq = append(out.fq, e)
	}
	return out, nil
}

func createWeight(ctx context.Context, env *Env, q string, fq []string) (search.Weight, error) {
	parsed, err := env.Searcher.Parse(q, fq, env.Params)
	if err != nil {
		return nil, err
	}
	if parsed, err = env.Searcher.Rewrite(parsed); err != nil {
		return nil, err
	}
	return env.Searcher.CreateWeight(ctx, parsed, env.NeedsScores)
}

func (w *Weight) Feature() *Feature     { return w.feature }
func (w *Weight) Name() string          { return w.feature.Name }
func (w *Weight) Index() int            { return w.feature.Index }
func (w *Weight) DefaultValue() float64 { return w.feature.DefaultValue }
func (w *Weight) Kind() Kind            { return w.feature.Spec.Kind() }

// Nested 返回嵌套模型的 Weight，非 ModelSpec 特征返回 nil。
func (w *Weight) Nested() search.Weight {
	if w.Kind() != KindModel {
		return nil
	}
	return w.inner
}

// Scorer 创建分段打分器。子查询在分段内没有命中时返回空迭代器。
func (w *Weight) Scorer(seg *search.Segment) (*Scorer, error) {
	s := &Scorer{weight: w}
	switch w.Kind() {
	case KindConstant, KindMapOffset:
		s.it = search.AllIterator(seg.MaxDoc)
	case KindTable:
		vals, err := w.values.Values(seg)
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", w.Name(), err)
		}
		s.values = vals
		s.it = search.AllIterator(seg.MaxDoc)
	case KindQuery, KindModel:
		inner, err := w.inner.Scorer(seg)
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", w.Name(), err)
		}
		if inner == nil {
			s.it = search.EmptyIterator()
		} else {
			s.inner = inner
			s.it = inner.Iterator()
		}
	}
	return s, nil
}

// Explain 解释分段内 doc 的特征值。
func (w *Weight) Explain(seg *search.Segment, doc int) (*search.Explanation, error) {
	switch spec := w.feature.Spec.(type) {
	case ConstantSpec:
		return search.Match(spec.Value, "ConstantFeature("+spec.String()+")"), nil
	case MapOffsetSpec:
		return search.Match(0, "MapFeature("+spec.String()+")"), nil
	case TableSpec:
		vals, err := w.values.Values(seg)
		if err != nil {
			return nil, err
		}
		str, err := vals.StrVal(doc)
		if err != nil {
			return nil, err
		}
		return search.Match(0, fmt.Sprintf("TableFeature(%s)='%s'", w.values.Description(), str)), nil
	default:
		return w.inner.Explain(seg, doc)
	}
}
