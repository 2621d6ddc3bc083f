package rerank

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/rushteam/rescore/core"
	"github.com/rushteam/rescore/feature"
	"github.com/rushteam/rescore/model"
	"github.com/rushteam/rescore/search"
)

// Catalog 按名称提供模型，嵌套 model 特征通过它解析。config.Registry 实现了它。
type Catalog interface {
	Model(name string) (model.ScoringModel, error)
}

// ScoringQuery 是一次二排请求：模型 + 外部参数 + 一排原始查询 + 可选的 FeatureLogger。
// Hash / Equal 是结构化的（模型、原始查询、参数），同时作为 feature vector 缓存 key 的一部分。
type ScoringQuery struct {
	Model         model.ScoringModel
	Params        map[string][]string
	OriginalQuery search.Query
	Logger        *FeatureLogger

	catalog Catalog
	pool    *WeightPool
	debug   bool
	log     *slog.Logger
}

var _ search.Query = (*ScoringQuery)(nil)

type QueryOption func(*ScoringQuery)

// WithParams 设置外部参数（已去掉 efi. 前缀）。
func WithParams(params map[string][]string) QueryOption {
	return func(q *ScoringQuery) { q.Params = params }
}

func WithOriginalQuery(oq search.Query) QueryOption {
	return func(q *ScoringQuery) { q.OriginalQuery = oq }
}

func WithFeatureLogger(l *FeatureLogger) QueryOption {
	return func(q *ScoringQuery) { q.Logger = l }
}

// WithCatalog 设置嵌套模型的来源。
func WithCatalog(c Catalog) QueryOption {
	return func(q *ScoringQuery) { q.catalog = c }
}

// WithWeightPool 开启并行构建特征 Weight。
func WithWeightPool(p *WeightPool) QueryOption {
	return func(q *ScoringQuery) { q.pool = p }
}

// WithFeatureDebug 开启每个特征的耗时统计。
func WithFeatureDebug(on bool) QueryOption {
	return func(q *ScoringQuery) { q.debug = on }
}

func WithQueryLogger(l *slog.Logger) QueryOption {
	return func(q *ScoringQuery) { q.log = l }
}

func NewScoringQuery(m model.ScoringModel, opts ...QueryOption) *ScoringQuery {
	q := &ScoringQuery{Model: m, log: slog.Default()}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// FeatureParams 返回每个外部参数的第一个值。
func (q *ScoringQuery) FeatureParams() map[string]string {
	out := make(map[string]string, len(q.Params))
	for k, v := range q.Params {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func (q *ScoringQuery) env(searcher search.Searcher, needsScores bool) *feature.Env {
	env := &feature.Env{
		Searcher:    searcher,
		Params:      q.FeatureParams(),
		NeedsScores: needsScores,
		Debug:       q.debug,
	}
	if q.catalog != nil {
		env.Resolver = &catalogResolver{catalog: q.catalog, parent: q}
	}
	return env
}

func (q *ScoringQuery) validate() error {
	if q.Model == nil {
		return core.ConfigurationError(core.ModuleRerank, "model is required")
	}
	if len(q.Model.Features()) == 0 {
		return core.ConfigurationError(core.ModuleRerank, fmt.Sprintf("model %s has no features", q.Model.Name()))
	}
	return nil
}

// BuildWeights 按模型顺序构建全部特征 Weight：设置了 WeightPool 时并行，否则串行。
// 返回切片的第 i 个元素对应模型第 i 个特征。
func (q *ScoringQuery) BuildWeights(ctx context.Context, searcher search.Searcher, needsScores bool) ([]*feature.Weight, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	env := q.env(searcher, needsScores)
	var (
		weights []*feature.Weight
		err     error
	)
	if q.pool != nil {
		weights, err = q.pool.BuildWeightsConcurrently(ctx, q.Model.Features(), env)
	} else {
		weights, err = buildSerial(ctx, q.Model.Features(), env)
	}
	if err != nil {
		q.log.Error("build feature weights failed", "model", q.Model.Name(), "error", err)
		return nil, fmt.Errorf("model %s: %w", q.Model.Name(), err)
	}
	return weights, nil
}

func buildSerial(ctx context.Context, features []*feature.Feature, env *feature.Env) ([]*feature.Weight, error) {
	weights := make([]*feature.Weight, len(features))
	for i, f := range features {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w, err := feature.NewWeight(ctx, f, env)
		if err != nil {
			return nil, err
		}
		weights[i] = w
	}
	return weights, nil
}

// CreateWeight 构建特征 Weight 并组合成二排 Weight。
func (q *ScoringQuery) CreateWeight(ctx context.Context, searcher search.Searcher, needsScores bool) (*Weight, error) {
	weights, err := q.BuildWeights(ctx, searcher, needsScores)
	if err != nil {
		return nil, err
	}
	return NewWeight(q, weights, q.debug), nil
}

// catalogResolver 为嵌套 model 特征构建子模型的组合 Weight。子模型总是串行构建，
// 避免在 WeightPool 的任务里再次等待同一个池的许可。
type catalogResolver struct {
	catalog Catalog
	parent  *ScoringQuery
}

func (r *catalogResolver) ResolveModel(ctx context.Context, name string, env *feature.Env) (search.Weight, error) {
	m, err := r.catalog.Model(name)
	if err != nil {
		return nil, err
	}
	sub := &ScoringQuery{
		Model:         m,
		Params:        r.parent.Params,
		OriginalQuery: r.parent.OriginalQuery,
		catalog:       r.catalog,
		debug:         env.Debug,
		log:           r.parent.log,
	}
	if err := sub.validate(); err != nil {
		return nil, err
	}
	weights, err := buildSerial(ctx, m.Features(), env)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", name, err)
	}
	return NewWeight(sub, weights, env.Debug), nil
}

// String 返回稳定描述。
func (q *ScoringQuery) String() string {
	var sb strings.Builder
	sb.WriteString("ScoringQuery(model=")
	if q.Model != nil {
		sb.WriteString(q.Model.Name())
	}
	if q.OriginalQuery != nil {
		sb.WriteString(", query=")
		sb.WriteString(q.OriginalQuery.String())
	}
	keys := sortedKeys(q.Params)
	if len(keys) > 0 {
		sb.WriteString(", params={")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(strings.Join(q.Params[k], "|"))
		}
		sb.WriteString("}")
	}
	sb.WriteString(")")
	return sb.String()
}

// Hash 基于模型 Hash、原始查询与参数计算。
func (q *ScoringQuery) Hash() uint64 {
	d := xxhash.New()
	var buf [8]byte
	if q.Model != nil {
		binary.LittleEndian.PutUint64(buf[:], q.Model.Hash())
		_, _ = d.Write(buf[:])
	}
	if q.OriginalQuery != nil {
		_, _ = d.WriteString(q.OriginalQuery.String())
	}
	_, _ = d.WriteString("\x00")
	for _, k := range sortedKeys(q.Params) {
		_, _ = d.WriteString(k)
		_, _ = d.WriteString("=")
		for _, v := range q.Params[k] {
			_, _ = d.WriteString(v)
			_, _ = d.WriteString("\x1f")
		}
		_, _ = d.WriteString("\x1e")
	}
	return d.Sum64()
}

// Equal 结构化比较模型、原始查询与参数。
func (q *ScoringQuery) Equal(o *ScoringQuery) bool {
	if q == o {
		return true
	}
	if q == nil || o == nil {
		return false
	}
	if (q.Model == nil) != (o.Model == nil) || (q.Model != nil && !q.Model.Equal(o.Model)) {
		return false
	}
	if (q.OriginalQuery == nil) != (o.OriginalQuery == nil) ||
		(q.OriginalQuery != nil && q.OriginalQuery.String() != o.OriginalQuery.String()) {
		return false
	}
	if len(q.Params) != len(o.Params) {
		return false
	}
	for k, v := range q.Params {
		ov, ok := o.Params[k]
		if !ok || !slices.Equal(v, ov) {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
