package rerank

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/rushteam/rescore/core"
	"github.com/rushteam/rescore/pkg/conv"
)

const (
	// FirstScoreKey / ModelScoreKey 是 feature vector 中保留的两个名字
	FirstScoreKey = "Q"
	ModelScoreKey = "M"

	DefaultFeatureDocs = 100
)

// FeatureDoc 是一个待记录的文档：排名、特征快照与两个分数。
type FeatureDoc struct {
	DocID      int
	Rank       int
	FirstScore float64
	ModelScore float64
	Features   []core.FeatureInfo
}

// FeatureLogger 把二排计算出的特征向量按 (ScoringQuery, doc) 写入 Store，
// 供后续请求（例如训练样本导出）读取。
type FeatureLogger struct {
	store     core.Store
	cacheName string

	// names 为空表示全部特征
	names       []string
	featureDocs int
	ttl         time.Duration
	log         *slog.Logger
}

type LoggerOption func(*FeatureLogger)

// WithFeatureNames 设置特征白名单（逗号分隔，"" 或 "*" 表示全部）。
func WithFeatureNames(names string) LoggerOption {
	return func(l *FeatureLogger) { l.names = parseFeatureNames(names) }
}

// WithFeatureDocs 设置最多记录的文档数，-1 表示不限制。
func WithFeatureDocs(n int) LoggerOption {
	return func(l *FeatureLogger) { l.featureDocs = n }
}

func WithTTL(ttl time.Duration) LoggerOption {
	return func(l *FeatureLogger) { l.ttl = ttl }
}

func WithFeatureLogOutput(log *slog.Logger) LoggerOption {
	return func(l *FeatureLogger) { l.log = log }
}

func NewFeatureLogger(store core.Store, cacheName string, opts ...LoggerOption) *FeatureLogger {
	l := &FeatureLogger{
		store:       store,
		cacheName:   cacheName,
		featureDocs: DefaultFeatureDocs,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func parseFeatureNames(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return nil
	}
	return conv.SplitTrim(s, ",")
}

// Key 返回 (query, doc) 在 Store 中的 key。
func (l *FeatureLogger) Key(q *ScoringQuery, doc int) string {
	h := q.Hash()*31 + uint64(doc)
	return "fv:" + l.cacheName + ":" + strconv.FormatUint(h, 16)
}

// MakeFeatureVector 序列化特征向量：命中的特征按下标顺序，随后是 Q（一排分）与 M（模型分）。
// 名字重复时后写覆盖前写，但保留首次出现的位置；设置了白名单时按白名单顺序输出。
func (l *FeatureLogger) MakeFeatureVector(doc FeatureDoc) string {
	var (
		order  []string
		values = make(map[string]float64, len(doc.Features)+2)
	)
	put := func(name string, v float64) {
		if _, ok := values[name]; !ok {
			order = append(order, name)
		}
		values[name] = v
	}
	for _, info := range doc.Features {
		if info.Used {
			put(info.Name, info.Value)
		}
	}
	put(FirstScoreKey, doc.FirstScore)
	put(ModelScoreKey, doc.ModelScore)

	if l.names != nil {
		order = order[:0]
		for _, n := range l.names {
			if _, ok := values[n]; ok {
				order = append(order, n)
			}
		}
	}
	var sb strings.Builder
	for i, name := range order {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(strconv.FormatFloat(values[name], 'g', -1, 64))
	}
	return sb.String()
}

// ParseFeatureVector 解析 MakeFeatureVector 的输出，返回按出现顺序的名字与值。
func ParseFeatureVector(s string) ([]string, map[string]float64, error) {
	values := make(map[string]float64)
	if s == "" {
		return nil, values, nil
	}
	pairs := strings.Split(s, ",")
	names := make([]string, 0, len(pairs))
	for _, p := range pairs {
		name, raw, ok := strings.Cut(p, "=")
		if !ok {
			return nil, nil, core.NewDomainError(core.ModuleRerank, core.ErrorCodeInvalidInput, fmt.Sprintf("invalid feature pair %q", p))
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, nil, core.WrapDomainError(core.ModuleRerank, core.ErrorCodeInvalidInput, fmt.Sprintf("invalid feature value %q", p), err)
		}
		if _, seen := values[name]; !seen {
			names = append(names, name)
		}
		values[name] = v
	}
	return names, values, nil
}

// Log 在 rank 未超过上限时写入特征向量，返回是否写入。
func (l *FeatureLogger) Log(ctx context.Context, q *ScoringQuery, doc FeatureDoc) (bool, error) {
	n, err := l.LogBatch(ctx, q, []FeatureDoc{doc})
	return n == 1, err
}

// LogAndGet 无条件写入并返回序列化结果。
func (l *FeatureLogger) LogAndGet(ctx context.Context, q *ScoringQuery, doc FeatureDoc) (string, error) {
	return l.put(ctx, q, doc)
}

// LogBatch 一次写入 rank 未超过上限的文档，返回写入条数。
func (l *FeatureLogger) LogBatch(ctx context.Context, q *ScoringQuery, docs []FeatureDoc) (int, error) {
	kvs := make(map[string][]byte, len(docs))
	for _, doc := range docs {
		if l.featureDocs != -1 && doc.Rank >= l.featureDocs {
			continue
		}
		kvs[l.Key(q, doc.DocID)] = []byte(l.MakeFeatureVector(doc))
	}
	if len(kvs) == 0 {
		return 0, nil
	}
	if err := l.store.BatchSet(ctx, kvs, l.ttl); err != nil {
		return 0, fmt.Errorf("feature logger %s: %w", l.cacheName, err)
	}
	l.log.Debug("feature vectors logged", "cache", l.cacheName, "docs", len(kvs))
	return len(kvs), nil
}

// Vectors 按 docs 顺序返回特征向量：已记录的直接读取，其余经 LogAndGet 现算并写回，不受条数上限约束。
// store 为空时全部现算。
func (l *FeatureLogger) Vectors(ctx context.Context, q *ScoringQuery, docs []FeatureDoc) ([]string, error) {
	out := make([]string, len(docs))
	if l.store == nil {
		for i, doc := range docs {
			out[i] = l.MakeFeatureVector(doc)
		}
		return out, nil
	}

	keys := make([]string, len(docs))
	for i, doc := range docs {
		keys[i] = l.Key(q, doc.DocID)
	}
	cached, err := l.store.BatchGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("feature logger %s: %w", l.cacheName, err)
	}
	computed := 0
	for i, doc := range docs {
		if b, ok := cached[keys[i]]; ok {
			out[i] = string(b)
			continue
		}
		if out[i], err = l.LogAndGet(ctx, q, doc); err != nil {
			return nil, err
		}
		computed++
	}
	l.log.Debug("feature vectors fetched", "cache", l.cacheName, "docs", len(docs), "computed", computed)
	return out, nil
}

// FeatureDocs 把二排结果按顺序转成 FeatureDoc，Rank 为下标。
func FeatureDocs(hits []core.RescoredCandidate) []FeatureDoc {
	docs := make([]FeatureDoc, len(hits))
	for rank, h := range hits {
		docs[rank] = FeatureDoc{
			DocID:      h.DocID,
			Rank:       rank,
			FirstScore: h.FirstScore,
			ModelScore: h.ModelScore,
			Features:   h.Features,
		}
	}
	return docs
}

func (l *FeatureLogger) put(ctx context.Context, q *ScoringQuery, doc FeatureDoc) (string, error) {
	fv := l.MakeFeatureVector(doc)
	key := l.Key(q, doc.DocID)
	if err := l.store.Set(ctx, key, []byte(fv), l.ttl); err != nil {
		return "", fmt.Errorf("feature logger %s: %w", l.cacheName, err)
	}
	l.log.Debug("feature vector logged", "cache", l.cacheName, "doc", doc.DocID, "rank", doc.Rank)
	return fv, nil
}

// Get 读取已记录的特征向量，不存在时返回 ok=false。
func (l *FeatureLogger) Get(ctx context.Context, q *ScoringQuery, doc int) (string, bool, error) {
	b, err := l.store.Get(ctx, l.Key(q, doc))
	if err != nil {
		if core.IsStoreNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(b), true, nil
}
