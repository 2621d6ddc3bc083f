package rerank

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rushteam/rescore/core"
	"github.com/rushteam/rescore/feature"
	"github.com/rushteam/rescore/model"
	"github.com/rushteam/rescore/search/memindex"
)

// testCatalog 是测试用的模型目录。
type testCatalog map[string]model.ScoringModel

func (c testCatalog) Model(name string) (model.ScoringModel, error) {
	if m, ok := c[name]; ok {
		return m, nil
	}
	return nil, core.NewDomainError(core.ModuleCatalog, core.ErrorCodeNotFound, fmt.Sprintf("cannot find model %q", name))
}

func (c testCatalog) External(name string) (*model.NestedModel, error) {
	if m, ok := c[name].(*model.NestedModel); ok {
		return m, nil
	}
	return nil, core.NewDomainError(core.ModuleCatalog, core.ErrorCodeNotFound, fmt.Sprintf("cannot find external model %q", name))
}

func querySpec(q string, fq ...string) feature.Spec { return feature.QuerySpec{Q: q, FQ: fq} }

type featureDef struct {
	name string
	def  float64
	spec feature.Spec
}

func fd(name string, spec feature.Spec) featureDef { return featureDef{name: name, spec: spec} }

func newLinear(t *testing.T, name, calculate string, defs ...featureDef) *model.LinearModel {
	t.Helper()
	features := make([]*feature.Feature, len(defs))
	for i, d := range defs {
		features[i] = &feature.Feature{Name: d.name, Index: i, DefaultValue: d.def, Spec: d.spec}
	}
	m, err := model.NewLinearModel(name, calculate, features)
	require.NoError(t, err)
	return m
}

// tagIndex 是一个 6 文档单分段索引，tags 决定子查询命中：
//
//	0:[a] 1:[a,b] 2:[] 3:[b,c] 4:[c] 5:[a,c]
func tagIndex() *memindex.Index {
	tags := [][]any{{"a"}, {"a", "b"}, {}, {"b", "c"}, {"c"}, {"a", "c"}}
	docs := make([]memindex.Document, len(tags))
	for i, tg := range tags {
		docs[i] = memindex.Document{"tags": tg}
	}
	return memindex.FromDocuments(docs, 0)
}

func tagFeatures() []featureDef {
	return []featureDef{
		fd("fa", querySpec(`"a" in doc.tags`)),
		fd("fb", querySpec(`"b" in doc.tags`)),
		fd("fc", querySpec(`"c" in doc.tags`)),
	}
}

// scenarioIndex 有 10 个文档，分两个分段：doc 5 有 a=0.8，doc 7 有 b=0.3。
func scenarioIndex() *memindex.Index {
	docs := make([]memindex.Document, 10)
	for i := range docs {
		docs[i] = memindex.Document{"id": float64(i)}
	}
	docs[5]["a"] = 0.8
	docs[7]["b"] = 0.3
	return memindex.FromDocuments(docs, 6)
}

func scenarioModel(t *testing.T) *model.LinearModel {
	return newLinear(t, "scenario", "f0+f1",
		fd("f0", querySpec("doc.a")),
		fd("f1", querySpec("doc.b")))
}
