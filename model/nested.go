package model

import (
	"fmt"
	"strings"

	"github.com/rushteam/rescore/core"
	"github.com/rushteam/rescore/feature"
	"github.com/rushteam/rescore/pkg/conv"
	"github.com/rushteam/rescore/search"
)

// 外部特征库中的特征类型。
const (
	ClassSolrFeature     = "SolrFeature"
	ClassMapValueFeature = "MapValueFeature"
	ClassTableFeature    = "TableFeature"
	ClassValueFeature    = "ValueFeature"
)

// ExternalFeature 是外部特征库格式的特征：{name, class, params}。
type ExternalFeature struct {
	Name    string         `yaml:"name" json:"name"`
	Class   string         `yaml:"class" json:"class"`
	Params  map[string]any `yaml:"params" json:"params"`
	Default float64        `yaml:"default" json:"default"`
}

// ExternalModel 是外部定义的模型：特征库特征 + RankModel。
type ExternalModel struct {
	Name     string
	Features []ExternalFeature
	Ranker   RankModel
}

// NestedModel 把 ExternalModel 适配为 ScoringModel：
// SolrFeature -> QuerySpec，MapValueFeature -> MapOffsetSpec，TableFeature -> TableSpec，
// ValueFeature -> ConstantSpec。打分委托给 Ranker。
type NestedModel struct {
	name     string
	ranker   RankModel
	features []*feature.Feature

	canonical string
	hash      uint64
}

var _ ScoringModel = (*NestedModel)(nil)

func NewNestedModel(ext *ExternalModel) (*NestedModel, error) {
	if ext == nil || ext.Name == "" {
		return nil, core.ConfigurationError(core.ModuleModel, "external model name is required")
	}
	if ext.Ranker == nil {
		return nil, core.ConfigurationError(core.ModuleModel, fmt.Sprintf("external model %s has no ranker", ext.Name))
	}
	features := make([]*feature.Feature, len(ext.Features))
	for i, ef := range ext.Features {
		spec, err := adaptSpec(ef)
		if err != nil {
			return nil, fmt.Errorf("external model %s: %w", ext.Name, err)
		}
		features[i] = &feature.Feature{Name: ef.Name, Index: i, DefaultValue: ef.Default, Spec: spec}
	}
	if err := ValidateFeatures(features); err != nil {
		return nil, fmt.Errorf("external model %s: %w", ext.Name, err)
	}
	m := &NestedModel{name: ext.Name, ranker: ext.Ranker, features: features}
	m.canonical = canonical("nested", ext.Name, ext.Ranker.Name(), features)
	m.hash = hashString(m.canonical)
	return m, nil
}

func adaptSpec(ef ExternalFeature) (feature.Spec, error) {
	switch ef.Class {
	case ClassSolrFeature:
		q, _ := ef.Params["q"].(string)
		return feature.QuerySpec{Q: q, FQ: paramStrings(ef.Params["fq"])}, nil
	case ClassMapValueFeature:
		key, _ := ef.Params["key"].(string)
		offset, ok := conv.ToInt(ef.Params["offset"])
		if !ok {
			return nil, core.ConfigurationError(core.ModuleModel, fmt.Sprintf("feature %s: offset must be an integer", ef.Name))
		}
		return feature.MapOffsetSpec{Key: key, Offset: offset}, nil
	case ClassTableFeature:
		table, _ := ef.Params["table"].(string)
		return feature.TableSpec{Table: table}, nil
	case ClassValueFeature:
		v, ok := conv.ToFloat64(ef.Params["value"])
		if !ok {
			return nil, core.ConfigurationError(core.ModuleModel, fmt.Sprintf("feature %s: value must be a number", ef.Name))
		}
		return feature.ConstantSpec{Value: v}, nil
	default:
		return nil, core.ConfigurationError(core.ModuleModel, fmt.Sprintf("feature %s: unsupported class %q", ef.Name, ef.Class))
	}
}

func paramStrings(v any) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, x := range val {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func (m *NestedModel) Name() string                 { return m.name }
func (m *NestedModel) Ranker() RankModel            { return m.ranker }
func (m *NestedModel) Features() []*feature.Feature { return m.features }
func (m *NestedModel) Hash() uint64                 { return m.hash }

// Score 把所有特征值（未命中的为默认值）交给 Ranker。
func (m *NestedModel) Score(infos []core.FeatureInfo) (float64, error) {
	values := make(map[string]float64, len(infos))
	for i := range infos {
		values[infos[i].Name] = infos[i].Value
	}
	score, err := m.ranker.Predict(values)
	if err != nil {
		return 0, fmt.Errorf("model %s: %w", m.name, err)
	}
	return score, nil
}

// Explain 合并特征解释与模型解释。
func (m *NestedModel) Explain(final float64, details []*search.Explanation) *search.Explanation {
	features := search.Match(final, "features details of: ", details...)
	ranker := search.Match(final, "ranker "+m.ranker.Name())
	return search.Match(final, m.String()+" details of: ", features, ranker)
}

func (m *NestedModel) Equal(other ScoringModel) bool {
	o, ok := other.(*NestedModel)
	return ok && o.hash == m.hash && o.canonical == m.canonical
}

func (m *NestedModel) String() string {
	names := FeatureNames(m.features)
	return "NestedModel(" + m.name + ", features=[" + strings.Join(names, ",") + "])"
}
