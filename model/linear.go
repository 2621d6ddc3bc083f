package model

import (
	"fmt"

	"github.com/rushteam/rescore/core"
	"github.com/rushteam/rescore/feature"
	"github.com/rushteam/rescore/search"
)

// LinearModel 是表达式模型：score = calculate(特征值)。
type LinearModel struct {
	name      string
	calculate string
	features  []*feature.Feature
	formula   Formula

	canonical string
	hash      uint64
}

var _ ScoringModel = (*LinearModel)(nil)

// NewLinearModel 校验特征并编译 calculate；任何错误都是 CONFIGURATION。
func NewLinearModel(name, calculate string, features []*feature.Feature) (*LinearModel, error) {
	if name == "" {
		return nil, core.ConfigurationError(core.ModuleModel, "model name is required")
	}
	if err := ValidateFeatures(features); err != nil {
		return nil, fmt.Errorf("model %s: %w", name, err)
	}
	formula, err := CompileFormula(calculate, FeatureNames(features))
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", name, err)
	}
	m := &LinearModel{
		name:      name,
		calculate: formula.String(),
		features:  features,
		formula:   formula,
	}
	m.canonical = canonical("linear", name, m.calculate, features)
	m.hash = hashString(m.canonical)
	return m, nil
}

func (m *LinearModel) Name() string                 { return m.name }
func (m *LinearModel) Calculate() string            { return m.calculate }
func (m *LinearModel) Features() []*feature.Feature { return m.features }
func (m *LinearModel) Hash() uint64                 { return m.hash }

func (m *LinearModel) Score(infos []core.FeatureInfo) (float64, error) {
	return m.formula.Eval(infos)
}

func (m *LinearModel) Explain(final float64, details []*search.Explanation) *search.Explanation {
	return search.Match(final, fmt.Sprintf("%s model applied to features, calculate=%s", m, m.calculate), details...)
}

func (m *LinearModel) Equal(other ScoringModel) bool {
	o, ok := other.(*LinearModel)
	return ok && o.hash == m.hash && o.canonical == m.canonical
}

func (m *LinearModel) String() string { return "LinearModel(" + m.name + ")" }
