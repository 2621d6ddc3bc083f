// Package feature 定义二排模型使用的特征。
//
// 一个特征由名称、在模型中的位置（Index）、默认值以及具体的取值方式（Spec）组成。
// Spec 是封闭的和类型，只有本包内的 5 种实现：
//   - ConstantSpec: 常数值，匹配所有文档
//   - QuerySpec: 子查询（q + fq），值为子查询的分数
//   - TableSpec: 文档的字符串值，按逗号解码成 name_i -> float 的表，特征本身值为 0
//   - MapOffsetSpec: 读取同一文档 table 解码结果中的 key_offset
//   - ModelSpec: 嵌套模型，值为子模型的最终分数
package feature

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rushteam/rescore/core"
)

// Kind 特征类型
type Kind string

const (
	KindConstant  Kind = "constant"
	KindQuery     Kind = "query"
	KindTable     Kind = "table"
	KindMapOffset Kind = "map"
	KindModel     Kind = "model"
)

// Spec 描述特征值如何计算。
type Spec interface {
	Kind() Kind
	String() string
	validate() error
}

// ConstantSpec 常数特征。
type ConstantSpec struct {
	Value float64
}

func (s ConstantSpec) Kind() Kind      { return KindConstant }
func (s ConstantSpec) String() string  { return "value=" + formatFloat(s.Value) }
func (s ConstantSpec) validate() error { return nil }

// QuerySpec 子查询特征。Q 与 FQ 中可以使用 ${name} / ${name:-default} 引用外部参数。
type QuerySpec struct {
	Q  string
	FQ []string
}

func (s QuerySpec) Kind() Kind { return KindQuery }

func (s QuerySpec) String() string {
	if len(s.FQ) == 0 {
		return "q=" + s.Q
	}
	return "q=" + s.Q + ",fq=[" + strings.Join(s.FQ, ";") + "]"
}

func (s QuerySpec) validate() error {
	if s.Q == "" && len(s.FQ) == 0 {
		return fmt.Errorf("q or fq must be provided")
	}
	return nil
}

// TableSpec 表特征，Table 是取字符串值的表达式。
type TableSpec struct {
	Table string
}

func (s TableSpec) Kind() Kind     { return KindTable }
func (s TableSpec) String() string { return "table=" + s.Table }

func (s TableSpec) validate() error {
	if strings.TrimSpace(s.Table) == "" {
		return fmt.Errorf("table must be provided")
	}
	return nil
}

// MapOffsetSpec 读取 table 特征 Key 解码后第 Offset 个值。
type MapOffsetSpec struct {
	Key    string
	Offset int
}

func (s MapOffsetSpec) Kind() Kind     { return KindMapOffset }
func (s MapOffsetSpec) String() string { return "key=" + s.Key + ",offset=" + strconv.Itoa(s.Offset) }

func (s MapOffsetSpec) validate() error {
	if s.Key == "" {
		return fmt.Errorf("key must be provided")
	}
	if s.Offset < 0 {
		return fmt.Errorf("offset must be >= 0, got %d", s.Offset)
	}
	return nil
}

// ModelSpec 嵌套模型特征，Model 是模型目录中的名称。
type ModelSpec struct {
	Model string
}

func (s ModelSpec) Kind() Kind     { return KindModel }
func (s ModelSpec) String() string { return "model=" + s.Model }

func (s ModelSpec) validate() error {
	if s.Model == "" {
		return fmt.Errorf("model must be provided")
	}
	return nil
}

// Feature 是模型中的一个特征，加载后不可变。
type Feature struct {
	Name         string
	Index        int
	DefaultValue float64
	Spec         Spec
}

// Validate 检查特征定义，失败时返回 CONFIGURATION 错误。
func (f *Feature) Validate() error {
	if f == nil {
		return core.ConfigurationError(core.ModuleFeature, "feature is nil")
	}
	if f.Name == "" {
		return core.ConfigurationError(core.ModuleFeature, fmt.Sprintf("feature at index %d has no name", f.Index))
	}
	if f.Spec == nil {
		return core.ConfigurationError(core.ModuleFeature, fmt.Sprintf("feature %s has no definition", f.Name))
	}
	if err := f.Spec.validate(); err != nil {
		return core.WrapConfigurationError(core.ModuleFeature, fmt.Sprintf("feature %s", f.Name), err)
	}
	return nil
}

// String 返回稳定的结构化描述，用于哈希与日志。
func (f *Feature) String() string {
	return fmt.Sprintf("%s[%d](%s:%s,default=%s)", f.Name, f.Index, f.Spec.Kind(), f.Spec, formatFloat(f.DefaultValue))
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
