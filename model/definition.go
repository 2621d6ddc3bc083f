package model

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/rescore/core"
	"github.com/rushteam/rescore/feature"
)

// 模型定义（JSON 或 YAML）有两种写法：
//
// 列表形式，每个特征按出现的 key 区分类型：
//
//	{"name": "m", "calculate": "f0*0.6+f1*0.4", "features": [
//	  {"name": "f0", "query": "doc.ctr", "filterQuery": ["doc.online"]},
//	  {"n": "f1", "q": "doc.cvr"},
//	  {"name": "tbl", "table": "doc.stats"},
//	  {"name": "t0", "key": "tbl", "offset": 0},
//	  {"name": "sub", "model": "other_model"},
//	  {"name": "bias", "value": 1}
//	]}
//
// 映射形式，特征名 -> 子查询：
//
//	{"name": "m", "calculate": "sum", "features": {"f0": "doc.ctr", "f1": "doc.cvr"}}
//
// calculate 缺省为 sum。

type stringList []string

func (s *stringList) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*s = stringList{n.Value}
		return nil
	case yaml.SequenceNode:
		var l []string
		if err := n.Decode(&l); err != nil {
			return err
		}
		*s = l
		return nil
	default:
		return fmt.Errorf("line %d: expected string or list", n.Line)
	}
}

type rawFeature struct {
	Name        string     `yaml:"name"`
	N           string     `yaml:"n"`
	Model       string     `yaml:"model"`
	Key         *string    `yaml:"key"`
	Offset      *int       `yaml:"offset"`
	Table       string     `yaml:"table"`
	Query       *string    `yaml:"query"`
	FilterQuery stringList `yaml:"filterQuery"`
	Q           *string    `yaml:"q"`
	FQ          stringList `yaml:"fq"`
	Value       *float64   `yaml:"value"`
	Default     float64    `yaml:"default"`
}

func (r *rawFeature) name() string {
	if r.Name != "" {
		return r.Name
	}
	return r.N
}

// spec 按 model > key+offset > table > query > q > value 的顺序判别特征类型。
func (r *rawFeature) spec() (feature.Spec, error) {
	switch {
	case r.Model != "":
		return feature.ModelSpec{Model: r.Model}, nil
	case r.Key != nil || r.Offset != nil:
		if r.Key == nil || r.Offset == nil {
			return nil, fmt.Errorf("map feature requires both key and offset")
		}
		return feature.MapOffsetSpec{Key: *r.Key, Offset: *r.Offset}, nil
	case r.Table != "":
		return feature.TableSpec{Table: r.Table}, nil
	case r.Query != nil:
		return feature.QuerySpec{Q: *r.Query, FQ: r.FilterQuery}, nil
	case r.Q != nil || len(r.FQ) > 0:
		q := ""
		if r.Q != nil {
			q = *r.Q
		}
		return feature.QuerySpec{Q: q, FQ: r.FQ}, nil
	case r.Value != nil:
		return feature.ConstantSpec{Value: *r.Value}, nil
	default:
		return nil, fmt.Errorf("unknown feature type, expect one of model, key+offset, table, query, q, value")
	}
}

type rawDefinition struct {
	Name      string    `yaml:"name"`
	Calculate string    `yaml:"calculate"`
	Features  yaml.Node `yaml:"features"`
}

// ParseDefinition 解析 JSON / YAML 模型定义。定义中没有 name 时使用 defaultName。
func ParseDefinition(data []byte, defaultName string) (*LinearModel, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(normalizeJSON(data), &root); err != nil {
		return nil, core.WrapConfigurationError(core.ModuleModel, "parse model definition", err)
	}
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		return DefinitionFromNode(root.Content[0], defaultName)
	}
	return nil, core.ConfigurationError(core.ModuleModel, "empty model definition")
}

// DefinitionFromNode 从 yaml 节点构建 LinearModel；节点内特征顺序即特征下标。
func DefinitionFromNode(node *yaml.Node, defaultName string) (*LinearModel, error) {
	var raw rawDefinition
	if err := node.Decode(&raw); err != nil {
		return nil, core.WrapConfigurationError(core.ModuleModel, "decode model definition", err)
	}
	if raw.Name == "" {
		raw.Name = defaultName
	}
	if raw.Calculate == "" {
		raw.Calculate = "sum"
	}
	features, err := decodeFeatures(&raw.Features)
	if err != nil {
		return nil, core.WrapConfigurationError(core.ModuleModel, fmt.Sprintf("model %s", raw.Name), err)
	}
	return NewLinearModel(raw.Name, raw.Calculate, features)
}

func decodeFeatures(node *yaml.Node) ([]*feature.Feature, error) {
	var features []*feature.Feature
	add := func(r *rawFeature) error {
		spec, err := r.spec()
		if err != nil {
			return fmt.Errorf("feature %q: %w", r.name(), err)
		}
		features = append(features, &feature.Feature{
			Name:         r.name(),
			Index:        len(features),
			DefaultValue: r.Default,
			Spec:         spec,
		})
		return nil
	}
	switch node.Kind {
	case 0:
		return nil, nil
	case yaml.SequenceNode:
		for _, item := range node.Content {
			var r rawFeature
			if err := item.Decode(&r); err != nil {
				return nil, err
			}
			if err := add(&r); err != nil {
				return nil, err
			}
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			name, value := node.Content[i].Value, node.Content[i+1]
			var r rawFeature
			switch value.Kind {
			case yaml.ScalarNode:
				q := value.Value
				r.Query = &q
			case yaml.MappingNode:
				if err := value.Decode(&r); err != nil {
					return nil, err
				}
			default:
				return nil, fmt.Errorf("feature %q: expected sub-query string or object", name)
			}
			r.Name = name
			if err := add(&r); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("features must be a list or a map")
	}
	return features, nil
}

type rawExternal struct {
	Name     string            `yaml:"name"`
	Ranker   RankerSpec        `yaml:"ranker"`
	Features []ExternalFeature `yaml:"features"`
}

// ParseExternal 解析外部模型定义（特征库格式），返回适配后的 NestedModel。
//
//	name: ctr_lr
//	ranker: {type: lr, bias: -1, weights: {f0: 1.5}}
//	features:
//	  - {name: f0, class: SolrFeature, params: {q: "doc.ctr"}}
//	  - {name: f1, class: MapValueFeature, params: {key: tbl, offset: 0}}
func ParseExternal(data []byte) (*NestedModel, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(normalizeJSON(data), &root); err != nil {
		return nil, core.WrapConfigurationError(core.ModuleModel, "parse external model", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, core.ConfigurationError(core.ModuleModel, "empty external model")
	}
	return ExternalFromNode(root.Content[0])
}

// ExternalFromNode 从 yaml 节点构建 NestedModel。
func ExternalFromNode(node *yaml.Node) (*NestedModel, error) {
	var raw rawExternal
	if err := node.Decode(&raw); err != nil {
		return nil, core.WrapConfigurationError(core.ModuleModel, "decode external model", err)
	}
	ranker, err := NewRankModel(raw.Name, raw.Ranker)
	if err != nil {
		return nil, err
	}
	return NewNestedModel(&ExternalModel{Name: raw.Name, Features: raw.Features, Ranker: ranker})
}

// normalizeJSON 把 JSON 文本中的制表符换成空格，yaml 不接受制表符缩进。
// 合法 JSON 的字符串内不会出现未转义的制表符。
func normalizeJSON(data []byte) []byte {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return data
	}
	return bytes.ReplaceAll(data, []byte("\t"), []byte(" "))
}
