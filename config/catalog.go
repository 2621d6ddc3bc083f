package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/rescore/core"
	"github.com/rushteam/rescore/model"
)

// Catalog 是模型目录文件（YAML/JSON）：
//
//	models:
//	  - name: ctr
//	    calculate: "f0 * 0.7 + f1 * 0.3"
//	    features:
//	      - {name: f0, q: "doc.ctr"}
//	      - {name: f1, q: "doc.cvr"}
//	external:
//	  - name: ctr_lr
//	    ranker: {type: lr, bias: -1, weights: {f0: 2}}
//	    features:
//	      - {name: f0, class: SolrFeature, params: {q: "doc.ctr"}}
type Catalog struct {
	Models   []yaml.Node `yaml:"models"`
	External []yaml.Node `yaml:"external"`
}

// LoadCatalog 读取目录文件并构建 Registry。
func LoadCatalog(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog 解析目录内容；任意一个模型不合法都会返回错误。
func ParseCatalog(data []byte) (*Registry, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, core.WrapConfigurationError(core.ModuleCatalog, "parse yaml", err)
	}
	reg := NewRegistry()
	for i := range c.Models {
		m, err := model.DefinitionFromNode(&c.Models[i], "")
		if err != nil {
			return nil, fmt.Errorf("models[%d]: %w", i, err)
		}
		if err := reg.Register(m); err != nil {
			return nil, fmt.Errorf("models[%d]: %w", i, err)
		}
	}
	for i := range c.External {
		m, err := model.ExternalFromNode(&c.External[i])
		if err != nil {
			return nil, fmt.Errorf("external[%d]: %w", i, err)
		}
		if err := reg.RegisterExternal(m); err != nil {
			return nil, fmt.Errorf("external[%d]: %w", i, err)
		}
	}
	return reg, nil
}
