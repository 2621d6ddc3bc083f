package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/rescore/core"
)

// Config 描述一条检索链路，可以来自 YAML 或 JSON：
//
//	pipeline:
//	  name: search
//	  nodes:
//	    - type: recall.first_pass
//	      config: {rows: 200}
//	    - type: rerank.rescore
//	      config: {cache_name: fv}
//	    - type: rerank.topn
//	      config: {n: 20, min_score: 0.1}
type Config struct {
	Pipeline struct {
		Name  string       `yaml:"name" json:"name"`
		Nodes []NodeConfig `yaml:"nodes" json:"nodes"`
	} `yaml:"pipeline" json:"pipeline"`
}

type NodeConfig struct {
	Type     string         `yaml:"type" json:"type"`
	Disabled bool           `yaml:"disabled" json:"disabled"`
	Config   map[string]any `yaml:"config" json:"config"`
}

// DefaultConfig 是未提供配置文件时使用的链路：一排 -> 二排。
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Pipeline.Name = "default"
	cfg.Pipeline.Nodes = []NodeConfig{
		{Type: "recall.first_pass"},
		{Type: "rerank.rescore"},
	}
	return cfg
}

// Load 读取链路配置，.json 按 JSON 解析，其余按 YAML 解析。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.WrapConfigurationError(core.ModulePipeline, "read file", err)
	}
	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &cfg)
		if err != nil {
			return nil, core.WrapConfigurationError(core.ModulePipeline, "parse json", err)
		}
	} else if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, core.WrapConfigurationError(core.ModulePipeline, "parse yaml", err)
	}
	return &cfg, nil
}

// 阶段顺序：一排 -> 二排 -> 后处理。未知 Kind 不参与校验。
var kindStage = map[Kind]int{
	KindRecall:      0,
	KindReRank:      1,
	KindPostProcess: 2,
}

// BuildPipeline 用 factory 依次构建启用的 Node。
// 构建出的 Node 阶段不能倒退，例如后处理之后不能再出现二排。
func (c *Config) BuildPipeline(factory *NodeFactory) (*Pipeline, error) {
	nodes := make([]Node, 0, len(c.Pipeline.Nodes))
	stage := -1
	var prev Node
	for _, nc := range c.Pipeline.Nodes {
		if nc.Disabled {
			continue
		}
		node, err := factory.Build(nc.Type, nc.Config)
		if err != nil {
			return nil, fmt.Errorf("build node %s: %w", nc.Type, err)
		}
		if s, ok := kindStage[node.Kind()]; ok {
			if s < stage {
				return nil, core.ConfigurationError(core.ModulePipeline,
					fmt.Sprintf("node %s (%s) cannot run after %s (%s)", node.Name(), node.Kind(), prev.Name(), prev.Kind()))
			}
			stage, prev = s, node
		}
		nodes = append(nodes, node)
	}
	if len(nodes) == 0 {
		return nil, core.ConfigurationError(core.ModulePipeline, "pipeline has no enabled nodes")
	}
	return &Pipeline{Name: c.Pipeline.Name, Nodes: nodes}, nil
}

// NodeBuilder 由 Node 的 config 段构建实例。
type NodeBuilder func(config map[string]any) (Node, error)

// NodeFactory 按类型名查找 NodeBuilder。
type NodeFactory struct {
	builders map[string]NodeBuilder
}

func NewNodeFactory() *NodeFactory {
	return &NodeFactory{builders: make(map[string]NodeBuilder)}
}

// Register 注册 Node 构建器，同名覆盖。
func (f *NodeFactory) Register(nodeType string, builder NodeBuilder) {
	f.builders[nodeType] = builder
}

// Types 返回已注册的类型，按名称排序。
func (f *NodeFactory) Types() []string {
	types := make([]string, 0, len(f.builders))
	for t := range f.builders {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

func (f *NodeFactory) Build(nodeType string, config map[string]any) (Node, error) {
	builder, ok := f.builders[nodeType]
	if !ok {
		return nil, core.ConfigurationError(core.ModulePipeline,
			fmt.Sprintf("unknown node type: %s (registered: %s)", nodeType, strings.Join(f.Types(), ", ")))
	}
	return builder(config)
}
