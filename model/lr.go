package model

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rushteam/rescore/core"
)

// LRModel 实现了逻辑回归 (Logistic Regression) 模型。
//
// 预测原理：
// 1. 线性加权求和: z = Bias + sum(Weight_i * Feature_i)
// 2. Sigmoid 变换: P = 1 / (1 + exp(-z))
type LRModel struct {
	Bias    float64            // 偏置项
	Weights map[string]float64 // 特征权重
}

// LoadLRModel 从 JSON 文件加载：{"bias": 0.1, "weights": {"f0": 1.2}}
func LoadLRModel(path string) (*LRModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Bias    float64            `json:"bias"`
		Weights map[string]float64 `json:"weights"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return &LRModel{Bias: raw.Bias, Weights: raw.Weights}, nil
}

func (m *LRModel) Name() string { return "lr" }

func (m *LRModel) Predict(features map[string]float64) (float64, error) {
	return sigmoid(linear(m.Bias, m.Weights, features)), nil
}

// WeightedSumModel 是不带 sigmoid 的线性模型：Bias + sum(Weight_i * Feature_i)。
type WeightedSumModel struct {
	Bias    float64
	Weights map[string]float64
}

func (m *WeightedSumModel) Name() string { return "weighted_sum" }

func (m *WeightedSumModel) Predict(features map[string]float64) (float64, error) {
	return linear(m.Bias, m.Weights, features), nil
}

func linear(bias float64, weights, features map[string]float64) float64 {
	score := bias
	for k, v := range features {
		if w, ok := weights[k]; ok {
			score += w * v
		}
	}
	return score
}

// RankerSpec 是 RankModel 的声明式配置。
type RankerSpec struct {
	Type     string             `yaml:"type" json:"type"` // lr | weighted_sum | dnn | rpc
	Bias     float64            `yaml:"bias" json:"bias"`
	Weights  map[string]float64 `yaml:"weights" json:"weights"`
	Path     string             `yaml:"path" json:"path"` // lr: 从文件加载
	Endpoint string             `yaml:"endpoint" json:"endpoint"`
	Timeout  time.Duration      `yaml:"timeout" json:"timeout"`

	// dnn
	Inputs []string    `yaml:"inputs" json:"inputs"`
	Layers []LayerSpec `yaml:"layers" json:"layers"`
}

// NewRankModel 按 spec.Type 创建 RankModel。
func NewRankModel(name string, spec RankerSpec) (RankModel, error) {
	switch spec.Type {
	case "lr", "":
		if spec.Path != "" {
			m, err := LoadLRModel(spec.Path)
			if err != nil {
				return nil, core.WrapConfigurationError(core.ModuleModel, "load lr model "+spec.Path, err)
			}
			return m, nil
		}
		return &LRModel{Bias: spec.Bias, Weights: spec.Weights}, nil
	case "weighted_sum":
		return &WeightedSumModel{Bias: spec.Bias, Weights: spec.Weights}, nil
	case "dnn":
		m, err := NewNeuralNetModel(name, spec.Inputs, spec.Layers)
		if err != nil {
			return nil, err
		}
		return m, nil
	case "rpc":
		if spec.Endpoint == "" {
			return nil, core.ConfigurationError(core.ModuleModel, fmt.Sprintf("ranker %s: rpc endpoint is required", name))
		}
		return NewRPCModel(name, spec.Endpoint, spec.Timeout), nil
	default:
		return nil, core.ConfigurationError(core.ModuleModel, fmt.Sprintf("ranker %s: unsupported type %q", name, spec.Type))
	}
}
