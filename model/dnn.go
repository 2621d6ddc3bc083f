package model

import (
	"fmt"
	"math"

	"github.com/rushteam/rescore/core"
)

// LayerSpec 是神经网络一层的参数：Matrix[j] 是第 j 个输出神经元的输入权重。
type LayerSpec struct {
	Matrix     [][]float64 `yaml:"matrix" json:"matrix"`
	Bias       []float64   `yaml:"bias" json:"bias"`
	Activation string      `yaml:"activation" json:"activation"` // relu | sigmoid | tanh | leakyrelu | identity
}

type denseLayer struct {
	matrix     [][]float64
	bias       []float64
	activation func(float64) float64
}

// NeuralNetModel 是全连接前馈网络（Ranker type: dnn）。
//
// 输入向量按 Inputs 的顺序从特征值中取，缺失的特征为 0；
// 最后一层必须只有一个输出神经元，即模型分数。
type NeuralNetModel struct {
	inputs []string
	layers []denseLayer
}

// NewNeuralNetModel 校验每层维度：第一层的列数等于 inputs 数，之后每层的列数等于上一层的行数。
func NewNeuralNetModel(name string, inputs []string, layers []LayerSpec) (*NeuralNetModel, error) {
	if len(inputs) == 0 {
		return nil, core.ConfigurationError(core.ModuleModel, fmt.Sprintf("ranker %s: dnn inputs are required", name))
	}
	if len(layers) == 0 {
		return nil, core.ConfigurationError(core.ModuleModel, fmt.Sprintf("ranker %s: dnn layers are required", name))
	}
	m := &NeuralNetModel{inputs: inputs, layers: make([]denseLayer, 0, len(layers))}
	width := len(inputs)
	for i, l := range layers {
		if len(l.Matrix) == 0 || len(l.Bias) != len(l.Matrix) {
			return nil, core.ConfigurationError(core.ModuleModel,
				fmt.Sprintf("ranker %s: layer %d has %d rows and %d biases", name, i, len(l.Matrix), len(l.Bias)))
		}
		for j, row := range l.Matrix {
			if len(row) != width {
				return nil, core.ConfigurationError(core.ModuleModel,
					fmt.Sprintf("ranker %s: layer %d row %d has %d columns, want %d", name, i, j, len(row), width))
			}
		}
		act, err := activation(l.Activation)
		if err != nil {
			return nil, core.WrapConfigurationError(core.ModuleModel, fmt.Sprintf("ranker %s: layer %d", name, i), err)
		}
		m.layers = append(m.layers, denseLayer{matrix: l.Matrix, bias: l.Bias, activation: act})
		width = len(l.Matrix)
	}
	if width != 1 {
		return nil, core.ConfigurationError(core.ModuleModel,
			fmt.Sprintf("ranker %s: last layer must have 1 output, got %d", name, width))
	}
	return m, nil
}

func (m *NeuralNetModel) Name() string { return "dnn" }

func (m *NeuralNetModel) Predict(features map[string]float64) (float64, error) {
	current := make([]float64, len(m.inputs))
	for i, name := range m.inputs {
		current[i] = features[name]
	}
	for _, l := range m.layers {
		current = l.forward(current)
	}
	return current[0], nil
}

func (l denseLayer) forward(in []float64) []float64 {
	out := make([]float64, len(l.matrix))
	for j, row := range l.matrix {
		sum := l.bias[j]
		for k, w := range row {
			sum += w * in[k]
		}
		out[j] = l.activation(sum)
	}
	return out
}

func activation(name string) (func(float64) float64, error) {
	switch name {
	case "", "identity":
		return identity, nil
	case "relu":
		return relu, nil
	case "leakyrelu":
		return leakyRelu, nil
	case "sigmoid":
		return sigmoid, nil
	case "tanh":
		return math.Tanh, nil
	default:
		return nil, fmt.Errorf("unsupported activation %q", name)
	}
}

func identity(x float64) float64 { return x }

func relu(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

func leakyRelu(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0.01 * x
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
