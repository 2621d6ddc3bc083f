// Package model 定义二排的打分模型。
//
// ScoringModel 是二排真正使用的模型：有序特征列表 + 打分函数。内置两种：
//   - LinearModel: 表达式模型，calculate 在加载时编译一次，每个文档只绑定新的变量
//   - NestedModel: 把外部模型（特征库格式 + RankModel）的特征映射成本引擎的特征
//
// RankModel 是更底层的「特征 map -> 分数」抽象，NestedModel 通过它委托打分。
package model

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/rushteam/rescore/core"
	"github.com/rushteam/rescore/feature"
	"github.com/rushteam/rescore/search"
)

// RankModel 是排序阶段的最小抽象：输入特征，输出一个可比较的分数。
// 具体实现可以是本地模型（LR / 加权和）或远程 RPC。
type RankModel interface {
	Name() string
	Predict(features map[string]float64) (float64, error)
}

// ScoringModel 是二排模型。加载后不可变，可被多个请求并发使用。
type ScoringModel interface {
	Name() string
	// Features 按模型声明顺序返回特征，Index 即下标
	Features() []*feature.Feature
	// Score 对一个文档的完整特征数组打分
	Score(infos []core.FeatureInfo) (float64, error)
	Explain(final float64, details []*search.Explanation) *search.Explanation
	// Hash / Equal 基于模型名与特征定义，用于缓存 key
	Hash() uint64
	Equal(other ScoringModel) bool
}

// ValidateFeatures 检查特征下标稠密（0..N-1 且与位置一致）、名称唯一、定义合法。
func ValidateFeatures(features []*feature.Feature) error {
	seen := make(map[string]int, len(features))
	for i, f := range features {
		if err := f.Validate(); err != nil {
			return err
		}
		if f.Index != i {
			return core.ConfigurationError(core.ModuleModel,
				fmt.Sprintf("feature %s has index %d, expected %d", f.Name, f.Index, i))
		}
		if j, ok := seen[f.Name]; ok {
			return core.ConfigurationError(core.ModuleModel,
				fmt.Sprintf("duplicate feature name %s at index %d and %d", f.Name, j, i))
		}
		seen[f.Name] = i
	}
	return nil
}

// FeatureNames 返回按下标排列的特征名。
func FeatureNames(features []*feature.Feature) []string {
	names := make([]string, len(features))
	for i, f := range features {
		names[i] = f.Name
	}
	return names
}

// canonical 生成模型的结构化描述，Hash / Equal 都基于它。
func canonical(kind, name, body string, features []*feature.Feature) string {
	var sb strings.Builder
	sb.WriteString(kind)
	sb.WriteByte('|')
	sb.WriteString(name)
	sb.WriteByte('|')
	sb.WriteString(body)
	for _, f := range features {
		sb.WriteByte('|')
		sb.WriteString(f.String())
	}
	return sb.String()
}

func hashString(s string) uint64 { return xxhash.Sum64String(s) }
