package core

import "github.com/rushteam/rescore/pkg/utils"

// Hit 是 Pipeline 中的统一承载结构：文档、分数、特征、标签。
// Labels 用于解释与策略驱动；Score 用于排序决策。
type Hit struct {
	DocID    int
	Score    float64
	Features []FeatureInfo
	Meta     map[string]any
	Labels   map[string]utils.Label
}

func NewHit(docID int, score float64) *Hit {
	return &Hit{
		DocID:  docID,
		Score:  score,
		Meta:   make(map[string]any),
		Labels: make(map[string]utils.Label),
	}
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (h *Hit) PutLabel(key string, lbl utils.Label) {
	if h.Labels == nil {
		h.Labels = make(map[string]utils.Label)
	}
	if old, ok := h.Labels[key]; ok {
		h.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	h.Labels[key] = lbl
}
