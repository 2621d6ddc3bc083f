package core

import "strconv"

// FeatureInfo 是单个文档、单个特征在一次打分中的结果。
//
// 一个 composite weight 只分配一份 []FeatureInfo（长度 = 模型特征数），每个文档打分前
// 重置为 Used=false / Value=默认值，命中的特征才会被置为 Used=true。
type FeatureInfo struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Used  bool    `json:"used"`
	Index int     `json:"index"`
}

func (f FeatureInfo) String() string {
	return "FeatureInfo{name=" + f.Name +
		", value=" + strconv.FormatFloat(f.Value, 'f', -1, 64) +
		", used=" + strconv.FormatBool(f.Used) +
		", index=" + strconv.Itoa(f.Index) + "}"
}

// CloneFeatureInfos 复制特征向量快照。
func CloneFeatureInfos(infos []FeatureInfo) []FeatureInfo {
	if infos == nil {
		return nil
	}
	out := make([]FeatureInfo, len(infos))
	copy(out, infos)
	return out
}

// Candidate 是一排（first pass）的命中：全局 doc id + 一排分。
type Candidate struct {
	DocID int     `json:"doc"`
	Score float64 `json:"score"`
}

// RescoredCandidate 是二排后的结果。
type RescoredCandidate struct {
	DocID      int           `json:"doc"`
	Score      float64       `json:"score"`       // combine 之后的分数
	FirstScore float64       `json:"first_score"` // 一排分
	ModelScore float64       `json:"model_score"` // 模型分（未命中时为 0）
	Matched    bool          `json:"matched"`
	Features   []FeatureInfo `json:"features,omitempty"`
}
