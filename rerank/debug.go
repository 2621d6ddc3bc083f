package rerank

import (
	"strconv"
	"time"

	"github.com/rushteam/rescore/feature"
	"github.com/rushteam/rescore/search"
)

// SegmentInfo 是 debug 输出中的分段信息。
type SegmentInfo struct {
	Ord     int `json:"ord"`
	DocBase int `json:"docBase"`
	MaxDoc  int `json:"maxDoc"`
	NumDocs int `json:"numDocs"`
	DelDocs int `json:"delDocs"`
}

func segmentInfo(seg *search.Segment) SegmentInfo {
	return SegmentInfo{
		Ord:     seg.Ord,
		DocBase: seg.DocBase,
		MaxDoc:  seg.MaxDoc,
		NumDocs: seg.NumDocs,
		DelDocs: seg.DelDocs(),
	}
}

// DebugInfo 汇总一次 Rescore 的调试信息，不影响打分结果。
type DebugInfo struct {
	LeaveCount int
	Leaves     []SegmentInfo
	// Features 与模型特征一一对应，最后一个为 eval
	Features []*feature.Debug
	// ScorerTime 是创建分段打分器的总耗时，ScoreTime 是逐文档打分的总耗时
	ScorerTime time.Duration
	ScoreTime  time.Duration
}

func (d *DebugInfo) AsMap() map[string]any {
	leaves := make(map[string]any, len(d.Leaves))
	for _, l := range d.Leaves {
		leaves[strconv.Itoa(l.Ord)] = map[string]any{
			"docBase": l.DocBase,
			"maxDoc":  l.MaxDoc,
			"numDocs": l.NumDocs,
			"delDocs": l.DelDocs,
		}
	}
	features := make(map[string]any, len(d.Features))
	for _, f := range d.Features {
		features[f.Name] = f.AsMap()
	}
	return map[string]any{
		"leaveCount": d.LeaveCount,
		"leaveList":  leaves,
		"features":   features,
		"timing": map[string]any{
			"scorer": d.ScorerTime.Milliseconds(),
			"score":  d.ScoreTime.Milliseconds(),
		},
	}
}
