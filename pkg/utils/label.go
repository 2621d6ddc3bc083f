// Package utils 放置各层共用的小工具。
package utils

// Label 来源
const (
	SourceFirstPass   = "first_pass"
	SourceReRank      = "rerank"
	SourcePostProcess = "postprocess"
)

// Label 标注命中或请求经过了哪些处理：例如用哪个二排模型打分、是否落在二排窗口之外。
type Label struct {
	Value  string `json:"value"`
	Source string `json:"source"`
}

func NewLabel(value, source string) Label {
	return Label{Value: value, Source: source}
}

// MergeLabel 合并同名 Label：Value 以 '|' 追加，Source 去重后以 ',' 追加。
// 任一方 Value 为空时直接取另一方。
func MergeLabel(existing Label, incoming Label) Label {
	switch {
	case existing.Value == "":
		return incoming
	case incoming.Value == "":
		return existing
	}
	merged := Label{Value: existing.Value + "|" + incoming.Value, Source: existing.Source}
	if incoming.Source != "" && incoming.Source != existing.Source {
		if merged.Source == "" {
			merged.Source = incoming.Source
		} else {
			merged.Source += "," + incoming.Source
		}
	}
	return merged
}
