package core

import "github.com/rushteam/rescore/pkg/utils"

// RequestContext 承载一次检索请求的上下文，贯穿整个 Pipeline 透传。
type RequestContext struct {
	RequestID string

	// Query 是一排查询串，由检索引擎解析
	Query string

	// Params 是原始请求参数（多值），二排参数与 efi.* 外部特征参数都从这里解析
	Params map[string][]string

	// Labels 是请求级标签，可驱动 Pipeline 行为
	Labels map[string]utils.Label

	// Debug 收集各 Node 的调试输出（按 Node 名称）
	Debug map[string]any
}

// PutDebug 写入 Node 的调试输出。
func (rctx *RequestContext) PutDebug(key string, v any) {
	if rctx.Debug == nil {
		rctx.Debug = make(map[string]any)
	}
	rctx.Debug[key] = v
}

// Param 返回参数的第一个值。
func (rctx *RequestContext) Param(key string) (string, bool) {
	if rctx == nil || rctx.Params == nil {
		return "", false
	}
	vals, ok := rctx.Params[key]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// PutLabel 写入请求级 Label。
func (rctx *RequestContext) PutLabel(key string, lbl utils.Label) {
	if rctx.Labels == nil {
		rctx.Labels = make(map[string]utils.Label)
	}
	if old, ok := rctx.Labels[key]; ok {
		rctx.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	rctx.Labels[key] = lbl
}

// GetLabel 获取请求级 Label。
func (rctx *RequestContext) GetLabel(key string) (utils.Label, bool) {
	if rctx.Labels == nil {
		return utils.Label{}, false
	}
	lbl, ok := rctx.Labels[key]
	return lbl, ok
}
