package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rushteam/rescore/core"
	"github.com/rushteam/rescore/pkg/utils"
	"github.com/rushteam/rescore/rerank"
)

// RescoreRequest 是 POST /v1/rescore 的请求体。
// Params 是二排参数（reRankQuery、reRankDocs、efi.* 等），值为字符串或字符串数组。
type RescoreRequest struct {
	Query   string         `json:"q"`
	Filters []string       `json:"fq"`
	Rows    int            `json:"rows"`
	Params  map[string]any `json:"params"`
	// FeatureVector 为 true 时在结果中返回特征向量，已缓存的向量直接读取
	FeatureVector bool `json:"fv"`
}

type HitResponse struct {
	DocID         int     `json:"doc"`
	Score         float64 `json:"score"`
	FirstScore    float64 `json:"first_score"`
	ModelScore    float64 `json:"model_score"`
	Matched       bool    `json:"matched"`
	Reranked      bool    `json:"reranked"`
	FeatureVector string  `json:"fv,omitempty"`

	Labels map[string]utils.Label `json:"labels,omitempty"`
}

type RescoreResponse struct {
	RequestID string         `json:"request_id"`
	Hits      []HitResponse  `json:"hits"`
	Debug     map[string]any `json:"debug,omitempty"`

	Labels map[string]utils.Label `json:"labels,omitempty"`
}

func (s *Server) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "models": s.registry.Len()})
}

func (s *Server) ListModelsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": s.registry.List()})
}

func (s *Server) RescoreHandler(c *gin.Context) {
	var req RescoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, core.WrapDomainError(core.ModuleRerank, core.ErrorCodeInvalidInput, "invalid request body", err))
		return
	}
	params, err := flattenParams(req.Params)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if len(req.Filters) > 0 {
		params["fq"] = req.Filters
	}
	if req.Rows > 0 {
		params["rows"] = []string{strconv.Itoa(req.Rows)}
	}
	if req.FeatureVector {
		params[rerank.ParamFeatureVector] = []string{"true"}
	}

	rctx := &core.RequestContext{
		RequestID: c.GetString(requestIDKey),
		Query:     req.Query,
		Params:    params,
	}
	hits, err := s.pipeline.Run(c.Request.Context(), rctx, nil)
	if err != nil {
		s.log.Error("rescore failed", "request_id", rctx.RequestID, "error", err)
		abortWithError(c, err)
		return
	}

	resp := RescoreResponse{
		RequestID: rctx.RequestID,
		Hits:      make([]HitResponse, 0, len(hits)),
		Debug:     rctx.Debug,
		Labels:    rctx.Labels,
	}
	for _, h := range hits {
		hr := HitResponse{DocID: h.DocID, Score: h.Score, FirstScore: h.Score, Labels: h.Labels}
		if v, ok := h.Meta["first_score"].(float64); ok {
			hr.Reranked = true
			hr.FirstScore = v
			hr.ModelScore, _ = h.Meta["model_score"].(float64)
			hr.Matched, _ = h.Meta["matched"].(bool)
			hr.FeatureVector, _ = h.Meta[rerank.MetaFeatureVector].(string)
		}
		resp.Hits = append(resp.Hits, hr)
	}
	c.JSON(http.StatusOK, resp)
}

// flattenParams 把 JSON 参数转成多值参数：字符串、数字、布尔按字符串处理，数组展开为多值。
func flattenParams(in map[string]any) (map[string][]string, error) {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case []any:
			vals := make([]string, 0, len(val))
			for _, e := range val {
				s, ok := scalar(e)
				if !ok {
					return nil, invalidParam(k)
				}
				vals = append(vals, s)
			}
			out[k] = vals
		default:
			s, ok := scalar(val)
			if !ok {
				return nil, invalidParam(k)
			}
			out[k] = []string{s}
		}
	}
	return out, nil
}

func scalar(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return "", false
	}
}

func invalidParam(name string) error {
	return core.NewDomainError(core.ModuleRerank, core.ErrorCodeInvalidInput, "invalid parameter "+name)
}
