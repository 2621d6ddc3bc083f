package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rushteam/rescore/core"
)

// DefaultRPCTimeout 未配置 timeout 时单次调用的上限
const DefaultRPCTimeout = time.Second

// rpcRequest / rpcResponse 是远程打分服务的协议：
//
//	POST {"ranker": "ctr", "features": [{"f0": 0.8, "f1": 0.3}]}
//	200  {"scores": [0.85]}
type rpcRequest struct {
	Ranker   string               `json:"ranker"`
	Features []map[string]float64 `json:"features"`
}

type rpcResponse struct {
	Scores []float64 `json:"scores"`
	Error  string    `json:"error,omitempty"`
}

// RPCModel 把打分委托给远程服务，作为 NestedModel 的 Ranker。
// 服务只收到模型声明的特征，分数按请求顺序返回。
type RPCModel struct {
	ranker   string
	endpoint string
	timeout  time.Duration
	client   *http.Client
}

func NewRPCModel(ranker, endpoint string, timeout time.Duration) *RPCModel {
	if timeout <= 0 {
		timeout = DefaultRPCTimeout
	}
	return &RPCModel{
		ranker:   ranker,
		endpoint: endpoint,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
	}
}

func (m *RPCModel) Name() string { return "rpc:" + m.ranker }

// Predict 单文档打分，单次调用受 timeout 约束。
func (m *RPCModel) Predict(features map[string]float64) (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	scores, err := m.PredictBatch(ctx, []map[string]float64{features})
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

// PredictBatch 一次请求为多个文档打分。
func (m *RPCModel) PredictBatch(ctx context.Context, batch []map[string]float64) ([]float64, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(rpcRequest{Ranker: m.ranker, Features: batch})
	if err != nil {
		return nil, m.internal("encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, core.WrapConfigurationError(core.ModuleModel, "ranker "+m.ranker+": bad endpoint", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, m.internal("call", err)
	}
	defer resp.Body.Close()

	var out rpcResponse
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		if json.Unmarshal(raw, &out) == nil && out.Error != "" {
			raw = []byte(out.Error)
		}
		return nil, m.internal(fmt.Sprintf("status %d: %s", resp.StatusCode, raw), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, m.internal("decode response", err)
	}
	if len(out.Scores) != len(batch) {
		return nil, m.internal(fmt.Sprintf("got %d scores for %d documents", len(out.Scores), len(batch)), nil)
	}
	return out.Scores, nil
}

func (m *RPCModel) internal(msg string, err error) error {
	return core.WrapDomainError(core.ModuleModel, core.ErrorCodeInternalError, "ranker "+m.ranker+": "+msg, err)
}
