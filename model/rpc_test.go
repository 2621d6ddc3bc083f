package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/rescore/core"
)

func TestRPCModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Ranker != "ctr" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(rpcResponse{Error: "unknown ranker " + req.Ranker})
			return
		}
		resp := rpcResponse{}
		for _, f := range req.Features {
			resp.Scores = append(resp.Scores, f["f0"]*2+f["f1"])
		}
		if len(req.Features) == 3 {
			resp.Scores = resp.Scores[:2]
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	m := NewRPCModel("ctr", srv.URL, 0)
	assert.Equal(t, "rpc:ctr", m.Name())
	assert.Equal(t, DefaultRPCTimeout, m.timeout)

	score, err := m.Predict(map[string]float64{"f0": 0.5, "f1": 0.25})
	require.NoError(t, err)
	assert.Equal(t, 1.25, score)

	scores, err := m.PredictBatch(context.Background(), []map[string]float64{{"f0": 1}, {"f1": 3}})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3}, scores)

	scores, err = m.PredictBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, scores)

	_, err = m.PredictBatch(context.Background(), []map[string]float64{{}, {}, {}})
	assert.ErrorContains(t, err, "got 2 scores for 3 documents")

	_, err = NewRPCModel("other", srv.URL, time.Second).Predict(map[string]float64{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404: unknown ranker other")
	de := core.GetDomainError(err)
	require.NotNil(t, de)
	assert.Equal(t, core.ErrorCodeInternalError, de.Code)

	_, err = NewRPCModel("ctr", "://bad", time.Second).Predict(nil)
	assert.True(t, core.IsConfiguration(err))
}
