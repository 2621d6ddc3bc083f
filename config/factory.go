package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/rushteam/rescore/core"
	"github.com/rushteam/rescore/pipeline"
	"github.com/rushteam/rescore/pkg/conv"
	"github.com/rushteam/rescore/recall"
	"github.com/rushteam/rescore/rerank"
	"github.com/rushteam/rescore/search/memindex"
)

// Dependencies 是构建内置 Node 需要的共享资源。
type Dependencies struct {
	Index     *memindex.Index
	Registry  *Registry
	Store     core.Store
	CacheName string
	CacheTTL  time.Duration
	Pool      *rerank.WeightPool
	Logger    *slog.Logger
}

// DefaultFactory 返回一个包含所有内置 Node 的默认工厂。
func DefaultFactory(deps Dependencies) *pipeline.NodeFactory {
	factory := pipeline.NewNodeFactory()

	factory.Register("recall.first_pass", func(config map[string]any) (pipeline.Node, error) {
		return buildFirstPassNode(deps, config)
	})
	factory.Register("rerank.rescore", func(config map[string]any) (pipeline.Node, error) {
		return buildRescoreNode(deps, config)
	})
	factory.Register("rerank.topn", buildTopNNode)

	return factory
}

func buildFirstPassNode(deps Dependencies, config map[string]any) (pipeline.Node, error) {
	if deps.Index == nil {
		return nil, fmt.Errorf("index is required")
	}
	rows := 0
	if v, ok := config["rows"]; ok {
		n, ok := conv.ToInt(v)
		if !ok {
			return nil, fmt.Errorf("rows: integer expected, got %v", v)
		}
		rows = n
	}
	return &recall.FirstPass{Searcher: deps.Index, Source: deps.Index, Rows: rows}, nil
}

func buildRescoreNode(deps Dependencies, config map[string]any) (pipeline.Node, error) {
	if deps.Index == nil || deps.Registry == nil {
		return nil, fmt.Errorf("index and registry are required")
	}
	node := &rerank.Node{
		Searcher:  deps.Index,
		Registry:  deps.Registry,
		Store:     deps.Store,
		CacheName: deps.CacheName,
		CacheTTL:  deps.CacheTTL,
		Pool:      deps.Pool,
		Logger:    deps.Logger,
	}
	if v, ok := config["cache_name"].(string); ok && v != "" {
		node.CacheName = v
	}
	if v, ok := config["parallel"].(bool); ok && !v {
		node.Pool = nil
	}
	return node, nil
}

func buildTopNNode(config map[string]any) (pipeline.Node, error) {
	n, ok := conv.ToInt(config["n"])
	if !ok {
		return nil, fmt.Errorf("n: integer expected, got %v", config["n"])
	}
	node := &rerank.TopNNode{N: n}
	if v, ok := config["min_score"]; ok {
		f, ok := conv.ToFloat64(v)
		if !ok {
			return nil, fmt.Errorf("min_score: number expected, got %v", v)
		}
		node.MinScore = &f
	}
	return node, nil
}
