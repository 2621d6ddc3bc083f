package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rushteam/rescore/core"
	"github.com/rushteam/rescore/model"
)

// Registry 是模型目录：按名称保存二排模型与外部模型。
// 进程内没有全局注册表，Registry 在启动时构建一次，显式传给 rerank 与 server。
type Registry struct {
	mu       sync.RWMutex
	models   map[string]model.ScoringModel
	external map[string]*model.NestedModel
}

func NewRegistry() *Registry {
	return &Registry{
		models:   make(map[string]model.ScoringModel),
		external: make(map[string]*model.NestedModel),
	}
}

// Register 注册二排模型（reRankQuery 与嵌套 model 特征按名称引用）。同名覆盖。
func (r *Registry) Register(m model.ScoringModel) error {
	if m == nil || m.Name() == "" {
		return core.ConfigurationError(core.ModuleCatalog, "model name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[m.Name()] = m
	return nil
}

// RegisterExternal 注册外部模型（reRankLtr 按名称引用）。同名覆盖。
func (r *Registry) RegisterExternal(m *model.NestedModel) error {
	if m == nil || m.Name() == "" {
		return core.ConfigurationError(core.ModuleCatalog, "external model name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.external[m.Name()] = m
	return nil
}

// Model 按名称查找二排模型；找不到时也会查外部模型，嵌套特征可以引用任意一种。
func (r *Registry) Model(name string) (model.ScoringModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.models[name]; ok {
		return m, nil
	}
	if m, ok := r.external[name]; ok {
		return m, nil
	}
	return nil, core.NewDomainError(core.ModuleCatalog, core.ErrorCodeNotFound, fmt.Sprintf("cannot find model %q", name))
}

// External 按名称查找外部模型。
func (r *Registry) External(name string) (*model.NestedModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.external[name]; ok {
		return m, nil
	}
	return nil, core.NewDomainError(core.ModuleCatalog, core.ErrorCodeNotFound, fmt.Sprintf("cannot find external model %q", name))
}

// ModelInfo 是目录列表中的一项。
type ModelInfo struct {
	Name     string   `json:"name"`
	Kind     string   `json:"kind"` // linear | external
	Features []string `json:"features"`
}

// List 返回按名称排序的模型列表。
func (r *Registry) List() []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ModelInfo, 0, len(r.models)+len(r.external))
	for name, m := range r.models {
		out = append(out, ModelInfo{Name: name, Kind: "linear", Features: model.FeatureNames(m.Features())})
	}
	for name, m := range r.external {
		out = append(out, ModelInfo{Name: name, Kind: "external", Features: model.FeatureNames(m.Features())})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// Len 返回模型总数。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models) + len(r.external)
}
