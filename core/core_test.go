package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/rescore/pkg/utils"
)

func TestDomainError(t *testing.T) {
	root := errors.New("eof")
	err := fmt.Errorf("load catalog: %w", WrapConfigurationError(ModuleCatalog, "parse ctr", root))

	assert.EqualError(t, err, "load catalog: parse ctr: eof")
	assert.ErrorIs(t, err, root)
	assert.True(t, IsDomainError(err))
	assert.True(t, IsConfiguration(err))
	assert.False(t, IsNotFound(err))
	assert.False(t, IsInvalidInput(err))

	de := GetDomainError(err)
	require.NotNil(t, de)
	assert.Equal(t, ModuleCatalog, de.Module)

	// errors.Is 按 Code 比较，Module 为空时匹配任意模块
	assert.ErrorIs(t, err, &DomainError{Code: ErrorCodeConfiguration})
	assert.ErrorIs(t, err, &DomainError{Module: ModuleCatalog, Code: ErrorCodeConfiguration})
	assert.NotErrorIs(t, err, &DomainError{Module: ModuleModel, Code: ErrorCodeConfiguration})

	assert.Nil(t, GetDomainError(nil))
	assert.Nil(t, GetDomainError(root))
}

func TestIsStoreNotFound(t *testing.T) {
	assert.True(t, IsStoreNotFound(fmt.Errorf("get: %w", ErrStoreNotFound)))
	assert.False(t, IsStoreNotFound(NewDomainError(ModuleCatalog, ErrorCodeNotFound, "no model")))
	assert.False(t, IsStoreNotFound(errors.New("not found")))
}

func TestLabels(t *testing.T) {
	h := NewHit(3, 0.5)
	h.PutLabel("rerank", utils.NewLabel("ctr", utils.SourceReRank))
	h.PutLabel("rerank", utils.NewLabel("gated", utils.SourcePostProcess))
	assert.Equal(t, utils.Label{Value: "ctr|gated", Source: "rerank,postprocess"}, h.Labels["rerank"])

	rctx := &RequestContext{}
	_, ok := rctx.GetLabel("rerank")
	assert.False(t, ok)
	rctx.PutLabel("rerank", utils.NewLabel("ctr", utils.SourceReRank))
	lbl, ok := rctx.GetLabel("rerank")
	require.True(t, ok)
	assert.Equal(t, "ctr", lbl.Value)

	v, ok := (&RequestContext{Params: map[string][]string{"rows": {"5", "6"}}}).Param("rows")
	assert.True(t, ok)
	assert.Equal(t, "5", v)
	_, ok = (*RequestContext)(nil).Param("rows")
	assert.False(t, ok)
}

func TestCloneFeatureInfos(t *testing.T) {
	assert.Nil(t, CloneFeatureInfos(nil))
	in := []FeatureInfo{{Name: "f0", Value: 1, Used: true}}
	out := CloneFeatureInfos(in)
	out[0].Value = 2
	assert.Equal(t, 1.0, in[0].Value)
	assert.Equal(t, "FeatureInfo{name=f0, value=1, used=true, index=0}", in[0].String())
}
