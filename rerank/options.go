package rerank

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rushteam/rescore/core"
	"github.com/rushteam/rescore/model"
	"github.com/rushteam/rescore/pkg/conv"
)

// 请求参数名
const (
	ParamReRankQuery   = "reRankQuery"
	ParamReRankJSON    = "reRankJson"
	ParamReRankLtr     = "reRankLtr"
	ParamReRankDocs    = "reRankDocs"
	ParamReRankWeight  = "reRankWeight"
	ParamFirstWeight   = "firstWeight"
	ParamFirstMinimum  = "firstMinimum"
	ParamTimeout       = "timeout"
	ParamFeatureCache  = "featureCache"
	ParamFeatureNames  = "featureNames"
	ParamFeatureDocs   = "featureDocs"
	ParamFeatureVector = "fv"
	ParamDebug         = "debug"

	// ExternalParamPrefix 前缀的参数去掉前缀后作为特征参数
	ExternalParamPrefix = "efi."
	ParamQueryOperator  = "q.op"
)

const (
	DefaultReRankDocs   = 200
	DefaultFeatureNames = "*"
	// InlineModelName 是 reRankJson 内联模型未命名时使用的名字
	InlineModelName = "inline"
)

var errNoModel = core.ConfigurationError(core.ModuleRerank, "one of reRankQuery, reRankJson, reRankLtr is required")

// Options 是一次二排请求的参数。
type Options struct {
	ReRankQuery string
	ReRankJSON  string
	ReRankLtr   string

	ReRankDocs   int
	ReRankWeight float64
	FirstWeight  float64
	FirstMinimum float64
	Timeout      time.Duration

	FeatureCache bool
	FeatureNames string
	FeatureDocs  int
	// FeatureVector 为 true 时在命中上附带特征向量
	FeatureVector bool
	Debug         bool

	// FeatureParams 是 efi.* 参数（已去前缀）与 q.op
	FeatureParams map[string][]string
}

// ParseOptions 从请求参数解析二排参数。reRankQuery / reRankJson / reRankLtr 至少需要一个。
func ParseOptions(params map[string][]string) (*Options, error) {
	o := &Options{FeatureParams: make(map[string][]string)}
	o.ReRankQuery, _ = firstTrimmed(params, ParamReRankQuery)
	o.ReRankJSON, _ = firstTrimmed(params, ParamReRankJSON)
	o.ReRankLtr, _ = firstTrimmed(params, ParamReRankLtr)
	if o.ReRankQuery == "" && o.ReRankJSON == "" && o.ReRankLtr == "" {
		return nil, errNoModel
	}

	var ok bool
	if o.ReRankDocs, ok = conv.ParamGet(params, ParamReRankDocs, DefaultReRankDocs, strconv.Atoi); !ok {
		return nil, invalidParam(ParamReRankDocs, first(params, ParamReRankDocs), "integer expected")
	}
	o.ReRankDocs = max(1, o.ReRankDocs)
	if o.ReRankWeight, ok = conv.ParamGet(params, ParamReRankWeight, DefaultReRankWeight, conv.ParseFloat64); !ok {
		return nil, invalidParam(ParamReRankWeight, first(params, ParamReRankWeight), "number expected")
	}
	if o.FirstWeight, ok = conv.ParamGet(params, ParamFirstWeight, DefaultFirstWeight, conv.ParseFloat64); !ok {
		return nil, invalidParam(ParamFirstWeight, first(params, ParamFirstWeight), "number expected")
	}
	if o.FirstMinimum, ok = conv.ParamGet(params, ParamFirstMinimum, 0, conv.ParseFloat64); !ok {
		return nil, invalidParam(ParamFirstMinimum, first(params, ParamFirstMinimum), "number expected")
	}
	timeoutMs, ok := conv.ParamGet(params, ParamTimeout, int(DefaultTimeout/time.Millisecond), strconv.Atoi)
	if !ok || timeoutMs <= 0 {
		return nil, invalidParam(ParamTimeout, first(params, ParamTimeout), "positive milliseconds expected")
	}
	o.Timeout = time.Duration(timeoutMs) * time.Millisecond

	cache, _ := firstTrimmed(params, ParamFeatureCache)
	o.FeatureCache = cache == "true"
	fv, _ := firstTrimmed(params, ParamFeatureVector)
	o.FeatureVector = fv == "true"
	o.FeatureNames = DefaultFeatureNames
	if names, ok := firstTrimmed(params, ParamFeatureNames); ok && names != "" {
		o.FeatureNames = names
	}
	if o.FeatureDocs, ok = conv.ParamGet(params, ParamFeatureDocs, DefaultFeatureDocs, strconv.Atoi); !ok {
		return nil, invalidParam(ParamFeatureDocs, first(params, ParamFeatureDocs), "integer expected")
	}
	debug, _ := firstTrimmed(params, ParamDebug)
	o.Debug = debug == "rerank"

	for k, v := range params {
		switch {
		case strings.HasPrefix(k, ExternalParamPrefix):
			o.FeatureParams[strings.TrimPrefix(k, ExternalParamPrefix)] = v
		case k == ParamQueryOperator:
			o.FeatureParams[k] = v
		}
	}
	return o, nil
}

// ModelSource 提供按名称查找的模型，config.Registry 实现了它。
type ModelSource interface {
	Model(name string) (model.ScoringModel, error)
	External(name string) (*model.NestedModel, error)
}

// ResolveModel 按优先级 reRankJson > reRankQuery > reRankLtr 确定二排模型。
func (o *Options) ResolveModel(src ModelSource) (model.ScoringModel, error) {
	var (
		m   model.ScoringModel
		err error
	)
	switch {
	case o.ReRankJSON != "":
		lm, err := model.ParseDefinition([]byte(o.ReRankJSON), InlineModelName)
		if err != nil {
			return nil, err
		}
		return lm, nil
	case o.ReRankQuery != "":
		m, err = src.Model(o.ReRankQuery)
	case o.ReRankLtr != "":
		m, err = src.External(o.ReRankLtr)
	default:
		return nil, errNoModel
	}
	if err != nil {
		// 未知模型属于配置错误
		return nil, core.WrapConfigurationError(core.ModuleRerank, "resolve model", err)
	}
	return m, nil
}

// RescorerOptions 把请求参数转换为 Rescorer 选项。
func (o *Options) RescorerOptions() []RescorerOption {
	return []RescorerOption{
		WithReRankWeight(o.ReRankWeight),
		WithFirstWeight(o.FirstWeight),
		WithFirstMinimum(o.FirstMinimum),
		WithTimeout(o.Timeout),
		WithDebug(o.Debug),
	}
}

func first(params map[string][]string, key string) string {
	v, _ := conv.FirstValue(params, key)
	return v
}

func firstTrimmed(params map[string][]string, key string) (string, bool) {
	v, ok := conv.FirstValue(params, key)
	return strings.TrimSpace(v), ok
}

func invalidParam(name, value, reason string) error {
	return core.NewDomainError(core.ModuleRerank, core.ErrorCodeInvalidInput,
		fmt.Sprintf("invalid parameter %s=%q: %s", name, value, reason))
}
