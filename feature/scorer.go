package feature

import (
	"fmt"

	"github.com/rushteam/rescore/core"
	"github.com/rushteam/rescore/search"
)

// Scorer 是特征在一个分段上的打分器。
type Scorer struct {
	weight *Weight
	it     search.DocIterator
	inner  search.Scorer
	values search.StringValues
}

func (s *Scorer) Weight() *Weight              { return s.weight }
func (s *Scorer) Iterator() search.DocIterator { return s.it }
func (s *Scorer) DocID() int                   { return s.it.DocID() }

// Deferred 表示特征依赖同一文档其它特征的结果，需要在第二阶段求值。
func (s *Scorer) Deferred() bool { return s.weight.Kind() == KindMapOffset }

// Evaluate 计算当前文档的特征值并写入 info。
// table 特征把解码结果写入 table；map-offset 特征从 table 读取。
func (s *Scorer) Evaluate(info *core.FeatureInfo, table TableValues) error {
	switch spec := s.weight.feature.Spec.(type) {
	case ConstantSpec:
		info.Value = spec.Value
	case TableSpec:
		str, err := s.values.StrVal(s.it.DocID())
		if err != nil {
			return fmt.Errorf("feature %s: %w", s.weight.Name(), err)
		}
		info.Value = 0
		DecodeTable(s.weight.Name(), str, table)
	case MapOffsetSpec:
		info.Value = table.Get(spec.Key, spec.Offset)
	default:
		if s.inner == nil {
			return nil
		}
		v, err := s.inner.Score()
		if err != nil {
			return fmt.Errorf("feature %s: %w", s.weight.Name(), err)
		}
		info.Value = v
	}
	info.Used = true
	return nil
}
