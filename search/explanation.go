package search

import (
	"math"
	"strconv"
	"strings"
)

// Explanation 是分数的树形解释。
type Explanation struct {
	Value       float64        `json:"value"`
	Match       bool           `json:"match"`
	Description string         `json:"description"`
	Details     []*Explanation `json:"details,omitempty"`
}

// Match 构造命中的解释。NaN / ±Inf 在解释层被置为 0，保证输出格式合法；原始打分不受影响。
func Match(value float64, description string, details ...*Explanation) *Explanation {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		value = 0
	}
	return &Explanation{Value: value, Match: true, Description: description, Details: details}
}

// NoMatch 构造未命中的解释。
func NoMatch(description string, details ...*Explanation) *Explanation {
	return &Explanation{Description: description, Details: details}
}

func (e *Explanation) String() string {
	var sb strings.Builder
	e.write(&sb, 0)
	return sb.String()
}

func (e *Explanation) write(sb *strings.Builder, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	if e.Match {
		sb.WriteString(strconv.FormatFloat(e.Value, 'f', -1, 64))
		sb.WriteString(" = ")
	} else {
		sb.WriteString("no match: ")
	}
	sb.WriteString(e.Description)
	sb.WriteByte('\n')
	for _, d := range e.Details {
		if d != nil {
			d.write(sb, depth+1)
		}
	}
}
