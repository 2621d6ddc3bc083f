// Package dsl 封装 CEL (Common Expression Language) 的编译与求值。
//
// CEL 是 Google 开发的表达式语言，具有类型安全、高性能、线程安全等特性。
// 编译后的 Program 可被多个 goroutine 复用，每次求值只需要提供新的变量绑定。
package dsl

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/rushteam/rescore/pkg/conv"
)

var (
	// docEnv 是检索文档表达式使用的全局 CEL 环境，线程安全，可复用
	docEnv     *cel.Env
	docEnvErr  error
	docEnvOnce sync.Once
)

// DocEnv 返回文档表达式环境：
//   - doc: 当前文档的字段（map，包含 id）
//   - efi: 外部特征参数（map[string]string）
func DocEnv() (*cel.Env, error) {
	docEnvOnce.Do(func() {
		docEnv, docEnvErr = cel.NewEnv(
			cel.Variable("doc", cel.MapType(cel.StringType, cel.DynType)),
			cel.Variable("efi", cel.MapType(cel.StringType, cel.StringType)),
		)
	})
	return docEnv, docEnvErr
}

// NumberEnv 创建一个把 names 中每个名字声明为 double 变量的环境，供公式求值使用。
func NumberEnv(names []string) (*cel.Env, error) {
	opts := make([]cel.EnvOption, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		opts = append(opts, cel.Variable(n, cel.DoubleType))
	}
	return cel.NewEnv(opts...)
}

// Program 是编译好的表达式。
type Program struct {
	expr string
	prg  cel.Program
}

// Compile 在 env 中编译表达式。
func Compile(env *cel.Env, expr string) (*Program, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("compile error: empty expression")
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %v", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %v", err)
	}
	return &Program{expr: expr, prg: prg}, nil
}

func (p *Program) String() string { return p.expr }

func (p *Program) eval(vars map[string]any) (ref.Val, error) {
	out, _, err := p.prg.Eval(vars)
	if err != nil {
		return nil, fmt.Errorf("eval error: %v", err)
	}
	return out, nil
}

// EvalFloat 求值并转为 float64；bool 视为 1/0。
func (p *Program) EvalFloat(vars map[string]any) (float64, error) {
	out, err := p.eval(vars)
	if err != nil {
		return 0, err
	}
	f, ok := conv.ToFloat64(out.Value())
	if !ok {
		return 0, fmt.Errorf("expression must return number, got %T", out.Value())
	}
	return f, nil
}

// EvalBool 求值并要求布尔结果。
func (p *Program) EvalBool(vars map[string]any) (bool, error) {
	out, err := p.eval(vars)
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return b, nil
}

// EvalString 求值并转为字符串；数字按最短形式格式化。
func (p *Program) EvalString(vars map[string]any) (string, error) {
	out, err := p.eval(vars)
	if err != nil {
		return "", err
	}
	if out.Type() == types.NullType {
		return "", nil
	}
	switch v := out.Value().(type) {
	case string:
		return v, nil
	default:
		if f, ok := conv.ToFloat64(v); ok {
			return fmt.Sprint(f), nil
		}
		return fmt.Sprint(v), nil
	}
}
