package model

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/rushteam/rescore/core"
	"github.com/rushteam/rescore/pkg/conv"
	"github.com/rushteam/rescore/pkg/dsl"
)

// Formula 是编译后的打分公式，可并发求值。
type Formula interface {
	Eval(infos []core.FeatureInfo) (float64, error)
	String() string
}

// 直接交给 expr 的公式前缀。evalex / fel 是历史定义里的写法。
var exprPrefixes = []string{"expr:", "evalex:", "fel:"}

// CompileFormula 按前缀选择后端编译 calculate：
//   - "sum" 或 "sum:..."，或公式恰好是全部特征相加：直接求和
//   - "cel:": cel-go，每个特征是一个 double 变量
//   - "expr:" / "evalex:" / "fel:": expr-lang
//   - "exp4j:": exp4j 方言，改写后由 expr-lang 求值
//   - 无前缀：先按 exp4j 方言解析，解析不了再按 expr-lang 原样编译
func CompileFormula(calculate string, names []string) (Formula, error) {
	calc := strings.TrimSpace(calculate)
	if calc == "" {
		return nil, core.ConfigurationError(core.ModuleModel, "empty calculate")
	}
	if calc == "sum" || strings.HasPrefix(calc, "sum:") || isSumOf(calc, names) {
		return sumFormula{expr: calc}, nil
	}
	if body, ok := strings.CutPrefix(calc, "cel:"); ok {
		return compileCEL(calc, body, names)
	}
	if body, ok := strings.CutPrefix(calc, "exp4j:"); ok {
		src, err := translateExp4j(body, names)
		if err != nil {
			return nil, core.WrapConfigurationError(core.ModuleModel, fmt.Sprintf("parse calculate %q", calc), err)
		}
		return compileExpr(calc, src, names, exp4jFunctions()...)
	}
	for _, p := range exprPrefixes {
		if body, ok := strings.CutPrefix(calc, p); ok {
			return compileExpr(calc, body, names)
		}
	}
	if src, err := translateExp4j(calc, names); err == nil {
		return compileExpr(calc, src, names, exp4jFunctions()...)
	}
	return compileExpr(calc, calc, names)
}

// isSumOf 判断公式是否恰好是所有特征按顺序相加。
func isSumOf(calc string, names []string) bool {
	if len(names) == 0 {
		return false
	}
	return strings.ReplaceAll(calc, " ", "") == strings.Join(names, "+")
}

type sumFormula struct{ expr string }

func (f sumFormula) String() string { return f.expr }

func (f sumFormula) Eval(infos []core.FeatureInfo) (float64, error) {
	var score float64
	for i := range infos {
		score += infos[i].Value
	}
	return score, nil
}

func bindings(infos []core.FeatureInfo) map[string]any {
	vars := make(map[string]any, len(infos))
	for i := range infos {
		vars[infos[i].Name] = infos[i].Value
	}
	return vars
}

type exprFormula struct {
	expr    string
	program *vm.Program
}

func compileExpr(calc, body string, names []string, extra ...expr.Option) (Formula, error) {
	env := make(map[string]any, len(names))
	for _, n := range names {
		env[n] = 0.0
	}
	opts := append([]expr.Option{expr.Env(env), expr.AsFloat64()}, extra...)
	program, err := expr.Compile(body, opts...)
	if err != nil {
		return nil, core.WrapConfigurationError(core.ModuleModel, fmt.Sprintf("compile calculate %q", calc), err)
	}
	return &exprFormula{expr: calc, program: program}, nil
}

func (f *exprFormula) String() string { return f.expr }

func (f *exprFormula) Eval(infos []core.FeatureInfo) (float64, error) {
	out, err := expr.Run(f.program, bindings(infos))
	if err != nil {
		return 0, fmt.Errorf("eval %q: %w", f.expr, err)
	}
	v, ok := conv.ToFloat64(out)
	if !ok {
		return 0, fmt.Errorf("eval %q: result %T is not a number", f.expr, out)
	}
	return v, nil
}

type celFormula struct {
	expr    string
	program *dsl.Program
}

func compileCEL(calc, body string, names []string) (Formula, error) {
	env, err := dsl.NumberEnv(names)
	if err != nil {
		return nil, core.WrapConfigurationError(core.ModuleModel, "cel env", err)
	}
	program, err := dsl.Compile(env, body)
	if err != nil {
		return nil, core.WrapConfigurationError(core.ModuleModel, fmt.Sprintf("compile calculate %q", calc), err)
	}
	return &celFormula{expr: calc, program: program}, nil
}

func (f *celFormula) String() string { return f.expr }

func (f *celFormula) Eval(infos []core.FeatureInfo) (float64, error) {
	return f.program.EvalFloat(bindings(infos))
}
