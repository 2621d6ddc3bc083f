package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
)

// exp4j 方言是无前缀公式与 "exp4j:" 公式的语法，在常规四则运算与 ^ 之外：
//   - a > b、a < b、a = b 结果为 1 或 0，优先级低于加减
//   - a <: b 取小、a >: b 取大，优先级高于 ^
//   - a // b 在任一操作数为 0 时得 0，否则为 a / b，优先级同比较
//
// translateExp4j 把它改写成全括号的 expr 源码，求值仍交给 expr。

const exp4jFuncPrefix = "exp4j_"

type exp4jOp struct {
	prec  int
	right bool
}

const exp4jUnaryPrec = 5000

var exp4jBinary = map[string]exp4jOp{
	">":  {prec: 499},
	"<":  {prec: 499},
	"=":  {prec: 499},
	"//": {prec: 499},
	"+":  {prec: 500},
	"-":  {prec: 500},
	"*":  {prec: 1000},
	"/":  {prec: 1000},
	"%":  {prec: 1000},
	"^":  {prec: 10000, right: true},
	"<:": {prec: 10001},
	">:": {prec: 10001},
}

var exp4jUnaryFuncs = map[string]func(float64) float64{
	"abs":    math.Abs,
	"acos":   math.Acos,
	"asin":   math.Asin,
	"atan":   math.Atan,
	"cbrt":   math.Cbrt,
	"ceil":   math.Ceil,
	"cos":    math.Cos,
	"cosh":   math.Cosh,
	"exp":    math.Exp,
	"expm1":  math.Expm1,
	"floor":  math.Floor,
	"log":    math.Log,
	"log10":  math.Log10,
	"log1p":  math.Log1p,
	"log2":   math.Log2,
	"sin":    math.Sin,
	"sinh":   math.Sinh,
	"sqrt":   math.Sqrt,
	"tan":    math.Tan,
	"tanh":   math.Tanh,
	"signum": signum,
}

var exp4jBinaryFuncs = map[string]func(float64, float64) float64{
	"pow": math.Pow,
	"min": math.Min,
	"max": math.Max,
	"mod": math.Mod,
	"div": func(a, b float64) float64 {
		if a == 0 || b == 0 {
			return 0
		}
		return a / b
	},
}

var exp4jConstants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

func signum(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// exp4jFunctions 注册改写后源码里用到的函数，参数与结果都是 float64。
func exp4jFunctions() []expr.Option {
	opts := make([]expr.Option, 0, len(exp4jUnaryFuncs)+len(exp4jBinaryFuncs))
	for name, fn := range exp4jUnaryFuncs {
		opts = append(opts, expr.Function(exp4jFuncPrefix+name, func(params ...any) (any, error) {
			return fn(params[0].(float64)), nil
		}, new(func(float64) float64)))
	}
	for name, fn := range exp4jBinaryFuncs {
		opts = append(opts, expr.Function(exp4jFuncPrefix+name, func(params ...any) (any, error) {
			return fn(params[0].(float64), params[1].(float64)), nil
		}, new(func(float64, float64) float64)))
	}
	return opts
}

type exp4jTokenKind int

const (
	exp4jEOF exp4jTokenKind = iota
	exp4jNumber
	exp4jIdent
	exp4jOperator
	exp4jLParen
	exp4jRParen
	exp4jComma
)

type exp4jToken struct {
	kind exp4jTokenKind
	text string
	pos  int
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func lexExp4j(src string) ([]exp4jToken, error) {
	var toks []exp4jToken
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			j := i
			for j < len(src) && (isDigit(src[j]) || src[j] == '.') {
				j++
			}
			if j < len(src) && (src[j] == 'e' || src[j] == 'E') {
				k := j + 1
				if k < len(src) && (src[k] == '+' || src[k] == '-') {
					k++
				}
				if k < len(src) && isDigit(src[k]) {
					for k < len(src) && isDigit(src[k]) {
						k++
					}
					j = k
				}
			}
			toks = append(toks, exp4jToken{kind: exp4jNumber, text: src[i:j], pos: i})
			i = j
		case isIdentStart(c):
			j := i + 1
			for j < len(src) && (isIdentStart(src[j]) || isDigit(src[j])) {
				j++
			}
			toks = append(toks, exp4jToken{kind: exp4jIdent, text: src[i:j], pos: i})
			i = j
		case c == '(':
			toks = append(toks, exp4jToken{kind: exp4jLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, exp4jToken{kind: exp4jRParen, text: ")", pos: i})
			i++
		case c == ',':
			toks = append(toks, exp4jToken{kind: exp4jComma, text: ",", pos: i})
			i++
		default:
			if i+1 < len(src) {
				if _, ok := exp4jBinary[src[i:i+2]]; ok {
					toks = append(toks, exp4jToken{kind: exp4jOperator, text: src[i : i+2], pos: i})
					i += 2
					continue
				}
			}
			if _, ok := exp4jBinary[string(c)]; ok {
				toks = append(toks, exp4jToken{kind: exp4jOperator, text: string(c), pos: i})
				i++
				continue
			}
			return nil, fmt.Errorf("unexpected character %q at %d", c, i)
		}
	}
	return append(toks, exp4jToken{kind: exp4jEOF, pos: len(src)}), nil
}

type exp4jParser struct {
	toks  []exp4jToken
	i     int
	names map[string]bool
}

// translateExp4j 返回与 src 等价的 expr 源码。names 之外的标识符只能是 pi / e 或函数名。
func translateExp4j(src string, names []string) (string, error) {
	toks, err := lexExp4j(src)
	if err != nil {
		return "", err
	}
	p := &exp4jParser{toks: toks, names: make(map[string]bool, len(names))}
	for _, n := range names {
		p.names[n] = true
	}
	out, err := p.parse(0)
	if err != nil {
		return "", err
	}
	if t := p.peek(); t.kind != exp4jEOF {
		return "", fmt.Errorf("unexpected %q at %d", t.text, t.pos)
	}
	return out, nil
}

func (p *exp4jParser) peek() exp4jToken { return p.toks[p.i] }

func (p *exp4jParser) next() exp4jToken {
	t := p.toks[p.i]
	if t.kind != exp4jEOF {
		p.i++
	}
	return t
}

func (p *exp4jParser) parse(minPrec int) (string, error) {
	left, err := p.unary()
	if err != nil {
		return "", err
	}
	for {
		t := p.peek()
		if t.kind != exp4jOperator {
			return left, nil
		}
		op := exp4jBinary[t.text]
		if op.prec < minPrec {
			return left, nil
		}
		p.next()
		nextPrec := op.prec + 1
		if op.right {
			nextPrec = op.prec
		}
		right, err := p.parse(nextPrec)
		if err != nil {
			return "", err
		}
		left = emitExp4jBinary(t.text, left, right)
	}
}

func emitExp4jBinary(op, l, r string) string {
	switch op {
	case ">", "<":
		return "(" + l + " " + op + " " + r + " ? 1.0 : 0.0)"
	case "=":
		return "(" + l + " == " + r + " ? 1.0 : 0.0)"
	case "^":
		return "(" + l + " ** " + r + ")"
	case "%":
		return exp4jFuncPrefix + "mod(" + l + ", " + r + ")"
	case "//":
		return exp4jFuncPrefix + "div(" + l + ", " + r + ")"
	case "<:":
		return exp4jFuncPrefix + "min(" + l + ", " + r + ")"
	case ">:":
		return exp4jFuncPrefix + "max(" + l + ", " + r + ")"
	}
	return "(" + l + " " + op + " " + r + ")"
}

func (p *exp4jParser) unary() (string, error) {
	t := p.peek()
	if t.kind == exp4jOperator && (t.text == "-" || t.text == "+") {
		p.next()
		operand, err := p.parse(exp4jUnaryPrec)
		if err != nil {
			return "", err
		}
		if t.text == "+" {
			return operand, nil
		}
		return "(-" + operand + ")", nil
	}
	return p.primary()
}

func (p *exp4jParser) primary() (string, error) {
	t := p.next()
	switch t.kind {
	case exp4jNumber:
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return "", fmt.Errorf("bad number %q at %d", t.text, t.pos)
		}
		return floatLiteral(v), nil
	case exp4jIdent:
		if p.peek().kind == exp4jLParen {
			return p.call(t)
		}
		if p.names[t.text] {
			return t.text, nil
		}
		if v, ok := exp4jConstants[t.text]; ok {
			return floatLiteral(v), nil
		}
		return "", fmt.Errorf("unknown variable %q at %d", t.text, t.pos)
	case exp4jLParen:
		inner, err := p.parse(0)
		if err != nil {
			return "", err
		}
		if r := p.next(); r.kind != exp4jRParen {
			return "", fmt.Errorf("missing ')' at %d", r.pos)
		}
		return "(" + inner + ")", nil
	case exp4jEOF:
		return "", fmt.Errorf("unexpected end of formula")
	}
	return "", fmt.Errorf("unexpected %q at %d", t.text, t.pos)
}

func (p *exp4jParser) call(name exp4jToken) (string, error) {
	arity := 0
	if _, ok := exp4jUnaryFuncs[name.text]; ok {
		arity = 1
	} else if _, ok := exp4jBinaryFuncs[name.text]; ok && name.text != "div" && name.text != "mod" {
		arity = 2
	} else {
		return "", fmt.Errorf("unknown function %q at %d", name.text, name.pos)
	}
	p.next() // (
	args := make([]string, 0, arity)
	for {
		arg, err := p.parse(0)
		if err != nil {
			return "", err
		}
		args = append(args, arg)
		t := p.next()
		if t.kind == exp4jRParen {
			break
		}
		if t.kind != exp4jComma {
			return "", fmt.Errorf("expected ',' or ')' at %d", t.pos)
		}
	}
	if len(args) != arity {
		return "", fmt.Errorf("function %s takes %d argument(s), got %d", name.text, arity, len(args))
	}
	return exp4jFuncPrefix + name.text + "(" + strings.Join(args, ", ") + ")", nil
}

// floatLiteral 保证字面量在 expr 中是 float64。
func floatLiteral(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
