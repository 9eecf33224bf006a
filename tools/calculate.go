package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/nachoal/kitgpt-go/tools/base"
)

// CalculateParams defines the parameters for the calculate tool
type CalculateParams struct {
	Expression string `json:"expression" schema:"required" description:"Mathematical expression to evaluate, e.g. (2+3)*sqrt(16)"`
}

// CalculateTool evaluates mathematical expressions and posts the result to the chat
type CalculateTool struct {
	base.BaseTool
}

// NewCalculateTool creates the calculate tool
func NewCalculateTool() *CalculateTool {
	return &CalculateTool{
		BaseTool: base.BaseTool{
			ToolName:    "calculate",
			ToolDesc:    "Evaluate a mathematical expression. Supports + - * / ^, parentheses, sqrt, sin, cos, tan, log, ln, abs and the constants pi and e.",
			ToolDisplay: "Calculating...",
		},
	}
}

// Parameters returns the parameters struct
func (t *CalculateTool) Parameters() interface{} {
	return &CalculateParams{}
}

// Execute evaluates the expression and sends the result as a new message
func (t *CalculateTool) Execute(ctx context.Context, chat ChatControls, params interface{}) error {
	args, ok := params.(*CalculateParams)
	if !ok {
		return NewToolError("INVALID_PARAMS", "unexpected parameter type").
			WithDetail("type", fmt.Sprintf("%T", params))
	}

	expr := strings.TrimSpace(args.Expression)
	if expr == "" {
		return NewToolError("EMPTY_EXPRESSION", "Expression cannot be empty")
	}

	result, err := Evaluate(expr)
	if err != nil {
		return NewToolError("EVALUATION_ERROR", "Failed to evaluate expression").
			WithDetail("expression", expr).
			Wrap(err)
	}

	chat.Send(fmt.Sprintf("%s = %s", expr, strconv.FormatFloat(result, 'g', -1, 64)))
	return nil
}

var functions = map[string]func(float64) float64{
	"sqrt": math.Sqrt,
	"sin":  math.Sin,
	"cos":  math.Cos,
	"tan":  math.Tan,
	"log":  math.Log10,
	"ln":   math.Log,
	"abs":  math.Abs,
}

var constants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

// Evaluate computes an arithmetic expression with the usual precedence.
// ^ is right-associative and binds tighter than unary minus.
func Evaluate(expr string) (float64, error) {
	p := &parser{src: expr}
	v, err := p.expression()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return 0, fmt.Errorf("unexpected %q at position %d", p.src[p.pos], p.pos)
	}
	return v, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *parser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) expression() (float64, error) {
	left, err := p.term()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.term()
			if err != nil {
				return 0, err
			}
			left += right
		case '-':
			p.pos++
			right, err := p.term()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *parser) term() (float64, error) {
	left, err := p.unary()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.unary()
			if err != nil {
				return 0, err
			}
			left *= right
		case '/':
			p.pos++
			right, err := p.unary()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		default:
			return left, nil
		}
	}
}

func (p *parser) unary() (float64, error) {
	switch p.peek() {
	case '-':
		p.pos++
		v, err := p.unary()
		return -v, err
	case '+':
		p.pos++
		return p.unary()
	}
	return p.power()
}

func (p *parser) power() (float64, error) {
	base, err := p.primary()
	if err != nil {
		return 0, err
	}
	if p.peek() == '^' {
		p.pos++
		exp, err := p.unary()
		if err != nil {
			return 0, err
		}
		return math.Pow(base, exp), nil
	}
	return base, nil
}

func (p *parser) primary() (float64, error) {
	c := p.peek()
	switch {
	case c == '(':
		p.pos++
		v, err := p.expression()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	case c == '.' || (c >= '0' && c <= '9'):
		start := p.pos
		for p.pos < len(p.src) && (p.src[p.pos] == '.' || (p.src[p.pos] >= '0' && p.src[p.pos] <= '9')) {
			p.pos++
		}
		return strconv.ParseFloat(p.src[start:p.pos], 64)
	case unicode.IsLetter(rune(c)):
		start := p.pos
		for p.pos < len(p.src) && unicode.IsLetter(rune(p.src[p.pos])) {
			p.pos++
		}
		name := strings.ToLower(p.src[start:p.pos])
		if fn, ok := functions[name]; ok {
			if p.peek() != '(' {
				return 0, fmt.Errorf("%s requires parentheses", name)
			}
			arg, err := p.primary()
			if err != nil {
				return 0, err
			}
			return fn(arg), nil
		}
		if v, ok := constants[name]; ok {
			return v, nil
		}
		return 0, fmt.Errorf("unknown identifier %q", name)
	case c == 0:
		return 0, fmt.Errorf("unexpected end of expression")
	}
	return 0, fmt.Errorf("unexpected %q at position %d", c, p.pos)
}
