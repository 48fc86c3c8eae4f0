package formula

// DefaultMaxDepth bounds AST nesting so a pathological formula cannot
// blow the stack or make parse/eval cost unbounded.
const DefaultMaxDepth = 64

// reserved identifiers that would suggest statement-like syntax. They are
// rejected outright rather than treated as unbound variables so the
// author gets a precise "not allowed" error.
var reservedWords = map[string]bool{
	"if": true, "else": true, "for": true, "while": true, "do": true,
	"func": true, "function": true, "return": true, "var": true,
	"let": true, "const": true, "new": true, "import": true, "eval": true,
}

// Parse tokenizes and parses a formula into an AST with the default
// nesting depth limit.
func Parse(src string) (Node, error) {
	return ParseDepth(src, DefaultMaxDepth)
}

// ParseDepth parses with an explicit nesting depth limit.
func ParseDepth(src string, maxDepth int) (Node, error) {
	toks, lerr := lex(src)
	if lerr != nil {
		return nil, lerr
	}
	p := &parser{toks: toks, maxDepth: maxDepth}
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, errf(KindSyntax, tok.pos, "unexpected trailing input %q", tok.text)
	}
	return n, nil
}

type parser struct {
	toks     []token
	pos      int
	depth    int
	maxDepth int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) enter() *Error {
	p.depth++
	if p.depth > p.maxDepth {
		return errf(KindSyntax, p.peek().pos, "formula exceeds maximum nesting depth %d", p.maxDepth)
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

// Binary operator precedence, lowest first. ^ is handled in parsePower
// (right-associative), unary in parseUnary.
var precedence = map[string]int{
	"||": 1,
	"&&": 2,
	"==": 3, "!=": 3,
	"<": 4, "<=": 4, ">": 4, ">=": 4,
	"+": 5, "-": 5,
	"*": 6, "/": 6, "%": 6,
}

func (p *parser) parseExpr() (Node, *Error) {
	return p.parseBinary(1)
}

func (p *parser) parseBinary(minPrec int) (Node, *Error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokOp {
			return left, nil
		}
		prec, ok := precedence[tok.text]
		if !ok || prec < minPrec {
			return left, nil
		}
		p.next()
		right, err := p.parseBinary(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: tok.text, Left: left, Right: right, Pos: tok.pos}
	}
}

func (p *parser) parseUnary() (Node, *Error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	tok := p.peek()
	if tok.kind == tokOp && (tok.text == "-" || tok.text == "!") {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: tok.text, X: x}, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (Node, *Error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	tok := p.peek()
	if tok.kind == tokOp && tok.text == "^" {
		p.next()
		// right-associative: 2^3^2 == 2^(3^2)
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Binary{Op: "^", Left: base, Right: exp, Pos: tok.pos}, nil
	}
	return base, nil
}

func (p *parser) parsePrimary() (Node, *Error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	tok := p.next()
	switch tok.kind {
	case tokNumber:
		return &Literal{Value: tok.num}, nil

	case tokString:
		return &Literal{Value: tok.text}, nil

	case tokIdent:
		switch tok.text {
		case "true":
			return &Literal{Value: true}, nil
		case "false":
			return &Literal{Value: false}, nil
		case "null":
			return &Literal{Value: nil}, nil
		}
		if reservedWords[tok.text] {
			return nil, errf(KindDisallowedToken, tok.pos, "keyword %q is not allowed in formulas", tok.text)
		}
		if next := p.peek(); next.kind == tokOp && next.text == "(" {
			return p.parseCall(tok)
		}
		return &Variable{Name: tok.text, Pos: tok.pos}, nil

	case tokOp:
		if tok.text == "(" {
			inner, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if close := p.next(); close.kind != tokOp || close.text != ")" {
				return nil, errf(KindSyntax, close.pos, "expected closing parenthesis")
			}
			return inner, nil
		}
		return nil, errf(KindSyntax, tok.pos, "unexpected operator %q", tok.text)

	default:
		return nil, errf(KindSyntax, tok.pos, "unexpected end of formula")
	}
}

func (p *parser) parseCall(fn token) (Node, *Error) {
	if _, ok := builtins[fn.text]; !ok {
		return nil, errf(KindDisallowedToken, fn.pos, "function %q is not in the whitelist", fn.text)
	}
	p.next() // consume "("

	var args []Node
	if tok := p.peek(); tok.kind == tokOp && tok.text == ")" {
		p.next()
		return &Call{Fn: fn.text, Args: nil, Pos: fn.pos}, nil
	}
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		tok := p.next()
		if tok.kind == tokOp && tok.text == "," {
			continue
		}
		if tok.kind == tokOp && tok.text == ")" {
			break
		}
		return nil, errf(KindSyntax, tok.pos, "expected ',' or ')' in argument list")
	}
	return &Call{Fn: fn.text, Args: args, Pos: fn.pos}, nil
}
