package ir

import (
	"bufio"
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"tlog.app/go/errors"
)

type (
	parser struct {
		name string
		line int

		toks []token
		i    int

		m   *Module
		f   *Func
		blk *Block
		loc Pos
	}

	token struct {
		kind tokKind
		text string
	}

	tokKind int8
)

const (
	tokEOF tokKind = iota
	tokIdent
	tokTemp
	tokGlobal
	tokNumber
	tokString
	tokPunct
)

// Parse reads the textual form produced by Module.AppendText.
func Parse(name string, text []byte) (m *Module, err error) {
	p := &parser{name: name}

	sc := bufio.NewScanner(bytes.NewReader(text))
	sc.Buffer(nil, 1<<20)

	for sc.Scan() {
		p.line++

		p.toks, err = lex(sc.Text())
		if err != nil {
			return nil, p.wrap(err)
		}

		p.i = 0

		if len(p.toks) == 0 {
			continue
		}

		err = p.parseLine()
		if err != nil {
			return nil, err
		}
	}

	if err = sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read %v", name)
	}

	if p.m == nil {
		return nil, errors.New("%v: missing module header", name)
	}

	if p.f != nil {
		return nil, errors.New("%v: unterminated function @%s", name, p.f.Name)
	}

	return p.m, nil
}

func (p *parser) parseLine() error {
	if p.m == nil {
		if !p.ident("module") {
			return p.errorf("expected module header")
		}

		s, err := p.expect(tokString)
		if err != nil {
			return err
		}

		name, err := strconv.Unquote(s)
		if err != nil {
			return p.errorf("bad module name: %v", err)
		}

		p.m = &Module{Name: name}

		return p.end()
	}

	if p.f == nil {
		switch {
		case p.ident("extern"):
			return p.parseExtern()
		case p.ident("func"):
			return p.parseFuncHeader()
		default:
			return p.errorf("expected extern or func, got %q", p.peek().text)
		}
	}

	switch t := p.peek(); {
	case t.kind == tokPunct && t.text == "}":
		p.next()
		p.f.NextID = nextID(p.f)
		p.f, p.blk = nil, nil

		return p.end()
	case t.kind == tokIdent && t.text == ".loc":
		p.next()
		return p.parseLoc()
	case t.kind == tokIdent && p.lastPunct(":"):
		return p.parseBlockHeader()
	}

	if p.blk == nil {
		return p.errorf("instruction outside block")
	}

	in, err := p.parseInstr()
	if err != nil {
		return err
	}

	in.Loc = p.loc
	p.blk.Code = append(p.blk.Code, in)

	return nil
}

func (p *parser) parseExtern() error {
	name, err := p.expect(tokGlobal)
	if err != nil {
		return err
	}

	e := &Extern{Name: name}

	if err = p.punct("("); err != nil {
		return err
	}

	for !p.isPunct(")") {
		if len(e.Params) != 0 {
			if err = p.punct(","); err != nil {
				return err
			}
		}

		t, err := p.typ()
		if err != nil {
			return err
		}

		e.Params = append(e.Params, t)
	}

	p.next()

	e.Ret, err = p.arrowType()
	if err != nil {
		return err
	}

	p.m.Externs = append(p.m.Externs, e)

	return p.end()
}

func (p *parser) parseFuncHeader() (err error) {
	name, err := p.expect(tokGlobal)
	if err != nil {
		return err
	}

	f := &Func{Name: name}

	if err = p.punct("("); err != nil {
		return err
	}

	f.Params, err = p.params()
	if err != nil {
		return err
	}

	f.Ret, err = p.arrowType()
	if err != nil {
		return err
	}

	if err = p.punct("{"); err != nil {
		return err
	}

	p.m.Funcs = append(p.m.Funcs, f)
	p.f = f
	p.blk = nil

	return p.end()
}

func (p *parser) parseBlockHeader() (err error) {
	label := p.next().text

	b := &Block{Label: label}

	if p.isPunct("(") {
		p.next()

		b.Params, err = p.params()
		if err != nil {
			return err
		}
	}

	if err = p.punct(":"); err != nil {
		return err
	}

	p.f.Blocks = append(p.f.Blocks, b)
	p.blk = b
	p.loc = Pos{}

	return p.end()
}

func (p *parser) parseLoc() error {
	line, err := p.number()
	if err != nil {
		return err
	}

	col, err := p.number()
	if err != nil {
		return err
	}

	p.loc = Pos{Line: int(line), Col: int(col)}

	return p.end()
}

func (p *parser) parseInstr() (in *Instr, err error) {
	in = &Instr{Result: NoValue}

	if p.peek().kind == tokTemp {
		id, err := p.temp()
		if err != nil {
			return nil, err
		}

		if err = p.punct("="); err != nil {
			return nil, err
		}

		in.Result = id
	}

	name, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}

	op, ok := LookupOp(name)
	if !ok {
		return nil, p.errorf("unknown opcode %q", name)
	}

	in.Op = op

	switch c := op.Class(); {
	case c == ClassIntArith, c == ClassFloatArith, c == ClassIntCmp, c == ClassFloatCmp:
		if in.Type, err = p.typ(); err != nil {
			return nil, err
		}

		in.Args, err = p.values(2)
	case c == ClassConv:
		if in.Type, err = p.typ(); err != nil {
			return nil, err
		}

		in.Args, err = p.values(1)
	case op == Load:
		if in.Type, err = p.typ(); err != nil {
			return nil, err
		}

		in.Args, err = p.values(1)
	case op == Store:
		if in.Type, err = p.typ(); err != nil {
			return nil, err
		}

		in.Args, err = p.values(2)
	case op == Alloca:
		in.Type = Ptr
		in.Args, err = p.values(1)
	case op == GEP:
		in.Type = Ptr
		in.Args, err = p.values(2)
	case op == IdxChk:
		in.Type = I64
		in.Args, err = p.values(2)
	case op == ConstNull:
		in.Type = Ptr
	case op == ConstStr:
		in.Type = Str

		s, err := p.expect(tokString)
		if err != nil {
			return nil, err
		}

		if in.Str, err = strconv.Unquote(s); err != nil {
			return nil, p.errorf("bad string literal: %v", err)
		}
	case op == Call:
		err = p.parseCall(in)
	case op == Br:
		var t Target

		t, err = p.target()
		in.Targets = []Target{t}
	case op == CBr:
		err = p.parseCBr(in)
	case op == Ret:
		if p.peek().kind != tokEOF {
			in.Args, err = p.values(1)
		}
	case op == Trap:
		in.Str, err = p.expect(tokIdent)
	}

	if err != nil {
		return nil, err
	}

	return in, p.end()
}

func (p *parser) parseCall(in *Instr) (err error) {
	if in.Type, err = p.typ(); err != nil {
		return err
	}

	if in.Callee, err = p.expect(tokGlobal); err != nil {
		return err
	}

	if err = p.punct("("); err != nil {
		return err
	}

	in.Args, err = p.valueList(")")

	return err
}

func (p *parser) parseCBr(in *Instr) (err error) {
	in.Args, err = p.values(1)
	if err != nil {
		return err
	}

	for i := 0; i < 2; i++ {
		if err = p.punct(","); err != nil {
			return err
		}

		t, err := p.target()
		if err != nil {
			return err
		}

		in.Targets = append(in.Targets, t)
	}

	return nil
}

func (p *parser) target() (t Target, err error) {
	t.Label, err = p.expect(tokIdent)
	if err != nil {
		return t, err
	}

	if !p.isPunct("(") {
		return t, nil
	}

	p.next()

	t.Args, err = p.valueList(")")

	return t, err
}

func (p *parser) params() (l []Param, err error) {
	for !p.isPunct(")") {
		if len(l) != 0 {
			if err = p.punct(","); err != nil {
				return nil, err
			}
		}

		id, err := p.temp()
		if err != nil {
			return nil, err
		}

		if err = p.punct(":"); err != nil {
			return nil, err
		}

		t, err := p.typ()
		if err != nil {
			return nil, err
		}

		l = append(l, Param{ID: id, Type: t})
	}

	p.next()

	return l, nil
}

// values reads exactly n comma separated operands.
func (p *parser) values(n int) (l []Value, err error) {
	for i := 0; i < n; i++ {
		if i != 0 {
			if err = p.punct(","); err != nil {
				return nil, err
			}
		}

		v, err := p.value()
		if err != nil {
			return nil, err
		}

		l = append(l, v)
	}

	return l, nil
}

func (p *parser) valueList(closing string) (l []Value, err error) {
	for !p.isPunct(closing) {
		if len(l) != 0 {
			if err = p.punct(","); err != nil {
				return nil, err
			}
		}

		v, err := p.value()
		if err != nil {
			return nil, err
		}

		l = append(l, v)
	}

	p.next()

	return l, nil
}

func (p *parser) value() (Value, error) {
	t := p.next()

	switch t.kind {
	case tokTemp:
		id, err := strconv.Atoi(t.text)
		if err != nil {
			return Value{}, p.errorf("bad register %%%s", t.text)
		}

		return Temp(ValueID(id)), nil
	case tokNumber:
		if isFloatLit(t.text) {
			f, err := strconv.ParseFloat(t.text, 64)
			if err != nil {
				return Value{}, p.errorf("bad float literal %q", t.text)
			}

			return Float(f), nil
		}

		x, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return Value{}, p.errorf("bad integer literal %q", t.text)
		}

		return Int(x), nil
	case tokIdent:
		switch t.text {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		case "null":
			return Null(), nil
		case "NaN":
			return Float(math.NaN()), nil
		}
	}

	return Value{}, p.errorf("expected operand, got %q", t.text)
}

func (p *parser) temp() (ValueID, error) {
	s, err := p.expect(tokTemp)
	if err != nil {
		return 0, err
	}

	id, err := strconv.Atoi(s)
	if err != nil || id < 0 {
		return 0, p.errorf("bad register %%%s", s)
	}

	return ValueID(id), nil
}

func (p *parser) number() (int64, error) {
	s, err := p.expect(tokNumber)
	if err != nil {
		return 0, err
	}

	return strconv.ParseInt(s, 10, 64)
}

func (p *parser) typ() (Type, error) {
	s, err := p.expect(tokIdent)
	if err != nil {
		return Void, err
	}

	t, err := ParseType(s)
	if err != nil {
		return Void, p.wrap(err)
	}

	return t, nil
}

func (p *parser) arrowType() (Type, error) {
	if err := p.punct("-"); err != nil {
		return Void, err
	}

	if err := p.punct(">"); err != nil {
		return Void, err
	}

	return p.typ()
}

func (p *parser) peek() token {
	if p.i >= len(p.toks) {
		return token{kind: tokEOF}
	}

	return p.toks[p.i]
}

func (p *parser) next() token {
	t := p.peek()
	if p.i < len(p.toks) {
		p.i++
	}

	return t
}

func (p *parser) ident(s string) bool {
	if t := p.peek(); t.kind == tokIdent && t.text == s {
		p.i++
		return true
	}

	return false
}

func (p *parser) isPunct(s string) bool {
	t := p.peek()
	return t.kind == tokPunct && t.text == s
}

func (p *parser) lastPunct(s string) bool {
	t := p.toks[len(p.toks)-1]
	return t.kind == tokPunct && t.text == s
}

func (p *parser) punct(s string) error {
	if !p.isPunct(s) {
		return p.errorf("expected %q, got %q", s, p.peek().text)
	}

	p.i++

	return nil
}

func (p *parser) expect(k tokKind) (string, error) {
	t := p.peek()
	if t.kind != k {
		return "", p.errorf("expected %v, got %q", k, t.text)
	}

	p.i++

	return t.text, nil
}

func (p *parser) end() error {
	if p.peek().kind != tokEOF {
		return p.errorf("unexpected %q", p.peek().text)
	}

	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return errors.New("%v:%d: %s", p.name, p.line, fmt.Sprintf(format, args...))
}

func (p *parser) wrap(err error) error {
	return errors.Wrap(err, "%v:%d", p.name, p.line)
}

func (k tokKind) String() string {
	switch k {
	case tokIdent:
		return "identifier"
	case tokTemp:
		return "register"
	case tokGlobal:
		return "@name"
	case tokNumber:
		return "number"
	case tokString:
		return "string"
	case tokPunct:
		return "punctuation"
	default:
		return "end of line"
	}
}

func lex(line string) (l []token, err error) {
	for i := 0; i < len(line); {
		c := line[i]

		switch {
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == ';':
			return l, nil
		case c == '"':
			j := i + 1
			for j < len(line) && line[j] != '"' {
				if line[j] == '\\' {
					j++
				}

				j++
			}

			if j >= len(line) {
				return nil, errors.New("unterminated string")
			}

			l = append(l, token{kind: tokString, text: line[i : j+1]})
			i = j + 1
		case c == '%' || c == '@':
			j := identEnd(line, i+1)
			if j == i+1 {
				return nil, errors.New("empty name after %q", c)
			}

			k := tokTemp
			if c == '@' {
				k = tokGlobal
			}

			l = append(l, token{kind: k, text: line[i+1 : j]})
			i = j
		case isDigit(c) || (c == '-' || c == '+') && i+1 < len(line) && (isDigit(line[i+1]) || line[i+1] == 'I'):
			j := i + 1
			for j < len(line) && (isIdentChar(line[j]) || (line[j] == '+' || line[j] == '-') && (line[j-1] == 'e' || line[j-1] == 'E')) {
				j++
			}

			l = append(l, token{kind: tokNumber, text: line[i:j]})
			i = j
		case isIdentChar(c):
			j := identEnd(line, i)
			l = append(l, token{kind: tokIdent, text: line[i:j]})
			i = j
		case strings.IndexByte("(){},:=->", c) >= 0:
			l = append(l, token{kind: tokPunct, text: line[i : i+1]})
			i++
		default:
			return nil, errors.New("unexpected character %q", c)
		}
	}

	return l, nil
}

func identEnd(s string, i int) int {
	for i < len(s) && isIdentChar(s[i]) {
		i++
	}

	return i
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || isDigit(c) || c == '_' || c == '.' || c == '$'
}

func isFloatLit(s string) bool {
	return strings.ContainsAny(s, ".eEIN")
}

func nextID(f *Func) ValueID {
	var n ValueID

	use := func(id ValueID) {
		if id >= n {
			n = id + 1
		}
	}

	for _, p := range f.Params {
		use(p.ID)
	}

	for _, b := range f.Blocks {
		for _, p := range b.Params {
			use(p.ID)
		}

		for _, in := range b.Code {
			if in.Defines() {
				use(in.Result)
			}
		}
	}

	return n
}
