package loader

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/Harshitk-cp/marginal/internal/network"
)

var ErrSyntax = errors.New("syntax error")

// SyntaxError reports malformed BIF input.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("bif: line %d: %s", e.Line, e.Msg)
}

func (e *SyntaxError) Is(target error) bool { return target == ErrSyntax }

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokSymbol
	tokString
)

type token struct {
	kind tokenKind
	text string
	line int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokString:
		return strconv.Quote(t.text)
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

const symbols = "{}[]()|,;"

type lexer struct {
	src  []rune
	pos  int
	line int
}

func (l *lexer) skip() error {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\n':
			l.line++
			l.pos++
		case unicode.IsSpace(c):
			l.pos++
		case c == '/' && l.peekAt(1) == '*':
			start := l.line
			l.pos += 2
			for {
				if l.pos >= len(l.src) {
					return &SyntaxError{Line: start, Msg: "unterminated comment"}
				}
				if l.src[l.pos] == '*' && l.peekAt(1) == '/' {
					l.pos += 2
					break
				}
				if l.src[l.pos] == '\n' {
					l.line++
				}
				l.pos++
			}
		case c == '/' && l.peekAt(1) == '/':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		default:
			return nil
		}
	}
	return nil
}

func (l *lexer) peekAt(off int) rune {
	if l.pos+off < len(l.src) {
		return l.src[l.pos+off]
	}
	return 0
}

func (l *lexer) next() (token, error) {
	if err := l.skip(); err != nil {
		return token{}, err
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, line: l.line}, nil
	}

	c := l.src[l.pos]
	switch {
	case strings.ContainsRune(symbols, c):
		l.pos++
		return token{kind: tokSymbol, text: string(c), line: l.line}, nil
	case c == '"':
		start := l.line
		l.pos++
		var b strings.Builder
		for {
			if l.pos >= len(l.src) {
				return token{}, &SyntaxError{Line: start, Msg: "unterminated string"}
			}
			r := l.src[l.pos]
			l.pos++
			if r == '"' {
				return token{kind: tokString, text: b.String(), line: start}, nil
			}
			if r == '\n' {
				l.line++
			}
			b.WriteRune(r)
		}
	default:
		start := l.pos
		for l.pos < len(l.src) {
			r := l.src[l.pos]
			if unicode.IsSpace(r) || r == '"' || strings.ContainsRune(symbols, r) {
				break
			}
			if r == '/' && (l.peekAt(1) == '*' || l.peekAt(1) == '/') {
				break
			}
			l.pos++
		}
		return token{kind: tokWord, text: string(l.src[start:l.pos]), line: l.line}, nil
	}
}

// bifParser is a recursive descent parser with one token of lookahead.
type bifParser struct {
	lex    *lexer
	tok    token
	def    network.Definition
	decl   map[string]*network.VariableSpec
	blocks map[string]*probBlock
	order  []string
}

type probBlock struct {
	line     int
	child    string
	parents  []string
	rows     []probRow
	table    []float64
	fallback []float64
	props    map[string]string
}

type probRow struct {
	line   int
	labels []string
	values []float64
}

// ParseBIF reads a network in the Bayesian Interchange Format.
func ParseBIF(data []byte) (network.Definition, error) {
	p := &bifParser{
		lex:    &lexer{src: []rune(string(data)), line: 1},
		decl:   make(map[string]*network.VariableSpec),
		blocks: make(map[string]*probBlock),
	}
	if err := p.advance(); err != nil {
		return network.Definition{}, err
	}
	if err := p.parse(); err != nil {
		return network.Definition{}, err
	}
	return p.assemble()
}

func (p *bifParser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *bifParser) errorf(format string, args ...any) error {
	return &SyntaxError{Line: p.tok.line, Msg: fmt.Sprintf(format, args...)}
}

func (p *bifParser) expect(sym string) error {
	if p.tok.kind != tokSymbol || p.tok.text != sym {
		return p.errorf("expected %q, found %s", sym, p.tok)
	}
	return p.advance()
}

func (p *bifParser) accept(sym string) (bool, error) {
	if p.tok.kind == tokSymbol && p.tok.text == sym {
		return true, p.advance()
	}
	return false, nil
}

func (p *bifParser) name() (string, error) {
	if p.tok.kind != tokWord && p.tok.kind != tokString {
		return "", p.errorf("expected a name, found %s", p.tok)
	}
	s := p.tok.text
	return s, p.advance()
}

func (p *bifParser) keyword(kw string) (bool, error) {
	if p.tok.kind == tokWord && p.tok.text == kw {
		return true, p.advance()
	}
	return false, nil
}

func (p *bifParser) parse() error {
	for p.tok.kind != tokEOF {
		if p.tok.kind != tokWord {
			return p.errorf("expected a block, found %s", p.tok)
		}
		var err error
		switch p.tok.text {
		case "network":
			err = p.networkBlock()
		case "variable":
			err = p.variableBlock()
		case "probability":
			err = p.probabilityBlock()
		default:
			err = p.errorf("unknown block %s", p.tok)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *bifParser) networkBlock() error {
	if err := p.advance(); err != nil {
		return err
	}
	name, err := p.name()
	if err != nil {
		return err
	}
	p.def.Name = name
	if err := p.expect("{"); err != nil {
		return err
	}
	for {
		if ok, err := p.accept("}"); ok || err != nil {
			return err
		}
		ok, err := p.keyword("property")
		if err != nil {
			return err
		}
		if !ok {
			return p.errorf("expected property or '}', found %s", p.tok)
		}
		if p.def.Properties == nil {
			p.def.Properties = make(map[string]string)
		}
		if err := p.property(p.def.Properties); err != nil {
			return err
		}
	}
}

func (p *bifParser) variableBlock() error {
	line := p.tok.line
	if err := p.advance(); err != nil {
		return err
	}
	name, err := p.name()
	if err != nil {
		return err
	}
	if _, dup := p.decl[name]; dup {
		return &SyntaxError{Line: line, Msg: fmt.Sprintf("variable %q declared twice", name)}
	}
	spec := &network.VariableSpec{Name: name}
	if err := p.expect("{"); err != nil {
		return err
	}

	sawType := false
	for {
		if ok, err := p.accept("}"); err != nil {
			return err
		} else if ok {
			break
		}
		if ok, err := p.keyword("property"); err != nil {
			return err
		} else if ok {
			if spec.Properties == nil {
				spec.Properties = make(map[string]string)
			}
			if err := p.property(spec.Properties); err != nil {
				return err
			}
			continue
		}
		if ok, err := p.keyword("type"); err != nil {
			return err
		} else if !ok {
			return p.errorf("expected type, property or '}', found %s", p.tok)
		}
		if err := p.variableType(spec); err != nil {
			return err
		}
		sawType = true
	}
	if !sawType {
		return &SyntaxError{Line: line, Msg: fmt.Sprintf("variable %q has no type", name)}
	}

	p.decl[name] = spec
	p.order = append(p.order, name)
	return nil
}

// variableType parses `discrete [ n ] { s1, s2, ... } ;` after `type`.
func (p *bifParser) variableType(spec *network.VariableSpec) error {
	if ok, err := p.keyword("discrete"); err != nil {
		return err
	} else if !ok {
		return p.errorf("only discrete variables are supported, found %s", p.tok)
	}
	if err := p.expect("["); err != nil {
		return err
	}
	line := p.tok.line
	raw, err := p.name()
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return &SyntaxError{Line: line, Msg: fmt.Sprintf("bad state count %q", raw)}
	}
	if err := p.expect("]"); err != nil {
		return err
	}
	if err := p.expect("{"); err != nil {
		return err
	}
	states, err := p.list("}")
	if err != nil {
		return err
	}
	if len(states) != n {
		return &SyntaxError{Line: line, Msg: fmt.Sprintf("variable %q declares %d states but lists %d", spec.Name, n, len(states))}
	}
	spec.States = states
	return p.expect(";")
}

// list reads comma separated names up to and including the closing symbol.
func (p *bifParser) list(closing string) ([]string, error) {
	var out []string
	for {
		if ok, err := p.accept(closing); ok || err != nil {
			return out, err
		}
		if _, err := p.accept(","); err != nil {
			return nil, err
		}
		if p.tok.kind == tokSymbol && p.tok.text == closing {
			continue
		}
		s, err := p.name()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
}

// numbers reads comma separated floats up to and including ';'.
func (p *bifParser) numbers() ([]float64, error) {
	var out []float64
	for {
		if ok, err := p.accept(";"); ok || err != nil {
			return out, err
		}
		if _, err := p.accept(","); err != nil {
			return nil, err
		}
		if p.tok.kind == tokSymbol && p.tok.text == ";" {
			continue
		}
		if p.tok.kind != tokWord {
			return nil, p.errorf("expected a number, found %s", p.tok)
		}
		x, err := strconv.ParseFloat(p.tok.text, 64)
		if err != nil {
			return nil, p.errorf("bad probability %s", p.tok)
		}
		out = append(out, x)
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
}

// property reads `key = value ;` or `"key = value" ;` after `property`.
func (p *bifParser) property(into map[string]string) error {
	var parts []string
	for {
		if ok, err := p.accept(";"); err != nil {
			return err
		} else if ok {
			break
		}
		if p.tok.kind == tokEOF {
			return p.errorf("unterminated property")
		}
		parts = append(parts, p.tok.text)
		if err := p.advance(); err != nil {
			return err
		}
	}
	text := strings.TrimSpace(strings.Join(parts, " "))
	if text == "" {
		return nil
	}
	key, value, found := strings.Cut(text, "=")
	if !found {
		key, value, _ = strings.Cut(text, " ")
	}
	into[strings.TrimSpace(key)] = strings.TrimSpace(value)
	return nil
}

func (p *bifParser) probabilityBlock() error {
	b := &probBlock{line: p.tok.line}
	if err := p.advance(); err != nil {
		return err
	}
	if err := p.expect("("); err != nil {
		return err
	}
	child, err := p.name()
	if err != nil {
		return err
	}
	b.child = child
	if ok, err := p.accept("|"); err != nil {
		return err
	} else if ok {
		if b.parents, err = p.list(")"); err != nil {
			return err
		}
	} else if err := p.expect(")"); err != nil {
		return err
	}
	if _, dup := p.blocks[child]; dup {
		return &SyntaxError{Line: b.line, Msg: fmt.Sprintf("second probability block for %q", child)}
	}
	if err := p.expect("{"); err != nil {
		return err
	}

	for {
		if ok, err := p.accept("}"); err != nil {
			return err
		} else if ok {
			break
		}
		line := p.tok.line
		switch {
		case p.tok.kind == tokSymbol && p.tok.text == "(":
			if err := p.advance(); err != nil {
				return err
			}
			labels, err := p.list(")")
			if err != nil {
				return err
			}
			values, err := p.numbers()
			if err != nil {
				return err
			}
			b.rows = append(b.rows, probRow{line: line, labels: labels, values: values})
		case p.tok.kind == tokWord && p.tok.text == "table":
			if err := p.advance(); err != nil {
				return err
			}
			if b.table, err = p.numbers(); err != nil {
				return err
			}
		case p.tok.kind == tokWord && p.tok.text == "default":
			if err := p.advance(); err != nil {
				return err
			}
			if b.fallback, err = p.numbers(); err != nil {
				return err
			}
		case p.tok.kind == tokWord && p.tok.text == "property":
			if err := p.advance(); err != nil {
				return err
			}
			if b.props == nil {
				b.props = make(map[string]string)
			}
			if err := p.property(b.props); err != nil {
				return err
			}
		default:
			return p.errorf("expected a row, table, default or property, found %s", p.tok)
		}
	}

	p.blocks[child] = b
	return nil
}

// assemble turns the parsed blocks into a definition, laying out each table
// parents first with the last parent varying fastest.
func (p *bifParser) assemble() (network.Definition, error) {
	for child, b := range p.blocks {
		if _, ok := p.decl[child]; !ok {
			return network.Definition{}, &SyntaxError{Line: b.line, Msg: fmt.Sprintf("probability for undeclared variable %q", child)}
		}
	}

	def := p.def
	for _, name := range p.order {
		spec := p.decl[name]
		b, ok := p.blocks[name]
		if !ok {
			return network.Definition{}, &SyntaxError{Line: p.tok.line, Msg: fmt.Sprintf("no probability block for %q", name)}
		}
		table, err := p.table(spec, b)
		if err != nil {
			return network.Definition{}, err
		}
		spec.Parents = b.parents
		spec.Table = table
		for k, v := range b.props {
			if spec.Properties == nil {
				spec.Properties = make(map[string]string)
			}
			spec.Properties[k] = v
		}
		def.Variables = append(def.Variables, *spec)
	}
	return def, nil
}

func (p *bifParser) table(spec *network.VariableSpec, b *probBlock) ([][]float64, error) {
	card := len(spec.States)
	parents := make([]*network.VariableSpec, len(b.parents))
	rows := 1
	for i, name := range b.parents {
		ps, ok := p.decl[name]
		if !ok {
			return nil, &SyntaxError{Line: b.line, Msg: fmt.Sprintf("%q has undeclared parent %q", spec.Name, name)}
		}
		parents[i] = ps
		rows *= len(ps.States)
	}

	out := make([][]float64, rows)
	if b.fallback != nil {
		if len(b.fallback) != card {
			return nil, &SyntaxError{Line: b.line, Msg: fmt.Sprintf("default for %q has %d values, want %d", spec.Name, len(b.fallback), card)}
		}
		for r := range out {
			out[r] = append([]float64(nil), b.fallback...)
		}
	}

	if b.table != nil {
		if len(b.table) != rows*card {
			return nil, &SyntaxError{Line: b.line, Msg: fmt.Sprintf("table for %q has %d values, want %d", spec.Name, len(b.table), rows*card)}
		}
		for r := range out {
			out[r] = append([]float64(nil), b.table[r*card:(r+1)*card]...)
		}
	}

	for _, row := range b.rows {
		if len(row.labels) != len(parents) {
			return nil, &SyntaxError{Line: row.line, Msg: fmt.Sprintf("row for %q names %d parent states, want %d", spec.Name, len(row.labels), len(parents))}
		}
		if len(row.values) != card {
			return nil, &SyntaxError{Line: row.line, Msg: fmt.Sprintf("row for %q has %d values, want %d", spec.Name, len(row.values), card)}
		}
		idx := 0
		for i, label := range row.labels {
			k := indexOf(parents[i].States, label)
			if k < 0 {
				return nil, &SyntaxError{Line: row.line, Msg: fmt.Sprintf("%q is not a state of %q", label, parents[i].Name)}
			}
			idx = idx*len(parents[i].States) + k
		}
		out[idx] = row.values
	}

	for r, row := range out {
		if row == nil {
			return nil, &SyntaxError{Line: b.line, Msg: fmt.Sprintf("probability for %q is missing row %d", spec.Name, r)}
		}
	}
	return out, nil
}

func indexOf(states []string, s string) int {
	for i, x := range states {
		if x == s {
			return i
		}
	}
	return -1
}

// EncodeBIF writes def in the Bayesian Interchange Format. Conditional tables
// are written one row per parent assignment.
func EncodeBIF(def network.Definition) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "network %s {\n", bifName(def.Name))
	writeProps(&b, def.Properties)
	b.WriteString("}\n")

	for _, v := range def.Variables {
		fmt.Fprintf(&b, "variable %s {\n  type discrete [ %d ] { %s };\n", bifName(v.Name), len(v.States), bifNames(v.States))
		writeProps(&b, v.Properties)
		b.WriteString("}\n")
	}

	byName := make(map[string]network.VariableSpec, len(def.Variables))
	for _, v := range def.Variables {
		byName[v.Name] = v
	}
	for _, v := range def.Variables {
		if len(v.Parents) == 0 {
			fmt.Fprintf(&b, "probability ( %s ) {\n", bifName(v.Name))
			if len(v.Table) > 0 {
				fmt.Fprintf(&b, "  table %s;\n", joinFloats(v.Table[0]))
			}
			b.WriteString("}\n")
			continue
		}
		fmt.Fprintf(&b, "probability ( %s | %s ) {\n", bifName(v.Name), bifNames(v.Parents))
		labels := make([]string, len(v.Parents))
		for r, row := range v.Table {
			rem := r
			for i := len(v.Parents) - 1; i >= 0; i-- {
				states := byName[v.Parents[i]].States
				if len(states) == 0 {
					continue
				}
				labels[i] = states[rem%len(states)]
				rem /= len(states)
			}
			fmt.Fprintf(&b, "  (%s) %s;\n", bifNames(labels), joinFloats(row))
		}
		b.WriteString("}\n")
	}
	return []byte(b.String())
}

func bifName(s string) string {
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return unicode.IsSpace(r) || strings.ContainsRune(symbols+`"`, r) }) {
		return strconv.Quote(s)
	}
	return s
}

func bifNames(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = bifName(n)
	}
	return strings.Join(quoted, ", ")
}

func writeProps(b *strings.Builder, props map[string]string) {
	for _, k := range sortedKeys(props) {
		fmt.Fprintf(b, "  property %s = %s ;\n", k, props[k])
	}
}

func joinFloats(xs []float64) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return strings.Join(parts, ", ")
}
