package parse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Values produced by Literal are built from:
//
//	string, bool, nil, json.Number, []any (list, tuple, set), map[string]any
//
// Mapping keys are converted with Stringify.

var (
	// ErrEmpty is returned for blank input
	ErrEmpty = errors.New("empty input")

	// ErrNameLookup is returned when the text references a name other than
	// the literal constants
	ErrNameLookup = errors.New("name lookup not allowed")
)

// SyntaxError describes malformed literal text
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("literal syntax error at offset %d: %s", e.Offset, e.Msg)
}

// Literal decodes a data literal from untrusted text. Nothing in the text is
// ever executed. It returns the first value produced by Candidates, or the
// error of the literal grammar when there is none.
func Literal(text string) (any, error) {
	for v := range Candidates(text) {
		return v, nil
	}
	src := strings.TrimSpace(text)
	if src == "" {
		return nil, ErrEmpty
	}
	_, err := parseLiteral(src)
	return nil, err
}

// Candidates yields every way text decodes, in order:
//
//  1. strict JSON
//  2. the Python literal grammar (quotes of every kind, tuples, sets,
//     True/False/None, trailing commas, comments)
//  3. a literal wrapped in prose, when it is the only bracketed region of
//     the text that decodes
//  4. YAML block sequences and mappings
//
// Callers expecting a particular shape take the first candidate that has it.
func Candidates(text string) iter.Seq[any] {
	return func(yield func(any) bool) {
		src := strings.TrimSpace(text)
		if src == "" {
			return
		}

		if v, err := decodeJSON(src); err == nil {
			if !yield(v) {
				return
			}
		} else if v, err := parseLiteral(src); err == nil {
			if !yield(v) {
				return
			}
		}

		if v, ok := embedded(src); ok {
			if !yield(v) {
				return
			}
		}

		if v, ok := decodeYAML(src); ok {
			yield(v)
		}
	}
}

func decodeJSON(src string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(src))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

// decodeYAML accepts block-style documents only. Flow collections are left
// to the literal grammar, which rejects bare names.
func decodeYAML(src string) (any, bool) {
	switch src[0] {
	case '[', '{', '(':
		return nil, false
	}

	var raw any
	if err := yaml.Unmarshal([]byte(src), &raw); err != nil {
		return nil, false
	}
	v := normalizeYAML(raw)
	switch v.(type) {
	case []any, map[string]any:
		return v, true
	}
	return nil, false
}

func normalizeYAML(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[Stringify(normalizeYAML(k))] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalizeYAML(val)
		}
		return out
	case int:
		return json.Number(strconv.Itoa(x))
	case int64:
		return json.Number(strconv.FormatInt(x, 10))
	case uint64:
		return json.Number(strconv.FormatUint(x, 10))
	case float64:
		return floatValue(x)
	case string, bool, nil:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// embedded finds a literal wrapped in prose. Every top-level '[' or '{'
// region is tried; the text qualifies only when exactly one of them decodes
// to a usable value, so several lists or a stray "[1]" keep the whole
// response.
func embedded(src string) (any, bool) {
	var found []any
	for i := 0; i < len(src); i++ {
		if src[i] != '[' && src[i] != '{' {
			continue
		}
		end := matchBracket(src, i)
		if end < 0 {
			continue
		}
		if i == 0 && end == len(src)-1 {
			return nil, false
		}
		region := src[i : end+1]
		start := i
		i = end

		if partOfExpression(src, start, end) {
			continue
		}
		v, err := decodeJSON(region)
		if err != nil {
			if v, err = parseLiteral(region); err != nil {
				continue
			}
		}
		if usable(v) {
			found = append(found, v)
		}
	}
	if len(found) != 1 {
		return nil, false
	}
	return found[0], true
}

// partOfExpression reports whether the region src[start:end+1] is indexed,
// called or subscripted rather than standing on its own
func partOfExpression(src string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(src[:start])
		if r == '_' || r == ')' || r == ']' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	rest := src[end+1:]
	if rest == "" {
		return false
	}
	switch rest[0] {
	case '(', '[':
		return true
	case '.':
		r, _ := utf8.DecodeRuneInString(rest[1:])
		return r == '_' || unicode.IsLetter(r)
	}
	return false
}

// usable reports whether an embedded value carries text: a mapping, an
// empty list, or a list holding at least one string
func usable(v any) bool {
	switch x := v.(type) {
	case map[string]any:
		return true
	case []any:
		if len(x) == 0 {
			return true
		}
		for _, item := range x {
			if _, ok := item.(string); ok {
				return true
			}
		}
	}
	return false
}

// matchBracket returns the index of the bracket closing the one at start,
// skipping quoted strings, or -1.
func matchBracket(src string, start int) int {
	var stack []byte
	for i := start; i < len(src); i++ {
		switch c := src[i]; c {
		case '[', '{', '(':
			stack = append(stack, c)
		case ']', '}', ')':
			if len(stack) == 0 || stack[len(stack)-1] != openerOf(c) {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		case '"', '\'':
			i = skipQuoted(src, i)
			if i < 0 {
				return -1
			}
		}
	}
	return -1
}

func openerOf(c byte) byte {
	switch c {
	case ']':
		return '['
	case '}':
		return '{'
	}
	return '('
}

// skipQuoted returns the index of the quote closing the string at i
func skipQuoted(src string, i int) int {
	q := src[i]
	if strings.HasPrefix(src[i:], strings.Repeat(string(q), 3)) {
		end := strings.Index(src[i+3:], strings.Repeat(string(q), 3))
		if end < 0 {
			return -1
		}
		return i + 3 + end + 2
	}
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case q:
			return j
		case '\n':
			return -1
		}
	}
	return -1
}

// Python literal grammar

func parseLiteral(src string) (any, error) {
	p := &literalParser{src: src}
	return p.parseTop()
}

type literalParser struct {
	src string
	pos int
}

func (p *literalParser) errorf(format string, args ...any) error {
	return &SyntaxError{Offset: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *literalParser) eof() bool {
	return p.pos >= len(p.src)
}

func (p *literalParser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *literalParser) skipSpace() {
	for !p.eof() {
		switch c := p.src[p.pos]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			p.pos++
		case c == '#':
			for !p.eof() && p.src[p.pos] != '\n' {
				p.pos++
			}
		case c == '\\' && p.pos+1 < len(p.src) && (p.src[p.pos+1] == '\n' || p.src[p.pos+1] == '\r'):
			p.pos += 2
		default:
			return
		}
	}
}

// parseTop parses one value; a top-level comma builds a bare tuple
func (p *literalParser) parseTop() (any, error) {
	p.skipSpace()
	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipSpace()

	if p.peek() == ',' {
		items := []any{v}
		for p.peek() == ',' {
			p.pos++
			p.skipSpace()
			if p.eof() {
				break
			}
			item, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			items = append(items, item)
			p.skipSpace()
		}
		v = items
	}

	if !p.eof() {
		return nil, p.errorf("unexpected %q after literal", p.src[p.pos])
	}
	return v, nil
}

func (p *literalParser) parseValue() (any, error) {
	p.skipSpace()
	if p.eof() {
		return nil, p.errorf("unexpected end of input")
	}

	c := p.src[p.pos]
	switch {
	case c == '[':
		p.pos++
		return p.parseItems(']')
	case c == '(':
		return p.parseParen()
	case c == '{':
		return p.parseBrace()
	case p.atString():
		return p.parseStrings()
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	}

	r, _ := utf8.DecodeRuneInString(p.src[p.pos:])
	if r == '_' || unicode.IsLetter(r) {
		return p.parseName()
	}
	return nil, p.errorf("unexpected %q", r)
}

// parseItems reads comma separated values up to close; the opener is consumed
func (p *literalParser) parseItems(close byte) ([]any, error) {
	items := []any{}
	for {
		p.skipSpace()
		if p.eof() {
			return nil, p.errorf("missing %q", close)
		}
		if p.peek() == close {
			p.pos++
			return items, nil
		}
		item, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		items = append(items, item)

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case close:
			p.pos++
			return items, nil
		default:
			return nil, p.errorf("expected ',' or %q", close)
		}
	}
}

func (p *literalParser) parseParen() (any, error) {
	p.pos++
	p.skipSpace()
	if p.peek() == ')' {
		p.pos++
		return []any{}, nil
	}

	first, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	switch p.peek() {
	case ')':
		p.pos++
		return first, nil
	case ',':
		p.pos++
		rest, err := p.parseItems(')')
		if err != nil {
			return nil, err
		}
		return append([]any{first}, rest...), nil
	}
	return nil, p.errorf("expected ',' or ')'")
}

// parseBrace reads a dict or a set
func (p *literalParser) parseBrace() (any, error) {
	p.pos++
	p.skipSpace()
	if p.peek() == '}' {
		p.pos++
		return map[string]any{}, nil
	}

	first, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipSpace()

	if p.peek() != ':' {
		var items []any
		switch p.peek() {
		case '}':
			p.pos++
			items = []any{first}
		case ',':
			p.pos++
			rest, err := p.parseItems('}')
			if err != nil {
				return nil, err
			}
			items = append([]any{first}, rest...)
		default:
			return nil, p.errorf("expected ':', ',' or '}'")
		}
		return uniqueItems(items), nil
	}

	dict := map[string]any{}
	key := first
	for {
		if err := checkHashable(key); err != nil {
			return nil, p.errorf("%v", err)
		}
		p.pos++ // ':'
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		dict[Stringify(key)] = val

		p.skipSpace()
		switch p.peek() {
		case '}':
			p.pos++
			return dict, nil
		case ',':
			p.pos++
		default:
			return nil, p.errorf("expected ',' or '}'")
		}

		p.skipSpace()
		if p.peek() == '}' {
			p.pos++
			return dict, nil
		}
		key, err = p.parseValue()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ':' {
			return nil, p.errorf("expected ':'")
		}
	}
}

func checkHashable(key any) error {
	switch key.(type) {
	case map[string]any:
		return errors.New("unhashable dict key")
	}
	return nil
}

// uniqueItems drops repeated set members, keeping first occurrences
func uniqueItems(items []any) []any {
	seen := make(map[string]bool, len(items))
	out := make([]any, 0, len(items))
	for _, item := range items {
		key := fmt.Sprintf("%T:%s", item, Stringify(item))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

func (p *literalParser) parseName() (any, error) {
	start := p.pos
	for !p.eof() {
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		p.pos += size
	}

	name := p.src[start:p.pos]
	switch name {
	case "True", "true":
		return true, nil
	case "False", "false":
		return false, nil
	case "None", "null":
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %q at offset %d", ErrNameLookup, name, start)
}

// string literals

// stringPrefix returns the length of a string prefix at pos (r, u, b, rb, br
// in any case) and whether it marks a raw string. ok is false when no string
// starts at pos.
func (p *literalParser) stringPrefix() (n int, raw bool, ok bool) {
	for n = 0; n < 3 && p.pos+n < len(p.src); n++ {
		c := p.src[p.pos+n]
		if c == '"' || c == '\'' {
			return n, raw, true
		}
		switch c {
		case 'r', 'R':
			raw = true
		case 'u', 'U', 'b', 'B':
		default:
			return 0, false, false
		}
		if n == 1 && (p.src[p.pos] == 'u' || p.src[p.pos] == 'U') {
			return 0, false, false
		}
	}
	return 0, false, false
}

func (p *literalParser) atString() bool {
	_, _, ok := p.stringPrefix()
	return ok
}

// parseStrings reads one or more adjacent string literals and joins them
func (p *literalParser) parseStrings() (any, error) {
	var b strings.Builder
	for {
		s, err := p.parseString()
		if err != nil {
			return nil, err
		}
		b.WriteString(s)

		save := p.pos
		p.skipSpace()
		if !p.atString() {
			p.pos = save
			return b.String(), nil
		}
	}
}

func (p *literalParser) parseString() (string, error) {
	n, raw, _ := p.stringPrefix()
	p.pos += n

	q := p.src[p.pos]
	triple := strings.HasPrefix(p.src[p.pos:], strings.Repeat(string(q), 3))
	if triple {
		p.pos += 3
	} else {
		p.pos++
	}
	start := p.pos

	var b strings.Builder
	for {
		if p.eof() {
			p.pos = start
			return "", p.errorf("unterminated string")
		}
		c := p.src[p.pos]
		switch {
		case triple && strings.HasPrefix(p.src[p.pos:], strings.Repeat(string(q), 3)):
			p.pos += 3
			return b.String(), nil
		case !triple && c == q:
			p.pos++
			return b.String(), nil
		case !triple && c == '\n':
			return "", p.errorf("newline in string")
		case c == '\\':
			if raw {
				b.WriteByte(c)
				p.pos++
				if !p.eof() {
					b.WriteByte(p.src[p.pos])
					p.pos++
				}
				continue
			}
			p.pos++
			if err := p.escape(&b); err != nil {
				return "", err
			}
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
}

// escape decodes the escape sequence following a backslash
func (p *literalParser) escape(b *strings.Builder) error {
	if p.eof() {
		return p.errorf("unterminated string")
	}
	c := p.src[p.pos]
	p.pos++

	switch c {
	case '\n':
	case '\r':
		if p.peek() == '\n' {
			p.pos++
		}
	case '\\', '\'', '"':
		b.WriteByte(c)
	case 'a':
		b.WriteByte('\a')
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case 'n':
		b.WriteByte('\n')
	case 'r':
		b.WriteByte('\r')
	case 't':
		b.WriteByte('\t')
	case 'v':
		b.WriteByte('\v')
	case '0', '1', '2', '3', '4', '5', '6', '7':
		value := int(c - '0')
		for i := 0; i < 2 && p.peek() >= '0' && p.peek() <= '7'; i++ {
			value = value*8 + int(p.peek()-'0')
			p.pos++
		}
		b.WriteRune(rune(value))
	case 'x':
		r, err := p.hexRune(2)
		if err != nil {
			return err
		}
		b.WriteRune(r)
	case 'u':
		r, err := p.hexRune(4)
		if err != nil {
			return err
		}
		if utf16.IsSurrogate(r) && strings.HasPrefix(p.src[p.pos:], `\u`) {
			save := p.pos
			p.pos += 2
			if low, err := p.hexRune(4); err == nil {
				if joined := utf16.DecodeRune(r, low); joined != utf8.RuneError {
					b.WriteRune(joined)
					return nil
				}
			}
			p.pos = save
		}
		b.WriteRune(r)
	case 'U':
		r, err := p.hexRune(8)
		if err != nil {
			return err
		}
		if !utf8.ValidRune(r) {
			return p.errorf("invalid code point")
		}
		b.WriteRune(r)
	default:
		// unknown escapes keep their backslash
		b.WriteByte('\\')
		b.WriteByte(c)
	}
	return nil
}

func (p *literalParser) hexRune(digits int) (rune, error) {
	if p.pos+digits > len(p.src) {
		return 0, p.errorf("truncated escape")
	}
	value, err := strconv.ParseUint(p.src[p.pos:p.pos+digits], 16, 32)
	if err != nil {
		return 0, p.errorf("invalid escape")
	}
	p.pos += digits
	return rune(value), nil
}

// numbers

func (p *literalParser) parseNumber() (any, error) {
	negative := false
	for p.peek() == '+' || p.peek() == '-' {
		if p.peek() == '-' {
			negative = !negative
		}
		p.pos++
		p.skipSpace()
	}

	start := p.pos
	text := p.scanNumber()
	if text == "" {
		return nil, p.errorf("expected number")
	}
	if c := p.peek(); c == 'j' || c == 'J' {
		return nil, p.errorf("complex numbers are not supported")
	}
	if r, _ := utf8.DecodeRuneInString(p.src[p.pos:]); r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
		return nil, p.errorf("invalid number %q", p.src[start:p.pos+1])
	}

	clean := strings.ReplaceAll(text, "_", "")
	lower := strings.ToLower(clean)
	isPrefixed := len(lower) > 1 && lower[0] == '0' && strings.ContainsAny(lower[1:2], "xob")

	if !isPrefixed && strings.ContainsAny(lower, ".e") {
		f, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			p.pos = start
			return nil, p.errorf("invalid number %q", text)
		}
		if negative {
			f = -f
		}
		return floatValue(f), nil
	}

	n := new(big.Int)
	base := 10
	digits := clean
	if isPrefixed {
		base = 0
	} else if len(digits) > 1 && strings.Trim(digits, "0") != "" && digits[0] == '0' {
		p.pos = start
		return nil, p.errorf("leading zeros in decimal integer %q", text)
	}
	if _, ok := n.SetString(digits, base); !ok {
		p.pos = start
		return nil, p.errorf("invalid number %q", text)
	}
	if negative {
		n.Neg(n)
	}
	return json.Number(n.String()), nil
}

func (p *literalParser) scanNumber() string {
	start := p.pos
	if strings.HasPrefix(p.src[p.pos:], "0x") || strings.HasPrefix(p.src[p.pos:], "0X") ||
		strings.HasPrefix(p.src[p.pos:], "0o") || strings.HasPrefix(p.src[p.pos:], "0O") ||
		strings.HasPrefix(p.src[p.pos:], "0b") || strings.HasPrefix(p.src[p.pos:], "0B") {
		p.pos += 2
		for !p.eof() && (isHexDigit(p.src[p.pos]) || p.src[p.pos] == '_') {
			p.pos++
		}
		return p.src[start:p.pos]
	}

	for !p.eof() && (isDigit(p.src[p.pos]) || p.src[p.pos] == '_' || p.src[p.pos] == '.') {
		p.pos++
	}
	if p.pos > start && (p.peek() == 'e' || p.peek() == 'E') {
		save := p.pos
		p.pos++
		if p.peek() == '+' || p.peek() == '-' {
			p.pos++
		}
		if !isDigit(p.peek()) {
			p.pos = save
		}
		for !p.eof() && (isDigit(p.src[p.pos]) || p.src[p.pos] == '_') {
			p.pos++
		}
	}
	if p.src[start:p.pos] == "." {
		p.pos = start
		return ""
	}
	return p.src[start:p.pos]
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// floatValue renders a float the way Python's str() does
func floatValue(f float64) any {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return json.Number(strconv.FormatFloat(f, 'e', -1, 64))
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return json.Number(s)
}

// Stringify converts a decoded value to text the way Python's str() does for
// scalars. Collections are rendered as compact JSON.
func Stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case json.Number:
		return x.String()
	case []any, map[string]any:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(x); err != nil {
			return fmt.Sprint(x)
		}
		return strings.TrimRight(buf.String(), "\n")
	default:
		return fmt.Sprint(x)
	}
}
