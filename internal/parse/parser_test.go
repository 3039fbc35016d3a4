package parse

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/testforge/a11yforge/internal/domain"
)

type countingRecorder struct {
	shapes []string
}

func (c *countingRecorder) RecordParseFallback(shape string) {
	c.shapes = append(c.shapes, shape)
}

func TestStripFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", "['a']", "['a']"},
		{"python fence", "```python\n['x','y']\n```", "['x','y']"},
		{"json fence", "```json\n[\"x\"]\n```", `["x"]`},
		{"bare fence", "```\n{'a': 1}\n```", "{'a': 1}"},
		{"missing closing fence", "```python\n['x']", "['x']"},
		{"closing fence only", "['x']\n```", "['x']"},
		{"surrounding whitespace", "  \n```html\n<p>hi</p>\n```\n  ", "<p>hi</p>"},
		{"single line", "```['a']```", "['a']"},
		{"fence with content on first line", "```['a',\n'b']\n```", "['a',\n'b']"},
		{"language tag only", "```python", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFence(tt.in))
		})
	}
}

func TestLiteral_Values(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want any
	}{
		{"json list", `["a", "b"]`, []any{"a", "b"}},
		{"json object", `{"a.css": "x{}"}`, map[string]any{"a.css": "x{}"}},
		{"single quotes", `['x', 'y']`, []any{"x", "y"}},
		{"mixed quotes", `['it\'s', "say \"hi\""]`, []any{"it's", `say "hi"`}},
		{"trailing comma", `['a', 'b',]`, []any{"a", "b"}},
		{"tuple", `('a', 'b')`, []any{"a", "b"}},
		{"single tuple", `('a',)`, []any{"a"}},
		{"parenthesized value", `('a')`, "a"},
		{"bare tuple", `'a', 'b'`, []any{"a", "b"}},
		{"set", `{'a', 'b', 'a'}`, []any{"a", "b"}},
		{"empty dict", `{}`, map[string]any{}},
		{"python constants", `[True, False, None]`, []any{true, false, nil}},
		{"numbers", `[1, -2, 0x10, 1_000, 2.5, 1e-05]`, []any{
			json.Number("1"), json.Number("-2"), json.Number("16"),
			json.Number("1000"), json.Number("2.5"), json.Number("1e-05"),
		}},
		{"float renders like python", `[3.0]`, []any{json.Number("3.0")}},
		{"escapes", `['a\nb', 'tab\there', '\x41\u00e9']`, []any{"a\nb", "tab\there", "Aé"}},
		{"raw string", `[r'C:\path\n']`, []any{`C:\path\n`}},
		{"triple quoted", "['''line one\nline two''']", []any{"line one\nline two"}},
		{"adjacent strings", `['abc' "def"]`, []any{"abcdef"}},
		{"comments", "[\n  'a',  # first\n  'b',\n]", []any{"a", "b"}},
		{"dict", `{'image_captioning_tool': ['a.png'], 'video_transcription_tool': []}`, map[string]any{
			"image_captioning_tool":    []any{"a.png"},
			"video_transcription_tool": []any{},
		}},
		{"non string keys", `{1: 'one', None: 'none'}`, map[string]any{"1": "one", "None": "none"}},
		{"nested", `[['a', 1], {'k': 'v'}]`, []any{[]any{"a", json.Number("1")}, map[string]any{"k": "v"}}},
		{"prose around literal", "Here are the issues:\n['a', 'b']\nLet me know.", []any{"a", "b"}},
		{"yaml list", "- first issue\n- second issue", []any{"first issue", "second issue"}},
		{"yaml mapping", "image_captioning_tool:\n  - a.png\nvideo_transcription_tool:\n  - UNKNOWN", map[string]any{
			"image_captioning_tool":    []any{"a.png"},
			"video_transcription_tool": []any{"UNKNOWN"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Literal(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLiteral_RejectsCode(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"function call", `__import__('os').system('ls')`},
		{"call in list", `[__import__('os')]`},
		{"builtin name", `open`},
		{"name in list", `[os, 'a']`},
		{"name in dict", `{'a': os}`},
		{"method call on list", `['a'].pop()`},
		{"subscripted list", `x['a']`},
		{"lambda", `lambda: 1`},
	}

	p := NewParser(zaptest.NewLogger(t), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, domain.Issues{tt.in}, p.Issues(tt.in))
		})
	}

	_, err := parseLiteral(`open`)
	assert.True(t, errors.Is(err, ErrNameLookup))

	_, err = Literal(`[os, 'a']`)
	assert.True(t, errors.Is(err, ErrNameLookup))
}

func TestLiteral_Errors(t *testing.T) {
	tests := []string{
		"",
		"   ",
		"['unterminated",
		"[1, 2",
		"{'a': }",
		"010",
		"1j",
	}

	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			_, err := parseLiteral(in)
			assert.Error(t, err)
		})
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"text", "text"},
		{nil, "None"},
		{true, "True"},
		{false, "False"},
		{json.Number("42"), "42"},
		{[]any{"a", json.Number("1")}, `["a",1]`},
		{map[string]any{"k": "<img>"}, `{"k":"<img>"}`},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Stringify(tt.in))
		})
	}
}

func TestParser_Issues(t *testing.T) {
	rec := &countingRecorder{}
	p := NewParser(zaptest.NewLogger(t), rec)

	t.Run("fenced python list", func(t *testing.T) {
		got := p.Issues("```python\n['x','y']\n```")
		assert.Equal(t, domain.Issues{"x", "y"}, got)
	})

	t.Run("leaves coerced to strings", func(t *testing.T) {
		got := p.Issues(`['a', 1, None, ['nested']]`)
		assert.Equal(t, domain.Issues{"a", "1", "None", `["nested"]`}, got)
	})

	t.Run("empty list", func(t *testing.T) {
		got := p.Issues("[]")
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("blank response", func(t *testing.T) {
		got := p.Issues("   ")
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("garbage is kept verbatim", func(t *testing.T) {
		garbage := "I could not analyze this file }{ sorry"
		got := p.Issues(garbage)
		assert.Equal(t, domain.Issues{garbage}, got)
	})

	t.Run("wrong shape is kept verbatim", func(t *testing.T) {
		raw := `{'a': 'b'}`
		got := p.Issues(raw)
		assert.Equal(t, domain.Issues{raw}, got)
	})

	assert.Equal(t, []string{ShapeStrings, ShapeStrings}, rec.shapes)
}

func TestParser_IssuesInProse(t *testing.T) {
	rec := &countingRecorder{}
	p := NewParser(zaptest.NewLogger(t), rec)

	tests := []struct {
		name string
		in   string
		want domain.Issues
	}{
		{"single list after a preamble", "Found these:\n['a', 'b']\nHope this helps.", domain.Issues{"a", "b"}},
		{"list inside a sentence", "The issues are ['a'] as listed.", domain.Issues{"a"}},
		{"numeric footnote", "I could not analyze this file, see note [1] below.", nil},
		{"several lists", "['ok'] and more text ['second']", nil},
		{"empty list in prose", "No issues found: []", domain.Issues{}},
	}

	fallbacks := 0
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Issues(tt.in)
			if tt.want == nil {
				fallbacks++
				assert.Equal(t, domain.Issues{tt.in}, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Len(t, rec.shapes, fallbacks)
}

func TestParser_StringMap(t *testing.T) {
	rec := &countingRecorder{}
	p := NewParser(zaptest.NewLogger(t), rec)

	got := p.StringMap("```python\n{'a.css': 'a { color: #000; }', 'b.css': 3}\n```")
	assert.Equal(t, map[string]string{"a.css": "a { color: #000; }", "b.css": "3"}, got)

	assert.Empty(t, p.StringMap("['not', 'a', 'dict']"))
	assert.Empty(t, p.StringMap("nonsense }"))
	assert.NotNil(t, p.StringMap(""))
	assert.Len(t, rec.shapes, 2)
}

func TestParser_StringListMap(t *testing.T) {
	p := NewParser(nil, nil)

	got := p.StringListMap(`{'image_captioning_tool': ['img/a.png', 'b.jpg'], 'video_transcription_tool': None, 'x': 'one'}`)
	assert.Equal(t, map[string][]string{
		"image_captioning_tool":    {"img/a.png", "b.jpg"},
		"video_transcription_tool": {},
		"x":                        {"one"},
	}, got)

	assert.Empty(t, p.StringListMap("[]"))
}

func TestParser_PicksCandidateWithExpectedShape(t *testing.T) {
	p := NewParser(nil, nil)

	// the only embedded region is a list; the whole text is a YAML mapping
	raw := "image_captioning_tool: [a.png]\nvideo_transcription_tool: []"
	assert.Equal(t, map[string][]string{
		"image_captioning_tool":    {"a.png"},
		"video_transcription_tool": {},
	}, p.StringListMap(raw))

	// prose around a list
	assert.Equal(t, domain.Issues{"a", "b"}, p.Issues("Found these:\n['a', 'b']\nHope this helps."))
}

func TestParser_Strings(t *testing.T) {
	p := NewParser(nil, nil)

	assert.Equal(t, []string{"a", "b"}, p.Strings(`("a", "b")`))
	assert.Equal(t, []string{}, p.Strings("not a list"))
}
