package analysis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/testforge/a11yforge/internal/domain"
	"github.com/testforge/a11yforge/internal/llm"
	"github.com/testforge/a11yforge/internal/parse"
)

// recordingCaller answers every call through respond and keeps the prompts
type recordingCaller struct {
	mu      sync.Mutex
	systems []string
	prompts []string
	respond func(user string) string
}

func (c *recordingCaller) Call(ctx context.Context, system, user string) string {
	c.mu.Lock()
	c.systems = append(c.systems, system)
	c.prompts = append(c.prompts, user)
	c.mu.Unlock()
	return c.respond(user)
}

func constant(s string) func(string) string {
	return func(string) string { return s }
}

func newAnalyzer(t *testing.T, profile Profile, caller llm.Caller) *Analyzer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	return NewAnalyzer(profile, caller, parse.NewParser(logger, nil), Options{Concurrency: 4, Logger: logger})
}

func TestProfile_Prompt(t *testing.T) {
	dom := DOM().Prompt("<img src='a.png'>")
	assert.True(t, strings.HasPrefix(dom, "Analyze the following HTML code for accessibility issues. Return a Python list of strings"))
	assert.Contains(t, dom, "Do NOT include severity levels")
	assert.Contains(t, dom, "\n\n<img src='a.png'>\n\nExample output format:\n['Image element <img> missing alt text.'")

	css := CSS().Prompt("a{color:#ccc}")
	assert.Contains(t, css, "related to:\n- Insufficient color contrast between text and background\n")
	assert.Contains(t, css, "- Poor responsive design affecting usability\nReturn a Python list")

	js := JS()
	assert.Equal(t, 1500, js.ChunkTokens)
	assert.Contains(t, js.Prompt("x"), "- Use of alert(), confirm(), prompt() dialogs that disrupt accessibility\n")
}

func TestAnalyzer_Analyze(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     domain.Issues
	}{
		{
			name:     "python list",
			response: "['Image missing alt text.', 'Heading levels skipped.']",
			want:     domain.Issues{"Image missing alt text.", "Heading levels skipped."},
		},
		{
			name:     "fenced list",
			response: "```python\n['Button has no accessible name.']\n```",
			want:     domain.Issues{"Button has no accessible name."},
		},
		{
			name:     "empty list",
			response: "[]",
			want:     domain.Issues{},
		},
		{
			name:     "prose falls back to raw text",
			response: "The page looks accessible to me.",
			want:     domain.Issues{"The page looks accessible to me."},
		},
		{
			name:     "transport failure",
			response: "",
			want:     domain.Issues{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := &recordingCaller{respond: constant(tt.response)}
			a := newAnalyzer(t, DOM(), caller)

			got := a.Analyze(context.Background(), "<html><img src='a.png'></html>")
			assert.Equal(t, tt.want, got)
			require.Len(t, caller.systems, 1)
			assert.Equal(t, SystemPrompt, caller.systems[0])
		})
	}
}

func TestAnalyzer_EmptyContentSkipsModel(t *testing.T) {
	caller := &recordingCaller{respond: constant("['never']")}
	a := newAnalyzer(t, CSS(), caller)

	assert.Equal(t, domain.Issues{}, a.Analyze(context.Background(), "  \n\t"))
	assert.Empty(t, caller.prompts)
}

func TestAnalyzer_ChunksKeepOrder(t *testing.T) {
	// 5 lines of 4 words each with a budget of 6: every second line cuts
	var lines []string
	for i := 0; i < 5; i++ {
		lines = append(lines, fmt.Sprintf("line%d w w w", i))
	}
	content := strings.Join(lines, "\n")

	profile := JS()
	profile.ChunkTokens = 6

	var calls atomic.Int32
	caller := &recordingCaller{respond: func(user string) string {
		calls.Add(1)
		var found []string
		for _, l := range lines {
			if strings.Contains(user, l) {
				found = append(found, fmt.Sprintf("'issue in %s'", strings.Fields(l)[0]))
			}
		}
		return "[" + strings.Join(found, ", ") + "]"
	}}

	a := newAnalyzer(t, profile, caller)
	got := a.Analyze(context.Background(), content)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, domain.Issues{
		"issue in line0", "issue in line1",
		"issue in line2", "issue in line3",
		"issue in line4",
	}, got)
}

func TestAnalyzer_FailedChunkContributesNothing(t *testing.T) {
	profile := JS()
	profile.ChunkTokens = 1

	caller := &recordingCaller{respond: func(user string) string {
		if strings.Contains(user, "second chunk") {
			return ""
		}
		return "['found']"
	}}

	a := newAnalyzer(t, profile, caller)
	got := a.Analyze(context.Background(), "first chunk\nsecond chunk\nthird chunk")

	assert.Equal(t, domain.Issues{"found", "found"}, got)
}

func TestAnalyzer_DuplicatesAreKept(t *testing.T) {
	caller := &recordingCaller{respond: constant("['same', 'same']")}
	a := newAnalyzer(t, CSS(), caller)

	assert.Equal(t, domain.Issues{"same", "same"}, a.Analyze(context.Background(), "a{}"))
}

func TestBundle(t *testing.T) {
	assets := []domain.Asset{
		{Name: "b.css", Content: "b{}"},
		{Name: "a.css", Content: "a{}"},
	}

	assert.Equal(t, "a{}\nb{}", Bundle(assets))
	assert.Equal(t, "b.css", assets[0].Name, "input is not reordered")
	assert.Equal(t, "", Bundle(nil))
}

func TestLoadProfiles(t *testing.T) {
	profiles, err := LoadProfiles("")
	require.NoError(t, err)
	assert.Equal(t, DefaultProfiles(), profiles)

	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
analyzers:
  css:
    checklist:
      - Insufficient color contrast
  js:
    chunk_tokens: 800
    system: You review JavaScript for accessibility.
`), 0o644))

	profiles, err = LoadProfiles(path)
	require.NoError(t, err)

	css := profiles[domain.LanguageCSS]
	assert.Equal(t, []string{"Insufficient color contrast"}, css.Checklist)
	assert.Equal(t, CSS().Subject, css.Subject, "unset fields keep built-in values")

	js := profiles[domain.LanguageJS]
	assert.Equal(t, 800, js.ChunkTokens)
	assert.Equal(t, "You review JavaScript for accessibility.", js.System)

	assert.Equal(t, DOM(), profiles[domain.LanguageHTML])
}

func TestLoadProfiles_Errors(t *testing.T) {
	_, err := LoadProfiles(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = ApplyOverrides(DefaultProfiles(), []byte("analyzers:\n  python:\n    system: x\n"))
	assert.ErrorContains(t, err, "unknown language")

	_, err = ApplyOverrides(DefaultProfiles(), []byte("analyzers: [unclosed"))
	assert.Error(t, err)
}
