package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/testforge/a11yforge/internal/config"
	"github.com/testforge/a11yforge/internal/domain"
	"github.com/testforge/a11yforge/internal/llm"
)

func TestPatternRecommender(t *testing.T) {
	tests := []struct {
		name   string
		issues domain.Issues
		want   domain.ToolTasks
	}{
		{
			name:   "image path with missing alt attribute",
			issues: domain.Issues{"Image 'images/logo.png' is missing alt attribute."},
			want: domain.ToolTasks{
				domain.ToolImageCaptioning:    {"images/logo.png"},
				domain.ToolVideoTranscription: {},
			},
		},
		{
			name:   "img tag with src",
			issues: domain.Issues{`Image element <img src="hero.JPG"> has non-descriptive alt text "image".`},
			want: domain.ToolTasks{
				domain.ToolImageCaptioning:    {"hero.JPG"},
				domain.ToolVideoTranscription: {},
			},
		},
		{
			name:   "no path gives UNKNOWN",
			issues: domain.Issues{"Image element <img> missing alt text."},
			want: domain.ToolTasks{
				domain.ToolImageCaptioning:    {domain.UnknownFileRef},
				domain.ToolVideoTranscription: {},
			},
		},
		{
			name:   "video captions",
			issues: domain.Issues{"The <video> element for media/intro.mp4 has no captions track."},
			want: domain.ToolTasks{
				domain.ToolImageCaptioning:    {},
				domain.ToolVideoTranscription: {"media/intro.mp4"},
			},
		},
		{
			name: "unrelated issues are skipped",
			issues: domain.Issues{
				"Heading levels are skipped.",
				"Text color #ccc has insufficient contrast.",
			},
			want: domain.NewToolTasks(),
		},
		{
			name: "duplicates collapse",
			issues: domain.Issues{
				"a.png is missing alt attribute",
				"Image ./a.png missing alt text and b.gif lacks alt",
			},
			want: domain.ToolTasks{
				domain.ToolImageCaptioning:    {"a.png", "b.gif"},
				domain.ToolVideoTranscription: {},
			},
		},
		{
			name:   "empty input",
			issues: nil,
			want:   domain.NewToolTasks(),
		},
	}

	r := NewPatternRecommender(zaptest.NewLogger(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Recommend(context.Background(), tt.issues))
		})
	}
}

func TestModelRecommender(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     domain.ToolTasks
	}{
		{
			name:     "python dict",
			response: "{'image_captioning_tool': ['images/logo.png', 'UNKNOWN'], 'video_transcription_tool': []}",
			want: domain.ToolTasks{
				domain.ToolImageCaptioning:    {"images/logo.png", "UNKNOWN"},
				domain.ToolVideoTranscription: {},
			},
		},
		{
			name:     "missing supported tool is filled in",
			response: "```python\n{'image_captioning_tool': ['a.png']}\n```",
			want: domain.ToolTasks{
				domain.ToolImageCaptioning:    {"a.png"},
				domain.ToolVideoTranscription: {},
			},
		},
		{
			name:     "unknown tools are kept",
			response: `{"screen_reader_audit": ["index.html"]}`,
			want: domain.ToolTasks{
				domain.ToolImageCaptioning:    {},
				domain.ToolVideoTranscription: {},
				"screen_reader_audit":         {"index.html"},
			},
		},
		{
			name:     "not a mapping",
			response: "I would use an image captioning tool.",
			want:     domain.NewToolTasks(),
		},
		{
			name:     "transport failure",
			response: "",
			want:     domain.NewToolTasks(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var prompt string
			caller := llm.CallerFunc(func(_ context.Context, system, user string) string {
				assert.Equal(t, recommenderSystem, system)
				prompt = user
				return tt.response
			})
			r := NewModelRecommender(caller, nil, zaptest.NewLogger(t))

			got := r.Recommend(context.Background(), domain.Issues{"Image a.png missing alt."})
			assert.Equal(t, tt.want, got)
			assert.Contains(t, prompt, "- Image a.png missing alt.\n")
		})
	}
}

func TestModelRecommender_NoIssuesSkipsModel(t *testing.T) {
	called := false
	caller := llm.CallerFunc(func(context.Context, string, string) string {
		called = true
		return "{}"
	})

	got := NewModelRecommender(caller, nil, nil).Recommend(context.Background(), domain.Issues{})
	assert.False(t, called)
	assert.Equal(t, domain.NewToolTasks(), got)
}

func TestRecommendPrompt(t *testing.T) {
	prompt := RecommendPrompt(domain.Issues{"one", "two"})

	assert.Contains(t, prompt, "- 'image_captioning_tool': Use if image alt attributes are missing or non-descriptive.")
	assert.Contains(t, prompt, "- 'video_transcription_tool': Use if video elements are missing captions.")
	assert.Contains(t, prompt, "If the file is not specified, write 'UNKNOWN'.")
	assert.Contains(t, prompt, "Accessibility Issues:\n- one\n- two\n")
}

func TestNew(t *testing.T) {
	caller := llm.CallerFunc(func(context.Context, string, string) string { return "" })

	r, err := New(config.RecommenderModel, caller, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &ModelRecommender{}, r)

	r, err = New(config.RecommenderPattern, nil, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &PatternRecommender{}, r)

	_, err = New(config.RecommenderModel, nil, nil, nil)
	assert.Error(t, err)

	_, err = New("oracle", caller, nil, nil)
	assert.ErrorContains(t, err, "unknown recommender mode")
}
