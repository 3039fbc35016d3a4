package analysis

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/testforge/a11yforge/internal/chunker"
	"github.com/testforge/a11yforge/internal/domain"
)

// SystemPrompt is the system message every analyzer sends
const SystemPrompt = "You are an expert in web accessibility."

// Profile is everything that distinguishes one analyzer from another. The
// prompt text is data: it can be replaced from a prompts file without code
// changes.
type Profile struct {
	Name        string          `yaml:"name"`
	Language    domain.Language `yaml:"language"`
	System      string          `yaml:"system"`
	Subject     string          `yaml:"subject"`
	Checklist   []string        `yaml:"checklist"`
	Instruction string          `yaml:"instruction"`
	Example     string          `yaml:"example"`

	// ChunkTokens > 0 splits large content before analysis
	ChunkTokens int `yaml:"chunk_tokens"`
}

// Prompt renders the user message for one piece of content
func (p Profile) Prompt(content string) string {
	var b strings.Builder

	b.WriteString(p.Subject)
	if len(p.Checklist) > 0 {
		b.WriteString("\n")
		for _, item := range p.Checklist {
			b.WriteString("- ")
			b.WriteString(item)
			b.WriteString("\n")
		}
	} else {
		b.WriteString(" ")
	}
	b.WriteString(p.Instruction)
	b.WriteString("\n\n")
	b.WriteString(content)
	b.WriteString("\n\nExample output format:\n")
	b.WriteString(p.Example)

	return b.String()
}

// DOM analyzes the HTML document
func DOM() Profile {
	return Profile{
		Name:     "dom",
		Language: domain.LanguageHTML,
		System:   SystemPrompt,
		Subject:  "Analyze the following HTML code for accessibility issues.",
		Instruction: "Return a Python list of strings, each describing one accessibility issue in detail so that another system can understand and fix it easily. " +
			"Do NOT include severity levels, just a clear, concise description of the issue and the affected HTML element.",
		Example: "['Image element <img> missing alt text.', 'Heading levels are skipped or improperly nested.']",
	}
}

// CSS analyzes the concatenated stylesheets
func CSS() Profile {
	return Profile{
		Name:     "css",
		Language: domain.LanguageCSS,
		System:   SystemPrompt,
		Subject:  "Analyze the following CSS code for accessibility issues related to:",
		Checklist: []string{
			"Insufficient color contrast between text and background",
			"Using color alone to convey information",
			"Missing visible focus indicators on interactive elements",
			"Fixed font sizes that prevent resizing",
			"Overlapping or hidden content caused by positioning or z-index",
			"Animations or flashing that can trigger seizures",
			"Poor responsive design affecting usability",
		},
		Instruction: "Return a Python list of strings, each describing one accessibility issue clearly and fully for easy understanding and future fixing. " +
			"Do NOT include severity levels.",
		Example: "['Text color #ccc on white background has insufficient contrast.', 'Focus outline removed from buttons making keyboard navigation hard.']",
	}
}

// JS analyzes the concatenated scripts, chunk by chunk
func JS() Profile {
	return Profile{
		Name:     "js",
		Language: domain.LanguageJS,
		System:   SystemPrompt,
		Subject:  "Analyze the following JavaScript code for accessibility issues such as:",
		Checklist: []string{
			"Dynamic content updates without ARIA live region announcements",
			"Custom controls missing keyboard support",
			"Improper focus management (focus not moved or trapped incorrectly)",
			"Event handlers that only respond to mouse events",
			"Missing or incorrect ARIA roles on interactive elements",
			"Use of alert(), confirm(), prompt() dialogs that disrupt accessibility",
			"Content changes not announced to assistive technologies",
			"Tab order issues due to dynamic element manipulation",
		},
		Instruction: "Return a Python list of strings, each describing one issue clearly and fully for easy understanding and fixing. " +
			"Do NOT include severity levels.",
		Example:     "['Modal dialog does not move focus to itself when opened.', 'Custom dropdown does not support keyboard navigation.']",
		ChunkTokens: chunker.DefaultBudget,
	}
}

// Profiles holds one analyzer profile per language
type Profiles map[domain.Language]Profile

// DefaultProfiles returns the built-in profiles
func DefaultProfiles() Profiles {
	return Profiles{
		domain.LanguageHTML: DOM(),
		domain.LanguageCSS:  CSS(),
		domain.LanguageJS:   JS(),
	}
}

// promptsFile is the layout of a prompts override file:
//
//	analyzers:
//	  css:
//	    checklist:
//	      - Insufficient color contrast
type promptsFile struct {
	Analyzers map[domain.Language]Profile `yaml:"analyzers"`
}

// LoadProfiles returns the built-in profiles with any overrides from the
// YAML file at path applied field by field. An empty path returns the
// built-ins.
func LoadProfiles(path string) (Profiles, error) {
	profiles := DefaultProfiles()
	if path == "" {
		return profiles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompts file: %w", err)
	}
	return ApplyOverrides(profiles, data)
}

// ApplyOverrides merges YAML overrides into profiles
func ApplyOverrides(profiles Profiles, data []byte) (Profiles, error) {
	var file promptsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing prompts file: %w", err)
	}

	for lang, override := range file.Analyzers {
		if !lang.IsValid() {
			return nil, fmt.Errorf("prompts file: unknown language %q", lang)
		}
		base := profiles[lang]
		if override.Name != "" {
			base.Name = override.Name
		}
		if override.System != "" {
			base.System = override.System
		}
		if override.Subject != "" {
			base.Subject = override.Subject
		}
		if override.Checklist != nil {
			base.Checklist = override.Checklist
		}
		if override.Instruction != "" {
			base.Instruction = override.Instruction
		}
		if override.Example != "" {
			base.Example = override.Example
		}
		if override.ChunkTokens != 0 {
			base.ChunkTokens = override.ChunkTokens
		}
		profiles[lang] = base
	}

	return profiles, nil
}
