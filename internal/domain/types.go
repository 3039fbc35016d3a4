package domain

import (
	"path"
	"sort"
	"strings"
)

// Common types used across the remediation pipeline

// Language tags the kind of source asset
type Language string

const (
	LanguageHTML Language = "html"
	LanguageCSS  Language = "css"
	LanguageJS   Language = "js"
)

// Languages lists every supported asset language in pipeline order
var Languages = []Language{LanguageHTML, LanguageCSS, LanguageJS}

func (l Language) IsValid() bool {
	switch l {
	case LanguageHTML, LanguageCSS, LanguageJS:
		return true
	}
	return false
}

// Extension returns the file extension (with dot) for the language
func (l Language) Extension() string {
	return "." + string(l)
}

// LanguageFromPath infers the language from a file name
func LanguageFromPath(name string) (Language, bool) {
	switch strings.ToLower(path.Ext(name)) {
	case ".html", ".htm":
		return LanguageHTML, true
	case ".css":
		return LanguageCSS, true
	case ".js", ".mjs":
		return LanguageJS, true
	}
	return "", false
}

// Asset is one source file under analysis
type Asset struct {
	Name     string   `json:"name"`
	Path     string   `json:"path"`
	Language Language `json:"language"`
	Content  string   `json:"content"`
}

// Issues is an ordered list of accessibility problem descriptions.
// Order is discovery order; duplicates are allowed.
type Issues []string

// Tool identifiers understood by the pipeline. The set is open: a model may
// recommend other tools, which are carried through untouched.
const (
	ToolImageCaptioning    = "image_captioning_tool"
	ToolVideoTranscription = "video_transcription_tool"

	// UnknownFileRef marks a tool task whose file could not be located
	UnknownFileRef = "UNKNOWN"
)

// SupportedTools lists the tool ids every recommendation must contain
var SupportedTools = []string{ToolImageCaptioning, ToolVideoTranscription}

// ToolTasks maps a tool id to the file references it should process
type ToolTasks map[string][]string

// NewToolTasks returns a mapping with an empty list for every supported tool
func NewToolTasks() ToolTasks {
	tasks := make(ToolTasks, len(SupportedTools))
	for _, tool := range SupportedTools {
		tasks[tool] = []string{}
	}
	return tasks
}

// Ensure adds empty entries for any supported tool that is missing
func (t ToolTasks) Ensure() ToolTasks {
	if t == nil {
		return NewToolTasks()
	}
	for _, tool := range SupportedTools {
		if t[tool] == nil {
			t[tool] = []string{}
		}
	}
	return t
}

// Add appends a file reference to a tool, skipping duplicates
func (t ToolTasks) Add(tool, ref string) {
	for _, existing := range t[tool] {
		if existing == ref {
			return
		}
	}
	t[tool] = append(t[tool], ref)
}

// Tools returns the tool ids in lexical order
func (t ToolTasks) Tools() []string {
	tools := make([]string, 0, len(t))
	for tool := range t {
		tools = append(tools, tool)
	}
	sort.Strings(tools)
	return tools
}

// Captions maps an image reference to a one-sentence description
type Captions map[string]string

// CorrectionResult maps an asset file name to its corrected content.
// A missing key means no correction was produced for that file.
type CorrectionResult map[string]string

// Filenames returns the corrected file names in lexical order
func (r CorrectionResult) Filenames() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot is the collected input of one pipeline run
type Snapshot struct {
	HTML *Asset  `json:"html,omitempty"`
	CSS  []Asset `json:"css"`
	JS   []Asset `json:"js"`
}

// Assets returns the assets of one language
func (s *Snapshot) Assets(lang Language) []Asset {
	switch lang {
	case LanguageHTML:
		if s.HTML == nil {
			return nil
		}
		return []Asset{*s.HTML}
	case LanguageCSS:
		return s.CSS
	case LanguageJS:
		return s.JS
	}
	return nil
}

// IsEmpty reports whether the snapshot holds no assets at all
func (s *Snapshot) IsEmpty() bool {
	return s.HTML == nil && len(s.CSS) == 0 && len(s.JS) == 0
}

// IssueSet holds the analyzer output for every language
type IssueSet struct {
	HTML Issues `json:"html"`
	CSS  Issues `json:"css"`
	JS   Issues `json:"js"`
}

// For returns the issues of one language
func (s *IssueSet) For(lang Language) Issues {
	switch lang {
	case LanguageHTML:
		return s.HTML
	case LanguageCSS:
		return s.CSS
	case LanguageJS:
		return s.JS
	}
	return nil
}

// Set stores the issues of one language
func (s *IssueSet) Set(lang Language, issues Issues) {
	if issues == nil {
		issues = Issues{}
	}
	switch lang {
	case LanguageHTML:
		s.HTML = issues
	case LanguageCSS:
		s.CSS = issues
	case LanguageJS:
		s.JS = issues
	}
}

// Total returns the number of issues across all languages
func (s *IssueSet) Total() int {
	return len(s.HTML) + len(s.CSS) + len(s.JS)
}
