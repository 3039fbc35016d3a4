package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/testforge/a11yforge/internal/domain"
)

// Artifact names, relative to the artifact directory
const (
	ToolTasksArtifact = "tools/tool_tasks.json"
	CaptionsArtifact  = "captions/image_captions.json"
	ReportArtifact    = "run_report.json"
)

// IssuesArtifact returns the artifact name for one language's issues
func IssuesArtifact(lang domain.Language) string {
	return fmt.Sprintf("issues/issues_%s.json", lang)
}

// Artifacts persists intermediate results as indented UTF-8 JSON
type Artifacts struct {
	dir    string
	logger *zap.Logger
}

// NewArtifacts creates an artifact store rooted at dir
func NewArtifacts(dir string, logger *zap.Logger) *Artifacts {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Artifacts{dir: dir, logger: logger}
}

// Dir returns the artifact root
func (a *Artifacts) Dir() string {
	return a.dir
}

// SaveIssues persists the issues of one language
func (a *Artifacts) SaveIssues(lang domain.Language, issues domain.Issues) error {
	if issues == nil {
		issues = domain.Issues{}
	}
	return a.write(IssuesArtifact(lang), issues)
}

// LoadIssues reads the issues of one language. ok is false when the
// artifact does not exist.
func (a *Artifacts) LoadIssues(lang domain.Language) (issues domain.Issues, ok bool, err error) {
	ok, err = a.read(IssuesArtifact(lang), &issues)
	if ok && issues == nil {
		issues = domain.Issues{}
	}
	return issues, ok, err
}

// SaveToolTasks persists the tool recommendation
func (a *Artifacts) SaveToolTasks(tasks domain.ToolTasks) error {
	return a.write(ToolTasksArtifact, tasks.Ensure())
}

// LoadToolTasks reads the tool recommendation
func (a *Artifacts) LoadToolTasks() (domain.ToolTasks, bool, error) {
	var tasks domain.ToolTasks
	ok, err := a.read(ToolTasksArtifact, &tasks)
	if !ok || err != nil {
		return nil, ok, err
	}
	return tasks.Ensure(), true, nil
}

// SaveCaptions persists generated captions
func (a *Artifacts) SaveCaptions(captions domain.Captions) error {
	if captions == nil {
		captions = domain.Captions{}
	}
	return a.write(CaptionsArtifact, captions)
}

// LoadCaptions reads generated captions
func (a *Artifacts) LoadCaptions() (domain.Captions, bool, error) {
	var captions domain.Captions
	ok, err := a.read(CaptionsArtifact, &captions)
	if ok && captions == nil {
		captions = domain.Captions{}
	}
	return captions, ok, err
}

// SaveReport persists the run report
func (a *Artifacts) SaveReport(report *domain.RunReport) error {
	return a.write(ReportArtifact, report)
}

// LoadReport reads the run report
func (a *Artifacts) LoadReport() (*domain.RunReport, bool, error) {
	var report domain.RunReport
	ok, err := a.read(ReportArtifact, &report)
	if !ok || err != nil {
		return nil, ok, err
	}
	return &report, true, nil
}

// Files lists the artifacts present, as slash-separated relative paths
func (a *Artifacts) Files() ([]string, error) {
	return listFiles(a.dir)
}

func (a *Artifacts) write(name string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return domain.ErrArtifact(name, err)
	}

	p := filepath.Join(a.dir, filepath.FromSlash(name))
	if err := writeFileAtomic(p, buf.Bytes(), 0o644); err != nil {
		return domain.ErrArtifact(name, err)
	}

	a.logger.Debug("saved artifact", zap.String("artifact", name))
	return nil
}

func (a *Artifacts) read(name string, v any) (bool, error) {
	p := filepath.Join(a.dir, filepath.FromSlash(name))
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, domain.ErrArtifact(name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, domain.ErrArtifact(name, err)
	}
	return true, nil
}

// listFiles returns the regular files under root, relative and sorted
func listFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == root {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
