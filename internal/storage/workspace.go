// Package storage is the filesystem side of a remediation run: the
// downloaded snapshot it reads, the mirrored output tree it writes, the JSON
// artifacts persisted between stages and an optional object-store mirror.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/testforge/a11yforge/internal/config"
	"github.com/testforge/a11yforge/internal/domain"
)

// ErrOutsideRoot is returned for references that escape their directory
var ErrOutsideRoot = errors.New("path escapes its root directory")

// Layout describes where a run reads and writes
type Layout struct {
	InputDir    string
	OutputDir   string
	ArtifactDir string
	HTMLFile    string
	CSSDir      string
	JSDir       string
	ImagesDir   string

	// File name prefixes skipped when collecting CSS/JS
	ExcludePrefixes []string
}

// LayoutFromConfig builds a layout from pipeline settings
func LayoutFromConfig(cfg config.PipelineConfig) Layout {
	return Layout{
		InputDir:        cfg.InputDir,
		OutputDir:       cfg.OutputDir,
		ArtifactDir:     cfg.ArtifactDir,
		HTMLFile:        cfg.HTMLFile,
		CSSDir:          cfg.CSSDir,
		JSDir:           cfg.JSDir,
		ImagesDir:       cfg.ImagesDir,
		ExcludePrefixes: cfg.ExcludePrefixes,
	}
}

// DefaultLayout mirrors the config defaults, rooted at dir
func DefaultLayout(dir string) Layout {
	return Layout{
		InputDir:        filepath.Join(dir, "before"),
		OutputDir:       filepath.Join(dir, "after"),
		ArtifactDir:     filepath.Join(dir, "outputs"),
		HTMLFile:        "index.html",
		CSSDir:          "css",
		JSDir:           "js",
		ImagesDir:       "images",
		ExcludePrefixes: []string{"ajax"},
	}
}

// Under moves the input, output and artifact roots into dir, keeping their
// base names
func (l Layout) Under(dir string) Layout {
	if dir == "" {
		return l
	}
	l.InputDir = filepath.Join(dir, filepath.Base(l.InputDir))
	l.OutputDir = filepath.Join(dir, filepath.Base(l.OutputDir))
	l.ArtifactDir = filepath.Join(dir, filepath.Base(l.ArtifactDir))
	return l
}

// subdir returns the directory of lang relative to the input/output root
func (l Layout) subdir(lang domain.Language) string {
	switch lang {
	case domain.LanguageCSS:
		return l.CSSDir
	case domain.LanguageJS:
		return l.JSDir
	}
	return ""
}

// Workspace bundles the three filesystem collaborators of a run
type Workspace struct {
	Layout    Layout
	Source    *Source
	Output    *Output
	Artifacts *Artifacts
}

// NewWorkspace creates a workspace over layout
func NewWorkspace(layout Layout, logger *zap.Logger) *Workspace {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("storage")

	return &Workspace{
		Layout:    layout,
		Source:    &Source{layout: layout, logger: logger},
		Output:    &Output{layout: layout, logger: logger},
		Artifacts: &Artifacts{dir: layout.ArtifactDir, logger: logger},
	}
}

// Source reads the downloaded snapshot
type Source struct {
	layout Layout
	logger *zap.Logger
}

// HTML reads the HTML document. A missing document is not an error: it
// returns nil.
func (s *Source) HTML() (*domain.Asset, error) {
	p := filepath.Join(s.layout.InputDir, s.layout.HTMLFile)
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("HTML document not found", zap.String("path", p))
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}

	return &domain.Asset{
		Name:     filepath.ToSlash(s.layout.HTMLFile),
		Path:     p,
		Language: domain.LanguageHTML,
		Content:  string(data),
	}, nil
}

// Files reads every CSS or JS file under the language directory,
// recursively, in lexical name order. Names are slash-separated paths
// relative to that directory. A missing directory yields no files.
func (s *Source) Files(lang domain.Language) ([]domain.Asset, error) {
	if lang != domain.LanguageCSS && lang != domain.LanguageJS {
		return nil, fmt.Errorf("no file directory for language %q", lang)
	}

	root := filepath.Join(s.layout.InputDir, s.layout.subdir(lang))
	var assets []domain.Asset

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
		if got, ok := domain.LanguageFromPath(d.Name()); !ok || got != lang {
			return nil
		}
		if s.excluded(d.Name()) {
			s.logger.Debug("skipping excluded file", zap.String("path", p))
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", p, err)
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}

		assets = append(assets, domain.Asset{
			Name:     filepath.ToSlash(rel),
			Path:     p,
			Language: lang,
			Content:  string(data),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(assets, func(i, j int) bool { return assets[i].Name < assets[j].Name })
	return assets, nil
}

func (s *Source) excluded(name string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range s.layout.ExcludePrefixes {
		prefix = strings.ToLower(strings.TrimSpace(prefix))
		if prefix != "" && strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// Snapshot collects the HTML document and all CSS/JS files. It fails with
// domain.ErrMissingInput when there is nothing to work on.
func (s *Source) Snapshot() (*domain.Snapshot, error) {
	html, err := s.HTML()
	if err != nil {
		return nil, err
	}
	css, err := s.Files(domain.LanguageCSS)
	if err != nil {
		return nil, err
	}
	js, err := s.Files(domain.LanguageJS)
	if err != nil {
		return nil, err
	}

	snap := &domain.Snapshot{HTML: html, CSS: css, JS: js}
	if snap.IsEmpty() {
		return nil, domain.ErrInputMissing(fmt.Sprintf("no HTML, CSS or JS under %s", s.layout.InputDir))
	}
	return snap, nil
}

// Image reads an image by the reference a tool task carries. The reference
// is resolved against the images directory; a reference that already
// starts with the images directory name is resolved against the input root.
func (s *Source) Image(ref string) ([]byte, error) {
	if ref == "" || ref == domain.UnknownFileRef {
		return nil, domain.ErrInputMissing("image reference")
	}

	imagesRoot := filepath.Join(s.layout.InputDir, s.layout.ImagesDir)
	candidates := []string{}
	if p, err := within(imagesRoot, ref); err == nil {
		candidates = append(candidates, p)
	}
	clean := path.Clean(strings.TrimPrefix(filepath.ToSlash(ref), "/"))
	if s.layout.ImagesDir != "" && strings.HasPrefix(clean, s.layout.ImagesDir+"/") {
		if p, err := within(s.layout.InputDir, clean); err == nil {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%s: %w", ref, ErrOutsideRoot)
	}

	var lastErr error
	for _, p := range candidates {
		data, err := os.ReadFile(p)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// within joins ref onto root and rejects results outside root
func within(root, ref string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(ref))
	if clean == "/" {
		return "", ErrOutsideRoot
	}
	joined := filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
	rel, err := filepath.Rel(root, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return joined, nil
}

// Output writes corrected assets into a tree that mirrors the input
type Output struct {
	layout Layout
	logger *zap.Logger
}

// Path returns where an asset of lang named name is written
func (o *Output) Path(lang domain.Language, name string) (string, error) {
	return within(filepath.Join(o.layout.OutputDir, o.layout.subdir(lang)), name)
}

// Write stores content atomically and returns the written path
func (o *Output) Write(lang domain.Language, name, content string) (string, error) {
	p, err := o.Path(lang, name)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	if err := writeFileAtomic(p, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", p, err)
	}
	o.logger.Debug("wrote asset", zap.String("language", string(lang)), zap.String("path", p))
	return p, nil
}

// Root returns the output root directory
func (o *Output) Root() string {
	return o.layout.OutputDir
}

// writeFileAtomic writes through a temp file in the target directory and
// renames it into place
func writeFileAtomic(p string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(p)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, p); err != nil {
		return err
	}
	committed = true
	return nil
}
