package docsmith

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Travbz/doc-smith/internal/infra/config"
)

var languageByExt = map[string]string{
	".go":   "Go",
	".py":   "Python",
	".js":   "JavaScript",
	".jsx":  "JavaScript",
	".ts":   "TypeScript",
	".tsx":  "TypeScript",
	".java": "Java",
	".rb":   "Ruby",
	".rs":   "Rust",
	".php":  "PHP",
	".cs":   "C#",
}

// FileSample is one scanned source file.
type FileSample struct {
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	Language  string `json:"language,omitempty"`
	Content   string `json:"content,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Structure summarizes a working copy for analysis prompts.
type Structure struct {
	Root        string         `json:"root"`
	Files       []FileSample   `json:"files"`
	Directories []string       `json:"directories"`
	Languages   map[string]int `json:"languages"`
	// Matched counts every file that passed the filters, including those
	// dropped by the file cap.
	Matched int `json:"matched"`
}

// Digest renders the structure as prompt text, spending at most maxChars on
// file contents.
func (s *Structure) Digest(maxChars int) string {
	var b strings.Builder
	langs := make([]string, 0, len(s.Languages))
	for l := range s.Languages {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	b.WriteString("Languages:")
	for _, l := range langs {
		fmt.Fprintf(&b, " %s(%d)", l, s.Languages[l])
	}
	b.WriteString("\nFiles:\n")
	for _, f := range s.Files {
		fmt.Fprintf(&b, "- %s (%d bytes)\n", f.Path, f.Size)
	}
	if s.Matched > len(s.Files) {
		fmt.Fprintf(&b, "(%d more files not shown)\n", s.Matched-len(s.Files))
	}

	budget := maxChars
	for _, f := range s.Files {
		if budget <= 0 || f.Content == "" {
			break
		}
		content := f.Content
		if len(content) > budget {
			content = content[:budget]
		}
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", f.Path, content)
		budget -= len(content)
	}
	return b.String()
}

// Scanner collects source files from a working copy.
type Scanner struct {
	include      []string
	exclude      []string
	maxFiles     int
	maxFileBytes int
}

// NewScanner creates a Scanner from the scan section of the config.
func NewScanner(cfg config.ScanConfig) *Scanner {
	return &Scanner{
		include:      cfg.Include,
		exclude:      cfg.Exclude,
		maxFiles:     cfg.MaxFiles,
		maxFileBytes: cfg.MaxFileBytes,
	}
}

// Scan walks root and returns the matching files in lexical order.
func (s *Scanner) Scan(ctx context.Context, root string) (*Structure, error) {
	st := &Structure{Root: root, Languages: make(map[string]int)}
	dirs := make(map[string]bool)

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || s.excludedDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !s.matches(rel) {
			return nil
		}

		st.Matched++
		if s.maxFiles > 0 && len(st.Files) >= s.maxFiles {
			return nil
		}
		sample, err := s.sample(p, rel)
		if err != nil {
			return err
		}
		st.Files = append(st.Files, sample)
		if sample.Language != "" {
			st.Languages[sample.Language]++
		}
		if dir := path.Dir(rel); dir != "." {
			dirs[dir] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	st.Directories = make([]string, 0, len(dirs))
	for d := range dirs {
		st.Directories = append(st.Directories, d)
	}
	sort.Strings(st.Directories)
	return st, nil
}

func (s *Scanner) sample(full, rel string) (FileSample, error) {
	f, err := os.Open(full)
	if err != nil {
		return FileSample{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return FileSample{}, err
	}

	sample := FileSample{
		Path:     rel,
		Size:     info.Size(),
		Language: languageByExt[strings.ToLower(path.Ext(rel))],
	}
	var r io.Reader = f
	if s.maxFileBytes > 0 {
		r = io.LimitReader(f, int64(s.maxFileBytes))
		sample.Truncated = info.Size() > int64(s.maxFileBytes)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return FileSample{}, err
	}
	sample.Content = string(data)
	return sample, nil
}

func (s *Scanner) matches(rel string) bool {
	base := path.Base(rel)
	if len(s.include) > 0 && !matchAny(s.include, rel, base) {
		return false
	}
	return !matchAny(s.exclude, rel, base)
}

// excludedDir reports whether a "dir/*" style exclude pattern covers rel.
func (s *Scanner) excludedDir(rel string) bool {
	base := path.Base(rel)
	for _, p := range s.exclude {
		dirPat, ok := strings.CutSuffix(p, "/*")
		if !ok {
			continue
		}
		if matchAny([]string{dirPat, strings.TrimPrefix(dirPat, "*/")}, rel, base) {
			return true
		}
	}
	return false
}

func matchAny(patterns []string, rel, base string) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(p, rel); ok {
			return true
		}
		if ok, _ := path.Match(p, base); ok {
			return true
		}
	}
	return false
}
