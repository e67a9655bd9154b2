// Copyright Contributors to the CodeRun Operator project

package template

import (
	"embed"
	"io/fs"
	"os"
	"strings"
)

//go:embed templatefiles
var embedded embed.FS

const embeddedRoot = "templatefiles"

// defaultTemplatesPath is overridden by the AGENT_TEMPLATES_PATH env var.
const defaultTemplatesPath = "/app/templates"

// Source resolves template files either from an on-disk override directory
// (AGENT_TEMPLATES_PATH, matching a mounted `templates-shared`/
// `templates-integration` projected volume) or from the binary's embedded
// default set. Both support the two equivalent layouts described in
// SPEC_FULL.md §4.4.2: hierarchical (agents/<agent>/<job>/file) and
// flattened (agents_<agent>_<job>_file, as a ConfigMap would store it).
type Source struct {
	fsys fs.FS
	root string
}

// NewSourceFromEnv builds a Source rooted at AGENT_TEMPLATES_PATH if it
// exists on disk, otherwise at the embedded default template tree.
func NewSourceFromEnv() Source {
	path := os.Getenv("AGENT_TEMPLATES_PATH")
	if path == "" {
		path = defaultTemplatesPath
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return Source{fsys: os.DirFS(path)}
	}
	return Source{fsys: embedded, root: embeddedRoot}
}

func (s Source) join(path string) string {
	if s.root == "" {
		return path
	}
	return s.root + "/" + path
}

func flatten(hierarchicalPath string) string {
	return strings.ReplaceAll(hierarchicalPath, "/", "_")
}

// Read resolves hierarchicalPath, trying the hierarchical layout first and
// the flattened layout second. Returns (nil, false) if neither exists.
func (s Source) Read(hierarchicalPath string) ([]byte, bool) {
	if data, err := fs.ReadFile(s.fsys, s.join(hierarchicalPath)); err == nil {
		return data, true
	}
	if data, err := fs.ReadFile(s.fsys, s.join(flatten(hierarchicalPath))); err == nil {
		return data, true
	}
	return nil, false
}

// List returns every file under dir (hierarchical layout only — the
// flattened ConfigMap layout has no directory structure to walk, so hook
// discovery always happens against the hierarchical source; a ConfigMap
// mounted back as AGENT_TEMPLATES_PATH is itself a flat directory of files
// named with underscores, which List also walks correctly since fs.WalkDir
// over a flat directory just yields its files).
func (s Source) List(dir string) []string {
	var names []string
	root := s.join(dir)
	_ = fs.WalkDir(s.fsys, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		names = append(names, strings.TrimPrefix(path, s.join("")+"/"))
		return nil
	})
	return names
}

// ListFlat returns the base names of the files directly under dir (no
// recursion), used for hook discovery against the `code/` directory. It
// only lists a hierarchical directory: in the flattened layout there is no
// such directory and ListFlat returns nil.
func (s Source) ListFlat(dir string) []string {
	entries, err := fs.ReadDir(s.fsys, s.join(dir))
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}
