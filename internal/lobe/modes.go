package lobe

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var errInvalidModeYAML = errors.New("invalid mode YAML frontmatter")

// builtinModes are the response styles always accepted, keyed by tag.
// The empty tag is the default style with no overlay.
var builtinModes = map[string]string{
	"":             "",
	"creative":     "Answer with vivid, lateral, unexpected framing.",
	"desi_analogy": "Explain through everyday Indian household analogies.",
	"neural_link":  "Answer as terse linked notes, one concept per line.",
	"eli5":         "Explain like the reader is five years old.",
	"debate":       "Argue both sides before concluding.",
	"debug_code":   "Walk through the code line by line hunting the defect.",
	"roast_code":   "Critique the code bluntly, then show the fix.",
	"arch_diagram": "Answer as an architecture description with ASCII diagrams.",
}

type modeFrontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// ModeSet validates response-mode tags and resolves their prompt
// overlays. Custom modes loaded from disk extend and may override the
// builtins.
type ModeSet struct {
	overlays map[string]string
}

func NewModeSet() *ModeSet {
	overlays := make(map[string]string, len(builtinModes))
	for name, prompt := range builtinModes {
		overlays[name] = prompt
	}
	return &ModeSet{overlays: overlays}
}

func (m *ModeSet) Valid(name string) bool {
	_, ok := m.overlays[name]
	return ok
}

// Prompt returns the overlay text for a mode, empty for the default.
func (m *ModeSet) Prompt(name string) string {
	return m.overlays[name]
}

func (m *ModeSet) Names() []string {
	names := make([]string, 0, len(m.overlays))
	for name := range m.overlays {
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// LoadModes reads custom mode files (*.md with YAML frontmatter) from
// dir. A missing directory is not an error. Files with broken
// frontmatter are skipped with a warning so one bad file cannot block
// startup.
func LoadModes(dir string) (*ModeSet, error) {
	set := NewModeSet()

	dir = strings.TrimSpace(dir)
	if dir == "" {
		return set, nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return set, nil
		}
		return nil, fmt.Errorf("stat modes dir %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("modes path is not a directory: %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read modes dir %q: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		name, prompt, err := parseModeFile(path)
		if err != nil {
			if errors.Is(err, errInvalidModeYAML) {
				log.Printf("[lobe] skip invalid mode file %s: %v", path, err)
				continue
			}
			return nil, err
		}
		set.overlays[name] = prompt
	}
	return set, nil
}

func parseModeFile(path string) (string, string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("read mode %q: %w", path, err)
	}

	meta, body, err := parseFrontmatter(content)
	if err != nil {
		return "", "", fmt.Errorf("parse mode %q: %w", path, err)
	}
	name := strings.ToLower(strings.TrimSpace(meta.Name))
	if name == "" {
		return "", "", fmt.Errorf("parse mode %q: missing name", path)
	}
	return name, strings.TrimSpace(body), nil
}

func parseFrontmatter(content []byte) (modeFrontmatter, string, error) {
	text := strings.TrimPrefix(string(content), "\uFEFF")
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return modeFrontmatter{}, "", fmt.Errorf("%w: missing opening separator", errInvalidModeYAML)
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		return modeFrontmatter{}, "", fmt.Errorf("%w: missing closing separator", errInvalidModeYAML)
	}

	var meta modeFrontmatter
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:end], "\n")), &meta); err != nil {
		return modeFrontmatter{}, "", fmt.Errorf("%w: %v", errInvalidModeYAML, err)
	}
	return meta, strings.Join(lines[end+1:], "\n"), nil
}
