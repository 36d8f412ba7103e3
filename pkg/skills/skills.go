// Package skills loads markdown skill files. A skill is a markdown body
// with YAML front matter naming it; skills marked inject are folded into
// every system prompt, the rest are summarized in a catalog.
package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Skill is one loaded skill file.
type Skill struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// Inject marks the skill body for unconditional inclusion in the
	// system prompt.
	Inject bool   `yaml:"inject"`
	Body   string `yaml:"-"`
}

// Library holds the loaded skill set. Load may run concurrently with
// readers when a watcher triggers reloads.
type Library struct {
	mu     sync.RWMutex
	dir    string
	skills map[string]Skill
	order  []string
	logger zerolog.Logger
}

// NewLibrary creates a library over a skills directory. The directory may
// be empty or missing; Load treats that as zero skills.
func NewLibrary(dir string, logger zerolog.Logger) *Library {
	return &Library{
		dir:    dir,
		skills: make(map[string]Skill),
		logger: logger.With().Str("component", "skills").Logger(),
	}
}

// Load reads every .md file in the directory, replacing the current set.
// Files that fail to parse are logged and skipped.
func (l *Library) Load() error {
	entries, err := os.ReadDir(l.dir)
	if os.IsNotExist(err) {
		l.replace(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read skills directory: %w", err)
	}

	var loaded []Skill
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(l.dir, entry.Name())
		skill, err := parseSkill(path)
		if err != nil {
			l.logger.Warn().Str("file", entry.Name()).Err(err).Msg("Skipping unparsable skill")
			continue
		}
		loaded = append(loaded, skill)
	}

	sort.Slice(loaded, func(i, j int) bool { return loaded[i].Name < loaded[j].Name })
	l.replace(loaded)
	l.logger.Info().Int("count", len(loaded)).Msg("Skills loaded")
	return nil
}

func (l *Library) replace(loaded []Skill) {
	skills := make(map[string]Skill, len(loaded))
	order := make([]string, 0, len(loaded))
	for _, s := range loaded {
		if _, dup := skills[s.Name]; dup {
			l.logger.Warn().Str("skill", s.Name).Msg("Duplicate skill name, keeping the first")
			continue
		}
		skills[s.Name] = s
		order = append(order, s.Name)
	}

	l.mu.Lock()
	l.skills = skills
	l.order = order
	l.mu.Unlock()
}

// Get returns a skill by name.
func (l *Library) Get(name string) (Skill, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.skills[name]
	return s, ok
}

// Catalog returns a one-line-per-skill summary for the system prompt, or
// "" when no skills are loaded.
func (l *Library) Catalog() string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var sb strings.Builder
	for _, name := range l.order {
		s := l.skills[name]
		fmt.Fprintf(&sb, "- %s: %s\n", s.Name, s.Description)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// AlwaysInjected returns the bodies of skills flagged for unconditional
// injection, in catalog order.
func (l *Library) AlwaysInjected() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var bodies []string
	for _, name := range l.order {
		if s := l.skills[name]; s.Inject {
			bodies = append(bodies, s.Body)
		}
	}
	return bodies
}

// parseSkill splits YAML front matter from the markdown body.
func parseSkill(path string) (Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Skill{}, err
	}

	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(content, "---\n") {
		return Skill{}, fmt.Errorf("missing front matter")
	}

	rest := content[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return Skill{}, fmt.Errorf("unterminated front matter")
	}

	var skill Skill
	if err := yaml.Unmarshal([]byte(rest[:end]), &skill); err != nil {
		return Skill{}, fmt.Errorf("invalid front matter: %w", err)
	}
	if skill.Name == "" {
		return Skill{}, fmt.Errorf("front matter is missing a name")
	}

	body := rest[end+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")
	skill.Body = strings.TrimSpace(body)
	return skill, nil
}
