package personas

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dyike/AnalystCouncil/config"
	"github.com/dyike/AnalystCouncil/consts"
	"github.com/dyike/AnalystCouncil/models"
	"gopkg.in/yaml.v3"
)

//go:embed roster.yaml prompts
var embedded embed.FS

// Entry describes one council member as written in the roster file.
type Entry struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	Style         string `yaml:"style"`
	Prompt        string `yaml:"prompt"`
	PromptFile    string `yaml:"prompt_file"`
	Persona       string `yaml:"persona"`
	PrimaryModel  string `yaml:"primary_model"`
	FallbackModel string `yaml:"fallback_model"`
}

type Roster struct {
	Experts []Entry `yaml:"experts"`
	Chair   Entry   `yaml:"chair"`

	baseDir string
}

// Load reads the roster at path, or the embedded default roster when path is empty.
func Load(path string) (*Roster, error) {
	var (
		data []byte
		err  error
	)
	if strings.TrimSpace(path) == "" {
		data, err = embedded.ReadFile("roster.yaml")
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}

	var roster Roster
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	if path != "" {
		roster.baseDir = filepath.Dir(path)
	}
	if err := roster.resolve(); err != nil {
		return nil, err
	}
	if err := roster.Validate(); err != nil {
		return nil, err
	}
	return &roster, nil
}

func (r *Roster) Validate() error {
	var errs []error
	if len(r.Experts) != consts.ExpertCount {
		errs = append(errs, fmt.Errorf("roster must list exactly %d experts, got %d", consts.ExpertCount, len(r.Experts)))
	}
	seen := make(map[string]bool, len(r.Experts)+1)
	for i, e := range append(append([]Entry{}, r.Experts...), r.Chair) {
		if e.ID == "" {
			errs = append(errs, fmt.Errorf("roster entry %d has no id", i+1))
			continue
		}
		if seen[e.ID] {
			errs = append(errs, fmt.Errorf("duplicate roster id %q", e.ID))
		}
		seen[e.ID] = true
		if strings.TrimSpace(e.Persona) == "" {
			errs = append(errs, fmt.Errorf("roster entry %q has an empty persona", e.ID))
		}
	}
	return errors.Join(errs...)
}

// resolve fills Persona from the embedded prompt or prompt_file when no inline persona is given.
func (r *Roster) resolve() error {
	for i := range r.Experts {
		if err := r.resolveEntry(&r.Experts[i]); err != nil {
			return err
		}
	}
	return r.resolveEntry(&r.Chair)
}

func (r *Roster) resolveEntry(e *Entry) error {
	if e.Name == "" {
		e.Name = e.ID
	}
	switch {
	case strings.TrimSpace(e.Persona) != "":
		return nil
	case e.PromptFile != "":
		path := e.PromptFile
		if !filepath.IsAbs(path) && r.baseDir != "" {
			path = filepath.Join(r.baseDir, path)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("load prompt for %s: %w", e.ID, err)
		}
		e.Persona = string(content)
	case e.Prompt != "":
		content, err := LoadPrompt(e.Prompt)
		if err != nil {
			return err
		}
		e.Persona = content
	}
	return nil
}

// LoadPrompt loads a prompt from the embedded markdown files
func LoadPrompt(name string) (string, error) {
	content, err := embedded.ReadFile(fmt.Sprintf("prompts/%s.md", name))
	if err != nil {
		return "", fmt.Errorf("failed to load prompt %s: %w", name, err)
	}
	return string(content), nil
}

// Identities binds the roster to the configured model policy. Per-entry model ids win over the defaults.
func (r *Roster) Identities(cfg *config.Config) ([]models.AgentIdentity, models.AgentIdentity) {
	experts := make([]models.AgentIdentity, 0, len(r.Experts))
	for _, e := range r.Experts {
		experts = append(experts, e.identity(cfg.ExpertPrimaryModel, cfg.ExpertFallbackModel))
	}
	return experts, r.Chair.identity(cfg.ChairPrimaryModel, cfg.ChairFallbackModel)
}

func (e Entry) identity(primary, fallback string) models.AgentIdentity {
	if e.PrimaryModel != "" {
		primary = e.PrimaryModel
	}
	if e.FallbackModel != "" {
		fallback = e.FallbackModel
	}
	return models.AgentIdentity{
		ID:            e.ID,
		Name:          e.Name,
		Style:         e.Style,
		Persona:       e.Persona,
		PrimaryModel:  primary,
		FallbackModel: fallback,
	}
}
