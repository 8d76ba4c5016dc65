package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Preset is a named quick-configuration bundle: one selection of models and
// tools that can be applied over the loaded config in a single step.
type Preset struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	MainAgent   struct {
		ModelName     string `yaml:"model_name"`
		ModelProvider string `yaml:"model_provider"`
		MaxRetries    *int   `yaml:"max_retries"`
	} `yaml:"main_agent"`
	MetadataExtractor struct {
		ModelName     string `yaml:"model_name"`
		ModelProvider string `yaml:"model_provider"`
	} `yaml:"metadata_extractor"`
	Searcher struct {
		ModelName       string   `yaml:"model_name"`
		ModelProvider   string   `yaml:"model_provider"`
		MaxSearchTokens *int     `yaml:"max_search_tokens"`
		SelectedTools   []string `yaml:"selected_tools"`
	} `yaml:"searcher"`
}

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

// LoadPresets reads quick-configuration presets from a YAML file.
func LoadPresets(path string) ([]Preset, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- path comes from the user's own flag.
	if err != nil {
		return nil, fmt.Errorf("read presets file %q: %w", path, err)
	}

	var decoded presetFile
	if err := yaml.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode presets file %q: %w", path, err)
	}

	seen := make(map[string]struct{}, len(decoded.Presets))
	for _, preset := range decoded.Presets {
		name := strings.TrimSpace(preset.Name)
		if name == "" {
			return nil, fmt.Errorf("presets file %q contains a preset without a name", path)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("presets file %q names preset %q twice", path, name)
		}
		seen[name] = struct{}{}
	}
	return decoded.Presets, nil
}

// FindPreset returns the preset with the given name.
func FindPreset(presets []Preset, name string) (Preset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Preset{}, errors.New("preset name must not be empty")
	}
	for _, preset := range presets {
		if strings.EqualFold(strings.TrimSpace(preset.Name), name) {
			return preset, nil
		}
	}
	return Preset{}, fmt.Errorf("preset %q not found", name)
}

// Apply overlays the preset's non-empty selections onto cfg.
func (p Preset) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if name := strings.TrimSpace(p.MainAgent.ModelName); name != "" {
		cfg.MainAgent.ModelName = name
	}
	if provider := strings.TrimSpace(p.MainAgent.ModelProvider); provider != "" {
		cfg.MainAgent.ModelProvider = provider
	}
	if p.MainAgent.MaxRetries != nil {
		cfg.MainAgent.MaxRetries = *p.MainAgent.MaxRetries
	}
	if name := strings.TrimSpace(p.MetadataExtractor.ModelName); name != "" {
		cfg.MetadataExtractor.ModelName = name
	}
	if provider := strings.TrimSpace(p.MetadataExtractor.ModelProvider); provider != "" {
		cfg.MetadataExtractor.ModelProvider = provider
	}
	if name := strings.TrimSpace(p.Searcher.ModelName); name != "" {
		cfg.Searcher.ModelName = name
	}
	if provider := strings.TrimSpace(p.Searcher.ModelProvider); provider != "" {
		cfg.Searcher.ModelProvider = provider
	}
	if p.Searcher.MaxSearchTokens != nil {
		cfg.Searcher.MaxSearchTokens = *p.Searcher.MaxSearchTokens
	}
	if len(p.Searcher.SelectedTools) > 0 {
		cfg.Searcher.SelectedTools = append([]string(nil), p.Searcher.SelectedTools...)
	}
}
