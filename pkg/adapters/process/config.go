package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EditorConfig describes an editor command that may open workflow documents.
// Args may contain the {path} placeholder; without one the path is appended.
type EditorConfig struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
}

// ConfigFile represents the structure of editors.yaml.
type ConfigFile struct {
	Editors []EditorConfig `yaml:"editors" json:"editors"`
}

// LoadEditors reads a configuration file (YAML or JSON) and returns the editors by name.
// A missing file means no editors are configured.
func LoadEditors(path string) (map[string]EditorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]EditorConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read editors config: %w", err)
	}

	var cfg ConfigFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	editors := make(map[string]EditorConfig)
	for _, e := range cfg.Editors {
		if e.Name == "" || e.Command == "" {
			continue
		}
		editors[e.Name] = e
	}
	return editors, nil
}
