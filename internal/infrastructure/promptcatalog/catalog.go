package promptcatalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog is the operator supplied prompt file.
//
//	system_prompt: |
//	  You are a helpful AI assistant.
//	diagnostic_resources:
//	  server: ./notes/server.txt
type Catalog struct {
	SystemPrompt        string            `yaml:"system_prompt"`
	DiagnosticResources map[string]string `yaml:"diagnostic_resources"`
}

// Load reads the catalog at path. Relative resource paths are resolved
// against the catalog's directory. An empty path yields an empty catalog.
func Load(path string) (*Catalog, error) {
	catalog := &Catalog{DiagnosticResources: map[string]string{}}
	path = strings.TrimSpace(path)
	if path == "" {
		return catalog, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt catalog: %w", err)
	}
	if err := yaml.Unmarshal(data, catalog); err != nil {
		return nil, fmt.Errorf("parse prompt catalog %s: %w", path, err)
	}
	if catalog.DiagnosticResources == nil {
		catalog.DiagnosticResources = map[string]string{}
	}

	base := filepath.Dir(path)
	for name, p := range catalog.DiagnosticResources {
		if strings.TrimSpace(name) == "" || strings.TrimSpace(p) == "" {
			return nil, fmt.Errorf("prompt catalog %s: diagnostic resource entries need a name and a path", path)
		}
		if !filepath.IsAbs(p) {
			catalog.DiagnosticResources[name] = filepath.Join(base, p)
		}
	}
	catalog.SystemPrompt = strings.TrimSpace(catalog.SystemPrompt)
	return catalog, nil
}

// SystemPromptOr returns the catalog prompt, or fallback when none is set.
func (c *Catalog) SystemPromptOr(fallback string) string {
	if c == nil || c.SystemPrompt == "" {
		return fallback
	}
	return c.SystemPrompt
}
