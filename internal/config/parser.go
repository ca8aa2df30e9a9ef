// Package config provides target definition parsing and settings resolution.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opsdeck/dbackup/internal/models"
)

// Parser handles target definition file parsing.
type Parser struct{}

// NewParser creates a new target definition parser.
func NewParser() *Parser {
	return &Parser{}
}

// LoadFile loads target definitions from a file path.
func (p *Parser) LoadFile(path string) ([]models.Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse(data)
}

// LoadReader loads target definitions from a string (useful for testing).
func (p *Parser) LoadReader(content string) ([]models.Target, error) {
	return p.parse([]byte(content))
}

// targetRecord mirrors the YAML shape of a single target entry.
type targetRecord struct {
	Type     string `yaml:"type"`
	Socket   string `yaml:"socket"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// parse decodes the document through yaml.Node rather than a plain map so
// targets keep the order they were written in.
func (p *Parser) parse(data []byte) ([]models.Target, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("config defines no backup targets")
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("config root must be a mapping of target names (line %d)", root.Line)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("config defines no backup targets")
	}

	targets := make([]models.Target, 0, len(root.Content)/2)
	seen := make(map[string]bool, len(root.Content)/2)

	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode := root.Content[i]
		valNode := root.Content[i+1]

		name := keyNode.Value
		if name == "" {
			return nil, fmt.Errorf("target name must not be empty (line %d)", keyNode.Line)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate target name %q (line %d)", name, keyNode.Line)
		}
		seen[name] = true

		if valNode.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("target %q must be a mapping (line %d)", name, valNode.Line)
		}

		var record targetRecord
		if err := valNode.Decode(&record); err != nil {
			return nil, fmt.Errorf("target %q: %w", name, err)
		}

		targets = append(targets, models.Target{
			Name:     name,
			Type:     record.Type,
			Socket:   expandEnv(record.Socket),
			User:     expandEnv(record.User),
			Password: expandEnv(record.Password),
		})
	}

	return targets, nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// ValidateTarget checks that a target definition carries every required key.
// No defaults are substituted; a target missing a key is invalid on its own
// without affecting the rest of the batch.
func ValidateTarget(t models.Target) error {
	if t.Type == "" {
		return fmt.Errorf("target %q: type is required", t.Name)
	}
	if t.Socket == "" {
		return fmt.Errorf("target %q: socket is required", t.Name)
	}
	if t.User == "" {
		return fmt.Errorf("target %q: user is required", t.Name)
	}
	if t.Password == "" {
		return fmt.Errorf("target %q: password is required", t.Name)
	}

	return nil
}
