// Package keywords holds the fixed tables that drive relevance filtering
// and topic tagging. Tables are loaded once at startup and never mutated.
package keywords

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Tables is the full keyword configuration.
type Tables struct {
	Block  []string          `yaml:"block"`
	Teams  []string          `yaml:"teams"`
	Topics map[string]string `yaml:"topics"`
}

var (
	defaultOnce   sync.Once
	defaultTables Tables
)

// Default returns the built-in tables.
func Default() Tables {
	defaultOnce.Do(func() {
		t, err := Parse(defaultYAML)
		if err != nil {
			panic(fmt.Sprintf("keywords: embedded defaults: %v", err))
		}
		defaultTables = t
	})
	return defaultTables.clone()
}

// Load reads tables from a YAML file. An empty path yields the defaults.
func Load(path string) (Tables, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("read keyword tables %s: %w", path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return Tables{}, fmt.Errorf("keyword tables %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes and validates tables from YAML.
func Parse(data []byte) (Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Tables{}, fmt.Errorf("parse: %w", err)
	}
	t.Block = normalize(t.Block)
	t.Teams = normalize(t.Teams)
	if err := t.Validate(); err != nil {
		return Tables{}, err
	}
	return t, nil
}

// Validate rejects tables that would make every item fail the team check.
func (t Tables) Validate() error {
	if len(t.Teams) == 0 {
		return errors.New("teams table is empty")
	}
	return nil
}

func (t Tables) clone() Tables {
	out := Tables{
		Block:  append([]string(nil), t.Block...),
		Teams:  append([]string(nil), t.Teams...),
		Topics: make(map[string]string, len(t.Topics)),
	}
	for k, v := range t.Topics {
		out.Topics[k] = v
	}
	return out
}

// normalize lowercases, trims and drops blank or repeated phrases.
func normalize(phrases []string) []string {
	seen := make(map[string]bool, len(phrases))
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.Join(strings.Fields(p), " "))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
