package dictionary

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/digitalsleuth/dfir-glossary/pkg/export"
	"gopkg.in/yaml.v3"
)

// Record is one glossary entry as it appears in an import file.
type Record struct {
	Term       string `json:"term" yaml:"term"`
	Definition string `json:"definition" yaml:"definition"`
	Source     string `json:"source" yaml:"source"`
}

// LoadFile reads glossary records from a .csv, .json, .yaml or .yml file.
func LoadFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return parseCSV(data)
	case ".json":
		return parseJSON(data)
	case ".yaml", ".yml":
		return parseYAML(data)
	default:
		return nil, fmt.Errorf("unsupported glossary file type %q", ext)
	}
}

func parseCSV(data []byte) ([]Record, error) {
	rows, err := export.ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, Record{Term: r.Term, Definition: r.Definition, Source: r.Source})
	}
	return out, nil
}

// parseJSON accepts {"entries": [...]} or a bare array.
func parseJSON(data []byte) ([]Record, error) {
	var wrapped struct {
		Entries []Record `json:"entries"`
	}
	// Try parsing as full object wrapper first
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Entries) > 0 {
		return wrapped.Entries, nil
	}

	var entries []Record
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse glossary as object or array: %w", err)
	}
	return entries, nil
}

func parseYAML(data []byte) ([]Record, error) {
	var wrapped struct {
		Entries []Record `yaml:"entries"`
	}
	if err := yaml.Unmarshal(data, &wrapped); err == nil && len(wrapped.Entries) > 0 {
		return wrapped.Entries, nil
	}

	var entries []Record
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse glossary as mapping or sequence: %w", err)
	}
	return entries, nil
}
