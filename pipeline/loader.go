package pipeline

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load parses and validates a pipeline definition from r.
func Load(r io.Reader) (*Definition, error) {
	var def Definition

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&def); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline definition: %w", err)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadFile parses and validates a pipeline definition from a file.
func LoadFile(path string) (*Definition, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pipeline definition: %w", err)
	}
	defer file.Close()

	def, err := Load(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}
