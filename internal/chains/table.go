package chains

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed chains.yaml
var defaultTable []byte

type tableFile struct {
	Chains []ChainConfig `yaml:"chains"`
}

// Default returns the registry built from the embedded chain table.
func Default() (*Registry, error) {
	return Parse(defaultTable)
}

// Load builds a registry from a user-supplied YAML table.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chain table: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML chain table.
func Parse(data []byte) (*Registry, error) {
	var tf tableFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse chain table: %w", err)
	}
	if len(tf.Chains) == 0 {
		return nil, fmt.Errorf("parse chain table: no chains defined")
	}
	return New(tf.Chains)
}
