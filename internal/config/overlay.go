package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileOverlay is the optional on-disk config document pointed to by
// HUB_CONFIG_FILE. It only ever supplies defaults for the tag-velocity
// table and the recognized scope list; every other setting stays
// environment-only.
type fileOverlay struct {
	TagVelocity map[string]int `yaml:"tag_velocity"`
	Scopes      []string       `yaml:"scopes"`
}

func loadFileOverlay(path string) (*fileOverlay, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hub config file %q: %w", path, err)
	}
	var overlay fileOverlay
	if err := yaml.Unmarshal(b, &overlay); err != nil {
		return nil, fmt.Errorf("parse hub config file %q: %w", path, err)
	}
	return &overlay, nil
}
