// Package config loads the optional YAML run configuration cmd/kpdg
// accepts as an alternative to passing every flag on the command line.
package config

import (
	"context"
	"fmt"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"
)

// Config mirrors cmd/kpdg's flag set, letting a run be checked into a
// repository instead of reconstructed on every invocation.
type Config struct {
	Module      string   `yaml:"module"`
	Patterns    []string `yaml:"patterns"`
	BoundaryDir string   `yaml:"boundaryDir"`
	Out         string   `yaml:"out"`
	SharedData  bool     `yaml:"sharedData"`
}

// Load reads a YAML config file via afs. A flag explicitly passed on
// the command line always overrides the matching config field --
// cmd/kpdg applies that precedence, Load only parses the file.
func Load(ctx context.Context, url string) (*Config, error) {
	fs := afs.New()
	content, err := fs.DownloadWithURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", url, err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", url, err)
	}
	return cfg, nil
}
