package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configFilename = "ddbupdate.yaml"

// Config holds defaults for every command.
// Loaded from ddbupdate.yaml if present, flags take precedence.
type Config struct {
	// Region and Profile select the AWS account `apply` talks to.
	Region  string `yaml:"region"`
	Profile string `yaml:"profile"`
	// Endpoint overrides the DynamoDB endpoint, e.g. for DynamoDB Local.
	Endpoint string `yaml:"endpoint"`

	LogLevel string `yaml:"logLevel"`
}

// LoadConfig searches for ddbupdate.yaml starting from dir and walking up to
// the filesystem root. Returns an empty config if not found.
func LoadConfig(dir string) (Config, error) {
	var cfg Config

	configPath := findConfigFile(dir)
	if configPath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", configPath, err)
	}
	return cfg, nil
}

func findConfigFile(dir string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(dir, configFilename)
		if _, err := os.Stat(path); err == nil {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			return ""
		}
		dir = parent
	}
}
