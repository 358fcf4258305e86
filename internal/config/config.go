// Package config loads the application configuration from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/egoscan/egoscan/internal/chrome"
	"github.com/egoscan/egoscan/internal/finder"
)

type Config struct {
	Chrome chrome.Options `json:"chrome" yaml:"chrome"`
	Finder finder.Config  `json:"finder" yaml:"finder"`

	Server struct {
		Listen string `json:"listen" yaml:"listen"`
	} `json:"server" yaml:"server"`

	Output struct {
		Path   string `json:"path" yaml:"path"`
		Format string `json:"format" yaml:"format"`
	} `json:"output" yaml:"output"`

	Verbose bool `json:"verbose" yaml:"verbose"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var c Config
	c.Chrome = chrome.DefaultOptions()
	c.Finder = finder.DefaultConfig()
	c.Server.Listen = "127.0.0.1:8000"
	c.Output.Path = "report.json"
	c.Output.Format = "json"
	return c
}

// Load reads a YAML file over the defaults. A missing path yields the
// defaults unchanged.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses YAML bytes over the defaults, expanding environment
// variable references first.
func LoadFromBytes(data []byte) (Config, error) {
	c := Default()
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &c); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}
