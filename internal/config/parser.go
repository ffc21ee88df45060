package config

import (
	"errors"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ErrFileNotFound is returned by LoadConfig when the path doesn't exist.
var ErrFileNotFound = errors.New("config: file not found")

// envPattern matches ${VAR} or ${VAR:-default}.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// LoadConfig reads path, substitutes environment variables, and parses it as
// YAML on top of DefaultConfig — any section or key the file omits keeps its
// default value.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML data on top of DefaultConfig, after substituting
// ${VAR}/${VAR:-default} environment variable references.
func ParseConfig(data []byte) (*Config, error) {
	data = substituteEnvVars(data)

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// substituteEnvVars replaces ${VAR} and ${VAR:-default} with the named
// environment variable's value, or default (or empty) if it is unset.
func substituteEnvVars(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		groups := envPattern.FindSubmatch(match)
		name := string(groups[1])
		def := string(groups[3])
		if v, ok := os.LookupEnv(name); ok {
			return []byte(v)
		}
		return []byte(def)
	})
}
