// Package config loads YAML configuration files with environment variable
// expansion and optional validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Validator is implemented by configuration types that check themselves
// after decoding.
type Validator interface {
	Validate() error
}

// Load decodes the YAML file into target, which should already hold the
// defaults, and validates it when target implements Validator.
//
// ${VAR} and $VAR are replaced from the environment before decoding;
// ${VAR:-fallback} uses fallback when VAR is unset or empty.
func Load[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}
	return Decode(data, target, filename)
}

// LoadOptional is Load for files that may be absent. It reports whether
// the file existed; target is left untouched and unvalidated when not.
func LoadOptional[T any](filename string, target *T) (bool, error) {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return true, Load(filename, target)
}

// Decode expands and decodes raw YAML. name is used in error messages.
func Decode[T any](data []byte, target *T, name string) error {
	expanded := os.Expand(string(data), lookupEnv)
	if err := yaml.Unmarshal([]byte(expanded), target); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", name, err)
	}

	if validator, ok := any(target).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	return nil
}

func lookupEnv(key string) string {
	name, fallback, hasFallback := strings.Cut(key, ":-")
	if v := os.Getenv(name); v != "" || !hasFallback {
		return v
	}
	return fallback
}
