package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// Sources names the optional inputs layered over DefaultConfig.
type Sources struct {
	// File is a YAML configuration file. Empty skips the file layer.
	File string
	// EnvFile is a dotenv file. A missing file is not an error.
	EnvFile string
}

// Load builds the configuration from defaults, the YAML file, the dotenv
// file and the process environment, then validates it.
func Load(src Sources) (*Config, error) {
	cfg := DefaultConfig()

	if src.File != "" {
		if err := loadFile(cfg, src.File); err != nil {
			return nil, err
		}
	}

	if src.EnvFile != "" {
		if err := loadEnvFile(src.EnvFile); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader overlays YAML read from r onto the defaults without
// consulting the environment beyond ${VAR} substitution.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := parseYAML(cfg, data); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := parseYAML(cfg, data); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}

func parseYAML(cfg *Config, data []byte) error {
	content := substituteEnvVars(string(data))

	dec := yaml.NewDecoder(bytes.NewReader([]byte(content)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// loadEnvFile loads a dotenv file into the process environment. Variables
// already set in the environment win.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides cfg with every environment variable that is set.
// StrictDecode reports ErrInvalidTarget when no variable is set at all.
func applyEnv(cfg *Config) error {
	err := envdecode.StrictDecode(cfg)
	if err != nil && !errors.Is(err, envdecode.ErrInvalidTarget) {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	return nil
}

// substituteEnvVars replaces ${VAR} and ${VAR:-default} patterns with
// environment variable values. "$$" escapes a literal dollar sign.
func substituteEnvVars(content string) string {
	content = strings.ReplaceAll(content, "$$", "\x00ESCAPED_DOLLAR\x00")

	result := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		if value, exists := os.LookupEnv(submatches[1]); exists {
			return value
		}
		if len(submatches) >= 3 {
			return submatches[2]
		}
		return ""
	})

	return strings.ReplaceAll(result, "\x00ESCAPED_DOLLAR\x00", "$")
}
