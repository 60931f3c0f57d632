package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// decodeFile reads a settings file into dst, choosing the format by
// extension. Anything that is not TOML or YAML is read as JSON, which may
// carry comments and trailing commas.
func decodeFile(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &Error{Source: path, Err: err}
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), dst); err != nil {
			return &Error{Source: path, Err: fmt.Errorf("decode toml: %w", err)}
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, dst); err != nil {
			return &Error{Source: path, Err: fmt.Errorf("decode yaml: %w", err)}
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), dst); err != nil {
			return &Error{Source: path, Err: fmt.Errorf("decode json: %w", err)}
		}
	}
	return nil
}

// LoadDotEnv seeds the process environment from a .env file without
// overriding variables that are already set. A missing file is only an error
// when explicit is true.
func LoadDotEnv(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && os.IsNotExist(err) {
			return nil
		}
		return &Error{Source: path, Err: err}
	}
	if err := godotenv.Load(path); err != nil {
		return &Error{Source: path, Err: fmt.Errorf("load env file: %w", err)}
	}
	return nil
}
