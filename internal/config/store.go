package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// secretKeys are masked when displayed.
var secretKeys = map[string]bool{
	"admin.admin_key":   true,
	"server.jwt_secret": true,
	"callback.api_key":  true,
}

// UserConfigFile returns the path of the per-user config file.
func UserConfigFile() string {
	return filepath.Join(UserConfigDir(), "config.yaml")
}

// KnownKeys lists every settable configuration key in dot notation.
func KnownKeys() []string {
	v := viper.New()
	setDefaults(v)
	keys := v.AllKeys()
	sort.Strings(keys)
	return keys
}

// Get returns the display value of a key from the merged configuration at path.
func Get(path, key string) (string, error) {
	key = strings.ToLower(key)
	if !isKnown(key) {
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
	v, err := readFile(path)
	if err != nil {
		return "", err
	}
	return display(key, v.Get(key)), nil
}

// All returns every key with its display value.
func All(path string) (map[string]string, error) {
	v, err := readFile(path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, key := range KnownKeys() {
		out[key] = display(key, v.Get(key))
	}
	return out, nil
}

// Set writes a single key to the config file at path, creating it if needed.
func Set(path, key, value string) error {
	key = strings.ToLower(key)
	if !isKnown(key) {
		return fmt.Errorf("unknown configuration key: %s", key)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	v.Set(key, value)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}

	// Re-read through the typed loader so a bad value is reported now.
	if _, err := LoadFile(path); err != nil {
		return err
	}
	return nil
}

func readFile(path string) (*viper.Viper, error) {
	v := newViper()
	if _, err := os.Stat(path); err != nil {
		return v, nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return v, nil
}

func isKnown(key string) bool {
	for _, k := range KnownKeys() {
		if k == key {
			return true
		}
	}
	return false
}

func display(key string, value interface{}) string {
	s := fmt.Sprint(value)
	if secretKeys[key] {
		if s == "" {
			return "(not set)"
		}
		return "****"
	}
	return s
}
