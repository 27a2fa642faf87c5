// Package config manages the duet CLI configuration directory.
//
// Configuration is stored under os.UserConfigDir()/duet/, or under
// $DUET_CONFIG_DIR when set:
//
//	duet/
//	├── current-context          # plain text: name of current context
//	├── sessions/                # session catalog (badger)
//	└── contexts/
//	    ├── dev/
//	    │   ├── openai.yaml
//	    │   └── archive.yaml
//	    └── staging/
//	        └── ...
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// EnvDir overrides the configuration directory.
	EnvDir = "DUET_CONFIG_DIR"

	appDir             = "duet"
	currentContextFile = "current-context"
	contextsDir        = "contexts"
	catalogDir         = "sessions"
)

// ErrNoContext is returned when a context is needed but none is selected.
var ErrNoContext = errors.New("no current context set; use 'duet config use-context <name>'")

// Config holds the root configuration state.
type Config struct {
	// Dir is the root configuration directory.
	Dir string

	// CurrentContext is the name of the active context.
	CurrentContext string
}

// Load loads the configuration from $DUET_CONFIG_DIR or the OS config dir.
func Load() (*Config, error) {
	if dir := os.Getenv(EnvDir); dir != "" {
		return LoadFrom(dir)
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine config directory: %w", err)
	}
	return LoadFrom(filepath.Join(base, appDir))
}

// LoadFrom loads the configuration from a specific root directory.
func LoadFrom(dir string) (*Config, error) {
	cfg := &Config{Dir: dir}

	data, err := os.ReadFile(filepath.Join(dir, currentContextFile))
	if err == nil {
		cfg.CurrentContext = strings.TrimSpace(string(data))
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read current context: %w", err)
	}
	return cfg, nil
}

// CatalogDir returns the directory of the session catalog database.
func (c *Config) CatalogDir() string {
	return filepath.Join(c.Dir, catalogDir)
}

// ContextsDir returns the path to the contexts directory.
func (c *Config) ContextsDir() string {
	return filepath.Join(c.Dir, contextsDir)
}

// ContextDir returns the directory path for a named context.
func (c *Config) ContextDir(name string) string {
	return filepath.Join(c.Dir, contextsDir, name)
}

// ResolveContext returns the directory for the given context name, or the
// current context if name is empty. With no name and no current context it
// returns ErrNoContext.
func (c *Config) ResolveContext(name string) (string, error) {
	if name == "" {
		if c.CurrentContext == "" {
			return "", ErrNoContext
		}
		name = c.CurrentContext
	}
	if err := ValidateContextName(name); err != nil {
		return "", err
	}
	dir := c.ContextDir(name)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return "", fmt.Errorf("context %q not found", name)
	}
	return dir, nil
}

// ListContexts returns the names of all available contexts.
func (c *Config) ListContexts() ([]string, error) {
	entries, err := os.ReadDir(c.ContextsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list contexts: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// AddContext creates a new context directory.
func (c *Config) AddContext(name string) error {
	if err := ValidateContextName(name); err != nil {
		return err
	}

	dir := c.ContextDir(name)
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("context %q already exists", name)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create context %q: %w", name, err)
	}
	return nil
}

// DeleteContext removes a context directory and all its service configs.
func (c *Config) DeleteContext(name string) error {
	if err := ValidateContextName(name); err != nil {
		return err
	}

	dir := c.ContextDir(name)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("context %q not found", name)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete context %q: %w", name, err)
	}

	if c.CurrentContext == name {
		c.CurrentContext = ""
		return c.saveCurrentContext()
	}
	return nil
}

// UseContext switches the current context.
func (c *Config) UseContext(name string) error {
	if err := ValidateContextName(name); err != nil {
		return err
	}

	dir := c.ContextDir(name)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("context %q not found", name)
	}

	c.CurrentContext = name
	return c.saveCurrentContext()
}

func (c *Config) saveCurrentContext() error {
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	path := filepath.Join(c.Dir, currentContextFile)
	return os.WriteFile(path, []byte(c.CurrentContext+"\n"), 0644)
}

// ValidateContextName checks that name is usable as a directory name.
func ValidateContextName(name string) error {
	return validateName("context", name)
}

// ValidateServiceName checks that name is usable as a file name.
func ValidateServiceName(name string) error {
	return validateName("service", name)
}

func validateName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s name cannot be empty", kind)
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%s name %q must not contain path separators", kind, name)
	}
	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("%s name %q must not start with '.'", kind, name)
	}
	return nil
}
