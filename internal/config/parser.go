// Package config provides configuration file parsing and the runtime
// session variable registry behind SHOW/SET/RESET VARIABLE.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/fgeck/pgbackctl/internal/models"
)

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.ToolConfig, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.ToolConfig, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

func (p *Parser) parse() (*models.ToolConfig, error) {
	cfg := &models.ToolConfig{}

	cfg.Catalog = models.CatalogConfig{
		Path: p.expandEnv(p.v.GetString("catalog.path")),
	}
	if cfg.Catalog.Path == "" {
		path, err := DefaultCatalogPath()
		if err != nil {
			return nil, err
		}
		cfg.Catalog.Path = path
	}

	cfg.Log = models.LogConfig{
		Level: p.v.GetString("log.level"),
		JSON:  p.v.GetBool("log.json"),
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	if p.v.IsSet("variables") {
		cfg.Variables = map[string]string{}
		for name, value := range p.v.GetStringMapString("variables") {
			cfg.Variables[name] = p.expandEnv(value)
		}
	}

	return cfg, nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// DefaultCatalogPath returns the catalog database location used when
// the configuration does not name one.
func DefaultCatalogPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".pgbackctl", "catalog.db"), nil
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.ToolConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.Catalog.Path == "" {
		return fmt.Errorf("catalog.path is required")
	}

	return nil
}
