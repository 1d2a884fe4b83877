// Package config loads the installation configuration: servers, modules
// and the handful of engine tunables. The YAML file is validated against
// an embedded CUE schema before it is decoded, so malformed or misspelled
// configuration fails loudly instead of silently syncing nothing.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// DefaultDeferralTTL is the time window a deferred event may keep failing
// recoverably before it is abandoned as failed.
const DefaultDeferralTTL = 86400 * time.Second

// Config is the full installation configuration.
type Config struct {
	Database           string         `yaml:"database"`
	LockPath           string         `yaml:"lock_path"`
	StorageRoot        string         `yaml:"storage_root"`
	DeferralTTLSeconds int            `yaml:"deferral_ttl_seconds"`
	Servers            []ServerConfig `yaml:"servers"`
}

// ServerConfig describes one remote instance.
type ServerConfig struct {
	Domain  string         `yaml:"domain"`
	Token   string         `yaml:"token"`
	Active  *bool          `yaml:"active"`
	Modules []ModuleConfig `yaml:"modules"`
}

// IsActive reports the active flag; servers are active unless disabled.
func (s *ServerConfig) IsActive() bool {
	return s.Active == nil || *s.Active
}

// ModuleConfig describes one synchronized entity type on a server.
type ModuleConfig struct {
	Connector   string `yaml:"connector"`
	Mapper      string `yaml:"mapper"`
	ConfigHash  string `yaml:"config_hash"`
	ShellPath   string `yaml:"shell_path"`
	StoragePath string `yaml:"storage_path"`
}

// DeferralTTL returns the configured TTL as a duration.
func (c *Config) DeferralTTL() time.Duration {
	if c.DeferralTTLSeconds <= 0 {
		return DefaultDeferralTTL
	}
	return time.Duration(c.DeferralTTLSeconds) * time.Second
}

// Load reads, validates and decodes the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse validates and decodes raw YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	if err := validateSchema(data); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// validateSchema unifies the YAML document with the embedded #Config
// definition and reports any constraint violation.
func validateSchema(data []byte) error {
	cctx := cuecontext.New()

	schema := cctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	if !def.Exists() {
		return fmt.Errorf("schema has no #Config definition")
	}

	file, err := cueyaml.Extract("config.yaml", data)
	if err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	doc := cctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("build yaml: %w", err)
	}

	unified := def.Unify(doc)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return err
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.DeferralTTLSeconds <= 0 {
		cfg.DeferralTTLSeconds = int(DefaultDeferralTTL / time.Second)
	}
	for i := range cfg.Servers {
		for j := range cfg.Servers[i].Modules {
			if cfg.Servers[i].Modules[j].Mapper == "" {
				cfg.Servers[i].Modules[j].Mapper = "bean"
			}
		}
	}
}
