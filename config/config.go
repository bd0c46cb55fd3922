package config

import (
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/grovetools/remit/errors"
	"github.com/grovetools/remit/pkg/paths"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

var configNames = []string{
	"remit.yml",
	"remit.yaml",
	"remit.toml",
	".remit.yml",
	".remit.yaml",
}

var overrideNames = []string{
	"remit.override.yml",
	"remit.override.yaml",
	".remit.override.yml",
	".remit.override.yaml",
}

// Load reads and parses a single configuration file.
func Load(path string) (*Config, error) {
	doc, err := readLayer(path)
	if err != nil {
		return nil, err
	}
	return fromDocument(doc)
}

// LoadDefault loads the configuration for the current directory with hierarchical merging:
// 1. Global config (~/.config/remit/remit.yml) - base layer
// 2. Project config (remit.yml, searched upwards) - overrides global
// 3. Local override (remit.override.yml next to the project config) - overrides all
// A missing project config is not an error; defaults apply.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to get current directory")
	}
	return LoadFrom(cwd)
}

// LoadFrom loads configuration with hierarchical merging starting from the given directory.
func LoadFrom(startDir string) (*Config, error) {
	return LoadFromWithLogger(startDir, logrus.New())
}

// LoadFromWithLogger loads configuration with hierarchical merging and logging.
func LoadFromWithLogger(startDir string, logger *logrus.Logger) (*Config, error) {
	layers := Layers(startDir)

	merged := map[string]interface{}{}
	for _, path := range layers {
		logger.WithField("path", path).Debug("Loading configuration layer")
		doc, err := readLayer(path)
		if err != nil {
			return nil, err
		}
		merged = mergeMaps(merged, doc)
	}

	cfg, err := fromDocument(merged)
	if err != nil {
		return nil, err
	}

	if logger.IsLevelEnabled(logrus.DebugLevel) {
		if data, err := yaml.Marshal(cfg); err == nil {
			logger.Debugf("Merged configuration:\n%s", string(data))
		}
	}
	return cfg, nil
}

// Layers returns the existing configuration files for startDir in merge order.
func Layers(startDir string) []string {
	var layers []string
	if global := GlobalConfigPath(); global != "" && isFile(global) {
		layers = append(layers, global)
	}

	project, err := FindConfigFile(startDir)
	if err != nil {
		return layers
	}
	if len(layers) == 0 || layers[0] != project {
		layers = append(layers, project)
	}

	projectDir := filepath.Dir(project)
	for _, name := range overrideNames {
		if path := filepath.Join(projectDir, name); isFile(path) {
			layers = append(layers, path)
		}
	}
	return layers
}

// LoadFromBytes parses a YAML configuration document.
func LoadFromBytes(data []byte) (*Config, error) {
	doc, err := parseDocument(data, "yaml")
	if err != nil {
		return nil, err
	}
	return fromDocument(doc)
}

// FindConfigFile searches from startDir up to the filesystem root for a remit
// config file.
func FindConfigFile(startDir string) (string, error) {
	dir := startDir
	for {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if isFile(path) {
				return path, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.ConfigNotFound(startDir).WithDetail("searchPath", startDir)
}

// GlobalConfigPath returns the path of the user-wide config file.
func GlobalConfigPath() string {
	dir := paths.ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "remit.yml")
}

func readLayer(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}

	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		format = "toml"
	}
	doc, err := parseDocument(data, format)
	if err != nil {
		if remitErr, ok := err.(*errors.RemitError); ok {
			return nil, remitErr.WithDetail("path", path)
		}
		return nil, err
	}
	return doc, nil
}

func parseDocument(data []byte, format string) (map[string]interface{}, error) {
	expanded := []byte(expandEnvVars(string(data)))

	doc := map[string]interface{}{}
	var err error
	if format == "toml" {
		err = toml.Unmarshal(expanded, &doc)
	} else {
		err = yaml.Unmarshal(expanded, &doc)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse "+format+" configuration")
	}
	return doc, nil
}

// fromDocument validates a merged document, decodes it and applies defaults
// and environment overrides.
func fromDocument(doc map[string]interface{}) (*Config, error) {
	validator, err := NewSchemaValidator()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to create validator")
	}
	if err := validator.Validate(doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "schema validation failed")
	}

	// Round-trip through YAML so durations and nested structs decode with yaml tags.
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to re-encode configuration")
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to decode configuration")
	}

	cfg.SetDefaults()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "semantic validation failed")
	}
	return &cfg, nil
}

// ApplyEnv applies the environment switches understood by the HTTP API:
// DEMO_MODE=true, REAL_TRANSACTIONS=true and PORT.
func (c *Config) ApplyEnv() {
	if os.Getenv("DEMO_MODE") == "true" {
		c.Server.Mode = ModeDemo
	} else if os.Getenv("REAL_TRANSACTIONS") == "true" {
		c.Server.Mode = ModeReal
	}
	if port := os.Getenv("PORT"); port != "" {
		host, _, err := net.SplitHostPort(c.Server.Addr)
		if err != nil {
			host = ""
		}
		c.Server.Addr = net.JoinHostPort(host, port)
	}
}

// expandEnvVars replaces ${VAR} with environment variable values
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		// Handle default values: ${VAR:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
