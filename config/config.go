package config

import (
	"os"
	"strings"
	"time"

	"github.com/Zmmoly/modelcache/utils"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

const (
	// AssetsConfigFilenameDefault is the default asset document filename
	AssetsConfigFilenameDefault string = "assets-config.yml"
	// SettingsFilenameDefault is the default persisted settings filename
	SettingsFilenameDefault string = "model_manager_prefs.db"
	// ModelExtensionDefault is the default model file extension
	ModelExtensionDefault string = ".tflite"
	// DefaultModelDir is the first well-known scan dir
	DefaultModelDir string = "ml"
	// AssetsDir is the second well-known scan dir
	AssetsDir string = "assets"

	DefaultMaxResidentDefault int           = 5
	FetchTimeoutDefault       time.Duration = 5 * time.Minute
	PreloadConcurrencyDefault int           = 2
	UsageHistorySizeDefault   int           = 1024
	ShutdownTimeoutDefault    time.Duration = 800 * time.Millisecond
	StripPathPrefixDefault    string        = "app/"
)

// Config holds the parameters of a model manager
type Config struct {
	RootPath           string        `yaml:"root_path" json:"root_path"`
	AssetsConfigFile   string        `yaml:"assets_config_file" json:"assets_config_file"`
	ScanDirs           []string      `yaml:"scan_dirs" json:"scan_dirs"`
	ModelExtension     string        `yaml:"model_extension" json:"model_extension"`
	DefaultMaxResident int           `yaml:"default_max_resident" json:"default_max_resident"`
	SettingsFile       string        `yaml:"settings_file" json:"settings_file"`
	StripPathPrefix    string        `yaml:"strip_path_prefix" json:"strip_path_prefix"`
	FetchTimeout       time.Duration `yaml:"fetch_timeout" json:"fetch_timeout"`
	PreloadConcurrency int           `yaml:"preload_concurrency" json:"preload_concurrency"`
	UsageHistorySize   int           `yaml:"usage_history_size" json:"usage_history_size"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// NewDefaultConfig returns a default config rooted at the given path
func NewDefaultConfig(rootPath string) *Config {
	return &Config{
		RootPath:           rootPath,
		AssetsConfigFile:   AssetsConfigFilenameDefault,
		ScanDirs:           []string{DefaultModelDir, AssetsDir},
		ModelExtension:     ModelExtensionDefault,
		DefaultMaxResident: DefaultMaxResidentDefault,
		SettingsFile:       SettingsFilenameDefault,
		StripPathPrefix:    StripPathPrefixDefault,
		FetchTimeout:       FetchTimeoutDefault,
		PreloadConcurrency: PreloadConcurrencyDefault,
		UsageHistorySize:   UsageHistorySizeDefault,
		ShutdownTimeout:    ShutdownTimeoutDefault,
	}
}

// NewConfigFromYAML creates Config from YAML, fields not given keep default values
func NewConfigFromYAML(yamlBytes []byte) (*Config, error) {
	config := NewDefaultConfig("")

	err := yaml.Unmarshal(yamlBytes, config)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal YAML - %s: %w", string(yamlBytes), err)
	}

	return config, nil
}

// NewConfigFromFile creates Config from a YAML file
func NewConfigFromFile(path string) (*Config, error) {
	yamlBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to read config file %s: %w", path, err)
	}

	return NewConfigFromYAML(yamlBytes)
}

// GetAssetsConfigPath returns the path of the asset document
func (config *Config) GetAssetsConfigPath() string {
	return config.makeRootedPath(config.AssetsConfigFile)
}

// GetSettingsPath returns the path of the persisted settings file
func (config *Config) GetSettingsPath() string {
	return config.makeRootedPath(config.SettingsFile)
}

// GetScanDirPaths returns absolute paths of scan dirs, in scan order
func (config *Config) GetScanDirPaths() []string {
	paths := []string{}
	for _, dir := range config.ScanDirs {
		paths = append(paths, config.makeRootedPath(dir))
	}
	return paths
}

func (config *Config) makeRootedPath(path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	return utils.JoinPath(config.RootPath, path)
}

// Validate validates configuration
func (config *Config) Validate() error {
	if len(config.RootPath) == 0 {
		return xerrors.Errorf("root path must be given")
	}

	if len(config.AssetsConfigFile) == 0 {
		return xerrors.Errorf("assets config file must be given")
	}

	if len(config.ScanDirs) == 0 {
		return xerrors.Errorf("at least one scan dir must be given")
	}

	if !strings.HasPrefix(config.ModelExtension, ".") || len(config.ModelExtension) < 2 {
		return xerrors.Errorf("invalid model extension %q, must start with a dot", config.ModelExtension)
	}

	if config.DefaultMaxResident < 1 {
		return xerrors.Errorf("default max resident must be at least 1, got %d", config.DefaultMaxResident)
	}

	if config.PreloadConcurrency < 1 {
		return xerrors.Errorf("preload concurrency must be at least 1, got %d", config.PreloadConcurrency)
	}

	if config.UsageHistorySize < 1 {
		return xerrors.Errorf("usage history size must be at least 1, got %d", config.UsageHistorySize)
	}

	if config.FetchTimeout < 0 {
		return xerrors.Errorf("fetch timeout must not be negative")
	}

	if config.ShutdownTimeout < 0 {
		return xerrors.Errorf("shutdown timeout must not be negative")
	}

	return nil
}
