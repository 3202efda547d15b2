package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"imgcluster/internal/clustering"
	"imgcluster/internal/organize"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        App        `mapstructure:"app"`
	Clustering Clustering `mapstructure:"clustering"`
	Scan       Scan       `mapstructure:"scan"`
	Output     Output     `mapstructure:"output"`
	Cache      Cache      `mapstructure:"cache"`
	Logging    Logging    `mapstructure:"logging"`
}

// App holds general application configuration
type App struct {
	Debug bool `mapstructure:"debug"`
}

// Clustering holds the DBSCAN parameters
type Clustering struct {
	Eps        float64 `mapstructure:"eps"`
	MinSamples int     `mapstructure:"min_samples"`
	Metric     string  `mapstructure:"metric"`
}

// Scan holds image discovery configuration
type Scan struct {
	Extensions    []string `mapstructure:"extensions"`
	Workers       int      `mapstructure:"workers"`
	IncludeOutput bool     `mapstructure:"include_output"`
}

// Output holds output configuration. An empty Directory means
// <input>/clustered_images.
type Output struct {
	Directory     string `mapstructure:"directory"`
	NoiseDir      string `mapstructure:"noise_dir"`
	ClusterPrefix string `mapstructure:"cluster_prefix"`
	Manifest      bool   `mapstructure:"manifest"`
}

// Cache holds feature cache configuration
type Cache struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
		}
	}

	// Configure viper
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".imgcluster")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	// IMGCLUSTER_CLUSTERING_EPS, IMGCLUSTER_CACHE_ENABLED, ...
	viper.SetEnvPrefix("imgcluster")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	postProcessConfig(config)

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("app.debug", false)

	viper.SetDefault("clustering.eps", 10.0)
	viper.SetDefault("clustering.min_samples", 2)
	viper.SetDefault("clustering.metric", clustering.MetricEuclidean)

	viper.SetDefault("scan.extensions", []string{".png"})
	viper.SetDefault("scan.workers", runtime.NumCPU())
	viper.SetDefault("scan.include_output", false)

	viper.SetDefault("output.directory", "")
	viper.SetDefault("output.noise_dir", "noise")
	viper.SetDefault("output.cluster_prefix", "cluster_")
	viper.SetDefault("output.manifest", true)

	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.directory", ".imgcluster-cache")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}

// bindEnvironmentVariables maps short environment variable names onto config keys
func bindEnvironmentVariables() {
	bindEnvKeys("clustering.eps", []string{
		"IMGCLUSTER_EPS",
		"DBSCAN_EPS",
	})

	bindEnvKeys("clustering.min_samples", []string{
		"IMGCLUSTER_MIN_SAMPLES",
		"DBSCAN_MIN_SAMPLES",
	})

	bindEnvKeys("clustering.metric", []string{
		"IMGCLUSTER_METRIC",
	})

	bindEnvKeys("cache.directory", []string{
		"IMGCLUSTER_CACHE_DIR",
	})

	bindEnvKeys("logging.level", []string{
		"IMGCLUSTER_LOG_LEVEL",
		"LOG_LEVEL",
	})

	bindEnvKeys("app.debug", []string{
		"DEBUG",
		"IMGCLUSTER_DEBUG",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig expands paths and fills values derived from others
func postProcessConfig(config *Config) {
	if config.Cache.Directory != "" {
		config.Cache.Directory = expandPath(config.Cache.Directory)
	}
	if config.Output.Directory != "" {
		config.Output.Directory = expandPath(config.Output.Directory)
	}

	if config.Scan.Workers <= 0 {
		config.Scan.Workers = runtime.NumCPU()
	}
	config.Clustering.Metric = strings.ToLower(strings.TrimSpace(config.Clustering.Metric))

	if config.App.Debug {
		config.Logging.Level = "debug"
	}
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig collects every invalid value into one error
func validateConfig(config *Config) error {
	var errors []string

	if config.Clustering.Eps < 0 {
		errors = append(errors, fmt.Sprintf("clustering.eps must be >= 0, got %g", config.Clustering.Eps))
	}
	if config.Clustering.MinSamples < 1 {
		errors = append(errors, fmt.Sprintf("clustering.min_samples must be >= 1, got %d", config.Clustering.MinSamples))
	}
	if _, err := clustering.MetricByName(config.Clustering.Metric); err != nil {
		errors = append(errors, fmt.Sprintf("Unknown clustering.metric: %s. Supported: euclidean, manhattan, chebyshev", config.Clustering.Metric))
	}

	if len(config.Scan.Extensions) == 0 {
		errors = append(errors, "scan.extensions must list at least one extension")
	}

	if config.Cache.Enabled && config.Cache.Directory == "" {
		errors = append(errors, "cache.directory is required when the cache is enabled")
	}

	switch strings.ToLower(config.Logging.Format) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("Unknown logging.format: %s. Supported: text, json", config.Logging.Format))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Convenience getters for commonly used configuration values
func GetOutput() Output         { return Get().Output }
func GetCacheDirectory() string { return Get().Cache.Directory }

// OutputDirFor returns the output directory for a run over inputDir
func (c *Config) OutputDirFor(inputDir string) string {
	if c.Output.Directory != "" {
		return c.Output.Directory
	}
	return filepath.Join(inputDir, organize.DefaultOutputDirName)
}

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
