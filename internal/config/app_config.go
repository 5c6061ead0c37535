package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/temirov/reposcope/internal/utils"
)

const (
	keyLogLevel               = "log_level"
	keyStorageBaseDirectory   = "storage.base_directory"
	keyStorageLockDirectory   = "storage.lock_directory"
	keyCloneTimeout           = "clone.timeout"
	keyCloneDefaultBranch     = "clone.default_branch"
	keyCloneFallbackBranches  = "clone.fallback_branches"
	keyAnalysisMaxDepth       = "analysis.max_depth"
	keyAnalysisWorkers        = "analysis.workers"
	keyAnalysisExclude        = "analysis.exclude"
	keyAnalysisExcludeFile    = "analysis.exclude_file"
	keyStreamChunkSize        = "stream.chunk_size"
	keyServerAddress          = "server.address"
	keyServerShutdownTimeout  = "server.shutdown_timeout"
	keyServerRequestsPerMin   = "server.requests_per_minute"
	keyServerBurst            = "server.burst"
	keyServerTrustProxy       = "server.trust_proxy_headers"
	keyServiceWorkers         = "service.workers"
	keyCredentialsGitHubToken = "credentials.github_token"

	// GitHubTokenVariable is the conventional environment variable for the clone credential.
	GitHubTokenVariable = "GITHUB_TOKEN"

	errorInvalidValueFormat = "configuration value %s must be %s"
)

// LoadOptions controls how application configuration is discovered.
type LoadOptions struct {
	WorkingDirectory string
	ExplicitFilePath string
}

// ApplicationConfiguration is the complete runtime configuration.
type ApplicationConfiguration struct {
	LogLevel    string                   `mapstructure:"log_level"`
	Storage     StorageConfiguration     `mapstructure:"storage"`
	Clone       CloneConfiguration       `mapstructure:"clone"`
	Analysis    AnalysisConfiguration    `mapstructure:"analysis"`
	Stream      StreamConfiguration      `mapstructure:"stream"`
	Server      ServerConfiguration      `mapstructure:"server"`
	Service     ServiceConfiguration     `mapstructure:"service"`
	Credentials CredentialsConfiguration `mapstructure:"credentials"`
}

// StorageConfiguration locates repository and lock directories.
type StorageConfiguration struct {
	BaseDirectory string `mapstructure:"base_directory"`
	LockDirectory string `mapstructure:"lock_directory"`
}

// CloneConfiguration controls the clone protocol.
type CloneConfiguration struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	DefaultBranch    string        `mapstructure:"default_branch"`
	FallbackBranches []string      `mapstructure:"fallback_branches"`
}

// AnalysisConfiguration tunes the analyzer.
type AnalysisConfiguration struct {
	MaxDepth    int      `mapstructure:"max_depth"`
	Workers     int      `mapstructure:"workers"`
	Exclude     []string `mapstructure:"exclude"`
	ExcludeFile string   `mapstructure:"exclude_file"`
}

// StreamConfiguration tunes file delivery.
type StreamConfiguration struct {
	ChunkSize int `mapstructure:"chunk_size"`
}

// ServerConfiguration configures the HTTP surface.
type ServerConfiguration struct {
	Address           string        `mapstructure:"address"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	Burst             int           `mapstructure:"burst"`
	TrustProxyHeaders bool          `mapstructure:"trust_proxy_headers"`
}

// ServiceConfiguration bounds concurrent work.
type ServiceConfiguration struct {
	Workers int `mapstructure:"workers"`
}

// CredentialsConfiguration holds secrets. Values are never written back out.
type CredentialsConfiguration struct {
	GitHubToken string `mapstructure:"github_token"`
}

// LoadApplicationConfiguration merges defaults, the global configuration file,
// the local (or explicit) configuration file and REPOSCOPE_ environment variables,
// in increasing order of precedence.
func LoadApplicationConfiguration(options LoadOptions) (ApplicationConfiguration, error) {
	workingDirectory := options.WorkingDirectory
	if workingDirectory == "" {
		currentDirectory, err := os.Getwd()
		if err != nil {
			return ApplicationConfiguration{}, fmt.Errorf("determine working directory: %w", err)
		}
		workingDirectory = currentDirectory
	}

	reader := viper.New()
	applyDefaults(reader)
	reader.SetConfigType("yaml")
	reader.SetEnvPrefix(utils.EnvironmentPrefix)
	reader.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	reader.AutomaticEnv()
	if bindError := reader.BindEnv(keyCredentialsGitHubToken, utils.EnvironmentPrefix+"_CREDENTIALS_GITHUB_TOKEN", GitHubTokenVariable); bindError != nil {
		return ApplicationConfiguration{}, fmt.Errorf("bind credential environment: %w", bindError)
	}

	if homeDirectory, err := os.UserHomeDir(); err == nil && homeDirectory != "" {
		globalPath := filepath.Join(homeDirectory, utils.GlobalConfigDirectoryName, utils.ConfigFileName)
		if mergeError := mergeConfigurationFile(reader, globalPath, false); mergeError != nil {
			return ApplicationConfiguration{}, mergeError
		}
	}

	localPath, mustExist := resolveLocalConfigPath(workingDirectory, options.ExplicitFilePath)
	if mergeError := mergeConfigurationFile(reader, localPath, mustExist); mergeError != nil {
		return ApplicationConfiguration{}, mergeError
	}

	var configuration ApplicationConfiguration
	if decodeError := reader.Unmarshal(&configuration); decodeError != nil {
		return ApplicationConfiguration{}, fmt.Errorf("decode configuration: %w", decodeError)
	}

	if configuration.Analysis.ExcludeFile != "" {
		excludeFilePath := configuration.Analysis.ExcludeFile
		if !filepath.IsAbs(excludeFilePath) {
			excludeFilePath = filepath.Join(workingDirectory, excludeFilePath)
		}
		filePatterns, loadError := LoadPatternFile(excludeFilePath)
		if loadError != nil {
			return ApplicationConfiguration{}, loadError
		}
		configuration.Analysis.Exclude = append(configuration.Analysis.Exclude, filePatterns...)
	}
	configuration.Analysis.Exclude = utils.DeduplicatePatterns(configuration.Analysis.Exclude)

	if validationError := configuration.Validate(); validationError != nil {
		return ApplicationConfiguration{}, validationError
	}
	return configuration, nil
}

// Validate rejects values that would make a component unusable.
func (configuration ApplicationConfiguration) Validate() error {
	var problems []error
	require := func(valid bool, key string, expectation string) {
		if !valid {
			problems = append(problems, fmt.Errorf(errorInvalidValueFormat, key, expectation))
		}
	}
	require(strings.TrimSpace(configuration.Storage.BaseDirectory) != "", keyStorageBaseDirectory, "set")
	require(strings.TrimSpace(configuration.Storage.LockDirectory) != "", keyStorageLockDirectory, "set")
	require(configuration.Clone.Timeout > 0, keyCloneTimeout, "positive")
	require(configuration.Analysis.MaxDepth > 0, keyAnalysisMaxDepth, "positive")
	require(configuration.Analysis.Workers > 0, keyAnalysisWorkers, "positive")
	require(configuration.Stream.ChunkSize > 0, keyStreamChunkSize, "positive")
	require(configuration.Server.ShutdownTimeout > 0, keyServerShutdownTimeout, "positive")
	require(configuration.Server.RequestsPerMinute > 0, keyServerRequestsPerMin, "positive")
	require(configuration.Server.Burst > 0, keyServerBurst, "positive")
	require(configuration.Service.Workers > 0, keyServiceWorkers, "positive")
	return errors.Join(problems...)
}

func applyDefaults(reader *viper.Viper) {
	storageRoot := filepath.Join(os.TempDir(), "reposcope")
	reader.SetDefault(keyLogLevel, "info")
	reader.SetDefault(keyStorageBaseDirectory, filepath.Join(storageRoot, "repositories"))
	reader.SetDefault(keyStorageLockDirectory, filepath.Join(storageRoot, "locks"))
	reader.SetDefault(keyCloneTimeout, 5*time.Minute)
	reader.SetDefault(keyCloneDefaultBranch, "main")
	reader.SetDefault(keyCloneFallbackBranches, []string{"master", "main", "develop", "dev"})
	reader.SetDefault(keyAnalysisMaxDepth, 10)
	reader.SetDefault(keyAnalysisWorkers, runtime.NumCPU())
	reader.SetDefault(keyAnalysisExclude, []string{})
	reader.SetDefault(keyAnalysisExcludeFile, "")
	reader.SetDefault(keyStreamChunkSize, 8192)
	reader.SetDefault(keyServerAddress, "127.0.0.1:8000")
	reader.SetDefault(keyServerShutdownTimeout, 5*time.Second)
	reader.SetDefault(keyServerRequestsPerMin, 60)
	reader.SetDefault(keyServerBurst, 10)
	reader.SetDefault(keyServerTrustProxy, false)
	reader.SetDefault(keyServiceWorkers, 4)
	reader.SetDefault(keyCredentialsGitHubToken, "")
}

// resolveLocalConfigPath returns the file to merge and whether it must exist.
func resolveLocalConfigPath(workingDirectory string, explicitPath string) (string, bool) {
	if explicitPath != "" {
		if filepath.IsAbs(explicitPath) {
			return explicitPath, true
		}
		return filepath.Join(workingDirectory, explicitPath), true
	}
	return filepath.Join(workingDirectory, utils.ConfigFileName), false
}

func mergeConfigurationFile(reader *viper.Viper, path string, mustExist bool) error {
	info, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) && !mustExist {
			return nil
		}
		return fmt.Errorf("stat configuration %s: %w", path, statErr)
	}
	if info.IsDir() {
		return fmt.Errorf("configuration path %s is a directory", path)
	}
	reader.SetConfigFile(path)
	if mergeErr := reader.MergeInConfig(); mergeErr != nil {
		return fmt.Errorf("read configuration from %s: %w", path, mergeErr)
	}
	return nil
}
