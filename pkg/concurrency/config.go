package concurrency

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
)

// DefaultParallelism is used when the effective CPU count cannot be detected
const DefaultParallelism = 4

// ConfigSource indicates where the configuration came from
type ConfigSource string

const (
	ConfigSourceEnvVar     ConfigSource = "environment_variable"
	ConfigSourceAutoDetect ConfigSource = "auto_detect"
	ConfigSourceDefault    ConfigSource = "default"
)

// Environment variables consulted by LoadConfig
const (
	EnvParallelism           = "DAEDALUS_PARALLELISM"
	EnvParallelismMultiplier = "DAEDALUS_PARALLELISM_MULTIPLIER"
)

// Config holds concurrency configuration parameters
type Config struct {
	// Parallelism bounds the number of concurrently live tasks, and so the chunk size
	Parallelism   int
	Source        ConfigSource
	EffectiveCPUs int
}

// LoadConfig loads concurrency configuration with priority: env vars > auto-detection > defaults
func LoadConfig() *Config {
	config := &Config{}

	// GOMAXPROCS respects cgroup limits once AlignToContainerQuota has run
	config.EffectiveCPUs = detectCPUs()

	if parallelism := getEnvInt(EnvParallelism, 0); parallelism > 0 {
		config.Parallelism = parallelism
		config.Source = ConfigSourceEnvVar
	} else if multiplier := getEnvInt(EnvParallelismMultiplier, 0); multiplier > 0 && config.EffectiveCPUs > 0 {
		config.Parallelism = config.EffectiveCPUs * multiplier
		config.Source = ConfigSourceEnvVar
	} else if config.EffectiveCPUs > 0 {
		config.Parallelism = config.EffectiveCPUs
		config.Source = ConfigSourceAutoDetect
	} else {
		config.Parallelism = DefaultParallelism
		config.Source = ConfigSourceDefault
	}

	return config
}

// DetectParallelism returns the parallelism bound LoadConfig would choose
func DetectParallelism() int {
	return LoadConfig().Parallelism
}

// detectCPUs is a variable so tests can simulate a failed detection
var detectCPUs = func() int {
	return runtime.GOMAXPROCS(0)
}

// getEnvInt retrieves an integer from environment variable with default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// String returns a formatted string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Parallelism: %d, CPUs: %d, Source: %s}",
		c.Parallelism,
		c.EffectiveCPUs,
		c.Source,
	)
}
