package concurrency

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv(EnvParallelism, "7")
	t.Setenv(EnvParallelismMultiplier, "3")

	config := LoadConfig()
	assert.Equal(t, 7, config.Parallelism)
	assert.Equal(t, ConfigSourceEnvVar, config.Source)
}

func TestLoadConfigMultiplier(t *testing.T) {
	t.Setenv(EnvParallelism, "")
	t.Setenv(EnvParallelismMultiplier, "2")

	config := LoadConfig()
	assert.Equal(t, runtime.GOMAXPROCS(0)*2, config.Parallelism)
	assert.Equal(t, ConfigSourceEnvVar, config.Source)
}

func TestLoadConfigAutoDetect(t *testing.T) {
	t.Setenv(EnvParallelism, "not-a-number")
	t.Setenv(EnvParallelismMultiplier, "")

	config := LoadConfig()
	assert.Equal(t, runtime.GOMAXPROCS(0), config.Parallelism)
	assert.Equal(t, ConfigSourceAutoDetect, config.Source)
	assert.Equal(t, config.Parallelism, DetectParallelism())
}

func TestLoadConfigFallback(t *testing.T) {
	t.Setenv(EnvParallelism, "")
	t.Setenv(EnvParallelismMultiplier, "")

	original := detectCPUs
	detectCPUs = func() int { return 0 }
	t.Cleanup(func() { detectCPUs = original })

	config := LoadConfig()
	assert.Equal(t, DefaultParallelism, config.Parallelism)
	assert.Equal(t, ConfigSourceDefault, config.Source)
	assert.Contains(t, config.String(), "Parallelism: 4")
}
