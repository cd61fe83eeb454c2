package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// Loader settings.
const (
	configType = "yaml"

	// envPrefix is the environment variable prefix for runtime settings.
	envPrefix = "DOCETL"

	// envKeySeparator is the nested key separator in environment variable names.
	envKeySeparator = "_"

	// defaultModel is used when neither the operation nor the runtime names one.
	defaultModel = "gpt-4o-mini"
)

// Runtime holds process-level settings shared by every operation.
type Runtime struct {
	// MaxThreads bounds both the group worker pool and each group's
	// fold/merge pool, so up to MaxThreads² model calls may be in flight.
	MaxThreads int `mapstructure:"max_threads"`

	// Model is the default model for operations that do not name one.
	Model string `mapstructure:"model"`

	// APIBase is the OpenAI-compatible endpoint; empty selects the public API.
	APIBase string `mapstructure:"api_base"`

	// APIKey authenticates against the endpoint. Usually supplied via
	// DOCETL_API_KEY rather than the config file.
	APIKey string `mapstructure:"api_key"`

	// OTLPEndpoint enables telemetry export when non-empty.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// MetricsAddr serves a Prometheus /metrics endpoint during the run when
	// non-empty, e.g. ":9090". Ignored when OTLPEndpoint is set.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// ErrNoOperation is returned when the config file holds no operation block.
var ErrNoOperation = errors.New("config file defines no operation")

// File is a parsed operation config file: one operation plus runtime settings.
type File struct {
	Operation Operation `mapstructure:"operation"`
	Runtime   Runtime   `mapstructure:"runtime"`
}

// Load reads an operation config file, layering defaults, file values, and
// DOCETL_* environment variables. The syntax check is NOT run here; callers
// decide when to surface ConfigErrors (the CLI runs it immediately after).
func Load(path string) (*File, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()
	viperCfg.SetConfigFile(path)

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		return nil, fmt.Errorf("read config %s: %w", path, readErr)
	}

	var file File

	unmarshalErr := viperCfg.Unmarshal(&file)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", path, unmarshalErr)
	}

	if file.Operation.Type == "" && file.Operation.Prompt == "" {
		return nil, fmt.Errorf("%s: %w", path, ErrNoOperation)
	}

	applyRuntimeFallbacks(&file.Runtime)

	return &file, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("runtime.max_threads", defaultMaxThreads())
	v.SetDefault("runtime.model", defaultModel)
}

func applyRuntimeFallbacks(rt *Runtime) {
	if rt.MaxThreads <= 0 {
		rt.MaxThreads = defaultMaxThreads()
	}

	if rt.Model == "" {
		rt.Model = defaultModel
	}
}

func defaultMaxThreads() int {
	return max(runtime.GOMAXPROCS(0), 1)
}
