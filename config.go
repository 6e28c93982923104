package llama

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. ENCODE_LLAMA_BACKEND.
const EnvPrefix = "ENCODE_LLAMA"

// AppConfig holds the settings of the encode-llama command.
type AppConfig struct {
	Backend   string `mapstructure:"backend"`
	MaxTokens int    `mapstructure:"max_tokens"`
	Query     string `mapstructure:"query"`
	// Debug is "high" to echo protocol lines, "low" otherwise.
	Debug string `mapstructure:"debug"`

	GencodeVersion int    `mapstructure:"gencode_version"`
	DataDir        string `mapstructure:"data_dir"`
	DatasetDir     string `mapstructure:"dataset_dir"`
	OutputCSV      string `mapstructure:"output_csv"`
	DatabaseURL    string `mapstructure:"database_url"`

	VLLMURL           string        `mapstructure:"vllm_url"`
	VLLMModel         string        `mapstructure:"vllm_model"`
	TogetherURL       string        `mapstructure:"together_url"`
	TogetherModel     string        `mapstructure:"together_model"`
	TogetherTokenFile string        `mapstructure:"together_token_file"`
	TogetherDelay     time.Duration `mapstructure:"together_delay"`

	MaxRounds     int `mapstructure:"max_rounds"`
	ContextWindow int `mapstructure:"context_window"`
}

// DefaultConfig returns an AppConfig with sensible defaults.
func DefaultConfig() AppConfig {
	return AppConfig{
		Backend:           "vllm",
		MaxTokens:         512,
		Debug:             "high",
		GencodeVersion:    40,
		DataDir:           "data",
		DatasetDir:        "dataset",
		OutputCSV:         "output.csv",
		TogetherTokenFile: "tokens/together",
		TogetherDelay:     time.Second,
		ContextWindow:     25000,
	}
}

// Verbose reports whether raw protocol lines should be echoed.
func (c AppConfig) Verbose() bool {
	return c.Debug == "high"
}

// Mode returns single-shot when a query was given on the command line.
func (c AppConfig) Mode() Mode {
	if c.Query != "" {
		return ModeSingleShot
	}
	return ModeInteractive
}

// SetDefaults registers DefaultConfig values on v and enables environment overrides.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("backend", d.Backend)
	v.SetDefault("max_tokens", d.MaxTokens)
	v.SetDefault("debug", d.Debug)
	v.SetDefault("gencode_version", d.GencodeVersion)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("dataset_dir", d.DatasetDir)
	v.SetDefault("output_csv", d.OutputCSV)
	v.SetDefault("together_token_file", d.TogetherTokenFile)
	v.SetDefault("together_delay", d.TogetherDelay)
	v.SetDefault("context_window", d.ContextWindow)
	v.SetDefault("max_rounds", d.MaxRounds)
	// Unmarshal only sees known keys, so empty ones are registered for env overrides too.
	for _, key := range []string{"query", "database_url", "vllm_url", "vllm_model", "together_url", "together_model"} {
		v.SetDefault(key, "")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// LoadConfig reads an optional config file and decodes v into an AppConfig.
func LoadConfig(v *viper.Viper, configFile string) (AppConfig, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return AppConfig{}, fmt.Errorf("llama: read config %s: %w", configFile, err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("llama: decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate rejects settings the command cannot run with.
func (c AppConfig) Validate() error {
	if c.MaxTokens <= 0 {
		return fmt.Errorf("llama: max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.Debug != "high" && c.Debug != "low" {
		return fmt.Errorf("llama: debug must be high or low, got %q", c.Debug)
	}
	if c.GencodeVersion <= 0 {
		return fmt.Errorf("llama: gencode_version must be positive, got %d", c.GencodeVersion)
	}
	return nil
}

// BackendOptions derives the registry options for the configured backend.
func (c AppConfig) BackendOptions() BackendOptions {
	switch c.Backend {
	case "together":
		return BackendOptions{
			URL:       c.TogetherURL,
			Model:     c.TogetherModel,
			TokenFile: c.TogetherTokenFile,
			Delay:     c.TogetherDelay,
		}
	default:
		return BackendOptions{
			URL:   c.VLLMURL,
			Model: c.VLLMModel,
		}
	}
}
