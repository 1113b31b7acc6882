package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/demin80/fiberdispatch/core"
)

// appConfig is the demo binary's TOML-driven configuration. It maps onto
// core.Config plus the logging/workload knobs the dispatcher itself
// doesn't own.
type appConfig struct {
	NumCoroutineThreads        int `mapstructure:"num_coroutine_threads"`
	NumIoThreads               int `mapstructure:"num_io_threads"`
	PinCoroutineThreadsToCores bool `mapstructure:"pin_coroutine_threads_to_cores"`
	LoadBalanceSharedIoQueues  bool `mapstructure:"load_balance_shared_io_queues"`
	NumSharedIoQueues          int `mapstructure:"num_shared_io_queues"`
	IOQueueCapacity            int `mapstructure:"io_queue_capacity"`
	MaxBalanceAttempts         int `mapstructure:"max_balance_attempts"`

	Log logConfig `mapstructure:"log"`

	MetricsAddr  string `mapstructure:"metrics_addr"`
	WorkloadSize int    `mapstructure:"workload_size"`
}

type logConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	Development bool   `mapstructure:"development"`
	OutputPath  string `mapstructure:"output_path"`
}

func defaultAppConfig() *appConfig {
	return &appConfig{
		NumCoroutineThreads: -1,
		NumIoThreads:        2,
		NumSharedIoQueues:   1,
		MaxBalanceAttempts:  8,
		Log: logConfig{
			Level:       "info",
			Format:      "console",
			Development: false,
		},
		MetricsAddr:  ":2112",
		WorkloadSize: 8,
	}
}

// loadConfig reads path (TOML) if non-empty, falling back to defaults and
// FIBERDISPATCH_-prefixed environment overrides.
func loadConfig(path string) (*appConfig, error) {
	cfg := defaultAppConfig()

	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix("FIBERDISPATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("num_coroutine_threads", cfg.NumCoroutineThreads)
	v.SetDefault("num_io_threads", cfg.NumIoThreads)
	v.SetDefault("pin_coroutine_threads_to_cores", cfg.PinCoroutineThreadsToCores)
	v.SetDefault("load_balance_shared_io_queues", cfg.LoadBalanceSharedIoQueues)
	v.SetDefault("num_shared_io_queues", cfg.NumSharedIoQueues)
	v.SetDefault("io_queue_capacity", cfg.IOQueueCapacity)
	v.SetDefault("max_balance_attempts", cfg.MaxBalanceAttempts)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)
	v.SetDefault("workload_size", cfg.WorkloadSize)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func (c *appConfig) toCoreConfig(metrics core.Metrics) core.Config {
	cfg := *core.DefaultConfig()
	cfg.NumCoroutineThreads = c.NumCoroutineThreads
	cfg.NumIoThreads = c.NumIoThreads
	cfg.PinCoroutineThreadsToCores = c.PinCoroutineThreadsToCores
	cfg.LoadBalanceSharedIoQueues = c.LoadBalanceSharedIoQueues
	cfg.NumSharedIoQueues = c.NumSharedIoQueues
	cfg.IOQueueCapacity = c.IOQueueCapacity
	cfg.MaxBalanceAttempts = c.MaxBalanceAttempts
	cfg.Logger = core.NewDefaultLogger(core.LogConfig{
		Level:       c.Log.Level,
		Format:      c.Log.Format,
		Development: c.Log.Development,
		OutputPath:  c.Log.OutputPath,
	})
	if metrics != nil {
		cfg.Metrics = metrics
	}
	return cfg
}
