// Package config centralizes the environment-variable surface spec.md §6
// requires, following teranos-QNTX's am.Load pattern of a single Viper
// instance with defaults plus automatic env binding, rather than the
// teacher's scattered os.Getenv-with-default calls repeated in every file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved process configuration. Every field maps to
// one of the environment variables spec.md §6 names.
type Config struct {
	BrokerURL       string `mapstructure:"broker_url"`
	ResultURL       string `mapstructure:"result_url"`
	DatabaseURL     string `mapstructure:"database_url"`
	DatabaseType    string `mapstructure:"database_type"`
	PluginsDir      string `mapstructure:"plugins_dir"`
	PluginEnvsDir   string `mapstructure:"plugin_envs_dir"`
	PluginTopic     string `mapstructure:"plugin_topic"`
	ResultTopic     string `mapstructure:"result_topic"`
	ConsumerGroupID string `mapstructure:"consumer_group_id"`

	CdcHost        string `mapstructure:"cdc_host"`
	CdcPort        int    `mapstructure:"cdc_port"`
	CdcDestination string `mapstructure:"cdc_destination"`
	CdcBatchSize   int    `mapstructure:"cdc_batch_size"`

	MaxLoopInterval    time.Duration `mapstructure:"max_loop_interval"`
	HotReloadDebounce  time.Duration `mapstructure:"hot_reload_debounce"`
	ReenableSoftReset  time.Duration `mapstructure:"reenable_soft_reset"`
	ReenableHardReset  time.Duration `mapstructure:"reenable_hard_reset"`
	SchedulerTimezone  string        `mapstructure:"scheduler_timezone"`
}

// Load reads process configuration from environment variables (prefixed
// PLUGINSCHED_) layered over sane local-dev defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PLUGINSCHED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("broker_url", "localhost:9092")
	v.SetDefault("result_url", "localhost:9092")
	v.SetDefault("database_url", "scheduler.db")
	v.SetDefault("database_type", "sqlite")
	v.SetDefault("plugins_dir", "./plugins")
	v.SetDefault("plugin_envs_dir", "./plugin-envs")
	v.SetDefault("plugin_topic", "plugin_tasks")
	v.SetDefault("result_topic", "plugin_task_results")
	v.SetDefault("consumer_group_id", "plugin-scheduler-results")

	v.SetDefault("cdc_host", "127.0.0.1")
	v.SetDefault("cdc_port", 3306)
	v.SetDefault("cdc_destination", "scheduler")
	v.SetDefault("cdc_batch_size", 100)

	v.SetDefault("max_loop_interval", 5*time.Second)
	v.SetDefault("hot_reload_debounce", 500*time.Millisecond)
	v.SetDefault("reenable_soft_reset", 60*time.Second)
	v.SetDefault("reenable_hard_reset", 1800*time.Second)
	v.SetDefault("scheduler_timezone", "UTC")
}
