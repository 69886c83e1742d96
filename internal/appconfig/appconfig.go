// Package appconfig loads host-binary configuration (broker selection,
// Redis address, intervals) from file, environment, and defaults via Viper,
// with optional hot reload. It is deliberately separate from
// pkg/config.Configuration: appconfig is how a binary like
// cmd/asynctask-worker discovers its settings; pkg/config is the
// validated domain value object those settings get turned into.
//
// Usage:
//
//	loader, err := appconfig.New(appconfig.Options{
//	    ConfigName: "worker",
//	    ConfigPaths: []string{".", "/etc/asynctask"},
//	})
//	var settings appconfig.Settings
//	if err := loader.Unmarshal(&settings); err != nil { ... }
package appconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Settings is the shape host binaries unmarshal appconfig into.
type Settings struct {
	Broker struct {
		Kind string `mapstructure:"kind"` // "memory" or "redis"
		Redis struct {
			Addr         string `mapstructure:"addr"`
			StreamName   string `mapstructure:"stream_name"`
			GroupName    string `mapstructure:"group_name"`
			ConsumerName string `mapstructure:"consumer_name"`
		} `mapstructure:"redis"`
	} `mapstructure:"broker"`

	Worker struct {
		Concurrency         int           `mapstructure:"concurrency"`
		MaxDeliveryAttempts int           `mapstructure:"max_delivery_attempts"`
		HealthcheckInterval time.Duration `mapstructure:"healthcheck_interval"`
		TimeoutInterval     time.Duration `mapstructure:"timeout_interval"`
	} `mapstructure:"worker"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`

	ResultBackend struct {
		SQLitePath string `mapstructure:"sqlite_path"`
	} `mapstructure:"result_backend"`
}

// Options configures a Loader.
type Options struct {
	ConfigName  string
	ConfigPaths []string
	ConfigType  string
	EnvPrefix   string
	Watch       bool
	Defaults    map[string]any
}

// Loader wraps a *viper.Viper instance.
type Loader struct {
	v *viper.Viper
}

// New builds a Loader, reading the config file if present. A missing
// config file is not an error: defaults and environment variables still
// apply.
func New(opts Options) (*Loader, error) {
	v := viper.New()
	v.SetConfigName(firstNonEmpty(opts.ConfigName, "asynctask"))
	v.SetConfigType(firstNonEmpty(opts.ConfigType, "yaml"))
	for _, p := range opts.ConfigPaths {
		v.AddConfigPath(p)
	}
	if len(opts.ConfigPaths) == 0 {
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix(firstNonEmpty(opts.EnvPrefix, "ASYNCTASK"))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, value := range opts.Defaults {
		v.SetDefault(key, value)
	}
	setBuiltinDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("appconfig: read config: %w", err)
		}
	}

	if opts.Watch {
		v.WatchConfig()
	}

	return &Loader{v: v}, nil
}

func setBuiltinDefaults(v *viper.Viper) {
	v.SetDefault("broker.kind", "memory")
	v.SetDefault("broker.redis.stream_name", "async-queue")
	v.SetDefault("broker.redis.group_name", "default")
	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.max_delivery_attempts", 5)
	v.SetDefault("worker.healthcheck_interval", "10s")
	v.SetDefault("worker.timeout_interval", "30s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("result_backend.sqlite_path", "asynctask.db")
}

// Unmarshal decodes the loaded configuration into out.
func (l *Loader) Unmarshal(out *Settings) error {
	return l.v.Unmarshal(out)
}

// OnChange registers a callback invoked after a watched config file
// changes on disk. Only meaningful when Options.Watch was true.
func (l *Loader) OnChange(fn func(fsnotify.Event)) {
	l.v.OnConfigChange(fn)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
