// Command asynctask-worker is an example host binary: it loads
// configuration, wires a broker (in-memory or Redis Streams), and runs a
// worker until SIGTERM/SIGINT.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/madcok-co/asynctask/internal/appconfig"
	"github.com/madcok-co/asynctask/internal/logging"
	"github.com/madcok-co/asynctask/internal/logging/zapdriver"
	"github.com/madcok-co/asynctask/pkg/broker"
	"github.com/madcok-co/asynctask/pkg/broker/memory"
	"github.com/madcok-co/asynctask/pkg/broker/redisstream"
	"github.com/madcok-co/asynctask/pkg/config"
	"github.com/madcok-co/asynctask/pkg/registry"
	"github.com/madcok-co/asynctask/pkg/resultbackend/sqlitebackend"
	"github.com/madcok-co/asynctask/pkg/serialization"
	"github.com/madcok-co/asynctask/pkg/worker"
)

func main() {
	configPath := flag.String("config", ".", "directory to search for asynctask.yaml")
	flag.Parse()

	loader, err := appconfig.New(appconfig.Options{ConfigPaths: []string{*configPath}})
	if err != nil {
		fmt.Fprintf(os.Stderr, "asynctask-worker: load config: %v\n", err)
		os.Exit(1)
	}
	var settings appconfig.Settings
	if err := loader.Unmarshal(&settings); err != nil {
		fmt.Fprintf(os.Stderr, "asynctask-worker: unmarshal config: %v\n", err)
		os.Exit(1)
	}

	zlog := zapdriver.New(zapdriver.Config{
		Level:     settings.Logging.Level,
		Format:    settings.Logging.Format,
		Output:    "stdout",
		AddCaller: true,
	})
	defer zlog.Sync()

	if err := run(settings, zlog); err != nil {
		zlog.Log(logging.LevelError, "asynctask-worker: exited with error", "error", err)
		os.Exit(1)
	}
}

func run(settings appconfig.Settings, zlog *zapdriver.Driver) error {
	reg := serialization.NewRegistry(serialization.NewJSONBackend(), serialization.NewGobBackend())
	cfg, err := config.New(config.Configuration{
		MaxDeliveryAttempts:   settings.Worker.MaxDeliveryAttempts,
		HealthcheckInterval:   settings.Worker.HealthcheckInterval,
		TimeoutInterval:       settings.Worker.TimeoutInterval,
		SerializationRegistry: reg,
		DefaultBackend:        serialization.NewJSONBackend(),
	})
	if err != nil {
		return fmt.Errorf("build configuration: %w", err)
	}

	tasks := registry.New()
	// Register tasks here, e.g.:
	//   def, _ := task.New("send_email", sendEmail, argTypes, kwargTypes)
	//   tasks.Register(def)

	db, err := gorm.Open(sqlite.Open(settings.ResultBackend.SQLitePath), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("open result backend database: %w", err)
	}
	results, err := sqlitebackend.New(db)
	if err != nil {
		return fmt.Errorf("build result backend: %w", err)
	}

	ctx := context.Background()

	switch settings.Broker.Kind {
	case "redis":
		return runWithRedisBroker(ctx, settings, cfg, tasks, results, zlog)
	default:
		return runWithMemoryBroker(ctx, settings, cfg, tasks, results, zlog)
	}
}

func runWithMemoryBroker(ctx context.Context, settings appconfig.Settings, cfg *config.Configuration, tasks *registry.Registry, results *sqlitebackend.Backend, zlog *zapdriver.Driver) error {
	b := memory.New(1024)
	w := worker.New[any](b, tasks, cfg, settings.Worker.Concurrency,
		worker.WithResultBackend[any](results),
		worker.WithLogger[any](zlog),
	)
	zlog.Log(logging.LevelInfo, "asynctask-worker: starting", "broker", "memory")
	return w.Run(ctx)
}

func runWithRedisBroker(ctx context.Context, settings appconfig.Settings, cfg *config.Configuration, tasks *registry.Registry, results *sqlitebackend.Backend, zlog *zapdriver.Driver) error {
	client := redis.NewClient(&redis.Options{Addr: settings.Broker.Redis.Addr})

	streamCfg := redisstream.DefaultConfig()
	streamCfg.StreamName = firstNonEmpty(settings.Broker.Redis.StreamName, streamCfg.StreamName)
	streamCfg.GroupName = firstNonEmpty(settings.Broker.Redis.GroupName, streamCfg.GroupName)
	streamCfg.ConsumerName = firstNonEmpty(settings.Broker.Redis.ConsumerName, fmt.Sprintf("worker-%d", time.Now().UnixNano()))

	b := redisstream.New(client, streamCfg, redisstream.WithLogger(zlog))
	w := worker.New[redisstream.Meta](b, tasks, cfg, settings.Worker.Concurrency,
		worker.WithResultBackend[redisstream.Meta](results),
		worker.WithLogger[redisstream.Meta](zlog),
	)
	zlog.Log(logging.LevelInfo, "asynctask-worker: starting", "broker", "redis", "addr", settings.Broker.Redis.Addr)
	return w.Run(ctx)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ broker.Broker[any] = (*memory.Broker)(nil)
