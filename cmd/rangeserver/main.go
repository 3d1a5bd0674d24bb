// rangeserver 以 HTTP 和 Kafka 两种入口对外提供命名区间树的查询与更新。
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/wyfcoding/segtree/algorithm"
	"github.com/wyfcoding/segtree/api"
	"github.com/wyfcoding/segtree/app"
	"github.com/wyfcoding/segtree/catalog"
	"github.com/wyfcoding/segtree/config"
	"github.com/wyfcoding/segtree/health"
	"github.com/wyfcoding/segtree/idgen"
	"github.com/wyfcoding/segtree/ingest"
	"github.com/wyfcoding/segtree/logging"
	"github.com/wyfcoding/segtree/metrics"
	"github.com/wyfcoding/segtree/server"
	"github.com/wyfcoding/segtree/tracing"
)

const preloadWorkers = 4

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/rangeserver.toml", "path to config file")
	flag.Parse()

	if err := run(configPath); err != nil {
		slog.Error("rangeserver exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	var cfg config.Config
	if err := config.Load(configPath, &cfg); err != nil {
		return err
	}

	logger := logging.NewFromConfig(logging.Config{
		Service:    cfg.Server.Name,
		Module:     "main",
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		Console:    cfg.Log.Console,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	logging.SetDefault(logger)
	config.PrintWithMask(&cfg)

	tc := cfg.Tracing
	if tc.ServiceName == "" {
		tc.ServiceName = cfg.Server.Name
	}
	shutdownTracer, err := tracing.InitTracer(tc)
	if err != nil {
		return err
	}

	m := metrics.NewMetrics(cfg.Server.Name)
	m.RegisterBuildInfo(cfg.Server.Name, cfg.Version, cfg.Catalog.DefaultEngine)

	ids, err := idgen.NewGenerator(cfg.Snowflake)
	if err != nil {
		return err
	}
	idgen.SetDefault(ids)

	engine, err := algorithm.ParseEngine(cfg.Catalog.DefaultEngine)
	if err != nil {
		return err
	}
	cat := catalog.New(
		catalog.WithDefaultEngine(engine),
		catalog.WithMaxLeaves(cfg.Catalog.MaxLeaves),
		catalog.WithLogger(logger.WithModule("catalog")),
		catalog.WithMetrics(m.Range),
	)

	// 热更新会覆盖 cfg，启动阶段的回调只使用这里的快照。
	name := cfg.Server.Name
	initial := treeSpecs(cfg.Catalog.Trees)

	opts := []app.Option{
		app.WithShutdownTimeout(cfg.Server.HTTP.ShutdownTimeout),
		app.WithHook(app.Hook{Name: "tracing", OnStop: shutdownTracer}),
		app.WithHook(app.Hook{Name: "catalog", OnStart: func(ctx context.Context) error {
			return cat.Preload(ctx, initial, preloadWorkers)
		}}),
	}

	readiness := health.NewRegistry(0)
	readiness.Register("catalog", health.MinTreesChecker(cat, len(initial)))
	if cfg.Kafka.Enabled {
		readiness.Register("kafka", health.KafkaChecker(cfg.Kafka.Brokers))
	}

	routerOpts := api.RouterOptions{
		ServiceName:    cfg.Server.Name,
		Mode:           server.GinMode(cfg.Server.Environment),
		TrustedProxies: cfg.Server.HTTP.TrustedProxies,
		MaxBodyBytes:   cfg.Server.HTTP.MaxBodyBytes,
		SlowThreshold:  cfg.Server.HTTP.SlowThreshold,
		Readiness:      readiness,
	}
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Addr != "" {
			opts = append(opts, app.WithCleanup(m.ExposeHTTP(cfg.Metrics.Addr)))
		} else {
			routerOpts.MetricsPath = cfg.Metrics.Path
		}
	}
	if cfg.RateLimit.Enabled {
		routerOpts.RateLimit = float64(cfg.RateLimit.Rate)
		routerOpts.RateBurst = cfg.RateLimit.Burst
		routerOpts.RateScope = cfg.RateLimit.Scope
	}

	router, err := api.NewRouter(routerOpts, cat, m, logger.WithModule("http"), ids)
	if err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Addr, cfg.Server.HTTP.Port)
	opts = append(opts, app.WithServer(server.NewGinServer(router, addr, server.HTTPOptions{
		ReadTimeout:       cfg.Server.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:       cfg.Server.HTTP.IdleTimeout,
		MaxHeaderBytes:    cfg.Server.HTTP.MaxHeaderBytes,
		ShutdownTimeout:   cfg.Server.HTTP.ShutdownTimeout,
	}, logger.WithModule("http").Logger)))

	if cfg.Kafka.Enabled {
		ingestLogger := logger.WithModule("ingest")
		consumer := ingest.NewConsumer(cfg.Kafka, ingest.NewApplier(cat, ingestLogger).Handle,
			ingest.WithLogger(ingestLogger),
			ingest.WithMetrics(m.Ingest),
		)
		opts = append(opts,
			app.WithServer(consumer),
			app.WithHook(app.Hook{Name: "ingest", OnStop: consumer.Stop}),
		)
	}

	config.RegisterReloadHook(func(next *config.Config) {
		createMissing(cat, next.Catalog.Trees, logger)
	})
	config.Watch(&cfg)

	return app.New(name, logger.Logger, opts...).Run(context.Background())
}

func treeSpecs(trees []config.TreeConfig) []catalog.Spec {
	specs := make([]catalog.Spec, 0, len(trees))
	for _, t := range trees {
		specs = append(specs, catalog.Spec{
			Name:        t.Name,
			Engine:      t.Engine,
			Aggregation: t.Aggregation,
			Mode:        t.Mode,
			Values:      t.Values,
		})
	}
	return specs
}

// createMissing 热更新后补建配置中新增的树，已存在的树保持不变。
func createMissing(cat *catalog.Catalog, trees []config.TreeConfig, logger *logging.Logger) {
	var pending []catalog.Spec
	for _, spec := range treeSpecs(trees) {
		if _, err := cat.Get(spec.Name); err != nil {
			pending = append(pending, spec)
		}
	}
	if len(pending) == 0 {
		return
	}
	if err := cat.Preload(context.Background(), pending, preloadWorkers); err != nil {
		logger.Error("failed to create trees after reload", "error", err)
	}
}
