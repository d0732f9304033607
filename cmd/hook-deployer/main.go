package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eteu-technologies/hook-deployer/internal/config"
	"github.com/eteu-technologies/hook-deployer/internal/deploy"
	"github.com/eteu-technologies/hook-deployer/internal/metrics"
	"github.com/eteu-technologies/hook-deployer/internal/notify"
	"github.com/eteu-technologies/hook-deployer/internal/server"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		// zap may not be configured yet when flag parsing fails.
		_ = zap.L().Sync()
		log.Fatalln("unhandled error:", err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "hook-deployer",
		Usage: "run deployment steps when a signed webhook arrives",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yml",
				EnvVars: []string{"WEBHOOK_CONFIG"},
			},
			&cli.BoolFlag{
				Name:    "debug",
				EnvVars: []string{"WEBHOOK_DEBUG"},
			},
			&cli.IntFlag{
				Name:    "port",
				Value:   9000,
				EnvVars: []string{"WEBHOOK_PORT"},
			},
			&cli.StringFlag{
				Name:    "secret",
				EnvVars: []string{"WEBHOOK_SECRET"},
			},
			&cli.Int64Flag{
				Name:  "max-body-size",
				Value: server.DefaultMaxBodySize,
			},
			&cli.StringFlag{
				Name:    "shell",
				Value:   "/bin/sh",
				EnvVars: []string{"WEBHOOK_SHELL"},
			},
			&cli.BoolFlag{
				Name:    "serialize",
				Usage:   "never run two deployments of the same app at once",
				EnvVars: []string{"WEBHOOK_SERIALIZE"},
			},
			&cli.StringFlag{
				Name:    "lock-dir",
				Usage:   "directory for per-app lock files shared between processes (implies --serialize)",
				EnvVars: []string{"WEBHOOK_LOCK_DIR"},
			},
		},
		Before: func(cctx *cli.Context) error {
			if err := configureLogging(cctx.Bool("debug")); err != nil {
				return fmt.Errorf("failed to configure logging: %w", err)
			}
			return nil
		},
		Action: serve,
		Commands: []*cli.Command{
			checkCommand(),
		},
	}
}

func serve(cctx *cli.Context) (err error) {
	secret := cctx.String("secret")
	if len(secret) == 0 {
		err = fmt.Errorf("Environment 'WEBHOOK_SECRET' is not set")
		return
	}

	var cfg *config.Config
	if cfg, err = config.Load(cctx.String("config")); err != nil {
		return
	}
	zap.L().Info("configuration loaded", zap.String("from", cctx.String("config")))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	notifier := notify.FromConfig(cfg.Notifications, nil, zap.L(), m)

	var guard deploy.Guard = deploy.NopGuard{}
	if cctx.Bool("serialize") || cctx.String("lock-dir") != "" {
		guard = deploy.NewAppGuard(cctx.String("lock-dir"))
	}

	runner := deploy.NewRunner(
		&deploy.ShellExecutor{Shell: cctx.String("shell"), Logger: zap.L().Named("step")},
		notifier,
		deploy.WithGuard(guard),
		deploy.WithLogger(zap.L()),
		deploy.WithMetrics(m),
	)

	zap.L().Info("configured deployments", zap.Strings("apps", cfg.AppNames()))
	zap.L().Info("notifications enabled", zap.Strings("channels", notifier.Channels()))

	srv := server.New(server.Options{
		Listen:      fmt.Sprintf(":%d", cctx.Int("port")),
		Secret:      secret,
		MaxBodySize: cctx.Int64("max-body-size"),
		Gatherer:    reg,
	}, cfg, runner, zap.L())

	ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = srv.Start(ctx); err != nil {
		return
	}

	zap.L().Info("exiting")
	return
}

func configureLogging(debug bool) error {
	var cfg zap.Config

	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level.SetLevel(zapcore.DebugLevel)
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.Development = false
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level.SetLevel(zapcore.InfoLevel)
	}

	cfg.OutputPaths = []string{
		"stdout",
	}

	logger, err := cfg.Build()
	if err != nil {
		return err
	}

	zap.ReplaceGlobals(logger)

	return nil
}
