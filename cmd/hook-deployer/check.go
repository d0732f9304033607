package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/eteu-technologies/hook-deployer/internal/config"
)

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "validate the configuration file",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "re-validate whenever the file changes",
			},
		},
		Action: func(cctx *cli.Context) error {
			path := cctx.String("config")
			err := checkConfig(cctx.App.Writer, path)
			if !cctx.Bool("watch") {
				return err
			}
			return watchConfig(cctx.Context, cctx.App.Writer, path)
		},
	}
}

func checkConfig(w io.Writer, path string) (err error) {
	var cfg *config.Config
	if cfg, err = config.Load(path); err != nil {
		fmt.Fprintf(w, "%s: invalid: %v\n", path, err)
		return
	}

	fmt.Fprintf(w, "%s: ok\n", path)
	for _, app := range cfg.AppNames() {
		d := cfg.Deployments[app]
		fmt.Fprintf(w, "  %s: %d step(s) in %s\n", app, len(d.Steps), d.Path)
	}
	fmt.Fprintf(w, "  notifications: %v\n", cfg.EnabledChannels())
	return
}

// watchConfig re-runs checkConfig on every change to path until ctx is done.
// The parent directory is watched so that editors replacing the file are seen.
func watchConfig(ctx context.Context, w io.Writer, path string) (err error) {
	var watcher *fsnotify.Watcher
	if watcher, err = fsnotify.NewWatcher(); err != nil {
		err = fmt.Errorf("failed to create watcher: %w", err)
		return
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	if err = watcher.Add(filepath.Dir(target)); err != nil {
		err = fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
		return
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			zap.L().Debug("config changed", zap.String("path", target), zap.String("op", event.Op.String()))
			_ = checkConfig(w, target)
		case werr, ok := <-watcher.Errors:
			if !ok {
				return
			}
			zap.L().Warn("watcher error", zap.Error(werr))
		case <-ctx.Done():
			return
		}
	}
}
