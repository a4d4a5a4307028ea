package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/teilomillet/luagen/config"
	"github.com/teilomillet/luagen/errors"
	"github.com/teilomillet/luagen/server"
	"go.uber.org/zap"
)

const serveLongDesc string = `Start the HTTP server.

The generation endpoint accepts POST requests in generate, fix and update
mode. When --config is set the file is watched and changes are applied
without a restart; a changed port rebinds the listener.`

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the luagen HTTP server",
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			watch := opts.configPath != ""
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
				// A reload would move the listener back to the file's port.
				watch = false
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, opts, cfg, watch)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Listen port (overrides the config file)")

	return cmd
}

func runServe(ctx context.Context, opts *rootOptions, cfg *config.Config, watch bool) error {
	logger := newLogger(cfg.Logging, opts.debug, os.Stdout)
	defer func() {
		_ = logger.Sync()
	}()
	errors.SetLogger(logger)

	var watcher config.Watcher
	if watch {
		w, err := config.NewConfigWatcher(opts.configPath, logger)
		if err != nil {
			return fmt.Errorf("failed to create config watcher: %w", err)
		}
		watcher = w
	} else {
		watcher = config.NewStaticWatcher(cfg)
	}
	defer watcher.Close()

	srv, err := server.NewServerWithConfig(watcher, logger)
	if err != nil {
		return fmt.Errorf("server initialization failed: %w", err)
	}

	logger.Info("starting luagen",
		zap.String("version", Version),
		zap.Int("port", cfg.Server.Port),
		zap.String("generate_path", cfg.Server.GeneratePath),
		zap.Bool("config_watch", watch),
	)

	if err := srv.Start(ctx); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}
