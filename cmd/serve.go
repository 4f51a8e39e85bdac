package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/dolphinbot/internal/config"
	"github.com/crystaldolphin/dolphinbot/internal/dependency"
	"github.com/crystaldolphin/dolphinbot/internal/receiver"
)

var (
	serveMode string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server, dispatcher and gateway",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveMode, "mode", "m", "", "Telegram update mode: webhook or polling (overrides config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "HTTP port (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("mode") {
		cfg.Mode = serveMode
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	c, err := dependency.New(cfg)
	if err != nil {
		return err
	}
	if err := prepareTelegram(c); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The gateway outlives the receivers so replies produced while the pool
	// drains still go out.
	gwCtx, stopGateway := context.WithCancel(context.Background())
	defer stopGateway()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Server().Run(gctx) })
	if p := c.TelegramPoller(); p != nil {
		g.Go(func() error { return p.Run(gctx) })
	}
	g.Go(func() error { return c.Scheduler().Run(gctx) })
	g.Go(func() error { return c.Heartbeat().Start(gctx) })
	g.Go(func() error {
		defer stopGateway()
		return c.Pool().Run(gctx, cfg.Server.ShutdownTimeout)
	})
	g.Go(func() error { return c.Gateway().Run(gwCtx) })

	fmt.Printf("%s dolphinbot listening on %s (%s mode). Press Ctrl+C to stop.\n", logo, cfg.Addr(), cfg.Mode)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	delivered, failed := c.Gateway().Counts()
	slog.Info("dolphinbot stopped", "delivered", delivered, "failed", failed)
	return nil
}

// prepareTelegram makes Telegram's webhook registration match the mode.
func prepareTelegram(c *dependency.Container) error {
	bot := c.TelegramBot()
	if bot == nil {
		return nil
	}
	cfg := c.Config()
	switch cfg.Mode {
	case config.ModePolling:
		if err := receiver.DeleteWebhook(bot, false); err != nil {
			return err
		}
	case config.ModeWebhook:
		if cfg.Channels.Telegram.WebhookURL == "" {
			slog.Warn("telegram: webhookUrl not set, register the webhook with `dolphinbot webhook set`")
			return nil
		}
		url, err := receiver.SetWebhook(bot, &cfg.Channels.Telegram, false)
		if err != nil {
			return err
		}
		slog.Info("telegram: webhook registered", "url", url)
	}
	return nil
}
