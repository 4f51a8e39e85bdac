package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/dolphinbot/internal/config"
	"github.com/crystaldolphin/dolphinbot/internal/dependency"
	"github.com/crystaldolphin/dolphinbot/internal/receiver"
)

var dropPending bool

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Manage the Telegram webhook registration",
}

var webhookSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Register webhookUrl with Telegram",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, bot, err := webhookBot()
		if err != nil {
			return err
		}
		url, err := receiver.SetWebhook(bot, &cfg.Channels.Telegram, dropPending)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Webhook set to %s\n", url)
		return nil
	},
}

var webhookDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the webhook so long polling can be used",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, bot, err := webhookBot()
		if err != nil {
			return err
		}
		if err := receiver.DeleteWebhook(bot, dropPending); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Webhook deleted")
		return nil
	},
}

var webhookInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the webhook Telegram currently has on record",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, bot, err := webhookBot()
		if err != nil {
			return err
		}
		info, err := bot.GetWebhookInfo()
		if err != nil {
			return fmt.Errorf("getWebhookInfo: %w", err)
		}
		out := cmd.OutOrStdout()
		url := info.URL
		if url == "" {
			url = "(none, polling)"
		}
		fmt.Fprintf(out, "URL:      %s\n", url)
		fmt.Fprintf(out, "Pending:  %d\n", info.PendingUpdateCount)
		if info.LastErrorDate != 0 {
			at := time.Unix(int64(info.LastErrorDate), 0).Format(time.RFC3339)
			fmt.Fprintf(out, "Last err: %s (%s)\n", info.LastErrorMessage, at)
		}
		return nil
	},
}

func init() {
	webhookCmd.PersistentFlags().BoolVar(&dropPending, "drop-pending", false, "Discard updates Telegram has queued")
	webhookCmd.AddCommand(webhookSetCmd, webhookDeleteCmd, webhookInfoCmd)
}

func webhookBot() (*config.Config, receiver.WebhookAPI, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Channels.Telegram.Enabled || cfg.Channels.Telegram.Token == "" {
		return nil, nil, errors.New("telegram is not configured")
	}
	bot, err := dependency.NewTelegramBot(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, bot, nil
}
