package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/dolphinbot/internal/config"
	"github.com/crystaldolphin/dolphinbot/internal/schedule"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration status and scheduled jobs",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	cfgPath := configPath()

	fmt.Fprintf(out, "%s dolphinbot Status\n\n", logo)

	_, statErr := os.Stat(cfgPath)
	fmt.Fprintf(out, "Config:    %s %s\n", cfgPath, mark(statErr == nil))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(out, "  (could not load config: %v)\n", err)
		return nil
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(out, "  ✗ %v\n", err)
	}

	fmt.Fprintf(out, "Mode:      %s\n", cfg.Mode)
	fmt.Fprintf(out, "Listen:    %s\n", cfg.Addr())
	if len(cfg.Admins) > 0 {
		fmt.Fprintf(out, "Admins:    %s\n", strings.Join(cfg.Admins, ", "))
	}

	fmt.Fprintln(out, "\nPlatforms:")
	tg := cfg.Channels.Telegram
	fmt.Fprintf(out, "  %-10s %s", "telegram", mark(tg.Enabled && tg.Token != ""))
	if tg.Enabled {
		fmt.Fprintf(out, " %s", tg.WebhookPath)
		if tg.WebhookSecret == "" {
			fmt.Fprint(out, " (no secret)")
		}
	}
	fmt.Fprintln(out)
	sl := cfg.Channels.Slack
	fmt.Fprintf(out, "  %-10s %s", "slack", mark(sl.Enabled && sl.BotToken != ""))
	if sl.Enabled {
		fmt.Fprintf(out, " %s", sl.EventsPath)
	}
	fmt.Fprintln(out)

	if len(cfg.Jobs) == 0 {
		return nil
	}
	fmt.Fprintln(out, "\nJobs:")
	sched := schedule.New(nil)
	for _, job := range cfg.Jobs {
		if err := sched.Add(job); err != nil {
			fmt.Fprintf(out, "  %-16s ✗ %v\n", job.Name, err)
		}
	}
	for _, j := range sched.Jobs() {
		fmt.Fprintf(out, "  %-16s %-16s next %s → %s:%s\n",
			j.Name, j.Spec, j.Next.Format(time.RFC3339), j.Platform, j.ChatID)
	}
	return nil
}

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}
