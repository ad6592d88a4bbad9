package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/kendall-kelly/support-relay-api/config"
	"github.com/kendall-kelly/support-relay-api/services"
	"github.com/spf13/cobra"
)

// WebhookPath is where the API serves Telegram deliveries
const WebhookPath = "/api/v1/telegram/webhook"

// webhookAdmin is the part of the Telegram gateway this tool drives
type webhookAdmin interface {
	IsConfigured() bool
	SetWebhook(ctx context.Context, url, secret string) error
	GetWebhookInfo(ctx context.Context) (*services.WebhookInfo, error)
}

var registerCmd = &cobra.Command{
	Use:   "register <https-base-url>",
	Short: "Register the relay's webhook URL with Telegram",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel, err := commandContext(cmd)
		if err != nil {
			return err
		}
		defer cancel()

		cfg := config.LoadEnvironment()
		return registerWebhook(ctx, services.NewTelegramService(cfg), cfg.TelegramWebhookSecret, args[0], cmd.OutOrStdout())
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the webhook Telegram currently delivers to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel, err := commandContext(cmd)
		if err != nil {
			return err
		}
		defer cancel()

		cfg := config.LoadEnvironment()
		return printWebhookInfo(ctx, services.NewTelegramService(cfg), cmd.OutOrStdout())
	},
}

func registerWebhook(ctx context.Context, admin webhookAdmin, secret, baseURL string, out io.Writer) error {
	if !admin.IsConfigured() {
		return errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_FORUM_GROUP_ID must be set")
	}
	if secret == "" {
		return errors.New("TELEGRAM_WEBHOOK_SECRET must be set, the API rejects deliveries without it")
	}

	target, err := webhookURL(baseURL)
	if err != nil {
		return err
	}
	if err := admin.SetWebhook(ctx, target, secret); err != nil {
		return fmt.Errorf("failed to register webhook: %w", err)
	}

	fmt.Fprintf(out, "Webhook registered: %s\n", target)
	return nil
}

func printWebhookInfo(ctx context.Context, admin webhookAdmin, out io.Writer) error {
	if !admin.IsConfigured() {
		return errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_FORUM_GROUP_ID must be set")
	}

	info, err := admin.GetWebhookInfo(ctx)
	if err != nil {
		return fmt.Errorf("failed to get webhook info: %w", err)
	}

	registered := info.URL
	if registered == "" {
		registered = "(none)"
	}
	fmt.Fprintf(out, "URL:             %s\n", registered)
	fmt.Fprintf(out, "Pending updates: %d\n", info.PendingUpdateCount)
	if len(info.AllowedUpdates) > 0 {
		fmt.Fprintf(out, "Allowed updates: %s\n", strings.Join(info.AllowedUpdates, ", "))
	}
	if info.LastErrorMessage != "" {
		fmt.Fprintf(out, "Last error:      %s (%s)\n", info.LastErrorMessage,
			time.Unix(info.LastErrorDate, 0).UTC().Format(time.RFC3339))
	}
	return nil
}

// webhookURL turns the public base URL of the API into the webhook endpoint.
// Telegram only delivers to https.
func webhookURL(baseURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	if parsed.Scheme != "https" || parsed.Host == "" {
		return "", fmt.Errorf("base URL must be an absolute https URL, got %q", baseURL)
	}
	return strings.TrimRight(parsed.String(), "/") + WebhookPath, nil
}

func parseTimeout(value string) (time.Duration, error) {
	timeout, err := time.ParseDuration(value)
	if err != nil || timeout <= 0 {
		return 0, fmt.Errorf("invalid --timeout %q", value)
	}
	return timeout, nil
}
