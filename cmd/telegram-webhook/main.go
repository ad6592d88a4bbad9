package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "telegram-webhook",
	Short: "Manage the Telegram webhook of the support relay",
	Long: `telegram-webhook points the support bot at this API and shows what
Telegram currently has registered.

Configuration is read the same way as the server (GO_ENV, .env files and
TELEGRAM_* environment variables).

Examples:
  telegram-webhook register https://support.example.com
  telegram-webhook info`,
	SilenceUsage: true,
}

var timeoutFlag string

func init() {
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(infoCmd)

	rootCmd.PersistentFlags().StringVar(&timeoutFlag, "timeout", "15s", "Timeout for Telegram API calls")
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc, error) {
	timeout, err := parseTimeout(timeoutFlag)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	return ctx, cancel, nil
}
