package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var debug bool

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rtrelay",
		Short: "Realtime voice relay",
		Long: `rtrelay relays realtime voice sessions between authenticated clients and the
OpenAI realtime API.

Run 'rtrelay gateway' to serve, 'rtrelay chat' to talk to a running gateway.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(gatewayCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(tokenCmd())

	return rootCmd
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
}
