package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"SpeakCEO/internal/config"
	"SpeakCEO/internal/logger"
	"SpeakCEO/internal/server"
	"SpeakCEO/internal/services"

	"github.com/spf13/cobra"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:           "speakceo",
	Short:         "SpeakCEO course site, student app and lead desk",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			return err
		}
		// Logs go to stderr so export commands can write to stdout.
		logger.Init(cfg.InstanceName, cfg.LogLevel, os.Stderr)
		log.SetFlags(0)
		log.SetOutput(&logger.JSONLogger{Instance: cfg.InstanceName})
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web server and background sync workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := services.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		return server.New(cfg, svc).Run(ctx)
	},
}

// withServices opens the store and services for one-shot commands.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, svc *services.Services) error) error {
	ctx := cmd.Context()
	svc, err := services.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(ctx, svc)
}

func init() {
	rootCmd.AddCommand(serveCmd, accountsCmd(), leadsCmd(), syncCmd())
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
