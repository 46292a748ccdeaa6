package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ferry-booking-client/internal/devserver"

	"github.com/spf13/cobra"
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local booking API with the auth endpoints",
	Long: `Starts a development API server issuing guest and user sessions with
short-lived JWT access tokens and single-use refresh tokens. Point the
client at it with environment: dev.`,
	RunE: runDevserverCommand,
}

var devserverAddr string

func init() {
	devserverCmd.Flags().StringVar(&devserverAddr, "addr", "", "listen address (overrides devserver.addr)")
	rootCmd.AddCommand(devserverCmd)
}

func runDevserverCommand(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	serverCfg := cfg.DevServer
	if devserverAddr != "" {
		serverCfg.Addr = devserverAddr
	}

	server, err := devserver.NewServer(serverCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create development server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.Start(ctx)
}
