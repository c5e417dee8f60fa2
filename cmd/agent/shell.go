package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"agentrunner/internal/terminal"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Run the interactive operator shell",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cmd, false)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			a.close(closeCtx)
		}()

		return terminal.New(a.svc, os.Stdout).Run(ctx, os.Stdin)
	},
}
