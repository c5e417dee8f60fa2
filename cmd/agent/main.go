// agent manages coding-agent containers: an HTTP API server and an
// interactive operator shell over the same job lifecycle.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "agent",
		Short: "Coding agent job manager",
		Long:  `Runs coding-agent containers as jobs, one container per job, with a VNC link for each.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(cmd)
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("provisioning", "", "YAML provisioning file (overrides PROVISIONING_FILE)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(shellCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// setupLogging installs the JSON handler. The shell logs to stderr so its
// own output on stdout stays readable.
func setupLogging(cmd *cobra.Command) error {
	raw, _ := cmd.Flags().GetString("log-level")
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return err
	}

	out := os.Stdout
	if cmd.Name() == shellCmd.Name() {
		out = os.Stderr
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})))
	return nil
}
