package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/internal/cli"
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Serve the designer protocol as JSON lines on stdio",
	Long: `Runs the host on stdin/stdout, one JSON message per line. Logs go to stderr.
With --watch the named workflow is pushed as preview events whenever its document changes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, _ := cmd.Flags().GetString("watch")

		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		if err := cli.RunHost(ctx, rt, os.Stdin, os.Stdout, watch); err != nil {
			return err
		}
		if sig := ctx.Signal(); sig != nil {
			rt.Logger.Info("Host stopped", "signal", sig)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hostCmd)
	hostCmd.Flags().String("watch", "", "Workflow id to preview on every change")
}
