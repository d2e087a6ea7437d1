package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/internal/cli"
)

var refineCmd = &cobra.Command{
	Use:   "refine <workflow-file>",
	Short: "Refine a workflow document once",
	Long: `Sends one instruction to the host and writes the refined workflow back.
The host is spawned as a child process: host.command when configured, otherwise
this binary's own host command. --in-process skips the child entirely.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message, _ := cmd.Flags().GetString("message")
		out, _ := cmd.Flags().GetString("out")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		inProcess, _ := cmd.Flags().GetBool("in-process")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		var dial cli.Dialer
		if inProcess {
			rt, err := cli.NewRuntime(cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			dial = cli.InProcess(rt)
		} else {
			command, err := hostCommand(cmd, cfg.Host.Command)
			if err != nil {
				return err
			}
			dial = cli.SpawnHost(command, logger)
		}

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		return cli.RunRefine(ctx, cli.RefineParams{
			Path:    args[0],
			Message: message,
			Out:     out,
			Timeout: timeout,
			Dial:    dial,
			Stdout:  cmd.OutOrStdout(),
			Logger:  logger,
		})
	},
}

func init() {
	rootCmd.AddCommand(refineCmd)
	refineCmd.Flags().StringP("message", "m", "", "Refinement instruction")
	refineCmd.Flags().StringP("out", "o", "", "Output file (defaults to the input file)")
	refineCmd.Flags().Duration("timeout", 0, "Declared request timeout (0 uses the default)")
	refineCmd.Flags().Bool("in-process", false, "Run the host inside this process")
	_ = refineCmd.MarkFlagRequired("message")
}

// hostCommand returns the configured host command, or this executable running
// `host` with the same persistent flags.
func hostCommand(cmd *cobra.Command, configured []string) ([]string, error) {
	if len(configured) > 0 {
		return configured, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate arbor executable: %w", err)
	}
	command := []string{exe, "host"}
	for _, name := range []string{"config", "log-level", "dir"} {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			command = append(command, "--"+name+"="+f.Value.String())
		}
	}
	return command, nil
}
