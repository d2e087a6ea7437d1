package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/internal/presentation/graph"
	"github.com/aretw0/arbor/pkg/host"
)

var graphCmd = &cobra.Command{
	Use:   "graph <workflow-file>",
	Short: "Print a workflow as a Mermaid flowchart",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		wf, err := host.ParseWorkflow(args[0], data)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(wf.ToGraph(), nil))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
