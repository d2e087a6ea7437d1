package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/pkg/host"
	"github.com/aretw0/arbor/pkg/schema"
)

var validateCmd = &cobra.Command{
	Use:   "validate <workflow-file>",
	Short: "Validate a workflow document against the node schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		load := schema.LoadDefault
		if cfg.Schema != "" {
			load = func() (*schema.Document, error) { return schema.NewCache().Load(cfg.Schema) }
		}
		doc, err := load()
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		wf, err := host.ParseWorkflow(args[0], data)
		if err != nil {
			return err
		}

		if err := doc.ValidateWorkflow(wf); err != nil {
			errs := schema.ValidationErrors(err)
			if errs == nil {
				errs = []error{err}
			}
			for _, e := range errs {
				fmt.Fprintf(cmd.ErrOrStderr(), "  - %v\n", e)
			}
			return fmt.Errorf("%s: %d validation error(s)", args[0], len(errs))
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is valid (%d nodes, %d connections)\n", args[0], len(wf.Nodes), len(wf.Connections))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
