package main

import (
	"fmt"

	"github.com/openmined/docsync/internal/config"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default docsync.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("output")
			force, _ := cmd.Flags().GetBool("force")

			cfg := config.Default()
			if err := cfg.WriteYAML(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s config written to %s\n", green("✔"), path)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", configFileName+".yaml", "where to write the config")
	cmd.Flags().BoolP("force", "f", false, "overwrite an existing file")
	return cmd
}
