package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/teilomillet/luagen/server/processing"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			// Prompt overrides only fail when parsed.
			if _, err := processing.NewProcessor(cfg.Generation); err != nil {
				return fmt.Errorf("invalid prompt templates: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Configuration is valid")
			fmt.Fprintf(out, "  port:          %d\n", cfg.Server.Port)
			fmt.Fprintf(out, "  generate path: %s\n", cfg.Server.GeneratePath)
			fmt.Fprintf(out, "  base url:      %s\n", cfg.Provider.BaseURL)
			fmt.Fprintf(out, "  credential:    %s\n", presence(cfg.Provider.APIKey))
			if cfg.Provider.ModelOverride != "" {
				fmt.Fprintf(out, "  model:         %s\n", cfg.Provider.ModelOverride)
			}
			return nil
		},
	}
}

func presence(s string) string {
	if s == "" {
		return "missing"
	}
	return "set"
}
