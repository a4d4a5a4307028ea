package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/teilomillet/luagen/config"
	"github.com/teilomillet/luagen/server/provider"
	"go.uber.org/zap"
)

func newModelsCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the Groq catalog and the model a request would use",
		Long: `Fetch the model catalog with the configured credential, score every entry
and mark the one the generation endpoint would select.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Provider.APIKey == "" {
				return fmt.Errorf("%s not configured", config.EnvAPIKey)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			logger := zap.NewNop()
			if opts.debug {
				logger = newLogger(cfg.Logging, true, cmd.ErrOrStderr())
			}

			client := provider.NewGroqClient(provider.Options{
				APIKey:  cfg.Provider.APIKey,
				BaseURL: cfg.Provider.BaseURL,
				Logger:  logger,
			})
			catalog, err := client.ListModels(ctx)
			if err != nil {
				return fmt.Errorf("list models: %w", err)
			}

			selected := provider.SelectModel(catalog, cfg.Provider.ModelOverride)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "\tMODEL\tSCORE")
			for _, m := range provider.Rank(catalog) {
				mark := ""
				if m.ID == selected {
					mark = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\n", mark, m.ID, m.Score)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if cfg.Provider.ModelOverride != "" && selected != cfg.Provider.ModelOverride {
				fmt.Fprintf(cmd.OutOrStdout(), "\noverride %q not in catalog, using %s\n", cfg.Provider.ModelOverride, selected)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Catalog request timeout")

	return cmd
}
