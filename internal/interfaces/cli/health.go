package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewHealthCmd creates the health command, which probes the NER service.
func NewHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check connectivity to the NER service",
		RunE:  runHealth,
	}
}

func runHealth(cmd *cobra.Command, _ []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cliCtx.Timeout)
	defer cancel()

	if err := cliCtx.Client.Health(ctx); err != nil {
		return fmt.Errorf("NER service at %s is unhealthy: %w", cliCtx.Config.NER.BaseURL, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "NER service at %s is healthy\n", cliCtx.Config.NER.BaseURL)
	return nil
}
