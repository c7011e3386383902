package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"backoffice/internal/screen"
)

func newLintCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lint",
		Short: "Check forms/*.dsl and code lists",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := getConfig(cmd.Context())
			cat, err := screen.LoadCatalog(cfg.FormsDir, cfg.CodesDir, nil)
			if err != nil {
				var lerr *screen.LintError
				if errors.As(err, &lerr) {
					printIssues(cmd, lerr.Issues)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d screens OK\n", cat.Len())
			return nil
		},
	}
}

func printIssues(cmd *cobra.Command, issues []screen.Issue) {
	for _, it := range issues {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s [%s]\n", it.String(), it.Code)
	}
}
