package cli

import (
	"errors"
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"backoffice/internal/api"
	"backoffice/internal/backend"
	"backoffice/internal/reference"
	"backoffice/internal/screen"
	"backoffice/internal/upload"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the admin console",
		Example: `  # against a local dev backend
  backoffice stub &
  backoffice serve --backend http://localhost:8081`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := getConfig(ctx)
			logger := getLogger(ctx)

			client, err := backend.New(cfg.BackendURL, backend.WithToken(cfg.BackendToken), backend.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("backend client: %w", err)
			}

			locale, err := reference.LoadLocale(cfg.LocalesDir, cfg.Locale)
			if err != nil {
				return fmt.Errorf("locale: %w", err)
			}
			logger.Info("locale loaded", "lang", cfg.Locale, "messages", locale.Len())

			srv, err := api.New(api.Config{
				Addr: net.JoinHostPort("", cfg.Port),
				Loader: func() (*screen.Catalog, error) {
					return screen.LoadCatalog(cfg.FormsDir, cfg.CodesDir, client)
				},
				Backend:       client,
				Uploader:      upload.New(client, "", cfg.UploadMaxSize),
				Translator:    locale,
				SessionSecret: cfg.SessionSecret,
				SecureCookie:  cfg.SecureCookie,
				FormsDir:      cfg.FormsDir,
				Watch:         cfg.WatchForms,
				Logger:        logger,
			})
			if err != nil {
				var lerr *screen.LintError
				if errors.As(err, &lerr) {
					printIssues(cmd, lerr.Issues)
				}
				return err
			}
			return srv.Serve(ctx)
		},
	}
}
