package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"backoffice/internal/config"
	"backoffice/internal/pg"
	"backoffice/internal/screen"
	"backoffice/internal/stub"
)

func newStubCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stub",
		Short: "Start the development REST backend",
		Long: `Start an envelope-speaking REST backend for local runs. Collections are
taken from forms/*.dsl (screen paths and options rows_path). Records live in
memory unless --db is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := getConfig(ctx)
			logger := getLogger(ctx)

			cat, err := screen.LoadCatalog(cfg.FormsDir, cfg.CodesDir, nil)
			if err != nil {
				return fmt.Errorf("forms: %w", err)
			}

			store, db, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			if db != nil {
				defer func() { _ = db.Close() }()
			}

			if err := os.MkdirAll(cfg.FilesRoot, 0o755); err != nil {
				return fmt.Errorf("files root: %w", err)
			}

			collections := stub.CollectionsFromCatalog(cat)
			logger.Info("stub collections", "count", len(collections))

			srv := stub.New(stub.Config{
				Store:       store,
				Blob:        &stub.LocalBlobStore{Root: cfg.FilesRoot},
				Collections: collections,
				Token:       cfg.StubToken,
				PublicURL:   cfg.PublicURL,
				MaxUpload:   cfg.UploadMaxSize,
				Logger:      logger,
			})
			return serveHTTP(ctx, net.JoinHostPort("", cfg.StubPort), srv.Handler(), logger)
		},
	}
}

// openStore: Postgres при заданном DBURL, иначе память.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (stub.Store, *sql.DB, error) {
	if cfg.DBURL == "" {
		logger.Info("using in-memory store")
		return stub.NewMemoryStore(), nil, nil
	}
	db, err := pg.Open(ctx, cfg.DBURL, pg.DefaultPool)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	if cfg.AutoMigrate {
		if err := pg.ApplyDDL(ctx, db, pg.GenerateDDL(cfg.DBSchema), logger); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	logger.Info("using postgres store", "schema", cfg.DBSchema)
	return pg.NewRecordStore(db, cfg.DBSchema), db, nil
}

// serveHTTP держит сервер до отмены ctx и гасит его аккуратно.
func serveHTTP(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: h,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
