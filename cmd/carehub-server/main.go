package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/carehub/carehub/internal/config"
	"github.com/carehub/carehub/internal/domain/booking"
	"github.com/carehub/carehub/internal/domain/invoicing"
	"github.com/carehub/carehub/internal/domain/prescription"
	"github.com/carehub/carehub/internal/domain/tariff"
	"github.com/carehub/carehub/internal/platform/audit"
	"github.com/carehub/carehub/internal/platform/db"
	"github.com/carehub/carehub/internal/platform/metrics"
	"github.com/carehub/carehub/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "carehub-server",
		Short:        "Therapy scheduling and tariff engine",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tariffsCmd())
	rootCmd.AddCommand(invoicesCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// withApp loads config and dependencies for a one-shot CLI command. CLI
// changes are audited under the "cli" actor.
func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	ctx := audit.WithActor(context.Background(), audit.Actor{ID: "cli"})
	a, err := bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(context.Background())
	return fn(ctx, a)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			to, _ := cmd.Flags().GetInt("to")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			var count int
			if to > 0 {
				count, err = migrator.UpTo(ctx, to)
			} else {
				count, err = migrator.Up(ctx)
			}
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	upCmd.Flags().Int("to", 0, "Stop after this version")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tariffsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tariffs",
		Short: "Manage tariff rate cards",
	}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Upsert a rate card from a .csv/.xlsx file, or the built-in 2025 card",
		RunE: func(cmd *cobra.Command, args []string) error {
			year, _ := cmd.Flags().GetInt("year")
			file, _ := cmd.Flags().GetString("file")
			placeFlag, _ := cmd.Flags().GetString("place")
			reset, _ := cmd.Flags().GetBool("reset")

			place, err := tariff.ParsePlace(placeFlag)
			if err != nil {
				return err
			}
			var lines []tariff.RateLine
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				if lines, err = tariff.ParseFile(file, f); err != nil {
					return fmt.Errorf("parse %s: %w", file, err)
				}
			}

			return withApp(func(ctx context.Context, a *app) error {
				res, err := a.tariffs.Import(ctx, tariff.ImportOptions{Year: year, Place: place, Reset: reset}, lines)
				if err != nil {
					return err
				}
				fmt.Printf("Imported %d row(s) in %d categories for %d/%s.\n", res.Rows, res.Categories, res.Year, res.Place)
				if reset {
					fmt.Printf("Removed %d row(s) and %d unused categories.\n", res.DeletedRows, res.DeletedCategories)
				}
				for _, g := range res.Gaps {
					fmt.Printf("WARNING: no tier covers %s\n", g)
				}
				return nil
			})
		},
	}
	importCmd.Flags().Int("year", 0, "Tariff year")
	importCmd.Flags().String("file", "", "Rate card (.csv or .xlsx); built-in 2025 card when empty")
	importCmd.Flags().String("place", string(tariff.PlaceOffice), "Place of service (office or home)")
	importCmd.Flags().Bool("reset", false, "Delete the year's rows for this place before importing")
	_ = importCmd.MarkFlagRequired("year")
	cmd.AddCommand(importCmd)

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write a year's rate card to an .xlsx file",
		RunE: func(cmd *cobra.Command, args []string) error {
			year, _ := cmd.Flags().GetInt("year")
			out, _ := cmd.Flags().GetString("out")
			placeFlag, _ := cmd.Flags().GetString("place")

			place, err := tariff.ParsePlace(placeFlag)
			if err != nil {
				return err
			}
			if out == "" {
				out = fmt.Sprintf("tariffs-%d-%s.xlsx", year, place)
			}
			return withApp(func(ctx context.Context, a *app) error {
				rows, err := a.tariffs.ListRows(ctx, year, place)
				if err != nil {
					return err
				}
				lines := make([]tariff.RateLine, 0, len(rows))
				for _, r := range rows {
					lines = append(lines, tariff.LineFromRow(r))
				}
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				if err := tariff.WriteXLSX(f, lines); err != nil {
					f.Close()
					return err
				}
				fmt.Printf("Wrote %d row(s) to %s.\n", len(lines), out)
				return f.Close()
			})
		},
	}
	exportCmd.Flags().Int("year", 0, "Tariff year")
	exportCmd.Flags().String("place", string(tariff.PlaceOffice), "Place of service (office or home)")
	exportCmd.Flags().String("out", "", "Output file")
	_ = exportCmd.MarkFlagRequired("year")
	cmd.AddCommand(exportCmd)

	return cmd
}

func invoicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoices",
		Short: "Invoice maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "mark-overdue",
		Short: "Flag pending invoices past their due date as overdue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				n, err := a.invoices.MarkOverdue(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Marked %d invoice(s) overdue.\n", n)
				return nil
			})
		},
	})
	return cmd
}

// newEcho builds the HTTP server with global middleware and every route.
func newEcho(a *app) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Actor())
	e.Use(middleware.Logger(a.logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{"Content-Type", "X-Request-ID", middleware.ActorIDHeader, middleware.AuditReasonHeader},
	}))
	e.Use(echomw.SecureWithConfig(echomw.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         hstsMaxAge(a.cfg.IsProduction()),
	}))
	e.Use(middleware.BodyLimit("1M", map[string]string{"/api/v1/tariffs/import": "10M"}))
	e.Use(middleware.RequestTimeout(a.cfg.RequestTimeout))

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(a.pool, a.pingers))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler(a.registry)))

	apiV1 := e.Group("/api/v1")
	tariff.NewHandler(a.tariffs).RegisterRoutes(apiV1)
	prescription.NewHandler(a.prescriptions).RegisterRoutes(apiV1)
	booking.NewHandler(a.bookings).RegisterRoutes(apiV1)
	invoicing.NewHandler(a.invoices).RegisterRoutes(apiV1)

	return e
}

func hstsMaxAge(production bool) int {
	if production {
		return 31536000
	}
	return 0
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Env)

	ctx := context.Background()
	a, err := bootstrap(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer a.close(context.Background())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	logger.Info().Str("addr", ":"+cfg.Port).Str("timezone", cfg.Timezone).Msg("starting server")
	if err := serve(newEcho(a), ":"+cfg.Port, quit); err != nil {
		logger.Error().Err(err).Msg("server error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// serve runs e on addr until a signal arrives on quit or the listener fails.
func serve(e *echo.Echo, addr string, quit <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	case <-quit:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
