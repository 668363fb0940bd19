package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dentalflow/dentalflow-api/config"
	"github.com/dentalflow/dentalflow-api/controllers"
	"github.com/dentalflow/dentalflow-api/events"
	"github.com/dentalflow/dentalflow-api/middleware"
	"github.com/dentalflow/dentalflow-api/models"
	"github.com/dentalflow/dentalflow-api/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

var (
	seedLaboratoryID string
	seedName         string
	seedCurrency     string

	rootCmd = &cobra.Command{
		Use:   "dentalflow",
		Short: "DentalFlow laboratory order API",
		Long: `DentalFlow tracks dental laboratory orders from clinical submission
through the workflow board to delivery.`,
		SilenceUsage: true,
		RunE:         runServe,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE:  runServe,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE:  runMigrate,
	}

	seedCmd = &cobra.Command{
		Use:   "seed",
		Short: "Create a laboratory if missing and seed its default workflow steps",
		RunE:  runSeed,
	}
)

func init() {
	seedCmd.Flags().StringVar(&seedLaboratoryID, "laboratory", "", "laboratory id (a new id is generated when empty)")
	seedCmd.Flags().StringVar(&seedName, "name", "", "laboratory name, required when the laboratory does not exist")
	seedCmd.Flags().StringVar(&seedCurrency, "currency", models.CurrencyGTQ, "default currency of a new laboratory")

	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd)
}

// bootstrap loads configuration, sets up logging and opens the database
func bootstrap() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	config.SetupLogger(cfg)

	if err := config.ConnectDatabase(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if _, err := bootstrap(); err != nil {
		return err
	}
	if err := config.Migrate(config.GetDB()); err != nil {
		return err
	}
	log.Info().Msg("Database migration completed successfully")
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}
	if err := config.Migrate(config.GetDB()); err != nil {
		return err
	}

	reg := services.NewRegistry(services.Dependencies{DB: config.GetDB(), Location: cfg.Location()})
	lab, created, err := reg.Catalog.EnsureLaboratory(cmd.Context(), models.Laboratory{
		ID:              seedLaboratoryID,
		Name:            seedName,
		DefaultCurrency: seedCurrency,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "laboratory %s (%s) created=%t\n", lab.ID, lab.Name, created)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}
	db := config.GetDB()
	if err := config.Migrate(db); err != nil {
		return err
	}
	log.Info().Msg("Database migration completed successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	blobs, err := services.NewS3BlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	hub := events.NewHub()
	events.SetHub(hub)

	reg := services.InitRegistry(services.Dependencies{
		DB:           db,
		Hub:          hub,
		Blobs:        blobs,
		Notifier:     services.NewMailNotifier(cfg),
		Profiles:     services.NewAuth0Service(cfg),
		Location:     cfg.Location(),
		BoardRefresh: cfg.BoardRefreshInterval,
	})
	reg.Boards.Start(ctx)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.GoEnv).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	reg.Boards.Wait()
	reg.Orders.WaitNotifications()
	log.Info().Msg("Server exited")
	return nil
}

// newRouter builds the engine with the global middleware, health and
// metrics endpoints and the API routes
func newRouter(cfg *config.Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSAllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/database/status", databaseStatus)
	}

	limiter := middleware.NewRateLimiterStore(cfg.PublicRateLimit, cfg.PublicRateBurst, 10*time.Minute)
	controllers.RegisterRoutes(router, middleware.EnsureValidToken(cfg), limiter)
	return router
}
