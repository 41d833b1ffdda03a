package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pharmacart/pharmacart/internal/config"
	"github.com/pharmacart/pharmacart/internal/domain/cart"
	"github.com/pharmacart/pharmacart/internal/domain/catalog"
	"github.com/pharmacart/pharmacart/internal/domain/order"
	"github.com/pharmacart/pharmacart/internal/domain/prescriber"
	"github.com/pharmacart/pharmacart/internal/domain/prescription"
	"github.com/pharmacart/pharmacart/internal/platform/apperr"
	"github.com/pharmacart/pharmacart/internal/platform/auth"
	"github.com/pharmacart/pharmacart/internal/platform/db"
	"github.com/pharmacart/pharmacart/internal/platform/jobs"
	"github.com/pharmacart/pharmacart/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pharmacart-server",
		Short: "Pharmacy e-commerce API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

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

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
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
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	txRunner := db.NewTxRunner(pool)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}

	// PHI access audit middleware
	e.Use(middleware.Audit(logger))

	// API group
	apiV1 := e.Group("/api/v1")

	// Rate limiting
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Authorization policy engine
	policies := auth.NewPolicyEngine(auth.DefaultPolicies())

	// Background job queue
	registry := jobs.NewRegistry()
	var queue jobs.Queue
	var channelQueue *jobs.ChannelQueue
	if len(cfg.KafkaBrokers) > 0 {
		kq := jobs.NewKafkaQueue(cfg.KafkaBrokers, cfg.KafkaJobsTopic)
		queue = kq
		defer kq.Close()
	} else {
		logger.Warn().Msg("no kafka brokers configured, using in-process job queue")
		channelQueue = jobs.NewChannelQueue(256)
		queue = channelQueue
	}

	// Domain wiring: catalog
	productRepo := catalog.NewProductRepoPG(pool)
	catalogSvc := catalog.NewService(productRepo)
	catalog.NewHandler(catalogSvc).RegisterRoutes(apiV1, policies)

	// Prescribers
	prescriberRepo := prescriber.NewPrescriberRepoPG(pool)
	prescriberSvc := prescriber.NewService(prescriberRepo)
	prescriber.NewHandler(prescriberSvc).RegisterRoutes(apiV1, policies)

	// Prescriptions
	prescriptionRepo := prescription.NewPrescriptionRepoPG(pool)
	auditRepo := prescription.NewAuditLogRepoPG(pool)
	screeningRepo := prescription.NewScreeningRepoPG(pool)
	prescriptionSvc := prescription.NewService(
		prescriptionRepo,
		auditRepo,
		screeningRepo,
		&catalogProductAdapter{svc: catalogSvc},
		prescriberSvc,
		txRunner,
	)
	prescription.NewHandler(prescriptionSvc).RegisterRoutes(apiV1, policies)

	// Carts
	cartRepo := cart.NewCartRepoPG(pool)
	cartItemRepo := cart.NewItemRepoPG(pool)
	cartSvc := cart.NewService(
		cartRepo,
		cartItemRepo,
		&cartProductAdapter{svc: catalogSvc},
		prescriptionSvc,
		txRunner,
		cfg.TaxDefaultRate,
	)
	cart.NewHandler(cartSvc).RegisterRoutes(apiV1, policies)

	// Orders
	orderRepo := order.NewOrderRepoPG(pool)
	orderItemRepo := order.NewItemRepoPG(pool)
	paymentRepo := order.NewPaymentRepoPG(pool)
	var gateway order.PaymentGateway = &devPaymentGateway{}
	if cfg.IsProduction() {
		logger.Warn().Msg("no payment gateway configured, charges will auto-approve")
	}
	orderSvc := order.NewService(
		orderRepo,
		orderItemRepo,
		paymentRepo,
		&cartCheckoutAdapter{svc: cartSvc},
		gateway,
		queue,
		txRunner,
		cfg.PaymentMaxRetries,
		logger,
	)
	order.NewHandler(orderSvc).RegisterRoutes(apiV1, policies)

	// Job handlers
	registry.Register(jobs.TypePaymentRetry, func(ctx context.Context, job jobs.Job) error {
		return orderSvc.HandlePaymentRetry(ctx, job.Payload)
	})
	registry.Register(jobs.TypeCartAbandon, func(ctx context.Context, job jobs.Job) error {
		n, err := cartSvc.MarkAbandoned(ctx, time.Duration(cfg.CartAbandonHours)*time.Hour)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info().Int("carts", n).Msg("marked idle carts abandoned")
		}
		return nil
	})

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	if channelQueue != nil {
		go func() {
			if err := channelQueue.Run(workerCtx, registry, logger); err != nil {
				logger.Error().Err(err).Msg("job queue stopped")
			}
		}()
	} else {
		worker := jobs.NewKafkaWorker(cfg.KafkaBrokers, cfg.KafkaJobsTopic, "pharmacart-jobs", registry, logger)
		defer worker.Close()
		go func() {
			if err := worker.Run(workerCtx); err != nil {
				logger.Error().Err(err).Msg("kafka worker stopped")
			}
		}()
	}

	// Periodic abandoned-cart sweep
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				job, err := jobs.NewJob(jobs.TypeCartAbandon, nil)
				if err == nil {
					err = queue.Enqueue(workerCtx, job)
				}
				if err != nil {
					logger.Error().Err(err).Msg("failed to enqueue cart abandon sweep")
				}
			}
		}
	}()

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stopWorkers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// catalogProductAdapter adapts the catalog service to the
// prescription.ProductSource interface, avoiding circular imports between
// the catalog and prescription packages.
type catalogProductAdapter struct {
	svc *catalog.Service
}

func (a *catalogProductAdapter) Product(ctx context.Context, id uuid.UUID) (*prescription.ProductInfo, error) {
	p, err := a.svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &prescription.ProductInfo{
		ID:                   p.ID,
		Name:                 p.Name,
		NDC:                  p.NDC,
		ControlledSchedule:   p.ControlledSchedule,
		RequiresPrescription: p.RequiresPrescription,
		RequiresConsultation: p.RequiresConsultation,
		Active:               p.Active,
	}, nil
}

// cartProductAdapter adapts the catalog service to cart.ProductSource.
type cartProductAdapter struct {
	svc *catalog.Service
}

func (a *cartProductAdapter) Product(ctx context.Context, id uuid.UUID) (*cart.ProductInfo, error) {
	p, err := a.svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &cart.ProductInfo{
		ID:                   p.ID,
		Name:                 p.Name,
		Price:                p.Price,
		RequiresPrescription: p.RequiresPrescription,
		Active:               p.Active,
	}, nil
}

// cartCheckoutAdapter adapts the cart service to order.CartSource.
type cartCheckoutAdapter struct {
	svc *cart.Service
}

func (a *cartCheckoutAdapter) CartForCheckout(ctx context.Context, cartID uuid.UUID) (*order.CheckoutCart, error) {
	c, err := a.svc.GetForCheckout(ctx, cartID)
	if err != nil {
		return nil, err
	}
	out := &order.CheckoutCart{
		ID:                   c.ID,
		OwnerID:              c.OwnerID,
		Status:               c.Status,
		ShippingMethod:       c.ShippingMethod,
		ShippingState:        c.ShippingState,
		Subtotal:             c.Subtotal,
		Tax:                  c.Tax,
		Shipping:             c.Shipping,
		Total:                c.Total,
		RequiresVerification: c.RequiresVerification,
	}
	for _, it := range c.Items {
		out.Items = append(out.Items, order.CheckoutItem{
			ProductID:      it.ProductID,
			PrescriptionID: it.PrescriptionID,
			ProductName:    it.ProductName,
			UnitPrice:      it.UnitPrice,
			Quantity:       it.Quantity,
		})
	}
	return out, nil
}

func (a *cartCheckoutAdapter) MarkConverted(ctx context.Context, cartID uuid.UUID) error {
	return a.svc.MarkConverted(ctx, cartID)
}

// devPaymentGateway approves every charge. The real gateway integration is
// an external collaborator wired in at deployment.
type devPaymentGateway struct{}

func (devPaymentGateway) Charge(_ context.Context, orderID uuid.UUID, _ float64) (string, error) {
	return "dev_" + orderID.String(), nil
}
