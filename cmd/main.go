package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mstgnz/dukapi/handler"
	"github.com/mstgnz/dukapi/infra/auth"
	"github.com/mstgnz/dukapi/infra/cache"
	"github.com/mstgnz/dukapi/infra/config"
	"github.com/mstgnz/dukapi/infra/conn"
	"github.com/mstgnz/dukapi/infra/logger"
	"github.com/mstgnz/dukapi/infra/mail"
	"github.com/mstgnz/dukapi/infra/metrics"
	"github.com/mstgnz/dukapi/infra/middle"
	"github.com/mstgnz/dukapi/infra/opensearch"
	"github.com/mstgnz/dukapi/infra/response"
	"github.com/mstgnz/dukapi/infra/validate"
	"github.com/mstgnz/dukapi/provider"
	"github.com/mstgnz/dukapi/provider/mpesa"
	"github.com/mstgnz/dukapi/router"
	v1 "github.com/mstgnz/dukapi/router/v1"
	"github.com/mstgnz/dukapi/service"
)

var openSearchLogger *opensearch.Logger

func init() {
	// .env is optional; deployments set the environment directly
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Load Env Error: %v\n", err)
	}
	_ = config.App()

	cfg := config.GetAppConfig()
	if cfg.OpenSearch.Enabled {
		osClient, err := opensearch.NewClient(cfg.OpenSearch)
		if err != nil {
			fmt.Fprintf(os.Stderr, "OpenSearch unavailable, continuing without it: %v\n", err)
		} else {
			openSearchLogger = opensearch.NewLogger(osClient)
		}
	}

	if openSearchLogger != nil {
		logger.InitGlobalLogger(openSearchLogger)
	} else {
		logger.InitGlobalLogger(nil)
	}
}

func main() {
	cfg := config.GetAppConfig()

	db := &conn.DB{}
	if err := db.ConnectDatabase(cfg.DB.DSN()); err != nil {
		logger.Fatal("Database unavailable", err)
	}
	defer db.CloseDatabase()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		cancelMigrate()
		logger.Fatal("Migration failed", err)
	}
	cancelMigrate()

	redisClient, err := cache.New(cfg.Redis)
	if err != nil {
		logger.Warn("Redis unavailable, using in-process fallbacks", logger.LogContext{
			Fields: map[string]any{"error": err.Error()},
		})
		redisClient = nil
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	notifier := mail.NewNotifier(mail.NewSender(cfg.Mail), cfg.AdminEmail, m)
	if !cfg.Mail.Enabled() {
		logger.Warn("SMTP not configured, emails are logged instead of sent")
	}

	jwtService := auth.NewJWTService(config.App().SecretKey, cfg.JWTTTL)
	users := auth.NewUserService(db, jwtService, notifier, cfg.FrontendBaseURL)

	payments, gatewayReady := buildPayments(cfg, db, redisClient, m)

	uploads := service.NewUploads(cfg.UploadDir)
	catalog := service.NewCatalog(db)
	products := service.NewProducts(db, uploads)
	addresses := service.NewAddresses(db)
	orders := service.NewOrders(db, notifier, m)
	engagement := service.NewEngagement(db, uploads)
	audit := service.NewAudit(db)

	v := validate.New()
	h := v1.Handlers{
		Auth:       handler.NewAuthHandler(users, v),
		Users:      handler.NewUsersHandler(users, v),
		Catalog:    handler.NewCatalogHandler(catalog, v),
		Products:   handler.NewProductHandler(products, uploads, v),
		Addresses:  handler.NewAddressHandler(addresses, v),
		Orders:     handler.NewOrderHandler(orders, v),
		Payments:   handler.NewPaymentHandler(payments, v),
		Engagement: handler.NewEngagementHandler(engagement, v),
		Audit:      handler.NewAuditHandler(audit),
	}
	healthHandler := handler.NewHealthHandler(db, redisClient, gatewayReady, cfg.Environment)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middle.PanicRecoveryMiddleware())
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middle.SecurityHeadersMiddleware())

	origins := config.GetListEnv("CORS_ORIGINS")
	if len(origins) == 0 {
		origins = []string{cfg.FrontendBaseURL}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Origin", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "Content-Length", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	rateLimiter := middle.NewRateLimiter(redisClient, config.GetIntEnv("RATE_LIMIT_PER_MINUTE", 120), time.Minute, m)
	defer rateLimiter.Close()
	r.Use(middle.RateLimitMiddleware(rateLimiter))
	r.Use(middle.RequestValidationMiddleware(service.MaxUploadBytes + 1<<20))
	r.Use(middle.RequestMetrics(m))

	r.Get("/health", healthHandler.CheckHealth)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	uploadDir, err := filepath.Abs(cfg.UploadDir)
	if err != nil {
		logger.Fatal("Invalid upload directory", err)
	}
	fileServer(r, "/uploads", http.Dir(uploadDir))

	router.Routes(r, h, jwtService, cfg.Mpesa.CallbackIPs)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "Not Found", nil)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reconcileDone := make(chan struct{})
	if gatewayReady {
		reconciler := service.NewReconciler(payments, cfg.Reconcile.Interval, cfg.Reconcile.After, cfg.Reconcile.Batch, m)
		go func() {
			defer close(reconcileDone)
			_ = reconciler.Run(ctx)
		}()
	} else {
		close(reconcileDone)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", err)
		}
	}()

	logger.Info("API is running", logger.LogContext{
		Fields: map[string]any{"port": cfg.Port, "environment": cfg.Environment, "payments": gatewayReady},
	})

	<-ctx.Done()
	logger.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", err)
	}

	<-reconcileDone
	notifier.Wait()
	if redisClient != nil {
		_ = redisClient.Close()
	}
}

// buildPayments wires the M-Pesa gateway. Without credentials, a callback
// secret or a callback URL the service still starts and payment calls fail
// with ErrGatewayUnavailable.
func buildPayments(cfg *config.AppConfig, db *conn.DB, redisClient *cache.Client, m *metrics.Metrics) (*service.Payments, bool) {
	providerConfig := config.NewProviderConfig()
	providerConfig.LoadFromApp(cfg)

	conf, err := providerConfig.GetConfig("mpesa")
	if err != nil {
		logger.Warn("M-Pesa not configured, payments disabled")
		return service.NewPayments(db, nil, nil, "", redisClient, m), false
	}

	p, err := provider.Build("mpesa", conf)
	if err != nil {
		logger.Error("Failed to initialize M-Pesa", err)
		return service.NewPayments(db, nil, nil, "", redisClient, m), false
	}
	if mp, ok := p.(*mpesa.MpesaProvider); ok && redisClient.Enabled() {
		mp.SetTokenCache(redisClient)
	}

	signer, err := provider.NewCallbackSigner(cfg.Mpesa.CallbackSecret)
	if err != nil {
		logger.Error("Callback signing disabled, payments disabled", err)
		return service.NewPayments(db, nil, nil, "", redisClient, m), false
	}

	var sink provider.EventSink
	if openSearchLogger != nil {
		sink = openSearchLogger
	}
	gateway := provider.NewGatewayService("mpesa", p, provider.NewDBGatewayLogger(db, sink))

	return service.NewPayments(db, gateway, signer, cfg.Mpesa.CallbackURL, redisClient, m), cfg.Mpesa.CallbackURL != ""
}

func fileServer(r chi.Router, path string, root http.FileSystem) {
	if strings.ContainsAny(path, "{}*") {
		panic("FileServer does not permit any URL parameters.")
	}

	if path != "/" && path[len(path)-1] != '/' {
		r.Get(path, http.RedirectHandler(path+"/", http.StatusMovedPermanently).ServeHTTP)
		path += "/"
	}
	path += "*"

	r.Get(path, func(w http.ResponseWriter, r *http.Request) {
		rctx := chi.RouteContext(r.Context())
		pathPrefix := strings.TrimSuffix(rctx.RoutePattern(), "/*")
		fs := http.StripPrefix(pathPrefix, http.FileServer(root))
		fs.ServeHTTP(w, r)
	})
}
