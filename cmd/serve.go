package cmd

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/audiotailoc/ms-go-payments/app/controller"
	"github.com/audiotailoc/ms-go-payments/app/factory"
	"github.com/audiotailoc/ms-go-payments/app/provider"
	"github.com/audiotailoc/ms-go-payments/app/repository"
	"github.com/audiotailoc/ms-go-payments/app/service"
	"github.com/audiotailoc/ms-go-payments/app/types"
	"github.com/audiotailoc/ms-go-payments/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the HTTP (Echo) server for payment intents, refunds, and provider webhooks.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, paymentService, cleanup := mustCreatePaymentService()
	defer cleanup()

	paymentController := controller.NewPaymentController(paymentService)
	webhookController := controller.NewWebhookController(paymentService)

	e := setupHTTPServer(paymentController, webhookController, cfg.App.APIKey)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}

	logrus.Info("Server stopped")
}

func setupHTTPServer(
	paymentController *controller.PaymentController,
	webhookController *controller.WebhookController,
	apiKey string,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	e.GET("/health", paymentController.Health)

	payments := e.Group("/payments")
	payments.Use(requireRequestID())
	payments.Use(requireAPIKey(apiKey))
	payments.POST("/intents", paymentController.CreateIntent)
	payments.GET("/intents/:id", paymentController.GetIntent)
	payments.POST("/refunds", paymentController.CreateRefund)

	// Webhooks authenticate with provider signatures, not the API key.
	webhooks := e.Group("/webhooks")
	webhooks.POST("/:provider", webhookController.HandleWebhook)

	return e
}

func requireRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: "x-request-id header is required"})
			}
			ctx.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(ctx)
		}
	}
}

func requireAPIKey(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if apiKey == "" {
				return next(ctx)
			}
			if ctx.Request().Header.Get("X-API-Key") != apiKey {
				return ctx.JSON(http.StatusUnauthorized, &types.ErrorResponse{Error: "invalid api key"})
			}
			return next(ctx)
		}
	}
}

func mustCreatePaymentService() (*config.Config, *service.PaymentService, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	factory.ConfigureLogging(cfg.Log.Level)

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	intentRepo := repository.NewPaymentIntentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	receiptRepo := repository.NewWebhookReceiptRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	eventRepo := repository.NewNotificationEventRepository(db)
	refundRepo := repository.NewRefundRepository(db)

	vnpayProvider := provider.NewVnpayProvider(provider.VnpayConfig{
		TmnCode:    cfg.Vnpay.TmnCode,
		HashSecret: cfg.Vnpay.HashSecret,
		PayURL:     cfg.Vnpay.PayURL,
		ReturnURL:  cfg.Vnpay.ReturnURL,
	})
	momoProvider := provider.NewMomoProvider(provider.MomoConfig{
		PartnerCode:    cfg.Momo.PartnerCode,
		AccessKey:      cfg.Momo.AccessKey,
		SecretKey:      cfg.Momo.SecretKey,
		CreateEndpoint: cfg.Momo.CreateEndpoint,
		RefundEndpoint: cfg.Momo.RefundEndpoint,
		IpnURL:         cfg.Momo.IpnURL,
		ReturnURL:      cfg.Momo.ReturnURL,
		HTTPTimeout:    cfg.Momo.HTTPTimeout,
	})
	payosProvider := provider.NewPayosProvider(provider.PayosConfig{
		ClientID:    cfg.Payos.ClientID,
		APIKey:      cfg.Payos.APIKey,
		ChecksumKey: cfg.Payos.ChecksumKey,
		PartnerCode: cfg.Payos.PartnerCode,
		APIURL:      cfg.Payos.APIURL,
		ReturnURL:   cfg.Payos.ReturnURL,
		HTTPTimeout: cfg.Payos.HTTPTimeout,
	})
	codProvider := provider.NewCodProvider()

	providerRegistry := provider.NewRegistry(vnpayProvider, momoProvider, payosProvider, codProvider)
	paymentService := service.NewPaymentService(
		intentRepo,
		paymentRepo,
		receiptRepo,
		orderRepo,
		eventRepo,
		refundRepo,
		repository.NewTxRunner(db),
		providerRegistry,
		cfg.Payments,
		factory.NewModuleLogger("payments-service"),
	)

	cleanup := func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return cfg, paymentService, cleanup
}
