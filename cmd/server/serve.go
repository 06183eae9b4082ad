package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"agridash/internal/api"
	"agridash/internal/engine"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := cfg.Server.Port
		if servePort != 0 {
			port = servePort
		}
		return runServer(ctx, port)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}

func newEcho(h *api.Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.CORS())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				zap.L().Warn("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			zap.L().Info("request", fields...)
			return nil
		},
	}))

	h.RegisterRoutes(e)
	return e
}

func runServer(ctx context.Context, port int) error {
	// The API goes live immediately; data routes answer 503 until the load finishes.
	h := api.NewHandler(nil, api.Defaults{
		Measure:   cfg.Dashboard.DefaultMeasure,
		Countries: cfg.Dashboard.DefaultCountries,
		Nutrient:  cfg.Dashboard.DefaultNutrient,
	})
	e := newEcho(h)

	go loadDataset(ctx, h)

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.Int("port", port))
		if err := e.Start(fmt.Sprintf(":%d", port)); err != nil && err != http.ErrServerClosed {
			errCh <- eris.Wrap(err, "server listen")
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// loadDataset fills h once the dataset is parsed, or records why it could not be.
func loadDataset(ctx context.Context, h *api.Handler) {
	zap.L().Info("loading dataset in background", zap.String("path", cfg.Data.Path))
	t0 := time.Now()

	store, _, err := engine.Load(ctx, cfg.Data.Path, engine.LoadOptions{
		Sheet:        cfg.Data.Sheet,
		Workers:      cfg.Data.Workers,
		DistributeEU: cfg.Data.DistributeEU,
	})
	if err != nil {
		zap.L().Error("dataset load failed", zap.Error(err))
		h.SetLoadError(err)
		return
	}

	h.SetData(engine.NewAggregator(store, engine.ZapObserver(zap.L())))
	zap.L().Info("dataset ready", zap.Duration("elapsed", time.Since(t0)))
}
