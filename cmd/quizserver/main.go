// Command quizserver bootstraps the quiz lobby server: configuration,
// logging, tracing, the Registry/Messenger/Dispatcher/TimeoutRunner
// stack, and an HTTP router exposing the WebSocket endpoint plus
// operational surfaces. Adapted from the teacher's cmd/v1/session/main.go.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kirillsirotkin/quizlobby/internal/auth"
	"github.com/kirillsirotkin/quizlobby/internal/clock"
	"github.com/kirillsirotkin/quizlobby/internal/config"
	"github.com/kirillsirotkin/quizlobby/internal/health"
	"github.com/kirillsirotkin/quizlobby/internal/logging"
	"github.com/kirillsirotkin/quizlobby/internal/messenger"
	"github.com/kirillsirotkin/quizlobby/internal/middleware"
	"github.com/kirillsirotkin/quizlobby/internal/registry"
	"github.com/kirillsirotkin/quizlobby/internal/session"
	"github.com/kirillsirotkin/quizlobby/internal/tlsidentity"
	"github.com/kirillsirotkin/quizlobby/internal/tracing"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// Absence of a .env file is normal outside local development.
	}

	cfg, err := config.FromEnv(os.Getenv)
	if err != nil {
		panic(err)
	}
	cfg.ParseBindAddrArg(os.Args)

	if err := logging.Initialize(cfg.LogDir, cfg.GoEnv != "production"); err != nil {
		panic(err)
	}
	ctx := context.Background()
	logging.Info(ctx, "starting quizlobby server", zap.String("bind_addr", cfg.BindAddr), zap.String("go_env", cfg.GoEnv))

	if cfg.OTELCollectorAddr != "" {
		tp, err := tracing.InitTracer(ctx, "quizlobby", cfg.OTELCollectorAddr)
		if err != nil {
			logging.Warn(ctx, "tracing disabled: failed to initialize", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tp.Shutdown(shutdownCtx)
			}()
		}
	}

	reg := registry.New()
	msg := messenger.New(reg)
	tokens := auth.NewService(cfg.JWTSecret)
	timeoutRunner := session.NewTimeoutRunner(reg, msg, clock.Real, clock.RealRand)
	dispatcher := session.NewDispatcher(reg, msg, tokens, clock.Real, clock.RealRand, timeoutRunner)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	router.Use(cors.New(corsConfig))

	router.GET("/ws/:roomId", session.ServeWs(reg, dispatcher, timeoutRunner))
	router.GET("/healthz", health.Handler(reg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: router,
	}

	if cfg.TLSEnabled {
		cert, err := tlsidentity.LoadServerCertificate(cfg.TLSPKCS12, cfg.TLSPassword)
		if err != nil {
			logging.Error(ctx, "failed to load TLS identity", zap.Error(err))
			panic(err)
		}
		srv.TLSConfig = tlsidentity.NewServerTLSConfig(cert)
	}

	go func() {
		logging.Info(ctx, "listening", zap.String("addr", cfg.BindAddr), zap.Bool("tls", cfg.TLSEnabled))
		var err error
		if cfg.TLSEnabled {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logging.Error(ctx, "server exited with error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "forced shutdown", zap.Error(err))
	}
	logging.Info(ctx, "server exited")
}
