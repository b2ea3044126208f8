package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/starnotary/internal/chain"
	"github.com/jmerrifield20/starnotary/internal/challenge"
	"github.com/jmerrifield20/starnotary/internal/handler"
	"github.com/jmerrifield20/starnotary/internal/health"
	"github.com/jmerrifield20/starnotary/internal/notary"
	"github.com/jmerrifield20/starnotary/pkg/signature"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("notary exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("notary")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("notary.port", 8080)
	viper.SetDefault("notary.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("notary.rate_limit_rps", 20)
	viper.SetDefault("notary.rate_limit_burst", 40)
	viper.SetDefault("notary.body_limit_bytes", handler.DefaultBodyLimit)
	viper.SetDefault("challenge.window_seconds", int(challenge.DefaultWindow/time.Second))
	viper.SetDefault("challenge.codec", "text")
	viper.SetDefault("challenge.jwt_secret", "")
	viper.SetDefault("signature.schemes", []string{string(signature.SchemeEd25519), string(signature.SchemeSchnorr)})
	viper.SetDefault("query.decode_workers", 8)
	viper.SetDefault("health.audit_interval", "1m")

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Info("no config file found, using defaults and environment")
	}

	// ── Challenges ───────────────────────────────────────────────────────────
	issuerOpts := []challenge.Option{
		challenge.WithWindow(time.Duration(viper.GetInt("challenge.window_seconds")) * time.Second),
	}
	switch codec := viper.GetString("challenge.codec"); codec {
	case "text":
	case "jwt":
		jc, err := challenge.NewJWTCodec([]byte(viper.GetString("challenge.jwt_secret")))
		if err != nil {
			return fmt.Errorf("challenge codec: %w", err)
		}
		issuerOpts = append(issuerOpts, challenge.WithCodec(jc))
	default:
		return fmt.Errorf("unknown challenge codec %q (want text or jwt)", codec)
	}
	issuer := challenge.NewIssuer(issuerOpts...)

	// ── Signatures ───────────────────────────────────────────────────────────
	var schemes []signature.Scheme
	for _, s := range viper.GetStringSlice("signature.schemes") {
		schemes = append(schemes, signature.Scheme(strings.TrimSpace(s)))
	}
	verifier, err := signature.NewVerifier(schemes...)
	if err != nil {
		return fmt.Errorf("signature verifier: %w", err)
	}

	// ── Chain + service ──────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := chain.New(chain.NewMemoryBackend(), chain.WithLogger(logger.Named("chain")))
	svc, err := notary.New(ctx, c, issuer, verifier,
		notary.WithLogger(logger.Named("notary")),
		notary.WithMetrics(handler.Metrics{}),
		notary.WithDecodeWorkers(viper.GetInt("query.decode_workers")),
	)
	if err != nil {
		return fmt.Errorf("init notary: %w", err)
	}

	// ── Background chain audit ───────────────────────────────────────────────
	auditor := health.New(svc, health.Config{
		Interval: viper.GetDuration("health.audit_interval"),
	}, logger.Named("health"))
	auditor.SetMetricsRecord(handler.Metrics{}.RecordAudit)

	report := auditor.Audit(ctx)
	if report.Status == health.StatusError {
		return errors.New("chain audit failed at startup")
	}
	height, _ := svc.Height(ctx)
	logger.Info("chain verified at startup",
		zap.Int("height", height),
		zap.String("status", report.Status),
		zap.Int("violations", len(report.Violations)),
		zap.String("challenge_codec", viper.GetString("challenge.codec")),
		zap.Duration("challenge_window", issuer.Window()),
	)
	// The startup audit above is the first report; Start resumes on the next tick.
	go auditor.Start(ctx)

	// ── HTTP router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(ctx, svc, logger, handler.RouterConfig{
		CORSOrigins:    viper.GetStringSlice("notary.cors_origins"),
		RateLimitRPS:   viper.GetInt("notary.rate_limit_rps"),
		RateLimitBurst: viper.GetInt("notary.rate_limit_burst"),
		BodyLimit:      viper.GetInt64("notary.body_limit_bytes"),
		Health:         auditor,
	})

	port := viper.GetInt("notary.port")
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("notary listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("HTTP listen: %w", err)
	}
	logger.Info("shutting down notary...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("notary stopped")
	return nil
}
