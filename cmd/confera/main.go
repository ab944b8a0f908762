// Confera: identity, session and organization membership service
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	conferaapi "github.com/d9705996/confera/internal/api"
	"github.com/d9705996/confera/internal/api/handler"
	"github.com/d9705996/confera/internal/api/middleware"
	"github.com/d9705996/confera/internal/audit"
	"github.com/d9705996/confera/internal/auth"
	"github.com/d9705996/confera/internal/config"
	"github.com/d9705996/confera/internal/db"
	"github.com/d9705996/confera/internal/health"
	"github.com/d9705996/confera/internal/mail"
	"github.com/d9705996/confera/internal/membership"
	"github.com/d9705996/confera/internal/observability"
	"github.com/d9705996/confera/internal/seed"
	"github.com/d9705996/confera/internal/session"
	"github.com/d9705996/confera/internal/store"
	"github.com/d9705996/confera/internal/version"
	"github.com/d9705996/confera/internal/worker"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability -------------------------------------------------------
	obs, log, err := observability.New(ctx, &observability.Config{
		ServiceName:    "confera",
		ServiceVersion: version.Version,
		Environment:    cfg.App.Env,
		LogLevel:       cfg.Log.Level,
		LogFormat:      cfg.Log.Format,
		OTLPEndpoint:   cfg.OTel.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer obs.Shutdown(context.Background())
	slog.SetDefault(log)
	log.Info("starting confera", "version", version.Version, "commit", version.Commit, "db_driver", cfg.DB.Driver)

	metrics := obs.Metrics

	// --- Database ------------------------------------------------------------
	gormDB, pool, err := db.New(ctx, &cfg.DB, log)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if pool != nil {
		defer pool.Close()
	}
	log.Info("database ready", "driver", cfg.DB.Driver)

	st := store.New(gormDB)
	members := membership.NewResolver(st)

	hasher, err := auth.NewHasher(cfg.App.BcryptCost)
	if err != nil {
		return fmt.Errorf("create hasher: %w", err)
	}

	// --- Seed admin ----------------------------------------------------------
	if err := seed.EnsureAdmin(ctx, st, hasher, seed.AdminOptions{
		Email:        cfg.App.SeedAdminEmail,
		SeedPassword: cfg.App.SeedAdminPassword,
		OrgName:      cfg.App.SeedOrgName,
	}, log); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	// --- Worker queue --------------------------------------------------------
	if pool != nil {
		if err := worker.MigrateRiver(ctx, pool); err != nil {
			return fmt.Errorf("river migrations: %w", err)
		}
		log.Info("river migrations applied")
	}

	var sender mail.Sender = mail.NewLogSender(log)
	if cfg.Mail.SMTPAddr != "" {
		sender = mail.NewSMTPSender(cfg.Mail.SMTPAddr, cfg.Mail.SMTPUsername, cfg.Mail.SMTPPassword, cfg.Mail.From)
	} else {
		log.Warn("SMTP_ADDR not set, outgoing mail is logged only")
	}

	wq, err := worker.New(ctx, pool, cfg.DB.Driver, cfg.Worker.Concurrency, worker.Deps{Sender: sender, Store: st}, log)
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}
	if err := wq.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := wq.Stop(stopCtx); err != nil {
			log.Error("worker stop error", "err", err)
		}
	}()

	// --- Sessions ------------------------------------------------------------
	codec, err := auth.NewCodec(auth.CodecConfig{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        "confera",
	})
	if err != nil {
		return fmt.Errorf("create token codec: %w", err)
	}

	recorder := audit.NewRecorder(st, log)
	deps := session.Deps{
		Store:    st,
		Resolver: members,
		Codec:    codec,
		Hasher:   hasher,
		Mailer:   mail.NewMailer(cfg.App.FrontendURL, wq),
		Auditor:  recorder,
		Metrics:  metrics,
		Log:      log,
	}
	if cfg.Google.ClientID != "" {
		jwks, err := auth.NewGoogleJWKS(ctx, cfg.Google.JWKSURL, log)
		if err != nil {
			return fmt.Errorf("google sign-in: %w", err)
		}
		deps.Google = auth.NewGoogleVerifier(cfg.Google.ClientID, jwks.Keyfunc)
		log.Info("google sign-in enabled")
	}
	sessions := session.NewManager(deps)

	// --- HTTP routes ---------------------------------------------------------
	limiter := middleware.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst, cfg.HTTP.TrustedProxies...)
	go limiter.Run(ctx)

	mux := http.NewServeMux()
	conferaapi.RegisterRoutes(mux, conferaapi.Routes{
		Health: health.New(log, health.Check{Name: "database", Checker: db.NewPinger(gormDB)}),
		Auth: handler.NewAuthHandler(sessions, members, auth.CookiePolicy{
			Production: cfg.App.Production(),
			MaxAge:     cfg.JWT.RefreshTTL,
		}),
		Organization: handler.NewOrganizationHandler(members, recorder),
		Codec:        codec,
		Members:      members,
		Metrics:      metrics,
		Limiter:      limiter,
	})
	// Prometheus metrics endpoint
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           conferaapi.Wrap(mux, log, metrics, cfg.App.FrontendURL),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// --- Start server --------------------------------------------------------
	log.Info("http server listening", "addr", srv.Addr)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped cleanly")
	return nil
}
