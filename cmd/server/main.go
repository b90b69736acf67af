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

	"github.com/gorilla/sessions"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/eteeap-survey/internal/auth"
	"github.com/JonMunkholm/eteeap-survey/internal/config"
	"github.com/JonMunkholm/eteeap-survey/internal/core"
	"github.com/JonMunkholm/eteeap-survey/internal/database"
	"github.com/JonMunkholm/eteeap-survey/internal/logging"
	"github.com/JonMunkholm/eteeap-survey/internal/mail"
	"github.com/JonMunkholm/eteeap-survey/internal/otp"
	"github.com/JonMunkholm/eteeap-survey/internal/ratelimit"
	"github.com/JonMunkholm/eteeap-survey/internal/refdata"
	"github.com/JonMunkholm/eteeap-survey/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"rate_limit_backend", cfg.Rate.Backend,
		"smtp_configured", cfg.Mail.Host != "",
	)

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database.URL, database.PoolOptions{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	slog.Info("connected to database", "name", database.DatabaseName(cfg.Database.URL))

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool); err != nil {
			slog.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		slog.Info("schema applied")
	}

	limiter, closeLimiter, err := newLimiter(ctx, cfg, pool)
	if err != nil {
		slog.Error("failed to create rate limiter", "error", err)
		os.Exit(1)
	}
	defer closeLimiter()

	store := database.NewFromPool(pool)
	codes := otp.NewService(database.NewChallengeStore(pool), limiter, newMailer(cfg), otpConfig(cfg))

	service := core.NewService(store.Stores(), codes, core.Config{
		MaxFileSize:              cfg.Import.MaxFileSize,
		MaxRows:                  cfg.Import.MaxRows,
		MaxLineBytes:             cfg.Import.MaxLineBytes,
		MaxErrors:                cfg.Import.MaxErrors,
		MaxConcurrentImports:     cfg.Import.MaxConcurrent,
		ImportWait:               cfg.Import.MaxWaitTime,
		ImportTimeout:            cfg.Import.Timeout,
		DraftTTL:                 cfg.Survey.DraftTTL,
		RequireEmailVerification: cfg.Survey.RequireEmailVerification,
	})
	authService := auth.NewService(store, codes, auth.NewSigner([]byte(cfg.Security.JWTSecret), cfg.Security.TokenTTL))

	refs := refdata.NewCache(cfg.RefData.Dir)
	if err := refs.Load(); err != nil {
		slog.Warn("reference data not loaded; retrying on first request", "dir", cfg.RefData.Dir, "error", err)
	}

	server := web.NewServer(web.Options{
		Service:  service,
		Auth:     authService,
		RefData:  refs,
		Limiter:  limiter,
		Sessions: sessions.NewCookieStore([]byte(cfg.Security.SessionKey)),
		Health:   pool,
		Config:   cfg,
	})

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())

	tasks := []core.SweepTask{{Name: "otp_challenges", Purger: codes}}
	if p, ok := limiter.(core.Purger); ok {
		tasks = append(tasks, core.SweepTask{Name: "rate_buckets", Purger: p})
	}
	go service.StartSweeper(jobCtx, core.SweeperConfig{
		Interval:  cfg.Sweeper.Interval,
		Retention: cfg.Sweeper.Retention,
	}, tasks...)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for running imports so their transactions finish
		status := service.ImportLimiter().Status()
		if status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := service.ImportLimiter().WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// newLimiter builds the rate limit backend named by RATE_LIMIT_BACKEND. The
// returned func releases backend connections.
func newLimiter(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (ratelimit.Limiter, func(), error) {
	switch cfg.Rate.Backend {
	case "postgres":
		return ratelimit.NewPostgres(pool), func() {}, nil
	case "redis":
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		slog.Info("connected to redis", "addr", opts.Addr)
		return ratelimit.NewRedis(client, cfg.Redis.Prefix), func() { client.Close() }, nil
	default:
		return ratelimit.NewMemory(), func() {}, nil
	}
}

// newMailer sends through SMTP when a host is configured and only logs
// deliveries otherwise.
func newMailer(cfg *config.Config) mail.Sender {
	if cfg.Mail.Host == "" {
		slog.Warn("SMTP_HOST not set; emails will be logged, not sent")
		return mail.NewLogSender(slog.Default())
	}
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
		FromName: cfg.Mail.FromName,
	})
}

func otpConfig(cfg *config.Config) otp.Config {
	c := otp.DefaultConfig([]byte(cfg.OTP.Secret))
	c.TTL = cfg.OTP.TTL
	c.MaxAttempts = cfg.OTP.MaxAttempts
	c.Cooldown = cfg.OTP.Cooldown
	c.IPEmailLimit = cfg.OTP.IPEmailLimit
	c.EmailLimit = cfg.OTP.EmailLimit
	c.IPLimit = cfg.OTP.IPLimit
	c.Window = cfg.OTP.Window
	return c
}
