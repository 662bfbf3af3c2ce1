package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	httpctx "github.com/dtroode/identity-server/internal/api/http/context"
	"github.com/dtroode/identity-server/internal/api/http/handler"
	"github.com/dtroode/identity-server/internal/api/http/router"
	"github.com/dtroode/identity-server/internal/api/http/transport"
	"github.com/dtroode/identity-server/internal/config"
	"github.com/dtroode/identity-server/internal/logger"
	"github.com/dtroode/identity-server/internal/mailer"
	"github.com/dtroode/identity-server/internal/model"
	"github.com/dtroode/identity-server/internal/oauth/google"
	"github.com/dtroode/identity-server/internal/password"
	"github.com/dtroode/identity-server/internal/ratelimit"
	"github.com/dtroode/identity-server/internal/repository/memory"
	"github.com/dtroode/identity-server/internal/repository/postgres"
	"github.com/dtroode/identity-server/internal/server"
	"github.com/dtroode/identity-server/internal/service"
	storage "github.com/dtroode/identity-server/internal/storage/minio"
	"github.com/dtroode/identity-server/internal/token"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

// stores is the persistence backend selected by configuration.
type stores struct {
	users         model.UserStore
	refreshTokens model.RefreshTokenStore
	sessions      model.SessionStore
	oneTime       model.OneTimeTokenStore
	oauthLinks    model.OAuthLinkStore
	tx            model.Transactor
	health        handler.Pinger
	close         func() error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)

	if err := run(ctx, stop, cfg, logger); err != nil {
		stop()
		logger.Fatal("server stopped with error", "error", err)
	}
	logger.Info("shutdown complete")
}

// run owns every resource it opens; all of them are released before it returns.
func run(ctx context.Context, stop context.CancelFunc, cfg *config.Config, logger *logger.Logger) error {
	st, err := openStores(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := st.close(); err != nil {
			logger.Error("failed to close storage", "error", err)
		}
	}()

	codec, err := token.NewCodec(token.Config{
		Issuer: cfg.JWT.Issuer,
		Secrets: map[model.TokenClass]string{
			model.TokenAccess:  cfg.JWT.AccessSecret,
			model.TokenRefresh: cfg.JWT.RefreshSecret,
			model.TokenReset:   cfg.JWT.ResetSecret,
			model.TokenVerify:  cfg.JWT.VerifySecret,
		},
		TTLs: map[model.TokenClass]time.Duration{
			model.TokenAccess:  cfg.JWT.AccessTTL,
			model.TokenRefresh: cfg.JWT.RefreshTTL,
			model.TokenReset:   cfg.JWT.ResetTTL,
			model.TokenVerify:  cfg.JWT.VerifyTTL,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token codec: %w", err)
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.MemoryKiB,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		MinLength:   cfg.Password.MinLength,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize password hasher: %w", err)
	}

	limiter, closeLimiter := newLimiter(ctx, cfg, logger)
	defer func() {
		if err := closeLimiter(); err != nil {
			logger.Error("failed to close redis client", "error", err)
		}
	}()

	var googleVerifier model.IdentityVerifier
	if cfg.Google.ClientID != "" {
		v, err := google.NewVerifier(ctx, cfg.Google.ClientID, cfg.Google.JWKSURL)
		if err != nil {
			return fmt.Errorf("failed to initialize google sign-in: %w", err)
		}
		googleVerifier = v
	}

	var avatars model.Storage
	if cfg.Storage.Enabled {
		c, err := storage.NewClient(ctx, storage.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize storage client: %w", err)
		}
		avatars = c
	}

	mail := mailer.NewLogMailer(cfg.Mail.From, logger)

	sessionManager := service.NewSessionManager(st.sessions, st.users, logger)
	tokenService := service.NewTokenService(codec, st.users, st.refreshTokens, sessionManager, st.tx, logger)
	verification := service.NewEmailVerification(codec, st.users, st.oneTime, tokenService, mail, st.tx, cfg.App.BaseURL, logger)
	reset := service.NewPasswordReset(codec, st.users, st.oneTime, tokenService, hasher, limiter, mail, st.tx, cfg.App.BaseURL, logger)
	authService := service.NewAuth(st.users, st.oauthLinks, tokenService, hasher, limiter, googleVerifier, verification, st.tx, logger)
	accountService := service.NewAccount(st.users, tokenService, hasher, avatars, st.tx, logger)

	r := router.New(
		router.Services{
			Auth:         authService,
			Tokens:       tokenService,
			Sessions:     sessionManager,
			Reset:        reset,
			Verification: verification,
			Account:      accountService,
			Store:        st.health,
		},
		transport.NewResolver(cfg.App.IsProduction(), cfg.JWT.RefreshTTL),
		httpctx.NewManager(),
		cfg.HTTP.RequestTimeout,
		cfg.HTTP.MaxAvatarBytes,
		logger,
	)

	httpServer := server.NewHTTPServer(r.Register(), cfg.HTTP.Address)

	var sl model.SecurityLayer
	if cfg.HTTP.EnableHTTPS {
		sl = server.NewTLSListener(cfg.HTTP.CertFileName, cfg.HTTP.PrivateKeyFileName)
	} else {
		sl = server.NewPlainListener()
	}

	var (
		wg       sync.WaitGroup
		startErr error
	)
	wg.Add(1)
	go func(s model.Server) {
		defer wg.Done()
		logger.Info("Starting server on", "address", s.Address(), "env", cfg.App.Env)
		if err := s.Start(sl); err != nil {
			startErr = err
			stop()
		}
	}(httpServer)

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err, "address", httpServer.Address())
	}

	wg.Wait()
	return startErr
}

func openStores(ctx context.Context, cfg config.Database) (*stores, error) {
	switch cfg.Driver {
	case "postgres":
		conn, err := postgres.NewConnection(ctx, cfg.DSN, cfg.MaxConns)
		if err != nil {
			return nil, err
		}
		return &stores{
			users:         postgres.NewUserRepository(conn.DB),
			refreshTokens: postgres.NewRefreshTokenRepository(conn.DB),
			sessions:      postgres.NewSessionRepository(conn.DB),
			oneTime:       postgres.NewOneTimeTokenRepository(conn.DB),
			oauthLinks:    postgres.NewOAuthLinkRepository(conn.DB),
			tx:            postgres.NewTransactor(conn.DB),
			health:        conn,
			close:         conn.Close,
		}, nil
	case "memory":
		s := memory.NewStore()
		return &stores{
			users:         s.Users(),
			refreshTokens: s.RefreshTokens(),
			sessions:      s.Sessions(),
			oneTime:       s.OneTimeTokens(),
			oauthLinks:    s.OAuthLinks(),
			tx:            s,
			health:        s,
			close:         func() error { return nil },
		}, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// newLimiter returns the Redis limiter when enabled, with a func releasing
// its client. An unreachable Redis is only logged; the limiter lets requests
// through while it is down.
func newLimiter(ctx context.Context, cfg *config.Config, logger *logger.Logger) (model.RateLimiter, func() error) {
	if !cfg.Redis.Enabled {
		logger.Warn("rate limiting is disabled")
		return ratelimit.Noop{}, func() error { return nil }
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis is unreachable, rate limits are not enforced until it recovers", "error", err)
	}

	return ratelimit.New(client, ratelimit.Config{
		MaxLoginAttempts: cfg.RateLimit.MaxLoginAttempts,
		LoginWindow:      cfg.RateLimit.LoginWindow,
		MaxResetRequests: cfg.RateLimit.MaxResetRequests,
		ResetWindow:      cfg.RateLimit.ResetWindow,
	}), client.Close
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
