package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/app"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/auth"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/authpw"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/config"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/email"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/leadstore"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/logger"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/objectstore"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/ratelimit"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/search"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/session"
)

// searchBackfillMonths is how much history is pushed to Meilisearch on boot.
const searchBackfillMonths = 3

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := hashPassword(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	zl := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	err = run(cfg, logger.NewZapAdapter(zl))
	if err != nil {
		zl.Error("server failed", zap.Error(err))
	}
	_ = zl.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg config.Config, log logger.Logger) error {
	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Warn("unknown timezone, using UTC", map[string]interface{}{"timezone": cfg.Timezone, "error": err})
		location = time.UTC
	}

	var store objectstore.Store
	if cfg.Storage.Memory {
		log.Warn("using in-memory object storage; leads will not survive a restart", nil)
		store = objectstore.NewMemoryStore()
	} else {
		store, err = objectstore.NewMinioStore(objectstore.MinioConfig{
			Endpoint:        cfg.Storage.Endpoint,
			Region:          cfg.Storage.Region,
			Bucket:          cfg.Storage.Bucket,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			UseSSL:          cfg.Storage.UseSSL,
		})
		if err != nil {
			return err
		}
	}
	repo := leadstore.NewRepository(store, log)

	checks := map[string]app.Pinger{}
	var (
		sessions      auth.SessionStore
		submitLimiter ratelimit.Limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit.Submissions, cfg.RateLimit.Window)
		loginLimiter  ratelimit.Limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit.Logins, cfg.RateLimit.Window)
	)
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Info("using redis for sessions and rate limits", nil)
		client, err := session.Connect(cfg.RedisURL)
		if err != nil {
			return err
		}
		redisStore := session.NewRedisStoreWithClient(client)
		defer redisStore.Close()
		sessions = redisStore
		checks["redis"] = redisStore
		submitLimiter = ratelimit.NewFallback(redisLimiter(client, "submit", cfg.RateLimit.Submissions, cfg.RateLimit.Window), submitLimiter, log)
		loginLimiter = ratelimit.NewFallback(redisLimiter(client, "login", cfg.RateLimit.Logins, cfg.RateLimit.Window), loginLimiter, log)
	} else {
		log.Info("using in-memory sessions and rate limits", nil)
		sessions = session.NewMemoryStore()
	}

	verifier, err := newVerifier(cfg.Admin)
	if err != nil {
		return err
	}
	guard := auth.NewGuard([]byte(cfg.Admin.TokenSecret), sessions, cfg.Admin.SessionTTL)

	var meili *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meili.Close()
		checks["meilisearch"] = meiliCheck{meili}
	}
	searchService := search.NewService(meili, search.NewScanner(repo), log)
	if meili != nil {
		repo.Observe(searchService)
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		FromName: cfg.SMTP.FromName,
	})
	if !mailer.IsConfigured() {
		log.Warn("SMTP not configured; lead emails are disabled", nil)
	}

	service := app.NewService(app.Deps{
		Leads:         repo,
		Guard:         guard,
		Verifier:      verifier,
		SubmitLimiter: submitLimiter,
		LoginLimiter:  loginLimiter,
		Search:        searchService,
		Email:         mailer,
		Log:           log,
		AdminName:     cfg.Admin.Name,
		SignedURLTTL:  cfg.Storage.SignedURLTTL,
		Location:      location,
		Checks:        checks,
	})

	if meili != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := service.BackfillSearch(ctx, searchBackfillMonths); err != nil {
				log.Warn("search backfill failed", map[string]interface{}{"error": err})
			}
		}()
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, log).
		SecureCookies(cfg.Production()).
		TrustProxy(cfg.TrustProxy)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("API listening", map[string]interface{}{"addr": cfg.Addr, "environment": cfg.Environment})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-sigCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", map[string]interface{}{"error": err})
	}
	return nil
}

func redisLimiter(client *redis.Client, scope string, limit int, window time.Duration) ratelimit.Limiter {
	return ratelimit.NewRedisLimiter(client, scope, limit, window)
}

func newVerifier(cfg config.AdminConfig) (*authpw.Verifier, error) {
	if cfg.PasswordHash != "" {
		return authpw.NewVerifier(cfg.PasswordHash)
	}
	return authpw.NewVerifierFromPassword(cfg.Password, bcrypt.DefaultCost)
}

type meiliCheck struct {
	m *search.Meili
}

func (c meiliCheck) Ping(context.Context) error {
	if !c.m.Healthy() {
		return errors.New("meilisearch unreachable")
	}
	return nil
}

// hashPassword prints a bcrypt hash for ADMIN_PASSWORD_HASH.
func hashPassword() error {
	var password string
	if len(os.Args) > 2 {
		password = os.Args[2]
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	hash, err := authpw.Hash(password)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
