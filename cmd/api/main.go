package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lawdesk.org/internal/audit"
	"lawdesk.org/internal/auth"
	"lawdesk.org/internal/config"
	"lawdesk.org/internal/files"
	"lawdesk.org/internal/httpapi"
	"lawdesk.org/internal/kv"
	"lawdesk.org/internal/mail"
	"lawdesk.org/internal/obs"
	"lawdesk.org/internal/office"
	"lawdesk.org/internal/reminders"
	"lawdesk.org/internal/store/memory"
	"lawdesk.org/internal/store/pg"
	"lawdesk.org/internal/summarize"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:           "lawdesk-api",
		Short:         "Law office management API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to lawdesk.yaml")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		obs.Logger().WithError(err).Error("api_exit")
		os.Exit(1)
	}
}

// backend is the persistence picked at startup.
type backend struct {
	auth   auth.Stores
	office office.Stores
	audit  audit.Store
	checks map[string]httpapi.Pinger
	closer func()
}

func openBackend(ctx context.Context, cfg *config.Config, log *logrus.Entry) (*backend, error) {
	b := &backend{checks: map[string]httpapi.Pinger{}, closer: func() {}}

	if cfg.Database.DSN == "" {
		log.Warn("database.dsn not set, using in-memory store")
		mem := memory.New()
		b.auth, b.office, b.audit = mem.AuthStores(), mem.OfficeStores(), mem.Audit()
	} else {
		db, err := pg.Open(cfg.Database.DSN, pg.PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.Ping(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		b.auth, b.office, b.audit = db.AuthStores(), db.OfficeStores(), db.Audit()
		b.checks["database"] = db
		b.closer = func() { _ = db.Close() }
	}

	if cfg.Redis.URL != "" {
		client, err := kv.Open(ctx, cfg.Redis.URL)
		if err != nil {
			b.closer()
			return nil, fmt.Errorf("open redis: %w", err)
		}
		b.auth.ResetTokens = kv.NewResetTokens(client)
		b.checks["redis"] = httpapi.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		closeDB := b.closer
		b.closer = func() {
			_ = client.Close()
			closeDB()
		}
	}
	return b, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	obs.Init()
	if err := obs.SetLevel(cfg.Log.Level); err != nil {
		return err
	}
	// -ldflags "-X main.version=..." wins over the config value
	if version != "dev" {
		cfg.Version = version
	}
	obs.InitBuildInfo(cfg.Version, commit)
	log := obs.Component("main")

	store, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.closer()

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret,
		auth.WithTokenTTL(cfg.Auth.AccessTTL),
		auth.WithTokenIssuer(cfg.Auth.Issuer),
	)
	if err != nil {
		return err
	}
	mailer := mail.New(mail.Config{
		Host:       cfg.Mail.Host,
		Port:       cfg.Mail.Port,
		Username:   cfg.Mail.Username,
		Password:   cfg.Mail.Password,
		From:       cfg.Mail.From,
		FromName:   cfg.Mail.FromName,
		Encryption: cfg.Mail.Encryption,
	})
	accounts, err := auth.NewService(store.auth, tokens,
		auth.WithRefreshTTL(cfg.Auth.RefreshTTL),
		auth.WithResetTTL(cfg.Auth.ResetTTL),
		auth.WithHasher(auth.NewHasher(cfg.Auth.BcryptCost)),
		auth.WithResetNotifier(mail.NewResetNotifier(mailer, cfg.Auth.ResetURL)),
	)
	if err != nil {
		return err
	}

	auditor := audit.NewService(store.audit,
		audit.WithQueueSize(cfg.Audit.QueueSize),
		audit.WithEnqueueTimeout(cfg.Audit.EnqueueTimeout),
	)
	// covers early returns below; Close is idempotent so the shutdown path
	// can still report its own error
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := auditor.Close(closeCtx); err != nil {
			log.WithError(err).Warn("audit close")
		}
	}()

	fileStore, err := files.New(ctx, files.Config{
		Backend: cfg.Files.Backend,
		Dir:     cfg.Files.Dir,
		S3: files.S3Config{
			Bucket:       cfg.Files.S3.Bucket,
			Region:       cfg.Files.S3.Region,
			Endpoint:     cfg.Files.S3.Endpoint,
			AccessKey:    cfg.Files.S3.AccessKey,
			SecretKey:    cfg.Files.S3.SecretKey,
			Prefix:       cfg.Files.S3.Prefix,
			UsePathStyle: cfg.Files.S3.UsePathStyle,
		},
	})
	if err != nil {
		return err
	}

	var summarizer office.Summarizer
	if cfg.Summarize.Endpoint != "" {
		summarizer = summarize.New(summarize.Config{
			Endpoint:     cfg.Summarize.Endpoint,
			APIKey:       cfg.Summarize.APIKey,
			Model:        cfg.Summarize.Model,
			Timeout:      cfg.Summarize.Timeout,
			CacheSize:    cfg.Summarize.CacheSize,
			RatePerMin:   cfg.Summarize.RatePerMin,
			MaxInputSize: cfg.Summarize.MaxInputSize,
		})
	} else {
		log.Info("summarize.endpoint not set, document summaries disabled")
	}

	officeSvc := office.NewServices(office.Deps{
		Stores:         store.office,
		Accounts:       accounts,
		Files:          fileStore,
		Summarizer:     summarizer,
		MaxUploadBytes: cfg.Files.MaxUploadBytes,
	}, auditor)

	trusted, err := httpapi.ParseTrustedProxies(cfg.HTTP.TrustedProxies)
	if err != nil {
		return err
	}

	api := httpapi.New(httpapi.ReadyProbe{Checks: store.checks}, cfg.Version, httpapi.Services{
		Auth:   accounts,
		Audit:  auditor,
		Office: officeSvc,
	}, httpapi.Options{
		AllowedOrigins:   cfg.HTTP.AllowedOrigins,
		TrustedProxies:   trusted,
		AuthRateBurst:    cfg.HTTP.AuthRateBurst,
		AuthRatePerSec:   cfg.HTTP.AuthRatePerSec,
		MaxBodyBytes:     cfg.HTTP.MaxBodyBytes,
		ExposeResetToken: cfg.Auth.ExposeResetToken,
	})

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	var scheduler *reminders.Scheduler
	if cfg.Reminders.Enabled {
		runner := reminders.NewRunner(store.office.Deadlines, store.office.Cases, store.office.Users, mailer,
			reminders.WithWindow(cfg.Reminders.Window))
		scheduler = reminders.NewScheduler(runner)
		if err := scheduler.Start(ctx, cfg.Reminders.Schedule); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithFields(logrus.Fields{"addr": cfg.HTTP.Addr, "version": cfg.Version}).Info("api_listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("api_shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if scheduler != nil {
			if err := scheduler.Stop(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("reminders stop: %w", err))
			}
		}
		// pending audit records are written before the store closes
		if err := auditor.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("audit close: %w", err))
		}
		return errors.Join(errs...)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("api_stopped")
	return nil
}
