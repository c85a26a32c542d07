package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"xitem.org/internal/auth"
	"xitem.org/internal/calendar"
	"xitem.org/internal/config"
	"xitem.org/internal/event"
	"xitem.org/internal/health"
	"xitem.org/internal/httpapi"
	"xitem.org/internal/mail"
	"xitem.org/internal/note"
	"xitem.org/internal/obs"
	"xitem.org/internal/store/memory"
	"xitem.org/internal/store/pg"
	"xitem.org/internal/voting"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (and gRPC health when configured)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

// backend is satisfied by both the PostgreSQL and the in-memory store.
type backend interface {
	auth.Store
	Calendars() calendar.Store
	Events() event.Store
	Notes() note.Store
	Votings() voting.Store
	Ping(ctx context.Context) error
}

// app holds everything the subcommands share.
type app struct {
	cfg      config.Config
	store    backend
	tokens   *auth.Tokens
	mailer   *mail.Async
	accounts *auth.Accounts
	close    func()
}

func newApp() (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}

	// Хранилище: PostgreSQL при заданном DSN, иначе in-memory
	var (
		st      backend
		closeDB = func() {}
	)
	if cfg.PGDSN != "" {
		db, err := pg.Open(cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		st, closeDB = db, func() { _ = db.Close() }
	} else {
		obs.Warn("XITEM_PG_DSN not set, using in-memory store", nil)
		st = memory.New()
	}

	tokens, err := auth.NewTokens(
		auth.WithIssuer(cfg.AppName),
		auth.WithSecret(auth.KindAuth, cfg.Secrets.Auth),
		auth.WithSecret(auth.KindRefresh, cfg.Secrets.Refresh),
		auth.WithSecret(auth.KindSecurity, cfg.Secrets.Security),
		auth.WithSecret(auth.KindEmail, cfg.Secrets.Email),
		auth.WithSecret(auth.KindRecovery, cfg.Secrets.Recovery),
		auth.WithSecret(auth.KindDeletion, cfg.Secrets.Deletion),
		auth.WithSecret(auth.KindInvitation, cfg.Secrets.Invitation),
		auth.WithTTL(auth.KindAuth, cfg.TTLs.Auth),
		auth.WithTTL(auth.KindRefresh, cfg.TTLs.Refresh),
		auth.WithTTL(auth.KindSecurity, cfg.TTLs.Security),
		auth.WithTTL(auth.KindEmail, cfg.TTLs.Email),
		auth.WithTTL(auth.KindRecovery, cfg.TTLs.Recovery),
		auth.WithTTL(auth.KindDeletion, cfg.TTLs.Deletion),
	)
	if err != nil {
		closeDB()
		return nil, err
	}

	// Письма уходят в фоне, чтобы не держать HTTP-запрос
	mailer := mail.NewAsync(mail.LogDispatcher{AppName: cfg.AppName})

	return &app{
		cfg:      cfg,
		store:    st,
		tokens:   tokens,
		mailer:   mailer,
		accounts: auth.NewAccounts(st, tokens, mailer),
		close: func() {
			mailer.Wait()
			closeDB()
		},
	}, nil
}

func serve(parent context.Context) error {
	// Инициализация observability (регистрация метрик, JSON-логгер и т.п.)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ready := health.StoreCheck{Store: a.store}
	api := httpapi.New(httpapi.Deps{
		Resolver:     auth.NewResolver(a.tokens, a.store),
		Roles:        auth.NewRoleEngine(a.store),
		Accounts:     a.accounts,
		Calendars:    calendar.NewService(a.store.Calendars(), a.tokens),
		Events:       event.NewService(a.store.Events(), a.store.Calendars()),
		Notes:        note.NewService(a.store.Notes(), a.store.Calendars()),
		Votings:      voting.NewService(a.store.Votings(), a.store.Calendars()),
		Ready:        ready,
		Version:      version,
		RateBurst:    a.cfg.RateBurst,
		RatePerSec:   a.cfg.RatePerSec,
		MaxBodyBytes: a.cfg.MaxBodyBytes,
		CORSOrigins:  a.cfg.CORSOrigins,
	})
	defer api.Close()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           api.Handler(), // уже обёрнут метриками в httpapi
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Starting xitem-api %s on %s", version, srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen http: %w", err)
		}
		return nil
	})

	// gRPC health только если задан адрес
	if a.cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", a.cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		gs := grpc.NewServer()
		hs := health.NewServer(ready)
		hs.Register(gs)

		g.Go(func() error {
			hs.Run(gctx, 5*time.Second)
			return nil
		})
		g.Go(func() error {
			log.Printf("gRPC health on %s", a.cfg.GRPCAddr)
			return gs.Serve(lis)
		})
		g.Go(func() error {
			<-gctx.Done()
			gs.GracefulStop()
			return nil
		})
	}

	// graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Println("Stopped")
	return err
}
