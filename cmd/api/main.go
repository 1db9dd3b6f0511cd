package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"squire.sh/internal/authz"
	"squire.sh/internal/config"
	"squire.sh/internal/credential"
	"squire.sh/internal/httpapi"
	"squire.sh/internal/identity"
	"squire.sh/internal/mail"
	"squire.sh/internal/obs"
	"squire.sh/internal/session"
	"squire.sh/internal/token"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	db, err := sql.Open("pgx", cfg.DatabaseURI)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := identity.NewPGStore(db)

	tokens, err := token.NewEngine(cfg.SecretKey, cfg.RefreshKey,
		token.WithAccessTTL(cfg.AccessTokenTTL),
		token.WithRefreshTTL(cfg.RefreshTokenTTL),
	)
	if err != nil {
		log.Fatalf("token engine: %v", err)
	}

	otps := credential.NewEngine(store)

	// The mailer is optional: without SMTP settings the password-reset
	// request path reports unavailable instead of failing at startup.
	var mailer mail.Mailer
	if cfg.SMTPServer != "" {
		m, err := mail.NewSMTPMailer(mail.SMTPConfig{
			Sender:   cfg.SenderEmail,
			Server:   cfg.SMTPServer,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		})
		if err != nil {
			log.Fatalf("smtp mailer: %v", err)
		}
		mailer = m
	}

	svc, err := session.NewService(store, tokens, otps, mailer)
	if err != nil {
		log.Fatalf("session service: %v", err)
	}
	admin, err := session.NewAdmin(store)
	if err != nil {
		log.Fatalf("admin service: %v", err)
	}

	api := httpapi.New(httpapi.Options{
		Session:       svc,
		Admin:         admin,
		Authorizer:    authz.NewEngine(store),
		Tokens:        tokens,
		AuthMode:      cfg.AuthMode,
		Ready:         httpapi.ReadyProbe{DB: db},
		Version:       version,
		RateBurst:     cfg.RateBurst,
		RatePerSecond: cfg.RatePerSecond,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting squire-api %s (%s mode) on %s", version, cfg.AuthMode, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}
