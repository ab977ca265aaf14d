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
	"github.com/redis/go-redis/v9"

	"starpass.org/internal/audit"
	"starpass.org/internal/httpapi"
	"starpass.org/internal/kv"
	"starpass.org/internal/loginlog"
	"starpass.org/internal/obs"
	"starpass.org/internal/passport"
	"starpass.org/internal/users"
)

var version = "1.0.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("STARPASS_COMMIT"))

	// Postgres is optional: without a DSN the service runs on in-memory
	// account storage, suitable for a single instance.
	var db *sql.DB
	if dsn := os.Getenv("STARPASS_PG_DSN"); dsn != "" {
		var err error
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	// Same for Redis: with no address the in-memory store carries sessions,
	// codes and rate windows.
	var store kv.Store
	if addr := os.Getenv("STARPASS_REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("STARPASS_REDIS_PASSWORD"),
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.Ping(ctx).Err(); err != nil {
			cancel()
			log.Fatalf("redis ping: %v", err)
		}
		cancel()
		store = kv.NewRedisStore(client)
	} else {
		store = kv.NewMemoryStore()
	}

	var userStore users.Store
	if db != nil {
		userStore = users.NewPGStore(db)
	} else {
		userStore = users.NewMemoryStore()
	}

	var logOpts []loginlog.Option
	var auditOpts []audit.Option
	if db != nil {
		logOpts = append(logOpts, loginlog.WithDB(db))
		auditOpts = append(auditOpts, audit.WithDB(db))
	}
	logins := loginlog.NewRecorder(logOpts...)
	auditLog := audit.NewLog(auditOpts...)

	var gateway passport.Gateway = passport.ConsoleGateway{}
	if url := os.Getenv("SMS_GATEWAY_URL"); url != "" {
		gateway = passport.NewHTTPGateway(url, os.Getenv("SMS_GATEWAY_KEY"))
	}

	roles := passport.NewRoleMappingFromEnv()
	sessions := passport.NewSessionStore(store)
	codes := passport.NewVerificationService(store, gateway)
	governor := passport.NewRateGovernor(store)

	auth := passport.NewAuthService(userStore, sessions, codes, governor, logins, auditLog, roles)
	var tokenOpts []passport.TokenOption
	if signer := passport.NewClaimsSigner(os.Getenv("STARPASS_CLAIMS_SECRET")); signer != nil {
		tokenOpts = append(tokenOpts, passport.WithClaimsSigner(signer))
	}
	tokens := passport.NewTokenService(sessions, governor, logins, auditLog, roles, tokenOpts...)
	admin := passport.NewAdminService(userStore, sessions, logins, auditLog, roles)

	api := httpapi.New(httpapi.Config{
		Version:      version,
		ReadyProbe:   httpapi.ReadyProbe{DB: db},
		Codes:        codes,
		Auth:         auth,
		Tokens:       tokens,
		Admin:        admin,
		AdminAppID:   os.Getenv("ADMIN_APP_ID"),
		MetricsToken: os.Getenv("METRICS_TOKEN"),
		Env:          os.Getenv("STARPASS_ENV"),
	})

	addr := os.Getenv("STARPASS_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting starpass-api %s on %s", version, srv.Addr)

	// graceful shutdown
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
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
