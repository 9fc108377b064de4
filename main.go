package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cfg "github.com/IkoAfianando/xray-security-app/internal/config"
	"github.com/gorilla/mux"
	_ "modernc.org/sqlite"
)

type App struct {
	Store          Store
	Gate           *Gate
	Tokens         *TokenAuthority
	rateLimiter    *RateLimiter
	allowedOrigins []string
}

func NewApp(store Store, tokens *TokenAuthority) *App {
	return &App{
		Store:  store,
		Gate:   NewGate(store, tokens),
		Tokens: tokens,
	}
}

// Router builds the full HTTP surface. The fingerprint channel and the
// login endpoint stay outside the bearer-protected subrouter.
func (a *App) Router() *mux.Router {
	r := mux.NewRouter()

	r.Use(SecurityHeaders)
	r.Use(a.Logging)
	r.Use(a.CORS)
	r.Use(a.RateLimit)

	// Health check endpoints (no auth required)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if p, ok := a.Store.(interface{ ping() bool }); ok {
			if !p.ping() {
				w.WriteHeader(503)
				w.Write([]byte(`{"ready":false}`))
				return
			}
		}
		w.WriteHeader(200)
		w.Write([]byte(`{"ready":true}`))
	}).Methods("GET")

	// Login and the hardware-facing fingerprint channel
	r.HandleFunc("/token", a.HandleToken).Methods("POST")
	r.HandleFunc("/fingerprint_login", a.HandleFingerprintLogin).Methods("POST")
	r.HandleFunc("/fingerprint_enroll", a.HandleFingerprintEnroll).Methods("POST")

	// Everything else requires a bearer token
	protected := r.PathPrefix("/").Subrouter()
	protected.Use(a.BearerAuth)

	protected.HandleFunc("/logout", a.HandleLogout).Methods("POST")
	protected.HandleFunc("/cleanup-tokens", a.HandleCleanupTokens).Methods("DELETE")

	protected.HandleFunc("/operators/", a.HandleCreateOperator).Methods("POST")
	protected.HandleFunc("/operators/", a.HandleListOperators).Methods("GET")
	protected.HandleFunc("/operators/me", a.HandleOperatorMe).Methods("GET")
	protected.HandleFunc("/operators/{fingerprint_id:[0-9]+}", a.HandleGetOperator).Methods("GET")
	protected.HandleFunc("/operators/{fingerprint_id:[0-9]+}", a.HandleUpdateOperator).Methods("PATCH")
	protected.HandleFunc("/operators/{fingerprint_id:[0-9]+}", a.HandleDeleteOperator).Methods("DELETE")

	protected.HandleFunc("/usage_logs/", a.HandleCreateUsageLog).Methods("POST")
	protected.HandleFunc("/usage_logs/", a.HandleListUsageLogs).Methods("GET")

	protected.HandleFunc("/dashboard/stats", a.HandleDashboardStats).Methods("GET")

	return r
}

func main() {
	c, err := cfg.New()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var store Store
	switch c.DBAdapter {
	case "sqlite":
		s, err := NewSQLiteStore(c.SQLiteFile)
		if err != nil {
			log.Fatalf("sqlite init: %v", err)
		}
		store = s
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			log.Fatalf("postgres config error: %v", err)
		}

		// Apply migrations before connecting
		log.Println("Applying database migrations...")
		if err := ApplyMigrations("./migrations", dsn); err != nil {
			log.Printf("migrations warning: %v", err)
		} else {
			log.Println("Migrations applied successfully")
		}

		p, err := NewPostgresStore(dsn)
		if err != nil {
			log.Fatalf("postgres init: %v", err)
		}
		store = p
		log.Println("Connected to PostgreSQL database")
	case "memory":
		log.Println("Using in-memory store (not recommended for production)")
		store = NewMemStore()
	default:
		log.Fatalf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
	}

	tokens := NewTokenAuthority([]byte(c.JwtSecret), time.Duration(c.TokenTTLMinutes)*time.Minute)
	app := NewApp(store, tokens)
	app.allowedOrigins = []string{"http://localhost:3000"}

	srv := &http.Server{Handler: app.Router(), Addr: ":" + c.Port, ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second}

	go func() {
		fmt.Println("Starting X-Ray Security server on", c.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if closer, ok := app.Store.(interface{ close() error }); ok {
		_ = closer.close()
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown failed:%+v", err)
	}
	fmt.Println("Server exited properly")
}
