package main

import (
	"context"
	"encoding/hex"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"philogic.io/internal/audit"
	"philogic.io/internal/auth"
	"philogic.io/internal/httpapi"
	"philogic.io/internal/obs"
	"philogic.io/internal/store/pg"
	"philogic.io/internal/vault"
)

var version = "0.3.1"

func main() {
	bootstrap := flag.Bool("bootstrap", false, "seed permissions, system roles and the initial superadmin, then exit")
	flag.Parse()

	obs.Init()

	dsn := os.Getenv("PHILOGIC_PG_DSN")
	if dsn == "" {
		log.Fatal("PHILOGIC_PG_DSN is required")
	}
	secret := []byte(os.Getenv("PHILOGIC_AUTH_SECRET"))
	if len(secret) == 0 {
		log.Fatal("PHILOGIC_AUTH_SECRET is required")
	}
	masterKey, err := hex.DecodeString(os.Getenv("PHILOGIC_VAULT_KEY"))
	if err != nil || len(masterKey) != vault.KeySize {
		log.Fatalf("PHILOGIC_VAULT_KEY must be %d bytes of hex", vault.KeySize)
	}

	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	if *bootstrap {
		runBootstrap(store)
		return
	}

	authsvc, err := auth.NewService(store, secret)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	rbac, err := auth.NewRBACService(store)
	if err != nil {
		log.Fatalf("rbac service: %v", err)
	}
	cipher, err := vault.NewCipher(masterKey)
	if err != nil {
		log.Fatalf("vault cipher: %v", err)
	}
	vaultsvc, err := vault.NewService(cipher, store)
	if err != nil {
		log.Fatalf("vault service: %v", err)
	}
	strict := strings.EqualFold(os.Getenv("PHILOGIC_AUDIT_STRICT"), "true")
	auditor := audit.NewRecorder(store.Audit(), audit.WithStrictMode(strict))

	api := httpapi.New(httpapi.ReadyProbe{DB: store.DB()}, version, authsvc, rbac, vaultsvc, auditor)

	addr := os.Getenv("PHILOGIC_ADDR")
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

	log.Printf("Starting philogic-api %s on %s", version, srv.Addr)

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
	log.Println("Stopped")
}

func runBootstrap(store *pg.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := auth.Bootstrap(ctx, store); err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	email := os.Getenv("PHILOGIC_ADMIN_EMAIL")
	password := os.Getenv("PHILOGIC_ADMIN_PASSWORD")
	if email == "" || password == "" {
		log.Println("catalog seeded; set PHILOGIC_ADMIN_EMAIL and PHILOGIC_ADMIN_PASSWORD to create a superadmin")
		return
	}
	user, err := auth.BootstrapSuperadmin(ctx, store, email, password)
	if err != nil {
		log.Fatalf("bootstrap superadmin: %v", err)
	}
	log.Printf("superadmin ready: %s (%s)", user.Email, user.ID)
}
