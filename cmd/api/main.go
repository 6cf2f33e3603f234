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

	"parcflow.org/internal/audit"
	"parcflow.org/internal/auth"
	"parcflow.org/internal/config"
	"parcflow.org/internal/httpapi"
	"parcflow.org/internal/notify"
	"parcflow.org/internal/obs"
	"parcflow.org/internal/rbac"
	"parcflow.org/internal/signature"
	"parcflow.org/internal/store/pg"
	"parcflow.org/internal/workflow"
)

var (
	version = "1.2.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Postgres when a DSN is configured, in-memory stores otherwise.
	var (
		db         *sql.DB
		rbacStore  rbac.Store
		wfStore    workflow.Store
		auditStore audit.Store
		sigStore   signature.Store
	)
	if cfg.PGDSN != "" {
		pgStore, err := pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db = pgStore.DB()
		rbacStore = pgStore
		wfStore = pgStore
		auditStore = pgStore
		sigStore = pgStore.Signatures()
	} else {
		log.Println("PARCFLOW_PG_DSN not set, using in-memory stores")
		rbacStore = rbac.NewMemoryStore()
		wfStore = workflow.NewMemoryStore()
		auditStore = audit.NewMemoryStore()
		sigStore = signature.NewMemoryStore()
	}

	recorder := audit.NewRecorder(auditStore)

	registry, err := rbac.NewRegistry(rbacStore)
	if err != nil {
		log.Fatalf("rbac registry: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := registry.EnsureSystemRole(ctx); err != nil {
		cancel()
		log.Fatalf("ensure system role: %v", err)
	}
	cancel()

	guard, err := rbac.NewGuard(registry, recorder)
	if err != nil {
		log.Fatalf("rbac guard: %v", err)
	}
	signatures, err := signature.NewService(sigStore, signature.WithCertValidityDays(cfg.CertValidityDays))
	if err != nil {
		log.Fatalf("signature service: %v", err)
	}
	hub := notify.NewHub(64)
	engine, err := workflow.NewEngine(wfStore, guard, signatures, recorder, workflow.WithNotifier(hub))
	if err != nil {
		log.Fatalf("workflow engine: %v", err)
	}

	api := httpapi.New(httpapi.Deps{
		Ready:      httpapi.ReadyProbe{DB: db},
		Version:    version,
		Registry:   registry,
		Guard:      guard,
		Engine:     engine,
		Signatures: signatures,
		Recorder:   recorder,
		AuditLog:   auditStore,
		Hub:        hub,
		Lockout:    auth.NewLockout(cfg.LockoutThreshold, cfg.LockoutDuration),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting parcflow-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	recorder.Close()
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
