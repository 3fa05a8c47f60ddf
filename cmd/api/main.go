package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	"github.com/squadpulse/service-core/internal/checkin"
	checkinrepo "github.com/squadpulse/service-core/internal/checkin/repo"
	"github.com/squadpulse/service-core/internal/dashboard"
	"github.com/squadpulse/service-core/internal/directory"
	directoryrepo "github.com/squadpulse/service-core/internal/directory/repo"
	"github.com/squadpulse/service-core/internal/identity"
	identityrepo "github.com/squadpulse/service-core/internal/identity/repo"
	"github.com/squadpulse/service-core/internal/preference"
	preferencerepo "github.com/squadpulse/service-core/internal/preference/repo"
	"github.com/squadpulse/service-core/internal/router"
	"github.com/squadpulse/service-core/internal/whisper"
	whisperrepo "github.com/squadpulse/service-core/internal/whisper/repo"
	"github.com/squadpulse/service-core/pkg/database"
	"github.com/squadpulse/service-core/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	// this is best-effort: if no .env exists, continue (use defaults or real env)
	_ = godotenv.Load()

	// init logger
	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting squadpulse-core")

	secret := os.Getenv("SESSION_SECRET")
	if secret == "" {
		sugar.Fatal("SESSION_SECRET is required")
	}

	rolesPath := os.Getenv("ROLES_FILE")
	if rolesPath == "" {
		rolesPath = "config/roles.yaml"
	}
	roles, err := identity.LoadRoleConfig(rolesPath)
	if err != nil {
		sugar.Fatalf("role config: %v", err)
	}

	// init db
	cfg := database.ConfigFromEnv()
	sqlDB, err := database.Connect(cfg)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer sqlDB.Close()

	// wrap with sqlx for convenience in repos/services
	db := sqlx.NewDb(sqlDB, "postgres")
	defer db.Close()

	userRepo := identityrepo.NewUserRepo(db)
	dirRepo := directoryrepo.NewDirectoryRepo(db)
	checkinRepo := checkinrepo.NewCheckinRepo(db)
	whisperRepo := whisperrepo.NewWhisperRepo(db)
	selectionRepo := preferencerepo.NewSelectionRepo(db)

	// ensure schema once per process, in FK dependency order, before
	// serving traffic
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()
	for _, ensure := range []func(context.Context) error{
		userRepo.EnsureSchema,
		dirRepo.EnsureSchema,
		checkinRepo.EnsureSchema,
		whisperRepo.EnsureSchema,
		selectionRepo.EnsureSchema,
	} {
		if err := ensure(startCtx); err != nil {
			sugar.Fatalf("ensure schema: %v", err)
		}
	}

	identitySvc := identity.NewService(userRepo, roles)
	dirSvc := directory.NewService(dirRepo)
	if err := dirSvc.Seed(startCtx); err != nil {
		sugar.Fatalf("seed directory: %v", err)
	}

	// one-shot uniqueness repair for pseudonyms imported by migrations
	if repaired, err := identitySvc.RepairPseudonyms(startCtx); err != nil {
		sugar.Fatalf("repair pseudonyms: %v", err)
	} else if repaired > 0 {
		sugar.Infow("reassigned duplicate pseudonyms", "count", repaired)
	}

	checkinSvc := checkin.NewService(checkinRepo, dirSvc, identitySvc)
	whisperSvc := whisper.NewService(whisperRepo, identitySvc)
	prefSvc := preference.NewService(selectionRepo)

	handler := router.New(router.Deps{
		Logger:        sugar,
		SessionSecret: []byte(secret),
		Identity:      identitySvc,
		Directory:     directory.NewHandler(dirSvc, sugar),
		Checkins:      checkin.NewHandler(checkinSvc, dirSvc, sugar),
		Whispers:      whisper.NewHandler(whisperSvc, dirSvc, prefSvc, sugar),
		Preferences:   preference.NewHandler(prefSvc, dirSvc, sugar),
		Dashboard:     dashboard.NewHandler(whisperSvc, checkinSvc, dirSvc, prefSvc, sugar),
	})

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = "0.0.0.0:8452"
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sugar.Infow("service is running; press Ctrl+C to stop", "addr", addr)

	// run server in background
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()

	sugar.Info("shutting down")

	// give a short grace period for cleanup
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	if err := sqlDB.PingContext(doneCtx); err != nil {
		sugar.Warnf("db ping on shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
