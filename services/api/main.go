package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corpchat/internal/auth"
	"github.com/corpchat/internal/config"
	pgstore "github.com/corpchat/internal/docstore/postgres"
	"github.com/corpchat/internal/email"
	"github.com/corpchat/internal/handler"
	"github.com/corpchat/internal/logger"
	"github.com/corpchat/internal/middleware"
	"github.com/corpchat/internal/push"
	"github.com/corpchat/internal/repository"
	"github.com/corpchat/internal/startup"
	"github.com/corpchat/internal/storage"
	memstorage "github.com/corpchat/internal/storage/memory"
	"github.com/corpchat/internal/ws"
	"github.com/corpchat/migrations"
)

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	flag.Parse()

	logger.Info("starting API service")
	cfg := config.Load()

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev {
		var err error
		embeddedDB, err = startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "")
	defer pool.Close()

	runMigrations(pool)
	if *migrate && !*dev {
		return
	}

	storeCtx, storeCancel := context.WithCancel(context.Background())
	defer storeCancel()
	store, err := pgstore.New(storeCtx, pool)
	if err != nil {
		logger.Errorf("document store: %v", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("database connected, migrations applied")

	// Сессии: Redis, в dev-режиме fallback на память.
	var sessions storage.SessionStore
	if *dev && os.Getenv("REDIS_URL") == "" {
		logger.Info("dev mode: in-memory session store")
		sessions = memstorage.New()
	} else {
		sessions = startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second, "")
	}
	defer sessions.Close()

	userRepo := repository.NewUserRepository(store)
	convRepo := repository.NewConversationRepository(store, cfg.Chat.MaxAttachmentBytes)
	deptRepo := repository.NewDepartmentRepository(store, userRepo, cfg.Chat.MaxAttachmentBytes)
	annRepo := repository.NewAnnouncementRepository(store)
	pollRepo := repository.NewPollRepository(store)
	pinnedRepo := repository.NewPinnedRepository(store)
	taskRepo := repository.NewTaskRepository(store)
	cleanupRepo := repository.NewCleanupRepository(store, sessions)

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := deptRepo.Seed(seedCtx); err != nil {
		logger.Errorf("seed departments: %v", err)
	}
	seedCancel()

	mailer := email.NewSender(&cfg.SMTP)
	authSvc := auth.NewService(store, userRepo, sessions, mailer, cfg.Chat.EmailDomain)

	vapidPub, vapidPriv := cfg.PushVAPIDPublicKey, cfg.PushVAPIDPrivateKey
	if vapidPub == "" || vapidPriv == "" {
		if keys, err := push.EnsureVAPIDKeys(os.Getenv("VAPID_KEYS_FILE")); err != nil {
			logger.Errorf("vapid keys: %v (push disabled)", err)
		} else {
			vapidPub, vapidPriv = keys.PublicKey, keys.PrivateKey
		}
	}
	notifier := push.NewNotifier(sessions, vapidPub, vapidPriv)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	hub := ws.NewHub(store, convRepo, deptRepo, cfg.MaxWSConnections, cfg.Chat.TypingTTL)

	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	authH := handler.NewAuthHandler(authSvc, baseURL(cfg))
	userH := handler.NewUserHandler(userRepo)
	convH := handler.NewConversationHandler(convRepo, userRepo, notifier)
	deptH := handler.NewDepartmentHandler(deptRepo, userRepo, notifier)
	annH := handler.NewAnnouncementHandler(annRepo, userRepo, notifier)
	pollH := handler.NewPollHandler(pollRepo, deptRepo)
	pinnedH := handler.NewPinnedHandler(pinnedRepo, deptRepo)
	taskH := handler.NewTaskHandler(taskRepo, deptRepo, userRepo)
	adminH := handler.NewAdminHandler(store, userRepo, deptRepo, cleanupRepo)
	pushH := handler.NewPushHandler(notifier, vapidPub)
	wsH := handler.NewWSHandler(hub, cfg.CORSAllowedOrigins)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(middleware.RecoverJSON)
	// Не сжимать WebSocket — иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.SecureHeaders)
	r.Use(middleware.RateLimitAPI)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Get("/api/config/push", pushH.PublicKey)

	r.Post("/api/auth/signup", authH.SignUp)
	r.Post("/api/auth/signin", authH.SignIn)
	r.Post("/api/auth/reset", authH.RequestReset)
	r.Post("/api/auth/reset/confirm", authH.ConfirmReset)

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionAuth(authSvc))
		r.Post("/api/auth/signout", authH.SignOut)
		r.Get("/api/auth/me", authH.Me)

		r.Get("/api/users", userH.List)
		r.Get("/api/users/me/permissions", userH.Permissions)
		r.Put("/api/users/me", userH.UpdateProfile)
		r.Get("/api/users/{id}", userH.Get)
		r.Put("/api/users/{id}/role", adminH.SetRole)
		r.Delete("/api/users/{id}", adminH.DeleteAccount)

		r.Get("/api/conversations", convH.List)
		r.Post("/api/conversations", convH.Open)
		r.Get("/api/conversations/{id}", convH.Get)
		r.Post("/api/conversations/{id}/messages", convH.Send)
		r.Get("/api/conversations/{id}/messages", convH.Messages)
		r.Post("/api/conversations/{id}/read", convH.MarkRead)
		r.Post("/api/conversations/{id}/typing", convH.Typing)

		r.Get("/api/departments", deptH.List)
		r.Post("/api/departments", adminH.CreateDepartment)
		r.Get("/api/departments/{id}", deptH.Get)
		r.Put("/api/departments/{id}/manager", adminH.AssignManager)
		r.Post("/api/departments/{id}/messages", deptH.Send)
		r.Get("/api/departments/{id}/messages", deptH.Messages)
		r.Post("/api/departments/{id}/read", deptH.MarkRead)
		r.Get("/api/departments/{id}/polls", pollH.ListByDepartment)
		r.Get("/api/departments/{id}/pinned", pinnedH.List)
		r.Post("/api/departments/{id}/pinned", pinnedH.Pin)
		r.Delete("/api/departments/{id}/pinned/{pinId}", pinnedH.Unpin)
		r.Get("/api/departments/{id}/tasks", taskH.ListByDepartment)

		r.Get("/api/announcements", annH.List)
		r.Post("/api/announcements", annH.Create)
		r.Get("/api/announcements/unread", annH.UnreadCount)
		r.Post("/api/announcements/{id}/read", annH.MarkRead)
		r.Delete("/api/announcements/{id}", annH.Delete)

		r.Post("/api/polls", pollH.Create)
		r.Post("/api/polls/{id}/vote", pollH.Vote)

		r.Get("/api/tasks", taskH.ListMine)
		r.Post("/api/tasks", taskH.Create)
		r.Put("/api/tasks/{id}/status", taskH.UpdateStatus)
		r.Delete("/api/tasks/{id}", taskH.Delete)

		r.Get("/api/stats", adminH.Stats)
		r.Get("/api/permissions/rules", adminH.Rules)

		r.Post("/api/push/subscribe", pushH.Subscribe)
		r.Delete("/api/push/subscribe", pushH.Unsubscribe)
		r.Get("/ws", wsH.ServeWS)
	})

	webDist := "./web/dist"
	if info, err := os.Stat(webDist); err == nil && info.IsDir() {
		r.Get("/*", spaHandler(webDist))
	}

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

// baseURL — внешний адрес для ссылок в письмах сброса пароля.
func baseURL(cfg *config.Config) string {
	if v := os.Getenv("PUBLIC_BASE_URL"); v != "" {
		return strings.TrimSuffix(v, "/")
	}
	addr := cfg.ServerAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func spaHandler(dir string) http.HandlerFunc {
	fs := http.Dir(dir)
	fileServer := http.FileServer(fs)
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(filepath.Clean(r.URL.Path), "/")
		if path == "" {
			path = "index.html"
		}
		if f, err := fs.Open(path); err != nil {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
		} else {
			f.Close()
			fileServer.ServeHTTP(w, r)
		}
	}
}

func runMigrations(pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		logger.Errorf("read migrations: %v", err)
		os.Exit(1)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := migrations.Files.ReadFile(name)
		if err != nil {
			logger.Errorf("read migration %s: %v", name, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			logger.Errorf("run migration %s: %v", name, err)
			os.Exit(1)
		}
	}
	logger.Info("migrations applied")
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "corpchat"
		password = "corpchat_secret"
		database = "corpchat"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
