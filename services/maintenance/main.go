package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/corpchat/internal/auth"
	"github.com/corpchat/internal/config"
	"github.com/corpchat/internal/docstore"
	pgstore "github.com/corpchat/internal/docstore/postgres"
	"github.com/corpchat/internal/email"
	"github.com/corpchat/internal/logger"
	"github.com/corpchat/internal/model"
	"github.com/corpchat/internal/repository"
	"github.com/corpchat/internal/startup"
	redisstorage "github.com/corpchat/internal/storage/redis"
)

// env собирает подключения, общие для всех подкоманд.
type env struct {
	cfg      *config.Config
	pool     *pgxpool.Pool
	store    docstore.Store
	sessions *redisstorage.Client
}

func main() {
	logger.SetPrefix("maintenance")

	root := &cobra.Command{
		Use:          "maintenance",
		Short:        "Служебные операции: сброс данных, наполнение демо-данными, дочистка аккаунтов",
		SilenceUsage: true,
	}
	root.AddCommand(resetAllCmd(), seedCmd(), cleanupAccountCmd())

	if err := root.Execute(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func connect(ctx context.Context) (*env, error) {
	cfg := config.Load()
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	pool := startup.ConnectDBWithRetry(poolCfg, 30*time.Second, "")
	store, err := pgstore.New(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("document store: %w", err)
	}
	sessions := startup.ConnectRedisWithRetry(cfg.Redis.URL, 30*time.Second, "")
	return &env{cfg: cfg, pool: pool, store: store, sessions: sessions}, nil
}

func (e *env) close() {
	e.store.Close()
	e.sessions.Close()
	e.pool.Close()
}

var allCollections = []string{
	repository.ColUsers, repository.ColConversations, repository.ColMessages,
	repository.ColDepartments, repository.ColDepartmentMessages, repository.ColAnnouncements,
	repository.ColPolls, repository.ColPinnedMessages, repository.ColTasks,
	repository.ColCleanupJobs, repository.ColCredentials,
}

func resetAllCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset-all",
		Short: "Удаляет ВСЕ данные: документы и сессии",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("подтвердите флагом --yes")
			}
			ctx := cmd.Context()
			e, err := connect(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			for _, col := range allCollections {
				n, err := e.store.BatchDelete(ctx, docstore.Query{Collection: col})
				if err != nil {
					return fmt.Errorf("wipe %s: %w", col, err)
				}
				logger.Infof("collection %s: удалено %d документов", col, n)
			}
			if err := e.sessions.FlushDB(ctx); err != nil {
				return fmt.Errorf("flush redis: %w", err)
			}
			logger.Info("данные сброшены")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "подтверждение удаления")
	return cmd
}

// demoUsers — учётки для локальной разработки. Пароль у всех одинаковый.
var demoUsers = []struct {
	email, name, department string
	role                    model.Role
}{
	{"admin@minicorp.com", "Алиса Админова", "engineering", model.RoleAdmin},
	{"director@minicorp.com", "Дмитрий Директоров", "", model.RoleDirector},
	{"manager@minicorp.com", "Мария Менеджерова", "engineering", model.RoleManager},
	{"ivan@minicorp.com", "Иван Инженеров", "engineering", model.RoleEmployee},
	{"olga@minicorp.com", "Ольга Маркетологова", "marketing", model.RoleEmployee},
}

func seedCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Создаёт каналы по умолчанию и демо-пользователей",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := connect(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			users := repository.NewUserRepository(e.store)
			depts := repository.NewDepartmentRepository(e.store, users, e.cfg.Chat.MaxAttachmentBytes)
			if err := depts.Seed(ctx); err != nil {
				return fmt.Errorf("seed departments: %w", err)
			}
			logger.Info("каналы по умолчанию созданы")

			svc := auth.NewService(e.store, users, e.sessions, email.NewSender(&e.cfg.SMTP), e.cfg.Chat.EmailDomain)
			for _, d := range demoUsers {
				u, _, err := svc.SignUp(ctx, d.email, password, d.name, d.department)
				if err == auth.ErrEmailTaken {
					logger.Infof("%s уже существует, пропуск", d.email)
					continue
				}
				if err != nil {
					return fmt.Errorf("signup %s: %w", d.email, err)
				}
				if d.role != model.RoleEmployee {
					if err := users.SetRole(ctx, u.ID, d.role, d.department, nil); err != nil {
						return fmt.Errorf("set role %s: %w", d.email, err)
					}
				}
				logger.Infof("создан %s (%s)", d.email, d.role)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "demo-password-1", "пароль демо-пользователей")
	return cmd
}

func cleanupAccountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-account <user-id>",
		Short: "Запускает (или возобновляет) каскадную чистку аккаунта",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := connect(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			cleanup := repository.NewCleanupRepository(e.store, e.sessions)
			if err := cleanup.Run(ctx, args[0]); err != nil {
				return fmt.Errorf("cleanup %s: %w", args[0], err)
			}
			logger.Infof("аккаунт %s вычищен", args[0])
			return nil
		},
	}
}
