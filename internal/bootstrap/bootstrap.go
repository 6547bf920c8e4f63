// Package bootstrap builds the service graph shared by the API server and
// the operator CLI from loaded configuration.
package bootstrap

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lever-lab/backend/internal/cache"
	"github.com/lever-lab/backend/internal/cache/redis"
	"github.com/lever-lab/backend/internal/chat"
	"github.com/lever-lab/backend/internal/llm"
	"github.com/lever-lab/backend/internal/query"
	"github.com/lever-lab/backend/internal/simulation"
	"github.com/lever-lab/backend/internal/storage/postgres"
	"github.com/lever-lab/backend/internal/storage/repo"
	"github.com/lever-lab/backend/internal/storage/sqlite"
	"github.com/lever-lab/backend/internal/timeline"
	"github.com/lever-lab/backend/pkg/config"
	"github.com/lever-lab/backend/pkg/logger"
)

type Services struct {
	DB         *sql.DB
	Repo       *repo.Repository
	Cache      cache.Cache
	Memory     *cache.Memory // nil unless the memory backend is in use
	LLM        *llm.Client
	Pipeline   *chat.Pipeline
	Aligner    *timeline.Aligner
	Calculator *simulation.Calculator

	closers []func() error
}

func New(cfg *config.Config) (*Services, error) {
	s := &Services{}

	if err := s.openDatabase(cfg.Database); err != nil {
		s.Close()
		return nil, err
	}
	s.Repo = repo.New(s.DB)

	if err := s.openCache(cfg); err != nil {
		s.Close()
		return nil, err
	}

	s.LLM = llm.NewClient(cfg.LLM)
	s.Aligner = timeline.NewAligner(s.Repo)
	s.Calculator = simulation.NewCalculator(s.Repo)

	executor := query.NewExecutor(s.DB, time.Duration(cfg.Database.QueryTimeoutSec)*time.Second)
	s.Pipeline = chat.NewPipeline(s.LLM, executor, s.Cache, s.Repo, chat.Options{
		ContextTurns: cfg.Chat.ContextTurns,
		CacheTTL:     time.Duration(cfg.Cache.TTLSec) * time.Second,
		Model:        s.LLM.Model(),
	})

	return s, nil
}

func (s *Services) openDatabase(cfg config.DatabaseConfig) error {
	switch cfg.Driver {
	case "sqlite3", "sqlite", "":
		client, err := sqlite.NewClient(cfg.DSN)
		if err != nil {
			return fmt.Errorf("failed to create SQLite client: %w", err)
		}
		s.closers = append(s.closers, client.Close)
		s.DB = client.DB()

		if cfg.InitSchema {
			if err := client.InitSchema(); err != nil {
				return fmt.Errorf("failed to initialize schema: %w", err)
			}
			if err := client.SeedDemo(); err != nil {
				return fmt.Errorf("failed to seed demo data: %w", err)
			}
		}

	case "pgx", "postgres":
		client, err := postgres.NewClient(cfg.DSN, cfg.MaxOpenConns)
		if err != nil {
			return fmt.Errorf("failed to create PostgreSQL client: %w", err)
		}
		s.closers = append(s.closers, client.Close)
		s.DB = client.DB()

	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	logger.Info("Database ready", zap.String("driver", cfg.Driver))
	return nil
}

func (s *Services) openCache(cfg *config.Config) error {
	switch cfg.Cache.Backend {
	case "redis":
		client, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("failed to create Redis cache: %w", err)
		}
		s.closers = append(s.closers, client.Close)
		s.Cache = client

	case "memory", "":
		s.Memory = cache.NewMemory()
		s.Cache = s.Memory

	default:
		return fmt.Errorf("unsupported cache backend %q", cfg.Cache.Backend)
	}

	logger.Info("Query cache ready", zap.String("backend", cfg.Cache.Backend))
	return nil
}

// Close releases resources in reverse order of acquisition.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Warn("Failed to close resource", zap.Error(err))
		}
	}
	s.closers = nil
}
