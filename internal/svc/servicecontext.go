// Package svc wires the service dependencies together so handlers take
// a single context instead of a parameter list.
package svc

import (
	"fmt"

	"github.com/uneezaismail/hackathon-todo-sub007/internal/agent/ai"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/agent/runner"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/agent/tools"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/config"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/db"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/logging"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/retention"
)

// ServiceContext bundles everything the handlers need.
type ServiceContext struct {
	Config   *config.Config
	Store    *db.Store
	Provider ai.Provider
	Tools    *tools.Registry
	Runner   *runner.Runner
	Sweeper  *retention.Sweeper
}

// NewServiceContext opens the database and builds the service graph.
// A missing provider key or auth secret does not stop construction;
// the readiness endpoint reports the gaps and the affected operations
// fail with configuration errors until they are filled in.
func NewServiceContext(cfg *config.Config) (*ServiceContext, error) {
	sqlDB, err := db.Open(cfg.Database.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	store := db.NewStore(sqlDB)

	registry, err := tools.NewRegistry(store, cfg.ToolTimeout())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build tool registry: %w", err)
	}

	provider, err := ai.NewProvider(cfg)
	if err != nil {
		logging.Warnf("provider unavailable: %v", err)
		provider = nil
	}

	return &ServiceContext{
		Config:   cfg,
		Store:    store,
		Provider: provider,
		Tools:    registry,
		Runner:   runner.New(cfg, store, provider, registry),
		Sweeper:  retention.NewSweeper(store, cfg.RetentionWindow(), cfg.SweepInterval()),
	}, nil
}

// ReadyErrors lists the configuration gaps that keep the service from
// serving its full surface. Empty means ready.
func (s *ServiceContext) ReadyErrors() []string {
	var out []string
	if s.Config.Auth.AccessSecret == "" {
		out = append(out, "auth secret not configured")
	}
	if s.Provider == nil {
		out = append(out, "model provider not configured")
	}
	if err := s.Store.DB().Ping(); err != nil {
		out = append(out, "database unavailable")
	}
	return out
}

// Close releases held resources.
func (s *ServiceContext) Close() {
	if s.Sweeper != nil {
		s.Sweeper.Stop()
	}
	if s.Store != nil {
		s.Store.Close()
	}
}
