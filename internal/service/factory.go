// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/codeshield-25/codeshield-web/internal/advisor"
	"github.com/codeshield-25/codeshield-web/internal/config"
	"github.com/codeshield-25/codeshield-web/internal/orchestrator"
	"github.com/codeshield-25/codeshield-web/internal/reconcile"
	"github.com/codeshield-25/codeshield-web/internal/scanengine"
)

// ComponentFactory creates the set of components needed by a command. The
// abstraction keeps command logic testable.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct{}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// Create handles dependency injection and initialization of every component.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	c := &Components{Config: cfg, logger: logger}

	// Release whatever was built if a later step fails.
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			c.Shutdown()
		}
	}()

	// 1. Store
	st, cleanup, err := InitializeStore(ctx, cfg.Database(), logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	c.Store = st
	c.closeStore = cleanup

	// 2. Scan engine
	engine, err := scanengine.New(cfg, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize scan engine: %w", err)
		return nil, initializationErr
	}
	c.Engine = engine
	logger.Debug("Scan engine initialized.", zap.String("engine", cfg.Scanner().Engine))

	// 3. Reconciler and teams
	c.Reconciler = reconcile.New(st, logger)
	c.Teams, err = InitializeTeams(st, cfg.GitHub(), logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}

	// 4. LLM (optional)
	llm, err := InitializeLLMClient(ctx, cfg.LLM(), logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	if llm != nil {
		c.LLM = llm
		c.Advisor = advisor.New(logger, llm)
	}

	// 5. Session registry
	sessionCfg := cfg.Session()
	c.Sessions = orchestrator.NewRegistry(c.NewSession, logger,
		orchestrator.WithMaxSessions(sessionCfg.MaxSessions),
		orchestrator.WithIdleTimeout(sessionCfg.IdleTimeout),
	)

	logger.Info("Components initialized.")
	return c, nil
}
