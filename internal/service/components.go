// File: internal/service/components.go
package service

import (
	"go.uber.org/zap"

	"github.com/codeshield-25/codeshield-web/api/schemas"
	"github.com/codeshield-25/codeshield-web/internal/advisor"
	"github.com/codeshield-25/codeshield-web/internal/config"
	"github.com/codeshield-25/codeshield-web/internal/observability"
	"github.com/codeshield-25/codeshield-web/internal/orchestrator"
	"github.com/codeshield-25/codeshield-web/internal/reconcile"
	"github.com/codeshield-25/codeshield-web/internal/teams"
)

// Components holds the initialized services shared by the CLI and the HTTP
// backend, and owns their lifecycle.
type Components struct {
	Config     config.Interface
	Store      schemas.TeamStore
	Engine     schemas.ScanEngine
	Reconciler *reconcile.Reconciler
	Teams      *teams.Service
	Sessions   *orchestrator.Registry

	// LLM and Advisor are nil when no model is configured.
	LLM     schemas.LLMClient
	Advisor *advisor.Advisor

	logger     *zap.Logger
	closeStore func()
}

// NewSession creates a standalone scan session, outside of the registry.
func (c *Components) NewSession() (*orchestrator.Orchestrator, error) {
	logger := c.logger
	if logger == nil {
		logger = observability.GetLogger()
	}
	return orchestrator.New(c.Config.Session(), logger, c.Engine, c.Reconciler)
}

// Shutdown releases every component: sessions first so no scan reconciles
// into a closed store.
func (c *Components) Shutdown() {
	logger := c.logger
	if logger == nil {
		logger = observability.GetLogger()
	}
	logger.Debug("Beginning components shutdown sequence.")

	if c.Sessions != nil {
		c.Sessions.CloseAll()
		logger.Debug("Scan sessions closed.")
	}

	if c.LLM != nil {
		if err := c.LLM.Close(); err != nil {
			logger.Warn("Error closing LLM client.", zap.Error(err))
		}
	}

	if c.closeStore != nil {
		c.closeStore()
		logger.Debug("Team store closed.")
	}

	logger.Info("All components shut down.")
}
