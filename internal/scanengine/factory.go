package scanengine

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/codeshield-25/codeshield-web/api/schemas"
	"github.com/codeshield-25/codeshield-web/internal/config"
)

// New builds the engine selected by configuration.
func New(cfg config.Interface, logger *zap.Logger) (schemas.ScanEngine, error) {
	sc := cfg.Scanner()
	switch sc.Engine {
	case config.EngineCLI:
		cloner := GitCloner{Depth: sc.CloneDepth, Token: cfg.GitHub().Token}
		return NewCLIEngine(sc, cloner, logger)
	case config.EngineRemote:
		client := &http.Client{Timeout: sc.Timeout}
		return NewRemoteEngine(sc.RemoteURL, client, logger), nil
	default:
		return nil, fmt.Errorf("unknown scan engine %q", sc.Engine)
	}
}
