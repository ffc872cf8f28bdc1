// File: internal/scanengine/cli.go
package scanengine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/go-git/go-git/v5"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"

	"github.com/codeshield-25/codeshield-web/api/schemas"
	"github.com/codeshield-25/codeshield-web/internal/config"
)

// Cloner fetches a repository into dir.
type Cloner interface {
	Clone(ctx context.Context, url, dir string) error
}

// GitCloner clones with go-git, so no git binary is required.
type GitCloner struct {
	Depth int
	// Token authenticates clones of private GitHub repositories.
	Token string
}

func (g GitCloner) Clone(ctx context.Context, url, dir string) error {
	opts := &git.CloneOptions{
		URL:          url,
		Depth:        g.Depth,
		SingleBranch: true,
		Tags:         git.NoTags,
	}
	if g.Token != "" {
		opts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: g.Token}
	}
	if _, err := git.PlainCloneContext(ctx, dir, false, opts); err != nil {
		return fmt.Errorf("failed to clone %s: %w", url, err)
	}
	return nil
}

// CLIEngine runs the scan CLI against a fresh clone of the repository.
type CLIEngine struct {
	cfg    config.ScannerConfig
	cloner Cloner
	log    *zap.Logger
}

var _ schemas.ScanEngine = (*CLIEngine)(nil)

// NewCLIEngine creates a CLIEngine. The binary is resolved on PATH up front.
func NewCLIEngine(cfg config.ScannerConfig, cloner Cloner, logger *zap.Logger) (*CLIEngine, error) {
	path, err := exec.LookPath(cfg.Binary)
	if err != nil {
		return nil, fmt.Errorf("scan binary %q not found in PATH: %w", cfg.Binary, err)
	}
	cfg.Binary = path
	return &CLIEngine{
		cfg:    cfg,
		cloner: cloner,
		log:    logger.Named("cli_engine"),
	}, nil
}

// Args returns the CLI arguments for kind, excluding the target path.
func (e *CLIEngine) Args(kind schemas.ScanKind) ([]string, error) {
	switch kind {
	case schemas.ScanKindOpenSource:
		return append([]string{"test", "--json"}, e.cfg.OpenSourceArgs...), nil
	case schemas.ScanKindCodeSecurity:
		return append([]string{"code", "test", "--json"}, e.cfg.CodeSecurityArgs...), nil
	default:
		return nil, fmt.Errorf("unsupported scan kind %q", kind)
	}
}

// Scan clones the repository into a private workspace, runs the CLI and
// returns its JSON output. The workspace is always removed.
func (e *CLIEngine) Scan(ctx context.Context, req schemas.ScanRequest) ([]byte, error) {
	args, err := e.Args(req.Kind)
	if err != nil {
		return nil, err
	}
	return e.scan(ctx, args, req)
}

func (e *CLIEngine) scan(ctx context.Context, args []string, req schemas.ScanRequest) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	workspace, err := os.MkdirTemp(e.cfg.Workdir, "codeshield-"+string(req.Kind)+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			e.log.Warn("Failed to remove workspace", zap.String("dir", workspace), zap.Error(err))
		}
	}()

	repoDir := filepath.Join(workspace, "repo")
	if err := e.cloner.Clone(ctx, req.RepositoryURL, repoDir); err != nil {
		return nil, err
	}

	args = append(args, repoDir)
	e.log.Info("Running scan", zap.String("kind", string(req.Kind)), zap.String("repository", req.RepositoryURL))

	stdout, err := e.run(ctx, args)
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s scan timed out after %s: %w", req.Kind, e.cfg.Timeout, ctxErr)
		}
		return nil, ctxErr
	}
	// The CLI exits non-zero when it finds vulnerabilities; its JSON on
	// stdout is authoritative and validated by the caller.
	if len(bytes.TrimSpace(stdout)) > 0 {
		return stdout, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s scan produced no output: %w", req.Kind, err)
	}
	return nil, fmt.Errorf("%s scan produced no output", req.Kind)
}

// run executes the CLI, buffering stdout and streaming stderr to the log.
func (e *CLIEngine) run(ctx context.Context, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, e.cfg.Binary, args...)
	cmd.Env = os.Environ()
	if e.cfg.Token != "" {
		cmd.Env = append(cmd.Env, "SNYK_TOKEN="+e.cfg.Token)
	}

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to capture stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start command: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go e.monitorError(stderr, &wg)
	wg.Wait()

	err = cmd.Wait()
	return stdout.Bytes(), err
}

func (e *CLIEngine) monitorError(pipe io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		e.log.Debug("CLI Stderr", zap.String("line", scanner.Text()))
	}
}
