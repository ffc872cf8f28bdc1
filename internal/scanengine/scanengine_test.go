package scanengine

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/codeshield-25/codeshield-web/api/schemas"
	"github.com/codeshield-25/codeshield-web/internal/config"
	"github.com/codeshield-25/codeshield-web/internal/results"
)

const fakeCLI = `#!/bin/sh
if [ "$SNYK_TOKEN" != "test-token" ]; then
  echo "Authentication failed" >&2
  exit 2
fi
if [ "$1" = "slow" ]; then
  exec sleep 5
fi
if [ "$1" = "code" ]; then
  echo '{"version":"2.1.0","runs":[{"results":[{"ruleId":"r","level":"error"}]}]}'
  exit 1
fi
echo '{"vulnerabilities":[{"severity":"high"},{"severity":"low"}]}'
exit 1
`

// stubCloner creates a placeholder checkout instead of cloning.
type stubCloner struct{ gotURL string }

func (s *stubCloner) Clone(_ context.Context, url, dir string) error {
	s.gotURL = url
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{}`), 0o644)
}

func newTestCLIEngine(t *testing.T, mutate func(*config.ScannerConfig)) (*CLIEngine, *stubCloner, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in for the scan CLI")
	}
	bin := filepath.Join(t.TempDir(), "snyk")
	require.NoError(t, os.WriteFile(bin, []byte(fakeCLI), 0o755))

	workdir := t.TempDir()
	cfg := config.ScannerConfig{
		Engine:  config.EngineCLI,
		Binary:  bin,
		Token:   "test-token",
		Timeout: 10 * time.Second,
		Workdir: workdir,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	cloner := &stubCloner{}
	e, err := NewCLIEngine(cfg, cloner, zap.NewNop())
	require.NoError(t, err)
	return e, cloner, workdir
}

func TestCLIEngine_Scan(t *testing.T) {
	ctx := context.Background()

	t.Run("vulnerabilities found is not a failure", func(t *testing.T) {
		e, cloner, workdir := newTestCLIEngine(t, nil)
		out, err := e.Scan(ctx, schemas.ScanRequest{RepositoryURL: "https://github.com/acme/app", Kind: schemas.ScanKindOpenSource})
		require.NoError(t, err)
		assert.Equal(t, "https://github.com/acme/app", cloner.gotURL)

		r, err := results.DecodeOpenSource(out)
		require.NoError(t, err)
		assert.Equal(t, schemas.SeverityBucket{High: 1, Low: 1}, results.OpenSourceBucket(r))

		entries, err := os.ReadDir(workdir)
		require.NoError(t, err)
		assert.Empty(t, entries, "workspace must be removed")
	})

	t.Run("code scan", func(t *testing.T) {
		e, _, _ := newTestCLIEngine(t, nil)
		out, err := e.Scan(ctx, schemas.ScanRequest{RepositoryURL: "https://github.com/acme/app", Kind: schemas.ScanKindCodeSecurity})
		require.NoError(t, err)

		r, err := results.DecodeCodeSecurity(out)
		require.NoError(t, err)
		assert.Equal(t, schemas.SeverityBucket{High: 1}, results.CodeSecurityBucket(r))
	})

	t.Run("no output is a failure", func(t *testing.T) {
		e, _, _ := newTestCLIEngine(t, func(c *config.ScannerConfig) { c.Token = "" })
		_, err := e.Scan(ctx, schemas.ScanRequest{RepositoryURL: "https://github.com/acme/app", Kind: schemas.ScanKindOpenSource})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "produced no output")
	})

	t.Run("timeout", func(t *testing.T) {
		e, _, workdir := newTestCLIEngine(t, func(c *config.ScannerConfig) {
			c.Timeout = 200 * time.Millisecond
		})
		_, err := e.scan(ctx, []string{"slow"}, schemas.ScanRequest{RepositoryURL: "https://github.com/acme/app", Kind: schemas.ScanKindOpenSource})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Contains(t, err.Error(), "timed out")

		entries, err := os.ReadDir(workdir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("unsupported kind", func(t *testing.T) {
		e, _, _ := newTestCLIEngine(t, nil)
		_, err := e.Scan(ctx, schemas.ScanRequest{Kind: "iac"})
		assert.ErrorContains(t, err, "unsupported scan kind")
	})
}

func TestCLIEngine_Args(t *testing.T) {
	e, _, _ := newTestCLIEngine(t, func(c *config.ScannerConfig) {
		c.OpenSourceArgs = []string{"--all-projects"}
		c.CodeSecurityArgs = []string{"--severity-threshold=low"}
	})

	args, err := e.Args(schemas.ScanKindOpenSource)
	require.NoError(t, err)
	assert.Equal(t, []string{"test", "--json", "--all-projects"}, args)

	args, err = e.Args(schemas.ScanKindCodeSecurity)
	require.NoError(t, err)
	assert.Equal(t, []string{"code", "test", "--json", "--severity-threshold=low"}, args)
}

func TestNewCLIEngine_MissingBinary(t *testing.T) {
	_, err := NewCLIEngine(config.ScannerConfig{Binary: "codeshield-no-such-binary"}, &stubCloner{}, zap.NewNop())
	assert.ErrorContains(t, err, "not found in PATH")
}

func TestGitCloner_LocalRepository(t *testing.T) {
	src := t.TempDir()
	repo, err := git.PlainInit(src, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(src, "go.mod"), []byte("module example.com/app\n"), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("go.mod")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "dev", Email: "dev@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "checkout")
	require.NoError(t, GitCloner{}.Clone(context.Background(), src, dst))

	data, err := os.ReadFile(filepath.Join(dst, "go.mod"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "example.com/app")
}

func TestGitCloner_Failure(t *testing.T) {
	err := GitCloner{Depth: 1}.Clone(context.Background(), filepath.Join(t.TempDir(), "missing"), t.TempDir()+"/dst")
	assert.ErrorContains(t, err, "failed to clone")
}

func TestRemoteEngine_Scan(t *testing.T) {
	t.Run("posts the request and returns the body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			body, _ := io.ReadAll(r.Body)
			var req map[string]string
			require.NoError(t, jsoniter.Unmarshal(body, &req))
			assert.Equal(t, "https://github.com/acme/app", req["repoUrl"])
			assert.Equal(t, "code_security", req["scanType"])
			_, _ = w.Write([]byte(`{"runs":[]}`))
		}))
		defer srv.Close()

		e := NewRemoteEngine(srv.URL+"/scan", srv.Client(), zap.NewNop())
		out, err := e.Scan(context.Background(), schemas.ScanRequest{
			RepositoryURL: "https://github.com/acme/app",
			Kind:          schemas.ScanKindCodeSecurity,
		})
		require.NoError(t, err)
		assert.JSONEq(t, `{"runs":[]}`, string(out))
	})

	t.Run("non-2xx is a failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"Failed to scan repository."}`))
		}))
		defer srv.Close()

		_, err := NewRemoteEngine(srv.URL, nil, zap.NewNop()).Scan(context.Background(), schemas.ScanRequest{Kind: schemas.ScanKindOpenSource})
		assert.ErrorContains(t, err, "status 500")
	})

	t.Run("unreachable service", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewRemoteEngine(url, nil, zap.NewNop()).Scan(context.Background(), schemas.ScanRequest{Kind: schemas.ScanKindOpenSource})
		assert.ErrorContains(t, err, "unreachable")
	})
}

func TestNew_SelectsEngine(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.ScannerCfg.Engine = config.EngineRemote
	cfg.ScannerCfg.RemoteURL = "http://localhost:3000/scan"

	engine, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &RemoteEngine{}, engine)

	cfg.ScannerCfg.Engine = config.EngineCLI
	cfg.ScannerCfg.Binary = "codeshield-no-such-binary"
	_, err = New(cfg, zap.NewNop())
	assert.Error(t, err)

	cfg.ScannerCfg.Engine = "carrier-pigeon"
	_, err = New(cfg, zap.NewNop())
	assert.ErrorContains(t, err, "unknown scan engine")
}
