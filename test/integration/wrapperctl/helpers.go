package wrapperctl

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slok/wrapperctl/test/integration/testutils"
)

// Config holds integration test configuration loaded from environment variables.
type Config struct {
	Binary string
}

func (c *Config) defaults() error {
	// go test changes the CWD to the package directory, relative paths would break.
	if !filepath.IsAbs(c.Binary) {
		return fmt.Errorf("WRAPPERCTL_INTEGRATION_BINARY must be an absolute path, got %q", c.Binary)
	}
	if _, err := os.Stat(c.Binary); err != nil {
		return fmt.Errorf("wrapperctl binary not found at %q: %w", c.Binary, err)
	}
	return nil
}

// NewConfig loads integration test configuration from environment variables.
// If the config is invalid or the activation env var is not set, the test is skipped.
func NewConfig(t *testing.T) Config {
	t.Helper()

	const (
		envActivation = "WRAPPERCTL_INTEGRATION"
		envBinary     = "WRAPPERCTL_INTEGRATION_BINARY"
	)

	if os.Getenv(envActivation) != "true" {
		t.Skipf("Skipping integration test: %s is not set to 'true'", envActivation)
	}

	c := Config{Binary: os.Getenv(envBinary)}
	if err := c.defaults(); err != nil {
		t.Skipf("Skipping due to invalid config: %s", err)
	}

	return c
}

// Env is an isolated environment: its own journal and development backend.
type Env struct {
	Config Config
	Vars   []string
	Dir    string
}

// NewEnv starts a development backend with `wrapperctl serve` and returns the
// env vars pointing the commands to it and to a temporary journal.
func NewEnv(t *testing.T, cfg Config, serveArgs ...string) Env {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	dir := t.TempDir()
	vars := []string{
		"WRAPPERCTL_DB_PATH=" + filepath.Join(dir, "wrapperctl.db"),
		"WRAPPERCTL_BACKEND_URL=http://" + addr,
		"WRAPPERCTL_POLL_INTERVAL=10ms",
	}

	ctx, cancel := context.WithCancel(context.Background())
	args := append([]string{"serve", "--listen", addr}, serveArgs...)
	cmd, err := testutils.StartWrapperctl(ctx, vars, cfg.Binary, args)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		_ = cmd.Wait()
	})

	waitHealthy(t, "http://"+addr+"/healthcheck")

	return Env{Config: cfg, Vars: vars, Dir: dir}
}

// Run runs a wrapperctl command on the environment.
func (e Env) Run(ctx context.Context, args ...string) (stdout, stderr []byte, err error) {
	return testutils.RunWrapperctlArgs(ctx, e.Vars, e.Config.Binary, args, true)
}

// WriteFile writes a file inside the environment dir and returns its path.
func (e Env) WriteFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.Dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func waitHealthy(t *testing.T, url string) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 50*time.Millisecond, "development backend didn't become healthy")
}
