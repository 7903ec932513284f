//go:build integration

package integration_tests

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tessera/internal/config"
	"github.com/conneroisu/tessera/internal/logging"
	"github.com/conneroisu/tessera/internal/registry"
	"github.com/conneroisu/tessera/internal/scanner"
	"github.com/conneroisu/tessera/internal/server"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Components int       `json:"components"`
	Clients    int       `json:"clients"`
}

func writeDefinition(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// startServer runs a watching preview server over dir on a free port and
// waits until it reports the expected number of components.
func startServer(t *testing.T, dir string, components int) (*server.PreviewServer, string) {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = freePort(t)
	cfg.Components.ScanPaths = []string{dir}

	reg := registry.NewComponentRegistry()
	scan := scanner.NewComponentScanner(reg,
		scanner.WithReplace(true),
		scanner.WithExtensions(cfg.Components.Extensions...))
	srv, err := server.New(cfg, reg, scan, logging.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()
	t.Cleanup(func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
		cancel()
		<-errCh
	})

	base := fmt.Sprintf("http://%s", cfg.Address())
	waitForHealthy(t, base, components)
	return srv, base
}

func waitForHealthy(t *testing.T, base string, components int) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var health HealthResponse
		if json.NewDecoder(resp.Body).Decode(&health) != nil {
			return false
		}
		return health.Status == "healthy" && health.Components == components
	}, 10*time.Second, 50*time.Millisecond)
}
