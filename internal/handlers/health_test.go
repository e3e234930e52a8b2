package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/csahub/internal/app"
	"github.com/charlesng35/csahub/internal/handlers/testutil"
)

func TestHealthEndpoints(t *testing.T) {
	env := testutil.NewEnv(t)

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		w := env.Get(path)
		require.Equal(t, http.StatusOK, w.Code, path)
		payload := testutil.DecodeMap(t, w)
		require.Equal(t, true, payload["success"], path)
		require.Equal(t, "up", payload["status"], path)
	}

	ready := testutil.DecodeMap(t, env.Get("/health/ready"))
	checks, ok := ready["checks"].([]any)
	require.True(t, ok)
	require.Len(t, checks, 1)
	require.Equal(t, "database", checks[0].(map[string]any)["component"])
}

func TestHealthDisabled(t *testing.T) {
	env := testutil.NewEnv(t, func(cfg *app.Config) {
		cfg.Monitoring.Health.Enabled = false
	})

	w := env.Get("/health")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "disabled", testutil.DecodeMap(t, w)["status"])
}
