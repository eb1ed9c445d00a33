package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergentlabs/agentsim/internal/config"
	"github.com/emergentlabs/agentsim/internal/dispatch"
	"github.com/emergentlabs/agentsim/internal/loopmanager"
	"github.com/emergentlabs/agentsim/internal/logging"
	"github.com/emergentlabs/agentsim/internal/metrics"
	"github.com/emergentlabs/agentsim/internal/permission"
	"github.com/emergentlabs/agentsim/internal/world"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	registry := world.NewIDRegistry()
	store := world.NewArtifactStore(registry)
	ledger := world.NewLedger()
	rt := world.NewRateTracker(nil)
	evlog, err := world.NewEventLog(world.EventLogConfig{})
	require.NoError(t, err)
	perms := permission.NewRegistry(config.DefaultAllow)
	validator := dispatch.NewArgumentValidator(config.ValidationNone, nil)
	m := metrics.New(prometheus.NewRegistry())

	d := dispatch.New(store, ledger, rt, evlog, perms, validator, nil,
		config.ExecutorConfig{MaxInvokeDepth: 3},
		config.SystemPromptConfig{MaxSizeBytes: 1024, ProtectedPrefixChars: 8},
		logging.NewDefault("test"), m)

	lm := loopmanager.New(store, d, ledger, evlog, loopmanager.NewMemoryQueue(0),
		func(a *world.Artifact) (loopmanager.ThinkFunc, loopmanager.WantsLLM) { return nil, nil },
		0, 0, logging.NewDefault("test"), m)

	return NewServer(config.HTTPConfig{Addr: ":0", RatePerSecond: 1000, RateBurst: 1000}, evlog, d, lm, logging.NewDefault("test"))
}

func TestServer_HealthzAlwaysLive(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ReadyzReflectsSetReady(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s.SetReady(true)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_AdminRouteRequiresJWT(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/loops", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code) // no admin key configured
}

func TestServer_EventsTailReturnsEmptyBuffer(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events/tail", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
