package stats

import (
	"encoding/json"
	"expvar"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// expvar names are process-global, so a single updater is shared by the
// assertions below.
func TestStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	su.Run()
	defer su.Stop()

	su.RegisterMetric(ActiveConnections)

	su.Incr(ActiveConnections)
	su.Incr(ActiveConnections)
	su.Decr(ActiveConnections)

	assert.Eventually(t, func() bool {
		return su.vars.Get(ActiveConnections).(*expvar.Int).Value() == 1
	}, time.Second, 10*time.Millisecond, "expected metric to settle at 1")

	req := httptest.NewRequest(http.MethodGet, "/debug/vars", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var vars map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&vars))
	assert.Equal(t, float64(1), vars[ActiveConnections])
	assert.Contains(t, vars, "Uptime")
}
