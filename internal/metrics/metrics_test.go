package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDroppedSamples(t *testing.T) {
	before := testutil.ToFloat64(droppedSamples.WithLabelValues("fl/drive"))

	RecordDroppedSamples("fl/drive", 3)
	RecordDroppedSamples("fl/drive", 0)

	assert.Equal(t, before+3, testutil.ToFloat64(droppedSamples.WithLabelValues("fl/drive")))
}

func TestRecordConfigExhausted(t *testing.T) {
	before := testutil.ToFloat64(configExhausted.WithLabelValues("drive-1", "apply"))

	RecordConfigExhausted("drive-1", "apply")

	assert.Equal(t, before+1, testutil.ToFloat64(configExhausted.WithLabelValues("drive-1", "apply")))
}

func TestRecordDroppedRecords(t *testing.T) {
	before := testutil.ToFloat64(droppedRecords)

	RecordDroppedRecords(5)
	RecordDroppedRecords(-1)

	assert.Equal(t, before+5, testutil.ToFloat64(droppedRecords))
}

func TestSetConnected(t *testing.T) {
	SetConnected("front_left", "drive", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(connected.WithLabelValues("front_left", "drive")))

	SetConnected("front_left", "drive", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(connected.WithLabelValues("front_left", "drive")))
}

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	Register()
	Register()
	RecordOdometryPass()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "swervectl_odometry_passes_total"))
}
