package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestRecordResolutionIncrementsLabelledCounter(t *testing.T) {
	before := testutil.ToFloat64(resolutionCounter.WithLabelValues("reject", "noop"))
	RecordResolution("reject", "noop")
	after := testutil.ToFloat64(resolutionCounter.WithLabelValues("reject", "noop"))
	require.InDelta(t, before+1, after, 0.0001)
}

func TestRecordScanCompletedIgnoresZeroTime(t *testing.T) {
	ts := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	RecordScanCompleted(ts)
	RecordScanCompleted(time.Time{})

	var metric dto.Metric
	require.NoError(t, lastScanGauge.Write(&metric))
	require.Equal(t, float64(ts.Unix()), metric.GetGauge().GetValue())
}

func TestRecordStaleFlagsSkipsNonPositive(t *testing.T) {
	before := testutil.ToFloat64(staleFlagCounter)
	RecordStaleFlags(0)
	RecordStaleFlags(2)
	require.InDelta(t, before+2, testutil.ToFloat64(staleFlagCounter), 0.0001)
}
