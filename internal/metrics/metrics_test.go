package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObservePrediction(t *testing.T) {
	before := testutil.ToFloat64(PredictionsTotal.WithLabelValues("upload", "ok"))
	beforeLabel := testutil.ToFloat64(TopLabelTotal.WithLabelValues("boxelder"))

	ObservePrediction("upload", "ok", "boxelder", 20*time.Millisecond)
	ObservePrediction("upload", "invalid_image", "", time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(PredictionsTotal.WithLabelValues("upload", "ok")))
	assert.Equal(t, beforeLabel+1, testutil.ToFloat64(TopLabelTotal.WithLabelValues("boxelder")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(PredictionsTotal.WithLabelValues("upload", "invalid_image")), 1.0)
}
