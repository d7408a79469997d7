package metrics_test

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/warp/restitution-engine/core"
	"github.com/warp/restitution-engine/metrics"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", metrics.Outcome(nil))
	assert.Equal(t, "insufficient_credits", metrics.Outcome(&core.InsufficientCreditsError{}))
	assert.Equal(t, "invalid_input", metrics.Outcome(core.Invalid("bills", "empty")))
	assert.Equal(t, "data_unavailable", metrics.Outcome(fmt.Errorf("%w: selic", core.ErrDataUnavailable)))
	assert.Equal(t, "error", metrics.Outcome(fmt.Errorf("disk full")))
}

func TestGranted(t *testing.T) {
	before := testutil.ToFloat64(metrics.CreditsGranted.WithLabelValues(string(core.KindPurchase)))
	metrics.Granted(core.KindPurchase, 5)
	after := testutil.ToFloat64(metrics.CreditsGranted.WithLabelValues(string(core.KindPurchase)))
	assert.Equal(t, 5.0, after-before)
}
