package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := New()
	r.ObserveBatch("diff", ResultOK, 10*time.Millisecond)
	r.ObserveBatch("diff", ResultPartial, time.Millisecond)
	r.ObserveOperation("delete", nil)
	r.ObserveOperation("delete", errors.New("locked"))
	r.ObserveOperation("delete", nil)
	r.ObserveMutation("grade", ResultReverted)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.batches.WithLabelValues("diff", ResultOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.operations.WithLabelValues("delete", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.operations.WithLabelValues("delete", ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.mutations.WithLabelValues("grade", ResultReverted)))

	var b strings.Builder
	require.NoError(t, r.WriteText(&b))
	assert.Contains(t, b.String(), "curator_batches_total")
	assert.Contains(t, b.String(), "curator_batch_duration_seconds_bucket")
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.ObserveBatch("diff", ResultOK, time.Second)
	r.ObserveOperation("create", nil)
	r.ObserveMutation("grade", ResultConfirmed)
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.WriteText(&strings.Builder{}))
}
