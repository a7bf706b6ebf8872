package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasic(t *testing.T) {
	var b Basic
	b.RecordSave("log", 10, 2, time.Second)
	b.RecordGet("log", 3, time.Millisecond, nil)
	b.RecordGet("log", 0, time.Millisecond, errors.New("miss"))
	b.RecordCommit("log", 0, nil)
	b.RecordCompact("log", 0, errors.New("busy"))

	assert.Equal(t, int64(8), b.SavedDocs.Load())
	assert.Equal(t, int64(2), b.FailedDocs.Load())
	assert.Equal(t, int64(3), b.GotDocs.Load())
	assert.Equal(t, int64(1), b.GetErrors.Load())
	assert.Equal(t, int64(1), b.Commits.Load())
	assert.Equal(t, int64(1), b.CompactErrors.Load())
	assert.InDelta(t, 8.0, b.SaveThroughput(), 0.001)
}

func TestPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus("docstore", reg)
	require.NoError(t, err)

	p.RecordSave("cursor", 3, 0, time.Millisecond)
	p.RecordSave("cursor", 2, 2, time.Millisecond)
	p.RecordGet("cursor", 1, time.Millisecond, nil)

	assert.Equal(t, 3.0, testutil.ToFloat64(p.docs.WithLabelValues("cursor", "save")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.failures.WithLabelValues("cursor", "save")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.docs.WithLabelValues("cursor", "get")))

	_, err = NewPrometheus("docstore", reg)
	assert.Error(t, err, "duplicate registration")
}

func TestFanout(t *testing.T) {
	var a, b Basic
	f := Fanout{&a, &b, Noop{}}
	f.RecordSave("log", 4, 1, time.Millisecond)
	f.RecordGet("log", 2, time.Millisecond, nil)
	f.RecordCommit("log", time.Millisecond, nil)
	f.RecordCompact("log", time.Millisecond, nil)

	for _, c := range []*Basic{&a, &b} {
		assert.Equal(t, int64(3), c.SavedDocs.Load())
		assert.Equal(t, int64(2), c.GotDocs.Load())
		assert.Equal(t, int64(1), c.Commits.Load())
		assert.Equal(t, int64(1), c.Compactions.Load())
	}
}
