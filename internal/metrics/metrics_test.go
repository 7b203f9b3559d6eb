package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeline(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPipeline(reg)
	require.NoError(t, err)

	p.Processed("upload", OutcomeSuccess)
	p.Processed("upload", OutcomeSuccess)
	p.Processed("url", OutcomeFailure)
	p.ObserveUpload("cloudinary", 120*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(p.processed.WithLabelValues("upload", OutcomeSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.processed.WithLabelValues("url", OutcomeFailure)))
	assert.Equal(t, 1, testutil.CollectAndCount(p.uploadDuration))
}

func TestPipeline_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPipeline(reg)
	require.NoError(t, err)

	_, err = NewPipeline(reg)
	assert.Error(t, err)
}

func TestPipeline_Nil(t *testing.T) {
	var p *Pipeline
	assert.NotPanics(t, func() {
		p.Processed("upload", OutcomeSuccess)
		p.ObserveUpload("minio", time.Second)
	})
}
