package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRegisterWithoutConflict(t *testing.T) {
	var reg = prometheus.NewRegistry()
	for _, c := range AtlasCollectors() {
		require.NoError(t, reg.Register(c))
	}

	var before = testutil.ToFloat64(ShardsExtractedTotal.WithLabelValues(Ok))
	ShardsExtractedTotal.WithLabelValues(Ok).Inc()
	require.Equal(t, before+1, testutil.ToFloat64(ShardsExtractedTotal.WithLabelValues(Ok)))
}
