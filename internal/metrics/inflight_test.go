// SPDX-License-Identifier: MIT

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackInflight(t *testing.T) {
	before := testutil.ToFloat64(resolutionsInflight)

	done := TrackInflight()
	assert.Equal(t, before+1, testutil.ToFloat64(resolutionsInflight))
	done()

	var m dto.Metric
	require.NoError(t, resolutionsInflight.Write(&m))
	assert.Equal(t, before, m.GetGauge().GetValue())
}

func TestIncCacheLookup(t *testing.T) {
	hits := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit"))
	IncCacheLookup(true)
	assert.Equal(t, hits+1, testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit")))
}
