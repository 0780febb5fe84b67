package cdnsift

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdnsift/cdnsift/config"
	"github.com/cdnsift/cdnsift/data"
)

func testAnalyzer(t *testing.T) *Analyzer {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := config.Default()
	a, err := New(ctx, &cfg)
	require.NoError(t, err)
	return a
}

func TestAnalysisDoesNotAliasLiveStatistics(t *testing.T) {
	a := testAnalyzer(t)

	at := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)
	first := testRecord("203.0.113.10", at)
	a.HandleRecord(&first)

	analysis := a.Analyze()
	published := analysis.Snapshot.Sources["203.0.113.10"]
	require.NotNil(t, published)
	require.Equal(t, int64(1), published.Requests)
	require.Len(t, published.HourBuckets, 1)

	// ingestion continues after the analysis is published
	second := testRecord("203.0.113.10", at.Add(3*time.Hour))
	second.Status = 404
	a.HandleRecord(&second)
	third := testRecord("203.0.113.11", at)
	a.HandleRecord(&third)

	// the published analysis is frozen
	assert.Equal(t, int64(1), published.Requests)
	assert.Len(t, published.HourBuckets, 1)
	assert.NotContains(t, published.StatusCodes, 404)
	assert.Len(t, analysis.Snapshot.Sources, 1)

	// while the live statistics moved on
	live := a.aggregator.Snapshot()
	assert.Equal(t, int64(2), live.Sources["203.0.113.10"].Requests)
	assert.Len(t, live.Sources, 2)

	// a fresh run sees the new state
	assert.Equal(t, int64(2), a.Analyze().Snapshot.Sources["203.0.113.10"].Requests)
}

func TestAnalyzeEmptyRun(t *testing.T) {
	a := testAnalyzer(t)

	analysis := a.Analyze()

	assert.Zero(t, analysis.Summary.Requests)
	assert.Empty(t, analysis.SuspiciousSources)
	assert.Empty(t, analysis.SuspiciousNetworks)
	assert.Empty(t, analysis.Plan.ImmediateBlock)
	assert.Empty(t, analysis.Plan.MonitorClosely)
	assert.Empty(t, analysis.Plan.NetworkBlocks)
	assert.Same(t, analysis, a.Latest())
}

func TestSnapshotCloneIsDeep(t *testing.T) {
	agg := NewAggregator()
	at := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)
	agg.Ingest(testRecord("203.0.113.10", at))

	clone := agg.Snapshot().Clone()
	agg.Ingest(testRecord("203.0.113.10", at.Add(time.Hour)))
	agg.Ingest(testRecord("198.51.100.1", at))

	assert.Equal(t, int64(1), clone.Sources["203.0.113.10"].Requests)
	assert.Len(t, clone.Sources["203.0.113.10"].HourBuckets, 1)
	assert.Len(t, clone.Sources, 1)

	key := data.NetworkKey{Group: "IPv4/24", CIDR: "203.0.113.0/24"}
	assert.Equal(t, 1, clone.Networks[key].MemberCount)
	assert.Equal(t, int64(1), clone.Networks[key].Requests)
}
