package cdnsift

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdnsift/cdnsift/data"
)

func testRecord(source string, t time.Time) data.Record {
	return data.Record{
		Time:      t,
		Source:    source,
		Domain:    "cdn.example.com",
		Path:      "/assets/app.js",
		Status:    200,
		Bytes:     1024,
		UserAgent: "Mozilla/5.0",
	}
}

func fakeRecords(n int) []data.Record {
	gofakeit.Seed(42)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	records := make([]data.Record, n)
	for i := range records {
		records[i] = data.Record{
			Time:      base.Add(time.Duration(gofakeit.Number(0, 72)) * time.Hour),
			Source:    gofakeit.IPv4Address(),
			Domain:    gofakeit.DomainName(),
			Path:      "/" + gofakeit.Word(),
			Status:    gofakeit.HTTPStatusCode(),
			Bytes:     int64(gofakeit.Number(100, 100000)),
			UserAgent: gofakeit.UserAgent(),
		}
	}
	return records
}

func TestIngestAccumulatesSourceStats(t *testing.T) {
	agg := NewAggregator()

	base := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)
	agg.Ingest(testRecord("203.0.113.10", base))
	agg.Ingest(testRecord("203.0.113.10", base.Add(90*time.Minute)))

	snap := agg.Snapshot()
	require.Len(t, snap.Sources, 1)

	s := snap.Sources["203.0.113.10"]
	assert.Equal(t, int64(2), s.Requests)
	assert.Equal(t, int64(2048), s.Bytes)
	assert.Equal(t, base, s.FirstSeen)
	assert.Equal(t, base.Add(90*time.Minute), s.LastSeen)
	assert.Equal(t, 2, s.ActiveHours())
	assert.Len(t, s.Paths, 1)
}

func TestIngestNetworkRollupGranularities(t *testing.T) {
	agg := NewAggregator()
	now := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)

	agg.Ingest(testRecord("203.0.113.10", now))
	agg.Ingest(testRecord("2001:db8:abcd:12::1", now))

	snap := agg.Snapshot()

	// one record updates exactly two rollups for its family, never four
	require.Len(t, snap.Networks, 4)

	v24 := snap.Networks[data.NetworkKey{Group: "IPv4/24", CIDR: "203.0.113.0/24"}]
	require.NotNil(t, v24)
	assert.Equal(t, 1, v24.MemberCount)
	assert.Equal(t, int64(1), v24.Requests)

	v16 := snap.Networks[data.NetworkKey{Group: "IPv4/16", CIDR: "203.0.0.0/16"}]
	require.NotNil(t, v16)

	v64 := snap.Networks[data.NetworkKey{Group: "IPv6/64", CIDR: "2001:db8:abcd:12::/64"}]
	require.NotNil(t, v64)

	v48 := snap.Networks[data.NetworkKey{Group: "IPv6/48", CIDR: "2001:db8:abcd::/48"}]
	require.NotNil(t, v48)
}

func TestIngestUnparseableSourceSkipsOnlyNetworks(t *testing.T) {
	agg := NewAggregator()

	agg.Ingest(testRecord("not-an-address", time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)))

	snap := agg.Snapshot()
	assert.Len(t, snap.Sources, 1)
	assert.Empty(t, snap.Networks)
}

func TestMemberCountIgnoresRepeatAddresses(t *testing.T) {
	agg := NewAggregator()
	now := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		agg.Ingest(testRecord("203.0.113.10", now))
	}
	agg.Ingest(testRecord("203.0.113.11", now))

	nets := agg.Snapshot().Networks
	v24 := nets[data.NetworkKey{Group: "IPv4/24", CIDR: "203.0.113.0/24"}]
	require.NotNil(t, v24)

	assert.Equal(t, 2, v24.MemberCount)
	assert.Equal(t, len(v24.Members), v24.MemberCount)
	assert.Equal(t, int64(11), v24.Requests)
}

func TestConservationInvariant(t *testing.T) {
	agg := NewAggregator()
	for _, r := range fakeRecords(5000) {
		agg.Ingest(r)
	}

	for source, s := range agg.Snapshot().Sources {
		var statusSum, hourSum int64
		for _, n := range s.StatusCodes {
			statusSum += n
		}
		for _, n := range s.HourBuckets {
			hourSum += n
		}
		assert.Equal(t, s.Requests, statusSum, "status histogram of %s", source)
		assert.Equal(t, s.Requests, hourSum, "hour histogram of %s", source)
	}
}

func TestShardedIngestMatchesSequential(t *testing.T) {
	records := fakeRecords(5000)

	sequential := NewAggregator()
	for _, r := range records {
		sequential.Ingest(r)
	}

	feed := make(chan data.Record, len(records))
	for _, r := range records {
		feed <- r
	}
	close(feed)
	sharded := IngestAll(context.Background(), feed, 8)

	assert.Equal(t, sequential.Summary(), sharded.Summary())
	assert.Equal(t, sequential.Snapshot().Sources, sharded.Snapshot().Sources)
	assert.Equal(t, sequential.Snapshot().Networks, sharded.Snapshot().Networks)
}

func TestMergeFromIsCommutative(t *testing.T) {
	records := fakeRecords(2000)

	left := NewAggregator()
	right := NewAggregator()
	leftB := NewAggregator()
	rightB := NewAggregator()

	for i, r := range records {
		if i%2 == 0 {
			left.Ingest(r)
			leftB.Ingest(r)
		} else {
			right.Ingest(r)
			rightB.Ingest(r)
		}
	}

	left.MergeFrom(right)
	rightB.MergeFrom(leftB)

	assert.Equal(t, left.Snapshot().Sources, rightB.Snapshot().Sources)
	assert.Equal(t, left.Snapshot().Networks, rightB.Snapshot().Networks)
}

func TestSummaryAverages(t *testing.T) {
	agg := NewAggregator()
	now := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		agg.Ingest(testRecord(fmt.Sprintf("203.0.113.%d", i), now))
		agg.Ingest(testRecord(fmt.Sprintf("203.0.113.%d", i), now))
	}

	s := agg.Summary()
	assert.Equal(t, 4, s.Sources)
	assert.Equal(t, int64(8), s.Requests)
	assert.Equal(t, 2.0, s.AvgRequestsPerSource)
	assert.Equal(t, 2048.0, s.AvgBytesPerSource)
}

func TestSummaryEmptyRun(t *testing.T) {
	agg := NewAggregator()

	assert.Equal(t, data.Summary{}, agg.Summary())
	assert.Empty(t, agg.Snapshot().Sources)
	assert.Empty(t, agg.Snapshot().Networks)
}

func TestTimePatternsOrdered(t *testing.T) {
	agg := NewAggregator()

	agg.Ingest(testRecord("203.0.113.10", time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)))
	agg.Ingest(testRecord("203.0.113.10", time.Date(2025, 6, 1, 17, 0, 0, 0, time.UTC)))
	agg.Ingest(testRecord("203.0.113.11", time.Date(2025, 6, 1, 17, 30, 0, 0, time.UTC)))

	tp := ComputeTimePatterns(agg.Snapshot())

	daily := tp.DailyCounts()
	require.Len(t, daily, 2)
	assert.Equal(t, "20250601", daily[0].Key)
	assert.Equal(t, int64(2), daily[0].Requests)
	assert.Equal(t, "20250602", daily[1].Key)

	hours := tp.HourOfDayCounts()
	require.Len(t, hours, 2)
	assert.Equal(t, "09:00", hours[0].Key)
	assert.Equal(t, "17:00", hours[1].Key)
	assert.Equal(t, int64(2), hours[1].Requests)
}
