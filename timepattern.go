package cdnsift

import (
	"time"

	"github.com/emirpasic/gods/maps/treemap"

	"github.com/cdnsift/cdnsift/data"
)

// TimePatterns describes how the run's traffic distributes over the hours
// of the day and over calendar days. The treemaps keep the keys ordered so
// the report can iterate chronologically.
type TimePatterns struct {
	HourOfDay *treemap.Map // int (0-23) -> int64
	Daily     *treemap.Map // "YYYYMMDD" -> int64
}

// ComputeTimePatterns folds every source's hourly histogram into the two
// distributions. Buckets that do not parse are skipped; they can only come
// from a corrupted snapshot.
func ComputeTimePatterns(snap *Snapshot) *TimePatterns {
	tp := &TimePatterns{
		HourOfDay: treemap.NewWithIntComparator(),
		Daily:     treemap.NewWithStringComparator(),
	}

	for _, stats := range snap.Sources {
		for bucket, count := range stats.HourBuckets {
			t, err := time.Parse(data.HourBucketLayout, bucket)
			if err != nil {
				continue
			}

			hour := t.Hour()
			var n int64
			if v, ok := tp.HourOfDay.Get(hour); ok {
				n = v.(int64)
			}
			tp.HourOfDay.Put(hour, n+count)

			day := t.Format("20060102")
			n = 0
			if v, ok := tp.Daily.Get(day); ok {
				n = v.(int64)
			}
			tp.Daily.Put(day, n+count)
		}
	}

	return tp
}

// HourCount is one entry of an ordered distribution.
type HourCount struct {
	Key      string `json:"key"`
	Requests int64  `json:"requests"`
}

// HourOfDayCounts returns the hour-of-day distribution in chronological
// order, for the API.
func (tp *TimePatterns) HourOfDayCounts() []HourCount {
	out := make([]HourCount, 0, tp.HourOfDay.Size())
	iter := tp.HourOfDay.Iterator()
	for iter.Next() {
		out = append(out, HourCount{
			Key:      time.Date(0, 1, 1, iter.Key().(int), 0, 0, 0, time.UTC).Format("15:00"),
			Requests: iter.Value().(int64),
		})
	}
	return out
}

// DailyCounts returns the per-day distribution in chronological order.
func (tp *TimePatterns) DailyCounts() []HourCount {
	out := make([]HourCount, 0, tp.Daily.Size())
	iter := tp.Daily.Iterator()
	for iter.Next() {
		out = append(out, HourCount{
			Key:      iter.Key().(string),
			Requests: iter.Value().(int64),
		})
	}
	return out
}
