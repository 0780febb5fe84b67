package cdnsift

import (
	"context"
	"hash/fnv"
	"net/netip"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/cdnsift/cdnsift/data"
)

// Granularity is one prefix length at which sources are rolled up into
// network blocks during aggregation.
type Granularity struct {
	Group string
	Bits  int
}

// The two rollup granularities tracked per address family. These are
// descriptive statistics granularities and are independent of the single
// grouping granularity the advisor uses for block suggestions.
var (
	IPv4Granularities = []Granularity{{"IPv4/24", 24}, {"IPv4/16", 16}}
	IPv6Granularities = []Granularity{{"IPv6/64", 64}, {"IPv6/48", 48}}
)

// Snapshot is a read-only view of all accumulated statistics. It must only
// be taken once ingestion for the run is complete; the maps are shared with
// the aggregator, not copied.
type Snapshot struct {
	Sources  map[string]*data.SourceStats
	Networks map[data.NetworkKey]*data.NetworkStats
}

// Clone returns a deep copy of the snapshot that shares nothing with the
// aggregator, safe to hold on to while ingestion continues.
func (s *Snapshot) Clone() *Snapshot {
	c := &Snapshot{
		Sources:  make(map[string]*data.SourceStats, len(s.Sources)),
		Networks: make(map[data.NetworkKey]*data.NetworkStats, len(s.Networks)),
	}
	for source, stats := range s.Sources {
		c.Sources[source] = stats.Clone()
	}
	for key, stats := range s.Networks {
		c.Networks[key] = stats.Clone()
	}
	return c
}

// Aggregator accumulates per-source and per-network statistics from
// decoded log records. It applies no judgment; scoring happens later over
// a completed snapshot.
type Aggregator struct {
	sources  map[string]*data.SourceStats
	networks map[data.NetworkKey]*data.NetworkStats
	records  int64

	mutex sync.Mutex
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		sources:  make(map[string]*data.SourceStats),
		networks: make(map[data.NetworkKey]*data.NetworkStats),
	}
}

// Ingest applies a single record. The source-level statistics are always
// updated; the network rollups only when the source parses as an IP
// address. A record is applied as a unit and never fails halfway.
func (a *Aggregator) Ingest(r data.Record) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.records++
	a.sourceFor(r.Source).AddRequest(r)

	addr, err := netip.ParseAddr(r.Source)
	if err != nil {
		log.Tracef("skipping network rollup for unparseable source %q", r.Source)
		return
	}
	addr = addr.Unmap()

	for _, g := range granularitiesFor(addr) {
		prefix, err := addr.Prefix(g.Bits)
		if err != nil {
			continue
		}
		key := data.NetworkKey{Group: g.Group, CIDR: prefix.String()}
		a.networkFor(key).AddMemberRequest(r.Source, r.Bytes)
	}
}

// sourceFor returns the statistics entry for a source address, creating a
// zero-initialized one on first sight. The caller must hold the mutex.
func (a *Aggregator) sourceFor(source string) *data.SourceStats {
	s, ok := a.sources[source]
	if !ok {
		s = data.NewSourceStats(source)
		a.sources[source] = s
	}
	return s
}

// networkFor returns the statistics entry for a network key, creating a
// zero-initialized one on first sight. The caller must hold the mutex.
func (a *Aggregator) networkFor(key data.NetworkKey) *data.NetworkStats {
	n, ok := a.networks[key]
	if !ok {
		n = data.NewNetworkStats(key.CIDR)
		a.networks[key] = n
	}
	return n
}

// granularitiesFor selects the rollup granularities for an address family.
// 4-in-6 mapped addresses count as IPv4.
func granularitiesFor(addr netip.Addr) []Granularity {
	if addr.Is4() || addr.Is4In6() {
		return IPv4Granularities
	}
	return IPv6Granularities
}

// MergeFrom folds the statistics of another aggregator into this one.
// The merge is associative and commutative, which makes sharded parallel
// ingestion safe: shards accumulate lock-free and are merged pairwise at
// the end.
func (a *Aggregator) MergeFrom(other *Aggregator) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	other.mutex.Lock()
	defer other.mutex.Unlock()

	a.records += other.records

	for source, stats := range other.sources {
		if mine, ok := a.sources[source]; ok {
			mine.MergeWith(stats)
		} else {
			a.sources[source] = stats
		}
	}

	for key, stats := range other.networks {
		if mine, ok := a.networks[key]; ok {
			mine.MergeWith(stats)
		} else {
			a.networks[key] = stats
		}
	}
}

// Snapshot returns the current statistics maps. Call it only once
// ingestion for the run is done; scoring against a still-mutating
// aggregator is not defined.
func (a *Aggregator) Snapshot() *Snapshot {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return &Snapshot{
		Sources:  a.sources,
		Networks: a.networks,
	}
}

// Records returns the number of records ingested so far.
func (a *Aggregator) Records() int64 {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.records
}

// Summary computes run totals and per-source averages. An empty run yields
// an all-zero summary.
func (a *Aggregator) Summary() data.Summary {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	s := data.Summary{Sources: len(a.sources)}
	for _, stats := range a.sources {
		s.Requests += stats.Requests
		s.Bytes += stats.Bytes
	}

	if s.Sources > 0 {
		s.AvgRequestsPerSource = float64(s.Requests) / float64(s.Sources)
		s.AvgBytesPerSource = float64(s.Bytes) / float64(s.Sources)
	}

	return s
}

// IngestAll drains a record channel into a fresh aggregator, fanning out
// to per-shard aggregators keyed by a hash of the source address so the
// hot loop runs without lock contention. Cancelling the context stops the
// fan-out between records and returns the merged state accumulated so far,
// which is always consistent.
func IngestAll(ctx context.Context, records <-chan data.Record, shards int) *Aggregator {
	if shards <= 1 {
		agg := NewAggregator()
		for r := range records {
			select {
			case <-ctx.Done():
				return agg
			default:
			}
			agg.Ingest(r)
		}
		return agg
	}

	chans := make([]chan data.Record, shards)
	aggs := make([]*Aggregator, shards)
	var wg sync.WaitGroup

	for i := 0; i < shards; i++ {
		chans[i] = make(chan data.Record, 1024)
		aggs[i] = NewAggregator()
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for r := range chans[i] {
				aggs[i].Ingest(r)
			}
		}(i)
	}

DISPATCH:
	for r := range records {
		select {
		case <-ctx.Done():
			break DISPATCH
		default:
		}
		h := fnv.New32a()
		h.Write([]byte(r.Source))
		chans[h.Sum32()%uint32(shards)] <- r
	}

	for _, c := range chans {
		close(c)
	}
	wg.Wait()

	merged := aggs[0]
	for _, shard := range aggs[1:] {
		merged.MergeFrom(shard)
	}

	return merged
}
