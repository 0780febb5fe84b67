package data

import "time"

// HourBucketLayout is the time layout used for the hourly request histogram.
const HourBucketLayout = "2006010215"

// SourceStats holds the accumulated traffic statistics for a single source
// address. All counters only ever grow; one AddRequest call per record.
type SourceStats struct {
	Source      string              `json:"source"`
	Requests    int64               `json:"requests"`
	Bytes       int64               `json:"bytes"`
	Paths       map[string]struct{} `json:"-"`
	UserAgents  map[string]struct{} `json:"-"`
	Domains     map[string]struct{} `json:"-"`
	StatusCodes map[int]int64       `json:"status_codes"`
	HourBuckets map[string]int64    `json:"hour_buckets"`
	FirstSeen   time.Time           `json:"first_seen"`
	LastSeen    time.Time           `json:"last_seen"`
}

// NewSourceStats creates an empty statistics entry for a source address.
func NewSourceStats(source string) *SourceStats {
	return &SourceStats{
		Source:      source,
		Paths:       make(map[string]struct{}),
		UserAgents:  make(map[string]struct{}),
		Domains:     make(map[string]struct{}),
		StatusCodes: make(map[int]int64),
		HourBuckets: make(map[string]int64),
	}
}

// AddRequest applies one record to the statistics.
func (s *SourceStats) AddRequest(r Record) {
	s.Requests++
	s.Bytes += r.Bytes
	s.Paths[r.Path] = struct{}{}
	s.UserAgents[r.UserAgent] = struct{}{}
	s.Domains[r.Domain] = struct{}{}
	s.StatusCodes[r.Status]++
	s.HourBuckets[r.Time.Format(HourBucketLayout)]++

	if s.FirstSeen.IsZero() || r.Time.Before(s.FirstSeen) {
		s.FirstSeen = r.Time
	}
	if s.LastSeen.IsZero() || r.Time.After(s.LastSeen) {
		s.LastSeen = r.Time
	}
}

// MergeWith folds another statistics entry for the same source into this one.
// The operation is associative and commutative: counters add, sets union,
// first/last seen take min/max, histograms add per key.
func (s *SourceStats) MergeWith(o *SourceStats) {
	s.Requests += o.Requests
	s.Bytes += o.Bytes
	for p := range o.Paths {
		s.Paths[p] = struct{}{}
	}
	for ua := range o.UserAgents {
		s.UserAgents[ua] = struct{}{}
	}
	for d := range o.Domains {
		s.Domains[d] = struct{}{}
	}
	for code, n := range o.StatusCodes {
		s.StatusCodes[code] += n
	}
	for bucket, n := range o.HourBuckets {
		s.HourBuckets[bucket] += n
	}
	if s.FirstSeen.IsZero() || (!o.FirstSeen.IsZero() && o.FirstSeen.Before(s.FirstSeen)) {
		s.FirstSeen = o.FirstSeen
	}
	if o.LastSeen.After(s.LastSeen) {
		s.LastSeen = o.LastSeen
	}
}

// Clone returns a deep copy that shares no maps with the original.
func (s *SourceStats) Clone() *SourceStats {
	c := &SourceStats{
		Source:      s.Source,
		Requests:    s.Requests,
		Bytes:       s.Bytes,
		Paths:       make(map[string]struct{}, len(s.Paths)),
		UserAgents:  make(map[string]struct{}, len(s.UserAgents)),
		Domains:     make(map[string]struct{}, len(s.Domains)),
		StatusCodes: make(map[int]int64, len(s.StatusCodes)),
		HourBuckets: make(map[string]int64, len(s.HourBuckets)),
		FirstSeen:   s.FirstSeen,
		LastSeen:    s.LastSeen,
	}
	for p := range s.Paths {
		c.Paths[p] = struct{}{}
	}
	for ua := range s.UserAgents {
		c.UserAgents[ua] = struct{}{}
	}
	for d := range s.Domains {
		c.Domains[d] = struct{}{}
	}
	for code, n := range s.StatusCodes {
		c.StatusCodes[code] = n
	}
	for bucket, n := range s.HourBuckets {
		c.HourBuckets[bucket] = n
	}
	return c
}

// RequestsPerHour returns the request rate over the active time span.
// The span is clamped to a minimum of one hour; an entry that has never
// seen a timestamp has a rate of zero.
func (s *SourceStats) RequestsPerHour() float64 {
	if s.FirstSeen.IsZero() || s.LastSeen.IsZero() {
		return 0.0
	}

	hours := s.LastSeen.Sub(s.FirstSeen).Hours()
	if hours < 1 {
		hours = 1
	}

	return float64(s.Requests) / hours
}

// PeakHourly returns the request count of the busiest hour bucket.
func (s *SourceStats) PeakHourly() int64 {
	var peak int64
	for _, n := range s.HourBuckets {
		if n > peak {
			peak = n
		}
	}
	return peak
}

// ActiveHours returns the number of distinct hour buckets with traffic.
func (s *SourceStats) ActiveHours() int {
	return len(s.HourBuckets)
}

// NetworkKey identifies one network rollup entry: the granularity group
// (e.g. "IPv4/24") plus the CIDR in canonical form.
type NetworkKey struct {
	Group string `json:"group"`
	CIDR  string `json:"cidr"`
}

// NetworkStats holds the accumulated statistics for one network block at
// one granularity. MemberCount is derived from the member set on every
// insertion so repeated addresses never inflate it.
type NetworkStats struct {
	Network     string              `json:"network"`
	Members     map[string]struct{} `json:"-"`
	MemberCount int                 `json:"member_count"`
	Requests    int64               `json:"requests"`
	Bytes       int64               `json:"bytes"`
}

// NewNetworkStats creates an empty statistics entry for a network block.
func NewNetworkStats(network string) *NetworkStats {
	return &NetworkStats{
		Network: network,
		Members: make(map[string]struct{}),
	}
}

// AddMemberRequest records one request from a member address.
func (n *NetworkStats) AddMemberRequest(source string, bytes int64) {
	n.Members[source] = struct{}{}
	n.MemberCount = len(n.Members)
	n.Requests++
	n.Bytes += bytes
}

// Clone returns a deep copy that shares no maps with the original.
func (n *NetworkStats) Clone() *NetworkStats {
	c := &NetworkStats{
		Network:     n.Network,
		Members:     make(map[string]struct{}, len(n.Members)),
		MemberCount: n.MemberCount,
		Requests:    n.Requests,
		Bytes:       n.Bytes,
	}
	for m := range n.Members {
		c.Members[m] = struct{}{}
	}
	return c
}

// MergeWith folds another entry for the same network into this one.
func (n *NetworkStats) MergeWith(o *NetworkStats) {
	for m := range o.Members {
		n.Members[m] = struct{}{}
	}
	n.MemberCount = len(n.Members)
	n.Requests += o.Requests
	n.Bytes += o.Bytes
}

// Summary describes one completed aggregation run.
type Summary struct {
	Sources              int     `json:"sources"`
	Requests             int64   `json:"requests"`
	Bytes                int64   `json:"bytes"`
	AvgRequestsPerSource float64 `json:"avg_requests_per_source"`
	AvgBytesPerSource    float64 `json:"avg_bytes_per_source"`
}
