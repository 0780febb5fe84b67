package cdnsift

import (
	"net/netip"
	"sort"
	"strings"

	"github.com/cdnsift/cdnsift/data"
)

// Source-level scoring thresholds.
const (
	highRequestCount         = 10000
	highHourlyRate           = 3000.0
	hourlySpikeCount         = 5000
	highTrafficBytes         = 1000 * 1024 * 1024 // 1000 MiB
	pathDiversityMinRequests = 100
	lowPathDiversityRatio    = 0.1
	timeConcentrationRatio   = 0.8
	narrowWindowMinRequests  = 1000
	narrowWindowMaxHours     = 2
	highErrorRateRatio       = 0.5

	suspiciousMinScore   = 30.0
	suspiciousMinReasons = 3
)

// Network-level scoring thresholds.
const (
	largeMemberCount         = 50
	elevatedMemberCount      = 20
	highAvgRequestsPerMember = 5000.0
	highNetworkBytes         = 10 * 1024 * 1024 * 1024 // 10 GiB
	coordinatedMinMembers    = 10
	coordinatedAvgRequests   = 10000.0

	suspiciousNetworkMinScore = 25.0
)

// suspiciousAgentPatterns is the fixed list of automation markers matched
// case-insensitively as substrings against every distinct user agent.
var suspiciousAgentPatterns = []string{
	"python", "curl", "wget", "bot", "spider", "crawler",
	"scraper", "scanner", "test", "monitor",
}

// sourceRule is one independent scoring rule. delta returns the score
// contribution, 0 when the rule does not apply. Rules are evaluated in
// table order and their contributions summed; no rule short-circuits
// another.
type sourceRule struct {
	reason string
	delta  func(s *data.SourceStats, b Baseline) float64
}

// sourceRules mirrors the heuristic rule table. The order is fixed so the
// floating-point summation order, and with it every score, is
// deterministic.
var sourceRules = []sourceRule{
	{"high request volume", func(s *data.SourceStats, b Baseline) float64 {
		if s.Requests > highRequestCount {
			return 30
		}
		return 0
	}},
	{"extreme request volume (>P99)", func(s *data.SourceStats, b Baseline) float64 {
		if float64(s.Requests) > b.Requests.P99 {
			return 40
		}
		return 0
	}},
	{"high hourly rate", func(s *data.SourceStats, b Baseline) float64 {
		if s.RequestsPerHour() > highHourlyRate {
			return 25
		}
		return 0
	}},
	{"hourly spike", func(s *data.SourceStats, b Baseline) float64 {
		if s.PeakHourly() > hourlySpikeCount {
			return 35
		}
		return 0
	}},
	{"high traffic volume", func(s *data.SourceStats, b Baseline) float64 {
		if s.Bytes > highTrafficBytes {
			return 20
		}
		return 0
	}},
	{"extreme traffic volume (>P99)", func(s *data.SourceStats, b Baseline) float64 {
		if float64(s.Bytes) > b.Bytes.P99 {
			return 35
		}
		return 0
	}},
	{"low path diversity", func(s *data.SourceStats, b Baseline) float64 {
		if s.Requests > pathDiversityMinRequests &&
			float64(len(s.Paths))/float64(s.Requests) < lowPathDiversityRatio {
			return 15
		}
		return 0
	}},
	{"suspicious user agents", func(s *data.SourceStats, b Baseline) float64 {
		if n := suspiciousAgentCount(s); n > 0 {
			return float64(10 + n*5)
		}
		return 0
	}},
	{"time-concentrated", func(s *data.SourceStats, b Baseline) float64 {
		if len(s.HourBuckets) > 1 && s.Requests > 0 &&
			float64(s.PeakHourly())/float64(s.Requests) > timeConcentrationRatio {
			return 20
		}
		return 0
	}},
	{"narrow active window", func(s *data.SourceStats, b Baseline) float64 {
		if s.Requests > narrowWindowMinRequests && s.ActiveHours() <= narrowWindowMaxHours {
			return 25
		}
		return 0
	}},
	{"high error rate", func(s *data.SourceStats, b Baseline) float64 {
		if errorRate(s) > highErrorRateRatio {
			return 15
		}
		return 0
	}},
}

func suspiciousAgentCount(s *data.SourceStats) int {
	count := 0
	for ua := range s.UserAgents {
		lower := strings.ToLower(ua)
		for _, pattern := range suspiciousAgentPatterns {
			if strings.Contains(lower, pattern) {
				count++
				break
			}
		}
	}
	return count
}

func errorRate(s *data.SourceStats) float64 {
	errors := s.StatusCodes[404] + s.StatusCodes[403] + s.StatusCodes[500]
	requests := s.Requests
	if requests < 1 {
		requests = 1
	}
	return float64(errors) / float64(requests)
}

// networkRule is one independent network scoring rule.
type networkRule struct {
	reason string
	delta  func(n *data.NetworkStats) float64
}

var networkRules = []networkRule{
	{"many member addresses", func(n *data.NetworkStats) float64 {
		if n.MemberCount >= largeMemberCount {
			return 40
		}
		return 0
	}},
	{"elevated member addresses", func(n *data.NetworkStats) float64 {
		if n.MemberCount >= elevatedMemberCount && n.MemberCount < largeMemberCount {
			return 20
		}
		return 0
	}},
	{"high average request volume", func(n *data.NetworkStats) float64 {
		if avgRequestsPerMember(n) > highAvgRequestsPerMember {
			return 30
		}
		return 0
	}},
	{"high traffic volume", func(n *data.NetworkStats) float64 {
		if n.Bytes > highNetworkBytes {
			return 25
		}
		return 0
	}},
	{"coordinated traffic", func(n *data.NetworkStats) float64 {
		if n.MemberCount > coordinatedMinMembers &&
			float64(n.Requests)/float64(n.MemberCount) > coordinatedAvgRequests {
			return 20
		}
		return 0
	}},
}

func avgRequestsPerMember(n *data.NetworkStats) float64 {
	members := n.MemberCount
	if members < 1 {
		members = 1
	}
	return float64(n.Requests) / float64(members)
}

// Scorer evaluates the heuristic rule tables against a completed snapshot.
// Scoring is a pure function of the snapshot: running it twice produces
// identical output, including tie order.
type Scorer struct {
	whitelist *Whitelist
}

// NewScorer creates a Scorer. The whitelist may be nil; a non-nil
// whitelist prevents its sources from ever being flagged.
func NewScorer(whitelist *Whitelist) *Scorer {
	return &Scorer{whitelist: whitelist}
}

// ScoreSources computes the baseline percentiles and applies the source
// rule table to every source in the snapshot. Sources are visited in
// sorted address order so ties keep a deterministic rank. The result
// contains only the suspicious sources, sorted by descending score.
func (sc *Scorer) ScoreSources(snap *Snapshot) []*data.RiskAssessment {
	baseline := computeBaseline(snap.Sources)
	suspicious := make([]*data.RiskAssessment, 0)

	for _, source := range sortedSources(snap.Sources) {
		stats := snap.Sources[source]
		if sc.isWhitelisted(source, stats) {
			continue
		}

		score, reasons := scoreSource(stats, baseline)

		if suspiciousSource(score, len(reasons)) {
			suspicious = append(suspicious, &data.RiskAssessment{
				Source:  source,
				Score:   score,
				Reasons: reasons,
				Stats:   stats,
			})
		}
	}

	sort.SliceStable(suspicious, func(i, j int) bool {
		return suspicious[i].Score > suspicious[j].Score
	})

	return suspicious
}

// Baseline exposes the percentile cutoffs for a snapshot, for reporting.
func (sc *Scorer) Baseline(snap *Snapshot) Baseline {
	return computeBaseline(snap.Sources)
}

// suspiciousSource is the classification predicate: a source is flagged
// when its score reaches the minimum or enough independent rules matched.
func suspiciousSource(score float64, reasonCount int) bool {
	return score >= suspiciousMinScore || reasonCount >= suspiciousMinReasons
}

func scoreSource(s *data.SourceStats, b Baseline) (float64, []string) {
	var score float64
	reasons := make([]string, 0)

	for _, rule := range sourceRules {
		if delta := rule.delta(s, b); delta > 0 {
			score += delta
			reasons = append(reasons, rule.reason)
		}
	}

	return score, reasons
}

// ScoreNetworks applies the network rule table to every rollup entry in
// the snapshot and returns the suspicious ones sorted by descending score.
func (sc *Scorer) ScoreNetworks(snap *Snapshot) []*data.NetworkRiskAssessment {
	suspicious := make([]*data.NetworkRiskAssessment, 0)

	for _, key := range sortedNetworkKeys(snap.Networks) {
		stats := snap.Networks[key]

		var score float64
		reasons := make([]string, 0)
		for _, rule := range networkRules {
			if delta := rule.delta(stats); delta > 0 {
				score += delta
				reasons = append(reasons, rule.reason)
			}
		}

		if score >= suspiciousNetworkMinScore {
			suspicious = append(suspicious, &data.NetworkRiskAssessment{
				Key:     key,
				Score:   score,
				Reasons: reasons,
				Stats:   stats,
			})
		}
	}

	sort.SliceStable(suspicious, func(i, j int) bool {
		return suspicious[i].Score > suspicious[j].Score
	})

	return suspicious
}

// isWhitelisted exempts a source when its address matches an IP or CIDR
// rule, or when one of its user agents matches a useragent rule.
func (sc *Scorer) isWhitelisted(source string, stats *data.SourceStats) bool {
	if sc.whitelist == nil {
		return false
	}

	if addr, err := netip.ParseAddr(source); err == nil {
		if ok, _ := sc.whitelist.Contains(addr); ok {
			return true
		}
	}

	for ua := range stats.UserAgents {
		if ok, _ := sc.whitelist.MatchesAgent(ua); ok {
			return true
		}
	}

	return false
}

// sortedSources returns the snapshot's source addresses in a fixed order.
// Map iteration order is random in Go; sorting here is what makes scoring
// runs reproducible.
func sortedSources(sources map[string]*data.SourceStats) []string {
	keys := make([]string, 0, len(sources))
	for source := range sources {
		keys = append(keys, source)
	}
	sort.Strings(keys)
	return keys
}

func sortedNetworkKeys(networks map[data.NetworkKey]*data.NetworkStats) []data.NetworkKey {
	keys := make([]data.NetworkKey, 0, len(networks))
	for key := range networks {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Group != keys[j].Group {
			return keys[i].Group < keys[j].Group
		}
		return keys[i].CIDR < keys[j].CIDR
	})
	return keys
}
