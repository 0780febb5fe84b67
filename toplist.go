package cdnsift

import (
	"sort"

	"github.com/cdnsift/cdnsift/data"
)

// TopSourcesByRequests returns up to limit sources ordered by descending
// request count. Sources are visited in sorted address order first so ties
// rank deterministically.
func TopSourcesByRequests(snap *Snapshot, limit int) []*data.SourceStats {
	return topSources(snap, limit, func(a, b *data.SourceStats) bool {
		return a.Requests > b.Requests
	})
}

// TopSourcesByBytes returns up to limit sources ordered by descending
// byte total.
func TopSourcesByBytes(snap *Snapshot, limit int) []*data.SourceStats {
	return topSources(snap, limit, func(a, b *data.SourceStats) bool {
		return a.Bytes > b.Bytes
	})
}

func topSources(snap *Snapshot, limit int, less func(a, b *data.SourceStats) bool) []*data.SourceStats {
	all := make([]*data.SourceStats, 0, len(snap.Sources))
	for _, source := range sortedSources(snap.Sources) {
		all = append(all, snap.Sources[source])
	}

	sort.SliceStable(all, func(i, j int) bool {
		return less(all[i], all[j])
	})

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}

	return all
}

// TopNetworks returns up to limit network rollups ordered by member count,
// request count breaking ties.
func TopNetworks(snap *Snapshot, limit int) []*data.NetworkRiskAssessment {
	all := make([]*data.NetworkRiskAssessment, 0, len(snap.Networks))
	for _, key := range sortedNetworkKeys(snap.Networks) {
		all = append(all, &data.NetworkRiskAssessment{Key: key, Stats: snap.Networks[key]})
	}

	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i].Stats, all[j].Stats
		if a.MemberCount != b.MemberCount {
			return a.MemberCount > b.MemberCount
		}
		return a.Requests > b.Requests
	})

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}

	return all
}
