package cdnsift

import (
	"fmt"
	"net/netip"
	"sort"

	"github.com/cdnsift/cdnsift/data"
)

// Severity tiers and action list caps.
const (
	highRiskMinScore   = 60.0
	mediumRiskMinScore = 30.0

	immediateBlockCap = 20
	monitorCloselyCap = 30
)

// The single grouping granularity per family used for whole-block
// suggestions, with its member threshold. Deliberately separate from the
// aggregation granularities: a /24 suggestion group and a /24 rollup are
// different concerns that happen to share a prefix length.
const (
	blockGroupBitsIPv4 = 24
	blockGroupBitsIPv6 = 64

	blockGroupMinIPv4 = 3
	blockGroupMinIPv6 = 5
)

// Advisor turns a ranked suspicious-source list into a concrete block and
// monitor plan.
type Advisor struct{}

// NewAdvisor creates an Advisor.
func NewAdvisor() *Advisor {
	return &Advisor{}
}

// Plan partitions the suspicious sources into severity tiers, caps the
// actionable lists, and suggests whole network blocks when enough
// high-tier sources share one. Sources that qualified as suspicious only
// by reason count stay in the total but belong to neither tier.
func (ad *Advisor) Plan(suspicious []*data.RiskAssessment) *data.BlockPlan {
	high := make([]*data.RiskAssessment, 0)
	medium := make([]*data.RiskAssessment, 0)

	for _, sa := range suspicious {
		switch {
		case sa.Score >= highRiskMinScore:
			high = append(high, sa)
		case sa.Score >= mediumRiskMinScore:
			medium = append(medium, sa)
		}
	}

	plan := &data.BlockPlan{
		ImmediateBlock: make([]string, 0, immediateBlockCap),
		MonitorClosely: make([]string, 0, monitorCloselyCap),
		NetworkBlocks:  make(map[string]string),
		Stats: data.BlockPlanStats{
			TotalSuspicious: len(suspicious),
			HighRisk:        len(high),
			MediumRisk:      len(medium),
		},
	}

	for _, sa := range high {
		if len(plan.ImmediateBlock) == immediateBlockCap {
			break
		}
		plan.ImmediateBlock = append(plan.ImmediateBlock, sa.Source)
	}

	for _, sa := range medium {
		if len(plan.MonitorClosely) == monitorCloselyCap {
			break
		}
		plan.MonitorClosely = append(plan.MonitorClosely, sa.Source)
	}

	v4Groups, v6Groups := groupHighRisk(high)
	for _, cidr := range sortedGroupKeys(v4Groups) {
		if n := v4Groups[cidr]; n >= blockGroupMinIPv4 {
			plan.NetworkBlocks[cidr] = fmt.Sprintf("%d high-risk sources", n)
			plan.Stats.SuggestedIPv4Networks++
		}
	}
	for _, cidr := range sortedGroupKeys(v6Groups) {
		if n := v6Groups[cidr]; n >= blockGroupMinIPv6 {
			plan.NetworkBlocks[cidr] = fmt.Sprintf("%d high-risk sources", n)
			plan.Stats.SuggestedIPv6Networks++
		}
	}

	return plan
}

// groupHighRisk counts high-tier sources per containing block at the fixed
// grouping granularity of their family. Unparseable sources are skipped;
// they were already handled at the source level.
func groupHighRisk(high []*data.RiskAssessment) (v4, v6 map[string]int) {
	v4 = make(map[string]int)
	v6 = make(map[string]int)

	for _, sa := range high {
		addr, err := netip.ParseAddr(sa.Source)
		if err != nil {
			continue
		}
		addr = addr.Unmap()

		if addr.Is4() {
			if prefix, err := addr.Prefix(blockGroupBitsIPv4); err == nil {
				v4[prefix.String()]++
			}
		} else {
			if prefix, err := addr.Prefix(blockGroupBitsIPv6); err == nil {
				v6[prefix.String()]++
			}
		}
	}

	return v4, v6
}

func sortedGroupKeys(groups map[string]int) []string {
	keys := make([]string, 0, len(groups))
	for cidr := range groups {
		keys = append(keys, cidr)
	}
	sort.Strings(keys)
	return keys
}
