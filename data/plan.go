package data

import "time"

// BlockPlan is the actionable output of an analysis run: which sources to
// block right away, which to keep an eye on, and which whole network
// blocks are worth suggesting.
type BlockPlan struct {
	ImmediateBlock []string          `json:"immediate_block"`
	MonitorClosely []string          `json:"monitor_closely"`
	NetworkBlocks  map[string]string `json:"network_blocks"`
	Stats          BlockPlanStats    `json:"statistics"`
}

// BlockPlanStats summarizes a block plan. The suggested network counters
// use the same per-family thresholds as the NetworkBlocks entries, so the
// two always agree.
type BlockPlanStats struct {
	TotalSuspicious       int `json:"total_suspicious"`
	HighRisk              int `json:"high_risk"`
	MediumRisk            int `json:"medium_risk"`
	SuggestedIPv4Networks int `json:"suggested_ipv4_networks"`
	SuggestedIPv6Networks int `json:"suggested_ipv6_networks"`
}

// BlockedSource is the persisted form of a block decision.
type BlockedSource struct {
	Source    string    `json:"source"`
	Score     float64   `json:"score"`
	Reasons   []string  `json:"reasons"`
	Hostname  string    `json:"hostname,omitempty"`
	BlockedAt time.Time `json:"blocked_at"`
}
