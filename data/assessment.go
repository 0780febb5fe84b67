package data

import (
	"fmt"
	"strings"

	"github.com/scraperwall/asndb/v2"
	"github.com/scraperwall/geoip/v2"
)

// RiskAssessment is the scoring result for one source address. It is
// recomputed wholesale from a snapshot and never partially updated.
type RiskAssessment struct {
	Source  string       `json:"source"`
	Score   float64      `json:"score"`
	Reasons []string     `json:"reasons"`
	Stats   *SourceStats `json:"stats"`

	// optional enrichment, filled in after scoring
	Hostname string       `json:"hostname,omitempty"`
	ASN      *asndb.ASN   `json:"asn,omitempty"`
	GeoIP    *geoip.GeoIP `json:"geoip,omitempty"`
}

func (ra *RiskAssessment) String() string {
	return fmt.Sprintf("%s (%.1f) - %s", ra.Source, ra.Score, strings.Join(ra.Reasons, ", "))
}

// NetworkRiskAssessment is the scoring result for one network block.
type NetworkRiskAssessment struct {
	Key     NetworkKey    `json:"key"`
	Score   float64       `json:"score"`
	Reasons []string      `json:"reasons"`
	Stats   *NetworkStats `json:"stats"`
}

func (na *NetworkRiskAssessment) String() string {
	return fmt.Sprintf("%s %s (%.1f) - %s", na.Key.Group, na.Key.CIDR, na.Score, strings.Join(na.Reasons, ", "))
}
