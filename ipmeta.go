package cdnsift

import (
	"net"

	"github.com/scraperwall/asndb/v2"
	"github.com/scraperwall/geoip/v2"
	log "github.com/sirupsen/logrus"

	"github.com/cdnsift/cdnsift/data"
)

// IPMeta annotates flagged sources with ASN and GeoIP information when the
// corresponding databases are configured. Both databases are optional.
type IPMeta struct {
	asndb *asndb.DB
	geodb *geoip.DB
}

// NewIPMeta loads the configured databases. An empty file name disables
// that database.
func NewIPMeta(asndbFile, geoipFile string) (*IPMeta, error) {
	im := &IPMeta{}

	if asndbFile != "" {
		db, err := asndb.New(asndbFile)
		if err != nil {
			return nil, err
		}
		im.asndb = db
		log.Infof("asndb loaded with %d records", db.Size())
	}

	if geoipFile != "" {
		db, err := geoip.New(geoipFile)
		if err != nil {
			return nil, err
		}
		im.geodb = db
		log.Infof("geoip database loaded")
	}

	return im, nil
}

// Annotate fills in ASN and GeoIP details for every assessment whose
// source parses as an IP.
func (im *IPMeta) Annotate(assessments []*data.RiskAssessment) {
	if im.asndb == nil && im.geodb == nil {
		return
	}

	for _, sa := range assessments {
		ip := net.ParseIP(sa.Source)
		if ip == nil {
			continue
		}

		if im.asndb != nil {
			sa.ASN = im.asndb.Lookup(ip)
		}
		if im.geodb != nil {
			geo, err := im.geodb.Lookup(ip)
			if err == nil {
				sa.GeoIP = geo
			}
		}
	}
}
