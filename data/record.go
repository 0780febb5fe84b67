package data

import "time"

// Record is one decoded access-log line from the CDN edge.
// Records are produced by the log decoder or received over the ingest bus
// and are never modified after creation.
type Record struct {
	Time      time.Time `json:"time"`
	Source    string    `json:"source"`
	Domain    string    `json:"domain"`
	Path      string    `json:"path"`
	Status    int       `json:"status"`
	Bytes     int64     `json:"bytes"`
	UserAgent string    `json:"useragent"`
}
