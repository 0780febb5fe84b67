/*
	cdnsift - a CDN edge access log abuse analyzer
	Copyright (C) 2026 the cdnsift authors

	This program is free software: you can redistribute it and/or modify it
	under the terms of the GNU Affero General Public License as published by
	the Free Software Foundation, either version 3 of the License, or (at your
	option) any later version.

	This program is distributed in the hope that it will be useful, but WITHOUT
	ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
	FITNESS FOR A PARTICULAR PURPOSE. See the GNU Affero General Public License
	for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program. If not, see <https://www.gnu.org/licenses/>.
*/

package config

import (
	"time"
)

// Config carries all configurable bits and pieces of a cdnsift run.
// It is populated from flags and environment variables in cmd/cdnsift and
// passed on to every part of the application that needs it.
type Config struct {
	LogDir       string
	IngestShards int
	TopN         int

	LogLevel string

	WhitelistTOML string

	BadgerPath string
	BlockTTL   time.Duration

	DNSServer       string
	ResolverWorkers int
	ResolverTTL     time.Duration
	ResolveHosts    bool

	ASNDBFile   string
	GeoIPDBFile string

	APIAddress string

	WithNats     bool
	NatsAddr     string
	NatsPort     int
	NatsHTTPPort int
	NatsUser     string
	NatsPassword string
}

// Default returns the configuration defaults the flags start from.
func Default() Config {
	return Config{
		LogDir:          "",
		IngestShards:    4,
		TopN:            20,
		LogLevel:        "info",
		BlockTTL:        7 * 24 * time.Hour,
		DNSServer:       "8.8.8.8:53",
		ResolverWorkers: 10,
		ResolverTTL:     24 * time.Hour,
		NatsAddr:        "0.0.0.0",
		NatsPort:        4223,
		NatsHTTPPort:    8889,
		NatsUser:        "cdnsift",
		NatsPassword:    "cdnsift",
	}
}
