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

package cdnsift

import (
	"context"
	"sync"
	"time"

	"github.com/ReneKroon/ttlcache/v2"
	"github.com/miekg/dns"
	log "github.com/sirupsen/logrus"

	"github.com/cdnsift/cdnsift/data"
)

// Resolver looks up reverse hostnames for flagged sources so the report
// can show who is behind an address. Results are cached; lookups that fail
// leave the hostname empty and never block the analysis.
type Resolver struct {
	server  string
	workers int
	cache   *ttlcache.Cache
	client  *dns.Client
	ctx     context.Context
}

// NewResolver creates a Resolver that queries the given DNS server
// ("host:port") with the given number of concurrent workers.
func NewResolver(ctx context.Context, server string, workers int, ttl time.Duration) *Resolver {
	cache := ttlcache.NewCache()
	cache.SetTTL(ttl)

	if workers < 1 {
		workers = 1
	}

	r := &Resolver{
		server:  server,
		workers: workers,
		cache:   cache,
		client:  new(dns.Client),
		ctx:     ctx,
	}

	go func() {
		<-ctx.Done()
		cache.Close()
	}()

	return r
}

// Annotate fills in the Hostname of every assessment, fanning the lookups
// out over the worker pool. Cancelling the context stops the fan-out; both
// the feeding loop and the workers watch it so neither side can block on
// the other after cancellation.
func (r *Resolver) Annotate(assessments []*data.RiskAssessment) {
	jobs := make(chan *data.RiskAssessment)
	var wg sync.WaitGroup

	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case <-r.ctx.Done():
					return
				case sa, ok := <-jobs:
					if !ok {
						return
					}
					hostname, err := r.Resolve(sa.Source)
					if err != nil {
						log.Tracef("worker %d: no hostname for %s: %s", id, sa.Source, err)
						continue
					}
					sa.Hostname = hostname
				}
			}
		}(i)
	}

feed:
	for _, sa := range assessments {
		select {
		case <-r.ctx.Done():
			break feed
		case jobs <- sa:
		}
	}
	close(jobs)
	wg.Wait()
}

// Resolve returns the reverse hostname for a source address, from the
// cache when possible. An address without a PTR record resolves to itself.
func (r *Resolver) Resolve(source string) (string, error) {
	if cached, err := r.cache.Get(source); err == nil {
		return cached.(string), nil
	}

	hostname, err := r.reverseLookup(source)
	if err != nil {
		return "", err
	}

	r.cache.Set(source, hostname)

	return hostname, nil
}

func (r *Resolver) reverseLookup(source string) (string, error) {
	reverse, err := dns.ReverseAddr(source)
	if err != nil {
		return "", err
	}

	m := new(dns.Msg)
	m.Id = dns.Id()
	m.RecursionDesired = true
	m.SetQuestion(reverse, dns.TypePTR)

	resp, _, err := r.client.Exchange(m, r.server)
	if err != nil {
		return "", err
	}

	hostname := source
	if len(resp.Answer) > 0 {
		if ptr, ok := resp.Answer[0].(*dns.PTR); ok {
			hostname = trimTrailingDot(ptr.Ptr)
		}
	}

	return hostname, nil
}

// trimTrailingDot drops the trailing dot of a DNS name.
func trimTrailingDot(name string) string {
	if len(name) > 0 && name[len(name)-1] == '.' {
		return name[:len(name)-1]
	}
	return name
}
