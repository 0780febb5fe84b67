package cdnsift

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/pelletier/go-toml"
	log "github.com/sirupsen/logrus"
	fsnotify "gopkg.in/fsnotify.v1"
)

// WhitelistRules is the TOML shape of the whitelist file: lists of exact
// addresses, CIDR ranges and user-agent patterns that must never be
// flagged, each with a description for the audit trail.
type WhitelistRules struct {
	IP        []WhitelistRule
	CIDR      []WhitelistRule
	Useragent []WhitelistRule
}

// WhitelistRule is a single whitelist entry.
type WhitelistRule struct {
	Pattern     string
	Description string
}

// Whitelist answers whether a source address is exempt from flagging.
// In serve mode the rules file is re-read whenever it changes on disk.
type Whitelist struct {
	path      string
	ips       map[netip.Addr]string
	cidrs     []cidrRule
	agents    []agentRule
	watcher   *fsnotify.Watcher
	UpdatedAt time.Time
	mutex     sync.RWMutex
	ctx       context.Context
}

type cidrRule struct {
	prefix      netip.Prefix
	description string
}

type agentRule struct {
	pattern     *regexp.Regexp
	description string
}

// NewWhitelist loads the rules file and starts watching it for changes.
func NewWhitelist(ctx context.Context, path string) (*Whitelist, error) {
	wl := &Whitelist{
		path: path,
		ctx:  ctx,
	}

	if err := wl.Load(); err != nil {
		return nil, err
	}

	if err := wl.watch(); err != nil {
		log.Warnf("whitelist: not watching %s: %s", path, err)
	}

	return wl, nil
}

// Load re-reads the rules file. Individual malformed rules are skipped
// with a warning; they never invalidate the rest of the file.
func (wl *Whitelist) Load() error {
	raw, err := os.ReadFile(wl.path)
	if err != nil {
		return err
	}

	var rules WhitelistRules
	if err := toml.Unmarshal(raw, &rules); err != nil {
		return err
	}

	ips := make(map[netip.Addr]string, len(rules.IP))
	for _, rule := range rules.IP {
		addr, err := netip.ParseAddr(rule.Pattern)
		if err != nil {
			log.Warnf("whitelist: ignoring bad IP rule %q: %s", rule.Pattern, err)
			continue
		}
		ips[addr.Unmap()] = rule.Description
	}

	cidrs := make([]cidrRule, 0, len(rules.CIDR))
	for _, rule := range rules.CIDR {
		prefix, err := netip.ParsePrefix(rule.Pattern)
		if err != nil {
			log.Warnf("whitelist: ignoring bad CIDR rule %q: %s", rule.Pattern, err)
			continue
		}
		cidrs = append(cidrs, cidrRule{prefix: prefix, description: rule.Description})
	}

	agents := make([]agentRule, 0, len(rules.Useragent))
	for _, rule := range rules.Useragent {
		re, err := regexp.Compile(fmt.Sprintf("^%s$", rule.Pattern))
		if err != nil {
			log.Warnf("whitelist: ignoring bad useragent rule %q: %s", rule.Pattern, err)
			continue
		}
		agents = append(agents, agentRule{pattern: re, description: rule.Description})
	}

	wl.mutex.Lock()
	wl.ips = ips
	wl.cidrs = cidrs
	wl.agents = agents
	wl.UpdatedAt = time.Now()
	wl.mutex.Unlock()

	log.Infof("whitelist: %d IP rules, %d CIDR rules, %d useragent rules loaded from %s",
		len(ips), len(cidrs), len(agents), wl.path)

	return nil
}

// Contains reports whether addr matches a whitelist rule, and if so which
// rule's description applies.
func (wl *Whitelist) Contains(addr netip.Addr) (bool, string) {
	addr = addr.Unmap()

	wl.mutex.RLock()
	defer wl.mutex.RUnlock()

	if desc, ok := wl.ips[addr]; ok {
		return true, desc
	}

	for _, rule := range wl.cidrs {
		if rule.prefix.Contains(addr) {
			return true, rule.description
		}
	}

	return false, ""
}

// MatchesAgent reports whether a user agent matches a whitelist rule, and
// if so which rule's description applies. Patterns are anchored: a rule
// must describe the full agent string.
func (wl *Whitelist) MatchesAgent(ua string) (bool, string) {
	wl.mutex.RLock()
	defer wl.mutex.RUnlock()

	for _, rule := range wl.agents {
		if rule.pattern.MatchString(ua) {
			return true, rule.description
		}
	}

	return false, ""
}

func (wl *Whitelist) watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(wl.path); err != nil {
		watcher.Close()
		return err
	}
	wl.watcher = watcher

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-wl.ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := wl.Load(); err != nil {
					log.Errorf("whitelist: reload failed: %s", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("whitelist: watch error: %s", err)
			}
		}
	}()

	return nil
}
