package cdnsift

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	natsd "github.com/nats-io/nats-server/v2/server"
	nats "github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/cdnsift/cdnsift/config"
	"github.com/cdnsift/cdnsift/data"
	"github.com/cdnsift/cdnsift/store"
)

const natsRecordsSubject = "records"

// Analysis bundles the complete result of one run: the raw snapshot, the
// ranked suspicious lists, the block plan and the descriptive extras the
// report renders.
type Analysis struct {
	GeneratedAt        time.Time                     `json:"generated_at"`
	Summary            data.Summary                  `json:"summary"`
	Baseline           Baseline                      `json:"baseline"`
	Snapshot           *Snapshot                     `json:"-"`
	SuspiciousSources  []*data.RiskAssessment        `json:"suspicious_sources"`
	SuspiciousNetworks []*data.NetworkRiskAssessment `json:"suspicious_networks"`
	Plan               *data.BlockPlan               `json:"block_plan"`
	Patterns           *TimePatterns                 `json:"-"`
}

// Analyzer ties the stages together: it owns the aggregator, feeds it from
// log files or the ingest bus, and runs scorer and advisor over completed
// snapshots.
type Analyzer struct {
	config     *config.Config
	aggregator *Aggregator
	scorer     *Scorer
	advisor    *Advisor
	whitelist  *Whitelist
	resolver   *Resolver
	ipmeta     *IPMeta
	kv         store.KVStore
	blocks     *BlockStore
	api        *API

	natsServer        *natsd.Server
	natsConn          *nats.Conn
	natsSubscriptions []*nats.Subscription

	latest *Analysis

	// held shared by ingestion, exclusively by Analyze: scoring never
	// sees a snapshot that can still mutate
	mutex sync.RWMutex
	ctx   context.Context
}

type natsAuth struct {
	User     string
	Password string
}

func (na *natsAuth) Check(c natsd.ClientAuthentication) bool {
	return c.GetOpts().Username == na.User && c.GetOpts().Password == na.Password
}

// New creates an Analyzer with all optional collaborators the
// configuration enables.
func New(ctx context.Context, cfg *config.Config) (*Analyzer, error) {
	a := &Analyzer{
		config:            cfg,
		aggregator:        NewAggregator(),
		advisor:           NewAdvisor(),
		natsSubscriptions: make([]*nats.Subscription, 0),
		ctx:               ctx,
	}

	var err error

	if cfg.WhitelistTOML != "" {
		a.whitelist, err = NewWhitelist(ctx, cfg.WhitelistTOML)
		if err != nil {
			return nil, fmt.Errorf("whitelist: %w", err)
		}
	}
	a.scorer = NewScorer(a.whitelist)

	a.ipmeta, err = NewIPMeta(cfg.ASNDBFile, cfg.GeoIPDBFile)
	if err != nil {
		return nil, err
	}

	if cfg.ResolveHosts {
		a.resolver = NewResolver(ctx, cfg.DNSServer, cfg.ResolverWorkers, cfg.ResolverTTL)
	}

	if cfg.BadgerPath != "" {
		a.kv, err = NewBadgerDB(ctx, cfg.BadgerPath)
		if err != nil {
			return nil, err
		}
		a.blocks = NewBlockStore(a.kv, cfg.BlockTTL)
	}

	if cfg.WithNats {
		if err := a.startNats(); err != nil {
			return nil, err
		}
	}

	if cfg.APIAddress != "" {
		a.api = NewAPI(ctx, cfg, a)
	}

	go func() {
		<-ctx.Done()
		for _, sub := range a.natsSubscriptions {
			sub.Drain()
		}
		if a.natsConn != nil {
			a.natsConn.Drain()
		}
		if a.natsServer != nil {
			a.natsServer.Shutdown()
		}
		if a.kv != nil {
			a.kv.Close()
		}
	}()

	return a, nil
}

// startNats brings up the embedded ingest bus and subscribes to decoded
// records published on it.
func (a *Analyzer) startNats() error {
	nopts := &natsd.Options{
		Host:     a.config.NatsAddr,
		Port:     a.config.NatsPort,
		HTTPPort: a.config.NatsHTTPPort,
		CustomClientAuthentication: &natsAuth{
			User:     a.config.NatsUser,
			Password: a.config.NatsPassword,
		},
		MaxConn:    1 << 12,
		MaxPending: 1 << 32,
	}

	a.natsServer = natsd.New(nopts)
	go a.natsServer.Start()
	if !a.natsServer.ReadyForConnections(2 * time.Second) {
		a.natsServer.Shutdown()
		return errors.New("nats server failed to start")
	}

	var err error
	a.natsConn, err = nats.Connect(
		fmt.Sprintf("nats://127.0.0.1:%d/", a.config.NatsPort),
		nats.UserInfo(a.config.NatsUser, a.config.NatsPassword),
		nats.ErrorHandler(func(c *nats.Conn, s *nats.Subscription, err error) {
			pnum, psize, _ := s.Pending()
			log.Warnf("nats error on %s: pending %d/%d: %v", s.Subject, pnum, psize, err)
		}),
	)
	if err != nil {
		a.natsServer.Shutdown()
		return err
	}

	jsonc, err := nats.NewEncodedConn(a.natsConn, nats.JSON_ENCODER)
	if err != nil {
		a.natsServer.Shutdown()
		return err
	}

	sub, err := jsonc.Subscribe(natsRecordsSubject, a.HandleRecord)
	if err != nil {
		a.natsServer.Shutdown()
		return err
	}
	sub.SetPendingLimits(200000, 1<<30)
	a.natsSubscriptions = append(a.natsSubscriptions, sub)

	log.Infof("listening for records on nats subject %q", natsRecordsSubject)

	return nil
}

// HandleRecord ingests one decoded record from the bus.
func (a *Analyzer) HandleRecord(r *data.Record) {
	if r == nil {
		return
	}

	a.mutex.RLock()
	defer a.mutex.RUnlock()

	a.aggregator.Ingest(*r)
}

// ReplayDir parses every compressed log file below dir and folds the
// records into the analyzer's statistics using sharded ingestion.
func (a *Analyzer) ReplayDir(dir string) error {
	files, err := FindLogFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no log files found in %s", dir)
	}
	log.Infof("found %d log files in %s", len(files), dir)

	reader := NewLogReader()
	records := make(chan data.Record, 4096)

	go func() {
		defer close(records)
		for _, f := range files {
			if err := reader.ReadFile(a.ctx, f, records); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				log.Errorf("%s", err)
			}
		}
	}()

	merged := IngestAll(a.ctx, records, a.config.IngestShards)

	a.mutex.RLock()
	defer a.mutex.RUnlock()
	a.aggregator.MergeFrom(merged)

	return nil
}

// Analyze scores the current snapshot and builds the block plan. Ingestion
// is paused for the duration so the snapshot cannot mutate under the
// scorer. Running it twice over the same statistics produces identical
// results.
func (a *Analyzer) Analyze() *Analysis {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	started := time.Now()

	// the published analysis must not alias the live aggregator maps:
	// ingestion resumes as soon as the lock is released
	snap := a.aggregator.Snapshot().Clone()
	summary := a.aggregator.Summary()

	suspiciousSources := a.scorer.ScoreSources(snap)
	suspiciousNetworks := a.scorer.ScoreNetworks(snap)
	plan := a.advisor.Plan(suspiciousSources)

	analysis := &Analysis{
		GeneratedAt:        started,
		Summary:            summary,
		Baseline:           a.scorer.Baseline(snap),
		Snapshot:           snap,
		SuspiciousSources:  suspiciousSources,
		SuspiciousNetworks: suspiciousNetworks,
		Plan:               plan,
		Patterns:           ComputeTimePatterns(snap),
	}

	if a.resolver != nil {
		a.resolver.Annotate(suspiciousSources)
	}
	a.ipmeta.Annotate(suspiciousSources)

	if a.blocks != nil {
		if err := a.blocks.BlockPlan(plan, suspiciousSources); err != nil {
			log.Errorf("persisting block plan: %s", err)
		}
	}

	a.latest = analysis

	log.Infof("analysis done in %s: %d suspicious sources, %d suspicious networks",
		time.Since(started).Round(time.Millisecond), len(suspiciousSources), len(suspiciousNetworks))

	return analysis
}

// Latest returns the most recent analysis, or nil before the first run.
func (a *Analyzer) Latest() *Analysis {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return a.latest
}

// Blocks exposes the persistent block store, or nil when none is
// configured.
func (a *Analyzer) Blocks() *BlockStore {
	return a.blocks
}
