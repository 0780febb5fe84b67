package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/namsral/flag"
	log "github.com/sirupsen/logrus"

	"github.com/cdnsift/cdnsift"
	"github.com/cdnsift/cdnsift/config"
)

func main() {
	cfg := config.Default()

	flag.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "directory containing the compressed edge log files")
	flag.IntVar(&cfg.IngestShards, "ingest-shards", cfg.IngestShards, "number of parallel ingestion shards")
	flag.IntVar(&cfg.TopN, "top", cfg.TopN, "number of rows per report table")
	flag.StringVar(&cfg.LogLevel, "loglevel", cfg.LogLevel, "log level (trace, debug, info, warn, error)")
	flag.StringVar(&cfg.WhitelistTOML, "whitelist-toml", cfg.WhitelistTOML, "TOML file with whitelist rules")
	flag.StringVar(&cfg.BadgerPath, "badger-path", cfg.BadgerPath, "directory for the block decision database (empty: no persistence)")
	flag.DurationVar(&cfg.BlockTTL, "block-ttl", cfg.BlockTTL, "how long block decisions are kept")
	flag.StringVar(&cfg.DNSServer, "dns-server", cfg.DNSServer, "the DNS server for reverse lookups")
	flag.IntVar(&cfg.ResolverWorkers, "resolver-workers", cfg.ResolverWorkers, "number of reverse DNS workers")
	flag.DurationVar(&cfg.ResolverTTL, "resolver-ttl", cfg.ResolverTTL, "cache reverse hostnames this long")
	flag.BoolVar(&cfg.ResolveHosts, "resolve", cfg.ResolveHosts, "resolve hostnames of flagged sources")
	flag.StringVar(&cfg.ASNDBFile, "asndb-file", cfg.ASNDBFile, "ASN database file (empty: no ASN enrichment)")
	flag.StringVar(&cfg.GeoIPDBFile, "geoipdb-file", cfg.GeoIPDBFile, "GeoIP database file (empty: no geo enrichment)")
	flag.StringVar(&cfg.APIAddress, "api-address", cfg.APIAddress, "address for the REST API (empty: no API)")
	flag.BoolVar(&cfg.WithNats, "with-nats", cfg.WithNats, "accept decoded records over an embedded NATS bus")
	flag.StringVar(&cfg.NatsAddr, "nats-addr", cfg.NatsAddr, "bind NATS to this IP")
	flag.IntVar(&cfg.NatsPort, "nats-port", cfg.NatsPort, "the port on which NATS listens")
	flag.IntVar(&cfg.NatsHTTPPort, "nats-http-port", cfg.NatsHTTPPort, "the HTTP port on which NATS listens")
	flag.StringVar(&cfg.NatsUser, "nats-user", cfg.NatsUser, "the NATS user")
	flag.StringVar(&cfg.NatsPassword, "nats-password", cfg.NatsPassword, "the NATS password")
	flag.Parse()

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("invalid log level %q: %s", cfg.LogLevel, err)
	}
	log.SetLevel(level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	analyzer, err := cdnsift.New(ctx, &cfg)
	if err != nil {
		log.Fatal(err)
	}

	// one-shot analysis over a directory of log files
	if cfg.LogDir != "" {
		if err := analyzer.ReplayDir(cfg.LogDir); err != nil {
			log.Fatal(err)
		}

		analysis := analyzer.Analyze()
		cdnsift.NewReport(os.Stdout, cfg.TopN).Print(analysis)
	}

	// serve mode: stay up for the API and/or the ingest bus
	if cfg.APIAddress == "" && !cfg.WithNats {
		return
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("exiting...")
	cancel()
}
