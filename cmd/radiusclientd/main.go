// Command radiusclientd hosts a radiusclient.Client: it loads server
// configuration (static or MySQL-backed), wires up Prometheus metrics, an
// AMQP accounting-event sink, and a MySQL audit sink, then serves
// /metrics until terminated.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lordbasex/go-radius-client/internal/acctsink"
	"github.com/lordbasex/go-radius-client/internal/audit"
	"github.com/lordbasex/go-radius-client/internal/config"
	"github.com/lordbasex/go-radius-client/internal/metrics"
	"github.com/lordbasex/go-radius-client/radiusclient"
)

func main() {
	cfg := config.LoadFromFlags()

	var opts []radiusclient.Option

	var acct *acctsink.Sink
	if cfg.AMQPURL != "" {
		acctCfg := acctsink.DefaultConfig()
		acctCfg.URL = cfg.AMQPURL
		var err error
		acct, err = acctsink.New(acctCfg)
		if err != nil {
			log.Printf("[radiusclientd] accounting sink disabled: %v", err)
		} else {
			defer acct.Close()
			opts = append(opts, radiusclient.WithAccountingPublisher(acct))
		}
	}

	var auditSink *audit.Sink
	if cfg.AuditMySQLDSN != "" {
		auditCfg := audit.DefaultConfig()
		auditCfg.DSN = cfg.AuditMySQLDSN
		var err error
		auditSink, err = audit.New(auditCfg)
		if err != nil {
			log.Printf("[radiusclientd] audit sink disabled: %v", err)
		} else {
			defer auditSink.Close()
			opts = append(opts, radiusclient.WithAuditSink(auditSink))
		}
	}

	client, err := radiusclient.NewClient(cfg.ToSettings(), cfg.Workers, opts...)
	if err != nil {
		log.Fatalf("[radiusclientd] creating client: %v", err)
	}

	if err := loadServers(client, cfg); err != nil {
		log.Fatalf("[radiusclientd] loading servers: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewCollector(client, prometheus.Labels{"daemon": "radiusclientd"}))
	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	go func() {
		log.Printf("[radiusclientd] serving metrics on %s", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
			log.Printf("[radiusclientd] metrics server stopped: %v", err)
		}
	}()

	log.Printf("[radiusclientd] started with %d workers, %d servers registered", client.NumWorkers(), client.ServerCount())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("[radiusclientd] shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Destroy(ctx); err != nil {
		log.Printf("[radiusclientd] client teardown error: %v", err)
	}
}

// loadServers populates client's server registry: from MySQL if
// cfg.MySQLDSN is set; otherwise it registers nothing and the process
// keeps running with an empty registry (servers can then only come from
// AddServer calls in an embedding of this package).
func loadServers(client *radiusclient.Client, cfg *config.DaemonConfig) error {
	if cfg.MySQLDSN == "" {
		log.Printf("[radiusclientd] no -mysql-dsn given; starting with an empty server registry")
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	servers, err := config.LoadServersFromMySQL(ctx, cfg.MySQLDSN, cfg.ServerTableName)
	if err != nil {
		return err
	}
	for _, s := range servers {
		if err := client.AddServer(s); err != nil {
			return err
		}
	}
	log.Printf("[radiusclientd] loaded %d servers from %s", len(servers), cfg.ServerTableName)
	return nil
}
