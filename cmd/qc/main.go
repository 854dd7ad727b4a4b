package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qc/internal/metrics"
	"qc/internal/metrics/datadog"
	"qc/internal/server"
	"qc/internal/store"
	"qc/internal/store/sqlite"

	// register all connector backends; requests select one by kind.
	_ "qc/internal/connector/file"
	_ "qc/internal/connector/htmltable"
	_ "qc/internal/connector/postgres"
	_ "qc/internal/connector/warehouse"
)

// main wires the stores, the optional catalog and metrics backend, and the
// HTTP server.
func main() {
	var (
		addr              string
		dbPath            string
		metricsBackendFlg string
		resultTTL         time.Duration
	)

	flag.StringVar(&addr, "addr", ":8080", "HTTP listen address")
	flag.StringVar(&dbPath, "db", "qc_tool.db", "path to the catalog database (empty disables persistence)")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (datadog, none)")
	flag.DurationVar(&resultTTL, "result-ttl", time.Hour, "how long results and sessions stay retrievable")
	verbose := flag.Bool("v", false, "enable verbose logs")
	flag.Parse()

	ctx := context.Background()

	// Flag wins over the environment; default is off.
	backendName := metricsBackendFlg
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "datadog":
		b, err := datadog.NewBackend(ctx, datadog.Options{
			ServiceName: "qc",
			Tags:        datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS")),
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			log.Printf("metrics: backend=%s", backendName)
			metrics.SetBackend(b)
			defer func() {
				if err := b.Close(); err != nil {
					log.Printf("metrics: datadog close/flush error: %v", err)
				}
			}()
		}
	case "", "none":
		if *verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}
	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	var catalog *sqlite.Catalog
	if dbPath != "" {
		var err error
		catalog, err = sqlite.Open(ctx, dbPath)
		if err != nil {
			fatalf("open catalog: %v", err)
		}
		defer catalog.Close()
		if *verbose {
			log.Printf("catalog: db=%s", dbPath)
		}
	}

	srv := server.New(server.Options{
		Sessions: store.NewSessions(resultTTL, 0),
		Results:  store.NewResults(resultTTL, 0),
		Catalog:  catalog,
		Logger:   log.Default(),
	})

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Shut down cleanly on SIGINT/SIGTERM so deferred closes run.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Printf("listening on %s", addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fatalf("serve: %v", err)
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
