package main

import (
	"flag"
	"net/http"
	"os"

	"github.com/google/gops/agent"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/flonle/driftdb/app/driftdb"
	"github.com/flonle/driftdb/app/driftdb/store"
)

func main() {
	// Missing .env is fine; a present-but-broken one is not.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Fatal("parsing ./.env failed")
	}

	var addr, metricsAddr, loglevel string
	var maxFrame int
	var flagGops bool
	flag.StringVar(&addr, "addr", envOr("DRIFTDB_ADDR", "127.0.0.1:6379"), "address to listen on")
	flag.StringVar(&metricsAddr, "metrics-addr", envOr("DRIFTDB_METRICS_ADDR", ""), "serve Prometheus metrics here; empty disables")
	flag.StringVar(&loglevel, "loglevel", envOr("DRIFTDB_LOGLEVEL", "info"), "debug, info, warn or error")
	flag.IntVar(&maxFrame, "max-frame-bytes", 0, "maximum accepted frame size; 0 for the protocol default")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.Parse()

	log := logrus.New()
	level, err := logrus.ParseLevel(loglevel)
	if err != nil {
		log.WithField("loglevel", loglevel).Fatal("unknown log level")
	}
	log.SetLevel(level)

	// See https://github.com/google/gops (runtime overhead is almost zero)
	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.WithError(err).Fatal("gops/agent.Listen failed")
		}
	}

	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.WithError(err).Error("metrics listener failed")
			}
		}()
	}

	server := driftdb.MakeServer(store.New(), log)
	server.MaxFrameBytes = maxFrame
	if err := server.Start(addr); err != nil {
		log.WithError(err).Error("server exited")
		os.Exit(1)
	}
}

// envOr resolves a flag default from the environment, after the optional
// .env has been folded in.
func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
