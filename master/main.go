// Command master is a development stand-in for the match result ledger.
package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"time"

	"github.com/automoto/airhockey-mp/server/logging"
	"github.com/benbjohnson/clock"
	"github.com/decred/slog"
)

func main() {
	port := flag.Int("port", 8080, "HTTP listen port")
	ttl := flag.Duration("ttl", time.Hour, "How long recorded results are kept")
	failRate := flag.Float64("failrate", 0, "Fraction of result posts answered with 503")
	level := flag.String("loglevel", "info", "Log level")
	flag.Parse()

	logs, err := logging.New(os.Stdout, *level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "master: %v\n", err)
		os.Exit(1)
	}
	log := logs.Logger("LDGR")

	ledger := NewLedger(*ttl, clock.New(), log)
	defer ledger.Stop()

	addr := fmt.Sprintf(":%d", *port)
	log.Infof("Starting on %s (TTL=%s, failrate=%.2f)", addr, *ttl, *failRate)
	if err := http.ListenAndServe(addr, newMux(ledger, NewChaos(*failRate, rand.Float64), log)); err != nil {
		log.Criticalf("Fatal: %v", err)
		os.Exit(1)
	}
}

func newMux(l *Ledger, fail Chaos, log slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /results", ListResults(l, log))
	mux.HandleFunc("POST /results", PostResult(l, fail, log))
	mux.HandleFunc("GET /health", Health(l))
	return mux
}
