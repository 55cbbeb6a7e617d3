package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/automoto/airhockey-mp/config"
	"github.com/automoto/airhockey-mp/server/delivery"
	"github.com/automoto/airhockey-mp/server/gateway"
	"github.com/automoto/airhockey-mp/server/logging"
	"github.com/automoto/airhockey-mp/server/match"
	"github.com/automoto/airhockey-mp/server/physics"
	"github.com/automoto/airhockey-mp/server/rooms"
	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.C
	port := flag.Uint("port", cfg.Server.Port, "Websocket port")
	adminPort := flag.Uint("admin-port", cfg.Server.AdminPort, "Admin HTTP port (0 disables)")
	ledger := flag.String("ledger", cfg.Server.LedgerURL, "Result ledger base URL")
	tickRate := flag.Int("tickrate", cfg.Game.TickRate, "Physics ticks per second")
	broadcastRate := flag.Int("broadcastrate", cfg.Game.BroadcastRate, "State broadcasts per second")
	maxScore := flag.Int("maxscore", cfg.Game.MaxScore, "Goals needed to win")
	level := flag.String("loglevel", "info", "Log level (trace, debug, info, warn, error)")
	persist := flag.Bool("persist", true, "Persist undelivered results across restarts")
	flag.Parse()

	cfg.Server.Port = *port
	cfg.Server.AdminPort = *adminPort
	cfg.Server.LedgerURL = *ledger
	cfg.Game.TickRate = *tickRate
	cfg.Game.BroadcastRate = *broadcastRate
	cfg.Game.MaxScore = *maxScore

	if err := run(cfg, *level, *persist); err != nil {
		fmt.Fprintf(os.Stderr, "airhockey server: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, level string, persist bool) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logs, err := logging.New(os.Stdout, level)
	if err != nil {
		return err
	}
	log := logs.Logger(logging.Gateway)
	clk := clock.New()

	var store delivery.Store
	if persist {
		s, err := delivery.OpenGDataStore(cfg.Server.AppName)
		if err != nil {
			log.Warnf("Result persistence unavailable: %v", err)
		} else {
			store = s
		}
	}
	sink := delivery.NewHTTPSink(cfg.Server.LedgerURL, cfg.Delivery.SubmitTimeout)
	queue := delivery.NewQueue(cfg.Delivery, sink, store, clk, logs.Logger(logging.Delivery))

	reg := rooms.NewRegistry(clk, logs.Logger(logging.Rooms))
	physLog := logs.Logger(logging.Physics)
	orch := match.New(cfg, reg, queue, func() rooms.Engine {
		return physics.New(cfg, clk, physLog)
	}, clk, logs.Logger(logging.Match))
	gw := gateway.New(orch, cfg.Server.JoinTimeout, clk, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return queue.Start(gctx)
	})

	// The websocket transport has no shutdown hook; its goroutine is left to
	// die with the process.
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- gw.Serve(cfg.Server.Port)
	}()
	g.Go(func() error {
		select {
		case err := <-serveErr:
			return fmt.Errorf("websocket transport: %w", err)
		case <-gctx.Done():
			return nil
		}
	})

	if cfg.Server.AdminPort != 0 {
		adminLog := logs.Logger(logging.Admin)
		admin := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.AdminPort),
			Handler:           gateway.AdminMux(orch, queue, adminLog),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			adminLog.Infof("Admin API on %s", admin.Addr)
			if err := admin.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return admin.Shutdown(shutdownCtx)
		})
	}

	log.Infof("Air hockey server starting (tick %d/s, broadcast %d/s, first to %d, ledger %s)",
		cfg.Game.TickRate, cfg.Game.BroadcastRate, cfg.Game.MaxScore, cfg.Server.LedgerURL)

	err = g.Wait()
	log.Infof("Shutting down server...")
	orch.Shutdown()
	gw.Close()
	return err
}
