// Command coreserver wires the settlement core's pieces together the way
// the teacher's cmd/node/main.go wires consensus+app+api: load config,
// build the batch and its dispatcher actor, start the introspection
// surface, and run until interrupted (spec.md §1, §5, §9).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/invisible-exchange/rollup-core/params"
	"github.com/invisible-exchange/rollup-core/pkg/batch"
	"github.com/invisible-exchange/rollup-core/pkg/dispatcher"
	"github.com/invisible-exchange/rollup-core/pkg/introspect"
	"github.com/invisible-exchange/rollup-core/pkg/storequeue"
	"github.com/invisible-exchange/rollup-core/pkg/tokens"
	"github.com/invisible-exchange/rollup-core/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("")

	logPath := cfg.LogPath
	if logPath == "" {
		logPath = "data/core.log"
	}
	logger, err := util.NewLoggerWithFile(logPath)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_path", logPath)

	store, err := storequeue.Open(cfg.Storage.PebblePath, sugar)
	if err != nil {
		sugar.Fatalw("storequeue_open_failed", "err", err)
	}
	defer store.Close()

	flushInterval, err := time.ParseDuration(cfg.Storage.FlushInterval)
	if err != nil {
		sugar.Fatalw("bad_flush_interval", "value", cfg.Storage.FlushInterval, "err", err)
	}
	store.Run(flushInterval)

	b := batch.New(batch.Config{
		SpotTreeDepth:       cfg.Trees.SpotDepth,
		PerpTreeDepth:       cfg.Trees.PerpDepth,
		FundingRingCapacity: cfg.FundingRingCapacity,
	}, tokens.Default(), store, sugar)

	actor := dispatcher.New(b, sugar, cfg.Dispatcher.QueueDepth, cfg.Dispatcher.AdmissionLimit)

	introspectSrv := introspect.NewServer(sugar)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := actor.Run(ctx); err != nil && ctx.Err() == nil {
			sugar.Fatalw("dispatcher_failed", "err", err)
		}
	}()

	introspectAddr := cfg.IntrospectAddr
	if introspectAddr == "" {
		introspectAddr = ":8090"
	}
	go func() {
		sugar.Infow("introspect_server_starting", "addr", introspectAddr)
		if err := introspectSrv.Start(introspectAddr); err != nil {
			sugar.Fatalw("introspect_server_failed", "err", err)
		}
	}()

	sugar.Infow("core_starting",
		"spot_tree_depth", cfg.Trees.SpotDepth,
		"perp_tree_depth", cfg.Trees.PerpDepth,
		"admission_limit", cfg.Dispatcher.AdmissionLimit,
	)

	// Finalize on a fixed cadence; a real deployment would drive this from
	// the out-of-scope RPC layer's own batching policy (spec.md §1), but the
	// core itself only needs something to call Finalize periodically.
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fin, err := actor.Finalize(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				sugar.Warnw("finalize_failed", "err", err)
				continue
			}
			if len(fin.Witnesses) == 0 {
				continue
			}
			introspectSrv.Publish(fin)
			sugar.Infow("batch_finalized",
				"seq", fin.Seq,
				"txs", len(fin.Witnesses),
				"spot_root", fin.SpotRoot.String(),
				"perp_root", fin.PerpRoot.String(),
			)
		}
	}
}
