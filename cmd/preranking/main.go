// Command preranking runs the pre-ranking engine: it polls a chain event
// source, coordinates per-intent lifecycles, and publishes ranking
// payloads, wiring every collaborator described in spec §2.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/prerankio/preranking-engine/blobstore"
	"github.com/prerankio/preranking-engine/chainevents"
	"github.com/prerankio/preranking-engine/coordinator"
	"github.com/prerankio/preranking-engine/internal/config"
	"github.com/prerankio/preranking-engine/internal/domain"
	"github.com/prerankio/preranking-engine/internal/errkind"
	"github.com/prerankio/preranking-engine/metrics"
	"github.com/prerankio/preranking-engine/pipeline"
	"github.com/prerankio/preranking-engine/ranking"
	"github.com/prerankio/preranking-engine/simulator"
	"github.com/prerankio/preranking-engine/store"
	"github.com/prerankio/preranking-engine/validate"
)

var configFileFlag = &cli.StringFlag{
	Name:     "config",
	Usage:    "path to the engine's TOML configuration file",
	Required: true,
}

func main() {
	app := &cli.App{
		Name:   "preranking",
		Usage:  "pre-ranking engine for intent/solution blockchain events",
		Flags:  []cli.Flag{configFileFlag},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cliCtx *cli.Context) error {
	cfg, err := config.Load(cliCtx.String(configFileFlag.Name))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	if !cfg.AutoStartListener {
		log.Info("preranking: auto_start_listener is false, ingestor inert until externally started")
		<-ctx.Done()
		return nil
	}

	log.Info("preranking: starting ingestor")
	return eng.ingestor.Run(ctx)
}

// engine holds every long-lived collaborator wired by bootstrap.
type engine struct {
	ingestor  *chainevents.Ingestor
	simulator *simulator.RPCSimulator
	source    *chainevents.RPCSource
	metrics   *metrics.Metrics
}

func (e *engine) Close() {
	if e.simulator != nil {
		e.simulator.Close()
	}
	if e.source != nil {
		e.source.Close()
	}
}

// bootstrap wires every component in spec §2's dependency order (leaves
// first): stores, then fetch/simulate/validate, then pipeline, then
// coordinator, then the ingestor that drives it all.
func bootstrap(ctx context.Context, cfg config.Config) (*engine, error) {
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, errkind.Wrap(errkind.Fatal, "redis unreachable at bootstrap: %v", err)
	}
	kv := store.NewRedisStore(redisClient, cfg.StoreTimeout())
	cursorStore := store.NewCursorStore(kv)
	intentStore := store.NewIntentStore(kv)

	if _, _, err := cursorStore.Load(ctx); err != nil {
		return nil, errkind.Wrap(errkind.Fatal, "cursor store unreachable at bootstrap: %v", err)
	}

	fetcher := blobstore.NewHTTPFetcher(cfg.BlobStoreURL, &http.Client{}, cfg.BlobMaxRetries, cfg.BlobCacheSize, cfg.FetchTimeout())

	sim, err := simulator.NewRPCSimulator(ctx, cfg.SimulatorRPCAddr, "sim_dryRun", cfg.SimulatorTimeout())
	if err != nil {
		return nil, err
	}

	metricsCollector := metrics.New()

	pl := pipeline.New(fetcher, sim, noopParser{})
	publisher := ranking.NewRedisPublisher(redisClient, cfg.EnqueueMaxRetries, cfg.EnqueueTimeout())
	coord := coordinator.New(fetcher, pl, intentStore, publisher, coordinator.Config{
		RecordTTL:          cfg.RecordTTL(),
		FlushOnEmptyPassed: cfg.FlushOnEmptyPassed,
		EagerDelete:        cfg.EagerDelete,
	})

	source, err := chainevents.NewRPCSource(ctx, cfg.ChainRPCAddr, cfg.ChainPackageID, "chain_pollIntentSubmitted", "chain_pollSolutionSubmitted")
	if err != nil {
		return nil, errkind.Wrap(errkind.Fatal, "chain rpc unreachable at bootstrap: %v", err)
	}

	ingestor := chainevents.New(source, dispatchHandler{coord: coord, metrics: metricsCollector}, cursorStore, chainevents.Config{
		PollInterval: cfg.EventPollInterval(),
		BatchLimit:   cfg.EventBatchLimit,
		Concurrency:  cfg.PipelineConcurrency,
	})

	return &engine{ingestor: ingestor, simulator: sim, source: source, metrics: metricsCollector}, nil
}

// dispatchHandler routes merged ingestor events to the coordinator's two
// per-kind procedures and records cursor metrics as each event clears
// (spec §4.H).
type dispatchHandler struct {
	coord   *coordinator.Coordinator
	metrics *metrics.Metrics
}

func (d dispatchHandler) Handle(ctx context.Context, ev domain.Event) error {
	var err error
	switch ev.Kind {
	case domain.KindIntentSubmitted:
		err = d.coord.HandleIntentSubmitted(ctx, *ev.Intent)
	case domain.KindSolutionSubmitted:
		err = d.coord.HandleSolutionSubmitted(ctx, *ev.Solution)
	}
	if err != nil {
		return err
	}
	cursor := ev.EventCursor()
	d.metrics.RecordPoll(cursor.EventSeq, time.Now().UnixMilli())
	d.metrics.RecordFlush(d.coord.ActiveCount())
	return nil
}

// noopParser is the deferred pre-parser documented in SPEC_FULL.md §D(d):
// transaction_bytes has no chain encoding named anywhere in spec.md, so
// every field here is always undeterminable, which correctly skips
// Phase 1's inputs/hops/protocol checks rather than failing or guessing.
// Swap in a real pipeline.Parser here once a transaction encoding exists.
type noopParser struct{}

func (noopParser) Parse(transactionBytes []byte) validate.ParsedSolution {
	return validate.ParsedSolution{}
}
