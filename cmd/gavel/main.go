package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"gavel/api"
	"gavel/auction"
	"gavel/build"
	"gavel/chain"
	"gavel/debug"
	"gavel/metadata"
	"gavel/store"
	"gavel/store/memstore"
	"gavel/store/pgstore"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v3"
)

func main() {
	err := runMain(context.Background(), os.Args[1:])
	switch {
	case err == nil:
		os.Exit(0)
	case errors.Is(err, flag.ErrHelp):
		os.Exit(0)
	case isSignalError(err):
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(0)
	case err != nil:
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func runMain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("gavel", flag.ContinueOnError)
	var (
		apiAddr              = fs.String("api-addr", ":4440", "public API HTTP server address")
		debugAddr            = fs.String("debug-addr", ":4441", "private debug HTTP server address")
		storeConnStr         = fs.String("store-conn-str", "mem://store", "store connection string")
		storeMetricsInterval = fs.Duration("store-metrics-interval", 10*time.Second, "how often to update store metrics")
		nodeAddr             = fs.String("node-addr", "", "settlement node address (optional, defaults to an in-process fake)")
		metadataAddr         = fs.String("metadata-addr", "", "content-addressed document store address (optional)")
		version              = fs.Bool("version", false, "print version information and exit")
		logLevel             = fs.String("log-level", "info", "debug, info, warn, error")
		_                    = fs.String("config", "", "config file")
	)
	if err := ff.Parse(fs, args,
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix("GAVEL"),
	); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	if *version {
		fmt.Fprintf(os.Stdout, "gavel version %s date %s\n", build.Version, build.Date)
		return nil
	}

	var logger log.Logger
	{
		logger = log.NewLogfmtLogger(os.Stderr)
		logger = level.NewFilter(logger, level.Allow(level.ParseDefault(*logLevel, level.InfoValue())))
	}

	level.Info(logger).Log("program", "gavel", "build_version", build.Version, "build_date", build.Date)

	level.Debug(logger).Log("msg", "creating store")

	var st store.Store
	{
		switch {
		case strings.HasPrefix(*storeConnStr, "postgres"):
			level.Info(logger).Log("store", "postgres")
			s, err := pgstore.NewStore(ctx, *storeConnStr, log.With(logger, "module", "store"))
			if err != nil {
				return fmt.Errorf("create Postgres store: %w", err)
			}
			defer func() {
				level.Debug(logger).Log("msg", "closing Postgres store")
				if err := s.Close(); err != nil {
					level.Error(logger).Log("msg", "close Postgres store failed", "err", err)
				}
			}()
			st = s

		default:
			level.Warn(logger).Log("store", "in-memory")
			st = memstore.NewStore()
		}
	}

	level.Debug(logger).Log("msg", "connecting to chain")

	var c chain.Chain
	{
		switch {
		case *nodeAddr != "":
			nc, err := chain.NewNodeClient(ctx, *nodeAddr)
			if err != nil {
				return fmt.Errorf("connect to node: %w", err)
			}
			level.Info(logger).Log("chain", "node", "node_addr", *nodeAddr, "chain_id", nc.ID())
			c = nc

		default:
			level.Warn(logger).Log("chain", "in-process fake, deposits and transfers are not verified")
			c = chain.NewTestChain("gavel-local", 1)
		}
	}

	var resolver metadata.Resolver
	{
		if *metadataAddr != "" {
			r, err := metadata.NewHTTPResolver(*metadataAddr)
			if err != nil {
				return fmt.Errorf("create metadata resolver: %w", err)
			}
			level.Info(logger).Log("metadata", *metadataAddr)
			resolver = metadata.WithRingCache(r)
		}
	}

	service := auction.NewCoreService(c, st, log.With(logger, "module", "auction"))

	var g run.Group

	{
		logger := log.With(logger, "module", "api")
		apiHandler := api.NewHandler(service, resolver, logger)
		server := &http.Server{Handler: apiHandler, Addr: *apiAddr}
		g.Add(func() error {
			level.Info(logger).Log("api_addr", *apiAddr)
			return server.ListenAndServe()
		}, func(error) {
			ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			defer cancel()
			server.Shutdown(ctx)
		})
	}

	{
		logger := log.With(logger, "module", "debug")
		debugHandler := debug.NewHandler()
		server := &http.Server{Handler: debugHandler, Addr: *debugAddr}
		g.Add(func() error {
			level.Info(logger).Log("debug_addr", *debugAddr)
			return server.ListenAndServe()
		}, func(error) {
			ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			defer cancel()
			server.Shutdown(ctx)
		})
	}

	{
		logger := log.With(logger, "module", "store_metrics")
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			level.Info(logger).Log("interval", *storeMetricsInterval)
			ticker := time.NewTicker(*storeMetricsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := store.UpdateMetrics(ctx, st); err != nil {
						level.Error(logger).Log("error", err)
					}
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}, func(error) {
			cancel()
		})
	}

	{
		g.Add(run.SignalHandler(context.Background(), syscall.SIGINT, syscall.SIGTERM))
	}

	level.Debug(logger).Log("msg", "running")

	return g.Run()
}

func isSignalError(err error) bool {
	var (
		sigErrVal run.SignalError
		sigErrPtr *run.SignalError
	)
	return errors.As(err, &sigErrVal) || errors.As(err, &sigErrPtr)
}
