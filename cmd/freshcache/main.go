package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	logging "github.com/ipfs/go-log/v2"
	freshcache "github.com/ipni/go-freshcache"
	"github.com/ipni/go-freshcache/dispatch"
	"github.com/ipni/go-freshcache/dispatch/httpsender"
	"github.com/ipni/go-freshcache/dispatch/p2psender"
	"github.com/ipni/go-freshcache/reader"
	"github.com/ipni/go-freshcache/server"
	"github.com/ipni/go-freshcache/store"
	"github.com/ipni/go-freshcache/store/dsstore"
	"github.com/ipni/go-freshcache/store/httpstore"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/urfave/cli/v2"
)

var log = logging.Logger("freshcache")

const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:    "freshcache",
		Usage:   "Serve entity data with stale-while-revalidate caching",
		Version: freshcache.Release,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level for all freshcache subsystems",
				Value:   "info",
				EnvVars: []string{"FRESHCACHE_LOG_LEVEL"},
			},
		},
		Before: func(cctx *cli.Context) error {
			return setLogLevel(cctx.String("log-level"))
		},
		Commands: []*cli.Command{serveCmd},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "Start the HTTP server",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "listen",
			Usage:   "HTTP listen address",
			Value:   "0.0.0.0:8080",
			EnvVars: []string{"FRESHCACHE_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "store-url",
			Usage:   "Base URL of the remote record store. If not set, an in-memory store is used",
			EnvVars: []string{"FRESHCACHE_STORE_URL"},
		},
		&cli.StringFlag{
			Name:    "store-auth",
			Usage:   "Value of the Authorization header sent to the remote record store",
			EnvVars: []string{"FRESHCACHE_STORE_AUTH"},
		},
		&cli.PathFlag{
			Name:  "seed",
			Usage: "JSON file of records to load into the in-memory store",
		},
		&cli.StringSliceFlag{
			Name:    "worker-url",
			Usage:   "Worker URL to send refresh requests to. Repeatable",
			EnvVars: []string{"FRESHCACHE_WORKER_URLS"},
		},
		&cli.StringFlag{
			Name:  "topic",
			Usage: "Gossip pubsub topic to publish refresh requests on. Disabled if empty",
		},
		&cli.BoolFlag{
			Name:  "async",
			Usage: "Queue refresh requests and send them in the background",
			Value: true,
		},
		&cli.BoolFlag{
			Name:  "demo",
			Usage: "Serve demo computations from the remote record store",
		},
		&cli.BoolFlag{
			Name:  "strict-lock",
			Usage: "Take the refresh lock with compare-and-swap. Only used with the in-memory store",
		},
		&cli.DurationFlag{
			Name:  "retry-wait",
			Usage: "Minimum wait between retries of remote requests. Retries are disabled if 0",
		},
	},
	Action: serveAction,
}

func setLogLevel(level string) error {
	for _, name := range []string{"freshcache", "reader", "memo", "dispatch", "server", "dsstore"} {
		if err := logging.SetLogLevel(name, level); err != nil {
			return fmt.Errorf("cannot set log level: %w", err)
		}
	}
	return nil
}

func serveAction(cctx *cli.Context) error {
	ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	retryWait := cctx.Duration("retry-wait")

	var st store.Store
	var readerOpts []reader.Option
	if storeURL := cctx.String("store-url"); storeURL != "" {
		var opts []httpstore.Option
		if retryWait != 0 {
			opts = append(opts, httpstore.WithRetries(3, retryWait, 10*retryWait))
		}
		hs, err := httpstore.New(storeURL, opts...)
		if err != nil {
			return err
		}
		if auth := cctx.String("store-auth"); auth != "" {
			hs.AddHeader("Authorization", auth)
		}
		if cctx.Bool("demo") {
			readerOpts = append(readerOpts, reader.WithDemo(hs, hs))
		}
		st = hs
		log.Infow("Using remote store", "url", hs.String())
	} else {
		ds, err := dsstore.New(dssync.MutexWrap(datastore.NewMapDatastore()))
		if err != nil {
			return err
		}
		if seed := cctx.Path("seed"); seed != "" {
			n, err := loadSeed(ctx, ds, seed)
			if err != nil {
				return err
			}
			log.Infow("Loaded seed records", "count", n, "file", seed)
		}
		if cctx.Bool("strict-lock") {
			readerOpts = append(readerOpts, reader.WithStrictLock(ds))
		}
		st = ds
		log.Info("Using in-memory store")
	}

	senders, p2pHost, err := newSenders(cctx, retryWait)
	if p2pHost != nil {
		defer p2pHost.Close()
	}
	if err != nil {
		return err
	}

	var dispatchOpts []dispatch.Option
	if cctx.Bool("async") {
		dispatchOpts = append(dispatchOpts, dispatch.WithAsync())
	}
	dispatcher, err := dispatch.New(st, senders, dispatchOpts...)
	if err != nil {
		for _, s := range senders {
			s.Close()
		}
		return err
	}
	defer func() {
		if err := dispatcher.Close(); err != nil {
			log.Errorw("Error closing dispatcher", "err", err)
		}
	}()

	rdr, err := reader.New(st, dispatcher, readerOpts...)
	if err != nil {
		return err
	}
	defer rdr.Close()

	handler, err := server.New(rdr)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cctx.String("listen"),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infow("HTTP server listening", "addr", httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err = <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("cannot shut down http server: %w", err)
	}
	return nil
}

// newSenders creates the refresh senders selected by flags. The returned host,
// if not nil, must be closed after the senders.
func newSenders(cctx *cli.Context, retryWait time.Duration) ([]dispatch.Sender, host.Host, error) {
	var senders []dispatch.Sender

	if workers := cctx.StringSlice("worker-url"); len(workers) != 0 {
		urls := make([]*url.URL, 0, len(workers))
		for _, w := range workers {
			u, err := url.Parse(w)
			if err != nil {
				return nil, nil, fmt.Errorf("bad worker url %q: %w", w, err)
			}
			urls = append(urls, u)
		}
		var opts []httpsender.Option
		if retryWait != 0 {
			opts = append(opts, httpsender.WithRetries(3, retryWait, 10*retryWait))
		}
		hs, err := httpsender.New(urls, opts...)
		if err != nil {
			return nil, nil, err
		}
		senders = append(senders, hs)
	}

	var p2pHost host.Host
	if topic := cctx.String("topic"); topic != "" {
		var err error
		p2pHost, err = libp2p.New()
		if err != nil {
			return nil, nil, fmt.Errorf("cannot create libp2p host: %w", err)
		}
		ps, err := p2psender.New(p2pHost, topic)
		if err != nil {
			return nil, p2pHost, err
		}
		log.Infow("Publishing refresh requests", "topic", topic, "peer", p2pHost.ID())
		senders = append(senders, ps)
	}

	if len(senders) == 0 {
		return nil, p2pHost, errors.New("at least one of --worker-url or --topic is required")
	}
	return senders, p2pHost, nil
}
