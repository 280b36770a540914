// Command mockrelay runs the in-process test relay on a real port, for
// trying the client against a relay that accepts, rejects, ignores, closes
// or drops on demand. Prometheus metrics are served on /metrics.
package main

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/Hubmakerlabs/postr/pkg/context"
	"github.com/Hubmakerlabs/postr/pkg/interrupt"
	"github.com/Hubmakerlabs/postr/pkg/relaytest"
	"github.com/Hubmakerlabs/postr/pkg/slog"
	"github.com/alexflint/go-arg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var log, chk = slog.New(os.Stderr)

var args Config

func gauge(name, help string, fn func() float64) prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "mockrelay_" + name,
		Help: help,
	}, fn)
}

func main() {
	arg.MustParse(&args)
	if args.ConfigFile != "" {
		if args.InitCfgCmd != nil {
			if err := args.Save(args.ConfigFile); chk.E(err) {
				os.Exit(1)
			}
			log.I.Ln("wrote configuration to", args.ConfigFile)
			return
		}
		if err := args.Load(args.ConfigFile); chk.E(err) {
			os.Exit(1)
		}
	} else if args.InitCfgCmd != nil {
		log.E.Ln("initcfg needs --config")
		os.Exit(1)
	}
	slog.SetLogLevel(slog.GetLevelByName(args.LogLevel))

	rl := relaytest.NewHandler()
	rl.SetBehaviour(relaytest.ParseBehaviour(args.Behaviour))
	if args.RejectReason != "" {
		rl.RejectReason = args.RejectReason
	}
	if args.ClosedReason != "" {
		rl.ClosedReason = args.ClosedReason
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		gauge("published_events", "EVENT messages received",
			func() float64 { return float64(len(rl.Published())) }),
		gauge("requests", "REQ messages received",
			func() float64 { return float64(rl.Requests()) }),
		gauge("subscriptions", "Open subscriptions",
			func() float64 { return float64(rl.Subscriptions()) }),
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", rl)
	srv := &http.Server{
		Addr:              args.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 7 * time.Second,
	}

	interrupt.AddHandler(func() {
		log.I.Ln("shutting down")
		sc, cancel := context.Timeout(context.Bg(), 2*time.Second)
		defer cancel()
		rl.DropConnections()
		chk.E(srv.Shutdown(sc))
	})
	log.I.F("mock relay (%s) listening on ws://%s", args.Behaviour,
		args.Listen)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		chk.E(err)
		os.Exit(1)
	}
	<-interrupt.Done()
}
