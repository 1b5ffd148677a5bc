package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"capclicker.app/internal/observerproto"
	"capclicker.app/internal/persistence/archive"
	"capclicker.app/internal/persistence/ingest"
	persistlog "capclicker.app/internal/persistence/log"
	"capclicker.app/internal/protocol"
	"capclicker.app/internal/sim/catalogs"
	"capclicker.app/internal/sim/game"
	"capclicker.app/internal/sim/session"
	"capclicker.app/internal/sim/tuning"
	"capclicker.app/internal/telemetry"
	"capclicker.app/internal/transport/observer"
	"capclicker.app/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		seed       = flag.Int64("seed", 0, "offer sampler seed (0: time based)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dbPath     = flag.String("db", "", "sqlite path (default: <data>/index/capclicker.sqlite)")
		disableDB  = flag.Bool("disable_db", false, "keep saves as files under <data>/saves instead of sqlite")
		eventLog   = flag.Bool("event_log", true, "write telemetry to hourly jsonl.zst files under <data>/events")
		archiveOn  = flag.Bool("archive_runs", true, "archive the final state of every ascended run under <data>/archives")
		authSecret = flag.String("auth_secret", "", "hmac secret for player tokens (or set CC_AUTH_SECRET; empty: dev mode)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if tune.ProtocolVersion != "" && tune.ProtocolVersion != protocol.Version {
		logger.Fatalf("tuning protocol_version=%s but server speaks %s", tune.ProtocolVersion, protocol.Version)
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	engine := game.NewEngine(cats, tune.Rules(), game.NewRandSampler(*seed))
	logger.Printf("catalogs upgrades=%d (%s) offers=%d (%s) seed=%d multiplier_mode=%s",
		len(cats.Upgrades.Defs), shortDigest(cats.Upgrades.Digest),
		len(cats.Offers.Defs), shortDigest(cats.Offers.Digest),
		*seed, tune.Offers.MultiplierMode)

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}
	rt, err := openRuntimeStore(*dataDir, *dbPath, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer rt.Close()
	if rt.db != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rt.db.UpsertCatalogs(ctx, cats); err != nil {
			logger.Printf("store: upsert catalogs: %v", err)
		}
		cancel()
	}

	// Telemetry fan-out: hourly event log plus the events table.
	var sinks telemetry.Multi
	var eventQueue *telemetry.Async
	if *eventLog {
		evlog := persistlog.NewEventLogger(*dataDir)
		defer evlog.Close()
		eventQueue = telemetry.NewAsync(evlog, 4096, logger)
		defer eventQueue.Close()
		sinks = append(sinks, eventQueue)
	}
	if rt.db != nil {
		sinks = append(sinks, rt.db)
	}
	forwarder, err := openIngest(logger)
	if err != nil {
		logger.Fatalf("telemetry ingest: %v", err)
	}
	if forwarder != nil {
		defer forwarder.Close()
		sinks = append(sinks, forwarder)
	}

	var archiver session.Archiver
	if *archiveOn {
		archiver = archive.NewDir(filepath.Join(*dataDir, "archives"))
	}

	mgr := session.NewManager(session.Deps{
		Engine:  engine,
		Store:   rt.store,
		Archive: archiver,
		Sink:    sinks,
		Logger:  logger,
	}, session.Config{
		TickPeriod: tune.TickPeriod(),
		OfferPoll:  tune.OfferPoll(),
		SavePeriod: tune.SavePeriod(),
		StatePush:  tune.StatePush(),
	})
	// Closing the manager runs the final saves; sinks and the store close after it.
	defer mgr.Close()

	secret := strings.TrimSpace(*authSecret)
	if secret == "" {
		secret = strings.TrimSpace(os.Getenv("CC_AUTH_SECRET"))
	}
	if secret == "" {
		logger.Printf("auth: no secret configured; tokens are not checked (dev mode)")
	}
	wsSrv := ws.NewServer(mgr, sinks, ws.Config{
		AuthSecret:       secret,
		ActionsPerSecond: tune.RateLimits.ActionsPerSecond,
		ActionBurst:      tune.RateLimits.ActionBurst,
		Params: protocol.GameParams{
			TickMs:          tune.TickMs,
			StatePushMs:     tune.StatePushMs,
			OfferIntervalMs: tune.OfferIntervalMs,
			OfferCount:      tune.Offers.Count,
		},
	}, logger)
	obs := observer.NewServer(mgr, logger)

	ctx, cancel := signalContext()
	defer cancel()

	startedAt := time.Now()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/catalogs", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{
			"upgrades":        cats.Upgrades.Defs,
			"upgrades_digest": cats.Upgrades.Digest,
			"offers":          cats.Offers.Defs,
			"offers_digest":   cats.Offers.Digest,
		})
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, mgr, rt, eventQueue, forwarder, startedAt)
	})

	if envBool("CC_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			user := strings.TrimSpace(r.URL.Query().Get("user"))
			sess, ok := mgr.Lookup(user)
			if !ok {
				http.Error(rw, "user not connected", http.StatusNotFound)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(sess.View())
		})
		mux.HandleFunc("/admin/v1/save", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			saved := 0
			for _, sess := range mgr.Sessions() {
				res, err := sess.Do(r.Context(), session.Action{Kind: session.KindSave})
				if err == nil && res.OK() {
					saved++
				}
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "requested": saved})
		})
		mux.HandleFunc("/admin/v1/observer/sessions", obs.SessionsHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obs.WSHandler())
	} else {
		logger.Printf("admin endpoints disabled (CC_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("CC_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (protocol %s, observer %s)", *addr, protocol.Version, observerproto.Version)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	logger.Printf("shutting down: %d active sessions", mgr.Active())
}

func writeMetrics(rw http.ResponseWriter, mgr *session.Manager, rt runtimeStore, events *telemetry.Async, fwd *ingest.Forwarder, startedAt time.Time) {
	fmt.Fprintf(rw, "# HELP capclicker_uptime_seconds Seconds since the server started.\n")
	fmt.Fprintf(rw, "# TYPE capclicker_uptime_seconds gauge\n")
	fmt.Fprintf(rw, "capclicker_uptime_seconds %d\n", int64(time.Since(startedAt).Seconds()))

	fmt.Fprintf(rw, "# HELP capclicker_sessions_active Players with a running session.\n")
	fmt.Fprintf(rw, "# TYPE capclicker_sessions_active gauge\n")
	fmt.Fprintf(rw, "capclicker_sessions_active %d\n", mgr.Active())

	if rt.db != nil {
		s := rt.db.Stats()
		fmt.Fprintf(rw, "# HELP capclicker_db_event_queue_depth Telemetry events waiting for the sqlite writer.\n")
		fmt.Fprintf(rw, "# TYPE capclicker_db_event_queue_depth gauge\n")
		fmt.Fprintf(rw, "capclicker_db_event_queue_depth %d\n", s.QueueDepth)

		fmt.Fprintf(rw, "# HELP capclicker_db_event_queue_capacity Sqlite telemetry queue capacity.\n")
		fmt.Fprintf(rw, "# TYPE capclicker_db_event_queue_capacity gauge\n")
		fmt.Fprintf(rw, "capclicker_db_event_queue_capacity %d\n", s.QueueCapacity)

		fmt.Fprintf(rw, "# HELP capclicker_db_event_dropped_total Telemetry events dropped because the sqlite queue was full.\n")
		fmt.Fprintf(rw, "# TYPE capclicker_db_event_dropped_total counter\n")
		fmt.Fprintf(rw, "capclicker_db_event_dropped_total %d\n", s.DropEventTotal)

		fmt.Fprintf(rw, "# HELP capclicker_db_event_write_failures_total Failed sqlite telemetry writes.\n")
		fmt.Fprintf(rw, "# TYPE capclicker_db_event_write_failures_total counter\n")
		fmt.Fprintf(rw, "capclicker_db_event_write_failures_total %d\n", s.EventWriteFailures)
	}

	if events != nil {
		s := events.Stats()
		fmt.Fprintf(rw, "# HELP capclicker_event_log_queue_depth Telemetry events waiting for the event log writer.\n")
		fmt.Fprintf(rw, "# TYPE capclicker_event_log_queue_depth gauge\n")
		fmt.Fprintf(rw, "capclicker_event_log_queue_depth %d\n", s.QueueDepth)

		fmt.Fprintf(rw, "# HELP capclicker_event_log_dropped_total Telemetry events dropped because the event log queue was full.\n")
		fmt.Fprintf(rw, "# TYPE capclicker_event_log_dropped_total counter\n")
		fmt.Fprintf(rw, "capclicker_event_log_dropped_total %d\n", s.DroppedTotal)

		fmt.Fprintf(rw, "# HELP capclicker_event_log_failures_total Failed event log writes.\n")
		fmt.Fprintf(rw, "# TYPE capclicker_event_log_failures_total counter\n")
		fmt.Fprintf(rw, "capclicker_event_log_failures_total %d\n", s.FailedTotal)
	}

	if fwd != nil {
		s := fwd.Stats()
		fmt.Fprintf(rw, "# HELP capclicker_ingest_queue_depth Telemetry events waiting for the remote ingest sender.\n")
		fmt.Fprintf(rw, "# TYPE capclicker_ingest_queue_depth gauge\n")
		fmt.Fprintf(rw, "capclicker_ingest_queue_depth %d\n", s.QueueDepth)

		fmt.Fprintf(rw, "# HELP capclicker_ingest_sent_total Telemetry events accepted by the remote ingest endpoint.\n")
		fmt.Fprintf(rw, "# TYPE capclicker_ingest_sent_total counter\n")
		fmt.Fprintf(rw, "capclicker_ingest_sent_total %d\n", s.SentTotal)

		fmt.Fprintf(rw, "# HELP capclicker_ingest_dropped_total Telemetry events dropped because the ingest queue was full.\n")
		fmt.Fprintf(rw, "# TYPE capclicker_ingest_dropped_total counter\n")
		fmt.Fprintf(rw, "capclicker_ingest_dropped_total %d\n", s.DroppedTotal)

		fmt.Fprintf(rw, "# HELP capclicker_ingest_failed_total Telemetry events lost after ingest retries.\n")
		fmt.Fprintf(rw, "# TYPE capclicker_ingest_failed_total counter\n")
		fmt.Fprintf(rw, "capclicker_ingest_failed_total %d\n", s.FailedTotal)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
