// Command leo-storaged wires the core's components into a single
// running process: configuration load, metrics endpoint, Kafka queue,
// and the Handler/Watchdog pair driving request handling. Peer RPC
// transport and the client-facing gateway are non-goals of the core
// and are not implemented here — main only demonstrates
// the wiring a real front-end process would perform.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/windkit/leo-storage/internal/compactor"
	"github.com/windkit/leo-storage/internal/config"
	"github.com/windkit/leo-storage/internal/glog"
	"github.com/windkit/leo-storage/internal/handler"
	"github.com/windkit/leo-storage/internal/localstore"
	"github.com/windkit/leo-storage/internal/notify"
	"github.com/windkit/leo-storage/internal/peer"
	"github.com/windkit/leo-storage/internal/pool"
	"github.com/windkit/leo-storage/internal/queue"
	"github.com/windkit/leo-storage/internal/readrepair"
	"github.com/windkit/leo-storage/internal/replicate"
	"github.com/windkit/leo-storage/internal/ring"
	"github.com/windkit/leo-storage/internal/stats"
	"github.com/windkit/leo-storage/internal/watchdog"
)

var (
	nodeID     = flag.String("node", "node-1", "this node's id in the ring")
	configName = flag.String("config", "leo-storage", "configuration file base name, searched per internal/config.Load")
	metricsAddr = flag.String("metrics.addr", ":9091", "address the Prometheus metrics endpoint listens on")
	verbosity  = flag.Int("v", 0, "log verbosity")
)

// staticMembership is the bundled MembershipSource used when no real
// ring/membership service is wired
// in: a fixed member list read once from configuration.
type staticMembership struct{ members []string }

func (m staticMembership) RunningMembers() []string { return m.members }

func main() {
	flag.Parse()
	glog.SetVerbosity(*verbosity)

	v := config.Load(*configName)
	cfg := config.Wrap(v)

	members := cfg.GetStringSlice("ring_members")
	if len(members) == 0 {
		members = []string{*nodeID}
	}
	membership := staticMembership{members: members}

	quorum := ring.Quorum{
		N: uint8(orDefault(v.GetInt("ring_n"), 3)),
		W: uint8(orDefault(v.GetInt("ring_w"), 2)),
		R: uint8(orDefault(v.GetInt("ring_r"), 2)),
		D: uint8(orDefault(v.GetInt("ring_d"), 2)),
	}
	resolver := ring.New(membership, quorum, *nodeID)

	store := localstore.NewMemStore()

	q := queue.NewKafkaQueue()
	var activeQueue queue.Queue = q
	if err := q.Initialize(cfg); err != nil {
		glog.Warningf("kafka queue unavailable, falling back to in-process queue: %v", err)
		activeQueue = queue.NewMemQueue()
		_ = activeQueue.Initialize(cfg)
	} else if v.GetBool("queue.use_memqueue") {
		activeQueue = queue.NewMemQueue()
		_ = activeQueue.Initialize(cfg)
	}

	notifier := notify.New(activeQueue)
	peers := peer.NewFakeClient()

	reqTimeout := cfg.GetDuration(config.KeyRequestTimeout)
	if reqTimeout <= 0 {
		reqTimeout = 5 * time.Second
	}

	compactorFSM := compactor.New(store, orDefault(v.GetInt(config.KeyAutoCompactionParallel), 1))

	wdCfg := watchdog.Config{
		CPUEnabled:             cfg.GetBool(config.KeyWatchdogCPUEnabled),
		DiskEnabled:            cfg.GetBool(config.KeyWatchdogDiskEnabled),
		AutoCompactionInterval: durationOrDefault(cfg.GetDuration(config.KeyAutoCompactionInterval), time.Hour),
		AutoCompactionParallel: orDefault(v.GetInt(config.KeyAutoCompactionParallel), 1),
		CompactionPreWait:      time.Duration(orDefault(v.GetInt(config.KeyCompactionPreWaitMillis), 100)) * time.Millisecond,
		ReplicationFactorN:     int(quorum.N),
	}
	controller := watchdog.New(wdCfg, activeQueue, compactorFSM, peers, *nodeID, membership, func(key []byte) bool {
		return resolver.HasChargeOfNode(key, *nodeID)
	})

	localAdapter := handler.NewLocalAdapter(store)
	replicator := replicate.New(*nodeID, localAdapter, peers, reqTimeout)
	repairer := readrepair.NewDefaultRepairer(*nodeID, localAdapter, peers)
	rr := readrepair.New(*nodeID, localAdapter, peers, repairer)
	admission := pool.New(*nodeID, int64(orDefault(v.GetInt(config.KeyWorkerPoolPendingLimit), pool.PendingLimit)))
	h := handler.New(*nodeID, store, resolver, replicator, rr, peers, notifier, activeQueue, controller, reqTimeout, admission)
	peers.Register(*nodeID, h)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(stats.Gather, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: *metricsAddr, Handler: mux}

	go func() {
		glog.Infof("metrics listening on %s", *metricsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Fatalf("metrics server: %v", err)
		}
	}()

	glog.Infof("leo-storaged node=%s members=%s started", *nodeID, strings.Join(members, ","))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	glog.Infof("leo-storaged node=%s stopped", *nodeID)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func durationOrDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
