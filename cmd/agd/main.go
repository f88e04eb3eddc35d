// Command agd is the acquisition gateway daemon: a thin main that parses
// flags and config, then delegates to the gw, driver, and reversion
// packages for everything else.
package main

import (
	"context"
	"crypto/ed25519"
	cryptorand "crypto/rand"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/golang/glog"

	"github.com/acqgw/ag/internal/cache"
	"github.com/acqgw/ag/internal/cmn"
	"github.com/acqgw/ag/internal/codec"
	"github.com/acqgw/ag/internal/driver"
	"github.com/acqgw/ag/internal/gw"
	"github.com/acqgw/ag/internal/msclient"
	"github.com/acqgw/ag/internal/namespace"
	"github.com/acqgw/ag/internal/reconcile"
	"github.com/acqgw/ag/internal/reversion"
	"github.com/acqgw/ag/internal/specfile"
	"github.com/acqgw/ag/internal/stats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
)

var cli struct {
	eventSocket  string
	logFile      string
	driverDir    string
	specfilePath string
	queueAll     bool
	cacheSoft    int64
	cacheHard    int64

	gatewayID  string
	listenAddr string
}

func init() {
	flag.StringVar(&cli.eventSocket, "e", "", "UNIX SEQPACKET socket path for control events (required)")
	flag.StringVar(&cli.logFile, "i", "", "log file path")
	flag.StringVar(&cli.driverDir, "D", "", "driver executable directory")
	flag.StringVar(&cli.specfilePath, "s", "", "local specfile override path (empty: fetch from MS)")
	flag.BoolVar(&cli.queueAll, "n", false, "queue every entry for reversion at startup")
	flag.Int64Var(&cli.cacheSoft, "l", cmn.DefaultCacheSoftLimit, "cache soft limit, bytes")
	flag.Int64Var(&cli.cacheHard, "L", cmn.DefaultCacheHardLimit, "cache hard limit, bytes")
	flag.StringVar(&cli.gatewayID, "gateway-id", "", "this gateway's coordinator id")
	flag.StringVar(&cli.listenAddr, "listen", ":8080", "HTTP listen address")
}

func main() {
	flag.Parse()
	defer glog.Flush()

	if cli.eventSocket == "" {
		glog.Exit("missing required -e control socket path")
	}
	if cli.gatewayID == "" {
		cli.gatewayID = "ag-local"
	}

	cfg := cmn.DefaultConfig()
	cfg.EventSocket = cli.eventSocket
	cfg.LogFile = cli.logFile
	cfg.DriverDir = cli.driverDir
	cfg.SpecfilePath = cli.specfilePath
	cfg.QueueAllOnBoot = cli.queueAll
	cfg.CacheSoftLimit = cli.cacheSoft
	cfg.CacheHardLimit = cli.cacheHard
	cfg.GatewayID = cli.gatewayID
	cmn.GCO.Put(cfg)

	if err := boot(cfg); err != nil {
		glog.Errorf("init failed: %v", err)
		os.Exit(1)
	}
}

func boot(cfg *cmn.Config) error {
	reg := prometheus.NewRegistry()

	pub, priv, err := ed25519.GenerateKey(cryptorand.Reader)
	if err != nil {
		return cmn.Wrap(err, "generate gateway identity")
	}
	signer := &codec.Signer{GatewayID: cfg.GatewayID, PrivateKey: priv}
	keys := codec.NewCertStore(nil, nil)
	keys.InstallSelf(cfg.GatewayID, pub)

	// The low-level MS RPC client is an external collaborator; a real
	// deployment wires one in here. Absent that, the gateway runs
	// standalone against an in-memory MS stand-in.
	ms := msclient.NewFake()

	fs := namespace.NewAGFS(ms)
	ctx := context.Background()
	if cfg.SpecfilePath != "" {
		f, err := os.Open(cfg.SpecfilePath)
		if err != nil {
			return cmn.Wrap(err, "open specfile")
		}
		doc, err := specfile.Parse(f)
		f.Close()
		if err != nil {
			return cmn.Wrap(err, "parse specfile")
		}
		newMap := specfile.BuildFS(doc)
		for k, v := range doc.Config {
			cfg.Extra[k] = v
		}
		for p, mi := range newMap {
			fs.Put(p, mi)
		}
		if err := fs.Validate(); err != nil {
			return cmn.Wrap(err, "validate specfile")
		}
		if _, err := reconcile.Resync(ctx, map[string]*namespace.MapInfo{"/": {Type: namespace.Dir, FilePerm: 0o555}}, newMap, ms, reconcile.EqualBoot); err != nil {
			return cmn.Wrap(err, "boot resync")
		}
	}
	if err := fs.DownloadMSFSMap(ctx, nil); err != nil {
		glog.Warningf("initial MS walk failed, continuing with specfile-only view: %v", err)
	}

	cacheMetrics := stats.NewCacheMetrics(reg)
	blockStore := cache.NewRAMStore()
	manifestStore := cache.NewRAMStore()
	// Stored blocks carry a signed header (volume/ids/hash/signature) ahead
	// of the padded payload, so the cap allows headroom above the raw
	// block size rather than matching it exactly.
	const blockSize = 1 << 20
	const blockCacheMaxEntry = blockSize + 4096
	blocks := cache.NewBounded(blockStore, cfg.CacheSoftLimit, cfg.CacheHardLimit, blockCacheMaxEntry, cacheMetrics)
	manifests := cache.New(manifestStore, cfg.CacheSoftLimit, cfg.CacheHardLimit, cacheMetrics)

	driverMetrics := stats.NewDriverPoolMetrics(reg)
	supervisor := driver.NewSupervisor(driverMetrics, 10*time.Second)
	if err := supervisor.Start(loadDriverSpecs(cfg)); err != nil {
		return cmn.Wrap(err, "start driver supervisor")
	}

	revSet := reversion.NewSet()
	if cfg.QueueAllOnBoot {
		revSet.AddAll(pathsOf(fs.Snapshot()))
	}

	state := &gw.State{
		GatewayID: cfg.GatewayID, BlockSize: blockSize,
		Signer: signer, Keys: keys, Blocks: blocks, Manifests: manifests,
		Supervisor: supervisor, Reversions: revSet, MS: ms,
	}
	state.SwapFS(fs)

	reversioner := reversion.New(revSet, state.FS, blocks, supervisor, ms)
	reloadLoop := gw.NewReloadLoop(state, nil, nil)

	shutdown := newShutdownSemaphore()
	control := gw.NewControlSocket(cfg.EventSocket, func(ev gw.ControlEvent) {
		switch ev.Type {
		case gw.EventTerminate:
			glog.Info("control: terminate event received, shutting down")
			shutdown.signal()
		case gw.EventReconf, gw.EventRepublish:
			reloadLoop.Trigger()
		case gw.EventDriverIOCTL:
			qt, opaque, err := gw.ParseDriverIOCTL(ev.Payload)
			if err != nil {
				glog.Warningf("control: bad driver ioctl: %v", err)
				return
			}
			glog.V(3).Infof("control: driver ioctl %s: %s", qt, opaque)
		}
	})

	httpServer := &fasthttp.Server{Handler: gw.Handler(state)}
	httpRunner := &httpServerRunner{server: httpServer, addr: cli.listenAddr}

	rg := cmn.NewRunGroup()
	rg.Add("http", httpRunner)
	rg.Add("reversioner", reversioner)
	rg.Add("reload", reloadLoop)
	rg.Add("control", control)
	rg.Add("shutdown", shutdown)

	stats.StartIOStatSampler(reg, 30*time.Second)

	go shutdown.watchSignals(syscall.SIGINT, syscall.SIGTERM)

	return rg.RunAll()
}

// shutdownSemaphore is the process-wide shutdown trigger: a TERMINATE
// control event or SIGINT/SIGTERM both signal it once, which unblocks
// Run and drives the rest of the run group to stop.
type shutdownSemaphore struct {
	once sync.Once
	ch   chan struct{}
}

func newShutdownSemaphore() *shutdownSemaphore {
	return &shutdownSemaphore{ch: make(chan struct{})}
}

func (s *shutdownSemaphore) signal() {
	s.once.Do(func() { close(s.ch) })
}

func (s *shutdownSemaphore) watchSignals(sigs ...os.Signal) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	<-ch
	s.signal()
}

func (s *shutdownSemaphore) Run() error {
	<-s.ch
	return nil
}

func (s *shutdownSemaphore) Stop(error) { s.signal() }

type httpServerRunner struct {
	server *fasthttp.Server
	addr   string
}

func (h *httpServerRunner) Run() error {
	return h.server.ListenAndServe(h.addr)
}

func (h *httpServerRunner) Stop(error) {
	_ = h.server.Shutdown()
}

func loadDriverSpecs(cfg *cmn.Config) []driver.Spec {
	var specs []driver.Spec
	if cfg.DriverDir == "" {
		return specs
	}
	entries, err := os.ReadDir(cfg.DriverDir)
	if err != nil {
		glog.Warningf("driver dir %q unreadable: %v", cfg.DriverDir, err)
		return specs
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		specs = append(specs, driver.Spec{
			QueryType: e.Name(), Path: cfg.DriverDir + "/" + e.Name(), NumInstances: 1,
		})
	}
	return specs
}

func pathsOf(m map[string]*namespace.MapInfo) []string {
	out := make([]string, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	return out
}
