// Package catenae ties together the bus, consumer, dispatcher, rpc,
// store, loop and config packages into the link lifecycle of §4.8: a
// long-lived worker that consumes from input topics, applies a user
// transform, and republishes derived messages while exposing an RPC
// surface to peer links.
package catenae

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/catenae-go/catenae/bus"
	"github.com/catenae-go/catenae/config"
	"github.com/catenae-go/catenae/consumer"
	"github.com/catenae-go/catenae/dispatcher"
	"github.com/catenae-go/catenae/loop"
	"github.com/catenae-go/catenae/queue"
	"github.com/catenae-go/catenae/rpc"
	"github.com/catenae-go/catenae/store"
	"github.com/catenae-go/catenae/workerpool"
)

// SetupFunc is the user hook invoked once after producers are created
// and before any thread launches (§4.8: "invoke the user setup() hook
// (exception is fatal)"). Typical uses: registering RPC methods,
// seeding store state, announcing additional input topics.
type SetupFunc func(l *Link) error

// GeneratorFunc is the optional user thread launched alongside the
// other named §4.8 threads ("user generator"). It runs once for the
// life of the link; a generator that wants periodic behaviour calls
// Link.Loop itself. Left nil, the generator thread is disabled. A
// panic inside it is treated like any other fatal error (§4.8): it
// triggers Suicide rather than crashing the process.
type GeneratorFunc func(l *Link)

// Link is one worker in a pipeline: it owns the bus producer/consumers,
// the transform dispatcher, the RPC subsystem and the optional store
// connectors, and supervises their lifecycle.
type Link struct {
	UID   string
	Group string
	Class string

	cfg *config.Config
	env config.Env

	Producer *bus.Producer
	KV       store.KVStore
	Doc      store.DocStore

	Registry  *rpc.Registry
	Peers     *rpc.PeerRegistry
	Caller    *rpc.Caller
	Client    *rpc.DirectClient
	server    *rpc.DirectServer
	Generator GeneratorFunc

	workQueue   *queue.Queue
	mainSched   *consumer.Scheduler
	rpcConsumer *consumer.RPCConsumer
	mainBus     *bus.Consumer
	rpcBus      *bus.Consumer
	dispatch    *dispatcher.Dispatcher

	rpcMutex sync.Mutex

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup

	launchMu sync.Mutex
	launched bool
}

// New constructs a Link from ingested configuration. className
// identifies the link's type for the per-class consumer group default
// and the `rpc_<classname>` topic (§3, §6). transform is the user's
// per-envelope function (§4.6); setup runs once before threads launch.
func New(className string, cfg *config.Config, transform dispatcher.TransformFunc, setup SetupFunc) (*Link, error) {
	env := config.ReadEnv()
	uid := resolveUID(env)
	group := resolveGroup(cfg.GroupMode, cfg.Group, className, uid)

	l := &Link{
		UID:   uid,
		Group: group,
		Class: className,
		cfg:   cfg,
		env:   env,
		stop:  make(chan struct{}),
	}

	l.KV, l.Doc = store.Connect(cfg.StoreA, cfg.StoreB, className)

	l.Registry = rpc.NewRegistry()
	l.Peers = rpc.NewPeerRegistry()

	brokers := strings.Split(cfg.BusEndpoint, ",")

	producer, err := bus.NewProducer(brokers, func(reason string, err error) { l.Suicide(reason, err) })
	if err != nil {
		return nil, fmt.Errorf("link: producer: %w", err)
	}
	l.Producer = producer

	l.Caller = rpc.NewCaller(producer, rpc.Context{Group: group, UID: uid})
	l.Client = rpc.NewDirectClient(l.Peers)

	discovery := rpc.NewDiscovery(l.Peers, l.Client, env.JSONRPCHost, env.JSONRPCPort)
	discovery.RegisterHandlers(l.Registry)

	if setup != nil {
		if err := setup(l); err != nil {
			producer.Close()
			return nil, fmt.Errorf("link: setup hook: %w", err)
		}
	}
	l.Registry.Freeze()

	l.workQueue = queue.New()

	mainThreads, rpcThreads := cfg.MainThreads, cfg.RPCThreads
	if cfg.Sync || cfg.Seq {
		mainThreads, rpcThreads = 1, 1
	}

	autoCommit := !cfg.Sync
	mainBus, err := bus.NewConsumer(brokers, group, autoCommit, cfg.ConsumerTimeout, bus.PollTimeoutMain)
	if err != nil {
		producer.Close()
		return nil, fmt.Errorf("link: main consumer: %w", err)
	}
	l.mainBus = mainBus

	rpcBus, err := bus.NewConsumer(brokers, "rpc_"+uid+"_group", false, cfg.ConsumerTimeout, bus.PollTimeoutRPC)
	if err != nil {
		mainBus.Close()
		producer.Close()
		return nil, fmt.Errorf("link: rpc consumer: %w", err)
	}
	l.rpcBus = rpcBus

	mode := consumer.ModeParity
	if cfg.Mode == config.ModeExp {
		mode = consumer.ModeWeighted
	}
	l.mainSched = consumer.New(mainBus, mode, cfg.Sync, cfg.Input, l.workQueue)
	l.rpcConsumer = consumer.NewRPCConsumer(rpcBus, l.workQueue)

	rpcTopics := consumer.RPCTopics(uid, className)

	d := dispatcher.New(rpcTopics)
	d.Queue = l.workQueue
	d.MainPool = workerpool.New(mainThreads)
	d.RPCPool = workerpool.New(rpcThreads)
	d.Producer = producer
	d.PubOpts = bus.Options{
		DefaultTopic: firstOrEmpty(cfg.Output),
		Sequential:   cfg.Seq,
		LinkUID:      uid,
		Sync:         cfg.Sync,
	}
	d.Transform = transform
	d.RPCMutex = &l.rpcMutex
	d.Registry = l.Registry
	d.Self = rpc.Context{Group: group, UID: uid}
	d.Sync = cfg.Sync
	d.OnFatal = func(reason string, err error) { l.Suicide(reason, err) }
	l.dispatch = d

	if env.JSONRPCHost != "" && env.JSONRPCPort != "" {
		addr := env.JSONRPCHost + ":" + env.JSONRPCPort
		l.server = rpc.NewDirectServer(addr, l.Registry, &l.rpcMutex, rpc.Context{Group: group, UID: uid})
	}

	return l, nil
}

func firstOrEmpty(topics []string) string {
	if len(topics) == 0 {
		return ""
	}
	return topics[0]
}

// resolveUID implements §3/F.3: a container-aware UID that survives a
// restart when CATENAE_DOCKER truthily declares a host name, falling
// back to a fresh UUID4 otherwise.
func resolveUID(env config.Env) string {
	if env.Docker && env.Hostname != "" {
		return env.Hostname
	}
	return uuid.NewString()
}

// resolveGroup implements §3's three-way consumer group selection.
func resolveGroup(mode config.GroupMode, explicit, className, uid string) string {
	switch mode {
	case config.GroupExplicit:
		return explicit
	case config.GroupPerInstance:
		return uid
	default:
		return strings.ToLower(className)
	}
}

// AddInputTopic and RemoveInputTopic forward to the main scheduler
// (§4.5 subscription changes).
func (l *Link) AddInputTopic(topic string) { l.mainSched.AddInputTopic(topic) }
func (l *Link) RemoveInputTopic(topic string) { l.mainSched.RemoveInputTopic(topic) }

// Loop registers a periodic user thread per §4.9: target runs every
// interval (optionally waiting one interval first) until the link
// shuts down. It honours the same stop flag as every other thread the
// link supervises and is joined by Join like the rest.
func (l *Link) Loop(target func(), interval time.Duration, wait bool) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		loop.Every(target, interval, wait, l.stop)
		<-l.stop
	}()
}

// Start launches every thread per §4.8's sequence and returns once they
// are running; Join blocks until shutdown. The launched flag is
// idempotent: a second call returns immediately.
func (l *Link) Start() {
	l.launchMu.Lock()
	if l.launched {
		l.launchMu.Unlock()
		return
	}
	l.launched = true
	l.launchMu.Unlock()

	rpcTopics := consumer.RPCTopics(l.UID, l.Class)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.dispatch.Run(l.stop)
	}()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.rpcConsumer.Run(l.stopCtx(), rpcTopics, l.Suicide)
	}()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.mainSched.Run(l.stopCtx(), l.Suicide)
	}()

	if l.server != nil {
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			if err := l.server.Serve(); err != nil {
				log.Printf("[ERROR] link: direct-rpc server: %v", err)
			}
		}()
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				l.Suicide(fmt.Sprintf("exception in generator: %v", r), nil)
			}
		}()
		if l.Generator == nil {
			log.Printf("[INFO] link: generator method undefined, disabled")
			return
		}
		l.Generator(l)
	}()

	l.installSignalHandlers()

	if l.env.JSONRPCHost != "" && l.env.JSONRPCPort != "" {
		if err := rpc.BroadcastSelf(l.Caller, l.env.JSONRPCHost, l.env.JSONRPCPort, firstOrDefault(l.env.JSONRPCScheme, "http")); err != nil {
			log.Printf("[ERROR] link: broadcast self failed: %v", err)
		}
	}

	log.Printf("[INFO] link %s (group %s) started", l.UID, l.Group)
}

func firstOrDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// stopCtx adapts the link's stop channel to a context.Context for the
// consumer engines, which use ctx.Done() as their cancellation signal.
func (l *Link) stopCtx() stopContext {
	return stopContext{done: l.stop}
}

// Join blocks until the link has fully shut down.
func (l *Link) Join() {
	l.wg.Wait()
}

// Suicide is the total-shutdown path of §4.8/§7: every worker's stop
// flag is raised and the process exits 0 after joins. Safe to call
// concurrently and more than once; only the first call acts.
func (l *Link) Suicide(reason string, err error) {
	l.stopOnce.Do(func() {
		if err != nil {
			log.Printf("[EXCEPTION] link %s: suicide (%s): %v", l.UID, reason, err)
		} else {
			log.Printf("[INFO] link %s: suicide (%s)", l.UID, reason)
		}
		close(l.stop)
		l.mainBus.Close()
		l.rpcBus.Close()
		l.Producer.Close()
		if l.server != nil {
			l.server.Close()
		}
		if l.KV != nil {
			l.KV.Close()
		}
		if l.Doc != nil {
			l.Doc.Close()
		}
		go func() {
			l.wg.Wait()
			os.Exit(0)
		}()
	})
}

// installSignalHandlers wires INT/TERM/QUIT to Suicide, per §4.8. The
// three branches share one code path rather than the original's
// per-branch variable (§9's "signal handler typo" open question is
// resolved here by unifying on a single `sig` variable).
func (l *Link) installSignalHandlers() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		sig := <-sigCh
		l.Suicide(fmt.Sprintf("signal %s", sig), nil)
	}()
}

// stopContext is a minimal context.Context built on a close-only
// channel, used to drive the consumer engines' ctx.Done() checks
// without importing context's full cancellation machinery into a type
// that only ever needs Done().
type stopContext struct{ done <-chan struct{} }

func (stopContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (s stopContext) Done() <-chan struct{}     { return s.done }
func (s stopContext) Err() error {
	select {
	case <-s.done:
		return fmt.Errorf("link: stopped")
	default:
		return nil
	}
}
func (stopContext) Value(key interface{}) interface{} { return nil }
