// Copyright 2026 The Flowroute Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command flowrouted runs the reverse proxy: one or more HTTP/HTTPS
// acceptors dispatching against a live routing table kept current by a
// set of configurators (file directories, Kubernetes resources), with
// optional automatic TLS certificate issuance and cluster-wide challenge
// replication.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/client-go/dynamic"
	k8sclient "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/flowroute/flowroute/internal/autotls/cluster"
	"github.com/flowroute/flowroute/internal/autotls/core"
	"github.com/flowroute/flowroute/internal/autotls/discovery"
	"github.com/flowroute/flowroute/internal/config"
	"github.com/flowroute/flowroute/internal/configurator"
	"github.com/flowroute/flowroute/internal/dispatch"
	"github.com/flowroute/flowroute/internal/forwarder"
	"github.com/flowroute/flowroute/internal/internalservices"
	"github.com/flowroute/flowroute/internal/name"
	"github.com/flowroute/flowroute/internal/sources/file"
	k8ssource "github.com/flowroute/flowroute/internal/sources/kubernetes"
	"github.com/flowroute/flowroute/internal/tlsstore"
	"github.com/flowroute/flowroute/internal/wasmhost"
	"github.com/flowroute/flowroute/internal/wsproxy"
)

func main() {
	os.Exit(run_())
}

func run_() int {
	a := kingpin.New("flowrouted", "HTTP/1.1 reverse proxy and load balancer")
	a.HelpFlag.Short('h')

	var (
		httpAddr    = a.Flag("http-addr", "Address to accept plaintext HTTP connections on.").Default(":8080").String()
		httpsAddr   = a.Flag("https-addr", "Address to accept TLS connections on.").Default("").String()
		metricsAddr = a.Flag("metrics-addr", "Address to expose Prometheus metrics on.").Default(":9090").String()
		clusterAddr = a.Flag("cluster-addr", "Address this node's auto-TLS cluster RPC listens on.").Default("").String()

		fileDir      = a.Flag("configurator.file.dir", "Directory of YAML route/middleware documents to watch.").Default("").String()
		k8sEnabled   = a.Flag("configurator.kubernetes.enabled", "Watch Kubernetes Endpoints/Secrets/Ingress/IngressRoute resources.").Default("false").Bool()
		kubeconfig   = a.Flag("kubeconfig", "Path to a kubeconfig file; empty uses in-cluster config.").Default("").String()
		apiserverURL = a.Flag("apiserver", "Kubernetes API server URL override.").Default("").String()
		k8sNamespace = a.Flag("configurator.kubernetes.namespace", "Namespace to watch; empty watches every namespace.").Default("").String()

		autoTLSEnabled = a.Flag("autotls.enabled", "Enable automatic ACME certificate issuance.").Default("false").Bool()
		autoTLSStaging = a.Flag("autotls.environment", "ACME environment: staging or production.").Default("staging").Enum("staging", "production")
		autoTLSContact = a.Flag("autotls.contact", "Contact email for the ACME account.").Default("").String()

		clusterDataDir   = a.Flag("autotls.cluster.data-dir", "Directory for this node's Raft log, stable store and snapshots.").Default("./cluster-data").String()
		clusterBootstrap = a.Flag("autotls.cluster.bootstrap", "Bootstrap a new single-node cluster on first start.").Default("false").Bool()
		clusterPeersFile = a.Flag("autotls.cluster.peers-file", "Newline-separated host:port peer list; empty disables membership discovery.").Default("").String()

		pluginsDir = a.Flag("plugins.dir", "Directory of compiled WASM plugin modules.").Default("").String()
		logLevel   = a.Flag("log.level", "Log level: debug, info, warn, error.").Default("info").Enum("debug", "info", "warn", "error")
	)

	if _, err := a.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing flags: %v\n", err)
		return 2
	}

	threads := 6
	if v, err := strconv.Atoi(os.Getenv("THREADS")); err == nil && v > 0 {
		threads = v
	}
	runtime.GOMAXPROCS(threads)

	levelName := *logLevel
	if v := os.Getenv("FLOWROUTE_LOG"); v != "" {
		levelName = v
	}
	logger := newLogger(levelName)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	tlsStore := tlsstore.New()
	certQueue := core.NewCertificateQueue(256)

	manager := configurator.NewManager(certQueue, log.With(logger, "component", "configurator"))

	var registeredConfiguratorNames []string
	register := func(c *configurator.GeneralConfigurator) {
		manager.Register(c)
		registeredConfiguratorNames = append(registeredConfiguratorNames, c.Name)
	}

	if *fileDir != "" {
		register(&configurator.GeneralConfigurator{
			Name:    "file",
			Loader:  file.New(*fileDir),
			Parser:  file.New(*fileDir),
			Emitter: file.New(*fileDir),
			Logger:  log.With(logger, "source", "file"),
		})
	}

	if *k8sEnabled {
		cfg, err := clientcmd.BuildConfigFromFlags(*apiserverURL, *kubeconfig)
		if err != nil {
			level.Error(logger).Log("msg", "building kubeconfig failed", "err", err)
			return 1
		}
		clientset, err := k8sclient.NewForConfig(cfg)
		if err != nil {
			level.Error(logger).Log("msg", "building kubernetes client failed", "err", err)
			return 1
		}
		dynamicClient, err := dynamic.NewForConfig(cfg)
		if err != nil {
			level.Error(logger).Log("msg", "building kubernetes dynamic client failed", "err", err)
			return 1
		}
		registerKubernetesSources(register, clientset, dynamicClient, *k8sNamespace, logger)
	}

	var wasmHost *wasmhost.Host
	if *pluginsDir != "" {
		h, err := wasmhost.NewHost(context.Background())
		if err != nil {
			level.Error(logger).Log("msg", "starting WASM plugin host failed", "err", err)
			return 1
		}
		wasmHost = h
		if err := loadPlugins(context.Background(), wasmHost, manager.Plugins, *pluginsDir, logger); err != nil {
			level.Error(logger).Log("msg", "loading WASM plugins failed", "dir", *pluginsDir, "err", err)
			return 1
		}
	}

	if err := manager.Load(context.Background()); err != nil {
		level.Error(logger).Log("msg", "initial configuration load failed", "err", err)
		return 1
	}

	fwd := forwarder.New(forwarder.DefaultIdleCacheSize)

	dashboard := &internalservices.Dashboard{
		Acceptors:     func() []string { return acceptorList(*httpAddr, *httpsAddr) },
		Configurators: func() []string { return registeredConfiguratorNames },
		Rules:         manager.Rules,
		Services:      manager.Services,
		Middlewares:   manager.Middlewares,
		Plugins:       manager.Plugins,
		Logger:        log.With(logger, "component", "dashboard"),
	}

	challenges := core.NewChallengeList()
	acmeResponder := &internalservices.ACMEResponder{Challenges: challenges}

	wsProxy := &wsproxy.Proxy{Forwarder: fwd, Logger: log.With(logger, "component", "wsproxy")}

	disp := &dispatch.Dispatcher{
		Rules:     manager.Rules,
		Forwarder: fwd,
		Internal: map[string]dispatch.Handler{
			"dashboard": dashboard,
			"acme":      acmeResponder,
		},
		WebSocket: wsProxy.Handle,
		Logger:    log.With(logger, "component", "dispatch"),
	}

	var g run.Group

	{
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			manager.Run(ctx)
			return nil
		}, func(error) { cancel() })
	}

	ln, err := net.Listen("tcp", *httpAddr)
	if err != nil {
		level.Error(logger).Log("msg", "binding http address failed", "addr", *httpAddr, "err", err)
		return 1
	}
	g.Add(func() error {
		return disp.Serve(ln)
	}, func(error) { ln.Close() })

	if *httpsAddr != "" {
		tlsLn, err := net.Listen("tcp", *httpsAddr)
		if err != nil {
			level.Error(logger).Log("msg", "binding https address failed", "addr", *httpsAddr, "err", err)
			return 1
		}
		tlsConfig := &tls.Config{GetCertificate: tlsStore.Resolve}
		tlsAcceptor := tls.NewListener(tlsLn, tlsConfig)
		g.Add(func() error {
			return disp.Serve(tlsAcceptor)
		}, func(error) { tlsLn.Close() })
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: *metricsAddr, Handler: metricsMux}
	g.Add(func() error {
		return metricsServer.ListenAndServe()
	}, func(error) {
		metricsServer.Close()
	})

	if *autoTLSEnabled {
		directory := core.LetsEncryptStaging
		if *autoTLSStaging == "production" {
			directory = core.LetsEncryptProduction
		}

		var clusterImpl core.Cluster = core.NewSoloCluster(challenges)

		if *clusterAddr != "" {
			node, err := newClusterNode(*clusterAddr, *clusterDataDir, *clusterBootstrap, challenges)
			if err != nil {
				level.Error(logger).Log("msg", "starting auto-TLS cluster node failed", "err", err)
				return 1
			}
			clusterImpl = node

			clusterMux := http.NewServeMux()
			node.RegisterHandlers(clusterMux)
			clusterLn, err := net.Listen("tcp", *clusterAddr)
			if err != nil {
				level.Error(logger).Log("msg", "binding cluster address failed", "addr", *clusterAddr, "err", err)
				return 1
			}
			clusterServer := &http.Server{Handler: clusterMux}
			g.Add(func() error {
				return clusterServer.Serve(clusterLn)
			}, func(error) { clusterServer.Close() })

			if *clusterPeersFile != "" {
				selfID := cluster.NodeID(net.ParseIP(hostOf(*clusterAddr)), portOf(*clusterAddr))
				peers := &discovery.FileDiscovery{Path: *clusterPeersFile, Self: discovery.NodeID(selfID), Port: portOf(*clusterAddr)}
				membershipCh := make(chan cluster.MembershipUpdate)
				mctx, mcancel := context.WithCancel(context.Background())
				g.Add(func() error {
					updates := peers.Watch(mctx)
					for {
						select {
						case <-mctx.Done():
							return nil
						case u, ok := <-updates:
							if !ok {
								return nil
							}
							membershipCh <- cluster.MembershipUpdate{ID: string(u.ID), Addr: u.Addr, Remove: u.Remove}
						}
					}
				}, func(error) { mcancel() })
				g.Add(func() error {
					cluster.ReconcileMembership(mctx, node, membershipCh, log.With(logger, "component", "autotls-membership"))
					return nil
				}, func(error) { mcancel() })
			}
		}

		session := &core.Session{
			Queue:     certQueue,
			Cluster:   clusterImpl,
			Store:     tlsStore,
			Directory: directory,
			Contact:   *autoTLSContact,
			Logger:    log.With(logger, "component", "autotls-session"),
		}
		renewer := &core.Renewer{Store: tlsStore, Queue: certQueue, Logger: log.With(logger, "component", "autotls-renew")}

		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			return session.Run(ctx)
		}, func(error) { cancel() })

		rctx, rcancel := context.WithCancel(context.Background())
		g.Add(func() error {
			return renewer.Run(rctx)
		}, func(error) { rcancel() })
	}

	if wasmHost != nil {
		defer wasmHost.Close(context.Background())
	}

	{
		term := make(chan os.Signal, 1)
		cancel := make(chan struct{})
		signal.Notify(term, os.Interrupt, syscall.SIGTERM)
		g.Add(func() error {
			select {
			case <-term:
				level.Info(logger).Log("msg", "received termination signal, shutting down")
			case <-cancel:
			}
			return nil
		}, func(error) { close(cancel) })
	}

	if err := g.Run(); err != nil {
		level.Error(logger).Log("msg", "exiting", "err", err)
		return 1
	}
	return 0
}

func newLogger(levelFlag string) log.Logger {
	logger := log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
	switch strings.ToLower(levelFlag) {
	case "debug":
		return level.NewFilter(logger, level.AllowDebug())
	case "warn":
		return level.NewFilter(logger, level.AllowWarn())
	case "error":
		return level.NewFilter(logger, level.AllowError())
	default:
		return level.NewFilter(logger, level.AllowInfo())
	}
}

// registerKubernetesSources registers one configurator per watched
// resource kind, each sharing the same clientset and namespace scope.
func registerKubernetesSources(register func(*configurator.GeneralConfigurator), clientset k8sclient.Interface, dynamicClient dynamic.Interface, namespace string, logger log.Logger) {
	register(&configurator.GeneralConfigurator{
		Name:    "kubernetes-endpoints",
		Loader:  &k8ssource.EndpointsSource{Client: clientset, Namespace: namespace, Logger: log.With(logger, "source", "k8s-endpoints")},
		Parser:  &k8ssource.EndpointsSource{Client: clientset, Namespace: namespace},
		Emitter: &k8ssource.EndpointsSource{Client: clientset, Namespace: namespace, Logger: log.With(logger, "source", "k8s-endpoints")},
	})
	register(&configurator.GeneralConfigurator{
		Name:    "kubernetes-secrets",
		Loader:  &k8ssource.SecretsSource{Client: clientset, Namespace: namespace, Logger: log.With(logger, "source", "k8s-secrets")},
		Parser:  &k8ssource.SecretsSource{Client: clientset, Namespace: namespace},
		Emitter: &k8ssource.SecretsSource{Client: clientset, Namespace: namespace, Logger: log.With(logger, "source", "k8s-secrets")},
	})
	register(&configurator.GeneralConfigurator{
		Name:    "kubernetes-ingress",
		Loader:  &k8ssource.IngressSource{Client: clientset, Namespace: namespace, Logger: log.With(logger, "source", "k8s-ingress")},
		Parser:  &k8ssource.IngressSource{Client: clientset, Namespace: namespace},
		Emitter: &k8ssource.IngressSource{Client: clientset, Namespace: namespace, Logger: log.With(logger, "source", "k8s-ingress")},
	})
	register(&configurator.GeneralConfigurator{
		Name:    "kubernetes-traefik",
		Loader:  &k8ssource.TraefikSource{Dynamic: dynamicClient, Namespace: namespace, Logger: log.With(logger, "source", "k8s-traefik")},
		Parser:  &k8ssource.TraefikSource{Dynamic: dynamicClient, Namespace: namespace},
		Emitter: &k8ssource.TraefikSource{Dynamic: dynamicClient, Namespace: namespace, Logger: log.With(logger, "source", "k8s-traefik")},
	})
}

// newClusterNode derives this node's Raft server ID from its own cluster
// address and stands up the node, bootstrapping a fresh single-node
// cluster when requested.
func newClusterNode(bindAddr, dataDir string, bootstrap bool, challenges *core.ChallengeList) (*cluster.Node, error) {
	id := cluster.NodeID(net.ParseIP(hostOf(bindAddr)), portOf(bindAddr))
	return cluster.NewNode(cluster.Config{
		ID:         id,
		BindAddr:   bindAddr,
		DataDir:    dataDir,
		Challenges: challenges,
		Bootstrap:  bootstrap,
	})
}

func hostOf(hostport string) string {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport
	}
	return host
}

func portOf(hostport string) int {
	_, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return 0
	}
	port, _ := strconv.Atoi(portStr)
	return port
}

// loadPlugins compiles every *.wasm file directly under dir and registers
// it as a named Plugin, keyed by its filename without the extension, so
// rules can reference it the same way they reference any other plugin
// regardless of which configurator actually defined the owning rule.
func loadPlugins(ctx context.Context, host *wasmhost.Host, plugins *config.Collection[*config.Plugin], dir string, logger log.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".wasm") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		wasmBytes, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		localName := strings.TrimSuffix(entry.Name(), ".wasm")
		module, err := host.Compile(ctx, localName, wasmBytes)
		if err != nil {
			return fmt.Errorf("compiling %s: %w", path, err)
		}
		n := name.New(localName, name.File)
		plugins.Set(n, &config.Plugin{Name: n, Module: module})
		level.Info(logger).Log("msg", "loaded plugin", "name", localName, "path", path)
	}
	return nil
}

func acceptorList(httpAddr, httpsAddr string) []string {
	out := []string{"http:" + httpAddr}
	if httpsAddr != "" {
		out = append(out, "https:"+httpsAddr)
	}
	return out
}
