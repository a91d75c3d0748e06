/*
This command provides an executable version of chproxy, the dynamic
reverse proxy: it listens on a data-plane port and a management-API
port, routing HTTP and WebSocket traffic through a mutable table that
the management API controls.

For the list of command line options, run:

    chproxy -help
*/
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/chproxy/chproxy/api"
	"github.com/chproxy/chproxy/config"
	"github.com/chproxy/chproxy/logging"
	"github.com/chproxy/chproxy/proxy"
	"github.com/chproxy/chproxy/router"
	"github.com/chproxy/chproxy/store"

	_ "github.com/chproxy/chproxy/store/memory"
	_ "github.com/chproxy/chproxy/store/redisstore"
	_ "github.com/chproxy/chproxy/store/sqlstore"
)

func main() {
	cfg := config.NewConfig()
	if err := cfg.Parse(); err != nil {
		log.Fatal(err)
	}

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func run(cfg *config.Config) error {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", cfg.LogLevel, err)
	}
	logging.Init(logging.Options{ApplicationLogLevel: level})
	log := logging.New()

	s, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open %q storage backend: %w", cfg.StorageBackend, err)
	}

	if cfg.DefaultTarget != "" {
		if err := s.Add(context.Background(), "/", &store.Record{
			Target: cfg.DefaultTarget, LastActivity: time.Now(),
		}); err != nil {
			return fmt.Errorf("failed to register --default-target: %w", err)
		}
	}

	if cfg.PIDFile != "" {
		if err := writePIDFile(cfg.PIDFile); err != nil {
			return fmt.Errorf("failed to write pid file: %w", err)
		}
	}

	r := router.New(s, log)

	opt := proxy.NewOptions()
	opt.PrependPath = !cfg.NoPrependPath
	opt.IncludePrefix = !cfg.NoIncludePrefix
	opt.XForward = !cfg.NoXForward
	opt.ChangeOrigin = cfg.ChangeOrigin
	opt.CustomHeaders = cfg.CustomHeaders
	opt.Timeout = cfg.Timeout
	opt.ProxyTimeout = cfg.ProxyTimeout
	opt.ErrorTarget = cfg.ErrorTarget
	opt.ErrorPath = cfg.ErrorPath
	opt.ListenPort = strconv.Itoa(cfg.Port)

	p := proxy.New(r, opt, log)
	a := api.New(s, cfg.AuthToken, cfg.AllowMetadataOnlyUpdates, log)

	proxyAddr := net.JoinHostPort(cfg.IP, strconv.Itoa(cfg.Port))
	apiAddr := net.JoinHostPort(cfg.APIIP, strconv.Itoa(cfg.APIPort))

	proxyServer := &http.Server{Addr: proxyAddr, Handler: p}
	apiServer := &http.Server{Addr: apiAddr, Handler: a}

	var wg sync.WaitGroup
	serve := func(srv *http.Server, name string) {
		defer wg.Done()
		log.Infof("chproxy: %s listening on %s", name, srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("chproxy: %s server failed: %v", name, err)
		}
	}
	wg.Add(2)
	go serve(proxyServer, "data plane")
	go serve(apiServer, "management API")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	log.Info("chproxy: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = proxyServer.Shutdown(ctx)
	_ = apiServer.Shutdown(ctx)
	wg.Wait()

	return nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	conn := cfg.DatabaseURL
	if cfg.StorageBackend == "sql" && cfg.DatabaseTable != "" {
		conn = conn + "#" + cfg.DatabaseTable
	}
	return store.New(cfg.StorageBackend, conn)
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}
