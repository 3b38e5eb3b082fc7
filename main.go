package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/anacrolix/log"

	"github.com/anacrolix/cdsbrowse/cds"
	"github.com/anacrolix/cdsbrowse/config"
	"github.com/anacrolix/cdsbrowse/explorer"
	"github.com/anacrolix/cdsbrowse/futures"
	"github.com/anacrolix/cdsbrowse/shell"
	"github.com/anacrolix/cdsbrowse/web"
)

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "cdsbrowse.yaml"
	}
	return filepath.Join(dir, "cdsbrowse", "config.yaml")
}

func main() {
	var (
		configPath = flag.String("config", defaultConfigPath(), "YAML config file, created if missing")
		httpAddr   = flag.String("http", "", "HTTP API listen address, overriding the config")
		ifName     = flag.String("if", "", "network interface to discover servers on, overriding the config")
		runShell   = flag.Bool("shell", false, "browse interactively")
		printIfs   = flag.Bool("ifs", false, "print the network interfaces and exit")
	)
	flag.Parse()
	logger := log.Default.WithNames("main")
	if *printIfs {
		if err := printInterfaces(os.Stdout); err != nil {
			logger.Levelf(log.Error, "%v", err)
			os.Exit(1)
		}
		return
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Levelf(log.Error, "loading config: %v", err)
		os.Exit(1)
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *ifName != "" {
		cfg.Interfaces = []string{*ifName}
	}
	level, _ := cfg.Level()
	log.Default = log.Default.FilterLevel(level)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, cfg, *runShell); err != nil {
		log.Default.WithNames("main").Levelf(log.Error, "%v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, interactive bool) error {
	logger := log.Default.WithNames("main")
	ifs, err := lookupInterfaces(cfg.Interfaces)
	if err != nil {
		return err
	}
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	exec := futures.NewExecutor(cfg.Workers)
	defer exec.Shutdown()
	registry := explorer.NewRegistry(exec)
	// Runs before exec.Shutdown, which waits on queued browses.
	defer registry.Close()
	registry.OnChange(func(ev explorer.Event) {
		logger.Printf("%v %v (%s)", ev.Type, ev.Server, ev.Server.UDN())
	})

	d := cds.NewDiscoverer(registry, httpClient)
	d.Interfaces = ifs
	d.MX = cfg.MX
	d.PageSize = cfg.PageSize
	go func() {
		if err := d.Listen(ctx); err != nil && ctx.Err() == nil {
			logger.Levelf(log.Warning, "listening for announcements: %v", err)
		}
	}()
	go func() {
		for {
			if err := d.Search(ctx); err != nil && ctx.Err() == nil {
				logger.Levelf(log.Warning, "searching: %v", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(cfg.SearchInterval):
			}
		}
	}()

	errs := make(chan error, 2)
	var srv *http.Server
	if cfg.HTTPAddr != "" {
		h := web.New(registry, httpClient)
		h.ThumbnailSize = cfg.ThumbnailSize
		srv = &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: h.Router(),
		}
		go func() {
			logger.Printf("HTTP API on %s", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errs <- err
			}
		}()
	}
	if interactive {
		go func() {
			errs <- shell.New(registry, os.Stdout).Run(ctx)
		}()
	}
	if srv == nil && !interactive {
		return errors.New("nothing to do: no HTTP address and no shell")
	}
	select {
	case <-ctx.Done():
		err = nil
	case err = <-errs:
	}
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}
	return err
}
