package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/swcache"
	"github.com/unkn0wn-root/swcache/authclient"
	asynchook "github.com/unkn0wn-root/swcache/hooks/async"
	promhook "github.com/unkn0wn-root/swcache/hooks/prom"
	sloghook "github.com/unkn0wn-root/swcache/hooks/slog"
	"github.com/unkn0wn-root/swcache/internal/config"
	"github.com/unkn0wn-root/swcache/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Install, activate and serve the caching proxy",
		Example: `  swcache serve --origin https://shop.example --upstream http://127.0.0.1:3000
  swcache serve -c swcache.yaml --cache-version v2
  SWCACHE_STORAGE_PROVIDER=redis SWCACHE_STORAGE_GENSTORE=redis swcache serve -c swcache.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.String("listen", "", "listen address (default :8080)")
	f.String("upstream", "", "backend that receives proxied requests (default: origin)")
	f.String("cache-version", "", "cache version; a new value invalidates every namespace on activate")
	f.Bool("preserve-current", false, "keep this version's namespaces on activate")
	f.Bool("wait", false, "install only; activate later through POST /__sw/activate")
	_ = v.BindPFlag("listen", f.Lookup("listen"))
	_ = v.BindPFlag("upstream", f.Lookup("upstream"))
	_ = v.BindPFlag("cache.version", f.Lookup("cache-version"))
	_ = v.BindPFlag("cache.preserve_current", f.Lookup("preserve-current"))
	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		if wait, _ := cmd.Flags().GetBool("wait"); wait {
			v.Set("cache.skip_waiting", false)
		}
		return nil
	}
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	log, syncLog, err := config.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer syncLog()

	upstream, err := url.Parse(cfg.UpstreamURL())
	if err != nil {
		return fmt.Errorf("parse upstream: %w", err)
	}

	var (
		sinks   []swcache.Hooks
		metrics http.Handler
	)
	if cfg.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		ph, err := promhook.New(reg, "swcache")
		if err != nil {
			return err
		}
		sinks = append(sinks, ph)
		metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	if cfg.Log.Events {
		sinks = append(sinks, sloghook.New(slog.Default(), sloghook.Options{SelfHealEvery: 10, FallbackEvery: 10}))
	}
	// hooks run on the request path; keep them off it
	ah := asynchook.New(swcache.MultiHooks(sinks...), 1, 4096)
	defer ah.Close()
	var hooks swcache.Hooks = ah

	st, err := config.OpenStorage(ctx, cfg.Storage, log, hooks)
	if err != nil {
		return err
	}

	w, err := swcache.New(swcache.Options{
		Origin:             cfg.Origin,
		Fetcher:            server.NewUpstreamFetcher(upstream, &http.Client{}),
		Storage:            st,
		NamePrefix:         cfg.Cache.NamePrefix,
		Version:            cfg.Cache.Version,
		SeedPaths:          cfg.Cache.Seeds,
		DisableSkipWaiting: !cfg.Cache.SkipWaiting,
		PreserveCurrent:    cfg.Cache.PreserveCurrent,
		UpdateMessage:      cfg.Cache.UpdateMessage,
		Logger:             log,
		Hooks:              hooks,
	})
	if err != nil {
		_ = st.Close(context.Background())
		return err
	}
	defer func() {
		if err := w.Close(context.Background()); err != nil {
			log.Warn("close worker", swcache.Fields{"err": err})
		}
	}()

	var auth server.Authenticator
	if cfg.Auth.LoginURL != "" {
		auth = authclient.New(cfg.Auth.LoginURL, nil)
	}
	h, err := server.New(server.Options{
		Worker:     w,
		Upstream:   upstream,
		Auth:       auth,
		SessionTTL: cfg.Auth.SessionTTL,
		Metrics:    metrics,
		Logger:     log,
	})
	if err != nil {
		return err
	}

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	hs := &http.Server{
		Addr:              cfg.Listen,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	hs.RegisterOnShutdown(h.Shutdown)
	errc := make(chan error, 1)
	go func() { errc <- hs.ListenAndServe() }()
	static, runtime := w.Names()
	log.Info("listening", swcache.Fields{
		"addr": cfg.Listen, "origin": cfg.Origin, "upstream": upstream.String(),
		"static": static, "runtime": runtime, "state": w.State().String(),
	})

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down", nil)
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := hs.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
