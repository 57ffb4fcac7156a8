package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentic-research/medgraph/internal/control"
	"github.com/agentic-research/medgraph/internal/corpus"
	"github.com/agentic-research/medgraph/internal/server"
	"github.com/agentic-research/medgraph/internal/watch"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	serveDir     string
	serveAddr    string
	serveWatch   bool
	serveMCP     bool
	serveControl string
)

func init() {
	serveCmd.Flags().StringVarP(&serveDir, "dir", "d", "", "Corpus directory (overrides corpus.root)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides server.addr)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Reload when corpus files change")
	serveCmd.Flags().BoolVar(&serveMCP, "mcp", false, "Serve MCP tools on stdin/stdout instead of HTTP")
	serveCmd.Flags().StringVar(&serveControl, "control-file", "", "Publish each generation through this mmap control file")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve read-only queries over HTTP or MCP",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.log.Sync()

		cfg := e.cfg
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		if serveControl != "" {
			cfg.Server.ControlFile = serveControl
		}
		cfg.Server.Watch = cfg.Server.Watch || serveWatch
		debounce, err := cfg.DebounceDuration()
		if err != nil {
			return err
		}
		policy, err := corpus.PolicyFromConfig(cfg.Validate)
		if err != nil {
			return err
		}

		src, err := e.source(serveDir)
		if err != nil {
			return err
		}
		mgr := corpus.NewManager(src, e.log)

		if cfg.Server.ControlFile != "" {
			ctl, err := control.OpenOrCreate(cfg.Server.ControlFile)
			if err != nil {
				return err
			}
			defer func() { _ = ctl.Close() }()
			mgr.OnSwap(control.NewPublisher(ctl, e.log).Publish)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// The first load must succeed; later reloads may fail and keep serving.
		if _, err := mgr.Reload(ctx); err != nil {
			return fmt.Errorf("initial load: %w", err)
		}

		srv := server.New(mgr.HotSwap(), policy, e.log)
		g, ctx := errgroup.WithContext(ctx)

		if cfg.Server.Watch {
			w, err := watch.New(src.Root(), func(ctx context.Context) error {
				_, err := mgr.Reload(ctx)
				return err
			}, watch.Options{Match: src.Match, Debounce: debounce, Log: e.log})
			if err != nil {
				return err
			}
			g.Go(func() error { return w.Run(ctx) })
		}

		if serveMCP {
			g.Go(func() error {
				err := server.ServeStdio(srv.NewMCPServer(Version))
				stop()
				return err
			})
		} else {
			httpSrv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			g.Go(func() error {
				e.log.Info("serving http", "addr", cfg.Server.Addr)
				if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return httpSrv.Shutdown(shutdownCtx)
			})
		}
		return g.Wait()
	},
}
