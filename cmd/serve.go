package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/SamuelRCrider/leakguard/core"
	"github.com/SamuelRCrider/leakguard/mcpserver"
	"github.com/SamuelRCrider/leakguard/report"
)

func newServeMCPCmd(a *app) *cobra.Command {
	var rulesPath string
	var rpm int
	var allowFetch bool

	cmd := &cobra.Command{
		Use:   "serve-mcp",
		Short: "Serve scan, validate and report tools over MCP stdio",
		Long: `serve-mcp speaks the Model Context Protocol on stdin/stdout. Logs go
to stderr. When rules come from a YAML file, SIGHUP reloads it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			src, err := a.ruleSource(ctx, rulesPath)
			if err != nil {
				return err
			}
			results, err := a.results()
			if err != nil {
				return err
			}

			opts := []mcpserver.Option{
				mcpserver.WithResults(results),
				mcpserver.WithLogger(a.logger),
				mcpserver.WithAudit(a.audit),
				mcpserver.WithWhitelist(a.whitelist),
			}
			if allowFetch {
				opts = append(opts, mcpserver.WithProvider(a.provider()))
			}
			srv := mcpserver.New(src, mcpserver.Config{
				Name:              appName,
				Version:           version,
				Engine:            a.cfg.EngineConfig(),
				RequestsPerMinute: rpm,
			}, opts...)

			stop := a.reloadOnHangup()
			defer stop()
			return srv.ServeStdio()
		},
	}
	cmd.Flags().StringVarP(&rulesPath, "rules", "r", "", "YAML rule set instead of the database")
	cmd.Flags().IntVar(&rpm, "rate-limit", 60, "tool calls per tool and minute, 0 disables")
	cmd.Flags().BoolVar(&allowFetch, "allow-fetch", false, "enable the scan_targets tool (reads local files and URLs)")
	return cmd
}

// reloadOnHangup reloads a YAML rule set on SIGHUP until the returned stop is called
func (a *app) reloadOnHangup() func() {
	if a.manager == nil {
		return func() {}
	}
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-hup:
				if err := a.manager.Load(a.rulesPath); err != nil {
					core.ReportError(a.logger, "Rule reload failed, keeping previous rules", err, "path", a.rulesPath)
					continue
				}
				history := a.manager.History()
				a.logger.Infow("Rules reloaded", "path", a.rulesPath, "version", history[len(history)-1].Version)
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(hup)
		close(done)
	}
}

func newServeHTTPCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve-http",
		Short: "Serve report downloads over HTTP",
		Long: `serve-http exposes
  GET  /detections/{id}/report?format=csv&sortBy=riskLevel&sortOrder=desc
  POST /detections
Results are kept in the database when one is configured, in memory otherwise.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := a.results()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.HTTP.Addr
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           report.NewHandler(results, a.logger),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				a.logger.Infow("HTTP server listening", "addr", addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default http.addr)")
	return cmd
}
