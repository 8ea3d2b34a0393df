// Command ticketmanager runs the Ticket Manager: OAuth2-authenticated
// helpdesk integration, guarded by a circuit breaker with a persistent
// fallback queue (spec §4.3).
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chatdesk/internal/busx"
	"github.com/nextlevelbuilder/chatdesk/internal/config"
	"github.com/nextlevelbuilder/chatdesk/internal/kv"
	"github.com/nextlevelbuilder/chatdesk/internal/ticketing"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ticketmanager",
		Short: "chatdesk ticket manager",
		Run: func(cmd *cobra.Command, args []string) {
			run()
		},
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.json", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	cfg, err := config.LoadTicketManager(cfgFile)
	if err != nil {
		slog.Error("ticketmanager: failed to load config", "error", err)
		os.Exit(1)
	}

	bus := busx.New(busx.Config{Addr: cfg.Bus.Addr, Password: cfg.Bus.Password, DB: cfg.Bus.DB})
	store := kv.New(kv.Config{Addr: cfg.Store.Addr, Password: cfg.Store.Password, DB: cfg.Store.DB})
	defer bus.Close()
	defer store.Close()

	svc, err := ticketing.NewService(cfg, bus, store)
	if err != nil {
		slog.Error("ticketmanager: failed to construct service", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	ticketing.RegisterRoutes(mux, svc)
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("ticketmanager: graceful shutdown initiated", "signal", sig)
		_ = httpSrv.Shutdown(context.Background())
		cancel()
	}()

	go func() {
		slog.Info("ticketmanager: admin HTTP listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("ticketmanager: http server error", "error", err)
		}
	}()

	if err := svc.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("ticketmanager: service exited with error", "error", err)
	}
	slog.Info("ticketmanager: stopped")
}
