// Command transportgw runs the Transport Gateway: the single process that
// owns the chat transport connection and translates it to/from the bus
// topics (spec §4.1).
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
	"github.com/nextlevelbuilder/chatdesk/internal/transport"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "transportgw",
		Short: "chatdesk transport gateway",
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

	cfg, err := config.LoadTransport(cfgFile)
	if err != nil {
		slog.Error("transportgw: failed to load config", "error", err)
		os.Exit(1)
	}

	bus := busx.New(busx.Config{Addr: cfg.Bus.Addr, Password: cfg.Bus.Password, DB: cfg.Bus.DB})
	store := kv.New(kv.Config{Addr: cfg.Store.Addr, Password: cfg.Store.Password, DB: cfg.Store.DB})
	defer bus.Close()
	defer store.Close()

	svc := transport.NewService(cfg, bus, store)

	mux := http.NewServeMux()
	transport.RegisterRoutes(mux, svc)
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("transportgw: graceful shutdown initiated", "signal", sig)
		_ = httpSrv.Shutdown(context.Background())
		cancel()
	}()

	go func() {
		slog.Info("transportgw: admin HTTP listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("transportgw: http server error", "error", err)
		}
	}()

	if err := svc.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("transportgw: service exited with error", "error", err)
	}
	slog.Info("transportgw: stopped")
}
