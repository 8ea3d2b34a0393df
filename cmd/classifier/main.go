// Command classifier runs the Classifier service: dual-LLM consensus
// triage of inbound messages into ticket actions (spec §4.2).
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
	"github.com/nextlevelbuilder/chatdesk/internal/classify"
	"github.com/nextlevelbuilder/chatdesk/internal/config"
	"github.com/nextlevelbuilder/chatdesk/internal/kv"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "classifier",
		Short: "chatdesk message classifier",
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

	cfg, err := config.LoadClassifier(cfgFile)
	if err != nil {
		slog.Error("classifier: failed to load config", "error", err)
		os.Exit(1)
	}

	bus := busx.New(busx.Config{Addr: cfg.Bus.Addr, Password: cfg.Bus.Password, DB: cfg.Bus.DB})
	store := kv.New(kv.Config{Addr: cfg.Store.Addr, Password: cfg.Store.Password, DB: cfg.Store.DB})
	defer bus.Close()
	defer store.Close()

	svc := classify.NewService(cfg, bus, store)

	mux := http.NewServeMux()
	classify.RegisterRoutes(mux, svc)
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("classifier: graceful shutdown initiated", "signal", sig)
		_ = httpSrv.Shutdown(context.Background())
		cancel()
	}()

	go func() {
		slog.Info("classifier: admin HTTP listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("classifier: http server error", "error", err)
		}
	}()

	if err := svc.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("classifier: service exited with error", "error", err)
	}
	slog.Info("classifier: stopped")
}
