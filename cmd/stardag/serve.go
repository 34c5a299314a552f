package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stardag-dev/stardag-go/internal/statusserver"
)

const shutdownGrace = 5 * time.Second

func newServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the last build's status over HTTP",
		Long:  "stardag serve [--addr=:8090] exposes GET /status and GET /healthz for whatever `stardag build` last wrote.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8090", "address to listen on")
	return cmd
}

func runServe(ctx context.Context, addr string) error {
	log := newEngineLogger()
	srv := statusserver.New(addr, statusFile(), log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("status server shutdown: %v", err)
		}
	}()

	fmt.Printf("serving build status on %s (GET /status, GET /healthz)\n", addr)
	return srv.Serve()
}
