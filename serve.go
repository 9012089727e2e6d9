package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/spf13/cobra"
	"github.com/wansing/pressroom/backend"
	"github.com/wansing/pressroom/util"
	"go.uber.org/zap"
)

const (
	reconcileInterval = time.Minute
	reconcileLimit    = 100
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			s, err := assemble(cfg, logger)
			if err != nil {
				return err
			}
			defer s.close()

			if s.bus != nil {
				s.subscribe(s.bus)
				s.bus.Start()
			}

			return s.serve(cmd.Context())
		},
	}
}

func (s *stack) serve(ctx context.Context) error {

	var sessions = scs.New()
	sessions.Store = s.sessions
	sessions.Lifetime = s.cfg.Server.SessionLifetime
	sessions.Cookie.Path = s.cfg.Server.Base + "/"

	var b = &backend.Backend{
		DB:       s.db,
		Sessions: sessions,
		Hub:      s.hub,
		Logger:   s.logger.Named("http"),
	}

	listener, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return err
	}

	var httpSrv = &http.Server{
		Handler:     util.Prefix(s.cfg.Server.Base, b.Handler()),
		ReadTimeout: 30 * time.Second,
		// no WriteTimeout, it would kill the websockets
	}

	var serveErr = make(chan error, 1)
	go func() {
		serveErr <- httpSrv.Serve(listener)
	}()

	if s.relay != nil {
		go func() {
			if err := s.relay.Listen(ctx, s.hub); err != nil {
				s.logger.Error("relaying pushes", zap.Error(err))
			}
		}()
	}

	s.logger.Info("listening", zap.String("addr", listener.Addr().String()), zap.String("base", s.cfg.Server.Base))

	var ticker = time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-serveErr:
			if err != http.ErrServerClosed {
				return err
			}
			return nil
		case <-ticker.C:
			n, err := s.db.ReconcileAssignments(ctx, reconcileLimit)
			if err != nil {
				s.logger.Warn("reconciling assignments", zap.Error(err))
			} else if n > 0 {
				s.logger.Info("reconciled assignments", zap.Int("jobs", n))
			}
		case <-ctx.Done():
			s.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx) // hijacked websocket connections are not waited for
		}
	}
}
