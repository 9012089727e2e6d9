package main

import (
	"errors"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"github.com/wansing/pressroom/bus/asynqbus"
	"go.uber.org/zap"
)

func newWorkerCmd(flags *globalFlags) *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume status events from redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.Bus.Redis == "" {
				return errors.New("worker requires [bus] redis or PRESSROOM_REDIS")
			}

			s, err := assemble(cfg, logger)
			if err != nil {
				return err
			}
			defer s.close()

			var worker = asynqbus.NewWorker(cfg.Bus.DedupeWindow, logger.Named("worker"))
			s.subscribe(worker)

			server := asynq.NewServer(asynq.RedisClientOpt{
				Addr: cfg.Bus.Redis,
			}, asynq.Config{
				Concurrency: concurrency,
			})

			go func() {
				<-cmd.Context().Done()
				server.Shutdown()
			}()

			logger.Info("worker started", zap.String("redis", cfg.Bus.Redis))
			return server.Run(worker.Handler())
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "number of concurrent event handlers")
	return cmd
}
