package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/wansing/pressroom/bus"
	"github.com/wansing/pressroom/bus/asynqbus"
	"github.com/wansing/pressroom/config"
	"github.com/wansing/pressroom/core"
	"github.com/wansing/pressroom/filters"
	"github.com/wansing/pressroom/logging"
	"github.com/wansing/pressroom/memdb"
	"github.com/wansing/pressroom/notify"
	"github.com/wansing/pressroom/sqldb"
	"go.uber.org/zap"
)

func init() {
	log.SetFlags(0) // no log prefixes, on most systems systemd-journald adds them
}

type globalFlags struct {
	config   string
	db       string
	listen   string
	logLevel string
	logEnv   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "pressroom: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var flags = &globalFlags{}
	cmd := &cobra.Command{
		Use:          "pressroom",
		Short:        "Content review and publication service",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&flags.config, "config", "pressroom.ini", "ini configuration `file`")
	cmd.PersistentFlags().StringVar(&flags.db, "db", "", "sql database url (see github.com/xo/dburl) or \"mem:\", overrides the config file")
	cmd.PersistentFlags().StringVar(&flags.listen, "listen", "", "serve HTTP at this `ip:port`, overrides the config file")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "debug, info, warn or error")
	cmd.PersistentFlags().StringVar(&flags.logEnv, "log-env", "development", "\"production\" logs JSON")
	cmd.AddCommand(
		newServeCmd(flags),
		newWorkerCmd(flags),
		newInitCmd(flags),
	)
	return cmd
}

func (flags *globalFlags) load() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(flags.config)
	if err != nil {
		return cfg, nil, err
	}
	if flags.db != "" {
		cfg.Database.URL = flags.db
	}
	if flags.listen != "" {
		cfg.Server.Listen = flags.listen
	}
	logger, err := logging.New(flags.logLevel, flags.logEnv)
	if err != nil {
		return cfg, nil, fmt.Errorf("creating logger: %w", err)
	}
	return cfg, logger, nil
}

// A stack is the assembled application.
type stack struct {
	cfg      config.Config
	logger   *zap.Logger
	db       *core.CoreDB
	sessions scs.Store
	hub      *notify.Hub
	notifier *notify.Notifier
	bus      *bus.Bus           // nil if events go through redis
	asynq    *asynq.Client      // nil if events stay in-process
	relay    *notify.RedisRelay // nil if events stay in-process
	closers  []func() error
}

// assemble opens the databases and wires the core, the dispatcher and the notifier.
// The caller subscribes the handlers and starts the bus.
func assemble(cfg config.Config, logger *zap.Logger) (*stack, error) {

	var s = &stack{
		cfg:    cfg,
		logger: logger,
		hub:    &notify.Hub{Logger: logger.Named("push")},
	}

	var c = &core.CoreDB{}

	if cfg.Database.URL == "mem:" {
		var db = memdb.New()
		c.ContentDB = db
		c.GrantDB = db
		c.GroupDB = db
		c.ReviewJobDB = db
		c.UserDB = db
		s.sessions = memstore.New()
		logger.Warn("using in-memory database, all data is lost on exit")
	} else {
		sqlDB, err := sqldb.Open(cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, sqlDB.Close)
		dbs, err := sqlDB.OpenAll()
		if err != nil {
			s.close()
			return nil, err
		}
		c.ContentDB = dbs.Content
		c.GrantDB = dbs.Grants
		c.GroupDB = dbs.Groups
		c.ReviewJobDB = dbs.Jobs
		c.UserDB = dbs.Users
		if s.sessions, err = sqlDB.SessionStore(); err != nil {
			s.close()
			return nil, err
		}
		logger.Info("using database", zap.Stringer("dialect", sqlDB.Dialect))
	}

	pipeline, err := filters.DefaultRegistry.Pipeline(cfg.Filters.Enabled, cfg.Filters.Settings)
	if err != nil {
		s.close()
		return nil, err
	}
	c.Pipeline = pipeline

	c.Assigner = &core.Assigner{}
	if cfg.Review.Selector == config.SelectorRoundRobin {
		c.Assigner.Selector = &core.RoundRobin{}
	}

	if cfg.Bus.Redis != "" {
		s.asynq = asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Bus.Redis})
		s.closers = append(s.closers, s.asynq.Close)
		c.Dispatcher = &asynqbus.Dispatcher{
			Client:    s.asynq,
			MaxRetry:  cfg.Bus.MaxAttempts - 1,
			Timeout:   cfg.Bus.HandlerTimeout,
			Retention: cfg.Bus.Retention,
			Logger:    logger.Named("asynq"),
		}
		var rdb = redis.NewClient(&redis.Options{Addr: cfg.Bus.Redis})
		s.closers = append(s.closers, rdb.Close)
		s.relay = &notify.RedisRelay{
			Conn:    rdb,
			Channel: cfg.Bus.Channel,
			Logger:  logger.Named("relay"),
		}
	} else {
		s.bus = bus.New(cfg.Bus.Config, logger.Named("bus"))
		c.Dispatcher = s.bus
	}

	if err := c.Init(logger.Named("core")); err != nil {
		s.close()
		return nil, err
	}
	s.db = c

	// handlers run in the worker processes in redis mode, the websockets are held by the serve processes
	var pushers = notify.Multi{s.hub}
	if s.relay != nil {
		pushers = notify.Multi{s.relay}
	}
	if cfg.Mail.Host != "" {
		pushers = append(pushers, &notify.MailPusher{Config: cfg.Mail, Users: c.UserDB})
	}
	s.notifier = &notify.Notifier{
		Pusher:  pushers,
		Catalog: notify.DefaultCatalog(),
		Logger:  logger.Named("notify"),
	}
	c.Assigner.OnAssigned = s.notifier.OnAssigned

	return s, nil
}

// subscribe registers the handlers which react to status events.
func (s *stack) subscribe(sub core.Subscriber) {
	s.db.Subscribe(sub)
	sub.Subscribe("notify", nil, s.notifier.HandleEvent)
}

func (s *stack) close() {
	if s.bus != nil {
		s.bus.Close()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("closing", zap.Error(err))
		}
	}
}

var errUsage = errors.New("nothing to do, see --help")
